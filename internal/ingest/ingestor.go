package ingest

import (
	"context"
	"encoding/json"
	"log"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/transitkl/kl-bus/internal/fleet"
	"github.com/transitkl/kl-bus/internal/metrics"
	"github.com/transitkl/kl-bus/internal/models"
	"github.com/transitkl/kl-bus/internal/socketio"
)

const (
	subscribeEvent    = "onFts-reload"
	keepaliveInterval = 20 * time.Second

	backoffFloor = 1 * time.Second
	backoffCap   = 30 * time.Second
)

type subscribeRequest struct {
	SID      string `json:"sid"`
	UID      string `json:"uid"`
	Provider string `json:"provider"`
	Route    string `json:"route"`
}

// fleetWideSubscribe asks the feed for every vehicle; a non-empty route
// would narrow the stream to one route.
func fleetWideSubscribe() subscribeRequest {
	return subscribeRequest{Provider: "RKL"}
}

// Ingestor owns the upstream feed connection and writes decoded
// position batches through to the fleet cache.
type Ingestor struct {
	feedURL string
	cache   *fleet.Cache
	status  *Status
	metrics *metrics.Collector
}

func New(feedURL string, cache *fleet.Cache, status *Status, collector *metrics.Collector) *Ingestor {
	return &Ingestor{
		feedURL: feedURL,
		cache:   cache,
		status:  status,
		metrics: collector,
	}
}

// Run drives the connect/read/reconnect loop until ctx is cancelled.
// Feed errors are never fatal; each failed session waits out an
// exponential backoff before redialing.
func (ing *Ingestor) Run(ctx context.Context) {
	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = backoffFloor
	policy.MaxInterval = backoffCap
	policy.Multiplier = 2
	policy.RandomizationFactor = 0
	policy.MaxElapsedTime = 0

	for {
		err := ing.session(ctx, policy)
		if ctx.Err() != nil {
			ing.status.setConnected(false)
			ing.metrics.FeedConnected.Set(0)
			return
		}

		ing.status.recordDisconnect(err)
		ing.metrics.FeedConnected.Set(0)
		ing.metrics.Reconnects.Inc()

		wait := policy.NextBackOff()
		log.Printf("ingest: feed disconnected: %v; reconnecting in %s", err, wait)
		select {
		case <-time.After(wait):
		case <-ctx.Done():
			return
		}
	}
}

// session runs one connected lifetime of the feed and returns the
// error that ended it.
func (ing *Ingestor) session(ctx context.Context, policy *backoff.ExponentialBackOff) error {
	dialCtx, dialCancel := context.WithTimeout(ctx, 15*time.Second)
	client, err := socketio.Dial(dialCtx, ing.feedURL)
	dialCancel()
	if err != nil {
		return err
	}
	defer client.Close()

	if err := client.Emit(subscribeEvent, fleetWideSubscribe()); err != nil {
		return err
	}

	policy.Reset()
	ing.status.setConnected(true)
	ing.metrics.FeedConnected.Set(1)
	log.Printf("ingest: connected to %s", ing.feedURL)

	// The keepalive refreshes the subscription; an emit failure closes
	// the socket, which surfaces as a read error below.
	done := make(chan struct{})
	defer close(done)
	go func() {
		ticker := time.NewTicker(keepaliveInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				if err := client.Emit(subscribeEvent, fleetWideSubscribe()); err != nil {
					log.Printf("ingest: keepalive failed: %v", err)
					client.Close()
					return
				}
			case <-ctx.Done():
				client.Close()
				return
			case <-done:
				return
			}
		}
	}()

	for {
		_, args, err := client.NextEvent()
		if err != nil {
			return err
		}
		ing.handleEvent(ctx, args)
	}
}

// handleEvent decodes the frames of one inbound event and writes the
// resulting batch through to the cache. Decode and write failures are
// counted and dropped.
func (ing *Ingestor) handleEvent(ctx context.Context, args []json.RawMessage) {
	now := time.Now()
	ing.status.recordMessage(now)
	ing.metrics.MessagesProcessed.Inc()

	var batch []models.VehiclePosition
	for _, arg := range args {
		positions, err := decodeFrame(arg)
		if err != nil {
			ing.status.recordDecodeFailure()
			ing.metrics.DecodeFailures.Inc()
			log.Printf("ingest: dropping frame: %v", err)
			continue
		}
		batch = append(batch, positions...)
	}
	if len(batch) == 0 {
		return
	}

	start := time.Now()
	written, err := ing.cache.WriteBatch(ctx, batch, now)
	ing.metrics.BatchWriteDuration.Observe(time.Since(start).Seconds())
	if err != nil {
		ing.status.recordCacheWriteFailure(err)
		ing.metrics.CacheWriteFailures.Inc()
		log.Printf("ingest: dropping batch of %d: %v", len(batch), err)
		return
	}

	ing.status.addVehiclesWritten(written)
	ing.metrics.VehiclesWritten.Add(float64(written))
}
