package ingest

import (
	"sync"
	"time"

	"github.com/transitkl/kl-bus/internal/models"
)

// Status is the process-wide ingestor health record. The ingestor loop
// is the only writer; queries read through Snapshot.
type Status struct {
	mu  sync.RWMutex
	cur models.IngestorStatus
}

func NewStatus() *Status {
	return &Status{}
}

// Snapshot returns a copy of the current status.
func (s *Status) Snapshot() models.IngestorStatus {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cur
}

func (s *Status) setConnected(connected bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cur.Connected = connected
}

func (s *Status) recordMessage(now time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cur.MessagesProcessed++
	s.cur.LastMessageAt = now.UnixMilli()
}

func (s *Status) addVehiclesWritten(n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cur.VehiclesWritten += int64(n)
}

func (s *Status) recordDecodeFailure() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cur.DecodeFailures++
}

func (s *Status) recordCacheWriteFailure(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cur.CacheWriteFailures++
	s.cur.LastError = err.Error()
}

func (s *Status) recordDisconnect(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cur.Connected = false
	s.cur.Reconnects++
	if err != nil {
		s.cur.LastError = err.Error()
	}
}
