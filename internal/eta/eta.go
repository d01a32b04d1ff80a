// Package eta turns active-fleet positions and a route's stop sequence
// into estimated arrivals at a target stop.
package eta

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/transitkl/kl-bus/internal/fleet"
	"github.com/transitkl/kl-bus/internal/geo"
	"github.com/transitkl/kl-bus/internal/models"
)

const (
	// Positions farther than this from every stop cannot be placed on
	// the route's geography.
	maxDerivedDistanceKm = 0.75
	// Fallback when the vehicle reports no usable speed.
	defaultSpeedKmh = 20.0
)

// ErrStopNotOnRoute is returned when the target stop is absent from
// the route's stop sequence.
var ErrStopNotOnRoute = errors.New("stop not on route")

// NormalizeRouteCode maps feed route codes and schedule route ids onto
// a common form. The upstream feed and the schedule disagree on case
// and trailing zero padding ("T789" vs "T7890"), so both are ignored.
func NormalizeRouteCode(code string) string {
	return strings.TrimRight(strings.ToUpper(strings.TrimSpace(code)), "0")
}

// ResolveStop places a position in a route's stop sequence. A reported
// stop id that appears in the sequence wins; otherwise the nearest
// stop within the derivation radius is used; otherwise nil.
func ResolveStop(pos *models.VehiclePosition, stops []models.RouteStop) *models.ResolvedStop {
	if pos.BusStopID != "" {
		for i := range stops {
			if stops[i].StopID == pos.BusStopID {
				return &models.ResolvedStop{
					StopID:     stops[i].StopID,
					Name:       stops[i].Name,
					Sequence:   stops[i].Sequence,
					Provenance: models.ProvenanceLive,
				}
			}
		}
	}

	var nearest *models.RouteStop
	best := 0.0
	for i := range stops {
		d := geo.Distance(pos.Latitude, pos.Longitude, stops[i].Latitude, stops[i].Longitude)
		if nearest == nil || d < best {
			nearest = &stops[i]
			best = d
		}
	}
	if nearest == nil || best > maxDerivedDistanceKm {
		return nil
	}
	return &models.ResolvedStop{
		StopID:     nearest.StopID,
		Name:       nearest.Name,
		Sequence:   nearest.Sequence,
		Provenance: models.ProvenanceDerived,
	}
}

// ForRoute computes ETAs to targetStopID for every active,
// non-stationary vehicle on the route. Results are sorted ascending by
// eta_minutes; ties keep input order.
func ForRoute(positions []models.VehiclePosition, motion map[string]*models.MotionState,
	routeStops *models.RouteStops, targetStopID string, now time.Time) ([]models.EtaRecord, error) {

	var target *models.RouteStop
	for i := range routeStops.Stops {
		if routeStops.Stops[i].StopID == targetStopID {
			target = &routeStops.Stops[i]
			break
		}
	}
	if target == nil {
		return nil, fmt.Errorf("stop %q not in route %q: %w", targetStopID, routeStops.RouteID, ErrStopNotOnRoute)
	}

	wantRoute := NormalizeRouteCode(routeStops.RouteID)

	records := []models.EtaRecord{}
	for i := range positions {
		pos := &positions[i]

		if NormalizeRouteCode(pos.Route) != wantRoute {
			continue
		}
		if fleet.Stationary(motion[pos.BusNo], now) {
			continue
		}

		current := ResolveStop(pos, routeStops.Stops)
		if current == nil {
			continue
		}
		if current.Sequence >= target.Sequence {
			// Already at or past the target
			continue
		}

		distance := chainDistance(pos, routeStops.Stops, current.Sequence, target.Sequence)

		speed := pos.Speed
		if speed <= 0 {
			speed = defaultSpeedKmh
		}
		etaMinutes := distance / speed * 60

		records = append(records, models.EtaRecord{
			RouteID:         routeStops.RouteID,
			BusNo:           pos.BusNo,
			CurrentLat:      pos.Latitude,
			CurrentLon:      pos.Longitude,
			CurrentStopID:   current.StopID,
			CurrentStopName: current.Name,
			CurrentSequence: current.Sequence,
			Provenance:      current.Provenance,
			StopsAway:       target.Sequence - current.Sequence,
			DistanceKm:      math.Round(distance*100) / 100,
			SpeedKmh:        pos.Speed,
			EtaMinutes:      math.Round(etaMinutes*10) / 10,
		})
	}

	sort.SliceStable(records, func(i, j int) bool {
		return records[i].EtaMinutes < records[j].EtaMinutes
	})
	return records, nil
}

// ForStop aggregates ETAs to one stop across every route serving it.
// sequences maps route id to that route's stop sequence. Duplicate
// (route, bus) pairs keep the first occurrence.
func ForStop(positions []models.VehiclePosition, motion map[string]*models.MotionState,
	sequences map[string]*models.RouteStops, targetStopID string, now time.Time) []models.EtaRecord {

	routeIDs := make([]string, 0, len(sequences))
	for id := range sequences {
		routeIDs = append(routeIDs, id)
	}
	sort.Strings(routeIDs)

	type key struct{ route, bus string }
	seen := make(map[key]bool)
	merged := []models.EtaRecord{}

	for _, routeID := range routeIDs {
		records, err := ForRoute(positions, motion, sequences[routeID], targetStopID, now)
		if err != nil {
			// Routes whose sequence does not actually contain the stop
			continue
		}
		for _, rec := range records {
			k := key{rec.RouteID, rec.BusNo}
			if seen[k] {
				continue
			}
			seen[k] = true
			merged = append(merged, rec)
		}
	}

	sort.SliceStable(merged, func(i, j int) bool {
		return merged[i].EtaMinutes < merged[j].EtaMinutes
	})
	return merged
}

// chainDistance walks vehicle -> each intermediate stop -> target in
// increasing sequence order.
func chainDistance(pos *models.VehiclePosition, stops []models.RouteStop, currentSeq, targetSeq int) float64 {
	total := 0.0
	prevLat, prevLon := pos.Latitude, pos.Longitude
	for i := range stops {
		if stops[i].Sequence <= currentSeq || stops[i].Sequence > targetSeq {
			continue
		}
		total += geo.Distance(prevLat, prevLon, stops[i].Latitude, stops[i].Longitude)
		prevLat, prevLon = stops[i].Latitude, stops[i].Longitude
	}
	return total
}
