package fleet

import (
	"time"

	"github.com/transitkl/kl-bus/internal/geo"
	"github.com/transitkl/kl-bus/internal/models"
)

const (
	// Displacement from the anchor below this is treated as GPS jitter.
	distanceThresholdKm = 0.03
	// Reported speeds at or below this count as "not moving".
	speedThresholdKmh = 1.0
	// Minimum continuous low-speed dwell before a vehicle is stationary.
	stationaryWindow = 60 * time.Second
)

// Classify folds one position report into a vehicle's motion state.
// prior is nil for a vehicle that has never been classified; the first
// sighting anchors at the reported coordinates.
func Classify(prior *models.MotionState, pos *models.VehiclePosition, now time.Time) models.MotionState {
	nowMs := now.UnixMilli()

	refLat, refLon := pos.Latitude, pos.Longitude
	if prior != nil {
		refLat, refLon = prior.AnchorLat, prior.AnchorLon
	}

	drift := geo.Distance(pos.Latitude, pos.Longitude, refLat, refLon)

	state := models.MotionState{AnchorLat: refLat, AnchorLon: refLon}

	switch {
	case drift >= distanceThresholdKm:
		// Meaningful movement: re-anchor. The dwell timer restarts only
		// if the vehicle arrived at the new spot already slow.
		state.AnchorLat = pos.Latitude
		state.AnchorLon = pos.Longitude
		if pos.Speed <= speedThresholdKmh {
			state.StationarySince = nowMs
		}
	case pos.Speed <= speedThresholdKmh:
		// Still near the anchor and slow: keep or start the dwell timer.
		if prior != nil && prior.StationarySince != 0 {
			state.StationarySince = prior.StationarySince
		} else {
			state.StationarySince = nowMs
		}
	default:
		// Drifting slowly but reporting speed: not dwelling.
	}

	return state
}

// Stationary reports whether a vehicle has dwelled at its anchor for
// at least the stationary window. A nil state means the vehicle has
// never been classified and is treated as moving.
func Stationary(state *models.MotionState, now time.Time) bool {
	if state == nil || state.StationarySince == 0 {
		return false
	}
	return now.UnixMilli()-state.StationarySince >= stationaryWindow.Milliseconds()
}
