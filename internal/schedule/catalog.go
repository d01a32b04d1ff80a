package schedule

import (
	"errors"
	"fmt"
	"log"
	"sort"
	"sync"
	"time"

	"github.com/transitkl/kl-bus/internal/geo"
	"github.com/transitkl/kl-bus/internal/models"
)

// ErrNotFound marks lookups for routes or stops that do not exist in
// the schedule. Callers map it to a 404.
var ErrNotFound = errors.New("not found")

// Catalog serves the parsed schedule join. The four source files are
// parsed once and the snapshot is reused; a reload happens when the
// snapshot is older than the refresh interval at access time. A failed
// reload keeps serving the previous snapshot.
type Catalog struct {
	dir     string
	refresh time.Duration

	mu       sync.Mutex
	data     *Data
	loadedAt time.Time
}

// NewCatalog creates a catalog reading from dir.
func NewCatalog(dir string, refresh time.Duration) *Catalog {
	return &Catalog{dir: dir, refresh: refresh}
}

// Load forces a parse of the schedule files.
func (c *Catalog) Load() error {
	data, err := load(c.dir)
	if err != nil {
		return err
	}

	c.mu.Lock()
	c.data = data
	c.loadedAt = time.Now()
	c.mu.Unlock()
	return nil
}

// snapshot returns the current data, reloading if it has gone stale.
func (c *Catalog) snapshot() (*Data, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.data != nil && time.Since(c.loadedAt) <= c.refresh {
		return c.data, nil
	}

	data, err := load(c.dir)
	if err != nil {
		if c.data != nil {
			log.Printf("Schedule reload failed, keeping previous snapshot: %v", err)
			return c.data, nil
		}
		return nil, err
	}

	c.data = data
	c.loadedAt = time.Now()
	return c.data, nil
}

// RouteStops returns the ordered stop sequence for a route, built from
// its representative trip (the first trip listed for the route) with
// stop times sorted by stop_sequence.
func (c *Catalog) RouteStops(routeID string) (*models.RouteStops, error) {
	data, err := c.snapshot()
	if err != nil {
		return nil, err
	}
	return data.routeStops(routeID)
}

func (d *Data) routeStops(routeID string) (*models.RouteStops, error) {
	route, ok := d.Routes[routeID]
	if !ok {
		return nil, fmt.Errorf("route %q: %w", routeID, ErrNotFound)
	}

	trips := d.TripsByRoute[routeID]
	if len(trips) == 0 {
		return nil, fmt.Errorf("no trips for route %q: %w", routeID, ErrNotFound)
	}

	firstTrip := trips[0]
	stopTimes := d.StopTimesByTrip[firstTrip.ID]
	if len(stopTimes) == 0 {
		return nil, fmt.Errorf("no stop times for trip %q: %w", firstTrip.ID, ErrNotFound)
	}

	sorted := make([]*models.StopTime, len(stopTimes))
	copy(sorted, stopTimes)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].StopSequence < sorted[j].StopSequence
	})

	stops := make([]models.RouteStop, 0, len(sorted))
	for _, st := range sorted {
		stop, ok := d.Stops[st.StopID]
		if !ok {
			// Stop referenced by stop_times but missing from stops.txt
			continue
		}
		stops = append(stops, models.RouteStop{
			StopID:      stop.ID,
			Name:        stop.Name,
			Description: stop.Description,
			Latitude:    stop.Latitude,
			Longitude:   stop.Longitude,
			Sequence:    st.StopSequence,
		})
	}

	return &models.RouteStops{
		RouteID:   route.ID,
		ShortName: route.ShortName,
		LongName:  route.LongName,
		Stops:     stops,
	}, nil
}

// RoutesServingStop returns every route whose stop sequence contains
// the stop.
func (c *Catalog) RoutesServingStop(stopID string) ([]*models.Route, error) {
	data, err := c.snapshot()
	if err != nil {
		return nil, err
	}

	if _, ok := data.Stops[stopID]; !ok {
		return nil, fmt.Errorf("stop %q: %w", stopID, ErrNotFound)
	}

	ids := make([]string, 0, len(data.Routes))
	for id := range data.Routes {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	var routes []*models.Route
	for _, id := range ids {
		rs, err := data.routeStops(id)
		if err != nil {
			// Routes with no trips or stop times cannot serve any stop
			continue
		}
		for _, s := range rs.Stops {
			if s.StopID == stopID {
				routes = append(routes, data.Routes[id])
				break
			}
		}
	}

	if len(routes) == 0 {
		return nil, fmt.Errorf("no routes serve stop %q: %w", stopID, ErrNotFound)
	}
	return routes, nil
}

// Stop returns one stop by id.
func (c *Catalog) Stop(stopID string) (*models.Stop, error) {
	data, err := c.snapshot()
	if err != nil {
		return nil, err
	}
	stop, ok := data.Stops[stopID]
	if !ok {
		return nil, fmt.Errorf("stop %q: %w", stopID, ErrNotFound)
	}
	return stop, nil
}

// NearestStop returns the stop closest to the coordinates and its
// distance in km.
func (c *Catalog) NearestStop(lat, lon float64) (*models.Stop, float64, error) {
	data, err := c.snapshot()
	if err != nil {
		return nil, 0, err
	}
	if len(data.Stops) == 0 {
		return nil, 0, fmt.Errorf("no stops loaded: %w", ErrNotFound)
	}

	var nearest *models.Stop
	best := 0.0
	for _, stop := range data.Stops {
		d := geo.Distance(lat, lon, stop.Latitude, stop.Longitude)
		if nearest == nil || d < best {
			nearest = stop
			best = d
		}
	}
	return nearest, best, nil
}
