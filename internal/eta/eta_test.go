package eta

import (
	"errors"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/transitkl/kl-bus/internal/geo"
	"github.com/transitkl/kl-bus/internal/models"
)

// testRoute is a straight south-to-north line of stops roughly 550m
// apart, with route-local sequence numbers 1,2,3,5,10.
func testRoute() *models.RouteStops {
	mk := func(id, name string, lat float64, seq int) models.RouteStop {
		return models.RouteStop{StopID: id, Name: name, Latitude: lat, Longitude: 101.66, Sequence: seq}
	}
	return &models.RouteStops{
		RouteID:   "T7890",
		ShortName: "T789",
		LongName:  "Pantai Dalam - KL Gateway",
		Stops: []models.RouteStop{
			mk("S1", "PANTAI DALAM", 3.1100, 1),
			mk("S2", "PANTAI PERMAI", 3.1150, 2),
			mk("S3", "PANTAI HILLPARK", 3.1200, 3),
			mk("S5", "KERINCHI", 3.1250, 5),
			mk("S10", "KL GATEWAY", 3.1300, 10),
		},
	}
}

func vehicle(busNo, route string, lat float64, speed float64) models.VehiclePosition {
	return models.VehiclePosition{BusNo: busNo, Route: route, Latitude: lat, Longitude: 101.66, Speed: speed}
}

func TestNormalizeRouteCode(t *testing.T) {
	cases := map[string]string{
		"T7890":  "T789",
		"T789":   "T789",
		"t789":   "T789",
		" T7890": "T789",
		"U1000":  "U1",
		"580":    "58",
	}
	for in, want := range cases {
		if got := NormalizeRouteCode(in); got != want {
			t.Errorf("NormalizeRouteCode(%q): got %q want %q", in, got, want)
		}
	}
}

func TestResolveStopLive(t *testing.T) {
	route := testRoute()
	pos := vehicle("B1", "T789", 3.1100, 10)
	pos.BusStopID = "S3"

	resolved := ResolveStop(&pos, route.Stops)
	require.NotNil(t, resolved)
	assert.Equal(t, "S3", resolved.StopID)
	assert.Equal(t, 3, resolved.Sequence)
	assert.Equal(t, models.ProvenanceLive, resolved.Provenance)
}

func TestResolveStopDerived(t *testing.T) {
	route := testRoute()

	// Reported stop not on this route: falls back to nearest-neighbor.
	pos := vehicle("B1", "T789", 3.1152, 10)
	pos.BusStopID = "ELSEWHERE"

	resolved := ResolveStop(&pos, route.Stops)
	require.NotNil(t, resolved)
	assert.Equal(t, "S2", resolved.StopID)
	assert.Equal(t, models.ProvenanceDerived, resolved.Provenance)
}

func TestResolveStopTooFar(t *testing.T) {
	route := testRoute()

	// ~2.2km north of the last stop: beyond the derivation radius.
	pos := vehicle("B1", "T789", 3.1500, 10)
	assert.Nil(t, ResolveStop(&pos, route.Stops))
}

func TestForRouteFallbackSpeed(t *testing.T) {
	route := testRoute()
	now := time.Unix(1_700_000_000, 0)

	// Vehicle parked exactly on S5 (sequence 5), reporting zero speed,
	// heading for S10 (sequence 10).
	pos := vehicle("B2", "T789", 3.1250, 0)

	records, err := ForRoute([]models.VehiclePosition{pos}, nil, route, "S10", now)
	require.NoError(t, err)
	require.Len(t, records, 1)

	rec := records[0]
	assert.Equal(t, "B2", rec.BusNo)
	assert.Equal(t, "S5", rec.CurrentStopID)
	assert.Equal(t, 5, rec.CurrentSequence)
	assert.Equal(t, models.ProvenanceDerived, rec.Provenance)
	assert.Equal(t, 5, rec.StopsAway)
	assert.Equal(t, float64(0), rec.SpeedKmh)

	// Chain: vehicle -> S10. Reported speed 0 falls back to 20 km/h.
	chain := geo.Distance(3.1250, 101.66, 3.1300, 101.66)
	wantEta := math.Round(chain/20*60*10) / 10
	assert.Equal(t, wantEta, rec.EtaMinutes)
	assert.Equal(t, math.Round(chain*100)/100, rec.DistanceKm)
}

func TestForRouteChainDistance(t *testing.T) {
	route := testRoute()
	now := time.Unix(1_700_000_000, 0)

	// Vehicle just past S1, so current resolves to S1 (sequence 1).
	pos := vehicle("B1", "T789", 3.1110, 30)

	records, err := ForRoute([]models.VehiclePosition{pos}, nil, route, "S10", now)
	require.NoError(t, err)
	require.Len(t, records, 1)

	// vehicle -> S2 -> S3 -> S5 -> S10, in increasing sequence order.
	chain := geo.Distance(3.1110, 101.66, 3.1150, 101.66) +
		geo.Distance(3.1150, 101.66, 3.1200, 101.66) +
		geo.Distance(3.1200, 101.66, 3.1250, 101.66) +
		geo.Distance(3.1250, 101.66, 3.1300, 101.66)

	assert.Equal(t, math.Round(chain*100)/100, records[0].DistanceKm)
	assert.Equal(t, 9, records[0].StopsAway)
	wantEta := math.Round(chain/30*60*10) / 10
	assert.Equal(t, wantEta, records[0].EtaMinutes)
}

func TestForRouteNormalizesRouteCodes(t *testing.T) {
	route := testRoute() // schedule id T7890
	now := time.Unix(1_700_000_000, 0)

	positions := []models.VehiclePosition{
		vehicle("B1", "T789", 3.1110, 30),  // feed code, no padding
		vehicle("B2", "t7890", 3.1160, 30), // lowercase, padded
		vehicle("B3", "T790", 3.1110, 30),  // different route
	}

	records, err := ForRoute(positions, nil, route, "S10", now)
	require.NoError(t, err)
	require.Len(t, records, 2)
	for _, rec := range records {
		assert.NotEqual(t, "B3", rec.BusNo)
	}
}

func TestForRouteSkipsPassedAndAtStop(t *testing.T) {
	route := testRoute()
	now := time.Unix(1_700_000_000, 0)

	positions := []models.VehiclePosition{
		vehicle("AT", "T789", 3.1300, 30),   // resolves to S10 itself
		vehicle("NEAR", "T789", 3.1250, 30), // S5, approaching
	}

	records, err := ForRoute(positions, nil, route, "S5", now)
	require.NoError(t, err)
	require.Len(t, records, 0, "vehicles at or past the target are excluded")

	records, err = ForRoute(positions, nil, route, "S10", now)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "NEAR", records[0].BusNo)
	assert.GreaterOrEqual(t, records[0].StopsAway, 1)
}

func TestForRouteExcludesStationary(t *testing.T) {
	route := testRoute()
	now := time.Unix(1_700_000_000, 0)

	positions := []models.VehiclePosition{
		vehicle("PARKED", "T789", 3.1100, 0),
		vehicle("ROLLING", "T789", 3.1150, 25),
	}
	motion := map[string]*models.MotionState{
		"PARKED": {
			AnchorLat:       3.1100,
			AnchorLon:       101.66,
			StationarySince: now.Add(-2 * time.Minute).UnixMilli(),
		},
		"ROLLING": {AnchorLat: 3.1150, AnchorLon: 101.66},
	}

	records, err := ForRoute(positions, motion, route, "S10", now)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "ROLLING", records[0].BusNo)
}

func TestForRouteSorted(t *testing.T) {
	route := testRoute()
	now := time.Unix(1_700_000_000, 0)

	positions := []models.VehiclePosition{
		vehicle("FAR", "T789", 3.1110, 20),
		vehicle("CLOSE", "T789", 3.1250, 20),
		vehicle("MID", "T789", 3.1160, 20),
	}

	records, err := ForRoute(positions, nil, route, "S10", now)
	require.NoError(t, err)
	require.Len(t, records, 3)

	assert.Equal(t, "CLOSE", records[0].BusNo)
	for i := 1; i < len(records); i++ {
		assert.LessOrEqual(t, records[i-1].EtaMinutes, records[i].EtaMinutes)
	}
}

func TestForRouteStopNotOnRoute(t *testing.T) {
	route := testRoute()
	_, err := ForRoute(nil, nil, route, "UNKNOWN", time.Now())
	assert.True(t, errors.Is(err, ErrStopNotOnRoute))
}

func TestForStopAggregates(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)

	routeA := testRoute()
	routeB := &models.RouteStops{
		RouteID:   "U100",
		ShortName: "U10",
		Stops: []models.RouteStop{
			{StopID: "X1", Name: "CITY", Latitude: 3.1000, Longitude: 101.66, Sequence: 1},
			{StopID: "S10", Name: "KL GATEWAY", Latitude: 3.1300, Longitude: 101.66, Sequence: 2},
		},
	}

	positions := []models.VehiclePosition{
		vehicle("B1", "T789", 3.1250, 20),
		vehicle("C1", "U100", 3.1000, 20),
	}

	sequences := map[string]*models.RouteStops{
		"T7890": routeA,
		"U100":  routeB,
	}

	records := ForStop(positions, nil, sequences, "S10", now)
	require.Len(t, records, 2)

	// Union is re-sorted ascending by ETA across routes.
	for i := 1; i < len(records); i++ {
		assert.LessOrEqual(t, records[i-1].EtaMinutes, records[i].EtaMinutes)
	}

	// De-duplication by (route, bus) keeps the first occurrence even
	// when the same sequence shows up under another key.
	sequences["T7890-dup"] = routeA
	deduped := ForStop(positions, nil, sequences, "S10", now)
	assert.Len(t, deduped, len(records))
}
