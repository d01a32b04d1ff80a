package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/transitkl/kl-bus/internal/fleet"
	"github.com/transitkl/kl-bus/internal/ingest"
	"github.com/transitkl/kl-bus/internal/kiosk"
	"github.com/transitkl/kl-bus/internal/metrics"
	"github.com/transitkl/kl-bus/internal/models"
	"github.com/transitkl/kl-bus/internal/schedule"
)

func writeScheduleFixture(t *testing.T, dir string) {
	t.Helper()

	files := map[string]string{
		"routes.txt": "route_id,agency_id,route_short_name,route_long_name,route_type\n" +
			"T7890,RKL,T789,Pantai Dalam - KL Gateway,3\n" +
			"U100,RKL,U10,City Loop,3\n",
		"trips.txt": "route_id,service_id,trip_id,trip_headsign\n" +
			"T7890,WD,T7890-1,KL Gateway\n" +
			"U100,WD,U100-1,City\n",
		"stop_times.txt": "trip_id,arrival_time,departure_time,stop_id,stop_sequence\n" +
			"T7890-1,08:00:00,08:00:00,1000810,1\n" +
			"T7890-1,08:05:00,08:05:00,1000820,2\n" +
			"T7890-1,08:15:00,08:15:00,1000835,5\n" +
			"T7890-1,08:20:00,08:20:00,1000838,10\n" +
			"U100-1,09:00:00,09:00:00,1000810,1\n" +
			"U100-1,09:10:00,09:10:00,2000100,2\n",
		"stops.txt": "stop_id,stop_name,stop_desc,stop_lat,stop_lon\n" +
			"1000810,PANTAI DALAM,Jln Pantai,3.1100,101.6600\n" +
			"1000820,PANTAI PERMAI,Jln Pantai,3.1150,101.6650\n" +
			"1000835,KERINCHI,Jln Kerinchi,3.1135,101.6690\n" +
			"1000838,FLAT PKNS KERINCHI/KL GATEWAY,Jln Kerinchi,3.1139,101.6639\n" +
			"2000100,CITY CENTRE,Jln Raja,3.1480,101.6950\n",
	}
	for name, contents := range files {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(contents), 0o644))
	}
}

func newTestServer(t *testing.T) (*Server, *fleet.Cache) {
	t.Helper()

	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })
	cache := fleet.NewCache(rdb)

	dir := t.TempDir()
	writeScheduleFixture(t, dir)

	server := NewServer(Config{
		Cache:      cache,
		Catalog:    schedule.NewCatalog(dir, time.Minute),
		Status:     ingest.NewStatus(),
		Metrics:    metrics.NewCollector(),
		ActiveTTL:  2 * time.Minute,
		StaleAfter: 20 * time.Second,
	})
	return server, cache
}

func doRequest(t *testing.T, server *Server, path string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	rr := httptest.NewRecorder()
	server.Router().ServeHTTP(rr, req)
	return rr
}

func seedFleet(t *testing.T, cache *fleet.Cache, positions ...models.VehiclePosition) {
	t.Helper()
	_, err := cache.WriteBatch(context.Background(), positions, time.Now())
	require.NoError(t, err)
}

func TestGetAllEmpty(t *testing.T) {
	server, _ := newTestServer(t)

	rr := doRequest(t, server, "/get-all")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "application/json", rr.Header().Get("Content-Type"))

	var body fleetResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	assert.Empty(t, body.Data)
	assert.Zero(t, body.Meta.ActiveBusCount)
	assert.True(t, body.Meta.IsStale, "no heartbeat means stale")
}

func TestGetAllWithVehicles(t *testing.T) {
	server, cache := newTestServer(t)
	seedFleet(t, cache,
		models.VehiclePosition{BusNo: "B1", Route: "T789", Latitude: 3.11, Longitude: 101.66, Speed: 25},
		models.VehiclePosition{BusNo: "B2", Route: "U10", Latitude: 3.15, Longitude: 101.70, Speed: 18},
	)

	rr := doRequest(t, server, "/get-all")
	require.Equal(t, http.StatusOK, rr.Code)

	var body fleetResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	assert.Len(t, body.Data, 2)
	assert.Equal(t, 2, body.Meta.ActiveBusCount)
	assert.False(t, body.Meta.IsStale)
	assert.NotZero(t, body.Meta.LastIngestAtUnix)
}

func TestIngestorStatusEndpoint(t *testing.T) {
	server, _ := newTestServer(t)

	rr := doRequest(t, server, "/ingestor/status")
	require.Equal(t, http.StatusOK, rr.Code)

	var status models.IngestorStatus
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &status))
	assert.False(t, status.Connected)
}

func TestRouteStopsEndpoint(t *testing.T) {
	server, _ := newTestServer(t)

	rr := doRequest(t, server, "/route/T7890/stops")
	require.Equal(t, http.StatusOK, rr.Code)

	var stops models.RouteStops
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &stops))
	assert.Equal(t, "T7890", stops.RouteID)
	require.Len(t, stops.Stops, 4)
	assert.Equal(t, "1000810", stops.Stops[0].StopID)
	assert.Equal(t, "1000838", stops.Stops[3].StopID)
}

func TestRouteStopsNotFound(t *testing.T) {
	server, _ := newTestServer(t)

	rr := doRequest(t, server, "/route/NOPE/stops")
	require.Equal(t, http.StatusNotFound, rr.Code)

	var body map[string]string
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	assert.Contains(t, body["error"], "NOPE")
}

func TestRouteEtaEndpoint(t *testing.T) {
	server, cache := newTestServer(t)
	seedFleet(t, cache,
		models.VehiclePosition{BusNo: "B1", Route: "T789", Latitude: 3.1100, Longitude: 101.6600, Speed: 30},
		models.VehiclePosition{BusNo: "B9", Route: "U10", Latitude: 3.1100, Longitude: 101.6600, Speed: 30},
	)

	rr := doRequest(t, server, "/route/T7890/eta/1000838")
	require.Equal(t, http.StatusOK, rr.Code)

	var records []models.EtaRecord
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &records))
	require.Len(t, records, 1, "only the T789 bus qualifies")
	assert.Equal(t, "B1", records[0].BusNo)
	assert.Positive(t, records[0].EtaMinutes)
}

func TestRouteEtaStopNotOnRoute(t *testing.T) {
	server, _ := newTestServer(t)

	rr := doRequest(t, server, "/route/T7890/eta/2000100")
	assert.Equal(t, http.StatusNotFound, rr.Code)
}

func TestStopEtaAggregatesRoutes(t *testing.T) {
	server, cache := newTestServer(t)
	// Stop 1000810 is on both routes; neither bus has passed it.
	seedFleet(t, cache,
		models.VehiclePosition{BusNo: "B1", Route: "T789", Latitude: 3.1099, Longitude: 101.6599, Speed: 30},
		models.VehiclePosition{BusNo: "B2", Route: "U10", Latitude: 3.1099, Longitude: 101.6599, Speed: 30},
	)

	rr := doRequest(t, server, "/stops/1000810/eta")
	require.Equal(t, http.StatusOK, rr.Code)

	var records []models.EtaRecord
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &records))
	assert.Empty(t, records, "both buses resolve to the target stop itself")

	// 2000100 is only on U100, with the U10 bus one stop upstream.
	rr = doRequest(t, server, "/stops/2000100/eta")
	require.Equal(t, http.StatusOK, rr.Code)
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &records))
	require.Len(t, records, 1)
	assert.Equal(t, "B2", records[0].BusNo)
	assert.Equal(t, "U100", records[0].RouteID)
}

func TestStopRoutesEndpoint(t *testing.T) {
	server, _ := newTestServer(t)

	rr := doRequest(t, server, "/stops/1000810/routes")
	require.Equal(t, http.StatusOK, rr.Code)

	var routes []models.Route
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &routes))
	require.Len(t, routes, 2)

	rr = doRequest(t, server, "/stops/9999999/routes")
	assert.Equal(t, http.StatusNotFound, rr.Code)
}

func TestNearestStopEndpoint(t *testing.T) {
	server, _ := newTestServer(t)

	rr := doRequest(t, server, "/stops/nearest?lat=3.1101&lon=101.6601")
	require.Equal(t, http.StatusOK, rr.Code)

	var body nearestStopResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	require.NotNil(t, body.Stop)
	assert.Equal(t, "1000810", body.Stop.ID)
	assert.Less(t, body.DistanceKm, 0.1)
}

func TestNearestStopValidation(t *testing.T) {
	server, _ := newTestServer(t)

	rr := doRequest(t, server, "/stops/nearest?lat=91&lon=0")
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	rr = doRequest(t, server, "/stops/nearest?lat=3.11&lon=181")
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	rr = doRequest(t, server, "/stops/nearest?lat=abc&lon=101.66")
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestFixedWrapperEndpoints(t *testing.T) {
	server, cache := newTestServer(t)
	seedFleet(t, cache,
		models.VehiclePosition{BusNo: "B1", Route: "T789", Latitude: 3.1100, Longitude: 101.6600, Speed: 30},
	)

	rr := doRequest(t, server, "/get-route-t789")
	require.Equal(t, http.StatusOK, rr.Code)

	var stops models.RouteStops
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &stops))
	assert.Equal(t, "T7890", stops.RouteID)

	rr = doRequest(t, server, "/get-t789-eta")
	require.Equal(t, http.StatusOK, rr.Code)

	var records []models.EtaRecord
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &records))
	require.Len(t, records, 1)
	assert.Equal(t, "B1", records[0].BusNo)
	assert.Equal(t, 9, records[0].StopsAway)
}

func TestKioskRoutesEndpoint(t *testing.T) {
	page := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`<div class="route-list"><a href="#">T789</a><a href="#">U10</a></div>`))
	}))
	defer page.Close()

	server, _ := newTestServer(t)
	server.kiosk = kiosk.NewClient(page.URL)

	rr := doRequest(t, server, "/kiosk/routes")
	require.Equal(t, http.StatusOK, rr.Code)

	var body map[string][]string
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	assert.Equal(t, []string{"T789", "U10"}, body["routes"])
}

func TestKioskRoutesNotConfigured(t *testing.T) {
	server, _ := newTestServer(t)

	rr := doRequest(t, server, "/kiosk/routes")
	assert.Equal(t, http.StatusNotFound, rr.Code)
}

func TestMetricsEndpoint(t *testing.T) {
	server, _ := newTestServer(t)

	rr := doRequest(t, server, "/metrics")
	assert.Equal(t, http.StatusOK, rr.Code)
}

func TestCORSPreflight(t *testing.T) {
	server, _ := newTestServer(t)

	req := httptest.NewRequest(http.MethodOptions, "/get-all", nil)
	rr := httptest.NewRecorder()
	server.Router().ServeHTTP(rr, req)

	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "*", rr.Header().Get("Access-Control-Allow-Origin"))
}
