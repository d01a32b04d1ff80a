package api

import (
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/transitkl/kl-bus/internal/fleet"
	"github.com/transitkl/kl-bus/internal/ingest"
	"github.com/transitkl/kl-bus/internal/kiosk"
	"github.com/transitkl/kl-bus/internal/metrics"
	"github.com/transitkl/kl-bus/internal/schedule"
)

// Config carries the server's dependencies and query parameters.
type Config struct {
	Cache   *fleet.Cache
	Catalog *schedule.Catalog
	Status  *ingest.Status
	Metrics *metrics.Collector
	Kiosk   *kiosk.Client

	GTFSRTURL string

	ActiveTTL  time.Duration
	StaleAfter time.Duration
}

// Server is the HTTP query surface. It only reads: no endpoint
// mutates the cache or the catalog.
type Server struct {
	cache   *fleet.Cache
	catalog *schedule.Catalog
	status  *ingest.Status
	metrics *metrics.Collector
	kiosk   *kiosk.Client

	gtfsrtURL string
	gtfsrt    *http.Client

	activeTTL  time.Duration
	staleAfter time.Duration
}

// NewServer creates a new API server.
func NewServer(cfg Config) *Server {
	return &Server{
		cache:      cfg.Cache,
		catalog:    cfg.Catalog,
		status:     cfg.Status,
		metrics:    cfg.Metrics,
		kiosk:      cfg.Kiosk,
		gtfsrtURL:  cfg.GTFSRTURL,
		gtfsrt:     &http.Client{Timeout: 15 * time.Second},
		activeTTL:  cfg.ActiveTTL,
		staleAfter: cfg.StaleAfter,
	}
}

// Router creates and returns the HTTP router
func (s *Server) Router() http.Handler {
	r := mux.NewRouter()

	r.HandleFunc("/get-all", s.handleGetAll).Methods("GET")
	r.HandleFunc("/ingestor/status", s.handleIngestorStatus).Methods("GET")

	r.HandleFunc("/route/{route_id}/stops", s.handleRouteStops).Methods("GET")
	r.HandleFunc("/route/{route_id}/eta/{stop_id}", s.handleRouteEta).Methods("GET")
	r.HandleFunc("/stops/{stop_id}/eta", s.handleStopEta).Methods("GET")
	r.HandleFunc("/stops/{stop_id}/routes", s.handleStopRoutes).Methods("GET")
	r.HandleFunc("/stops/nearest", s.handleNearestStop).Methods("GET")

	// Legacy fixed-parameter endpoints kept for existing clients.
	r.HandleFunc("/get-route-t789", s.handleGetRouteT789).Methods("GET")
	r.HandleFunc("/get-t789-eta", s.handleGetT789Eta).Methods("GET")
	r.HandleFunc("/get-pantai-hillpark-phase-5-eta", s.handleGetPantaiHillparkEta).Methods("GET")

	r.HandleFunc("/gtfs", s.handleGTFSRT).Methods("GET")
	r.HandleFunc("/kiosk/routes", s.handleKioskRoutes).Methods("GET")

	if s.metrics != nil {
		r.Handle("/metrics", s.metrics.Handler()).Methods("GET")
	}

	return s.corsMiddleware(r)
}

// corsMiddleware adds CORS headers to all responses
func (s *Server) corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")

		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}
