package api

import (
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/transitkl/kl-bus/internal/eta"
	"github.com/transitkl/kl-bus/internal/models"
	"github.com/transitkl/kl-bus/internal/schedule"
)

const (
	// Route and stop ids behind the legacy fixed endpoints.
	routeT789ID = "T7890"

	// KL1397 FLAT PKNS KERINCHI/KL GATEWAY
	kerinchiStopID = "1000838"

	// KL2368 PANTAI HILLPARK PHASE 5
	pantaiHillparkStopID = "1004351"
)

// handleRouteEta returns ETAs for every moving vehicle on a route that
// has not yet passed the target stop.
func (s *Server) handleRouteEta(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	s.routeEta(w, r, vars["route_id"], vars["stop_id"])
}

func (s *Server) routeEta(w http.ResponseWriter, r *http.Request, routeID, stopID string) {
	routeStops, err := s.catalog.RouteStops(routeID)
	if errors.Is(err, schedule.ErrNotFound) {
		respondError(w, http.StatusNotFound, "Route not found: "+routeID)
		return
	}
	if err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}

	now := time.Now()
	snap, err := s.cache.Snapshot(r.Context(), s.activeTTL, now)
	if err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}

	records, err := eta.ForRoute(snap.Positions, snap.Motion, routeStops, stopID, now)
	if errors.Is(err, eta.ErrStopNotOnRoute) {
		respondError(w, http.StatusNotFound, "Stop "+stopID+" is not on route "+routeID)
		return
	}
	if err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}

	respondJSON(w, http.StatusOK, records)
}

// handleStopEta aggregates ETAs to one stop across every route that
// serves it.
func (s *Server) handleStopEta(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	s.stopEta(w, r, vars["stop_id"])
}

func (s *Server) stopEta(w http.ResponseWriter, r *http.Request, stopID string) {
	routes, err := s.catalog.RoutesServingStop(stopID)
	if errors.Is(err, schedule.ErrNotFound) {
		respondError(w, http.StatusNotFound, "No routes serve stop: "+stopID)
		return
	}
	if err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}

	sequences := make(map[string]*models.RouteStops, len(routes))
	for _, route := range routes {
		routeStops, err := s.catalog.RouteStops(route.ID)
		if err != nil {
			// A route with no usable trip data cannot produce ETAs.
			continue
		}
		sequences[route.ID] = routeStops
	}

	now := time.Now()
	snap, err := s.cache.Snapshot(r.Context(), s.activeTTL, now)
	if err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}

	respondJSON(w, http.StatusOK, eta.ForStop(snap.Positions, snap.Motion, sequences, stopID, now))
}

// handleGetRouteT789 is the legacy fixed endpoint for route T789's
// stop sequence.
func (s *Server) handleGetRouteT789(w http.ResponseWriter, r *http.Request) {
	stops, err := s.catalog.RouteStops(routeT789ID)
	if errors.Is(err, schedule.ErrNotFound) {
		respondError(w, http.StatusNotFound, "Route not found: "+routeT789ID)
		return
	}
	if err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	respondJSON(w, http.StatusOK, stops)
}

// handleGetT789Eta is the legacy fixed endpoint for T789 arrivals at
// the Kerinchi flats.
func (s *Server) handleGetT789Eta(w http.ResponseWriter, r *http.Request) {
	s.routeEta(w, r, routeT789ID, kerinchiStopID)
}

// handleGetPantaiHillparkEta is the legacy fixed endpoint for arrivals
// at Pantai Hillpark Phase 5, across every route serving it.
func (s *Server) handleGetPantaiHillparkEta(w http.ResponseWriter, r *http.Request) {
	s.stopEta(w, r, pantaiHillparkStopID)
}
