package api

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"github.com/transitkl/kl-bus/internal/models"
	"github.com/transitkl/kl-bus/internal/schedule"
)

// handleRouteStops returns the ordered stop sequence for one route.
func (s *Server) handleRouteStops(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	routeID := vars["route_id"]

	stops, err := s.catalog.RouteStops(routeID)
	if errors.Is(err, schedule.ErrNotFound) {
		respondError(w, http.StatusNotFound, "Route not found: "+routeID)
		return
	}
	if err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}

	respondJSON(w, http.StatusOK, stops)
}

// handleStopRoutes returns the routes whose sequences include a stop.
func (s *Server) handleStopRoutes(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	stopID := vars["stop_id"]

	routes, err := s.catalog.RoutesServingStop(stopID)
	if errors.Is(err, schedule.ErrNotFound) {
		respondError(w, http.StatusNotFound, "No routes serve stop: "+stopID)
		return
	}
	if err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}

	respondJSON(w, http.StatusOK, routes)
}

type nearestStopResponse struct {
	Stop       *models.Stop `json:"stop"`
	DistanceKm float64      `json:"distance_km"`
}

// handleNearestStop finds the closest stop to a coordinate pair.
func (s *Server) handleNearestStop(w http.ResponseWriter, r *http.Request) {
	lat, latErr := strconv.ParseFloat(r.URL.Query().Get("lat"), 64)
	lon, lonErr := strconv.ParseFloat(r.URL.Query().Get("lon"), 64)
	if latErr != nil || lonErr != nil {
		respondError(w, http.StatusBadRequest, "lat and lon must be numbers")
		return
	}
	if lat < -90 || lat > 90 || lon < -180 || lon > 180 {
		respondError(w, http.StatusBadRequest, "lat must be in [-90,90] and lon in [-180,180]")
		return
	}

	stop, distanceKm, err := s.catalog.NearestStop(lat, lon)
	if errors.Is(err, schedule.ErrNotFound) {
		respondError(w, http.StatusNotFound, "No stops loaded")
		return
	}
	if err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}

	respondJSON(w, http.StatusOK, nearestStopResponse{
		Stop:       stop,
		DistanceKm: distanceKm,
	})
}
