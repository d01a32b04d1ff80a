package api

import (
	"net/http"
)

// handleKioskRoutes returns the route codes published on the operator
// kiosk page.
func (s *Server) handleKioskRoutes(w http.ResponseWriter, r *http.Request) {
	if s.kiosk == nil {
		respondError(w, http.StatusNotFound, "Kiosk page not configured")
		return
	}

	routes, err := s.kiosk.Routes(r.Context())
	if err != nil {
		respondError(w, http.StatusBadGateway, err.Error())
		return
	}

	respondJSON(w, http.StatusOK, map[string][]string{"routes": routes})
}
