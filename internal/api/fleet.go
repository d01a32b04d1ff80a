package api

import (
	"net/http"
	"time"

	"github.com/transitkl/kl-bus/internal/models"
)

// fleetResponse is the /get-all body: the active fleet plus freshness
// metadata.
type fleetResponse struct {
	Data []models.VehiclePosition `json:"data"`
	Meta fleetMeta                `json:"meta"`
}

type fleetMeta struct {
	Source           string `json:"source"`
	LastIngestAtUnix int64  `json:"last_ingest_at_unix_ms"`
	IsStale          bool   `json:"is_stale"`
	ActiveBusCount   int    `json:"active_bus_count"`
}

// handleGetAll returns every currently active vehicle.
func (s *Server) handleGetAll(w http.ResponseWriter, r *http.Request) {
	now := time.Now()
	snap, err := s.cache.Snapshot(r.Context(), s.activeTTL, now)
	if err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}

	positions := snap.Positions
	if positions == nil {
		positions = []models.VehiclePosition{}
	}

	respondJSON(w, http.StatusOK, fleetResponse{
		Data: positions,
		Meta: fleetMeta{
			Source:           "cache",
			LastIngestAtUnix: snap.LastIngestAt,
			IsStale:          snap.Stale(s.staleAfter, now),
			ActiveBusCount:   snap.ActiveCount,
		},
	})
}

// handleIngestorStatus returns the ingestor health record.
func (s *Server) handleIngestorStatus(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, s.status.Snapshot())
}
