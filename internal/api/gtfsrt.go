package api

import (
	"io"
	"net/http"

	gtfs "github.com/MobilityData/gtfs-realtime-bindings/golang/gtfs"
	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/proto"
)

// handleGTFSRT fetches the operator's pull-based GTFS-realtime vehicle
// positions feed and re-serves it as JSON.
func (s *Server) handleGTFSRT(w http.ResponseWriter, r *http.Request) {
	if s.gtfsrtURL == "" {
		respondError(w, http.StatusNotFound, "GTFS-realtime feed not configured")
		return
	}

	req, err := http.NewRequestWithContext(r.Context(), http.MethodGet, s.gtfsrtURL, nil)
	if err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}

	resp, err := s.gtfsrt.Do(req)
	if err != nil {
		respondError(w, http.StatusBadGateway, "GTFS-realtime fetch failed: "+err.Error())
		return
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respondError(w, http.StatusBadGateway, "GTFS-realtime fetch failed: "+resp.Status)
		return
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		respondError(w, http.StatusBadGateway, "GTFS-realtime read failed: "+err.Error())
		return
	}

	feed := &gtfs.FeedMessage{}
	if err := proto.Unmarshal(body, feed); err != nil {
		respondError(w, http.StatusBadGateway, "GTFS-realtime decode failed: "+err.Error())
		return
	}

	jsonData, err := protojson.Marshal(feed)
	if err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.Write(jsonData)
}
