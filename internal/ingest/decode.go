package ingest

import (
	"bytes"
	"compress/gzip"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"

	"github.com/transitkl/kl-bus/internal/models"
)

// decodeFrame unpacks one feed frame. The payload is a JSON string of
// base64-encoded, gzip-compressed JSON carrying either a single
// position object or an array of them. Some frames arrive as loose
// arrays of mixed values, so as a last resort each element is parsed
// individually and the unparseable ones are skipped.
func decodeFrame(arg json.RawMessage) ([]models.VehiclePosition, error) {
	var encoded string
	if err := json.Unmarshal(arg, &encoded); err != nil {
		return nil, fmt.Errorf("frame payload is not a string: %v", err)
	}

	compressed, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, fmt.Errorf("base64 decode: %v", err)
	}

	zr, err := gzip.NewReader(bytes.NewReader(compressed))
	if err != nil {
		return nil, fmt.Errorf("gzip open: %v", err)
	}
	raw, err := io.ReadAll(zr)
	zr.Close()
	if err != nil {
		return nil, fmt.Errorf("gzip read: %v", err)
	}

	return parsePositions(raw)
}

func parsePositions(raw []byte) ([]models.VehiclePosition, error) {
	var single models.VehiclePosition
	if err := json.Unmarshal(raw, &single); err == nil {
		return []models.VehiclePosition{single}, nil
	}

	var batch []models.VehiclePosition
	if err := json.Unmarshal(raw, &batch); err == nil {
		return batch, nil
	}

	// Mixed array: keep the elements that look like positions.
	var elems []json.RawMessage
	if err := json.Unmarshal(raw, &elems); err != nil {
		return nil, fmt.Errorf("unrecognized payload shape")
	}
	positions := make([]models.VehiclePosition, 0, len(elems))
	for _, elem := range elems {
		var pos models.VehiclePosition
		if err := json.Unmarshal(elem, &pos); err == nil && pos.BusNo != "" {
			positions = append(positions, pos)
		}
	}
	return positions, nil
}
