package schedule

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"

	"github.com/transitkl/kl-bus/internal/models"
)

// Data holds one parsed snapshot of the four static schedule tables.
type Data struct {
	Routes          map[string]*models.Route
	TripsByRoute    map[string][]*models.Trip
	StopTimesByTrip map[string][]*models.StopTime
	Stops           map[string]*models.Stop
}

// load parses routes.txt, trips.txt, stop_times.txt and stops.txt from
// dir.
func load(dir string) (*Data, error) {
	data := &Data{
		Routes:          make(map[string]*models.Route),
		TripsByRoute:    make(map[string][]*models.Trip),
		StopTimesByTrip: make(map[string][]*models.StopTime),
		Stops:           make(map[string]*models.Stop),
	}

	if err := data.loadRoutes(filepath.Join(dir, "routes.txt")); err != nil {
		return nil, fmt.Errorf("failed to load routes: %v", err)
	}
	if err := data.loadTrips(filepath.Join(dir, "trips.txt")); err != nil {
		return nil, fmt.Errorf("failed to load trips: %v", err)
	}
	if err := data.loadStopTimes(filepath.Join(dir, "stop_times.txt")); err != nil {
		return nil, fmt.Errorf("failed to load stop times: %v", err)
	}
	if err := data.loadStops(filepath.Join(dir, "stops.txt")); err != nil {
		return nil, fmt.Errorf("failed to load stops: %v", err)
	}

	return data, nil
}

func (d *Data) loadRoutes(path string) error {
	records, err := readCSV(path)
	if err != nil {
		return err
	}

	for _, record := range records {
		route := &models.Route{
			ID:        getString(record, "route_id"),
			AgencyID:  getString(record, "agency_id"),
			ShortName: getString(record, "route_short_name"),
			LongName:  getString(record, "route_long_name"),
			Type:      getInt(record, "route_type"),
			Color:     getString(record, "route_color"),
			TextColor: getString(record, "route_text_color"),
		}
		d.Routes[route.ID] = route
	}
	return nil
}

func (d *Data) loadTrips(path string) error {
	records, err := readCSV(path)
	if err != nil {
		return err
	}

	for _, record := range records {
		trip := &models.Trip{
			ID:          getString(record, "trip_id"),
			RouteID:     getString(record, "route_id"),
			ServiceID:   getString(record, "service_id"),
			ShapeID:     getString(record, "shape_id"),
			Headsign:    getString(record, "trip_headsign"),
			DirectionID: getInt(record, "direction_id"),
		}
		d.TripsByRoute[trip.RouteID] = append(d.TripsByRoute[trip.RouteID], trip)
	}
	return nil
}

func (d *Data) loadStopTimes(path string) error {
	records, err := readCSV(path)
	if err != nil {
		return err
	}

	for _, record := range records {
		stopTime := &models.StopTime{
			TripID:        getString(record, "trip_id"),
			ArrivalTime:   getString(record, "arrival_time"),
			DepartureTime: getString(record, "departure_time"),
			StopID:        getString(record, "stop_id"),
			StopSequence:  getInt(record, "stop_sequence"),
			StopHeadsign:  getString(record, "stop_headsign"),
		}
		d.StopTimesByTrip[stopTime.TripID] = append(d.StopTimesByTrip[stopTime.TripID], stopTime)
	}
	return nil
}

func (d *Data) loadStops(path string) error {
	records, err := readCSV(path)
	if err != nil {
		return err
	}

	for _, record := range records {
		stop := &models.Stop{
			ID:          getString(record, "stop_id"),
			Name:        getString(record, "stop_name"),
			Description: getString(record, "stop_desc"),
			Latitude:    getFloat(record, "stop_lat"),
			Longitude:   getFloat(record, "stop_lon"),
		}
		d.Stops[stop.ID] = stop
	}
	return nil
}

// readCSV reads a CSV file and returns the data keyed by header
func readCSV(path string) ([]map[string]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	csvReader := csv.NewReader(f)

	// Read headers
	headers, err := csvReader.Read()
	if err != nil {
		return nil, err
	}

	var records []map[string]string

	for {
		record, err := csvReader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}

		fields := make(map[string]string)
		for i, header := range headers {
			if i < len(record) {
				fields[header] = record[i]
			}
		}

		records = append(records, fields)
	}

	return records, nil
}

// Helper functions for type conversion
func getString(record map[string]string, field string) string {
	return record[field]
}

func getInt(record map[string]string, field string) int {
	if val, ok := record[field]; ok && val != "" {
		if i, err := strconv.Atoi(val); err == nil {
			return i
		}
	}
	return 0
}

func getFloat(record map[string]string, field string) float64 {
	if val, ok := record[field]; ok && val != "" {
		if f, err := strconv.ParseFloat(val, 64); err == nil {
			return f
		}
	}
	return 0
}
