package models

// VehiclePosition is one live position report from the upstream feed.
// Field names follow the upstream JSON payload. A new report for the
// same bus replaces the whole record.
type VehiclePosition struct {
	DtReceived    string  `json:"dt_received,omitzero"`
	DtGPS         string  `json:"dt_gps,omitzero"`
	Latitude      float64 `json:"latitude"`
	Longitude     float64 `json:"longitude"`
	Dir           string  `json:"dir,omitzero"`
	Speed         float64 `json:"speed"`
	Angle         float64 `json:"angle"`
	Route         string  `json:"route"`
	BusNo         string  `json:"bus_no"`
	TripNo        string  `json:"trip_no,omitzero"`
	CaptainID     string  `json:"captain_id,omitzero"`
	TripRevKind   string  `json:"trip_rev_kind,omitzero"`
	EngineStatus  int     `json:"engine_status"`
	Accessibility int     `json:"accessibility"`
	BusStopID     string  `json:"busstop_id,omitzero"`
	Provider      string  `json:"provider"`
}

// MotionState tracks whether a vehicle has been parked at one spot.
// StationarySince is unix milliseconds; zero means the vehicle is not
// currently dwelling.
type MotionState struct {
	AnchorLat       float64 `json:"anchor_lat"`
	AnchorLon       float64 `json:"anchor_lon"`
	StationarySince int64   `json:"stationary_since,omitzero"`
}

// IngestorStatus is the read-only health record exposed by the stream
// ingestor.
type IngestorStatus struct {
	Connected          bool   `json:"connected"`
	MessagesProcessed  int64  `json:"messages_processed"`
	VehiclesWritten    int64  `json:"vehicles_written"`
	DecodeFailures     int64  `json:"decode_failures"`
	CacheWriteFailures int64  `json:"cache_write_failures"`
	Reconnects         int64  `json:"reconnects"`
	LastMessageAt      int64  `json:"last_message_at_unix_ms,omitzero"`
	LastError          string `json:"last_error,omitzero"`
}

// Route represents one row of routes.txt
type Route struct {
	ID        string `json:"route_id"`
	AgencyID  string `json:"agency_id,omitzero"`
	ShortName string `json:"route_short_name"`
	LongName  string `json:"route_long_name"`
	Type      int    `json:"route_type"`
	Color     string `json:"route_color,omitzero"`
	TextColor string `json:"route_text_color,omitzero"`
}

// Trip represents one row of trips.txt
type Trip struct {
	ID          string `json:"trip_id"`
	RouteID     string `json:"route_id"`
	ServiceID   string `json:"service_id"`
	ShapeID     string `json:"shape_id,omitzero"`
	Headsign    string `json:"trip_headsign,omitzero"`
	DirectionID int    `json:"direction_id,omitzero"`
}

// StopTime represents one row of stop_times.txt
type StopTime struct {
	TripID        string `json:"trip_id"`
	ArrivalTime   string `json:"arrival_time"`
	DepartureTime string `json:"departure_time"`
	StopID        string `json:"stop_id"`
	StopSequence  int    `json:"stop_sequence"`
	StopHeadsign  string `json:"stop_headsign,omitzero"`
}

// Stop represents one row of stops.txt
type Stop struct {
	ID          string  `json:"stop_id"`
	Name        string  `json:"stop_name"`
	Description string  `json:"stop_desc,omitzero"`
	Latitude    float64 `json:"stop_lat"`
	Longitude   float64 `json:"stop_lon"`
}

// RouteStop is a stop joined with its position in a route's stop
// sequence. Sequence numbers are route-local and increasing but not
// necessarily contiguous.
type RouteStop struct {
	StopID      string  `json:"stop_id"`
	Name        string  `json:"stop_name"`
	Description string  `json:"stop_desc,omitzero"`
	Latitude    float64 `json:"stop_lat"`
	Longitude   float64 `json:"stop_lon"`
	Sequence    int     `json:"sequence"`
}

// RouteStops is the ordered stop sequence for a route, derived from
// its representative trip.
type RouteStops struct {
	RouteID   string      `json:"route_id"`
	ShortName string      `json:"route_short_name"`
	LongName  string      `json:"route_long_name"`
	Stops     []RouteStop `json:"stops"`
}

// Provenance of a resolved stop: reported directly by the vehicle, or
// inferred from nearest-neighbor distance.
const (
	ProvenanceLive    = "live"
	ProvenanceDerived = "derived"
)

// ResolvedStop places a raw vehicle position in a route's stop
// sequence.
type ResolvedStop struct {
	StopID     string `json:"stop_id"`
	Name       string `json:"stop_name"`
	Sequence   int    `json:"sequence"`
	Provenance string `json:"provenance"`
}

// EtaRecord is one estimated arrival for a vehicle approaching a
// target stop.
type EtaRecord struct {
	RouteID         string  `json:"route_id"`
	BusNo           string  `json:"bus_no"`
	CurrentLat      float64 `json:"current_lat"`
	CurrentLon      float64 `json:"current_lon"`
	CurrentStopID   string  `json:"current_stop_id"`
	CurrentStopName string  `json:"current_stop_name"`
	CurrentSequence int     `json:"current_sequence"`
	Provenance      string  `json:"provenance"`
	StopsAway       int     `json:"stops_away"`
	DistanceKm      float64 `json:"distance_km"`
	SpeedKmh        float64 `json:"speed_kmh"`
	EtaMinutes      float64 `json:"eta_minutes"`
}
