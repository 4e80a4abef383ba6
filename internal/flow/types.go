package flow

import (
	"strings"
	"time"

	"harvest-iot-backend/internal/parse"
)

// Stage is the pipeline phase a station belongs to.
type Stage string

const (
	StageGarden   Stage = "Garden"
	StageStorage  Stage = "Storage"
	StageDelivery Stage = "Delivery"
	StageClient   Stage = "Client"
	StageUnknown  Stage = "Unknown"
)

// DefaultCapacity is the number of devices a Client station holds when no capacity is set.
const DefaultCapacity = 9

var stagePrefixes = map[string]Stage{
	"GS": StageGarden,
	"SB": StageStorage,
	"DB": StageDelivery,
	"CL": StageClient,
}

// Stages lists the known stages in pipeline order.
var Stages = []Stage{StageGarden, StageStorage, StageDelivery, StageClient}

// Prefix returns the two-letter station id prefix for the stage.
func (s Stage) Prefix() string {
	for prefix, stage := range stagePrefixes {
		if stage == s {
			return prefix
		}
	}
	return ""
}

// StageOf derives the stage of a station from its id prefix.
func StageOf(stationID string) Stage {
	if stage, ok := stagePrefixes[strings.ToUpper(parse.StationPrefix(stationID))]; ok {
		return stage
	}
	return StageUnknown
}

// ParseStage accepts a stage name ("garden", "Storage") or prefix ("DB").
func ParseStage(raw string) (Stage, bool) {
	v := strings.TrimSpace(raw)
	if stage, ok := stagePrefixes[strings.ToUpper(v)]; ok {
		return stage, true
	}
	for _, stage := range Stages {
		if strings.EqualFold(string(stage), v) {
			return stage, true
		}
	}
	return StageUnknown, false
}

// GPS is a WGS84 coordinate in decimal degrees.
type GPS struct {
	Lat float64 `json:"lat" yaml:"lat"`
	Lng float64 `json:"lng" yaml:"lng"`
}

// Station is a named location within a stage that can hold devices.
type Station struct {
	ID            string `json:"id"`
	Name          string `json:"name"`
	Description   string `json:"description"`
	Stage         Stage  `json:"stage"`
	Order         int    `json:"order"`
	FixedLocation bool   `json:"fixedLocation"`
	GPS           *GPS   `json:"gps"`
	Capacity      int    `json:"capacity,omitempty"`
}

// EffectiveCapacity returns the configured capacity or DefaultCapacity.
func (s Station) EffectiveCapacity() int {
	if s.Capacity > 0 {
		return s.Capacity
	}
	return DefaultCapacity
}

// Product is a vegetable or fruit type carried by devices.
type Product struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Glyph string `json:"glyph,omitempty"`
	Slot  int    `json:"slot,omitempty"`
}

// Device is a tracked produce unit.
type Device struct {
	ID        string    `json:"id"`
	ProductID string    `json:"vegetableId"`
	CreatedAt time.Time `json:"createdAt"`
}

// Status is the connectivity of a device in the current tick.
type Status string

const (
	StatusConnected    Status = "connected"
	StatusDisconnected Status = "disconnected"
)

// DeviceRecord is one device's entry in a tick snapshot.
type DeviceRecord struct {
	HistoryCode   string    `json:"historyCode"`
	VegetableID   string    `json:"vegetableId"`
	Unit          string    `json:"unit"`
	SourceID      string    `json:"sourceId"`
	SourceName    string    `json:"sourceName"`
	ProcessStatus Stage     `json:"processStatus"`
	NowStatus     Status    `json:"nowStatus"`
	LastUpdate    time.Time `json:"lastUpdate"`
	Light         *int      `json:"light"`
	Humidity      *int      `json:"humidity"`
	Temperature   *float64  `json:"temperature"`
	GPS           *GPS      `json:"gps"`
}
