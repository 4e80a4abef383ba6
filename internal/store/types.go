package store

import (
	"errors"
	"time"

	"harvest-iot-backend/internal/flow"
	"harvest-iot-backend/internal/model"
)

// ErrNotFound is returned when a device has no stored state.
var ErrNotFound = errors.New("record not found")

// HistoryEntry is one archived sample as served by the history endpoint.
type HistoryEntry struct {
	Timestamp time.Time         `json:"timestamp"`
	Data      flow.DeviceRecord `json:"data"`
}

func toState(rec flow.DeviceRecord) model.DeviceState {
	lat, lng := splitGPS(rec.GPS)
	return model.DeviceState{
		HistoryCode:   rec.HistoryCode,
		VegetableID:   rec.VegetableID,
		Unit:          rec.Unit,
		SourceID:      rec.SourceID,
		SourceName:    rec.SourceName,
		ProcessStatus: string(rec.ProcessStatus),
		NowStatus:     string(rec.NowStatus),
		LastUpdate:    rec.LastUpdate.UTC(),
		Light:         rec.Light,
		Humidity:      rec.Humidity,
		Temperature:   rec.Temperature,
		Lat:           lat,
		Lng:           lng,
	}
}

func fromState(st model.DeviceState) flow.DeviceRecord {
	return flow.DeviceRecord{
		HistoryCode:   st.HistoryCode,
		VegetableID:   st.VegetableID,
		Unit:          st.Unit,
		SourceID:      st.SourceID,
		SourceName:    st.SourceName,
		ProcessStatus: flow.Stage(st.ProcessStatus),
		NowStatus:     flow.Status(st.NowStatus),
		LastUpdate:    st.LastUpdate.UTC(),
		Light:         st.Light,
		Humidity:      st.Humidity,
		Temperature:   st.Temperature,
		GPS:           joinGPS(st.Lat, st.Lng),
	}
}

func toSample(rec flow.DeviceRecord) model.DeviceSample {
	lat, lng := splitGPS(rec.GPS)
	return model.DeviceSample{
		HistoryCode:   rec.HistoryCode,
		ObservedAt:    rec.LastUpdate.UTC(),
		VegetableID:   rec.VegetableID,
		Unit:          rec.Unit,
		SourceID:      rec.SourceID,
		SourceName:    rec.SourceName,
		ProcessStatus: string(rec.ProcessStatus),
		NowStatus:     string(rec.NowStatus),
		Light:         rec.Light,
		Humidity:      rec.Humidity,
		Temperature:   rec.Temperature,
		Lat:           lat,
		Lng:           lng,
	}
}

func fromSample(s model.DeviceSample) HistoryEntry {
	observed := s.ObservedAt.UTC()
	return HistoryEntry{
		Timestamp: observed,
		Data: flow.DeviceRecord{
			HistoryCode:   s.HistoryCode,
			VegetableID:   s.VegetableID,
			Unit:          s.Unit,
			SourceID:      s.SourceID,
			SourceName:    s.SourceName,
			ProcessStatus: flow.Stage(s.ProcessStatus),
			NowStatus:     flow.Status(s.NowStatus),
			LastUpdate:    observed,
			Light:         s.Light,
			Humidity:      s.Humidity,
			Temperature:   s.Temperature,
			GPS:           joinGPS(s.Lat, s.Lng),
		},
	}
}

func toStationModel(st flow.Station) model.Station {
	lat, lng := splitGPS(st.GPS)
	return model.Station{
		ID:            st.ID,
		Name:          st.Name,
		Description:   st.Description,
		FixedLocation: st.FixedLocation,
		Lat:           lat,
		Lng:           lng,
		Capacity:      st.Capacity,
		Order:         st.Order,
	}
}

func fromStationModel(m model.Station) flow.Station {
	return flow.Station{
		ID:            m.ID,
		Name:          m.Name,
		Description:   m.Description,
		Stage:         flow.StageOf(m.ID),
		Order:         m.Order,
		FixedLocation: m.FixedLocation,
		GPS:           joinGPS(m.Lat, m.Lng),
		Capacity:      m.Capacity,
	}
}

func splitGPS(g *flow.GPS) (*float64, *float64) {
	if g == nil {
		return nil, nil
	}
	lat, lng := g.Lat, g.Lng
	return &lat, &lng
}

func joinGPS(lat, lng *float64) *flow.GPS {
	if lat == nil || lng == nil {
		return nil
	}
	return &flow.GPS{Lat: *lat, Lng: *lng}
}
