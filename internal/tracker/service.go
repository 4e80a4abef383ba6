package tracker

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"harvest-iot-backend/config"
	"harvest-iot-backend/internal/flow"
	"harvest-iot-backend/internal/metrics"
	"harvest-iot-backend/internal/notification"
	"harvest-iot-backend/internal/store"
)

// Broadcaster delivers push messages to connected listeners.
type Broadcaster interface {
	Broadcast(msg notification.Message)
}

// Service ties the simulator, the store and the push hub together. Every mutation and
// tick runs under one lock, so the engine, the database and the listeners observe the
// same order of events.
type Service struct {
	cfg   *config.Config
	sim   *flow.Simulator
	store store.Store
	push  Broadcaster
	now   func() time.Time

	mu   sync.Mutex
	last []flow.DeviceRecord
}

// NewService creates a tracker service. Call Bootstrap before Run.
func NewService(cfg *config.Config, sim *flow.Simulator, st store.Store, push Broadcaster) *Service {
	return &Service{
		cfg:   cfg,
		sim:   sim,
		store: st,
		push:  push,
		now:   time.Now,
	}
}

// Simulator exposes the engine for read-only queries.
func (s *Service) Simulator() *flow.Simulator {
	return s.sim
}

// Bootstrap loads the registry and the persisted devices into the simulator.
func (s *Service) Bootstrap(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.cfg.Simulator.SkipSeed {
		if err := s.sim.Seed(flow.DefaultStations(), flow.DefaultProducts()); err != nil {
			return fmt.Errorf("failed to seed registry: %w", err)
		}
	}

	products, err := s.store.Products(ctx)
	if err != nil {
		return err
	}
	for _, p := range products {
		if _, err := s.sim.AddProduct(p); err != nil {
			logrus.WithError(err).WithField("product", p.ID).Warn("skipping stored product")
		}
	}

	stations, err := s.store.Stations(ctx)
	if err != nil {
		return err
	}
	for _, st := range stations {
		if _, err := s.sim.AddStation(st); err != nil {
			logrus.WithError(err).WithField("station", st.ID).Warn("skipping stored station")
		}
	}

	devices, err := s.store.Devices(ctx)
	if err != nil {
		return err
	}
	restored := 0
	for _, d := range devices {
		if _, err := s.sim.AddDevice(d, ""); err != nil {
			logrus.WithError(err).WithField("device", d.ID).Warn("skipping stored device")
			continue
		}
		restored++
	}

	states, err := s.store.CurrentDevices(ctx)
	if err != nil {
		return err
	}

	if s.cfg.Simulator.ReplayOnStart {
		if err := s.sim.Restore(states); err != nil {
			logrus.WithError(err).Warn("some stored device locations could not be replayed")
		}
		s.last = states
	}

	logrus.WithFields(logrus.Fields{
		"stations": len(s.sim.Stations()),
		"products": len(s.sim.Products()),
		"devices":  restored,
		"replayed": s.cfg.Simulator.ReplayOnStart,
	}).Info("tracker bootstrapped")
	return nil
}

// Run starts the simulation loop.
func (s *Service) Run(ctx context.Context) {
	if !s.cfg.Simulator.Enabled {
		logrus.Info("Simulator is disabled. Not starting.")
		return
	}
	logrus.WithField("interval", s.cfg.Simulator.Interval).Info("Starting simulation loop...")

	s.tickAndLog(ctx)

	timer := time.NewTimer(s.cfg.Simulator.Interval)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			logrus.Info("Simulation loop shutting down.")
			return
		case <-timer.C:
			s.tickAndLog(ctx)
			timer.Reset(s.cfg.Simulator.Interval)
		}
	}
}

func (s *Service) tickAndLog(ctx context.Context) {
	if _, err := s.TickOnce(ctx); err != nil {
		logrus.WithError(err).Error("simulation tick failed")
	}
}

// TickOnce advances the simulation by one step, persists the snapshot and pushes one
// device_update per device. If the snapshot cannot be stored the engine is put back
// where it was, so the next tick starts from what the database holds.
func (s *Service) TickOnce(ctx context.Context) ([]flow.DeviceRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	start := time.Now()
	before := s.sim.Locations()
	records, err := s.sim.Tick(s.last)
	if err == nil {
		if err = s.store.SaveSnapshot(ctx, records); err != nil {
			s.sim.SetLocations(before)
		}
	}
	metrics.ObserveTick(err, time.Since(start))
	if err != nil {
		return nil, err
	}

	s.last = records
	s.publishSnapshot(records)
	logrus.WithFields(logrus.Fields{"devices": len(records), "took": time.Since(start)}).Debug("tick complete")
	return records, nil
}

// Randomize scatters every device over random stations, then persists and pushes a
// fresh sample taken at the new positions.
func (s *Service) Randomize(ctx context.Context) (records []flow.DeviceRecord, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	defer func() { metrics.IncMutation("randomize", err) }()

	before := s.sim.Locations()
	if err := s.sim.Randomize(); err != nil {
		return nil, err
	}
	records = s.sim.Sample()
	if err := s.store.SaveSnapshot(ctx, records); err != nil {
		s.sim.SetLocations(before)
		return nil, err
	}
	s.last = records
	s.publishSnapshot(records)
	return records, nil
}

func (s *Service) publishSnapshot(records []flow.DeviceRecord) {
	counts := make(map[string]map[string]int)
	for i := range records {
		rec := records[i]
		stage := string(rec.ProcessStatus)
		if counts[stage] == nil {
			counts[stage] = make(map[string]int)
		}
		counts[stage][string(rec.NowStatus)]++
		s.push.Broadcast(notification.Message{Type: notification.TypeDeviceUpdate, Device: &rec})
	}
	metrics.SetDeviceCounts(counts)
}

// Devices returns the latest stored record of every device.
func (s *Service) Devices(ctx context.Context) ([]flow.DeviceRecord, error) {
	return s.store.CurrentDevices(ctx)
}

// Device returns the latest stored record of one device.
func (s *Service) Device(ctx context.Context, id string) (flow.DeviceRecord, error) {
	return s.store.CurrentDevice(ctx, id)
}

// History returns the samples of a device observed within window of now.
func (s *Service) History(ctx context.Context, id string, window time.Duration) ([]store.HistoryEntry, error) {
	return s.store.History(ctx, id, s.now().Add(-window))
}

// InitMessage builds the snapshot sent to a newly connected listener.
func (s *Service) InitMessage(ctx context.Context) notification.Message {
	devices, err := s.store.CurrentDevices(ctx)
	if err != nil {
		logrus.WithError(err).Warn("failed to load devices for push init")
	}
	return notification.Message{Type: notification.TypeInit, Devices: devices}
}

// RegisterRequest describes a new device. Only VegetableID is required: an empty
// HistoryCode gets the next generated id, an empty Unit the product name and an empty
// SourceID a random Garden station.
type RegisterRequest struct {
	HistoryCode string `json:"historyCode"`
	VegetableID string `json:"vegetableId"`
	Unit        string `json:"unit"`
	SourceID    string `json:"sourceId"`
}

// RegisterDevice registers and places a device, stores its initial record and
// announces it with device_registered. The initial record carries no readings.
func (s *Service) RegisterDevice(ctx context.Context, req RegisterRequest) (rec flow.DeviceRecord, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	defer func() { metrics.IncMutation("register_device", err) }()

	productID := strings.ToUpper(strings.TrimSpace(req.VegetableID))
	product, ok := s.sim.Product(productID)
	if !ok {
		return flow.DeviceRecord{}, fmt.Errorf("product %q: %w", req.VegetableID, flow.ErrUnknownProduct)
	}

	stationID := strings.ToUpper(strings.TrimSpace(req.SourceID))
	if stationID == "" {
		garden, err := s.sim.RandomStation(flow.StageGarden)
		if err != nil {
			return flow.DeviceRecord{}, err
		}
		stationID = garden.ID
	}

	var d flow.Device
	if code := strings.TrimSpace(req.HistoryCode); code != "" {
		d, err = s.sim.AddDevice(flow.Device{ID: code, ProductID: productID}, stationID)
	} else {
		d, err = s.sim.RegisterDeviceAt(productID, stationID)
	}
	if err != nil {
		return flow.DeviceRecord{}, err
	}

	unit := strings.TrimSpace(req.Unit)
	if unit == "" {
		unit = product.Name
	}
	station, _ := s.sim.Station(stationID)
	rec = flow.DeviceRecord{
		HistoryCode:   d.ID,
		VegetableID:   d.ProductID,
		Unit:          unit,
		SourceID:      station.ID,
		SourceName:    station.Name,
		ProcessStatus: station.Stage,
		NowStatus:     flow.StatusDisconnected,
		LastUpdate:    s.now().UTC(),
	}
	if err := s.store.InsertDevice(ctx, d, rec); err != nil {
		if rmErr := s.sim.RemoveDevice(d.ID); rmErr != nil {
			logrus.WithError(rmErr).WithField("device", d.ID).Error("failed to roll back device registration")
		}
		return flow.DeviceRecord{}, err
	}

	logrus.WithFields(logrus.Fields{"device": d.ID, "station": stationID}).Info("device registered")
	s.push.Broadcast(notification.Message{Type: notification.TypeDeviceRegistered, Device: &rec})
	return rec, nil
}

// UpdateRequest carries a partial sensor update. Nil fields keep their previous value.
type UpdateRequest struct {
	Temperature *float64  `json:"temperature"`
	Humidity    *int      `json:"humidity"`
	Light       *int      `json:"light"`
	GPS         *flow.GPS `json:"gps"`
	SourceID    *string   `json:"sourceId"`
}

// UpdateDevice merges a partial update into the device's latest record. A new sourceId
// goes through the capacity-checked transfer. Connectivity is recomputed from the
// merged readings and the result is appended to the history.
func (s *Service) UpdateDevice(ctx context.Context, id string, req UpdateRequest) (flow.DeviceRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.updateLocked(ctx, id, req)
}

// TransferDevice moves a device to stationID and records the move.
func (s *Service) TransferDevice(ctx context.Context, id, stationID string) (flow.DeviceRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.updateLocked(ctx, id, UpdateRequest{SourceID: &stationID})
}

func (s *Service) updateLocked(ctx context.Context, id string, req UpdateRequest) (flow.DeviceRecord, error) {
	if _, ok := s.sim.Device(id); !ok {
		return flow.DeviceRecord{}, fmt.Errorf("device %s: %w", id, flow.ErrNotFound)
	}
	current, err := s.store.CurrentDevice(ctx, id)
	if err != nil {
		return flow.DeviceRecord{}, err
	}

	merged := current
	if req.Temperature != nil {
		merged.Temperature = req.Temperature
	}
	if req.Humidity != nil {
		merged.Humidity = req.Humidity
	}
	if req.Light != nil {
		merged.Light = req.Light
	}
	if req.GPS != nil {
		merged.GPS = req.GPS
	}

	previousStation, _ := s.sim.Location(id)
	moved := false
	if req.SourceID != nil && strings.TrimSpace(*req.SourceID) != "" {
		stationID := strings.ToUpper(strings.TrimSpace(*req.SourceID))
		if err := s.sim.TransferDevice(id, stationID); err != nil {
			recordTransfer(err)
			return flow.DeviceRecord{}, err
		}
		recordTransfer(nil)
		moved = stationID != previousStation
		station, _ := s.sim.Station(stationID)
		merged.SourceID = station.ID
		merged.SourceName = station.Name
		merged.ProcessStatus = station.Stage
	}

	merged.LastUpdate = s.now().UTC()
	merged.NowStatus = flow.Connectivity(merged.Temperature, merged.Humidity, merged.Light, merged.GPS)

	if err := s.store.UpsertDevice(ctx, merged, true); err != nil {
		if moved && previousStation != "" {
			if rbErr := s.sim.TransferDevice(id, previousStation); rbErr != nil {
				logrus.WithError(rbErr).WithField("device", id).Error("failed to roll back transfer")
			}
		}
		return flow.DeviceRecord{}, err
	}

	s.push.Broadcast(notification.Message{Type: notification.TypeDeviceUpdate, Device: &merged})
	return merged, nil
}

func recordTransfer(err error) {
	switch {
	case err == nil:
		metrics.IncTransfer(metrics.ResultSuccess)
	case errors.Is(err, flow.ErrCapacityExceeded):
		metrics.IncTransfer(metrics.ResultCapacity)
	default:
		metrics.IncTransfer(metrics.ResultError)
	}
}

// DeleteDevice deletes a device's state and history, then removes it from the
// simulator. A store failure leaves the simulator untouched.
func (s *Service) DeleteDevice(ctx context.Context, id string) (err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	defer func() { metrics.IncMutation("delete_device", err) }()

	storeErr := s.store.DeleteDevice(ctx, id)
	if storeErr != nil && !errors.Is(storeErr, store.ErrNotFound) {
		return storeErr
	}
	if simErr := s.sim.RemoveDevice(id); simErr != nil && storeErr != nil {
		return simErr
	}

	logrus.WithField("device", id).Info("device deleted")
	s.push.Broadcast(notification.Message{Type: notification.TypeDeviceDeleted, HistoryCode: id})
	return nil
}

// StationRequest describes a new station.
type StationRequest struct {
	ID            string    `json:"id"`
	Name          string    `json:"name"`
	Description   string    `json:"description"`
	FixedLocation bool      `json:"fixedLocation"`
	GPS           *flow.GPS `json:"gps"`
	Capacity      int       `json:"capacity"`
}

// RegisterStation adds and persists a station.
func (s *Service) RegisterStation(ctx context.Context, req StationRequest) (st flow.Station, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	defer func() { metrics.IncMutation("register_station", err) }()

	st, err = s.sim.AddStation(flow.Station{
		ID:            req.ID,
		Name:          req.Name,
		Description:   req.Description,
		FixedLocation: req.FixedLocation,
		GPS:           req.GPS,
		Capacity:      req.Capacity,
	})
	if err != nil {
		return flow.Station{}, err
	}
	if err := s.store.SaveStation(ctx, st); err != nil {
		if rmErr := s.sim.RemoveStation(st.ID); rmErr != nil {
			logrus.WithError(rmErr).WithField("station", st.ID).Error("failed to roll back station registration")
		}
		return flow.Station{}, err
	}
	logrus.WithFields(logrus.Fields{"station": st.ID, "stage": st.Stage}).Info("station registered")
	return st, nil
}

// RemoveStation unregisters a station. Devices placed there stay put as orphans until
// they are transferred.
func (s *Service) RemoveStation(ctx context.Context, id string) (err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	defer func() { metrics.IncMutation("remove_station", err) }()

	id = strings.ToUpper(strings.TrimSpace(id))
	station, ok := s.sim.Station(id)
	if !ok {
		return fmt.Errorf("station %s: %w", id, flow.ErrNotFound)
	}
	if err := s.store.DeleteStation(ctx, id); err != nil {
		return err
	}
	if err := s.sim.RemoveStation(id); err != nil {
		return err
	}
	if n := s.sim.DeviceCount(id); n > 0 {
		logrus.WithFields(logrus.Fields{"station": id, "devices": n}).Warn("removed station still holds devices")
	}
	logrus.WithFields(logrus.Fields{"station": id, "name": station.Name}).Info("station removed")
	return nil
}

// ProductRequest describes a new product type.
type ProductRequest struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Glyph string `json:"glyph"`
	Slot  int    `json:"slot"`
}

// RegisterProduct adds and persists a product type.
func (s *Service) RegisterProduct(ctx context.Context, req ProductRequest) (p flow.Product, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	defer func() { metrics.IncMutation("register_product", err) }()

	p, err = s.sim.AddProduct(flow.Product{ID: req.ID, Name: req.Name, Glyph: req.Glyph, Slot: req.Slot})
	if err != nil {
		return flow.Product{}, err
	}
	if err := s.store.SaveProduct(ctx, p); err != nil {
		if rmErr := s.sim.RemoveProduct(p.ID); rmErr != nil {
			logrus.WithError(rmErr).WithField("product", p.ID).Error("failed to roll back product registration")
		}
		return flow.Product{}, err
	}
	logrus.WithField("product", p.ID).Info("product registered")
	return p, nil
}
