package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"harvest-iot-backend/internal/flow"
	"harvest-iot-backend/internal/model"
)

// Store defines the interface for all database operations.
type Store interface {
	SaveSnapshot(ctx context.Context, records []flow.DeviceRecord) error
	InsertDevice(ctx context.Context, d flow.Device, rec flow.DeviceRecord) error
	UpsertDevice(ctx context.Context, rec flow.DeviceRecord, appendHistory bool) error
	Devices(ctx context.Context) ([]flow.Device, error)
	CurrentDevices(ctx context.Context) ([]flow.DeviceRecord, error)
	CurrentDevice(ctx context.Context, historyCode string) (flow.DeviceRecord, error)
	History(ctx context.Context, historyCode string, since time.Time) ([]HistoryEntry, error)
	DeleteDevice(ctx context.Context, historyCode string) error

	SaveStation(ctx context.Context, st flow.Station) error
	DeleteStation(ctx context.Context, id string) error
	SaveProduct(ctx context.Context, p flow.Product) error
	Stations(ctx context.Context) ([]flow.Station, error)
	Products(ctx context.Context) ([]flow.Product, error)
}

// gormStore implements the Store interface using GORM.
type gormStore struct {
	db         *gorm.DB
	maxHistory int
}

// NewGormStore creates a new GORM-backed store keeping at most maxHistory samples per
// device. A non-positive maxHistory disables trimming.
func NewGormStore(db *gorm.DB, maxHistory int) Store {
	return &gormStore{db: db, maxHistory: maxHistory}
}

var stateUpdateColumns = []string{
	"vegetable_id", "unit", "source_id", "source_name", "process_status", "now_status",
	"last_update", "light", "humidity", "temperature", "lat", "lng", "updated_at",
}

// SaveSnapshot writes one tick: every record replaces the device's current state and is
// appended to its history, all in a single transaction.
func (s *gormStore) SaveSnapshot(ctx context.Context, records []flow.DeviceRecord) error {
	if len(records) == 0 {
		return nil
	}

	states := make([]model.DeviceState, 0, len(records))
	samples := make([]model.DeviceSample, 0, len(records))
	for _, rec := range records {
		states = append(states, toState(rec))
		samples = append(samples, toSample(rec))
	}

	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := upsertStates(tx, states); err != nil {
			return err
		}
		if err := tx.Create(&samples).Error; err != nil {
			return fmt.Errorf("failed to append %d samples: %w", len(samples), err)
		}
		for _, rec := range records {
			if err := s.trimHistory(tx, rec.HistoryCode); err != nil {
				return err
			}
		}
		return nil
	})
}

// InsertDevice stores the initial state of a newly registered device, keeping d.CreatedAt
// as the row's creation time. Later upserts never touch created_at.
func (s *gormStore) InsertDevice(ctx context.Context, d flow.Device, rec flow.DeviceRecord) error {
	state := toState(rec)
	state.CreatedAt = d.CreatedAt.UTC()
	return upsertStates(s.db.WithContext(ctx), []model.DeviceState{state})
}

// UpsertDevice stores a single device state, optionally appending it to the history.
func (s *gormStore) UpsertDevice(ctx context.Context, rec flow.DeviceRecord, appendHistory bool) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := upsertStates(tx, []model.DeviceState{toState(rec)}); err != nil {
			return err
		}
		if !appendHistory {
			return nil
		}
		sample := toSample(rec)
		if err := tx.Create(&sample).Error; err != nil {
			return fmt.Errorf("failed to append sample for device %s: %w", rec.HistoryCode, err)
		}
		return s.trimHistory(tx, rec.HistoryCode)
	})
}

func upsertStates(tx *gorm.DB, states []model.DeviceState) error {
	err := tx.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "history_code"}},
		DoUpdates: clause.AssignmentColumns(stateUpdateColumns),
	}).Create(&states).Error
	if err != nil {
		return fmt.Errorf("failed to upsert %d device states: %w", len(states), err)
	}
	return nil
}

// trimHistory keeps the newest maxHistory samples of a device.
func (s *gormStore) trimHistory(tx *gorm.DB, historyCode string) error {
	if s.maxHistory <= 0 {
		return nil
	}
	err := tx.Exec(
		`DELETE FROM device_samples WHERE history_code = ? AND id NOT IN `+
			`(SELECT id FROM device_samples WHERE history_code = ? ORDER BY id DESC LIMIT ?)`,
		historyCode, historyCode, s.maxHistory,
	).Error
	if err != nil {
		return fmt.Errorf("failed to trim history for device %s: %w", historyCode, err)
	}
	return nil
}

// Devices returns the identity of every stored device in registration order.
func (s *gormStore) Devices(ctx context.Context) ([]flow.Device, error) {
	var states []model.DeviceState
	err := s.db.WithContext(ctx).
		Select("history_code", "vegetable_id", "created_at").
		Order("created_at, history_code").
		Find(&states).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list devices: %w", err)
	}
	out := make([]flow.Device, 0, len(states))
	for _, st := range states {
		out = append(out, flow.Device{ID: st.HistoryCode, ProductID: st.VegetableID, CreatedAt: st.CreatedAt.UTC()})
	}
	return out, nil
}

// CurrentDevices returns the latest state of every device in registration order.
func (s *gormStore) CurrentDevices(ctx context.Context) ([]flow.DeviceRecord, error) {
	var states []model.DeviceState
	if err := s.db.WithContext(ctx).Order("created_at, history_code").Find(&states).Error; err != nil {
		return nil, fmt.Errorf("failed to list device states: %w", err)
	}
	out := make([]flow.DeviceRecord, 0, len(states))
	for _, st := range states {
		out = append(out, fromState(st))
	}
	return out, nil
}

func (s *gormStore) CurrentDevice(ctx context.Context, historyCode string) (flow.DeviceRecord, error) {
	var st model.DeviceState
	err := s.db.WithContext(ctx).First(&st, "history_code = ?", historyCode).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return flow.DeviceRecord{}, fmt.Errorf("device %s: %w", historyCode, ErrNotFound)
	}
	if err != nil {
		return flow.DeviceRecord{}, fmt.Errorf("failed to load device %s: %w", historyCode, err)
	}
	return fromState(st), nil
}

// History returns the samples of a device observed at or after since, oldest first.
func (s *gormStore) History(ctx context.Context, historyCode string, since time.Time) ([]HistoryEntry, error) {
	var samples []model.DeviceSample
	err := s.db.WithContext(ctx).
		Where("history_code = ? AND observed_at >= ?", historyCode, since.UTC()).
		Order("observed_at, id").
		Find(&samples).Error
	if err != nil {
		return nil, fmt.Errorf("failed to load history for device %s: %w", historyCode, err)
	}
	out := make([]HistoryEntry, 0, len(samples))
	for _, sample := range samples {
		out = append(out, fromSample(sample))
	}
	return out, nil
}

// DeleteDevice removes a device's state and its whole history.
func (s *gormStore) DeleteDevice(ctx context.Context, historyCode string) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("history_code = ?", historyCode).Delete(&model.DeviceSample{}).Error; err != nil {
			return fmt.Errorf("failed to delete history for device %s: %w", historyCode, err)
		}
		res := tx.Where("history_code = ?", historyCode).Delete(&model.DeviceState{})
		if res.Error != nil {
			return fmt.Errorf("failed to delete device %s: %w", historyCode, res.Error)
		}
		if res.RowsAffected == 0 {
			return fmt.Errorf("device %s: %w", historyCode, ErrNotFound)
		}
		logrus.WithField("device", historyCode).Debug("deleted device state and history")
		return nil
	})
}

func (s *gormStore) SaveStation(ctx context.Context, st flow.Station) error {
	m := toStationModel(st)
	if err := s.db.WithContext(ctx).Clauses(clause.OnConflict{UpdateAll: true}).Create(&m).Error; err != nil {
		return fmt.Errorf("failed to save station %s: %w", st.ID, err)
	}
	return nil
}

// DeleteStation removes an operator-registered station. Deleting a station that was
// never persisted, such as a seeded default, is not an error.
func (s *gormStore) DeleteStation(ctx context.Context, id string) error {
	if err := s.db.WithContext(ctx).Where("id = ?", id).Delete(&model.Station{}).Error; err != nil {
		return fmt.Errorf("failed to delete station %s: %w", id, err)
	}
	return nil
}

func (s *gormStore) SaveProduct(ctx context.Context, p flow.Product) error {
	m := model.Product{ID: p.ID, Name: p.Name, Glyph: p.Glyph, Slot: p.Slot}
	if err := s.db.WithContext(ctx).Clauses(clause.OnConflict{UpdateAll: true}).Create(&m).Error; err != nil {
		return fmt.Errorf("failed to save product %s: %w", p.ID, err)
	}
	return nil
}

// Stations returns operator-registered stations by display order.
func (s *gormStore) Stations(ctx context.Context) ([]flow.Station, error) {
	var rows []model.Station
	if err := s.db.WithContext(ctx).Order("sort_order, created_at, id").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("failed to list stations: %w", err)
	}
	out := make([]flow.Station, 0, len(rows))
	for _, row := range rows {
		out = append(out, fromStationModel(row))
	}
	return out, nil
}

// Products returns operator-registered products in the order they were added.
func (s *gormStore) Products(ctx context.Context) ([]flow.Product, error) {
	var rows []model.Product
	if err := s.db.WithContext(ctx).Order("created_at, id").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("failed to list products: %w", err)
	}
	out := make([]flow.Product, 0, len(rows))
	for _, row := range rows {
		out = append(out, flow.Product{ID: row.ID, Name: row.Name, Glyph: row.Glyph, Slot: row.Slot})
	}
	return out, nil
}
