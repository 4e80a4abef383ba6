// Package flow tracks produce devices as they move Garden → Storage → Delivery → Client.
//
// A Simulator owns the station, product and device registries and the mapping
// from device to current station. All methods are safe for concurrent use:
// mutations take the write lock, listings return copies under the read lock.
package flow

import (
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"harvest-iot-backend/internal/parse"
)

// DefaultAdvanceProbability is the per-tick chance that a device attempts to change stage.
const DefaultAdvanceProbability = 0.30

// Simulator is the store object for one simulation: registries plus device locations.
type Simulator struct {
	mu sync.RWMutex

	rnd         Random
	now         func() time.Time
	advanceProb float64

	stations     map[string]Station
	stationOrder []string
	products     map[string]Product
	productOrder []string
	devices      map[string]Device
	deviceOrder  []string

	// locations maps device id to the id of the station holding it.
	locations map[string]string
	lastSeq   int
}

// Option configures a Simulator.
type Option func(*Simulator)

// WithClock overrides the time source used for device ids and tick timestamps.
func WithClock(now func() time.Time) Option {
	return func(s *Simulator) { s.now = now }
}

// WithAdvanceProbability overrides DefaultAdvanceProbability. Values are clamped to [0, 1].
func WithAdvanceProbability(p float64) Option {
	return func(s *Simulator) {
		switch {
		case p < 0:
			p = 0
		case p > 1:
			p = 1
		}
		s.advanceProb = p
	}
}

// NewSimulator creates an empty simulator. A nil rnd is replaced by a clock-seeded source.
func NewSimulator(rnd Random, opts ...Option) *Simulator {
	if rnd == nil {
		rnd = NewRandom(0)
	}
	s := &Simulator{
		rnd:         rnd,
		now:         time.Now,
		advanceProb: DefaultAdvanceProbability,
		stations:    make(map[string]Station),
		products:    make(map[string]Product),
		devices:     make(map[string]Device),
		locations:   make(map[string]string),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Seed loads stations and products in one go, typically DefaultStations and DefaultProducts.
func (s *Simulator) Seed(stations []Station, products []Product) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, st := range stations {
		if _, err := s.addStationLocked(st); err != nil {
			return err
		}
	}
	for _, p := range products {
		if _, err := s.addProductLocked(p); err != nil {
			return err
		}
	}
	return nil
}

// --- Stations ---

// Station looks up a station by id. Ids are matched case-insensitively.
func (s *Simulator) Station(id string) (Station, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	st, ok := s.stations[normalizeID(id)]
	return copyStation(st), ok
}

// Stations returns all stations ordered by Order, ties in registration order.
func (s *Simulator) Stations() []Station {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.sortedStationsLocked()
}

// StationsByStage returns the stations whose id prefix maps to stage, in listing order.
func (s *Simulator) StationsByStage(stage Stage) []Station {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.stationsByStageLocked(stage)
}

// StationsGrouped returns every known stage mapped to its stations.
func (s *Simulator) StationsGrouped() map[Stage][]Station {
	s.mu.RLock()
	defer s.mu.RUnlock()
	grouped := make(map[Stage][]Station, len(Stages))
	for _, stage := range Stages {
		grouped[stage] = s.stationsByStageLocked(stage)
	}
	return grouped
}

// RegisterStation adds a station with order max(existing)+1.
// The stage is derived from the id prefix; an existing id is rejected with ErrDuplicateID.
func (s *Simulator) RegisterStation(id, name, description string, fixedLocation bool, gps *GPS) (Station, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.addStationLocked(Station{
		ID:            id,
		Name:          name,
		Description:   description,
		FixedLocation: fixedLocation,
		GPS:           gps,
	})
}

// AddStation registers a fully specified station, keeping its Order and Capacity when set.
func (s *Simulator) AddStation(st Station) (Station, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.addStationLocked(st)
}

func (s *Simulator) addStationLocked(st Station) (Station, error) {
	if _, err := parse.ParseStationID(st.ID); err != nil {
		return Station{}, fmt.Errorf("%w: %v", ErrInvalidArgument, err)
	}
	st.ID = normalizeID(st.ID)
	stage := StageOf(st.ID)
	if stage == StageUnknown {
		return Station{}, fmt.Errorf("%w: station id %q has no known stage prefix", ErrInvalidArgument, st.ID)
	}
	if _, exists := s.stations[st.ID]; exists {
		return Station{}, fmt.Errorf("station %s: %w", st.ID, ErrDuplicateID)
	}
	if st.FixedLocation && st.GPS == nil {
		return Station{}, fmt.Errorf("%w: fixed-location station %s needs a gps coordinate", ErrInvalidArgument, st.ID)
	}
	if st.Capacity < 0 {
		return Station{}, fmt.Errorf("%w: negative capacity for station %s", ErrInvalidArgument, st.ID)
	}
	if strings.TrimSpace(st.Name) == "" {
		st.Name = st.ID
	}

	st.Stage = stage
	if st.Order <= 0 {
		st.Order = s.maxOrderLocked() + 1
	}
	if st.GPS != nil {
		g := *st.GPS
		st.GPS = &g
	}

	s.stations[st.ID] = st
	s.stationOrder = append(s.stationOrder, st.ID)
	return copyStation(st), nil
}

// RemoveStation unregisters a station. Devices still placed there are kept and become
// orphaned: ticks leave them in place with the Unknown stage.
func (s *Simulator) RemoveStation(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	id = normalizeID(id)
	if _, ok := s.stations[id]; !ok {
		return fmt.Errorf("station %s: %w", id, ErrNotFound)
	}
	delete(s.stations, id)
	s.stationOrder = removeID(s.stationOrder, id)
	return nil
}

func (s *Simulator) maxOrderLocked() int {
	maxOrder := 0
	for _, st := range s.stations {
		if st.Order > maxOrder {
			maxOrder = st.Order
		}
	}
	return maxOrder
}

func (s *Simulator) sortedStationsLocked() []Station {
	out := make([]Station, 0, len(s.stationOrder))
	for _, id := range s.stationOrder {
		out = append(out, copyStation(s.stations[id]))
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Order < out[j].Order })
	return out
}

func (s *Simulator) stationsByStageLocked(stage Stage) []Station {
	var out []Station
	for _, st := range s.sortedStationsLocked() {
		if StageOf(st.ID) == stage {
			out = append(out, st)
		}
	}
	return out
}

// normalizeID canonicalizes station and product ids, which are stored upper case.
func normalizeID(id string) string {
	return strings.ToUpper(strings.TrimSpace(id))
}

func copyStation(st Station) Station {
	if st.GPS != nil {
		g := *st.GPS
		st.GPS = &g
	}
	return st
}

// --- Products ---

// Product looks up a product by its three-letter code.
func (s *Simulator) Product(id string) (Product, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.products[normalizeID(id)]
	return p, ok
}

// Products returns all products in registration order.
func (s *Simulator) Products() []Product {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Product, 0, len(s.productOrder))
	for _, id := range s.productOrder {
		out = append(out, s.products[id])
	}
	return out
}

// RegisterProduct adds a product type; an existing code is rejected with ErrDuplicateID.
func (s *Simulator) RegisterProduct(id, name string) (Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.addProductLocked(Product{ID: id, Name: name})
}

// AddProduct registers a product including its glyph and slot.
func (s *Simulator) AddProduct(p Product) (Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.addProductLocked(p)
}

// RemoveProduct unregisters a product type. Devices of that type report an "Unknown" unit.
func (s *Simulator) RemoveProduct(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	id = normalizeID(id)
	if _, ok := s.products[id]; !ok {
		return fmt.Errorf("product %s: %w", id, ErrNotFound)
	}
	delete(s.products, id)
	s.productOrder = removeID(s.productOrder, id)
	return nil
}

func (s *Simulator) addProductLocked(p Product) (Product, error) {
	p.ID = normalizeID(p.ID)
	if !parse.ValidProductCode(p.ID) {
		return Product{}, fmt.Errorf("%w: product code %q must be three letters", ErrInvalidArgument, p.ID)
	}
	if p.Slot < 0 || p.Slot > DefaultCapacity {
		return Product{}, fmt.Errorf("%w: product slot %d out of range 1..%d", ErrInvalidArgument, p.Slot, DefaultCapacity)
	}
	if _, exists := s.products[p.ID]; exists {
		return Product{}, fmt.Errorf("product %s: %w", p.ID, ErrDuplicateID)
	}
	if strings.TrimSpace(p.Name) == "" {
		p.Name = p.ID
	}
	s.products[p.ID] = p
	s.productOrder = append(s.productOrder, p.ID)
	return p, nil
}

func removeID(ids []string, id string) []string {
	for i, v := range ids {
		if v == id {
			return append(ids[:i], ids[i+1:]...)
		}
	}
	return ids
}
