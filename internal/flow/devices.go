package flow

import (
	"fmt"
	"strings"

	"harvest-iot-backend/internal/parse"
)

// RegisterDevice creates a device for productID with the next free "IOT-<year>-<seq>" id.
// The device has no station until the next Tick places it on a Garden station.
func (s *Simulator) RegisterDevice(productID string) (Device, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.registerDeviceLocked(productID)
}

// RegisterDeviceAt registers a device and places it on stationID in one step.
// Placement is checked before the device is created, so a full or unknown station
// leaves the registry untouched.
func (s *Simulator) RegisterDeviceAt(productID, stationID string) (Device, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	productID, stationID = normalizeID(productID), normalizeID(stationID)
	if _, ok := s.products[productID]; !ok {
		return Device{}, fmt.Errorf("product %s: %w", productID, ErrUnknownProduct)
	}
	if err := s.checkPlacementLocked("", stationID); err != nil {
		return Device{}, err
	}
	d, err := s.registerDeviceLocked(productID)
	if err != nil {
		return Device{}, err
	}
	s.locations[d.ID] = stationID
	return d, nil
}

// AddDevice registers a device under an explicit id, optionally placing it on stationID.
// It is used for operator-chosen ids and for rebuilding the registry from a snapshot.
func (s *Simulator) AddDevice(d Device, stationID string) (Device, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	d.ID = strings.TrimSpace(d.ID)
	d.ProductID = normalizeID(d.ProductID)
	stationID = normalizeID(stationID)
	if d.ID == "" {
		return Device{}, fmt.Errorf("%w: empty device id", ErrInvalidArgument)
	}
	if _, exists := s.devices[d.ID]; exists {
		return Device{}, fmt.Errorf("device %s: %w", d.ID, ErrDuplicateID)
	}
	if _, ok := s.products[d.ProductID]; !ok {
		return Device{}, fmt.Errorf("product %s: %w", d.ProductID, ErrUnknownProduct)
	}
	if stationID != "" {
		if err := s.checkPlacementLocked("", stationID); err != nil {
			return Device{}, err
		}
	}
	if d.CreatedAt.IsZero() {
		d.CreatedAt = s.now()
	}
	if parsed, err := parse.ParseDeviceID(d.ID); err == nil && parsed.Seq > s.lastSeq {
		s.lastSeq = parsed.Seq
	}

	s.devices[d.ID] = d
	s.deviceOrder = append(s.deviceOrder, d.ID)
	if stationID != "" {
		s.locations[d.ID] = stationID
	}
	return d, nil
}

func (s *Simulator) registerDeviceLocked(productID string) (Device, error) {
	productID = normalizeID(productID)
	if _, ok := s.products[productID]; !ok {
		return Device{}, fmt.Errorf("product %s: %w", productID, ErrUnknownProduct)
	}

	now := s.now()
	seq := s.lastSeq + 1
	id := parse.FormatDeviceID(now.Year(), seq)
	for {
		if _, taken := s.devices[id]; !taken {
			break
		}
		seq++
		id = parse.FormatDeviceID(now.Year(), seq)
	}
	s.lastSeq = seq

	d := Device{ID: id, ProductID: productID, CreatedAt: now}
	s.devices[id] = d
	s.deviceOrder = append(s.deviceOrder, id)
	return d, nil
}

// Device looks up a device by id.
func (s *Simulator) Device(id string) (Device, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	d, ok := s.devices[id]
	return d, ok
}

// Devices returns all devices in registration order.
func (s *Simulator) Devices() []Device {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Device, 0, len(s.deviceOrder))
	for _, id := range s.deviceOrder {
		out = append(out, s.devices[id])
	}
	return out
}

// RemoveDevice drops a device and its location. Sequence numbers are not reused.
func (s *Simulator) RemoveDevice(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.devices[id]; !ok {
		return fmt.Errorf("device %s: %w", id, ErrNotFound)
	}
	delete(s.devices, id)
	delete(s.locations, id)
	s.deviceOrder = removeID(s.deviceOrder, id)
	return nil
}

// --- Locations and capacity ---

// Location returns the station currently holding the device.
func (s *Simulator) Location(deviceID string) (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.locations[deviceID]
	return id, ok
}

// SetLocations replaces the device → station map wholesale, typically with a copy taken
// from Locations before a step that has to be undone. Entries for unknown devices are
// dropped.
func (s *Simulator) SetLocations(locations map[string]string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	next := make(map[string]string, len(locations))
	for id, at := range locations {
		if _, ok := s.devices[id]; ok {
			next[id] = at
		}
	}
	s.locations = next
}

// Locations returns a copy of the device → station map.
func (s *Simulator) Locations() map[string]string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cloneLocationsLocked()
}

// DeviceCount returns how many devices are at stationID.
func (s *Simulator) DeviceCount(stationID string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.deviceCountLocked(normalizeID(stationID))
}

// HasCapacity reports whether stationID can accept another device.
// Non-Client stations are unbounded; unknown stations never have capacity.
func (s *Simulator) HasCapacity(stationID string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.hasCapacityLocked(normalizeID(stationID))
}

// TransferDevice moves a device to newStationID. A Client station at capacity rejects
// the transfer unless the device is already there. The capacity check and the move
// happen under one lock.
func (s *Simulator) TransferDevice(deviceID, newStationID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.devices[deviceID]; !ok {
		return fmt.Errorf("device %s: %w", deviceID, ErrNotFound)
	}
	newStationID = normalizeID(newStationID)
	if err := s.checkPlacementLocked(deviceID, newStationID); err != nil {
		return err
	}
	s.locations[deviceID] = newStationID
	return nil
}

func (s *Simulator) checkPlacementLocked(deviceID, stationID string) error {
	st, ok := s.stations[stationID]
	if !ok {
		return fmt.Errorf("station %s: %w", stationID, ErrNotFound)
	}
	if st.Stage != StageClient {
		return nil
	}
	if deviceID != "" && s.locations[deviceID] == stationID {
		return nil
	}
	if !s.hasCapacityLocked(stationID) {
		return fmt.Errorf("station %s holds %d of %d: %w", stationID, s.deviceCountLocked(stationID), st.EffectiveCapacity(), ErrCapacityExceeded)
	}
	return nil
}

func (s *Simulator) deviceCountLocked(stationID string) int {
	return countAt(s.locations, stationID)
}

func (s *Simulator) hasCapacityLocked(stationID string) bool {
	return s.hasCapacityIn(s.locations, stationID)
}

// hasCapacityIn checks capacity against locs, which may be a staged copy of s.locations.
func (s *Simulator) hasCapacityIn(locs map[string]string, stationID string) bool {
	st, ok := s.stations[stationID]
	if !ok {
		return false
	}
	if st.Stage != StageClient {
		return true
	}
	return countAt(locs, stationID) < st.EffectiveCapacity()
}

func countAt(locs map[string]string, stationID string) int {
	n := 0
	for _, at := range locs {
		if at == stationID {
			n++
		}
	}
	return n
}
