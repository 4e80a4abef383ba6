package flow

import (
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
)

// Tick advances every device by one simulation step and returns the new snapshot.
//
// When no device has a location yet, locations are seeded from previous (the last
// snapshot) or, without one, from random Garden stations. Devices registered later
// are placed on a random Garden station when first seen. A device whose station is
// no longer registered keeps its position, reports the Unknown stage and is never
// moved by the engine.
//
// Moves are staged and committed only when every device has been processed, so a
// failed tick leaves all locations as they were.
func (s *Simulator) Tick(previous []DeviceRecord) ([]DeviceRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	staged := s.cloneLocationsLocked()
	if len(staged) == 0 && len(s.devices) > 0 {
		if err := s.restoreInto(staged, previous); err != nil {
			logrus.WithError(err).Warn("some snapshot entries were skipped while seeding locations")
		}
	}

	now := s.now().UTC()
	records := make([]DeviceRecord, 0, len(s.deviceOrder))
	for _, id := range s.deviceOrder {
		current, placed := staged[id]
		if !placed {
			garden, err := s.randomStationLocked(StageGarden)
			if err != nil {
				return nil, err
			}
			current = garden.ID
		}

		next := current
		if st, known := s.stations[current]; known {
			next = s.advanceLocked(st, staged)
		} else {
			logrus.WithFields(logrus.Fields{"device": id, "station": current}).
				Warn("device references an unregistered station; leaving it in place")
		}
		staged[id] = next
		records = append(records, s.recordLocked(s.devices[id], next, now))
	}
	s.locations = staged
	return records, nil
}

// Restore seeds device locations from a snapshot. Entries whose device or station is
// unknown are skipped and reported through the returned error (ErrOrphanedReference
// or ErrNotFound); valid entries are applied regardless.
func (s *Simulator) Restore(snapshot []DeviceRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.restoreInto(s.locations, snapshot)
}

func (s *Simulator) restoreInto(locs map[string]string, snapshot []DeviceRecord) error {
	var errs []error
	for _, rec := range snapshot {
		if _, ok := s.devices[rec.HistoryCode]; !ok {
			errs = append(errs, fmt.Errorf("device %s: %w", rec.HistoryCode, ErrNotFound))
			continue
		}
		if _, ok := s.stations[rec.SourceID]; !ok {
			errs = append(errs, fmt.Errorf("device %s at %q: %w", rec.HistoryCode, rec.SourceID, ErrOrphanedReference))
			continue
		}
		locs[rec.HistoryCode] = rec.SourceID
	}
	return errors.Join(errs...)
}

func (s *Simulator) cloneLocationsLocked() map[string]string {
	out := make(map[string]string, len(s.locations))
	for k, v := range s.locations {
		out[k] = v
	}
	return out
}

// Sample synthesizes a fresh record for every placed device at its current station
// without advancing anything. Unplaced devices are skipped.
func (s *Simulator) Sample() []DeviceRecord {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now().UTC()
	records := make([]DeviceRecord, 0, len(s.locations))
	for _, id := range s.deviceOrder {
		if at, ok := s.locations[id]; ok {
			records = append(records, s.recordLocked(s.devices[id], at, now))
		}
	}
	return records
}

// RandomStation picks a uniformly random station of stage.
func (s *Simulator) RandomStation(stage Stage) (Station, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, err := s.randomStationLocked(stage)
	if err != nil {
		return Station{}, err
	}
	return copyStation(st), nil
}

// Randomize scatters every device over a random stage and station of that stage,
// honouring Client capacity. Stages with no room fall back to a Garden station.
// On error no device is moved.
func (s *Simulator) Randomize() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	staged := make(map[string]string, len(s.deviceOrder))
	for _, id := range s.deviceOrder {
		stage := Stages[s.rnd.Intn(len(Stages))]
		var candidates []Station
		for _, st := range s.stationsByStageLocked(stage) {
			if s.hasCapacityIn(staged, st.ID) {
				candidates = append(candidates, st)
			}
		}
		if len(candidates) == 0 {
			garden, err := s.randomStationLocked(StageGarden)
			if err != nil {
				return err
			}
			staged[id] = garden.ID
			continue
		}
		staged[id] = candidates[s.rnd.Intn(len(candidates))].ID
	}
	s.locations = staged
	return nil
}

// advanceLocked applies the stage transition rule to a device currently at st.
func (s *Simulator) advanceLocked(st Station, locs map[string]string) string {
	if s.rnd.Float64() >= s.advanceProb {
		return st.ID
	}

	switch st.Stage {
	case StageGarden:
		if next, err := s.randomStationLocked(StageStorage); err == nil {
			return next.ID
		}
	case StageStorage:
		if next, err := s.randomStationLocked(StageDelivery); err == nil {
			return next.ID
		}
	case StageDelivery:
		var ref GPS
		if st.FixedLocation && st.GPS != nil {
			ref = *st.GPS
		} else {
			ref = RandomGlobalGPS(s.rnd)
		}
		if s.rnd.Float64() >= 0.5 {
			if vending, ok := s.nearestClientWithCapacityLocked(ref, locs); ok {
				return vending.ID
			}
		}
		if storage, ok := s.nearestStorageLocked(ref); ok {
			return storage.ID
		}
	case StageClient:
		// Terminal: only an explicit transfer moves a device out of a vending machine.
	}
	return st.ID
}

func (s *Simulator) nearestStorageLocked(ref GPS) (Station, bool) {
	storages := s.stationsByStageLocked(StageStorage)
	if nearest, ok := FindNearest(storages, ref); ok {
		return nearest, true
	}
	if len(storages) == 0 {
		return Station{}, false
	}
	return storages[s.rnd.Intn(len(storages))], true
}

func (s *Simulator) nearestClientWithCapacityLocked(ref GPS, locs map[string]string) (Station, bool) {
	var open []Station
	for _, st := range s.stationsByStageLocked(StageClient) {
		if s.hasCapacityIn(locs, st.ID) {
			open = append(open, st)
		}
	}
	return FindNearest(open, ref)
}

func (s *Simulator) randomStationLocked(stage Stage) (Station, error) {
	candidates := s.stationsByStageLocked(stage)
	if len(candidates) == 0 {
		if stage == StageGarden {
			return Station{}, ErrNoGardenStations
		}
		return Station{}, fmt.Errorf("no %s stations registered: %w", stage, ErrNotFound)
	}
	return candidates[s.rnd.Intn(len(candidates))], nil
}

// recordLocked synthesizes the sensor sample for a device at stationID.
// Fixed stations report their own coordinate; everything else gets a fresh random one.
func (s *Simulator) recordLocked(d Device, stationID string, now time.Time) DeviceRecord {
	rec := DeviceRecord{
		HistoryCode:   d.ID,
		VegetableID:   d.ProductID,
		Unit:          "Unknown",
		SourceID:      stationID,
		SourceName:    "Unknown",
		ProcessStatus: StageOf(stationID),
		LastUpdate:    now,
	}
	if p, ok := s.products[d.ProductID]; ok {
		rec.Unit = p.Name
	}

	st, known := s.stations[stationID]
	if known {
		rec.SourceName = st.Name
	} else {
		rec.ProcessStatus = StageUnknown
	}

	rec.Light = RandomLight(s.rnd)
	rec.Humidity = RandomHumidity(s.rnd)
	rec.Temperature = RandomTemperature(s.rnd)
	if known && st.FixedLocation && st.GPS != nil {
		g := *st.GPS
		rec.GPS = &g
	} else {
		g := RandomGlobalGPS(s.rnd)
		rec.GPS = &g
	}
	rec.NowStatus = Connectivity(rec.Temperature, rec.Humidity, rec.Light, rec.GPS)
	return rec
}
