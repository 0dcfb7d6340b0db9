package occupancy

import (
	"context"
	"fmt"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/n0es/Transit/internal/db"
	"github.com/n0es/Transit/internal/models"
)

// EntryResult is the outcome of an admission attempt.
type EntryResult string

const (
	Entered      EntryResult = "ENTERED"
	PassThrough  EntryResult = "PASSTHROUGH"
	Full         EntryResult = "FULL"
	InvalidPlace EntryResult = "INVALID_PLACE"
)

// Manager admits and evicts vehicles into capacity-limited places.
//
// Admission is serialized per place: the capacity check and the record
// insert happen under one place-level lock, so a place's occupancy count
// never exceeds its capacity no matter how many vehicles race for the
// last slot.
type Manager struct {
	places      db.PlaceStore
	occupancies db.OccupancyStore

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// NewManager creates an occupancy manager over the given stores.
func NewManager(places db.PlaceStore, occupancies db.OccupancyStore) *Manager {
	return &Manager{
		places:      places,
		occupancies: occupancies,
		locks:       make(map[string]*sync.Mutex),
	}
}

func (m *Manager) placeLock(placeID string) *sync.Mutex {
	m.mu.Lock()
	defer m.mu.Unlock()
	l, ok := m.locks[placeID]
	if !ok {
		l = &sync.Mutex{}
		m.locks[placeID] = l
	}
	return l
}

// TryEnter attempts to admit the vehicle into the place. Pass-through
// places admit immediately without writing an occupancy record.
func (m *Manager) TryEnter(ctx context.Context, vehicleID, placeID string) (EntryResult, error) {
	place, err := m.places.FindPlaceByID(ctx, placeID)
	if err == db.ErrNotFound {
		return InvalidPlace, nil
	}
	if err != nil {
		return InvalidPlace, fmt.Errorf("place lookup failed: %w", err)
	}

	if place.PassThrough {
		return PassThrough, nil
	}

	l := m.placeLock(placeID)
	l.Lock()
	defer l.Unlock()

	if place.MaxCapacity != nil {
		count, err := m.occupancies.CountOccupants(ctx, placeID)
		if err != nil {
			return Full, fmt.Errorf("occupancy count failed: %w", err)
		}
		if count >= int64(*place.MaxCapacity) {
			return Full, nil
		}
	}

	now := time.Now()
	occ := models.Occupancy{
		VehicleID:  vehicleID,
		PlaceID:    placeID,
		EnteredAt:  now,
		LeaveAfter: now.Add(place.StayDuration()),
	}
	if err := m.occupancies.InsertOccupancy(ctx, occ); err != nil {
		return Full, fmt.Errorf("occupancy insert failed: %w", err)
	}
	return Entered, nil
}

// IsFull reports whether the place has a defined capacity that is
// currently reached. Unlimited and unknown places are never full.
func (m *Manager) IsFull(ctx context.Context, placeID string) (bool, error) {
	place, err := m.places.FindPlaceByID(ctx, placeID)
	if err == db.ErrNotFound {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if place.MaxCapacity == nil {
		return false, nil
	}
	count, err := m.occupancies.CountOccupants(ctx, placeID)
	if err != nil {
		return false, err
	}
	return count >= int64(*place.MaxCapacity), nil
}

// Leave removes the vehicle's occupancy record if it has one. No-op
// otherwise.
func (m *Manager) Leave(ctx context.Context, vehicleID string) error {
	_, err := m.occupancies.DeleteOccupancy(ctx, vehicleID)
	return err
}

// ExpiredOccupants lists every occupancy whose leave-after instant has
// passed.
func (m *Manager) ExpiredOccupants(ctx context.Context) ([]models.Occupancy, error) {
	return m.occupancies.FindExpiredOccupancies(ctx, time.Now())
}

// Sweep evicts every expired occupant and returns how many were removed.
// Run periodically by the server's janitor.
func (m *Manager) Sweep(ctx context.Context) (int, error) {
	expired, err := m.ExpiredOccupants(ctx)
	if err != nil {
		return 0, err
	}
	removed := 0
	for _, occ := range expired {
		ok, err := m.occupancies.DeleteOccupancy(ctx, occ.VehicleID)
		if err != nil {
			return removed, err
		}
		if ok {
			removed++
			log.WithFields(log.Fields{
				"vehicle_id": occ.VehicleID,
				"place_id":   occ.PlaceID,
			}).Info("Evicted expired occupant")
		}
	}
	return removed, nil
}
