package db

import (
	"context"
	"math"
	"sort"
	"sync"
	"time"

	"github.com/n0es/Transit/internal/models"
)

// Memory implements Store with in-process maps. It backs the tests and
// single-process runs that have no MongoDB available.
type Memory struct {
	mu          sync.Mutex
	vehicles    map[string]models.Vehicle
	sessions    map[string]models.Session
	places      map[string]models.Place
	occupancies map[string]models.Occupancy
	routes      map[string][]models.RouteStep
	locations   []models.LocationRecord
}

// NewMemory returns an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{
		vehicles:    make(map[string]models.Vehicle),
		sessions:    make(map[string]models.Session),
		places:      make(map[string]models.Place),
		occupancies: make(map[string]models.Occupancy),
		routes:      make(map[string][]models.RouteStep),
	}
}

func (m *Memory) InsertVehicle(ctx context.Context, vehicle models.Vehicle) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.vehicles[vehicle.ID]; ok {
		return ErrDuplicate
	}
	m.vehicles[vehicle.ID] = vehicle
	return nil
}

func (m *Memory) FindVehicleByID(ctx context.Context, id string) (*models.Vehicle, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	vehicle, ok := m.vehicles[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &vehicle, nil
}

func (m *Memory) UpdateVehiclePosition(ctx context.Context, id string, loc models.Location, at time.Time, status *models.VehicleStatus) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	vehicle, ok := m.vehicles[id]
	if !ok {
		return false, ErrNotFound
	}
	if !at.After(vehicle.PositionAt) {
		return false, nil
	}
	vehicle.Location = loc
	vehicle.PositionAt = at
	if status != nil {
		vehicle.Status = *status
	}
	m.vehicles[id] = vehicle
	return true, nil
}

func (m *Memory) CountVehiclesNear(ctx context.Context, loc models.Location, tol float64, excludeID string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for id, vehicle := range m.vehicles {
		if id == excludeID {
			continue
		}
		if math.Abs(vehicle.Location.Lat-loc.Lat) < tol && math.Abs(vehicle.Location.Lon-loc.Lon) < tol {
			n++
		}
	}
	return n, nil
}

func (m *Memory) InsertSession(ctx context.Context, session models.Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.sessions[session.Token]; ok {
		return ErrDuplicate
	}
	m.sessions[session.Token] = session
	return nil
}

func (m *Memory) FindSession(ctx context.Context, token string) (*models.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	session, ok := m.sessions[token]
	if !ok {
		return nil, ErrNotFound
	}
	return &session, nil
}

func (m *Memory) InsertPlace(ctx context.Context, place models.Place) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.places[place.ID]; ok {
		return ErrDuplicate
	}
	m.places[place.ID] = place
	return nil
}

func (m *Memory) FindPlaceByID(ctx context.Context, id string) (*models.Place, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	place, ok := m.places[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &place, nil
}

func (m *Memory) CountPlaces(ctx context.Context) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return int64(len(m.places)), nil
}

func (m *Memory) InsertOccupancy(ctx context.Context, occ models.Occupancy) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.occupancies[occ.VehicleID]; ok {
		return ErrDuplicate
	}
	m.occupancies[occ.VehicleID] = occ
	return nil
}

func (m *Memory) CountOccupants(ctx context.Context, placeID string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for _, occ := range m.occupancies {
		if occ.PlaceID == placeID {
			n++
		}
	}
	return n, nil
}

func (m *Memory) DeleteOccupancy(ctx context.Context, vehicleID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.occupancies[vehicleID]; !ok {
		return false, nil
	}
	delete(m.occupancies, vehicleID)
	return true, nil
}

func (m *Memory) FindExpiredOccupancies(ctx context.Context, now time.Time) ([]models.Occupancy, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.Occupancy
	for _, occ := range m.occupancies {
		if !occ.LeaveAfter.After(now) {
			out = append(out, occ)
		}
	}
	return out, nil
}

func (m *Memory) InsertRouteStep(ctx context.Context, step models.RouteStep) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.routes[step.VehicleID] = append(m.routes[step.VehicleID], step)
	return nil
}

func (m *Memory) FindRoute(ctx context.Context, vehicleID string) ([]models.RouteStep, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	steps := append([]models.RouteStep(nil), m.routes[vehicleID]...)
	sort.Slice(steps, func(i, j int) bool { return steps[i].StepIndex < steps[j].StepIndex })
	return steps, nil
}

func (m *Memory) DeleteRoute(ctx context.Context, vehicleID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.routes, vehicleID)
	return nil
}

func (m *Memory) InsertLocation(ctx context.Context, rec models.LocationRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.locations = append(m.locations, rec)
	return nil
}

func (m *Memory) FindLocations(ctx context.Context, vehicleID string, limit int64) ([]models.LocationRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.LocationRecord
	for i := len(m.locations) - 1; i >= 0; i-- {
		if m.locations[i].VehicleID != vehicleID {
			continue
		}
		out = append(out, m.locations[i])
		if limit > 0 && int64(len(out)) >= limit {
			break
		}
	}
	return out, nil
}
