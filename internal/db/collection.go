package db

import (
	"context"
	"errors"
	"time"

	"github.com/n0es/Transit/internal/models"
)

var (
	// ErrNotFound is returned when a keyed lookup matches nothing.
	ErrNotFound = errors.New("not found")
	// ErrDuplicate is returned when an insert collides with an existing key.
	ErrDuplicate = errors.New("already exists")
)

// VehicleStore defines the interface for vehicle data operations.
type VehicleStore interface {
	InsertVehicle(ctx context.Context, vehicle models.Vehicle) error
	FindVehicleByID(ctx context.Context, id string) (*models.Vehicle, error)
	// UpdateVehiclePosition records a new position (and optionally a new
	// status) for the vehicle. Writes stamped earlier than the vehicle's
	// current position are dropped; the returned bool reports whether the
	// write was applied.
	UpdateVehiclePosition(ctx context.Context, id string, loc models.Location, at time.Time, status *models.VehicleStatus) (bool, error)
	// CountVehiclesNear counts vehicles other than excludeID whose last
	// position is within tol degrees of loc on both axes.
	CountVehiclesNear(ctx context.Context, loc models.Location, tol float64, excludeID string) (int64, error)
}

// SessionStore defines the interface for session data operations.
type SessionStore interface {
	InsertSession(ctx context.Context, session models.Session) error
	FindSession(ctx context.Context, token string) (*models.Session, error)
}

// PlaceStore defines the interface for place reference data.
type PlaceStore interface {
	InsertPlace(ctx context.Context, place models.Place) error
	FindPlaceByID(ctx context.Context, id string) (*models.Place, error)
	CountPlaces(ctx context.Context) (int64, error)
}

// OccupancyStore defines the interface for place occupancy records.
// A vehicle holds at most one record at a time (vehicle id is the key).
type OccupancyStore interface {
	InsertOccupancy(ctx context.Context, occ models.Occupancy) error
	CountOccupants(ctx context.Context, placeID string) (int64, error)
	// DeleteOccupancy removes the vehicle's record if present. The bool
	// reports whether a record existed.
	DeleteOccupancy(ctx context.Context, vehicleID string) (bool, error)
	FindExpiredOccupancies(ctx context.Context, now time.Time) ([]models.Occupancy, error)
}

// RouteStore defines the interface for per-vehicle routes.
type RouteStore interface {
	InsertRouteStep(ctx context.Context, step models.RouteStep) error
	// FindRoute returns the vehicle's route ordered by step index.
	FindRoute(ctx context.Context, vehicleID string) ([]models.RouteStep, error)
	DeleteRoute(ctx context.Context, vehicleID string) error
}

// LocationStore defines the interface for the append-only location history.
type LocationStore interface {
	InsertLocation(ctx context.Context, rec models.LocationRecord) error
	FindLocations(ctx context.Context, vehicleID string, limit int64) ([]models.LocationRecord, error)
}

// Store aggregates every collection the server works with.
type Store interface {
	VehicleStore
	SessionStore
	PlaceStore
	OccupancyStore
	RouteStore
	LocationStore
}
