package arbiter

import (
	"context"

	"github.com/n0es/Transit/internal/db"
	"github.com/n0es/Transit/internal/models"
)

// Tolerance is the half-width, in degrees, of the box around a proposed
// position inside which another vehicle counts as blocking.
const Tolerance = 0.0001

// Arbiter rejects a proposed motion step when another vehicle's last
// reported position lies within the tolerance box. The test is an
// axis-aligned comparison on each coordinate, not a distance; it is a
// cheap filter, not collision geometry, and it does not reserve the cell.
type Arbiter struct {
	vehicles db.VehicleStore
}

// New creates an arbiter over the vehicle store.
func New(vehicles db.VehicleStore) *Arbiter {
	return &Arbiter{vehicles: vehicles}
}

// IsOccupied reports whether any vehicle other than excludeID sits within
// the tolerance box around loc.
func (a *Arbiter) IsOccupied(ctx context.Context, loc models.Location, excludeID string) (bool, error) {
	count, err := a.vehicles.CountVehiclesNear(ctx, loc, Tolerance, excludeID)
	if err != nil {
		return false, err
	}
	return count > 0, nil
}
