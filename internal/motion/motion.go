package motion

import (
	"context"
	"math"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/n0es/Transit/internal/db"
	"github.com/n0es/Transit/internal/models"
	"github.com/n0es/Transit/internal/occupancy"
)

const (
	// StepFraction is how much of the remaining vector toward the target
	// a vehicle covers per tick. Linear interpolation, not physics.
	StepFraction = 0.1
	// ArrivalEpsilon is the Euclidean distance, in degrees, under which a
	// vehicle counts as having reached its target.
	ArrivalEpsilon = 0.00005

	defaultTick         = time.Second
	defaultRetryDelay   = time.Second
	defaultEntryPenalty = 5 * time.Second
)

// Admitter is the occupancy manager surface the machine consults.
type Admitter interface {
	TryEnter(ctx context.Context, vehicleID, placeID string) (occupancy.EntryResult, error)
	IsFull(ctx context.Context, placeID string) (bool, error)
	Leave(ctx context.Context, vehicleID string) error
}

// PositionChecker is the arbiter surface blocking contested steps.
type PositionChecker interface {
	IsOccupied(ctx context.Context, loc models.Location, excludeID string) (bool, error)
}

// Reporter delivers status reports to the central authority. Best effort:
// a lost report does not stop the machine.
type Reporter interface {
	Report(status models.VehicleStatus, loc models.Location)
}

// Machine walks one vehicle along its route, consulting the occupancy
// manager before approaching a place and the position arbiter before
// committing every step.
//
// States: IDLE, MOVING, WAITING, DELAYED, FINISHED (terminal). The route
// index only ever advances.
type Machine struct {
	VehicleID string
	Route     []string

	Places    db.PlaceStore
	Occupancy Admitter
	Arbiter   PositionChecker
	Reporter  Reporter

	Tick         time.Duration
	RetryDelay   time.Duration
	EntryPenalty time.Duration

	mu    sync.Mutex
	state models.VehicleStatus
	index int
	loc   models.Location
}

// New builds a machine starting IDLE at the given position.
func New(vehicleID string, route []string, start models.Location, places db.PlaceStore, admitter Admitter, checker PositionChecker, reporter Reporter) *Machine {
	return &Machine{
		VehicleID:    vehicleID,
		Route:        route,
		Places:       places,
		Occupancy:    admitter,
		Arbiter:      checker,
		Reporter:     reporter,
		Tick:         defaultTick,
		RetryDelay:   defaultRetryDelay,
		EntryPenalty: defaultEntryPenalty,
		state:        models.StatusIdle,
	}
}

// State returns the current motion state.
func (m *Machine) State() models.VehicleStatus {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Index returns the current route step index.
func (m *Machine) Index() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.index
}

// Position returns the vehicle's current position.
func (m *Machine) Position() models.Location {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.loc
}

// transition moves to a new state and reports it.
func (m *Machine) transition(state models.VehicleStatus) {
	m.mu.Lock()
	m.state = state
	loc := m.loc
	m.mu.Unlock()
	if m.Reporter != nil {
		m.Reporter.Report(state, loc)
	}
}

// report re-sends the current state, used after a committed move.
func (m *Machine) report() {
	m.mu.Lock()
	state, loc := m.state, m.loc
	m.mu.Unlock()
	if m.Reporter != nil {
		m.Reporter.Report(state, loc)
	}
}

func (m *Machine) sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// Run ticks the machine until the route is finished or ctx is cancelled.
// A vehicle with an empty route idles forever and never consults the
// occupancy manager.
func (m *Machine) Run(ctx context.Context) error {
	vlog := log.WithField("vehicle_id", m.VehicleID)
	vlog.WithField("route", m.Route).Info("Starting route loop")

	for {
		switch m.State() {
		case models.StatusIdle:
			if err := m.tickIdle(ctx, vlog); err != nil {
				return err
			}
		case models.StatusMoving:
			if err := m.tickMoving(ctx, vlog); err != nil {
				return err
			}
		case models.StatusFinished:
			vlog.Info("Route complete")
			return nil
		}
		if err := m.sleep(ctx, m.Tick); err != nil {
			return err
		}
	}
}

// tickIdle decides whether to start toward the next place. If the place
// has no free slot the approach is postponed rather than started.
func (m *Machine) tickIdle(ctx context.Context, vlog *log.Entry) error {
	m.mu.Lock()
	done := m.index >= len(m.Route)
	var placeID string
	if !done {
		placeID = m.Route[m.index]
	}
	m.mu.Unlock()
	if done {
		return nil
	}

	place, err := m.Places.FindPlaceByID(ctx, placeID)
	if err == db.ErrNotFound {
		vlog.WithField("place_id", placeID).Error("Place not found")
		return nil
	}
	if err != nil {
		vlog.WithError(err).WithField("place_id", placeID).Error("Place lookup failed")
		return nil
	}

	if !place.PassThrough {
		full, err := m.Occupancy.IsFull(ctx, placeID)
		if err != nil {
			vlog.WithError(err).WithField("place_id", placeID).Error("Capacity check failed")
			return nil
		}
		if full {
			vlog.WithField("place_id", placeID).Info("Place full, waiting before approaching")
			m.transition(models.StatusDelayed)
			if err := m.sleep(ctx, m.RetryDelay); err != nil {
				return err
			}
			m.transition(models.StatusIdle)
			return nil
		}
	}

	vlog.WithField("place_id", placeID).Info("Moving to place")
	m.transition(models.StatusMoving)
	return nil
}

// tickMoving advances one step toward the target and handles arrival.
func (m *Machine) tickMoving(ctx context.Context, vlog *log.Entry) error {
	m.mu.Lock()
	placeID := m.Route[m.index]
	cur := m.loc
	m.mu.Unlock()

	place, err := m.Places.FindPlaceByID(ctx, placeID)
	if err == db.ErrNotFound {
		vlog.WithField("place_id", placeID).Error("Place not found")
		m.transition(models.StatusIdle)
		return nil
	}
	if err != nil {
		vlog.WithError(err).WithField("place_id", placeID).Error("Place lookup failed")
		return nil
	}

	next := models.Location{
		Lat: cur.Lat + (place.Location.Lat-cur.Lat)*StepFraction,
		Lon: cur.Lon + (place.Location.Lon-cur.Lon)*StepFraction,
	}

	blocked, err := m.Arbiter.IsOccupied(ctx, next, m.VehicleID)
	if err != nil {
		vlog.WithError(err).Error("Position check failed")
		return nil
	}
	if blocked {
		vlog.WithFields(log.Fields{"lat": next.Lat, "lon": next.Lon}).Info("Blocked by vehicle ahead")
		m.transition(models.StatusDelayed)
		if err := m.sleep(ctx, m.RetryDelay); err != nil {
			return err
		}
		m.transition(models.StatusMoving)
		return nil
	}

	m.mu.Lock()
	m.loc = next
	m.mu.Unlock()
	m.report()

	if distance(next, place.Location) >= ArrivalEpsilon {
		return nil
	}
	return m.arrive(ctx, vlog, place)
}

// arrive attempts admission at the reached place.
func (m *Machine) arrive(ctx context.Context, vlog *log.Entry, place *models.Place) error {
	result, err := m.Occupancy.TryEnter(ctx, m.VehicleID, place.ID)
	if err != nil {
		vlog.WithError(err).WithField("place_id", place.ID).Error("Entry attempt failed")
		return nil
	}

	switch result {
	case occupancy.PassThrough:
		vlog.WithField("place_id", place.ID).Info("Passing through")
		return m.advance(vlog)
	case occupancy.Entered:
		vlog.WithField("place_id", place.ID).Info("Entered place")
		m.transition(models.StatusWaiting)
		// The stay is not cut short; only shutdown interrupts it.
		if err := m.sleep(ctx, place.StayDuration()); err != nil {
			return err
		}
		if err := m.Occupancy.Leave(ctx, m.VehicleID); err != nil {
			vlog.WithError(err).WithField("place_id", place.ID).Error("Leave failed")
		}
		vlog.WithField("place_id", place.ID).Info("Leaving place")
		return m.advance(vlog)
	default:
		// FULL, or INVALID_PLACE racing the preemptive check in IDLE.
		vlog.WithFields(log.Fields{"place_id": place.ID, "result": result}).Info("Entry refused")
		m.transition(models.StatusDelayed)
		if err := m.sleep(ctx, m.EntryPenalty); err != nil {
			return err
		}
		m.transition(models.StatusMoving)
		return nil
	}
}

// advance moves to the next route step, finishing when none remain.
func (m *Machine) advance(vlog *log.Entry) error {
	m.mu.Lock()
	m.index++
	finished := m.index >= len(m.Route)
	m.mu.Unlock()
	if finished {
		m.transition(models.StatusFinished)
	} else {
		m.transition(models.StatusIdle)
	}
	return nil
}

func distance(a, b models.Location) float64 {
	return math.Hypot(a.Lat-b.Lat, a.Lon-b.Lon)
}
