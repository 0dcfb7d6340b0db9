package motion

import (
	"context"
	"sync"
	"testing"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/n0es/Transit/internal/db"
	"github.com/n0es/Transit/internal/models"
	"github.com/n0es/Transit/internal/occupancy"
)

// spyAdmitter records admission calls and answers with canned results.
type spyAdmitter struct {
	mu         sync.Mutex
	enterCalls []string
	fullCalls  []string
	leaveCalls int
	enter      occupancy.EntryResult
	full       bool
}

func (s *spyAdmitter) TryEnter(ctx context.Context, vehicleID, placeID string) (occupancy.EntryResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.enterCalls = append(s.enterCalls, placeID)
	return s.enter, nil
}

func (s *spyAdmitter) IsFull(ctx context.Context, placeID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fullCalls = append(s.fullCalls, placeID)
	return s.full, nil
}

func (s *spyAdmitter) Leave(ctx context.Context, vehicleID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.leaveCalls++
	return nil
}

func (s *spyAdmitter) calls() (enter, full []string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.enterCalls...), append([]string(nil), s.fullCalls...)
}

// stubArbiter answers every position check the same way.
type stubArbiter struct {
	blocked bool
}

func (s *stubArbiter) IsOccupied(ctx context.Context, loc models.Location, excludeID string) (bool, error) {
	return s.blocked, nil
}

// recordReporter collects every reported state in order.
type recordReporter struct {
	mu     sync.Mutex
	states []models.VehicleStatus
}

func (r *recordReporter) Report(status models.VehicleStatus, loc models.Location) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.states = append(r.states, status)
}

func (r *recordReporter) seen() []models.VehicleStatus {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]models.VehicleStatus(nil), r.states...)
}

func intPtr(v int) *int { return &v }

func seedPlace(t *testing.T, store *db.Memory, place models.Place) {
	t.Helper()
	require.NoError(t, store.InsertPlace(context.Background(), place))
}

func newTestMachine(route []string, places db.PlaceStore, admitter Admitter, checker PositionChecker, reporter Reporter) *Machine {
	m := New("B101", route, models.Location{}, places, admitter, checker, reporter)
	m.Tick = time.Millisecond
	m.RetryDelay = time.Millisecond
	m.EntryPenalty = time.Millisecond
	return m
}

func testLog() *log.Entry {
	return log.WithField("vehicle_id", "B101")
}

// An empty route idles forever and never touches the occupancy manager.
func TestMachine_EmptyRoute(t *testing.T) {
	admitter := &spyAdmitter{}
	m := newTestMachine(nil, db.NewMemory(), admitter, &stubArbiter{}, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	err := m.Run(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	assert.Equal(t, models.StatusIdle, m.State())
	assert.Equal(t, 0, m.Index())
	enter, full := admitter.calls()
	assert.Empty(t, enter)
	assert.Empty(t, full)
}

// A route of a pass-through place and a zero-stay stop is walked to the
// end, with the index only ever advancing.
func TestMachine_RunsRouteToFinish(t *testing.T) {
	store := db.NewMemory()
	seedPlace(t, store, models.Place{
		ID:          "P001",
		Location:    models.Location{Lat: 0.00001, Lon: 0},
		PassThrough: true,
	})
	seedPlace(t, store, models.Place{
		ID:          "P002",
		Location:    models.Location{Lat: 0.00002, Lon: 0},
		MaxCapacity: intPtr(1),
		StaySeconds: intPtr(0),
	})
	manager := occupancy.NewManager(store, store)
	reporter := &recordReporter{}
	m := newTestMachine([]string{"P001", "P002"}, store, manager, &stubArbiter{}, reporter)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	err := m.Run(ctx)
	require.NoError(t, err)

	assert.Equal(t, models.StatusFinished, m.State())
	assert.Equal(t, 2, m.Index())

	// Occupancy at the stop was released on the way out.
	count, err := store.CountOccupants(ctx, "P002")
	require.NoError(t, err)
	assert.Zero(t, count)

	states := reporter.seen()
	require.NotEmpty(t, states)
	assert.Equal(t, models.StatusFinished, states[len(states)-1])
	assert.Contains(t, states, models.StatusWaiting)
}

// A full place postpones the approach: the machine reports DELAYED, then
// returns to IDLE without starting to move.
func TestMachine_IdleWaitsWhenFull(t *testing.T) {
	store := db.NewMemory()
	seedPlace(t, store, models.Place{
		ID:          "P001",
		Location:    models.Location{Lat: 1, Lon: 1},
		MaxCapacity: intPtr(1),
	})
	reporter := &recordReporter{}
	m := newTestMachine([]string{"P001"}, store, &spyAdmitter{full: true}, &stubArbiter{}, reporter)

	require.NoError(t, m.tickIdle(context.Background(), testLog()))

	assert.Equal(t, models.StatusIdle, m.State())
	assert.Equal(t, models.Location{}, m.Position())
	assert.Equal(t, []models.VehicleStatus{models.StatusDelayed, models.StatusIdle}, reporter.seen())
}

// A pass-through place skips the capacity check entirely.
func TestMachine_IdleSkipsCapacityForPassThrough(t *testing.T) {
	store := db.NewMemory()
	seedPlace(t, store, models.Place{
		ID:          "P001",
		Location:    models.Location{Lat: 1, Lon: 1},
		PassThrough: true,
	})
	admitter := &spyAdmitter{full: true}
	m := newTestMachine([]string{"P001"}, store, admitter, &stubArbiter{}, nil)

	require.NoError(t, m.tickIdle(context.Background(), testLog()))

	assert.Equal(t, models.StatusMoving, m.State())
	_, full := admitter.calls()
	assert.Empty(t, full)
}

// Each moving tick covers a tenth of the remaining distance.
func TestMachine_MovingStepsByFraction(t *testing.T) {
	store := db.NewMemory()
	seedPlace(t, store, models.Place{
		ID:       "P001",
		Location: models.Location{Lat: 40.0, Lon: -73.0},
	})
	m := newTestMachine([]string{"P001"}, store, &spyAdmitter{}, &stubArbiter{}, nil)
	m.state = models.StatusMoving

	require.NoError(t, m.tickMoving(context.Background(), testLog()))

	assert.Equal(t, models.StatusMoving, m.State())
	assert.InDelta(t, 4.0, m.Position().Lat, 1e-9)
	assert.InDelta(t, -7.3, m.Position().Lon, 1e-9)
}

// A contested step is not committed: the position stays put and the
// machine resumes MOVING after the delay.
func TestMachine_MovingBlockedByArbiter(t *testing.T) {
	store := db.NewMemory()
	seedPlace(t, store, models.Place{
		ID:       "P001",
		Location: models.Location{Lat: 40.0, Lon: -73.0},
	})
	reporter := &recordReporter{}
	m := newTestMachine([]string{"P001"}, store, &spyAdmitter{}, &stubArbiter{blocked: true}, reporter)
	m.state = models.StatusMoving

	require.NoError(t, m.tickMoving(context.Background(), testLog()))

	assert.Equal(t, models.StatusMoving, m.State())
	assert.Equal(t, models.Location{}, m.Position())
	assert.Equal(t, []models.VehicleStatus{models.StatusDelayed, models.StatusMoving}, reporter.seen())
}

// A refused entry at arrival backs the vehicle off for the penalty delay
// and keeps it MOVING toward the same step.
func TestMachine_ArrivalRefusedEntry(t *testing.T) {
	store := db.NewMemory()
	seedPlace(t, store, models.Place{
		ID:       "P001",
		Location: models.Location{Lat: 0.00001, Lon: 0},
	})
	m := newTestMachine([]string{"P001"}, store, &spyAdmitter{enter: occupancy.Full}, &stubArbiter{}, nil)
	m.state = models.StatusMoving

	require.NoError(t, m.tickMoving(context.Background(), testLog()))

	assert.Equal(t, models.StatusMoving, m.State())
	assert.Equal(t, 0, m.Index())
}

// Once finished, Run returns immediately and no further state changes
// happen.
func TestMachine_FinishedIsTerminal(t *testing.T) {
	m := newTestMachine([]string{"P001"}, db.NewMemory(), &spyAdmitter{}, &stubArbiter{}, nil)
	m.state = models.StatusFinished
	m.index = 1

	require.NoError(t, m.Run(context.Background()))
	assert.Equal(t, models.StatusFinished, m.State())
	assert.Equal(t, 1, m.Index())
}
