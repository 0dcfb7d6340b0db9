package protocol

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/n0es/Transit/internal/auth"
	"github.com/n0es/Transit/internal/db"
	"github.com/n0es/Transit/internal/models"
)

func newTestDispatcher() (*Dispatcher, *db.Memory) {
	store := db.NewMemory()
	sessions := auth.NewService("test-secret", time.Hour, store)
	return NewDispatcher(store, sessions, nil), store
}

// registerVehicle runs REGISTER and returns the issued token.
func registerVehicle(t *testing.T, d *Dispatcher, vehicleID string, password string) string {
	t.Helper()
	line := vehicleID + "/REGISTER"
	if password != "" {
		line += "/" + password
	}
	response := d.Dispatch(context.Background(), line)
	parts := strings.SplitN(response, "/", 2)
	assert.Equal(t, vehicleID, parts[0], "unexpected response %q", response)
	assert.Len(t, parts, 2)
	return parts[1]
}

func TestDispatch_MalformedFrame(t *testing.T) {
	d, _ := newTestDispatcher()
	response := d.Dispatch(context.Background(), "B101")
	assert.Equal(t, "ERROR/Invalid format, use `ID/COMMAND/*ARGS`", response)
}

func TestDispatch_UnknownCommand(t *testing.T) {
	d, _ := newTestDispatcher()
	response := d.Dispatch(context.Background(), "B101/TELEPORT/1/2")
	assert.Equal(t, "ERROR/Invalid command: TELEPORT", response)
}

func TestRegister(t *testing.T) {
	d, store := newTestDispatcher()
	token := registerVehicle(t, d, "B101", "secret")
	assert.NotEmpty(t, token)

	vehicle, err := store.FindVehicleByID(context.Background(), "B101")
	assert.NoError(t, err)
	assert.Equal(t, models.TypeBus, vehicle.Type)
	assert.Equal(t, models.StatusIdle, vehicle.Status)
	assert.NotEqual(t, "secret", vehicle.PasswordHash)
}

func TestRegister_Existing(t *testing.T) {
	d, _ := newTestDispatcher()
	registerVehicle(t, d, "B101", "")

	response := d.Dispatch(context.Background(), "B101/REGISTER")
	assert.Equal(t, "EXISTS", response)
}

func TestRegister_UnknownTypePrefix(t *testing.T) {
	d, _ := newTestDispatcher()
	response := d.Dispatch(context.Background(), "X101/REGISTER")
	assert.True(t, strings.HasPrefix(response, "ERROR/"), "got %q", response)
}

func TestLogin(t *testing.T) {
	d, _ := newTestDispatcher()
	ctx := context.Background()

	response := d.Dispatch(ctx, "B101/LOGIN")
	assert.Equal(t, "UNREGISTERED/Please register your vehicle", response)

	registerVehicle(t, d, "B101", "secret")

	response = d.Dispatch(ctx, "B101/LOGIN/wrong")
	assert.Equal(t, "INVALID/Invalid vehicle id or password", response)

	response = d.Dispatch(ctx, "B101/LOGIN/secret")
	parts := strings.SplitN(response, "/", 2)
	assert.Equal(t, "B101", parts[0])
	assert.Len(t, parts, 2)
}

// A second login does not revoke the first session: both tokens stay
// usable at the same time.
func TestLogin_ConcurrentSessions(t *testing.T) {
	d, _ := newTestDispatcher()
	ctx := context.Background()

	first := registerVehicle(t, d, "B101", "secret")
	response := d.Dispatch(ctx, "B101/LOGIN/secret")
	second := strings.SplitN(response, "/", 2)[1]
	assert.NotEqual(t, first, second)

	for _, token := range []string{first, second} {
		response := d.Dispatch(ctx, "B101/UPDATE_LOCATION/"+token+"/-73.0/40.0")
		assert.Equal(t, "OK/Location Updated", response)
	}
}

func TestUpdateLocation(t *testing.T) {
	d, store := newTestDispatcher()
	ctx := context.Background()
	token := registerVehicle(t, d, "B101", "")

	response := d.Dispatch(ctx, "B101/UPDATE_LOCATION/"+token+"/-73.9911/40.7359")
	assert.Equal(t, "OK/Location Updated", response)

	vehicle, err := store.FindVehicleByID(ctx, "B101")
	assert.NoError(t, err)
	assert.Equal(t, models.Location{Lat: 40.7359, Lon: -73.9911}, vehicle.Location)

	history, err := store.FindLocations(ctx, "B101", 0)
	assert.NoError(t, err)
	assert.Len(t, history, 1)
	assert.Equal(t, -73.9911, history[0].Longitude)
	assert.Equal(t, 40.7359, history[0].Latitude)
}

func TestUpdateLocation_WithState(t *testing.T) {
	d, store := newTestDispatcher()
	ctx := context.Background()
	token := registerVehicle(t, d, "B101", "")

	response := d.Dispatch(ctx, "B101/UPDATE_LOCATION/"+token+"/-73.0/40.0/MOVING")
	assert.Equal(t, "OK/Location Updated", response)

	vehicle, err := store.FindVehicleByID(ctx, "B101")
	assert.NoError(t, err)
	assert.Equal(t, models.StatusMoving, vehicle.Status)

	response = d.Dispatch(ctx, "B101/UPDATE_LOCATION/"+token+"/-73.0/40.0/FLYING")
	assert.Equal(t, "ERROR/Invalid state: FLYING", response)
}

// Non-numeric coordinates leave both the stored position and the history
// untouched.
func TestUpdateLocation_InvalidCoordinates(t *testing.T) {
	d, store := newTestDispatcher()
	ctx := context.Background()
	token := registerVehicle(t, d, "B101", "")

	before, err := store.FindVehicleByID(ctx, "B101")
	assert.NoError(t, err)

	response := d.Dispatch(ctx, "B101/UPDATE_LOCATION/"+token+"/abc/40.0")
	assert.Contains(t, response, "Invalid location format")

	after, err := store.FindVehicleByID(ctx, "B101")
	assert.NoError(t, err)
	assert.Equal(t, before.Location, after.Location)
	assert.Equal(t, before.PositionAt, after.PositionAt)

	history, err := store.FindLocations(ctx, "B101", 0)
	assert.NoError(t, err)
	assert.Empty(t, history)
}

func TestUpdateLocation_SessionErrors(t *testing.T) {
	d, _ := newTestDispatcher()
	ctx := context.Background()
	registerVehicle(t, d, "B101", "")
	token := registerVehicle(t, d, "B202", "")

	// Missing token entirely.
	response := d.Dispatch(ctx, "B101/UPDATE_LOCATION")
	assert.Equal(t, "ERROR/UPDATE_LOCATION requires a session token", response)

	// Garbage token.
	response = d.Dispatch(ctx, "B101/UPDATE_LOCATION/bogus/-73.0/40.0")
	assert.Equal(t, "ERROR/INVALID_SESSION", response)

	// Someone else's token.
	response = d.Dispatch(ctx, "B101/UPDATE_LOCATION/"+token+"/-73.0/40.0")
	assert.Equal(t, "ERROR/INVALID_SESSION", response)
}

func TestUpdateLocation_ExpiredSession(t *testing.T) {
	store := db.NewMemory()
	sessions := auth.NewService("test-secret", time.Millisecond, store)
	d := NewDispatcher(store, sessions, nil)
	ctx := context.Background()

	token := registerVehicle(t, d, "B101", "")
	time.Sleep(10 * time.Millisecond)

	response := d.Dispatch(ctx, "B101/UPDATE_LOCATION/"+token+"/-73.0/40.0")
	assert.Equal(t, "ERROR/SESSION_EXPIRED", response)
}

func TestUpdateLocation_ArgumentCount(t *testing.T) {
	d, _ := newTestDispatcher()
	token := registerVehicle(t, d, "B101", "")

	response := d.Dispatch(context.Background(), "B101/UPDATE_LOCATION/"+token+"/-73.0")
	assert.Equal(t, "ERROR/UPDATE_LOCATION expects at least 2 arguments, got 1", response)
}
