package protocol

import (
	"context"
	"fmt"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/n0es/Transit/internal/auth"
	"github.com/n0es/Transit/internal/db"
	"github.com/n0es/Transit/internal/models"
)

// Publisher pushes live position updates out to the map front end.
// Implementations must tolerate being called from many connections.
type Publisher interface {
	PublishPosition(vehicleID string, loc models.Location, status models.VehicleStatus, at time.Time)
}

// handlerFunc executes a command for a vehicle. args never includes the
// session token; that is consumed by the dispatcher.
type handlerFunc func(ctx context.Context, vehicleID string, args []string) string

// unset marks an argument count the handler does not constrain.
const unset = -1

// command declares the contract of one wire command.
type command struct {
	name            string
	requiresSession bool
	argsExact       int
	argsMin         int
	run             handlerFunc
}

// Dispatcher parses `<vehicle_id>/<COMMAND>/<args...>` frames, enforces
// each command's argument and session contract, and routes to its
// handler. The command table is fixed at construction.
type Dispatcher struct {
	store     db.Store
	sessions  *auth.Service
	publisher Publisher
	commands  map[string]command
}

// NewDispatcher builds a dispatcher with the closed command set:
// REGISTER, LOGIN, UPDATE_LOCATION.
func NewDispatcher(store db.Store, sessions *auth.Service, publisher Publisher) *Dispatcher {
	d := &Dispatcher{
		store:     store,
		sessions:  sessions,
		publisher: publisher,
	}
	d.commands = map[string]command{
		"REGISTER":        {name: "REGISTER", argsExact: unset, argsMin: 0, run: d.handleRegister},
		"LOGIN":           {name: "LOGIN", argsExact: unset, argsMin: 0, run: d.handleLogin},
		"UPDATE_LOCATION": {name: "UPDATE_LOCATION", requiresSession: true, argsExact: unset, argsMin: 2, run: d.handleUpdateLocation},
	}
	return d
}

// Dispatch handles one request frame and returns the single-line
// response. It never panics: unexpected handler faults become a generic
// error response so the connection survives.
func (d *Dispatcher) Dispatch(ctx context.Context, line string) (response string) {
	defer func() {
		if r := recover(); r != nil {
			log.WithField("panic", r).Error("Handler panicked")
			response = "ERROR/Internal server error"
		}
	}()

	parts := strings.Split(strings.TrimSpace(line), "/")
	if len(parts) < 2 {
		return "ERROR/Invalid format, use `ID/COMMAND/*ARGS`"
	}
	vehicleID := parts[0]
	name := strings.ToUpper(parts[1])
	args := parts[2:]

	cmd, ok := d.commands[name]
	if !ok {
		return fmt.Sprintf("ERROR/Invalid command: %s", name)
	}

	if cmd.requiresSession {
		if len(args) < 1 {
			return fmt.Sprintf("ERROR/%s requires a session token", cmd.name)
		}
		token := args[0]
		args = args[1:]
		result, err := d.sessions.Validate(ctx, token, vehicleID)
		if err != nil {
			log.WithError(err).WithField("vehicle_id", vehicleID).Error("Session validation failed")
			return "ERROR/Internal server error"
		}
		if result != auth.ResultValid {
			return fmt.Sprintf("ERROR/%s", result)
		}
	}

	if cmd.argsExact != unset && len(args) != cmd.argsExact {
		return fmt.Sprintf("ERROR/%s expects %d arguments, got %d", cmd.name, cmd.argsExact, len(args))
	}
	if cmd.argsMin != unset && len(args) < cmd.argsMin {
		return fmt.Sprintf("ERROR/%s expects at least %d arguments, got %d", cmd.name, cmd.argsMin, len(args))
	}

	log.WithFields(log.Fields{
		"vehicle_id": vehicleID,
		"command":    cmd.name,
	}).Debug("Dispatching command")
	return cmd.run(ctx, vehicleID, args)
}
