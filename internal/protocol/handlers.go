package protocol

import (
	"context"
	"fmt"
	"strconv"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/n0es/Transit/internal/db"
	"github.com/n0es/Transit/internal/models"
)

// handleRegister creates the vehicle and opens a first session. A vehicle
// that already exists is told to LOGIN instead.
func (d *Dispatcher) handleRegister(ctx context.Context, vehicleID string, args []string) string {
	vehicleType, err := models.TypeFromID(vehicleID)
	if err != nil {
		return fmt.Sprintf("ERROR/%v", err)
	}

	password := ""
	if len(args) > 0 {
		password = args[0]
	}
	hash, err := d.sessions.HashPassword(password)
	if err != nil {
		log.WithError(err).WithField("vehicle_id", vehicleID).Error("Password hashing failed")
		return "ERROR/Registration failed"
	}

	vehicle := models.Vehicle{
		ID:           vehicleID,
		Type:         vehicleType,
		PasswordHash: hash,
		Status:       models.StatusIdle,
		CreatedAt:    time.Now(),
	}
	err = d.store.InsertVehicle(ctx, vehicle)
	if err == db.ErrDuplicate {
		return "EXISTS"
	}
	if err != nil {
		log.WithError(err).WithField("vehicle_id", vehicleID).Error("Vehicle insert failed")
		return "ERROR/Registration failed"
	}

	token, err := d.sessions.CreateSession(ctx, vehicleID)
	if err != nil {
		log.WithError(err).WithField("vehicle_id", vehicleID).Error("Session creation failed")
		return "ERROR/Registration failed"
	}
	log.WithField("vehicle_id", vehicleID).Info("Registered vehicle")
	return vehicleID + "/" + token
}

// handleLogin authenticates an existing vehicle and opens another
// session. Sessions issued earlier remain valid.
func (d *Dispatcher) handleLogin(ctx context.Context, vehicleID string, args []string) string {
	password := ""
	if len(args) > 0 {
		password = args[0]
	}

	vehicle, err := d.store.FindVehicleByID(ctx, vehicleID)
	if err == db.ErrNotFound {
		return "UNREGISTERED/Please register your vehicle"
	}
	if err != nil {
		log.WithError(err).WithField("vehicle_id", vehicleID).Error("Vehicle lookup failed")
		return "ERROR/Login failed"
	}

	if !d.sessions.CheckPassword(password, vehicle.PasswordHash) {
		return "INVALID/Invalid vehicle id or password"
	}

	token, err := d.sessions.CreateSession(ctx, vehicleID)
	if err != nil {
		log.WithError(err).WithField("vehicle_id", vehicleID).Error("Session creation failed")
		return "ERROR/Login failed"
	}
	log.WithField("vehicle_id", vehicleID).Info("Vehicle logged in")
	return vehicleID + "/" + token
}

// handleUpdateLocation records a position report: appended to the
// location history and, when not stale, applied to the vehicle's last
// known position. An optional trailing state argument updates the
// vehicle's status.
func (d *Dispatcher) handleUpdateLocation(ctx context.Context, vehicleID string, args []string) string {
	lon, lonErr := strconv.ParseFloat(args[0], 64)
	lat, latErr := strconv.ParseFloat(args[1], 64)
	if lonErr != nil || latErr != nil {
		return "ERROR/Invalid location format. Longitude/Latitude must be numbers."
	}

	var status *models.VehicleStatus
	if len(args) > 2 {
		s := models.VehicleStatus(args[2])
		if !models.IsValidStatus(s) {
			return fmt.Sprintf("ERROR/Invalid state: %s", args[2])
		}
		status = &s
	}

	now := time.Now()
	rec := models.LocationRecord{
		VehicleID: vehicleID,
		Longitude: lon,
		Latitude:  lat,
		Timestamp: now,
	}
	if err := d.store.InsertLocation(ctx, rec); err != nil {
		log.WithError(err).WithField("vehicle_id", vehicleID).Error("Location insert failed")
		return "ERROR/Failed to update location in database"
	}

	loc := models.Location{Lat: lat, Lon: lon}
	applied, err := d.store.UpdateVehiclePosition(ctx, vehicleID, loc, now, status)
	if err == db.ErrNotFound {
		return "ERROR/Unknown vehicle"
	}
	if err != nil {
		log.WithError(err).WithField("vehicle_id", vehicleID).Error("Position update failed")
		return "ERROR/Failed to update location in database"
	}

	if applied && d.publisher != nil {
		reported := models.StatusIdle
		if status != nil {
			reported = *status
		} else if vehicle, err := d.store.FindVehicleByID(ctx, vehicleID); err == nil {
			reported = vehicle.Status
		}
		d.publisher.PublishPosition(vehicleID, loc, reported, now)
	}
	return "OK/Location Updated"
}
