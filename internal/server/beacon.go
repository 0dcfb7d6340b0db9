package server

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/n0es/Transit/internal/db"
	"github.com/n0es/Transit/internal/models"
)

// applyBeacon processes one `<vehicle_id>/<longitude>/<latitude>` datagram
// without going through the command protocol. The write is appended to
// the location history and applied to the vehicle's position unless a
// newer report already landed.
func (s *Server) applyBeacon(ctx context.Context, payload string) error {
	parts := strings.Split(strings.TrimSpace(payload), "/")
	if len(parts) != 3 {
		return fmt.Errorf("invalid beacon format: %q", payload)
	}
	vehicleID := parts[0]
	lon, err := strconv.ParseFloat(parts[1], 64)
	if err != nil {
		return fmt.Errorf("invalid longitude %q: %w", parts[1], err)
	}
	lat, err := strconv.ParseFloat(parts[2], 64)
	if err != nil {
		return fmt.Errorf("invalid latitude %q: %w", parts[2], err)
	}

	now := time.Now()
	rec := models.LocationRecord{
		VehicleID: vehicleID,
		Longitude: lon,
		Latitude:  lat,
		Timestamp: now,
	}
	if err := s.Store.InsertLocation(ctx, rec); err != nil {
		return fmt.Errorf("location insert failed: %w", err)
	}

	loc := models.Location{Lat: lat, Lon: lon}
	applied, err := s.Store.UpdateVehiclePosition(ctx, vehicleID, loc, now, nil)
	if err == db.ErrNotFound {
		return fmt.Errorf("unknown vehicle %q", vehicleID)
	}
	if err != nil {
		return fmt.Errorf("position update failed: %w", err)
	}
	if !applied {
		log.WithField("vehicle_id", vehicleID).Debug("Stale beacon ignored")
	}
	return nil
}
