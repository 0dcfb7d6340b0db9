package models

import (
	"fmt"
	"time"
)

// VehicleType identifies the kind of vehicle. The type is derived from the
// first character of the vehicle ID once, at registration, and stored.
type VehicleType string

const (
	TypeTrain   VehicleType = "T"
	TypeBus     VehicleType = "B"
	TypeUber    VehicleType = "U"
	TypeShuttle VehicleType = "S"
)

// VehicleStatus is the motion state reported by a vehicle.
type VehicleStatus string

const (
	StatusIdle     VehicleStatus = "IDLE"
	StatusMoving   VehicleStatus = "MOVING"
	StatusWaiting  VehicleStatus = "WAITING"
	StatusDelayed  VehicleStatus = "DELAYED"
	StatusFinished VehicleStatus = "FINISHED"
)

// Vehicle represents a registered vehicle and its last known state.
type Vehicle struct {
	ID           string        `bson:"_id" json:"id"`
	Type         VehicleType   `bson:"type" json:"type"`
	PasswordHash string        `bson:"password_hash" json:"-"`
	Status       VehicleStatus `bson:"status" json:"status"`
	Location     Location      `bson:"location" json:"location"`
	// PositionAt orders concurrent position writes across the command
	// and beacon paths: older writes are dropped.
	PositionAt time.Time `bson:"position_at" json:"position_at"`
	CreatedAt  time.Time `bson:"created_at" json:"created_at"`
}

// TypeFromID derives the vehicle type from the ID prefix.
func TypeFromID(id string) (VehicleType, error) {
	if id == "" {
		return "", fmt.Errorf("empty vehicle id")
	}
	t := VehicleType(id[:1])
	switch t {
	case TypeTrain, TypeBus, TypeUber, TypeShuttle:
		return t, nil
	}
	return "", fmt.Errorf("unknown vehicle type prefix %q", id[:1])
}

// IsValidStatus reports whether s names one of the motion states.
func IsValidStatus(s VehicleStatus) bool {
	switch s {
	case StatusIdle, StatusMoving, StatusWaiting, StatusDelayed, StatusFinished:
		return true
	}
	return false
}
