package models

import "time"

// Session binds an issued token to a vehicle until it expires. Read-only
// after creation; a vehicle may hold several valid sessions at once.
type Session struct {
	Token     string    `bson:"_id" json:"token"`
	VehicleID string    `bson:"vehicle_id" json:"vehicle_id"`
	ExpiresAt time.Time `bson:"expires_at" json:"expires_at"`
}
