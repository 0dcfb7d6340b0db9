package models

import "time"

// DefaultStay is how long a vehicle occupies a place when the place does
// not define its own stay time.
const DefaultStay = 60 * time.Second

// Place is a capacity-limited location on the map. Reference data,
// immutable after seeding.
type Place struct {
	ID       string   `bson:"_id" json:"id"`
	Name     string   `bson:"name" json:"name"`
	Type     string   `bson:"type" json:"type"`
	Location Location `bson:"location" json:"location"`
	// MaxCapacity is nil for unlimited places.
	MaxCapacity *int `bson:"max_capacity,omitempty" json:"max_capacity,omitempty"`
	// StaySeconds is nil when the default stay applies.
	StaySeconds *int `bson:"stay_seconds,omitempty" json:"stay_seconds,omitempty"`
	// PassThrough places are transited without occupying a slot.
	PassThrough bool `bson:"pass_through" json:"pass_through"`
}

// StayDuration returns how long an entering vehicle holds its slot.
func (p *Place) StayDuration() time.Duration {
	if p.StaySeconds == nil {
		return DefaultStay
	}
	return time.Duration(*p.StaySeconds) * time.Second
}

// Occupancy binds one vehicle to one place for a bounded interval.
type Occupancy struct {
	VehicleID  string    `bson:"_id" json:"vehicle_id"`
	PlaceID    string    `bson:"place_id" json:"place_id"`
	EnteredAt  time.Time `bson:"entered_at" json:"entered_at"`
	LeaveAfter time.Time `bson:"leave_after" json:"leave_after"`
}

// RouteStep is one stop in a vehicle's ordered route.
type RouteStep struct {
	VehicleID string `bson:"vehicle_id" json:"vehicle_id"`
	StepIndex int    `bson:"step_index" json:"step_index"`
	PlaceID   string `bson:"place_id" json:"place_id"`
}
