package models

import "time"

// Location represents a geographical location with latitude and longitude coordinates.
type Location struct {
	Lat float64 `bson:"lat" json:"lat"`
	Lon float64 `bson:"lon" json:"lon"`
}

// LocationRecord is one entry in the append-only location history of a vehicle.
type LocationRecord struct {
	VehicleID string    `bson:"vehicle_id" json:"vehicle_id"`
	Longitude float64   `bson:"longitude" json:"longitude"`
	Latitude  float64   `bson:"latitude" json:"latitude"`
	Timestamp time.Time `bson:"timestamp" json:"timestamp"`
}
