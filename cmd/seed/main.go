package main

import (
	"context"
	"os"

	"github.com/joho/godotenv"
	log "github.com/sirupsen/logrus"

	"github.com/n0es/Transit/internal/db"
	"github.com/n0es/Transit/internal/models"
)

func intPtr(n int) *int { return &n }

func demoPlaces() []models.Place {
	return []models.Place{
		{ID: "P001", Name: "Union Square Park", Type: "park", Location: models.Location{Lat: 40.7359, Lon: -73.9911}, MaxCapacity: intPtr(5), StaySeconds: intPtr(120)},
		{ID: "P002", Name: "Broadway & 14th St", Type: "intersection", Location: models.Location{Lat: 40.7372, Lon: -73.9906}, PassThrough: true},
		{ID: "P003", Name: "Pizza Bros", Type: "restaurant", Location: models.Location{Lat: 40.7421, Lon: -73.9893}, MaxCapacity: intPtr(3), StaySeconds: intPtr(180)},
		{ID: "P004", Name: "City Parking Lot A", Type: "parking", Location: models.Location{Lat: 40.7405, Lon: -73.9881}, MaxCapacity: intPtr(4), StaySeconds: intPtr(90)},
		{ID: "P005", Name: "Coffee Crib", Type: "cafe", Location: models.Location{Lat: 40.7365, Lon: -73.9922}, MaxCapacity: intPtr(2), StaySeconds: intPtr(150)},
		{ID: "P006", Name: "CodeHub Office", Type: "office", Location: models.Location{Lat: 40.7414, Lon: -73.9899}, MaxCapacity: intPtr(10), StaySeconds: intPtr(600)},
		{ID: "P007", Name: "5th Ave & 23rd St", Type: "intersection", Location: models.Location{Lat: 40.7409, Lon: -73.9897}, PassThrough: true},
		{ID: "P008", Name: "Eastside Dog Park", Type: "park", Location: models.Location{Lat: 40.7322, Lon: -73.9835}, MaxCapacity: intPtr(6), StaySeconds: intPtr(180)},
		{ID: "P009", Name: "Flatiron Plaza", Type: "plaza", Location: models.Location{Lat: 40.7411, Lon: -73.9897}, MaxCapacity: intPtr(5), StaySeconds: intPtr(150)},
		{ID: "P010", Name: "Grand Central Corner", Type: "intersection", Location: models.Location{Lat: 40.7527, Lon: -73.9772}, PassThrough: true},
	}
}

func demoRoutes() []models.RouteStep {
	return []models.RouteStep{
		{VehicleID: "B101", StepIndex: 0, PlaceID: "P001"},
		{VehicleID: "B101", StepIndex: 1, PlaceID: "P003"},
		{VehicleID: "B101", StepIndex: 2, PlaceID: "P004"},
		{VehicleID: "B102", StepIndex: 0, PlaceID: "P002"},
		{VehicleID: "B102", StepIndex: 1, PlaceID: "P005"},
		{VehicleID: "B102", StepIndex: 2, PlaceID: "P006"},
	}
}

func main() {
	_ = godotenv.Load()
	ctx := context.Background()

	client, err := db.ConnectMongo(ctx, os.Getenv("MONGO_URI"))
	if err != nil {
		log.Fatalf("Failed to connect to MongoDB: %v", err)
	}
	defer client.Disconnect(ctx)

	database := os.Getenv("MONGO_DB")
	if database == "" {
		database = "transit"
	}
	store := db.NewMongo(client, database)

	count, err := store.CountPlaces(ctx)
	if err != nil {
		log.Fatalf("Failed to count places: %v", err)
	}
	if count > 0 {
		log.Info("Places already seeded, skipping")
		return
	}

	for _, place := range demoPlaces() {
		if err := store.InsertPlace(ctx, place); err != nil {
			log.Fatalf("Failed to seed place %s: %v", place.ID, err)
		}
	}
	log.WithField("count", len(demoPlaces())).Info("Seeded places")

	for _, vehicleID := range []string{"B101", "B102"} {
		if err := store.DeleteRoute(ctx, vehicleID); err != nil {
			log.Fatalf("Failed to clear route for %s: %v", vehicleID, err)
		}
	}
	for _, step := range demoRoutes() {
		if err := store.InsertRouteStep(ctx, step); err != nil {
			log.Fatalf("Failed to seed route step for %s: %v", step.VehicleID, err)
		}
	}
	log.Info("Seeded routes for B101 and B102")
}
