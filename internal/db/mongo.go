package db

import (
	"context"
	"fmt"
	"os"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/n0es/Transit/internal/models"
)

// ConnectMongo connects to MongoDB using the given URI, falling back to the
// MONGO_URI environment variable.
func ConnectMongo(ctx context.Context, uri string) (*mongo.Client, error) {
	if uri == "" {
		uri = os.Getenv("MONGO_URI")
	}
	if uri == "" {
		uri = "mongodb://localhost:27017"
	}
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("mongo.Connect error: %w", err)
	}
	pingCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx, nil); err != nil {
		return nil, fmt.Errorf("mongo.Ping error: %w", err)
	}
	return client, nil
}

// Mongo implements Store on a set of MongoDB collections.
type Mongo struct {
	Vehicles    *mongo.Collection
	Sessions    *mongo.Collection
	Places      *mongo.Collection
	Occupancies *mongo.Collection
	Routes      *mongo.Collection
	Locations   *mongo.Collection
}

// NewMongo wires a Mongo store over the named database.
func NewMongo(client *mongo.Client, database string) *Mongo {
	d := client.Database(database)
	return &Mongo{
		Vehicles:    d.Collection("vehicles"),
		Sessions:    d.Collection("sessions"),
		Places:      d.Collection("places"),
		Occupancies: d.Collection("place_occupancy"),
		Routes:      d.Collection("routes"),
		Locations:   d.Collection("locations"),
	}
}

func (m *Mongo) InsertVehicle(ctx context.Context, vehicle models.Vehicle) error {
	_, err := m.Vehicles.InsertOne(ctx, vehicle)
	if mongo.IsDuplicateKeyError(err) {
		return ErrDuplicate
	}
	return err
}

func (m *Mongo) FindVehicleByID(ctx context.Context, id string) (*models.Vehicle, error) {
	var vehicle models.Vehicle
	err := m.Vehicles.FindOne(ctx, bson.M{"_id": id}).Decode(&vehicle)
	if err == mongo.ErrNoDocuments {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &vehicle, nil
}

func (m *Mongo) UpdateVehiclePosition(ctx context.Context, id string, loc models.Location, at time.Time, status *models.VehicleStatus) (bool, error) {
	set := bson.M{"location": loc, "position_at": at}
	if status != nil {
		set["status"] = *status
	}
	res, err := m.Vehicles.UpdateOne(ctx,
		bson.M{"_id": id, "position_at": bson.M{"$lt": at}},
		bson.M{"$set": set},
	)
	if err != nil {
		return false, err
	}
	if res.MatchedCount > 0 {
		return true, nil
	}
	// Either the vehicle is unknown or the write is stale.
	if _, err := m.FindVehicleByID(ctx, id); err != nil {
		return false, err
	}
	return false, nil
}

func (m *Mongo) CountVehiclesNear(ctx context.Context, loc models.Location, tol float64, excludeID string) (int64, error) {
	filter := bson.M{
		"_id":          bson.M{"$ne": excludeID},
		"location.lat": bson.M{"$gt": loc.Lat - tol, "$lt": loc.Lat + tol},
		"location.lon": bson.M{"$gt": loc.Lon - tol, "$lt": loc.Lon + tol},
	}
	return m.Vehicles.CountDocuments(ctx, filter)
}

func (m *Mongo) InsertSession(ctx context.Context, session models.Session) error {
	_, err := m.Sessions.InsertOne(ctx, session)
	if mongo.IsDuplicateKeyError(err) {
		return ErrDuplicate
	}
	return err
}

func (m *Mongo) FindSession(ctx context.Context, token string) (*models.Session, error) {
	var session models.Session
	err := m.Sessions.FindOne(ctx, bson.M{"_id": token}).Decode(&session)
	if err == mongo.ErrNoDocuments {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &session, nil
}

func (m *Mongo) InsertPlace(ctx context.Context, place models.Place) error {
	_, err := m.Places.InsertOne(ctx, place)
	if mongo.IsDuplicateKeyError(err) {
		return ErrDuplicate
	}
	return err
}

func (m *Mongo) FindPlaceByID(ctx context.Context, id string) (*models.Place, error) {
	var place models.Place
	err := m.Places.FindOne(ctx, bson.M{"_id": id}).Decode(&place)
	if err == mongo.ErrNoDocuments {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &place, nil
}

func (m *Mongo) CountPlaces(ctx context.Context) (int64, error) {
	return m.Places.CountDocuments(ctx, bson.M{})
}

func (m *Mongo) InsertOccupancy(ctx context.Context, occ models.Occupancy) error {
	_, err := m.Occupancies.InsertOne(ctx, occ)
	if mongo.IsDuplicateKeyError(err) {
		return ErrDuplicate
	}
	return err
}

func (m *Mongo) CountOccupants(ctx context.Context, placeID string) (int64, error) {
	return m.Occupancies.CountDocuments(ctx, bson.M{"place_id": placeID})
}

func (m *Mongo) DeleteOccupancy(ctx context.Context, vehicleID string) (bool, error) {
	res, err := m.Occupancies.DeleteOne(ctx, bson.M{"_id": vehicleID})
	if err != nil {
		return false, err
	}
	return res.DeletedCount > 0, nil
}

func (m *Mongo) FindExpiredOccupancies(ctx context.Context, now time.Time) ([]models.Occupancy, error) {
	cursor, err := m.Occupancies.Find(ctx, bson.M{"leave_after": bson.M{"$lte": now}})
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)
	var out []models.Occupancy
	if err := cursor.All(ctx, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (m *Mongo) InsertRouteStep(ctx context.Context, step models.RouteStep) error {
	_, err := m.Routes.InsertOne(ctx, step)
	return err
}

func (m *Mongo) FindRoute(ctx context.Context, vehicleID string) ([]models.RouteStep, error) {
	opts := options.Find().SetSort(bson.D{{Key: "step_index", Value: 1}})
	cursor, err := m.Routes.Find(ctx, bson.M{"vehicle_id": vehicleID}, opts)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)
	var out []models.RouteStep
	if err := cursor.All(ctx, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (m *Mongo) DeleteRoute(ctx context.Context, vehicleID string) error {
	_, err := m.Routes.DeleteMany(ctx, bson.M{"vehicle_id": vehicleID})
	return err
}

func (m *Mongo) InsertLocation(ctx context.Context, rec models.LocationRecord) error {
	_, err := m.Locations.InsertOne(ctx, rec)
	return err
}

func (m *Mongo) FindLocations(ctx context.Context, vehicleID string, limit int64) ([]models.LocationRecord, error) {
	opts := options.Find().SetSort(bson.D{{Key: "timestamp", Value: -1}})
	if limit > 0 {
		opts = opts.SetLimit(limit)
	}
	cursor, err := m.Locations.Find(ctx, bson.M{"vehicle_id": vehicleID}, opts)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)
	var out []models.LocationRecord
	if err := cursor.All(ctx, &out); err != nil {
		return nil, err
	}
	return out, nil
}
