package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/n0es/Transit/internal/arbiter"
	"github.com/n0es/Transit/internal/db"
	"github.com/n0es/Transit/internal/models"
	"github.com/n0es/Transit/internal/motion"
	"github.com/n0es/Transit/internal/occupancy"
)

// beaconInterval is how often the raw position is sent over UDP,
// independently of the command-protocol status reports.
const beaconInterval = 5 * time.Second

// Client speaks the command protocol for one vehicle and beacons its raw
// position over UDP.
type Client struct {
	vehicleID string
	session   string

	mu     sync.Mutex
	conn   net.Conn
	reader *bufio.Reader
	beacon net.Conn
}

// Dial connects the TCP command channel and the UDP beacon channel.
func Dial(vehicleID, serverAddr, beaconAddr string) (*Client, error) {
	conn, err := net.Dial("tcp", serverAddr)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to %s: %w", serverAddr, err)
	}
	beacon, err := net.Dial("udp", beaconAddr)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to open beacon channel to %s: %w", beaconAddr, err)
	}
	return &Client{
		vehicleID: vehicleID,
		conn:      conn,
		reader:    bufio.NewReader(conn),
		beacon:    beacon,
	}, nil
}

// Close tears down both channels.
func (c *Client) Close() {
	c.conn.Close()
	c.beacon.Close()
}

// send writes one request frame and reads the single-line response.
func (c *Client) send(payload string) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	msg := c.vehicleID + "/" + payload + "\n"
	if _, err := c.conn.Write([]byte(msg)); err != nil {
		return "", fmt.Errorf("send failed: %w", err)
	}
	line, err := c.reader.ReadString('\n')
	if err != nil {
		return "", fmt.Errorf("receive failed: %w", err)
	}
	return strings.TrimSpace(line), nil
}

// Register establishes a session, falling back to LOGIN when the vehicle
// is already known.
func (c *Client) Register(password string) error {
	cmd := "REGISTER"
	if password != "" {
		cmd += "/" + password
	}
	response, err := c.send(cmd)
	if err != nil {
		return err
	}
	parts := strings.Split(response, "/")
	switch {
	case parts[0] == "EXISTS":
		return c.Login(password)
	case parts[0] == c.vehicleID && len(parts) > 1:
		c.session = parts[1]
		return nil
	}
	return fmt.Errorf("registration failed: %s", response)
}

// Login opens a fresh session for an already registered vehicle.
func (c *Client) Login(password string) error {
	response, err := c.send("LOGIN/" + password)
	if err != nil {
		return err
	}
	parts := strings.Split(response, "/")
	if parts[0] == c.vehicleID && len(parts) > 1 {
		c.session = parts[1]
		return nil
	}
	return fmt.Errorf("login failed: %s", response)
}

// Report sends a status report over the command channel. Best effort.
func (c *Client) Report(status models.VehicleStatus, loc models.Location) {
	payload := fmt.Sprintf("UPDATE_LOCATION/%s/%.6f/%.6f/%s", c.session, loc.Lon, loc.Lat, status)
	response, err := c.send(payload)
	if err != nil {
		log.WithError(err).WithField("vehicle_id", c.vehicleID).Warn("Status report failed")
		return
	}
	if !strings.HasPrefix(response, "OK/") {
		log.WithFields(log.Fields{
			"vehicle_id": c.vehicleID,
			"response":   response,
		}).Warn("Status report rejected")
	}
}

// Beacon sends the raw position over UDP. No acknowledgment.
func (c *Client) Beacon(loc models.Location) {
	payload := fmt.Sprintf("%s/%.6f/%.6f", c.vehicleID, loc.Lon, loc.Lat)
	if _, err := c.beacon.Write([]byte(payload)); err != nil {
		log.WithError(err).WithField("vehicle_id", c.vehicleID).Warn("Beacon send failed")
	}
}

// runVehicle drives one vehicle: session, route, motion loop, beacons.
func runVehicle(ctx context.Context, vehicleID string, store db.Store, manager *occupancy.Manager, serverAddr, beaconAddr, password string) error {
	vlog := log.WithField("vehicle_id", vehicleID)

	client, err := Dial(vehicleID, serverAddr, beaconAddr)
	if err != nil {
		return err
	}
	defer client.Close()

	if err := client.Register(password); err != nil {
		return fmt.Errorf("%s: could not establish session: %w", vehicleID, err)
	}
	vlog.Info("Session established")

	steps, err := store.FindRoute(ctx, vehicleID)
	if err != nil {
		return fmt.Errorf("%s: route load failed: %w", vehicleID, err)
	}
	route := make([]string, 0, len(steps))
	for _, step := range steps {
		route = append(route, step.PlaceID)
	}
	if len(route) == 0 {
		vlog.Info("No route found, vehicle will remain idle")
	}

	machine := motion.New(vehicleID, route, models.Location{}, store, manager, arbiter.New(store), client)

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return machine.Run(ctx) })
	g.Go(func() error {
		ticker := time.NewTicker(beaconInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return nil
			case <-ticker.C:
				client.Beacon(machine.Position())
			}
		}
	})
	return g.Wait()
}

func main() {
	_ = godotenv.Load()

	serverAddr := envOr("SERVER_ADDR", "localhost:8000")
	beaconAddr := envOr("BEACON_ADDR", "localhost:8001")
	password := os.Getenv("VEHICLE_PASSWORD")
	vehicleIDs := strings.Split(envOr("VEHICLE_IDS", "B101"), ",")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	client, err := db.ConnectMongo(ctx, os.Getenv("MONGO_URI"))
	if err != nil {
		log.Fatalf("Failed to connect to MongoDB: %v", err)
	}
	defer client.Disconnect(context.Background())
	store := db.NewMongo(client, envOr("MONGO_DB", "transit"))

	// One manager for the whole fleet: admission for all vehicles in this
	// process is serialized per place.
	manager := occupancy.NewManager(store, store)

	log.WithFields(log.Fields{
		"vehicles": vehicleIDs,
		"server":   serverAddr,
	}).Info("Starting vehicle agents")

	g, ctx := errgroup.WithContext(ctx)
	for _, id := range vehicleIDs {
		vehicleID := strings.TrimSpace(id)
		if vehicleID == "" {
			continue
		}
		g.Go(func() error {
			return runVehicle(ctx, vehicleID, store, manager, serverAddr, beaconAddr, password)
		})
	}
	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		log.Fatalf("Agent stopped: %v", err)
	}
	log.Info("All vehicles finished")
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
