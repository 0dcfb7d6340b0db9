package publish

import (
	"encoding/json"
	"fmt"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	log "github.com/sirupsen/logrus"

	"github.com/n0es/Transit/internal/models"
)

// PositionUpdate is the payload published for every applied location
// update, consumed by the map front end.
type PositionUpdate struct {
	VehicleID string               `json:"vehicle_id"`
	Location  models.Location      `json:"location"`
	Status    models.VehicleStatus `json:"status"`
	Timestamp time.Time            `json:"timestamp"`
}

// MQTT publishes live positions to `<topic>/<vehicle_id>`.
type MQTT struct {
	client mqtt.Client
	topic  string
}

// NewMQTT connects to the broker. An empty broker address disables
// publishing (nil publisher).
func NewMQTT(broker, clientID, topic string) (*MQTT, error) {
	if broker == "" {
		return nil, nil
	}
	opts := mqtt.NewClientOptions().
		AddBroker(broker).
		SetClientID(clientID).
		SetConnectTimeout(10 * time.Second).
		SetAutoReconnect(true)
	client := mqtt.NewClient(opts)
	token := client.Connect()
	if !token.WaitTimeout(10 * time.Second) {
		return nil, fmt.Errorf("mqtt connect timed out: %s", broker)
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("mqtt connect failed: %w", err)
	}
	return &MQTT{client: client, topic: topic}, nil
}

// PublishPosition sends one update. Best effort: failures are logged and
// never propagate to the command path.
func (p *MQTT) PublishPosition(vehicleID string, loc models.Location, status models.VehicleStatus, at time.Time) {
	payload, err := json.Marshal(PositionUpdate{
		VehicleID: vehicleID,
		Location:  loc,
		Status:    status,
		Timestamp: at,
	})
	if err != nil {
		log.WithError(err).Error("Failed to marshal position update")
		return
	}
	token := p.client.Publish(p.topic+"/"+vehicleID, 0, false, payload)
	go func() {
		if token.Wait(); token.Error() != nil {
			log.WithError(token.Error()).WithField("vehicle_id", vehicleID).Warn("Position publish failed")
		}
	}()
}

// Close disconnects from the broker.
func (p *MQTT) Close() {
	if p != nil && p.client != nil {
		p.client.Disconnect(250)
	}
}
