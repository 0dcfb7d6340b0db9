package config

import (
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	log "github.com/sirupsen/logrus"
	"gopkg.in/yaml.v2"
)

// Settings holds the server configuration. Values come from an optional
// YAML file; environment variables (optionally loaded from .env) override
// the file.
type Settings struct {
	TCPAddr        string `yaml:"tcp_addr"`
	UDPAddr        string `yaml:"udp_addr"`
	ConnTTLSeconds int    `yaml:"conn_ttl"`

	MongoURI      string `yaml:"mongo_uri"`
	MongoDatabase string `yaml:"mongo_database"`

	JWTSecret         string `yaml:"jwt_secret"`
	SessionTTLMinutes int    `yaml:"session_ttl_minutes"`

	MQTTBroker   string `yaml:"mqtt_broker"`
	MQTTClientID string `yaml:"mqtt_client_id"`
	MQTTTopic    string `yaml:"mqtt_topic"`

	JanitorSpec string `yaml:"janitor_spec"`

	LogLevel      string `yaml:"log_level"`
	LogFilePath   string `yaml:"log_file_path"`
	LogMaxAgeDays int    `yaml:"log_max_age_days"`
}

// Load reads settings from the YAML file at path (skipped when empty) and
// applies environment overrides.
func Load(path string) (Settings, error) {
	// A missing .env is fine; the environment may be set directly.
	_ = godotenv.Load()

	s := Settings{
		TCPAddr:           ":8000",
		UDPAddr:           ":8001",
		MongoDatabase:     "transit",
		SessionTTLMinutes: 60,
		MQTTClientID:      "transit-server",
		MQTTTopic:         "transit/vehicles",
		JanitorSpec:       "@every 30s",
		LogLevel:          "INFO",
		LogMaxAgeDays:     30,
	}

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return s, err
		}
		if err := yaml.Unmarshal(data, &s); err != nil {
			return s, err
		}
	}

	overrideString(&s.TCPAddr, "TCP_ADDR")
	overrideString(&s.UDPAddr, "UDP_ADDR")
	overrideInt(&s.ConnTTLSeconds, "CONN_TTL")
	overrideString(&s.MongoURI, "MONGO_URI")
	overrideString(&s.MongoDatabase, "MONGO_DB")
	overrideString(&s.JWTSecret, "JWT_SECRET")
	overrideInt(&s.SessionTTLMinutes, "SESSION_TTL_MINUTES")
	overrideString(&s.MQTTBroker, "MQTT_BROKER")
	overrideString(&s.MQTTClientID, "MQTT_CLIENT_ID")
	overrideString(&s.MQTTTopic, "MQTT_TOPIC")
	overrideString(&s.JanitorSpec, "JANITOR_SPEC")
	overrideString(&s.LogLevel, "LOG_LEVEL")
	overrideString(&s.LogFilePath, "LOG_FILE_PATH")

	return s, nil
}

func overrideString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func overrideInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

// ConnTTL returns the per-read deadline for command connections.
func (s *Settings) ConnTTL() time.Duration {
	return time.Duration(s.ConnTTLSeconds) * time.Second
}

// SessionTTL returns how long issued sessions stay valid.
func (s *Settings) SessionTTL() time.Duration {
	return time.Duration(s.SessionTTLMinutes) * time.Minute
}

// GetLogLevel maps the configured level name onto a logrus level.
func (s *Settings) GetLogLevel() log.Level {
	switch s.LogLevel {
	case "DEBUG":
		return log.DebugLevel
	case "INFO":
		return log.InfoLevel
	case "WARN":
		return log.WarnLevel
	case "ERROR":
		return log.ErrorLevel
	}
	return log.InfoLevel
}
