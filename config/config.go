package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/campus-transit/bustrack/pkg/configparser"
)

// Config contains all configuration variables of the application
type (
	Config struct {
		Server   ServerConfig
		Database DatabaseConfig
		RabbitMQ RabbitMQConfig
		Fleet    FleetConfig
		Log      LogConfig
	}

	ServerConfig struct {
		Port string `env:"SERVER_PORT" default:"3000"`
	}

	DatabaseConfig struct {
		Host     string `env:"DATABASE_HOST" default:"localhost"`
		Port     string `env:"DATABASE_PORT" default:"5432"`
		User     string `env:"DATABASE_USER" default:"bustrack_user"`
		Password string `env:"DATABASE_PASSWORD" default:"bustrack_pass"`
		Database string `env:"DATABASE_DATABASE" default:"bustrack_db"`

		MaxConns        int32         `env:"DATABASE_MAXCONNS" default:"20"`
		MinConns        int32         `env:"DATABASE_MINCONNS" default:"2"`
		MaxConnLifetime time.Duration `env:"DATABASE_MAXCONNLIFETIME" default:"30m"`
		MaxConnIdleTime time.Duration `env:"DATABASE_MAXCONNIDLETIME" default:"5m"`
	}

	RabbitMQConfig struct {
		// Enabled toggles the event feed. The tracker runs fine without
		// a broker; the feed is for downstream consumers only.
		Enabled  bool   `env:"RABBITMQ_ENABLED" default:"false"`
		Host     string `env:"RABBITMQ_HOST" default:"localhost"`
		Port     string `env:"RABBITMQ_PORT" default:"5672"`
		User     string `env:"RABBITMQ_USER" default:"guest"`
		Password string `env:"RABBITMQ_PASSWORD" default:"guest"`
	}

	FleetConfig struct {
		// Buses is the comma-separated list of vehicle IDs the tracker
		// serves. Events for any other ID are rejected.
		Buses string `env:"FLEET_BUSES" default:"BUS_01,BUS_02"`
	}

	LogConfig struct {
		Level string `env:"LOG_LEVEL" default:"INFO"`
	}
)

func (c DatabaseConfig) GetDSN() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%s/%s?sslmode=disable",
		c.User,
		c.Password,
		c.Host,
		c.Port,
		c.Database,
	)
}

func (c RabbitMQConfig) GetDSN() string {
	return fmt.Sprintf("amqp://%s:%s@%s:%s/",
		c.User,
		c.Password,
		c.Host,
		c.Port,
	)
}

// BusIDs returns the configured fleet, trimmed, in config order.
func (c FleetConfig) BusIDs() []string {
	var ids []string
	for _, raw := range strings.Split(c.Buses, ",") {
		id := strings.TrimSpace(raw)
		if id != "" {
			ids = append(ids, id)
		}
	}
	return ids
}

// Slug derives the per-bus table name prefix from a bus ID. Lowercase,
// anything outside [a-z0-9] becomes an underscore, so "BUS_01" maps to
// the bus_01_locations / bus_01_status tables.
func Slug(busID string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(busID) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
		default:
			b.WriteByte('_')
		}
	}
	return b.String()
}

func NewConfig(filepath string) (*Config, error) {
	cfg := &Config{}

	// Loading enviromental variables and parsing to config struct.
	if err := configparser.LoadAndParseYaml(filepath, cfg); err != nil {
		return nil, fmt.Errorf("failed to load and parse config: %w", err)
	}

	ids := cfg.Fleet.BusIDs()
	if len(ids) == 0 {
		return nil, fmt.Errorf("fleet is empty: FLEET_BUSES=%q", cfg.Fleet.Buses)
	}

	// Slugs name the per-bus tables, so they must be distinct.
	slugs := make(map[string]string, len(ids))
	for _, id := range ids {
		slug := Slug(id)
		if prev, ok := slugs[slug]; ok {
			return nil, fmt.Errorf("bus IDs %q and %q collide on tables %s_*", prev, id, slug)
		}
		slugs[slug] = id
	}

	return cfg, nil
}
