package config

import (
	"flag"
	"fmt"
)

const HelpMessage = `
bustrack - campus bus tracking relay

Usage:
  tracker [flags]

Flags:
  -config-path string   Path to the config yaml file (default "config.yaml")
  -help                 Show this message

Environment:
  SERVER_PORT        HTTP/WebSocket port          (default 3000)
  DATABASE_HOST      PostgreSQL host              (default localhost)
  DATABASE_PORT      PostgreSQL port              (default 5432)
  RABBITMQ_ENABLED   Publish the event feed       (default false)
  FLEET_BUSES        Comma-separated bus IDs      (default BUS_01,BUS_02)
  LOG_LEVEL          DEBUG, INFO, WARN or ERROR   (default INFO)
`

func PrintHelp() {
	if HelpMessage != "" {
		fmt.Printf("%s", HelpMessage)
	} else {
		flag.Usage()
	}
}

// PrintConfig prints the effective configuration, secrets excluded.
func PrintConfig(cfg *Config) {
	fmt.Printf("server port:   %s\n", cfg.Server.Port)
	fmt.Printf("database:      %s:%s/%s\n", cfg.Database.Host, cfg.Database.Port, cfg.Database.Database)
	fmt.Printf("rabbit feed:   enabled=%t host=%s:%s\n", cfg.RabbitMQ.Enabled, cfg.RabbitMQ.Host, cfg.RabbitMQ.Port)
	fmt.Printf("fleet:         %v\n", cfg.Fleet.BusIDs())
	fmt.Printf("log level:     %s\n", cfg.Log.Level)
}
