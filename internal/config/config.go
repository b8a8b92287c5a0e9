package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"heroes/internal/logging"
	"heroes/internal/storage"
)

// --------------------------------------------------------------------------
// Server configuration struct
// --------------------------------------------------------------------------

// Config holds everything the server process needs.
type Config struct {
	// HTTP api settings
	Endpoint        string
	ShutdownTimeout time.Duration

	// Record store
	StoreDriver     string
	DataFile        string
	CreateIfMissing bool

	// Mutation service
	JournalPath         string
	DefaultUniverse     string
	EnqueueTimeout      time.Duration
	MaxPendingMutations int

	// Logging configuration
	LogLevel string
}

// Validate reports the first invalid setting.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.Endpoint) == "" {
		return errors.New("endpoint must not be empty")
	}
	if strings.TrimSpace(c.DataFile) == "" {
		return errors.New("data file must not be empty")
	}
	switch c.StoreDriver {
	case storage.DriverJSON, storage.DriverSQLite:
	default:
		return fmt.Errorf("invalid store %q (expected %s or %s)", c.StoreDriver, storage.DriverJSON, storage.DriverSQLite)
	}
	if c.EnqueueTimeout <= 0 {
		return fmt.Errorf("enqueue timeout must be positive, got %s", c.EnqueueTimeout)
	}
	if c.MaxPendingMutations <= 0 {
		return fmt.Errorf("max pending mutations must be positive, got %d", c.MaxPendingMutations)
	}
	if _, err := logging.ParseLevel(c.LogLevel); err != nil {
		return err
	}
	return nil
}

// String returns a formatted string representation of the configuration
func (c *Config) String() string {
	var sb strings.Builder

	addSection := func(title string) {
		sb.WriteString("\n")
		sb.WriteString(fmt.Sprintf("%s\n", strings.ToUpper(title)))
	}

	addField := func(name, value string) {
		sb.WriteString(fmt.Sprintf("  %-22s: %s\n", name, value))
	}

	addSection("HTTP Server")
	addField("Endpoint", c.Endpoint)
	addField("Shutdown Timeout", c.ShutdownTimeout.String())

	addSection("Storage")
	addField("Store", c.StoreDriver)
	addField("Data File", c.DataFile)
	addField("Create If Missing", fmt.Sprintf("%t", c.CreateIfMissing))

	addSection("Mutations")
	journal := c.JournalPath
	if journal == "" {
		journal = "(disabled)"
	}
	addField("Journal", journal)
	addField("Default Universe", c.DefaultUniverse)
	addField("Enqueue Timeout", c.EnqueueTimeout.String())
	addField("Max Pending", fmt.Sprintf("%d", c.MaxPendingMutations))

	addSection("Logging")
	addField("Log Level", c.LogLevel)

	return sb.String()
}
