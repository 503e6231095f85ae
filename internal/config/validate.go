package config

import (
	"fmt"
	"strings"
)

// Validate checks cross-field rules after loading.
func (c *Config) Validate() error {
	if len(c.Auth.JWTKey) < 16 {
		return fmt.Errorf("auth.jwt_key must be at least 16 characters (got %d)", len(c.Auth.JWTKey))
	}
	if (c.Server.TLSCert == "") != (c.Server.TLSKey == "") {
		return fmt.Errorf("server.tls_cert and server.tls_key must be set together")
	}

	switch c.Collection.Backend {
	case BackendPostgres:
	case BackendFile:
		if strings.TrimSpace(c.Collection.FilePath) == "" {
			return fmt.Errorf("collection.file_path is required for the file backend")
		}
	default:
		return fmt.Errorf("collection.backend must be %q or %q (got %q)", BackendPostgres, BackendFile, c.Collection.Backend)
	}

	if c.Device.Enabled && c.Device.Baud <= 0 {
		return fmt.Errorf("device.baud must be > 0 (got %d)", c.Device.Baud)
	}
	if c.Aggregate.CategoryThreshold <= 0 || c.Aggregate.BinThreshold <= 0 {
		return fmt.Errorf("aggregate thresholds must be > 0")
	}
	if c.Limiter.MaxFails <= 0 {
		return fmt.Errorf("limiter.max_fails must be > 0 (got %d)", c.Limiter.MaxFails)
	}
	if c.MQTT.Enabled && c.MQTT.Broker == "" {
		return fmt.Errorf("mqtt.broker is required when mqtt is enabled")
	}
	return nil
}
