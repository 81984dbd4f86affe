// Package config handles loading and validating the Emitter client configuration.
//
// This package manages:
//   - Loading configuration from YAML files
//   - Overriding with environment variables
//   - Validation of required fields
//   - Default value handling (hosted broker, port derived from TLS, generated client ID)
//
// Security Considerations:
//   - Channel keys and MQTT passwords should be set via environment variables
//     or obtained through keygen and kept in the key store, not in the file
//   - The config file should have restricted permissions (0600)
//
// Usage:
//
//	cfg, err := config.Load("configs/emitter.yaml")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	fmt.Println(cfg.Emitter.Broker.URL())
package config
