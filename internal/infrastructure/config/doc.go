// Package config handles loading and validating Clocked Core configuration.
//
// This package manages:
//   - Loading configuration from YAML files
//   - Overriding with environment variables
//   - Validation of required fields
//   - Default value handling
//
// Security Considerations:
//   - Sensitive values (JWT secret, telemetry token) should be set via environment variables
//   - The config file should have restricted permissions (0600)
//   - The JWT secret must be at least 32 characters
//
// Usage:
//
//	cfg, err := config.Load("configs/config.yaml")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	fmt.Println(cfg.Service.Name)
package config
