// Package config handles loading and validating BacPipes worker configuration.
//
// This package manages:
//   - Loading configuration from YAML files
//   - Overriding with environment variables
//   - Validation of required fields and value ranges
//   - Sensible defaults for optional settings
//
// # Configuration Sources
//
// Configuration is loaded in priority order (later overrides earlier):
//
//  1. Built-in defaults
//  2. YAML file (config.yaml)
//  3. Environment variables
//
// Environment variables come in two shapes: the canonical
// BACPIPES_SECTION_KEY form, and the short names the
// original container deployment exports (DB_HOST, MQTT_BROKER, BACNET_IP,
// POLL_INTERVAL, TZ, INFLUXDB_URL, ...). Only the connection, identity,
// timezone, poll-interval and logging settings listed in applyEnvOverrides
// can be set this way; the rest come from defaults and the YAML file. When
// both names are set, the canonical form wins.
//
// # Usage
//
//	cfg, err := config.Load("config.yaml")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	fmt.Println(cfg.MQTT.Broker.Host)
//
// Deployments without a YAML file use LoadFromEnv, which applies defaults
// and environment overrides only.
package config
