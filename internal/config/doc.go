// Package config manages user-level settings stored at ~/.neu/config.yaml.
// Values can be overridden by NEU_* environment variables. Settings decodes
// them into the typed form consumed by the update controller and daemon.
package config
