// Package config loads the logmail YAML configuration: console logging,
// metrics and HTTP server settings, event sinks and the list of transports.
package config
