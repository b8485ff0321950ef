// Package cli implements the logmail command tree: sending a single record
// through the configured transports, verifying mail endpoints, serving the
// HTTP ingestion API and listing the known mail service presets.
package cli
