// Package transport connects pluggable log sinks to zap. A Transport receives
// individual log records; a Registry maps transport type names to factories so
// applications can build transports from configuration; NewCore adapts any
// Transport to a zapcore.Core.
package transport
