// Package common provides the configuration, logging and tracing setup shared by
// all srvcoord commands.
//
//   - ClientConfig: store connection and lock settings, validated with struct tags
//   - InitLoggers: installs a dragonboat logger factory writing "LEVEL | pkg | message" lines to stderr
//   - InitTracer: installs an OpenTelemetry tracer provider that prints spans
package common
