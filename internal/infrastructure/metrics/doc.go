// Package metrics exposes the service's Prometheus instruments.
//
// Components receive a *Metrics and call its Record* helpers; a nil
// *Metrics disables recording. The HTTP API serves the registry at the
// configured metrics path.
package metrics
