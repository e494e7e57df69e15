// Package api implements the HTTP interface of the sensorhub service.
//
// This package provides:
//   - Payload upload (CSV or JSON, multipart or raw body) into the ingest writer
//   - Read endpoints for devices, categories and per-category series
//   - Health and Prometheus metrics endpoints
//   - Middleware stack (request ID, logging, recovery, CORS, body limit, metrics)
//
// Every route is served both at the root and under /api/v1. The root paths
// keep existing dashboards and upload scripts working; new clients should
// use the versioned prefix.
//
// # Errors
//
// Failures are returned as JSON {"status","code","message"}. Malformed
// payloads, unsupported file types and missing parameters are 400, payloads
// over api.max_upload_bytes are 413, storage failures are 500.
//
// # Authentication
//
// None. The service is deployed behind the gateway that authenticates users.
package api
