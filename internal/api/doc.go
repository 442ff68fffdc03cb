// Package api hosts the HTTP server, middleware, and REST handlers for operator
// access. Notable routes:
//   - GET /healthz and /readyz for Kubernetes probes.
//   - GET /metrics for Prometheus scraping.
//   - GET /v1/incidents for the currently tracked incidents.
//   - GET /v1/status for the latest poll cycle outcome.
package api
