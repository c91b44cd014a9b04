// Package api hosts the HTTP server, middleware, and REST handlers for
// on-demand ranking. Routes:
//   - GET /healthz and /readyz for Kubernetes probes.
//   - GET /metrics for Prometheus scraping.
//   - POST /v1/rank to rank a small batch of companies synchronously.
package api
