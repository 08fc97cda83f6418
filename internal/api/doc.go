// Package api exposes the HTTP interface for the progress service. Notable routes:
//   - GET /healthz and /readyz for Kubernetes probes.
//   - GET /metrics for Prometheus scraping.
//   - POST /v1/progress/heartbeat and /v1/progress/complete for engagement
//     reports, GET /v1/progress/{node_id} for a single record.
//   - GET and POST /v1/containers/{container_id}/progress for per-container
//     summaries and combined progress writes.
//
// Every /v1 route resolves the caller through an identity.Resolver first.
package api
