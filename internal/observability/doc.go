// Package observability provides structured logging and metrics
// for the dataset search API.
//
// This package implements:
//   - Structured logging (zap-based), JSON or console encoded
//   - Prometheus metrics for identity provider fetches, token
//     verification, authorization decisions and HTTP traffic
package observability
