// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package telemetry provides Prometheus metrics for rigchat.
//
// Metrics are kept on a private registry so tests and multiple app instances
// do not collide. Nothing leaves the machine unless the user starts the
// metrics listener.
//
// # Metrics
//
//   - rigchat_model_loads_total{outcome}: ok, error, superseded
//   - rigchat_model_load_seconds: load duration histogram
//   - rigchat_generations_total{outcome}: ok, error, superseded
//   - rigchat_superseded_results_total{kind}: stale results dropped
//
// # Usage
//
//	m := telemetry.NewMetrics()
//	http.Handle("/metrics", m.Handler())
package telemetry
