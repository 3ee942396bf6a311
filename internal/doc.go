// Package internal documents the proof-of-play server internals.
//
// The internal tree is organized by responsibility:
// - api: HTTP handlers, middleware, problem responses, and routing
// - domain: the submission/play-event model and its validation
// - ingest: the authenticate-and-store core
// - storage: tenant registry and play-event persistence (Postgres)
// - config, metrics, telemetry: shared infrastructure
//
// Code in internal/ is not meant for external import.
package internal
