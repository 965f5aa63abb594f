// Package types defines the canonical domain model shared by the sync
// core: users, sessions, events, and attendances.
//
// These structures mirror the wire format of the remote service (JSON,
// ISO-8601 dates) and double as the cache row shape. Each type carries a
// Validate method used by the use-case layer for local pre-validation
// before any network call.
package types
