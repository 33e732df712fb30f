// Package model defines shared data types used across the engine bridge.
//
// Conventions:
//   - Envelope timestamps: RFC 3339 UTC strings with millisecond precision
//   - Correlation IDs: opaque strings, uuid.NewString() when generated locally
//   - Payloads: json.RawMessage, routed without interpretation
package model
