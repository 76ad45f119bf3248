// Package model defines data types shared between the subscription transport
// and its consumers.
//
// Conventions:
//   - Timestamps: int64 microseconds since Unix epoch
//   - IDs: uuid.UUID for recorded events, decimal strings for transport subscription ids
//   - Payloads: raw JSON exactly as received from the server
package model
