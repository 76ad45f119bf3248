// Package recorder persists subscription events to PostgreSQL.
//
// Events are read from a buffer, batched, and inserted into the
// subscription_events table with append-only semantics. Event ids are
// assigned on receipt, so replays of the same batch are ignored by the
// primary key.
package recorder
