// Package protocol defines the graphql-ws wire format used by the HUD live-data
// transport (the Apollo subscriptions-transport-ws protocol).
//
// Frames are JSON text messages of the form {"type", "id", "payload"}. The
// keep-alive frame type is "ka" rather than the protocol's long form.
package protocol
