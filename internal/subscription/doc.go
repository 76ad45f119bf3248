// Package subscription implements the GraphQL subscription transport used by
// the HUD to receive live data.
//
// A Transport multiplexes many logical subscriptions over one reconnecting
// socket.Conn:
//   - socket open        -> Initializing, sends connection_init
//   - connection_ack     -> Ready, replays every live start frame in subscribe order
//   - ka / data          -> rearms the keep-alive watchdog; on expiry the socket is refreshed
//   - data / error       -> routed to the matching subscription only
//   - complete           -> subscription removed, its onError told the server ended it
//   - connection_error   -> generic error handler, then the configured policy
//
// Subscription ids are decimal strings from a counter that only increases,
// so an id is never reused by the same Transport.
package subscription
