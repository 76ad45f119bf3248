// Package socket implements the reconnecting WebSocket connection that the
// subscription transport runs on.
//
// A Conn keeps a single identity across reconnects: handlers installed with
// SetHandlers stay attached while the underlying WebSocket is dialed,
// dropped, refreshed and dialed again. Reconnect pacing uses exponential
// backoff starting at Config.ReconnectInterval.
package socket
