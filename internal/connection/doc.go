// Package connection implements the Connection Manager component.
//
// The Connection Manager:
//   - Owns the single duplex websocket connection to the engine
//   - Attaches the engine credential on every dial
//   - Sends heartbeat envelopes and echoes peer heartbeats
//   - Reconnects with exponential backoff (capped at 30s) up to a maximum
//     number of attempts, then reports MaxReconnectAttemptsReached
//   - Dispatches inbound envelopes to a Handler in arrival order
//   - Rejects in-flight work through the Handler on every teardown
//
// State transitions:
//
//	disconnected → connecting → connected → disconnected (on close)
//	    → reconnecting → connecting → ...   (bounded by attempt counter)
//	any → closed                            (manual Disconnect, terminal)
package connection
