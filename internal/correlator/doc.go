// Package correlator matches agent_request envelopes with their
// agent_response by id.
//
// Each outstanding duplex request owns one pending entry holding a
// one-shot result channel and a timeout timer. An entry is removed
// exactly once: by its response, its timeout, caller cancellation, or a
// connection teardown that rejects every entry at once. When the duplex
// channel is down, requests go to the fallback transport instead and
// never create an entry.
package correlator
