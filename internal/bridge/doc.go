// Package bridge is the single entry point for talking to the engine.
//
// A Client owns the duplex connection, the request correlator, the REST
// fallback and the health monitor. Each typed operation goes over the
// duplex channel when it is open and over REST otherwise; callers see
// the same results and the same error kinds either way.
package bridge
