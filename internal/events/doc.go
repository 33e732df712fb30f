// Package events provides typed in-memory topics used by the bridge
// components to publish lifecycle, health and update events.
//
// Each component exposes a fixed set of Topic values, one per event type,
// with a concrete payload type:
//
//	connected, id := mgr.Events().Connected.Subscribe(ctx)
//	defer mgr.Events().Connected.Unsubscribe(id)
//
// Delivery is non-blocking: a subscriber whose buffer is full misses the
// event and the drop is counted.
package events
