// Package dedup remembers correlation ids that were recently settled
// locally (timed out, torn down or abandoned) so a response arriving
// after the fact can be recognized as late rather than unknown.
//
// Entries expire after a TTL and the cache is bounded; the oldest entry
// is evicted first.
package dedup
