// Package fifo implements a bounded, generic key-value cache that evicts in
// insertion order and optionally expires entries after a cache-wide TTL.
//
// A Cache keeps two containers side by side: a map from key to entry and a
// queue of keys in first-insertion order. The map answers lookups; the queue
// only decides which key goes next when the cache is full.
//
// Expiration is lazy. Get hides entries whose TTL has passed but leaves them
// in storage; CleanupExpired is the only operation that reclaims them, and
// the cache never calls it on its own.
//
//	c := fifo.New[string, string](100, fifo.WithTTL(time.Minute))
//	c.Insert("user:123", "John Doe")
//	if v, ok := c.Get("user:123"); ok {
//		fmt.Println(v)
//	}
//	c.CleanupExpired()
//
// A Cache is not safe for concurrent use. Callers sharing one across
// goroutines must guard it, as kv.Store does.
package fifo
