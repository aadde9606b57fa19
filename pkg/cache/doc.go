// Package cache provides the response cache used in front of the dog API.
//
// Three backends implement the same Store contract:
//
// - MemoryStore keeps entries in a map owned by the caller
// - RedisStore keeps entries in Redis with native key expiry
// - DatabaseStore keeps entries in the cache_entries table via gorm
//
// All of them encode values as JSON, honour a per-entry TTL and delete expired
// entries when they are read, so Get and Exists always agree.
//
// # Basic Usage
//
//	store, err := cache.New(ctx, cache.Options{
//		Backend:  "redis",
//		RedisURL: "redis://localhost:6379/0",
//	})
//	if err != nil {
//		return err
//	}
//	defer store.Close()
//
//	key := cache.BreedImageKey("Golden Retriever").String()
//	// cache:external:dog_breed:golden/retriever
//
//	if err := store.Set(ctx, key, payload, 60*time.Second); err != nil {
//		// best effort, log and continue
//	}
//
//	var resp ImageResponse
//	found, err := cache.GetJSON(ctx, store, key, &resp)
//
// # Failure Handling
//
// Backend errors are wrapped with ErrCacheUnavailable. The image service
// treats them as misses on read and ignores them on write, so a cache outage
// only costs extra upstream calls.
//
// # Metrics
//
//   - dogproxy_cache_hits_total{backend} - Cache hits
//   - dogproxy_cache_misses_total{backend} - Cache misses
//   - dogproxy_cache_errors_total{operation} - Cache operation errors
package cache
