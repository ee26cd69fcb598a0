// Package cache derives cache keys for entity classes and passes cached
// values through to a key-value Store.
//
// Every entity class owns a pair of timestamps stored under
// "Class:timestamps". Single entity keys embed the global timestamp:
//
//	User:42:1718000000000
//
// query keys embed both:
//
//	User:list:offset=0,limit=50,q=x1c0ffee,name=x9a1b:1718000000000:1718000000123
//
// Bumping the global timestamp makes every key of the class unreachable;
// bumping the collection timestamp only affects query keys. Old entries are
// never deleted, they age out through the store TTL.
//
// Query parameters are serialized in declaration order. Times become epoch
// milliseconds, numbers are kept as they are and any other value is reduced
// to its xxhash, so two different values may in rare cases share a key.
//
// # Stores
//
// NewStore builds an in-process sturdyc store, a Redis store guarded by a
// circuit breaker, or a disabled store when Config.Enabled is false. Set,
// Get and Remove on a disabled cache fail with a cache disabled error;
// GetOrLoad skips the cache instead.
//
//	ec, err := cache.NewFromConfig(cache.DefaultConfig())
//	key, err := ec.EntityKey(ctx, "User", 42)
//	user, err := cache.GetOrLoad(ctx, ec, "User", key, loadUser)
package cache
