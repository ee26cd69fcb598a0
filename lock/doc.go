// Package lock serializes work per (operation, subject) inside one process.
//
// Strict never waits: a second caller for a held subject gets a concurrency
// conflict error, or the fallback value with StrictOr. Loose polls until the
// subject is free or the configured timeout elapses.
//
//	locks := lock.NewManager(lock.DefaultConfig())
//	err := locks.Strict(ctx, lock.ClaimBonus, strconv.FormatInt(userID, 10), func(ctx context.Context) error {
//		return claim(ctx, userID)
//	})
//
// Slots are not shared across processes.
package lock
