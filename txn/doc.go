// Package txn scopes connection and transaction lifetimes.
//
// Every data access call takes an optional ambient connection. A nil ambient
// means "open and own a new connection"; a non-nil ambient is reused and
// left to its owner:
//
//	err := manager.WithTransaction(ctx, "app", func(ctx context.Context, conn *datasource.Conn) error {
//		if err := users.SaveTx(ctx, conn, &u); err != nil {
//			return err
//		}
//		return bonuses.SaveTx(ctx, conn, &b)
//	})
//
// WithTransaction always opens its own connection, so transactions never
// nest onto a caller's connection.
//
// Pool is the single thread connection pool used by batch runs. While it is
// enabled, WithConnection borrows one cached connection per schema and mode
// instead of opening a new one, and only releases prepared statements after
// each unit of work. The pool map is deliberately unguarded: batch runs are
// sequential, one at a time per process.
package txn
