// Package repositorycache provides a generic, cached repository over the
// data source, transaction and cache packages.
//
// A Repository[E] is built from a mapper describing the entity table, a
// transaction manager and, optionally, an entity cache:
//
//	bonuses := repositorycache.New("app", bonusMapper, txManager,
//		repositorycache.WithCache(entityCache),
//	)
//
//	b := &Bonus{UserID: 7, Amount: 10}
//	err := bonuses.Save(ctx, b)           // insert, b.ID is set
//	b, err = bonuses.Load(ctx, b.ID)      // served from cache
//	page, err := bonuses.Page(ctx, criteria.New().AndEqual("user_id", 7).Limit(20))
//
// # Caching
//
// Loads are cached under Class:id:global and queries under
// Class:method:params:global:collection (see package cache). Save writes
// the entity through to its key and bumps the collection timestamp, Remove
// evicts the key and bumps it too. SkipCollectionRefresh turns the bump off
// for entities whose lists may lag. ClearCache invalidates everything of the
// class, ClearCollectionCache only its lists.
//
// # Transactions
//
// Every method has a Tx variant taking an ambient connection:
//
//	err := bonuses.WithTransaction(ctx, func(ctx context.Context, conn *datasource.Conn) error {
//		b, err := bonuses.LoadTx(ctx, conn, id)
//		if err != nil {
//			return err
//		}
//		b.Status = "claimed"
//		return bonuses.SaveTx(ctx, conn, &b)
//	})
//
// Reads on a transactional connection skip the cache and cache updates for
// writes on it are deferred until commit; a rollback leaves the cache as it
// was.
package repositorycache
