package ledger

import "context"

//go:generate mockgen -destination=../learning/mock_cache_test.go -package=learning_test . BalanceCache

// BalanceCache is a read-through cache in front of LedgerStore.Balance.
// Entries are invalidated after every committed mutation; a stale or
// unavailable cache must never affect correctness of writes.
//
// Every user has a generation that Invalidate advances. A reader takes the
// generation before it reads the store and hands it to Set, which drops the
// value if an invalidation landed in between.
type BalanceCache interface {
	// Get reports ok=false on a miss.
	Get(ctx context.Context, userID UserID) (points Points, ok bool, err error)
	Generation(ctx context.Context, userID UserID) (uint64, error)
	// Set stores points only while the user's generation still equals gen.
	Set(ctx context.Context, userID UserID, points Points, gen uint64) error
	Invalidate(ctx context.Context, userID UserID) error
}

// NopCache disables caching.
type NopCache struct{}

func (NopCache) Get(context.Context, UserID) (Points, bool, error)  { return 0, false, nil }
func (NopCache) Generation(context.Context, UserID) (uint64, error) { return 0, nil }
func (NopCache) Set(context.Context, UserID, Points, uint64) error  { return nil }
func (NopCache) Invalidate(context.Context, UserID) error           { return nil }
