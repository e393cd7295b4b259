package learning_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/course-ledger/learning"
	"github.com/warp/course-ledger/ledger"
)

func TestOpenAccount_WelcomeBonus(t *testing.T) {
	eachStore(t, func(t *testing.T, s testStore) {
		ctx := context.Background()
		engine := newEngine(s)

		u, err := engine.OpenAccount(ctx, ledger.User{Email: "New@Example.com", FullName: "Newcomer", Role: ledger.RoleBoth}, 500)
		require.NoError(t, err)
		assert.NotZero(t, u.ID)
		assert.Equal(t, ledger.Points(500), u.Points)
		assert.Equal(t, "new@example.com", u.Email)

		assert.Equal(t, ledger.Points(500), balance(t, s, u.ID))
		txs := history(t, s, u.ID)
		require.Len(t, txs, 1)
		assert.Equal(t, ledger.KindBonus, txs[0].Kind)
		assert.Equal(t, learning.WelcomeBonusDescription, txs[0].Description)
		assert.Nil(t, txs[0].ReferenceID)

		_, err = engine.OpenAccount(ctx, ledger.User{Email: "new@example.com"}, 500)
		assert.ErrorIs(t, err, ledger.ErrDuplicateEmail)
	})
}

func TestOpenAccount_NoBonus(t *testing.T) {
	eachStore(t, func(t *testing.T, s testStore) {
		u, err := newEngine(s).OpenAccount(context.Background(), ledger.User{Email: "zero@example.com", Points: 999}, 0)
		require.NoError(t, err)
		assert.Equal(t, ledger.Points(0), balance(t, s, u.ID))
		assert.Empty(t, history(t, s, u.ID))
	})
}

func TestOpenAccount_StoreWithoutWriter(t *testing.T) {
	// The failure-injection wrapper hides CatalogWriter inside WithTx.
	s := &failingStore{testStore: newMemoryStore(t)}

	_, err := newEngine(s).OpenAccount(context.Background(), ledger.User{Email: "x@example.com"}, 10)
	require.Error(t, err)
	assert.ErrorIs(t, err, ledger.ErrStoreRequired)
	assert.True(t, ledger.IsInternal(err))
}

func TestGrantBonus(t *testing.T) {
	eachStore(t, func(t *testing.T, s testStore) {
		ctx := context.Background()
		engine := newEngine(s)
		userID := createUser(t, s, "bonus@example.com", 20)

		bal, err := engine.GrantBonus(ctx, userID, 30, "Contest winner")
		require.NoError(t, err)
		assert.Equal(t, ledger.Points(50), bal)

		txs := history(t, s, userID)
		require.Len(t, txs, 1)
		assert.Equal(t, "Contest winner", txs[0].Description)

		_, err = engine.GrantBonus(ctx, userID, 0, "")
		assert.ErrorIs(t, err, ledger.ErrInvalidArgument)

		_, err = engine.GrantBonus(ctx, userID+99, 10, "")
		assert.ErrorIs(t, err, ledger.ErrUserNotFound)
	})
}
