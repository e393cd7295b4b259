package learning

import (
	"context"
	"time"

	"github.com/warp/course-ledger/ledger"
	"go.uber.org/zap"
)

// WelcomeBonusDescription labels the credit written by OpenAccount.
const WelcomeBonusDescription = "Welcome bonus - initial points"

// OpenAccount creates u with a zero balance and, when bonus > 0, credits the
// welcome bonus in the same unit. The store must implement
// ledger.CatalogWriter inside WithTx.
func (e *Engine) OpenAccount(ctx context.Context, u ledger.User, bonus ledger.Points) (*ledger.User, error) {
	const op = "open_account"
	ctx, span := e.start(ctx, op)
	defer span.End()
	defer e.metrics.observe(op, time.Now())

	if bonus < 0 {
		return nil, e.fail(span, op, ledger.ErrNonPositive, zap.Int64("bonus", int64(bonus)))
	}

	u.Points = 0
	if u.CreatedAt.IsZero() {
		u.CreatedAt = e.now()
	}
	err := e.store.WithTx(ctx, func(s ledger.Store) error {
		w, ok := s.(ledger.CatalogWriter)
		if !ok {
			return ledger.ErrStoreRequired
		}
		if err := w.CreateUser(ctx, &u); err != nil {
			return err
		}
		if bonus == 0 {
			return nil
		}

		balance, err := s.Credit(ctx, u.ID, bonus)
		if err != nil {
			return err
		}
		u.Points = balance
		return e.appendTx(ctx, s, u.ID, bonus, ledger.KindBonus, WelcomeBonusDescription, nil, u.CreatedAt)
	})
	if err != nil {
		return nil, e.fail(span, op, err, zap.String("email", u.Email))
	}

	e.metrics.succeeded(op)
	e.metrics.moved(ledger.KindBonus, bonus)
	e.logger.Info("account opened", zap.Int64("user_id", int64(u.ID)), zap.Int64("bonus", int64(bonus)))
	return &u, nil
}

// GrantBonus credits amount to userID with a bonus transaction and returns
// the new balance.
func (e *Engine) GrantBonus(ctx context.Context, userID ledger.UserID, amount ledger.Points, description string) (ledger.Points, error) {
	const op = "grant_bonus"
	ctx, span := e.start(ctx, op, userAttr(userID))
	defer span.End()
	defer e.metrics.observe(op, time.Now())

	fields := []zap.Field{zap.Int64("user_id", int64(userID)), zap.Int64("amount", int64(amount))}
	if amount <= 0 {
		return 0, e.fail(span, op, ledger.ErrNonPositive, fields...)
	}
	if description == "" {
		description = "Bonus points"
	}

	var balance ledger.Points
	err := e.store.WithTx(ctx, func(s ledger.Store) error {
		var err error
		balance, err = s.Credit(ctx, userID, amount)
		if err != nil {
			return err
		}
		return e.appendTx(ctx, s, userID, amount, ledger.KindBonus, description, nil, e.now())
	})
	if err != nil {
		return 0, e.fail(span, op, err, fields...)
	}

	e.invalidate(ctx, userID)
	e.metrics.succeeded(op)
	e.metrics.moved(ledger.KindBonus, amount)
	return balance, nil
}
