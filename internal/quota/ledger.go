// Package quota enforces per-user, per-capability monthly usage. The
// ledger row is the only state shared between concurrent requests, so
// consumption happens in a single guarded UPDATE rather than a
// read-then-write.
package quota

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/sellerpulse/backend/pkg/logger"
)

// CapabilityRequestMessages meters assistant messages; every capability
// shares one monthly message pool.
const CapabilityRequestMessages = "request-messages"

// QuotaExceededError is a policy outcome, not an infrastructure error.
// Callers must be able to tell the two apart.
type QuotaExceededError struct {
	Used  int
	Limit int
}

func (e *QuotaExceededError) Error() string {
	return fmt.Sprintf("quota exceeded: %d of %d used", e.Used, e.Limit)
}

func IsExceeded(err error) (*QuotaExceededError, bool) {
	var qe *QuotaExceededError
	if errors.As(err, &qe) {
		return qe, true
	}
	return nil, false
}

type Ledger struct {
	db    *sql.DB
	limit int
	now   func() time.Time
}

func NewLedger(db *sql.DB, monthlyLimit int) *Ledger {
	return &Ledger{db: db, limit: monthlyLimit, now: time.Now}
}

// NewLedgerWithClock injects the clock used to derive the period key.
func NewLedgerWithClock(db *sql.DB, monthlyLimit int, now func() time.Time) *Ledger {
	return &Ledger{db: db, limit: monthlyLimit, now: now}
}

// Period returns the current ledger period, the UTC calendar month.
func (l *Ledger) Period() string {
	return l.now().UTC().Format("2006-01")
}

// Consume admits amount against the (user, capability, period) row. The
// row is created on first use; the increment is a single conditional
// UPDATE whose guard keeps used <= limit under any interleaving.
func (l *Ledger) Consume(ctx context.Context, userID, capability string, amount int) error {
	period := l.Period()

	_, err := l.db.ExecContext(ctx,
		`INSERT INTO quota_ledger (user_id, capability, period, used, quota_limit)
		VALUES (?, ?, ?, 0, ?)
		ON CONFLICT(user_id, capability, period) DO NOTHING`,
		userID, capability, period, l.limit,
	)
	if err != nil {
		return fmt.Errorf("failed to ensure ledger row: %w", err)
	}

	res, err := l.db.ExecContext(ctx,
		`UPDATE quota_ledger SET used = used + ?
		WHERE user_id = ? AND capability = ? AND period = ? AND used + ? <= quota_limit`,
		amount, userID, capability, period, amount,
	)
	if err != nil {
		return fmt.Errorf("failed to consume quota: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read rows affected: %w", err)
	}

	if affected == 0 {
		used, limit, err := l.usage(ctx, userID, capability, period)
		if err != nil {
			return fmt.Errorf("failed to read ledger after denial: %w", err)
		}
		logger.Debug("Quota denied",
			zap.String("user_id", userID),
			zap.String("capability", capability),
			zap.Int("used", used),
			zap.Int("limit", limit),
		)
		return &QuotaExceededError{Used: used, Limit: limit}
	}

	return nil
}

// Usage reports the current period's consumption for a user.
func (l *Ledger) Usage(ctx context.Context, userID, capability string) (used, limit int, err error) {
	return l.usage(ctx, userID, capability, l.Period())
}

func (l *Ledger) usage(ctx context.Context, userID, capability, period string) (int, int, error) {
	var used, limit int
	err := l.db.QueryRowContext(ctx,
		`SELECT used, quota_limit FROM quota_ledger WHERE user_id = ? AND capability = ? AND period = ?`,
		userID, capability, period,
	).Scan(&used, &limit)

	if errors.Is(err, sql.ErrNoRows) {
		return 0, l.limit, nil
	}
	if err != nil {
		return 0, 0, err
	}
	return used, limit, nil
}
