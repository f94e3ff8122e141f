package db

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"

	"litmus/internal/types"
)

// UserSubscriptionRepo writes webhook results onto the users table.
//
// Every write is guarded by last_subscription_event_at: a row is only touched
// when its stored event time is NULL or not newer than the incoming event.
// Equal timestamps are applied so a redelivered event is an idempotent no-op.
type UserSubscriptionRepo struct {
	db     DBTX
	logger *slog.Logger
}

// NewUserSubscriptionRepo creates a repository on the given pool or transaction.
func NewUserSubscriptionRepo(db DBTX, logger *slog.Logger) *UserSubscriptionRepo {
	if logger == nil {
		logger = slog.Default()
	}
	return &UserSubscriptionRepo{db: db, logger: logger}
}

const eventGuard = `(last_subscription_event_at IS NULL OR last_subscription_event_at <= $1)`

// FindByEmail looks a user up by case-insensitive email.
func (r *UserSubscriptionRepo) FindByEmail(ctx context.Context, email string) (*types.UserSubscriptionRecord, error) {
	var (
		rec    types.UserSubscriptionRecord
		tier   *string
		custID *string
		status *string
	)
	err := r.db.QueryRow(ctx,
		`SELECT id, email, subscription_tier, stripe_customer_id, stripe_subscription_id,
		        subscription_status, last_subscription_event_at, updated_at
		 FROM users
		 WHERE lower(email) = lower($1)
		 LIMIT 1`,
		email,
	).Scan(
		&rec.UserID,
		&rec.Email,
		&tier,
		&custID,
		&rec.StripeSubscriptionID,
		&status,
		&rec.LastSubscriptionEventAt,
		&rec.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, types.NewAppError(types.ErrCodeNotFoundUser, "no user with this email", nil)
	}
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to find user by email", err)
	}

	rec.SubscriptionTier = types.PlanFree
	if tier != nil {
		rec.SubscriptionTier = types.PlanID(*tier)
	}
	if custID != nil {
		rec.StripeCustomerID = *custID
	}
	if status != nil {
		rec.SubscriptionStatus = types.SubscriptionStatus(*status)
	}
	return &rec, nil
}

// ActivateSubscription records a completed checkout on the user row.
func (r *UserSubscriptionRepo) ActivateSubscription(ctx context.Context, userID string, a types.SubscriptionActivation) (bool, error) {
	var subID *string
	if a.SubscriptionID != "" {
		subID = &a.SubscriptionID
	}
	tag, err := r.db.Exec(ctx,
		`UPDATE users
		 SET subscription_tier = $2,
		     stripe_customer_id = $3,
		     stripe_subscription_id = $4,
		     subscription_status = $5,
		     last_subscription_event_at = $1,
		     updated_at = NOW()
		 WHERE id = $6
		   AND `+eventGuard,
		a.EventAt.UTC(),
		a.Tier,
		a.CustomerID,
		subID,
		types.SubStatusActive,
		userID,
	)
	if err != nil {
		return false, types.NewAppError(types.ErrCodeInternalDB, "failed to activate subscription", err)
	}
	return r.applied(ctx, tag.RowsAffected(), "activate", "user_id", userID, a.EventAt), nil
}

// UpdateSubscriptionStatus sets the status of the user holding subscriptionID.
func (r *UserSubscriptionRepo) UpdateSubscriptionStatus(ctx context.Context, subscriptionID string, status types.SubscriptionStatus, eventAt time.Time) (bool, error) {
	tag, err := r.db.Exec(ctx,
		`UPDATE users
		 SET subscription_status = $2,
		     last_subscription_event_at = $1,
		     updated_at = NOW()
		 WHERE stripe_subscription_id = $3
		   AND `+eventGuard,
		eventAt.UTC(),
		status,
		subscriptionID,
	)
	if err != nil {
		return false, types.NewAppError(types.ErrCodeInternalDB, "failed to update subscription status", err)
	}
	return r.applied(ctx, tag.RowsAffected(), "update_status", "subscription_id", subscriptionID, eventAt), nil
}

// CancelSubscription downgrades the user holding subscriptionID to the free
// tier and clears the subscription id. The row itself is kept.
func (r *UserSubscriptionRepo) CancelSubscription(ctx context.Context, subscriptionID string, eventAt time.Time) (bool, error) {
	tag, err := r.db.Exec(ctx,
		`UPDATE users
		 SET subscription_tier = $2,
		     subscription_status = $3,
		     stripe_subscription_id = NULL,
		     last_subscription_event_at = $1,
		     updated_at = NOW()
		 WHERE stripe_subscription_id = $4
		   AND `+eventGuard,
		eventAt.UTC(),
		types.PlanFree,
		types.SubStatusCancelled,
		subscriptionID,
	)
	if err != nil {
		return false, types.NewAppError(types.ErrCodeInternalDB, "failed to cancel subscription", err)
	}
	return r.applied(ctx, tag.RowsAffected(), "cancel", "subscription_id", subscriptionID, eventAt), nil
}

// Ping runs a trivial query for health checks.
func (r *UserSubscriptionRepo) Ping(ctx context.Context) error {
	var one int
	if err := r.db.QueryRow(ctx, `SELECT 1`).Scan(&one); err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "database ping failed", err)
	}
	return nil
}

// applied logs writes that matched no row: either the event is older than
// the stored one or nothing carries the key.
func (r *UserSubscriptionRepo) applied(ctx context.Context, rows int64, op, keyName, key string, eventAt time.Time) bool {
	if rows > 0 {
		return true
	}
	r.logger.InfoContext(ctx, "subscription write skipped (stale event or no matching user)",
		slog.String("operation", op),
		slog.String(keyName, key),
		slog.Time("event_at", eventAt),
	)
	return false
}
