package db

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"litmus/internal/types"
)

// --- Mock DBTX ---

type mockDBTX struct {
	mock.Mock
}

func (m *mockDBTX) Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error) {
	args := m.Called(ctx, sql, arguments)
	return args.Get(0).(pgconn.CommandTag), args.Error(1)
}

func (m *mockDBTX) Query(ctx context.Context, sql string, arguments ...any) (pgx.Rows, error) {
	args := m.Called(ctx, sql, arguments)
	if r := args.Get(0); r != nil {
		return r.(pgx.Rows), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *mockDBTX) QueryRow(ctx context.Context, sql string, arguments ...any) pgx.Row {
	args := m.Called(ctx, sql, arguments)
	return args.Get(0).(pgx.Row)
}

// --- Mock Row ---

type mockRow struct {
	scanErr error
	scanFn  func(dest ...any) error
}

func (r *mockRow) Scan(dest ...any) error {
	if r.scanFn != nil {
		return r.scanFn(dest...)
	}
	return r.scanErr
}

func sqlContaining(parts ...string) any {
	return mock.MatchedBy(func(sql string) bool {
		for _, p := range parts {
			if !strings.Contains(sql, p) {
				return false
			}
		}
		return true
	})
}

// --- FindByEmail ---

func TestUserSubscriptionRepo_FindByEmail(t *testing.T) {
	db := new(mockDBTX)
	repo := NewUserSubscriptionRepo(db, nil)

	eventAt := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	db.On("QueryRow", mock.Anything, sqlContaining("lower(email) = lower($1)"), []any{"A@B.com"}).
		Return(&mockRow{scanFn: func(dest ...any) error {
			*dest[0].(*string) = "user_1"
			*dest[1].(*string) = "a@b.com"
			tier := "premium"
			*dest[2].(**string) = &tier
			cust := "cus_1"
			*dest[3].(**string) = &cust
			sub := "sub_1"
			*dest[4].(**string) = &sub
			status := "active"
			*dest[5].(**string) = &status
			*dest[6].(**time.Time) = &eventAt
			*dest[7].(*time.Time) = eventAt
			return nil
		}})

	rec, err := repo.FindByEmail(context.Background(), "A@B.com")
	require.NoError(t, err)
	assert.Equal(t, "user_1", rec.UserID)
	assert.Equal(t, types.PlanPremium, rec.SubscriptionTier)
	assert.Equal(t, "cus_1", rec.StripeCustomerID)
	assert.Equal(t, "sub_1", *rec.StripeSubscriptionID)
	assert.Equal(t, types.SubStatusActive, rec.SubscriptionStatus)
	assert.Equal(t, eventAt, *rec.LastSubscriptionEventAt)
	db.AssertExpectations(t)
}

func TestUserSubscriptionRepo_FindByEmail_NullColumnsDefaultToFree(t *testing.T) {
	db := new(mockDBTX)
	repo := NewUserSubscriptionRepo(db, nil)

	db.On("QueryRow", mock.Anything, mock.AnythingOfType("string"), mock.Anything).
		Return(&mockRow{scanFn: func(dest ...any) error {
			*dest[0].(*string) = "user_2"
			*dest[1].(*string) = "new@b.com"
			return nil
		}})

	rec, err := repo.FindByEmail(context.Background(), "new@b.com")
	require.NoError(t, err)
	assert.Equal(t, types.PlanFree, rec.SubscriptionTier)
	assert.Nil(t, rec.StripeSubscriptionID)
	assert.Nil(t, rec.LastSubscriptionEventAt)
}

func TestUserSubscriptionRepo_FindByEmail_Errors(t *testing.T) {
	tests := []struct {
		name    string
		scanErr error
		want    types.ErrorCode
	}{
		{"no rows", pgx.ErrNoRows, types.ErrCodeNotFoundUser},
		{"db failure", errors.New("connection reset"), types.ErrCodeInternalDB},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			db := new(mockDBTX)
			repo := NewUserSubscriptionRepo(db, nil)
			db.On("QueryRow", mock.Anything, mock.AnythingOfType("string"), mock.Anything).
				Return(&mockRow{scanErr: tt.scanErr})

			_, err := repo.FindByEmail(context.Background(), "x@y.com")
			var appErr *types.AppError
			require.True(t, errors.As(err, &appErr))
			assert.Equal(t, tt.want, appErr.Code)
		})
	}
}

// --- Writes ---

func TestUserSubscriptionRepo_ActivateSubscription(t *testing.T) {
	db := new(mockDBTX)
	repo := NewUserSubscriptionRepo(db, nil)

	eventAt := time.Unix(1735689600, 0)
	subID := "sub_1"
	db.On("Exec", mock.Anything,
		sqlContaining("SET subscription_tier = $2", "WHERE id = $6", "last_subscription_event_at <= $1"),
		[]any{eventAt.UTC(), types.PlanEnterprise, "cus_1", &subID, types.SubStatusActive, "user_1"},
	).Return(pgconn.NewCommandTag("UPDATE 1"), nil)

	applied, err := repo.ActivateSubscription(context.Background(), "user_1", types.SubscriptionActivation{
		Tier: types.PlanEnterprise, CustomerID: "cus_1", SubscriptionID: "sub_1", EventAt: eventAt,
	})
	require.NoError(t, err)
	assert.True(t, applied)
	db.AssertExpectations(t)
}

func TestUserSubscriptionRepo_CancelSubscription(t *testing.T) {
	db := new(mockDBTX)
	repo := NewUserSubscriptionRepo(db, nil)

	eventAt := time.Unix(1735689600, 0)
	db.On("Exec", mock.Anything,
		sqlContaining("stripe_subscription_id = NULL", "WHERE stripe_subscription_id = $4"),
		[]any{eventAt.UTC(), types.PlanFree, types.SubStatusCancelled, "sub_1"},
	).Return(pgconn.NewCommandTag("UPDATE 1"), nil)

	applied, err := repo.CancelSubscription(context.Background(), "sub_1", eventAt)
	require.NoError(t, err)
	assert.True(t, applied)
	db.AssertExpectations(t)
}

func TestUserSubscriptionRepo_StaleEventIsNoOp(t *testing.T) {
	db := new(mockDBTX)
	repo := NewUserSubscriptionRepo(db, nil)

	db.On("Exec", mock.Anything, mock.AnythingOfType("string"), mock.Anything).
		Return(pgconn.NewCommandTag("UPDATE 0"), nil)

	applied, err := repo.UpdateSubscriptionStatus(context.Background(), "sub_1", types.SubStatusPastDue,
		time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	assert.False(t, applied)
}

func TestUserSubscriptionRepo_WriteError(t *testing.T) {
	db := new(mockDBTX)
	repo := NewUserSubscriptionRepo(db, nil)

	db.On("Exec", mock.Anything, mock.AnythingOfType("string"), mock.Anything).
		Return(pgconn.CommandTag{}, errors.New("deadlock detected"))

	_, err := repo.UpdateSubscriptionStatus(context.Background(), "sub_1", types.SubStatusActive, time.Now())
	var appErr *types.AppError
	require.True(t, errors.As(err, &appErr))
	assert.Equal(t, types.ErrCodeInternalDB, appErr.Code)
}

func TestUserSubscriptionRepo_Ping(t *testing.T) {
	db := new(mockDBTX)
	repo := NewUserSubscriptionRepo(db, nil)

	db.On("QueryRow", mock.Anything, "SELECT 1", []any(nil)).
		Return(&mockRow{scanFn: func(dest ...any) error {
			*dest[0].(*int) = 1
			return nil
		}}).Once()
	require.NoError(t, repo.Ping(context.Background()))

	db.On("QueryRow", mock.Anything, "SELECT 1", []any(nil)).
		Return(&mockRow{scanErr: errors.New("down")}).Once()
	require.Error(t, repo.Ping(context.Background()))
}
