package billing

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/movesage/movesage/pkg/pg"
)

// PostgresStores implements SubscriptionStore and CustomerStore on top of a
// pgx connection pool.
//
// Expected schema:
//
//	CREATE TABLE subscriptions (
//	    id                       uuid PRIMARY KEY DEFAULT gen_random_uuid(),
//	    user_id                  uuid NOT NULL UNIQUE,
//	    plan_type                text NOT NULL,
//	    status                   text NOT NULL,
//	    start_date               timestamptz NOT NULL,
//	    end_date                 timestamptz NOT NULL,
//	    provider_customer_id     text NOT NULL DEFAULT '',
//	    provider_subscription_id text NOT NULL DEFAULT '',
//	    provider_price_id        text NOT NULL DEFAULT '',
//	    created_at               timestamptz NOT NULL DEFAULT now(),
//	    updated_at               timestamptz NOT NULL DEFAULT now()
//	);
//
//	CREATE TABLE billing_customers (
//	    user_id              uuid PRIMARY KEY,
//	    provider_customer_id text NOT NULL,
//	    created_at           timestamptz NOT NULL DEFAULT now()
//	);
//
// The uniqueness constraint on user_id is what makes UpsertByUser atomic:
// concurrent verifications for the same user collapse into one row instead
// of racing a read-then-write pair.
type PostgresStores struct {
	pool *pgxpool.Pool
}

// NewPostgresStores creates Postgres-backed billing stores.
func NewPostgresStores(pool *pgxpool.Pool) *PostgresStores {
	if pool == nil {
		panic("billing: pgx pool is required")
	}
	return &PostgresStores{pool: pool}
}

const subscriptionColumns = `id, user_id, plan_type, status, start_date, end_date,
	provider_customer_id, provider_subscription_id, provider_price_id, created_at, updated_at`

func (s *PostgresStores) FindActiveByUser(ctx context.Context, userID uuid.UUID) (*Subscription, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT `+subscriptionColumns+`
		FROM subscriptions
		WHERE user_id = $1 AND status = $2`,
		userID, string(StatusActive))
	return scanSubscription(row)
}

func (s *PostgresStores) FindOwnedByProviderSubscriptionID(ctx context.Context, providerSubID string, userID uuid.UUID) (*Subscription, error) {
	if providerSubID == "" {
		return nil, ErrSubscriptionNotFound
	}
	row := s.pool.QueryRow(ctx, `
		SELECT `+subscriptionColumns+`
		FROM subscriptions
		WHERE provider_subscription_id = $1 AND user_id = $2`,
		providerSubID, userID)
	return scanSubscription(row)
}

func (s *PostgresStores) FindByProviderCustomerID(ctx context.Context, providerCustomerID string) (*Subscription, error) {
	if providerCustomerID == "" {
		return nil, ErrSubscriptionNotFound
	}
	row := s.pool.QueryRow(ctx, `
		SELECT `+subscriptionColumns+`
		FROM subscriptions
		WHERE provider_customer_id = $1
		ORDER BY updated_at DESC
		LIMIT 1`,
		providerCustomerID)
	return scanSubscription(row)
}

func (s *PostgresStores) UpsertByUser(ctx context.Context, sub *Subscription) error {
	row := s.pool.QueryRow(ctx, `
		INSERT INTO subscriptions (
			user_id, plan_type, status, start_date, end_date,
			provider_customer_id, provider_subscription_id, provider_price_id
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (user_id) DO UPDATE SET
			plan_type                = EXCLUDED.plan_type,
			status                   = EXCLUDED.status,
			start_date               = EXCLUDED.start_date,
			end_date                 = EXCLUDED.end_date,
			provider_customer_id     = EXCLUDED.provider_customer_id,
			provider_subscription_id = EXCLUDED.provider_subscription_id,
			provider_price_id        = EXCLUDED.provider_price_id,
			updated_at               = now()
		RETURNING id, created_at, updated_at`,
		sub.UserID, string(sub.PlanType), string(sub.Status), sub.StartDate, sub.EndDate,
		sub.ProviderCustomerID, sub.ProviderSubscriptionID, sub.ProviderPriceID)

	if err := row.Scan(&sub.ID, &sub.CreatedAt, &sub.UpdatedAt); err != nil {
		return fmt.Errorf("upsert subscription: %w", err)
	}
	return nil
}

func (s *PostgresStores) UpdateByProviderSubscriptionID(ctx context.Context, providerSubID string, upd SubscriptionUpdate) error {
	if providerSubID == "" {
		return ErrSubscriptionNotFound
	}

	tag, err := s.pool.Exec(ctx, `
		UPDATE subscriptions SET
			plan_type                = COALESCE($2, plan_type),
			status                   = COALESCE($3, status),
			start_date               = COALESCE($4, start_date),
			end_date                 = COALESCE($5, end_date),
			provider_customer_id     = COALESCE($6, provider_customer_id),
			provider_subscription_id = COALESCE($7, provider_subscription_id),
			provider_price_id        = COALESCE($8, provider_price_id),
			updated_at               = now()
		WHERE provider_subscription_id = $1`,
		providerSubID,
		(*string)(upd.PlanType),
		(*string)(upd.Status),
		upd.StartDate,
		upd.EndDate,
		upd.ProviderCustomerID,
		upd.ProviderSubscriptionID,
		upd.ProviderPriceID)
	if err != nil {
		return fmt.Errorf("update subscription: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrSubscriptionNotFound
	}
	return nil
}

// Insert refuses to replace an active subscription but takes over the row of
// a lapsed one, since rows are never deleted. The conditional DO UPDATE
// returns nothing when the existing row is still active, which surfaces as
// ErrSubscriptionAlreadyExists.
func (s *PostgresStores) Insert(ctx context.Context, sub *Subscription) error {
	row := s.pool.QueryRow(ctx, `
		INSERT INTO subscriptions (
			user_id, plan_type, status, start_date, end_date,
			provider_customer_id, provider_subscription_id, provider_price_id
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (user_id) DO UPDATE SET
			plan_type                = EXCLUDED.plan_type,
			status                   = EXCLUDED.status,
			start_date               = EXCLUDED.start_date,
			end_date                 = EXCLUDED.end_date,
			provider_customer_id     = EXCLUDED.provider_customer_id,
			provider_subscription_id = EXCLUDED.provider_subscription_id,
			provider_price_id        = EXCLUDED.provider_price_id,
			updated_at               = now()
		WHERE subscriptions.status <> $9
		RETURNING id, created_at, updated_at`,
		sub.UserID, string(sub.PlanType), string(sub.Status), sub.StartDate, sub.EndDate,
		sub.ProviderCustomerID, sub.ProviderSubscriptionID, sub.ProviderPriceID,
		string(StatusActive))

	if err := row.Scan(&sub.ID, &sub.CreatedAt, &sub.UpdatedAt); err != nil {
		if pg.IsNotFoundError(err) {
			return ErrSubscriptionAlreadyExists
		}
		return fmt.Errorf("insert subscription: %w", err)
	}
	return nil
}

func (s *PostgresStores) GetProviderCustomerID(ctx context.Context, userID uuid.UUID) (string, error) {
	var customerID string
	err := s.pool.QueryRow(ctx, `
		SELECT provider_customer_id
		FROM billing_customers
		WHERE user_id = $1`,
		userID).Scan(&customerID)
	if pg.IsNotFoundError(err) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("get provider customer: %w", err)
	}
	return customerID, nil
}

func (s *PostgresStores) SetProviderCustomerID(ctx context.Context, userID uuid.UUID, providerCustomerID string) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO billing_customers (user_id, provider_customer_id)
		VALUES ($1, $2)
		ON CONFLICT (user_id) DO UPDATE SET
			provider_customer_id = EXCLUDED.provider_customer_id`,
		userID, providerCustomerID)
	if err != nil {
		return fmt.Errorf("set provider customer: %w", err)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSubscription(row rowScanner) (*Subscription, error) {
	var (
		sub              Subscription
		planType, status string
	)
	err := row.Scan(
		&sub.ID, &sub.UserID, &planType, &status, &sub.StartDate, &sub.EndDate,
		&sub.ProviderCustomerID, &sub.ProviderSubscriptionID, &sub.ProviderPriceID,
		&sub.CreatedAt, &sub.UpdatedAt)
	if pg.IsNotFoundError(err) {
		return nil, ErrSubscriptionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan subscription: %w", err)
	}
	sub.PlanType = PlanType(planType)
	sub.Status = Status(status)
	return &sub, nil
}
