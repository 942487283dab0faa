package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"

	"github.com/kevin07696/subscription-scheduler/internal/domain"
	"github.com/kevin07696/subscription-scheduler/internal/domain/ports"
)

const subscriptionColumns = `
	s.id, s.customer_id, s.product, s.variant_id, s.quantity, s.delivery_days,
	s.period, s.total_deliveries, s.total_amount, s.delivery_fee, s.status,
	s.cancel_reason, s.next_shipping_date, s.subscription_end_date, s.paused_at,
	s.cancelled_at, s.paid_at, s.payment_order_ref, s.payment_id, s.address,
	s.created_at, s.updated_at, c.id, c.name, c.email, c.contact`

const subscriptionFrom = `
	FROM subscriptions s
	LEFT JOIN customers c ON c.id = s.customer_id`

const orderColumns = `
	id, subscription_id, shipping_date, backend_order_id, backend_order_ref,
	status, shipping_address, billing_address, created_at, updated_at`

// Store implements ports.Store on PostgreSQL
type Store struct {
	db      ports.Database
	timeout time.Duration
}

var _ ports.Store = (*Store)(nil)

// NewStore creates a Store. timeout bounds each call; zero disables it.
func NewStore(db ports.Database, timeout time.Duration) *Store {
	return &Store{db: db, timeout: timeout}
}

func (s *Store) queryContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, s.timeout)
}

// Ping checks the database connection
func (s *Store) Ping(ctx context.Context) error {
	return s.db.Ping(ctx)
}

func (s *Store) FindDueSubscriptions(ctx context.Context, now time.Time, horizon time.Duration) ([]*domain.Subscription, error) {
	ctx, cancel := s.queryContext(ctx)
	defer cancel()

	query := `SELECT ` + subscriptionColumns + subscriptionFrom + `
		WHERE s.status = 'active'
		  AND ((s.next_shipping_date IS NOT NULL AND s.next_shipping_date <= $1)
		    OR (s.subscription_end_date IS NOT NULL AND s.subscription_end_date <= $2))
		ORDER BY s.id`

	return s.querySubscriptions(ctx, s.db, query, now.Add(horizon), now)
}

func (s *Store) GetSubscription(ctx context.Context, id string) (*domain.Subscription, error) {
	ctx, cancel := s.queryContext(ctx)
	defer cancel()

	row := s.db.QueryRow(ctx, `SELECT `+subscriptionColumns+subscriptionFrom+` WHERE s.id = $1`, id)
	sub, err := scanSubscription(row)
	if err != nil {
		return nil, dbError("get subscription", err, domain.ErrSubscriptionNotFound)
	}
	return sub, nil
}

func (s *Store) GetSubscriptionByPaymentRef(ctx context.Context, paymentOrderRef string) (*domain.Subscription, error) {
	ctx, cancel := s.queryContext(ctx)
	defer cancel()

	row := s.db.QueryRow(ctx, `SELECT `+subscriptionColumns+subscriptionFrom+` WHERE s.payment_order_ref = $1`, paymentOrderRef)
	sub, err := scanSubscription(row)
	if err != nil {
		return nil, dbError("get subscription by payment ref", err, domain.ErrSubscriptionNotFound)
	}
	return sub, nil
}

// UpdateSubscription locks the row, applies the patch and writes every mutable column back
func (s *Store) UpdateSubscription(ctx context.Context, id string, patch domain.SubscriptionPatch) (*domain.Subscription, error) {
	ctx, cancel := s.queryContext(ctx)
	defer cancel()

	var updated *domain.Subscription
	err := s.db.InTx(ctx, func(tx pgx.Tx) error {
		row := tx.QueryRow(ctx, `SELECT `+subscriptionColumns+subscriptionFrom+` WHERE s.id = $1 FOR UPDATE OF s`, id)
		sub, err := scanSubscription(row)
		if err != nil {
			return dbError("lock subscription", err, domain.ErrSubscriptionNotFound)
		}

		patch.Apply(sub, time.Now().UTC())

		_, err = tx.Exec(ctx, `
			UPDATE subscriptions SET
				status = $2,
				cancel_reason = $3,
				next_shipping_date = $4,
				subscription_end_date = $5,
				paused_at = $6,
				cancelled_at = $7,
				paid_at = $8,
				payment_id = $9,
				updated_at = $10
			WHERE id = $1`,
			sub.ID,
			string(sub.Status),
			string(sub.CancelReason),
			sub.NextShippingDate,
			sub.SubscriptionEndDate,
			sub.PausedAt,
			sub.CancelledAt,
			sub.PaidAt,
			sub.PaymentID,
			sub.UpdatedAt,
		)
		if err != nil {
			return dbError("update subscription", err, nil)
		}

		updated = sub
		return nil
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

func (s *Store) FindOrder(ctx context.Context, subscriptionID string, shippingDate time.Time) (*domain.DeliveryOrder, error) {
	ctx, cancel := s.queryContext(ctx)
	defer cancel()

	row := s.db.QueryRow(ctx,
		`SELECT `+orderColumns+` FROM delivery_orders WHERE subscription_id = $1 AND shipping_date = $2`,
		subscriptionID, shippingDate)
	order, err := scanOrder(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, dbError("find order", err, nil)
	}
	return order, nil
}

func (s *Store) GetOrderByBackendID(ctx context.Context, backendOrderID string) (*domain.DeliveryOrder, error) {
	ctx, cancel := s.queryContext(ctx)
	defer cancel()

	row := s.db.QueryRow(ctx,
		`SELECT `+orderColumns+` FROM delivery_orders WHERE backend_order_id = $1`, backendOrderID)
	order, err := scanOrder(row)
	if err != nil {
		return nil, dbError("get order by backend id", err, domain.ErrOrderNotFound)
	}
	return order, nil
}

// CreateOrder inserts the order. The unique (subscription_id, shipping_date)
// constraint turns a concurrent second insert into domain.ErrDuplicateOrder.
func (s *Store) CreateOrder(ctx context.Context, order *domain.DeliveryOrder) error {
	ctx, cancel := s.queryContext(ctx)
	defer cancel()

	shipping, err := marshalAddress(order.ShippingAddress)
	if err != nil {
		return err
	}
	billing, err := marshalAddress(order.BillingAddress)
	if err != nil {
		return err
	}

	createdAt := order.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}
	updatedAt := order.UpdatedAt
	if updatedAt.IsZero() {
		updatedAt = createdAt
	}

	_, err = s.db.Exec(ctx, `
		INSERT INTO delivery_orders (`+orderColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		order.ID,
		order.SubscriptionID,
		order.ShippingDate,
		order.BackendOrderID,
		order.BackendOrderRef,
		string(order.Status),
		shipping,
		billing,
		createdAt,
		updatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return domain.ErrDuplicateOrder
		}
		return dbError("create order", err, nil)
	}
	return nil
}

func (s *Store) UpdateOrderStatus(ctx context.Context, id string, status domain.OrderStatus, now time.Time) error {
	ctx, cancel := s.queryContext(ctx)
	defer cancel()

	tag, err := s.db.Exec(ctx,
		`UPDATE delivery_orders SET status = $2, updated_at = $3 WHERE id = $1`,
		id, string(status), now)
	if err != nil {
		return dbError("update order status", err, nil)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrOrderNotFound
	}
	return nil
}

func (s *Store) CountOrders(ctx context.Context, subscriptionID string) (int, error) {
	ctx, cancel := s.queryContext(ctx)
	defer cancel()

	var n int
	err := s.db.QueryRow(ctx,
		`SELECT count(*) FROM delivery_orders WHERE subscription_id = $1`, subscriptionID).Scan(&n)
	if err != nil {
		return 0, dbError("count orders", err, nil)
	}
	return n, nil
}

// CreateSubscription upserts the customer and inserts the subscription in one transaction
func (s *Store) CreateSubscription(ctx context.Context, sub *domain.Subscription) error {
	ctx, cancel := s.queryContext(ctx)
	defer cancel()

	return s.db.InTx(ctx, func(tx pgx.Tx) error {
		if sub.Customer != nil {
			if err := upsertCustomer(ctx, tx, *sub.Customer); err != nil {
				return err
			}
		}
		return insertSubscription(ctx, tx, sub)
	})
}

func upsertCustomer(ctx context.Context, db ports.DBTX, c domain.Customer) error {
	_, err := db.Exec(ctx, `
		INSERT INTO customers (id, name, email, contact)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (id) DO UPDATE SET name = EXCLUDED.name, email = EXCLUDED.email, contact = EXCLUDED.contact`,
		c.ID, c.Name, c.Email, c.Contact)
	if err != nil {
		return dbError("upsert customer", err, nil)
	}
	return nil
}

func insertSubscription(ctx context.Context, db ports.DBTX, sub *domain.Subscription) error {
	address, err := marshalAddress(sub.Address)
	if err != nil {
		return err
	}
	total, err := decimalToNumeric(sub.TotalAmount)
	if err != nil {
		return err
	}
	fee, err := decimalToNumeric(sub.DeliveryFee)
	if err != nil {
		return err
	}

	now := time.Now().UTC()
	createdAt := sub.CreatedAt
	if createdAt.IsZero() {
		createdAt = now
	}

	_, err = db.Exec(ctx, `
		INSERT INTO subscriptions (
			id, customer_id, product, variant_id, quantity, delivery_days,
			period, total_deliveries, total_amount, delivery_fee, status,
			cancel_reason, next_shipping_date, subscription_end_date, paused_at,
			cancelled_at, paid_at, payment_order_ref, payment_id, address,
			created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20, $21, $22)`,
		sub.ID,
		sub.CustomerID,
		sub.Product,
		sub.VariantID,
		sub.Quantity,
		sub.DeliveryDays.String(),
		sub.Period,
		sub.TotalDeliveries,
		total,
		fee,
		string(sub.Status),
		string(sub.CancelReason),
		sub.NextShippingDate,
		sub.SubscriptionEndDate,
		sub.PausedAt,
		sub.CancelledAt,
		sub.PaidAt,
		sub.PaymentOrderRef,
		sub.PaymentID,
		address,
		createdAt,
		createdAt,
	)
	if isUniqueViolation(err) {
		return domain.ErrDuplicateSubscription
	}
	if err != nil {
		return dbError("insert subscription", err, nil)
	}
	return nil
}

func (s *Store) querySubscriptions(ctx context.Context, db ports.DBTX, query string, args ...interface{}) ([]*domain.Subscription, error) {
	rows, err := db.Query(ctx, query, args...)
	if err != nil {
		return nil, dbError("query subscriptions", err, nil)
	}
	defer rows.Close()

	subs := make([]*domain.Subscription, 0)
	for rows.Next() {
		sub, err := scanSubscription(rows)
		if err != nil {
			return nil, dbError("scan subscription", err, nil)
		}
		subs = append(subs, sub)
	}
	if err := rows.Err(); err != nil {
		return nil, dbError("iterate subscriptions", err, nil)
	}
	return subs, nil
}

func scanSubscription(row pgx.Row) (*domain.Subscription, error) {
	var (
		sub                        domain.Subscription
		days, status, cancelReason string
		totalAmount, deliveryFee   pgtype.Numeric
		address                    []byte
		customer                   [4]pgtype.Text
	)

	err := row.Scan(
		&sub.ID,
		&sub.CustomerID,
		&sub.Product,
		&sub.VariantID,
		&sub.Quantity,
		&days,
		&sub.Period,
		&sub.TotalDeliveries,
		&totalAmount,
		&deliveryFee,
		&status,
		&cancelReason,
		&sub.NextShippingDate,
		&sub.SubscriptionEndDate,
		&sub.PausedAt,
		&sub.CancelledAt,
		&sub.PaidAt,
		&sub.PaymentOrderRef,
		&sub.PaymentID,
		&address,
		&sub.CreatedAt,
		&sub.UpdatedAt,
		&customer[0],
		&customer[1],
		&customer[2],
		&customer[3],
	)
	if err != nil {
		return nil, err
	}

	sub.DeliveryDays, err = domain.ParseDeliveryDays(days)
	if err != nil {
		return nil, fmt.Errorf("subscription %s: %w", sub.ID, err)
	}
	sub.Status = domain.SubscriptionStatus(status)
	sub.CancelReason = domain.CancelReason(cancelReason)

	if sub.TotalAmount, err = pgNumericToDecimal(totalAmount); err != nil {
		return nil, err
	}
	if sub.DeliveryFee, err = pgNumericToDecimal(deliveryFee); err != nil {
		return nil, err
	}
	if sub.Address, err = unmarshalAddress(address); err != nil {
		return nil, err
	}

	sub.NextShippingDate = utc(sub.NextShippingDate)
	sub.SubscriptionEndDate = utc(sub.SubscriptionEndDate)
	sub.PausedAt = utc(sub.PausedAt)
	sub.CancelledAt = utc(sub.CancelledAt)
	sub.PaidAt = utc(sub.PaidAt)
	sub.CreatedAt = sub.CreatedAt.UTC()
	sub.UpdatedAt = sub.UpdatedAt.UTC()

	if customer[0].Valid {
		sub.Customer = &domain.Customer{
			ID:      customer[0].String,
			Name:    customer[1].String,
			Email:   customer[2].String,
			Contact: customer[3].String,
		}
	}

	return &sub, nil
}

func scanOrder(row pgx.Row) (*domain.DeliveryOrder, error) {
	var (
		order             domain.DeliveryOrder
		status            string
		shipping, billing []byte
	)

	err := row.Scan(
		&order.ID,
		&order.SubscriptionID,
		&order.ShippingDate,
		&order.BackendOrderID,
		&order.BackendOrderRef,
		&status,
		&shipping,
		&billing,
		&order.CreatedAt,
		&order.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	order.Status = domain.OrderStatus(status)
	order.ShippingDate = order.ShippingDate.UTC()
	order.CreatedAt = order.CreatedAt.UTC()
	order.UpdatedAt = order.UpdatedAt.UTC()

	if order.ShippingAddress, err = unmarshalAddress(shipping); err != nil {
		return nil, err
	}
	if order.BillingAddress, err = unmarshalAddress(billing); err != nil {
		return nil, err
	}
	return &order, nil
}
