package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"github.com/kevin07696/subscription-scheduler/internal/domain"
	"github.com/kevin07696/subscription-scheduler/internal/domain/ports"
)

// timeLayout is fixed width so stored timestamps compare correctly as text
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

const subscriptionColumns = `
	s.id, s.customer_id, s.product, s.variant_id, s.quantity, s.delivery_days,
	s.period, s.total_deliveries, s.total_amount, s.delivery_fee, s.status,
	s.cancel_reason, s.next_shipping_date, s.subscription_end_date, s.paused_at,
	s.cancelled_at, s.paid_at, s.payment_order_ref, s.payment_id, s.address,
	s.created_at, s.updated_at, c.id, c.name, c.email, c.contact
	FROM subscriptions s
	LEFT JOIN customers c ON c.id = s.customer_id`

const orderColumns = `
	id, subscription_id, shipping_date, backend_order_id, backend_order_ref,
	status, shipping_address, billing_address, created_at, updated_at`

// Store implements ports.Store on SQLite
type Store struct {
	db *sql.DB
}

var _ ports.Store = (*Store)(nil)

// NewStore creates a Store on an opened and migrated database
func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

// Ping checks the database connection
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *Store) FindDueSubscriptions(ctx context.Context, now time.Time, horizon time.Duration) ([]*domain.Subscription, error) {
	return s.querySubscriptions(ctx, `SELECT `+subscriptionColumns+`
		WHERE s.status = 'active'
		  AND ((s.next_shipping_date IS NOT NULL AND s.next_shipping_date <= ?)
		    OR (s.subscription_end_date IS NOT NULL AND s.subscription_end_date <= ?))
		ORDER BY s.id`,
		formatTime(now.Add(horizon)), formatTime(now))
}

func (s *Store) GetSubscription(ctx context.Context, id string) (*domain.Subscription, error) {
	return s.getSubscription(ctx, s.db, `s.id = ?`, id)
}

func (s *Store) GetSubscriptionByPaymentRef(ctx context.Context, paymentOrderRef string) (*domain.Subscription, error) {
	return s.getSubscription(ctx, s.db, `s.payment_order_ref = ?`, paymentOrderRef)
}

// UpdateSubscription reads, patches and rewrites the row inside one transaction
func (s *Store) UpdateSubscription(ctx context.Context, id string, patch domain.SubscriptionPatch) (*domain.Subscription, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, dbError("begin transaction", err)
	}
	defer func() { _ = tx.Rollback() }()

	sub, err := s.getSubscription(ctx, tx, `s.id = ?`, id)
	if err != nil {
		return nil, err
	}

	patch.Apply(sub, time.Now().UTC())

	_, err = tx.ExecContext(ctx, `
		UPDATE subscriptions SET
			status = ?,
			cancel_reason = ?,
			next_shipping_date = ?,
			subscription_end_date = ?,
			paused_at = ?,
			cancelled_at = ?,
			paid_at = ?,
			payment_id = ?,
			updated_at = ?
		WHERE id = ?`,
		string(sub.Status),
		string(sub.CancelReason),
		formatTimePtr(sub.NextShippingDate),
		formatTimePtr(sub.SubscriptionEndDate),
		formatTimePtr(sub.PausedAt),
		formatTimePtr(sub.CancelledAt),
		formatTimePtr(sub.PaidAt),
		sub.PaymentID,
		formatTime(sub.UpdatedAt),
		sub.ID,
	)
	if err != nil {
		return nil, dbError("update subscription", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, dbError("commit transaction", err)
	}
	return sub, nil
}

func (s *Store) FindOrder(ctx context.Context, subscriptionID string, shippingDate time.Time) (*domain.DeliveryOrder, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+orderColumns+` FROM delivery_orders WHERE subscription_id = ? AND shipping_date = ?`,
		subscriptionID, formatTime(shippingDate))
	order, err := scanOrder(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, dbError("find order", err)
	}
	return order, nil
}

func (s *Store) GetOrderByBackendID(ctx context.Context, backendOrderID string) (*domain.DeliveryOrder, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+orderColumns+` FROM delivery_orders WHERE backend_order_id = ?`, backendOrderID)
	order, err := scanOrder(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrOrderNotFound
	}
	if err != nil {
		return nil, dbError("get order by backend id", err)
	}
	return order, nil
}

// CreateOrder inserts the order; the UNIQUE(subscription_id, shipping_date)
// constraint reports a second insert as domain.ErrDuplicateOrder
func (s *Store) CreateOrder(ctx context.Context, order *domain.DeliveryOrder) error {
	shipping, err := json.Marshal(order.ShippingAddress)
	if err != nil {
		return fmt.Errorf("marshal shipping address: %w", err)
	}
	billing, err := json.Marshal(order.BillingAddress)
	if err != nil {
		return fmt.Errorf("marshal billing address: %w", err)
	}

	createdAt := order.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}
	updatedAt := order.UpdatedAt
	if updatedAt.IsZero() {
		updatedAt = createdAt
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO delivery_orders (`+orderColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		order.ID,
		order.SubscriptionID,
		formatTime(order.ShippingDate),
		order.BackendOrderID,
		order.BackendOrderRef,
		string(order.Status),
		string(shipping),
		string(billing),
		formatTime(createdAt),
		formatTime(updatedAt),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return domain.ErrDuplicateOrder
		}
		return dbError("create order", err)
	}
	return nil
}

func (s *Store) UpdateOrderStatus(ctx context.Context, id string, status domain.OrderStatus, now time.Time) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE delivery_orders SET status = ?, updated_at = ? WHERE id = ?`,
		string(status), formatTime(now), id)
	if err != nil {
		return dbError("update order status", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return dbError("update order status", err)
	}
	if n == 0 {
		return domain.ErrOrderNotFound
	}
	return nil
}

func (s *Store) CountOrders(ctx context.Context, subscriptionID string) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT count(*) FROM delivery_orders WHERE subscription_id = ?`, subscriptionID).Scan(&n)
	if err != nil {
		return 0, dbError("count orders", err)
	}
	return n, nil
}

// CreateSubscription upserts the customer and inserts the subscription in one transaction
func (s *Store) CreateSubscription(ctx context.Context, sub *domain.Subscription) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return dbError("begin transaction", err)
	}
	defer func() { _ = tx.Rollback() }()

	if sub.Customer != nil {
		if err := upsertCustomer(ctx, tx, *sub.Customer); err != nil {
			return err
		}
	}
	if err := insertSubscription(ctx, tx, sub); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return dbError("commit subscription", err)
	}
	return nil
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func upsertCustomer(ctx context.Context, db execer, c domain.Customer) error {
	_, err := db.ExecContext(ctx, `
		INSERT INTO customers (id, name, email, contact) VALUES (?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET name = excluded.name, email = excluded.email, contact = excluded.contact`,
		c.ID, c.Name, c.Email, c.Contact)
	if err != nil {
		return dbError("upsert customer", err)
	}
	return nil
}

func insertSubscription(ctx context.Context, db execer, sub *domain.Subscription) error {
	address, err := json.Marshal(sub.Address)
	if err != nil {
		return fmt.Errorf("marshal address: %w", err)
	}

	createdAt := sub.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}

	_, err = db.ExecContext(ctx, `
		INSERT INTO subscriptions (
			id, customer_id, product, variant_id, quantity, delivery_days,
			period, total_deliveries, total_amount, delivery_fee, status,
			cancel_reason, next_shipping_date, subscription_end_date, paused_at,
			cancelled_at, paid_at, payment_order_ref, payment_id, address,
			created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		sub.ID,
		sub.CustomerID,
		sub.Product,
		sub.VariantID,
		sub.Quantity,
		sub.DeliveryDays.String(),
		sub.Period,
		sub.TotalDeliveries,
		sub.TotalAmount.String(),
		sub.DeliveryFee.String(),
		string(sub.Status),
		string(sub.CancelReason),
		formatTimePtr(sub.NextShippingDate),
		formatTimePtr(sub.SubscriptionEndDate),
		formatTimePtr(sub.PausedAt),
		formatTimePtr(sub.CancelledAt),
		formatTimePtr(sub.PaidAt),
		sub.PaymentOrderRef,
		sub.PaymentID,
		string(address),
		formatTime(createdAt),
		formatTime(createdAt),
	)
	if isUniqueViolation(err) {
		return domain.ErrDuplicateSubscription
	}
	if err != nil {
		return dbError("insert subscription", err)
	}
	return nil
}

type querier interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func (s *Store) getSubscription(ctx context.Context, q querier, where string, arg string) (*domain.Subscription, error) {
	sub, err := scanSubscription(q.QueryRowContext(ctx, `SELECT `+subscriptionColumns+` WHERE `+where, arg))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrSubscriptionNotFound
	}
	if err != nil {
		return nil, dbError("get subscription", err)
	}
	return sub, nil
}

func (s *Store) querySubscriptions(ctx context.Context, query string, args ...any) ([]*domain.Subscription, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, dbError("query subscriptions", err)
	}
	defer rows.Close()

	subs := make([]*domain.Subscription, 0)
	for rows.Next() {
		sub, err := scanSubscription(rows)
		if err != nil {
			return nil, dbError("scan subscription", err)
		}
		subs = append(subs, sub)
	}
	if err := rows.Err(); err != nil {
		return nil, dbError("iterate subscriptions", err)
	}
	return subs, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanSubscription(row scanner) (*domain.Subscription, error) {
	var (
		sub                                 domain.Subscription
		days, status, cancelReason, address string
		totalAmount, deliveryFee            string
		next, end, paused, cancelled, paid  sql.NullString
		createdAt, updatedAt                string
		customerID, name, email, contact    sql.NullString
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
		&next,
		&end,
		&paused,
		&cancelled,
		&paid,
		&sub.PaymentOrderRef,
		&sub.PaymentID,
		&address,
		&createdAt,
		&updatedAt,
		&customerID,
		&name,
		&email,
		&contact,
	)
	if err != nil {
		return nil, err
	}

	if sub.DeliveryDays, err = domain.ParseDeliveryDays(days); err != nil {
		return nil, fmt.Errorf("subscription %s: %w", sub.ID, err)
	}
	sub.Status = domain.SubscriptionStatus(status)
	sub.CancelReason = domain.CancelReason(cancelReason)

	if sub.TotalAmount, err = decimalFromString(totalAmount); err != nil {
		return nil, err
	}
	if sub.DeliveryFee, err = decimalFromString(deliveryFee); err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(address), &sub.Address); err != nil {
		return nil, fmt.Errorf("unmarshal address: %w", err)
	}

	for _, f := range []struct {
		dst **time.Time
		src sql.NullString
	}{
		{&sub.NextShippingDate, next},
		{&sub.SubscriptionEndDate, end},
		{&sub.PausedAt, paused},
		{&sub.CancelledAt, cancelled},
		{&sub.PaidAt, paid},
	} {
		if *f.dst, err = parseTimePtr(f.src); err != nil {
			return nil, err
		}
	}
	if sub.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, err
	}
	if sub.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return nil, err
	}

	if customerID.Valid {
		sub.Customer = &domain.Customer{
			ID:      customerID.String,
			Name:    name.String,
			Email:   email.String,
			Contact: contact.String,
		}
	}
	return &sub, nil
}

func scanOrder(row scanner) (*domain.DeliveryOrder, error) {
	var (
		order                          domain.DeliveryOrder
		status, shipping, billing      string
		shippingDate, created, updated string
	)

	err := row.Scan(
		&order.ID,
		&order.SubscriptionID,
		&shippingDate,
		&order.BackendOrderID,
		&order.BackendOrderRef,
		&status,
		&shipping,
		&billing,
		&created,
		&updated,
	)
	if err != nil {
		return nil, err
	}

	order.Status = domain.OrderStatus(status)
	if order.ShippingDate, err = parseTime(shippingDate); err != nil {
		return nil, err
	}
	if order.CreatedAt, err = parseTime(created); err != nil {
		return nil, err
	}
	if order.UpdatedAt, err = parseTime(updated); err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(shipping), &order.ShippingAddress); err != nil {
		return nil, fmt.Errorf("unmarshal shipping address: %w", err)
	}
	if err := json.Unmarshal([]byte(billing), &order.BillingAddress); err != nil {
		return nil, fmt.Errorf("unmarshal billing address: %w", err)
	}
	return &order, nil
}

func isUniqueViolation(err error) bool {
	var sqliteErr *sqlite.Error
	if !errors.As(err, &sqliteErr) {
		return false
	}
	code := sqliteErr.Code()
	return code == sqlite3.SQLITE_CONSTRAINT_UNIQUE || code == sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY
}

func dbError(op string, err error) error {
	return domain.WrapError(domain.ErrorCodeDatabaseError, op, err)
}
