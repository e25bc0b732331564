package store

import (
	"context"
	"database/sql"
	"fmt"

	"mealrescue/internal/models"
)

// ReserveAndCreateOrder decrements the offer's quantity and inserts the
// order as one transaction, returning the remaining quantity. The
// decrement is a single conditional UPDATE; if it matches no row another
// intake won the race for the last unit and the whole transaction aborts
// with ErrOutOfStock.
func (s *Store) ReserveAndCreateOrder(ctx context.Context, order *models.Order) (int, error) {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()

	var remaining int
	err = tx.GetContext(ctx, &remaining,
		"UPDATE offers SET quantity = quantity - 1 WHERE id = $1 AND quantity > 0 RETURNING quantity",
		order.OfferID)
	if err == sql.ErrNoRows {
		return 0, models.ErrOutOfStock
	}
	if err != nil {
		return 0, fmt.Errorf("failed to reserve offer unit: %w", err)
	}

	query := `
		INSERT INTO orders (
			offer_id, restaurant_id, customer_name, customer_email, code,
			status, total_cents, currency, commission_bps_at_purchase, platform_fee_cents
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING id, created_at, updated_at`

	err = tx.QueryRowxContext(ctx, query,
		order.OfferID, order.RestaurantID, order.CustomerName, order.CustomerEmail,
		order.Code, order.Status, order.TotalCents, order.Currency,
		order.CommissionBpsAtPurchase, order.PlatformFeeCents,
	).Scan(&order.ID, &order.CreatedAt, &order.UpdatedAt)
	if err != nil {
		return 0, fmt.Errorf("failed to create order: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return 0, err
	}
	return remaining, nil
}

// GetOrderByID retrieves an order by ID
func (s *Store) GetOrderByID(ctx context.Context, id int64) (*models.Order, error) {
	var order models.Order
	err := s.db.GetContext(ctx, &order, "SELECT * FROM orders WHERE id = $1", id)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("order %d: %w", id, models.ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return &order, nil
}

// GetOrderForRestaurantByCode resolves a pickup code within one
// restaurant's scope. Codes are not globally unique; an undelivered match
// is preferred so staff retyping a reused code pick up the open order, and
// falling back to a delivered match keeps re-confirmation idempotent.
func (s *Store) GetOrderForRestaurantByCode(ctx context.Context, restaurantID int64, code string) (*models.Order, error) {
	var order models.Order
	err := s.db.GetContext(ctx, &order, `
		SELECT * FROM orders
		WHERE restaurant_id = $1 AND code = $2
		ORDER BY (status = 'DELIVERED'), created_at DESC
		LIMIT 1`,
		restaurantID, code)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("code %s: %w", code, models.ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return &order, nil
}

// UpdateOrderStatus sets the order status and records the transition in
// the audit log, in one transaction.
func (s *Store) UpdateOrderStatus(ctx context.Context, orderID int64, status, reason string, actorID *int64) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	var fromStatus string
	err = tx.GetContext(ctx, &fromStatus,
		"SELECT status FROM orders WHERE id = $1 FOR UPDATE", orderID)
	if err == sql.ErrNoRows {
		return fmt.Errorf("order %d: %w", orderID, models.ErrNotFound)
	}
	if err != nil {
		return fmt.Errorf("failed to lock order: %w", err)
	}

	_, err = tx.ExecContext(ctx,
		"UPDATE orders SET status = $1, updated_at = NOW() WHERE id = $2",
		status, orderID)
	if err != nil {
		return fmt.Errorf("failed to update order status: %w", err)
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO order_status_changes (order_id, from_status, to_status, reason, actor_id)
		VALUES ($1, $2, $3, $4, $5)`,
		orderID, fromStatus, status, reason, actorID)
	if err != nil {
		return fmt.Errorf("failed to record status change: %w", err)
	}

	return tx.Commit()
}

// MarkOrderDelivered sets the order to DELIVERED and stamps delivered_at
// and the operator. COALESCE keeps both stamps idempotent: re-confirming
// delivery never moves the timestamp or reassigns the operator. The
// returned flag reports whether this call was the first delivery; it is
// decided from the pre-update status read under the row lock, so two
// racing confirmations see it true exactly once.
func (s *Store) MarkOrderDelivered(ctx context.Context, orderID int64, operatorID *int64) (*models.Order, bool, error) {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, false, err
	}
	defer tx.Rollback()

	var fromStatus string
	err = tx.GetContext(ctx, &fromStatus,
		"SELECT status FROM orders WHERE id = $1 FOR UPDATE", orderID)
	if err == sql.ErrNoRows {
		return nil, false, fmt.Errorf("order %d: %w", orderID, models.ErrNotFound)
	}
	if err != nil {
		return nil, false, fmt.Errorf("failed to lock order: %w", err)
	}
	firstDelivery := fromStatus != models.OrderStatusDelivered

	var order models.Order
	err = tx.GetContext(ctx, &order, `
		UPDATE orders SET
			status = $1,
			delivered_at = COALESCE(delivered_at, NOW()),
			delivered_by_user_id = COALESCE(delivered_by_user_id, $2),
			updated_at = NOW()
		WHERE id = $3
		RETURNING *`,
		models.OrderStatusDelivered, operatorID, orderID)
	if err != nil {
		return nil, false, fmt.Errorf("failed to mark order delivered: %w", err)
	}

	if firstDelivery {
		_, err = tx.ExecContext(ctx, `
			INSERT INTO order_status_changes (order_id, from_status, to_status, reason, actor_id)
			VALUES ($1, $2, $3, '', $4)`,
			orderID, fromStatus, models.OrderStatusDelivered, operatorID)
		if err != nil {
			return nil, false, fmt.Errorf("failed to record status change: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, false, err
	}
	return &order, firstDelivery, nil
}

// GetOrderStatusChanges retrieves the audit trail for an order
func (s *Store) GetOrderStatusChanges(ctx context.Context, orderID int64) ([]models.OrderStatusChange, error) {
	var changes []models.OrderStatusChange
	err := s.db.SelectContext(ctx, &changes,
		"SELECT * FROM order_status_changes WHERE order_id = $1 ORDER BY id", orderID)
	return changes, err
}
