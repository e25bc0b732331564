package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"mealrescue/internal/models"
)

// RestaurantIDsWithUnsettledDeliveries returns the restaurants that have
// at least one DELIVERED, unassigned order delivered within [start, end).
func (s *Store) RestaurantIDsWithUnsettledDeliveries(ctx context.Context, periodStart, periodEnd time.Time) ([]int64, error) {
	var ids []int64
	err := s.db.SelectContext(ctx, &ids, `
		SELECT DISTINCT restaurant_id FROM orders
		WHERE status = $1
		  AND settlement_id IS NULL
		  AND delivered_at >= $2 AND delivered_at < $3
		ORDER BY restaurant_id`,
		models.OrderStatusDelivered, periodStart, periodEnd)
	return ids, err
}

// SettleRestaurantPeriod creates one DRAFT settlement for a restaurant and
// claims its unassigned delivered orders for [periodStart, periodEnd), all
// in one transaction. Claiming is the conditional UPDATE on
// settlement_id IS NULL, so each order is assigned exactly once even when
// two runs race; aggregates are computed from exactly the claimed rows.
// Returns nil when another run already claimed every candidate order.
func (s *Store) SettleRestaurantPeriod(ctx context.Context, restaurantID int64, periodStart, periodEnd time.Time) (*models.Settlement, error) {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	var settlement models.Settlement
	err = tx.GetContext(ctx, &settlement, `
		INSERT INTO settlements (restaurant_id, period_start, period_end, status)
		VALUES ($1, $2, $3, $4)
		RETURNING *`,
		restaurantID, periodStart, periodEnd, models.SettlementStatusDraft)
	if err != nil {
		return nil, fmt.Errorf("failed to create settlement: %w", err)
	}

	rows, err := tx.QueryxContext(ctx, `
		UPDATE orders SET settlement_id = $1, updated_at = NOW()
		WHERE restaurant_id = $2
		  AND status = $3
		  AND settlement_id IS NULL
		  AND delivered_at >= $4 AND delivered_at < $5
		RETURNING total_cents, platform_fee_cents, commission_bps_at_purchase`,
		settlement.ID, restaurantID, models.OrderStatusDelivered, periodStart, periodEnd)
	if err != nil {
		return nil, fmt.Errorf("failed to claim orders: %w", err)
	}

	var (
		totalOrders      int
		totalOrdersCents int64
		platformFeeCents int64
		commissionBps    int
	)
	for rows.Next() {
		var orderCents, feeCents int64
		var bps int
		if err := rows.Scan(&orderCents, &feeCents, &bps); err != nil {
			rows.Close()
			return nil, fmt.Errorf("failed to scan claimed order: %w", err)
		}
		totalOrders++
		totalOrdersCents += orderCents
		platformFeeCents += feeCents
		// Display convenience only. Per-order frozen rates stay the
		// source of truth; if the restaurant's rate changed mid-period
		// this holds the rate of one arbitrary included order.
		commissionBps = bps
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate claimed orders: %w", err)
	}

	if totalOrders == 0 {
		// Nothing left to settle; roll the empty settlement back.
		return nil, nil
	}

	err = tx.GetContext(ctx, &settlement, `
		UPDATE settlements SET
			total_orders = $1,
			total_orders_cents = $2,
			platform_fee_cents = $3,
			net_to_restaurant_cents = $4,
			commission_bps = $5,
			updated_at = NOW()
		WHERE id = $6
		RETURNING *`,
		totalOrders, totalOrdersCents, platformFeeCents,
		totalOrdersCents-platformFeeCents, commissionBps, settlement.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to store settlement aggregates: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return &settlement, nil
}

// GetSettlementByID retrieves a settlement by ID
func (s *Store) GetSettlementByID(ctx context.Context, id int64) (*models.Settlement, error) {
	var settlement models.Settlement
	err := s.db.GetContext(ctx, &settlement, "SELECT * FROM settlements WHERE id = $1", id)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("settlement %d: %w", id, models.ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return &settlement, nil
}

// GetSettlementOrders retrieves the orders included in a settlement
func (s *Store) GetSettlementOrders(ctx context.Context, settlementID int64) ([]models.Order, error) {
	var orders []models.Order
	err := s.db.SelectContext(ctx, &orders,
		"SELECT * FROM orders WHERE settlement_id = $1 ORDER BY delivered_at, id", settlementID)
	return orders, err
}

// ListSettlements retrieves settlements, newest first. restaurantID 0
// lists across all restaurants.
func (s *Store) ListSettlements(ctx context.Context, restaurantID int64) ([]models.Settlement, error) {
	var settlements []models.Settlement
	if restaurantID != 0 {
		err := s.db.SelectContext(ctx, &settlements,
			"SELECT * FROM settlements WHERE restaurant_id = $1 ORDER BY period_start DESC, id DESC",
			restaurantID)
		return settlements, err
	}
	err := s.db.SelectContext(ctx, &settlements,
		"SELECT * FROM settlements ORDER BY period_start DESC, id DESC")
	return settlements, err
}

// UpdateSettlementStatus sets the settlement status with idempotent
// confirmation and payment stamps: first transition into CONFIRMED or
// PAID records when and by whom, repeats leave the stamp alone. Non-empty
// notes replace the stored notes.
func (s *Store) UpdateSettlementStatus(ctx context.Context, id int64, status, notes string, actorID *int64) (*models.Settlement, error) {
	var settlement models.Settlement
	err := s.db.GetContext(ctx, &settlement, `
		UPDATE settlements SET
			status = $1,
			confirmed_at = CASE WHEN $1 = 'CONFIRMED' THEN COALESCE(confirmed_at, NOW()) ELSE confirmed_at END,
			confirmed_by = CASE WHEN $1 = 'CONFIRMED' THEN COALESCE(confirmed_by, $2) ELSE confirmed_by END,
			paid_at = CASE WHEN $1 = 'PAID' THEN COALESCE(paid_at, NOW()) ELSE paid_at END,
			paid_by = CASE WHEN $1 = 'PAID' THEN COALESCE(paid_by, $2) ELSE paid_by END,
			notes = CASE WHEN $3 <> '' THEN $3 ELSE notes END,
			updated_at = NOW()
		WHERE id = $4
		RETURNING *`,
		status, actorID, notes, id)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("settlement %d: %w", id, models.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to update settlement status: %w", err)
	}
	return &settlement, nil
}
