package models

import "time"

// Restaurant represents a partner restaurant selling surplus offers
type Restaurant struct {
	ID            int64     `db:"id" json:"id"`
	Name          string    `db:"name" json:"name"`
	CommissionBps int       `db:"commission_bps" json:"commission_bps"`
	Active        bool      `db:"active" json:"active"`
	CreatedAt     time.Time `db:"created_at" json:"created_at"`
}

// Offer represents a quantity-limited, time-windowed surplus item.
// Quantity reaching 0 pauses the offer; offers are never deleted.
type Offer struct {
	ID            int64     `db:"id" json:"id"`
	RestaurantID  int64     `db:"restaurant_id" json:"restaurant_id"`
	Title         string    `db:"title" json:"title"`
	Description   string    `db:"description" json:"description"`
	PriceCents    int64     `db:"price_cents" json:"price_cents"`
	Currency      string    `db:"currency" json:"currency"`
	Quantity      int       `db:"quantity" json:"quantity"`
	AvailableFrom time.Time `db:"available_from" json:"available_from"`
	AvailableTo   time.Time `db:"available_to" json:"available_to"`
	ExpiresAt     time.Time `db:"expires_at" json:"expires_at"`
	CreatedAt     time.Time `db:"created_at" json:"created_at"`
}

// OfferListing is the customer-facing projection of a purchasable offer,
// joined with its restaurant. CommissionBps is the restaurant's current
// rate, read here so intake can freeze it onto the order.
type OfferListing struct {
	OfferID        int64  `db:"offer_id" json:"offer_id"`
	RestaurantID   int64  `db:"restaurant_id" json:"restaurant_id"`
	Title          string `db:"title" json:"title"`
	Description    string `db:"description" json:"description"`
	PriceCents     int64  `db:"price_cents" json:"price_cents"`
	Currency       string `db:"currency" json:"currency"`
	Quantity       int    `db:"quantity" json:"quantity"`
	RestaurantName string `db:"restaurant_name" json:"restaurant_name"`
	CommissionBps  int    `db:"commission_bps" json:"-"`
}

// Order represents a customer purchase of one offer unit.
// TotalCents, CommissionBpsAtPurchase and PlatformFeeCents are frozen at
// creation and never recomputed from the restaurant's live rate.
type Order struct {
	ID                      int64      `db:"id" json:"id"`
	OfferID                 int64      `db:"offer_id" json:"offer_id"`
	RestaurantID            int64      `db:"restaurant_id" json:"restaurant_id"`
	CustomerName            string     `db:"customer_name" json:"customer_name"`
	CustomerEmail           string     `db:"customer_email" json:"customer_email"`
	Code                    string     `db:"code" json:"code"`
	Status                  string     `db:"status" json:"status"`
	TotalCents              int64      `db:"total_cents" json:"total_cents"`
	Currency                string     `db:"currency" json:"currency"`
	CommissionBpsAtPurchase int        `db:"commission_bps_at_purchase" json:"commission_bps_at_purchase"`
	PlatformFeeCents        int64      `db:"platform_fee_cents" json:"platform_fee_cents"`
	DeliveredAt             *time.Time `db:"delivered_at" json:"delivered_at,omitempty"`
	DeliveredByUserID       *int64     `db:"delivered_by_user_id" json:"delivered_by_user_id,omitempty"`
	SettlementID            *int64     `db:"settlement_id" json:"settlement_id,omitempty"`
	CreatedAt               time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt               time.Time  `db:"updated_at" json:"updated_at"`
}

// OrderStatusChange is an audit record of an order status transition
type OrderStatusChange struct {
	ID         int64     `db:"id" json:"id"`
	OrderID    int64     `db:"order_id" json:"order_id"`
	FromStatus string    `db:"from_status" json:"from_status"`
	ToStatus   string    `db:"to_status" json:"to_status"`
	Reason     string    `db:"reason" json:"reason,omitempty"`
	ActorID    *int64    `db:"actor_id" json:"actor_id,omitempty"`
	CreatedAt  time.Time `db:"created_at" json:"created_at"`
}

// Settlement is a per-restaurant, per-period reconciliation of delivered
// orders. Aggregates are computed from exactly the orders whose
// settlement_id references this row.
type Settlement struct {
	ID                   int64      `db:"id" json:"id"`
	RestaurantID         int64      `db:"restaurant_id" json:"restaurant_id"`
	PeriodStart          time.Time  `db:"period_start" json:"period_start"`
	PeriodEnd            time.Time  `db:"period_end" json:"period_end"`
	Status               string     `db:"status" json:"status"`
	TotalOrders          int        `db:"total_orders" json:"total_orders"`
	TotalOrdersCents     int64      `db:"total_orders_cents" json:"total_orders_cents"`
	PlatformFeeCents     int64      `db:"platform_fee_cents" json:"platform_fee_cents"`
	NetToRestaurantCents int64      `db:"net_to_restaurant_cents" json:"net_to_restaurant_cents"`
	CommissionBps        int        `db:"commission_bps" json:"commission_bps"`
	ConfirmedAt          *time.Time `db:"confirmed_at" json:"confirmed_at,omitempty"`
	ConfirmedBy          *int64     `db:"confirmed_by" json:"confirmed_by,omitempty"`
	PaidAt               *time.Time `db:"paid_at" json:"paid_at,omitempty"`
	PaidBy               *int64     `db:"paid_by" json:"paid_by,omitempty"`
	Notes                string     `db:"notes" json:"notes,omitempty"`
	CreatedAt            time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt            time.Time  `db:"updated_at" json:"updated_at"`
}

// Order statuses
const (
	OrderStatusCreated   = "CREATED"
	OrderStatusPreparing = "PREPARING"
	OrderStatusReady     = "READY"
	OrderStatusDelivered = "DELIVERED"
	OrderStatusCancelled = "CANCELLED"
	OrderStatusNoShow    = "NOSHOW"
)

// Settlement statuses
const (
	SettlementStatusDraft     = "DRAFT"
	SettlementStatusConfirmed = "CONFIRMED"
	SettlementStatusPaid      = "PAID"
	SettlementStatusDisputed  = "DISPUTED"
)

// ValidOrderStatus reports whether s is a known order status
func ValidOrderStatus(s string) bool {
	switch s {
	case OrderStatusCreated, OrderStatusPreparing, OrderStatusReady,
		OrderStatusDelivered, OrderStatusCancelled, OrderStatusNoShow:
		return true
	}
	return false
}

// TerminalOrderStatus reports whether s is terminal
func TerminalOrderStatus(s string) bool {
	switch s {
	case OrderStatusDelivered, OrderStatusCancelled, OrderStatusNoShow:
		return true
	}
	return false
}

// ValidSettlementStatus reports whether s is a known settlement status
func ValidSettlementStatus(s string) bool {
	switch s {
	case SettlementStatusDraft, SettlementStatusConfirmed,
		SettlementStatusPaid, SettlementStatusDisputed:
		return true
	}
	return false
}
