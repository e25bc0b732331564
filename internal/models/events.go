package models

import "time"

// Event types
const (
	EventTypeOrderCreated      = "ORDER_CREATED"
	EventTypeOrderDelivered    = "ORDER_DELIVERED"
	EventTypeSettlementCreated = "SETTLEMENT_CREATED"
)

// BaseEvent contains common fields for all events
type BaseEvent struct {
	EventID   string    `json:"event_id"`
	EventType string    `json:"event_type"`
	Timestamp time.Time `json:"timestamp"`
}

// OrderCreatedEvent published when an order is created. Consumed by the
// notification worker to queue the customer confirmation.
type OrderCreatedEvent struct {
	BaseEvent
	OrderID       int64  `json:"order_id"`
	OfferID       int64  `json:"offer_id"`
	RestaurantID  int64  `json:"restaurant_id"`
	Code          string `json:"code"`
	TotalCents    int64  `json:"total_cents"`
	Currency      string `json:"currency"`
	CustomerName  string `json:"customer_name"`
	CustomerEmail string `json:"customer_email"`
	OfferTitle    string `json:"offer_title"`
}

// OrderDeliveredEvent published when an order is first marked delivered
type OrderDeliveredEvent struct {
	BaseEvent
	OrderID      int64     `json:"order_id"`
	RestaurantID int64     `json:"restaurant_id"`
	DeliveredAt  time.Time `json:"delivered_at"`
	OperatorID   int64     `json:"operator_id"`
}

// SettlementCreatedEvent published when the batcher creates a settlement
type SettlementCreatedEvent struct {
	BaseEvent
	SettlementID         int64     `json:"settlement_id"`
	RestaurantID         int64     `json:"restaurant_id"`
	PeriodStart          time.Time `json:"period_start"`
	PeriodEnd            time.Time `json:"period_end"`
	TotalOrders          int       `json:"total_orders"`
	TotalOrdersCents     int64     `json:"total_orders_cents"`
	NetToRestaurantCents int64     `json:"net_to_restaurant_cents"`
}
