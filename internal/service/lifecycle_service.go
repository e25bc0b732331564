package service

import (
	"context"
	"fmt"
	"time"

	"mealrescue/internal/models"
	"mealrescue/internal/util"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// LifecycleStore is the persistence surface the order lifecycle needs
type LifecycleStore interface {
	GetOrderByID(ctx context.Context, id int64) (*models.Order, error)
	GetOrderForRestaurantByCode(ctx context.Context, restaurantID int64, code string) (*models.Order, error)
	UpdateOrderStatus(ctx context.Context, orderID int64, status, reason string, actorID *int64) error
	MarkOrderDelivered(ctx context.Context, orderID int64, operatorID *int64) (*models.Order, bool, error)
	GetOrderStatusChanges(ctx context.Context, orderID int64) ([]models.OrderStatusChange, error)
}

// OrderLifecycleService drives orders through their status lifecycle.
// Any known status may be set from any other; only unknown values are
// rejected. Delivery stamping is idempotent.
type OrderLifecycleService struct {
	store  LifecycleStore
	events EventSink
	logger *zap.Logger
}

// NewOrderLifecycleService creates a new order lifecycle service
func NewOrderLifecycleService(store LifecycleStore, events EventSink) *OrderLifecycleService {
	return &OrderLifecycleService{
		store:  store,
		events: events,
		logger: util.GetLogger(),
	}
}

// ChangeStatusResult reports a completed status transition
type ChangeStatusResult struct {
	OrderID   int64     `json:"order_id"`
	OldStatus string    `json:"old_status"`
	NewStatus string    `json:"new_status"`
	ActorID   *int64    `json:"actor_id,omitempty"`
	ChangedAt time.Time `json:"changed_at"`
}

// MarkDeliveredResult reports a delivery confirmation
type MarkDeliveredResult struct {
	OrderID          int64      `json:"order_id"`
	Code             string     `json:"code"`
	Status           string     `json:"status"`
	DeliveredAt      *time.Time `json:"delivered_at,omitempty"`
	AlreadyDelivered bool       `json:"already_delivered"`
}

// ChangeStatus sets the order's status, recording the reason for audit.
// A target of DELIVERED goes through the idempotent delivery stamping
// path so delivered_at is set exactly once.
func (s *OrderLifecycleService) ChangeStatus(ctx context.Context, orderID int64, targetStatus, reason string, actorID *int64) (*ChangeStatusResult, error) {
	ctx, span := util.StartSpan(ctx, "OrderLifecycleService.ChangeStatus")
	defer span.End()

	if !models.ValidOrderStatus(targetStatus) {
		return nil, fmt.Errorf("unknown order status %q: %w", targetStatus, models.ErrBadRequest)
	}

	order, err := s.store.GetOrderByID(ctx, orderID)
	if err != nil {
		return nil, err
	}

	if targetStatus == models.OrderStatusDelivered {
		updated, err := s.markDelivered(ctx, order, actorID)
		if err != nil {
			return nil, err
		}
		return &ChangeStatusResult{
			OrderID:   order.ID,
			OldStatus: order.Status,
			NewStatus: updated.Status,
			ActorID:   actorID,
			ChangedAt: updated.UpdatedAt,
		}, nil
	}

	if err := s.store.UpdateOrderStatus(ctx, orderID, targetStatus, reason, actorID); err != nil {
		return nil, err
	}

	s.logger.Info("Order status changed",
		zap.Int64("order_id", orderID),
		zap.String("from", order.Status),
		zap.String("to", targetStatus))

	return &ChangeStatusResult{
		OrderID:   orderID,
		OldStatus: order.Status,
		NewStatus: targetStatus,
		ActorID:   actorID,
		ChangedAt: time.Now(),
	}, nil
}

// MarkDeliveredByCode confirms delivery for restaurant staff scoped to
// one restaurant: the code is resolved only within that scope, so a code
// belonging to another restaurant is indistinguishable from absence.
// Re-confirming an already delivered order is a no-op success.
func (s *OrderLifecycleService) MarkDeliveredByCode(ctx context.Context, restaurantID int64, code string, operatorID *int64) (*MarkDeliveredResult, error) {
	ctx, span := util.StartSpan(ctx, "OrderLifecycleService.MarkDeliveredByCode")
	defer span.End()

	order, err := s.store.GetOrderForRestaurantByCode(ctx, restaurantID, code)
	if err != nil {
		return nil, err
	}

	if order.Status == models.OrderStatusDelivered {
		return &MarkDeliveredResult{
			OrderID:          order.ID,
			Code:             order.Code,
			Status:           order.Status,
			DeliveredAt:      order.DeliveredAt,
			AlreadyDelivered: true,
		}, nil
	}

	updated, err := s.markDelivered(ctx, order, operatorID)
	if err != nil {
		return nil, err
	}

	return &MarkDeliveredResult{
		OrderID:     updated.ID,
		Code:        updated.Code,
		Status:      updated.Status,
		DeliveredAt: updated.DeliveredAt,
	}, nil
}

// MarkDelivered is the unscoped, trusted entry point for internal use
func (s *OrderLifecycleService) MarkDelivered(ctx context.Context, orderID int64, operatorID *int64) (*MarkDeliveredResult, error) {
	order, err := s.store.GetOrderByID(ctx, orderID)
	if err != nil {
		return nil, err
	}

	if order.Status == models.OrderStatusDelivered {
		return &MarkDeliveredResult{
			OrderID:          order.ID,
			Code:             order.Code,
			Status:           order.Status,
			DeliveredAt:      order.DeliveredAt,
			AlreadyDelivered: true,
		}, nil
	}

	updated, err := s.markDelivered(ctx, order, operatorID)
	if err != nil {
		return nil, err
	}

	return &MarkDeliveredResult{
		OrderID:     updated.ID,
		Code:        updated.Code,
		Status:      updated.Status,
		DeliveredAt: updated.DeliveredAt,
	}, nil
}

// GetOrder retrieves an order with its status audit trail
func (s *OrderLifecycleService) GetOrder(ctx context.Context, orderID int64) (*models.Order, []models.OrderStatusChange, error) {
	order, err := s.store.GetOrderByID(ctx, orderID)
	if err != nil {
		return nil, nil, err
	}

	changes, err := s.store.GetOrderStatusChanges(ctx, orderID)
	if err != nil {
		return nil, nil, err
	}

	return order, changes, nil
}

func (s *OrderLifecycleService) markDelivered(ctx context.Context, order *models.Order, operatorID *int64) (*models.Order, error) {
	// The store decides first delivery under the row lock, so racing
	// confirmations publish the delivered event exactly once.
	updated, firstDelivery, err := s.store.MarkOrderDelivered(ctx, order.ID, operatorID)
	if err != nil {
		return nil, err
	}

	if firstDelivery {
		util.OrdersDeliveredTotal.Inc()
		s.logger.Info("Order delivered",
			zap.Int64("order_id", order.ID),
			zap.Int64("restaurant_id", order.RestaurantID))

		if s.events != nil && updated.DeliveredAt != nil {
			var opID int64
			if operatorID != nil {
				opID = *operatorID
			}
			event := &models.OrderDeliveredEvent{
				BaseEvent: models.BaseEvent{
					EventID:   uuid.New().String(),
					EventType: models.EventTypeOrderDelivered,
					Timestamp: time.Now(),
				},
				OrderID:      updated.ID,
				RestaurantID: updated.RestaurantID,
				DeliveredAt:  *updated.DeliveredAt,
				OperatorID:   opID,
			}
			if err := s.events.PublishOrderDelivered(ctx, event); err != nil {
				s.logger.Error("Failed to publish OrderDelivered event", zap.Error(err))
			}
		}
	}

	return updated, nil
}
