package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"mealrescue/internal/models"
	"mealrescue/internal/util"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// IntakeStore is the persistence surface order intake needs
type IntakeStore interface {
	GetAvailableOffer(ctx context.Context, offerID int64) (*models.OfferListing, error)
	GetActiveOffers(ctx context.Context) ([]models.OfferListing, error)
	ReserveAndCreateOrder(ctx context.Context, order *models.Order) (int, error)
}

// EventSink publishes domain events. Publishing is fire-and-forget: a
// failed publish is logged, never surfaced to the caller.
type EventSink interface {
	PublishOrderCreated(ctx context.Context, event *models.OrderCreatedEvent) error
	PublishOrderDelivered(ctx context.Context, event *models.OrderDeliveredEvent) error
	PublishSettlementCreated(ctx context.Context, event *models.SettlementCreatedEvent) error
}

// QuantityMirror is the best-effort quantity cache for the browse path.
// Reads may miss or return stale values; the store row is the authority.
type QuantityMirror interface {
	SetOfferQuantity(ctx context.Context, offerID int64, quantity int) error
	GetOfferQuantity(ctx context.Context, offerID int64) (int, bool, error)
}

// IntakeService turns an available offer unit into an order exactly once
type IntakeService struct {
	store  IntakeStore
	events EventSink
	mirror QuantityMirror
	logger *zap.Logger
}

// NewIntakeService creates a new intake service. events and mirror may be
// nil when the broker or cache is not wired.
func NewIntakeService(store IntakeStore, events EventSink, mirror QuantityMirror) *IntakeService {
	return &IntakeService{
		store:  store,
		events: events,
		mirror: mirror,
		logger: util.GetLogger(),
	}
}

// CreateOrderRequest represents a request to create an order
type CreateOrderRequest struct {
	OfferID       int64  `json:"offer_id" binding:"required"`
	CustomerName  string `json:"customer_name" binding:"required"`
	CustomerEmail string `json:"customer_email" binding:"required"`
}

// OfferProjection is the offer display block returned with a new order
type OfferProjection struct {
	Title          string `json:"title"`
	RestaurantName string `json:"restaurant_name"`
	PriceCents     int64  `json:"price_cents"`
	Currency       string `json:"currency"`
}

// CreateOrderResponse represents the response after creating an order
type CreateOrderResponse struct {
	OrderID int64           `json:"order_id"`
	Code    string          `json:"code"`
	Status  string          `json:"status"`
	Offer   OfferProjection `json:"offer"`
}

// CreateOrder reserves one unit of the offer and creates the order with a
// frozen price and commission snapshot. The decrement and the insert are
// one transaction in the store; losing the race for the last unit
// surfaces as ErrOutOfStock.
func (s *IntakeService) CreateOrder(ctx context.Context, req *CreateOrderRequest) (*CreateOrderResponse, error) {
	ctx, span := util.StartSpan(ctx, "IntakeService.CreateOrder")
	defer span.End()

	if err := validateCreateOrder(req); err != nil {
		util.OrderIntakeFailedTotal.WithLabelValues("validation").Inc()
		return nil, err
	}

	offer, err := s.store.GetAvailableOffer(ctx, req.OfferID)
	if err != nil {
		if errors.Is(err, models.ErrOfferUnavailable) {
			util.OrderIntakeFailedTotal.WithLabelValues("offer_unavailable").Inc()
		}
		return nil, err
	}

	order := &models.Order{
		OfferID:                 offer.OfferID,
		RestaurantID:            offer.RestaurantID,
		CustomerName:            strings.TrimSpace(req.CustomerName),
		CustomerEmail:           strings.TrimSpace(req.CustomerEmail),
		Code:                    newPickupCode(),
		Status:                  models.OrderStatusCreated,
		TotalCents:              offer.PriceCents,
		Currency:                offer.Currency,
		CommissionBpsAtPurchase: offer.CommissionBps,
		PlatformFeeCents:        platformFee(offer.PriceCents, offer.CommissionBps),
	}

	start := time.Now()
	remaining, err := s.store.ReserveAndCreateOrder(ctx, order)
	util.OrderReserveLatency.Observe(time.Since(start).Seconds())
	if err != nil {
		if errors.Is(err, models.ErrOutOfStock) {
			util.OrderIntakeFailedTotal.WithLabelValues("out_of_stock").Inc()
			return nil, err
		}
		util.OrderIntakeFailedTotal.WithLabelValues("db_error").Inc()
		return nil, fmt.Errorf("failed to reserve and create order: %w", err)
	}

	util.OrdersCreatedTotal.Inc()
	s.logger.Info("Order created",
		zap.Int64("order_id", order.ID),
		zap.Int64("offer_id", offer.OfferID),
		zap.Int64("restaurant_id", offer.RestaurantID))

	if s.mirror != nil {
		// remaining comes back from the decrement itself, so concurrent
		// intakes never write a stale count.
		if err := s.mirror.SetOfferQuantity(ctx, offer.OfferID, remaining); err != nil {
			s.logger.Warn("Failed to update quantity mirror",
				zap.Int64("offer_id", offer.OfferID), zap.Error(err))
		}
	}

	if s.events != nil {
		event := &models.OrderCreatedEvent{
			BaseEvent: models.BaseEvent{
				EventID:   uuid.New().String(),
				EventType: models.EventTypeOrderCreated,
				Timestamp: time.Now(),
			},
			OrderID:       order.ID,
			OfferID:       offer.OfferID,
			RestaurantID:  offer.RestaurantID,
			Code:          order.Code,
			TotalCents:    order.TotalCents,
			Currency:      order.Currency,
			CustomerName:  order.CustomerName,
			CustomerEmail: order.CustomerEmail,
			OfferTitle:    offer.Title,
		}
		if err := s.events.PublishOrderCreated(ctx, event); err != nil {
			s.logger.Error("Failed to publish OrderCreated event", zap.Error(err))
		}
	}

	return &CreateOrderResponse{
		OrderID: order.ID,
		Code:    order.Code,
		Status:  order.Status,
		Offer: OfferProjection{
			Title:          offer.Title,
			RestaurantName: offer.RestaurantName,
			PriceCents:     offer.PriceCents,
			Currency:       offer.Currency,
		},
	}, nil
}

// ListOffers returns the currently purchasable offers. Quantities come
// from the mirror when it has an entry, since intakes refresh it before
// a cached listing would see the decrement; misses are served from the
// store row and backfilled.
func (s *IntakeService) ListOffers(ctx context.Context) ([]models.OfferListing, error) {
	offers, err := s.store.GetActiveOffers(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list offers: %w", err)
	}

	if s.mirror != nil {
		for i := range offers {
			qty, ok, err := s.mirror.GetOfferQuantity(ctx, offers[i].OfferID)
			if err != nil {
				s.logger.Warn("Quantity mirror unavailable",
					zap.Int64("offer_id", offers[i].OfferID), zap.Error(err))
				break
			}
			if ok {
				offers[i].Quantity = qty
				continue
			}
			if err := s.mirror.SetOfferQuantity(ctx, offers[i].OfferID, offers[i].Quantity); err != nil {
				s.logger.Warn("Failed to refresh quantity mirror",
					zap.Int64("offer_id", offers[i].OfferID), zap.Error(err))
				break
			}
		}
	}

	return offers, nil
}

func validateCreateOrder(req *CreateOrderRequest) error {
	if req.OfferID <= 0 {
		return fmt.Errorf("offer_id is required: %w", models.ErrBadRequest)
	}
	if strings.TrimSpace(req.CustomerName) == "" {
		return fmt.Errorf("customer_name is required: %w", models.ErrBadRequest)
	}
	email := strings.TrimSpace(req.CustomerEmail)
	if email == "" || !strings.Contains(email, "@") {
		return fmt.Errorf("customer_email is invalid: %w", models.ErrBadRequest)
	}
	return nil
}
