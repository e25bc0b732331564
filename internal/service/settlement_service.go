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

// SettlementStore is the persistence surface settlement handling needs
type SettlementStore interface {
	RestaurantIDsWithUnsettledDeliveries(ctx context.Context, periodStart, periodEnd time.Time) ([]int64, error)
	SettleRestaurantPeriod(ctx context.Context, restaurantID int64, periodStart, periodEnd time.Time) (*models.Settlement, error)
	GetSettlementByID(ctx context.Context, id int64) (*models.Settlement, error)
	GetSettlementOrders(ctx context.Context, settlementID int64) ([]models.Order, error)
	ListSettlements(ctx context.Context, restaurantID int64) ([]models.Settlement, error)
	UpdateSettlementStatus(ctx context.Context, id int64, status, notes string, actorID *int64) (*models.Settlement, error)
	GetRestaurantByID(ctx context.Context, id int64) (*models.Restaurant, error)
}

// SettlementService batches delivered orders into per-restaurant
// settlements and drives the settlement status workflow.
type SettlementService struct {
	store  SettlementStore
	events EventSink
	logger *zap.Logger
}

// NewSettlementService creates a new settlement service
func NewSettlementService(store SettlementStore, events EventSink) *SettlementService {
	return &SettlementService{
		store:  store,
		events: events,
		logger: util.GetLogger(),
	}
}

// SettlementSummary is the per-restaurant result of one generation run
type SettlementSummary struct {
	SettlementID         int64 `json:"settlement_id"`
	RestaurantID         int64 `json:"restaurant_id"`
	TotalOrders          int   `json:"total_orders"`
	TotalOrdersCents     int64 `json:"total_orders_cents"`
	PlatformFeeCents     int64 `json:"platform_fee_cents"`
	NetToRestaurantCents int64 `json:"net_to_restaurant_cents"`
}

// GenerateResult is the outcome of a settlement generation run
type GenerateResult struct {
	Created     int                 `json:"created"`
	Settlements []SettlementSummary `json:"settlements"`
}

// SettlementDetail is a settlement statement: the settlement, the
// restaurant it pays out to, and the included orders
type SettlementDetail struct {
	Settlement models.Settlement `json:"settlement"`
	Restaurant models.Restaurant `json:"restaurant"`
	Orders     []models.Order    `json:"orders"`
}

// Generate creates one DRAFT settlement per restaurant that has
// delivered, unassigned orders inside [periodStart, periodEnd). Selection
// filters on the unassigned flag, so re-running the same period finds
// nothing left and reports created: 0.
func (s *SettlementService) Generate(ctx context.Context, periodStart, periodEnd time.Time) (*GenerateResult, error) {
	ctx, span := util.StartSpan(ctx, "SettlementService.Generate")
	defer span.End()

	if periodStart.IsZero() || periodEnd.IsZero() {
		return nil, fmt.Errorf("period_start and period_end are required: %w", models.ErrBadRequest)
	}
	if !periodEnd.After(periodStart) {
		return nil, fmt.Errorf("period_end must be after period_start: %w", models.ErrBadRequest)
	}

	start := time.Now()
	defer func() {
		util.SettlementRunLatency.Observe(time.Since(start).Seconds())
	}()

	restaurantIDs, err := s.store.RestaurantIDsWithUnsettledDeliveries(ctx, periodStart, periodEnd)
	if err != nil {
		return nil, fmt.Errorf("failed to find unsettled restaurants: %w", err)
	}

	result := &GenerateResult{Settlements: []SettlementSummary{}}
	for _, restaurantID := range restaurantIDs {
		settlement, err := s.store.SettleRestaurantPeriod(ctx, restaurantID, periodStart, periodEnd)
		if err != nil {
			return nil, fmt.Errorf("failed to settle restaurant %d: %w", restaurantID, err)
		}
		if settlement == nil {
			// A concurrent run claimed this group's orders first.
			continue
		}

		util.SettlementsCreatedTotal.Inc()
		util.SettlementOrdersClaimedTotal.Add(float64(settlement.TotalOrders))
		s.logger.Info("Settlement created",
			zap.Int64("settlement_id", settlement.ID),
			zap.Int64("restaurant_id", settlement.RestaurantID),
			zap.Int("total_orders", settlement.TotalOrders),
			zap.Int64("net_cents", settlement.NetToRestaurantCents))

		result.Created++
		result.Settlements = append(result.Settlements, SettlementSummary{
			SettlementID:         settlement.ID,
			RestaurantID:         settlement.RestaurantID,
			TotalOrders:          settlement.TotalOrders,
			TotalOrdersCents:     settlement.TotalOrdersCents,
			PlatformFeeCents:     settlement.PlatformFeeCents,
			NetToRestaurantCents: settlement.NetToRestaurantCents,
		})

		if s.events != nil {
			event := &models.SettlementCreatedEvent{
				BaseEvent: models.BaseEvent{
					EventID:   uuid.New().String(),
					EventType: models.EventTypeSettlementCreated,
					Timestamp: time.Now(),
				},
				SettlementID:         settlement.ID,
				RestaurantID:         settlement.RestaurantID,
				PeriodStart:          settlement.PeriodStart,
				PeriodEnd:            settlement.PeriodEnd,
				TotalOrders:          settlement.TotalOrders,
				TotalOrdersCents:     settlement.TotalOrdersCents,
				NetToRestaurantCents: settlement.NetToRestaurantCents,
			}
			if err := s.events.PublishSettlementCreated(ctx, event); err != nil {
				s.logger.Error("Failed to publish SettlementCreated event", zap.Error(err))
			}
		}
	}

	return result, nil
}

// ChangeStatus sets the settlement status. Unknown values are rejected;
// any known status may be set from any other. Confirmation and payment
// stamps are written once and never moved.
func (s *SettlementService) ChangeStatus(ctx context.Context, settlementID int64, targetStatus, notes string, actorID *int64) (*models.Settlement, error) {
	ctx, span := util.StartSpan(ctx, "SettlementService.ChangeStatus")
	defer span.End()

	if !models.ValidSettlementStatus(targetStatus) {
		return nil, fmt.Errorf("unknown settlement status %q: %w", targetStatus, models.ErrBadRequest)
	}

	settlement, err := s.store.UpdateSettlementStatus(ctx, settlementID, targetStatus, notes, actorID)
	if err != nil {
		return nil, err
	}

	s.logger.Info("Settlement status changed",
		zap.Int64("settlement_id", settlementID),
		zap.String("to", targetStatus))

	return settlement, nil
}

// List retrieves settlements, restricted to one restaurant when
// restaurantID is non-zero.
func (s *SettlementService) List(ctx context.Context, restaurantID int64) ([]models.Settlement, error) {
	settlements, err := s.store.ListSettlements(ctx, restaurantID)
	if err != nil {
		return nil, fmt.Errorf("failed to list settlements: %w", err)
	}
	return settlements, nil
}

// Get retrieves a settlement and its included orders. A non-zero
// scopeRestaurantID restricts access to that restaurant's settlements; a
// settlement outside the scope reads as not found.
func (s *SettlementService) Get(ctx context.Context, settlementID, scopeRestaurantID int64) (*SettlementDetail, error) {
	settlement, err := s.store.GetSettlementByID(ctx, settlementID)
	if err != nil {
		return nil, err
	}

	if scopeRestaurantID != 0 && settlement.RestaurantID != scopeRestaurantID {
		return nil, fmt.Errorf("settlement %d: %w", settlementID, models.ErrNotFound)
	}

	restaurant, err := s.store.GetRestaurantByID(ctx, settlement.RestaurantID)
	if err != nil {
		return nil, fmt.Errorf("failed to load settlement restaurant: %w", err)
	}

	orders, err := s.store.GetSettlementOrders(ctx, settlementID)
	if err != nil {
		return nil, fmt.Errorf("failed to load settlement orders: %w", err)
	}

	return &SettlementDetail{
		Settlement: *settlement,
		Restaurant: *restaurant,
		Orders:     orders,
	}, nil
}
