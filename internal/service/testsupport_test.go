package service

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"mealrescue/internal/models"
)

// memStore is an in-memory stand-in for the postgres store. It mirrors
// the store's atomicity contracts under a single mutex: the conditional
// quantity decrement and the settlement claim are all-or-nothing.
type memStore struct {
	mu               sync.Mutex
	restaurants      map[int64]*models.Restaurant
	offers           map[int64]*models.Offer
	orders           map[int64]*models.Order
	settlements      map[int64]*models.Settlement
	changes          []models.OrderStatusChange
	nextOrderID      int64
	nextSettlementID int64
}

func newMemStore() *memStore {
	return &memStore{
		restaurants: make(map[int64]*models.Restaurant),
		offers:      make(map[int64]*models.Offer),
		orders:      make(map[int64]*models.Order),
		settlements: make(map[int64]*models.Settlement),
	}
}

func (m *memStore) addRestaurant(id int64, name string, commissionBps int) *models.Restaurant {
	m.mu.Lock()
	defer m.mu.Unlock()
	r := &models.Restaurant{
		ID:            id,
		Name:          name,
		CommissionBps: commissionBps,
		Active:        true,
		CreatedAt:     time.Now(),
	}
	m.restaurants[id] = r
	return r
}

func (m *memStore) addOffer(id, restaurantID int64, priceCents int64, quantity int) *models.Offer {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := time.Now()
	o := &models.Offer{
		ID:            id,
		RestaurantID:  restaurantID,
		Title:         fmt.Sprintf("Surprise bag %d", id),
		PriceCents:    priceCents,
		Currency:      "EUR",
		Quantity:      quantity,
		AvailableFrom: now.Add(-time.Hour),
		AvailableTo:   now.Add(time.Hour),
		ExpiresAt:     now.Add(2 * time.Hour),
		CreatedAt:     now,
	}
	m.offers[id] = o
	return o
}

func (m *memStore) setCommission(restaurantID int64, bps int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.restaurants[restaurantID].CommissionBps = bps
}

func cloneOrder(o *models.Order) *models.Order {
	c := *o
	if o.DeliveredAt != nil {
		t := *o.DeliveredAt
		c.DeliveredAt = &t
	}
	if o.DeliveredByUserID != nil {
		v := *o.DeliveredByUserID
		c.DeliveredByUserID = &v
	}
	if o.SettlementID != nil {
		v := *o.SettlementID
		c.SettlementID = &v
	}
	return &c
}

func cloneSettlement(s *models.Settlement) *models.Settlement {
	c := *s
	return &c
}

func (m *memStore) offerAvailable(o *models.Offer, now time.Time) bool {
	r := m.restaurants[o.RestaurantID]
	return r != nil && r.Active &&
		o.Quantity > 0 &&
		!now.Before(o.AvailableFrom) &&
		!now.After(o.AvailableTo) &&
		!now.After(o.ExpiresAt)
}

func (m *memStore) listing(o *models.Offer) *models.OfferListing {
	r := m.restaurants[o.RestaurantID]
	return &models.OfferListing{
		OfferID:        o.ID,
		RestaurantID:   o.RestaurantID,
		Title:          o.Title,
		Description:    o.Description,
		PriceCents:     o.PriceCents,
		Currency:       o.Currency,
		Quantity:       o.Quantity,
		RestaurantName: r.Name,
		CommissionBps:  r.CommissionBps,
	}
}

func (m *memStore) GetAvailableOffer(ctx context.Context, offerID int64) (*models.OfferListing, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.offers[offerID]
	if !ok || !m.offerAvailable(o, time.Now()) {
		return nil, models.ErrOfferUnavailable
	}
	return m.listing(o), nil
}

func (m *memStore) GetActiveOffers(ctx context.Context) ([]models.OfferListing, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := time.Now()
	var out []models.OfferListing
	for _, o := range m.offers {
		if m.offerAvailable(o, now) {
			out = append(out, *m.listing(o))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].OfferID < out[j].OfferID })
	return out, nil
}

func (m *memStore) ReserveAndCreateOrder(ctx context.Context, order *models.Order) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.offers[order.OfferID]
	if !ok || o.Quantity <= 0 {
		return 0, models.ErrOutOfStock
	}
	o.Quantity--
	m.nextOrderID++
	order.ID = m.nextOrderID
	order.CreatedAt = time.Now()
	order.UpdatedAt = order.CreatedAt
	m.orders[order.ID] = cloneOrder(order)
	return o.Quantity, nil
}

func (m *memStore) GetOrderByID(ctx context.Context, id int64) (*models.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.orders[id]
	if !ok {
		return nil, fmt.Errorf("order %d: %w", id, models.ErrNotFound)
	}
	return cloneOrder(o), nil
}

func (m *memStore) GetOrderForRestaurantByCode(ctx context.Context, restaurantID int64, code string) (*models.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var best *models.Order
	for _, o := range m.orders {
		if o.RestaurantID != restaurantID || o.Code != code {
			continue
		}
		if best == nil {
			best = o
			continue
		}
		bestDelivered := best.Status == models.OrderStatusDelivered
		oDelivered := o.Status == models.OrderStatusDelivered
		if bestDelivered && !oDelivered {
			best = o
		} else if bestDelivered == oDelivered && o.CreatedAt.After(best.CreatedAt) {
			best = o
		}
	}
	if best == nil {
		return nil, fmt.Errorf("code %s: %w", code, models.ErrNotFound)
	}
	return cloneOrder(best), nil
}

func (m *memStore) UpdateOrderStatus(ctx context.Context, orderID int64, status, reason string, actorID *int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.orders[orderID]
	if !ok {
		return fmt.Errorf("order %d: %w", orderID, models.ErrNotFound)
	}
	m.changes = append(m.changes, models.OrderStatusChange{
		ID:         int64(len(m.changes) + 1),
		OrderID:    orderID,
		FromStatus: o.Status,
		ToStatus:   status,
		Reason:     reason,
		ActorID:    actorID,
		CreatedAt:  time.Now(),
	})
	o.Status = status
	o.UpdatedAt = time.Now()
	return nil
}

func (m *memStore) MarkOrderDelivered(ctx context.Context, orderID int64, operatorID *int64) (*models.Order, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.orders[orderID]
	if !ok {
		return nil, false, fmt.Errorf("order %d: %w", orderID, models.ErrNotFound)
	}
	firstDelivery := o.Status != models.OrderStatusDelivered
	if firstDelivery {
		m.changes = append(m.changes, models.OrderStatusChange{
			ID:         int64(len(m.changes) + 1),
			OrderID:    orderID,
			FromStatus: o.Status,
			ToStatus:   models.OrderStatusDelivered,
			ActorID:    operatorID,
			CreatedAt:  time.Now(),
		})
	}
	o.Status = models.OrderStatusDelivered
	if o.DeliveredAt == nil {
		now := time.Now()
		o.DeliveredAt = &now
	}
	if o.DeliveredByUserID == nil && operatorID != nil {
		v := *operatorID
		o.DeliveredByUserID = &v
	}
	o.UpdatedAt = time.Now()
	return cloneOrder(o), firstDelivery, nil
}

func (m *memStore) GetRestaurantByID(ctx context.Context, id int64) (*models.Restaurant, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.restaurants[id]
	if !ok {
		return nil, fmt.Errorf("restaurant %d: %w", id, models.ErrNotFound)
	}
	c := *r
	return &c, nil
}

func (m *memStore) GetOrderStatusChanges(ctx context.Context, orderID int64) ([]models.OrderStatusChange, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.OrderStatusChange
	for _, c := range m.changes {
		if c.OrderID == orderID {
			out = append(out, c)
		}
	}
	return out, nil
}

func (m *memStore) RestaurantIDsWithUnsettledDeliveries(ctx context.Context, periodStart, periodEnd time.Time) ([]int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	seen := make(map[int64]bool)
	for _, o := range m.orders {
		if m.unsettledInPeriod(o, periodStart, periodEnd) {
			seen[o.RestaurantID] = true
		}
	}
	var ids []int64
	for id := range seen {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids, nil
}

func (m *memStore) unsettledInPeriod(o *models.Order, periodStart, periodEnd time.Time) bool {
	return o.Status == models.OrderStatusDelivered &&
		o.SettlementID == nil &&
		o.DeliveredAt != nil &&
		!o.DeliveredAt.Before(periodStart) &&
		o.DeliveredAt.Before(periodEnd)
}

func (m *memStore) SettleRestaurantPeriod(ctx context.Context, restaurantID int64, periodStart, periodEnd time.Time) (*models.Settlement, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var claimed []*models.Order
	for _, o := range m.orders {
		if o.RestaurantID == restaurantID && m.unsettledInPeriod(o, periodStart, periodEnd) {
			claimed = append(claimed, o)
		}
	}
	if len(claimed) == 0 {
		return nil, nil
	}

	m.nextSettlementID++
	s := &models.Settlement{
		ID:           m.nextSettlementID,
		RestaurantID: restaurantID,
		PeriodStart:  periodStart,
		PeriodEnd:    periodEnd,
		Status:       models.SettlementStatusDraft,
		CreatedAt:    time.Now(),
		UpdatedAt:    time.Now(),
	}
	for _, o := range claimed {
		sid := s.ID
		o.SettlementID = &sid
		o.UpdatedAt = time.Now()
		s.TotalOrders++
		s.TotalOrdersCents += o.TotalCents
		s.PlatformFeeCents += o.PlatformFeeCents
		s.CommissionBps = o.CommissionBpsAtPurchase
	}
	s.NetToRestaurantCents = s.TotalOrdersCents - s.PlatformFeeCents
	m.settlements[s.ID] = s
	return cloneSettlement(s), nil
}

func (m *memStore) GetSettlementByID(ctx context.Context, id int64) (*models.Settlement, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.settlements[id]
	if !ok {
		return nil, fmt.Errorf("settlement %d: %w", id, models.ErrNotFound)
	}
	return cloneSettlement(s), nil
}

func (m *memStore) GetSettlementOrders(ctx context.Context, settlementID int64) ([]models.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.Order
	for _, o := range m.orders {
		if o.SettlementID != nil && *o.SettlementID == settlementID {
			out = append(out, *cloneOrder(o))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *memStore) ListSettlements(ctx context.Context, restaurantID int64) ([]models.Settlement, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.Settlement
	for _, s := range m.settlements {
		if restaurantID == 0 || s.RestaurantID == restaurantID {
			out = append(out, *cloneSettlement(s))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	return out, nil
}

func (m *memStore) UpdateSettlementStatus(ctx context.Context, id int64, status, notes string, actorID *int64) (*models.Settlement, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.settlements[id]
	if !ok {
		return nil, fmt.Errorf("settlement %d: %w", id, models.ErrNotFound)
	}
	s.Status = status
	if status == models.SettlementStatusConfirmed {
		if s.ConfirmedAt == nil {
			now := time.Now()
			s.ConfirmedAt = &now
		}
		if s.ConfirmedBy == nil && actorID != nil {
			v := *actorID
			s.ConfirmedBy = &v
		}
	}
	if status == models.SettlementStatusPaid {
		if s.PaidAt == nil {
			now := time.Now()
			s.PaidAt = &now
		}
		if s.PaidBy == nil && actorID != nil {
			v := *actorID
			s.PaidBy = &v
		}
	}
	if notes != "" {
		s.Notes = notes
	}
	s.UpdatedAt = time.Now()
	return cloneSettlement(s), nil
}

// recordingSink captures published events for assertions
type recordingSink struct {
	mu                sync.Mutex
	orderCreated      []*models.OrderCreatedEvent
	orderDelivered    []*models.OrderDeliveredEvent
	settlementCreated []*models.SettlementCreatedEvent
}

func (r *recordingSink) PublishOrderCreated(ctx context.Context, e *models.OrderCreatedEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.orderCreated = append(r.orderCreated, e)
	return nil
}

func (r *recordingSink) PublishOrderDelivered(ctx context.Context, e *models.OrderDeliveredEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.orderDelivered = append(r.orderDelivered, e)
	return nil
}

func (r *recordingSink) PublishSettlementCreated(ctx context.Context, e *models.SettlementCreatedEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.settlementCreated = append(r.settlementCreated, e)
	return nil
}

// fakeMirror is an in-memory QuantityMirror
type fakeMirror struct {
	mu         sync.Mutex
	quantities map[int64]int
}

func newFakeMirror() *fakeMirror {
	return &fakeMirror{quantities: make(map[int64]int)}
}

func (f *fakeMirror) SetOfferQuantity(ctx context.Context, offerID int64, quantity int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.quantities[offerID] = quantity
	return nil
}

func (f *fakeMirror) GetOfferQuantity(ctx context.Context, offerID int64) (int, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	qty, ok := f.quantities[offerID]
	return qty, ok, nil
}

func ptrInt64(v int64) *int64 {
	return &v
}
