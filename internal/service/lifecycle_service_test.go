package service

import (
	"context"
	"sync"
	"testing"

	"mealrescue/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func seedOrder(t *testing.T, store *memStore) *models.Order {
	t.Helper()
	store.addRestaurant(1, "Bistro", 1500)
	store.addOffer(10, 1, 690, 3)

	intake := NewIntakeService(store, nil, nil)
	resp, err := intake.CreateOrder(context.Background(), &CreateOrderRequest{
		OfferID:       10,
		CustomerName:  "Ada",
		CustomerEmail: "ada@example.com",
	})
	require.NoError(t, err)

	order, err := store.GetOrderByID(context.Background(), resp.OrderID)
	require.NoError(t, err)
	return order
}

func TestChangeStatus_RejectsUnknownStatus(t *testing.T) {
	store := newMemStore()
	order := seedOrder(t, store)

	svc := NewOrderLifecycleService(store, nil)

	_, err := svc.ChangeStatus(context.Background(), order.ID, "SHIPPED", "", nil)
	assert.ErrorIs(t, err, models.ErrBadRequest)

	_, err = svc.ChangeStatus(context.Background(), order.ID, "delivered", "", nil)
	assert.ErrorIs(t, err, models.ErrBadRequest)

	// The order is untouched.
	got, err := store.GetOrderByID(context.Background(), order.ID)
	require.NoError(t, err)
	assert.Equal(t, models.OrderStatusCreated, got.Status)
}

func TestChangeStatus_UnknownOrder(t *testing.T) {
	store := newMemStore()
	svc := NewOrderLifecycleService(store, nil)

	_, err := svc.ChangeStatus(context.Background(), 42, models.OrderStatusPreparing, "", nil)
	assert.ErrorIs(t, err, models.ErrNotFound)
}

func TestChangeStatus_RecordsReasonForAudit(t *testing.T) {
	store := newMemStore()
	order := seedOrder(t, store)

	svc := NewOrderLifecycleService(store, nil)

	result, err := svc.ChangeStatus(context.Background(), order.ID, models.OrderStatusCancelled, "customer called in", ptrInt64(7))
	require.NoError(t, err)
	assert.Equal(t, models.OrderStatusCreated, result.OldStatus)
	assert.Equal(t, models.OrderStatusCancelled, result.NewStatus)

	changes, err := store.GetOrderStatusChanges(context.Background(), order.ID)
	require.NoError(t, err)
	require.Len(t, changes, 1)
	assert.Equal(t, models.OrderStatusCreated, changes[0].FromStatus)
	assert.Equal(t, models.OrderStatusCancelled, changes[0].ToStatus)
	assert.Equal(t, "customer called in", changes[0].Reason)
	require.NotNil(t, changes[0].ActorID)
	assert.Equal(t, int64(7), *changes[0].ActorID)
}

func TestChangeStatus_DeliveredStampsOnce(t *testing.T) {
	store := newMemStore()
	order := seedOrder(t, store)

	svc := NewOrderLifecycleService(store, nil)

	_, err := svc.ChangeStatus(context.Background(), order.ID, models.OrderStatusDelivered, "", ptrInt64(5))
	require.NoError(t, err)

	first, err := store.GetOrderByID(context.Background(), order.ID)
	require.NoError(t, err)
	require.NotNil(t, first.DeliveredAt)
	require.NotNil(t, first.DeliveredByUserID)
	assert.Equal(t, int64(5), *first.DeliveredByUserID)

	// Re-confirming does not move the stamp or reassign the operator.
	_, err = svc.ChangeStatus(context.Background(), order.ID, models.OrderStatusDelivered, "", ptrInt64(9))
	require.NoError(t, err)

	second, err := store.GetOrderByID(context.Background(), order.ID)
	require.NoError(t, err)
	assert.Equal(t, *first.DeliveredAt, *second.DeliveredAt)
	assert.Equal(t, int64(5), *second.DeliveredByUserID)
}

func TestMarkDeliveredByCode_HappyPath(t *testing.T) {
	store := newMemStore()
	order := seedOrder(t, store)

	sink := &recordingSink{}
	svc := NewOrderLifecycleService(store, sink)

	result, err := svc.MarkDeliveredByCode(context.Background(), order.RestaurantID, order.Code, ptrInt64(5))
	require.NoError(t, err)
	assert.Equal(t, order.ID, result.OrderID)
	assert.Equal(t, models.OrderStatusDelivered, result.Status)
	assert.False(t, result.AlreadyDelivered)
	require.NotNil(t, result.DeliveredAt)

	require.Len(t, sink.orderDelivered, 1)
	assert.Equal(t, order.ID, sink.orderDelivered[0].OrderID)
}

func TestMarkDeliveredByCode_IdempotentRetry(t *testing.T) {
	store := newMemStore()
	order := seedOrder(t, store)

	sink := &recordingSink{}
	svc := NewOrderLifecycleService(store, sink)

	first, err := svc.MarkDeliveredByCode(context.Background(), order.RestaurantID, order.Code, ptrInt64(5))
	require.NoError(t, err)
	require.False(t, first.AlreadyDelivered)

	second, err := svc.MarkDeliveredByCode(context.Background(), order.RestaurantID, order.Code, ptrInt64(9))
	require.NoError(t, err)
	assert.True(t, second.AlreadyDelivered)
	assert.Equal(t, first.OrderID, second.OrderID)
	require.NotNil(t, second.DeliveredAt)
	assert.Equal(t, *first.DeliveredAt, *second.DeliveredAt)

	// The retry published no second event.
	assert.Len(t, sink.orderDelivered, 1)
}

func TestMarkDeliveredByCode_OutOfScopeReadsAsNotFound(t *testing.T) {
	store := newMemStore()
	order := seedOrder(t, store)
	store.addRestaurant(2, "Other Bistro", 1000)

	svc := NewOrderLifecycleService(store, nil)

	// The code exists, but under another restaurant's scope.
	_, err := svc.MarkDeliveredByCode(context.Background(), 2, order.Code, ptrInt64(5))
	assert.ErrorIs(t, err, models.ErrNotFound)

	unknownCode := "999999"
	if order.Code == unknownCode {
		unknownCode = "000000"
	}
	_, err = svc.MarkDeliveredByCode(context.Background(), order.RestaurantID, unknownCode, ptrInt64(5))
	assert.ErrorIs(t, err, models.ErrNotFound)
}

func TestMarkDelivered_ConcurrentConfirmationsPublishOneEvent(t *testing.T) {
	store := newMemStore()
	order := seedOrder(t, store)

	sink := &recordingSink{}
	svc := NewOrderLifecycleService(store, sink)

	const attempts = 25
	var wg sync.WaitGroup
	results := make(chan error, attempts)

	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := svc.MarkDelivered(context.Background(), order.ID, ptrInt64(5))
			results <- err
		}()
	}
	wg.Wait()
	close(results)

	for err := range results {
		require.NoError(t, err)
	}

	// Only the confirmation that actually flipped the status publishes.
	assert.Len(t, sink.orderDelivered, 1)

	got, err := store.GetOrderByID(context.Background(), order.ID)
	require.NoError(t, err)
	assert.Equal(t, models.OrderStatusDelivered, got.Status)
}

func TestMarkDelivered_Unscoped(t *testing.T) {
	store := newMemStore()
	order := seedOrder(t, store)

	svc := NewOrderLifecycleService(store, nil)

	result, err := svc.MarkDelivered(context.Background(), order.ID, nil)
	require.NoError(t, err)
	assert.False(t, result.AlreadyDelivered)

	again, err := svc.MarkDelivered(context.Background(), order.ID, nil)
	require.NoError(t, err)
	assert.True(t, again.AlreadyDelivered)
}
