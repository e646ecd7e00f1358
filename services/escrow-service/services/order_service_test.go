package services_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/cjsinari/marikiti-backend/services/escrow-service/models"
	"github.com/cjsinari/marikiti-backend/services/escrow-service/services"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newOrderService(repo *fakeOrderRepo, idem services.IdempotencyStore, sink *fakeSink) services.OrderService {
	events := services.NewEventPublisher(sink, "orders", "payments", zap.NewNop())
	return services.NewOrderService(repo, idem, time.Hour, events, nil, time.Second, zap.NewNop())
}

func sampleLines() []models.CartLine {
	return []models.CartLine{
		{ProductID: "p1", ProductName: "Tomatoes", Price: 10, Quantity: 2},
		{ProductID: "p2", ProductName: "Onions", Price: 5, Quantity: 1},
	}
}

func TestCreateOrder_EmptyCart(t *testing.T) {
	repo := newFakeOrderRepo()
	svc := newOrderService(repo, nil, &fakeSink{})

	id, err := svc.CreateOrder(context.Background(), nil, "buyer-1", models.PaymentMethodCash, "")
	assert.ErrorIs(t, err, services.ErrEmptyCart)
	assert.Empty(t, id)
	assert.Equal(t, 0, repo.createCalls)
}

func TestCreateOrder_SnapshotsCart(t *testing.T) {
	repo := newFakeOrderRepo()
	sink := &fakeSink{}
	svc := newOrderService(repo, nil, sink)

	lines := sampleLines()
	id, err := svc.CreateOrder(context.Background(), lines, "buyer-1", models.PaymentMethodCash, "")
	require.NoError(t, err)

	lines[0].Quantity = 100

	o := repo.get(id)
	assert.Equal(t, 25.0, o.TotalAmount)
	assert.Equal(t, models.OrderPaymentPending, o.PaymentStatus)
	assert.Equal(t, models.DeliveryPending, o.DeliveryStatus)
	assert.Equal(t, models.PaymentMethodCash, o.PaymentMethod)
	assert.Equal(t, "buyer-1", o.BuyerID)
	require.Len(t, o.Items, 2)
	assert.Equal(t, 2, o.Items[0].Quantity)
	assert.False(t, o.CreatedAt.IsZero())
	assert.Equal(t, 1, sink.count())
}

func TestCreateOrder_PersistenceFailure(t *testing.T) {
	repo := newFakeOrderRepo()
	repo.createErr = errors.New("connection reset")
	svc := newOrderService(repo, nil, &fakeSink{})

	_, err := svc.CreateOrder(context.Background(), sampleLines(), "b", models.PaymentMethodCash, "")
	require.Error(t, err)

	var se *services.ServiceError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, services.KindPersistence, se.Kind)
	assert.Equal(t, "Failed to create order", se.Message)
	assert.EqualError(t, errors.Unwrap(err), "connection reset")
}

func TestCreateOrder_IdempotencyKeyReusesOrder(t *testing.T) {
	repo := newFakeOrderRepo()
	svc := newOrderService(repo, newFakeIdem(), &fakeSink{})
	ctx := context.Background()

	first, err := svc.CreateOrder(ctx, sampleLines(), "b", models.PaymentMethodMpesa, "key-1")
	require.NoError(t, err)
	second, err := svc.CreateOrder(ctx, sampleLines(), "b", models.PaymentMethodMpesa, "key-1")
	require.NoError(t, err)
	third, err := svc.CreateOrder(ctx, sampleLines(), "b", models.PaymentMethodMpesa, "key-2")
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.NotEqual(t, first, third)
	assert.Equal(t, 2, repo.createCalls)
}

func TestUpdateDeliveryStatus_DeliveredCompletesPaymentInOneUpdate(t *testing.T) {
	repo := newFakeOrderRepo()
	svc := newOrderService(repo, nil, &fakeSink{})
	ctx := context.Background()

	id, err := svc.CreateOrder(ctx, sampleLines(), "b", models.PaymentMethodCash, "")
	require.NoError(t, err)

	require.NoError(t, svc.UpdateDeliveryStatus(ctx, id, models.DeliveryDelivered))

	require.Len(t, repo.updates, 1)
	u := repo.updates[0]
	require.NotNil(t, u.DeliveryStatus)
	require.NotNil(t, u.PaymentStatus)
	assert.Equal(t, models.DeliveryDelivered, *u.DeliveryStatus)
	assert.Equal(t, models.OrderPaymentComplete, *u.PaymentStatus)

	o := repo.get(id)
	assert.Equal(t, models.DeliveryDelivered, o.DeliveryStatus)
	assert.Equal(t, models.OrderPaymentComplete, o.PaymentStatus)
}

func TestUpdateDeliveryStatus_PendingLeavesPayment(t *testing.T) {
	repo := newFakeOrderRepo()
	svc := newOrderService(repo, nil, &fakeSink{})
	ctx := context.Background()

	id, err := svc.CreateOrder(ctx, sampleLines(), "b", models.PaymentMethodCash, "")
	require.NoError(t, err)

	require.NoError(t, svc.UpdateDeliveryStatus(ctx, id, models.DeliveryPending))
	require.Len(t, repo.updates, 1)
	assert.Nil(t, repo.updates[0].PaymentStatus)
}

func TestUpdateDeliveryStatus_Errors(t *testing.T) {
	repo := newFakeOrderRepo()
	svc := newOrderService(repo, nil, &fakeSink{})
	ctx := context.Background()

	assert.ErrorIs(t, svc.UpdateDeliveryStatus(ctx, "missing", models.DeliveryDelivered), services.ErrOrderNotFound)
	assert.ErrorIs(t, svc.UpdateDeliveryStatus(ctx, "missing", "shipped"), services.ErrInvalidStatus)
	assert.Empty(t, repo.updates)
}

func TestUpdatePaymentStatus_DirectWrite(t *testing.T) {
	repo := newFakeOrderRepo()
	svc := newOrderService(repo, nil, &fakeSink{})
	ctx := context.Background()

	id, err := svc.CreateOrder(ctx, sampleLines(), "b", models.PaymentMethodMpesa, "")
	require.NoError(t, err)

	require.NoError(t, svc.UpdatePaymentStatus(ctx, id, models.OrderPaymentCancelled))
	o := repo.get(id)
	assert.Equal(t, models.OrderPaymentCancelled, o.PaymentStatus)
	assert.Equal(t, models.DeliveryPending, o.DeliveryStatus)
}

func TestGetOrder_NotFound(t *testing.T) {
	svc := newOrderService(newFakeOrderRepo(), nil, &fakeSink{})

	_, err := svc.GetOrder(context.Background(), "nope")
	assert.ErrorIs(t, err, services.ErrOrderNotFound)
	assert.Equal(t, 404, services.StatusCode(err))
}
