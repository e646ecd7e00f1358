package repository_test

import (
	"context"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/cjsinari/marikiti-backend/services/escrow-service/models"
	"github.com/cjsinari/marikiti-backend/services/escrow-service/repository"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

func setupMockDB(t *testing.T) (*gorm.DB, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	assert.NoError(t, err)

	gormDB, err := gorm.Open(postgres.New(postgres.Config{Conn: db}), &gorm.Config{})
	assert.NoError(t, err)
	return gormDB, mock
}

var paymentColumns = []string{"id", "order_id", "method", "amount", "status", "checkout_request_id", "created_at", "updated_at"}

func TestPaymentCreate_Success(t *testing.T) {
	gormDB, mock := setupMockDB(t)
	repo := repository.NewGormPaymentRepository(gormDB)

	id := uuid.New()
	payment := &models.Payment{
		OrderID: "64f1c2a9e4b0a1b2c3d4e5f6",
		Method:  models.PaymentMethodMpesa,
		Amount:  450,
		Status:  models.PaymentPending,
	}

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta(`INSERT INTO "payments"`)).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(id))
	mock.ExpectCommit()

	err := repo.Create(context.Background(), payment)
	assert.NoError(t, err)
	assert.Equal(t, id, payment.ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPaymentFindByID_NotFound(t *testing.T) {
	gormDB, mock := setupMockDB(t)
	repo := repository.NewGormPaymentRepository(gormDB)

	mock.ExpectQuery(regexp.QuoteMeta(`SELECT * FROM "payments"`)).
		WillReturnRows(sqlmock.NewRows(paymentColumns))

	p, err := repo.FindByID(context.Background(), uuid.New())
	assert.ErrorIs(t, err, repository.ErrNotFound)
	assert.Nil(t, p)
}

func TestPaymentFindByCheckoutRequestID_Success(t *testing.T) {
	gormDB, mock := setupMockDB(t)
	repo := repository.NewGormPaymentRepository(gormDB)

	id := uuid.New()
	now := time.Now()
	rows := sqlmock.NewRows(paymentColumns).
		AddRow(id, "order-1", "mpesa", 200.0, "pending", "ws_CO_123", now, now)

	mock.ExpectQuery(regexp.QuoteMeta(`SELECT * FROM "payments"`)).
		WillReturnRows(rows)

	p, err := repo.FindByCheckoutRequestID(context.Background(), "ws_CO_123")
	assert.NoError(t, err)
	assert.Equal(t, id, p.ID)
	assert.Equal(t, models.PaymentPending, p.Status)
	if assert.NotNil(t, p.CheckoutRequestID) {
		assert.Equal(t, "ws_CO_123", *p.CheckoutRequestID)
	}
}

func TestPaymentFindByOrderID_Success(t *testing.T) {
	gormDB, mock := setupMockDB(t)
	repo := repository.NewGormPaymentRepository(gormDB)

	now := time.Now()
	rows := sqlmock.NewRows(paymentColumns).
		AddRow(uuid.New(), "order-7", "mpesa", 100.0, "failed", nil, now, now).
		AddRow(uuid.New(), "order-7", "mpesa", 100.0, "pending", "ws_CO_9", now, now)

	mock.ExpectQuery(regexp.QuoteMeta(`SELECT * FROM "payments" WHERE order_id = $1`)).
		WithArgs("order-7").
		WillReturnRows(rows)

	payments, err := repo.FindByOrderID(context.Background(), "order-7")
	assert.NoError(t, err)
	assert.Len(t, payments, 2)
	assert.Equal(t, models.PaymentFailed, payments[0].Status)
}

func TestPaymentTransitionFromPending_Applied(t *testing.T) {
	gormDB, mock := setupMockDB(t)
	repo := repository.NewGormPaymentRepository(gormDB)

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta(`UPDATE "payments" SET`)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	ok, err := repo.TransitionFromPending(context.Background(), uuid.New(), repository.StatusChange{
		To:      models.PaymentComplete,
		Receipt: "QKX123",
	})
	assert.NoError(t, err)
	assert.True(t, ok)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPaymentTransitionFromPending_NotPending(t *testing.T) {
	gormDB, mock := setupMockDB(t)
	repo := repository.NewGormPaymentRepository(gormDB)

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta(`UPDATE "payments" SET`)).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectCommit()

	ok, err := repo.TransitionFromPending(context.Background(), uuid.New(), repository.StatusChange{To: models.PaymentFailed})
	assert.NoError(t, err)
	assert.False(t, ok)
}

func TestPaymentSetGatewayReference_Missing(t *testing.T) {
	gormDB, mock := setupMockDB(t)
	repo := repository.NewGormPaymentRepository(gormDB)

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta(`UPDATE "payments" SET`)).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectCommit()

	err := repo.SetGatewayReference(context.Background(), uuid.New(), "ws_CO_1", "accepted")
	assert.ErrorIs(t, err, repository.ErrNotFound)
}

func TestPaymentSetGatewayReference_EmptyTokenStoredAsNull(t *testing.T) {
	gormDB, mock := setupMockDB(t)
	repo := repository.NewGormPaymentRepository(gormDB)
	id := uuid.New()

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta(`UPDATE "payments" SET "checkout_request_id"=$1,"gateway_message"=$2`)).
		WithArgs(nil, "accepted", sqlmock.AnyArg(), id).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	assert.NoError(t, repo.SetGatewayReference(context.Background(), id, "", "accepted"))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPaymentSetGatewayReference_StoresToken(t *testing.T) {
	gormDB, mock := setupMockDB(t)
	repo := repository.NewGormPaymentRepository(gormDB)
	id := uuid.New()

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta(`UPDATE "payments" SET "checkout_request_id"=$1,"gateway_message"=$2`)).
		WithArgs("ws_CO_1", "accepted", sqlmock.AnyArg(), id).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	assert.NoError(t, repo.SetGatewayReference(context.Background(), id, "ws_CO_1", "accepted"))
	assert.NoError(t, mock.ExpectationsWereMet())
}
