package orders

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/vendimia-erp/vendimia-erp/internal/catalog"
	"github.com/vendimia-erp/vendimia-erp/internal/shared"
	"github.com/vendimia-erp/vendimia-erp/internal/stock"
)

const (
	testActor     int64 = 7
	testWarehouse int64 = 1
	testStockType int64 = 1
)

func newTestService(repo *memoryRepo) *Service {
	repo.state.profiles[testActor] = Profile{UserID: testActor, BranchID: 1, WarehouseID: testWarehouse}
	return NewService(repo, testCatalog(), nil, nil, nil, ServiceConfig{
		DefaultStockTypeID: testStockType,
		DefaultAccountID:   1,
		ReservationTTL:     3 * time.Hour,
	})
}

func seedLevel(repo *memoryRepo, variationID, qty int64) {
	key := stock.Key{VariationID: variationID, WarehouseID: testWarehouse, StockTypeID: testStockType}
	repo.state.levels[key] = stock.Level{VariationID: variationID, WarehouseID: testWarehouse, StockTypeID: testStockType, Quantity: qty}
}

func levelQty(repo *memoryRepo, variationID int64) int64 {
	return repo.state.levels[stock.Key{VariationID: variationID, WarehouseID: testWarehouse, StockTypeID: testStockType}].Quantity
}

func actorCtx() context.Context {
	return shared.ContextWithActor(context.Background(), testActor)
}

func baseRequest(lines ...CreateOrderLineReq) CreateOrderRequest {
	return CreateOrderRequest{
		CustomerDocType:   "DNI",
		CustomerDocNumber: "45871236",
		CustomerName:      "Lucia",
		CustomerLastName:  "Paredes",
		SaleTypeID:        1,
		Currency:          "PEN",
		Lines:             lines,
	}
}

func line(variationID, qty int64, price string) CreateOrderLineReq {
	return CreateOrderLineReq{
		VariationID: variationID,
		Quantity:    qty,
		UnitPrice:   decimal.RequireFromString(price),
	}
}

func TestCreateReservationHoldsWithoutDeduction(t *testing.T) {
	repo := newMemoryRepo()
	seedLevel(repo, 100, 10)
	svc := newTestService(repo)

	req := baseRequest(line(100, 4, "25.00"))
	req.Reservation = true

	agg, err := svc.Create(actorCtx(), req)
	require.NoError(t, err)
	require.Equal(t, catalog.CodeReserved, agg.StatusCode)
	require.Equal(t, int64(10), levelQty(repo, 100), "reservation must not touch the counter")

	lines := repo.state.lines[agg.Order.ID]
	require.Len(t, lines, 1)
	require.True(t, lines[0].Reservation)
	require.NotNil(t, lines[0].MovementID)

	mov := repo.state.movements[*lines[0].MovementID]
	require.False(t, mov.Completed)
	require.False(t, mov.IsActive)
	require.Equal(t, int64(-4), mov.Quantity)
}

func TestCreateDirectSaleFullyPaidConfirms(t *testing.T) {
	repo := newMemoryRepo()
	seedLevel(repo, 100, 10)
	svc := newTestService(repo)

	req := baseRequest(line(100, 4, "25.00"))
	req.Payments = []CreatePaymentReq{{Amount: decimal.RequireFromString("100.00")}}

	agg, err := svc.Create(actorCtx(), req)
	require.NoError(t, err)
	require.Equal(t, catalog.CodeConfirmed, agg.StatusCode)
	require.Equal(t, int64(6), levelQty(repo, 100))
	require.True(t, agg.Order.Total.Equal(decimal.RequireFromString("100.00")))

	require.Len(t, repo.state.finMovs, 1)
	for _, m := range repo.state.finMovs {
		require.True(t, m.Amount.Equal(decimal.RequireFromString("100.00")))
	}
	require.NotNil(t, repo.state.payments[agg.Order.ID][0].FinanceMovementID)
}

func TestCreateWithoutOptionalContactFields(t *testing.T) {
	repo := newMemoryRepo()
	seedLevel(repo, 100, 10)
	svc := newTestService(repo)

	// baseRequest leaves contact, address, district and reference unset;
	// they stay null end to end rather than being forced to empty strings.
	agg, err := svc.Create(actorCtx(), baseRequest(line(100, 1, "10.00")))
	require.NoError(t, err)

	stored := repo.state.orders[agg.Order.ID]
	require.Nil(t, stored.CustomerContact)
	require.Nil(t, stored.Address)
	require.Nil(t, stored.District)
	require.Nil(t, stored.Reference)
}

func TestIncomeFallsBackToDefaultAccount(t *testing.T) {
	repo := newMemoryRepo()
	seedLevel(repo, 100, 10)
	svc := newTestService(repo)

	method := int64(55) // no business account mapped
	req := baseRequest(line(100, 2, "10.00"))
	req.Payments = []CreatePaymentReq{{Amount: decimal.RequireFromString("20.00"), MethodID: &method}}

	agg, err := svc.Create(actorCtx(), req)
	require.NoError(t, err)
	require.Equal(t, catalog.CodeConfirmed, agg.StatusCode)

	require.Len(t, repo.state.finMovs, 1)
	for _, m := range repo.state.finMovs {
		require.Equal(t, int64(1), m.AccountID)
	}
}

func TestCreateDirectSalePartialPaymentStartsPending(t *testing.T) {
	repo := newMemoryRepo()
	seedLevel(repo, 100, 10)
	svc := newTestService(repo)

	req := baseRequest(line(100, 2, "50.00"))
	req.Payments = []CreatePaymentReq{{Amount: decimal.RequireFromString("40.00")}}

	agg, err := svc.Create(actorCtx(), req)
	require.NoError(t, err)
	require.Equal(t, catalog.CodePending, agg.StatusCode)
	require.Equal(t, int64(8), levelQty(repo, 100), "direct sale deducts even when unpaid")
	require.Empty(t, repo.state.finMovs, "income is booked at confirmation")
}

func TestCreateReservationRespectsExistingHolds(t *testing.T) {
	repo := newMemoryRepo()
	seedLevel(repo, 100, 5)
	svc := newTestService(repo)

	first := baseRequest(line(100, 3, "10.00"))
	first.Reservation = true
	_, err := svc.Create(actorCtx(), first)
	require.NoError(t, err)

	second := baseRequest(line(100, 3, "10.00"))
	second.Reservation = true
	_, err = svc.Create(actorCtx(), second)
	require.ErrorIs(t, err, shared.ErrInsufficientStock)
}

func TestCreateInsufficientStockRollsBackEverything(t *testing.T) {
	repo := newMemoryRepo()
	seedLevel(repo, 100, 10)
	seedLevel(repo, 200, 1)
	svc := newTestService(repo)

	req := baseRequest(line(100, 4, "25.00"), line(200, 5, "10.00"))

	_, err := svc.Create(actorCtx(), req)
	require.ErrorIs(t, err, shared.ErrInsufficientStock)
	require.Equal(t, int64(10), levelQty(repo, 100), "first line must roll back")
	require.Empty(t, repo.state.orders)
	require.Empty(t, repo.state.movements)
}

func TestCreatePaymentsExceedingTotalRejected(t *testing.T) {
	repo := newMemoryRepo()
	seedLevel(repo, 100, 10)
	svc := newTestService(repo)

	req := baseRequest(line(100, 1, "50.00"))
	req.Payments = []CreatePaymentReq{{Amount: decimal.RequireFromString("50.01")}}

	_, err := svc.Create(actorCtx(), req)
	require.ErrorIs(t, err, shared.ErrValidation)
}

func TestCreateUnknownCurrencyRejected(t *testing.T) {
	repo := newMemoryRepo()
	svc := newTestService(repo)

	req := baseRequest(line(100, 1, "50.00"))
	req.Currency = "XQZ"

	_, err := svc.Create(actorCtx(), req)
	require.ErrorIs(t, err, shared.ErrValidation)
}

func TestCreateWithoutActorRejected(t *testing.T) {
	repo := newMemoryRepo()
	svc := newTestService(repo)

	_, err := svc.Create(context.Background(), baseRequest(line(100, 1, "10.00")))
	require.ErrorIs(t, err, shared.ErrUnauthorized)
}

func TestUpdateRejectedAfterConfirmation(t *testing.T) {
	repo := newMemoryRepo()
	seedLevel(repo, 100, 10)
	svc := newTestService(repo)

	req := baseRequest(line(100, 1, "50.00"))
	req.Payments = []CreatePaymentReq{{Amount: decimal.RequireFromString("50.00")}}
	agg, err := svc.Create(actorCtx(), req)
	require.NoError(t, err)
	require.Equal(t, catalog.CodeConfirmed, agg.StatusCode)

	contact := "999888777"
	_, err = svc.Update(actorCtx(), agg.Order.ID, UpdateOrderRequest{CustomerContact: &contact})
	require.ErrorIs(t, err, shared.ErrValidation)
}

func TestUpdateByAnotherUserRejected(t *testing.T) {
	repo := newMemoryRepo()
	seedLevel(repo, 100, 10)
	svc := newTestService(repo)
	repo.state.profiles[99] = Profile{UserID: 99, BranchID: 1, WarehouseID: testWarehouse}

	req := baseRequest(line(100, 1, "50.00"))
	req.Reservation = true
	agg, err := svc.Create(actorCtx(), req)
	require.NoError(t, err)

	contact := "999888777"
	otherCtx := shared.ContextWithActor(context.Background(), 99)
	_, err = svc.Update(otherCtx, agg.Order.ID, UpdateOrderRequest{CustomerContact: &contact})
	require.ErrorIs(t, err, shared.ErrUnauthorized)
}

func TestUpdateReplacesReservedLines(t *testing.T) {
	repo := newMemoryRepo()
	seedLevel(repo, 100, 10)
	seedLevel(repo, 200, 10)
	svc := newTestService(repo)

	req := baseRequest(line(100, 4, "25.00"))
	req.Reservation = true
	agg, err := svc.Create(actorCtx(), req)
	require.NoError(t, err)

	newLines := []CreateOrderLineReq{line(200, 2, "30.00")}
	updated, err := svc.Update(actorCtx(), agg.Order.ID, UpdateOrderRequest{Lines: &newLines})
	require.NoError(t, err)
	require.True(t, updated.Order.Total.Equal(decimal.RequireFromString("60.00")))

	lines := repo.state.lines[agg.Order.ID]
	require.Len(t, lines, 1)
	require.Equal(t, int64(200), lines[0].VariationID)
	require.True(t, lines[0].Reservation)

	reserved, err := (&memoryStockTx{state: repo.state}).ReservedQuantity(context.Background(), 100, testWarehouse)
	require.NoError(t, err)
	require.Zero(t, reserved, "old hold must be released")
	require.Equal(t, int64(10), levelQty(repo, 100))
	require.Equal(t, int64(10), levelQty(repo, 200))
}

func TestUpdatePendingOrderRestocksOldLines(t *testing.T) {
	repo := newMemoryRepo()
	seedLevel(repo, 100, 10)
	seedLevel(repo, 200, 10)
	svc := newTestService(repo)

	req := baseRequest(line(100, 4, "25.00"))
	req.Payments = []CreatePaymentReq{{Amount: decimal.RequireFromString("10.00")}}
	agg, err := svc.Create(actorCtx(), req)
	require.NoError(t, err)
	require.Equal(t, catalog.CodePending, agg.StatusCode)
	require.Equal(t, int64(6), levelQty(repo, 100))

	newLines := []CreateOrderLineReq{line(200, 2, "30.00")}
	_, err = svc.Update(actorCtx(), agg.Order.ID, UpdateOrderRequest{Lines: &newLines})
	require.NoError(t, err)
	require.Equal(t, int64(10), levelQty(repo, 100), "replaced lines flow back")
	require.Equal(t, int64(8), levelQty(repo, 200))
}

func TestGetAggregateAssemblesEverything(t *testing.T) {
	repo := newMemoryRepo()
	seedLevel(repo, 100, 10)
	svc := newTestService(repo)

	req := baseRequest(line(100, 2, "50.00"))
	req.Payments = []CreatePaymentReq{{Amount: decimal.RequireFromString("30.00")}}
	created, err := svc.Create(actorCtx(), req)
	require.NoError(t, err)

	agg, err := svc.Get(actorCtx(), created.Order.ID)
	require.NoError(t, err)
	require.Equal(t, created.Order.ID, agg.Order.ID)
	require.Len(t, agg.Lines, 1)
	require.Len(t, agg.Payments, 1)
	require.Equal(t, "Pendiente de pago", agg.SituationName)
	require.True(t, agg.PaidToDate.Equal(decimal.RequireFromString("30.00")))
	require.Equal(t, int64(8), agg.Lines[0].OnHand)
}

func TestGetUnknownOrder(t *testing.T) {
	repo := newMemoryRepo()
	svc := newTestService(repo)

	_, err := svc.Get(actorCtx(), 999)
	require.ErrorIs(t, err, shared.ErrNotFound)
}
