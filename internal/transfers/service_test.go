package transfers

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/vendimia-erp/vendimia-erp/internal/catalog"
	"github.com/vendimia-erp/vendimia-erp/internal/shared"
	"github.com/vendimia-erp/vendimia-erp/internal/stock"
)

const (
	testActor      int64 = 3
	fromWarehouse  int64 = 1
	toWarehouse    int64 = 2
	sitPending     int64 = 20
	sitApproved    int64 = 21
	sitCancelled   int64 = 22
	sitDispatched  int64 = 23
	sitReceived    int64 = 24
	sitOrderModule int64 = 10
)

type memState struct {
	requests   map[int64]Request
	items      map[int64][]Item
	situations []SituationRow
	levels     map[stock.Key]stock.Level
	movements  map[int64]stock.Movement
	nextID     int64
}

func newMemState() *memState {
	return &memState{
		requests:  make(map[int64]Request),
		items:     make(map[int64][]Item),
		levels:    make(map[stock.Key]stock.Level),
		movements: make(map[int64]stock.Movement),
	}
}

func (s *memState) clone() *memState {
	c := newMemState()
	for k, v := range s.requests {
		c.requests[k] = v
	}
	for k, v := range s.items {
		c.items[k] = append([]Item(nil), v...)
	}
	c.situations = append([]SituationRow(nil), s.situations...)
	for k, v := range s.levels {
		c.levels[k] = v
	}
	for k, v := range s.movements {
		c.movements[k] = v
	}
	c.nextID = s.nextID
	return c
}

type memoryRepo struct {
	state *memState
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{state: newMemState()}
}

type memoryTx struct {
	state *memState
}

func (r *memoryRepo) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	tx := &memoryTx{state: r.state.clone()}
	if err := fn(ctx, tx); err != nil {
		return err
	}
	r.state = tx.state
	return nil
}

func (r *memoryRepo) Get(ctx context.Context, id int64) (Request, error) {
	if req, ok := r.state.requests[id]; ok {
		return req, nil
	}
	return Request{}, shared.ErrNotFound
}

func (r *memoryRepo) ItemsByRequest(ctx context.Context, requestID int64) ([]Item, error) {
	return append([]Item(nil), r.state.items[requestID]...), nil
}

func (r *memoryRepo) CurrentSituation(ctx context.Context, requestID int64) (SituationRow, error) {
	for _, row := range r.state.situations {
		if row.RequestID == requestID && row.LastRow {
			return row, nil
		}
	}
	return SituationRow{}, ErrNoCurrentSituation
}

func (tx *memoryTx) InsertRequest(ctx context.Context, req Request) (int64, error) {
	tx.state.nextID++
	req.ID = tx.state.nextID
	req.CreatedAt = time.Now()
	tx.state.requests[req.ID] = req
	return req.ID, nil
}

func (tx *memoryTx) InsertItem(ctx context.Context, item Item) (int64, error) {
	tx.state.nextID++
	item.ID = tx.state.nextID
	tx.state.items[item.RequestID] = append(tx.state.items[item.RequestID], item)
	return item.ID, nil
}

func (tx *memoryTx) Items(ctx context.Context, requestID int64) ([]Item, error) {
	return append([]Item(nil), tx.state.items[requestID]...), nil
}

func (tx *memoryTx) ApproveItems(ctx context.Context, requestID int64, itemIDs []int64) error {
	items := tx.state.items[requestID]
	for i := range items {
		if len(itemIDs) == 0 {
			items[i].Approved = true
			continue
		}
		for _, id := range itemIDs {
			if items[i].ID == id {
				items[i].Approved = true
			}
		}
	}
	tx.state.items[requestID] = items
	return nil
}

func (tx *memoryTx) CurrentSituationForUpdate(ctx context.Context, requestID int64) (SituationRow, error) {
	for _, row := range tx.state.situations {
		if row.RequestID == requestID && row.LastRow {
			return row, nil
		}
	}
	return SituationRow{}, ErrNoCurrentSituation
}

func (tx *memoryTx) CloseSituation(ctx context.Context, rowID int64) error {
	for i := range tx.state.situations {
		if tx.state.situations[i].ID == rowID {
			tx.state.situations[i].LastRow = false
		}
	}
	return nil
}

func (tx *memoryTx) InsertSituation(ctx context.Context, row SituationRow) (int64, error) {
	tx.state.nextID++
	row.ID = tx.state.nextID
	row.LastRow = true
	row.CreatedAt = time.Now()
	tx.state.situations = append(tx.state.situations, row)
	return row.ID, nil
}

func (tx *memoryTx) Stock() stock.TxRepository { return &memoryStockTx{state: tx.state} }

type memoryStockTx struct {
	state *memState
}

func (tx *memoryStockTx) GetLevelForUpdate(ctx context.Context, key stock.Key) (stock.Level, error) {
	if level, ok := tx.state.levels[key]; ok {
		return level, nil
	}
	return stock.Level{VariationID: key.VariationID, WarehouseID: key.WarehouseID, StockTypeID: key.StockTypeID}, stock.ErrLevelNotFound
}

func (tx *memoryStockTx) UpsertLevel(ctx context.Context, level stock.Level) error {
	tx.state.levels[stock.Key{VariationID: level.VariationID, WarehouseID: level.WarehouseID, StockTypeID: level.StockTypeID}] = level
	return nil
}

func (tx *memoryStockTx) InsertMovement(ctx context.Context, m stock.Movement) (int64, error) {
	tx.state.nextID++
	m.ID = tx.state.nextID
	tx.state.movements[m.ID] = m
	return m.ID, nil
}

func (tx *memoryStockTx) LinkMovements(ctx context.Context, outID, inID int64) error {
	out := tx.state.movements[outID]
	in := tx.state.movements[inID]
	out.LinkedMovementID = &inID
	in.LinkedMovementID = &outID
	tx.state.movements[outID] = out
	tx.state.movements[inID] = in
	return nil
}

func (tx *memoryStockTx) SetMovementActive(ctx context.Context, ids []int64, active bool) error {
	for _, id := range ids {
		m := tx.state.movements[id]
		m.IsActive = active
		tx.state.movements[id] = m
	}
	return nil
}

func (tx *memoryStockTx) SetMovementCompleted(ctx context.Context, ids []int64) error {
	for _, id := range ids {
		m := tx.state.movements[id]
		m.Completed = true
		tx.state.movements[id] = m
	}
	return nil
}

func (tx *memoryStockTx) GetMovement(ctx context.Context, id int64) (stock.Movement, error) {
	if m, ok := tx.state.movements[id]; ok {
		return m, nil
	}
	return stock.Movement{}, stock.ErrLevelNotFound
}

func (tx *memoryStockTx) ReservedQuantity(ctx context.Context, variationID, warehouseID int64) (int64, error) {
	return 0, nil
}

func testCatalog() *catalog.Catalog {
	statuses := []catalog.Status{
		{ID: 1, Code: catalog.CodeReserved, Name: "Reservado"},
		{ID: 2, Code: catalog.CodeConfirmed, Name: "Confirmado"},
		{ID: 3, Code: catalog.CodeCancelled, Name: "Anulado"},
		{ID: 4, Code: catalog.CodePending, Name: "Pendiente"},
		{ID: 5, Code: catalog.CodeClosed, Name: "Cerrado"},
		{ID: 6, Code: catalog.CodeApproved, Name: "Aprobado"},
		{ID: 7, Code: catalog.CodeDispatch, Name: "Enviado"},
		{ID: 8, Code: catalog.CodeReceived, Name: "Recibido"},
	}
	situations := []catalog.Situation{
		{ID: sitOrderModule, Module: catalog.ModuleOrders, Name: "Reservado", StatusID: 1},
		{ID: 11, Module: catalog.ModuleOrders, Name: "Confirmado", StatusID: 2},
		{ID: 12, Module: catalog.ModuleOrders, Name: "Anulado", StatusID: 3},
		{ID: 13, Module: catalog.ModuleOrders, Name: "Pendiente", StatusID: 4},
		{ID: 14, Module: catalog.ModuleOrders, Name: "Cerrado", StatusID: 5},
		{ID: sitPending, Module: catalog.ModuleTransfers, Name: "Pendiente", StatusID: 4},
		{ID: sitApproved, Module: catalog.ModuleTransfers, Name: "Aprobado", StatusID: 6},
		{ID: sitCancelled, Module: catalog.ModuleTransfers, Name: "Anulado", StatusID: 3},
		{ID: sitDispatched, Module: catalog.ModuleTransfers, Name: "Enviado", StatusID: 7},
		{ID: sitReceived, Module: catalog.ModuleTransfers, Name: "Recibido", StatusID: 8},
	}
	cat, err := catalog.New(statuses, situations)
	if err != nil {
		panic(err)
	}
	return cat
}

func newTestService(repo *memoryRepo) *Service {
	return NewService(repo, testCatalog(), nil, nil, 1)
}

func actorCtx() context.Context {
	return shared.ContextWithActor(context.Background(), testActor)
}

func seedLevel(repo *memoryRepo, variationID, warehouseID, qty int64) {
	key := stock.Key{VariationID: variationID, WarehouseID: warehouseID, StockTypeID: 1}
	repo.state.levels[key] = stock.Level{VariationID: variationID, WarehouseID: warehouseID, StockTypeID: 1, Quantity: qty}
}

func levelQty(repo *memoryRepo, variationID, warehouseID int64) int64 {
	return repo.state.levels[stock.Key{VariationID: variationID, WarehouseID: warehouseID, StockTypeID: 1}].Quantity
}

func createRequest(t *testing.T, svc *Service, items ...CreateItemReq) Detail {
	t.Helper()
	detail, err := svc.Create(actorCtx(), CreateRequest{
		FromWarehouseID: fromWarehouse,
		ToWarehouseID:   toWarehouse,
		Items:           items,
	})
	require.NoError(t, err)
	return detail
}

func TestCreateRecordsProvisionalPairs(t *testing.T) {
	repo := newMemoryRepo()
	seedLevel(repo, 100, fromWarehouse, 10)
	svc := newTestService(repo)

	detail := createRequest(t, svc, CreateItemReq{VariationID: 100, Quantity: 4})
	require.Equal(t, "PEN", detail.StatusCode)
	require.Len(t, detail.Items, 1)
	require.False(t, detail.Items[0].Approved)

	out := repo.state.movements[detail.Items[0].OutMovementID]
	in := repo.state.movements[detail.Items[0].InMovementID]
	require.Equal(t, int64(-4), out.Quantity)
	require.Equal(t, int64(4), in.Quantity)
	require.False(t, out.IsActive)
	require.False(t, in.Completed)
	require.Equal(t, out.LinkedMovementID, &detail.Items[0].InMovementID)
	require.Equal(t, int64(10), levelQty(repo, 100, fromWarehouse), "creation never touches the ledger")
}

func TestCreateSameWarehouseRejected(t *testing.T) {
	repo := newMemoryRepo()
	svc := newTestService(repo)

	_, err := svc.Create(actorCtx(), CreateRequest{
		FromWarehouseID: fromWarehouse,
		ToWarehouseID:   fromWarehouse,
		Items:           []CreateItemReq{{VariationID: 100, Quantity: 1}},
	})
	require.ErrorIs(t, err, shared.ErrValidation)
}

func TestApprovalActivatesMovements(t *testing.T) {
	repo := newMemoryRepo()
	seedLevel(repo, 100, fromWarehouse, 10)
	svc := newTestService(repo)
	detail := createRequest(t, svc, CreateItemReq{VariationID: 100, Quantity: 4})

	row, err := svc.UpdateStatus(actorCtx(), detail.Request.ID, UpdateStatusRequest{SituationID: sitApproved})
	require.NoError(t, err)
	require.Equal(t, sitApproved, row.SituationID)

	items, _ := repo.ItemsByRequest(actorCtx(), detail.Request.ID)
	require.True(t, items[0].Approved)
	require.True(t, repo.state.movements[items[0].OutMovementID].IsActive)
	require.True(t, repo.state.movements[items[0].InMovementID].IsActive)
	require.Equal(t, int64(10), levelQty(repo, 100, fromWarehouse))
}

func TestPartialApprovalLeavesOthersInactive(t *testing.T) {
	repo := newMemoryRepo()
	seedLevel(repo, 100, fromWarehouse, 10)
	seedLevel(repo, 200, fromWarehouse, 10)
	svc := newTestService(repo)
	detail := createRequest(t, svc,
		CreateItemReq{VariationID: 100, Quantity: 4},
		CreateItemReq{VariationID: 200, Quantity: 2},
	)

	_, err := svc.UpdateStatus(actorCtx(), detail.Request.ID, UpdateStatusRequest{
		SituationID: sitApproved,
		ItemIDs:     []int64{detail.Items[0].ID},
	})
	require.NoError(t, err)

	items, _ := repo.ItemsByRequest(actorCtx(), detail.Request.ID)
	require.True(t, items[0].Approved)
	require.False(t, items[1].Approved)
	require.False(t, repo.state.movements[items[1].OutMovementID].IsActive)
}

func TestDispatchDeductsOrigin(t *testing.T) {
	repo := newMemoryRepo()
	seedLevel(repo, 100, fromWarehouse, 10)
	svc := newTestService(repo)
	detail := createRequest(t, svc, CreateItemReq{VariationID: 100, Quantity: 4})

	_, err := svc.UpdateStatus(actorCtx(), detail.Request.ID, UpdateStatusRequest{SituationID: sitApproved})
	require.NoError(t, err)
	_, err = svc.UpdateStatus(actorCtx(), detail.Request.ID, UpdateStatusRequest{SituationID: sitDispatched})
	require.NoError(t, err)

	require.Equal(t, int64(6), levelQty(repo, 100, fromWarehouse))
	require.Equal(t, int64(0), levelQty(repo, 100, toWarehouse), "nothing lands before reception")

	items, _ := repo.ItemsByRequest(actorCtx(), detail.Request.ID)
	require.True(t, repo.state.movements[items[0].OutMovementID].Completed)
	require.False(t, repo.state.movements[items[0].InMovementID].Completed)
}

func TestReceptionLandsAtDestination(t *testing.T) {
	repo := newMemoryRepo()
	seedLevel(repo, 100, fromWarehouse, 10)
	svc := newTestService(repo)
	detail := createRequest(t, svc, CreateItemReq{VariationID: 100, Quantity: 4})

	for _, sit := range []int64{sitApproved, sitDispatched, sitReceived} {
		_, err := svc.UpdateStatus(actorCtx(), detail.Request.ID, UpdateStatusRequest{SituationID: sit})
		require.NoError(t, err)
	}

	require.Equal(t, int64(6), levelQty(repo, 100, fromWarehouse))
	require.Equal(t, int64(4), levelQty(repo, 100, toWarehouse))

	items, _ := repo.ItemsByRequest(actorCtx(), detail.Request.ID)
	require.True(t, repo.state.movements[items[0].InMovementID].Completed)
}

func TestDispatchWithoutStockRollsBack(t *testing.T) {
	repo := newMemoryRepo()
	seedLevel(repo, 100, fromWarehouse, 2)
	svc := newTestService(repo)
	detail := createRequest(t, svc, CreateItemReq{VariationID: 100, Quantity: 4})

	_, err := svc.UpdateStatus(actorCtx(), detail.Request.ID, UpdateStatusRequest{SituationID: sitApproved})
	require.NoError(t, err)
	_, err = svc.UpdateStatus(actorCtx(), detail.Request.ID, UpdateStatusRequest{SituationID: sitDispatched})
	require.ErrorIs(t, err, shared.ErrInsufficientStock)

	require.Equal(t, int64(2), levelQty(repo, 100, fromWarehouse))
	cur, err := repo.CurrentSituation(actorCtx(), detail.Request.ID)
	require.NoError(t, err)
	require.Equal(t, sitApproved, cur.SituationID, "failed dispatch leaves the request approved")
}

func TestDispatchBeforeApprovalRejected(t *testing.T) {
	repo := newMemoryRepo()
	seedLevel(repo, 100, fromWarehouse, 10)
	svc := newTestService(repo)
	detail := createRequest(t, svc, CreateItemReq{VariationID: 100, Quantity: 4})

	_, err := svc.UpdateStatus(actorCtx(), detail.Request.ID, UpdateStatusRequest{SituationID: sitDispatched})
	require.ErrorIs(t, err, shared.ErrValidation)
}

func TestCancelAfterDispatchRejected(t *testing.T) {
	repo := newMemoryRepo()
	seedLevel(repo, 100, fromWarehouse, 10)
	svc := newTestService(repo)
	detail := createRequest(t, svc, CreateItemReq{VariationID: 100, Quantity: 4})

	for _, sit := range []int64{sitApproved, sitDispatched} {
		_, err := svc.UpdateStatus(actorCtx(), detail.Request.ID, UpdateStatusRequest{SituationID: sit})
		require.NoError(t, err)
	}
	_, err := svc.UpdateStatus(actorCtx(), detail.Request.ID, UpdateStatusRequest{SituationID: sitCancelled})
	require.ErrorIs(t, err, shared.ErrValidation)
}

func TestCancelDeactivatesMovements(t *testing.T) {
	repo := newMemoryRepo()
	seedLevel(repo, 100, fromWarehouse, 10)
	svc := newTestService(repo)
	detail := createRequest(t, svc, CreateItemReq{VariationID: 100, Quantity: 4})

	_, err := svc.UpdateStatus(actorCtx(), detail.Request.ID, UpdateStatusRequest{SituationID: sitApproved})
	require.NoError(t, err)
	_, err = svc.UpdateStatus(actorCtx(), detail.Request.ID, UpdateStatusRequest{SituationID: sitCancelled})
	require.NoError(t, err)

	items, _ := repo.ItemsByRequest(actorCtx(), detail.Request.ID)
	require.False(t, repo.state.movements[items[0].OutMovementID].IsActive)
	require.False(t, repo.state.movements[items[0].InMovementID].IsActive)
	require.Equal(t, int64(10), levelQty(repo, 100, fromWarehouse))
}

func TestUpdateStatusWithoutHistoryStartsTrail(t *testing.T) {
	repo := newMemoryRepo()
	svc := newTestService(repo)

	// An imported request has no situation rows; the first update opens
	// the trail instead of failing on the missing flip target.
	repo.state.nextID++
	requestID := repo.state.nextID
	repo.state.requests[requestID] = Request{ID: requestID, FromWarehouseID: fromWarehouse, ToWarehouseID: toWarehouse, CreatedBy: testActor}
	repo.state.movements[901] = stock.Movement{ID: 901, VariationID: 100, Quantity: -1, WarehouseID: fromWarehouse}
	repo.state.movements[902] = stock.Movement{ID: 902, VariationID: 100, Quantity: 1, WarehouseID: toWarehouse}
	repo.state.items[requestID] = []Item{{ID: 1, RequestID: requestID, VariationID: 100, Quantity: 1, OutMovementID: 901, InMovementID: 902}}

	row, err := svc.UpdateStatus(actorCtx(), requestID, UpdateStatusRequest{SituationID: sitApproved})
	require.NoError(t, err)
	require.Equal(t, sitApproved, row.SituationID)
	require.True(t, row.LastRow)
	require.True(t, repo.state.movements[901].IsActive)
	require.True(t, repo.state.movements[902].IsActive)
}

func TestUpdateStatusUnknownRequest(t *testing.T) {
	repo := newMemoryRepo()
	svc := newTestService(repo)

	_, err := svc.UpdateStatus(actorCtx(), 404, UpdateStatusRequest{SituationID: sitApproved})
	require.ErrorIs(t, err, shared.ErrNotFound)
}

func TestUpdateStatusForeignModuleRejected(t *testing.T) {
	repo := newMemoryRepo()
	seedLevel(repo, 100, fromWarehouse, 10)
	svc := newTestService(repo)
	detail := createRequest(t, svc, CreateItemReq{VariationID: 100, Quantity: 1})

	_, err := svc.UpdateStatus(actorCtx(), detail.Request.ID, UpdateStatusRequest{SituationID: sitOrderModule})
	require.ErrorIs(t, err, shared.ErrValidation)
}
