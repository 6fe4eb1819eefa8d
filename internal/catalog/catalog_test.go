package catalog

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/vendimia-erp/vendimia-erp/internal/shared"
)

func fixtureStatuses() []Status {
	return []Status{
		{ID: 1, Code: CodeReserved, Name: "Reserved"},
		{ID: 2, Code: CodeConfirmed, Name: "Confirmed"},
		{ID: 3, Code: CodeCancelled, Name: "Cancelled"},
		{ID: 4, Code: CodePending, Name: "Pending"},
		{ID: 5, Code: CodeClosed, Name: "Closed"},
		{ID: 6, Code: CodeApproved, Name: "Approved"},
		{ID: 7, Code: CodeDispatch, Name: "Dispatched"},
		{ID: 8, Code: CodeReceived, Name: "Received"},
	}
}

func fixtureSituations() []Situation {
	return []Situation{
		{ID: 10, Module: ModuleOrders, Name: "Reservado", StatusID: 1},
		{ID: 11, Module: ModuleOrders, Name: "Confirmado", StatusID: 2},
		{ID: 12, Module: ModuleOrders, Name: "Anulado", StatusID: 3},
		{ID: 13, Module: ModuleOrders, Name: "Pendiente", StatusID: 4},
		{ID: 14, Module: ModuleOrders, Name: "Cerrado", StatusID: 5},
		{ID: 20, Module: ModuleTransfers, Name: "Pendiente", StatusID: 4},
		{ID: 21, Module: ModuleTransfers, Name: "Aprobado", StatusID: 6},
		{ID: 22, Module: ModuleTransfers, Name: "Anulado", StatusID: 3},
		{ID: 23, Module: ModuleTransfers, Name: "Enviado", StatusID: 7},
		{ID: 24, Module: ModuleTransfers, Name: "Recibido", StatusID: 8},
	}
}

func TestCatalogResolvesCodes(t *testing.T) {
	c, err := New(fixtureStatuses(), fixtureSituations())
	require.NoError(t, err)

	code, err := c.CodeOf(11)
	require.NoError(t, err)
	require.Equal(t, CodeConfirmed, code)

	sit, err := c.SituationFor(ModuleOrders, CodeCancelled)
	require.NoError(t, err)
	require.Equal(t, int64(12), sit.ID)

	sit, err = c.SituationFor(ModuleTransfers, CodeDispatch)
	require.NoError(t, err)
	require.Equal(t, int64(23), sit.ID)
}

func TestCatalogMissingCodeIsConfigurationError(t *testing.T) {
	situations := fixtureSituations()
	// Drop the orders cancellation situation.
	trimmed := make([]Situation, 0, len(situations))
	for _, s := range situations {
		if s.ID == 12 {
			continue
		}
		trimmed = append(trimmed, s)
	}
	_, err := New(fixtureStatuses(), trimmed)
	require.ErrorIs(t, err, shared.ErrConfiguration)
}

func TestCatalogUnknownSituation(t *testing.T) {
	c, err := New(fixtureStatuses(), fixtureSituations())
	require.NoError(t, err)

	_, err = c.SituationByID(999)
	require.ErrorIs(t, err, shared.ErrConfiguration)

	_, err = c.CodeOf(999)
	require.ErrorIs(t, err, shared.ErrConfiguration)
}
