// Package catalog holds the situation/status reference data as a closed
// in-memory lookup table loaded once at startup. An absent (module, code)
// pair is a deployment defect and fails fast with a configuration error.
package catalog

import (
	"fmt"

	"github.com/vendimia-erp/vendimia-erp/internal/shared"
)

// Catalog resolves situations and status codes without touching storage.
type Catalog struct {
	situationsByID map[int64]Situation
	statusesByID   map[int64]Status
	byModuleCode   map[Module]map[StatusCode]Situation
}

// New builds a Catalog from loaded reference rows and verifies that every
// module's code vocabulary is fully resolvable.
func New(statuses []Status, situations []Situation) (*Catalog, error) {
	c := &Catalog{
		situationsByID: make(map[int64]Situation, len(situations)),
		statusesByID:   make(map[int64]Status, len(statuses)),
		byModuleCode:   make(map[Module]map[StatusCode]Situation),
	}
	for _, st := range statuses {
		c.statusesByID[st.ID] = st
	}
	for _, sit := range situations {
		st, ok := c.statusesByID[sit.StatusID]
		if !ok {
			return nil, shared.NewConfiguration(fmt.Sprintf("situation %q references unknown status %d", sit.Name, sit.StatusID))
		}
		c.situationsByID[sit.ID] = sit
		if c.byModuleCode[sit.Module] == nil {
			c.byModuleCode[sit.Module] = make(map[StatusCode]Situation)
		}
		if _, dup := c.byModuleCode[sit.Module][st.Code]; !dup {
			c.byModuleCode[sit.Module][st.Code] = sit
		}
	}
	for _, code := range orderCodes {
		if _, ok := c.byModuleCode[ModuleOrders][code]; !ok {
			return nil, shared.NewConfiguration(fmt.Sprintf("orders module is missing situation for status code %s", code))
		}
	}
	for _, code := range transferCodes {
		if _, ok := c.byModuleCode[ModuleTransfers][code]; !ok {
			return nil, shared.NewConfiguration(fmt.Sprintf("transfers module is missing situation for status code %s", code))
		}
	}
	return c, nil
}

// SituationByID resolves a situation by identifier.
func (c *Catalog) SituationByID(id int64) (Situation, error) {
	sit, ok := c.situationsByID[id]
	if !ok {
		return Situation{}, shared.NewConfiguration(fmt.Sprintf("unknown situation %d", id))
	}
	return sit, nil
}

// CodeOf returns the status code behind a situation.
func (c *Catalog) CodeOf(situationID int64) (StatusCode, error) {
	sit, err := c.SituationByID(situationID)
	if err != nil {
		return "", err
	}
	st, ok := c.statusesByID[sit.StatusID]
	if !ok {
		return "", shared.NewConfiguration(fmt.Sprintf("situation %d references unknown status %d", situationID, sit.StatusID))
	}
	return st.Code, nil
}

// StatusByID resolves a status by identifier.
func (c *Catalog) StatusByID(id int64) (Status, error) {
	st, ok := c.statusesByID[id]
	if !ok {
		return Status{}, shared.NewConfiguration(fmt.Sprintf("unknown status %d", id))
	}
	return st, nil
}

// SituationFor returns the canonical situation a module uses for a code.
func (c *Catalog) SituationFor(module Module, code StatusCode) (Situation, error) {
	sit, ok := c.byModuleCode[module][code]
	if !ok {
		return Situation{}, shared.NewConfiguration(fmt.Sprintf("module %s has no situation for status code %s", module, code))
	}
	return sit, nil
}

// StatusOf returns the status row behind a situation.
func (c *Catalog) StatusOf(sit Situation) (Status, error) {
	st, ok := c.statusesByID[sit.StatusID]
	if !ok {
		return Status{}, shared.NewConfiguration(fmt.Sprintf("situation %d references unknown status %d", sit.ID, sit.StatusID))
	}
	return st, nil
}
