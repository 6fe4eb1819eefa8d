package catalog

// Module scopes situations to the entity type they describe.
type Module string

const (
	ModuleOrders    Module = "orders"
	ModuleTransfers Module = "transfers"
)

// StatusCode is the short mnemonic classifying a situation's meaning.
// Side effects in the state machines key off these codes.
type StatusCode string

const (
	CodeReserved  StatusCode = "RES"
	CodeConfirmed StatusCode = "CFM"
	CodeCancelled StatusCode = "CAN"
	CodeApproved  StatusCode = "APR"
	CodeDispatch  StatusCode = "ENV"
	CodeReceived  StatusCode = "REC"
	CodePending   StatusCode = "PEN"
	CodeClosed    StatusCode = "CLO"
)

// orderCodes and transferCodes are the vocabularies each module accepts.
var orderCodes = []StatusCode{CodeReserved, CodeConfirmed, CodeCancelled, CodePending, CodeClosed}

var transferCodes = []StatusCode{CodePending, CodeApproved, CodeCancelled, CodeDispatch, CodeReceived}

// Status is a coarse lifecycle class shared by several situations.
type Status struct {
	ID   int64
	Code StatusCode
	Name string
}

// Situation is one concrete lifecycle state within a module.
type Situation struct {
	ID       int64
	Module   Module
	Name     string
	StatusID int64
}
