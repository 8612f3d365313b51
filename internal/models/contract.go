package models

// Contract is the projection of a smart-contract instance (spec.md §3
// "Contract"); history lives in contract_events / contract_reject_transactions
// / module-link tables, each keyed with a per-contract dense index for
// keyset pagination by the (out of scope) read API.
type Contract struct {
	Index                      int64
	SubIndex                   int64
	ModuleReference            string
	Name                       string
	Amount                     int64
	TransactionIndex           int64
	LastUpgradeTransactionIndex *int64
}

// ContractEvent is one dense-indexed history row for a contract.
type ContractEvent struct {
	ContractIndex    int64
	ContractSubIndex int64
	EventIndexPerContract int64
	TransactionIndex int64
	Event            []byte // raw JSON
}

// ContractRejectTransaction records a failed update/init against a contract.
type ContractRejectTransaction struct {
	ContractIndex    int64
	ContractSubIndex int64
	RejectIndexPerContract int64
	TransactionIndex int64
}

// ModuleReferenceContractLinkAction mirrors the
// module_reference_contract_link_action Postgres enum.
type ModuleReferenceContractLinkAction string

const (
	LinkActionAdded   ModuleReferenceContractLinkAction = "Added"
	LinkActionRemoved ModuleReferenceContractLinkAction = "Removed"
)

// ModuleReferenceContractLinkEvent records a contract init/upgrade event,
// indexed under both the contract and the module reference.
type ModuleReferenceContractLinkEvent struct {
	ModuleReference  string
	ContractIndex    int64
	ContractSubIndex int64
	TransactionIndex int64
	Action           ModuleReferenceContractLinkAction
}

// SmartContractModule is the projection of a deployed Wasm module (spec.md
// §3 "SmartContractModule"). Schema is nil when extraction failed or the
// module carries no embedded schema — both are non-errors (spec.md §4.4).
type SmartContractModule struct {
	ModuleReference  string
	TransactionIndex int64
	Schema           []byte
}
