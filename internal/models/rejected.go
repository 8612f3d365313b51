package models

// TransactionType is the node's fine-grained account-transaction payload
// tag (distinct from TransactionKind's coarser Account/Update/... split),
// used only to classify reject reasons during preprocessing.
type TransactionType string

const (
	TransactionTypeInitContract  TransactionType = "InitContract"
	TransactionTypeUpdate        TransactionType = "Update"
	TransactionTypeDeployModule  TransactionType = "DeployModule"
)

// RejectReason enumerates the node's reasons a transaction can fail,
// restricted to the subset the indexer ever inspects.
type RejectReason string

const (
	RejectModuleNotWF              RejectReason = "ModuleNotWF"
	RejectInvalidModuleReference   RejectReason = "InvalidModuleReference"
	RejectInvalidInitMethod        RejectReason = "InvalidInitMethod"
	RejectInvalidContractAddress   RejectReason = "InvalidContractAddress"
	RejectInvalidReceiveMethod     RejectReason = "InvalidReceiveMethod"
	RejectRuntimeFailure           RejectReason = "RuntimeFailure"
	RejectAmountTooLarge           RejectReason = "AmountTooLarge"
	RejectOutOfEnergy              RejectReason = "OutOfEnergy"
	RejectRejectedReceive          RejectReason = "RejectedReceive"
	RejectInvalidAccountReference  RejectReason = "InvalidAccountReference"
)
