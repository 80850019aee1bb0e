package parking

const (
	operationBookSpace     = "book"
	operationConfirm       = "confirm"
	operationCancel        = "cancel"
	operationDelete        = "delete"
	operationSettle        = "settle"
	operationCreateSpace   = "create_space"
	operationUpdateSpace   = "update_space"
	operationResizeSpace   = "resize_space"
	operationRetireSpace   = "retire_space"
	operationActivateSweep = "activate_sweep"
	operationCompleteSweep = "complete_sweep"
	operationExpireSweep   = "expire_sweep"

	operationStatusOK    = "ok"
	operationStatusError = "error"

	taxRate                = 0.10
	limitedStatusNumerator = 5 // limited when available*5 <= total, i.e. at most 20% left
	secondsPerHour         = 3600
	hoursPerDay            = 24
	receiptNumberPrefix    = "RCT-"
	defaultSearchLimit     = 20
	maxSearchLimit         = 100
	expireSweepBatchSize   = 100
	defaultListLimit       = 50
)
