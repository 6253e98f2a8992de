package log

// Common field names for structured logging
const (
	FieldComponent = "component"
	FieldRequestID = "request_id"
	FieldMethod    = "method"
	FieldPath      = "path"
	FieldStatus    = "status_code"
	FieldDuration  = "duration_ms"
	FieldError     = "error"
	FieldOperation = "operation"

	FieldGoalID   = "goal_id"
	FieldAssetID  = "asset_id"
	FieldRecordID = "record_id"
	FieldMonth    = "month"
	FieldAmount   = "amount"
	FieldCurrency = "currency"
	FieldPair     = "pair"
)

// Components defines standard component names
const (
	ComponentApp       = "app"
	ComponentHTTP      = "http"
	ComponentLedger    = "ledger"
	ComponentPlans     = "plans"
	ComponentFlex      = "flex"
	ComponentBudget    = "budget"
	ComponentExecution = "execution"
	ComponentStorage   = "storage"
	ComponentEvents    = "events"
	ComponentWorker    = "worker"
	ComponentRates     = "rates"
	ComponentChain     = "chain"
)

// Operations defines standard operation names
const (
	OpCreate    = "create"
	OpRead      = "read"
	OpUpdate    = "update"
	OpDelete    = "delete"
	OpList      = "list"
	OpAllocate  = "allocate"
	OpRecompute = "recompute"
	OpStart     = "start"
	OpComplete  = "complete"
	OpUndo      = "undo"
	OpShutdown  = "shutdown"
	OpStartup   = "startup"
)
