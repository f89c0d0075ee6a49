package log

// Common field names for structured logging
const (
	FieldComponent   = "component"
	FieldError       = "error"
	FieldOperation   = "operation"
	FieldUser        = "user"
	FieldCreditor    = "creditor"
	FieldDebtor      = "debtor"
	FieldAmountCents = "amount_cents"
	FieldKey         = "key"
	FieldTime        = "time_unix_nano"
	FieldBalance     = "balance_cents"
	FieldScanned     = "scanned"
	FieldOrphans     = "orphans"
	FieldConflicts   = "conflicts"
	FieldHealed      = "healed"
	FieldMessageID   = "message_id"
	FieldBackend     = "backend"
)

// Components defines standard component names
const (
	ComponentApp       = "app"
	ComponentCLI       = "cli"
	ComponentLedger    = "ledger"
	ComponentReconcile = "reconcile"
	ComponentStorage   = "storage"
	ComponentAMQP      = "amqp"
	ComponentWorker    = "worker"
	ComponentCache     = "cache"
	ComponentBackend   = "backend"
)

// Operations defines standard operation names
const (
	OpRecord    = "record"
	OpBalance   = "balance"
	OpHistory   = "history"
	OpReconcile = "reconcile"
	OpVerify    = "verify"
	OpPublish   = "publish"
	OpConsume   = "consume"
	OpStartup   = "startup"
	OpShutdown  = "shutdown"
)

// LogFields provides a builder pattern for structured log fields
type LogFields map[string]any

// NewFields creates a new LogFields instance
func NewFields() LogFields {
	return make(LogFields)
}

func (f LogFields) WithOperation(op string) LogFields {
	f[FieldOperation] = op
	return f
}

// WithError adds the error text when err is not nil
func (f LogFields) WithError(err error) LogFields {
	if err != nil {
		f[FieldError] = err.Error()
	}
	return f
}

// WithDebt adds the parties and amount of a debt record
func (f LogFields) WithDebt(creditor, debtor string, amountCents, unixNano int64) LogFields {
	f[FieldCreditor] = creditor
	f[FieldDebtor] = debtor
	f[FieldAmountCents] = amountCents
	f[FieldTime] = unixNano
	return f
}

// ToSlice converts LogFields to a slice for slog
func (f LogFields) ToSlice() []any {
	slice := make([]any, 0, len(f)*2)
	for k, v := range f {
		slice = append(slice, k, v)
	}
	return slice
}
