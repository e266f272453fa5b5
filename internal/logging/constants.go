package logging

// Standard field names for structured log output. Every component logs
// account and transaction context under these keys so a pass can be traced
// end to end with a single filter.
const (
	FieldPassID        = "pass_id"
	FieldAccountID     = "account_id"
	FieldTransactionID = "transaction_id"
	FieldMessageID     = "message_id"
	FieldRule          = "rule"
	FieldCategory      = "category"
	FieldReason        = "reason"
	FieldOperation     = "operation"
	FieldOutcome       = "outcome"
	FieldState         = "state"
	FieldError         = "error"
	FieldDuration      = "duration_ms"
	FieldCount         = "count"
	FieldRow           = "row"
	FieldDelimiter     = "delimiter"
	FieldAttempt       = "attempt"
	FieldBalance       = "balance"
	FieldDay           = "day"
)
