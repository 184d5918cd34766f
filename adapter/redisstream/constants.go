package redisstream

// Field constants (avoid typos/allocs)
const (
	fieldOutcome       = "outcome"
	fieldCommandUUID   = "command_uuid"
	fieldCorrelationID = "correlation_id"
	fieldCausationID   = "causation_id"
	fieldAggregateType = "aggregate_type"
	fieldIdentity      = "identity"
	fieldError         = "error"
	fieldErrorReason   = "error_reason"
	fieldDurationNs    = "duration_ns"
	fieldDispatchedAt  = "dispatched_at" // int64 ns
	fieldCommand       = "command"       // raw codec bytes
	fieldMetaPrefix    = "meta:"

	outcomeOK    = "ok"
	outcomeError = "error"
)
