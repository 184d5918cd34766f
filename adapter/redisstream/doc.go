// Package redisstream provides a Redis Streams audit trail for xdispatch.
//
// Audit is an xdispatch.Middleware. It appends one stream entry per dispatch
// from the after-dispatch stage (outcome "ok") or the after-failure stage
// (outcome "error", with the error and error reason rendered as strings).
// Halted and invalid-identity dispatches are recorded too, since they reach
// after-failure.
//
// Entry fields:
// - outcome, command_uuid, correlation_id, causation_id
// - aggregate_type, identity (empty when the identity never resolved)
// - error, error_reason (failures only)
// - dispatched_at (unix ns), duration_ns
// - command (codec bytes, when include_command is set)
// - meta:<key> for each pipeline metadata entry
//
// Example:
//
//	audit, err := redisstream.NewAudit(redisstream.Config{
//	    Addr:         "localhost:6379",
//	    Stream:       "payments:audit",
//	    MaxLenApprox: 50_000,
//	    WriteTimeout: 250 * time.Millisecond,
//	    Codec:        "json",
//	})
//	defer audit.Close()
//
//	d, _ := xdispatch.NewDispatcherBuilder().
//	    WithRegistryInstance(reg).
//	    WithMiddleware(audit).
//	    Build()
package redisstream
