// Package xdispatch routes commands to the aggregate instance responsible for
// handling them.
//
// A dispatch builds a Pipeline, runs the before-dispatch middleware, resolves
// the aggregate identity from the command, opens the aggregate through a
// Registry and executes the handler in an isolated goroutine bounded by a
// timeout. The outcome runs the after-dispatch or after-failure middleware and
// collapses to a two-shape result: a value (usually nil) or an error.
//
// Example:
//
//	d, _ := xdispatch.NewDispatcherBuilder().
//	    WithRegistry(memory.RegistryName, nil).
//	    WithLogger(logger).
//	    Build()
//
//	_, err := d.Dispatch(ctx, xdispatch.DispatchRequest{
//	    Command:       xdispatch.Fields{"id": "acct-1", "amount": 50},
//	    Handler:       deposit,
//	    AggregateType: "account",
//	    IdentityField: "id",
//	    Timeout:       2 * time.Second,
//	})
package xdispatch
