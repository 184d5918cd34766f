package xdispatch

import (
	"fmt"
	"reflect"
)

// Command is the routing view of a dispatched command. Field looks up a value
// by name so dispatch can route on any caller-chosen identity field.
type Command interface {
	Field(name string) (any, bool)
}

// Fields is a map-shaped Command.
type Fields map[string]any

func (f Fields) Field(name string) (any, bool) {
	v, ok := f[name]
	return v, ok
}

// CommandFunc adapts a lookup function to Command.
type CommandFunc func(name string) (any, bool)

func (f CommandFunc) Field(name string) (any, bool) { return f(name) }

// resolveIdentity reads field from cmd and renders it as a routing string.
// A missing field, a nil value (typed or not) and the empty string all
// report false.
func resolveIdentity(cmd Command, field, prefix string) (string, bool) {
	v, ok := cmd.Field(field)
	if !ok || isNil(v) {
		return "", false
	}
	var id string
	switch t := v.(type) {
	case string:
		id = t
	case fmt.Stringer:
		id = t.String()
	default:
		id = fmt.Sprint(t)
	}
	if id == "" {
		return "", false
	}
	return prefix + id, true
}

func isNil(v any) bool {
	if v == nil {
		return true
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Pointer, reflect.Map, reflect.Slice, reflect.Interface, reflect.Func, reflect.Chan:
		return rv.IsNil()
	}
	return false
}
