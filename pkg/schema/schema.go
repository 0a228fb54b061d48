// Package schema provides the default structural implementation of the
// api.Schema validation boundary.
//
// Schemas describe the shape of in-memory Go values: scalars, typed
// lists, and objects with named fields. Validation returns
// *api.ValidationError with a field path and an expected/actual
// description, as required by the engine's parameter checking.
//
//	input := schema.Object(map[string]api.Schema{
//	    "data": schema.Object(map[string]api.Schema{
//	        "value": schema.Int(),
//	    }),
//	})
package schema

import (
	"fmt"
	"reflect"

	"github.com/masonrylabs/masonry/pkg/api"
)

// String accepts string values.
func String() api.Schema { return prim{name: "string"} }

// Int accepts values of any Go integer kind.
func Int() api.Schema { return prim{name: "int"} }

// Float accepts float32/float64 as well as integer values.
func Float() api.Schema { return prim{name: "float"} }

// Bool accepts boolean values.
func Bool() api.Schema { return prim{name: "bool"} }

// Any accepts every non-nil value.
func Any() api.Schema { return prim{name: "any"} }

type prim struct {
	name string
}

func (p prim) Describe() string { return p.name }

func (p prim) Validate(value any) error {
	if value == nil {
		return &api.ValidationError{Expected: p.name, Actual: "nil"}
	}
	if p.name == "any" {
		return nil
	}

	ok := false
	switch p.name {
	case "string":
		_, ok = value.(string)
	case "bool":
		_, ok = value.(bool)
	case "int":
		ok = isInteger(value)
	case "float":
		ok = isInteger(value)
		if !ok {
			switch value.(type) {
			case float32, float64:
				ok = true
			}
		}
	}

	if !ok {
		return &api.ValidationError{Expected: p.name, Actual: describeValue(value)}
	}
	return nil
}

// List accepts a slice whose every element satisfies elem.
func List(elem api.Schema) api.Schema { return list{elem: elem} }

type list struct {
	elem api.Schema
}

func (l list) Describe() string { return "list<" + l.elem.Describe() + ">" }

func (l list) Validate(value any) error {
	rv := reflect.ValueOf(value)
	if value == nil || (rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array) {
		return &api.ValidationError{Expected: l.Describe(), Actual: describeValue(value)}
	}
	for i := 0; i < rv.Len(); i++ {
		if err := l.elem.Validate(rv.Index(i).Interface()); err != nil {
			return prefix(err, fmt.Sprintf("[%d]", i))
		}
	}
	return nil
}

// Object accepts a map[string]any containing every listed field, each
// satisfying its schema. Fields not listed are passed through unchecked.
func Object(fields map[string]api.Schema) api.Schema { return object{fields: fields} }

type object struct {
	fields map[string]api.Schema
}

func (o object) Describe() string { return "object" }

func (o object) Validate(value any) error {
	m, ok := value.(map[string]any)
	if !ok {
		return &api.ValidationError{Expected: "object", Actual: describeValue(value)}
	}
	for name, fs := range o.fields {
		fv, present := m[name]
		if !present {
			return &api.ValidationError{Path: name, Expected: fs.Describe(), Actual: "missing"}
		}
		if err := fs.Validate(fv); err != nil {
			return prefix(err, name)
		}
	}
	return nil
}

func isInteger(value any) bool {
	switch value.(type) {
	case int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64:
		return true
	}
	return false
}

func describeValue(value any) string {
	if value == nil {
		return "nil"
	}
	return fmt.Sprintf("%T", value)
}

// prefix rebases a nested validation error under the given field segment.
func prefix(err error, segment string) error {
	ve, ok := err.(*api.ValidationError)
	if !ok {
		return err
	}
	path := segment
	if ve.Path != "" {
		if ve.Path[0] == '[' {
			path = segment + ve.Path
		} else {
			path = segment + "." + ve.Path
		}
	}
	return &api.ValidationError{Path: path, Expected: ve.Expected, Actual: ve.Actual}
}
