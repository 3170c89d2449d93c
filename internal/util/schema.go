package util

import (
	"reflect"
	"strconv"
	"strings"
)

// CreateSchema derives the JSON schema of a tool argument struct.
//
// Supported struct tags:
//
//	json:"name[,omitempty]"  property name; omitempty or pointer fields are optional
//	description:"..."        property description shown to the model
//	enum:"a,b,c"             allowed string values
//	minLength:"n"            minimum string length
//
// Anything that is not a struct yields an empty object schema.
func CreateSchema(args any) map[string]any {
	properties := map[string]any{}
	schema := map[string]any{"type": "object", "properties": properties}

	t := reflect.TypeOf(args)
	for t != nil && t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	if t == nil || t.Kind() != reflect.Struct {
		return schema
	}

	var required []any

	for _, field := range reflect.VisibleFields(t) {
		name, optional, ok := propertyName(field)
		if !ok {
			continue
		}

		properties[name] = propertySchema(field)
		if !optional {
			required = append(required, name)
		}
	}

	if len(required) > 0 {
		schema["required"] = required
	}

	return schema
}

// propertyName resolves the JSON name of field. ok is false for unexported,
// embedded and `json:"-"` fields.
func propertyName(field reflect.StructField) (name string, optional, ok bool) {
	if !field.IsExported() || field.Anonymous {
		return "", false, false
	}

	tag := field.Tag.Get("json")
	if tag == "-" {
		return "", false, false
	}

	name, opts, _ := strings.Cut(tag, ",")
	if name == "" {
		name = field.Name
	}

	optional = field.Type.Kind() == reflect.Ptr
	for _, o := range strings.Split(opts, ",") {
		if strings.TrimSpace(o) == "omitempty" {
			optional = true
		}
	}

	return name, optional, true
}

func propertySchema(field reflect.StructField) map[string]any {
	s := typeSchema(field.Type)

	if d := field.Tag.Get("description"); d != "" {
		s["description"] = d
	}

	if enum := field.Tag.Get("enum"); enum != "" {
		var values []any
		for _, v := range strings.Split(enum, ",") {
			values = append(values, strings.TrimSpace(v))
		}
		s["enum"] = values
	}

	if n, err := strconv.Atoi(field.Tag.Get("minLength")); err == nil {
		s["minLength"] = n
	}

	return s
}

func typeSchema(t reflect.Type) map[string]any {
	switch t.Kind() {
	case reflect.Ptr:
		return typeSchema(t.Elem())
	case reflect.Slice, reflect.Array:
		return map[string]any{"type": "array", "items": typeSchema(t.Elem())}
	case reflect.Interface:
		return map[string]any{}
	case reflect.Map, reflect.Struct:
		return map[string]any{"type": "object"}
	case reflect.Bool:
		return map[string]any{"type": "boolean"}
	case reflect.Float32, reflect.Float64:
		return map[string]any{"type": "number"}
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return map[string]any{"type": "integer"}
	default:
		return map[string]any{"type": "string"}
	}
}
