package proxy

import (
	"bytes"
	"context"
	"fmt"
	"math"
	"reflect"
	"strconv"
	"strings"

	"github.com/goccy/go-json"

	"github.com/xet7/httpvfs/domain/model"
)

var (
	handleType    = reflect.TypeOf((*Handle)(nil)).Elem()
	marshalerType = reflect.TypeOf((*json.Marshaler)(nil)).Elem()
)

// encoder turns a result into a JSON-ready tree, binding every Handle it meets
type encoder struct {
	server   *server
	ctx      context.Context
	handles  []binding
	transfer []*Port
	seen     map[string]bool
}

func (e *encoder) encode(v reflect.Value) (any, error) {
	if !v.IsValid() {
		return nil, nil
	}
	switch v.Kind() {
	case reflect.Pointer, reflect.Interface, reflect.Map, reflect.Slice:
		if v.IsNil() {
			return nil, nil
		}
	}

	if v.CanInterface() && v.Type().Implements(handleType) {
		if e.server == nil {
			return nil, fmt.Errorf("%w: handles cannot be sent as arguments", model.ErrProxy)
		}
		return e.bind(v.Interface().(Handle)), nil //nolint:forcetypeassert // checked by Implements
	}
	if v.Kind() == reflect.Interface {
		return e.encode(v.Elem())
	}
	if v.CanInterface() && v.Type().Implements(marshalerType) {
		return v.Interface(), nil
	}

	switch v.Kind() {
	case reflect.Pointer:
		return e.encode(v.Elem())
	case reflect.Struct:
		return e.encodeStruct(v)
	case reflect.Slice, reflect.Array:
		if v.Type().Elem().Kind() == reflect.Uint8 && v.Kind() == reflect.Slice {
			return v.Bytes(), nil
		}
		out := make([]any, v.Len())
		for i := range out {
			item, err := e.encode(v.Index(i))
			if err != nil {
				return nil, err
			}
			out[i] = item
		}
		return out, nil
	case reflect.Map:
		out := make(map[string]any, v.Len())
		iter := v.MapRange()
		for iter.Next() {
			item, err := e.encode(iter.Value())
			if err != nil {
				return nil, err
			}
			out[fmt.Sprint(iter.Key().Interface())] = item
		}
		return out, nil
	case reflect.Float32, reflect.Float64:
		return floatValue(v.Float()), nil
	case reflect.Chan, reflect.Func, reflect.UnsafePointer, reflect.Complex64, reflect.Complex128:
		return nil, fmt.Errorf("%w: cannot send a value of type %s", model.ErrProxy, v.Type())
	default:
		return v.Interface(), nil
	}
}

func (e *encoder) encodeStruct(v reflect.Value) (any, error) {
	t := v.Type()
	out := make(map[string]any, t.NumField())
	for i := range t.NumField() {
		f := t.Field(i)
		if !f.IsExported() {
			continue
		}
		tag := f.Tag.Get("json")
		if tag == "-" {
			continue
		}
		name, opts, _ := strings.Cut(tag, ",")
		fv := v.Field(i)
		if strings.Contains(opts, "omitempty") && fv.IsZero() {
			continue
		}

		item, err := e.encode(fv)
		if err != nil {
			return nil, fmt.Errorf("field %s: %w", f.Name, err)
		}
		if f.Anonymous && name == "" {
			if embedded, ok := item.(map[string]any); ok {
				for k, val := range embedded {
					out[k] = val
				}
				continue
			}
		}
		if name == "" {
			name = f.Name
		}
		out[name] = item
	}
	return out, nil
}

// bind records h in the response and returns its reference
func (e *encoder) bind(h Handle) HandleRef {
	id, port := e.server.bind(e.ctx, h)
	ref := HandleRef{ID: id, Kind: h.HandleKind()}
	if e.seen[id] {
		return ref
	}
	e.seen[id] = true

	b := binding{ID: id, Kind: ref.Kind, Port: noPort}
	if port != nil {
		b.Port = len(e.transfer)
		e.transfer = append(e.transfer, port)
	}
	e.handles = append(e.handles, b)
	return ref
}

// encodeArg encodes a call argument
func encodeArg(v any) (json.RawMessage, error) {
	item, err := (&encoder{}).encode(reflect.ValueOf(v))
	if err != nil {
		return nil, err
	}
	return json.Marshal(item)
}

// floatValue keeps a float a float on the wire, so 2.0 does not come back as an integer
func floatValue(f float64) any {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return nil
	}
	s := strconv.FormatFloat(f, 'g', -1, 64)
	if !strings.ContainsAny(s, ".e") {
		s += ".0"
	}
	return json.RawMessage(s)
}

// decodeValue decodes raw into a new value of type t
func decodeValue(raw json.RawMessage, t reflect.Type) (reflect.Value, error) {
	ptr := reflect.New(t)
	if err := decodeInto(raw, ptr.Interface()); err != nil {
		return reflect.Value{}, err
	}
	return ptr.Elem(), nil
}

// decodeInto decodes raw into v. Numbers stored in interfaces become int64
// when integral and float64 otherwise.
func decodeInto(raw json.RawMessage, v any) error {
	if len(raw) == 0 {
		raw = json.RawMessage("null")
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	if err := dec.Decode(v); err != nil {
		return err
	}
	normalizeNumbers(reflect.ValueOf(v))
	return nil
}

func numberValue(n json.Number) any {
	if i, err := n.Int64(); err == nil {
		return i
	}
	if f, err := n.Float64(); err == nil {
		return f
	}
	return n.String()
}

// normalizeNumbers replaces the json.Number values the decoder stored in interfaces
func normalizeNumbers(v reflect.Value) {
	switch v.Kind() {
	case reflect.Pointer:
		if !v.IsNil() {
			normalizeNumbers(v.Elem())
		}
	case reflect.Interface:
		if v.IsNil() {
			return
		}
		if n, ok := v.Elem().Interface().(json.Number); ok {
			if v.CanSet() {
				v.Set(reflect.ValueOf(numberValue(n)))
			}
			return
		}
		normalizeNumbers(v.Elem())
	case reflect.Map:
		iter := v.MapRange()
		for iter.Next() {
			val := iter.Value()
			if val.Kind() == reflect.Interface && !val.IsNil() {
				if n, ok := val.Elem().Interface().(json.Number); ok {
					v.SetMapIndex(iter.Key(), reflect.ValueOf(numberValue(n)))
					continue
				}
				val = val.Elem()
			}
			normalizeNumbers(val)
		}
	case reflect.Slice, reflect.Array:
		for i := range v.Len() {
			normalizeNumbers(v.Index(i))
		}
	case reflect.Struct:
		for i := range v.NumField() {
			if f := v.Field(i); f.CanSet() {
				normalizeNumbers(f)
			}
		}
	}
}
