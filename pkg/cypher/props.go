package cypher

import (
	"encoding"
	"fmt"
	"reflect"
	"strings"
	"time"

	"github.com/go-viper/mapstructure/v2"
)

// Tag is the struct tag naming an entity field's graph property. Untagged
// exported fields use the field name; "-" skips the field.
const Tag = "graph"

// Properties flattens an entity into the property map stored on its node.
// Text-marshalable values such as uuid.UUID are stored as strings and nil
// pointers as null; time.Time is kept as is.
func Properties(entity any) (map[string]any, error) {
	v := reflect.ValueOf(entity)
	for v.Kind() == reflect.Pointer || v.Kind() == reflect.Interface {
		if v.IsNil() {
			return nil, fmt.Errorf("properties of nil %T", entity)
		}
		v = v.Elem()
	}

	out := make(map[string]any)
	switch v.Kind() {
	case reflect.Struct:
		collect(v, out)
	case reflect.Map:
		if v.Type().Key().Kind() != reflect.String {
			return nil, fmt.Errorf("properties of %T: map keys must be strings", entity)
		}
		iter := v.MapRange()
		for iter.Next() {
			out[iter.Key().String()] = propertyValue(iter.Value())
		}
	default:
		return nil, fmt.Errorf("properties of %T: want a struct or map", entity)
	}
	return out, nil
}

func collect(v reflect.Value, out map[string]any) {
	t := v.Type()
	for i := 0; i < t.NumField(); i++ {
		f := t.Field(i)
		if !f.IsExported() {
			continue
		}
		name, omitEmpty := parseTag(f.Tag.Get(Tag))
		if name == "-" {
			continue
		}
		fv := v.Field(i)
		if f.Anonymous && name == "" && fv.Kind() == reflect.Struct {
			collect(fv, out)
			continue
		}
		if name == "" {
			name = f.Name
		}
		if omitEmpty && fv.IsZero() {
			continue
		}
		out[name] = propertyValue(fv)
	}
}

func parseTag(tag string) (name string, omitEmpty bool) {
	parts := strings.Split(tag, ",")
	for _, opt := range parts[1:] {
		if opt == "omitempty" {
			omitEmpty = true
		}
	}
	return parts[0], omitEmpty
}

func propertyValue(v reflect.Value) any {
	for v.Kind() == reflect.Pointer || v.Kind() == reflect.Interface {
		if v.IsNil() {
			return nil
		}
		v = v.Elem()
	}
	if !v.CanInterface() {
		return nil
	}
	raw := v.Interface()
	switch tv := raw.(type) {
	case time.Time:
		return tv
	case encoding.TextMarshaler:
		if b, err := tv.MarshalText(); err == nil {
			return string(b)
		}
	}
	return raw
}

// Decode materializes one property map into E. Pointer entity types are
// allocated.
func Decode[E any](record map[string]any) (E, error) {
	var out E
	t := reflect.TypeOf(out)
	if t != nil && t.Kind() == reflect.Pointer {
		out = reflect.New(t.Elem()).Interface().(E)
		return out, decodeInto(record, out)
	}
	return out, decodeInto(record, &out)
}

// DecodeAll materializes every record, stopping at the first failure.
func DecodeAll[E any](records []map[string]any) ([]E, error) {
	out := make([]E, 0, len(records))
	for _, rec := range records {
		e, err := Decode[E](rec)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, nil
}

func decodeInto(record map[string]any, target any) error {
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		TagName: Tag,
		Squash:  true,
		Result:  target,
		DecodeHook: mapstructure.ComposeDecodeHookFunc(
			mapstructure.TextUnmarshallerHookFunc(),
			mapstructure.StringToTimeHookFunc(time.RFC3339Nano),
		),
	})
	if err != nil {
		return fmt.Errorf("creating decoder: %w", err)
	}
	if err := dec.Decode(record); err != nil {
		return fmt.Errorf("decoding %T: %w", target, err)
	}
	return nil
}
