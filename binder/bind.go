package binder

import (
	"fmt"
	"net/url"
	"reflect"
	"strconv"
	"strings"
)

// bindToStruct populates struct fields from url.Values using the given struct
// tag. Fields without a tag fall back to the lowercase field name; a tag value
// of "-" skips the field. Returned errors are wrapped with errType so callers
// can classify them.
func bindToStruct(v any, tag string, values url.Values, errType error) error {
	rv := reflect.ValueOf(v)
	if rv.Kind() != reflect.Pointer || rv.IsNil() {
		return fmt.Errorf("%w: target must be a non-nil pointer", errType)
	}
	rv = rv.Elem()
	if rv.Kind() != reflect.Struct {
		return fmt.Errorf("%w: target must be a pointer to struct", errType)
	}

	rt := rv.Type()
	for i := 0; i < rt.NumField(); i++ {
		field := rt.Field(i)
		if !field.IsExported() {
			continue
		}

		name := field.Tag.Get(tag)
		if name == "-" {
			continue
		}
		if idx := strings.Index(name, ","); idx != -1 {
			name = name[:idx]
		}
		if name == "" {
			name = strings.ToLower(field.Name)
		}

		raw, ok := values[name]
		if !ok || len(raw) == 0 {
			continue
		}

		fv := rv.Field(i)
		if fv.Kind() == reflect.Slice {
			if err := setSliceValue(fv, field.Name, raw, errType); err != nil {
				return err
			}
			continue
		}
		if err := setFieldValue(fv, field.Name, raw[0], errType); err != nil {
			return err
		}
	}

	return nil
}

// setSliceValue fills a slice field from the raw parameter values. Each raw
// value may itself contain comma-separated elements; elements are trimmed and
// empty ones dropped.
func setSliceValue(fv reflect.Value, fieldName string, raw []string, errType error) error {
	elems := make([]string, 0, len(raw))
	for _, r := range raw {
		for _, part := range strings.Split(r, ",") {
			if part = strings.TrimSpace(part); part != "" {
				elems = append(elems, part)
			}
		}
	}

	slice := reflect.MakeSlice(fv.Type(), len(elems), len(elems))
	for i, elem := range elems {
		if err := setFieldValue(slice.Index(i), fieldName, elem, errType); err != nil {
			return err
		}
	}
	fv.Set(slice)
	return nil
}

// setFieldValue assigns a single string value to a scalar or pointer field.
func setFieldValue(fv reflect.Value, fieldName, value string, errType error) error {
	if fv.Kind() == reflect.Pointer {
		ptr := reflect.New(fv.Type().Elem())
		if err := setFieldValue(ptr.Elem(), fieldName, value, errType); err != nil {
			return err
		}
		fv.Set(ptr)
		return nil
	}

	switch fv.Kind() {
	case reflect.String:
		fv.SetString(value)
	case reflect.Bool:
		b, err := parseBool(value)
		if err != nil {
			return fmt.Errorf("%w: invalid bool value %q for field %s", errType, value, fieldName)
		}
		fv.SetBool(b)
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		if value == "" {
			return nil
		}
		n, err := strconv.ParseInt(value, 10, fv.Type().Bits())
		if err != nil {
			return fmt.Errorf("%w: invalid int value %q for field %s", errType, value, fieldName)
		}
		fv.SetInt(n)
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		if value == "" {
			return nil
		}
		n, err := strconv.ParseUint(value, 10, fv.Type().Bits())
		if err != nil {
			return fmt.Errorf("%w: invalid uint value %q for field %s", errType, value, fieldName)
		}
		fv.SetUint(n)
	case reflect.Float32, reflect.Float64:
		if value == "" {
			return nil
		}
		f, err := strconv.ParseFloat(value, fv.Type().Bits())
		if err != nil {
			return fmt.Errorf("%w: invalid float value %q for field %s", errType, value, fieldName)
		}
		fv.SetFloat(f)
	default:
		return fmt.Errorf("%w: unsupported field type %s for field %s", errType, fv.Kind(), fieldName)
	}

	return nil
}

// parseBool accepts the usual strconv forms plus on/off and yes/no, all
// case-insensitive. An empty value is treated as false so that bare flags
// like ?active= do not fail the whole bind.
func parseBool(value string) (bool, error) {
	switch strings.ToLower(value) {
	case "", "false", "f", "0", "off", "no":
		return false, nil
	case "true", "t", "1", "on", "yes":
		return true, nil
	default:
		return false, fmt.Errorf("invalid bool value %q", value)
	}
}
