// Package typeconv translates values between OPC UA variant types and the
// XSD-typed values AAS Properties carry (spec.md §4.1). The two tables are
// bijective modulo aliasing: GUID, NodeId and LocalizedText all collapse to
// xs:string on the way to AAS, so the OPC UA side of the table is lossy in
// that one direction only.
package typeconv

import (
	"encoding/base64"
	"fmt"
	"reflect"
	"strconv"
	"strings"
	"time"
)

// XSD type names understood by this converter.
const (
	XSDBoolean        = "xs:boolean"
	XSDByte           = "xs:byte"
	XSDUnsignedByte   = "xs:unsignedByte"
	XSDShort          = "xs:short"
	XSDUnsignedShort  = "xs:unsignedShort"
	XSDInt            = "xs:int"
	XSDUnsignedInt    = "xs:unsignedInt"
	XSDLong           = "xs:long"
	XSDUnsignedLong   = "xs:unsignedLong"
	XSDFloat          = "xs:float"
	XSDDouble         = "xs:double"
	XSDString         = "xs:string"
	XSDDateTime       = "xs:dateTime"
	XSDBase64Binary   = "xs:base64Binary"
)

// OPC UA variant type tags understood by this converter. These mirror the
// BuiltIn type names used by github.com/gopcua/opcua/ua (ua.TypeIDBoolean,
// etc) but are represented as plain strings here so the converter has no
// hard dependency on a live *ua.Variant for its test surface.
const (
	VariantBoolean        = "Boolean"
	VariantSByte          = "SByte"
	VariantByte           = "Byte"
	VariantInt16          = "Int16"
	VariantUInt16         = "UInt16"
	VariantInt32          = "Int32"
	VariantUInt32         = "UInt32"
	VariantInt64          = "Int64"
	VariantUInt64         = "UInt64"
	VariantFloat          = "Float"
	VariantDouble         = "Double"
	VariantString         = "String"
	VariantDateTime       = "DateTime"
	VariantByteString     = "ByteString"
	VariantGUID           = "Guid"
	VariantNodeID         = "NodeId"
	VariantLocalizedText  = "LocalizedText"
)

// defaultXSDForVariant is the default (non-aliased) XSD type for each
// variant tag. GUID, NodeId and LocalizedText collapse to xs:string.
var defaultXSDForVariant = map[string]string{
	VariantBoolean:       XSDBoolean,
	VariantSByte:         XSDByte,
	VariantByte:          XSDUnsignedByte,
	VariantInt16:         XSDShort,
	VariantUInt16:        XSDUnsignedShort,
	VariantInt32:         XSDInt,
	VariantUInt32:        XSDUnsignedInt,
	VariantInt64:         XSDLong,
	VariantUInt64:        XSDUnsignedLong,
	VariantFloat:         XSDFloat,
	VariantDouble:        XSDDouble,
	VariantString:        XSDString,
	VariantDateTime:      XSDDateTime,
	VariantByteString:    XSDBase64Binary,
	VariantGUID:          XSDString,
	VariantNodeID:        XSDString,
	VariantLocalizedText: XSDString,
}

// defaultVariantForXSD is the default OPC UA variant tag used when writing
// a given XSD type back to OPC UA.
var defaultVariantForXSD = map[string]string{
	XSDBoolean:       VariantBoolean,
	XSDByte:          VariantSByte,
	XSDUnsignedByte:  VariantByte,
	XSDShort:         VariantInt16,
	XSDUnsignedShort: VariantUInt16,
	XSDInt:           VariantInt32,
	XSDUnsignedInt:   VariantUInt32,
	XSDLong:          VariantInt64,
	XSDUnsignedLong:  VariantUInt64,
	XSDFloat:         VariantFloat,
	XSDDouble:        VariantDouble,
	XSDString:        VariantString,
	XSDDateTime:      VariantDateTime,
	XSDBase64Binary:  VariantByteString,
}

// ConversionError carries the source type, target type and offending value
// for a failed conversion (spec.md §4.1/§7).
type ConversionError struct {
	SourceType string
	TargetType string
	Value      interface{}
	Reason     string
}

func (e *ConversionError) Error() string {
	return fmt.Sprintf("type conversion %s -> %s failed for value %v: %s", e.SourceType, e.TargetType, e.Value, e.Reason)
}

// VariantOf returns the default OPC UA variant tag for an XSD type name.
func VariantOf(xsd string) (string, bool) {
	v, ok := defaultVariantForXSD[xsd]
	return v, ok
}

// XSDOf returns the default XSD type name for an OPC UA variant tag.
func XSDOf(variantTag string) (string, bool) {
	x, ok := defaultXSDForVariant[variantTag]
	return x, ok
}

// ToAAS converts an OPC UA value tagged with variantTag into an AAS-side
// value and its XSD type name. targetXSD, when non-empty, overrides the
// default mapping (e.g. representing an Int32 node as xs:double).
func ToAAS(value interface{}, variantTag string, targetXSD string) (interface{}, string, error) {
	xsd := targetXSD
	if xsd == "" {
		var ok bool
		xsd, ok = defaultXSDForVariant[variantTag]
		if !ok {
			return nil, "", &ConversionError{SourceType: variantTag, TargetType: "xsd", Value: value, Reason: "unknown variant type"}
		}
	}

	// Arrays: recurse elementwise.
	if arr, ok := asInterfaceSlice(value); ok {
		out := make([]interface{}, len(arr))
		for i, elem := range arr {
			converted, _, err := ToAAS(elem, variantTag, targetXSD)
			if err != nil {
				return nil, "", err
			}
			out[i] = converted
		}
		return out, xsd, nil
	}

	switch variantTag {
	case VariantDateTime:
		t, err := coerceTime(value)
		if err != nil {
			return nil, "", &ConversionError{SourceType: variantTag, TargetType: xsd, Value: value, Reason: err.Error()}
		}
		return t.UTC().Format(time.RFC3339Nano), xsd, nil
	case VariantByteString:
		b, err := coerceBytes(value)
		if err != nil {
			return nil, "", &ConversionError{SourceType: variantTag, TargetType: xsd, Value: value, Reason: err.Error()}
		}
		return base64.StdEncoding.EncodeToString(b), xsd, nil
	case VariantLocalizedText:
		if lt, ok := value.(interface{ Text() string }); ok {
			return lt.Text(), xsd, nil
		}
		return fmt.Sprintf("%v", value), xsd, nil
	default:
		return value, xsd, nil
	}
}

// ToOPCUA converts an AAS-side value declared as XSD type xsd into an OPC UA
// value and its variant type tag, per the per-XSD coercion table in
// spec.md §4.1.
func ToOPCUA(value interface{}, xsd string) (interface{}, string, error) {
	variant, ok := defaultVariantForXSD[xsd]
	if !ok {
		return nil, "", &ConversionError{SourceType: xsd, TargetType: "variant", Value: value, Reason: "unsupported xsd type"}
	}

	if arr, ok := asInterfaceSlice(value); ok {
		out := make([]interface{}, len(arr))
		for i, elem := range arr {
			converted, _, err := ToOPCUA(elem, xsd)
			if err != nil {
				return nil, "", err
			}
			out[i] = converted
		}
		return out, variant, nil
	}

	switch xsd {
	case XSDBoolean:
		b, err := coerceBool(value)
		if err != nil {
			return nil, "", &ConversionError{SourceType: xsd, TargetType: variant, Value: value, Reason: err.Error()}
		}
		return b, variant, nil
	case XSDByte, XSDShort, XSDInt, XSDLong:
		n, err := coerceInt(value)
		if err != nil {
			return nil, "", &ConversionError{SourceType: xsd, TargetType: variant, Value: value, Reason: err.Error()}
		}
		return narrowSignedInt(n, xsd), variant, nil
	case XSDUnsignedByte, XSDUnsignedShort, XSDUnsignedInt, XSDUnsignedLong:
		n, err := coerceUint(value)
		if err != nil {
			return nil, "", &ConversionError{SourceType: xsd, TargetType: variant, Value: value, Reason: err.Error()}
		}
		return narrowUnsignedInt(n, xsd), variant, nil
	case XSDFloat:
		f, err := coerceFloat(value)
		if err != nil {
			return nil, "", &ConversionError{SourceType: xsd, TargetType: variant, Value: value, Reason: err.Error()}
		}
		return float32(f), variant, nil
	case XSDDouble:
		f, err := coerceFloat(value)
		if err != nil {
			return nil, "", &ConversionError{SourceType: xsd, TargetType: variant, Value: value, Reason: err.Error()}
		}
		return f, variant, nil
	case XSDString:
		return fmt.Sprintf("%v", value), variant, nil
	case XSDDateTime:
		t, err := coerceTime(value)
		if err != nil {
			return nil, "", &ConversionError{SourceType: xsd, TargetType: variant, Value: value, Reason: err.Error()}
		}
		return t, variant, nil
	case XSDBase64Binary:
		b, err := coerceBytes(value)
		if err != nil {
			return nil, "", &ConversionError{SourceType: xsd, TargetType: variant, Value: value, Reason: err.Error()}
		}
		return b, variant, nil
	default:
		return nil, "", &ConversionError{SourceType: xsd, TargetType: variant, Value: value, Reason: "unsupported xsd type"}
	}
}

func asInterfaceSlice(value interface{}) ([]interface{}, bool) {
	if arr, ok := value.([]interface{}); ok {
		return arr, true
	}
	rv := reflect.ValueOf(value)
	if rv.Kind() != reflect.Slice || rv.Type().Elem().Kind() == reflect.Uint8 {
		return nil, false
	}
	out := make([]interface{}, rv.Len())
	for i := 0; i < rv.Len(); i++ {
		out[i] = rv.Index(i).Interface()
	}
	return out, true
}

func coerceBool(value interface{}) (bool, error) {
	switch v := value.(type) {
	case bool:
		return v, nil
	case string:
		switch strings.ToLower(strings.TrimSpace(v)) {
		case "true", "1", "yes":
			return true, nil
		case "false", "0", "no":
			return false, nil
		}
		return false, fmt.Errorf("cannot parse %q as boolean", v)
	case int, int8, int16, int32, int64:
		return reflect.ValueOf(v).Int() != 0, nil
	case float32, float64:
		return reflect.ValueOf(v).Float() != 0, nil
	default:
		return false, fmt.Errorf("unsupported boolean source type %T", value)
	}
}

func coerceInt(value interface{}) (int64, error) {
	switch v := value.(type) {
	case string:
		n, err := strconv.ParseInt(strings.TrimSpace(v), 10, 64)
		if err != nil {
			return 0, fmt.Errorf("cannot parse %q as integer", v)
		}
		return n, nil
	case float32:
		return int64(v), nil
	case float64:
		return int64(v), nil
	case bool:
		if v {
			return 1, nil
		}
		return 0, nil
	default:
		rv := reflect.ValueOf(value)
		switch rv.Kind() {
		case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
			return rv.Int(), nil
		case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
			return int64(rv.Uint()), nil
		}
		return 0, fmt.Errorf("unsupported integer source type %T", value)
	}
}

func coerceUint(value interface{}) (uint64, error) {
	switch rv := reflect.ValueOf(value); rv.Kind() {
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return rv.Uint(), nil
	}
	if s, ok := value.(string); ok {
		if n, err := strconv.ParseUint(strings.TrimSpace(s), 10, 64); err == nil {
			return n, nil
		}
	}
	n, err := coerceInt(value)
	if err != nil {
		return 0, err
	}
	if n < 0 {
		return 0, fmt.Errorf("negative value %d cannot convert to unsigned", n)
	}
	return uint64(n), nil
}

func coerceFloat(value interface{}) (float64, error) {
	switch v := value.(type) {
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		if err != nil {
			return 0, fmt.Errorf("cannot parse %q as float", v)
		}
		return f, nil
	default:
		rv := reflect.ValueOf(value)
		switch rv.Kind() {
		case reflect.Float32, reflect.Float64:
			return rv.Float(), nil
		case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
			return float64(rv.Int()), nil
		case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
			return float64(rv.Uint()), nil
		}
		return 0, fmt.Errorf("unsupported float source type %T", value)
	}
}

func coerceTime(value interface{}) (time.Time, error) {
	switch v := value.(type) {
	case time.Time:
		return v, nil
	case string:
		t, err := time.Parse(time.RFC3339Nano, v)
		if err != nil {
			t, err = time.Parse("2006-01-02T15:04:05", v) // naive, defaults to UTC below
			if err != nil {
				return time.Time{}, fmt.Errorf("cannot parse %q as ISO-8601 datetime", v)
			}
			return t.UTC(), nil
		}
		return t, nil
	default:
		return time.Time{}, fmt.Errorf("unsupported datetime source type %T", value)
	}
}

func coerceBytes(value interface{}) ([]byte, error) {
	switch v := value.(type) {
	case []byte:
		return v, nil
	case string:
		b, err := base64.StdEncoding.DecodeString(v)
		if err != nil {
			return nil, fmt.Errorf("cannot decode base64 string: %w", err)
		}
		return b, nil
	default:
		return nil, fmt.Errorf("unsupported bytestring source type %T", value)
	}
}

func narrowSignedInt(n int64, xsd string) interface{} {
	switch xsd {
	case XSDByte:
		return int8(n)
	case XSDShort:
		return int16(n)
	case XSDInt:
		return int32(n)
	default:
		return n
	}
}

func narrowUnsignedInt(n uint64, xsd string) interface{} {
	switch xsd {
	case XSDUnsignedByte:
		return uint8(n)
	case XSDUnsignedShort:
		return uint16(n)
	case XSDUnsignedInt:
		return uint32(n)
	default:
		return n
	}
}
