package option

import (
	"strconv"
	"strings"
	"time"
)

// PropertyClass is the value type of a custom property.
type PropertyClass int

const (
	PropertyText PropertyClass = iota
	PropertyBoolean
	PropertyInteger
	PropertyDouble
	PropertyDate
)

func (c PropertyClass) String() string {
	switch c {
	case PropertyBoolean:
		return "boolean"
	case PropertyInteger:
		return "int"
	case PropertyDouble:
		return "double"
	case PropertyDate:
		return "date"
	default:
		return "text"
	}
}

// PropertyDefinition is a decoded (type, default value) pair. Default is nil
// when the raw default is absent or malformed; otherwise it is a string, bool,
// int, float64 or time.Time according to Class.
type PropertyDefinition struct {
	Class   PropertyClass
	Default any
}

// EncodeType returns the type code for a Go value, or "" for unsupported types.
func EncodeType(v any) string {
	switch v.(type) {
	case string:
		return "text"
	case bool:
		return "boolean"
	case int, int32, int64:
		return "int"
	case float32, float64:
		return "double"
	case time.Time:
		return "date"
	default:
		return ""
	}
}

// DecodeTypeAndDefault maps a type code and its raw default. Unknown codes
// decode as text with an empty default. "integer" is accepted as an alias
// of "int".
func DecodeTypeAndDefault(typeCode string, value *string) PropertyDefinition {
	switch typeCode {
	case "text":
		return newDefinition(PropertyText, value)
	case "boolean":
		return newDefinition(PropertyBoolean, value)
	case "int", "integer":
		return newDefinition(PropertyInteger, value)
	case "double":
		return newDefinition(PropertyDouble, value)
	case "date":
		return newDefinition(PropertyDate, value)
	default:
		empty := ""
		return newDefinition(PropertyText, &empty)
	}
}

func newDefinition(c PropertyClass, value *string) PropertyDefinition {
	def := PropertyDefinition{Class: c}
	if value == nil {
		return def
	}
	raw := *value
	switch c {
	case PropertyText:
		def.Default = raw
	case PropertyBoolean:
		def.Default = strings.EqualFold(raw, "true")
	case PropertyInteger:
		// 32-bit range; anything wider decodes as absent
		if n, err := strconv.ParseInt(raw, 10, 32); err == nil {
			def.Default = int(n)
		}
	case PropertyDouble:
		if f, err := strconv.ParseFloat(raw, 64); err == nil {
			def.Default = f
		}
	case PropertyDate:
		if strings.TrimSpace(raw) == "" {
			break
		}
		if t, err := ParseDate(raw); err == nil {
			def.Default = t
		}
	}
	return def
}
