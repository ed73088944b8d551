// Package variables converts legacy variable values into the target
// engine's representation.
package variables

import (
	"errors"
	"fmt"
	"strings"

	"github.com/dbsmedya/gomigrator/internal/types"
)

// Kind is the legacy type name of a variable value.
type Kind string

const (
	KindNull    Kind = "null"
	KindString  Kind = "string"
	KindBoolean Kind = "boolean"
	KindShort   Kind = "short"
	KindInteger Kind = "integer"
	KindLong    Kind = "long"
	KindDouble  Kind = "double"
	KindDate    Kind = "date"
	KindJSON    Kind = "json"
	KindXML     Kind = "xml"
	KindObject  Kind = "object"
	KindBytes   Kind = "bytes"
	KindFile    Kind = "file"
)

// Serialization formats of object values.
const (
	FormatJSON           = "application/json"
	FormatXML            = "application/xml"
	FormatJavaSerialized = "application/x-java-serialized-object"
)

// ParseKind normalizes a legacy type name. The REST API capitalizes type
// names ("String"), the history tables do not.
func ParseKind(name string) Kind {
	return Kind(strings.ToLower(strings.TrimSpace(name)))
}

// Value is one legacy variable value.
type Value struct {
	Name                string
	Kind                Kind
	Raw                 interface{}
	SerializationFormat string
	ObjectTypeName      string
}

// UnsupportedValueError reports a value that has no safe target
// representation. The owning entity is skipped with Reason.
type UnsupportedValueError struct {
	Name   string
	Kind   Kind
	Reason string
}

func (e *UnsupportedValueError) Error() string {
	return fmt.Sprintf("variable %q of type %s: %s", e.Name, e.Kind, e.Reason)
}

// SkipReason extracts the ledger skip reason from err. The second result is
// false when err is not an UnsupportedValueError.
func SkipReason(err error) (string, bool) {
	var unsupported *UnsupportedValueError
	if errors.As(err, &unsupported) {
		return unsupported.Reason, true
	}
	return "", false
}

func unsupported(v Value, reason string) error {
	return &UnsupportedValueError{Name: v.Name, Kind: v.Kind, Reason: reason}
}

// reasonFor maps a rejected kind to its skip reason.
func reasonFor(v Value) string {
	switch v.Kind {
	case KindBytes:
		return types.ReasonUnsupportedByteArray
	case KindFile:
		return types.ReasonUnsupportedFile
	case KindXML:
		return types.ReasonUnsupportedXML
	case KindObject:
		switch v.SerializationFormat {
		case FormatJavaSerialized:
			return types.ReasonUnsupportedJavaSerialized
		case FormatXML:
			return types.ReasonUnsupportedXML
		}
	}
	return types.ReasonUnsupportedVariableType
}
