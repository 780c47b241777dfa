package sql

import (
	"errors"
	"fmt"

	"github.com/ChenPufeng/Blastoise/pkg/catalog"
)

// ErrorKind classifies statement failures.
type ErrorKind int

const (
	KindSyntax ErrorKind = iota + 1
	KindUnknownColumn
	KindAmbiguousColumn
	KindInvalidAggregateContext
	KindTypeMismatch
	KindDivisionByZero
	KindSchemaMismatch
	KindConstraintViolation
	KindTableAlreadyExists
	KindUnknownTable
)

func (k ErrorKind) String() string {
	switch k {
	case KindSyntax:
		return "SyntaxError"
	case KindUnknownColumn:
		return "UnknownColumn"
	case KindAmbiguousColumn:
		return "AmbiguousColumn"
	case KindInvalidAggregateContext:
		return "InvalidAggregateContext"
	case KindTypeMismatch:
		return "TypeMismatch"
	case KindDivisionByZero:
		return "DivisionByZero"
	case KindSchemaMismatch:
		return "SchemaMismatch"
	case KindConstraintViolation:
		return "ConstraintViolation"
	case KindTableAlreadyExists:
		return "TableAlreadyExists"
	case KindUnknownTable:
		return "UnknownTable"
	default:
		return "Error"
	}
}

// Error is the typed failure returned for any statement.
// Pos is the byte offset in the statement text, or -1 when unknown.
type Error struct {
	Kind ErrorKind
	Msg  string
	Pos  int
}

func (e *Error) Error() string {
	if e.Pos >= 0 {
		return fmt.Sprintf("%s at position %d: %s", e.Kind, e.Pos, e.Msg)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Msg)
}

// Is matches any *Error of the same kind, so the sentinels below work with errors.Is.
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	return t.Kind == e.Kind
}

// Sentinels for errors.Is.
var (
	ErrSyntax                  = &Error{Kind: KindSyntax, Msg: "syntax error", Pos: -1}
	ErrUnknownColumn           = &Error{Kind: KindUnknownColumn, Msg: "unknown column", Pos: -1}
	ErrAmbiguousColumn         = &Error{Kind: KindAmbiguousColumn, Msg: "ambiguous column", Pos: -1}
	ErrInvalidAggregateContext = &Error{Kind: KindInvalidAggregateContext, Msg: "invalid aggregate context", Pos: -1}
	ErrTypeMismatch            = &Error{Kind: KindTypeMismatch, Msg: "type mismatch", Pos: -1}
	ErrDivisionByZero          = &Error{Kind: KindDivisionByZero, Msg: "division by zero", Pos: -1}
	ErrSchemaMismatch          = &Error{Kind: KindSchemaMismatch, Msg: "schema mismatch", Pos: -1}
	ErrConstraintViolation     = &Error{Kind: KindConstraintViolation, Msg: "constraint violation", Pos: -1}
	ErrTableAlreadyExists      = &Error{Kind: KindTableAlreadyExists, Msg: "table already exists", Pos: -1}
	ErrUnknownTable            = &Error{Kind: KindUnknownTable, Msg: "unknown table", Pos: -1}
)

func newError(kind ErrorKind, format string, args ...any) *Error {
	return &Error{Kind: kind, Msg: fmt.Sprintf(format, args...), Pos: -1}
}

// at sets pos on a typed error that does not carry a position yet.
func at(err error, pos int) error {
	var typed *Error
	if pos < 0 || !errors.As(err, &typed) || typed.Pos >= 0 {
		return err
	}
	positioned := *typed
	positioned.Pos = pos
	return &positioned
}

func syntaxError(pos int, format string, args ...any) *Error {
	return &Error{Kind: KindSyntax, Msg: fmt.Sprintf(format, args...), Pos: pos}
}

// translateError maps catalog sentinels onto statement error kinds.
// Errors that are already typed pass through unchanged.
func translateError(err error) error {
	if err == nil {
		return nil
	}
	var typed *Error
	if errors.As(err, &typed) {
		return typed
	}
	switch {
	case errors.Is(err, catalog.ErrTableNotFound):
		return newError(KindUnknownTable, "table %s does not exist", unwrapMessage(err, catalog.ErrTableNotFound))
	case errors.Is(err, catalog.ErrTableExists):
		return newError(KindTableAlreadyExists, "table %s already exists", unwrapMessage(err, catalog.ErrTableExists))
	case errors.Is(err, catalog.ErrSchemaMismatch):
		return newError(KindSchemaMismatch, "%s", unwrapMessage(err, catalog.ErrSchemaMismatch))
	case errors.Is(err, catalog.ErrConstraintViolation):
		return newError(KindConstraintViolation, "%s", unwrapMessage(err, catalog.ErrConstraintViolation))
	}
	return err
}

// unwrapMessage strips the "<sentinel>: " prefix added by fmt.Errorf("%w: ...").
func unwrapMessage(err, sentinel error) string {
	msg := err.Error()
	prefix := sentinel.Error() + ": "
	if len(msg) > len(prefix) && msg[:len(prefix)] == prefix {
		return msg[len(prefix):]
	}
	return msg
}
