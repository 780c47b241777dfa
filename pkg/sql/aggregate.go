package sql

import (
	"fmt"

	"github.com/ChenPufeng/Blastoise/pkg/catalog"
)

// aggCall is an aggregate function bound against the aggregate operator's input.
// The binder replaces it with a column of the aggregate output before evaluation.
type aggCall struct {
	fn  TokenType
	arg boundExpr // nil for COUNT(*)
	pos int
}

func (a *aggCall) eval(catalog.Row) (catalog.Value, error) {
	return catalog.Value{}, fmt.Errorf("aggregate %s evaluated outside an aggregate operator", a)
}

func (a *aggCall) typ() catalog.DataType {
	switch a.fn {
	case TOKEN_COUNT:
		return catalog.TypeInt
	case TOKEN_AVG:
		return catalog.TypeFloat
	}
	if a.arg == nil {
		return catalog.TypeUnknown
	}
	return a.arg.typ()
}

func (a *aggCall) key() string {
	if a.arg == nil {
		return a.fn.String() + "(*)"
	}
	return a.fn.String() + "(" + a.arg.key() + ")"
}

func (a *aggCall) String() string {
	if a.arg == nil {
		return a.fn.String() + "(*)"
	}
	return a.fn.String() + "(" + stripParens(a.arg.String()) + ")"
}

func (a *aggCall) newAccumulator() accumulator {
	switch a.fn {
	case TOKEN_COUNT:
		return &countAcc{star: a.arg == nil}
	case TOKEN_SUM:
		return &sumAcc{}
	case TOKEN_AVG:
		return &avgAcc{}
	case TOKEN_MIN:
		return &extremeAcc{fn: TOKEN_MIN}
	default:
		return &extremeAcc{fn: TOKEN_MAX}
	}
}

// accumulator folds the values of one group. Every accumulator ignores NULLs
// except COUNT(*), which counts rows.
type accumulator interface {
	add(v catalog.Value) error
	result() (catalog.Value, error)
}

type countAcc struct {
	star bool
	n    int64
}

func (a *countAcc) add(v catalog.Value) error {
	if a.star || !v.IsNull {
		a.n++
	}
	return nil
}

func (a *countAcc) result() (catalog.Value, error) { return catalog.NewInt(a.n), nil }

// sumAcc keeps an INT sum until it sees a FLOAT. An INT sum that leaves
// the int64 range is an error unless a FLOAT turns the result into one.
type sumAcc struct {
	seen     bool
	isFloat  bool
	overflow bool
	i        int64
	f        float64
}

func (a *sumAcc) add(v catalog.Value) error {
	if v.IsNull {
		return nil
	}
	switch v.Type {
	case catalog.TypeInt:
		sum, ok := addInt(a.i, v.Int)
		a.i, a.overflow = sum, a.overflow || !ok
		a.f += float64(v.Int)
	case catalog.TypeFloat:
		a.isFloat = true
		a.f += v.Float
	default:
		return newError(KindTypeMismatch, "SUM over %s", v.Type)
	}
	a.seen = true
	return nil
}

func (a *sumAcc) result() (catalog.Value, error) {
	switch {
	case !a.seen:
		return catalog.Null(), nil
	case a.isFloat:
		return catalog.NewFloat(a.f), nil
	case a.overflow:
		return catalog.Value{}, newError(KindTypeMismatch, "integer overflow in SUM")
	}
	return catalog.NewInt(a.i), nil
}

type avgAcc struct {
	n   int64
	sum float64
}

func (a *avgAcc) add(v catalog.Value) error {
	if v.IsNull {
		return nil
	}
	if !v.Type.IsNumeric() {
		return newError(KindTypeMismatch, "AVG over %s", v.Type)
	}
	a.n++
	a.sum += v.AsFloat()
	return nil
}

func (a *avgAcc) result() (catalog.Value, error) {
	if a.n == 0 {
		return catalog.Null(), nil
	}
	return catalog.NewFloat(a.sum / float64(a.n)), nil
}

// extremeAcc implements MIN and MAX over numbers or strings.
type extremeAcc struct {
	fn   TokenType
	seen bool
	best catalog.Value
}

func (a *extremeAcc) add(v catalog.Value) error {
	if v.IsNull {
		return nil
	}
	if !a.seen {
		a.best, a.seen = v, true
		return nil
	}
	cmp, err := compareValues(v, a.best)
	if err != nil {
		return err
	}
	if (a.fn == TOKEN_MIN && cmp < 0) || (a.fn == TOKEN_MAX && cmp > 0) {
		a.best = v
	}
	return nil
}

func (a *extremeAcc) result() (catalog.Value, error) {
	if !a.seen {
		return catalog.Null(), nil
	}
	return a.best, nil
}
