package sql

import (
	"fmt"
	"math"
	"strings"

	"github.com/ChenPufeng/Blastoise/pkg/catalog"
)

// Truth is the result of a condition under three-valued logic.
type Truth int8

const (
	False Truth = iota
	True
	Unknown
)

func (t Truth) String() string {
	switch t {
	case True:
		return "TRUE"
	case False:
		return "FALSE"
	default:
		return "UNKNOWN"
	}
}

func (t Truth) and(o Truth) Truth {
	if t == False || o == False {
		return False
	}
	if t == True && o == True {
		return True
	}
	return Unknown
}

func (t Truth) or(o Truth) Truth {
	if t == True || o == True {
		return True
	}
	if t == False && o == False {
		return False
	}
	return Unknown
}

func (t Truth) not() Truth {
	switch t {
	case True:
		return False
	case False:
		return True
	default:
		return Unknown
	}
}

// boundExpr is a resolved value expression evaluated against a row.
type boundExpr interface {
	eval(row catalog.Row) (catalog.Value, error)
	// typ is the static result type, TypeUnknown when only known at run time.
	typ() catalog.DataType
	// key identifies the expression structurally; equal keys mean equal expressions.
	key() string
	String() string
}

// boundCond is a resolved condition evaluated against a row.
type boundCond interface {
	test(row catalog.Row) (Truth, error)
	String() string
}

type constExpr struct {
	val catalog.Value
}

func (e *constExpr) eval(catalog.Row) (catalog.Value, error) { return e.val, nil }
func (e *constExpr) typ() catalog.DataType                   { return e.val.Type }
func (e *constExpr) key() string                             { return "c" + e.val.Key() }
func (e *constExpr) String() string                          { return (&LiteralExpr{Value: e.val}).String() }

// columnExpr reads position idx of the row it is evaluated against.
// pos is where the column was named in the statement, -1 for derived columns.
type columnExpr struct {
	rel  string
	name string
	idx  int
	dt   catalog.DataType
	pos  int
}

func (e *columnExpr) eval(row catalog.Row) (catalog.Value, error) {
	if e.idx >= len(row) {
		return catalog.Value{}, fmt.Errorf("column %s out of range", e)
	}
	return row[e.idx], nil
}

func (e *columnExpr) typ() catalog.DataType { return e.dt }
func (e *columnExpr) key() string           { return fmt.Sprintf("#%d", e.idx) }

func (e *columnExpr) String() string {
	if e.rel != "" {
		return e.rel + "." + e.name
	}
	return e.name
}

type arithExpr struct {
	op          TokenType
	left, right boundExpr
	pos         int
}

func (e *arithExpr) eval(row catalog.Row) (catalog.Value, error) {
	l, err := e.left.eval(row)
	if err != nil {
		return catalog.Value{}, err
	}
	r, err := e.right.eval(row)
	if err != nil {
		return catalog.Value{}, err
	}
	v, err := arithmetic(e.op, l, r)
	if err != nil {
		return catalog.Value{}, at(err, e.pos)
	}
	return v, nil
}

func (e *arithExpr) typ() catalog.DataType {
	l, r := e.left.typ(), e.right.typ()
	switch {
	case e.op == TOKEN_SLASH:
		return catalog.TypeFloat
	case e.op == TOKEN_PERCENT:
		return catalog.TypeInt
	case l == catalog.TypeFloat || r == catalog.TypeFloat:
		return catalog.TypeFloat
	case l == catalog.TypeInt && r == catalog.TypeInt:
		return catalog.TypeInt
	}
	return catalog.TypeUnknown
}

func (e *arithExpr) key() string {
	return "(" + e.left.key() + opSymbol(e.op) + e.right.key() + ")"
}

func (e *arithExpr) String() string {
	return fmt.Sprintf("(%s %s %s)", e.left, opSymbol(e.op), e.right)
}

type negateExpr struct {
	op      TokenType
	operand boundExpr
	pos     int
}

func (e *negateExpr) eval(row catalog.Row) (catalog.Value, error) {
	v, err := e.operand.eval(row)
	if err != nil {
		return catalog.Value{}, err
	}
	if v.IsNull {
		return v, nil
	}
	switch v.Type {
	case catalog.TypeInt:
		if e.op == TOKEN_MINUS {
			if v.Int == math.MinInt64 {
				return catalog.Value{}, &Error{Kind: KindTypeMismatch, Msg: fmt.Sprintf("integer overflow in -(%d)", v.Int), Pos: e.pos}
			}
			return catalog.NewInt(-v.Int), nil
		}
		return v, nil
	case catalog.TypeFloat:
		if e.op == TOKEN_MINUS {
			return catalog.NewFloat(-v.Float), nil
		}
		return v, nil
	}
	return catalog.Value{}, &Error{Kind: KindTypeMismatch, Msg: fmt.Sprintf("cannot apply unary %s to %s", opSymbol(e.op), v.Type), Pos: e.pos}
}

func (e *negateExpr) typ() catalog.DataType { return e.operand.typ() }
func (e *negateExpr) key() string           { return opSymbol(e.op) + e.operand.key() }
func (e *negateExpr) String() string        { return opSymbol(e.op) + e.operand.String() }

// arithmetic applies + - * / % under the promotion rules: Int op Int stays
// Int except for /, which always yields Float. Int results that do not fit
// in 64 bits are a TypeMismatch.
func arithmetic(op TokenType, l, r catalog.Value) (catalog.Value, error) {
	if l.IsNull || r.IsNull {
		return catalog.Null(), nil
	}
	if !l.Type.IsNumeric() || !r.Type.IsNumeric() {
		return catalog.Value{}, newError(KindTypeMismatch, "cannot apply %s to %s and %s", opSymbol(op), l.Type, r.Type)
	}
	bothInt := l.Type == catalog.TypeInt && r.Type == catalog.TypeInt

	switch op {
	case TOKEN_PLUS:
		if bothInt {
			return intResult(op, l.Int, r.Int, addInt)
		}
		return catalog.NewFloat(l.AsFloat() + r.AsFloat()), nil
	case TOKEN_MINUS:
		if bothInt {
			return intResult(op, l.Int, r.Int, subInt)
		}
		return catalog.NewFloat(l.AsFloat() - r.AsFloat()), nil
	case TOKEN_STAR:
		if bothInt {
			return intResult(op, l.Int, r.Int, mulInt)
		}
		return catalog.NewFloat(l.AsFloat() * r.AsFloat()), nil
	case TOKEN_SLASH:
		if r.AsFloat() == 0 {
			return catalog.Value{}, newError(KindDivisionByZero, "division by zero")
		}
		return catalog.NewFloat(l.AsFloat() / r.AsFloat()), nil
	case TOKEN_PERCENT:
		if !bothInt {
			return catalog.Value{}, newError(KindTypeMismatch, "%% requires INT operands, got %s and %s", l.Type, r.Type)
		}
		if r.Int == 0 {
			return catalog.Value{}, newError(KindDivisionByZero, "modulo by zero")
		}
		return catalog.NewInt(l.Int % r.Int), nil
	}
	return catalog.Value{}, fmt.Errorf("unknown arithmetic operator %s", op)
}

func intResult(op TokenType, a, b int64, fn func(a, b int64) (int64, bool)) (catalog.Value, error) {
	c, ok := fn(a, b)
	if !ok {
		return catalog.Value{}, newError(KindTypeMismatch, "integer overflow in %d %s %d", a, opSymbol(op), b)
	}
	return catalog.NewInt(c), nil
}

// addInt, subInt and mulInt return false instead of wrapping around.
func addInt(a, b int64) (int64, bool) {
	c := a + b
	return c, (c > a) == (b > 0)
}

func subInt(a, b int64) (int64, bool) {
	c := a - b
	return c, (c < a) == (b > 0)
}

func mulInt(a, b int64) (int64, bool) {
	if a == 0 || b == 0 {
		return 0, true
	}
	if (a == -1 && b == math.MinInt64) || (b == -1 && a == math.MinInt64) {
		return 0, false
	}
	c := a * b
	return c, c/b == a
}

// compareValues orders two non-NULL values. Numbers compare after promotion,
// strings by byte order; a string against a number is a TypeMismatch.
func compareValues(a, b catalog.Value) (int, error) {
	switch {
	case a.Type.IsNumeric() && b.Type.IsNumeric():
		if a.Type == catalog.TypeInt && b.Type == catalog.TypeInt {
			switch {
			case a.Int < b.Int:
				return -1, nil
			case a.Int > b.Int:
				return 1, nil
			}
			return 0, nil
		}
		af, bf := a.AsFloat(), b.AsFloat()
		switch {
		case af < bf:
			return -1, nil
		case af > bf:
			return 1, nil
		}
		return 0, nil
	case a.Type == catalog.TypeChar && b.Type == catalog.TypeChar:
		return strings.Compare(a.Text, b.Text), nil
	}
	return 0, newError(KindTypeMismatch, "cannot compare %s with %s", a.Type, b.Type)
}

type compareCond struct {
	op          TokenType
	left, right boundExpr
	pos         int
}

func (c *compareCond) test(row catalog.Row) (Truth, error) {
	l, err := c.left.eval(row)
	if err != nil {
		return Unknown, err
	}
	r, err := c.right.eval(row)
	if err != nil {
		return Unknown, err
	}
	if l.IsNull || r.IsNull {
		return Unknown, nil
	}
	cmp, err := compareValues(l, r)
	if err != nil {
		return Unknown, at(err, c.pos)
	}
	var ok bool
	switch c.op {
	case TOKEN_EQ:
		ok = cmp == 0
	case TOKEN_NE:
		ok = cmp != 0
	case TOKEN_LT:
		ok = cmp < 0
	case TOKEN_LE:
		ok = cmp <= 0
	case TOKEN_GT:
		ok = cmp > 0
	case TOKEN_GE:
		ok = cmp >= 0
	default:
		return Unknown, fmt.Errorf("unknown comparison operator %s", c.op)
	}
	if ok {
		return True, nil
	}
	return False, nil
}

func (c *compareCond) String() string {
	return fmt.Sprintf("%s %s %s", c.left, opSymbol(c.op), c.right)
}

type isNullCond struct {
	operand boundExpr
	not     bool
}

func (c *isNullCond) test(row catalog.Row) (Truth, error) {
	v, err := c.operand.eval(row)
	if err != nil {
		return Unknown, err
	}
	if v.IsNull != c.not {
		return True, nil
	}
	return False, nil
}

func (c *isNullCond) String() string {
	if c.not {
		return c.operand.String() + " IS NOT NULL"
	}
	return c.operand.String() + " IS NULL"
}

// logicCond evaluates both sides so that errors on either side surface.
type logicCond struct {
	op          TokenType
	left, right boundCond
}

func (c *logicCond) test(row catalog.Row) (Truth, error) {
	l, err := c.left.test(row)
	if err != nil {
		return Unknown, err
	}
	r, err := c.right.test(row)
	if err != nil {
		return Unknown, err
	}
	if c.op == TOKEN_AND {
		return l.and(r), nil
	}
	return l.or(r), nil
}

func (c *logicCond) String() string {
	return fmt.Sprintf("(%s %s %s)", c.left, c.op, c.right)
}

type notCond struct {
	inner boundCond
}

func (c *notCond) test(row catalog.Row) (Truth, error) {
	t, err := c.inner.test(row)
	if err != nil {
		return Unknown, err
	}
	return t.not(), nil
}

func (c *notCond) String() string {
	return "NOT " + c.inner.String()
}
