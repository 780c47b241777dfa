package sql

import (
	"fmt"
	"strings"

	"github.com/samber/lo"

	"github.com/ChenPufeng/Blastoise/pkg/catalog"
)

// scopeColumn is one column visible to name resolution.
type scopeColumn struct {
	rel  string // qualifying name, "" for an unaliased derived table
	name string
	dt   catalog.DataType
}

// scope holds the columns of the FROM list in combined-row order.
type scope struct {
	cols []scopeColumn
	rels map[string]bool
}

func newScope() *scope {
	return &scope{rels: make(map[string]bool)}
}

func (s *scope) add(rel string, cols []scopeColumn) {
	if rel != "" {
		s.rels[rel] = true
	}
	for _, c := range cols {
		c.rel = rel
		s.cols = append(s.cols, c)
	}
}

func (s *scope) resolve(ref *ColumnRef) (*columnExpr, error) {
	if ref.Table != "" && !s.rels[ref.Table] {
		return nil, &Error{Kind: KindUnknownColumn, Msg: fmt.Sprintf("unknown relation %q in %s", ref.Table, ref), Pos: ref.Pos}
	}
	var found []int
	for i, c := range s.cols {
		if c.name == ref.Column && (ref.Table == "" || c.rel == ref.Table) {
			found = append(found, i)
		}
	}
	switch len(found) {
	case 0:
		return nil, &Error{Kind: KindUnknownColumn, Msg: fmt.Sprintf("column %s does not exist", ref), Pos: ref.Pos}
	case 1:
		c := s.cols[found[0]]
		return &columnExpr{rel: c.rel, name: c.name, idx: found[0], dt: c.dt, pos: ref.Pos}, nil
	}
	candidates := lo.Map(found, func(i int, _ int) string {
		c := s.cols[i]
		if c.rel == "" {
			return c.name
		}
		return c.rel + "." + c.name
	})
	return nil, &Error{
		Kind: KindAmbiguousColumn,
		Msg:  fmt.Sprintf("column reference %s is ambiguous (candidates: %s)", ref, strings.Join(candidates, ", ")),
		Pos:  ref.Pos,
	}
}

// bindContext says where an expression appears and whether aggregates may occur there.
type bindContext struct {
	clause   string
	allowAgg bool
	inAgg    bool
}

// binder resolves AST expressions against a scope. In aggregate mode it also
// rewrites post-aggregation expressions to read the aggregate operator's output,
// laid out as group keys, then the first input row of the group, then aggregates.
type binder struct {
	sc *scope

	grouped bool
	keys    []boundExpr
	keyIdx  map[string]int
	aggs    []*aggCall
	aggIdx  map[string]int
}

func newBinder(sc *scope) *binder {
	return &binder{sc: sc, keyIdx: make(map[string]int), aggIdx: make(map[string]int)}
}

func (b *binder) bindExpr(e Expression, ctx bindContext) (boundExpr, error) {
	switch n := e.(type) {
	case *LiteralExpr:
		return &constExpr{val: n.Value}, nil
	case *ColumnRef:
		return b.sc.resolve(n)
	case *UnaryExpr:
		operand, err := b.bindExpr(n.Expr, ctx)
		if err != nil {
			return nil, err
		}
		return &negateExpr{op: n.Op, operand: operand, pos: n.Pos}, nil
	case *BinaryExpr:
		left, err := b.bindExpr(n.Left, ctx)
		if err != nil {
			return nil, err
		}
		right, err := b.bindExpr(n.Right, ctx)
		if err != nil {
			return nil, err
		}
		return &arithExpr{op: n.Op, left: left, right: right, pos: n.Pos}, nil
	case *AggregateExpr:
		if ctx.inAgg {
			return nil, &Error{Kind: KindInvalidAggregateContext, Msg: fmt.Sprintf("aggregate %s is nested inside another aggregate", n), Pos: n.Pos}
		}
		if !ctx.allowAgg {
			return nil, &Error{Kind: KindInvalidAggregateContext, Msg: fmt.Sprintf("aggregate %s is not allowed in %s", n, ctx.clause), Pos: n.Pos}
		}
		call := &aggCall{fn: n.Func, pos: n.Pos}
		if n.Arg != nil {
			inner := ctx
			inner.inAgg = true
			arg, err := b.bindExpr(n.Arg, inner)
			if err != nil {
				return nil, err
			}
			call.arg = arg
		}
		return call, nil
	}
	return nil, fmt.Errorf("unsupported expression %T", e)
}

func (b *binder) bindCond(c Condition, ctx bindContext) (boundCond, error) {
	switch n := c.(type) {
	case *ComparisonCond:
		left, err := b.bindExpr(n.Left, ctx)
		if err != nil {
			return nil, err
		}
		right, err := b.bindExpr(n.Right, ctx)
		if err != nil {
			return nil, err
		}
		return &compareCond{op: n.Op, left: left, right: right, pos: n.Pos}, nil
	case *IsNullCond:
		operand, err := b.bindExpr(n.Expr, ctx)
		if err != nil {
			return nil, err
		}
		return &isNullCond{operand: operand, not: n.Not}, nil
	case *LogicalCond:
		left, err := b.bindCond(n.Left, ctx)
		if err != nil {
			return nil, err
		}
		right, err := b.bindCond(n.Right, ctx)
		if err != nil {
			return nil, err
		}
		return &logicCond{op: n.Op, left: left, right: right}, nil
	case *NotCond:
		inner, err := b.bindCond(n.Cond, ctx)
		if err != nil {
			return nil, err
		}
		return &notCond{inner: inner}, nil
	}
	return nil, fmt.Errorf("unsupported condition %T", c)
}

// addKey registers a GROUP BY expression bound against the input row.
func (b *binder) addKey(e boundExpr) {
	if _, dup := b.keyIdx[e.key()]; !dup {
		b.keyIdx[e.key()] = len(b.keys)
	}
	b.keys = append(b.keys, e)
}

func (b *binder) firstRowOffset() int {
	return len(b.keys)
}

func (b *binder) aggOffset() int {
	return len(b.keys) + len(b.sc.cols)
}

// lift rewrites an expression bound against the input row so that it reads
// the aggregate output instead.
func (b *binder) lift(e boundExpr) (boundExpr, error) {
	if call, ok := e.(*aggCall); ok {
		k := call.key()
		slot, seen := b.aggIdx[k]
		if !seen {
			slot = len(b.aggs)
			b.aggIdx[k] = slot
			b.aggs = append(b.aggs, call)
		}
		return &columnExpr{name: call.String(), idx: b.aggOffset() + slot, dt: call.typ(), pos: -1}, nil
	}
	if !hasAggregate(e) {
		if i, ok := b.keyIdx[e.key()]; ok {
			return &columnExpr{name: stripParens(e.String()), idx: i, dt: e.typ(), pos: -1}, nil
		}
	}

	switch n := e.(type) {
	case *constExpr:
		return n, nil
	case *columnExpr:
		if b.grouped {
			return nil, &Error{Kind: KindInvalidAggregateContext,
				Msg: fmt.Sprintf("column %s must appear in GROUP BY or be used in an aggregate function", n), Pos: n.pos}
		}
		return &columnExpr{rel: n.rel, name: n.name, idx: b.firstRowOffset() + n.idx, dt: n.dt, pos: n.pos}, nil
	case *negateExpr:
		operand, err := b.lift(n.operand)
		if err != nil {
			return nil, err
		}
		return &negateExpr{op: n.op, operand: operand, pos: n.pos}, nil
	case *arithExpr:
		left, err := b.lift(n.left)
		if err != nil {
			return nil, err
		}
		right, err := b.lift(n.right)
		if err != nil {
			return nil, err
		}
		return &arithExpr{op: n.op, left: left, right: right, pos: n.pos}, nil
	}
	return nil, fmt.Errorf("cannot lift expression %T", e)
}

func (b *binder) liftCond(c boundCond) (boundCond, error) {
	switch n := c.(type) {
	case *compareCond:
		left, err := b.lift(n.left)
		if err != nil {
			return nil, err
		}
		right, err := b.lift(n.right)
		if err != nil {
			return nil, err
		}
		return &compareCond{op: n.op, left: left, right: right, pos: n.pos}, nil
	case *isNullCond:
		operand, err := b.lift(n.operand)
		if err != nil {
			return nil, err
		}
		return &isNullCond{operand: operand, not: n.not}, nil
	case *logicCond:
		left, err := b.liftCond(n.left)
		if err != nil {
			return nil, err
		}
		right, err := b.liftCond(n.right)
		if err != nil {
			return nil, err
		}
		return &logicCond{op: n.op, left: left, right: right}, nil
	case *notCond:
		inner, err := b.liftCond(n.inner)
		if err != nil {
			return nil, err
		}
		return &notCond{inner: inner}, nil
	}
	return nil, fmt.Errorf("cannot lift condition %T", c)
}

func hasAggregate(e boundExpr) bool {
	switch n := e.(type) {
	case *aggCall:
		return true
	case *arithExpr:
		return hasAggregate(n.left) || hasAggregate(n.right)
	case *negateExpr:
		return hasAggregate(n.operand)
	}
	return false
}

// source is one bound relation of the FROM list.
type source struct {
	ref     TableRef
	derived *boundSelect
	cols    []scopeColumn
}

// boundSelect is a SELECT whose references are resolved to row positions.
type boundSelect struct {
	sources []source
	width   int
	where   boundCond

	aggregate bool
	keys      []boundExpr
	aggs      []*aggCall
	having    boundCond

	// outputs are followed by hidden sort keys; orderBy indexes into both
	outputs []boundExpr
	names   []string
	hidden  []boundExpr
	orderBy []int
}

// columns returns the visible output columns.
func (s *boundSelect) columns() []ResultColumn {
	cols := make([]ResultColumn, len(s.names))
	for i, name := range s.names {
		cols[i] = ResultColumn{Name: name, Type: s.outputs[i].typ()}
	}
	return cols
}

// schemaSource supplies table schemas to the binder.
type schemaSource interface {
	GetSchema(name string) (*catalog.Schema, error)
}

// bindSelect resolves a SELECT against the catalog, recursing into derived tables.
func bindSelect(schemas schemaSource, stmt *SelectStmt) (*boundSelect, error) {
	out := &boundSelect{}
	sc := newScope()

	for _, ref := range stmt.From {
		src := source{ref: ref}
		if ref.Subquery != nil {
			sub, err := bindSelect(schemas, ref.Subquery)
			if err != nil {
				return nil, err
			}
			src.derived = sub
			for _, c := range sub.columns() {
				src.cols = append(src.cols, scopeColumn{name: c.Name, dt: c.Type})
			}
		} else {
			schema, err := schemas.GetSchema(ref.Name)
			if err != nil {
				e := translateError(err)
				if typed, ok := e.(*Error); ok && typed.Kind == KindUnknownTable {
					typed.Msg = fmt.Sprintf("table %q does not exist", ref.Name)
					typed.Pos = ref.Pos
				}
				return nil, e
			}
			for _, c := range schema.Columns {
				src.cols = append(src.cols, scopeColumn{name: c.Name, dt: c.Type})
			}
		}
		sc.add(ref.RefName(), src.cols)
		out.sources = append(out.sources, src)
	}
	out.width = len(sc.cols)

	b := newBinder(sc)
	scalar := bindContext{clause: "WHERE"}

	if stmt.Where != nil {
		where, err := b.bindCond(stmt.Where, scalar)
		if err != nil {
			return nil, err
		}
		out.where = where
	}

	out.aggregate = len(stmt.GroupBy) > 0 || stmt.Having != nil ||
		lo.SomeBy(stmt.Columns, func(item SelectItem) bool { return containsAggregate(item.Expr) }) ||
		lo.SomeBy(stmt.OrderBy, containsAggregate)
	b.grouped = len(stmt.GroupBy) > 0

	for _, g := range stmt.GroupBy {
		key, err := b.bindExpr(g, bindContext{clause: "GROUP BY"})
		if err != nil {
			return nil, err
		}
		b.addKey(key)
	}

	// post binds an expression of the select list, HAVING or ORDER BY.
	post := func(e Expression, clause string) (boundExpr, error) {
		bound, err := b.bindExpr(e, bindContext{clause: clause, allowAgg: true})
		if err != nil {
			return nil, err
		}
		if !out.aggregate {
			return bound, nil
		}
		return b.lift(bound)
	}

	if stmt.Star {
		// bind by position: a star may expand to duplicate names
		for i, c := range sc.cols {
			var col boundExpr = &columnExpr{rel: c.rel, name: c.name, idx: i, dt: c.dt, pos: -1}
			if out.aggregate {
				lifted, err := b.lift(col)
				if err != nil {
					return nil, err
				}
				col = lifted
			}
			out.outputs = append(out.outputs, col)
			out.names = append(out.names, c.name)
		}
	} else {
		for _, item := range stmt.Columns {
			expr, err := post(item.Expr, "select list")
			if err != nil {
				return nil, err
			}
			out.outputs = append(out.outputs, expr)
			out.names = append(out.names, outputName(item))
		}
	}

	if stmt.Having != nil {
		having, err := b.bindCond(stmt.Having, bindContext{clause: "HAVING", allowAgg: true})
		if err != nil {
			return nil, err
		}
		if having, err = b.liftCond(having); err != nil {
			return nil, err
		}
		out.having = having
	}

	for _, o := range stmt.OrderBy {
		if idx, ok := aliasIndex(stmt, o); ok {
			out.orderBy = append(out.orderBy, idx)
			continue
		}
		expr, err := post(o, "ORDER BY")
		if err != nil {
			return nil, err
		}
		out.orderBy = append(out.orderBy, len(out.outputs)+len(out.hidden))
		out.hidden = append(out.hidden, expr)
	}

	out.keys = b.keys
	out.aggs = b.aggs
	return out, nil
}

// aliasIndex matches an unqualified ORDER BY name against explicit select
// aliases, which take precedence over source columns.
func aliasIndex(stmt *SelectStmt, e Expression) (int, bool) {
	ref, ok := e.(*ColumnRef)
	if !ok || ref.Table != "" {
		return 0, false
	}
	idx := -1
	for i, item := range stmt.Columns {
		if item.Alias == ref.Column {
			if idx >= 0 {
				return 0, false
			}
			idx = i
		}
	}
	return idx, idx >= 0
}

// outputName is the column header of a select item.
func outputName(item SelectItem) string {
	if item.Alias != "" {
		return item.Alias
	}
	if ref, ok := item.Expr.(*ColumnRef); ok {
		return ref.Column
	}
	return stripParens(item.Expr.String())
}

// bindTableScope returns a binder over the columns of one table, for UPDATE and DELETE.
func bindTableScope(table string, schema *catalog.Schema) *binder {
	sc := newScope()
	sc.add(table, lo.Map(schema.Columns, func(c catalog.Column, _ int) scopeColumn {
		return scopeColumn{name: c.Name, dt: c.Type}
	}))
	return newBinder(sc)
}
