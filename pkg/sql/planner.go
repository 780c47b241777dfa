package sql

import (
	"github.com/ChenPufeng/Blastoise/pkg/catalog"
)

// Planner turns bound SELECT statements into operator trees.
type Planner struct {
	tm *catalog.TableManager
}

// NewPlanner creates a planner reading tables from tm.
func NewPlanner(tm *catalog.TableManager) *Planner {
	return &Planner{tm: tm}
}

// PlanSelect binds stmt and builds its operator tree:
// scans, cross joins, WHERE filter, aggregate, HAVING filter, projection, sort.
func (p *Planner) PlanSelect(stmt *SelectStmt) (Operator, error) {
	bound, err := bindSelect(p.tm, stmt)
	if err != nil {
		return nil, err
	}
	return p.build(bound), nil
}

func (p *Planner) build(s *boundSelect) Operator {
	var root Operator
	for _, src := range s.sources {
		var op Operator
		if src.derived != nil {
			op = &derivedScan{input: p.build(src.derived), alias: src.ref.Alias}
		} else {
			schema := make([]ResultColumn, len(src.cols))
			for i, c := range src.cols {
				schema[i] = ResultColumn{Name: c.name, Type: c.dt}
			}
			op = &tableScan{tm: p.tm, table: src.ref.Name, alias: src.ref.Alias, schema: schema}
		}
		if root == nil {
			root = op
		} else {
			root = &crossJoin{left: root, right: op}
		}
	}

	if s.where != nil {
		root = &filter{input: root, cond: s.where, label: "Filter"}
	}

	if s.aggregate {
		root = &aggregate{input: root, keys: s.keys, aggs: s.aggs, width: s.width}
		if s.having != nil {
			root = &filter{input: root, cond: s.having, label: "Having"}
		}
	}

	exprs := append(append([]boundExpr{}, s.outputs...), s.hidden...)
	schema := s.columns()
	for _, h := range s.hidden {
		schema = append(schema, ResultColumn{Name: stripParens(h.String()), Type: h.typ()})
	}
	root = &project{input: root, exprs: exprs, schema: schema, hidden: len(s.hidden)}

	if len(s.orderBy) > 0 {
		root = &sortOp{input: root, keys: s.orderBy, visible: len(s.outputs)}
	}
	return root
}
