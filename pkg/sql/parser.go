package sql

import (
	"strconv"

	"github.com/ChenPufeng/Blastoise/pkg/catalog"
)

// DefaultMaxDepth bounds the nesting of parentheses, unary operators and
// derived tables accepted by the parser.
const DefaultMaxDepth = 128

// MaxNestingDepth is the largest nesting limit a parser accepts. Deeper
// limits could exhaust the goroutine stack before the limit is reached.
const MaxNestingDepth = 10000

// Parser parses SQL statements by recursive descent over a token slice.
type Parser struct {
	tokens   []Token
	pos      int
	depth    int
	maxDepth int
}

// NewParser creates a new parser for the input SQL.
func NewParser(input string) *Parser {
	return &Parser{tokens: Tokenize(input), maxDepth: DefaultMaxDepth}
}

// SetMaxDepth changes the nesting limit. Non-positive values keep the
// default and values above MaxNestingDepth are clamped to it.
func (p *Parser) SetMaxDepth(n int) {
	if n > 0 {
		p.maxDepth = min(n, MaxNestingDepth)
	}
}

func (p *Parser) cur() Token {
	return p.tokens[p.pos]
}

func (p *Parser) nextToken() {
	if p.pos < len(p.tokens)-1 {
		p.pos++
	}
}

func (p *Parser) curTokenIs(t TokenType) bool {
	return p.cur().Type == t
}

// errorf reports what was expected at the current token.
func (p *Parser) errorf(expected string) *Error {
	tok := p.cur()
	if tok.Type == TOKEN_ILLEGAL {
		return syntaxError(tok.Pos, "%s", tok.Literal)
	}
	return syntaxError(tok.Pos, "expected %s, found %s", expected, tok.describe())
}

func (p *Parser) expect(t TokenType) error {
	if p.curTokenIs(t) {
		p.nextToken()
		return nil
	}
	return p.errorf(t.String())
}

// enter guards one level of recursion; pair every successful call with leave.
func (p *Parser) enter() error {
	if p.depth >= p.maxDepth {
		return syntaxError(p.cur().Pos, "nesting too deep")
	}
	p.depth++
	return nil
}

func (p *Parser) leave() {
	p.depth--
}

// Parse parses a single SQL statement with an optional trailing semicolon.
func (p *Parser) Parse() (Statement, error) {
	stmt, err := p.parseStatement()
	if err != nil {
		return nil, err
	}
	if p.curTokenIs(TOKEN_SEMICOLON) {
		p.nextToken()
	}
	if !p.curTokenIs(TOKEN_EOF) {
		return nil, p.errorf("end of statement")
	}
	return stmt, nil
}

func (p *Parser) parseStatement() (Statement, error) {
	switch p.cur().Type {
	case TOKEN_SELECT:
		return p.parseSelect()
	case TOKEN_EXPLAIN:
		p.nextToken()
		if !p.curTokenIs(TOKEN_SELECT) {
			return nil, p.errorf("SELECT after EXPLAIN")
		}
		sel, err := p.parseSelect()
		if err != nil {
			return nil, err
		}
		return &ExplainStmt{Select: sel}, nil
	case TOKEN_INSERT:
		return p.parseInsert()
	case TOKEN_UPDATE:
		return p.parseUpdate()
	case TOKEN_DELETE:
		return p.parseDelete()
	case TOKEN_CREATE:
		return p.parseCreate()
	case TOKEN_DROP:
		return p.parseDrop()
	default:
		return nil, p.errorf("statement")
	}
}

func (p *Parser) parseIdentifier() (string, error) {
	if !p.curTokenIs(TOKEN_IDENT) {
		return "", p.errorf("identifier")
	}
	name := p.cur().Literal
	p.nextToken()
	return name, nil
}

// parseAlias parses an optional "[AS] ident".
func (p *Parser) parseAlias() (string, error) {
	if p.curTokenIs(TOKEN_AS) {
		p.nextToken()
		return p.parseIdentifier()
	}
	if p.curTokenIs(TOKEN_IDENT) {
		return p.parseIdentifier()
	}
	return "", nil
}

// parseSelect parses SELECT ... FROM ... [WHERE] [GROUP BY] [HAVING] [ORDER BY].
func (p *Parser) parseSelect() (*SelectStmt, error) {
	if err := p.expect(TOKEN_SELECT); err != nil {
		return nil, err
	}
	stmt := &SelectStmt{}

	if p.curTokenIs(TOKEN_STAR) {
		stmt.Star = true
		p.nextToken()
	} else {
		for {
			expr, err := p.parseExpr()
			if err != nil {
				return nil, err
			}
			alias, err := p.parseAlias()
			if err != nil {
				return nil, err
			}
			stmt.Columns = append(stmt.Columns, SelectItem{Expr: expr, Alias: alias})
			if !p.curTokenIs(TOKEN_COMMA) {
				break
			}
			p.nextToken()
		}
	}

	if err := p.expect(TOKEN_FROM); err != nil {
		return nil, err
	}
	for {
		ref, err := p.parseTableRef()
		if err != nil {
			return nil, err
		}
		stmt.From = append(stmt.From, ref)
		if !p.curTokenIs(TOKEN_COMMA) {
			break
		}
		p.nextToken()
	}

	if p.curTokenIs(TOKEN_WHERE) {
		p.nextToken()
		cond, err := p.parseCondition()
		if err != nil {
			return nil, err
		}
		stmt.Where = cond
	}

	if p.curTokenIs(TOKEN_GROUP) {
		p.nextToken()
		if err := p.expect(TOKEN_BY); err != nil {
			return nil, err
		}
		exprs, err := p.parseExprList()
		if err != nil {
			return nil, err
		}
		stmt.GroupBy = exprs
	}

	if p.curTokenIs(TOKEN_HAVING) {
		p.nextToken()
		cond, err := p.parseCondition()
		if err != nil {
			return nil, err
		}
		stmt.Having = cond
	}

	if p.curTokenIs(TOKEN_ORDER) {
		p.nextToken()
		if err := p.expect(TOKEN_BY); err != nil {
			return nil, err
		}
		for {
			expr, err := p.parseExpr()
			if err != nil {
				return nil, err
			}
			switch {
			case p.curTokenIs(TOKEN_ASC):
				p.nextToken()
			case p.curTokenIs(TOKEN_DESC):
				return nil, syntaxError(p.cur().Pos, "descending order is not supported")
			}
			stmt.OrderBy = append(stmt.OrderBy, expr)
			if !p.curTokenIs(TOKEN_COMMA) {
				break
			}
			p.nextToken()
		}
	}

	return stmt, nil
}

func (p *Parser) parseTableRef() (TableRef, error) {
	ref := TableRef{Pos: p.cur().Pos}
	if p.curTokenIs(TOKEN_LPAREN) {
		if err := p.enter(); err != nil {
			return ref, err
		}
		p.nextToken()
		sub, err := p.parseSelect()
		if err != nil {
			return ref, err
		}
		if err := p.expect(TOKEN_RPAREN); err != nil {
			return ref, err
		}
		p.leave()
		ref.Subquery = sub
	} else {
		name, err := p.parseIdentifier()
		if err != nil {
			return ref, err
		}
		ref.Name = name
	}
	alias, err := p.parseAlias()
	if err != nil {
		return ref, err
	}
	ref.Alias = alias
	return ref, nil
}

func (p *Parser) parseExprList() ([]Expression, error) {
	var exprs []Expression
	for {
		expr, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		exprs = append(exprs, expr)
		if !p.curTokenIs(TOKEN_COMMA) {
			return exprs, nil
		}
		p.nextToken()
	}
}

// parseInsert parses INSERT [INTO] table VALUES (literal, ...).
func (p *Parser) parseInsert() (*InsertStmt, error) {
	p.nextToken() // consume INSERT
	if p.curTokenIs(TOKEN_INTO) {
		p.nextToken()
	}
	name, err := p.parseIdentifier()
	if err != nil {
		return nil, err
	}
	if err := p.expect(TOKEN_VALUES); err != nil {
		return nil, err
	}
	if err := p.expect(TOKEN_LPAREN); err != nil {
		return nil, err
	}
	stmt := &InsertStmt{TableName: name}
	for {
		v, err := p.parseLiteral()
		if err != nil {
			return nil, err
		}
		stmt.Values = append(stmt.Values, v)
		if !p.curTokenIs(TOKEN_COMMA) {
			break
		}
		p.nextToken()
	}
	if err := p.expect(TOKEN_RPAREN); err != nil {
		return nil, err
	}
	return stmt, nil
}

// parseLiteral parses a constant, allowing a sign in front of numbers.
func (p *Parser) parseLiteral() (catalog.Value, error) {
	negative := false
	signed := false
	if p.curTokenIs(TOKEN_MINUS) || p.curTokenIs(TOKEN_PLUS) {
		negative = p.curTokenIs(TOKEN_MINUS)
		signed = true
		p.nextToken()
	}
	tok := p.cur()
	switch tok.Type {
	case TOKEN_INT, TOKEN_FLOAT:
		lit := tok.Literal
		if negative {
			lit = "-" + lit
		}
		v, err := p.parseNumber(tok, lit)
		if err != nil {
			return catalog.Value{}, err
		}
		p.nextToken()
		return v, nil
	case TOKEN_STRING:
		if !signed {
			p.nextToken()
			return catalog.NewText(tok.Literal), nil
		}
	case TOKEN_NULL:
		if !signed {
			p.nextToken()
			return catalog.Null(), nil
		}
	}
	return catalog.Value{}, p.errorf("literal")
}

func (p *Parser) parseNumber(tok Token, lit string) (catalog.Value, error) {
	if tok.Type == TOKEN_INT {
		n, err := strconv.ParseInt(lit, 10, 64)
		if err != nil {
			return catalog.Value{}, syntaxError(tok.Pos, "integer literal %s out of range", lit)
		}
		return catalog.NewInt(n), nil
	}
	f, err := strconv.ParseFloat(lit, 64)
	if err != nil {
		return catalog.Value{}, syntaxError(tok.Pos, "invalid float literal %s", lit)
	}
	return catalog.NewFloat(f), nil
}

// parseUpdate parses UPDATE table SET col = expr, ... [WHERE condition].
func (p *Parser) parseUpdate() (*UpdateStmt, error) {
	p.nextToken() // consume UPDATE
	name, err := p.parseIdentifier()
	if err != nil {
		return nil, err
	}
	if err := p.expect(TOKEN_SET); err != nil {
		return nil, err
	}
	stmt := &UpdateStmt{TableName: name}
	for {
		pos := p.cur().Pos
		col, err := p.parseIdentifier()
		if err != nil {
			return nil, err
		}
		if err := p.expect(TOKEN_EQ); err != nil {
			return nil, err
		}
		expr, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		stmt.Assignments = append(stmt.Assignments, Assignment{Column: col, Value: expr, Pos: pos})
		if !p.curTokenIs(TOKEN_COMMA) {
			break
		}
		p.nextToken()
	}
	if p.curTokenIs(TOKEN_WHERE) {
		p.nextToken()
		cond, err := p.parseCondition()
		if err != nil {
			return nil, err
		}
		stmt.Where = cond
	}
	return stmt, nil
}

// parseDelete parses DELETE FROM table WHERE condition.
func (p *Parser) parseDelete() (*DeleteStmt, error) {
	p.nextToken() // consume DELETE
	if err := p.expect(TOKEN_FROM); err != nil {
		return nil, err
	}
	name, err := p.parseIdentifier()
	if err != nil {
		return nil, err
	}
	if err := p.expect(TOKEN_WHERE); err != nil {
		return nil, err
	}
	cond, err := p.parseCondition()
	if err != nil {
		return nil, err
	}
	return &DeleteStmt{TableName: name, Where: cond}, nil
}

// parseCreate parses CREATE TABLE name (column_def, ...).
func (p *Parser) parseCreate() (*CreateTableStmt, error) {
	p.nextToken() // consume CREATE
	if err := p.expect(TOKEN_TABLE); err != nil {
		return nil, err
	}
	name, err := p.parseIdentifier()
	if err != nil {
		return nil, err
	}
	if err := p.expect(TOKEN_LPAREN); err != nil {
		return nil, err
	}
	stmt := &CreateTableStmt{TableName: name}
	for {
		col, err := p.parseColumnDef()
		if err != nil {
			return nil, err
		}
		stmt.Columns = append(stmt.Columns, col)
		if !p.curTokenIs(TOKEN_COMMA) {
			break
		}
		p.nextToken()
	}
	if err := p.expect(TOKEN_RPAREN); err != nil {
		return nil, err
	}
	return stmt, nil
}

func (p *Parser) parseColumnDef() (ColumnDef, error) {
	var col ColumnDef
	name, err := p.parseIdentifier()
	if err != nil {
		return col, err
	}
	col.Name = name

	switch p.cur().Type {
	case TOKEN_INT_TYPE, TOKEN_INTEGER:
		col.Type = catalog.TypeInt
		p.nextToken()
	case TOKEN_FLOAT_TYPE, TOKEN_REAL, TOKEN_DOUBLE:
		col.Type = catalog.TypeFloat
		p.nextToken()
	case TOKEN_TEXT:
		col.Type = catalog.TypeChar
		p.nextToken()
	case TOKEN_CHAR, TOKEN_VARCHAR:
		col.Type = catalog.TypeChar
		p.nextToken()
		if p.curTokenIs(TOKEN_LPAREN) {
			p.nextToken()
			tok := p.cur()
			if tok.Type != TOKEN_INT {
				return col, p.errorf("length")
			}
			n, err := strconv.Atoi(tok.Literal)
			if err != nil || n <= 0 {
				return col, syntaxError(tok.Pos, "invalid length %s", tok.Literal)
			}
			col.Length = n
			p.nextToken()
			if err := p.expect(TOKEN_RPAREN); err != nil {
				return col, err
			}
		}
	default:
		return col, p.errorf("column type")
	}

	for {
		switch p.cur().Type {
		case TOKEN_NOT:
			p.nextToken()
			if err := p.expect(TOKEN_NULL); err != nil {
				return col, err
			}
			col.NotNull = true
		case TOKEN_NULL:
			p.nextToken()
		case TOKEN_PRIMARY:
			p.nextToken()
			if p.curTokenIs(TOKEN_KEY) {
				p.nextToken()
			}
			col.PrimaryKey = true
			col.NotNull = true
		default:
			return col, nil
		}
	}
}

// parseDrop parses DROP TABLE name.
func (p *Parser) parseDrop() (*DropTableStmt, error) {
	p.nextToken() // consume DROP
	if err := p.expect(TOKEN_TABLE); err != nil {
		return nil, err
	}
	name, err := p.parseIdentifier()
	if err != nil {
		return nil, err
	}
	return &DropTableStmt{TableName: name}, nil
}

// parseCondition parses OR-separated AND groups.
func (p *Parser) parseCondition() (Condition, error) {
	left, err := p.parseAndCond()
	if err != nil {
		return nil, err
	}
	for p.curTokenIs(TOKEN_OR) {
		p.nextToken()
		right, err := p.parseAndCond()
		if err != nil {
			return nil, err
		}
		left = &LogicalCond{Left: left, Op: TOKEN_OR, Right: right}
	}
	return left, nil
}

func (p *Parser) parseAndCond() (Condition, error) {
	left, err := p.parseNotCond()
	if err != nil {
		return nil, err
	}
	for p.curTokenIs(TOKEN_AND) {
		p.nextToken()
		right, err := p.parseNotCond()
		if err != nil {
			return nil, err
		}
		left = &LogicalCond{Left: left, Op: TOKEN_AND, Right: right}
	}
	return left, nil
}

func (p *Parser) parseNotCond() (Condition, error) {
	switch p.cur().Type {
	case TOKEN_NOT:
		if err := p.enter(); err != nil {
			return nil, err
		}
		p.nextToken()
		cond, err := p.parseNotCond()
		if err != nil {
			return nil, err
		}
		p.leave()
		return &NotCond{Cond: cond}, nil
	case TOKEN_LPAREN:
		return p.parseParenCond()
	}
	return p.parseCmpCond()
}

// parseParenCond resolves "( condition )" against "( expr ) op expr" by
// trying the condition first and backtracking to a comparison.
func (p *Parser) parseParenCond() (Condition, error) {
	if err := p.enter(); err != nil {
		return nil, err
	}
	start := p.pos
	startDepth := p.depth

	p.nextToken() // consume (
	cond, condErr := p.parseCondition()
	if condErr == nil {
		condErr = p.expect(TOKEN_RPAREN)
	}
	if condErr == nil {
		p.leave()
		return cond, nil
	}
	if isTooDeep(condErr) {
		return nil, condErr
	}

	p.pos = start
	p.depth = startDepth
	cmp, cmpErr := p.parseCmpCond()
	if cmpErr == nil {
		p.leave()
		return cmp, nil
	}
	if isTooDeep(cmpErr) {
		return nil, cmpErr
	}
	// report whichever attempt got further
	if errPos(cmpErr) >= errPos(condErr) {
		return nil, cmpErr
	}
	return nil, condErr
}

func isTooDeep(err error) bool {
	e, ok := err.(*Error)
	return ok && e.Kind == KindSyntax && e.Msg == "nesting too deep"
}

func errPos(err error) int {
	if e, ok := err.(*Error); ok {
		return e.Pos
	}
	return -1
}

// parseCmpCond parses "expr op expr" or "expr IS [NOT] NULL".
func (p *Parser) parseCmpCond() (Condition, error) {
	left, err := p.parseExpr()
	if err != nil {
		return nil, err
	}
	switch p.cur().Type {
	case TOKEN_EQ, TOKEN_NE, TOKEN_LT, TOKEN_LE, TOKEN_GT, TOKEN_GE:
		op := p.cur()
		p.nextToken()
		right, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		return &ComparisonCond{Left: left, Op: op.Type, Right: right, Pos: op.Pos}, nil
	case TOKEN_IS:
		p.nextToken()
		not := false
		if p.curTokenIs(TOKEN_NOT) {
			not = true
			p.nextToken()
		}
		if err := p.expect(TOKEN_NULL); err != nil {
			return nil, err
		}
		return &IsNullCond{Expr: left, Not: not}, nil
	}
	return nil, p.errorf("comparison operator")
}

// parseExpr parses addition and subtraction.
func (p *Parser) parseExpr() (Expression, error) {
	left, err := p.parseTerm()
	if err != nil {
		return nil, err
	}
	for p.curTokenIs(TOKEN_PLUS) || p.curTokenIs(TOKEN_MINUS) {
		op := p.cur()
		p.nextToken()
		right, err := p.parseTerm()
		if err != nil {
			return nil, err
		}
		left = &BinaryExpr{Left: left, Op: op.Type, Right: right, Pos: op.Pos}
	}
	return left, nil
}

// parseTerm parses multiplication, division and modulo.
func (p *Parser) parseTerm() (Expression, error) {
	left, err := p.parseFactor()
	if err != nil {
		return nil, err
	}
	for p.curTokenIs(TOKEN_STAR) || p.curTokenIs(TOKEN_SLASH) || p.curTokenIs(TOKEN_PERCENT) {
		op := p.cur()
		p.nextToken()
		right, err := p.parseFactor()
		if err != nil {
			return nil, err
		}
		left = &BinaryExpr{Left: left, Op: op.Type, Right: right, Pos: op.Pos}
	}
	return left, nil
}

func (p *Parser) parseFactor() (Expression, error) {
	tok := p.cur()
	switch tok.Type {
	case TOKEN_PLUS, TOKEN_MINUS:
		if err := p.enter(); err != nil {
			return nil, err
		}
		p.nextToken()
		operand, err := p.parseFactor()
		if err != nil {
			return nil, err
		}
		p.leave()
		return &UnaryExpr{Op: tok.Type, Expr: operand, Pos: tok.Pos}, nil
	case TOKEN_LPAREN:
		if err := p.enter(); err != nil {
			return nil, err
		}
		p.nextToken()
		expr, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		if err := p.expect(TOKEN_RPAREN); err != nil {
			return nil, err
		}
		p.leave()
		return expr, nil
	case TOKEN_INT, TOKEN_FLOAT:
		v, err := p.parseNumber(tok, tok.Literal)
		if err != nil {
			return nil, err
		}
		p.nextToken()
		return &LiteralExpr{Value: v}, nil
	case TOKEN_STRING:
		p.nextToken()
		return &LiteralExpr{Value: catalog.NewText(tok.Literal)}, nil
	case TOKEN_NULL:
		p.nextToken()
		return &LiteralExpr{Value: catalog.Null()}, nil
	case TOKEN_IDENT:
		p.nextToken()
		ref := &ColumnRef{Column: tok.Literal, Pos: tok.Pos}
		if p.curTokenIs(TOKEN_DOT) {
			p.nextToken()
			col, err := p.parseIdentifier()
			if err != nil {
				return nil, err
			}
			ref.Table = tok.Literal
			ref.Column = col
		}
		return ref, nil
	case TOKEN_COUNT, TOKEN_SUM, TOKEN_AVG, TOKEN_MIN, TOKEN_MAX:
		return p.parseAggregate()
	}
	return nil, p.errorf("expression")
}

// parseAggregate parses FUNC(*) or FUNC(expr); only COUNT accepts *.
func (p *Parser) parseAggregate() (Expression, error) {
	tok := p.cur()
	p.nextToken()
	if err := p.expect(TOKEN_LPAREN); err != nil {
		return nil, err
	}
	agg := &AggregateExpr{Func: tok.Type, Pos: tok.Pos}
	if p.curTokenIs(TOKEN_STAR) {
		if tok.Type != TOKEN_COUNT {
			return nil, syntaxError(p.cur().Pos, "%s(*) is not allowed, only COUNT(*)", tok.Type)
		}
		p.nextToken()
	} else {
		if err := p.enter(); err != nil {
			return nil, err
		}
		arg, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		p.leave()
		agg.Arg = arg
	}
	if err := p.expect(TOKEN_RPAREN); err != nil {
		return nil, err
	}
	return agg, nil
}

// ParseStatement parses input with the given nesting limit.
func ParseStatement(input string, maxDepth int) (Statement, error) {
	p := NewParser(input)
	p.SetMaxDepth(maxDepth)
	return p.Parse()
}
