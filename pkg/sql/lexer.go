// Package sql provides SQL parsing and execution for Blastoise.
package sql

import (
	"fmt"
	"strings"
)

// TokenType represents the type of a token.
type TokenType int

const (
	// Special tokens
	TOKEN_EOF TokenType = iota
	TOKEN_ILLEGAL

	// Literals
	TOKEN_IDENT  // identifiers: table names, column names
	TOKEN_INT    // integer literals
	TOKEN_FLOAT  // float literals 1.5, 2e3
	TOKEN_STRING // string literals 'hello' or "hello"

	// Operators and delimiters
	TOKEN_COMMA     // ,
	TOKEN_SEMICOLON // ;
	TOKEN_LPAREN    // (
	TOKEN_RPAREN    // )
	TOKEN_DOT       // .
	TOKEN_STAR      // *
	TOKEN_PLUS      // +
	TOKEN_MINUS     // -
	TOKEN_SLASH     // /
	TOKEN_PERCENT   // %
	TOKEN_EQ        // =
	TOKEN_NE        // != or <>
	TOKEN_LT        // <
	TOKEN_LE        // <=
	TOKEN_GT        // >
	TOKEN_GE        // >=

	// Keywords
	TOKEN_SELECT
	TOKEN_FROM
	TOKEN_WHERE
	TOKEN_GROUP
	TOKEN_BY
	TOKEN_HAVING
	TOKEN_ORDER
	TOKEN_ASC
	TOKEN_DESC
	TOKEN_AS
	TOKEN_INSERT
	TOKEN_INTO
	TOKEN_VALUES
	TOKEN_UPDATE
	TOKEN_SET
	TOKEN_DELETE
	TOKEN_CREATE
	TOKEN_TABLE
	TOKEN_DROP
	TOKEN_EXPLAIN
	TOKEN_AND
	TOKEN_OR
	TOKEN_NOT
	TOKEN_NULL
	TOKEN_IS
	TOKEN_PRIMARY
	TOKEN_KEY

	// Type keywords
	TOKEN_INT_TYPE
	TOKEN_INTEGER
	TOKEN_FLOAT_TYPE
	TOKEN_REAL
	TOKEN_DOUBLE
	TOKEN_CHAR
	TOKEN_VARCHAR
	TOKEN_TEXT

	// Aggregate functions
	TOKEN_COUNT
	TOKEN_SUM
	TOKEN_AVG
	TOKEN_MIN
	TOKEN_MAX
)

var keywords = map[string]TokenType{
	"SELECT":  TOKEN_SELECT,
	"FROM":    TOKEN_FROM,
	"WHERE":   TOKEN_WHERE,
	"GROUP":   TOKEN_GROUP,
	"BY":      TOKEN_BY,
	"HAVING":  TOKEN_HAVING,
	"ORDER":   TOKEN_ORDER,
	"ASC":     TOKEN_ASC,
	"DESC":    TOKEN_DESC,
	"AS":      TOKEN_AS,
	"INSERT":  TOKEN_INSERT,
	"INTO":    TOKEN_INTO,
	"VALUES":  TOKEN_VALUES,
	"UPDATE":  TOKEN_UPDATE,
	"SET":     TOKEN_SET,
	"DELETE":  TOKEN_DELETE,
	"CREATE":  TOKEN_CREATE,
	"TABLE":   TOKEN_TABLE,
	"DROP":    TOKEN_DROP,
	"EXPLAIN": TOKEN_EXPLAIN,
	"AND":     TOKEN_AND,
	"OR":      TOKEN_OR,
	"NOT":     TOKEN_NOT,
	"NULL":    TOKEN_NULL,
	"IS":      TOKEN_IS,
	"PRIMARY": TOKEN_PRIMARY,
	"KEY":     TOKEN_KEY,
	"INT":     TOKEN_INT_TYPE,
	"INTEGER": TOKEN_INTEGER,
	"FLOAT":   TOKEN_FLOAT_TYPE,
	"REAL":    TOKEN_REAL,
	"DOUBLE":  TOKEN_DOUBLE,
	"CHAR":    TOKEN_CHAR,
	"VARCHAR": TOKEN_VARCHAR,
	"TEXT":    TOKEN_TEXT,
	"COUNT":   TOKEN_COUNT,
	"SUM":     TOKEN_SUM,
	"AVG":     TOKEN_AVG,
	"MIN":     TOKEN_MIN,
	"MAX":     TOKEN_MAX,
}

var tokenNames = map[TokenType]string{
	TOKEN_EOF:       "end of input",
	TOKEN_ILLEGAL:   "illegal token",
	TOKEN_IDENT:     "identifier",
	TOKEN_INT:       "integer",
	TOKEN_FLOAT:     "float",
	TOKEN_STRING:    "string",
	TOKEN_COMMA:     "','",
	TOKEN_SEMICOLON: "';'",
	TOKEN_LPAREN:    "'('",
	TOKEN_RPAREN:    "')'",
	TOKEN_DOT:       "'.'",
	TOKEN_STAR:      "'*'",
	TOKEN_PLUS:      "'+'",
	TOKEN_MINUS:     "'-'",
	TOKEN_SLASH:     "'/'",
	TOKEN_PERCENT:   "'%'",
	TOKEN_EQ:        "'='",
	TOKEN_NE:        "'!='",
	TOKEN_LT:        "'<'",
	TOKEN_LE:        "'<='",
	TOKEN_GT:        "'>'",
	TOKEN_GE:        "'>='",
}

func init() {
	for word, tok := range keywords {
		tokenNames[tok] = word
	}
}

// String returns a readable name for the token type.
func (t TokenType) String() string {
	if name, ok := tokenNames[t]; ok {
		return name
	}
	return fmt.Sprintf("token(%d)", int(t))
}

// Token represents a lexical token.
type Token struct {
	Type    TokenType
	Literal string
	Pos     int
}

func (t Token) describe() string {
	switch t.Type {
	case TOKEN_EOF:
		return "end of input"
	case TOKEN_IDENT, TOKEN_INT, TOKEN_FLOAT:
		return fmt.Sprintf("%s %q", t.Type, t.Literal)
	case TOKEN_STRING:
		return fmt.Sprintf("string '%s'", t.Literal)
	case TOKEN_ILLEGAL:
		return t.Literal
	}
	return t.Type.String()
}

// Lexer tokenizes SQL input.
type Lexer struct {
	input   string
	pos     int  // current position
	readPos int  // next position to read
	ch      byte // current character
}

// NewLexer creates a new Lexer for the input string.
func NewLexer(input string) *Lexer {
	l := &Lexer{input: input}
	l.readChar()
	return l
}

func (l *Lexer) readChar() {
	if l.readPos >= len(l.input) {
		l.ch = 0
	} else {
		l.ch = l.input[l.readPos]
	}
	l.pos = l.readPos
	l.readPos++
}

func (l *Lexer) peekChar() byte {
	if l.readPos >= len(l.input) {
		return 0
	}
	return l.input[l.readPos]
}

// skipWhitespace also skips "--" comments up to the end of the line.
func (l *Lexer) skipWhitespace() {
	for {
		switch {
		case l.ch == ' ' || l.ch == '\t' || l.ch == '\n' || l.ch == '\r':
			l.readChar()
		case l.ch == '-' && l.peekChar() == '-':
			for l.ch != '\n' && l.ch != 0 {
				l.readChar()
			}
		default:
			return
		}
	}
}

func (l *Lexer) atEnd() bool {
	return l.pos >= len(l.input)
}

// NextToken returns the next token from the input.
func (l *Lexer) NextToken() Token {
	l.skipWhitespace()

	tok := Token{Pos: l.pos}
	if l.atEnd() {
		tok.Type = TOKEN_EOF
		return tok
	}

	single := func(t TokenType) Token {
		tok.Type = t
		tok.Literal = string(l.ch)
		l.readChar()
		return tok
	}
	double := func(t TokenType) Token {
		tok.Type = t
		tok.Literal = l.input[l.pos : l.pos+2]
		l.readChar()
		l.readChar()
		return tok
	}

	switch l.ch {
	case ',':
		return single(TOKEN_COMMA)
	case ';':
		return single(TOKEN_SEMICOLON)
	case '(':
		return single(TOKEN_LPAREN)
	case ')':
		return single(TOKEN_RPAREN)
	case '.':
		return single(TOKEN_DOT)
	case '*':
		return single(TOKEN_STAR)
	case '+':
		return single(TOKEN_PLUS)
	case '-':
		return single(TOKEN_MINUS)
	case '/':
		return single(TOKEN_SLASH)
	case '%':
		return single(TOKEN_PERCENT)
	case '=':
		return single(TOKEN_EQ)
	case '<':
		switch l.peekChar() {
		case '=':
			return double(TOKEN_LE)
		case '>':
			return double(TOKEN_NE)
		}
		return single(TOKEN_LT)
	case '>':
		if l.peekChar() == '=' {
			return double(TOKEN_GE)
		}
		return single(TOKEN_GT)
	case '!':
		if l.peekChar() == '=' {
			return double(TOKEN_NE)
		}
		tok = single(TOKEN_ILLEGAL)
		tok.Literal = "unexpected character '!'"
		return tok
	case '\'', '"':
		text, ok := l.readString(l.ch)
		if !ok {
			tok.Type = TOKEN_ILLEGAL
			tok.Literal = "unterminated string literal"
			return tok
		}
		tok.Type = TOKEN_STRING
		tok.Literal = text
		return tok
	}

	switch {
	case isLetter(l.ch):
		tok.Literal = l.readIdentifier()
		tok.Type = lookupKeyword(tok.Literal)
	case isDigit(l.ch):
		tok.Literal, tok.Type = l.readNumber()
	default:
		tok = single(TOKEN_ILLEGAL)
		tok.Literal = fmt.Sprintf("unexpected character %q", tok.Literal)
	}
	return tok
}

func (l *Lexer) readIdentifier() string {
	pos := l.pos
	for isLetter(l.ch) || isDigit(l.ch) {
		l.readChar()
	}
	return l.input[pos:l.pos]
}

// readNumber reads digits with an optional fraction and exponent.
func (l *Lexer) readNumber() (string, TokenType) {
	pos := l.pos
	typ := TOKEN_INT
	for isDigit(l.ch) {
		l.readChar()
	}
	if l.ch == '.' && isDigit(l.peekChar()) {
		typ = TOKEN_FLOAT
		l.readChar()
		for isDigit(l.ch) {
			l.readChar()
		}
	}
	if l.ch == 'e' || l.ch == 'E' {
		next := l.peekChar()
		sign := next == '+' || next == '-'
		if isDigit(next) || (sign && l.readPos+1 < len(l.input) && isDigit(l.input[l.readPos+1])) {
			typ = TOKEN_FLOAT
			l.readChar()
			if sign {
				l.readChar()
			}
			for isDigit(l.ch) {
				l.readChar()
			}
		}
	}
	return l.input[pos:l.pos], typ
}

// readString reads a literal delimited by quote. A doubled quote stands for
// one quote character.
func (l *Lexer) readString(quote byte) (string, bool) {
	l.readChar() // consume opening quote
	var sb strings.Builder
	for {
		if l.atEnd() {
			return "", false
		}
		if l.ch == quote {
			if l.peekChar() != quote {
				l.readChar() // consume closing quote
				return sb.String(), true
			}
			l.readChar()
		}
		sb.WriteByte(l.ch)
		l.readChar()
	}
}

func isLetter(ch byte) bool {
	return ch >= 'a' && ch <= 'z' || ch >= 'A' && ch <= 'Z' || ch == '_'
}

func isDigit(ch byte) bool {
	return ch >= '0' && ch <= '9'
}

func lookupKeyword(ident string) TokenType {
	if tok, ok := keywords[strings.ToUpper(ident)]; ok {
		return tok
	}
	return TOKEN_IDENT
}

// Tokenize returns every token of input up to and including TOKEN_EOF.
// It stops at the first illegal token, which is returned last.
func Tokenize(input string) []Token {
	l := NewLexer(input)
	var toks []Token
	for {
		tok := l.NextToken()
		toks = append(toks, tok)
		if tok.Type == TOKEN_EOF || tok.Type == TOKEN_ILLEGAL {
			return toks
		}
	}
}

// SplitStatements splits a script on semicolons that are outside string
// literals and comments. Blank statements are dropped.
func SplitStatements(script string) []string {
	var stmts []string
	start := 0
	flush := func(end int) {
		if s := strings.TrimSpace(script[start:end]); s != "" && !onlyComments(s) {
			stmts = append(stmts, s)
		}
	}
	l := NewLexer(script)
	for {
		tok := l.NextToken()
		switch tok.Type {
		case TOKEN_SEMICOLON:
			flush(tok.Pos)
			start = tok.Pos + 1
			continue
		case TOKEN_EOF, TOKEN_ILLEGAL:
			// keep the remainder so the parser can report the problem
			flush(len(script))
			return stmts
		}
	}
}

// EndsWithSemicolon reports whether the last token of input is a semicolon.
// Semicolons inside string literals or comments do not count, and input with
// an unterminated string literal never ends.
func EndsWithSemicolon(input string) bool {
	l := NewLexer(input)
	last := TOKEN_EOF
	for {
		tok := l.NextToken()
		if tok.Type == TOKEN_EOF {
			return last == TOKEN_SEMICOLON
		}
		last = tok.Type
	}
}

func onlyComments(s string) bool {
	return NewLexer(s).NextToken().Type == TOKEN_EOF
}
