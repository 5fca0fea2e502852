// Package parser implements a recursive-descent parser, with a
// Pratt-style expression sub-parser, for the supported SQL grammar.
package parser

import (
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/relsql/relsql/ast"
	"github.com/relsql/relsql/lexer"
	"github.com/relsql/relsql/token"
)

// Parser parses SQL statements. It wraps a Lexer and maintains a
// one-token look-ahead buffer; syntax errors are accumulated rather
// than raised, so a Parser never aborts mid-statement.
type Parser struct {
	lexer *lexer.Lexer

	current lexer.Item
	peek    lexer.Item

	errors []*ParseError
}

// New creates a Parser that reads SQL source from r in full before
// parsing begins; the grammar requires no streaming.
func New(r io.Reader) (*Parser, error) {
	src, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	return NewFromString(string(src)), nil
}

// NewFromString creates a Parser over an in-memory SQL source string.
func NewFromString(src string) *Parser {
	p := &Parser{lexer: lexer.New(src)}
	p.nextToken()
	p.nextToken()
	return p
}

// Parse reads all statements from r, stopping early if ctx is done
// between statements.
func Parse(ctx context.Context, r io.Reader) ([]ast.Statement, []*ParseError, error) {
	p, err := New(r)
	if err != nil {
		return nil, nil, err
	}
	var statements []ast.Statement
	for !p.currentIs(token.EOF) {
		select {
		case <-ctx.Done():
			return statements, p.errors, ctx.Err()
		default:
		}
		statements = append(statements, p.NextStatement())
	}
	return statements, p.errors, nil
}

// ParseString parses every statement in src and returns the accumulated
// errors alongside the statement list.
func ParseString(src string) ([]ast.Statement, []*ParseError) {
	p := NewFromString(src)
	var statements []ast.Statement
	for !p.currentIs(token.EOF) {
		statements = append(statements, p.NextStatement())
	}
	return statements, p.errors
}

// HasErrors reports whether any diagnostics have been recorded.
func (p *Parser) HasErrors() bool {
	return len(p.errors) > 0
}

// Errors returns the diagnostics recorded so far, in discovery order.
func (p *Parser) Errors() []*ParseError {
	return p.errors
}

func (p *Parser) nextToken() {
	p.current = p.peek
	p.peek = p.lexer.NextToken()
}

func (p *Parser) currentIs(tok token.Token) bool {
	return p.current.Token == tok
}

func (p *Parser) peekIs(tok token.Token) bool {
	return p.peek.Token == tok
}

func (p *Parser) errorf(pos token.Position, format string, args ...any) {
	p.errors = append(p.errors, &ParseError{Message: fmt.Sprintf(format, args...), Position: pos})
}

// consume advances past the current token if it has kind tok. Otherwise
// it records an error at the current position and returns a synthetic
// item of the expected kind without advancing, so callers can proceed as
// though the token had been present.
func (p *Parser) consume(tok token.Token) lexer.Item {
	if p.currentIs(tok) {
		item := p.current
		p.nextToken()
		return item
	}
	p.errorf(p.current.Pos, "Unexpected token: expected %s, got %s", tok, p.current.Token)
	return lexer.Item{Token: tok, Pos: p.current.Pos}
}

// consumeOneOf is like consume but accepts any of kinds.
func (p *Parser) consumeOneOf(kinds ...token.Token) lexer.Item {
	for _, tok := range kinds {
		if p.currentIs(tok) {
			item := p.current
			p.nextToken()
			return item
		}
	}
	names := make([]string, len(kinds))
	for i, tok := range kinds {
		names[i] = tok.String()
	}
	p.errorf(p.current.Pos, "Unexpected token: expected one of %s, got %s", strings.Join(names, ", "), p.current.Token)
	return lexer.Item{Token: kinds[0], Pos: p.current.Pos}
}

// resync skips tokens up to and including the next Semicolon, or up to
// Eof, so the parser can continue with the next statement after an
// unrecoverable error in statement dispatch.
func (p *Parser) resync() {
	for !p.currentIs(token.Semicolon) && !p.currentIs(token.EOF) {
		p.nextToken()
	}
	if p.currentIs(token.Semicolon) {
		p.nextToken()
	}
}

// NextStatement parses one complete statement terminated by ';'. It
// always returns a statement node: a concrete one on success, or
// ErrorStatement if the input could not be recovered.
func (p *Parser) NextStatement() ast.Statement {
	pos := p.current.Pos

	if p.currentIs(token.EOF) {
		p.errorf(pos, "Unexpected end of input")
		return &ast.ErrorStatement{Position: pos}
	}

	var cte *ast.CommonTableExpressionList
	if p.currentIs(token.WITH) {
		cte = p.parseCommonTableExpressionList()
	}

	var stmt ast.Statement
	switch p.current.Token {
	case token.CREATE:
		if cte != nil {
			p.errorf(pos, "WITH is not permitted before CREATE TABLE")
		}
		stmt = p.parseCreateTable(pos)
	case token.DROP:
		if cte != nil {
			p.errorf(pos, "WITH is not permitted before DROP TABLE")
		}
		stmt = p.parseDropTable(pos)
	case token.DELETE:
		stmt = p.parseDelete(pos, cte)
	case token.SELECT:
		stmt = p.parseSelect(pos, cte)
	default:
		p.errorf(p.current.Pos, "Unexpected token: %s", p.current.Token)
		p.resync()
		return &ast.ErrorStatement{Position: pos}
	}

	p.consume(token.Semicolon)
	return stmt
}

func (p *Parser) parseCommonTableExpressionList() *ast.CommonTableExpressionList {
	pos := p.current.Pos
	p.nextToken() // WITH

	recursive := false
	if p.currentIs(token.RECURSIVE) {
		recursive = true
		p.nextToken()
	}

	var entries []*ast.CommonTableExpression
	for {
		entries = append(entries, p.parseCommonTableExpression())
		if !p.currentIs(token.Comma) {
			break
		}
		p.nextToken()
	}

	return ast.NewCommonTableExpressionList(pos, recursive, entries)
}

func (p *Parser) parseCommonTableExpression() *ast.CommonTableExpression {
	pos := p.current.Pos
	name := p.consume(token.Identifier).Value

	var columnNames []string
	if p.currentIs(token.LParen) && !p.peekIsSelectBody() {
		p.nextToken()
		for {
			columnNames = append(columnNames, p.consume(token.Identifier).Value)
			if !p.currentIs(token.Comma) {
				break
			}
			p.nextToken()
		}
		p.consume(token.RParen)
	}

	p.consume(token.AS)
	p.consume(token.LParen)
	// CTE subquery bodies are not wired to the SELECT grammar; only an
	// empty body is accepted here, so the ')' must follow the '('
	// directly.
	p.consume(token.RParen)

	return &ast.CommonTableExpression{Position: pos, TableName: name, ColumnNames: columnNames}
}

// peekIsSelectBody exists only to keep parseCommonTableExpression
// readable; the column-name list and the body are both parenthesized,
// but only the column-name list can appear before AS.
func (p *Parser) peekIsSelectBody() bool {
	return false
}

func (p *Parser) parseQualifiedName() (schema, name string) {
	// The TABLE keyword is also accepted as a name part, so that
	// "FROM table" and "schema.table" parse.
	namePart := func() string {
		if p.currentIs(token.TABLE) {
			value := p.current.Value
			p.nextToken()
			return value
		}
		return p.consume(token.Identifier).Value
	}
	first := namePart()
	if p.currentIs(token.Dot) {
		p.nextToken()
		second := namePart()
		return first, second
	}
	return "", first
}

func (p *Parser) parseAlias() string {
	if p.currentIs(token.AS) {
		p.nextToken()
		return p.consume(token.Identifier).Value
	}
	if p.currentIs(token.Identifier) {
		alias := p.current.Value
		p.nextToken()
		return alias
	}
	return ""
}

func (p *Parser) parseCreateTable(pos token.Position) ast.Statement {
	p.nextToken() // CREATE

	isTemporary := false
	if p.currentIs(token.TEMP) || p.currentIs(token.TEMPORARY) {
		isTemporary = true
		p.nextToken()
	}

	p.consume(token.TABLE)

	isErrorIfExists := true
	if p.currentIs(token.IF) {
		p.nextToken()
		p.consume(token.NOT)
		p.consume(token.EXISTS)
		isErrorIfExists = false
	}

	schema, name := p.parseQualifiedName()

	p.consume(token.LParen)
	var columns []*ast.ColumnDefinition
	if p.currentIs(token.RParen) {
		p.errorf(p.current.Pos, "CREATE TABLE requires at least one column")
	} else {
		for {
			columns = append(columns, p.parseColumnDefinition())
			if !p.currentIs(token.Comma) {
				break
			}
			p.nextToken()
		}
	}
	p.consume(token.RParen)

	return &ast.CreateTable{
		Position:             pos,
		SchemaName:           schema,
		TableName:            name,
		Columns:              columns,
		IsTemporary:          isTemporary,
		IsErrorIfTableExists: isErrorIfExists,
	}
}

func (p *Parser) parseColumnDefinition() *ast.ColumnDefinition {
	pos := p.current.Pos
	name := p.consume(token.Identifier).Value

	var typeName *ast.TypeName
	if p.currentIs(token.Identifier) {
		typeName = p.parseTypeName()
	} else {
		typeName = ast.NewTypeName(pos, "BLOB", nil)
	}

	return &ast.ColumnDefinition{Position: pos, Name: name, Type: typeName}
}

func (p *Parser) parseTypeName() *ast.TypeName {
	pos := p.current.Pos
	name := p.consume(token.Identifier).Value

	var numbers []*ast.SignedNumber
	if p.currentIs(token.LParen) {
		p.nextToken()
		numbers = append(numbers, p.parseSignedNumber())
		for p.currentIs(token.Comma) {
			p.nextToken()
			numbers = append(numbers, p.parseSignedNumber())
		}
		p.consume(token.RParen)
	}

	if len(numbers) > 2 {
		p.errorf(pos, "Structural violation: type name accepts at most two signed numbers")
		numbers = numbers[:2]
	}

	return ast.NewTypeName(pos, name, numbers)
}

func (p *Parser) parseSignedNumber() *ast.SignedNumber {
	pos := p.current.Pos
	sign := 1.0
	if p.currentIs(token.Plus) {
		p.nextToken()
	} else if p.currentIs(token.Minus) {
		sign = -1.0
		p.nextToken()
	}

	if !p.currentIs(token.NumericLiteral) {
		p.errorf(p.current.Pos, "Invalid numeric literal: expected a number, got %s", p.current.Token)
		return ast.NewSignedNumber(pos, 0)
	}

	value, ok := decodeNumericLiteral(p.current.Value)
	if !ok {
		p.errorf(p.current.Pos, "Invalid numeric literal: %q", p.current.Value)
		value = 0
	}
	p.nextToken()

	return ast.NewSignedNumber(pos, sign*value)
}

func decodeNumericLiteral(lexeme string) (float64, bool) {
	if len(lexeme) > 1 && (lexeme[1] == 'x' || lexeme[1] == 'X') && lexeme[0] == '0' {
		u, err := strconv.ParseUint(lexeme[2:], 16, 64)
		if err != nil {
			return 0, false
		}
		return float64(u), true
	}
	f, err := strconv.ParseFloat(lexeme, 64)
	if err != nil {
		return 0, false
	}
	return f, true
}

func (p *Parser) parseDropTable(pos token.Position) ast.Statement {
	p.nextToken() // DROP
	p.consume(token.TABLE)

	isErrorIfNotExists := true
	if p.currentIs(token.IF) {
		p.nextToken()
		p.consume(token.EXISTS)
		isErrorIfNotExists = false
	}

	schema, name := p.parseQualifiedName()

	return &ast.DropTable{
		Position:                   pos,
		SchemaName:                 schema,
		TableName:                  name,
		IsErrorIfTableDoesNotExist: isErrorIfNotExists,
	}
}

func (p *Parser) parseDelete(pos token.Position, cte *ast.CommonTableExpressionList) ast.Statement {
	p.nextToken() // DELETE
	p.consume(token.FROM)

	schema, name := p.parseQualifiedName()
	alias := p.parseAlias()
	qualified := &ast.QualifiedTableName{Position: pos, SchemaName: schema, TableName: name, Alias: alias}

	var where ast.Expression
	if p.currentIs(token.WHERE) {
		p.nextToken()
		where = p.parseExpression(LOWEST)
	}

	var returning *ast.ReturningClause
	if p.currentIs(token.RETURNING) {
		p.nextToken()
		returning = p.parseReturningClause()
	}

	return &ast.Delete{
		Position:       pos,
		CTEList:        cte,
		QualifiedTable: qualified,
		Where:          where,
		Returning:      returning,
	}
}

func (p *Parser) parseReturningClause() *ast.ReturningClause {
	pos := p.current.Pos
	if p.currentIs(token.Asterisk) {
		p.nextToken()
		return &ast.ReturningClause{Position: pos}
	}

	var columns []ast.ReturningColumn
	for {
		expr := p.parseExpression(LOWEST)
		alias := p.parseAlias()
		columns = append(columns, ast.ReturningColumn{Expression: expr, ColumnAlias: alias})
		if !p.currentIs(token.Comma) {
			break
		}
		p.nextToken()
	}
	return &ast.ReturningClause{Position: pos, Columns: columns}
}

func (p *Parser) parseSelect(pos token.Position, cte *ast.CommonTableExpressionList) ast.Statement {
	p.nextToken() // SELECT

	selectAll := true
	if p.currentIs(token.DISTINCT) {
		selectAll = false
		p.nextToken()
	} else if p.currentIs(token.ALL) {
		p.nextToken()
	}

	var resultColumns []*ast.ResultColumn
	for {
		resultColumns = append(resultColumns, p.parseResultColumn())
		if !p.currentIs(token.Comma) {
			break
		}
		p.nextToken()
	}
	if len(resultColumns) == 0 {
		p.errorf(p.current.Pos, "Structural violation: SELECT requires at least one result column")
	}

	p.consume(token.FROM)

	var fromList []*ast.TableOrSubquery
	for {
		fromList = append(fromList, p.parseTableOrSubquery())
		if !p.currentIs(token.Comma) {
			break
		}
		p.nextToken()
	}
	if len(fromList) == 0 {
		p.errorf(p.current.Pos, "Structural violation: SELECT requires at least one FROM entry")
	}

	var where ast.Expression
	if p.currentIs(token.WHERE) {
		p.nextToken()
		where = p.parseExpression(LOWEST)
	}

	var groupBy *ast.GroupByClause
	if p.currentIs(token.GROUP) {
		p.nextToken()
		p.consume(token.BY)
		groupBy = p.parseGroupByClause()
	}

	var ordering []*ast.OrderingTerm
	if p.currentIs(token.ORDER) {
		p.nextToken()
		p.consume(token.BY)
		for {
			ordering = append(ordering, p.parseOrderingTerm())
			if !p.currentIs(token.Comma) {
				break
			}
			p.nextToken()
		}
	}

	var limit *ast.LimitClause
	if p.currentIs(token.LIMIT) {
		limitPos := p.current.Pos
		p.nextToken()
		limitExpr := p.parseExpression(LOWEST)
		var offsetExpr ast.Expression
		if p.currentIs(token.OFFSET) {
			p.nextToken()
			offsetExpr = p.parseExpression(LOWEST)
		}
		limit = &ast.LimitClause{Position: limitPos, Limit: limitExpr, Offset: offsetExpr}
	}

	return &ast.Select{
		Position:      pos,
		CTEList:       cte,
		SelectAll:     selectAll,
		ResultColumns: resultColumns,
		FromList:      fromList,
		Where:         where,
		GroupBy:       groupBy,
		Ordering:      ordering,
		Limit:         limit,
	}
}

func (p *Parser) parseResultColumn() *ast.ResultColumn {
	pos := p.current.Pos

	if p.currentIs(token.Asterisk) {
		p.nextToken()
		return ast.NewAllResultColumn(pos)
	}

	if p.currentIs(token.Identifier) && p.peekIs(token.Dot) {
		save := p.current
		p.nextToken() // identifier
		p.nextToken() // dot
		if p.currentIs(token.Asterisk) {
			p.nextToken()
			return ast.NewTableResultColumn(pos, save.Value)
		}
		// Not "table.*" after all: it's a qualified column expression.
		// Reconstruct by parsing the expression from the saved identifier.
		expr := p.parseColumnNameExpressionFrom(pos, save.Value)
		alias := p.parseAlias()
		return ast.NewExpressionResultColumn(pos, expr, alias)
	}

	expr := p.parseExpression(LOWEST)
	alias := p.parseAlias()
	return ast.NewExpressionResultColumn(pos, expr, alias)
}

// parseColumnNameExpressionFrom continues parsing a dotted column
// reference whose first identifier (first) has already been consumed,
// along with the single dot that follows it; it is used by
// parseResultColumn to backtrack out of the "table.*" lookahead.
func (p *Parser) parseColumnNameExpressionFrom(pos token.Position, first string) ast.Expression {
	second := p.consume(token.Identifier).Value
	if p.currentIs(token.Dot) {
		p.nextToken()
		third := p.consume(token.Identifier).Value
		expr := &ast.ColumnNameExpression{Position: pos, SchemaName: first, TableName: second, ColumnName: third}
		return p.parseExpressionInfixChain(expr, LOWEST)
	}
	expr := &ast.ColumnNameExpression{Position: pos, TableName: first, ColumnName: second}
	return p.parseExpressionInfixChain(expr, LOWEST)
}

func (p *Parser) parseGroupByClause() *ast.GroupByClause {
	pos := p.current.Pos
	var list []ast.Expression
	for {
		list = append(list, p.parseExpression(LOWEST))
		if !p.currentIs(token.Comma) {
			break
		}
		p.nextToken()
	}
	if len(list) == 0 {
		p.errorf(pos, "Structural violation: GROUP BY requires at least one expression")
		return &ast.GroupByClause{Position: pos}
	}

	var having ast.Expression
	if p.currentIs(token.HAVING) {
		p.nextToken()
		having = p.parseExpression(LOWEST)
	}

	return ast.NewGroupByClause(pos, list, having)
}

func (p *Parser) parseOrderingTerm() *ast.OrderingTerm {
	pos := p.current.Pos
	expr := p.parseExpression(LOWEST)

	collation := ""
	if p.currentIs(token.COLLATE) {
		p.nextToken()
		collation = p.consume(token.Identifier).Value
	}

	order := ast.Ascending
	if p.currentIs(token.ASC) {
		p.nextToken()
	} else if p.currentIs(token.DESC) {
		order = ast.Descending
		p.nextToken()
	}

	nulls := ast.First
	if order == ast.Descending {
		nulls = ast.Last
	}
	if p.currentIs(token.NULLS) {
		p.nextToken()
		switch p.current.Token {
		case token.FIRST:
			nulls = ast.First
			p.nextToken()
		case token.LAST:
			nulls = ast.Last
			p.nextToken()
		default:
			p.errorf(p.current.Pos, "Unexpected token: expected FIRST or LAST, got %s", p.current.Token)
		}
	}

	return &ast.OrderingTerm{Position: pos, Expression: expr, CollationName: collation, Order: order, Nulls: nulls}
}

func (p *Parser) parseTableOrSubquery() *ast.TableOrSubquery {
	pos := p.current.Pos

	if p.currentIs(token.LParen) {
		p.nextToken()
		var entries []*ast.TableOrSubquery
		for {
			entries = append(entries, p.parseTableOrSubquery())
			if !p.currentIs(token.Comma) {
				break
			}
			p.nextToken()
		}
		p.consume(token.RParen)
		if len(entries) == 0 {
			p.errorf(pos, "Structural violation: subquery table list requires at least one entry")
			return ast.NewTableOrSubqueryTable(pos, "", "", "")
		}
		return ast.NewTableOrSubqueryList(pos, entries)
	}

	schema, name := p.parseQualifiedName()
	alias := p.parseAlias()
	return ast.NewTableOrSubqueryTable(pos, schema, name, alias)
}
