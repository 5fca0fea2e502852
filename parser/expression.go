package parser

import (
	"github.com/relsql/relsql/ast"
	"github.com/relsql/relsql/token"
)

// Precedence levels, loosest to tightest, per the closed total order
// operators are parsed against. COLLATE binds tighter than any binary
// operator; see DESIGN.md's note on the open question this resolves.
const (
	LOWEST = iota
	OR_PREC
	AND_PREC
	COMPARE_PREC     // =, ==, !=, <>, IS [NOT], [NOT] IN/LIKE/GLOB/MATCH/REGEXP/BETWEEN
	RELATIONAL_PREC  // <, <=, >, >=
	BITWISE_PREC     // <<, >>, &, |
	ADD_PREC         // binary +, -
	MUL_PREC         // *, /, %
	CONCAT_PREC      // ||
	UNARY_PREC       // unary +, -, ~, NOT
	COLLATE_PREC
)

func (p *Parser) infixPrecedence() int {
	switch p.current.Token {
	case token.OR:
		return OR_PREC
	case token.AND:
		return AND_PREC
	case token.Eq, token.EqEq, token.NEq, token.LTGT,
		token.IS, token.IN, token.LIKE, token.GLOB, token.MATCH, token.REGEXP, token.BETWEEN:
		return COMPARE_PREC
	case token.NOT:
		// Only the infix forms NOT LIKE/GLOB/MATCH/REGEXP/IN/BETWEEN reach
		// here; a leading NOT is always a prefix operator handled by
		// parsePrimary.
		return COMPARE_PREC
	case token.LT, token.LTE, token.GT, token.GTE:
		return RELATIONAL_PREC
	case token.LShift, token.RShift, token.Ampersand, token.Pipe:
		return BITWISE_PREC
	case token.Plus, token.Minus:
		return ADD_PREC
	case token.Asterisk, token.Slash, token.Percent:
		return MUL_PREC
	case token.Concat:
		return CONCAT_PREC
	case token.COLLATE:
		return COLLATE_PREC
	default:
		return LOWEST
	}
}

// parseExpression parses an expression whose operators bind tighter than
// precedence, using precedence climbing over the infix operator table.
func (p *Parser) parseExpression(precedence int) ast.Expression {
	left := p.parsePrimary()
	return p.parseExpressionInfixChain(left, precedence)
}

// parseExpressionInfixChain continues the infix loop starting from an
// already-parsed primary; it exists separately so that callers who must
// look ahead past a primary before deciding how to parse it (the
// SELECT result-column "table.*" backtrack) can resume the ordinary
// precedence-climbing loop partway through.
func (p *Parser) parseExpressionInfixChain(left ast.Expression, precedence int) ast.Expression {
	for !p.currentIs(token.EOF) && precedence < p.infixPrecedence() {
		left = p.parseInfix(left)
	}
	return left
}

func (p *Parser) parsePrimary() ast.Expression {
	pos := p.current.Pos

	switch p.current.Token {
	case token.NumericLiteral:
		return p.parseNumericLiteral()
	case token.StringLiteral:
		value := p.current.Value
		p.nextToken()
		return &ast.StringLiteral{Position: pos, Value: value}
	case token.BlobLiteral:
		value := p.current.Value
		p.nextToken()
		return &ast.BlobLiteral{Position: pos, Value: value}
	case token.NULL:
		p.nextToken()
		return &ast.NullLiteral{Position: pos}
	case token.Identifier:
		return p.parseColumnNameExpression()
	case token.LParen:
		return p.parseParenthesizedExpression()
	case token.CAST:
		return p.parseCastExpression()
	case token.CASE:
		return p.parseCaseExpression()
	case token.Minus:
		p.nextToken()
		return &ast.UnaryOperatorExpression{Position: pos, Op: ast.UnaryMinus, Expr: p.parseExpression(UNARY_PREC)}
	case token.Plus:
		p.nextToken()
		return &ast.UnaryOperatorExpression{Position: pos, Op: ast.UnaryPlus, Expr: p.parseExpression(UNARY_PREC)}
	case token.Tilde:
		p.nextToken()
		return &ast.UnaryOperatorExpression{Position: pos, Op: ast.BitwiseNot, Expr: p.parseExpression(UNARY_PREC)}
	case token.NOT:
		p.nextToken()
		return &ast.UnaryOperatorExpression{Position: pos, Op: ast.UnaryNot, Expr: p.parseExpression(UNARY_PREC)}
	default:
		p.errorf(pos, "Unexpected token: %s", p.current.Token)
		p.nextToken()
		return &ast.ErrorExpression{Position: pos}
	}
}

func (p *Parser) parseNumericLiteral() ast.Expression {
	pos := p.current.Pos
	value, ok := decodeNumericLiteral(p.current.Value)
	if !ok {
		p.errorf(pos, "Invalid numeric literal: %q", p.current.Value)
		p.nextToken()
		return &ast.ErrorExpression{Position: pos}
	}
	p.nextToken()
	return &ast.NumericLiteral{Position: pos, Value: value}
}

// parseColumnNameExpression parses a dotted reference of up to three
// parts, disambiguated left-to-right as schema.table.column,
// table.column, or column.
func (p *Parser) parseColumnNameExpression() ast.Expression {
	pos := p.current.Pos
	first := p.current.Value
	p.nextToken()

	if !p.currentIs(token.Dot) {
		return &ast.ColumnNameExpression{Position: pos, ColumnName: first}
	}
	p.nextToken()
	second := p.consume(token.Identifier).Value

	if !p.currentIs(token.Dot) {
		return &ast.ColumnNameExpression{Position: pos, TableName: first, ColumnName: second}
	}
	p.nextToken()
	third := p.consume(token.Identifier).Value
	return &ast.ColumnNameExpression{Position: pos, SchemaName: first, TableName: second, ColumnName: third}
}

// parseParenthesizedExpression parses either a single grouped expression
// or a comma-separated list, producing a ChainedExpression for the list
// form.
func (p *Parser) parseParenthesizedExpression() ast.Expression {
	pos := p.current.Pos
	p.nextToken() // (

	if p.currentIs(token.RParen) {
		p.nextToken()
		return &ast.ChainedExpression{Position: pos}
	}

	first := p.parseExpression(LOWEST)
	if !p.currentIs(token.Comma) {
		p.consume(token.RParen)
		return first
	}

	exprs := []ast.Expression{first}
	for p.currentIs(token.Comma) {
		p.nextToken()
		exprs = append(exprs, p.parseExpression(LOWEST))
	}
	p.consume(token.RParen)
	return &ast.ChainedExpression{Position: pos, Expressions: exprs}
}

func (p *Parser) parseCastExpression() ast.Expression {
	pos := p.current.Pos
	p.nextToken() // CAST
	p.consume(token.LParen)
	expr := p.parseExpression(LOWEST)
	p.consume(token.AS)
	typeName := p.parseTypeName()
	p.consume(token.RParen)
	return &ast.CastExpression{Position: pos, Expr: expr, Type: typeName}
}

func (p *Parser) parseCaseExpression() ast.Expression {
	pos := p.current.Pos
	p.nextToken() // CASE

	var caseExpr ast.Expression
	if !p.currentIs(token.WHEN) {
		caseExpr = p.parseExpression(LOWEST)
	}

	var whenThen []ast.WhenThenClause
	for p.currentIs(token.WHEN) {
		p.nextToken()
		when := p.parseExpression(LOWEST)
		p.consume(token.THEN)
		then := p.parseExpression(LOWEST)
		whenThen = append(whenThen, ast.WhenThenClause{When: when, Then: then})
	}
	if len(whenThen) == 0 {
		p.errorf(pos, "Structural violation: CASE requires at least one WHEN/THEN clause")
	}

	var elseExpr ast.Expression
	if p.currentIs(token.ELSE) {
		p.nextToken()
		elseExpr = p.parseExpression(LOWEST)
	}
	p.consume(token.END)

	if len(whenThen) == 0 {
		return &ast.ErrorExpression{Position: pos}
	}
	return ast.NewCaseExpression(pos, caseExpr, whenThen, elseExpr)
}

// parseInfix dispatches on the current token, which infixPrecedence has
// already established binds tighter than the caller's threshold.
func (p *Parser) parseInfix(left ast.Expression) ast.Expression {
	switch p.current.Token {
	case token.OR:
		return p.parseBinaryOperator(left, ast.Or, OR_PREC)
	case token.AND:
		return p.parseBinaryOperator(left, ast.And, AND_PREC)
	case token.Eq:
		return p.parseBinaryOperator(left, ast.Equals, COMPARE_PREC)
	case token.EqEq:
		return p.parseBinaryOperator(left, ast.Equals, COMPARE_PREC)
	case token.NEq, token.LTGT:
		return p.parseBinaryOperator(left, ast.NotEquals, COMPARE_PREC)
	case token.LT:
		return p.parseBinaryOperator(left, ast.LessThan, RELATIONAL_PREC)
	case token.LTE:
		return p.parseBinaryOperator(left, ast.LessThanEquals, RELATIONAL_PREC)
	case token.GT:
		return p.parseBinaryOperator(left, ast.GreaterThan, RELATIONAL_PREC)
	case token.GTE:
		return p.parseBinaryOperator(left, ast.GreaterThanEquals, RELATIONAL_PREC)
	case token.LShift:
		return p.parseBinaryOperator(left, ast.ShiftLeft, BITWISE_PREC)
	case token.RShift:
		return p.parseBinaryOperator(left, ast.ShiftRight, BITWISE_PREC)
	case token.Ampersand:
		return p.parseBinaryOperator(left, ast.BitwiseAnd, BITWISE_PREC)
	case token.Pipe:
		return p.parseBinaryOperator(left, ast.BitwiseOr, BITWISE_PREC)
	case token.Plus:
		return p.parseBinaryOperator(left, ast.BinaryPlus, ADD_PREC)
	case token.Minus:
		return p.parseBinaryOperator(left, ast.BinaryMinus, ADD_PREC)
	case token.Asterisk:
		return p.parseBinaryOperator(left, ast.Multiplication, MUL_PREC)
	case token.Slash:
		return p.parseBinaryOperator(left, ast.Division, MUL_PREC)
	case token.Percent:
		return p.parseBinaryOperator(left, ast.Modulo, MUL_PREC)
	case token.Concat:
		return p.parseBinaryOperator(left, ast.Concatenate, CONCAT_PREC)
	case token.COLLATE:
		return p.parseCollateExpression(left)
	case token.IS:
		return p.parseIsOrNullExpression(left)
	case token.IN:
		return p.parseInExpression(left, false)
	case token.LIKE:
		return p.parseMatchExpression(left, ast.MatchLike, false)
	case token.GLOB:
		return p.parseMatchExpression(left, ast.MatchGlob, false)
	case token.MATCH:
		return p.parseMatchExpression(left, ast.MatchMatch, false)
	case token.REGEXP:
		return p.parseMatchExpression(left, ast.MatchRegexp, false)
	case token.BETWEEN:
		return p.parseBetweenExpression(left, false)
	case token.NOT:
		return p.parseNegatedInfix(left)
	default:
		return left
	}
}

func (p *Parser) parseBinaryOperator(left ast.Expression, op ast.BinaryOperator, precedence int) ast.Expression {
	pos := p.current.Pos
	p.nextToken()
	right := p.parseExpression(precedence)
	return &ast.BinaryOperatorExpression{Position: pos, Op: op, LHS: left, RHS: right}
}

func (p *Parser) parseCollateExpression(left ast.Expression) ast.Expression {
	pos := p.current.Pos
	p.nextToken() // COLLATE
	name := p.consume(token.Identifier).Value
	return &ast.CollateExpression{Position: pos, Expr: left, CollationName: name}
}

// parseIsOrNullExpression handles "expr IS [NOT] NULL" and "expr IS [NOT]
// rhs". The one-word postfix forms ISNULL and NOTNULL are not recognized:
// the lexer scans them as ordinary identifiers, so they never reach here.
func (p *Parser) parseIsOrNullExpression(left ast.Expression) ast.Expression {
	pos := p.current.Pos
	p.nextToken() // IS

	inverted := false
	if p.currentIs(token.NOT) {
		inverted = true
		p.nextToken()
	}

	if p.currentIs(token.NULL) {
		p.nextToken()
		return &ast.NullExpression{Position: pos, Expr: left, Inverted: inverted}
	}

	rhs := p.parseExpression(COMPARE_PREC)
	return &ast.IsExpression{Position: pos, LHS: left, RHS: rhs, Inverted: inverted}
}

func (p *Parser) parseInExpression(left ast.Expression, inverted bool) ast.Expression {
	pos := p.current.Pos
	p.nextToken() // IN

	if p.currentIs(token.LParen) {
		chain := p.parseParenthesizedExpression()
		chained, ok := chain.(*ast.ChainedExpression)
		if !ok {
			chained = &ast.ChainedExpression{Position: pos, Expressions: []ast.Expression{chain}}
		}
		return &ast.InChainedExpression{Position: pos, Expr: left, Chain: chained, Inverted: inverted}
	}

	schema, name := p.parseQualifiedName()
	return &ast.InTableExpression{Position: pos, Expr: left, SchemaName: schema, TableName: name, Inverted: inverted}
}

func (p *Parser) parseMatchExpression(left ast.Expression, op ast.MatchOperator, inverted bool) ast.Expression {
	pos := p.current.Pos
	p.nextToken() // LIKE/GLOB/MATCH/REGEXP
	rhs := p.parseExpression(COMPARE_PREC)

	var escape ast.Expression
	if p.currentIs(token.ESCAPE) {
		p.nextToken()
		escape = p.parseExpression(COMPARE_PREC)
	}

	return &ast.MatchExpression{Position: pos, Op: op, LHS: left, RHS: rhs, Escape: escape, Inverted: inverted}
}

func (p *Parser) parseBetweenExpression(left ast.Expression, inverted bool) ast.Expression {
	pos := p.current.Pos
	p.nextToken() // BETWEEN

	// BETWEEN...AND is a non-associative ternary postfix: its bounds are
	// parsed one level tighter than COMPARE_PREC so the middle AND is
	// consumed here rather than by the precedence-climbing loop.
	lhs := p.parseExpression(COMPARE_PREC)
	p.consume(token.AND)
	rhs := p.parseExpression(COMPARE_PREC)

	return &ast.BetweenExpression{Position: pos, Expr: left, LHS: lhs, RHS: rhs, Inverted: inverted}
}

// parseNegatedInfix handles the NOT-prefixed infix forms: NOT LIKE, NOT
// GLOB, NOT MATCH, NOT REGEXP, NOT IN, NOT BETWEEN.
func (p *Parser) parseNegatedInfix(left ast.Expression) ast.Expression {
	pos := p.current.Pos
	p.nextToken() // NOT

	switch p.current.Token {
	case token.LIKE:
		return p.parseMatchExpression(left, ast.MatchLike, true)
	case token.GLOB:
		return p.parseMatchExpression(left, ast.MatchGlob, true)
	case token.MATCH:
		return p.parseMatchExpression(left, ast.MatchMatch, true)
	case token.REGEXP:
		return p.parseMatchExpression(left, ast.MatchRegexp, true)
	case token.IN:
		return p.parseInExpression(left, true)
	case token.BETWEEN:
		return p.parseBetweenExpression(left, true)
	default:
		p.errorf(pos, "Unexpected token: expected LIKE, GLOB, MATCH, REGEXP, IN, or BETWEEN after NOT, got %s", p.current.Token)
		return left
	}
}
