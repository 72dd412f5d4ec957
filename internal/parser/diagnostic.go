package parser

import "fmt"

// Diagnostic is a syntax problem found while parsing a query
type Diagnostic struct {
	// Start and End are the byte range the diagnostic covers
	Start int
	End   int

	// Line and Column locate Start for humans (1-based)
	Line   int
	Column int

	Message string
}

func (d *Diagnostic) Error() string {
	return fmt.Sprintf("[%d..%d]: %s", d.Start, d.End, d.Message)
}

// Diagnostic messages
const (
	msgUnterminatedString  = "Unterminated string literal."
	msgUnterminatedLiteral = "Unterminated literal."
	msgUnexpectedChar      = "Unexpected character %q."
	msgExpectedToken       = "Expected: %s"
	msgExpectedExpression  = "Expected: expression"
	msgExpectedOperator    = "Expected: query operator"
	msgUnknownOperator     = "Unknown query operator: %s"
	msgUnexpectedToken     = "Unexpected token: %s"
	msgNestingTooDeep      = "Query nesting exceeds %d levels."
)
