package evaluator

import (
	"time"

	celgo "github.com/google/cel-go/cel"
)

type Rule struct {
	ID        string
	Name      string
	Query     string
	Priority  int
	Seq       int64
	Enabled   bool
	CreatedAt time.Time
	UpdatedAt time.Time
}

// compiledRule pairs a stored rule with its compiled program. Queries
// compile once per snapshot load, never per message.
type compiledRule struct {
	Rule
	program celgo.Program
}

// Match identifies the first rule a message satisfied.
type Match struct {
	RuleID   string
	RuleName string
}
