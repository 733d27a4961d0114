package cel

import (
	"context"
	"fmt"

	"github.com/google/cel-go/cel"
	"github.com/google/cel-go/ext"

	"mailgate/pkg/models"
)

// Evaluator compiles rule queries into CEL programs over the queryable
// attributes of a mail message. Queries are compiled once at rule write
// time; evaluation only runs already-compiled programs.
type Evaluator struct {
	env *cel.Env
}

func NewEvaluator() (*Evaluator, error) {
	env, err := cel.NewEnv(
		ext.Strings(),
		cel.Variable("message_id", cel.StringType),
		cel.Variable("from", cel.StringType),
		cel.Variable("to", cel.ListType(cel.StringType)),
		cel.Variable("subject", cel.StringType),
		cel.Variable("labels", cel.ListType(cel.StringType)),
		cel.Variable("snippet", cel.StringType),
		cel.Variable("headers", cel.MapType(cel.StringType, cel.StringType)),
		cel.Variable("received_at", cel.TimestampType),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create CEL environment: %w", err)
	}

	return &Evaluator{env: env}, nil
}

// CompileQuery accepts either a raw CEL expression or the compact search
// form, and returns a program that yields bool. Raw CEL wins when a query
// is valid under both readings, so CEL keywords never get re-read as
// search terms.
func (e *Evaluator) CompileQuery(query string) (cel.Program, error) {
	program, celErr := e.compileExpression(query)
	if celErr == nil {
		return program, nil
	}

	if translated, ok := TranslateSearchQuery(query); ok {
		program, err := e.compileExpression(translated)
		if err != nil {
			return nil, fmt.Errorf("translated search query failed to compile: %w", err)
		}
		return program, nil
	}

	return nil, celErr
}

func (e *Evaluator) compileExpression(expression string) (cel.Program, error) {
	ast, issues := e.env.Compile(expression)
	if issues != nil && issues.Err() != nil {
		return nil, fmt.Errorf("query compilation failed: %w", issues.Err())
	}

	if ast.OutputType() != cel.BoolType {
		return nil, fmt.Errorf("query must evaluate to bool, got %v", ast.OutputType())
	}

	program, err := e.env.Program(ast)
	if err != nil {
		return nil, fmt.Errorf("failed to create CEL program: %w", err)
	}

	return program, nil
}

// ValidateQuery checks a query without keeping the program around. Used by
// the rule store at create/update time.
func (e *Evaluator) ValidateQuery(query string) error {
	_, err := e.CompileQuery(query)
	return err
}

// Evaluate runs a compiled query against one message.
func (e *Evaluator) Evaluate(ctx context.Context, program cel.Program, msg models.MailMessage) (bool, error) {
	result, _, err := program.ContextEval(ctx, messageVars(msg))
	if err != nil {
		return false, fmt.Errorf("failed to evaluate query: %w", err)
	}

	boolVal, ok := result.Value().(bool)
	if !ok {
		return false, fmt.Errorf("query did not return bool, got %T", result.Value())
	}

	return boolVal, nil
}

func messageVars(msg models.MailMessage) map[string]interface{} {
	to := msg.To
	if to == nil {
		to = []string{}
	}
	labels := msg.Labels
	if labels == nil {
		labels = []string{}
	}
	headers := msg.Headers
	if headers == nil {
		headers = map[string]string{}
	}

	return map[string]interface{}{
		"message_id":  msg.ID,
		"from":        msg.From,
		"to":          to,
		"subject":     msg.Subject,
		"labels":      labels,
		"snippet":     msg.Snippet,
		"headers":     headers,
		"received_at": msg.ReceivedAt,
	}
}
