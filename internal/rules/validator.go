package rules

import (
	"fmt"
	"sync"

	"mailgate/pkg/cel"
)

// The CEL environment is immutable once built, so one instance serves
// every validation call.
var (
	queryEvaluatorOnce sync.Once
	queryEvaluator     *cel.Evaluator
	queryEvaluatorErr  error
)

func sharedQueryEvaluator() (*cel.Evaluator, error) {
	queryEvaluatorOnce.Do(func() {
		queryEvaluator, queryEvaluatorErr = cel.NewEvaluator()
	})
	if queryEvaluatorErr != nil {
		return nil, fmt.Errorf("failed to create query evaluator: %w", queryEvaluatorErr)
	}
	return queryEvaluator, nil
}

func ValidateFilterRule(req CreateFilterRuleRequest) error {
	if req.Name == "" {
		return fmt.Errorf("name is required")
	}
	if req.Query == "" {
		return fmt.Errorf("query is required")
	}

	evaluator, err := sharedQueryEvaluator()
	if err != nil {
		return err
	}

	if err := evaluator.ValidateQuery(req.Query); err != nil {
		return fmt.Errorf("invalid query: %w", err)
	}

	return nil
}

func ValidateUpdateFilterRule(req UpdateFilterRuleRequest) error {
	if req.Name != nil && *req.Name == "" {
		return fmt.Errorf("name cannot be empty")
	}
	if req.Query != nil {
		if *req.Query == "" {
			return fmt.Errorf("query cannot be empty")
		}

		evaluator, err := sharedQueryEvaluator()
		if err != nil {
			return err
		}

		if err := evaluator.ValidateQuery(*req.Query); err != nil {
			return fmt.Errorf("invalid query: %w", err)
		}
	}
	return nil
}
