package evaluator

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"mailgate/internal/config"
	"mailgate/internal/logger"
	"mailgate/pkg/cel"
	"mailgate/pkg/metrics"
	"mailgate/pkg/models"
)

type Service struct {
	repo      Repository
	rules     []compiledRule
	rulesMu   sync.RWMutex
	cfg       config.EvaluatorConfig
	evaluator *cel.Evaluator
	logger    logger.Logger
}

func NewService(repo Repository, cfg config.EvaluatorConfig, log logger.Logger) (*Service, error) {
	evaluator, err := cel.NewEvaluator()
	if err != nil {
		return nil, fmt.Errorf("failed to create query evaluator: %w", err)
	}

	return &Service{
		repo:      repo,
		cfg:       cfg,
		rules:     make([]compiledRule, 0),
		evaluator: evaluator,
		logger:    log,
	}, nil
}

// Evaluate runs the message through the current snapshot in order and
// returns the first matching rule, or nil when nothing matches. The
// snapshot taken at entry is used for the whole message, so a
// concurrent reload never splits one evaluation across two rule sets.
func (s *Service) Evaluate(ctx context.Context, msg models.MailMessage) (*Match, error) {
	rules := s.snapshot()
	start := time.Now()

	match, err := s.evaluateRules(ctx, rules, msg)

	result := "no_match"
	if err != nil {
		result = "error"
	} else if match != nil {
		result = "match"
	}
	metrics.RuleEvaluationsTotal.WithLabelValues(result).Inc()
	metrics.ObserveEvaluationDuration(time.Since(start), result)

	return match, err
}

func (s *Service) snapshot() []compiledRule {
	s.rulesMu.RLock()
	defer s.rulesMu.RUnlock()

	rules := make([]compiledRule, len(s.rules))
	copy(rules, s.rules)
	return rules
}

func (s *Service) evaluateRules(ctx context.Context, rules []compiledRule, msg models.MailMessage) (*Match, error) {
	for _, rule := range rules {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		result, err := s.evaluator.Evaluate(ctx, rule.program, msg)
		if err != nil {
			if s.failOnError() {
				return nil, fmt.Errorf("rule %s evaluation failed: %w", rule.ID, err)
			}
			s.logger.WarnwCtx(ctx, "Rule evaluation error, skipping rule",
				"rule_id", rule.ID,
				"rule_name", rule.Name,
				"error", err,
			)
			continue
		}

		if result {
			s.logger.DebugwCtx(ctx, "Rule matched message",
				"rule_id", rule.ID,
				"rule_name", rule.Name,
			)
			return &Match{RuleID: rule.ID, RuleName: rule.Name}, nil
		}
	}

	return nil, nil
}

func (s *Service) failOnError() bool {
	return strings.EqualFold(s.cfg.Fallback.OnError, "fail")
}

func (s *Service) ReloadRules(ctx context.Context) error {
	rules, err := s.repo.GetActiveRules(ctx)
	if err != nil {
		return fmt.Errorf("failed to load rules: %w", err)
	}

	compiled := make([]compiledRule, 0, len(rules))
	for _, rule := range rules {
		program, err := s.evaluator.CompileQuery(rule.Query)
		if err != nil {
			// Stored queries are validated at write time; hitting this
			// means the store and the evaluator disagree on the grammar.
			s.logger.ErrorwCtx(ctx, "Skipping rule with uncompilable query",
				"rule_id", rule.ID,
				"rule_name", rule.Name,
				"error", err,
			)
			continue
		}
		compiled = append(compiled, compiledRule{Rule: rule, program: program})
	}

	s.rulesMu.Lock()
	s.rules = compiled
	s.rulesMu.Unlock()

	metrics.SetActiveRules(len(compiled))
	s.logger.InfowCtx(ctx, "Successfully reloaded rules",
		"rules_count", len(compiled),
	)

	return nil
}

func (s *Service) StartReloader(ctx context.Context) error {
	interval := time.Duration(s.cfg.Reload.IntervalSeconds) * time.Second
	if interval <= 0 {
		interval = 30 * time.Second
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	if err := s.ReloadRules(ctx); err != nil {
		s.logger.ErrorwCtx(ctx, "Failed to reload rules",
			"error", err,
		)
	}

	for {
		select {
		case <-ticker.C:
			if err := s.ReloadRules(ctx); err != nil {
				s.logger.ErrorwCtx(ctx, "Failed to reload rules",
					"error", err,
				)
			}
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}
