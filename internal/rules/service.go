package rules

import (
	"context"
	"encoding/json"
	"strings"
	"sync"

	"mailgate/internal/constants"
	pkgerrors "mailgate/pkg/errors"
	"mailgate/pkg/logging"
	"mailgate/pkg/metrics"
	"mailgate/pkg/models"
)

type Service interface {
	CreateFilterRule(ctx context.Context, req CreateFilterRuleRequest) (*FilterRule, error)
	ListFilterRules(ctx context.Context) ([]FilterRule, error)
	GetFilterRule(ctx context.Context, id string) (*FilterRule, error)
	UpdateFilterRule(ctx context.Context, id string, req UpdateFilterRuleRequest) (*FilterRule, error)
	DeleteFilterRule(ctx context.Context, id string) error
	GetAuditLogs(ctx context.Context, ruleID *string, limit int) ([]AuditLog, error)
}

type service struct {
	repo              Repository
	auditLogger       *AuditLogger
	ruleEventProducer *RuleEventProducer

	// Serializes read-modify-write cycles so concurrent partial updates
	// cannot interleave; the later writer wins whole-record.
	mutationMu sync.Mutex
}

type ServiceOption func(*service)

func WithAudit(auditLogger *AuditLogger) ServiceOption {
	return func(s *service) {
		s.auditLogger = auditLogger
	}
}

func WithRuleEvents(producer *RuleEventProducer) ServiceOption {
	return func(s *service) {
		s.ruleEventProducer = producer
	}
}

func NewService(repo Repository, opts ...ServiceOption) Service {
	s := &service{repo: repo}

	for _, opt := range opts {
		opt(s)
	}

	return s
}

func (s *service) CreateFilterRule(ctx context.Context, req CreateFilterRuleRequest) (*FilterRule, error) {
	if err := ValidateFilterRule(req); err != nil {
		return nil, pkgerrors.Wrap(err, pkgerrors.ErrValidation)
	}

	rule := &FilterRule{
		Name:      req.Name,
		Query:     req.Query,
		Priority:  req.Priority,
		Enabled:   getEnabledValue(req.Enabled),
		UpdatedBy: getChangedBy(ctx),
	}

	if err := s.repo.CreateFilterRule(ctx, rule); err != nil {
		return nil, pkgerrors.Wrap(err, pkgerrors.ErrInternal)
	}

	metrics.RuleMutationsTotal.WithLabelValues(models.ActionCreate).Inc()
	s.audit(ctx, rule.ID, models.ActionCreate, nil, rule)
	s.publishRuleEvent(ctx, models.ActionCreate, rule.ID)

	return s.copyFilterRule(rule), nil
}

func (s *service) ListFilterRules(ctx context.Context) ([]FilterRule, error) {
	rules, err := s.repo.ListFilterRules(ctx)
	if err != nil {
		return nil, pkgerrors.Wrap(err, pkgerrors.ErrInternal)
	}
	if rules == nil {
		rules = []FilterRule{}
	}
	return rules, nil
}

func (s *service) GetFilterRule(ctx context.Context, id string) (*FilterRule, error) {
	rule, err := s.repo.GetFilterRule(ctx, id)
	if err != nil {
		return nil, s.handleNotFoundError(err, id)
	}
	if rule == nil {
		return nil, pkgerrors.ErrNotFound.WithDetail("id", id)
	}
	return s.copyFilterRule(rule), nil
}

func (s *service) UpdateFilterRule(ctx context.Context, id string, req UpdateFilterRuleRequest) (*FilterRule, error) {
	if err := ValidateUpdateFilterRule(req); err != nil {
		return nil, pkgerrors.Wrap(err, pkgerrors.ErrValidation)
	}

	s.mutationMu.Lock()
	defer s.mutationMu.Unlock()

	rule, err := s.repo.GetFilterRule(ctx, id)
	if err != nil {
		return nil, s.handleNotFoundError(err, id)
	}
	if rule == nil {
		return nil, pkgerrors.ErrNotFound.WithDetail("id", id)
	}

	oldValue := s.copyFilterRule(rule)
	s.applyUpdate(rule, req)
	rule.UpdatedBy = getChangedBy(ctx)

	if err := s.repo.UpdateFilterRule(ctx, rule); err != nil {
		return nil, s.handleNotFoundError(err, id)
	}

	metrics.RuleMutationsTotal.WithLabelValues(models.ActionUpdate).Inc()
	s.audit(ctx, rule.ID, models.ActionUpdate, oldValue, rule)
	s.publishRuleEvent(ctx, models.ActionUpdate, rule.ID)

	return s.copyFilterRule(rule), nil
}

func (s *service) DeleteFilterRule(ctx context.Context, id string) error {
	s.mutationMu.Lock()
	defer s.mutationMu.Unlock()

	rule, err := s.repo.GetFilterRule(ctx, id)
	if err != nil {
		return s.handleNotFoundError(err, id)
	}
	if rule == nil {
		return pkgerrors.ErrNotFound.WithDetail("id", id)
	}

	if err := s.repo.DeleteFilterRule(ctx, id); err != nil {
		return s.handleNotFoundError(err, id)
	}

	metrics.RuleMutationsTotal.WithLabelValues(models.ActionDelete).Inc()
	s.audit(ctx, id, models.ActionDelete, rule, nil)
	s.publishRuleEvent(ctx, models.ActionDelete, id)

	return nil
}

func (s *service) GetAuditLogs(ctx context.Context, ruleID *string, limit int) ([]AuditLog, error) {
	if s.auditLogger == nil {
		return nil, pkgerrors.ErrInternal.WithDetail("message", "audit logging not enabled")
	}
	if limit <= 0 {
		limit = constants.DefaultEventLimit
	}
	if limit > constants.MaxEventLimit {
		limit = constants.MaxEventLimit
	}
	logs, err := s.auditLogger.GetAuditLogs(ctx, ruleID, limit)
	if err != nil {
		return nil, pkgerrors.Wrap(err, pkgerrors.ErrInternal)
	}
	if logs == nil {
		logs = []AuditLog{}
	}
	return logs, nil
}

func (s *service) handleNotFoundError(err error, id string) error {
	if err == nil {
		return nil
	}
	if strings.Contains(err.Error(), "not found") {
		return pkgerrors.ErrNotFound.WithDetail("id", id)
	}
	return pkgerrors.Wrap(err, pkgerrors.ErrInternal)
}

func (s *service) audit(ctx context.Context, ruleID, action string, oldValue, newValue *FilterRule) {
	if s.auditLogger == nil {
		return
	}

	entry := AuditLogEntry{
		RuleID:    ruleID,
		Action:    action,
		OldValue:  ruleToMap(oldValue),
		NewValue:  ruleToMap(newValue),
		ChangedBy: getChangedBy(ctx),
	}
	_ = s.auditLogger.LogRuleChange(ctx, entry)
}

func (s *service) publishRuleEvent(ctx context.Context, action, ruleID string) {
	if s.ruleEventProducer != nil {
		_ = s.ruleEventProducer.PublishRuleEvent(ctx, action, ruleID, getChangedBy(ctx))
	}
}

func (s *service) applyUpdate(rule *FilterRule, req UpdateFilterRuleRequest) {
	if req.Name != nil {
		rule.Name = *req.Name
	}
	if req.Query != nil {
		rule.Query = *req.Query
	}
	if req.Priority != nil {
		rule.Priority = *req.Priority
	}
	if req.Enabled != nil {
		rule.Enabled = *req.Enabled
	}
}

func (s *service) copyFilterRule(rule *FilterRule) *FilterRule {
	copied := *rule
	return &copied
}

func ruleToMap(rule *FilterRule) map[string]interface{} {
	if rule == nil {
		return nil
	}
	data, err := json.Marshal(rule)
	if err != nil {
		return nil
	}
	var result map[string]interface{}
	if err := json.Unmarshal(data, &result); err != nil {
		return nil
	}
	return result
}

func getEnabledValue(reqEnabled *bool) bool {
	if reqEnabled == nil {
		return true
	}
	return *reqEnabled
}

func getChangedBy(ctx context.Context) string {
	if user := logging.GetAdminUser(ctx); user != "" {
		return user
	}
	return constants.DefaultAdminUser
}
