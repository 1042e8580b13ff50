// Package routing evaluates RoutingRule conditions against a newly created
// ticket in descending priority order, applying the first match only.
package routing

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/bareuptime/convcore/internal/clock"
	"github.com/bareuptime/convcore/internal/models"
	"github.com/bareuptime/convcore/internal/store"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// TicketMutator is the narrow slice of ticket.Manager the engine needs to
// execute assign/set-priority actions. Defined here, not imported from
// internal/ticket, so the two packages never cycle — ticket.Manager is
// wired in as this interface via a post-construction setter (the same
// two-phase pattern the teacher uses for its WebSocket handler pair).
type TicketMutator interface {
	AssignToAdmin(ctx context.Context, ticketID, adminID string) error
	UpdatePriority(ctx context.Context, ticketID string, priority models.TicketPriority) error
}

type Engine struct {
	store   store.RoutingStore
	tags    store.TagStore
	mutator TicketMutator
	clock   clock.Clock
	logger  zerolog.Logger
}

func NewEngine(rs store.RoutingStore, tags store.TagStore, mutator TicketMutator, c clock.Clock, logger zerolog.Logger) *Engine {
	return &Engine{store: rs, tags: tags, mutator: mutator, clock: c, logger: logger.With().Str("component", "routing_engine").Logger()}
}

// Evaluate applies active rules for the ticket's (tenant, project) in
// descending Priority order, stopping after the first whose conditions
// hold. firstMessageBody is the text of the ticket's first customer
// message; keywords match against subject + " " + firstMessageBody.
func (e *Engine) Evaluate(ctx context.Context, t *models.Ticket, firstMessageBody string) error {
	rules, err := e.store.ListActiveRoutingRules(ctx, t.TenantID, t.ProjectID)
	if err != nil {
		return fmt.Errorf("list routing rules: %w", err)
	}
	sort.SliceStable(rules, func(i, j int) bool { return rules[i].Priority > rules[j].Priority })

	currentTags, err := e.tags.ListTicketTags(ctx, t.ID)
	if err != nil {
		return fmt.Errorf("list ticket tags: %w", err)
	}
	tagNames := make(map[string]bool, len(currentTags))
	for _, tag := range currentTags {
		tagNames[strings.ToLower(tag.Name)] = true
	}

	haystack := strings.ToLower(t.Subject + " " + firstMessageBody)

	for _, rule := range rules {
		matched, reason := e.matches(rule, t, haystack, tagNames)
		if !matched {
			continue
		}

		action, err := e.execute(ctx, rule, t)
		if err != nil {
			return fmt.Errorf("execute routing rule %s: %w", rule.ID, err)
		}

		log := &models.RoutingLog{
			ID:                uuid.NewString(),
			TicketID:          t.ID,
			RuleID:            rule.ID,
			RuleName:          rule.Name,
			ActionTaken:       action,
			MatchedConditions: reason,
			CreatedAt:         e.clock.Now(),
		}
		if err := e.store.CreateRoutingLog(ctx, log); err != nil {
			return fmt.Errorf("write routing log: %w", err)
		}

		e.logger.Info().Str("ticket_id", t.ID).Str("rule_id", rule.ID).Str("action", action).Msg("routing rule matched")
		return nil
	}

	return nil
}

func (e *Engine) matches(rule *models.RoutingRule, t *models.Ticket, haystack string, tagNames map[string]bool) (bool, string) {
	var reasons []string

	if len(rule.Conditions.Keywords) > 0 {
		if !anyContains(haystack, rule.Conditions.Keywords) {
			return false, ""
		}
		reasons = append(reasons, "keywords")
	}
	if len(rule.Conditions.IssueTypes) > 0 {
		if !containsString(rule.Conditions.IssueTypes, string(t.Source)) {
			return false, ""
		}
		reasons = append(reasons, "issue_types")
	}
	if len(rule.Conditions.Tags) > 0 {
		if !anyTagPresent(rule.Conditions.Tags, tagNames) {
			return false, ""
		}
		reasons = append(reasons, "tags")
	}
	if len(rule.Conditions.Context) > 0 {
		if !containsString(rule.Conditions.Context, t.Context) {
			return false, ""
		}
		reasons = append(reasons, "context")
	}
	if len(rule.Conditions.Priority) > 0 {
		found := false
		for _, p := range rule.Conditions.Priority {
			if p == t.Priority {
				found = true
				break
			}
		}
		if !found {
			return false, ""
		}
		reasons = append(reasons, "priority")
	}

	return true, strings.Join(reasons, ",")
}

func (e *Engine) execute(ctx context.Context, rule *models.RoutingRule, t *models.Ticket) (string, error) {
	switch rule.ActionType {
	case models.ActionAssignToAgent:
		if t.AssignedTo != nil && *t.AssignedTo == rule.ActionValue {
			return "assign_to_agent(no-op, already assigned)", nil
		}
		if err := e.mutator.AssignToAdmin(ctx, t.ID, rule.ActionValue); err != nil {
			return "", err
		}
		return "assign_to_agent:" + rule.ActionValue, nil

	case models.ActionSetPriority:
		if t.Priority == models.TicketPriority(rule.ActionValue) {
			return "set_priority(no-op, already set)", nil
		}
		if err := e.mutator.UpdatePriority(ctx, t.ID, models.TicketPriority(rule.ActionValue)); err != nil {
			return "", err
		}
		return "set_priority:" + rule.ActionValue, nil

	case models.ActionAddTag:
		tag, err := e.tags.FindOrCreateTag(ctx, t.TenantID, t.ProjectID, rule.ActionValue)
		if err != nil {
			return "", err
		}
		if err := e.tags.AttachTag(ctx, t.ID, tag.ID); err != nil {
			return "", err
		}
		return "add_tag:" + rule.ActionValue, nil

	case models.ActionSetCategory:
		if err := e.tags.SetCategory(ctx, t.ID, rule.ActionValue); err != nil {
			return "", err
		}
		return "set_category:" + rule.ActionValue, nil

	case models.ActionAssignToGroup:
		// Concrete group dispatch is external; this engine only records
		// group membership as a tag, per §4.6.
		tag, err := e.tags.FindOrCreateTag(ctx, t.TenantID, t.ProjectID, rule.ActionValue)
		if err != nil {
			return "", err
		}
		if err := e.tags.AttachTag(ctx, t.ID, tag.ID); err != nil {
			return "", err
		}
		return "assign_to_group:" + rule.ActionValue, nil

	default:
		return "", fmt.Errorf("unknown action type %q", rule.ActionType)
	}
}

func anyContains(haystack string, needles []string) bool {
	for _, n := range needles {
		if n == "" {
			continue
		}
		if strings.Contains(haystack, strings.ToLower(n)) {
			return true
		}
	}
	return false
}

func containsString(haystack []string, needle string) bool {
	for _, h := range haystack {
		if strings.EqualFold(h, needle) {
			return true
		}
	}
	return false
}

func anyTagPresent(needles []string, present map[string]bool) bool {
	for _, n := range needles {
		if present[strings.ToLower(n)] {
			return true
		}
	}
	return false
}
