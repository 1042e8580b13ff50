// Command seed inserts a starter set of SLA definitions and routing rules
// for one tenant/project, the way an operator would before onboarding
// their first ticket. Not wired into any automated flow — run by hand
// against a fresh database.
package main

import (
	"context"
	"flag"
	"log"
	"time"

	"github.com/bareuptime/convcore/internal/config"
	"github.com/bareuptime/convcore/internal/db"
	"github.com/bareuptime/convcore/internal/idgen"
	"github.com/bareuptime/convcore/internal/models"
	"github.com/bareuptime/convcore/internal/store"
)

func main() {
	tenantID := flag.String("tenant", "", "tenant id to seed")
	projectID := flag.String("project", "", "project id to seed")
	flag.Parse()

	if *tenantID == "" || *projectID == "" {
		log.Fatal("usage: seed -tenant <id> -project <id>")
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	database, err := db.Connect(&cfg.Database)
	if err != nil {
		log.Fatalf("failed to connect to database: %v", err)
	}
	defer database.Close()

	s := store.NewPostgres(database.DB)
	ids := idgen.Real()
	ctx := context.Background()

	for _, sla := range defaultSlas(*tenantID, *projectID, ids) {
		if err := s.CreateSlaDefinition(ctx, sla); err != nil {
			log.Fatalf("failed to seed sla %s: %v", sla.Priority, err)
		}
		log.Printf("seeded sla definition: %s", sla.Priority)
	}

	for _, rule := range defaultRoutingRules(*tenantID, *projectID, ids) {
		if err := s.CreateRoutingRule(ctx, rule); err != nil {
			log.Fatalf("failed to seed routing rule %s: %v", rule.Name, err)
		}
		log.Printf("seeded routing rule: %s", rule.Name)
	}

	log.Println("seed complete")
}

func defaultSlas(tenantID, projectID string, ids idgen.Source) []*models.SlaDefinition {
	weekdays := []time.Weekday{time.Monday, time.Tuesday, time.Wednesday, time.Thursday, time.Friday}
	mk := func(priority models.TicketPriority, responseMin, resolutionMin int) *models.SlaDefinition {
		return &models.SlaDefinition{
			ID:                    ids.UUID(),
			TenantID:              tenantID,
			ProjectID:             projectID,
			Priority:              priority,
			ResponseTimeMinutes:   responseMin,
			ResolutionTimeMinutes: resolutionMin,
			BusinessHoursOnly:     true,
			BusinessHoursStart:    "09:00",
			BusinessHoursEnd:      "17:00",
			BusinessDays:          weekdays,
			IsActive:              true,
		}
	}
	return []*models.SlaDefinition{
		mk(models.PriorityUrgent, 15, 120),
		mk(models.PriorityHigh, 60, 480),
		mk(models.PriorityMedium, 240, 1440),
		mk(models.PriorityLow, 480, 4320),
	}
}

func defaultRoutingRules(tenantID, projectID string, ids idgen.Source) []*models.RoutingRule {
	return []*models.RoutingRule{
		{
			ID:        ids.UUID(),
			TenantID:  tenantID,
			ProjectID: projectID,
			Name:      "billing keywords to high",
			Priority:  100,
			IsActive:  true,
			Conditions: models.RoutingConditions{
				Keywords: []string{"billing", "invoice", "refund", "charge"},
			},
			ActionType:  models.ActionSetPriority,
			ActionValue: string(models.PriorityHigh),
		},
		{
			ID:        ids.UUID(),
			TenantID:  tenantID,
			ProjectID: projectID,
			Name:      "outage keywords to urgent",
			Priority:  90,
			IsActive:  true,
			Conditions: models.RoutingConditions{
				Keywords: []string{"down", "outage", "can't log in", "not working"},
			},
			ActionType:  models.ActionSetPriority,
			ActionValue: string(models.PriorityUrgent),
		},
	}
}
