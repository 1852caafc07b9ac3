package chore

import (
	"context"
	"fmt"

	"github.com/dukerupert/chorly/internal/model"
)

// CatalogEntry is a built-in chore new tenants start with as a template.
type CatalogEntry struct {
	Title              string `json:"title"`
	RRule              string `json:"rrule"`
	DueTime            string `json:"due_time"`
	GracePeriodMinutes int    `json:"grace_period_minutes"`
}

func (e CatalogEntry) Schedule() model.Schedule {
	return model.RepeatingCalendar{RRule: e.RRule, DueTime: e.DueTime, GracePeriodMinutes: e.GracePeriodMinutes}
}

var catalog = []CatalogEntry{
	{"Take out trash", "FREQ=WEEKLY;BYDAY=MO,TH", "20:00", 60},
	{"Wash dishes", "FREQ=DAILY", "19:30", 60},
	{"Fold laundry", "FREQ=WEEKLY;BYDAY=SU,WE", "18:00", 60},
	{"Vacuum living room", "FREQ=WEEKLY;BYDAY=FR", "12:00", 90},
	{"Clean bathrooms", "FREQ=WEEKLY;BYDAY=TH", "17:00", 120},
	{"Tidy playroom", "FREQ=DAILY", "20:30", 45},
	{"Water plants", "FREQ=WEEKLY;BYDAY=TU,SA", "08:00", 60},
	{"Wipe kitchen counters", "FREQ=DAILY", "21:00", 60},
	{"Feed pets", "FREQ=DAILY", "07:30", 30},
	{"Prepare school bags", "FREQ=WEEKLY;BYDAY=SU,MO,TU,WE,TH", "20:00", 30},
	{"Empty dishwasher", "FREQ=DAILY", "08:30", 90},
	{"Mop floors", "FREQ=WEEKLY;BYDAY=WE", "18:30", 120},
}

// Catalog returns a copy of the built-in templates.
func Catalog() []CatalogEntry {
	return append([]CatalogEntry(nil), catalog...)
}

// SeedTemplates adds every catalog entry the tenant has no template for yet,
// matched by title, assigned to assigneeID. Templates take notes but no
// photos and carry no reward. It returns the templates it created.
func (s *Service) SeedTemplates(ctx context.Context, tenantID, assigneeID string) ([]model.ChoreDefinition, error) {
	if err := s.checkAssignees(ctx, tenantID, []string{assigneeID}); err != nil {
		return nil, err
	}
	existing, err := s.chores.ListChores(ctx, tenantID, true)
	if err != nil {
		return nil, fmt.Errorf("list templates: %w", err)
	}
	have := make(map[string]bool, len(existing))
	for _, c := range existing {
		have[c.Title] = true
	}

	var created []model.ChoreDefinition
	for _, e := range catalog {
		if have[e.Title] {
			continue
		}
		c, err := s.CreateChore(ctx, tenantID, ChoreInput{
			Title:    e.Title,
			Schedule: e.Schedule(),
			Assignment: model.AssignmentConfig{
				Mode:          model.ModeFixed,
				SkipAwayUsers: true,
				AssigneeIDs:   []string{assigneeID},
			},
			AllowNotes: true,
			IsTemplate: true,
		})
		if err != nil {
			return created, fmt.Errorf("seed %q: %w", e.Title, err)
		}
		created = append(created, *c)
	}
	if len(created) > 0 {
		s.logger.Info("templates seeded", "tenant_id", tenantID, "count", len(created))
	}
	return created, nil
}
