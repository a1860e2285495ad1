package reminder

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"
)

type fakeSource struct {
	leads     []StaleLead
	reminders []Reminder
}

func (f *fakeSource) StaleLeads(_ context.Context, cutoff time.Time) ([]StaleLead, error) {
	var out []StaleLead
	for _, lead := range f.leads {
		if lead.LastActivity.Before(cutoff) {
			out = append(out, lead)
		}
	}
	return out, nil
}

func (f *fakeSource) HasOpenAutoReminder(_ context.Context, leadID string) (bool, error) {
	for _, r := range f.reminders {
		if r.LeadID == leadID && r.IsAuto && !r.IsCompleted {
			return true, nil
		}
	}
	return false, nil
}

func (f *fakeSource) CreateAuto(_ context.Context, leadID string, dueAt time.Time, text string) (Reminder, error) {
	r := Reminder{
		ID:     fmt.Sprintf("rem-%d", len(f.reminders)+1),
		LeadID: leadID,
		DueAt:  dueAt,
		Text:   text,
		IsAuto: true,
	}
	f.reminders = append(f.reminders, r)
	return r, nil
}

func (f *fakeSource) complete(leadID string) {
	for i := range f.reminders {
		if f.reminders[i].LeadID == leadID {
			f.reminders[i].IsCompleted = true
		}
	}
}

func TestSweepCreatesReminderForStaleLead(t *testing.T) {
	t.Parallel()

	source := &fakeSource{leads: []StaleLead{
		{ID: "lead-1", Code: "LD-AAAA0001", ContactName: "Ravi Kumar", LastActivity: time.Now().Add(-20 * 24 * time.Hour)},
		{ID: "lead-2", Code: "LD-AAAA0002", ContactName: "Maya S", LastActivity: time.Now().Add(-2 * 24 * time.Hour)},
	}}
	svc := NewService(nil, source, 14)

	created, err := svc.Sweep(context.Background())
	if err != nil {
		t.Fatalf("Sweep: %v", err)
	}
	if created != 1 {
		t.Fatalf("created = %d, want 1", created)
	}
	r := source.reminders[0]
	if r.LeadID != "lead-1" || !r.IsAuto {
		t.Fatalf("reminder = %+v", r)
	}
	if !strings.Contains(r.Text, "LD-AAAA0001") || !strings.Contains(r.Text, "Ravi Kumar") {
		t.Fatalf("text = %q", r.Text)
	}
	if !strings.Contains(r.Text, "no activity for 20 days") {
		t.Fatalf("text = %q, want the staleness expressed in days", r.Text)
	}
}

func TestSweepIsIdempotent(t *testing.T) {
	t.Parallel()

	source := &fakeSource{leads: []StaleLead{
		{ID: "lead-1", Code: "LD-X", ContactName: "Ravi", LastActivity: time.Now().Add(-30 * 24 * time.Hour)},
	}}
	svc := NewService(nil, source, 14)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if _, err := svc.Sweep(ctx); err != nil {
			t.Fatalf("Sweep #%d: %v", i, err)
		}
	}
	if len(source.reminders) != 1 {
		t.Fatalf("reminders = %d, want 1 open auto reminder", len(source.reminders))
	}
}

func TestSweepCreatesAgainAfterCompletion(t *testing.T) {
	t.Parallel()

	source := &fakeSource{leads: []StaleLead{
		{ID: "lead-1", Code: "LD-X", ContactName: "Ravi", LastActivity: time.Now().Add(-30 * 24 * time.Hour)},
	}}
	svc := NewService(nil, source, 14)
	ctx := context.Background()

	if _, err := svc.Sweep(ctx); err != nil {
		t.Fatalf("Sweep: %v", err)
	}
	source.complete("lead-1")
	created, err := svc.Sweep(ctx)
	if err != nil {
		t.Fatalf("Sweep: %v", err)
	}
	if created != 1 {
		t.Fatalf("created = %d, want 1 after completion while still stale", created)
	}
	if len(source.reminders) != 2 {
		t.Fatalf("reminders = %d", len(source.reminders))
	}
}

func TestSweepNoStaleLeads(t *testing.T) {
	t.Parallel()

	source := &fakeSource{leads: []StaleLead{
		{ID: "lead-1", LastActivity: time.Now().Add(-time.Hour)},
	}}
	svc := NewService(nil, source, 14)

	created, err := svc.Sweep(context.Background())
	if err != nil {
		t.Fatalf("Sweep: %v", err)
	}
	if created != 0 {
		t.Fatalf("created = %d, want 0", created)
	}
}
