package reminder

import "time"

// Reminder is a follow-up task attached to a lead. Auto reminders are
// created by the staleness sweep; manual ones by agents.
type Reminder struct {
	ID          string    `json:"id"`
	LeadID      string    `json:"lead_id"`
	DueAt       time.Time `json:"due_at"`
	Text        string    `json:"reminder_text"`
	IsCompleted bool      `json:"is_completed"`
	IsAuto      bool      `json:"is_auto"`
	CreatedAt   time.Time `json:"created_at"`
}

// OverdueReminder is a reminder joined with its lead for inbox display.
type OverdueReminder struct {
	Reminder
	LeadCode        string `json:"lead_code"`
	LeadContactName string `json:"lead_contact_name"`
}

// StaleLead is a lead the sweep considers gone quiet.
type StaleLead struct {
	ID           string
	Code         string
	ContactName  string
	LastActivity time.Time
}
