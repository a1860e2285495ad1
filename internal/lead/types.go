package lead

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// Stage values a lead moves through. The pipeline is free-form beyond the
// initial stage; only StageNew is assigned by this package.
const StageNew = "new"

// Lead is a sales lead. Code is the short human-facing identifier shown in
// the UI and in reminder texts.
type Lead struct {
	ID               string    `json:"id"`
	Code             string    `json:"code"`
	ContactName      string    `json:"contact_name"`
	Email            string    `json:"email,omitempty"`
	Phone            string    `json:"phone,omitempty"`
	Stage            string    `json:"stage"`
	AssignedToUserID string    `json:"assigned_to_user_id,omitempty"`
	LastActivityAt   time.Time `json:"last_activity_at,omitzero"`
	CreatedAt        time.Time `json:"created_at"`
}

// CreateInput is the payload for creating a lead.
type CreateInput struct {
	ContactName      string `json:"contact_name" validate:"required"`
	Email            string `json:"email" validate:"omitempty,email"`
	Phone            string `json:"phone"`
	AssignedToUserID string `json:"assigned_to_user_id"`
}

// NewCode generates a short unique lead code.
func NewCode() string {
	return "LD-" + strings.ToUpper(uuid.NewString()[:8])
}
