package leads

import (
	"strings"
	"time"
)

// Lead is the CRM record a notification is built from. It is owned by the
// CRM; nothing in this service mutates it.
type Lead struct {
	ID               string    `json:"id"`
	Name             string    `json:"name"`
	Phone            string    `json:"phone_number"`
	Email            string    `json:"email_address"`
	Source           string    `json:"source"`
	Status           string    `json:"status"`
	AssignedUserName string    `json:"assigned_user_name"`
	CreatedAt        time.Time `json:"created_at"`
}

// AfterSaveEvent is what the CRM reports after persisting an entity.
type AfterSaveEvent struct {
	Entity string `json:"entity"`
	IsNew  bool   `json:"is_new"`
	Lead   Lead   `json:"lead"`
}

// Validate checks the event carries a lead we can link to.
func (e *AfterSaveEvent) Validate() error {
	if e.Entity != "" && !strings.EqualFold(e.Entity, "Lead") {
		return ErrUnsupportedEntity
	}
	if strings.TrimSpace(e.Lead.ID) == "" {
		return ErrMissingLeadID
	}
	return nil
}
