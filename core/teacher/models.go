package teacher

import (
	"time"

	"github.com/atomi7e/att-system-pet/core"
	"github.com/atomi7e/att-system-pet/core/user"
)

// Registration statuses
const (
	StatusPending  = "pending"
	StatusApproved = "approved"
	StatusRejected = "rejected"
)

// Teacher is an approval-gated profile tied one-to-one to an account. A
// teacher may only see and mark attendance for the Subjects and Groups
// explicitly assigned to them.
type Teacher struct {
	ID              int        `json:"id"`
	UserID          string     `json:"user"`
	Name            string     `json:"name"`
	Username        string     `json:"username"`
	Status          string     `json:"status"`
	Phone           string     `json:"phone"`
	Department      string     `json:"department"`
	SubjectIDs      []int      `json:"classes"`
	GroupIDs        []int      `json:"groups"`
	SubmittedAt     time.Time  `json:"submitted_at"` // UTC
	ReviewedAt      *time.Time `json:"reviewed_at"`  // UTC
	ReviewedBy      string     `json:"reviewed_by"`
	RejectionReason string     `json:"rejection_reason"`
}

func (t *Teacher) IsApproved() bool { return t.Status == StatusApproved }
func (t *Teacher) IsPending() bool  { return t.Status == StatusPending }

// Registration contains information needed to submit a teacher registration.
// The profile always starts out pending; subjects and groups are assigned by
// an admin after approval.
type Registration struct {
	Name            string `json:"name" validate:"required,max=100"`
	Username        string `json:"username" validate:"required,min=4,alphanum_"`
	Email           string `json:"email" validate:"required,email"`
	Phone           string `json:"phone" validate:"omitempty,max=20"`
	Department      string `json:"department" validate:"omitempty,max=100"`
	Password        string `json:"password" validate:"required,min=8"`
	PasswordConfirm string `json:"password_confirm" validate:"required,eqfield=Password"`
}

func (r *Registration) Validate(usrSvc *user.Service) error {
	r.Name = core.CleanString(r.Name)
	r.Username = core.CleanString(r.Username, true /* lower */)
	r.Email = core.CleanString(r.Email, true /* lower */)
	r.Phone = core.CleanString(r.Phone)
	r.Department = core.CleanString(r.Department)

	if err := core.Validate.Struct(r); err != nil {
		return err
	}
	return usrSvc.CheckUniqueness(r.Username, r.Email)
}

// Assignment replaces a teacher's subject and group assignments.
type Assignment struct {
	SubjectIDs []int `json:"classes"`
	GroupIDs   []int `json:"groups"`
}

func (a Assignment) Validate() error { return core.Validate.Struct(a) }

// Rejection optionally carries the reviewer's free-text reason.
type Rejection struct {
	Reason string `json:"reason"`
}
