package school

import (
	"time"

	"github.com/atomi7e/att-system-pet/core"
	"github.com/atomi7e/att-system-pet/core/user"
)

// Subject is a course (eg. CS101) identified by a unique code. Students are
// never enrolled in a Subject directly; enrollment is derived through their
// Group.
type Subject struct {
	ID           int       `json:"id"`
	Name         string    `json:"name"`
	Code         string    `json:"code"`
	Description  string    `json:"description"`
	StudentCount int       `json:"student_count"`
	CreatedAt    time.Time `json:"created_at"` // UTC
}

// Group is a study cohort (eg. cs-2301), attached to any number of Subjects.
type Group struct {
	ID           int       `json:"id"`
	Code         string    `json:"code"`
	Name         string    `json:"name"`
	SubjectIDs   []int     `json:"classes"`
	StudentCount int       `json:"student_count"`
	CreatedAt    time.Time `json:"created_at"` // UTC
}

// Student is a roster entry. StudentID is the external card number; UserID is
// set once when the student self-registers an account and never relinked.
type Student struct {
	ID        int       `json:"id"`
	Name      string    `json:"name"`
	StudentID string    `json:"student_id"`
	Email     string    `json:"email"`
	GroupID   int       `json:"group"`
	GroupCode string    `json:"group_code"`
	UserID    string    `json:"-"`
	CreatedAt time.Time `json:"created_at"` // UTC
}

func (s *Student) HasAccount() bool {
	return s.UserID != ""
}

// NewSubject contains information needed to create a new Subject.
type NewSubject struct {
	Name        string `json:"name" validate:"required,max=100"`
	Code        string `json:"code" validate:"required,max=20"`
	Description string `json:"description"`
}

func (ns *NewSubject) Validate(svc *Service) error {
	ns.Name = core.CleanString(ns.Name)
	ns.Code = core.CleanString(ns.Code)

	if err := core.Validate.Struct(ns); err != nil {
		return err
	}
	return svc.checkSubjectCode(ns.Code)
}

type UpdateSubject struct {
	Name        string `json:"name" validate:"omitempty,max=100"`
	Code        string `json:"code" validate:"omitempty,max=20"`
	Description *string `json:"description"`
}

func (us *UpdateSubject) Validate(orig Subject, svc *Service) error {
	if name := core.CleanString(us.Name); name != "" {
		us.Name = name
	} else {
		us.Name = orig.Name
	}
	if code := core.CleanString(us.Code); code != "" {
		us.Code = code
	} else {
		us.Code = orig.Code
	}

	if err := core.Validate.Struct(us); err != nil {
		return err
	}
	return svc.checkSubjectCode(us.Code, orig)
}

// NewGroup contains information needed to create a new Group.
type NewGroup struct {
	Code       string `json:"code" validate:"required,max=50"`
	Name       string `json:"name" validate:"omitempty,max=100"`
	SubjectIDs []int  `json:"classes"`
}

func (ng *NewGroup) Validate(svc *Service) error {
	ng.Code = core.CleanString(ng.Code)
	ng.Name = core.CleanString(ng.Name)

	if err := core.Validate.Struct(ng); err != nil {
		return err
	}
	return svc.checkGroupCode(ng.Code)
}

type UpdateGroup struct {
	Code       string `json:"code" validate:"omitempty,max=50"`
	Name       *string `json:"name" validate:"omitempty,max=100"`
	SubjectIDs []int  `json:"classes"`
}

func (ug *UpdateGroup) Validate(orig Group, svc *Service) error {
	if code := core.CleanString(ug.Code); code != "" {
		ug.Code = code
	} else {
		ug.Code = orig.Code
	}

	if err := core.Validate.Struct(ug); err != nil {
		return err
	}
	return svc.checkGroupCode(ug.Code, orig)
}

// NewStudent contains information needed to create a new roster entry.
type NewStudent struct {
	Name      string `json:"name" validate:"required,max=100"`
	StudentID string `json:"student_id" validate:"required,max=20"`
	Email     string `json:"email" validate:"omitempty,email"`
	GroupID   int    `json:"group" validate:"required"`
}

func (ns *NewStudent) Validate(svc *Service) error {
	ns.Name = core.CleanString(ns.Name)
	ns.StudentID = core.CleanString(ns.StudentID)
	ns.Email = core.CleanString(ns.Email, true /* lower */)

	if err := core.Validate.Struct(ns); err != nil {
		return err
	}
	return svc.checkStudentCode(ns.StudentID)
}

type UpdateStudent struct {
	Name      string `json:"name" validate:"omitempty,max=100"`
	StudentID string `json:"student_id" validate:"omitempty,max=20"`
	Email     string `json:"email" validate:"omitempty,email"`
	GroupID   int    `json:"group"`
}

func (us *UpdateStudent) Validate(orig Student, svc *Service) error {
	if name := core.CleanString(us.Name); name != "" {
		us.Name = name
	} else {
		us.Name = orig.Name
	}
	if sid := core.CleanString(us.StudentID); sid != "" {
		us.StudentID = sid
	} else {
		us.StudentID = orig.StudentID
	}
	if email := core.CleanString(us.Email, true /* lower */); email != "" {
		us.Email = email
	} else {
		us.Email = orig.Email
	}
	if us.GroupID == 0 {
		us.GroupID = orig.GroupID
	}

	if err := core.Validate.Struct(us); err != nil {
		return err
	}
	return svc.checkStudentCode(us.StudentID, orig)
}

// StudentRegistration binds a brand new account to an existing roster entry,
// matched by the student card number.
type StudentRegistration struct {
	Username        string `json:"username" validate:"required,min=4,alphanum_"`
	StudentID       string `json:"student_id" validate:"required,max=20"`
	Email           string `json:"email" validate:"omitempty,email"`
	Password        string `json:"password" validate:"required,min=8"`
	PasswordConfirm string `json:"password_confirm" validate:"required,eqfield=Password"`
}

func (sr *StudentRegistration) Validate(svc *Service, usrSvc *user.Service) error {
	sr.Username = core.CleanString(sr.Username, true /* lower */)
	sr.StudentID = core.CleanString(sr.StudentID)
	sr.Email = core.CleanString(sr.Email, true /* lower */)

	if err := core.Validate.Struct(sr); err != nil {
		return err
	}
	if err := usrSvc.CheckUniqueness(sr.Username, sr.Email); err != nil {
		return err
	}
	return svc.checkRegistrationTarget(sr.StudentID)
}
