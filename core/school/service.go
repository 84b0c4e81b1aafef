package school

import (
	"context"
	"time"

	"github.com/pkg/errors"

	"github.com/atomi7e/att-system-pet/core"
	"github.com/atomi7e/att-system-pet/core/user"
)

var (
	// errors
	ErrSubjectNotFound   = errors.New("subject not found")
	ErrGroupNotFound     = errors.New("group not found")
	ErrStudentNotFound   = errors.New("student with this ID was not found. Contact the administrator")
	ErrSubjectCodeExists = errors.New("a subject with this code already exists")
	ErrGroupCodeExists   = errors.New("a group with this code already exists")
	ErrStudentIDExists   = errors.New("a student with this ID already exists")
	ErrAlreadyLinked     = errors.New("an account is already linked to this student ID")
)

type (
	Repository interface {
		// subjects
		CheckSubjectCodeUniqueness(ctx context.Context, code string, excluded ...Subject) error
		CreateSubject(ctx context.Context, sub Subject) (Subject, error)
		QueryAllSubjects(ctx context.Context) ([]Subject, error)
		QuerySubjectsByID(ctx context.Context, ids ...int) ([]Subject, error)
		GetSubjectByID(ctx context.Context, id int) (Subject, error)
		UpdateSubject(ctx context.Context, sub Subject) (Subject, error)
		DeleteSubjectsByID(ctx context.Context, ids ...int) error

		// groups
		CheckGroupCodeUniqueness(ctx context.Context, code string, excluded ...Group) error
		CreateGroup(ctx context.Context, grp Group) (Group, error)
		QueryAllGroups(ctx context.Context) ([]Group, error)
		QueryGroupsByID(ctx context.Context, ids ...int) ([]Group, error)
		QueryGroupsBySubjectID(ctx context.Context, subjectID int) ([]Group, error)
		GetGroupByID(ctx context.Context, id int) (Group, error)
		UpdateGroup(ctx context.Context, grp Group) (Group, error)
		DeleteGroupsByID(ctx context.Context, ids ...int) error

		// students
		CheckStudentCodeUniqueness(ctx context.Context, code string, excluded ...Student) error
		CreateStudent(ctx context.Context, std Student) (Student, error)
		QueryAllStudents(ctx context.Context) ([]Student, error)
		QueryStudentsByGroupID(ctx context.Context, groupIDs ...int) ([]Student, error)
		// QueryStudentsBySubjectID resolves the derived enrollment: students
		// whose Group is attached to the Subject, optionally narrowed to the
		// given groups.
		QueryStudentsBySubjectID(ctx context.Context, subjectID int, groupIDs ...int) ([]Student, error)
		GetStudentByID(ctx context.Context, id int) (Student, error)
		GetStudentByCode(ctx context.Context, studentID string) (Student, error)
		GetStudentByUserID(ctx context.Context, userID string) (Student, error)
		// LinkStudentUser sets the account reference once; it fails with
		// ErrAlreadyLinked when the student already has one.
		LinkStudentUser(ctx context.Context, studentID int, userID, email string) (Student, error)
		UpdateStudent(ctx context.Context, std Student) (Student, error)
		DeleteStudentsByID(ctx context.Context, ids ...int) error
	}

	Service struct {
		repo   Repository
		usrSvc *user.Service
	}
)

func NewService(repo Repository, usrSvc *user.Service) *Service {
	return &Service{repo: repo, usrSvc: usrSvc}
}

func (svc *Service) checkSubjectCode(code string, excl ...Subject) error {
	if err := svc.repo.CheckSubjectCodeUniqueness(context.Background(), code, excl...); err != nil {
		if errors.Cause(err) == ErrSubjectCodeExists {
			return core.NewValidationError(err, core.FieldError{Field: "code", Error: err.Error()})
		}
		return err
	}
	return nil
}

func (svc *Service) checkGroupCode(code string, excl ...Group) error {
	if err := svc.repo.CheckGroupCodeUniqueness(context.Background(), code, excl...); err != nil {
		if errors.Cause(err) == ErrGroupCodeExists {
			return core.NewValidationError(err, core.FieldError{Field: "code", Error: err.Error()})
		}
		return err
	}
	return nil
}

func (svc *Service) checkStudentCode(code string, excl ...Student) error {
	if err := svc.repo.CheckStudentCodeUniqueness(context.Background(), code, excl...); err != nil {
		if errors.Cause(err) == ErrStudentIDExists {
			return core.NewValidationError(err, core.FieldError{Field: "student_id", Error: err.Error()})
		}
		return err
	}
	return nil
}

// checkRegistrationTarget verifies that a roster entry exists for the card
// number and has no linked account yet.
func (svc *Service) checkRegistrationTarget(studentID string) error {
	std, err := svc.repo.GetStudentByCode(context.Background(), studentID)
	if err != nil {
		if errors.Cause(err) == ErrStudentNotFound {
			return core.NewValidationError(err, core.FieldError{Field: "student_id", Error: err.Error()})
		}
		return err
	}
	if std.HasAccount() {
		return core.NewValidationError(ErrAlreadyLinked, core.FieldError{Field: "student_id", Error: ErrAlreadyLinked.Error()})
	}
	return nil
}

// Subjects

func (svc *Service) CreateSubject(ctx context.Context, ns NewSubject) (Subject, error) {
	now := time.Now().UTC()
	return svc.repo.CreateSubject(ctx, Subject{
		Name:        ns.Name,
		Code:        ns.Code,
		Description: ns.Description,
		CreatedAt:   now,
	})
}

func (svc *Service) QueryAllSubjects(ctx context.Context) ([]Subject, error) {
	return svc.repo.QueryAllSubjects(ctx)
}

func (svc *Service) QuerySubjectsByID(ctx context.Context, ids ...int) ([]Subject, error) {
	if len(ids) == 0 {
		return []Subject{}, nil
	}
	return svc.repo.QuerySubjectsByID(ctx, ids...)
}

func (svc *Service) GetSubjectByID(ctx context.Context, id int) (Subject, error) {
	return svc.repo.GetSubjectByID(ctx, id)
}

func (svc *Service) UpdateSubject(ctx context.Context, id int, us UpdateSubject) (Subject, error) {
	sub := Subject{ID: id, Name: us.Name, Code: us.Code}
	if us.Description != nil {
		sub.Description = *us.Description
	}
	return svc.repo.UpdateSubject(ctx, sub)
}

func (svc *Service) DeleteSubjects(ctx context.Context, ids ...int) error {
	return svc.repo.DeleteSubjectsByID(ctx, ids...)
}

// Groups

func (svc *Service) CreateGroup(ctx context.Context, ng NewGroup) (Group, error) {
	now := time.Now().UTC()
	return svc.repo.CreateGroup(ctx, Group{
		Code:       ng.Code,
		Name:       ng.Name,
		SubjectIDs: ng.SubjectIDs,
		CreatedAt:  now,
	})
}

func (svc *Service) QueryAllGroups(ctx context.Context) ([]Group, error) {
	return svc.repo.QueryAllGroups(ctx)
}

func (svc *Service) QueryGroupsByID(ctx context.Context, ids ...int) ([]Group, error) {
	if len(ids) == 0 {
		return []Group{}, nil
	}
	return svc.repo.QueryGroupsByID(ctx, ids...)
}

func (svc *Service) QueryGroupsBySubject(ctx context.Context, subjectID int) ([]Group, error) {
	return svc.repo.QueryGroupsBySubjectID(ctx, subjectID)
}

func (svc *Service) GetGroupByID(ctx context.Context, id int) (Group, error) {
	return svc.repo.GetGroupByID(ctx, id)
}

func (svc *Service) UpdateGroup(ctx context.Context, id int, ug UpdateGroup) (Group, error) {
	orig, err := svc.repo.GetGroupByID(ctx, id)
	if err != nil {
		return Group{}, err
	}
	grp := Group{ID: id, Code: ug.Code, Name: orig.Name, SubjectIDs: orig.SubjectIDs}
	if ug.Name != nil {
		grp.Name = *ug.Name
	}
	if ug.SubjectIDs != nil {
		grp.SubjectIDs = ug.SubjectIDs
	}
	return svc.repo.UpdateGroup(ctx, grp)
}

func (svc *Service) DeleteGroups(ctx context.Context, ids ...int) error {
	return svc.repo.DeleteGroupsByID(ctx, ids...)
}

// Students

func (svc *Service) CreateStudent(ctx context.Context, ns NewStudent) (Student, error) {
	if _, err := svc.repo.GetGroupByID(ctx, ns.GroupID); err != nil {
		return Student{}, err
	}
	now := time.Now().UTC()
	return svc.repo.CreateStudent(ctx, Student{
		Name:      ns.Name,
		StudentID: ns.StudentID,
		Email:     ns.Email,
		GroupID:   ns.GroupID,
		CreatedAt: now,
	})
}

func (svc *Service) QueryAllStudents(ctx context.Context) ([]Student, error) {
	return svc.repo.QueryAllStudents(ctx)
}

func (svc *Service) QueryStudentsByGroup(ctx context.Context, groupIDs ...int) ([]Student, error) {
	if len(groupIDs) == 0 {
		return []Student{}, nil
	}
	return svc.repo.QueryStudentsByGroupID(ctx, groupIDs...)
}

// QueryStudentsBySubject returns the derived enrollment of a Subject,
// optionally narrowed to the given groups.
func (svc *Service) QueryStudentsBySubject(ctx context.Context, subjectID int, groupIDs ...int) ([]Student, error) {
	return svc.repo.QueryStudentsBySubjectID(ctx, subjectID, groupIDs...)
}

func (svc *Service) GetStudentByID(ctx context.Context, id int) (Student, error) {
	return svc.repo.GetStudentByID(ctx, id)
}

func (svc *Service) GetStudentByUserID(ctx context.Context, userID string) (Student, error) {
	return svc.repo.GetStudentByUserID(ctx, userID)
}

func (svc *Service) UpdateStudent(ctx context.Context, id int, us UpdateStudent) (Student, error) {
	if us.GroupID != 0 {
		if _, err := svc.repo.GetGroupByID(ctx, us.GroupID); err != nil {
			return Student{}, err
		}
	}
	return svc.repo.UpdateStudent(ctx, Student{
		ID:        id,
		Name:      us.Name,
		StudentID: us.StudentID,
		Email:     us.Email,
		GroupID:   us.GroupID,
	})
}

func (svc *Service) DeleteStudents(ctx context.Context, ids ...int) error {
	return svc.repo.DeleteStudentsByID(ctx, ids...)
}

// RegisterStudent creates the account and links it to the roster entry
// matching the card number. The link is permanent: a second registration for
// the same card number fails with ErrAlreadyLinked.
func (svc *Service) RegisterStudent(ctx context.Context, sr StudentRegistration) (Student, user.User, error) {
	std, err := svc.repo.GetStudentByCode(ctx, sr.StudentID)
	if err != nil {
		return Student{}, user.User{}, err
	}
	if std.HasAccount() {
		return Student{}, user.User{}, ErrAlreadyLinked
	}

	usr, err := svc.usrSvc.Create(ctx, user.NewUser{
		Name:            std.Name,
		Username:        sr.Username,
		Email:           sr.Email,
		Password:        sr.Password,
		PasswordConfirm: sr.PasswordConfirm,
	})
	if err != nil {
		return Student{}, user.User{}, errors.Wrap(err, "creating account")
	}

	std, err = svc.repo.LinkStudentUser(ctx, std.ID, usr.ID, sr.Email)
	if err != nil {
		return Student{}, user.User{}, errors.Wrap(err, "linking account")
	}
	return std, usr, nil
}
