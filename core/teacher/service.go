package teacher

import (
	"context"
	"fmt"
	"net/mail"
	"time"

	"github.com/pkg/errors"

	"github.com/atomi7e/att-system-pet/core"
	"github.com/atomi7e/att-system-pet/core/user"
)

var (
	// errors
	ErrNotFound        = errors.New("teacher not found")
	ErrAlreadyReviewed = errors.New("this teacher registration has already been processed")
)

type (
	Repository interface {
		CreateTeacher(ctx context.Context, tch Teacher) (Teacher, error)
		QueryAllTeachers(ctx context.Context) ([]Teacher, error)
		QueryTeachersByStatus(ctx context.Context, status string) ([]Teacher, error)
		GetTeacherByID(ctx context.Context, id int) (Teacher, error)
		GetTeacherByUserID(ctx context.Context, userID string) (Teacher, error)
		// ReviewTeacher transitions pending -> status; it fails with
		// ErrAlreadyReviewed when the profile is no longer pending, leaving
		// the original review untouched.
		ReviewTeacher(ctx context.Context, id int, status, reviewedBy, reason string, reviewedAt time.Time) (Teacher, error)
		SetTeacherAssignments(ctx context.Context, id int, subjectIDs, groupIDs []int) (Teacher, error)
		DeleteTeachersByID(ctx context.Context, ids ...int) error
	}

	Service struct {
		repo    Repository
		usrSvc  *user.Service
		mailSvc core.EmailService
	}
)

func NewService(repo Repository, usrSvc *user.Service, mailSvc core.EmailService) *Service {
	return &Service{repo: repo, usrSvc: usrSvc, mailSvc: mailSvc}
}

// Register creates the account and a pending profile. No subjects or groups
// are assigned here; an approved teacher with no assignments simply has an
// empty scope.
func (svc *Service) Register(ctx context.Context, reg Registration) (Teacher, user.User, error) {
	usr, err := svc.usrSvc.Create(ctx, user.NewUser{
		Name:            reg.Name,
		Username:        reg.Username,
		Email:           reg.Email,
		Password:        reg.Password,
		PasswordConfirm: reg.PasswordConfirm,
	})
	if err != nil {
		return Teacher{}, user.User{}, errors.Wrap(err, "creating account")
	}

	tch, err := svc.repo.CreateTeacher(ctx, Teacher{
		UserID:      usr.ID,
		Name:        usr.Name,
		Username:    usr.Username,
		Status:      StatusPending,
		Phone:       reg.Phone,
		Department:  reg.Department,
		SubmittedAt: time.Now().UTC(),
	})
	if err != nil {
		return Teacher{}, user.User{}, errors.Wrap(err, "creating teacher profile")
	}

	svc.mailSvc.SendMessages(&core.EmailMessage{
		To:      []mail.Address{{Name: usr.Name, Address: usr.Email}},
		Subject: "Teacher registration received",
		BodyStr: fmt.Sprintf(
			"Hello %s,\n\nYour teacher registration has been submitted and is pending review. "+
				"You will be notified once it has been processed.", usr.Name),
	})
	return tch, usr, nil
}

func (svc *Service) QueryAll(ctx context.Context) ([]Teacher, error) {
	return svc.repo.QueryAllTeachers(ctx)
}

func (svc *Service) QueryByStatus(ctx context.Context, status string) ([]Teacher, error) {
	return svc.repo.QueryTeachersByStatus(ctx, status)
}

func (svc *Service) GetByID(ctx context.Context, id int) (Teacher, error) {
	return svc.repo.GetTeacherByID(ctx, id)
}

func (svc *Service) GetByUserID(ctx context.Context, userID string) (Teacher, error) {
	return svc.repo.GetTeacherByUserID(ctx, userID)
}

// Approve transitions a pending registration to approved. The transition is
// one-way; a second review fails with ErrAlreadyReviewed.
func (svc *Service) Approve(ctx context.Context, id int, reviewer user.User) (Teacher, error) {
	tch, err := svc.repo.ReviewTeacher(ctx, id, StatusApproved, reviewer.ID, "", time.Now().UTC())
	if err != nil {
		return Teacher{}, err
	}
	svc.notifyReviewed(ctx, tch)
	return tch, nil
}

// Reject transitions a pending registration to rejected, optionally recording
// a reason. One-way, like Approve.
func (svc *Service) Reject(ctx context.Context, id int, reviewer user.User, reason string) (Teacher, error) {
	tch, err := svc.repo.ReviewTeacher(ctx, id, StatusRejected, reviewer.ID, core.CleanString(reason), time.Now().UTC())
	if err != nil {
		return Teacher{}, err
	}
	svc.notifyReviewed(ctx, tch)
	return tch, nil
}

// Assign replaces the teacher's subject and group assignments.
func (svc *Service) Assign(ctx context.Context, id int, a Assignment) (Teacher, error) {
	return svc.repo.SetTeacherAssignments(ctx, id, a.SubjectIDs, a.GroupIDs)
}

func (svc *Service) Delete(ctx context.Context, ids ...int) error {
	return svc.repo.DeleteTeachersByID(ctx, ids...)
}

func (svc *Service) notifyReviewed(ctx context.Context, tch Teacher) {
	usr, err := svc.usrSvc.GetByID(ctx, tch.UserID)
	if err != nil {
		return
	}
	msg := &core.EmailMessage{
		To: []mail.Address{{Name: usr.Name, Address: usr.Email}},
	}
	if tch.IsApproved() {
		msg.Subject = "Teacher registration approved"
		msg.BodyStr = fmt.Sprintf("Hello %s,\n\nYour teacher registration has been approved. You can now log in and mark attendance.", usr.Name)
	} else {
		msg.Subject = "Teacher registration rejected"
		msg.BodyStr = fmt.Sprintf("Hello %s,\n\nYour teacher registration has been rejected.", usr.Name)
		if tch.RejectionReason != "" {
			msg.BodyStr += "\nReason: " + tch.RejectionReason
		}
	}
	svc.mailSvc.SendMessages(msg)
}
