package teacher_test

import (
	"context"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/atomi7e/att-system-pet/core/teacher"
	"github.com/atomi7e/att-system-pet/core/user"
	emailsvc "github.com/atomi7e/att-system-pet/services/email"
	dummydb "github.com/atomi7e/att-system-pet/storage/database/dummy"
)

func setup(t *testing.T) (*teacher.Service, user.User) {
	t.Helper()

	db, err := dummydb.Open()
	require.NoError(t, err)
	mailSvc := emailsvc.NewConsoleServiceMock()
	usrSvc := user.NewService(dummydb.NewUserRepository(db), mailSvc)
	svc := teacher.NewService(dummydb.NewTeacherRepository(db), usrSvc, mailSvc)

	admin, err := usrSvc.Create(context.Background(), user.NewUser{
		Name: "Admin", Username: "admin", Email: "admin@test.cd",
		Password: "Str0ngPwd!", PasswordConfirm: "Str0ngPwd!",
		Roles: []string{user.RoleAdmin},
	})
	require.NoError(t, err)
	return svc, admin
}

func register(t *testing.T, svc *teacher.Service, uname string) teacher.Teacher {
	t.Helper()
	tch, _, err := svc.Register(context.Background(), teacher.Registration{
		Name: "Teacher " + uname, Username: uname, Email: uname + "@test.cd",
		Phone: "+243 999 000 111", Department: "Sciences",
		Password: "Str0ngPwd!", PasswordConfirm: "Str0ngPwd!",
	})
	require.NoError(t, err)
	return tch
}

func TestService_Register(t *testing.T) {
	svc, _ := setup(t)

	tch := register(t, svc, "newguy")
	assert.NotZero(t, tch.ID)
	assert.Equal(t, teacher.StatusPending, tch.Status)
	assert.True(t, tch.IsPending())
	assert.False(t, tch.IsApproved())
	assert.NotEmpty(t, tch.UserID)
	assert.False(t, tch.SubmittedAt.IsZero())
	assert.Nil(t, tch.ReviewedAt)
	assert.Empty(t, tch.SubjectIDs)
	assert.Empty(t, tch.GroupIDs)
}

func TestService_Approve(t *testing.T) {
	svc, admin := setup(t)
	ctx := context.Background()

	tch := register(t, svc, "hopeful")

	approved, err := svc.Approve(ctx, tch.ID, admin)
	require.NoError(t, err)
	assert.Equal(t, teacher.StatusApproved, approved.Status)
	assert.Equal(t, admin.ID, approved.ReviewedBy)
	require.NotNil(t, approved.ReviewedAt)

	// the review is one-way; the first decision stands
	_, err = svc.Reject(ctx, tch.ID, admin, "changed my mind")
	assert.Equal(t, teacher.ErrAlreadyReviewed, errors.Cause(err))

	refreshed, err := svc.GetByID(ctx, tch.ID)
	require.NoError(t, err)
	assert.Equal(t, teacher.StatusApproved, refreshed.Status)
	assert.Equal(t, *approved.ReviewedAt, *refreshed.ReviewedAt)
}

func TestService_Reject(t *testing.T) {
	svc, admin := setup(t)
	ctx := context.Background()

	tch := register(t, svc, "unlucky")

	rejected, err := svc.Reject(ctx, tch.ID, admin, "  incomplete application  ")
	require.NoError(t, err)
	assert.Equal(t, teacher.StatusRejected, rejected.Status)
	assert.Equal(t, "incomplete application", rejected.RejectionReason)

	_, err = svc.Approve(ctx, tch.ID, admin)
	assert.Equal(t, teacher.ErrAlreadyReviewed, errors.Cause(err))
}

func TestService_Approve_notFound(t *testing.T) {
	svc, admin := setup(t)
	_, err := svc.Approve(context.Background(), 666, admin)
	assert.Equal(t, teacher.ErrNotFound, errors.Cause(err))
}

func TestService_Assign(t *testing.T) {
	svc, admin := setup(t)
	ctx := context.Background()

	tch := register(t, svc, "assignee")
	_, err := svc.Approve(ctx, tch.ID, admin)
	require.NoError(t, err)

	assigned, err := svc.Assign(ctx, tch.ID, teacher.Assignment{SubjectIDs: []int{1, 2}, GroupIDs: []int{3}})
	require.NoError(t, err)
	assert.Equal(t, []int{1, 2}, assigned.SubjectIDs)
	assert.Equal(t, []int{3}, assigned.GroupIDs)

	// a new assignment replaces the previous one
	assigned, err = svc.Assign(ctx, tch.ID, teacher.Assignment{SubjectIDs: []int{2}})
	require.NoError(t, err)
	assert.Equal(t, []int{2}, assigned.SubjectIDs)
	assert.Empty(t, assigned.GroupIDs)
}

func TestService_QueryByStatus(t *testing.T) {
	svc, admin := setup(t)
	ctx := context.Background()

	a := register(t, svc, "aaa")
	register(t, svc, "bbb")
	_, err := svc.Approve(ctx, a.ID, admin)
	require.NoError(t, err)

	pending, err := svc.QueryByStatus(ctx, teacher.StatusPending)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, "bbb", pending[0].Username)

	approved, err := svc.QueryByStatus(ctx, teacher.StatusApproved)
	require.NoError(t, err)
	require.Len(t, approved, 1)
	assert.Equal(t, "aaa", approved[0].Username)

	all, err := svc.QueryAll(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 2)
}

func TestRegistration_Validate(t *testing.T) {
	db, err := dummydb.Open()
	require.NoError(t, err)
	usrSvc := user.NewService(dummydb.NewUserRepository(db), emailsvc.NewConsoleServiceMock())

	tests := []struct {
		name    string
		reg     teacher.Registration
		wantErr bool
	}{
		{
			name: "ok",
			reg: teacher.Registration{
				Name: "T", Username: "teach", Email: "t@test.cd",
				Password: "Str0ngPwd!", PasswordConfirm: "Str0ngPwd!",
			},
		},
		{
			name: "password mismatch",
			reg: teacher.Registration{
				Name: "T", Username: "teach", Email: "t@test.cd",
				Password: "Str0ngPwd!", PasswordConfirm: "nope",
			},
			wantErr: true,
		},
		{
			name: "missing email",
			reg: teacher.Registration{
				Name: "T", Username: "teach",
				Password: "Str0ngPwd!", PasswordConfirm: "Str0ngPwd!",
			},
			wantErr: true,
		},
		{
			name: "short password",
			reg: teacher.Registration{
				Name: "T", Username: "teach", Email: "t@test.cd",
				Password: "short", PasswordConfirm: "short",
			},
			wantErr: true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.reg.Validate(usrSvc)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}
