package access_test

import (
	"context"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/atomi7e/att-system-pet/core/access"
	"github.com/atomi7e/att-system-pet/core/attendance"
	"github.com/atomi7e/att-system-pet/core/school"
	"github.com/atomi7e/att-system-pet/core/teacher"
	"github.com/atomi7e/att-system-pet/core/user"
	emailsvc "github.com/atomi7e/att-system-pet/services/email"
	dummydb "github.com/atomi7e/att-system-pet/storage/database/dummy"
)

type fixture struct {
	usrSvc     *user.Service
	schoolSvc  *school.Service
	teacherSvc *teacher.Service
	svc        *access.Service

	math    school.Subject
	physics school.Subject
	history school.Subject
	grpA    school.Group
	grpB    school.Group
	alice   school.Student
	carol   school.Student

	admin user.User
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()

	db, err := dummydb.Open()
	require.NoError(t, err)
	mailSvc := emailsvc.NewConsoleServiceMock()
	usrSvc := user.NewService(dummydb.NewUserRepository(db), mailSvc)
	schoolSvc := school.NewService(dummydb.NewSchoolRepository(db), usrSvc)
	teacherSvc := teacher.NewService(dummydb.NewTeacherRepository(db), usrSvc, mailSvc)

	f := &fixture{
		usrSvc:     usrSvc,
		schoolSvc:  schoolSvc,
		teacherSvc: teacherSvc,
		svc:        access.NewService(schoolSvc, teacherSvc),
	}

	f.math, err = schoolSvc.CreateSubject(ctx, school.NewSubject{Name: "Mathematics", Code: "MATH101"})
	require.NoError(t, err)
	f.physics, err = schoolSvc.CreateSubject(ctx, school.NewSubject{Name: "Physics", Code: "PHYS101"})
	require.NoError(t, err)
	f.history, err = schoolSvc.CreateSubject(ctx, school.NewSubject{Name: "History", Code: "HIST101"})
	require.NoError(t, err)

	f.grpA, err = schoolSvc.CreateGroup(ctx, school.NewGroup{Code: "cs-2301", SubjectIDs: []int{f.math.ID, f.physics.ID}})
	require.NoError(t, err)
	f.grpB, err = schoolSvc.CreateGroup(ctx, school.NewGroup{Code: "cs-2302", SubjectIDs: []int{f.math.ID}})
	require.NoError(t, err)

	f.alice, err = schoolSvc.CreateStudent(ctx, school.NewStudent{Name: "Alice", StudentID: "S001", GroupID: f.grpA.ID})
	require.NoError(t, err)
	f.carol, err = schoolSvc.CreateStudent(ctx, school.NewStudent{Name: "Carol", StudentID: "S003", GroupID: f.grpB.ID})
	require.NoError(t, err)

	f.admin, err = usrSvc.Create(ctx, user.NewUser{
		Name: "Admin", Username: "admin", Email: "admin@test.cd",
		Password: "Str0ngPwd!", PasswordConfirm: "Str0ngPwd!",
		Roles: []string{user.RoleAdmin},
	})
	require.NoError(t, err)
	return f
}

// newTeacher registers a teacher and optionally approves and assigns them.
func (f *fixture) newTeacher(t *testing.T, uname string, approve bool, subjectIDs, groupIDs []int) access.Principal {
	t.Helper()
	ctx := context.Background()

	tch, usr, err := f.teacherSvc.Register(ctx, teacher.Registration{
		Name: "Teacher " + uname, Username: uname, Email: uname + "@test.cd",
		Password: "Str0ngPwd!", PasswordConfirm: "Str0ngPwd!",
	})
	require.NoError(t, err)
	if approve {
		tch, err = f.teacherSvc.Approve(ctx, tch.ID, f.admin)
		require.NoError(t, err)
	}
	if subjectIDs != nil || groupIDs != nil {
		tch, err = f.teacherSvc.Assign(ctx, tch.ID, teacher.Assignment{SubjectIDs: subjectIDs, GroupIDs: groupIDs})
		require.NoError(t, err)
	}
	return access.Principal{User: usr, Teacher: &tch}
}

func (f *fixture) studentPrincipal(t *testing.T, stud school.Student) access.Principal {
	t.Helper()
	usr, err := f.usrSvc.Create(context.Background(), user.NewUser{
		Name: stud.Name, Username: stud.StudentID, Email: stud.StudentID + "@test.cd",
		Password: "Str0ngPwd!", PasswordConfirm: "Str0ngPwd!",
	})
	require.NoError(t, err)
	return access.Principal{User: usr, Student: &stud}
}

func TestService_Resolve(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	t.Run("plain user", func(t *testing.T) {
		p, err := f.svc.Resolve(ctx, f.admin)
		require.NoError(t, err)
		assert.Nil(t, p.Student)
		assert.Nil(t, p.Teacher)
		assert.True(t, p.IsAdmin())
	})

	t.Run("linked student", func(t *testing.T) {
		stud, usr, err := f.schoolSvc.RegisterStudent(ctx, school.StudentRegistration{
			Username: "alice01", StudentID: f.alice.StudentID, Email: "alice@test.cd",
			Password: "Str0ngPwd!", PasswordConfirm: "Str0ngPwd!",
		})
		require.NoError(t, err)

		p, err := f.svc.Resolve(ctx, usr)
		require.NoError(t, err)
		require.NotNil(t, p.Student)
		assert.Equal(t, stud.ID, p.Student.ID)
		assert.True(t, p.IsStudent())
		assert.False(t, p.IsTeacher())
	})

	t.Run("registered teacher", func(t *testing.T) {
		tp := f.newTeacher(t, "pending", false, nil, nil)
		p, err := f.svc.Resolve(ctx, tp.User)
		require.NoError(t, err)
		require.NotNil(t, p.Teacher)
		assert.False(t, p.IsTeacher()) // pending profiles grant nothing
	})
}

func TestService_RecordScope(t *testing.T) {
	f := newFixture(t)

	t.Run("admin sees everything", func(t *testing.T) {
		scope, err := f.svc.RecordScope(access.Principal{User: f.admin})
		require.NoError(t, err)
		assert.Equal(t, attendance.Scope{}, scope)
	})

	t.Run("teacher gets subjects and groups", func(t *testing.T) {
		p := f.newTeacher(t, "assigned", true, []int{f.math.ID}, []int{f.grpA.ID})
		scope, err := f.svc.RecordScope(p)
		require.NoError(t, err)
		assert.Equal(t, []int{f.math.ID}, scope.SubjectIDs)
		assert.Equal(t, []int{f.grpA.ID}, scope.GroupIDs)
		assert.False(t, scope.Empty)
	})

	t.Run("teacher without subjects sees nothing", func(t *testing.T) {
		p := f.newTeacher(t, "idle", true, nil, nil)
		scope, err := f.svc.RecordScope(p)
		require.NoError(t, err)
		assert.True(t, scope.Empty)
	})

	t.Run("pending teacher is denied", func(t *testing.T) {
		p := f.newTeacher(t, "waiting", false, nil, nil)
		_, err := f.svc.RecordScope(p)
		assert.Equal(t, access.ErrDenied, errors.Cause(err))
	})

	t.Run("student pinned to own records", func(t *testing.T) {
		p := f.studentPrincipal(t, f.alice)
		scope, err := f.svc.RecordScope(p)
		require.NoError(t, err)
		assert.Equal(t, []int{f.alice.ID}, scope.StudentIDs)
	})

	t.Run("student link wins over teacher profile", func(t *testing.T) {
		tp := f.newTeacher(t, "moonlighter", true, []int{f.math.ID}, nil)
		tp.Student = &f.alice
		scope, err := f.svc.RecordScope(tp)
		require.NoError(t, err)
		assert.Equal(t, []int{f.alice.ID}, scope.StudentIDs)
		assert.Empty(t, scope.SubjectIDs)
	})

	t.Run("profileless user is denied", func(t *testing.T) {
		_, err := f.svc.RecordScope(access.Principal{User: user.User{}})
		assert.Equal(t, access.ErrDenied, errors.Cause(err))
	})
}

func TestService_VisibleSubjects(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	subjectIDs := func(subjects []school.Subject) []int {
		ids := make([]int, len(subjects))
		for i, s := range subjects {
			ids[i] = s.ID
		}
		return ids
	}

	t.Run("admin", func(t *testing.T) {
		subjects, err := f.svc.VisibleSubjects(ctx, access.Principal{User: f.admin})
		require.NoError(t, err)
		assert.Len(t, subjects, 3)
	})

	t.Run("teacher", func(t *testing.T) {
		p := f.newTeacher(t, "mathguy", true, []int{f.math.ID}, nil)
		subjects, err := f.svc.VisibleSubjects(ctx, p)
		require.NoError(t, err)
		assert.Equal(t, []int{f.math.ID}, subjectIDs(subjects))
	})

	t.Run("student sees the group's subjects", func(t *testing.T) {
		p := f.studentPrincipal(t, f.alice)
		subjects, err := f.svc.VisibleSubjects(ctx, p)
		require.NoError(t, err)
		assert.ElementsMatch(t, []int{f.math.ID, f.physics.ID}, subjectIDs(subjects))
	})
}

func TestService_CheckSubject(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	tp := f.newTeacher(t, "checker", true, []int{f.math.ID}, nil)
	sp := f.studentPrincipal(t, f.carol)

	tests := []struct {
		name      string
		p         access.Principal
		subjectID int
		wantErr   error
	}{
		{name: "admin: any subject", p: access.Principal{User: f.admin}, subjectID: f.history.ID},
		{name: "teacher: assigned subject", p: tp, subjectID: f.math.ID},
		{name: "teacher: other subject", p: tp, subjectID: f.physics.ID, wantErr: access.ErrDenied},
		{name: "student: group subject", p: sp, subjectID: f.math.ID},
		{name: "student: other subject", p: sp, subjectID: f.physics.ID, wantErr: access.ErrDenied},
		{name: "unknown subject", p: access.Principal{User: f.admin}, subjectID: 666, wantErr: school.ErrSubjectNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			subj, err := f.svc.CheckSubject(ctx, tt.p, tt.subjectID)
			if tt.wantErr != nil {
				assert.Equal(t, tt.wantErr, errors.Cause(err))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.subjectID, subj.ID)
		})
	}
}

func TestService_CheckStudent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	grouped := f.newTeacher(t, "grpteacher", true, []int{f.math.ID}, []int{f.grpA.ID})
	ungrouped := f.newTeacher(t, "allgroups", true, []int{f.physics.ID}, nil)
	sp := f.studentPrincipal(t, f.alice)

	tests := []struct {
		name      string
		p         access.Principal
		studentID int
		wantErr   error
	}{
		{name: "admin: any student", p: access.Principal{User: f.admin}, studentID: f.carol.ID},
		{name: "teacher: student of assigned group", p: grouped, studentID: f.alice.ID},
		{name: "teacher: student outside group scope", p: grouped, studentID: f.carol.ID, wantErr: access.ErrDenied},
		{name: "teacher without group narrowing: subject's student", p: ungrouped, studentID: f.alice.ID},
		{name: "teacher without group narrowing: unrelated student", p: ungrouped, studentID: f.carol.ID, wantErr: access.ErrDenied},
		{name: "student: self", p: sp, studentID: f.alice.ID},
		{name: "student: someone else", p: sp, studentID: f.carol.ID, wantErr: access.ErrDenied},
		{name: "unknown student", p: access.Principal{User: f.admin}, studentID: 666, wantErr: school.ErrStudentNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			std, err := f.svc.CheckStudent(ctx, tt.p, tt.studentID)
			if tt.wantErr != nil {
				assert.Equal(t, tt.wantErr, errors.Cause(err))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.studentID, std.ID)
		})
	}
}

func TestService_CheckMarker(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	tp := f.newTeacher(t, "marker", true, []int{f.math.ID}, nil)
	sp := f.studentPrincipal(t, f.alice)

	tests := []struct {
		name      string
		p         access.Principal
		subjectID int
		wantErr   error
	}{
		{name: "admin marks anything", p: access.Principal{User: f.admin}, subjectID: f.history.ID},
		{name: "teacher marks assigned subject", p: tp, subjectID: f.math.ID},
		{name: "teacher denied on other subject", p: tp, subjectID: f.physics.ID, wantErr: access.ErrDenied},
		{name: "student never marks", p: sp, subjectID: f.math.ID, wantErr: access.ErrDenied},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.svc.CheckMarker(ctx, tt.p, tt.subjectID)
			if tt.wantErr != nil {
				assert.Equal(t, tt.wantErr, errors.Cause(err))
				return
			}
			assert.NoError(t, err)
		})
	}
}

func TestService_CheckGroup(t *testing.T) {
	f := newFixture(t)
	scoped := f.newTeacher(t, "scoped", true, []int{f.math.ID}, []int{f.grpA.ID})
	free := f.newTeacher(t, "free", true, []int{f.math.ID}, nil)

	tests := []struct {
		name    string
		p       access.Principal
		groupID int
		wantErr error
	}{
		{name: "admin passes any group", p: access.Principal{User: f.admin}, groupID: f.grpB.ID},
		{name: "teacher passes assigned group", p: scoped, groupID: f.grpA.ID},
		{name: "teacher denied on other group", p: scoped, groupID: f.grpB.ID, wantErr: access.ErrDenied},
		{name: "teacher without narrowing passes", p: free, groupID: f.grpB.ID},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := f.svc.CheckGroup(tt.p, tt.groupID)
			if tt.wantErr != nil {
				assert.Equal(t, tt.wantErr, errors.Cause(err))
				return
			}
			assert.NoError(t, err)
		})
	}
}

func TestService_CheckRecord(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	grouped := f.newTeacher(t, "grouped", true, []int{f.math.ID}, []int{f.grpA.ID})
	ungrouped := f.newTeacher(t, "ungrouped", true, []int{f.math.ID}, nil)
	sp := f.studentPrincipal(t, f.alice)

	tests := []struct {
		name      string
		p         access.Principal
		subjectID int
		studentID int
		wantErr   error
	}{
		{name: "admin", p: access.Principal{User: f.admin}, subjectID: f.history.ID, studentID: f.carol.ID},
		{name: "teacher: in scope", p: grouped, subjectID: f.math.ID, studentID: f.alice.ID},
		{name: "teacher: student outside group scope", p: grouped, subjectID: f.math.ID, studentID: f.carol.ID, wantErr: access.ErrDenied},
		{name: "teacher without group narrowing sees all groups", p: ungrouped, subjectID: f.math.ID, studentID: f.carol.ID},
		{name: "teacher: subject not assigned", p: grouped, subjectID: f.physics.ID, studentID: f.alice.ID, wantErr: access.ErrDenied},
		{name: "student: own record", p: sp, subjectID: f.math.ID, studentID: f.alice.ID},
		{name: "student: someone else's record", p: sp, subjectID: f.math.ID, studentID: f.carol.ID, wantErr: access.ErrDenied},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := f.svc.CheckRecord(ctx, tt.p, tt.subjectID, tt.studentID)
			if tt.wantErr != nil {
				assert.Equal(t, tt.wantErr, errors.Cause(err))
				return
			}
			assert.NoError(t, err)
		})
	}
}

func TestService_VisibleGroups(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	t.Run("admin sees all subject groups", func(t *testing.T) {
		groups, err := f.svc.VisibleGroups(ctx, access.Principal{User: f.admin}, f.math.ID)
		require.NoError(t, err)
		assert.Len(t, groups, 2)
	})

	t.Run("group-scoped teacher is narrowed", func(t *testing.T) {
		p := f.newTeacher(t, "narrow", true, []int{f.math.ID}, []int{f.grpB.ID})
		groups, err := f.svc.VisibleGroups(ctx, p, f.math.ID)
		require.NoError(t, err)
		require.Len(t, groups, 1)
		assert.Equal(t, f.grpB.ID, groups[0].ID)
	})
}

func TestService_VisibleStudents(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	p := f.newTeacher(t, "roster", true, []int{f.math.ID}, []int{f.grpB.ID})
	students, err := f.svc.VisibleStudents(ctx, p, f.math.ID)
	require.NoError(t, err)
	require.Len(t, students, 1)
	assert.Equal(t, f.carol.ID, students[0].ID)
}
