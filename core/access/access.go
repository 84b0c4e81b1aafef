// Package access resolves the caller's principal and narrows every query to
// what that principal may see. Admins see everything, approved teachers see
// their assigned subjects and groups, students see only themselves.
package access

import (
	"context"

	"github.com/pkg/errors"

	"github.com/atomi7e/att-system-pet/core/attendance"
	"github.com/atomi7e/att-system-pet/core/school"
	"github.com/atomi7e/att-system-pet/core/teacher"
	"github.com/atomi7e/att-system-pet/core/user"
)

var ErrDenied = errors.New("access denied")

// Principal is a user plus the optional profiles hanging off the account.
// A pending or rejected teacher profile grants no scope.
type Principal struct {
	User    user.User
	Student *school.Student
	Teacher *teacher.Teacher
}

func (p Principal) IsAdmin() bool { return p.User.IsAdmin() }

// IsTeacher reports an approved teacher profile. The student link wins when
// an account somehow carries both.
func (p Principal) IsTeacher() bool {
	return p.Teacher != nil && p.Student == nil && p.Teacher.IsApproved()
}

func (p Principal) IsStudent() bool { return p.Student != nil }

type Service struct {
	schoolSvc  *school.Service
	teacherSvc *teacher.Service
}

func NewService(schoolSvc *school.Service, teacherSvc *teacher.Service) *Service {
	return &Service{schoolSvc: schoolSvc, teacherSvc: teacherSvc}
}

// Resolve looks up the profiles linked to the account. Missing profiles are
// not an error; both lookups are optional.
func (svc *Service) Resolve(ctx context.Context, usr user.User) (Principal, error) {
	p := Principal{User: usr}

	stud, err := svc.schoolSvc.GetStudentByUserID(ctx, usr.ID)
	switch errors.Cause(err) {
	case nil:
		p.Student = &stud
	case school.ErrStudentNotFound:
	default:
		return Principal{}, err
	}

	tchr, err := svc.teacherSvc.GetByUserID(ctx, usr.ID)
	switch errors.Cause(err) {
	case nil:
		p.Teacher = &tchr
	case teacher.ErrNotFound:
	default:
		return Principal{}, err
	}
	return p, nil
}

// VisibleSubjects lists the subjects the principal may see.
func (svc *Service) VisibleSubjects(ctx context.Context, p Principal) ([]school.Subject, error) {
	switch {
	case p.IsAdmin():
		return svc.schoolSvc.QueryAllSubjects(ctx)
	case p.IsTeacher():
		return svc.schoolSvc.QuerySubjectsByID(ctx, p.Teacher.SubjectIDs...)
	case p.IsStudent():
		grp, err := svc.schoolSvc.GetGroupByID(ctx, p.Student.GroupID)
		if err != nil {
			return nil, err
		}
		return svc.schoolSvc.QuerySubjectsByID(ctx, grp.SubjectIDs...)
	}
	return nil, ErrDenied
}

// CheckSubject fails with ErrDenied unless the subject is in the principal's
// scope. The subject must exist either way.
func (svc *Service) CheckSubject(ctx context.Context, p Principal, subjectID int) (school.Subject, error) {
	subj, err := svc.schoolSvc.GetSubjectByID(ctx, subjectID)
	if err != nil {
		return school.Subject{}, err
	}
	switch {
	case p.IsAdmin():
		return subj, nil
	case p.IsTeacher():
		if containsInt(p.Teacher.SubjectIDs, subjectID) {
			return subj, nil
		}
	case p.IsStudent():
		grp, err := svc.schoolSvc.GetGroupByID(ctx, p.Student.GroupID)
		if err != nil {
			return school.Subject{}, err
		}
		if containsInt(grp.SubjectIDs, subjectID) {
			return subj, nil
		}
	}
	return school.Subject{}, ErrDenied
}

// GroupScope returns the group IDs that narrow queries for the principal: a
// teacher restricted to specific groups gets those, everyone else gets nil
// (no narrowing). A teacher with no group assignment sees all groups of
// their subjects.
func (svc *Service) GroupScope(p Principal) []int {
	if p.IsTeacher() && !p.IsAdmin() && len(p.Teacher.GroupIDs) > 0 {
		return p.Teacher.GroupIDs
	}
	return nil
}

// CheckGroup fails with ErrDenied when the principal's group assignment
// excludes the given group. Admins and teachers without group narrowing
// pass.
func (svc *Service) CheckGroup(p Principal, groupID int) error {
	scope := svc.GroupScope(p)
	if scope == nil || containsInt(scope, groupID) {
		return nil
	}
	return ErrDenied
}

// RecordScope derives the narrowing applied to attendance queries: admins
// see everything, teachers their assigned subjects and groups, students only
// their own records.
func (svc *Service) RecordScope(p Principal) (attendance.Scope, error) {
	switch {
	case p.IsAdmin():
		return attendance.Scope{}, nil
	case p.IsTeacher():
		if len(p.Teacher.SubjectIDs) == 0 {
			return attendance.Scope{Empty: true}, nil
		}
		return attendance.Scope{
			SubjectIDs: p.Teacher.SubjectIDs,
			GroupIDs:   svc.GroupScope(p),
		}, nil
	case p.IsStudent():
		return attendance.Scope{StudentIDs: []int{p.Student.ID}}, nil
	}
	return attendance.Scope{}, ErrDenied
}

// VisibleGroups lists the subject's groups, intersected with the teacher's
// group assignment when one exists.
func (svc *Service) VisibleGroups(ctx context.Context, p Principal, subjectID int) ([]school.Group, error) {
	if _, err := svc.CheckSubject(ctx, p, subjectID); err != nil {
		return nil, err
	}
	groups, err := svc.schoolSvc.QueryGroupsBySubject(ctx, subjectID)
	if err != nil {
		return nil, err
	}
	if scope := svc.GroupScope(p); scope != nil {
		narrowed := groups[:0]
		for _, grp := range groups {
			if containsInt(scope, grp.ID) {
				narrowed = append(narrowed, grp)
			}
		}
		groups = narrowed
	}
	return groups, nil
}

// VisibleStudents lists the subject's enrolled students within the
// principal's group scope.
func (svc *Service) VisibleStudents(ctx context.Context, p Principal, subjectID int) ([]school.Student, error) {
	if _, err := svc.CheckSubject(ctx, p, subjectID); err != nil {
		return nil, err
	}
	return svc.schoolSvc.QueryStudentsBySubject(ctx, subjectID, svc.GroupScope(p)...)
}

// CheckStudent fails with ErrDenied unless the student is in the principal's
// scope: admins always, teachers when the student's group is assigned to them
// (or attached to an assigned subject when no group narrowing applies),
// students only for themselves.
func (svc *Service) CheckStudent(ctx context.Context, p Principal, studentID int) (school.Student, error) {
	std, err := svc.schoolSvc.GetStudentByID(ctx, studentID)
	if err != nil {
		return school.Student{}, err
	}
	switch {
	case p.IsAdmin():
		return std, nil
	case p.IsTeacher():
		if scope := svc.GroupScope(p); scope != nil {
			if containsInt(scope, std.GroupID) {
				return std, nil
			}
			return school.Student{}, ErrDenied
		}
		grp, err := svc.schoolSvc.GetGroupByID(ctx, std.GroupID)
		if err != nil {
			return school.Student{}, err
		}
		for _, subID := range grp.SubjectIDs {
			if containsInt(p.Teacher.SubjectIDs, subID) {
				return std, nil
			}
		}
	case p.IsStudent():
		if p.Student.ID == studentID {
			return std, nil
		}
	}
	return school.Student{}, ErrDenied
}

// CheckMarker fails unless the principal may record attendance for the
// subject: admins and teachers assigned to it. Students never mark.
func (svc *Service) CheckMarker(ctx context.Context, p Principal, subjectID int) (school.Subject, error) {
	subj, err := svc.schoolSvc.GetSubjectByID(ctx, subjectID)
	if err != nil {
		return school.Subject{}, err
	}
	if p.IsAdmin() {
		return subj, nil
	}
	if p.IsTeacher() && containsInt(p.Teacher.SubjectIDs, subjectID) {
		return subj, nil
	}
	return school.Subject{}, ErrDenied
}

// CheckRecord fails with ErrDenied unless the principal may see a record of
// the given subject and student.
func (svc *Service) CheckRecord(ctx context.Context, p Principal, subjectID, studentID int) error {
	if p.IsAdmin() {
		return nil
	}
	if p.IsTeacher() {
		if !containsInt(p.Teacher.SubjectIDs, subjectID) {
			return ErrDenied
		}
		if scope := svc.GroupScope(p); scope != nil {
			stud, err := svc.schoolSvc.GetStudentByID(ctx, studentID)
			if err != nil {
				return err
			}
			if !containsInt(scope, stud.GroupID) {
				return ErrDenied
			}
		}
		return nil
	}
	if p.IsStudent() && p.Student.ID == studentID {
		return nil
	}
	return ErrDenied
}

func containsInt(haystack []int, needle int) bool {
	for _, v := range haystack {
		if v == needle {
			return true
		}
	}
	return false
}
