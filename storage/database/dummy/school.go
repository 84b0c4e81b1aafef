package dummydb

import (
	"context"
	"sort"
	"strings"
	"time"

	"github.com/atomi7e/att-system-pet/core/school"
)

type schoolRepository struct {
	db         *schoolTables
	attendance *attendanceTable
}

var _ school.Repository = (*schoolRepository)(nil) // interface compliance check

func NewSchoolRepository(db *DB) *schoolRepository {
	return &schoolRepository{db: db.school, attendance: db.attendance}
}

func (repo *schoolRepository) subjectStudentCount(subjectID int) int {
	var count int
	for _, std := range repo.db.students {
		grp, ok := repo.db.groups[std.GroupID]
		if ok && containsInt(grp.SubjectIDs, subjectID) {
			count++
		}
	}
	return count
}

func (repo *schoolRepository) groupStudentCount(groupID int) int {
	var count int
	for _, std := range repo.db.students {
		if std.GroupID == groupID {
			count++
		}
	}
	return count
}

func (repo *schoolRepository) getSubject(id int) (school.Subject, bool) {
	sub, ok := repo.db.subjects[id]
	if !ok {
		return school.Subject{}, false
	}
	s := *sub
	s.StudentCount = repo.subjectStudentCount(id)
	return s, true
}

func (repo *schoolRepository) getGroup(id int) (school.Group, bool) {
	grp, ok := repo.db.groups[id]
	if !ok {
		return school.Group{}, false
	}
	g := *grp
	g.StudentCount = repo.groupStudentCount(id)
	return g, true
}

func (repo *schoolRepository) getStudent(id int) (school.Student, bool) {
	std, ok := repo.db.students[id]
	if !ok {
		return school.Student{}, false
	}
	s := *std
	if grp, ok := repo.db.groups[s.GroupID]; ok {
		s.GroupCode = grp.Code
	}
	return s, true
}

// Subjects

func (repo *schoolRepository) CheckSubjectCodeUniqueness(ctx context.Context, code string, excluded ...school.Subject) error {
	repo.db.RLock()
	defer repo.db.RUnlock()

	for _, sub := range repo.db.subjects {
		if strings.EqualFold(sub.Code, code) && !subjectExcluded(*sub, excluded) {
			return school.ErrSubjectCodeExists
		}
	}
	return nil
}

func (repo *schoolRepository) CreateSubject(ctx context.Context, sub school.Subject) (school.Subject, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	repo.db.subjectPK++
	sub.ID = repo.db.subjectPK
	sub.CreatedAt = time.Now().UTC()
	repo.db.subjects[sub.ID] = &sub
	return sub, nil
}

func (repo *schoolRepository) QueryAllSubjects(ctx context.Context) ([]school.Subject, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	subjects := make([]school.Subject, 0, len(repo.db.subjects))
	for id := range repo.db.subjects {
		sub, _ := repo.getSubject(id)
		subjects = append(subjects, sub)
	}
	sort.Slice(subjects, func(i, j int) bool { return subjects[i].Code < subjects[j].Code })
	return subjects, nil
}

func (repo *schoolRepository) QuerySubjectsByID(ctx context.Context, ids ...int) ([]school.Subject, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	subjects := make([]school.Subject, 0, len(ids))
	for _, id := range ids {
		if sub, ok := repo.getSubject(id); ok {
			subjects = append(subjects, sub)
		}
	}
	sort.Slice(subjects, func(i, j int) bool { return subjects[i].Code < subjects[j].Code })
	return subjects, nil
}

func (repo *schoolRepository) GetSubjectByID(ctx context.Context, id int) (school.Subject, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	if sub, ok := repo.getSubject(id); ok {
		return sub, nil
	}
	return school.Subject{}, school.ErrSubjectNotFound
}

func (repo *schoolRepository) UpdateSubject(ctx context.Context, sub school.Subject) (school.Subject, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	orig, ok := repo.db.subjects[sub.ID]
	if !ok {
		return school.Subject{}, school.ErrSubjectNotFound
	}
	if sub.Name != "" {
		orig.Name = sub.Name
	}
	if sub.Code != "" {
		orig.Code = sub.Code
	}
	if sub.Description != "" {
		orig.Description = sub.Description
	}
	res, _ := repo.getSubject(sub.ID)
	return res, nil
}

func (repo *schoolRepository) DeleteSubjectsByID(ctx context.Context, ids ...int) error {
	repo.db.Lock()
	defer repo.db.Unlock()

	for _, id := range ids {
		delete(repo.db.subjects, id)
		for _, grp := range repo.db.groups {
			grp.SubjectIDs = removeInt(grp.SubjectIDs, id)
		}
	}
	return nil
}

// Groups

func (repo *schoolRepository) CheckGroupCodeUniqueness(ctx context.Context, code string, excluded ...school.Group) error {
	repo.db.RLock()
	defer repo.db.RUnlock()

	for _, grp := range repo.db.groups {
		if strings.EqualFold(grp.Code, code) && !groupExcluded(*grp, excluded) {
			return school.ErrGroupCodeExists
		}
	}
	return nil
}

func (repo *schoolRepository) CreateGroup(ctx context.Context, grp school.Group) (school.Group, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	repo.db.groupPK++
	grp.ID = repo.db.groupPK
	grp.CreatedAt = time.Now().UTC()
	if grp.SubjectIDs == nil {
		grp.SubjectIDs = []int{}
	}
	repo.db.groups[grp.ID] = &grp
	return grp, nil
}

func (repo *schoolRepository) QueryAllGroups(ctx context.Context) ([]school.Group, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	groups := make([]school.Group, 0, len(repo.db.groups))
	for id := range repo.db.groups {
		grp, _ := repo.getGroup(id)
		groups = append(groups, grp)
	}
	sort.Slice(groups, func(i, j int) bool { return groups[i].Code < groups[j].Code })
	return groups, nil
}

func (repo *schoolRepository) QueryGroupsByID(ctx context.Context, ids ...int) ([]school.Group, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	groups := make([]school.Group, 0, len(ids))
	for _, id := range ids {
		if grp, ok := repo.getGroup(id); ok {
			groups = append(groups, grp)
		}
	}
	sort.Slice(groups, func(i, j int) bool { return groups[i].Code < groups[j].Code })
	return groups, nil
}

func (repo *schoolRepository) QueryGroupsBySubjectID(ctx context.Context, subjectID int) ([]school.Group, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	var groups []school.Group
	for id, grp := range repo.db.groups {
		if containsInt(grp.SubjectIDs, subjectID) {
			g, _ := repo.getGroup(id)
			groups = append(groups, g)
		}
	}
	sort.Slice(groups, func(i, j int) bool { return groups[i].Code < groups[j].Code })
	return groups, nil
}

func (repo *schoolRepository) GetGroupByID(ctx context.Context, id int) (school.Group, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	if grp, ok := repo.getGroup(id); ok {
		return grp, nil
	}
	return school.Group{}, school.ErrGroupNotFound
}

func (repo *schoolRepository) UpdateGroup(ctx context.Context, grp school.Group) (school.Group, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	orig, ok := repo.db.groups[grp.ID]
	if !ok {
		return school.Group{}, school.ErrGroupNotFound
	}
	if grp.Code != "" {
		orig.Code = grp.Code
	}
	if grp.Name != "" {
		orig.Name = grp.Name
	}
	if grp.SubjectIDs != nil {
		orig.SubjectIDs = grp.SubjectIDs
	}
	res, _ := repo.getGroup(grp.ID)
	return res, nil
}

func (repo *schoolRepository) DeleteGroupsByID(ctx context.Context, ids ...int) error {
	repo.db.Lock()
	var studentIDs []int
	for _, id := range ids {
		delete(repo.db.groups, id)
		// students are exclusively owned by their group
		for sid, std := range repo.db.students {
			if std.GroupID == id {
				delete(repo.db.students, sid)
				studentIDs = append(studentIDs, sid)
			}
		}
	}
	repo.db.Unlock()

	repo.cascadeAttendance(studentIDs...)
	return nil
}

// Students

func (repo *schoolRepository) CheckStudentCodeUniqueness(ctx context.Context, code string, excluded ...school.Student) error {
	repo.db.RLock()
	defer repo.db.RUnlock()

	for _, std := range repo.db.students {
		if strings.EqualFold(std.StudentID, code) && !studentExcluded(*std, excluded) {
			return school.ErrStudentIDExists
		}
	}
	return nil
}

func (repo *schoolRepository) CreateStudent(ctx context.Context, std school.Student) (school.Student, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	repo.db.studentPK++
	std.ID = repo.db.studentPK
	std.CreatedAt = time.Now().UTC()
	repo.db.students[std.ID] = &std
	res, _ := repo.getStudent(std.ID)
	return res, nil
}

func (repo *schoolRepository) QueryAllStudents(ctx context.Context) ([]school.Student, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	students := make([]school.Student, 0, len(repo.db.students))
	for id := range repo.db.students {
		std, _ := repo.getStudent(id)
		students = append(students, std)
	}
	sortStudents(students)
	return students, nil
}

func (repo *schoolRepository) QueryStudentsByGroupID(ctx context.Context, groupIDs ...int) ([]school.Student, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	var students []school.Student
	for id, std := range repo.db.students {
		if containsInt(groupIDs, std.GroupID) {
			s, _ := repo.getStudent(id)
			students = append(students, s)
		}
	}
	sortStudents(students)
	return students, nil
}

func (repo *schoolRepository) QueryStudentsBySubjectID(ctx context.Context, subjectID int, groupIDs ...int) ([]school.Student, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	var students []school.Student
	for id, std := range repo.db.students {
		grp, ok := repo.db.groups[std.GroupID]
		if !ok || !containsInt(grp.SubjectIDs, subjectID) {
			continue
		}
		if len(groupIDs) > 0 && !containsInt(groupIDs, std.GroupID) {
			continue
		}
		s, _ := repo.getStudent(id)
		students = append(students, s)
	}
	sortStudents(students)
	return students, nil
}

func (repo *schoolRepository) GetStudentByID(ctx context.Context, id int) (school.Student, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	if std, ok := repo.getStudent(id); ok {
		return std, nil
	}
	return school.Student{}, school.ErrStudentNotFound
}

func (repo *schoolRepository) GetStudentByCode(ctx context.Context, studentID string) (school.Student, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	for id, std := range repo.db.students {
		if strings.EqualFold(std.StudentID, studentID) {
			s, _ := repo.getStudent(id)
			return s, nil
		}
	}
	return school.Student{}, school.ErrStudentNotFound
}

func (repo *schoolRepository) GetStudentByUserID(ctx context.Context, userID string) (school.Student, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	for id, std := range repo.db.students {
		if std.UserID == userID {
			s, _ := repo.getStudent(id)
			return s, nil
		}
	}
	return school.Student{}, school.ErrStudentNotFound
}

func (repo *schoolRepository) LinkStudentUser(ctx context.Context, studentID int, userID, email string) (school.Student, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	std, ok := repo.db.students[studentID]
	if !ok {
		return school.Student{}, school.ErrStudentNotFound
	}
	if std.UserID != "" {
		return school.Student{}, school.ErrAlreadyLinked
	}
	std.UserID = userID
	if email != "" {
		std.Email = email
	}
	res, _ := repo.getStudent(studentID)
	return res, nil
}

func (repo *schoolRepository) UpdateStudent(ctx context.Context, std school.Student) (school.Student, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	orig, ok := repo.db.students[std.ID]
	if !ok {
		return school.Student{}, school.ErrStudentNotFound
	}
	if std.Name != "" {
		orig.Name = std.Name
	}
	if std.StudentID != "" {
		orig.StudentID = std.StudentID
	}
	if std.Email != "" {
		orig.Email = std.Email
	}
	if std.GroupID != 0 {
		orig.GroupID = std.GroupID
	}
	res, _ := repo.getStudent(std.ID)
	return res, nil
}

func (repo *schoolRepository) DeleteStudentsByID(ctx context.Context, ids ...int) error {
	repo.db.Lock()
	for _, id := range ids {
		delete(repo.db.students, id)
	}
	repo.db.Unlock()

	repo.cascadeAttendance(ids...)
	return nil
}

// cascadeAttendance drops the attendance rows of deleted students, matching
// the schema's student FK cascade.
func (repo *schoolRepository) cascadeAttendance(studentIDs ...int) {
	if len(studentIDs) == 0 {
		return
	}
	repo.attendance.Lock()
	defer repo.attendance.Unlock()
	for id, att := range repo.attendance.table {
		for _, sid := range studentIDs {
			if att.StudentID == sid {
				delete(repo.attendance.table, id)
				break
			}
		}
	}
}

func sortStudents(students []school.Student) {
	sort.Slice(students, func(i, j int) bool { return students[i].Name < students[j].Name })
}

func subjectExcluded(sub school.Subject, excluded []school.Subject) bool {
	for _, e := range excluded {
		if e.ID == sub.ID {
			return true
		}
	}
	return false
}

func groupExcluded(grp school.Group, excluded []school.Group) bool {
	for _, e := range excluded {
		if e.ID == grp.ID {
			return true
		}
	}
	return false
}

func studentExcluded(std school.Student, excluded []school.Student) bool {
	for _, e := range excluded {
		if e.ID == std.ID {
			return true
		}
	}
	return false
}

func containsInt(haystack []int, needle int) bool {
	for _, v := range haystack {
		if v == needle {
			return true
		}
	}
	return false
}

func removeInt(s []int, v int) []int {
	out := s[:0]
	for _, x := range s {
		if x != v {
			out = append(out, x)
		}
	}
	return out
}
