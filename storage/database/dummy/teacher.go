package dummydb

import (
	"context"
	"sort"
	"time"

	"github.com/atomi7e/att-system-pet/core/teacher"
	"github.com/atomi7e/att-system-pet/core/user"
)

type teacherRepository struct {
	db    *teacherTable
	users *userTable
}

var _ teacher.Repository = (*teacherRepository)(nil) // interface compliance check

func NewTeacherRepository(db *DB) *teacherRepository {
	return &teacherRepository{db: db.teacher, users: db.user}
}

func (repo *teacherRepository) withUser(tch teacher.Teacher) teacher.Teacher {
	repo.users.RLock()
	defer repo.users.RUnlock()

	var usr *user.User
	if u, ok := repo.users.table[tch.UserID]; ok {
		usr = u
	}
	if usr != nil {
		tch.Name = usr.Name
		tch.Username = usr.Username
	}
	return tch
}

func (repo *teacherRepository) CreateTeacher(ctx context.Context, tch teacher.Teacher) (teacher.Teacher, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	repo.db.pk++
	tch.ID = repo.db.pk
	tch.Status = teacher.StatusPending
	tch.SubmittedAt = time.Now().UTC()
	if tch.SubjectIDs == nil {
		tch.SubjectIDs = []int{}
	}
	if tch.GroupIDs == nil {
		tch.GroupIDs = []int{}
	}
	repo.db.table[tch.ID] = &tch
	return repo.withUser(tch), nil
}

func (repo *teacherRepository) query() []teacher.Teacher {
	teachers := make([]teacher.Teacher, 0, len(repo.db.table))
	for _, tch := range repo.db.table {
		teachers = append(teachers, repo.withUser(*tch))
	}
	sort.Slice(teachers, func(i, j int) bool { return teachers[i].SubmittedAt.After(teachers[j].SubmittedAt) })
	return teachers
}

func (repo *teacherRepository) QueryAllTeachers(ctx context.Context) ([]teacher.Teacher, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()
	return repo.query(), nil
}

func (repo *teacherRepository) QueryTeachersByStatus(ctx context.Context, status string) ([]teacher.Teacher, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	var teachers []teacher.Teacher
	for _, tch := range repo.query() {
		if tch.Status == status {
			teachers = append(teachers, tch)
		}
	}
	return teachers, nil
}

func (repo *teacherRepository) GetTeacherByID(ctx context.Context, id int) (teacher.Teacher, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	if tch, ok := repo.db.table[id]; ok {
		return repo.withUser(*tch), nil
	}
	return teacher.Teacher{}, teacher.ErrNotFound
}

func (repo *teacherRepository) GetTeacherByUserID(ctx context.Context, userID string) (teacher.Teacher, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	for _, tch := range repo.db.table {
		if tch.UserID == userID {
			return repo.withUser(*tch), nil
		}
	}
	return teacher.Teacher{}, teacher.ErrNotFound
}

func (repo *teacherRepository) ReviewTeacher(ctx context.Context, id int, status, reviewedBy, reason string, reviewedAt time.Time) (teacher.Teacher, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	tch, ok := repo.db.table[id]
	if !ok {
		return teacher.Teacher{}, teacher.ErrNotFound
	}
	if tch.Status != teacher.StatusPending {
		return teacher.Teacher{}, teacher.ErrAlreadyReviewed
	}
	at := reviewedAt.UTC()
	tch.Status = status
	tch.ReviewedAt = &at
	tch.ReviewedBy = reviewedBy
	tch.RejectionReason = reason
	return repo.withUser(*tch), nil
}

func (repo *teacherRepository) SetTeacherAssignments(ctx context.Context, id int, subjectIDs, groupIDs []int) (teacher.Teacher, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	tch, ok := repo.db.table[id]
	if !ok {
		return teacher.Teacher{}, teacher.ErrNotFound
	}
	if subjectIDs == nil {
		subjectIDs = []int{}
	}
	if groupIDs == nil {
		groupIDs = []int{}
	}
	tch.SubjectIDs = subjectIDs
	tch.GroupIDs = groupIDs
	return repo.withUser(*tch), nil
}

func (repo *teacherRepository) DeleteTeachersByID(ctx context.Context, ids ...int) error {
	repo.db.Lock()
	defer repo.db.Unlock()
	for _, id := range ids {
		delete(repo.db.table, id)
	}
	return nil
}
