package pgrepos

import (
	"context"
	"database/sql"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/pkg/errors"

	"github.com/atomi7e/att-system-pet/core/school"
)

type subjectRow struct {
	ID           int       `db:"id"`
	Name         string    `db:"name"`
	Code         string    `db:"code"`
	Description  string    `db:"description"`
	StudentCount int       `db:"student_count"`
	CreatedAt    time.Time `db:"created_at"`
}

func (r subjectRow) subject() school.Subject {
	return school.Subject{
		ID:           r.ID,
		Name:         r.Name,
		Code:         r.Code,
		Description:  r.Description,
		StudentCount: r.StudentCount,
		CreatedAt:    r.CreatedAt,
	}
}

type groupRow struct {
	ID           int           `db:"id"`
	Code         string        `db:"code"`
	Name         string        `db:"name"`
	SubjectIDs   pq.Int64Array `db:"subject_ids"`
	StudentCount int           `db:"student_count"`
	CreatedAt    time.Time     `db:"created_at"`
}

func (r groupRow) group() school.Group {
	return school.Group{
		ID:           r.ID,
		Code:         r.Code,
		Name:         r.Name,
		SubjectIDs:   intSlice(r.SubjectIDs),
		StudentCount: r.StudentCount,
		CreatedAt:    r.CreatedAt,
	}
}

type studentRow struct {
	ID        int            `db:"id"`
	Name      string         `db:"name"`
	Code      string         `db:"student_code"`
	Email     string         `db:"email"`
	GroupID   int            `db:"group_id"`
	GroupCode string         `db:"group_code"`
	UserID    sql.NullString `db:"user_id"`
	CreatedAt time.Time      `db:"created_at"`
}

func (r studentRow) student() school.Student {
	return school.Student{
		ID:        r.ID,
		Name:      r.Name,
		StudentID: r.Code,
		Email:     r.Email,
		GroupID:   r.GroupID,
		GroupCode: r.GroupCode,
		UserID:    r.UserID.String,
		CreatedAt: r.CreatedAt,
	}
}

func intSlice(arr pq.Int64Array) []int {
	ints := make([]int, 0, len(arr))
	for _, v := range arr {
		ints = append(ints, int(v))
	}
	return ints
}

func int64Slice(ints []int) pq.Int64Array {
	arr := make(pq.Int64Array, 0, len(ints))
	for _, v := range ints {
		arr = append(arr, int64(v))
	}
	return arr
}

type schoolRepository struct {
	db *sqlx.DB
}

var _ school.Repository = (*schoolRepository)(nil) // interface compliance check

func NewSchoolRepository(db *sqlx.DB) *schoolRepository {
	return &schoolRepository{db: db}
}

// ------------------------------------------------------------------ subjects

const subjectCols = `
s.id, s.name, s.code, s.description, s.created_at,
(SELECT COUNT(*) FROM student st
   JOIN group_subject gs ON gs.group_id = st.group_id
 WHERE gs.subject_id = s.id) AS student_count`

func (repo schoolRepository) CheckSubjectCodeUniqueness(ctx context.Context, code string, excluded ...school.Subject) error {
	query := `SELECT EXISTS (SELECT 1 FROM subject WHERE LOWER(code) = LOWER($1)`
	args := []interface{}{code}
	if len(excluded) > 0 {
		ids := make([]int, 0, len(excluded))
		for _, sub := range excluded {
			ids = append(ids, sub.ID)
		}
		query += ` AND id <> ALL($2)`
		args = append(args, int64Slice(ids))
	}
	query += `)`

	var exists bool
	if err := repo.db.GetContext(ctx, &exists, query, args...); err != nil {
		return errors.Wrap(err, "checking subject code")
	}
	if exists {
		return school.ErrSubjectCodeExists
	}
	return nil
}

func (repo schoolRepository) CreateSubject(ctx context.Context, sub school.Subject) (school.Subject, error) {
	sub.CreatedAt = time.Now().UTC()
	query := `
INSERT INTO subject (name, code, description, created_at)
VALUES ($1, $2, $3, $4)
RETURNING id`
	err := repo.db.GetContext(ctx, &sub.ID, query, sub.Name, sub.Code, sub.Description, sub.CreatedAt)
	if err != nil {
		return school.Subject{}, errors.Wrap(err, "inserting subject")
	}
	return sub, nil
}

func (repo schoolRepository) querySubjects(ctx context.Context, where string, args ...interface{}) ([]school.Subject, error) {
	query := `SELECT ` + subjectCols + ` FROM subject s`
	if where != "" {
		query += ` WHERE ` + where
	}
	query += ` ORDER BY s.code`

	var rows []subjectRow
	if err := repo.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, errors.Wrap(err, "querying subjects")
	}
	subjects := make([]school.Subject, 0, len(rows))
	for _, r := range rows {
		subjects = append(subjects, r.subject())
	}
	return subjects, nil
}

func (repo schoolRepository) QueryAllSubjects(ctx context.Context) ([]school.Subject, error) {
	return repo.querySubjects(ctx, "")
}

func (repo schoolRepository) QuerySubjectsByID(ctx context.Context, ids ...int) ([]school.Subject, error) {
	if len(ids) == 0 {
		return []school.Subject{}, nil
	}
	return repo.querySubjects(ctx, `s.id = ANY($1)`, int64Slice(ids))
}

func (repo schoolRepository) GetSubjectByID(ctx context.Context, id int) (school.Subject, error) {
	var r subjectRow
	query := `SELECT ` + subjectCols + ` FROM subject s WHERE s.id = $1`
	if err := repo.db.GetContext(ctx, &r, query, id); err != nil {
		if err == sql.ErrNoRows {
			return school.Subject{}, school.ErrSubjectNotFound
		}
		return school.Subject{}, errors.Wrap(err, "getting subject")
	}
	return r.subject(), nil
}

func (repo schoolRepository) UpdateSubject(ctx context.Context, sub school.Subject) (school.Subject, error) {
	query := `
UPDATE subject
SET name        = COALESCE(NULLIF($2, ''), name),
    code        = COALESCE(NULLIF($3, ''), code),
    description = COALESCE($4, description)
WHERE id = $1`
	var desc interface{}
	if sub.Description != "" {
		desc = sub.Description
	}
	res, err := repo.db.ExecContext(ctx, query, sub.ID, sub.Name, sub.Code, desc)
	if err != nil {
		return school.Subject{}, errors.Wrap(err, "updating subject")
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return school.Subject{}, school.ErrSubjectNotFound
	}
	return repo.GetSubjectByID(ctx, sub.ID)
}

func (repo schoolRepository) DeleteSubjectsByID(ctx context.Context, ids ...int) error {
	if len(ids) == 0 {
		return nil
	}
	if _, err := repo.db.ExecContext(ctx, `DELETE FROM subject WHERE id = ANY($1)`, int64Slice(ids)); err != nil {
		return errors.Wrap(err, "deleting subjects")
	}
	return nil
}

// -------------------------------------------------------------------- groups

const groupCols = `
g.id, g.code, g.name, g.created_at,
COALESCE((SELECT ARRAY_AGG(gs.subject_id ORDER BY gs.subject_id) FROM group_subject gs WHERE gs.group_id = g.id), '{}') AS subject_ids,
(SELECT COUNT(*) FROM student st WHERE st.group_id = g.id) AS student_count`

func (repo schoolRepository) CheckGroupCodeUniqueness(ctx context.Context, code string, excluded ...school.Group) error {
	query := `SELECT EXISTS (SELECT 1 FROM "group" WHERE LOWER(code) = LOWER($1)`
	args := []interface{}{code}
	if len(excluded) > 0 {
		ids := make([]int, 0, len(excluded))
		for _, grp := range excluded {
			ids = append(ids, grp.ID)
		}
		query += ` AND id <> ALL($2)`
		args = append(args, int64Slice(ids))
	}
	query += `)`

	var exists bool
	if err := repo.db.GetContext(ctx, &exists, query, args...); err != nil {
		return errors.Wrap(err, "checking group code")
	}
	if exists {
		return school.ErrGroupCodeExists
	}
	return nil
}

func (repo schoolRepository) setGroupSubjects(ctx context.Context, tx *sqlx.Tx, groupID int, subjectIDs []int) error {
	if _, err := tx.ExecContext(ctx, `DELETE FROM group_subject WHERE group_id = $1`, groupID); err != nil {
		return errors.Wrap(err, "clearing group subjects")
	}
	for _, subID := range subjectIDs {
		_, err := tx.ExecContext(ctx,
			`INSERT INTO group_subject (group_id, subject_id) VALUES ($1, $2) ON CONFLICT DO NOTHING`,
			groupID, subID,
		)
		if err != nil {
			return errors.Wrap(err, "linking group subject")
		}
	}
	return nil
}

func (repo schoolRepository) CreateGroup(ctx context.Context, grp school.Group) (school.Group, error) {
	tx, err := repo.db.BeginTxx(ctx, nil)
	if err != nil {
		return school.Group{}, errors.Wrap(err, "beginning tx")
	}
	defer func() { _ = tx.Rollback() }()

	grp.CreatedAt = time.Now().UTC()
	query := `INSERT INTO "group" (code, name, created_at) VALUES ($1, $2, $3) RETURNING id`
	if err = tx.GetContext(ctx, &grp.ID, query, grp.Code, grp.Name, grp.CreatedAt); err != nil {
		return school.Group{}, errors.Wrap(err, "inserting group")
	}
	if err = repo.setGroupSubjects(ctx, tx, grp.ID, grp.SubjectIDs); err != nil {
		return school.Group{}, err
	}
	if err = tx.Commit(); err != nil {
		return school.Group{}, errors.Wrap(err, "committing tx")
	}
	return repo.GetGroupByID(ctx, grp.ID)
}

func (repo schoolRepository) queryGroups(ctx context.Context, where string, args ...interface{}) ([]school.Group, error) {
	query := `SELECT ` + groupCols + ` FROM "group" g`
	if where != "" {
		query += ` WHERE ` + where
	}
	query += ` ORDER BY g.code`

	var rows []groupRow
	if err := repo.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, errors.Wrap(err, "querying groups")
	}
	groups := make([]school.Group, 0, len(rows))
	for _, r := range rows {
		groups = append(groups, r.group())
	}
	return groups, nil
}

func (repo schoolRepository) QueryAllGroups(ctx context.Context) ([]school.Group, error) {
	return repo.queryGroups(ctx, "")
}

func (repo schoolRepository) QueryGroupsByID(ctx context.Context, ids ...int) ([]school.Group, error) {
	if len(ids) == 0 {
		return []school.Group{}, nil
	}
	return repo.queryGroups(ctx, `g.id = ANY($1)`, int64Slice(ids))
}

func (repo schoolRepository) QueryGroupsBySubjectID(ctx context.Context, subjectID int) ([]school.Group, error) {
	return repo.queryGroups(ctx,
		`g.id IN (SELECT gs.group_id FROM group_subject gs WHERE gs.subject_id = $1)`, subjectID)
}

func (repo schoolRepository) GetGroupByID(ctx context.Context, id int) (school.Group, error) {
	var r groupRow
	query := `SELECT ` + groupCols + ` FROM "group" g WHERE g.id = $1`
	if err := repo.db.GetContext(ctx, &r, query, id); err != nil {
		if err == sql.ErrNoRows {
			return school.Group{}, school.ErrGroupNotFound
		}
		return school.Group{}, errors.Wrap(err, "getting group")
	}
	return r.group(), nil
}

func (repo schoolRepository) UpdateGroup(ctx context.Context, grp school.Group) (school.Group, error) {
	tx, err := repo.db.BeginTxx(ctx, nil)
	if err != nil {
		return school.Group{}, errors.Wrap(err, "beginning tx")
	}
	defer func() { _ = tx.Rollback() }()

	query := `
UPDATE "group"
SET code = COALESCE(NULLIF($2, ''), code),
    name = COALESCE(NULLIF($3, ''), name)
WHERE id = $1`
	res, err := tx.ExecContext(ctx, query, grp.ID, grp.Code, grp.Name)
	if err != nil {
		return school.Group{}, errors.Wrap(err, "updating group")
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return school.Group{}, school.ErrGroupNotFound
	}
	if grp.SubjectIDs != nil {
		if err = repo.setGroupSubjects(ctx, tx, grp.ID, grp.SubjectIDs); err != nil {
			return school.Group{}, err
		}
	}
	if err = tx.Commit(); err != nil {
		return school.Group{}, errors.Wrap(err, "committing tx")
	}
	return repo.GetGroupByID(ctx, grp.ID)
}

func (repo schoolRepository) DeleteGroupsByID(ctx context.Context, ids ...int) error {
	if len(ids) == 0 {
		return nil
	}
	if _, err := repo.db.ExecContext(ctx, `DELETE FROM "group" WHERE id = ANY($1)`, int64Slice(ids)); err != nil {
		return errors.Wrap(err, "deleting groups")
	}
	return nil
}

// ------------------------------------------------------------------ students

const studentCols = `
st.id, st.name, st.student_code, st.email, st.group_id, st.user_id, st.created_at,
g.code AS group_code`

const studentFrom = ` FROM student st JOIN "group" g ON g.id = st.group_id`

func (repo schoolRepository) CheckStudentCodeUniqueness(ctx context.Context, code string, excluded ...school.Student) error {
	query := `SELECT EXISTS (SELECT 1 FROM student WHERE LOWER(student_code) = LOWER($1)`
	args := []interface{}{code}
	if len(excluded) > 0 {
		ids := make([]int, 0, len(excluded))
		for _, std := range excluded {
			ids = append(ids, std.ID)
		}
		query += ` AND id <> ALL($2)`
		args = append(args, int64Slice(ids))
	}
	query += `)`

	var exists bool
	if err := repo.db.GetContext(ctx, &exists, query, args...); err != nil {
		return errors.Wrap(err, "checking student code")
	}
	if exists {
		return school.ErrStudentIDExists
	}
	return nil
}

func (repo schoolRepository) CreateStudent(ctx context.Context, std school.Student) (school.Student, error) {
	std.CreatedAt = time.Now().UTC()
	query := `
INSERT INTO student (name, student_code, email, group_id, created_at)
VALUES ($1, $2, $3, $4, $5)
RETURNING id`
	err := repo.db.GetContext(ctx, &std.ID, query, std.Name, std.StudentID, std.Email, std.GroupID, std.CreatedAt)
	if err != nil {
		return school.Student{}, errors.Wrap(err, "inserting student")
	}
	return repo.GetStudentByID(ctx, std.ID)
}

func (repo schoolRepository) queryStudents(ctx context.Context, where string, args ...interface{}) ([]school.Student, error) {
	query := `SELECT ` + studentCols + studentFrom
	if where != "" {
		query += ` WHERE ` + where
	}
	query += ` ORDER BY st.name`

	var rows []studentRow
	if err := repo.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, errors.Wrap(err, "querying students")
	}
	students := make([]school.Student, 0, len(rows))
	for _, r := range rows {
		students = append(students, r.student())
	}
	return students, nil
}

func (repo schoolRepository) QueryAllStudents(ctx context.Context) ([]school.Student, error) {
	return repo.queryStudents(ctx, "")
}

func (repo schoolRepository) QueryStudentsByGroupID(ctx context.Context, groupIDs ...int) ([]school.Student, error) {
	if len(groupIDs) == 0 {
		return []school.Student{}, nil
	}
	return repo.queryStudents(ctx, `st.group_id = ANY($1)`, int64Slice(groupIDs))
}

func (repo schoolRepository) QueryStudentsBySubjectID(ctx context.Context, subjectID int, groupIDs ...int) ([]school.Student, error) {
	where := `st.group_id IN (SELECT gs.group_id FROM group_subject gs WHERE gs.subject_id = $1)`
	args := []interface{}{subjectID}
	if len(groupIDs) > 0 {
		where += ` AND st.group_id = ANY($2)`
		args = append(args, int64Slice(groupIDs))
	}
	return repo.queryStudents(ctx, where, args...)
}

func (repo schoolRepository) getStudentBy(ctx context.Context, where string, args ...interface{}) (school.Student, error) {
	var r studentRow
	query := `SELECT ` + studentCols + studentFrom + ` WHERE ` + where
	if err := repo.db.GetContext(ctx, &r, query, args...); err != nil {
		if err == sql.ErrNoRows {
			return school.Student{}, school.ErrStudentNotFound
		}
		return school.Student{}, errors.Wrap(err, "getting student")
	}
	return r.student(), nil
}

func (repo schoolRepository) GetStudentByID(ctx context.Context, id int) (school.Student, error) {
	return repo.getStudentBy(ctx, `st.id = $1`, id)
}

func (repo schoolRepository) GetStudentByCode(ctx context.Context, studentID string) (school.Student, error) {
	return repo.getStudentBy(ctx, `LOWER(st.student_code) = LOWER($1)`, studentID)
}

func (repo schoolRepository) GetStudentByUserID(ctx context.Context, userID string) (school.Student, error) {
	return repo.getStudentBy(ctx, `st.user_id = $1`, userID)
}

func (repo schoolRepository) LinkStudentUser(ctx context.Context, studentID int, userID, email string) (school.Student, error) {
	query := `
UPDATE student
SET user_id = $2,
    email   = COALESCE(NULLIF($3, ''), email)
WHERE id = $1 AND user_id IS NULL`
	res, err := repo.db.ExecContext(ctx, query, studentID, userID, email)
	if err != nil {
		return school.Student{}, errors.Wrap(err, "linking student account")
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		if _, err = repo.GetStudentByID(ctx, studentID); err != nil {
			return school.Student{}, err
		}
		return school.Student{}, school.ErrAlreadyLinked
	}
	return repo.GetStudentByID(ctx, studentID)
}

func (repo schoolRepository) UpdateStudent(ctx context.Context, std school.Student) (school.Student, error) {
	query := `
UPDATE student
SET name         = COALESCE(NULLIF($2, ''), name),
    student_code = COALESCE(NULLIF($3, ''), student_code),
    email        = COALESCE(NULLIF($4, ''), email),
    group_id     = CASE WHEN $5 = 0 THEN group_id ELSE $5 END
WHERE id = $1`
	res, err := repo.db.ExecContext(ctx, query, std.ID, std.Name, std.StudentID, std.Email, std.GroupID)
	if err != nil {
		return school.Student{}, errors.Wrap(err, "updating student")
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return school.Student{}, school.ErrStudentNotFound
	}
	return repo.GetStudentByID(ctx, std.ID)
}

func (repo schoolRepository) DeleteStudentsByID(ctx context.Context, ids ...int) error {
	if len(ids) == 0 {
		return nil
	}
	if _, err := repo.db.ExecContext(ctx, `DELETE FROM student WHERE id = ANY($1)`, int64Slice(ids)); err != nil {
		return errors.Wrap(err, "deleting students")
	}
	return nil
}
