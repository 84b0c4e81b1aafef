package pgrepos

import (
	"context"
	"database/sql"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/pkg/errors"

	"github.com/atomi7e/att-system-pet/core/teacher"
)

type teacherRow struct {
	ID              int            `db:"id"`
	UserID          string         `db:"user_id"`
	Name            string         `db:"name"`
	Username        string         `db:"username"`
	Status          string         `db:"status"`
	Phone           string         `db:"phone"`
	Department      string         `db:"department"`
	SubjectIDs      pq.Int64Array  `db:"subject_ids"`
	GroupIDs        pq.Int64Array  `db:"group_ids"`
	SubmittedAt     time.Time      `db:"submitted_at"`
	ReviewedAt      sql.NullTime   `db:"reviewed_at"`
	ReviewedBy      sql.NullString `db:"reviewed_by"`
	RejectionReason string         `db:"rejection_reason"`
}

func (r teacherRow) teacher() teacher.Teacher {
	tch := teacher.Teacher{
		ID:              r.ID,
		UserID:          r.UserID,
		Name:            r.Name,
		Username:        r.Username,
		Status:          r.Status,
		Phone:           r.Phone,
		Department:      r.Department,
		SubjectIDs:      intSlice(r.SubjectIDs),
		GroupIDs:        intSlice(r.GroupIDs),
		SubmittedAt:     r.SubmittedAt,
		ReviewedBy:      r.ReviewedBy.String,
		RejectionReason: r.RejectionReason,
	}
	if r.ReviewedAt.Valid {
		at := r.ReviewedAt.Time
		tch.ReviewedAt = &at
	}
	return tch
}

type teacherRepository struct {
	db *sqlx.DB
}

var _ teacher.Repository = (*teacherRepository)(nil) // interface compliance check

func NewTeacherRepository(db *sqlx.DB) *teacherRepository {
	return &teacherRepository{db: db}
}

const teacherCols = `
t.id, t.user_id, t.status, t.phone, t.department, t.submitted_at, t.reviewed_at, t.reviewed_by, t.rejection_reason,
u.name, u.username,
COALESCE((SELECT ARRAY_AGG(ts.subject_id ORDER BY ts.subject_id) FROM teacher_subject ts WHERE ts.teacher_id = t.id), '{}') AS subject_ids,
COALESCE((SELECT ARRAY_AGG(tg.group_id ORDER BY tg.group_id) FROM teacher_group tg WHERE tg.teacher_id = t.id), '{}') AS group_ids`

const teacherFrom = ` FROM teacher t JOIN "user" u ON u.id = t.user_id`

func (repo teacherRepository) CreateTeacher(ctx context.Context, tch teacher.Teacher) (teacher.Teacher, error) {
	tch.SubmittedAt = time.Now().UTC()
	query := `
INSERT INTO teacher (user_id, phone, department, status, submitted_at)
VALUES ($1, $2, $3, $4, $5)
RETURNING id`
	err := repo.db.GetContext(ctx, &tch.ID, query,
		tch.UserID, tch.Phone, tch.Department, teacher.StatusPending, tch.SubmittedAt)
	if err != nil {
		return teacher.Teacher{}, errors.Wrap(err, "inserting teacher")
	}
	return repo.GetTeacherByID(ctx, tch.ID)
}

func (repo teacherRepository) queryTeachers(ctx context.Context, where string, args ...interface{}) ([]teacher.Teacher, error) {
	query := `SELECT ` + teacherCols + teacherFrom
	if where != "" {
		query += ` WHERE ` + where
	}
	query += ` ORDER BY t.submitted_at DESC`

	var rows []teacherRow
	if err := repo.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, errors.Wrap(err, "querying teachers")
	}
	teachers := make([]teacher.Teacher, 0, len(rows))
	for _, r := range rows {
		teachers = append(teachers, r.teacher())
	}
	return teachers, nil
}

func (repo teacherRepository) QueryAllTeachers(ctx context.Context) ([]teacher.Teacher, error) {
	return repo.queryTeachers(ctx, "")
}

func (repo teacherRepository) QueryTeachersByStatus(ctx context.Context, status string) ([]teacher.Teacher, error) {
	return repo.queryTeachers(ctx, `t.status = $1`, status)
}

func (repo teacherRepository) getTeacherBy(ctx context.Context, where string, args ...interface{}) (teacher.Teacher, error) {
	var r teacherRow
	query := `SELECT ` + teacherCols + teacherFrom + ` WHERE ` + where
	if err := repo.db.GetContext(ctx, &r, query, args...); err != nil {
		if err == sql.ErrNoRows {
			return teacher.Teacher{}, teacher.ErrNotFound
		}
		return teacher.Teacher{}, errors.Wrap(err, "getting teacher")
	}
	return r.teacher(), nil
}

func (repo teacherRepository) GetTeacherByID(ctx context.Context, id int) (teacher.Teacher, error) {
	return repo.getTeacherBy(ctx, `t.id = $1`, id)
}

func (repo teacherRepository) GetTeacherByUserID(ctx context.Context, userID string) (teacher.Teacher, error) {
	return repo.getTeacherBy(ctx, `t.user_id = $1`, userID)
}

// ReviewTeacher guards the transition in SQL: only a pending row matches, so
// a repeated review leaves the first one untouched.
func (repo teacherRepository) ReviewTeacher(ctx context.Context, id int, status, reviewedBy, reason string, reviewedAt time.Time) (teacher.Teacher, error) {
	query := `
UPDATE teacher
SET status           = $2,
    reviewed_at      = $3,
    reviewed_by      = $4,
    rejection_reason = $5
WHERE id = $1 AND status = $6`
	res, err := repo.db.ExecContext(ctx, query, id, status, reviewedAt.UTC(), reviewedBy, reason, teacher.StatusPending)
	if err != nil {
		return teacher.Teacher{}, errors.Wrap(err, "reviewing teacher")
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		if _, err = repo.GetTeacherByID(ctx, id); err != nil {
			return teacher.Teacher{}, err
		}
		return teacher.Teacher{}, teacher.ErrAlreadyReviewed
	}
	return repo.GetTeacherByID(ctx, id)
}

func (repo teacherRepository) SetTeacherAssignments(ctx context.Context, id int, subjectIDs, groupIDs []int) (teacher.Teacher, error) {
	tx, err := repo.db.BeginTxx(ctx, nil)
	if err != nil {
		return teacher.Teacher{}, errors.Wrap(err, "beginning tx")
	}
	defer func() { _ = tx.Rollback() }()

	if _, err = tx.ExecContext(ctx, `DELETE FROM teacher_subject WHERE teacher_id = $1`, id); err != nil {
		return teacher.Teacher{}, errors.Wrap(err, "clearing teacher subjects")
	}
	for _, subID := range subjectIDs {
		_, err = tx.ExecContext(ctx,
			`INSERT INTO teacher_subject (teacher_id, subject_id) VALUES ($1, $2) ON CONFLICT DO NOTHING`,
			id, subID,
		)
		if err != nil {
			return teacher.Teacher{}, errors.Wrap(err, "assigning teacher subject")
		}
	}

	if _, err = tx.ExecContext(ctx, `DELETE FROM teacher_group WHERE teacher_id = $1`, id); err != nil {
		return teacher.Teacher{}, errors.Wrap(err, "clearing teacher groups")
	}
	for _, grpID := range groupIDs {
		_, err = tx.ExecContext(ctx,
			`INSERT INTO teacher_group (teacher_id, group_id) VALUES ($1, $2) ON CONFLICT DO NOTHING`,
			id, grpID,
		)
		if err != nil {
			return teacher.Teacher{}, errors.Wrap(err, "assigning teacher group")
		}
	}

	if err = tx.Commit(); err != nil {
		return teacher.Teacher{}, errors.Wrap(err, "committing tx")
	}
	return repo.GetTeacherByID(ctx, id)
}

func (repo teacherRepository) DeleteTeachersByID(ctx context.Context, ids ...int) error {
	if len(ids) == 0 {
		return nil
	}
	if _, err := repo.db.ExecContext(ctx, `DELETE FROM teacher WHERE id = ANY($1)`, int64Slice(ids)); err != nil {
		return errors.Wrap(err, "deleting teachers")
	}
	return nil
}
