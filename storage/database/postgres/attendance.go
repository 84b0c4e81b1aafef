package pgrepos

import (
	"context"
	"database/sql"
	"strconv"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"

	"github.com/atomi7e/att-system-pet/core"
	"github.com/atomi7e/att-system-pet/core/attendance"
)

type attendanceRow struct {
	ID          int       `db:"id"`
	StudentID   int       `db:"student_id"`
	StudentName string    `db:"student_name"`
	StudentCode string    `db:"student_code"`
	SubjectID   int       `db:"subject_id"`
	SubjectName string    `db:"subject_name"`
	Date        core.Date `db:"date"`
	Status      string    `db:"status"`
	Notes       string    `db:"notes"`
	MarkedAt    time.Time `db:"marked_at"`
}

func (r attendanceRow) attendance() attendance.Attendance {
	return attendance.Attendance{
		ID:          r.ID,
		StudentID:   r.StudentID,
		StudentName: r.StudentName,
		StudentCode: r.StudentCode,
		SubjectID:   r.SubjectID,
		SubjectName: r.SubjectName,
		Date:        r.Date,
		Status:      r.Status,
		Notes:       r.Notes,
		MarkedAt:    r.MarkedAt,
	}
}

type attendanceRepository struct {
	db *sqlx.DB
}

var _ attendance.Repository = (*attendanceRepository)(nil) // interface compliance check

func NewAttendanceRepository(db *sqlx.DB) *attendanceRepository {
	return &attendanceRepository{db: db}
}

const attendanceCols = `
a.id, a.student_id, a.subject_id, a.date, a.status, a.notes, a.marked_at,
st.name AS student_name, st.student_code,
s.name AS subject_name`

const attendanceFrom = `
 FROM attendance a
 JOIN student st ON st.id = a.student_id
 JOIN subject s ON s.id = a.subject_id`

// UpsertAttendance relies on the (student_id, subject_id, date) unique
// constraint; xmax = 0 distinguishes a fresh insert from an overwrite.
func (repo attendanceRepository) UpsertAttendance(ctx context.Context, att attendance.Attendance) (attendance.Attendance, bool, error) {
	query := `
INSERT INTO attendance (student_id, subject_id, date, status, notes, marked_at)
VALUES ($1, $2, $3, $4, $5, $6)
ON CONFLICT (student_id, subject_id, date)
    DO UPDATE SET status = EXCLUDED.status, notes = EXCLUDED.notes, marked_at = EXCLUDED.marked_at
RETURNING id, (xmax = 0) AS created`
	var res struct {
		ID      int  `db:"id"`
		Created bool `db:"created"`
	}
	err := repo.db.GetContext(ctx, &res, query,
		att.StudentID, att.SubjectID, att.Date, att.Status, att.Notes, att.MarkedAt.UTC())
	if err != nil {
		return attendance.Attendance{}, false, errors.Wrap(err, "upserting attendance")
	}

	att, err = repo.GetAttendanceByID(ctx, res.ID)
	if err != nil {
		return attendance.Attendance{}, false, err
	}
	return att, res.Created, nil
}

func (repo attendanceRepository) QueryAttendances(ctx context.Context, filter attendance.Filter, ordering ...core.DBOrdering) ([]attendance.Attendance, error) {
	query := `SELECT ` + attendanceCols + attendanceFrom + ` WHERE TRUE`
	var args []interface{}
	arg := func(v interface{}) string {
		args = append(args, v)
		return "$" + strconv.Itoa(len(args))
	}

	if filter.SubjectID != 0 {
		query += ` AND a.subject_id = ` + arg(filter.SubjectID)
	}
	if len(filter.SubjectIDs) > 0 {
		query += ` AND a.subject_id = ANY(` + arg(int64Slice(filter.SubjectIDs)) + `)`
	}
	if len(filter.StudentIDs) > 0 {
		query += ` AND a.student_id = ANY(` + arg(int64Slice(filter.StudentIDs)) + `)`
	}
	if len(filter.GroupIDs) > 0 {
		query += ` AND st.group_id = ANY(` + arg(int64Slice(filter.GroupIDs)) + `)`
	}
	if filter.Date != nil {
		query += ` AND a.date = ` + arg(*filter.Date)
	}

	if len(ordering) > 0 {
		orderBy := make([]string, 0, len(ordering))
		for _, ord := range ordering {
			orderBy = append(orderBy, "a."+ord.String())
		}
		query += ` ORDER BY ` + strings.Join(orderBy, ", ") + `, st.name`
	} else {
		query += ` ORDER BY a.date DESC, st.name`
	}

	var rows []attendanceRow
	if err := repo.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, errors.Wrap(err, "querying attendance")
	}
	atts := make([]attendance.Attendance, 0, len(rows))
	for _, r := range rows {
		atts = append(atts, r.attendance())
	}
	return atts, nil
}

func (repo attendanceRepository) GetAttendanceByID(ctx context.Context, id int) (attendance.Attendance, error) {
	var r attendanceRow
	query := `SELECT ` + attendanceCols + attendanceFrom + ` WHERE a.id = $1`
	if err := repo.db.GetContext(ctx, &r, query, id); err != nil {
		if err == sql.ErrNoRows {
			return attendance.Attendance{}, attendance.ErrNotFound
		}
		return attendance.Attendance{}, errors.Wrap(err, "getting attendance")
	}
	return r.attendance(), nil
}

func (repo attendanceRepository) UpdateAttendance(ctx context.Context, att attendance.Attendance) (attendance.Attendance, error) {
	query := `
UPDATE attendance
SET date      = $2,
    status    = $3,
    notes     = $4,
    marked_at = $5
WHERE id = $1`
	res, err := repo.db.ExecContext(ctx, query, att.ID, att.Date, att.Status, att.Notes, att.MarkedAt.UTC())
	if err != nil {
		return attendance.Attendance{}, errors.Wrap(err, "updating attendance")
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return attendance.Attendance{}, attendance.ErrNotFound
	}
	return repo.GetAttendanceByID(ctx, att.ID)
}

func (repo attendanceRepository) DeleteAttendancesByID(ctx context.Context, ids ...int) error {
	if len(ids) == 0 {
		return nil
	}
	if _, err := repo.db.ExecContext(ctx, `DELETE FROM attendance WHERE id = ANY($1)`, int64Slice(ids)); err != nil {
		return errors.Wrap(err, "deleting attendance")
	}
	return nil
}
