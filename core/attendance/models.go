package attendance

import (
	"time"

	"github.com/atomi7e/att-system-pet/core"
	"github.com/atomi7e/att-system-pet/core/school"
)

// Statuses
const (
	StatusPresent = "present"
	StatusAbsent  = "absent"
	StatusLate    = "late"

	// DefaultStatus applies when a mark operation omits the status.
	DefaultStatus = StatusAbsent
)

// Attendance is one status record per (student, date, subject). The JSON
// shape matches the public API: the original schema calls a Subject a
// "class", hence class_enrolled/class_name.
type Attendance struct {
	ID          int       `json:"id"`
	StudentID   int       `json:"student"`
	StudentName string    `json:"student_name"`
	StudentCode string    `json:"student_id"`
	SubjectID   int       `json:"class_enrolled"`
	SubjectName string    `json:"class_name"`
	Date        core.Date `json:"date"`
	Status      string    `json:"status"`
	Notes       string    `json:"notes"`
	MarkedAt    time.Time `json:"marked_at"` // UTC
}

// Mark is the input of a single attendance upsert.
type Mark struct {
	StudentID int    `json:"student_id" validate:"required"`
	SubjectID int    `json:"class_id" validate:"required"`
	Date      string `json:"date" validate:"required,date_"`
	Status    string `json:"status" validate:"omitempty,oneof=present absent late"`
	Notes     string `json:"notes"`
}

func (m *Mark) Validate() error {
	m.Status = core.CleanString(m.Status, true /* lower */)
	if m.Status == "" {
		m.Status = DefaultStatus
	}
	return core.Validate.Struct(m)
}

// UpdateAttendance defines the partial update of an existing record: fields
// not given keep their previous value.
type UpdateAttendance struct {
	Status string  `json:"status" validate:"omitempty,oneof=present absent late"`
	Notes  *string `json:"notes"`
	Date   string  `json:"date" validate:"omitempty,date_"`
}

func (ua *UpdateAttendance) Validate() error {
	ua.Status = core.CleanString(ua.Status, true /* lower */)
	return core.Validate.Struct(ua)
}

// BatchMark marks a whole roster for one subject and date. Students missing
// from Statuses are recorded with the default status.
type BatchMark struct {
	Date     string         `json:"date" validate:"required,date_"`
	GroupID  int            `json:"group_id"`
	Statuses map[int]string `json:"statuses" validate:"dive,oneof=present absent late"`
}

func (bm *BatchMark) Validate() error { return core.Validate.Struct(bm) }

// QueryFilter applies AND on available fields. An unparseable Date is
// silently ignored rather than rejected.
type QueryFilter struct {
	SubjectID int    `query:"class_id"`
	Date      string `query:"date"`
	StudentID int    `query:"student_id"`
}

// Filter is the repository-level query; SubjectIDs and GroupIDs narrow rows
// to the caller's scope on top of the explicit filters.
type Filter struct {
	SubjectID  int
	SubjectIDs []int
	StudentIDs []int
	GroupIDs   []int
	Date       *core.Date
}

// Scope is the principal-derived narrowing applied to every attendance
// query: a teacher is held to their subjects and groups, a student to their
// own records. The zero value means no narrowing; Empty means no visible
// records at all.
type Scope struct {
	SubjectIDs []int
	GroupIDs   []int
	StudentIDs []int
	Empty      bool
}

// Stats is the per-subject/date aggregate. Total counts the enrolled
// population; a student with no row for the date is counted in Total only.
type Stats struct {
	Present int `json:"present"`
	Absent  int `json:"absent"`
	Late    int `json:"late"`
	Total   int `json:"total"`
}

// StudentStats is the per-student aggregate; Total counts the student's
// existing records and Percent = round(100*Present/Total, 1), 0 when empty.
type StudentStats struct {
	Stats
	Percent float64 `json:"percent"`
}

// SubjectBreakdown is one per-subject row of a student's attendance summary.
type SubjectBreakdown struct {
	Subject school.Subject `json:"class"`
	StudentStats
}
