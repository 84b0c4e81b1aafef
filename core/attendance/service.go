package attendance

import (
	"context"
	"math"
	"time"

	"github.com/pkg/errors"

	"github.com/atomi7e/att-system-pet/core"
	"github.com/atomi7e/att-system-pet/core/school"
)

var (
	ErrNotFound      = errors.New("attendance record not found")
	ErrInvalidStatus = errors.New("invalid attendance status")
)

type Repository interface {
	// UpsertAttendance inserts or, when a row for the same
	// (student, date, subject) exists, overwrites its status, notes and
	// marked-at. The bool reports whether a new row was created.
	UpsertAttendance(ctx context.Context, att Attendance) (Attendance, bool, error)
	QueryAttendances(ctx context.Context, filter Filter, ordering ...core.DBOrdering) ([]Attendance, error)
	GetAttendanceByID(ctx context.Context, id int) (Attendance, error)
	UpdateAttendance(ctx context.Context, att Attendance) (Attendance, error)
	DeleteAttendancesByID(ctx context.Context, ids ...int) error
}

type Service struct {
	repo      Repository
	schoolSvc *school.Service
}

func NewService(repo Repository, schoolSvc *school.Service) *Service {
	return &Service{repo: repo, schoolSvc: schoolSvc}
}

// Record upserts a single mark. It fails with the school sentinels when the
// student or subject does not exist and never creates partial state.
func (svc *Service) Record(ctx context.Context, m Mark) (Attendance, bool, error) {
	stud, err := svc.schoolSvc.GetStudentByID(ctx, m.StudentID)
	if err != nil {
		return Attendance{}, false, err
	}
	subj, err := svc.schoolSvc.GetSubjectByID(ctx, m.SubjectID)
	if err != nil {
		return Attendance{}, false, err
	}
	date, err := core.ParseDate(m.Date)
	if err != nil {
		return Attendance{}, false, err
	}

	status := m.Status
	if status == "" {
		status = DefaultStatus
	}
	if !isValidStatus(status) {
		return Attendance{}, false, ErrInvalidStatus
	}

	att := Attendance{
		StudentID:   stud.ID,
		StudentName: stud.Name,
		StudentCode: stud.StudentID,
		SubjectID:   subj.ID,
		SubjectName: subj.Name,
		Date:        date,
		Status:      status,
		Notes:       core.CleanString(m.Notes),
		MarkedAt:    time.Now().UTC(),
	}
	att, created, err := svc.repo.UpsertAttendance(ctx, att)
	if err != nil {
		return Attendance{}, false, errors.Wrap(err, "upserting attendance")
	}
	return att, created, nil
}

// MarkRoster records a status for every student enrolled in the subject
// (narrowed to groupIDs when given), defaulting to absent for students
// missing from bm.Statuses. Marks already present for the date are
// overwritten, so repeating the call is idempotent.
func (svc *Service) MarkRoster(ctx context.Context, subjectID int, bm BatchMark, groupIDs ...int) ([]Attendance, error) {
	if bm.GroupID != 0 {
		groupIDs = []int{bm.GroupID}
	}
	roster, err := svc.schoolSvc.QueryStudentsBySubject(ctx, subjectID, groupIDs...)
	if err != nil {
		return nil, err
	}

	atts := make([]Attendance, 0, len(roster))
	for _, stud := range roster {
		status, ok := bm.Statuses[stud.ID]
		if !ok {
			status = DefaultStatus
		}
		att, _, err := svc.Record(ctx, Mark{
			StudentID: stud.ID,
			SubjectID: subjectID,
			Date:      bm.Date,
			Status:    status,
		})
		if err != nil {
			return nil, err
		}
		atts = append(atts, att)
	}
	return atts, nil
}

// queryOrderFields are the columns a caller may order by.
var queryOrderFields = map[string]bool{"date": true, "status": true, "marked_at": true}

// Query lists records matching the filter within the scope, newest date
// first unless an ordering on a known field is given. Filters are additive;
// a date that does not parse is dropped.
func (svc *Service) Query(ctx context.Context, qf QueryFilter, scope Scope, orderings ...core.DBOrdering) ([]Attendance, error) {
	if scope.Empty {
		return []Attendance{}, nil
	}
	filter := Filter{
		SubjectID:  qf.SubjectID,
		SubjectIDs: scope.SubjectIDs,
		GroupIDs:   scope.GroupIDs,
	}
	switch {
	case qf.StudentID != 0 && len(scope.StudentIDs) > 0:
		if !containsID(scope.StudentIDs, qf.StudentID) {
			return []Attendance{}, nil
		}
		filter.StudentIDs = []int{qf.StudentID}
	case qf.StudentID != 0:
		filter.StudentIDs = []int{qf.StudentID}
	default:
		filter.StudentIDs = scope.StudentIDs
	}
	if qf.Date != "" {
		if date, err := core.ParseDate(qf.Date); err == nil {
			filter.Date = &date
		}
	}
	ords := make([]core.DBOrdering, 0, len(orderings))
	for _, ord := range orderings {
		if queryOrderFields[ord.Field] {
			ords = append(ords, ord)
		}
	}
	if len(ords) == 0 {
		ords = append(ords, core.DBOrdering{Field: "date"})
	}

	atts, err := svc.repo.QueryAttendances(ctx, filter, ords...)
	if err != nil {
		return nil, errors.Wrap(err, "querying attendance")
	}
	return atts, nil
}

func (svc *Service) GetByID(ctx context.Context, id int) (Attendance, error) {
	att, err := svc.repo.GetAttendanceByID(ctx, id)
	if err != nil {
		return Attendance{}, err
	}
	return att, nil
}

// Update applies a partial update to an existing record.
func (svc *Service) Update(ctx context.Context, id int, ua UpdateAttendance) (Attendance, error) {
	att, err := svc.repo.GetAttendanceByID(ctx, id)
	if err != nil {
		return Attendance{}, err
	}
	if ua.Status != "" {
		if !isValidStatus(ua.Status) {
			return Attendance{}, ErrInvalidStatus
		}
		att.Status = ua.Status
	}
	if ua.Notes != nil {
		att.Notes = core.CleanString(*ua.Notes)
	}
	if ua.Date != "" {
		date, err := core.ParseDate(ua.Date)
		if err != nil {
			return Attendance{}, err
		}
		att.Date = date
	}
	att.MarkedAt = time.Now().UTC()

	att, err = svc.repo.UpdateAttendance(ctx, att)
	if err != nil {
		return Attendance{}, errors.Wrap(err, "updating attendance")
	}
	return att, nil
}

func (svc *Service) Delete(ctx context.Context, ids ...int) error {
	return errors.Wrap(svc.repo.DeleteAttendancesByID(ctx, ids...), "deleting attendance")
}

// SubjectStats aggregates one subject and date. Total counts the enrolled
// students in scope; the status buckets count only recorded marks, so
// unmarked students show up in Total alone.
func (svc *Service) SubjectStats(ctx context.Context, subjectID int, date core.Date, groupIDs ...int) (Stats, error) {
	roster, err := svc.schoolSvc.QueryStudentsBySubject(ctx, subjectID, groupIDs...)
	if err != nil {
		return Stats{}, err
	}
	atts, err := svc.repo.QueryAttendances(ctx, Filter{SubjectID: subjectID, Date: &date, GroupIDs: groupIDs})
	if err != nil {
		return Stats{}, errors.Wrap(err, "querying attendance")
	}

	stats := Stats{Total: len(roster)}
	countStatuses(&stats, atts)
	return stats, nil
}

// StudentStats aggregates a student's own records, optionally narrowed to one
// subject. Total here counts the student's existing records.
func (svc *Service) StudentStats(ctx context.Context, studentID int, subjectID int) (StudentStats, error) {
	atts, err := svc.repo.QueryAttendances(ctx, Filter{StudentIDs: []int{studentID}, SubjectID: subjectID})
	if err != nil {
		return StudentStats{}, errors.Wrap(err, "querying attendance")
	}
	return studentStats(atts), nil
}

// StudentBreakdown returns a student's summary per enrolled subject plus the
// raw records, newest first.
func (svc *Service) StudentBreakdown(ctx context.Context, stud school.Student) ([]SubjectBreakdown, []Attendance, error) {
	grp, err := svc.schoolSvc.GetGroupByID(ctx, stud.GroupID)
	if err != nil {
		return nil, nil, err
	}
	subjects, err := svc.schoolSvc.QuerySubjectsByID(ctx, grp.SubjectIDs...)
	if err != nil {
		return nil, nil, err
	}
	atts, err := svc.repo.QueryAttendances(ctx,
		Filter{StudentIDs: []int{stud.ID}},
		core.DBOrdering{Field: "date"},
	)
	if err != nil {
		return nil, nil, errors.Wrap(err, "querying attendance")
	}

	bySubject := make(map[int][]Attendance)
	for _, att := range atts {
		bySubject[att.SubjectID] = append(bySubject[att.SubjectID], att)
	}
	breakdown := make([]SubjectBreakdown, 0, len(subjects))
	for _, subj := range subjects {
		breakdown = append(breakdown, SubjectBreakdown{
			Subject:      subj,
			StudentStats: studentStats(bySubject[subj.ID]),
		})
	}
	return breakdown, atts, nil
}

func studentStats(atts []Attendance) StudentStats {
	stats := StudentStats{Stats: Stats{Total: len(atts)}}
	countStatuses(&stats.Stats, atts)
	if stats.Total > 0 {
		stats.Percent = math.Round(1000*float64(stats.Present)/float64(stats.Total)) / 10
	}
	return stats
}

func countStatuses(stats *Stats, atts []Attendance) {
	for _, att := range atts {
		switch att.Status {
		case StatusPresent:
			stats.Present++
		case StatusAbsent:
			stats.Absent++
		case StatusLate:
			stats.Late++
		}
	}
}

func containsID(haystack []int, needle int) bool {
	for _, v := range haystack {
		if v == needle {
			return true
		}
	}
	return false
}

func isValidStatus(s string) bool {
	switch s {
	case StatusPresent, StatusAbsent, StatusLate:
		return true
	}
	return false
}
