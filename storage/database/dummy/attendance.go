package dummydb

import (
	"context"
	"sort"

	"github.com/atomi7e/att-system-pet/core"
	"github.com/atomi7e/att-system-pet/core/attendance"
)

type attendanceRepository struct {
	db       *attendanceTable
	students *schoolTables
}

var _ attendance.Repository = (*attendanceRepository)(nil) // interface compliance check

func NewAttendanceRepository(db *DB) *attendanceRepository {
	return &attendanceRepository{db: db.attendance, students: db.school}
}

func (repo *attendanceRepository) studentGroupID(studentID int) int {
	repo.students.RLock()
	defer repo.students.RUnlock()

	if std, ok := repo.students.students[studentID]; ok {
		return std.GroupID
	}
	return 0
}

func (repo *attendanceRepository) UpsertAttendance(ctx context.Context, att attendance.Attendance) (attendance.Attendance, bool, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	for _, existing := range repo.db.table {
		if existing.StudentID == att.StudentID &&
			existing.SubjectID == att.SubjectID &&
			existing.Date == att.Date {
			existing.Status = att.Status
			existing.Notes = att.Notes
			existing.MarkedAt = att.MarkedAt
			return *existing, false, nil
		}
	}

	repo.db.pk++
	att.ID = repo.db.pk
	repo.db.table[att.ID] = &att
	return att, true, nil
}

func (repo *attendanceRepository) QueryAttendances(ctx context.Context, filter attendance.Filter, ordering ...core.DBOrdering) ([]attendance.Attendance, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	var atts []attendance.Attendance
	for _, att := range repo.db.table {
		if filter.SubjectID != 0 && att.SubjectID != filter.SubjectID {
			continue
		}
		if len(filter.SubjectIDs) > 0 && !containsInt(filter.SubjectIDs, att.SubjectID) {
			continue
		}
		if len(filter.StudentIDs) > 0 && !containsInt(filter.StudentIDs, att.StudentID) {
			continue
		}
		if len(filter.GroupIDs) > 0 && !containsInt(filter.GroupIDs, repo.studentGroupID(att.StudentID)) {
			continue
		}
		if filter.Date != nil && att.Date != *filter.Date {
			continue
		}
		atts = append(atts, *att)
	}

	if len(ordering) == 0 {
		ordering = []core.DBOrdering{{Field: "date"}}
	}
	sort.Slice(atts, func(i, j int) bool {
		for _, ord := range ordering {
			lt, eq := attendanceLess(atts[i], atts[j], ord.Field)
			if eq {
				continue
			}
			if ord.Ascending {
				return lt
			}
			return !lt
		}
		return atts[i].StudentName < atts[j].StudentName
	})
	return atts, nil
}

func attendanceLess(a, b attendance.Attendance, field string) (lt, eq bool) {
	switch field {
	case "status":
		return a.Status < b.Status, a.Status == b.Status
	case "marked_at":
		return a.MarkedAt.Before(b.MarkedAt), a.MarkedAt.Equal(b.MarkedAt)
	default:
		da, db := a.Date.String(), b.Date.String()
		return da < db, da == db
	}
}

func (repo *attendanceRepository) GetAttendanceByID(ctx context.Context, id int) (attendance.Attendance, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	if att, ok := repo.db.table[id]; ok {
		return *att, nil
	}
	return attendance.Attendance{}, attendance.ErrNotFound
}

func (repo *attendanceRepository) UpdateAttendance(ctx context.Context, att attendance.Attendance) (attendance.Attendance, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	orig, ok := repo.db.table[att.ID]
	if !ok {
		return attendance.Attendance{}, attendance.ErrNotFound
	}
	orig.Date = att.Date
	orig.Status = att.Status
	orig.Notes = att.Notes
	orig.MarkedAt = att.MarkedAt
	return *orig, nil
}

func (repo *attendanceRepository) DeleteAttendancesByID(ctx context.Context, ids ...int) error {
	repo.db.Lock()
	defer repo.db.Unlock()
	for _, id := range ids {
		delete(repo.db.table, id)
	}
	return nil
}
