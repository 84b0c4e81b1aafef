// Package dummydb provides in-memory repositories for tests.
package dummydb

import (
	"sync"

	"github.com/atomi7e/att-system-pet/core/attendance"
	"github.com/atomi7e/att-system-pet/core/school"
	"github.com/atomi7e/att-system-pet/core/teacher"
	"github.com/atomi7e/att-system-pet/core/user"
)

type (
	DB struct {
		user       *userTable
		school     *schoolTables
		teacher    *teacherTable
		attendance *attendanceTable
	}

	userTable struct {
		sync.RWMutex
		table map[string]*user.User
	}

	schoolTables struct {
		sync.RWMutex
		subjects  map[int]*school.Subject
		groups    map[int]*school.Group
		students  map[int]*school.Student
		subjectPK int
		groupPK   int
		studentPK int
	}

	teacherTable struct {
		sync.RWMutex
		table map[int]*teacher.Teacher
		pk    int
	}

	attendanceTable struct {
		sync.RWMutex
		table map[int]*attendance.Attendance
		pk    int
	}
)

func Open() (*DB, error) {
	db := &DB{
		user: &userTable{table: make(map[string]*user.User)},
		school: &schoolTables{
			subjects: make(map[int]*school.Subject),
			groups:   make(map[int]*school.Group),
			students: make(map[int]*school.Student),
		},
		teacher:    &teacherTable{table: make(map[int]*teacher.Teacher)},
		attendance: &attendanceTable{table: make(map[int]*attendance.Attendance)},
	}
	return db, nil
}
