package echoapi

import (
	"fmt"
	"net/http"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/atomi7e/att-system-pet/core/attendance"
)

// attendanceFixture is the shared classroom: kalonji teaches math to group A
// only, alice (A) and carol (B) have accounts.
type attendanceFixture struct {
	env *testEnv

	math, physics, history int
	grpA, grpB             int
	alice, bob, carol      int

	adminToken, tchToken, aliceToken, carolToken string
}

func newAttendanceFixture(t *testing.T) *attendanceFixture {
	t.Helper()
	env := newTestEnv(t)

	math := env.createSubject(t, "Math", "MATH101")
	physics := env.createSubject(t, "Physics", "PHY101")
	history := env.createSubject(t, "History", "HIS101")

	grpA := env.createGroup(t, "cs-2301", math.ID, physics.ID)
	grpB := env.createGroup(t, "cs-2302", math.ID)

	alice := env.createStudent(t, "Alice Bakana", "STU-0001", grpA.ID)
	bob := env.createStudent(t, "Bob Ilunga", "STU-0002", grpA.ID)
	carol := env.createStudent(t, "Carol Mwamba", "STU-0003", grpB.ID)

	tchUsr, _ := env.registerTeacherUser(t, "kalonji", true, []int{math.ID}, []int{grpA.ID})
	aliceUsr := env.registerStudentUser(t, alice, "alicebb")
	carolUsr := env.registerStudentUser(t, carol, "carolmw")

	return &attendanceFixture{
		env:        env,
		math:       math.ID,
		physics:    physics.ID,
		history:    history.ID,
		grpA:       grpA.ID,
		grpB:       grpB.ID,
		alice:      alice.ID,
		bob:        bob.ID,
		carol:      carol.ID,
		adminToken: env.adminToken(t),
		tchToken:   env.token(t, tchUsr),
		aliceToken: env.token(t, aliceUsr),
		carolToken: env.token(t, carolUsr),
	}
}

func (f *attendanceFixture) mark(t *testing.T, token string, studentID, subjectID int, date, status string) attendance.Attendance {
	t.Helper()
	rec := f.env.request(t, http.MethodPost, "/api/attendance/mark", token, echo.Map{
		"student_id": studentID, "class_id": subjectID, "date": date, "status": status,
	})
	require.Contains(t, []int{http.StatusCreated, http.StatusOK}, rec.Code, rec.Body.String())

	var att attendance.Attendance
	decode(t, rec, &att)
	return att
}

func TestAttendanceAPI_mark(t *testing.T) {
	f := newAttendanceFixture(t)
	env := f.env

	t.Run("first write creates", func(t *testing.T) {
		rec := env.request(t, http.MethodPost, "/api/attendance/mark", f.tchToken, echo.Map{
			"student_id": f.alice, "class_id": f.math, "date": "2023-09-15", "status": "present",
		})
		require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

		var att attendance.Attendance
		decode(t, rec, &att)
		assert.Equal(t, attendance.StatusPresent, att.Status)
		assert.Equal(t, "Alice Bakana", att.StudentName)
		assert.Equal(t, "Math", att.SubjectName)
	})

	t.Run("second write on the same key overwrites", func(t *testing.T) {
		rec := env.request(t, http.MethodPost, "/api/attendance/mark", f.tchToken, echo.Map{
			"student_id": f.alice, "class_id": f.math, "date": "2023-09-15", "status": "late",
		})
		require.Equal(t, http.StatusOK, rec.Code)

		var att attendance.Attendance
		decode(t, rec, &att)
		assert.Equal(t, attendance.StatusLate, att.Status)
	})

	t.Run("status defaults to absent", func(t *testing.T) {
		rec := env.request(t, http.MethodPost, "/api/attendance/mark", f.tchToken, echo.Map{
			"student_id": f.bob, "class_id": f.math, "date": "2023-09-15",
		})
		require.Equal(t, http.StatusCreated, rec.Code)

		var att attendance.Attendance
		decode(t, rec, &att)
		assert.Equal(t, attendance.StatusAbsent, att.Status)
	})

	t.Run("students never mark, not even themselves", func(t *testing.T) {
		rec := env.request(t, http.MethodPost, "/api/attendance/mark", f.aliceToken, echo.Map{
			"student_id": f.alice, "class_id": f.math, "date": "2023-09-15", "status": "present",
		})
		require.Equal(t, http.StatusForbidden, rec.Code)
	})

	t.Run("teacher held to assigned subjects", func(t *testing.T) {
		rec := env.request(t, http.MethodPost, "/api/attendance/mark", f.tchToken, echo.Map{
			"student_id": f.alice, "class_id": f.physics, "date": "2023-09-15", "status": "present",
		})
		require.Equal(t, http.StatusForbidden, rec.Code)
	})

	t.Run("invalid payloads", func(t *testing.T) {
		tests := []struct {
			name string
			body echo.Map
		}{
			{"bad date", echo.Map{"student_id": f.alice, "class_id": f.math, "date": "15/09/2023"}},
			{"bad status", echo.Map{"student_id": f.alice, "class_id": f.math, "date": "2023-09-15", "status": "sick"}},
			{"missing student", echo.Map{"class_id": f.math, "date": "2023-09-15"}},
		}
		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				rec := env.request(t, http.MethodPost, "/api/attendance/mark", f.adminToken, tt.body)
				assert.Equal(t, http.StatusBadRequest, rec.Code)
			})
		}
	})

	t.Run("unknown student", func(t *testing.T) {
		rec := env.request(t, http.MethodPost, "/api/attendance/mark", f.adminToken, echo.Map{
			"student_id": 999, "class_id": f.math, "date": "2023-09-15",
		})
		require.Equal(t, http.StatusNotFound, rec.Code)
	})
}

func TestAttendanceAPI_query(t *testing.T) {
	f := newAttendanceFixture(t)
	env := f.env

	f.mark(t, f.adminToken, f.alice, f.math, "2023-09-15", "present")
	f.mark(t, f.adminToken, f.bob, f.math, "2023-09-15", "absent")
	f.mark(t, f.adminToken, f.carol, f.math, "2023-09-15", "present")  // group B
	f.mark(t, f.adminToken, f.alice, f.physics, "2023-09-15", "late") // outside teacher's subjects
	f.mark(t, f.adminToken, f.alice, f.math, "2023-09-16", "present")

	query := func(t *testing.T, token, rawQuery string) []attendance.Attendance {
		t.Helper()
		rec := env.request(t, http.MethodGet, "/api/attendance"+rawQuery, token, nil)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		var atts []attendance.Attendance
		decode(t, rec, &atts)
		return atts
	}

	t.Run("admin sees everything", func(t *testing.T) {
		assert.Len(t, query(t, f.adminToken, ""), 5)
	})

	t.Run("teacher sees assigned subject and groups only", func(t *testing.T) {
		atts := query(t, f.tchToken, "")
		require.Len(t, atts, 3)
		for _, att := range atts {
			assert.Equal(t, f.math, att.SubjectID)
			assert.NotEqual(t, f.carol, att.StudentID)
		}
	})

	t.Run("student sees own records only", func(t *testing.T) {
		atts := query(t, f.aliceToken, "")
		require.Len(t, atts, 3)
		for _, att := range atts {
			assert.Equal(t, f.alice, att.StudentID)
		}
	})

	t.Run("filters combine with AND", func(t *testing.T) {
		atts := query(t, f.adminToken, fmt.Sprintf("?class_id=%d&date=2023-09-15", f.math))
		assert.Len(t, atts, 3)

		atts = query(t, f.adminToken, fmt.Sprintf("?class_id=%d&student_id=%d", f.math, f.alice))
		assert.Len(t, atts, 2)
	})

	t.Run("student filter outside scope yields nothing", func(t *testing.T) {
		atts := query(t, f.aliceToken, fmt.Sprintf("?student_id=%d", f.carol))
		assert.Empty(t, atts)
	})

	t.Run("newest first by default", func(t *testing.T) {
		atts := query(t, f.aliceToken, fmt.Sprintf("?class_id=%d", f.math))
		require.Len(t, atts, 2)
		assert.Equal(t, "2023-09-16", atts[0].Date.String())
	})

	t.Run("explicit ascending ordering", func(t *testing.T) {
		atts := query(t, f.aliceToken, fmt.Sprintf("?class_id=%d&ordering=date", f.math))
		require.Len(t, atts, 2)
		assert.Equal(t, "2023-09-15", atts[0].Date.String())
	})

	t.Run("requires a token", func(t *testing.T) {
		rec := env.request(t, http.MethodGet, "/api/attendance", "", nil)
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})
}

func TestAttendanceAPI_detail(t *testing.T) {
	f := newAttendanceFixture(t)
	env := f.env

	aliceMath := f.mark(t, f.adminToken, f.alice, f.math, "2023-09-15", "present")
	alicePhysics := f.mark(t, f.adminToken, f.alice, f.physics, "2023-09-15", "late")
	carolMath := f.mark(t, f.adminToken, f.carol, f.math, "2023-09-15", "present")

	path := func(id int) string { return fmt.Sprintf("/api/attendance/%d", id) }

	t.Run("retrieve within scope", func(t *testing.T) {
		rec := env.request(t, http.MethodGet, path(aliceMath.ID), f.tchToken, nil)
		require.Equal(t, http.StatusOK, rec.Code)

		var att attendance.Attendance
		decode(t, rec, &att)
		assert.Equal(t, aliceMath.ID, att.ID)
	})

	t.Run("records outside scope are hidden, not forbidden", func(t *testing.T) {
		// physics is not the teacher's subject
		rec := env.request(t, http.MethodGet, path(alicePhysics.ID), f.tchToken, nil)
		assert.Equal(t, http.StatusNotFound, rec.Code)

		// carol is in group B, outside the teacher's group scope
		rec = env.request(t, http.MethodGet, path(carolMath.ID), f.tchToken, nil)
		assert.Equal(t, http.StatusNotFound, rec.Code)

		// another student's record
		rec = env.request(t, http.MethodGet, path(carolMath.ID), f.aliceToken, nil)
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})

	t.Run("students may look but not touch", func(t *testing.T) {
		rec := env.request(t, http.MethodGet, path(aliceMath.ID), f.aliceToken, nil)
		require.Equal(t, http.StatusOK, rec.Code)

		rec = env.request(t, http.MethodPut, path(aliceMath.ID), f.aliceToken, echo.Map{"status": "present"})
		assert.Equal(t, http.StatusForbidden, rec.Code)

		rec = env.request(t, http.MethodDelete, path(aliceMath.ID), f.aliceToken, nil)
		assert.Equal(t, http.StatusForbidden, rec.Code)
	})

	t.Run("partial update", func(t *testing.T) {
		rec := env.request(t, http.MethodPut, path(aliceMath.ID), f.tchToken, echo.Map{"status": "late"})
		require.Equal(t, http.StatusOK, rec.Code)

		var att attendance.Attendance
		decode(t, rec, &att)
		assert.Equal(t, attendance.StatusLate, att.Status)
		assert.Equal(t, "2023-09-15", att.Date.String()) // untouched
	})

	t.Run("bad status on update", func(t *testing.T) {
		rec := env.request(t, http.MethodPut, path(aliceMath.ID), f.tchToken, echo.Map{"status": "sick"})
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("delete", func(t *testing.T) {
		rec := env.request(t, http.MethodDelete, path(carolMath.ID), f.adminToken, nil)
		require.Equal(t, http.StatusNoContent, rec.Code)

		rec = env.request(t, http.MethodGet, path(carolMath.ID), f.adminToken, nil)
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})

	t.Run("unknown id", func(t *testing.T) {
		rec := env.request(t, http.MethodGet, path(999), f.adminToken, nil)
		assert.Equal(t, http.StatusNotFound, rec.Code)

		rec = env.request(t, http.MethodGet, "/api/attendance/abc", f.adminToken, nil)
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})
}

func TestAttendanceAPI_myAttendance(t *testing.T) {
	f := newAttendanceFixture(t)
	env := f.env

	f.mark(t, f.adminToken, f.alice, f.math, "2023-09-15", "present")
	f.mark(t, f.adminToken, f.alice, f.math, "2023-09-16", "absent")
	f.mark(t, f.adminToken, f.alice, f.physics, "2023-09-15", "present")

	t.Run("per-subject breakdown plus raw records", func(t *testing.T) {
		rec := env.request(t, http.MethodGet, "/api/me/attendance", f.aliceToken, nil)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

		var body MyAttendanceResponse
		decode(t, rec, &body)
		assert.Equal(t, f.alice, body.Student.ID)
		assert.Len(t, body.Records, 3)
		require.Len(t, body.Classes, 2) // one row per enrolled subject

		bysubj := make(map[int]attendance.SubjectBreakdown, len(body.Classes))
		for _, row := range body.Classes {
			bysubj[row.Subject.ID] = row
		}
		assert.Equal(t, 2, bysubj[f.math].Total)
		assert.Equal(t, 50.0, bysubj[f.math].Percent)
		assert.Equal(t, 100.0, bysubj[f.physics].Percent)
	})

	t.Run("subjects without records still show", func(t *testing.T) {
		rec := env.request(t, http.MethodGet, "/api/me/attendance", f.carolToken, nil)
		require.Equal(t, http.StatusOK, rec.Code)

		var body MyAttendanceResponse
		decode(t, rec, &body)
		assert.Empty(t, body.Records)
		require.Len(t, body.Classes, 1) // group B takes math only
		assert.Equal(t, attendance.StudentStats{}, body.Classes[0].StudentStats)
	})

	t.Run("students only", func(t *testing.T) {
		rec := env.request(t, http.MethodGet, "/api/me/attendance", f.tchToken, nil)
		assert.Equal(t, http.StatusForbidden, rec.Code)

		rec = env.request(t, http.MethodGet, "/api/me/attendance", f.adminToken, nil)
		assert.Equal(t, http.StatusForbidden, rec.Code)
	})
}
