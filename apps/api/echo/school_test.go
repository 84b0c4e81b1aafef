package echoapi

import (
	"fmt"
	"net/http"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/atomi7e/att-system-pet/core"
	"github.com/atomi7e/att-system-pet/core/attendance"
	"github.com/atomi7e/att-system-pet/core/school"
)

func TestSchoolAPI_registerStudent(t *testing.T) {
	env := newTestEnv(t)

	math := env.createSubject(t, "Math", "MATH101")
	grp := env.createGroup(t, "cs-2301", math.ID)
	stud := env.createStudent(t, "Alice Bakana", "STU-0001", grp.ID)

	registration := func(uname, card string) echo.Map {
		return echo.Map{
			"username":         uname,
			"student_id":       card,
			"email":            uname + "@test.cd",
			"password":         "Str0ngPwd!",
			"password_confirm": "Str0ngPwd!",
		}
	}

	t.Run("links the roster entry", func(t *testing.T) {
		rec := env.request(t, http.MethodPost, "/api/register/student", "", registration("alicebb", "STU-0001"))
		require.Equal(t, http.StatusCreated, rec.Code)

		var linked school.Student
		decode(t, rec, &linked)
		assert.Equal(t, stud.ID, linked.ID)
		assert.Equal(t, "cs-2301", linked.GroupCode)
	})

	t.Run("one account per roster entry", func(t *testing.T) {
		rec := env.request(t, http.MethodPost, "/api/register/student", "", registration("aliceagain", "STU-0001"))
		require.Equal(t, http.StatusBadRequest, rec.Code)

		var fldErrs map[string]string
		decode(t, rec, &fldErrs)
		assert.Contains(t, fldErrs, "student_id")
	})

	t.Run("unknown card number", func(t *testing.T) {
		rec := env.request(t, http.MethodPost, "/api/register/student", "", registration("ghost", "STU-9999"))
		require.Equal(t, http.StatusBadRequest, rec.Code)

		var fldErrs map[string]string
		decode(t, rec, &fldErrs)
		assert.Contains(t, fldErrs, "student_id")
	})

	t.Run("password mismatch", func(t *testing.T) {
		body := registration("mismatch", "STU-0001")
		body["password_confirm"] = "s0methingElse!"
		rec := env.request(t, http.MethodPost, "/api/register/student", "", body)
		require.Equal(t, http.StatusBadRequest, rec.Code)

		var fldErrs map[string]string
		decode(t, rec, &fldErrs)
		assert.Contains(t, fldErrs, "password_confirm")
	})
}

func TestSchoolAPI_subjects(t *testing.T) {
	env := newTestEnv(t)
	adminToken := env.adminToken(t)

	math := env.createSubject(t, "Math", "MATH101")
	physics := env.createSubject(t, "Physics", "PHY101")
	history := env.createSubject(t, "History", "HIS101")

	grpA := env.createGroup(t, "cs-2301", math.ID, physics.ID)
	stud := env.createStudent(t, "Alice Bakana", "STU-0001", grpA.ID)
	studUsr := env.registerStudentUser(t, stud, "alicebb")
	studToken := env.token(t, studUsr)

	tchUsr, _ := env.registerTeacherUser(t, "kalonji", true, []int{math.ID}, nil)
	tchToken := env.token(t, tchUsr)

	t.Run("visibility follows the caller", func(t *testing.T) {
		var subjects []school.Subject

		rec := env.request(t, http.MethodGet, "/api/subjects", adminToken, nil)
		require.Equal(t, http.StatusOK, rec.Code)
		decode(t, rec, &subjects)
		assert.Len(t, subjects, 3)

		rec = env.request(t, http.MethodGet, "/api/subjects", tchToken, nil)
		require.Equal(t, http.StatusOK, rec.Code)
		decode(t, rec, &subjects)
		require.Len(t, subjects, 1)
		assert.Equal(t, math.ID, subjects[0].ID)

		rec = env.request(t, http.MethodGet, "/api/subjects", studToken, nil)
		require.Equal(t, http.StatusOK, rec.Code)
		decode(t, rec, &subjects)
		assert.Len(t, subjects, 2) // the group's subjects
	})

	t.Run("retrieve is scope checked", func(t *testing.T) {
		rec := env.request(t, http.MethodGet, fmt.Sprintf("/api/subjects/%d", math.ID), tchToken, nil)
		assert.Equal(t, http.StatusOK, rec.Code)

		// history exists but is outside both scopes
		rec = env.request(t, http.MethodGet, fmt.Sprintf("/api/subjects/%d", history.ID), tchToken, nil)
		assert.Equal(t, http.StatusForbidden, rec.Code)

		rec = env.request(t, http.MethodGet, fmt.Sprintf("/api/subjects/%d", history.ID), studToken, nil)
		assert.Equal(t, http.StatusForbidden, rec.Code)

		rec = env.request(t, http.MethodGet, "/api/subjects/999", adminToken, nil)
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})

	t.Run("writes are admin only", func(t *testing.T) {
		body := echo.Map{"name": "Chemistry", "code": "CHE101"}

		rec := env.request(t, http.MethodPost, "/api/subjects", tchToken, body)
		require.Equal(t, http.StatusForbidden, rec.Code)

		rec = env.request(t, http.MethodPost, "/api/subjects", adminToken, body)
		require.Equal(t, http.StatusCreated, rec.Code)

		var sub school.Subject
		decode(t, rec, &sub)
		assert.Equal(t, "CHE101", sub.Code)

		// duplicate code
		rec = env.request(t, http.MethodPost, "/api/subjects", adminToken, body)
		require.Equal(t, http.StatusBadRequest, rec.Code)
		var fldErrs map[string]string
		decode(t, rec, &fldErrs)
		assert.Contains(t, fldErrs, "code")
	})

	t.Run("groups and students are admin only", func(t *testing.T) {
		for _, path := range []string{"/api/groups", "/api/students"} {
			rec := env.request(t, http.MethodGet, path, studToken, nil)
			assert.Equal(t, http.StatusForbidden, rec.Code, path)

			rec = env.request(t, http.MethodGet, path, adminToken, nil)
			assert.Equal(t, http.StatusOK, rec.Code, path)
		}
	})
}

func TestSchoolAPI_studentDetail(t *testing.T) {
	env := newTestEnv(t)
	adminToken := env.adminToken(t)

	math := env.createSubject(t, "Math", "MATH101")
	grpA := env.createGroup(t, "cs-2301", math.ID)
	grpB := env.createGroup(t, "cs-2302", math.ID)
	alice := env.createStudent(t, "Alice Bakana", "STU-0001", grpA.ID)
	carol := env.createStudent(t, "Carol Mwamba", "STU-0003", grpB.ID)

	aliceToken := env.token(t, env.registerStudentUser(t, alice, "alicebb"))
	tchUsr, _ := env.registerTeacherUser(t, "kalonji", true, []int{math.ID}, []int{grpA.ID})
	tchToken := env.token(t, tchUsr)

	rec := env.request(t, http.MethodPost, "/api/attendance/mark", adminToken, echo.Map{
		"student_id": alice.ID, "class_id": math.ID, "date": "2023-09-15", "status": "present",
	})
	require.Equal(t, http.StatusCreated, rec.Code)

	path := func(id int) string { return fmt.Sprintf("/api/students/%d", id) }

	t.Run("detail carries the per-subject summary", func(t *testing.T) {
		for _, token := range []string{adminToken, tchToken, aliceToken} {
			rec := env.request(t, http.MethodGet, path(alice.ID), token, nil)
			require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

			var body StudentDetailResponse
			decode(t, rec, &body)
			assert.Equal(t, alice.ID, body.Student.ID)
			require.Len(t, body.Classes, 1)
			assert.Equal(t, 100.0, body.Classes[0].Percent)
		}
	})

	t.Run("out-of-scope students are hidden", func(t *testing.T) {
		// carol's group is not assigned to the teacher
		rec := env.request(t, http.MethodGet, path(carol.ID), tchToken, nil)
		assert.Equal(t, http.StatusNotFound, rec.Code)

		// students never see each other
		rec = env.request(t, http.MethodGet, path(carol.ID), aliceToken, nil)
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})

	t.Run("unknown student", func(t *testing.T) {
		rec := env.request(t, http.MethodGet, path(999), adminToken, nil)
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})
}

func TestSchoolAPI_markRoster(t *testing.T) {
	env := newTestEnv(t)
	adminToken := env.adminToken(t)

	math := env.createSubject(t, "Math", "MATH101")
	physics := env.createSubject(t, "Physics", "PHY101")
	grp := env.createGroup(t, "cs-2301", math.ID, physics.ID)
	alice := env.createStudent(t, "Alice Bakana", "STU-0001", grp.ID)
	bob := env.createStudent(t, "Bob Ilunga", "STU-0002", grp.ID)

	tchUsr, _ := env.registerTeacherUser(t, "kalonji", true, []int{math.ID}, nil)
	tchToken := env.token(t, tchUsr)

	studUsr := env.registerStudentUser(t, alice, "alicebb")
	studToken := env.token(t, studUsr)

	markPath := fmt.Sprintf("/api/subjects/%d/mark", math.ID)

	t.Run("whole roster, absent by default", func(t *testing.T) {
		rec := env.request(t, http.MethodPost, markPath, tchToken, echo.Map{
			"date":     "2023-09-15",
			"statuses": map[int]string{alice.ID: attendance.StatusPresent},
		})
		require.Equal(t, http.StatusOK, rec.Code)

		var atts []attendance.Attendance
		decode(t, rec, &atts)
		require.Len(t, atts, 2)

		byStudent := make(map[int]attendance.Attendance, len(atts))
		for _, att := range atts {
			byStudent[att.StudentID] = att
		}
		assert.Equal(t, attendance.StatusPresent, byStudent[alice.ID].Status)
		assert.Equal(t, attendance.StatusAbsent, byStudent[bob.ID].Status)
	})

	t.Run("students never mark", func(t *testing.T) {
		rec := env.request(t, http.MethodPost, markPath, studToken, echo.Map{"date": "2023-09-15"})
		require.Equal(t, http.StatusForbidden, rec.Code)
	})

	t.Run("teacher held to assigned subjects", func(t *testing.T) {
		rec := env.request(t, http.MethodPost, fmt.Sprintf("/api/subjects/%d/mark", physics.ID), tchToken,
			echo.Map{"date": "2023-09-15"})
		require.Equal(t, http.StatusForbidden, rec.Code)
	})

	t.Run("teacher held to assigned groups", func(t *testing.T) {
		grpB := env.createGroup(t, "cs-2302", math.ID)
		carol := env.createStudent(t, "Carol Mwamba", "STU-0003", grpB.ID)

		scopedUsr, _ := env.registerTeacherUser(t, "mutombo", true, []int{math.ID}, []int{grp.ID})
		scopedToken := env.token(t, scopedUsr)

		rec := env.request(t, http.MethodPost, markPath, scopedToken, echo.Map{
			"date":     "2023-09-16",
			"group_id": grpB.ID,
			"statuses": map[int]string{carol.ID: attendance.StatusPresent},
		})
		require.Equal(t, http.StatusForbidden, rec.Code)

		// the assigned group still works
		rec = env.request(t, http.MethodPost, markPath, scopedToken, echo.Map{
			"date":     "2023-09-16",
			"group_id": grp.ID,
		})
		require.Equal(t, http.StatusOK, rec.Code)

		var atts []attendance.Attendance
		decode(t, rec, &atts)
		require.Len(t, atts, 2)
		for _, att := range atts {
			assert.NotEqual(t, carol.ID, att.StudentID)
		}

		// admins are not narrowed
		rec = env.request(t, http.MethodPost, markPath, adminToken, echo.Map{
			"date":     "2023-09-16",
			"group_id": grpB.ID,
		})
		require.Equal(t, http.StatusOK, rec.Code)
	})

	t.Run("bad date", func(t *testing.T) {
		rec := env.request(t, http.MethodPost, markPath, adminToken, echo.Map{"date": "15/09/2023"})
		require.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("unknown subject", func(t *testing.T) {
		rec := env.request(t, http.MethodPost, "/api/subjects/999/mark", adminToken, echo.Map{"date": "2023-09-15"})
		require.Equal(t, http.StatusNotFound, rec.Code)
	})
}

func TestSchoolAPI_subjectReport(t *testing.T) {
	env := newTestEnv(t)
	adminToken := env.adminToken(t)

	math := env.createSubject(t, "Math", "MATH101")
	grp := env.createGroup(t, "cs-2301", math.ID)
	alice := env.createStudent(t, "Alice Bakana", "STU-0001", grp.ID)
	env.createStudent(t, "Bob Ilunga", "STU-0002", grp.ID)
	env.createStudent(t, "Carol Mwamba", "STU-0003", grp.ID)

	mark := func(studentID int, status string) {
		rec := env.request(t, http.MethodPost, "/api/attendance/mark", adminToken, echo.Map{
			"student_id": studentID, "class_id": math.ID, "date": "2023-09-15", "status": status,
		})
		require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	}
	mark(alice.ID, attendance.StatusPresent)

	reportPath := fmt.Sprintf("/api/subjects/%d/report", math.ID)

	t.Run("unmarked students count in the total only", func(t *testing.T) {
		rec := env.request(t, http.MethodGet, reportPath+"?date=2023-09-15", adminToken, nil)
		require.Equal(t, http.StatusOK, rec.Code)

		var body SubjectReportResponse
		decode(t, rec, &body)
		assert.Equal(t, math.ID, body.SubjectID)
		assert.Equal(t, "2023-09-15", body.Date.String())
		assert.Equal(t, attendance.Stats{Present: 1, Total: 3}, body.Stats)
		require.Len(t, body.Records, 1) // only marked students have rows
		assert.Equal(t, alice.ID, body.Records[0].StudentID)
	})

	t.Run("date defaults to today", func(t *testing.T) {
		rec := env.request(t, http.MethodGet, reportPath, adminToken, nil)
		require.Equal(t, http.StatusOK, rec.Code)

		var body SubjectReportResponse
		decode(t, rec, &body)
		assert.Equal(t, core.Today(), body.Date)
		assert.Equal(t, attendance.Stats{Total: 3}, body.Stats)
		assert.Empty(t, body.Records)
	})

	t.Run("bad date", func(t *testing.T) {
		rec := env.request(t, http.MethodGet, reportPath+"?date=lol", adminToken, nil)
		require.Equal(t, http.StatusBadRequest, rec.Code)

		var fldErrs map[string]string
		decode(t, rec, &fldErrs)
		assert.Contains(t, fldErrs, "date")
	})
}
