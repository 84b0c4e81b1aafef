package echoapi

import (
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/atomi7e/att-system-pet/core"
	"github.com/atomi7e/att-system-pet/core/access"
	"github.com/atomi7e/att-system-pet/core/attendance"
	"github.com/atomi7e/att-system-pet/core/school"
	"github.com/atomi7e/att-system-pet/core/user"
)

type schoolApi struct {
	svc           *school.Service
	usrSvc        *user.Service
	accessSvc     *access.Service
	attendanceSvc *attendance.Service
}

func registerSchoolAPI(g *echo.Group, jwt echo.MiddlewareFunc, opts *Options) {
	api := schoolApi{
		svc:           opts.SchoolSvc,
		usrSvc:        opts.UserSvc,
		accessSvc:     opts.AccessSvc,
		attendanceSvc: opts.AttendanceSvc,
	}

	// un-authed: student self-registration against the roster
	g.POST("/register/student", api.registerStudent)

	// subjects: reads are scoped to the caller, writes are admin only
	sg := g.Group("/subjects", jwt)
	sg.GET("", api.querySubjects)
	sg.POST("", api.createSubject, adminMiddleware())
	sg.GET("/:id", api.retrieveSubject)
	sg.PUT("/:id", api.updateSubject, adminMiddleware())
	sg.DELETE("/:id", api.destroySubject, adminMiddleware())
	sg.GET("/:id/groups", api.querySubjectGroups)
	sg.GET("/:id/students", api.querySubjectStudents)
	sg.POST("/:id/mark", api.markSubjectRoster)
	sg.GET("/:id/report", api.subjectReport)

	// groups: admin only
	gg := g.Group("/groups", jwt, adminMiddleware())
	gg.GET("", api.queryGroups)
	gg.POST("", api.createGroup)
	gg.GET("/:id", api.retrieveGroup)
	gg.PUT("/:id", api.updateGroup)
	gg.DELETE("/:id", api.destroyGroup)

	// students: writes and listing are admin only, the detail view is scoped
	// to the caller (self, or a teacher of the student's group)
	stg := g.Group("/students", jwt)
	stg.GET("", api.queryStudents, adminMiddleware())
	stg.POST("", api.createStudent, adminMiddleware())
	stg.GET("/:id", api.retrieveStudent)
	stg.PUT("/:id", api.updateStudent, adminMiddleware())
	stg.DELETE("/:id", api.destroyStudent, adminMiddleware())
}

func pathID(ctx echo.Context) (int, error) {
	id, err := strconv.Atoi(ctx.Param("id"))
	if err != nil {
		return 0, errHttpNotFound
	}
	return id, nil
}

// Subjects

func (api *schoolApi) registerStudent(ctx echo.Context) error {
	var data school.StudentRegistration
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to StudentRegistration")
	}
	if err := data.Validate(api.svc, api.usrSvc); err != nil {
		return err
	}

	std, _, err := api.svc.RegisterStudent(ctx.Request().Context(), data)
	if err != nil {
		switch errors.Cause(err) {
		case school.ErrStudentNotFound:
			return core.NewValidationError(nil, core.FieldError{Field: "student_id", Error: "no matching roster entry"})
		case school.ErrAlreadyLinked:
			return core.NewValidationError(nil, core.FieldError{Field: "student_id", Error: "an account is already registered for this student"})
		}
		return errors.Wrap(err, "registering student")
	}
	return ctx.JSON(http.StatusCreated, std)
}

func (api *schoolApi) querySubjects(ctx echo.Context) error {
	p, err := getContextPrincipal(ctx, api.usrSvc, api.accessSvc)
	if err != nil {
		return err
	}
	subjects, err := api.accessSvc.VisibleSubjects(ctx.Request().Context(), p)
	if err != nil {
		return trapDomainErr(err)
	}
	if subjects == nil {
		subjects = []school.Subject{}
	}
	return ctx.JSON(http.StatusOK, subjects)
}

func (api *schoolApi) createSubject(ctx echo.Context) error {
	var data school.NewSubject
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewSubject")
	}
	if err := data.Validate(api.svc); err != nil {
		return err
	}

	sub, err := api.svc.CreateSubject(ctx.Request().Context(), data)
	if err != nil {
		return errors.Wrap(err, "creating subject")
	}
	return ctx.JSON(http.StatusCreated, sub)
}

func (api *schoolApi) retrieveSubject(ctx echo.Context) error {
	id, err := pathID(ctx)
	if err != nil {
		return err
	}
	p, err := getContextPrincipal(ctx, api.usrSvc, api.accessSvc)
	if err != nil {
		return err
	}
	sub, err := api.accessSvc.CheckSubject(ctx.Request().Context(), p, id)
	if err != nil {
		return trapDomainErr(err)
	}
	return ctx.JSON(http.StatusOK, sub)
}

func (api *schoolApi) updateSubject(ctx echo.Context) error {
	id, err := pathID(ctx)
	if err != nil {
		return err
	}
	orig, err := api.svc.GetSubjectByID(ctx.Request().Context(), id)
	if err != nil {
		return trapDomainErr(err)
	}

	var data school.UpdateSubject
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to UpdateSubject")
	}
	if err := data.Validate(orig, api.svc); err != nil {
		return err
	}

	sub, err := api.svc.UpdateSubject(ctx.Request().Context(), id, data)
	if err != nil {
		return trapDomainErr(errors.Wrap(err, "updating subject"))
	}
	return ctx.JSON(http.StatusOK, sub)
}

func (api *schoolApi) destroySubject(ctx echo.Context) error {
	id, err := pathID(ctx)
	if err != nil {
		return err
	}
	if _, err := api.svc.GetSubjectByID(ctx.Request().Context(), id); err != nil {
		return trapDomainErr(err)
	}
	if err := api.svc.DeleteSubjects(ctx.Request().Context(), id); err != nil {
		return errors.Wrap(err, "deleting subject")
	}
	return ctx.NoContent(http.StatusNoContent)
}

func (api *schoolApi) querySubjectGroups(ctx echo.Context) error {
	id, err := pathID(ctx)
	if err != nil {
		return err
	}
	p, err := getContextPrincipal(ctx, api.usrSvc, api.accessSvc)
	if err != nil {
		return err
	}
	groups, err := api.accessSvc.VisibleGroups(ctx.Request().Context(), p, id)
	if err != nil {
		return trapDomainErr(err)
	}
	if groups == nil {
		groups = []school.Group{}
	}
	return ctx.JSON(http.StatusOK, groups)
}

func (api *schoolApi) querySubjectStudents(ctx echo.Context) error {
	id, err := pathID(ctx)
	if err != nil {
		return err
	}
	p, err := getContextPrincipal(ctx, api.usrSvc, api.accessSvc)
	if err != nil {
		return err
	}
	students, err := api.accessSvc.VisibleStudents(ctx.Request().Context(), p, id)
	if err != nil {
		return trapDomainErr(err)
	}
	if students == nil {
		students = []school.Student{}
	}
	return ctx.JSON(http.StatusOK, students)
}

// markSubjectRoster records a status for every enrolled student in scope,
// defaulting to absent. Repeating the call for the same date overwrites.
func (api *schoolApi) markSubjectRoster(ctx echo.Context) error {
	id, err := pathID(ctx)
	if err != nil {
		return err
	}
	p, err := getContextPrincipal(ctx, api.usrSvc, api.accessSvc)
	if err != nil {
		return err
	}
	if _, err := api.accessSvc.CheckMarker(ctx.Request().Context(), p, id); err != nil {
		return trapDomainErr(err)
	}

	var data attendance.BatchMark
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to BatchMark")
	}
	if err := data.Validate(); err != nil {
		return err
	}
	if data.GroupID != 0 {
		if err := api.accessSvc.CheckGroup(p, data.GroupID); err != nil {
			return trapDomainErr(err)
		}
	}

	atts, err := api.attendanceSvc.MarkRoster(ctx.Request().Context(), id, data, api.accessSvc.GroupScope(p)...)
	if err != nil {
		return trapDomainErr(errors.Wrap(err, "marking roster"))
	}
	return ctx.JSON(http.StatusOK, atts)
}

// subjectReport aggregates one subject and date within the caller's scope.
// Students with no record for the date count in the total only.
func (api *schoolApi) subjectReport(ctx echo.Context) error {
	id, err := pathID(ctx)
	if err != nil {
		return err
	}
	p, err := getContextPrincipal(ctx, api.usrSvc, api.accessSvc)
	if err != nil {
		return err
	}
	if _, err := api.accessSvc.CheckSubject(ctx.Request().Context(), p, id); err != nil {
		return trapDomainErr(err)
	}

	date := core.Today()
	if raw := ctx.QueryParam("date"); raw != "" {
		if date, err = core.ParseDate(raw); err != nil {
			return core.NewValidationError(nil, core.FieldError{Field: "date", Error: "invalid date, expected YYYY-MM-DD"})
		}
	}

	reqCtx := ctx.Request().Context()
	stats, err := api.attendanceSvc.SubjectStats(reqCtx, id, date, api.accessSvc.GroupScope(p)...)
	if err != nil {
		return trapDomainErr(errors.Wrap(err, "aggregating subject"))
	}

	scope, err := api.accessSvc.RecordScope(p)
	if err != nil {
		return trapDomainErr(err)
	}
	atts, err := api.attendanceSvc.Query(reqCtx, attendance.QueryFilter{SubjectID: id, Date: date.String()}, scope)
	if err != nil {
		return errors.Wrap(err, "querying subject records")
	}
	if atts == nil {
		atts = []attendance.Attendance{}
	}
	return ctx.JSON(http.StatusOK, SubjectReportResponse{SubjectID: id, Date: date, Stats: stats, Records: atts})
}

type SubjectReportResponse struct {
	SubjectID int                     `json:"class_id"`
	Date      core.Date               `json:"date"`
	Stats     attendance.Stats        `json:"stats"`
	Records   []attendance.Attendance `json:"records"`
}

// Groups

func (api *schoolApi) queryGroups(ctx echo.Context) error {
	groups, err := api.svc.QueryAllGroups(ctx.Request().Context())
	if err != nil {
		return errors.Wrap(err, "querying groups")
	}
	if groups == nil {
		groups = []school.Group{}
	}
	return ctx.JSON(http.StatusOK, groups)
}

func (api *schoolApi) createGroup(ctx echo.Context) error {
	var data school.NewGroup
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewGroup")
	}
	if err := data.Validate(api.svc); err != nil {
		return err
	}

	grp, err := api.svc.CreateGroup(ctx.Request().Context(), data)
	if err != nil {
		return errors.Wrap(err, "creating group")
	}
	return ctx.JSON(http.StatusCreated, grp)
}

func (api *schoolApi) retrieveGroup(ctx echo.Context) error {
	id, err := pathID(ctx)
	if err != nil {
		return err
	}
	grp, err := api.svc.GetGroupByID(ctx.Request().Context(), id)
	if err != nil {
		return trapDomainErr(err)
	}
	return ctx.JSON(http.StatusOK, grp)
}

func (api *schoolApi) updateGroup(ctx echo.Context) error {
	id, err := pathID(ctx)
	if err != nil {
		return err
	}
	orig, err := api.svc.GetGroupByID(ctx.Request().Context(), id)
	if err != nil {
		return trapDomainErr(err)
	}

	var data school.UpdateGroup
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to UpdateGroup")
	}
	if err := data.Validate(orig, api.svc); err != nil {
		return err
	}

	grp, err := api.svc.UpdateGroup(ctx.Request().Context(), id, data)
	if err != nil {
		return trapDomainErr(errors.Wrap(err, "updating group"))
	}
	return ctx.JSON(http.StatusOK, grp)
}

func (api *schoolApi) destroyGroup(ctx echo.Context) error {
	id, err := pathID(ctx)
	if err != nil {
		return err
	}
	if _, err := api.svc.GetGroupByID(ctx.Request().Context(), id); err != nil {
		return trapDomainErr(err)
	}
	if err := api.svc.DeleteGroups(ctx.Request().Context(), id); err != nil {
		return errors.Wrap(err, "deleting group")
	}
	return ctx.NoContent(http.StatusNoContent)
}

// Students

func (api *schoolApi) queryStudents(ctx echo.Context) error {
	students, err := api.svc.QueryAllStudents(ctx.Request().Context())
	if err != nil {
		return errors.Wrap(err, "querying students")
	}
	if students == nil {
		students = []school.Student{}
	}
	return ctx.JSON(http.StatusOK, students)
}

func (api *schoolApi) createStudent(ctx echo.Context) error {
	var data school.NewStudent
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewStudent")
	}
	if err := data.Validate(api.svc); err != nil {
		return err
	}

	std, err := api.svc.CreateStudent(ctx.Request().Context(), data)
	if err != nil {
		return trapDomainErr(errors.Wrap(err, "creating student"))
	}
	return ctx.JSON(http.StatusCreated, std)
}

// retrieveStudent returns the roster entry plus its per-subject attendance
// summary. Students outside the caller's scope are hidden, not forbidden.
func (api *schoolApi) retrieveStudent(ctx echo.Context) error {
	id, err := pathID(ctx)
	if err != nil {
		return err
	}
	p, err := getContextPrincipal(ctx, api.usrSvc, api.accessSvc)
	if err != nil {
		return err
	}
	std, err := api.accessSvc.CheckStudent(ctx.Request().Context(), p, id)
	if err != nil {
		if errors.Cause(err) == access.ErrDenied {
			return errHttpNotFound
		}
		return trapDomainErr(err)
	}

	breakdown, _, err := api.attendanceSvc.StudentBreakdown(ctx.Request().Context(), std)
	if err != nil {
		return trapDomainErr(errors.Wrap(err, "aggregating student attendance"))
	}
	return ctx.JSON(http.StatusOK, StudentDetailResponse{Student: std, Classes: breakdown})
}

type StudentDetailResponse struct {
	Student school.Student                `json:"student"`
	Classes []attendance.SubjectBreakdown `json:"classes"`
}

func (api *schoolApi) updateStudent(ctx echo.Context) error {
	id, err := pathID(ctx)
	if err != nil {
		return err
	}
	orig, err := api.svc.GetStudentByID(ctx.Request().Context(), id)
	if err != nil {
		return trapDomainErr(err)
	}

	var data school.UpdateStudent
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to UpdateStudent")
	}
	if err := data.Validate(orig, api.svc); err != nil {
		return err
	}

	std, err := api.svc.UpdateStudent(ctx.Request().Context(), id, data)
	if err != nil {
		return trapDomainErr(errors.Wrap(err, "updating student"))
	}
	return ctx.JSON(http.StatusOK, std)
}

func (api *schoolApi) destroyStudent(ctx echo.Context) error {
	id, err := pathID(ctx)
	if err != nil {
		return err
	}
	if _, err := api.svc.GetStudentByID(ctx.Request().Context(), id); err != nil {
		return trapDomainErr(err)
	}
	if err := api.svc.DeleteStudents(ctx.Request().Context(), id); err != nil {
		return errors.Wrap(err, "deleting student")
	}
	return ctx.NoContent(http.StatusNoContent)
}
