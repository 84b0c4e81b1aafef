package echoapi

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/atomi7e/att-system-pet/core/access"
	"github.com/atomi7e/att-system-pet/core/attendance"
	"github.com/atomi7e/att-system-pet/core/school"
	"github.com/atomi7e/att-system-pet/core/user"
)

type attendanceApi struct {
	svc       *attendance.Service
	usrSvc    *user.Service
	accessSvc *access.Service
}

func registerAttendanceAPI(g *echo.Group, jwt echo.MiddlewareFunc, opts *Options) {
	api := attendanceApi{
		svc:       opts.AttendanceSvc,
		usrSvc:    opts.UserSvc,
		accessSvc: opts.AccessSvc,
	}

	ag := g.Group("/attendance", jwt)
	ag.GET("", api.query)
	ag.POST("/mark", api.mark)
	ag.GET("/:id", api.retrieve)
	ag.PUT("/:id", api.update)
	ag.DELETE("/:id", api.destroy)

	g.GET("/me/attendance", api.myAttendance, jwt)
}

// query lists records within the caller's scope. Filters combine with AND;
// an unparseable date filter is ignored rather than rejected.
func (api *attendanceApi) query(ctx echo.Context) error {
	p, err := getContextPrincipal(ctx, api.usrSvc, api.accessSvc)
	if err != nil {
		return err
	}
	scope, err := api.accessSvc.RecordScope(p)
	if err != nil {
		return trapDomainErr(err)
	}

	var qf attendance.QueryFilter
	if err := ctx.Bind(&qf); err != nil {
		return errors.Wrap(err, "binding to QueryFilter")
	}
	var ord Ordering
	ord.Bind(ctx)

	atts, err := api.svc.Query(ctx.Request().Context(), qf, scope, ord.Orderings...)
	if err != nil {
		return errors.Wrap(err, "querying attendance")
	}
	if atts == nil {
		atts = []attendance.Attendance{}
	}
	return ctx.JSON(http.StatusOK, atts)
}

// mark upserts a single record: 201 on first write for the
// (student, date, subject) key, 200 when an existing mark is overwritten.
func (api *attendanceApi) mark(ctx echo.Context) error {
	p, err := getContextPrincipal(ctx, api.usrSvc, api.accessSvc)
	if err != nil {
		return err
	}

	var data attendance.Mark
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to Mark")
	}
	if err := data.Validate(); err != nil {
		return err
	}
	if _, err := api.accessSvc.CheckMarker(ctx.Request().Context(), p, data.SubjectID); err != nil {
		return trapDomainErr(err)
	}

	att, created, err := api.svc.Record(ctx.Request().Context(), data)
	if err != nil {
		return trapDomainErr(errors.Wrap(err, "recording attendance"))
	}
	if created {
		return ctx.JSON(http.StatusCreated, att)
	}
	return ctx.JSON(http.StatusOK, att)
}

func (api *attendanceApi) getScopedRecord(ctx echo.Context) (attendance.Attendance, access.Principal, error) {
	id, err := pathID(ctx)
	if err != nil {
		return attendance.Attendance{}, access.Principal{}, err
	}
	p, err := getContextPrincipal(ctx, api.usrSvc, api.accessSvc)
	if err != nil {
		return attendance.Attendance{}, access.Principal{}, err
	}
	att, err := api.svc.GetByID(ctx.Request().Context(), id)
	if err != nil {
		return attendance.Attendance{}, access.Principal{}, trapDomainErr(err)
	}
	if err := api.accessSvc.CheckRecord(ctx.Request().Context(), p, att.SubjectID, att.StudentID); err != nil {
		// hide records outside the caller's scope
		if errors.Cause(err) == access.ErrDenied {
			return attendance.Attendance{}, access.Principal{}, errHttpNotFound
		}
		return attendance.Attendance{}, access.Principal{}, trapDomainErr(err)
	}
	return att, p, nil
}

func (api *attendanceApi) retrieve(ctx echo.Context) error {
	att, _, err := api.getScopedRecord(ctx)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, att)
}

func (api *attendanceApi) update(ctx echo.Context) error {
	att, p, err := api.getScopedRecord(ctx)
	if err != nil {
		return err
	}
	// students may look but not touch
	if !(p.IsAdmin() || p.IsTeacher()) {
		return errHttpForbidden
	}

	var data attendance.UpdateAttendance
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to UpdateAttendance")
	}
	if err := data.Validate(); err != nil {
		return err
	}

	att, err = api.svc.Update(ctx.Request().Context(), att.ID, data)
	if err != nil {
		return trapDomainErr(errors.Wrap(err, "updating attendance"))
	}
	return ctx.JSON(http.StatusOK, att)
}

func (api *attendanceApi) destroy(ctx echo.Context) error {
	att, p, err := api.getScopedRecord(ctx)
	if err != nil {
		return err
	}
	if !(p.IsAdmin() || p.IsTeacher()) {
		return errHttpForbidden
	}

	if err := api.svc.Delete(ctx.Request().Context(), att.ID); err != nil {
		return errors.Wrap(err, "deleting attendance")
	}
	return ctx.NoContent(http.StatusNoContent)
}

// myAttendance returns the student's own per-subject summary and records.
func (api *attendanceApi) myAttendance(ctx echo.Context) error {
	p, err := getContextPrincipal(ctx, api.usrSvc, api.accessSvc)
	if err != nil {
		return err
	}
	if !p.IsStudent() {
		return errHttpForbidden
	}

	breakdown, atts, err := api.svc.StudentBreakdown(ctx.Request().Context(), *p.Student)
	if err != nil {
		return trapDomainErr(errors.Wrap(err, "aggregating student attendance"))
	}
	return ctx.JSON(http.StatusOK, MyAttendanceResponse{
		Student: *p.Student,
		Classes: breakdown,
		Records: atts,
	})
}

type MyAttendanceResponse struct {
	Student school.Student                `json:"student"`
	Classes []attendance.SubjectBreakdown `json:"classes"`
	Records []attendance.Attendance       `json:"records"`
}
