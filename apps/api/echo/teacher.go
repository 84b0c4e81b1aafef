package echoapi

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/atomi7e/att-system-pet/core"
	"github.com/atomi7e/att-system-pet/core/teacher"
	"github.com/atomi7e/att-system-pet/core/user"
)

type teacherApi struct {
	svc    *teacher.Service
	usrSvc *user.Service
}

func registerTeacherAPI(g *echo.Group, jwt echo.MiddlewareFunc, opts *Options) {
	api := teacherApi{svc: opts.TeacherSvc, usrSvc: opts.UserSvc}

	// un-authed: registration lands in the pending queue
	g.POST("/register/teacher", api.register)

	// the approval workflow is admin territory
	tg := g.Group("/teachers", jwt, adminMiddleware())
	tg.GET("", api.query)
	tg.GET("/:id", api.retrieve)
	tg.POST("/:id/approve", api.approve)
	tg.POST("/:id/reject", api.reject)
	tg.PUT("/:id/assignments", api.assign)
	tg.DELETE("/:id", api.destroy)
}

func (api *teacherApi) register(ctx echo.Context) error {
	var data teacher.Registration
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to Registration")
	}
	if err := data.Validate(api.usrSvc); err != nil {
		return err
	}

	tch, _, err := api.svc.Register(ctx.Request().Context(), data)
	if err != nil {
		return errors.Wrap(err, "registering teacher")
	}
	return ctx.JSON(http.StatusCreated, tch)
}

func (api *teacherApi) query(ctx echo.Context) error {
	reqCtx := ctx.Request().Context()

	var teachers []teacher.Teacher
	var err error
	if status := core.CleanString(ctx.QueryParam("status"), true /* lower */); status != "" {
		teachers, err = api.svc.QueryByStatus(reqCtx, status)
	} else {
		teachers, err = api.svc.QueryAll(reqCtx)
	}
	if err != nil {
		return errors.Wrap(err, "querying teachers")
	}
	if teachers == nil {
		teachers = []teacher.Teacher{}
	}
	return ctx.JSON(http.StatusOK, teachers)
}

func (api *teacherApi) retrieve(ctx echo.Context) error {
	id, err := pathID(ctx)
	if err != nil {
		return err
	}
	tch, err := api.svc.GetByID(ctx.Request().Context(), id)
	if err != nil {
		return trapDomainErr(err)
	}
	return ctx.JSON(http.StatusOK, tch)
}

func (api *teacherApi) approve(ctx echo.Context) error {
	id, err := pathID(ctx)
	if err != nil {
		return err
	}
	reviewer, err := getContextUser(ctx, api.usrSvc)
	if err != nil {
		return errors.Wrap(err, "getting context user")
	}

	tch, err := api.svc.Approve(ctx.Request().Context(), id, reviewer)
	if err != nil {
		if errors.Cause(err) == teacher.ErrAlreadyReviewed {
			return echo.NewHTTPError(http.StatusConflict, "registration has already been reviewed")
		}
		return trapDomainErr(errors.Wrap(err, "approving teacher"))
	}
	return ctx.JSON(http.StatusOK, tch)
}

func (api *teacherApi) reject(ctx echo.Context) error {
	id, err := pathID(ctx)
	if err != nil {
		return err
	}
	reviewer, err := getContextUser(ctx, api.usrSvc)
	if err != nil {
		return errors.Wrap(err, "getting context user")
	}

	var data teacher.Rejection
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to Rejection")
	}

	tch, err := api.svc.Reject(ctx.Request().Context(), id, reviewer, data.Reason)
	if err != nil {
		if errors.Cause(err) == teacher.ErrAlreadyReviewed {
			return echo.NewHTTPError(http.StatusConflict, "registration has already been reviewed")
		}
		return trapDomainErr(errors.Wrap(err, "rejecting teacher"))
	}
	return ctx.JSON(http.StatusOK, tch)
}

func (api *teacherApi) assign(ctx echo.Context) error {
	id, err := pathID(ctx)
	if err != nil {
		return err
	}

	var data teacher.Assignment
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to Assignment")
	}
	if err := data.Validate(); err != nil {
		return err
	}

	tch, err := api.svc.Assign(ctx.Request().Context(), id, data)
	if err != nil {
		return trapDomainErr(errors.Wrap(err, "assigning teacher"))
	}
	return ctx.JSON(http.StatusOK, tch)
}

func (api *teacherApi) destroy(ctx echo.Context) error {
	id, err := pathID(ctx)
	if err != nil {
		return err
	}
	if _, err := api.svc.GetByID(ctx.Request().Context(), id); err != nil {
		return trapDomainErr(err)
	}
	if err := api.svc.Delete(ctx.Request().Context(), id); err != nil {
		return errors.Wrap(err, "deleting teacher")
	}
	return ctx.NoContent(http.StatusNoContent)
}
