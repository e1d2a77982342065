package echoapi

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/appgen/core"
	"github.com/trezcool/appgen/core/build"
	"github.com/trezcool/appgen/core/events"
)

type buildApi struct {
	svc *build.Service
	hub *events.Hub
	log core.Logger
}

type SubmitResponse struct {
	JobID  string       `json:"jobId"`
	Status build.Status `json:"status"`
}

func registerBuildAPI(app *echo.Echo, limit, webhookAuth echo.MiddlewareFunc, svc *build.Service, hub *events.Hub, log core.Logger) {
	api := buildApi{svc: svc, hub: hub, log: log}

	bg := app.Group("/builds")
	bg.POST("", api.submit, limit)
	bg.GET("", api.query)
	bg.GET("/events", api.stream)

	dg := bg.Group("/:id")
	dg.GET("", api.retrieve)
	dg.POST("/cancel", api.cancel, limit)
	dg.POST("/events", api.report, webhookAuth)
}

// Handlers

func (api *buildApi) submit(ctx echo.Context) error {
	var data build.SubmitRequest
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to SubmitRequest")
	}

	job, err := api.svc.Submit(ctx.Request().Context(), data)
	if err != nil {
		return errors.Wrap(err, "submitting build")
	}
	return ctx.JSON(http.StatusAccepted, SubmitResponse{JobID: job.ID, Status: job.Status})
}

func (api *buildApi) query(ctx echo.Context) error {
	var q jobQuery
	if err := q.Bind(ctx); err != nil {
		return err
	}
	jobs, err := api.svc.List(ctx.Request().Context(), q.Filter)
	if err != nil {
		return errors.Wrap(err, "listing builds")
	}
	return ctx.JSON(http.StatusOK, jobs)
}

func (api *buildApi) retrieve(ctx echo.Context) error {
	job, err := api.svc.Get(ctx.Request().Context(), ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "getting build")
	}
	return ctx.JSON(http.StatusOK, job)
}

func (api *buildApi) cancel(ctx echo.Context) error {
	job, err := api.svc.Cancel(ctx.Request().Context(), ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "cancelling build")
	}
	return ctx.JSON(http.StatusAccepted, job)
}

func (api *buildApi) report(ctx echo.Context) error {
	var data build.Update
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to Update")
	}
	if err := api.svc.Report(ctx.Request().Context(), ctx.Param("id"), data); err != nil {
		return errors.Wrap(err, "reporting build update")
	}
	return ctx.NoContent(http.StatusAccepted)
}
