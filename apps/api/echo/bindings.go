package echoapi

import (
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/trezcool/appgen/core"
	"github.com/trezcool/appgen/core/appconfig"
	"github.com/trezcool/appgen/core/build"
)

const (
	appKindParam  = "appKind"
	platformParam = "platform"
	statusParam   = "status"
	limitParam    = "limit"
)

// jobQuery binds the build history filter from query params.
type jobQuery struct {
	build.Filter
}

func (q *jobQuery) Bind(ctx echo.Context) error {
	var fldErrs []core.FieldError

	if v := ctx.QueryParam(appKindParam); v != "" {
		kind, err := appconfig.ParseAppKind(v)
		if err != nil {
			fldErrs = append(fldErrs, fieldErrorsOf(err)...)
		}
		q.AppKind = kind
	}
	if v := ctx.QueryParam(platformParam); v != "" {
		platform, err := appconfig.ParsePlatform(v)
		if err != nil {
			fldErrs = append(fldErrs, fieldErrorsOf(err)...)
		}
		q.Platform = platform
	}
	if v := ctx.QueryParam(statusParam); v != "" {
		status := build.Status(core.CleanString(v, true /* lower */))
		if !status.IsValid() {
			fldErrs = append(fldErrs, core.FieldError{Field: statusParam, Error: "unknown build status"})
		}
		q.Status = status
	}
	if v := ctx.QueryParam(limitParam); v != "" {
		limit, err := strconv.Atoi(v)
		if err != nil || limit < 0 {
			fldErrs = append(fldErrs, core.FieldError{Field: limitParam, Error: "limit must be a positive integer"})
		}
		q.Limit = limit
	}

	if len(fldErrs) > 0 {
		return core.NewValidationError(nil, fldErrs...)
	}
	return nil
}

func fieldErrorsOf(err error) []core.FieldError {
	if vErr, ok := err.(*core.ValidationError); ok {
		return vErr.Fields
	}
	return []core.FieldError{{Field: "", Error: err.Error()}}
}
