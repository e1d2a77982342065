package echoapi

import (
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/appgen/core"
	"github.com/trezcool/appgen/core/appconfig"
	"github.com/trezcool/appgen/core/asset"
)

var errInvalidForm = errors.New("invalid multipart form")

const (
	multipartOverhead = 64 << 10
	multipartMemory   = 8 << 20
)

type assetApi struct {
	svc *asset.Service
}

type AssetResponse struct {
	Reference asset.Reference `json:"reference"`
}

func registerAssetAPI(app *echo.Echo, limit echo.MiddlewareFunc, svc *asset.Service) {
	api := assetApi{svc: svc}

	app.POST("/assets", api.upload, limit)
	app.GET("/files/*", api.serve)
}

// Handlers

func (api *assetApi) upload(ctx echo.Context) error {
	req := ctx.Request()
	limit := api.svc.MaxBytes() + multipartOverhead
	if req.ContentLength > limit {
		return asset.ErrPayloadTooLarge
	}
	req.Body = http.MaxBytesReader(ctx.Response(), req.Body, limit)
	if err := req.ParseMultipartForm(multipartMemory); err != nil {
		if isBodyTooLarge(err) {
			return asset.ErrPayloadTooLarge
		}
		return core.NewValidationError(errInvalidForm, core.FieldError{Field: "file", Error: "expected a multipart form"})
	}

	var fldErrs []core.FieldError
	kind, err := appconfig.ParseAppKind(ctx.FormValue(appKindParam))
	if err != nil {
		fldErrs = append(fldErrs, fieldErrorsOf(err)...)
	}
	assetKind, err := asset.ParseKind(ctx.FormValue("assetKind"))
	if err != nil {
		fldErrs = append(fldErrs, fieldErrorsOf(err)...)
	}
	fh, err := ctx.FormFile("file")
	if err != nil {
		fldErrs = append(fldErrs, core.FieldError{Field: "file", Error: "this field is required"})
	}
	if len(fldErrs) > 0 {
		return core.NewValidationError(nil, fldErrs...)
	}

	f, err := fh.Open()
	if err != nil {
		return errors.Wrap(err, "opening upload")
	}
	defer f.Close()

	data, err := api.svc.ReadLimited(f)
	if err != nil {
		return err
	}
	ref, err := api.svc.Store(req.Context(), data, kind, assetKind)
	if err != nil {
		return errors.Wrap(err, "storing asset")
	}
	return ctx.JSON(http.StatusCreated, AssetResponse{Reference: ref})
}

func isBodyTooLarge(err error) bool {
	var maxErr *http.MaxBytesError
	return errors.As(err, &maxErr) || strings.Contains(err.Error(), "request body too large")
}

func (api *assetApi) serve(ctx echo.Context) error {
	obj, err := api.svc.Open(ctx.Request().Context(), ctx.Param("*"))
	if err != nil {
		if errors.Cause(err) == asset.ErrNotFound || errors.Is(err, asset.ErrInvalidKey) {
			return errHttpNotFound
		}
		return errors.Wrap(err, "opening file")
	}
	h := ctx.Response().Header()
	// content addressed, never changes
	h.Set(echo.HeaderCacheControl, "public, max-age=31536000, immutable")
	// stored files are data, never documents of this origin
	h.Set(echo.HeaderContentSecurityPolicy, "default-src 'none'; style-src 'unsafe-inline'; sandbox")
	h.Set(echo.HeaderXContentTypeOptions, "nosniff")
	return ctx.Blob(http.StatusOK, obj.ContentType, obj.Data)
}
