package echoapi

import (
	"encoding/json"
	"io"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/appgen/core"
	"github.com/trezcool/appgen/core/appconfig"
	"github.com/trezcool/appgen/core/preview"
)

var errInvalidConfigJSON = errors.New("invalid config json")

const maxConfigBytes = 64 << 10

type CatalogResponse struct {
	AppKind  appconfig.AppKind   `json:"appKind"`
	Features []appconfig.Feature `json:"features"`
}

func registerPreviewAPI(app *echo.Echo) {
	app.GET("/preview", previewFromQuery)
	app.POST("/preview", previewFromBody)
	app.GET("/catalog/:appKind", catalog)
	app.GET("/templates", templates)
}

// Handlers

func previewFromQuery(ctx echo.Context) error {
	return renderPreview(ctx, strings.NewReader(ctx.QueryParam("config")))
}

func previewFromBody(ctx echo.Context) error {
	return renderPreview(ctx, io.LimitReader(ctx.Request().Body, maxConfigBytes))
}

func renderPreview(ctx echo.Context, src io.Reader) error {
	kind, err := appconfig.ParseAppKind(ctx.QueryParam(appKindParam))
	if err != nil {
		return err
	}
	raw, err := decodeRawConfig(src)
	if err != nil {
		return err
	}
	cfg, err := appconfig.Resolve(raw, kind)
	if err != nil {
		return err
	}

	markup := preview.Render(cfg, kind)
	etag := preview.ETag(markup)

	header := ctx.Response().Header()
	header.Set(echo.HeaderCacheControl, "no-cache")
	header.Set("ETag", etag)
	if etagMatches(ctx.Request().Header.Get("If-None-Match"), etag) {
		return ctx.NoContent(http.StatusNotModified)
	}
	return ctx.HTMLBlob(http.StatusOK, markup)
}

// decodeRawConfig reads a JSON config, an empty input is an empty config.
func decodeRawConfig(src io.Reader) (appconfig.RawConfig, error) {
	var raw appconfig.RawConfig
	data, err := io.ReadAll(src)
	if err != nil {
		return raw, errors.Wrap(err, "reading config")
	}
	if len(strings.TrimSpace(string(data))) == 0 {
		return raw, nil
	}
	if err = json.Unmarshal(data, &raw); err != nil {
		return raw, core.NewValidationError(errInvalidConfigJSON, core.FieldError{
			Field: "config",
			Error: "config must be a valid JSON object",
		})
	}
	return raw, nil
}

func etagMatches(header, etag string) bool {
	if header == "" {
		return false
	}
	for _, candidate := range strings.Split(header, ",") {
		candidate = strings.TrimPrefix(strings.TrimSpace(candidate), "W/")
		if candidate == "*" || candidate == etag {
			return true
		}
	}
	return false
}

func catalog(ctx echo.Context) error {
	kind, err := appconfig.ParseAppKind(ctx.Param("appKind"))
	if err != nil {
		return errHttpNotFound
	}
	return ctx.JSON(http.StatusOK, CatalogResponse{AppKind: kind, Features: appconfig.Catalog(kind)})
}

func templates(ctx echo.Context) error {
	return ctx.JSON(http.StatusOK, appconfig.Templates())
}
