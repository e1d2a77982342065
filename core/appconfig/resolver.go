package appconfig

import (
	"sort"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/pkg/errors"

	"github.com/trezcool/appgen/core"
)

var (
	ErrInvalidConfig = errors.New("invalid app config")

	appTemplateTag  = "apptemplate"
	appTemplateText = "{0} must be one of [default islamic modern minimal]"
)

func init() {
	_ = core.Validate.RegisterValidation(appTemplateTag, appTemplateValidation)
	core.RegisterCustomTranslation(appTemplateTag, appTemplateText)
}

func appTemplateValidation(fl validator.FieldLevel) bool {
	_, ok := TemplateByID(fl.Field().String())
	return ok
}

// Resolve validates `raw` against the catalog of `kind` and returns the normalized config.
// All problems are reported at once, in a single *core.ValidationError.
func Resolve(raw RawConfig, kind AppKind) (AppConfig, error) {
	raw = clean(raw)

	var fldErrs []core.FieldError
	if err := core.Validate.Struct(raw); err != nil {
		var vErrs validator.ValidationErrors
		if !errors.As(err, &vErrs) {
			return AppConfig{}, errors.Wrap(err, "validating app config")
		}
		for _, vErr := range vErrs {
			fldErrs = append(fldErrs, core.FieldError{
				Field: vErr.Field(),
				Error: vErr.Translate(core.Translator),
			})
		}
	}

	unknown := make([]string, 0)
	for key := range raw.Features {
		if !IsFeature(kind, key) {
			unknown = append(unknown, key)
		}
	}
	sort.Strings(unknown)
	for _, key := range unknown {
		fldErrs = append(fldErrs, core.FieldError{
			Field: "features." + key,
			Error: "unknown feature for " + string(kind) + " apps",
		})
	}

	if len(fldErrs) > 0 {
		return AppConfig{}, core.NewValidationError(ErrInvalidConfig, fldErrs...)
	}

	cfg := AppConfig{
		ID:             raw.ID,
		Name:           raw.Name,
		DisplayName:    raw.DisplayName,
		Description:    raw.Description,
		Version:        raw.Version,
		BuildNumber:    raw.BuildNumber,
		PrimaryColor:   normalizeColor(raw.PrimaryColor),
		SecondaryColor: normalizeColor(raw.SecondaryColor),
		Icon:           raw.Icon,
		SplashScreen:   raw.SplashScreen,
		Template:       raw.Template,
		Features:       make(map[string]bool, len(raw.Features)),
	}
	if cfg.DisplayName == "" {
		cfg.DisplayName = cfg.Name
	}
	if cfg.Template == "" {
		cfg.Template = TemplateDefault
	}
	for k, v := range raw.Features {
		cfg.Features[k] = v
	}
	return cfg, nil
}

func clean(raw RawConfig) RawConfig {
	raw.ID = core.CleanString(raw.ID)
	raw.Name = core.CleanString(raw.Name)
	raw.DisplayName = core.CleanString(raw.DisplayName)
	raw.Description = core.CleanString(raw.Description)
	raw.Version = core.CleanString(raw.Version)
	raw.PrimaryColor = core.CleanString(raw.PrimaryColor)
	raw.SecondaryColor = core.CleanString(raw.SecondaryColor)
	raw.Template = core.CleanString(raw.Template, true /* lower */)
	if raw.Icon != nil {
		raw.Icon = core.StringPtr(*raw.Icon)
	}
	if raw.SplashScreen != nil {
		raw.SplashScreen = core.StringPtr(*raw.SplashScreen)
	}
	return raw
}

// normalizeColor upper-cases a valid hex color and expands the short form (#RGB).
func normalizeColor(color string) string {
	if color == "" {
		return ""
	}
	color = strings.ToUpper(color)
	digits := color[1:]
	if len(digits) == 3 {
		var sb strings.Builder
		sb.WriteByte('#')
		for _, d := range digits {
			sb.WriteRune(d)
			sb.WriteRune(d)
		}
		return sb.String()
	}
	return color
}
