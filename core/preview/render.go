// Package preview renders the live preview of a generated app from its config.
// Rendering is pure: no I/O, no randomness and no clock.
package preview

import (
	"bytes"
	"encoding/hex"
	"fmt"
	"html/template"
	"regexp"
	"strings"

	"golang.org/x/crypto/blake2b"

	"github.com/trezcool/appgen/core/appconfig"
	appfs "github.com/trezcool/appgen/fs"
)

const (
	MenuSize = 8
	NavSize  = 5

	defaultHeaderText = "#FFFFFF"
	defaultNavBg      = "#FFFFFF"
	defaultSurface    = "#F9FAFB"
	defaultFont       = "system-ui, -apple-system, Roboto, Helvetica, sans-serif"
	defaultRadius     = 12

	filesPrefix = "/files/"
)

var (
	page = template.Must(template.ParseFS(appfs.FS, "templates/preview/app.gohtml"))

	hexColorRx = regexp.MustCompile(`^#(?:[0-9A-Fa-f]{3}|[0-9A-Fa-f]{4}|[0-9A-Fa-f]{6}|[0-9A-Fa-f]{8})$`)
	fontRx     = regexp.MustCompile(`^[A-Za-z0-9 ,\-]+$`)
)

// Markup is a self-contained HTML document.
type Markup []byte

// Palette is the effective style of a preview, after precedence resolution.
type Palette struct {
	Primary          string
	Secondary        string
	HeaderBackground string
	HeaderText       string
	NavBackground    string
	NavActive        string
	Surface          string
	IconBackground   string
	FontFamily       string
	CornerRadius     int
}

// Item is a feature as shown in the menu grid or the bottom navigation.
type Item struct {
	Key   string
	Label string
	Glyph string
}

// ResolvePalette computes the effective palette of `cfg`.
//
// Template chrome (header, navigation, surface) follows:
// template chrome override > config color > template default > global default.
// Brand elements (icon background) follow: config color > template default > global default.
func ResolvePalette(cfg appconfig.AppConfig) Palette {
	tmpl, ok := appconfig.TemplateByID(cfg.Template)
	if !ok {
		tmpl, _ = appconfig.TemplateByID(appconfig.TemplateDefault)
	}
	primary := firstColor(cfg.PrimaryColor, tmpl.Primary, appconfig.GlobalPrimary)
	secondary := firstColor(cfg.SecondaryColor, tmpl.Secondary, appconfig.GlobalSecondary)

	p := Palette{
		Primary:          primary,
		Secondary:        secondary,
		HeaderBackground: firstColor(tmpl.Chrome.HeaderBackground, primary),
		HeaderText:       firstColor(tmpl.Chrome.HeaderText, defaultHeaderText),
		NavBackground:    firstColor(tmpl.Chrome.NavBackground, defaultNavBg),
		NavActive:        firstColor(tmpl.Chrome.NavActive, primary),
		Surface:          firstColor(tmpl.Chrome.Surface, defaultSurface),
		IconBackground:   primary,
		FontFamily:       defaultFont,
		CornerRadius:     defaultRadius,
	}
	if fontRx.MatchString(tmpl.Chrome.FontFamily) {
		p.FontFamily = tmpl.Chrome.FontFamily
	}
	if tmpl.Chrome.CornerRadius > 0 {
		p.CornerRadius = tmpl.Chrome.CornerRadius
	}
	return p
}

// Views returns the menu grid and the bottom navigation of `cfg`.
// Both are prefixes of the same enabled-features list, so nav is always a prefix of menu.
func Views(cfg appconfig.AppConfig, kind appconfig.AppKind) (menu, nav []Item) {
	enabled := cfg.EnabledFeatures(kind)
	items := make([]Item, len(enabled))
	for i, f := range enabled {
		items[i] = Item{Key: f.Key, Label: f.Label, Glyph: glyphFor(f.Key)}
	}

	menu = items[:min(len(items), MenuSize)]
	nav = make([]Item, min(len(items), NavSize))
	for i := range nav {
		nav[i] = items[i]
		nav[i].Label = shortLabelFor(items[i].Key)
	}
	return menu, nav
}

// Render returns the preview document of `cfg` for `kind`.
// Identical inputs always yield byte-identical output.
func Render(cfg appconfig.AppConfig, kind appconfig.AppKind) Markup {
	pal := ResolvePalette(cfg)
	menu, nav := Views(cfg, kind)

	title := cfg.DisplayName
	if title == "" {
		title = cfg.Name
	}
	if title == "" {
		title = "Untitled app"
	}

	data := struct {
		Title       string
		Template    string
		Kind        string
		Version     string
		BuildNumber int
		Icon        string
		Splash      string
		Placeholder string
		Palette     map[string]template.CSS
		Fixture     fixture
		Menu        []Item
		Nav         []Item
	}{
		Title:       title,
		Template:    cfg.Template,
		Kind:        string(kind),
		Version:     cfg.Version,
		BuildNumber: cfg.BuildNumber,
		Icon:        assetURL(cfg.Icon),
		Splash:      assetURL(cfg.SplashScreen),
		Placeholder: placeholderGlyph,
		// values are validated hex colors, a font list matching fontRx and an integer
		Palette: map[string]template.CSS{
			"Primary":          template.CSS(pal.Primary),
			"Secondary":        template.CSS(pal.Secondary),
			"HeaderBackground": template.CSS(pal.HeaderBackground),
			"HeaderText":       template.CSS(pal.HeaderText),
			"NavBackground":    template.CSS(pal.NavBackground),
			"NavActive":        template.CSS(pal.NavActive),
			"Surface":          template.CSS(pal.Surface),
			"IconBackground":   template.CSS(pal.IconBackground),
			"FontFamily":       template.CSS(pal.FontFamily),
			"Radius":           template.CSS(fmt.Sprintf("%dpx", pal.CornerRadius)),
		},
		Fixture: fixtures[kind],
		Menu:    menu,
		Nav:     nav,
	}

	var buf bytes.Buffer
	if err := page.Execute(&buf, data); err != nil {
		// only reachable through a broken embedded template
		return Markup("<!DOCTYPE html><html><body><p>preview unavailable: " +
			template.HTMLEscapeString(err.Error()) + "</p></body></html>")
	}
	return buf.Bytes()
}

// ETag returns a strong entity tag identifying `m` by content.
func ETag(m Markup) string {
	sum := blake2b.Sum256(m)
	return `"` + hex.EncodeToString(sum[:16]) + `"`
}

type fixture struct {
	Greeting string
	Summary  string
}

// static illustrative content, never derived from real records
var fixtures = map[appconfig.AppKind]fixture{
	appconfig.KindGuardian: {
		Greeting: "Assalamu'alaikum, Bapak Ahmad",
		Summary:  "Fatimah (Grade 5) was present today. Next payment due on the 10th.",
	},
	appconfig.KindInstructor: {
		Greeting: "Assalamu'alaikum, Ustadz Yusuf",
		Summary:  "You have 4 classes today. 2 hafalan reviews are waiting.",
	},
}

func firstColor(candidates ...string) string {
	for _, c := range candidates {
		if hexColorRx.MatchString(c) {
			return strings.ToUpper(c)
		}
	}
	return ""
}

// assetURL turns an asset reference into a URL the preview can load.
// Stored references are served under /files/; absolute URLs are kept.
func assetURL(ref *string) string {
	if ref == nil {
		return ""
	}
	r := strings.TrimSpace(*ref)
	switch {
	case r == "":
		return ""
	case strings.HasPrefix(r, "http://"), strings.HasPrefix(r, "https://"), strings.HasPrefix(r, "/"):
		return r
	default:
		return filesPrefix + r
	}
}
