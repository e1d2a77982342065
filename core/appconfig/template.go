package appconfig

const (
	TemplateDefault = "default"
	TemplateIslamic = "islamic"
	TemplateModern  = "modern"
	TemplateMinimal = "minimal"

	// global palette fallbacks, used when neither the config nor the template sets a color
	GlobalPrimary   = "#2563EB"
	GlobalSecondary = "#F59E0B"
)

// Chrome holds the template-owned style overrides of the app shell.
// Empty values mean "derive from the palette".
type Chrome struct {
	HeaderBackground string `json:"headerBackground,omitempty"`
	HeaderText       string `json:"headerText,omitempty"`
	NavBackground    string `json:"navBackground,omitempty"`
	NavActive        string `json:"navActive,omitempty"`
	Surface          string `json:"surface,omitempty"`
	FontFamily       string `json:"fontFamily,omitempty"`
	CornerRadius     int    `json:"cornerRadius,omitempty"`
}

// Template is a visual style an app can be generated with.
type Template struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Primary   string `json:"primary,omitempty"`
	Secondary string `json:"secondary,omitempty"`
	Chrome    Chrome `json:"chrome"`
}

var templates = []Template{
	{
		ID:   TemplateDefault,
		Name: "Default",
	},
	{
		ID:        TemplateIslamic,
		Name:      "Islamic",
		Primary:   "#1B5E20",
		Secondary: "#C9A227",
		Chrome: Chrome{
			NavBackground: "#FBF7EC",
			Surface:       "#FFFDF7",
			FontFamily:    "Amiri, Georgia, serif",
			CornerRadius:  16,
		},
	},
	{
		ID:        TemplateModern,
		Name:      "Modern",
		Primary:   "#4F46E5",
		Secondary: "#06B6D4",
		Chrome: Chrome{
			Surface:      "#F8FAFC",
			FontFamily:   "Inter, Helvetica, Arial, sans-serif",
			CornerRadius: 20,
		},
	},
	{
		ID:        TemplateMinimal,
		Name:      "Minimal",
		Primary:   "#111827",
		Secondary: "#6B7280",
		Chrome: Chrome{
			HeaderBackground: "#FFFFFF",
			HeaderText:       "#111827",
			NavBackground:    "#FFFFFF",
			Surface:          "#FFFFFF",
			CornerRadius:     4,
		},
	},
}

// Templates returns all templates, in display order.
func Templates() []Template {
	out := make([]Template, len(templates))
	copy(out, templates)
	return out
}

// TemplateByID returns the template identified by `id`.
func TemplateByID(id string) (Template, bool) {
	for _, t := range templates {
		if t.ID == id {
			return t, true
		}
	}
	return Template{}, false
}
