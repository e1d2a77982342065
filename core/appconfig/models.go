package appconfig

// AppConfig is the resolved, normalized description of a generated app.
type AppConfig struct {
	ID             string          `json:"id"`
	Name           string          `json:"name"`
	DisplayName    string          `json:"displayName"`
	Description    string          `json:"description"`
	Version        string          `json:"version"`
	BuildNumber    int             `json:"buildNumber"`
	PrimaryColor   string          `json:"primaryColor"`   // "" when unset
	SecondaryColor string          `json:"secondaryColor"` // "" when unset
	Icon           *string         `json:"icon"`
	SplashScreen   *string         `json:"splashScreen"`
	Template       string          `json:"template"`
	Features       map[string]bool `json:"features"`
}

// Clone returns a deep copy of the config, safe to keep while the original keeps being edited.
func (c AppConfig) Clone() AppConfig {
	clone := c
	if c.Icon != nil {
		icon := *c.Icon
		clone.Icon = &icon
	}
	if c.SplashScreen != nil {
		splash := *c.SplashScreen
		clone.SplashScreen = &splash
	}
	clone.Features = make(map[string]bool, len(c.Features))
	for k, v := range c.Features {
		clone.Features[k] = v
	}
	return clone
}

// EnabledFeatures returns the enabled features of `kind`'s catalog, in catalog order.
func (c AppConfig) EnabledFeatures(kind AppKind) []Feature {
	enabled := make([]Feature, 0, len(catalogs[kind]))
	for _, f := range catalogs[kind] {
		if c.Features[f.Key] {
			enabled = append(enabled, f)
		}
	}
	return enabled
}

// RawConfig is an app config as submitted by the editor. Unknown fields are ignored.
type RawConfig struct {
	ID             string          `json:"id" yaml:"id" validate:"max=64"`
	Name           string          `json:"name" yaml:"name" validate:"max=64"`
	DisplayName    string          `json:"displayName" yaml:"displayName" validate:"max=30"`
	Description    string          `json:"description" yaml:"description" validate:"max=500"`
	Version        string          `json:"version" yaml:"version" validate:"omitempty,semver"`
	BuildNumber    int             `json:"buildNumber" yaml:"buildNumber" validate:"gte=0"`
	PrimaryColor   string          `json:"primaryColor" yaml:"primaryColor" validate:"omitempty,rgbhex"`
	SecondaryColor string          `json:"secondaryColor" yaml:"secondaryColor" validate:"omitempty,rgbhex"`
	Icon           *string         `json:"icon" yaml:"icon" validate:"omitempty,max=512"`
	SplashScreen   *string         `json:"splashScreen" yaml:"splashScreen" validate:"omitempty,max=512"`
	Template       string          `json:"template" yaml:"template" validate:"omitempty,apptemplate"`
	Features       map[string]bool `json:"features" yaml:"features"`
}
