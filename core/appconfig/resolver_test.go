package appconfig

import (
	"encoding/json"
	"testing"

	"github.com/pkg/errors"

	"github.com/trezcool/appgen/core"
)

func strPtr(s string) *string { return &s }

func validRaw() RawConfig {
	return RawConfig{
		ID:             "sch-01",
		Name:           "Al Falah Parents",
		Description:    "Guardian app of Al Falah school",
		Version:        "1.2.0",
		BuildNumber:    3,
		PrimaryColor:   "#1b5e20",
		SecondaryColor: "#fc0",
		Icon:           strPtr("assets/guardian/icon/abc.png"),
		SplashScreen:   strPtr("   "),
		Template:       " Islamic ",
		Features: map[string]bool{
			"attendance": true,
			"payments":   false,
			"hafalan":    true,
		},
	}
}

func fieldNames(err error) []string {
	vErr, ok := errors.Cause(err).(*core.ValidationError)
	if !ok {
		return nil
	}
	names := make([]string, 0, len(vErr.Fields))
	for _, f := range vErr.Fields {
		names = append(names, f.Field)
	}
	return names
}

func TestResolve(t *testing.T) {
	tests := []struct {
		name       string
		raw        func() RawConfig
		kind       AppKind
		wantFields []string
	}{
		{name: "valid", raw: validRaw, kind: KindGuardian},
		{
			name: "empty config",
			raw:  func() RawConfig { return RawConfig{} },
			kind: KindInstructor,
		},
		{
			name: "unknown features are sorted",
			raw: func() RawConfig {
				raw := validRaw()
				raw.Features["zzz"] = true
				raw.Features["grade_book"] = false // instructor-only
				return raw
			},
			kind:       KindGuardian,
			wantFields: []string{"features.grade_book", "features.zzz"},
		},
		{
			name: "bad colors",
			raw: func() RawConfig {
				raw := validRaw()
				raw.PrimaryColor = "green"
				raw.SecondaryColor = "#12345G"
				return raw
			},
			kind:       KindGuardian,
			wantFields: []string{"primaryColor", "secondaryColor"},
		},
		{
			name: "alpha colors",
			raw: func() RawConfig {
				raw := validRaw()
				raw.PrimaryColor = "#1b5e"
				raw.SecondaryColor = "#1B5E2080"
				return raw
			},
			kind:       KindGuardian,
			wantFields: []string{"primaryColor", "secondaryColor"},
		},
		{
			name: "unknown template",
			raw: func() RawConfig {
				raw := validRaw()
				raw.Template = "baroque"
				return raw
			},
			kind:       KindGuardian,
			wantFields: []string{"template"},
		},
		{
			name: "bad version and build number",
			raw: func() RawConfig {
				raw := validRaw()
				raw.Version = "v1.2"
				raw.BuildNumber = -1
				return raw
			},
			kind:       KindGuardian,
			wantFields: []string{"version", "buildNumber"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Resolve(tt.raw(), tt.kind)
			if len(tt.wantFields) == 0 {
				if err != nil {
					t.Fatalf("Resolve() error = %v, want nil", err)
				}
				return
			}
			if !core.IsValidationError(err) {
				t.Fatalf("Resolve() error = %v, want a validation error", err)
			}
			if errors.Cause(err).(*core.ValidationError).Err != ErrInvalidConfig {
				t.Errorf("Resolve() error = %v, want %v", err, ErrInvalidConfig)
			}
			got := fieldNames(err)
			if len(got) != len(tt.wantFields) {
				t.Fatalf("Resolve() fields = %v, want %v", got, tt.wantFields)
			}
			for i := range got {
				if got[i] != tt.wantFields[i] {
					t.Errorf("Resolve() fields = %v, want %v", got, tt.wantFields)
				}
			}
		})
	}
}

func TestResolve_Normalizes(t *testing.T) {
	cfg, err := Resolve(validRaw(), KindGuardian)
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	if cfg.PrimaryColor != "#1B5E20" {
		t.Errorf("PrimaryColor = %q, want %q", cfg.PrimaryColor, "#1B5E20")
	}
	if cfg.SecondaryColor != "#FFCC00" {
		t.Errorf("SecondaryColor = %q, want %q", cfg.SecondaryColor, "#FFCC00")
	}
	if cfg.Template != TemplateIslamic {
		t.Errorf("Template = %q, want %q", cfg.Template, TemplateIslamic)
	}
	if cfg.DisplayName != cfg.Name {
		t.Errorf("DisplayName = %q, want name %q", cfg.DisplayName, cfg.Name)
	}
	if cfg.SplashScreen != nil {
		t.Errorf("SplashScreen = %q, want nil", *cfg.SplashScreen)
	}
	if cfg.Icon == nil || *cfg.Icon != "assets/guardian/icon/abc.png" {
		t.Errorf("Icon = %v, want the uploaded reference", cfg.Icon)
	}

	empty, _ := Resolve(RawConfig{}, KindGuardian)
	if empty.Template != TemplateDefault {
		t.Errorf("Template = %q, want %q", empty.Template, TemplateDefault)
	}
}

func TestResolve_IgnoresUnknownFields(t *testing.T) {
	payload := []byte(`{"name": "X", "template": "modern", "fancyNewField": {"a": 1}, "features": {"profile": true}}`)
	var raw RawConfig
	if err := json.Unmarshal(payload, &raw); err != nil {
		t.Fatalf("json.Unmarshal() error = %v", err)
	}
	cfg, err := Resolve(raw, KindInstructor)
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	if !cfg.Features["profile"] {
		t.Error("Features[profile] = false, want true")
	}
}

func TestAppConfig_Clone(t *testing.T) {
	cfg, _ := Resolve(validRaw(), KindGuardian)
	clone := cfg.Clone()

	cfg.Features["attendance"] = false
	*cfg.Icon = "changed"

	if !clone.Features["attendance"] {
		t.Error("clone shares the features map with the original")
	}
	if *clone.Icon != "assets/guardian/icon/abc.png" {
		t.Error("clone shares the icon reference with the original")
	}
}

func TestAppConfig_EnabledFeatures(t *testing.T) {
	cfg := AppConfig{Features: map[string]bool{
		"student_profile": true,
		"attendance":      true,
		"payments":        false,
		"schedule":        true,
	}}
	want := []string{"attendance", "schedule", "student_profile"}

	got := cfg.EnabledFeatures(KindGuardian)
	if len(got) != len(want) {
		t.Fatalf("EnabledFeatures() = %v, want keys %v", got, want)
	}
	for i, f := range got {
		if f.Key != want[i] {
			t.Errorf("EnabledFeatures()[%d] = %q, want %q", i, f.Key, want[i])
		}
	}
}

func TestParseAppKind(t *testing.T) {
	tests := []struct {
		in      string
		want    AppKind
		wantErr bool
	}{
		{in: "guardian", want: KindGuardian},
		{in: " Instructor ", want: KindInstructor},
		{in: "admin", wantErr: true},
		{in: "", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseAppKind(tt.in)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseAppKind() error = %v, wantErr %v", err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("ParseAppKind() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestCatalogs(t *testing.T) {
	for _, kind := range AllKinds {
		features := Catalog(kind)
		if len(features) != 10 {
			t.Errorf("Catalog(%s) has %d features, want 10", kind, len(features))
		}
		seen := make(map[string]bool)
		for _, f := range features {
			if seen[f.Key] {
				t.Errorf("Catalog(%s) has duplicate key %q", kind, f.Key)
			}
			seen[f.Key] = true
		}
	}
}
