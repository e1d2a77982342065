package preview

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/appgen/core/appconfig"
)

func resolve(t *testing.T, raw appconfig.RawConfig, kind appconfig.AppKind) appconfig.AppConfig {
	t.Helper()
	cfg, err := appconfig.Resolve(raw, kind)
	require.NoError(t, err)
	return cfg
}

func allFeatures(kind appconfig.AppKind) map[string]bool {
	features := make(map[string]bool)
	for _, f := range appconfig.Catalog(kind) {
		features[f.Key] = true
	}
	return features
}

func TestRender_Deterministic(t *testing.T) {
	icon := "assets/guardian/icon/abc.png"
	for _, tmpl := range appconfig.Templates() {
		for _, kind := range appconfig.AllKinds {
			t.Run(tmpl.ID+"/"+string(kind), func(t *testing.T) {
				cfg := resolve(t, appconfig.RawConfig{
					Name:     "Sekolah",
					Version:  "1.0.0",
					Icon:     &icon,
					Template: tmpl.ID,
					Features: allFeatures(kind),
				}, kind)

				first := Render(cfg, kind)
				second := Render(cfg.Clone(), kind)
				assert.True(t, bytes.Equal(first, second), "Render() is not deterministic")
				assert.Equal(t, ETag(first), ETag(second))
			})
		}
	}
}

func TestViews_PrefixConsistent(t *testing.T) {
	catalog := appconfig.Catalog(appconfig.KindInstructor)
	// enable the first n features, for every n
	for n := 0; n <= len(catalog); n++ {
		features := make(map[string]bool)
		for i, f := range catalog {
			features[f.Key] = i < n
		}
		menu, nav := Views(appconfig.AppConfig{Features: features}, appconfig.KindInstructor)

		require.Len(t, menu, min(n, MenuSize))
		require.Len(t, nav, min(n, NavSize))
		for i := range nav {
			assert.Equal(t, menu[i].Key, nav[i].Key, "nav is not a prefix of menu (n=%d)", n)
		}
		for i := range menu {
			assert.Equal(t, catalog[i].Key, menu[i].Key, "menu is not in catalog order (n=%d)", n)
		}
	}
}

func TestViews_CatalogOrder(t *testing.T) {
	cfg := appconfig.AppConfig{Features: map[string]bool{
		"student_profile": true,
		"messages":        true,
		"attendance":      true,
		"payments":        false,
	}}
	menu, _ := Views(cfg, appconfig.KindGuardian)

	keys := make([]string, len(menu))
	for i, it := range menu {
		keys[i] = it.Key
	}
	assert.Equal(t, []string{"attendance", "messages", "student_profile"}, keys)
}

func TestViews_Fallbacks(t *testing.T) {
	// leave_permits has neither a glyph nor a short label
	cfg := appconfig.AppConfig{Features: map[string]bool{"leave_permits": true}}
	menu, nav := Views(cfg, appconfig.KindGuardian)

	require.Len(t, menu, 1)
	assert.Equal(t, genericGlyph, menu[0].Glyph)
	assert.Equal(t, "Leave Permits", menu[0].Label)
	require.Len(t, nav, 1)
	assert.Equal(t, "leave_permits", nav[0].Label)

	assert.NotPanics(t, func() { Render(cfg, appconfig.KindGuardian) })
}

func TestResolvePalette(t *testing.T) {
	tests := []struct {
		name       string
		raw        appconfig.RawConfig
		wantHeader string
		wantIconBg string
	}{
		{
			name:       "global defaults",
			raw:        appconfig.RawConfig{},
			wantHeader: appconfig.GlobalPrimary,
			wantIconBg: appconfig.GlobalPrimary,
		},
		{
			name:       "islamic template default",
			raw:        appconfig.RawConfig{Template: appconfig.TemplateIslamic},
			wantHeader: "#1B5E20",
			wantIconBg: "#1B5E20",
		},
		{
			name:       "config color beats template default",
			raw:        appconfig.RawConfig{Template: appconfig.TemplateIslamic, PrimaryColor: "#AA0000"},
			wantHeader: "#AA0000",
			wantIconBg: "#AA0000",
		},
		{
			name:       "template chrome beats config color, config wins for brand",
			raw:        appconfig.RawConfig{Template: appconfig.TemplateMinimal, PrimaryColor: "#aa0000"},
			wantHeader: "#FFFFFF",
			wantIconBg: "#AA0000",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			pal := ResolvePalette(resolve(t, tt.raw, appconfig.KindGuardian))
			assert.Equal(t, tt.wantHeader, pal.HeaderBackground)
			assert.Equal(t, tt.wantIconBg, pal.IconBackground)
		})
	}
}

func TestRender_IslamicWithoutPrimary(t *testing.T) {
	cfg := resolve(t, appconfig.RawConfig{Name: "Pesantren", Template: "islamic"}, appconfig.KindGuardian)
	markup := string(Render(cfg, appconfig.KindGuardian))

	assert.Contains(t, markup, "--header-bg: #1B5E20;")
	assert.NotContains(t, markup, "--header-bg: "+appconfig.GlobalPrimary)
}

func TestRender_Assets(t *testing.T) {
	icon := "assets/guardian/icon/abc.png"
	splash := "https://cdn.test/splash.png"

	withAssets := Render(resolve(t, appconfig.RawConfig{Icon: &icon, SplashScreen: &splash}, appconfig.KindGuardian), appconfig.KindGuardian)
	assert.Contains(t, string(withAssets), `src="/files/assets/guardian/icon/abc.png"`)
	assert.Contains(t, string(withAssets), `src="https://cdn.test/splash.png"`)

	without := string(Render(appconfig.AppConfig{}, appconfig.KindGuardian))
	assert.Contains(t, without, placeholderGlyph)
	assert.Contains(t, without, "No features enabled")
	assert.False(t, strings.Contains(without, "<img"), "placeholder expected instead of an image")
}

func TestETag(t *testing.T) {
	a := ETag(Markup("a"))
	assert.NotEqual(t, a, ETag(Markup("b")))
	assert.True(t, strings.HasPrefix(a, `"`) && strings.HasSuffix(a, `"`), "etag must be quoted")
}
