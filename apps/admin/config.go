package main

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/pkg/errors"
	"github.com/pmezard/go-difflib/difflib"
	"gopkg.in/yaml.v3"

	"github.com/trezcool/appgen/core"
	"github.com/trezcool/appgen/core/appconfig"
	"github.com/trezcool/appgen/core/preview"
)

// loadConfig reads a YAML (or JSON) app config and resolves it for `kind`.
func loadConfig(path string, kind appconfig.AppKind) (appconfig.AppConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return appconfig.AppConfig{}, errors.Wrap(err, "reading config")
	}
	var raw appconfig.RawConfig
	if err = yaml.Unmarshal(data, &raw); err != nil {
		return appconfig.AppConfig{}, errors.Wrapf(err, "parsing %s", path)
	}
	cfg, err := appconfig.Resolve(raw, kind)
	if err != nil {
		return appconfig.AppConfig{}, describe(path, err)
	}
	return cfg, nil
}

// describe flattens validation field errors into a single readable error.
func describe(path string, err error) error {
	vErr, ok := errors.Cause(err).(*core.ValidationError)
	if !ok || len(vErr.Fields) == 0 {
		return errors.Wrap(err, path)
	}
	lines := make([]string, 0, len(vErr.Fields))
	for _, fld := range vErr.Fields {
		lines = append(lines, fmt.Sprintf("  %s: %s", fld.Field, fld.Error))
	}
	return errors.Errorf("%s: invalid config\n%s", path, strings.Join(lines, "\n"))
}

// diff prints a unified diff of the normalized forms of two configs.
func (cli *commandLine) diff(kind, oldPath, newPath string) error {
	appKind, err := appconfig.ParseAppKind(kind)
	if err != nil {
		return err
	}
	oldCfg, err := loadConfig(oldPath, appKind)
	if err != nil {
		return err
	}
	newCfg, err := loadConfig(newPath, appKind)
	if err != nil {
		return err
	}

	oldLines, err := normalizedLines(oldCfg)
	if err != nil {
		return err
	}
	newLines, err := normalizedLines(newCfg)
	if err != nil {
		return err
	}
	out, err := difflib.GetUnifiedDiffString(difflib.UnifiedDiff{
		A:        oldLines,
		B:        newLines,
		FromFile: oldPath,
		ToFile:   newPath,
		Context:  2,
	})
	if err != nil {
		return errors.Wrap(err, "diffing configs")
	}
	if out == "" {
		fmt.Fprintln(cli.out, "no changes")
		return nil
	}
	fmt.Fprint(cli.out, out)
	return nil
}

func normalizedLines(cfg appconfig.AppConfig) ([]string, error) {
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return nil, errors.Wrap(err, "encoding config")
	}
	return difflib.SplitLines(string(data)), nil
}

// preview renders a config the same way the /preview endpoint does.
func (cli *commandLine) preview(kind, path, outPath string) error {
	appKind, err := appconfig.ParseAppKind(kind)
	if err != nil {
		return err
	}
	cfg, err := loadConfig(path, appKind)
	if err != nil {
		return err
	}
	markup := preview.Render(cfg, appKind)
	if outPath == "" {
		_, err = cli.out.Write(markup)
		return err
	}
	if err = os.WriteFile(outPath, markup, 0o644); err != nil {
		return errors.Wrap(err, "writing preview")
	}
	fmt.Fprintf(cli.out, "preview written to %s (etag %s)\n", outPath, preview.ETag(markup))
	return nil
}
