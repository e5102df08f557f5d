// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Prism Contributors

package plugin

import (
	"errors"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/Masterminds/semver/v3"
	"gopkg.in/yaml.v3"
)

// ManifestFile is the metadata file a plugin directory must carry.
const ManifestFile = "plugin.yaml"

var idSegment = regexp.MustCompile(`^[a-z][a-z0-9_]*$`)

// Manifest is the parsed plugin.yaml of a directory plugin. The plugin id
// is not in the manifest; it is inferred from the directory path under
// the search root.
type Manifest struct {
	Name    string `yaml:"name"`
	Author  string `yaml:"author"`
	Version int    `yaml:"version"`
	Purpose string `yaml:"purpose"`

	Required bool `yaml:"required"`
	// Requires is a semver constraint on the proxy version.
	Requires     string   `yaml:"requires"`
	Dependencies []string `yaml:"dependencies"`

	ReloadDependents bool `yaml:"reload_dependents"`
	// SaveOnReload names instance attributes preserved across hot-reload.
	SaveOnReload []string `yaml:"save_on_reload"`

	// Entry is the implementation file, relative to the plugin directory.
	// Defaults to plugin.lua.
	Entry string `yaml:"entry"`
}

// LoadManifest reads and validates the manifest in a plugin directory.
func LoadManifest(dir string) (*Manifest, error) {
	path := filepath.Join(dir, ManifestFile)
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, ErrInvalidManifest(path, err)
	}
	var m Manifest
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, ErrInvalidManifest(path, err)
	}
	if err := m.Validate(); err != nil {
		return nil, ErrInvalidManifest(path, err)
	}
	if m.Entry == "" {
		m.Entry = "plugin.lua"
	}
	return &m, nil
}

// Validate checks the manifest's static fields.
func (m *Manifest) Validate() error {
	if strings.TrimSpace(m.Name) == "" {
		return errors.New("name is required")
	}
	if strings.TrimSpace(m.Author) == "" {
		return errors.New("author is required")
	}
	if m.Version < 1 {
		return errors.New("version must be a positive integer")
	}
	if m.Requires != "" {
		if _, err := semver.NewConstraint(m.Requires); err != nil {
			return err
		}
	}
	return nil
}

// CheckProxyVersion evaluates the requires constraint against the running
// proxy version. A manifest without a constraint accepts any version.
func (m *Manifest) CheckProxyVersion(id string, v *semver.Version) error {
	if m.Requires == "" || v == nil {
		return nil
	}
	c, err := semver.NewConstraint(m.Requires)
	if err != nil {
		return ErrInvalidManifest(id, err)
	}
	if !c.Check(v) {
		return ErrIncompatibleProxy(id, m.Requires, v.String())
	}
	return nil
}

// IDFromPath infers a plugin id from a directory's position under its
// search root: plugins/core/proxy becomes plugins.core.proxy.
func IDFromPath(root, dir string) (string, error) {
	rel, err := filepath.Rel(root, dir)
	if err != nil {
		return "", err
	}
	segments := strings.Split(filepath.ToSlash(rel), "/")
	for _, s := range segments {
		if !idSegment.MatchString(s) {
			return "", errors.New("plugin path segment " + s + " is not a valid id segment")
		}
	}
	return "plugins." + strings.Join(segments, "."), nil
}

func (m *Manifest) info(id, dir string) *Info {
	return &Info{
		ID:               id,
		Name:             m.Name,
		Author:           m.Author,
		Version:          m.Version,
		Purpose:          m.Purpose,
		Required:         m.Required,
		Dependencies:     append([]string(nil), m.Dependencies...),
		ReloadDependents: m.ReloadDependents,
		SaveOnReload:     append([]string(nil), m.SaveOnReload...),
		Path:             dir,
		State:            StateNotImported,
	}
}
