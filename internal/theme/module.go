package theme

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const defaultModuleTimeout = 30 * time.Second

var manifestNames = []string{ManifestFileName, "module.json"}

// TemplateExtensions are the suffixes rendered by Apply.
var TemplateExtensions = []string{".j2", ".tmpl"}

// Module is a loaded module directory.
type Module struct {
	Name      string        `json:"name"`
	Enabled   bool          `json:"enabled"`
	OutputDir string        `json:"output_dir,omitempty"`
	Commands  []string      `json:"commands,omitempty"`
	Timeout   time.Duration `json:"timeout,omitempty"`
	Templates []string      `json:"templates,omitempty"`
	Path      string        `json:"-"`
}

// Manifest is the on-disk module.yaml or module.json document.
type Manifest struct {
	Name      string   `yaml:"name" json:"name,omitempty"`
	Enabled   *bool    `yaml:"enabled" json:"enabled,omitempty" jsonschema:"default=true"`
	OutputDir string   `yaml:"output_dir" json:"output_dir,omitempty" jsonschema_description:"Directory rendered templates are written to"`
	Commands  []string `yaml:"commands" json:"commands,omitempty" jsonschema_description:"Shell commands run after rendering"`
	Timeout   string   `yaml:"timeout" json:"timeout,omitempty" jsonschema:"example=30s"`
}

// ParseModuleDir loads the manifest and template list of a module directory.
// A directory without a manifest is a module with defaults.
func ParseModuleDir(dir string) (*Module, error) {
	info, err := os.Stat(dir)
	if err != nil {
		return nil, fmt.Errorf("stat module dir %s: %w", dir, err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("module path %s is not a directory", dir)
	}

	module := &Module{
		Name:    filepath.Base(dir),
		Enabled: true,
		Timeout: defaultModuleTimeout,
		Path:    dir,
	}
	if err := ValidateName(module.Name); err != nil {
		return nil, err
	}

	manifestPath, data, err := readManifest(dir)
	if err != nil {
		return nil, err
	}
	if data != nil {
		if err := module.applyManifest(data); err != nil {
			return nil, fmt.Errorf("parse module manifest %s: %w", manifestPath, err)
		}
	}

	templates, err := listTemplates(filepath.Join(dir, TemplatesDirName))
	if err != nil {
		return nil, fmt.Errorf("list module templates %s: %w", dir, err)
	}
	module.Templates = templates
	return module, nil
}

func readManifest(dir string) (string, []byte, error) {
	for _, name := range manifestNames {
		path := filepath.Join(dir, name)
		data, err := os.ReadFile(path)
		if err == nil {
			return path, data, nil
		}
		if !errors.Is(err, fs.ErrNotExist) {
			return path, nil, fmt.Errorf("read module manifest %s: %w", path, err)
		}
	}
	return "", nil, nil
}

// applyManifest decodes YAML or JSON; JSON is valid YAML.
func (module *Module) applyManifest(data []byte) error {
	var parsed Manifest
	if err := yaml.Unmarshal(data, &parsed); err != nil {
		return err
	}
	if name := strings.TrimSpace(parsed.Name); name != "" && name != module.Name {
		return fmt.Errorf("manifest name %q does not match directory %q", name, module.Name)
	}
	if parsed.Enabled != nil {
		module.Enabled = *parsed.Enabled
	}
	module.OutputDir = strings.TrimSpace(parsed.OutputDir)
	for _, command := range parsed.Commands {
		if command = strings.TrimSpace(command); command != "" {
			module.Commands = append(module.Commands, command)
		}
	}
	if timeout := strings.TrimSpace(parsed.Timeout); timeout != "" {
		duration, err := time.ParseDuration(timeout)
		if err != nil {
			return fmt.Errorf("invalid timeout: %w", err)
		}
		if duration <= 0 {
			return fmt.Errorf("timeout must be positive")
		}
		module.Timeout = duration
	}
	return nil
}

func listTemplates(dir string) ([]string, error) {
	var templates []string
	err := filepath.WalkDir(dir, func(path string, entry fs.DirEntry, err error) error {
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) && path == dir {
				return filepath.SkipDir
			}
			return err
		}
		if entry.IsDir() || !IsTemplateFile(path) {
			return nil
		}
		rel, err := filepath.Rel(dir, path)
		if err != nil {
			return err
		}
		templates = append(templates, rel)
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Strings(templates)
	return templates, nil
}

// IsTemplateFile reports whether path has a template extension.
func IsTemplateFile(path string) bool {
	ext := filepath.Ext(path)
	for _, candidate := range TemplateExtensions {
		if ext == candidate {
			return true
		}
	}
	return false
}

// IsManifestFile reports whether name is a module manifest file name.
func IsManifestFile(name string) bool {
	for _, candidate := range manifestNames {
		if name == candidate {
			return true
		}
	}
	return false
}
