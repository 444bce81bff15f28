package theme

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"text/template"

	"github.com/Masterminds/sprig/v3"
)

// RenderData is the value templates execute against.
type RenderData struct {
	Theme     string         `json:"theme"`
	Album     string         `json:"album,omitempty"`
	Mode      string         `json:"mode"`
	Wallpaper string         `json:"wallpaper,omitempty"`
	Tags      []string       `json:"tags,omitempty"`
	Style     map[string]any `json:"style"`
}

// Renderer writes module templates and runs module commands.
type Renderer struct {
	Shell string
	Env   []string
}

func NewRenderer() *Renderer {
	return &Renderer{Shell: "/bin/sh"}
}

// Render executes every template of module into its output directory and
// returns the written paths. Output names drop the template extension.
func (renderer *Renderer) Render(module Module, data RenderData) ([]string, error) {
	if len(module.Templates) == 0 {
		return nil, nil
	}
	outputDir := expandPath(module.OutputDir)
	if outputDir == "" {
		return nil, fmt.Errorf("module %s has templates but no output_dir", module.Name)
	}

	written := make([]string, 0, len(module.Templates))
	for _, name := range module.Templates {
		source := filepath.Join(module.Path, TemplatesDirName, name)
		content, err := os.ReadFile(source)
		if err != nil {
			return written, fmt.Errorf("read template %s: %w", source, err)
		}
		tmpl, err := template.New(name).Funcs(sprig.TxtFuncMap()).Option("missingkey=zero").Parse(string(content))
		if err != nil {
			return written, fmt.Errorf("parse template %s: %w", source, err)
		}
		var out bytes.Buffer
		if err := tmpl.Execute(&out, data); err != nil {
			return written, fmt.Errorf("render template %s: %w", source, err)
		}

		target := filepath.Join(outputDir, strings.TrimSuffix(name, filepath.Ext(name)))
		if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
			return written, fmt.Errorf("create output dir: %w", err)
		}
		if err := os.WriteFile(target, out.Bytes(), 0o644); err != nil {
			return written, fmt.Errorf("write %s: %w", target, err)
		}
		written = append(written, target)
	}
	return written, nil
}

// RunCommands runs module commands in order inside the module directory,
// stopping at the first failure. Each command gets the module timeout.
func (renderer *Renderer) RunCommands(ctx context.Context, module Module, data RenderData) error {
	shell := renderer.Shell
	if shell == "" {
		shell = "/bin/sh"
	}
	for _, command := range module.Commands {
		commandCtx, cancel := context.WithTimeout(ctx, module.Timeout)
		cmd := exec.CommandContext(commandCtx, shell, "-c", command)
		cmd.Dir = module.Path
		cmd.Env = append(os.Environ(), renderer.Env...)
		cmd.Env = append(cmd.Env,
			"RICE_THEME="+data.Theme,
			"RICE_ALBUM="+data.Album,
			"RICE_MODE="+data.Mode,
			"RICE_WALLPAPER="+data.Wallpaper,
		)
		output, err := cmd.CombinedOutput()
		cancel()
		if err != nil {
			trimmed := strings.TrimSpace(string(output))
			if trimmed != "" {
				return fmt.Errorf("command %q: %w: %s", command, err, trimmed)
			}
			return fmt.Errorf("command %q: %w", command, err)
		}
	}
	return nil
}

func expandPath(path string) string {
	path = strings.TrimSpace(os.ExpandEnv(path))
	if path == "~" || strings.HasPrefix(path, "~/") {
		if home, err := os.UserHomeDir(); err == nil {
			path = filepath.Join(home, strings.TrimPrefix(path, "~"))
		}
	}
	return path
}
