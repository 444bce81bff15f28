package main

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"riceserver"
	"riceserver/internal/config"
	"riceserver/internal/fsutil"
	"riceserver/internal/theme"
)

type checkProblem struct {
	Path string
	Err  error
}

// runCheck parses every theme, album theme and module under the config root
// without applying anything. It exits non-zero when any of them is broken.
func runCheck(args []string, out io.Writer, errOut io.Writer) int {
	fs := flag.NewFlagSet("riceserver check", flag.ContinueOnError)
	fs.SetOutput(errOut)
	configDir := fs.String("config-dir", "", "Configuration root")
	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		return 1
	}

	root := strings.TrimSpace(*configDir)
	if root == "" {
		root = strings.TrimSpace(os.Getenv("RICE_CONFIG_DIR"))
	}
	if root == "" {
		root = defaultConfigDir()
	}

	problems, checked := checkConfigRoot(root)
	for _, problem := range problems {
		fmt.Fprintf(errOut, "%s: %v\n", problem.Path, problem.Err)
	}
	fmt.Fprintf(out, "checked %d files in %s, %d problems\n", checked, root, len(problems))
	if len(problems) > 0 {
		return 1
	}
	return 0
}

func checkConfigRoot(root string) ([]checkProblem, int) {
	layout := theme.NewLayout(root)
	problems := []checkProblem{}
	checked := 0

	defaults, err := riceserver.EmbeddedConfigFS.ReadFile(riceserver.DefaultSettingsPath)
	if err == nil {
		settingsPath := filepath.Join(root, config.SettingsFileName)
		if _, statErr := os.Stat(settingsPath); statErr == nil {
			checked++
			if _, err := config.LoadSettings(settingsPath, defaults, nil); err != nil {
				problems = append(problems, checkProblem{Path: settingsPath, Err: err})
			}
		}
	}

	for _, name := range fsutil.ListDirs(layout.ThemesDir()) {
		path := layout.ThemeFile(name)
		checked++
		if _, err := theme.ParseThemeFile(path); err != nil {
			problems = append(problems, checkProblem{Path: path, Err: err})
		}
	}
	for _, album := range fsutil.ListDirs(layout.AlbumsDir()) {
		for _, name := range fsutil.ListDirs(layout.AlbumDir(album)) {
			path := layout.AlbumThemeFile(album, name)
			checked++
			if _, err := theme.ParseThemeFile(path); err != nil {
				problems = append(problems, checkProblem{Path: path, Err: err})
			}
		}
	}
	for _, name := range fsutil.ListDirs(layout.ModulesDir()) {
		dir := layout.ModuleDir(name)
		checked++
		if _, err := theme.ParseModuleDir(dir); err != nil {
			problems = append(problems, checkProblem{Path: dir, Err: err})
		}
	}
	return problems, checked
}
