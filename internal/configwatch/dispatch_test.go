package configwatch

import (
	"context"
	"errors"
	"io/fs"
	"path/filepath"
	"testing"

	"riceserver/internal/theme"
	"riceserver/internal/watcher"

	"github.com/stretchr/testify/mock"
)

func newTestDispatcher(manager ThemeManager) (*Dispatcher, theme.Layout) {
	layout := theme.NewLayout(filepath.Join(string(filepath.Separator), "cfg"))
	return NewDispatcher(manager, layout, nil), layout
}

func TestDispatchBaseStyleModifiedReappliesFully(t *testing.T) {
	manager := &mockManager{}
	manager.On("ReloadBaseStyle").Return(nil).Once()
	manager.On("Config").Return(theme.Config{Theme: "sunset"})
	dispatcher, layout := newTestDispatcher(manager)

	reapply, ok, err := dispatcher.Handle(context.Background(), Category{Kind: CategoryBaseStyle},
		watcher.Change{Path: layout.BaseStyleFile(), Kind: watcher.KindModified})
	if err != nil {
		t.Fatalf("handle: %v", err)
	}
	if !ok || reapply.Scope() != "full" {
		t.Fatalf("expected full reapply, got %+v (ok=%v)", reapply, ok)
	}
	manager.AssertExpectations(t)
}

func TestDispatchBaseStyleDeletedResetsToDefault(t *testing.T) {
	manager := &mockManager{}
	manager.On("ResetBaseStyle").Return().Once()
	manager.On("Config").Return(theme.Config{Theme: "sunset"})
	dispatcher, layout := newTestDispatcher(manager)

	_, ok, err := dispatcher.Handle(context.Background(), Category{Kind: CategoryBaseStyle},
		watcher.Change{Path: layout.BaseStyleFile(), Kind: watcher.KindDeleted})
	if err != nil || !ok {
		t.Fatalf("expected reapply after reset, got ok=%v err=%v", ok, err)
	}
	manager.AssertExpectations(t)
	manager.AssertNotCalled(t, "ReloadBaseStyle")
}

func TestDispatchBaseStyleWithoutActiveTheme(t *testing.T) {
	manager := &mockManager{}
	manager.On("ReloadBaseStyle").Return(nil)
	manager.On("Config").Return(theme.Config{})
	dispatcher, layout := newTestDispatcher(manager)

	if _, ok, err := dispatcher.Handle(context.Background(), Category{Kind: CategoryBaseStyle},
		watcher.Change{Path: layout.BaseStyleFile(), Kind: watcher.KindCreated}); ok || err != nil {
		t.Fatalf("expected no reapply without active theme, got ok=%v err=%v", ok, err)
	}
}

func TestDispatchThemeModified(t *testing.T) {
	cases := []struct {
		name    string
		config  theme.Config
		reapply bool
	}{
		{name: "active", config: theme.Config{Theme: "sunset"}, reapply: true},
		{name: "inactive", config: theme.Config{Theme: "forest"}},
		{name: "shadowed by album", config: theme.Config{Theme: "sunset", Album: "dark"}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			manager := &mockManager{}
			manager.On("LoadTheme", "sunset").Return(nil).Once()
			manager.On("Config").Return(tc.config)
			dispatcher, layout := newTestDispatcher(manager)

			reapply, ok, err := dispatcher.Handle(context.Background(), Category{Kind: CategoryTheme, Name: "sunset"},
				watcher.Change{Path: layout.ThemeFile("sunset"), Kind: watcher.KindModified})
			if err != nil {
				t.Fatalf("handle: %v", err)
			}
			if ok != tc.reapply {
				t.Fatalf("expected reapply=%v, got %v", tc.reapply, ok)
			}
			if ok && reapply.Scope() != "full" {
				t.Fatalf("expected full scope, got %s", reapply.Scope())
			}
			manager.AssertExpectations(t)
		})
	}
}

func TestDispatchThemeDeletedRemovesWithoutReapply(t *testing.T) {
	manager := &mockManager{}
	manager.On("RemoveTheme", "sunset").Return().Once()
	dispatcher, layout := newTestDispatcher(manager)

	_, ok, err := dispatcher.Handle(context.Background(), Category{Kind: CategoryTheme, Name: "sunset"},
		watcher.Change{Path: layout.ThemeFile("sunset"), Kind: watcher.KindDeleted})
	if err != nil || ok {
		t.Fatalf("expected removal only, got ok=%v err=%v", ok, err)
	}
	manager.AssertExpectations(t)
	manager.AssertNotCalled(t, "Apply", mock.Anything, mock.Anything)
}

func TestDispatchThemeParseErrorPropagates(t *testing.T) {
	manager := &mockManager{}
	parseErr := errors.New("parse theme file: unexpected EOF")
	manager.On("LoadTheme", "sunset").Return(parseErr)
	dispatcher, layout := newTestDispatcher(manager)

	_, ok, err := dispatcher.Handle(context.Background(), Category{Kind: CategoryTheme, Name: "sunset"},
		watcher.Change{Path: layout.ThemeFile("sunset"), Kind: watcher.KindModified})
	if !errors.Is(err, parseErr) || ok {
		t.Fatalf("expected parse error without reapply, got ok=%v err=%v", ok, err)
	}
}

func TestDispatchModuleModified(t *testing.T) {
	cases := []struct {
		name    string
		enabled bool
	}{
		{name: "enabled", enabled: true},
		{name: "disabled", enabled: false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			manager := &mockManager{}
			manager.On("LoadModule", "weather").Return(&theme.Module{Name: "weather", Enabled: tc.enabled}, nil).Once()
			manager.On("Config").Return(theme.Config{Theme: "sunset"}).Maybe()
			dispatcher, layout := newTestDispatcher(manager)

			reapply, ok, err := dispatcher.Handle(context.Background(), Category{Kind: CategoryModule, Name: "weather"},
				watcher.Change{Path: filepath.Join(layout.ModuleDir("weather"), "module.yaml"), Kind: watcher.KindModified})
			if err != nil {
				t.Fatalf("handle: %v", err)
			}
			if ok != tc.enabled {
				t.Fatalf("expected reapply=%v, got %v", tc.enabled, ok)
			}
			if ok && (len(reapply.Modules) != 1 || reapply.Modules[0] != "weather") {
				t.Fatalf("expected scoped reapply for weather, got %v", reapply.Modules)
			}
			manager.AssertExpectations(t)
		})
	}
}

func TestDispatchModuleManifestDeletedUnloads(t *testing.T) {
	manager := &mockManager{}
	manager.On("RemoveModule", "weather").Return().Once()
	dispatcher, layout := newTestDispatcher(manager)

	_, ok, err := dispatcher.Handle(context.Background(), Category{Kind: CategoryModule, Name: "weather"},
		watcher.Change{Path: filepath.Join(layout.ModuleDir("weather"), "module.json"), Kind: watcher.KindDeleted})
	if err != nil || ok {
		t.Fatalf("expected unload only, got ok=%v err=%v", ok, err)
	}
	manager.AssertExpectations(t)
	manager.AssertNotCalled(t, "LoadModule", mock.Anything)
}

func TestDispatchModuleTemplateDeletedInRemovedDir(t *testing.T) {
	manager := &mockManager{}
	manager.On("LoadModule", "weather").Return(nil, fs.ErrNotExist)
	manager.On("RemoveModule", "weather").Return().Once()
	dispatcher, layout := newTestDispatcher(manager)

	_, ok, err := dispatcher.Handle(context.Background(), Category{Kind: CategoryModule, Name: "weather"},
		watcher.Change{Path: filepath.Join(layout.ModuleDir("weather"), "templates", "a.j2"), Kind: watcher.KindDeleted})
	if err != nil || ok {
		t.Fatalf("expected unload only, got ok=%v err=%v", ok, err)
	}
	manager.AssertExpectations(t)
}

func TestDispatchAlbumMovedRenamesAndKeepsTheme(t *testing.T) {
	manager := &mockManager{}
	manager.On("RenameAlbum", "dark", "midnight").Return(true, nil).Once()
	dispatcher, layout := newTestDispatcher(manager)

	_, ok, err := dispatcher.Handle(context.Background(), Category{Kind: CategoryAlbum, Name: "dark"},
		watcher.Change{Path: layout.AlbumDir("dark"), Dest: layout.AlbumDir("midnight"), Kind: watcher.KindMoved, IsDir: true})
	if err != nil {
		t.Fatalf("handle: %v", err)
	}
	if ok {
		t.Fatal("expected no forced reapply on album rename")
	}
	manager.AssertExpectations(t)
}

func TestDispatchAlbumMovedOutsideRemoves(t *testing.T) {
	manager := &mockManager{}
	manager.On("RemoveAlbum", "dark").Return().Once()
	dispatcher, layout := newTestDispatcher(manager)

	_, _, err := dispatcher.Handle(context.Background(), Category{Kind: CategoryAlbum, Name: "dark"},
		watcher.Change{Path: layout.AlbumDir("dark"), Dest: filepath.Join(layout.Root, "trash", "dark"), Kind: watcher.KindMoved, IsDir: true})
	if err != nil {
		t.Fatalf("handle: %v", err)
	}
	manager.AssertExpectations(t)
	manager.AssertNotCalled(t, "RenameAlbum", mock.Anything, mock.Anything)
}

func TestDispatchAlbumCreatedAndDeleted(t *testing.T) {
	manager := &mockManager{}
	manager.On("AddAlbum", "dark").Return(nil).Once()
	manager.On("RemoveAlbum", "dark").Return().Once()
	dispatcher, layout := newTestDispatcher(manager)
	category := Category{Kind: CategoryAlbum, Name: "dark"}

	if _, _, err := dispatcher.Handle(context.Background(), category, watcher.Change{Path: layout.AlbumDir("dark"), Kind: watcher.KindCreated, IsDir: true}); err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, _, err := dispatcher.Handle(context.Background(), category, watcher.Change{Path: layout.AlbumDir("dark"), Kind: watcher.KindDeleted, IsDir: true}); err != nil {
		t.Fatalf("delete: %v", err)
	}
	manager.AssertExpectations(t)
}

func TestDispatchAlbumThemeModified(t *testing.T) {
	cases := []struct {
		name    string
		config  theme.Config
		reapply bool
	}{
		{name: "active album and theme", config: theme.Config{Album: "dark", Theme: "night"}, reapply: true},
		{name: "active theme other album", config: theme.Config{Album: "light", Theme: "night"}},
		{name: "no album", config: theme.Config{Theme: "night"}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			manager := &mockManager{}
			manager.On("LoadAlbumTheme", "dark", "night").Return(nil).Once()
			manager.On("Config").Return(tc.config)
			dispatcher, layout := newTestDispatcher(manager)

			_, ok, err := dispatcher.Handle(context.Background(), Category{Kind: CategoryAlbumTheme, Album: "dark", Name: "night"},
				watcher.Change{Path: layout.AlbumThemeFile("dark", "night"), Kind: watcher.KindModified})
			if err != nil {
				t.Fatalf("handle: %v", err)
			}
			if ok != tc.reapply {
				t.Fatalf("expected reapply=%v, got %v", tc.reapply, ok)
			}
			manager.AssertExpectations(t)
		})
	}
}

func TestDispatchAlbumThemeDeleted(t *testing.T) {
	manager := &mockManager{}
	manager.On("RemoveAlbumTheme", "dark", "night").Return().Once()
	dispatcher, layout := newTestDispatcher(manager)

	if _, ok, err := dispatcher.Handle(context.Background(), Category{Kind: CategoryAlbumTheme, Album: "dark", Name: "night"},
		watcher.Change{Path: layout.AlbumThemeFile("dark", "night"), Kind: watcher.KindDeleted}); ok || err != nil {
		t.Fatalf("expected removal only, got ok=%v err=%v", ok, err)
	}
	manager.AssertExpectations(t)
}
