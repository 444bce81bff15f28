package configwatch

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"

	"riceserver/internal/logging"
	"riceserver/internal/theme"
	"riceserver/internal/watcher"

	otelapi "go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// ThemeManager is the part of the theme engine the pipeline drives.
type ThemeManager interface {
	Config() theme.Config
	LoadTheme(name string) error
	RemoveTheme(name string)
	AddAlbum(name string) error
	RemoveAlbum(name string)
	RenameAlbum(oldName, newName string) (bool, error)
	LoadAlbumTheme(album, name string) error
	RemoveAlbumTheme(album, name string)
	LoadModule(name string) (*theme.Module, error)
	RemoveModule(name string)
	ReloadBaseStyle() error
	ResetBaseStyle()
	Apply(ctx context.Context, request theme.ApplyRequest) (theme.ApplyResult, error)
}

// Reapply asks for the active theme to be applied again. An empty Modules
// list means every enabled module.
type Reapply struct {
	Modules []string
	Reason  string
}

// Scope is "full" or "modules".
func (reapply Reapply) Scope() string {
	if len(reapply.Modules) > 0 {
		return "modules"
	}
	return "full"
}

// Dispatcher updates registries for a classified change and decides whether
// the active theme needs to be applied again.
type Dispatcher struct {
	manager ThemeManager
	layout  theme.Layout
	logger  *logging.Logger
}

func NewDispatcher(manager ThemeManager, layout theme.Layout, logger *logging.Logger) *Dispatcher {
	if logger == nil {
		logger = logging.Discard()
	}
	return &Dispatcher{manager: manager, layout: layout, logger: logger}
}

// Handle reacts to one change. The returned bool reports whether a
// re-application is needed.
func (dispatcher *Dispatcher) Handle(ctx context.Context, category Category, change watcher.Change) (Reapply, bool, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	_, span := otelapi.Tracer("riceserver/configwatch").Start(ctx, "configwatch.dispatch",
		trace.WithAttributes(
			attribute.String("change.category", string(category.Kind)),
			attribute.String("change.kind", string(change.Kind)),
			attribute.String("change.path", change.Path),
		),
	)
	defer span.End()

	reapply, ok, err := dispatcher.handle(category, change)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.SetAttributes(attribute.Bool("reapply", ok))
	return reapply, ok, err
}

func (dispatcher *Dispatcher) handle(category Category, change watcher.Change) (Reapply, bool, error) {
	switch category.Kind {
	case CategoryBaseStyle:
		return dispatcher.handleBaseStyle(change)
	case CategoryTheme:
		return dispatcher.handleTheme(category, change)
	case CategoryAlbum:
		return dispatcher.handleAlbum(category, change)
	case CategoryAlbumTheme:
		return dispatcher.handleAlbumTheme(category, change)
	case CategoryModule:
		return dispatcher.handleModule(category, change)
	default:
		return Reapply{}, false, fmt.Errorf("unknown category %q", category.Kind)
	}
}

func (dispatcher *Dispatcher) handleBaseStyle(change watcher.Change) (Reapply, bool, error) {
	switch change.Kind {
	case watcher.KindCreated, watcher.KindModified:
		if err := dispatcher.manager.ReloadBaseStyle(); err != nil {
			return Reapply{}, false, err
		}
		dispatcher.logger.Info("base style reloaded", map[string]string{"path": change.Path})
	case watcher.KindDeleted:
		dispatcher.manager.ResetBaseStyle()
		dispatcher.logger.Info("base style removed, using defaults", map[string]string{"path": change.Path})
	default:
		return Reapply{}, false, nil
	}
	if dispatcher.manager.Config().Theme == "" {
		return Reapply{}, false, nil
	}
	return Reapply{Reason: "base style changed"}, true, nil
}

func (dispatcher *Dispatcher) handleTheme(category Category, change watcher.Change) (Reapply, bool, error) {
	switch change.Kind {
	case watcher.KindCreated, watcher.KindModified:
		if err := dispatcher.manager.LoadTheme(category.Name); err != nil {
			return Reapply{}, false, err
		}
		config := dispatcher.manager.Config()
		if config.Album == "" && config.Theme == category.Name {
			return Reapply{Reason: "active theme changed"}, true, nil
		}
	case watcher.KindDeleted:
		dispatcher.manager.RemoveTheme(category.Name)
		dispatcher.logger.Info("theme deleted", map[string]string{"theme": category.Name})
	}
	return Reapply{}, false, nil
}

func (dispatcher *Dispatcher) handleAlbum(category Category, change watcher.Change) (Reapply, bool, error) {
	switch change.Kind {
	case watcher.KindCreated:
		if err := dispatcher.manager.AddAlbum(category.Name); err != nil {
			return Reapply{}, false, err
		}
		dispatcher.logger.Info("album added", map[string]string{"album": category.Name})
	case watcher.KindDeleted:
		dispatcher.manager.RemoveAlbum(category.Name)
		dispatcher.logger.Info("album removed", map[string]string{"album": category.Name})
	case watcher.KindMoved:
		if filepath.Dir(filepath.Clean(change.Dest)) != dispatcher.layout.AlbumsDir() {
			dispatcher.manager.RemoveAlbum(category.Name)
			dispatcher.logger.Info("album moved away", map[string]string{
				"album": category.Name,
				"dest":  change.Dest,
			})
			return Reapply{}, false, nil
		}
		newName := filepath.Base(change.Dest)
		activeChanged, err := dispatcher.manager.RenameAlbum(category.Name, newName)
		if err != nil {
			return Reapply{}, false, err
		}
		dispatcher.logger.Info("album renamed", map[string]string{
			"from":          category.Name,
			"to":            newName,
			"active_update": fmt.Sprintf("%t", activeChanged),
		})
	}
	return Reapply{}, false, nil
}

func (dispatcher *Dispatcher) handleAlbumTheme(category Category, change watcher.Change) (Reapply, bool, error) {
	switch change.Kind {
	case watcher.KindCreated, watcher.KindModified:
		if err := dispatcher.manager.LoadAlbumTheme(category.Album, category.Name); err != nil {
			return Reapply{}, false, err
		}
		config := dispatcher.manager.Config()
		if config.Album == category.Album && config.Theme == category.Name {
			return Reapply{Reason: "active album theme changed"}, true, nil
		}
	case watcher.KindDeleted:
		dispatcher.manager.RemoveAlbumTheme(category.Album, category.Name)
		dispatcher.logger.Info("album theme deleted", map[string]string{
			"album": category.Album,
			"theme": category.Name,
		})
	}
	return Reapply{}, false, nil
}

func (dispatcher *Dispatcher) handleModule(category Category, change watcher.Change) (Reapply, bool, error) {
	switch change.Kind {
	case watcher.KindDeleted:
		if theme.IsManifestFile(filepath.Base(change.Path)) {
			dispatcher.manager.RemoveModule(category.Name)
			return Reapply{}, false, nil
		}
	case watcher.KindCreated, watcher.KindModified:
	default:
		return Reapply{}, false, nil
	}

	module, err := dispatcher.manager.LoadModule(category.Name)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			dispatcher.manager.RemoveModule(category.Name)
			return Reapply{}, false, nil
		}
		return Reapply{}, false, err
	}
	if module == nil || !module.Enabled {
		return Reapply{}, false, nil
	}
	if dispatcher.manager.Config().Theme == "" {
		return Reapply{}, false, nil
	}
	return Reapply{Modules: []string{module.Name}, Reason: "module changed"}, true, nil
}
