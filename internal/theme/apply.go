package theme

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"riceserver/internal/event"

	otelapi "go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// ApplyRequest limits a re-application to the named modules. An empty list
// applies every enabled module.
type ApplyRequest struct {
	Modules []string
}

// ModuleResult reports what one module did during Apply.
type ModuleResult struct {
	Name     string        `json:"name"`
	Rendered []string      `json:"rendered,omitempty"`
	Error    string        `json:"error,omitempty"`
	Duration time.Duration `json:"duration"`
}

type ApplyResult struct {
	Theme    string         `json:"theme"`
	Album    string         `json:"album,omitempty"`
	Mode     string         `json:"mode"`
	Modules  []ModuleResult `json:"modules"`
	Duration time.Duration  `json:"duration"`
}

// Failed reports whether any module failed.
func (result ApplyResult) Failed() bool {
	for _, module := range result.Modules {
		if module.Error != "" {
			return true
		}
	}
	return false
}

// Apply renders the active theme through the selected modules. Module
// failures are recorded in the result and joined into the returned error.
func (manager *Manager) Apply(ctx context.Context, request ApplyRequest) (ApplyResult, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	scope := "full"
	if len(request.Modules) > 0 {
		scope = "modules"
	}
	ctx, span := otelapi.Tracer("riceserver/theme").Start(ctx, "theme.apply",
		trace.WithAttributes(
			attribute.String("apply.scope", scope),
			attribute.StringSlice("apply.modules", request.Modules),
		),
	)
	defer span.End()

	start := time.Now()
	result, err := manager.apply(ctx, request)
	result.Duration = time.Since(start)
	manager.metrics.RecordApply(scope, result.Duration, err)

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.SetAttributes(attribute.String("theme.name", result.Theme))

	fields := map[string]string{
		"theme":    result.Theme,
		"scope":    scope,
		"duration": result.Duration.String(),
	}
	if err != nil {
		fields["error"] = err.Error()
		manager.logger.Warn("theme apply failed", fields)
	} else {
		manager.logger.Info("theme applied", fields)
	}

	if result.Theme != "" {
		applied := manager.themeEvent(event.TypeThemeApplied, result.Theme, result.Album)
		for _, module := range result.Modules {
			applied.Modules = append(applied.Modules, module.Name)
		}
		if err != nil {
			applied.Error = err.Error()
		}
		manager.publish(applied)
	}
	return result, err
}

func (manager *Manager) apply(ctx context.Context, request ApplyRequest) (ApplyResult, error) {
	manager.mu.RLock()
	config := manager.config
	if config.Theme == "" {
		manager.mu.RUnlock()
		return ApplyResult{}, ErrNoActiveTheme
	}
	active, err := manager.lookupLocked(config.Album, config.Theme)
	if err != nil {
		manager.mu.RUnlock()
		return ApplyResult{Theme: config.Theme, Album: config.Album, Mode: config.Mode}, err
	}
	style := ResolveStyle(manager.baseStyle, active, config.Mode)
	modules, missing := manager.selectModulesLocked(request.Modules)
	manager.mu.RUnlock()

	result := ApplyResult{Theme: config.Theme, Album: config.Album, Mode: config.Mode}
	data := RenderData{
		Theme:     active.Name,
		Album:     config.Album,
		Mode:      config.Mode,
		Wallpaper: active.Wallpaper,
		Tags:      active.Tags,
		Style:     style,
	}

	var errs []error
	for _, name := range missing {
		result.Modules = append(result.Modules, ModuleResult{Name: name, Error: ErrModuleNotFound.Error()})
		errs = append(errs, fmt.Errorf("%w: %s", ErrModuleNotFound, name))
	}
	for _, module := range modules {
		if err := ctx.Err(); err != nil {
			errs = append(errs, err)
			break
		}
		moduleResult := manager.applyModule(ctx, module, data)
		if moduleResult.Error != "" {
			errs = append(errs, fmt.Errorf("module %s: %s", module.Name, moduleResult.Error))
		}
		result.Modules = append(result.Modules, moduleResult)
	}
	return result, errors.Join(errs...)
}

func (manager *Manager) applyModule(ctx context.Context, module Module, data RenderData) ModuleResult {
	ctx, span := otelapi.Tracer("riceserver/theme").Start(ctx, "theme.apply_module",
		trace.WithAttributes(attribute.String("module.name", module.Name)),
	)
	defer span.End()

	start := time.Now()
	result := ModuleResult{Name: module.Name}
	rendered, err := manager.renderer.Render(module, data)
	result.Rendered = rendered
	if err == nil {
		err = manager.renderer.RunCommands(ctx, module, data)
	}
	if err != nil {
		result.Error = err.Error()
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	result.Duration = time.Since(start)
	return result
}

// selectModulesLocked returns the modules to apply in name order plus the
// requested names that are not loaded. Disabled modules are skipped even when
// requested.
func (manager *Manager) selectModulesLocked(requested []string) ([]Module, []string) {
	var modules []Module
	var missing []string
	if len(requested) == 0 {
		for _, module := range manager.modules {
			if module.Enabled {
				modules = append(modules, *module)
			}
		}
	} else {
		seen := make(map[string]struct{}, len(requested))
		for _, name := range requested {
			name = strings.TrimSpace(name)
			if _, dup := seen[name]; dup || name == "" {
				continue
			}
			seen[name] = struct{}{}
			module, ok := manager.modules[name]
			if !ok {
				missing = append(missing, name)
				continue
			}
			if module.Enabled {
				modules = append(modules, *module)
			}
		}
	}
	sort.Slice(modules, func(i, j int) bool { return modules[i].Name < modules[j].Name })
	return modules, missing
}
