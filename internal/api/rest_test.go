package api

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"riceserver/internal/configwatch"
	"riceserver/internal/event"
	"riceserver/internal/logging"
	"riceserver/internal/metrics"
	"riceserver/internal/theme"

	"golang.org/x/time/rate"
)

type testEnv struct {
	server    *httptest.Server
	manager   *theme.Manager
	bus       *event.Bus[event.ThemeEvent]
	bridge    *configwatch.Bridge
	logger    *logging.Logger
	layout    theme.Layout
	outputDir string
}

type testEnvOptions struct {
	token   string
	limiter *rate.Limiter
}

func writeFixture(t *testing.T, path, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir %s: %v", filepath.Dir(path), err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
}

func newTestEnv(t *testing.T, options testEnvOptions) *testEnv {
	t.Helper()
	root := t.TempDir()
	outputDir := t.TempDir()
	layout := theme.NewLayout(root)

	writeFixture(t, layout.BaseStyleFile(), `{"font":"mono","accent":"#000000"}`)
	writeFixture(t, layout.ThemeFile("sunset"), `{"wallpaper":"wall.png","tags":["warm"],"style":{"accent":"#ff8800"}}`)
	writeFixture(t, filepath.Join(root, "themes", "sunset", "wall.png"), "png-bytes")
	writeFixture(t, layout.ThemeFile("forest"), `{"tags":["green","calm"],"style":{"accent":"#228b22"}}`)
	writeFixture(t, layout.AlbumThemeFile("night", "moon"), `{"tags":["cold"]}`)
	writeFixture(t, filepath.Join(layout.ModuleDir("term"), "module.yaml"), "output_dir: "+outputDir+"\n")
	writeFixture(t, filepath.Join(layout.ModuleDir("term"), "templates", "colors.conf.tmpl"), "accent={{ index .Style \"accent\" }}\n")

	ctx, cancel := context.WithCancel(context.Background())
	registry := &metrics.Registry{}
	logger := logging.NewLoggerWithOutput(logging.NewLogBuffer(100), logging.LevelDebug, io.Discard)
	bus := event.NewBus[event.ThemeEvent](ctx, event.BusOptions{Name: "theme_events", Registry: registry})
	manager, err := theme.NewManager(theme.Options{Root: root, Logger: logger, Bus: bus, Metrics: registry})
	if err != nil {
		t.Fatalf("new manager: %v", err)
	}
	if err := manager.Load(); err != nil {
		t.Fatalf("load: %v", err)
	}
	bridge := configwatch.NewBridge(configwatch.BridgeOptions{Logger: logger, Timeout: 5 * time.Second})

	mux := http.NewServeMux()
	RegisterRoutes(mux, Options{
		Manager:      manager,
		Bridge:       bridge,
		Bus:          bus,
		Logger:       logger,
		Metrics:      registry,
		AuthToken:    options.token,
		ApplyLimiter: options.limiter,
	})
	server := httptest.NewServer(mux)

	t.Cleanup(func() {
		server.Close()
		_ = bridge.Close()
		cancel()
		bus.Close()
	})
	return &testEnv{
		server:    server,
		manager:   manager,
		bus:       bus,
		bridge:    bridge,
		logger:    logger,
		layout:    layout,
		outputDir: outputDir,
	}
}

func (env *testEnv) do(t *testing.T, method, path string) *http.Response {
	t.Helper()
	req, err := http.NewRequest(method, env.server.URL+path, nil)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	res, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	t.Cleanup(func() { _ = res.Body.Close() })
	return res
}

func decodeBody(t *testing.T, res *http.Response, target any) {
	t.Helper()
	if err := json.NewDecoder(res.Body).Decode(target); err != nil {
		t.Fatalf("decode body: %v", err)
	}
}

func TestThemesEndpoint(t *testing.T) {
	env := newTestEnv(t, testEnvOptions{})

	res := env.do(t, http.MethodGet, "/v1/themes")
	if res.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", res.StatusCode)
	}
	if res.Header.Get("X-Content-Type-Options") != "nosniff" {
		t.Fatalf("expected security headers")
	}
	var themes map[string]theme.Theme
	decodeBody(t, res, &themes)
	if len(themes) != 2 {
		t.Fatalf("expected 2 themes, got %d", len(themes))
	}
	if themes["sunset"].Style["accent"] != "#ff8800" {
		t.Fatalf("unexpected sunset style %v", themes["sunset"].Style)
	}

	filtered := env.do(t, http.MethodGet, "/v1/themes?tag=calm")
	var calm map[string]theme.Theme
	decodeBody(t, filtered, &calm)
	if len(calm) != 1 {
		t.Fatalf("expected only forest, got %v", calm)
	}
	if _, ok := calm["forest"]; !ok {
		t.Fatalf("expected forest in filtered themes")
	}
}

func TestThemeEndpointNotFound(t *testing.T) {
	env := newTestEnv(t, testEnvOptions{})

	res := env.do(t, http.MethodGet, "/v1/themes/ghost")
	if res.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", res.StatusCode)
	}
	var payload errorResponse
	decodeBody(t, res, &payload)
	if payload.Code != "not_found" {
		t.Fatalf("expected not_found code, got %q", payload.Code)
	}

	ok := env.do(t, http.MethodGet, "/v1/theme/forest")
	if ok.StatusCode != http.StatusOK {
		t.Fatalf("expected legacy route to serve theme, got %d", ok.StatusCode)
	}
}

func TestTagsAlbumsAndBaseStyle(t *testing.T) {
	env := newTestEnv(t, testEnvOptions{})

	var tags []string
	decodeBody(t, env.do(t, http.MethodGet, "/v1/tags"), &tags)
	if strings.Join(tags, ",") != "calm,green,warm" {
		t.Fatalf("unexpected tags %v", tags)
	}

	var albums map[string][]string
	decodeBody(t, env.do(t, http.MethodGet, "/v1/albums"), &albums)
	if len(albums["night"]) != 1 || albums["night"][0] != "moon" {
		t.Fatalf("unexpected albums %v", albums)
	}

	var style map[string]any
	decodeBody(t, env.do(t, http.MethodGet, "/v1/base_style"), &style)
	if style["font"] != "mono" {
		t.Fatalf("unexpected base style %v", style)
	}
}

func TestCurrentThemeSetAndApply(t *testing.T) {
	env := newTestEnv(t, testEnvOptions{})

	res := env.do(t, http.MethodGet, "/v1/current_theme")
	if res.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", res.StatusCode)
	}
	body, _ := io.ReadAll(res.Body)
	if strings.TrimSpace(string(body)) != "null" {
		t.Fatalf("expected null without an active theme, got %s", body)
	}

	put := env.do(t, http.MethodPut, "/v1/current_theme?name=sunset")
	if put.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", put.StatusCode)
	}
	var applied currentThemeResponse
	decodeBody(t, put, &applied)
	if applied.Event != event.TypeThemeApplied || applied.Config.Theme != "sunset" {
		t.Fatalf("unexpected response %+v", applied)
	}
	if len(applied.Result.Modules) != 1 || applied.Result.Modules[0].Error != "" {
		t.Fatalf("unexpected module results %+v", applied.Result.Modules)
	}

	rendered, err := os.ReadFile(filepath.Join(env.outputDir, "colors.conf"))
	if err != nil {
		t.Fatalf("read rendered output: %v", err)
	}
	if string(rendered) != "accent=#ff8800\n" {
		t.Fatalf("unexpected rendered output %q", rendered)
	}

	var current theme.Theme
	decodeBody(t, env.do(t, http.MethodGet, "/v1/current_theme"), &current)
	if current.Name != "sunset" {
		t.Fatalf("expected sunset to be current, got %q", current.Name)
	}
}

func TestCurrentThemeRandomPicksAnotherTheme(t *testing.T) {
	env := newTestEnv(t, testEnvOptions{})
	if err := env.manager.SetTheme("sunset"); err != nil {
		t.Fatalf("set theme: %v", err)
	}

	res := env.do(t, http.MethodPut, "/v1/current_theme?random")
	if res.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", res.StatusCode)
	}
	var applied currentThemeResponse
	decodeBody(t, res, &applied)
	if applied.Config.Theme != "forest" {
		t.Fatalf("expected random choice to avoid the current theme, got %q", applied.Config.Theme)
	}
}

func TestCurrentThemeErrors(t *testing.T) {
	env := newTestEnv(t, testEnvOptions{})

	cases := []struct {
		path   string
		status int
	}{
		{path: "/v1/current_theme", status: http.StatusBadRequest},
		{path: "/v1/current_theme?name=ghost", status: http.StatusNotFound},
		{path: "/v1/current_theme?random=maybe", status: http.StatusBadRequest},
		{path: "/v1/current_theme?name=sunset&mode=sepia", status: http.StatusBadRequest},
	}
	for _, tc := range cases {
		res := env.do(t, http.MethodPut, tc.path)
		if res.StatusCode != tc.status {
			t.Fatalf("PUT %s: expected %d, got %d", tc.path, tc.status, res.StatusCode)
		}
	}

	res := env.do(t, http.MethodDelete, "/v1/current_theme")
	if res.StatusCode != http.StatusMethodNotAllowed {
		t.Fatalf("expected 405, got %d", res.StatusCode)
	}
	if res.Header.Get("Allow") != "GET, PUT" {
		t.Fatalf("unexpected Allow header %q", res.Header.Get("Allow"))
	}
}

func TestCurrentThemeRateLimited(t *testing.T) {
	env := newTestEnv(t, testEnvOptions{limiter: rate.NewLimiter(rate.Every(time.Hour), 1)})

	first := env.do(t, http.MethodPut, "/v1/current_theme?name=forest")
	if first.StatusCode != http.StatusOK {
		t.Fatalf("expected first apply to succeed, got %d", first.StatusCode)
	}
	second := env.do(t, http.MethodPut, "/v1/current_theme?name=sunset")
	if second.StatusCode != http.StatusTooManyRequests {
		t.Fatalf("expected 429, got %d", second.StatusCode)
	}
	read := env.do(t, http.MethodGet, "/v1/current_theme")
	if read.StatusCode != http.StatusOK {
		t.Fatalf("expected reads to bypass the limiter, got %d", read.StatusCode)
	}
}

func TestCurrentThemeAfterBridgeClosed(t *testing.T) {
	env := newTestEnv(t, testEnvOptions{})
	_ = env.bridge.Close()

	res := env.do(t, http.MethodPut, "/v1/current_theme?name=forest")
	if res.StatusCode != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", res.StatusCode)
	}
}

func TestAuthTokenRequired(t *testing.T) {
	env := newTestEnv(t, testEnvOptions{token: "secret"})

	res := env.do(t, http.MethodGet, "/v1/themes")
	if res.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", res.StatusCode)
	}

	withQuery := env.do(t, http.MethodGet, "/v1/themes?token=secret")
	if withQuery.StatusCode != http.StatusOK {
		t.Fatalf("expected query token to pass, got %d", withQuery.StatusCode)
	}

	req, _ := http.NewRequest(http.MethodGet, env.server.URL+"/v1/tags", nil)
	req.Header.Set("Authorization", "Bearer secret")
	withHeader, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	defer withHeader.Body.Close()
	if withHeader.StatusCode != http.StatusOK {
		t.Fatalf("expected bearer token to pass, got %d", withHeader.StatusCode)
	}
}

func TestImageServesOnlyThemeWallpapers(t *testing.T) {
	env := newTestEnv(t, testEnvOptions{})
	wallpaper := filepath.Join(env.layout.ThemesDir(), "sunset", "wall.png")

	res := env.do(t, http.MethodGet, "/v1/image?path="+wallpaper)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", res.StatusCode)
	}
	body, _ := io.ReadAll(res.Body)
	if string(body) != "png-bytes" {
		t.Fatalf("unexpected image body %q", body)
	}

	denied := env.do(t, http.MethodGet, "/v1/image?path="+env.layout.BaseStyleFile())
	if denied.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404 for non-wallpaper path, got %d", denied.StatusCode)
	}
	missing := env.do(t, http.MethodGet, "/v1/image")
	if missing.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400 without path, got %d", missing.StatusCode)
	}
}

func TestSchemaEndpoints(t *testing.T) {
	env := newTestEnv(t, testEnvOptions{})

	var names []string
	decodeBody(t, env.do(t, http.MethodGet, "/v1/schema"), &names)
	if strings.Join(names, ",") != "config,module,theme" {
		t.Fatalf("unexpected schema names %v", names)
	}

	res := env.do(t, http.MethodGet, "/v1/schema/theme.json")
	if res.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", res.StatusCode)
	}
	if res.Header.Get("Content-Type") != "application/schema+json" {
		t.Fatalf("unexpected content type %q", res.Header.Get("Content-Type"))
	}
	var document map[string]any
	decodeBody(t, res, &document)
	if document["title"] != "theme.json" {
		t.Fatalf("unexpected schema title %v", document["title"])
	}

	missing := env.do(t, http.MethodGet, "/v1/schema/nope")
	if missing.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", missing.StatusCode)
	}
}

func TestStatusAndMetrics(t *testing.T) {
	env := newTestEnv(t, testEnvOptions{})
	env.do(t, http.MethodPut, "/v1/current_theme?name=forest")

	var status statusResponse
	decodeBody(t, env.do(t, http.MethodGet, "/v1/status"), &status)
	if status.ThemeCount != 2 || status.AlbumCount != 1 || status.ModuleCount != 1 {
		t.Fatalf("unexpected counts %+v", status)
	}
	if status.Config.Theme != "forest" {
		t.Fatalf("expected forest in status config, got %q", status.Config.Theme)
	}
	if status.Pipeline.Applies["full"] != 1 {
		t.Fatalf("expected one full apply, got %v", status.Pipeline.Applies)
	}

	res := env.do(t, http.MethodGet, "/metrics")
	body, _ := io.ReadAll(res.Body)
	if !strings.Contains(string(body), `riceserver_apply_duration_seconds_count{scope="full"} 1`) {
		t.Fatalf("expected apply metric in output:\n%s", body)
	}
	if !strings.Contains(string(body), `riceserver_http_requests_total{route="/v1/status",status="2xx"} 1`) {
		t.Fatalf("expected http request metric in output:\n%s", body)
	}
}

func TestLogsEndpoint(t *testing.T) {
	env := newTestEnv(t, testEnvOptions{})
	env.logger.Warn("module render slow", map[string]string{"module": "term"})

	var entries []logging.LogEntry
	decodeBody(t, env.do(t, http.MethodGet, "/v1/logs?level=warning"), &entries)
	if len(entries) == 0 {
		t.Fatalf("expected warning entries")
	}
	for _, entry := range entries {
		if !logging.LevelAtLeast(entry.Level, logging.LevelWarning) {
			t.Fatalf("unexpected level %q in filtered logs", entry.Level)
		}
	}
	if entries[len(entries)-1].Message != "module render slow" {
		t.Fatalf("unexpected last entry %+v", entries[len(entries)-1])
	}

	invalid := env.do(t, http.MethodGet, "/v1/logs?limit=-1")
	if invalid.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400 for invalid limit, got %d", invalid.StatusCode)
	}
	if res := env.do(t, http.MethodPost, "/v1/logs"); res.StatusCode != http.StatusMethodNotAllowed {
		t.Fatalf("expected 405 for POST logs, got %d", res.StatusCode)
	}
}
