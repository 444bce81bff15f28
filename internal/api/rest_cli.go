package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sort"
	"strconv"
	"strings"

	"riceserver/internal/logging"
	"riceserver/internal/theme"
)

const cliUsage = "usage: set theme NAME | set mode MODE | set album NAME|none | random [SUBSTRING] | refresh | list themes|albums|modules|tags"

// cliCommandRequest is the body of POST /v1/cli_command. Args is a command line
// without the program name, for example ["set", "theme", "sunset"].
type cliCommandRequest struct {
	Args []string `json:"args"`
}

// cliRecord is one line of command output.
type cliRecord struct {
	Level   logging.Level `json:"level"`
	Message string        `json:"msg"`
}

type cliChunk struct {
	Chunk int       `json:"chunk"`
	Data  cliRecord `json:"data"`
}

type cliCommand struct {
	name     string
	readOnly bool
	run      func(ctx context.Context, manager *theme.Manager) []cliRecord
}

// handleCLICommand runs a command line against the theme manager and streams
// its output records as newline-delimited JSON. Commands that change state run
// on the apply bridge. A failed selection is reported as an error record, not
// as an HTTP error.
func (h *RestHandler) handleCLICommand(w http.ResponseWriter, r *http.Request) *apiError {
	if r.Method != http.MethodPost {
		return methodNotAllowed(w, "POST")
	}
	if err := h.requireManager(); err != nil {
		return err
	}
	if r.Body == nil {
		return &apiError{Status: http.StatusBadRequest, Message: "invalid request body"}
	}

	var request cliCommandRequest
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(&request); err != nil {
		return &apiError{Status: http.StatusBadRequest, Message: "invalid request body"}
	}
	command, apiErr := parseCLICommand(request.Args)
	if apiErr != nil {
		return apiErr
	}

	var records []cliRecord
	if command.readOnly {
		records = command.run(r.Context(), h.Manager)
	} else {
		if err := h.requireBridge(); err != nil {
			return err
		}
		err := h.Bridge.Run(r.Context(), "cli:"+command.name, func(ctx context.Context) error {
			records = command.run(ctx, h.Manager)
			return nil
		})
		if err != nil {
			return errorFor(err)
		}
	}

	if h.Logger != nil {
		h.Logger.Info("cli command executed", map[string]string{
			"command": strings.Join(request.Args, " "),
			"records": strconv.Itoa(len(records)),
		})
	}
	writeNDJSON(w, records)
	return nil
}

func parseCLICommand(args []string) (cliCommand, *apiError) {
	if len(args) == 0 {
		return cliCommand{}, cliUsageError("missing command")
	}
	switch args[0] {
	case "set":
		if len(args) != 3 {
			return cliCommand{}, cliUsageError("set takes a target and a value")
		}
		value := strings.TrimSpace(args[2])
		switch args[1] {
		case "theme":
			return cliCommand{name: "set_theme", run: func(ctx context.Context, manager *theme.Manager) []cliRecord {
				if err := manager.SetTheme(value); err != nil {
					return []cliRecord{errorRecord(err)}
				}
				return applyRecords(ctx, manager)
			}}, nil
		case "mode":
			return cliCommand{name: "set_mode", run: func(ctx context.Context, manager *theme.Manager) []cliRecord {
				if err := manager.SetMode(value); err != nil {
					return []cliRecord{errorRecord(err)}
				}
				if manager.Config().Theme == "" {
					return []cliRecord{infoRecord("mode set to %s", value)}
				}
				return applyRecords(ctx, manager)
			}}, nil
		case "album":
			album := value
			if album == "none" {
				album = ""
			}
			return cliCommand{name: "set_album", run: func(_ context.Context, manager *theme.Manager) []cliRecord {
				if err := manager.SetActiveAlbum(album); err != nil {
					return []cliRecord{errorRecord(err)}
				}
				return []cliRecord{infoRecord("album set to %s", value)}
			}}, nil
		}
		return cliCommand{}, cliUsageError(fmt.Sprintf("unknown set target %q", args[1]))
	case "random":
		if len(args) > 2 {
			return cliCommand{}, cliUsageError("random takes at most one argument")
		}
		substr := ""
		if len(args) == 2 {
			substr = args[1]
		}
		return cliCommand{name: "random", run: func(ctx context.Context, manager *theme.Manager) []cliRecord {
			name, err := manager.RandomTheme(substr)
			if err != nil {
				return []cliRecord{errorRecord(err)}
			}
			return append([]cliRecord{infoRecord("picked theme %s", name)}, applyRecords(ctx, manager)...)
		}}, nil
	case "refresh":
		if len(args) != 1 {
			return cliCommand{}, cliUsageError("refresh takes no arguments")
		}
		return cliCommand{name: "refresh", run: applyRecords}, nil
	case "list":
		if len(args) != 2 {
			return cliCommand{}, cliUsageError("list takes one argument")
		}
		var names func(*theme.Manager) []string
		switch args[1] {
		case "themes":
			names = func(manager *theme.Manager) []string { return sortedKeys(manager.Themes()) }
		case "albums":
			names = func(manager *theme.Manager) []string { return sortedKeys(manager.Albums()) }
		case "modules":
			names = func(manager *theme.Manager) []string { return sortedKeys(manager.Modules()) }
		case "tags":
			names = func(manager *theme.Manager) []string { return manager.Tags() }
		default:
			return cliCommand{}, cliUsageError(fmt.Sprintf("cannot list %q", args[1]))
		}
		return cliCommand{name: "list", readOnly: true, run: func(_ context.Context, manager *theme.Manager) []cliRecord {
			list := names(manager)
			records := make([]cliRecord, 0, len(list))
			for _, name := range list {
				records = append(records, cliRecord{Level: logging.LevelInfo, Message: name})
			}
			return records
		}}, nil
	}
	return cliCommand{}, cliUsageError(fmt.Sprintf("unknown command %q", args[0]))
}

// applyRecords re-applies the active theme and reports one record per module.
func applyRecords(ctx context.Context, manager *theme.Manager) []cliRecord {
	result, err := manager.Apply(ctx, theme.ApplyRequest{})
	if err != nil && !result.Failed() {
		return []cliRecord{errorRecord(err)}
	}
	records := make([]cliRecord, 0, len(result.Modules)+1)
	for _, module := range result.Modules {
		if module.Error != "" {
			records = append(records, cliRecord{
				Level:   logging.LevelError,
				Message: fmt.Sprintf("module %s failed: %s", module.Name, module.Error),
			})
			continue
		}
		records = append(records, infoRecord("module %s rendered %d files", module.Name, len(module.Rendered)))
	}
	return append(records, infoRecord("applied theme %s (%s)", result.Theme, result.Mode))
}

func writeNDJSON(w http.ResponseWriter, records []cliRecord) {
	w.Header().Set("Content-Type", "application/x-ndjson")
	w.WriteHeader(http.StatusOK)
	flusher, _ := w.(http.Flusher)
	encoder := json.NewEncoder(w)
	for index, record := range records {
		if err := encoder.Encode(cliChunk{Chunk: index, Data: record}); err != nil {
			return
		}
		if flusher != nil {
			flusher.Flush()
		}
	}
}

func infoRecord(format string, args ...any) cliRecord {
	return cliRecord{Level: logging.LevelInfo, Message: fmt.Sprintf(format, args...)}
}

func errorRecord(err error) cliRecord {
	return cliRecord{Level: logging.LevelError, Message: err.Error()}
}

func cliUsageError(message string) *apiError {
	return &apiError{Status: http.StatusBadRequest, Message: message + "; " + cliUsage, Code: "invalid_command"}
}

func sortedKeys[V any](values map[string]V) []string {
	keys := make([]string, 0, len(values))
	for key := range values {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}
