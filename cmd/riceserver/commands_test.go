package main

import (
	"bytes"
	"io"
	"reflect"
	"strings"
	"testing"
)

func stubCommandDeps() commandDeps {
	return commandDeps{
		Stdout:        io.Discard,
		Stderr:        io.Discard,
		RunServer:     func(args []string) int { return 0 },
		RunCheck:      func(args []string, out io.Writer, errOut io.Writer) int { return 0 },
		RunCompletion: func(args []string, out io.Writer, errOut io.Writer) int { return 0 },
	}
}

func TestResolveCommandDefaultsToServer(t *testing.T) {
	deps := stubCommandDeps()
	var gotArgs []string
	deps.RunServer = func(args []string) int {
		gotArgs = append([]string(nil), args...)
		return 4
	}

	if code := run([]string{"--port", "8080"}, deps); code != 4 {
		t.Fatalf("expected code 4, got %d", code)
	}
	if !reflect.DeepEqual(gotArgs, []string{"--port", "8080"}) {
		t.Fatalf("expected args to be forwarded, got %v", gotArgs)
	}
}

func TestResolveCommandCheck(t *testing.T) {
	deps := stubCommandDeps()
	var gotArgs []string
	deps.RunCheck = func(args []string, out io.Writer, errOut io.Writer) int {
		gotArgs = append([]string(nil), args...)
		return 5
	}

	if code := run([]string{"check", "--config-dir", "rice"}, deps); code != 5 {
		t.Fatalf("expected code 5, got %d", code)
	}
	if !reflect.DeepEqual(gotArgs, []string{"--config-dir", "rice"}) {
		t.Fatalf("expected args to be forwarded, got %v", gotArgs)
	}
}

func TestVersionCommandPrintsVersion(t *testing.T) {
	deps := stubCommandDeps()
	out := &bytes.Buffer{}
	deps.Stdout = out

	if code := run([]string{"version"}, deps); code != 0 {
		t.Fatalf("expected code 0, got %d", code)
	}
	if !strings.HasPrefix(out.String(), "riceserver ") {
		t.Fatalf("unexpected version output %q", out.String())
	}
}

func TestCompletionScripts(t *testing.T) {
	for _, shell := range []string{"bash", "zsh"} {
		out := &bytes.Buffer{}
		if code := runCompletion([]string{shell}, out, io.Discard); code != 0 {
			t.Fatalf("%s: expected code 0, got %d", shell, code)
		}
		if !strings.Contains(out.String(), "--config-dir") {
			t.Fatalf("%s: expected --config-dir in script", shell)
		}
	}

	errOut := &bytes.Buffer{}
	if code := runCompletion([]string{"fish"}, io.Discard, errOut); code != 1 {
		t.Fatalf("expected code 1 for unknown shell, got %d", code)
	}
	if !strings.Contains(errOut.String(), "usage:") {
		t.Fatalf("expected usage, got %q", errOut.String())
	}
}
