package main

import (
	"fmt"
	"io"
	"os"

	"riceserver/internal/version"
)

type command interface {
	Run(args []string) int
}

type commandDeps struct {
	Stdout        io.Writer
	Stderr        io.Writer
	RunServer     func(args []string) int
	RunCheck      func(args []string, out io.Writer, errOut io.Writer) int
	RunCompletion func(args []string, out io.Writer, errOut io.Writer) int
}

func defaultCommandDeps() commandDeps {
	return commandDeps{
		Stdout:        os.Stdout,
		Stderr:        os.Stderr,
		RunServer:     runServer,
		RunCheck:      runCheck,
		RunCompletion: runCompletion,
	}
}

type serverCommand struct {
	deps commandDeps
}

func (c serverCommand) Run(args []string) int {
	return c.deps.RunServer(args)
}

type versionCommand struct {
	deps commandDeps
}

func (c versionCommand) Run(args []string) int {
	fmt.Fprintln(c.deps.Stdout, version.GetVersionInfo().String())
	return 0
}

type checkCommand struct {
	deps commandDeps
}

func (c checkCommand) Run(args []string) int {
	return c.deps.RunCheck(args, c.deps.Stdout, c.deps.Stderr)
}

type completionCommand struct {
	deps commandDeps
}

func (c completionCommand) Run(args []string) int {
	return c.deps.RunCompletion(args, c.deps.Stdout, c.deps.Stderr)
}

func resolveCommand(args []string, deps commandDeps) (command, []string) {
	if len(args) > 0 {
		switch args[0] {
		case "version":
			return versionCommand{deps: deps}, args[1:]
		case "check":
			return checkCommand{deps: deps}, args[1:]
		case "completion":
			return completionCommand{deps: deps}, args[1:]
		}
	}
	return serverCommand{deps: deps}, args
}
