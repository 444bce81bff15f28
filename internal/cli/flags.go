package cli

import (
	"errors"
	"flag"
)

const (
	defaultHelpDesc    = "Show help"
	defaultVersionDesc = "Print version and exit"
)

var ErrVerboseQuietConflict = errors.New("--verbose and --quiet are mutually exclusive")

type HelpVersionFlags struct {
	Help    bool
	Version bool
}

func AddHelpVersionFlags(fs *flag.FlagSet, helpDesc, versionDesc string) *HelpVersionFlags {
	if fs == nil {
		return &HelpVersionFlags{}
	}
	if helpDesc == "" {
		helpDesc = defaultHelpDesc
	}
	if versionDesc == "" {
		versionDesc = defaultVersionDesc
	}
	flags := &HelpVersionFlags{}
	fs.BoolVar(&flags.Help, "help", false, helpDesc)
	fs.BoolVar(&flags.Help, "h", false, helpDesc)
	fs.BoolVar(&flags.Version, "version", false, versionDesc)
	fs.BoolVar(&flags.Version, "v", false, versionDesc)
	return flags
}

// VerbosityFlags maps --verbose and --quiet onto a log level name.
type VerbosityFlags struct {
	Verbose bool
	Quiet   bool
}

func AddVerbosityFlags(fs *flag.FlagSet) *VerbosityFlags {
	flags := &VerbosityFlags{}
	if fs == nil {
		return flags
	}
	fs.BoolVar(&flags.Verbose, "verbose", false, "Log debug output")
	fs.BoolVar(&flags.Quiet, "quiet", false, "Only log warnings and errors")
	return flags
}

// Level returns the level the flags select, or fallback when neither is set.
func (flags *VerbosityFlags) Level(fallback string) (string, error) {
	if flags == nil {
		return fallback, nil
	}
	switch {
	case flags.Verbose && flags.Quiet:
		return "", ErrVerboseQuietConflict
	case flags.Verbose:
		return "debug", nil
	case flags.Quiet:
		return "warning", nil
	default:
		return fallback, nil
	}
}
