package main

import (
	"fmt"
	"io"
)

func runCompletion(args []string, out io.Writer, errOut io.Writer) int {
	if len(args) != 1 {
		fmt.Fprintln(errOut, "usage: riceserver completion [bash|zsh]")
		return 1
	}
	switch args[0] {
	case "bash":
		_, _ = io.WriteString(out, bashCompletionScript)
		return 0
	case "zsh":
		_, _ = io.WriteString(out, zshCompletionScript)
		return 0
	default:
		fmt.Fprintln(errOut, "usage: riceserver completion [bash|zsh]")
		return 1
	}
}

const bashCompletionScript = `# Bash completion for riceserver
_riceserver_complete() {
  local cur prev
  _get_comp_words_by_ref -n : cur prev

  if [[ "$prev" == "completion" ]]; then
    COMPREPLY=( $(compgen -W "bash zsh" -- "$cur") )
    return
  fi

  if [[ "$prev" == "--config-dir" ]]; then
    COMPREPLY=( $(compgen -d -- "$cur") )
    return
  fi

  if [[ "$cur" == -* ]]; then
    COMPREPLY=( $(compgen -W "--config-dir --host --port --token --verbose --quiet --help --version" -- "$cur") )
    return
  fi

  if [[ $COMP_CWORD -eq 1 ]]; then
    COMPREPLY=( $(compgen -W "version check completion" -- "$cur") )
  fi
}

complete -F _riceserver_complete riceserver
`

const zshCompletionScript = `#compdef riceserver
_riceserver_complete() {
  local -a flags
  flags=(
    '--config-dir[Configuration root]:directory:_files -/'
    '--host[HTTP listen host]'
    '--port[HTTP port]'
    '--token[Auth token for REST/WS]'
    '--verbose[Log debug output]'
    '--quiet[Only log warnings and errors]'
    '--help[Show help]'
    '--version[Print version and exit]'
  )

  case ${words[2]} in
    completion)
      _values 'shells' bash zsh
      return
      ;;
  esac

  _arguments -s $flags '1:subcommand:(version check completion)' '*::arg:->args'
}

_riceserver_complete "$@"
`
