package script

import (
	"strings"

	"outcome.io/sim/internal/apperrors"
)

// CommandPrototype is one parsed, not-yet-validated source line: an
// optional tag, optional output variable, a command name, and its raw
// arguments (spec §4.E). The command builder turns a slice of these into
// Commands, validating argument counts and option strings per command.
type CommandPrototype struct {
	Tag      string
	Output   string
	Name     string
	Args     []string
	Location LocationInfo
}

// ParsePrototype builds a CommandPrototype from one already-tokenized
// statement. Leading "@tag" sets Tag; "var = cmd args…" sets Output; a
// bare tag line with nothing else is rejected with NoDirectivePresent
// (there is no command to attach the tag to).
func ParsePrototype(tokens []string, loc LocationInfo) (CommandPrototype, error) {
	p := CommandPrototype{Location: loc}
	if len(tokens) == 0 {
		return p, apperrors.BadRequest(apperrors.CodeNoCommandPresent, "empty statement")
	}

	if strings.HasPrefix(tokens[0], "@") {
		p.Tag = strings.TrimPrefix(tokens[0], "@")
		tokens = tokens[1:]
	}
	if len(tokens) == 0 {
		return p, apperrors.BadRequest(apperrors.CodeNoDirectivePresent, "tag with no command: @"+p.Tag)
	}

	if len(tokens) >= 2 && tokens[1] == "=" {
		p.Output = tokens[0]
		tokens = tokens[2:]
	} else if len(tokens) >= 1 && strings.HasSuffix(tokens[0], "=") && len(tokens[0]) > 1 {
		p.Output = strings.TrimSuffix(tokens[0], "=")
		tokens = tokens[1:]
	}
	if len(tokens) == 0 {
		return p, apperrors.BadRequest(apperrors.CodeNoCommandPresent, "output assignment with no command")
	}

	p.Name = tokens[0]
	p.Args = tokens[1:]
	return p, nil
}
