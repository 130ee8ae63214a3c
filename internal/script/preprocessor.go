package script

import (
	"fmt"
	"strings"

	"outcome.io/sim/internal/apperrors"
)

// SourceLoader reads the raw bytes of a script source file named by path,
// relative to whatever root the caller configures (spec §4.E "resolves
// includes"). Module manifests hand this a loader rooted at the module
// directory; tests hand it an in-memory map.
type SourceLoader func(path string) ([]byte, error)

// Preprocessor resolves !include and !define directives and produces the
// flat CommandPrototype list the command builder consumes (spec §4.E).
type Preprocessor struct {
	loader  SourceLoader
	defines map[string]string
	// includeStack guards against !include cycles.
	includeStack map[string]bool
}

// NewPreprocessor returns a Preprocessor reading source files through loader.
func NewPreprocessor(loader SourceLoader) *Preprocessor {
	return &Preprocessor{
		loader:       loader,
		defines:      make(map[string]string),
		includeStack: make(map[string]bool),
	}
}

// Load reads path and returns its fully preprocessed prototype list,
// inlining any !include targets in place.
func (p *Preprocessor) Load(path string) ([]CommandPrototype, error) {
	if p.includeStack[path] {
		return nil, apperrors.BadRequest(apperrors.CodeNoDirectivePresent, "include cycle at "+path)
	}
	p.includeStack[path] = true
	defer delete(p.includeStack, path)

	raw, err := p.loader(path)
	if err != nil {
		return nil, err
	}
	return p.process(path, string(raw))
}

func (p *Preprocessor) process(sourceFile, content string) ([]CommandPrototype, error) {
	lines := joinContinuations(strings.Split(content, "\n"))

	var out []CommandPrototype
	for i, rawLine := range lines {
		lineNo := i + 1
		line := StripComment(rawLine)
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}

		if strings.HasPrefix(line, "!") {
			protos, err := p.directive(sourceFile, lineNo, line)
			if err != nil {
				return nil, err
			}
			out = append(out, protos...)
			continue
		}

		for _, stmt := range SplitStatements(line) {
			stmt = strings.TrimSpace(stmt)
			if stmt == "" {
				continue
			}
			tokens, err := Tokenize(stmt)
			if err != nil {
				return nil, apperrors.BadRequest(apperrors.CodeMissingEndQuotes,
					fmt.Sprintf("%s:%d: %v", sourceFile, lineNo, err))
			}
			tokens = p.expandDefines(tokens)
			proto, err := ParsePrototype(tokens, LocationInfo{SourceFile: sourceFile, SourceLine: lineNo})
			if err != nil {
				return nil, err
			}
			out = append(out, proto)
		}
	}
	return out, nil
}

// joinContinuations merges a line ending with a trailing backslash onto the
// next line (spec §4.E "lines may end with \ to continue").
func joinContinuations(lines []string) []string {
	var out []string
	var pending string
	for _, l := range lines {
		trimmed := strings.TrimRight(l, "\r")
		if strings.HasSuffix(trimmed, "\\") {
			pending += strings.TrimSuffix(trimmed, "\\") + " "
			continue
		}
		out = append(out, pending+trimmed)
		pending = ""
	}
	if pending != "" {
		out = append(out, pending)
	}
	return out
}

func (p *Preprocessor) directive(sourceFile string, lineNo int, line string) ([]CommandPrototype, error) {
	fields := strings.Fields(line)
	name := strings.TrimPrefix(fields[0], "!")
	args := fields[1:]
	loc := LocationInfo{SourceFile: sourceFile, SourceLine: lineNo}

	switch name {
	case "include":
		if len(args) != 1 {
			return nil, apperrors.BadRequest(apperrors.CodeControlWithoutValue, "!include requires exactly one path: "+loc.String())
		}
		return p.Load(args[0])
	case "define":
		if len(args) < 2 {
			return nil, apperrors.BadRequest(apperrors.CodeControlWithoutValue, "!define requires a name and a value: "+loc.String())
		}
		p.defines[args[0]] = strings.Join(args[1:], " ")
		return nil, nil
	default:
		return nil, apperrors.BadRequest(apperrors.CodeNoDirectivePresent, "unknown preprocessor directive !"+name+" at "+loc.String())
	}
}

func (p *Preprocessor) expandDefines(tokens []string) []string {
	if len(p.defines) == 0 {
		return tokens
	}
	out := make([]string, len(tokens))
	for i, t := range tokens {
		if v, ok := p.defines[t]; ok {
			out[i] = v
		} else {
			out[i] = t
		}
	}
	return out
}
