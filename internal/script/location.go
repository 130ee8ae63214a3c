package script

import "fmt"

// LocationInfo identifies the source position a CommandPrototype or build
// error came from, used for user-visible diagnostics (spec §4.E).
type LocationInfo struct {
	SourceFile string
	SourceLine int
}

func (l LocationInfo) String() string {
	return fmt.Sprintf("%s:%d", l.SourceFile, l.SourceLine)
}
