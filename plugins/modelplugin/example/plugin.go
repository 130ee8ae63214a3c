// Package example demonstrates a minimal third-party model plugin: a
// module whose manifest and script are compiled in rather than read from
// <root>/modules/<name>/module.toml on disk.
package example

import (
	"fmt"

	"outcome.io/sim/pkg/modelplugin"
)

const heartbeatManifest = `
name = "heartbeat"
version = "1.0.0"

[[prefabs]]
name = "Heartbeat"
components = ["Pulse"]

[[components]]
name = "Pulse"
triggers = ["tick"]
scripts = ["pulse.os"]

[[components.vars]]
name = "beats"
type = "int"
default = "0"
`

const pulseScript = `set beats 1
`

// Provider serves the "heartbeat" module straight from this binary.
type Provider struct{}

func (Provider) Name() string { return "heartbeat" }

func (Provider) Manifest() ([]byte, error) { return []byte(heartbeatManifest), nil }

func (Provider) Script(path string) ([]byte, error) {
	if path != "pulse.os" {
		return nil, fmt.Errorf("heartbeat module: no such script %q", path)
	}
	return []byte(pulseScript), nil
}

func (Provider) Describe() modelplugin.Descriptor {
	return modelplugin.Descriptor{
		Name:        "heartbeat",
		DisplayName: "Heartbeat",
		Description: "Example third-party module providing a single ticking counter component",
		Version:     "1.0.0",
		BuiltIn:     false,
	}
}

func init() {
	modelplugin.MustRegister(Provider{})
}
