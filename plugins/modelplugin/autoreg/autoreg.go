// Package autoreg loads model plugins through side-effect imports.
//
// This package is imported once by the composition root so plugin packages
// can self-register module providers in init() using the public plugin
// contract package.
package autoreg

import (
	_ "outcome.io/sim/plugins/modelplugin/example"
)
