//go:build purego

package vecmath

import (
	// Generic implementations (pure Go fallback)
	_ "github.com/A-KGeorge/dspx/internal/vecmath/arch/generic"
	// Import registry package
	_ "github.com/A-KGeorge/dspx/internal/vecmath/registry"
)
