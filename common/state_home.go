package common

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/adrg/xdg"
)

// GetIkigaiStateHome returns a directory path for storing user-specific
// ikigai state data (logs, etc). If needed, it also creates the
// necessary directories for storing state data according to the XDG spec.
// Can be overridden by setting the IKIGAI_STATE_HOME environment variable.
func GetIkigaiStateHome() (string, error) {
	stateDir := os.Getenv("IKIGAI_STATE_HOME")
	if stateDir != "" {
		if err := os.MkdirAll(stateDir, 0755); err != nil {
			return "", fmt.Errorf("failed to create ikigai state directory from IKIGAI_STATE_HOME: %w", err)
		}
		return stateDir, nil
	}

	stateDir = filepath.Join(xdg.StateHome, "ikigai")
	if err := os.MkdirAll(stateDir, 0755); err != nil {
		return "", fmt.Errorf("failed to create ikigai state directory: %w", err)
	}
	return stateDir, nil
}
