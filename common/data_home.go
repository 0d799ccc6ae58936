package common

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/adrg/xdg"
)

// GetIkigaiDataHome returns a directory path for storing user-specific
// ikigai data (the session database, history files). If needed, it also
// creates the necessary directories according to the XDG spec. Can be
// overridden by setting the IKIGAI_DATA_HOME environment variable.
func GetIkigaiDataHome() (string, error) {
	dataDir := os.Getenv("IKIGAI_DATA_HOME")
	if dataDir != "" {
		if err := os.MkdirAll(dataDir, 0755); err != nil {
			return "", fmt.Errorf("failed to create ikigai data directory from IKIGAI_DATA_HOME: %w", err)
		}
		return dataDir, nil
	}

	dataDir = filepath.Join(xdg.DataHome, "ikigai")
	if err := os.MkdirAll(dataDir, 0755); err != nil {
		return "", fmt.Errorf("failed to create ikigai data directory: %w", err)
	}
	return dataDir, nil
}
