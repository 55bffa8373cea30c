package pathing

import (
	"os"
	"path/filepath"

	"github.com/sirupsen/logrus"
)

// Ensure directories exist on startup
func init() {
	// Directories that must exist:
	dirs := []string{
		GetDataDir(),
		GetRecordingDir(),
	}

	// Create all directories
	for _, dir := range dirs {
		if _, err := os.Stat(dir); os.IsNotExist(err) {
			err := os.MkdirAll(dir, 0755)
			if err != nil {
				// Surface the real failure at point of use instead
				logrus.Warnf("Could not create %s: %v", dir, err)
			}
		}
	}
}

func GetSessionDbPath() string {
	// Join path
	return filepath.Join(GetDataDir(), "radman-sessions.db")
}

// Default location for CSV measurement recordings.
func GetRecordingDir() string {
	return filepath.Join(GetDataDir(), "recordings")
}

func GetDataDir() string {
	return "/var/lib/radman-monitor"
}

func GetConfigDir() string {
	return "/etc/radman-monitor"
}
