package utils

import (
	"io"

	"github.com/MrSnakeDoc/warden/internal/logger"
)

// Try runs a deferred cleanup; a failure is logged under what and otherwise ignored.
func Try(what string, f func() error) {
	if err := f(); err != nil {
		logger.Warn("%s: cleanup failed: %v", what, err)
	}
}

// Close closes c; a failure is logged under what and otherwise ignored.
func Close(what string, c io.Closer) {
	Try(what, c.Close)
}
