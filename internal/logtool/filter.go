package logtool

import (
	"fmt"
	"io"

	"github.com/tether-io/tether-go/pkg/log"
)

// RunFilter copies the events of path matching filter into a new trace
// file at output and returns how many were written.
func RunFilter(path, output string, filter log.Filter) (int, error) {
	reader, err := log.NewFilteredReader(path, filter)
	if err != nil {
		return 0, fmt.Errorf("failed to open log file: %w", err)
	}
	defer reader.Close()

	logger, err := log.NewFileLogger(output)
	if err != nil {
		return 0, fmt.Errorf("failed to create output logger: %w", err)
	}

	count := 0
	for {
		event, err := reader.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			logger.Close()
			return count, fmt.Errorf("failed to read event: %w", err)
		}
		logger.Log(event)
		count++
	}

	if _, dropped := logger.Stats(); dropped > 0 {
		logger.Close()
		return count - dropped, fmt.Errorf("failed to write %d events", dropped)
	}
	return count, logger.Close()
}
