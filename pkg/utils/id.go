package utils

import (
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

var (
	// Counter for sequential IDs
	idCounter uint64
)

// GenerateID generates a process-unique ID from a timestamp and a counter
func GenerateID() string {
	count := atomic.AddUint64(&idCounter, 1)
	timestamp := time.Now().UnixNano()
	return fmt.Sprintf("%x-%x", timestamp, count)
}

// GenerateRunID generates a calibration run ID with a timestamp prefix
func GenerateRunID() string {
	timestamp := time.Now().Format("20060102-150405")
	id, err := uuid.NewRandom()
	if err != nil {
		count := atomic.AddUint64(&idCounter, 1)
		return fmt.Sprintf("run-%s-%x", timestamp, count)
	}
	return fmt.Sprintf("run-%s-%s", timestamp, strings.SplitN(id.String(), "-", 2)[0])
}

// ValidateRunID rejects IDs that cannot be used in URL paths or sqlite keys
func ValidateRunID(runID string) error {
	if runID == "" {
		return fmt.Errorf("run id cannot be empty")
	}
	if strings.ContainsAny(runID, "/:? \t\n") {
		return fmt.Errorf("run id %q cannot contain '/', ':', '?' or whitespace", runID)
	}
	return nil
}
