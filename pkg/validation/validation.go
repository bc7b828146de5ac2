package validation

import (
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode"

	"github.com/google/uuid"

	"github.com/OldStager01/cloud-vm-monitor/pkg/models"
)

var (
	// ErrInvalidInput indicates the input failed validation
	ErrInvalidInput = errors.New("invalid input")
)

const (
	maxDescriptionLength = 255
	maxLookback          = 30 * 24 * time.Hour
)

// SanitizeString removes potentially dangerous characters and trims whitespace
func SanitizeString(input string) string {
	input = strings.TrimSpace(input)
	input = strings.ReplaceAll(input, "\x00", "")

	// Remove control characters except newline and tab
	var builder strings.Builder
	for _, r := range input {
		if !unicode.IsControl(r) || r == '\n' || r == '\t' {
			builder.WriteRune(r)
		}
	}

	return builder.String()
}

// ValidateID checks that a path parameter is a UUID
func ValidateID(id string) error {
	if id == "" {
		return fmt.Errorf("%w: id cannot be empty", ErrInvalidInput)
	}
	if _, err := uuid.Parse(id); err != nil {
		return fmt.Errorf("%w: id must be a valid UUID", ErrInvalidInput)
	}
	return nil
}

// ValidateDescription sanitizes and bounds a snapshot description
func ValidateDescription(description string) (string, error) {
	description = SanitizeString(description)
	if len(description) > maxDescriptionLength {
		return "", fmt.Errorf("%w: description must not exceed %d characters", ErrInvalidInput, maxDescriptionLength)
	}
	return description, nil
}

// ValidateAlertStatus checks a status filter value
func ValidateAlertStatus(status string) error {
	if status == "" {
		return nil
	}
	if !models.AlertStatus(status).Valid() {
		return fmt.Errorf("%w: unknown alert status %q", ErrInvalidInput, status)
	}
	return nil
}

// ValidateSnapshotStatus checks a status filter value
func ValidateSnapshotStatus(status string) error {
	switch models.SnapshotStatus(status) {
	case "", models.SnapshotPending, models.SnapshotCompleted, models.SnapshotError, models.SnapshotDeleted:
		return nil
	}
	return fmt.Errorf("%w: unknown snapshot status %q", ErrInvalidInput, status)
}

// ValidateSince bounds a metric query start time to the retention window
func ValidateSince(since, now time.Time) error {
	if since.After(now) {
		return fmt.Errorf("%w: since must not be in the future", ErrInvalidInput)
	}
	if now.Sub(since) > maxLookback {
		return fmt.Errorf("%w: since must be within the last 30 days", ErrInvalidInput)
	}
	return nil
}

// ValidateLimit clamps a page size into [1, max], using def when unset
func ValidateLimit(limit, def, max int) int {
	if limit <= 0 {
		return def
	}
	if limit > max {
		return max
	}
	return limit
}
