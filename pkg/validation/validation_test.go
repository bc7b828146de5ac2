package validation

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSanitizeString(t *testing.T) {
	assert.Equal(t, "nightly backup", SanitizeString("  nightly\x00 backup\x07 "))
	assert.Equal(t, "line one\nline\ttwo", SanitizeString("line one\nline\ttwo"))
}

func TestValidateID(t *testing.T) {
	require.NoError(t, ValidateID("a0eebc99-9c0b-4ef8-bb6d-6bb9bd380a11"))

	for _, id := range []string{"", "vm-1", "a0eebc99"} {
		err := ValidateID(id)
		require.Error(t, err, id)
		assert.ErrorIs(t, err, ErrInvalidInput)
	}
}

func TestValidateDescription(t *testing.T) {
	got, err := ValidateDescription("  before upgrade ")
	require.NoError(t, err)
	assert.Equal(t, "before upgrade", got)

	_, err = ValidateDescription(strings.Repeat("x", 256))
	assert.ErrorIs(t, err, ErrInvalidInput)
}

func TestValidateStatusFilters(t *testing.T) {
	assert.NoError(t, ValidateAlertStatus(""))
	assert.NoError(t, ValidateAlertStatus("acknowledged"))
	assert.ErrorIs(t, ValidateAlertStatus("closed"), ErrInvalidInput)

	assert.NoError(t, ValidateSnapshotStatus(""))
	assert.NoError(t, ValidateSnapshotStatus("completed"))
	assert.ErrorIs(t, ValidateSnapshotStatus("archived"), ErrInvalidInput)
}

func TestValidateSince(t *testing.T) {
	now := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)

	tests := []struct {
		name    string
		since   time.Time
		wantErr bool
	}{
		{"one hour back", now.Add(-time.Hour), false},
		{"exactly thirty days", now.Add(-30 * 24 * time.Hour), false},
		{"beyond retention", now.Add(-31 * 24 * time.Hour), true},
		{"future", now.Add(time.Minute), true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateSince(tt.since, now)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrInvalidInput)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestValidateLimit(t *testing.T) {
	assert.Equal(t, 50, ValidateLimit(0, 50, 500))
	assert.Equal(t, 50, ValidateLimit(-3, 50, 500))
	assert.Equal(t, 20, ValidateLimit(20, 50, 500))
	assert.Equal(t, 500, ValidateLimit(9000, 50, 500))
}
