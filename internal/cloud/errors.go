package cloud

import (
	"errors"
	"fmt"
	"sort"

	"github.com/OldStager01/cloud-vm-monitor/pkg/models"
)

var (
	// ErrNotConfigured means the provider has no credentials. Callers skip, not fail.
	ErrNotConfigured = errors.New("provider credentials not configured")
	ErrUnsupported   = errors.New("operation not supported by provider")
	ErrNotFound      = errors.New("resource not found at provider")
)

// ProviderError is a failed cloud API call.
type ProviderError struct {
	Provider models.Provider
	Op       string
	Message  string
	Err      error
}

func (e *ProviderError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("%s %s: %s", e.Provider, e.Op, e.Message)
	}
	return fmt.Sprintf("%s %s: %v", e.Provider, e.Op, e.Err)
}

func (e *ProviderError) Unwrap() error {
	return e.Err
}

func NewProviderError(provider models.Provider, op string, err error) error {
	if err == nil {
		return nil
	}
	var pe *ProviderError
	if errors.As(err, &pe) {
		return err
	}
	return &ProviderError{Provider: provider, Op: op, Message: err.Error(), Err: err}
}

// IsTransient reports whether err is worth retrying or counting against a breaker.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	return !errors.Is(err, ErrNotConfigured) && !errors.Is(err, ErrUnsupported) && !errors.Is(err, ErrNotFound)
}

func sortByTime(samples []*models.MetricSample) {
	sort.Slice(samples, func(i, j int) bool { return samples[i].Timestamp.Before(samples[j].Timestamp) })
}
