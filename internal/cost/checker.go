// Package cost compares each user's month-to-date spend with last month's.
package cost

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/OldStager01/cloud-vm-monitor/internal/logger"
	"github.com/OldStager01/cloud-vm-monitor/internal/store"
	"github.com/OldStager01/cloud-vm-monitor/pkg/models"
)

// HighIncrease is the percentage above which a spike is high severity.
const HighIncrease = 50.0

type Requester interface {
	Request(ctx context.Context, candidate *models.Alert) (bool, error)
}

type Config struct {
	DefaultThresholds models.AlertThresholds
	Now               func() time.Time
}

type Checker struct {
	config    Config
	users     store.UserStore
	costs     store.CostStore
	requester Requester
}

func NewChecker(cfg Config, users store.UserStore, costs store.CostStore, requester Requester) *Checker {
	if cfg.DefaultThresholds == (models.AlertThresholds{}) {
		cfg.DefaultThresholds = models.DefaultAlertThresholds()
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Checker{config: cfg, users: users, costs: costs, requester: requester}
}

// Comparison is one user's month-over-month result.
type Comparison struct {
	Current   float64
	LastMonth float64
	// Increase is the percentage change, zero when last month had no spend.
	Increase  float64
	Threshold float64
}

func (c Comparison) Spike() bool {
	return c.LastMonth > 0 && c.Increase > c.Threshold
}

func (c *Checker) CheckAll(ctx context.Context) (processed, failed int, err error) {
	users, err := c.users.ListActive(ctx)
	if err != nil {
		return 0, 0, fmt.Errorf("failed to list active users: %w", err)
	}
	for _, user := range users {
		if ctx.Err() != nil {
			break
		}
		if _, err := c.CheckUser(ctx, user); err != nil {
			logger.WithUser(user.ID).WithError(err).Warn("Cost check failed")
			failed++
			continue
		}
		processed++
	}
	return processed, failed, nil
}

func (c *Checker) CheckUser(ctx context.Context, user *models.User) (*Comparison, error) {
	now := c.config.Now().UTC()
	monthStart := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC)
	lastStart := monthStart.AddDate(0, -1, 0)

	current, err := c.costs.SumBetween(ctx, user.ID, monthStart, now)
	if err != nil {
		return nil, fmt.Errorf("failed to sum current costs: %w", err)
	}
	last, err := c.costs.SumBetween(ctx, user.ID, lastStart, monthStart)
	if err != nil {
		return nil, fmt.Errorf("failed to sum last month costs: %w", err)
	}

	cmp := &Comparison{
		Current:   current,
		LastMonth: last,
		Threshold: user.Preferences.AlertThresholds.WithDefaults(c.config.DefaultThresholds).Cost,
	}
	if last > 0 {
		cmp.Increase = (current - last) / last * 100
	}
	if !cmp.Spike() {
		return cmp, nil
	}

	severity := models.SeverityMedium
	if cmp.Increase > HighIncrease {
		severity = models.SeverityHigh
	}
	candidate := &models.Alert{
		UserID:    user.ID,
		AlertType: models.AlertCostSpike,
		Severity:  severity,
		Title:     "Cost spike detected",
		Message:   fmt.Sprintf("Your cloud costs have increased by %.1f%% compared to last month", cmp.Increase),
		Metadata: map[string]interface{}{
			"currentCost":     round2(current),
			"lastMonthCost":   round2(last),
			"increasePercent": round2(cmp.Increase),
			"threshold":       cmp.Threshold,
		},
	}
	if _, err := c.requester.Request(ctx, candidate); err != nil {
		return cmp, fmt.Errorf("failed to request cost alert: %w", err)
	}
	return cmp, nil
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
