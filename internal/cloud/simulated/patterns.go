package simulated

import (
	"math"
	"math/rand"
	"time"
)

// Pattern shapes a base utilization over time.
type Pattern interface {
	Apply(base float64, at time.Time) float64
	Name() string
}

func ParsePattern(name string, start time.Time, rng *rand.Rand) Pattern {
	switch name {
	case "daily":
		return DailyPattern{}
	case "weekly":
		return WeeklyPattern{}
	case "random":
		return RandomPattern{rng: rng}
	case "gradual_rise":
		return GradualRisePattern{Start: start}
	case "sine_wave":
		return SineWavePattern{}
	default:
		return SteadyPattern{}
	}
}

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}

type SteadyPattern struct{}

func (SteadyPattern) Apply(base float64, _ time.Time) float64 { return base }
func (SteadyPattern) Name() string                            { return "steady" }

// DailyPattern peaks during business hours and dips overnight.
type DailyPattern struct{}

func (DailyPattern) Apply(base float64, at time.Time) float64 {
	return clamp(base*hourModifier(at.Hour()), 0, 100)
}

func (DailyPattern) Name() string { return "daily" }

func hourModifier(hour int) float64 {
	switch {
	case hour >= 9 && hour <= 11:
		return 1.4
	case hour >= 14 && hour <= 16:
		return 1.3
	case hour >= 17 && hour <= 20:
		return 1.1
	case hour >= 0 && hour <= 6:
		return 0.6
	default:
		return 1.0
	}
}

// WeeklyPattern halves weekend load and follows the daily cycle on weekdays.
type WeeklyPattern struct{}

func (WeeklyPattern) Apply(base float64, at time.Time) float64 {
	if wd := at.Weekday(); wd == time.Saturday || wd == time.Sunday {
		return clamp(base*0.5, 0, 100)
	}
	return DailyPattern{}.Apply(base, at)
}

func (WeeklyPattern) Name() string { return "weekly" }

type RandomPattern struct {
	rng *rand.Rand
}

func (p RandomPattern) Apply(base float64, _ time.Time) float64 {
	f := rand.Float64
	if p.rng != nil {
		f = p.rng.Float64
	}
	return clamp(base*(0.5+f()), 10, 100)
}

func (RandomPattern) Name() string { return "random" }

// GradualRisePattern adds 2% per minute since Start, capped at +50%.
type GradualRisePattern struct {
	Start time.Time
}

func (p GradualRisePattern) Apply(base float64, at time.Time) float64 {
	increase := math.Min(at.Sub(p.Start).Minutes()*2, 50)
	if increase < 0 {
		increase = 0
	}
	return clamp(base*(1+increase/100), 0, 100)
}

func (GradualRisePattern) Name() string { return "gradual_rise" }

type SineWavePattern struct {
	Period    time.Duration
	Amplitude float64
}

func (p SineWavePattern) Apply(base float64, at time.Time) float64 {
	period := p.Period
	if period == 0 {
		period = 10 * time.Minute
	}
	amplitude := p.Amplitude
	if amplitude == 0 {
		amplitude = 20
	}
	phase := float64(at.UnixNano()) / float64(period.Nanoseconds()) * 2 * math.Pi
	return clamp(base+math.Sin(phase)*amplitude, 10, 100)
}

func (SineWavePattern) Name() string { return "sine_wave" }
