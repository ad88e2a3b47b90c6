// Package retention deletes expired image cache objects on a self-adjusting
// schedule.
package retention

import (
	"math"
	"strings"
	"time"

	"github.com/spf13/cast"

	"github.com/dev-tams/cachesweep/internal/config"
)

const (
	DisabledPollInterval = 5 * time.Minute
	RetryOnError         = time.Minute
	MaxWait              = time.Minute
	NormalSweepInterval  = 12 * time.Hour

	DefaultNumberOfDays          = 90
	DefaultTestModeSweepSeconds  = 30
	DefaultTestModeMaxAgeMinutes = 10

	minNumberOfDays          = 1
	minTestModeSweepSeconds  = 5
	minTestModeMaxAgeMinutes = 1
)

// Settings is a live view of configuration. Get returns nil for absent keys.
type Settings interface {
	Get(key string) any
}

type Policy struct {
	Enabled           bool
	MaxAge            time.Duration
	SweepInterval     time.Duration
	ContainerRootPath string
	ConnectionString  string
	ContainerName     string
	TestMode          bool
}

// HasIdentity reports whether the policy names a container to sweep.
func (p Policy) HasIdentity() bool {
	return strings.TrimSpace(p.ConnectionString) != "" && strings.TrimSpace(p.ContainerName) != ""
}

type Resolver struct {
	settings Settings
}

func NewResolver(settings Settings) *Resolver {
	return &Resolver{settings: settings}
}

// Resolve reads the current settings. It never fails: missing or invalid
// values fall back to their defaults and numeric values are clamped.
func (r *Resolver) Resolve() Policy {
	p := Policy{
		ContainerRootPath: r.str(config.KeyCacheContainerRootPath),
		ConnectionString:  r.str(config.KeyCacheConnectionString),
		ContainerName:     r.str(config.KeyCacheContainerName),
	}

	if r.boolean(config.KeyRetentionTestModeEnable, false) {
		minutes := max(minTestModeMaxAgeMinutes, r.integer(config.KeyRetentionTestModeMaxAgeMinutes, DefaultTestModeMaxAgeMinutes))
		seconds := max(minTestModeSweepSeconds, r.integer(config.KeyRetentionTestModeSweepSeconds, DefaultTestModeSweepSeconds))

		p.Enabled = true
		p.TestMode = true
		p.MaxAge = durationOf(minutes, time.Minute)
		p.SweepInterval = durationOf(seconds, time.Second)
		return p
	}

	days := max(minNumberOfDays, r.integer(config.KeyRetentionNumberOfDays, DefaultNumberOfDays))

	p.Enabled = r.boolean(config.KeyRetentionEnabled, false)
	p.MaxAge = durationOf(days, 24*time.Hour)
	p.SweepInterval = NormalSweepInterval
	return p
}

// durationOf multiplies n units, saturating at the largest whole number of
// units a time.Duration can hold. n must be positive.
func durationOf(n int, unit time.Duration) time.Duration {
	if limit := int64(math.MaxInt64 / unit); int64(n) > limit {
		return time.Duration(limit) * unit
	}
	return time.Duration(n) * unit
}

func (r *Resolver) str(key string) string {
	v := r.settings.Get(key)
	if v == nil {
		return ""
	}
	s, err := cast.ToStringE(v)
	if err != nil {
		return ""
	}
	return s
}

func (r *Resolver) boolean(key string, def bool) bool {
	v := r.settings.Get(key)
	if v == nil {
		return def
	}
	if s, ok := v.(string); ok && strings.TrimSpace(s) == "" {
		return def
	}
	b, err := cast.ToBoolE(v)
	if err != nil {
		return def
	}
	return b
}

func (r *Resolver) integer(key string, def int) int {
	v := r.settings.Get(key)
	if v == nil {
		return def
	}
	if s, ok := v.(string); ok {
		v = strings.TrimSpace(s)
		if v == "" {
			return def
		}
	}
	n, err := cast.ToIntE(v)
	if err != nil {
		return def
	}
	return n
}
