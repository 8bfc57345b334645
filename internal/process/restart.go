package process

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v5"

	"github.com/smazurov/liveactivity/internal/config"
)

// DefaultMaxRestartDuration bounds how long a single restart attempt may
// stay open without producing a healthy replacement.
const DefaultMaxRestartDuration = 10 * time.Second

// Restart policy defaults.
const (
	DefaultRestartRetries = 3
	DefaultSuccessUptime  = 500 * time.Millisecond
	DefaultSampleDelay    = 500 * time.Millisecond
)

// RestartPolicy creates a fresh Restarter for every restart attempt.
type RestartPolicy interface {
	NewRestarter() Restarter
}

// Restarter drives one restart attempt. The supervisor launches
// replacements itself and consults the restarter between launches.
type Restarter interface {
	// ShouldContinueRetrying is asked before each launch.
	ShouldContinueRetrying(elapsed time.Duration) bool
	// AttemptRestart records that a replacement is being launched.
	AttemptRestart()
	// IsReplacementHealthy reports whether a replacement that has stayed
	// alive for uptime should take over.
	IsReplacementHealthy(uptime time.Duration) bool
	// RetryDelay is the wait after a replacement dies before the next launch.
	RetryDelay() time.Duration
}

// LimitedRetry allows a fixed number of launches per restart attempt.
type LimitedRetry struct {
	Retries       int
	SuccessUptime time.Duration
	SampleDelay   time.Duration
}

// NewRestarter implements RestartPolicy.
func (p LimitedRetry) NewRestarter() Restarter {
	return &limitedRestarter{policy: p}
}

type limitedRestarter struct {
	policy   LimitedRetry
	attempts int
}

func (r *limitedRestarter) ShouldContinueRetrying(time.Duration) bool {
	return r.attempts < r.policy.Retries
}

func (r *limitedRestarter) AttemptRestart() {
	r.attempts++
}

func (r *limitedRestarter) IsReplacementHealthy(uptime time.Duration) bool {
	return uptime >= r.policy.SuccessUptime
}

func (r *limitedRestarter) RetryDelay() time.Duration {
	return r.policy.SampleDelay
}

// Backoff is a LimitedRetry whose delay between launches grows
// exponentially.
type Backoff struct {
	Retries       int
	SuccessUptime time.Duration
	Initial       time.Duration
	Max           time.Duration
	Multiplier    float64
	// Jitter is the randomization factor, 0 for fixed delays.
	Jitter float64
}

// NewRestarter implements RestartPolicy.
func (p Backoff) NewRestarter() Restarter {
	b := backoff.NewExponentialBackOff()
	if p.Initial > 0 {
		b.InitialInterval = p.Initial
	}
	if p.Max > 0 {
		b.MaxInterval = p.Max
	}
	if p.Multiplier > 0 {
		b.Multiplier = p.Multiplier
	}
	b.RandomizationFactor = p.Jitter
	b.Reset()

	return &backoffRestarter{
		limitedRestarter: limitedRestarter{policy: LimitedRetry{
			Retries:       p.Retries,
			SuccessUptime: p.SuccessUptime,
		}},
		delays: b,
	}
}

type backoffRestarter struct {
	limitedRestarter
	delays backoff.BackOff
}

func (r *backoffRestarter) RetryDelay() time.Duration {
	d := r.delays.NextBackOff()
	if d == backoff.Stop {
		return 0
	}
	return d
}

// Policy names accepted by PolicyFromConfig.
const (
	PolicyNone    = "none"
	PolicyLimited = "limited"
	PolicyBackoff = "backoff"
)

// PolicyNames lists the accepted restart policy names.
func PolicyNames() []string {
	return []string{PolicyNone, PolicyLimited, PolicyBackoff}
}

// PolicyFromConfig builds a restart policy from keys relative to the
// restart section: policy, retries, successUptime, sampleDelay,
// initialDelay, maxDelay, multiplier and jitter. A nil policy means no
// restarts.
func PolicyFromConfig(cfg config.Provider) (RestartPolicy, error) {
	name, _ := cfg.Get("policy")
	name = strings.ToLower(strings.TrimSpace(name))

	switch name {
	case "", PolicyNone:
		return nil, nil
	case PolicyLimited, PolicyBackoff:
	default:
		return nil, &config.InvalidValueError{
			Key:   "policy",
			Value: name,
			Cause: fmt.Errorf("expected one of %s", strings.Join(PolicyNames(), ", ")),
		}
	}

	retries, err := cfg.GetInt("retries", DefaultRestartRetries)
	if err != nil {
		return nil, err
	}
	uptime, err := cfg.GetDuration("successUptime", DefaultSuccessUptime)
	if err != nil {
		return nil, err
	}

	if name == PolicyLimited {
		delay, delayErr := cfg.GetDuration("sampleDelay", DefaultSampleDelay)
		if delayErr != nil {
			return nil, delayErr
		}
		return LimitedRetry{Retries: retries, SuccessUptime: uptime, SampleDelay: delay}, nil
	}

	p := Backoff{Retries: retries, SuccessUptime: uptime}
	if p.Initial, err = cfg.GetDuration("initialDelay", backoff.DefaultInitialInterval); err != nil {
		return nil, err
	}
	if p.Max, err = cfg.GetDuration("maxDelay", backoff.DefaultMaxInterval); err != nil {
		return nil, err
	}
	if p.Multiplier, err = getFloat(cfg, "multiplier", backoff.DefaultMultiplier); err != nil {
		return nil, err
	}
	if p.Jitter, err = getFloat(cfg, "jitter", 0); err != nil {
		return nil, err
	}
	return p, nil
}

func getFloat(cfg config.Provider, key string, def float64) (float64, error) {
	raw, ok := cfg.Get(key)
	if !ok || strings.TrimSpace(raw) == "" {
		return def, nil
	}
	f, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
	if err != nil {
		return def, &config.InvalidValueError{Key: key, Value: raw, Cause: err}
	}
	return f, nil
}
