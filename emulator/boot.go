package emulator

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"go.uber.org/zap"
)

var (
	ErrStartMissing = errors.New("emulator: EJS_start never appeared")

	// ErrNotReady is wrapped by start errors that clear up on their own, such
	// as no page being connected yet. Boot retries them.
	ErrNotReady = errors.New("emulator: not ready")
)

// BootConfig bounds the wait for the start entry point.
type BootConfig struct {
	MaxAttempts  int
	InitialDelay time.Duration
	Multiplier   float64
	MaxDelay     time.Duration
}

// DefaultBootConfig polls every 500ms for 30 attempts.
func DefaultBootConfig() BootConfig {
	return BootConfig{
		MaxAttempts:  30,
		InitialDelay: 500 * time.Millisecond,
		Multiplier:   1.0,
		MaxDelay:     5 * time.Second,
	}
}

// RetryDelay is the wait before attempt (1-based). ok is false once attempt
// exceeds MaxAttempts.
func (c BootConfig) RetryDelay(attempt int) (d time.Duration, ok bool) {
	if attempt > c.MaxAttempts {
		return 0, false
	}
	if c.InitialDelay <= 0 {
		return 0, true
	}

	growth := math.Max(c.Multiplier, 1.0)
	delay := float64(c.InitialDelay) * math.Pow(growth, float64(attempt-1))
	if c.MaxDelay > 0 {
		delay = math.Min(delay, float64(c.MaxDelay))
	}
	return time.Duration(delay), true
}

// Boot starts the emulator. It calls EJS_start as soon as it is defined and
// the call either succeeds or fails for good. A missing EJS_start, or a start
// error wrapping ErrNotReady, is tried again after each backoff delay, up to
// MaxAttempts retries. A start that never appears yields ErrStartMissing; one
// that stays not ready yields its last error.
func Boot(ctx context.Context, g *Globals, opts Options, cfg BootConfig, log *zap.SugaredLogger) error {
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 1
	}

	log.Infof("emulator: starting core %s with game %s", opts.Core, opts.GameURL)

	var lastErr error
	for attempt := 1; ; attempt++ {
		if start, ok := g.Starter(); ok {
			err := callStart(start, opts)
			if err == nil {
				log.Infof("emulator: EJS_start called")
				return nil
			}
			if !errors.Is(err, ErrNotReady) {
				log.Errorf("emulator: EJS_start failed: %v", err)
				return fmt.Errorf("emulator: start: %w", err)
			}
			lastErr = err
			log.Debugf("emulator: EJS_start not ready: %v", err)
		} else if attempt == 1 {
			log.Infof("emulator: EJS_start not defined yet; waiting up to %d attempts", cfg.MaxAttempts)
		}

		delay, ok := cfg.RetryDelay(attempt)
		if !ok {
			if lastErr != nil {
				log.Errorf("emulator: EJS_start still not ready after %d attempts: %v", cfg.MaxAttempts, lastErr)
				return fmt.Errorf("emulator: start: %w", lastErr)
			}
			log.Errorf("emulator: EJS_start did not appear after %d attempts; check that emulator.js loaded", cfg.MaxAttempts)
			return ErrStartMissing
		}

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}

func callStart(start StartFunc, opts Options) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("EJS_start panicked: %v", r)
		}
	}()
	return start(opts)
}
