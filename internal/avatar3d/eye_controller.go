package avatar3d

import (
	"math/rand"
	"sync"
	"time"
)

// BlinkConfig controls automatic blinking and manual winks.
type BlinkConfig struct {
	MinGap    time.Duration
	MaxGap    time.Duration
	BlinkHold time.Duration
	WinkHold  time.Duration
}

func DefaultBlinkConfig() BlinkConfig {
	return BlinkConfig{
		MinGap:    1200 * time.Millisecond,
		MaxGap:    5200 * time.Millisecond,
		BlinkHold: 200 * time.Millisecond,
		WinkHold:  300 * time.Millisecond,
	}
}

type BlinkState int

const (
	BlinkStateOpen BlinkState = iota
	BlinkStateClosed
)

type Side int

const (
	SideLeft Side = iota
	SideRight
)

// EyeController schedules blinks on a random gap and holds winks for a fixed
// time. It is advanced by frame delta rather than the wall clock so a
// runtime loop and tests drive it the same way.
type EyeController struct {
	mu  sync.Mutex
	cfg BlinkConfig
	rng *rand.Rand

	blinkState BlinkState
	untilNext  time.Duration
	blinkLeft  time.Duration
	winkLeft   time.Duration
	winkRight  time.Duration
}

// NewEyeController creates a controller with eyes open. A nil rng uses a
// time-seeded source.
func NewEyeController(cfg BlinkConfig, rng *rand.Rand) *EyeController {
	if rng == nil {
		rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	if cfg.MaxGap < cfg.MinGap {
		cfg.MaxGap = cfg.MinGap
	}
	ec := &EyeController{cfg: cfg, rng: rng}
	ec.untilNext = ec.randomGap()
	return ec
}

// Update advances the controller by dt and returns the flags for this frame.
func (ec *EyeController) Update(dt time.Duration) BlinkFlags {
	ec.mu.Lock()
	defer ec.mu.Unlock()

	switch ec.blinkState {
	case BlinkStateOpen:
		ec.untilNext -= dt
		if ec.untilNext <= 0 {
			ec.blinkState = BlinkStateClosed
			ec.blinkLeft = ec.cfg.BlinkHold
		}
	case BlinkStateClosed:
		ec.blinkLeft -= dt
		if ec.blinkLeft <= 0 {
			ec.blinkState = BlinkStateOpen
			ec.untilNext = ec.randomGap()
		}
	}

	ec.winkLeft = decrement(ec.winkLeft, dt)
	ec.winkRight = decrement(ec.winkRight, dt)

	return ec.flags()
}

// Flags returns the current flags without advancing time.
func (ec *EyeController) Flags() BlinkFlags {
	ec.mu.Lock()
	defer ec.mu.Unlock()
	return ec.flags()
}

func (ec *EyeController) flags() BlinkFlags {
	return BlinkFlags{
		Blink:     ec.blinkState == BlinkStateClosed,
		WinkLeft:  ec.winkLeft > 0,
		WinkRight: ec.winkRight > 0,
	}
}

// TriggerBlink closes both eyes now unless a blink is already running.
func (ec *EyeController) TriggerBlink() {
	ec.mu.Lock()
	defer ec.mu.Unlock()
	if ec.blinkState == BlinkStateOpen {
		ec.blinkState = BlinkStateClosed
		ec.blinkLeft = ec.cfg.BlinkHold
	}
}

// Wink closes one eye for the configured hold.
func (ec *EyeController) Wink(side Side) {
	ec.mu.Lock()
	defer ec.mu.Unlock()
	switch side {
	case SideLeft:
		ec.winkLeft = ec.cfg.WinkHold
	case SideRight:
		ec.winkRight = ec.cfg.WinkHold
	}
}

func (ec *EyeController) SetConfig(cfg BlinkConfig) {
	ec.mu.Lock()
	defer ec.mu.Unlock()
	if cfg.MaxGap < cfg.MinGap {
		cfg.MaxGap = cfg.MinGap
	}
	ec.cfg = cfg
}

func (ec *EyeController) IsBlinking() bool {
	ec.mu.Lock()
	defer ec.mu.Unlock()
	return ec.blinkState != BlinkStateOpen
}

// randomGap picks a gap in [MinGap, MaxGap] at millisecond resolution.
func (ec *EyeController) randomGap() time.Duration {
	span := (ec.cfg.MaxGap - ec.cfg.MinGap) / time.Millisecond
	return ec.cfg.MinGap + time.Duration(ec.rng.Int63n(int64(span)+1))*time.Millisecond
}

func decrement(d, dt time.Duration) time.Duration {
	if d <= dt {
		return 0
	}
	return d - dt
}
