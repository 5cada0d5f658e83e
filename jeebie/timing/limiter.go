package timing

import (
	"log/slog"
	"time"
)

// Limiter paces the host loop so emulation runs at hardware speed.
type Limiter interface {
	// WaitForNextFrame blocks until it's time for the next frame.
	// Returns immediately if timing is behind schedule.
	WaitForNextFrame()

	// Reset resets the timing state, useful after pauses.
	Reset()
}

// NewNoOpLimiter returns a limiter that doesn't limit (for headless mode).
func NewNoOpLimiter() Limiter {
	return noOpLimiter{}
}

type noOpLimiter struct{}

func (noOpLimiter) WaitForNextFrame() {}
func (noOpLimiter) Reset()            {}

// TargetFPS calculates the exact Game Boy frame rate.
func TargetFPS() float64 {
	return float64(CPUFrequency) / float64(CyclesPerFrame)
}

// FrameDuration returns the target duration of a single frame.
func FrameDuration() time.Duration {
	return time.Duration(float64(time.Second) / TargetFPS())
}

// FrameLimiter sleeps until each frame deadline. Deadlines advance by a fixed
// step so small oversleeps do not accumulate, and it resyncs when the host
// falls more than maxLag behind.
type FrameLimiter struct {
	step   time.Duration
	next   time.Time
	frames int64
	late   int64
	now    func() time.Time
	sleep  func(time.Duration)
	logger *slog.Logger
	maxLag time.Duration
}

// NewFrameLimiter returns a limiter running at speed times hardware rate.
// A speed of 0 or less means 1.
func NewFrameLimiter(speed float64) *FrameLimiter {
	if speed <= 0 {
		speed = 1
	}
	l := &FrameLimiter{
		step:   time.Duration(float64(FrameDuration()) / speed),
		now:    time.Now,
		sleep:  time.Sleep,
		logger: slog.Default(),
		maxLag: 5 * FrameDuration(),
	}
	l.Reset()
	return l
}

func (l *FrameLimiter) WaitForNextFrame() {
	l.next = l.next.Add(l.step)
	l.frames++

	wait := l.next.Sub(l.now())
	switch {
	case wait > 0:
		l.sleep(wait)
	case -wait > l.maxLag:
		l.late++
		l.logger.Debug("frame limiter resync", "behind_ms", (-wait).Milliseconds(), "frames", l.frames)
		l.next = l.now()
	}
}

func (l *FrameLimiter) Reset() {
	l.next = l.now()
	l.frames = 0
	l.late = 0
}

// Resyncs returns how many times the limiter gave up catching up.
func (l *FrameLimiter) Resyncs() int64 { return l.late }
