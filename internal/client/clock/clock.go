// Package clock separates the three client timelines: the render clock that
// paces frames, the interpolation clock that tracks server time for remote
// entities, and the network clock that stamps inputs and estimates latency.
//
// Rate-based effects are written as a fraction per reference tick or a rate
// per second and converted with the actual elapsed time, so they behave the
// same at any frame rate.
package clock

import (
	"math"
	"time"
)

// DecayFactor converts "close fraction of the gap per tick at refHz" into the
// fraction to close over dt.
func DecayFactor(fractionPerRefTick, refHz float64, dt time.Duration) float64 {
	if dt <= 0 || fractionPerRefTick <= 0 {
		return 0
	}
	if fractionPerRefTick >= 1 {
		return 1
	}
	ticks := dt.Seconds() * refHz
	return 1 - math.Pow(1-fractionPerRefTick, ticks)
}

// ExpSmoothing is the fraction of the gap closed over dt by continuous
// exponential approach at ratePerSecond.
func ExpSmoothing(ratePerSecond float64, dt time.Duration) float64 {
	if dt <= 0 || ratePerSecond <= 0 {
		return 0
	}
	return 1 - math.Exp(-ratePerSecond*dt.Seconds())
}

func Lerp(a, b, t float64) float64 { return a + (b-a)*t }

// Fade decays value toward zero at ratePerSecond.
func Fade(value, ratePerSecond float64, dt time.Duration) float64 {
	if dt <= 0 || ratePerSecond <= 0 {
		return value
	}
	return value * math.Exp(-ratePerSecond*dt.Seconds())
}

func toMs(d time.Duration) float64 { return float64(d) / float64(time.Millisecond) }

// RenderClock turns wall-clock frame times into a smoothed, clamped frame
// delta.
type RenderClock struct {
	smoothing float64
	min, max  time.Duration

	last     time.Time
	started  bool
	delta    time.Duration
	smoothed float64 // ms
	elapsed  time.Duration
}

// NewRenderClock weights each new frame sample by smoothing (0..1] in the
// moving average; raw deltas are clamped to [minFrame,maxFrame] first so a
// stall does not produce a huge step.
func NewRenderClock(smoothing float64, minFrame, maxFrame time.Duration) *RenderClock {
	if smoothing <= 0 || smoothing > 1 {
		smoothing = 1
	}
	if maxFrame < minFrame {
		maxFrame = minFrame
	}
	return &RenderClock{smoothing: smoothing, min: minFrame, max: maxFrame}
}

// Frame records a frame at now and returns the delta to advance by. The first
// frame returns zero.
func (c *RenderClock) Frame(now time.Time) time.Duration {
	if !c.started {
		c.started = true
		c.last = now
		return 0
	}
	raw := now.Sub(c.last)
	c.last = now
	if raw < c.min {
		raw = c.min
	}
	if raw > c.max {
		raw = c.max
	}
	if c.smoothed == 0 {
		c.smoothed = toMs(raw)
	} else {
		c.smoothed = Lerp(c.smoothed, toMs(raw), c.smoothing)
	}
	c.delta = time.Duration(c.smoothed * float64(time.Millisecond))
	c.elapsed += c.delta
	return c.delta
}

func (c *RenderClock) Delta() time.Duration   { return c.delta }
func (c *RenderClock) Elapsed() time.Duration { return c.elapsed }

// Reset forgets frame history; the next Frame returns zero.
func (c *RenderClock) Reset() {
	*c = RenderClock{smoothing: c.smoothing, min: c.min, max: c.max}
}

// NetworkClock stamps outgoing inputs with local wall time and keeps
// estimates of the server clock offset and the round trip time. It is
// independent of render smoothing.
type NetworkClock struct {
	now   func() time.Time
	alpha float64

	offsetMs   float64
	rttMs      float64
	offsetSeen bool
	rttSeen    bool
}

func NewNetworkClock(now func() time.Time) *NetworkClock {
	if now == nil {
		now = time.Now
	}
	return &NetworkClock{now: now, alpha: 0.1}
}

// NowMs is local wall time in ms, the timestamp attached to inputs.
func (c *NetworkClock) NowMs() int64 { return c.now().UnixMilli() }

// ObserveServerTime folds a snapshot timestamp received at local time
// receivedMs into the offset estimate. Samples that arrived faster than the
// estimate are trusted immediately; slower ones are averaged in.
func (c *NetworkClock) ObserveServerTime(serverMs, receivedMs int64) {
	sample := float64(serverMs - receivedMs)
	if !c.offsetSeen || sample > c.offsetMs {
		c.offsetMs = sample
		c.offsetSeen = true
		return
	}
	c.offsetMs = Lerp(c.offsetMs, sample, c.alpha)
}

// ObserveRTT folds in a round trip measured from an input's send time to the
// arrival of the snapshot that acknowledged it.
func (c *NetworkClock) ObserveRTT(sentMs, ackedMs int64) {
	sample := float64(ackedMs - sentMs)
	if sample < 0 {
		return
	}
	if !c.rttSeen {
		c.rttMs = sample
		c.rttSeen = true
		return
	}
	c.rttMs = Lerp(c.rttMs, sample, c.alpha)
}

// ServerNowMs estimates the server clock at local time localMs.
func (c *NetworkClock) ServerNowMs(localMs int64) float64 {
	return float64(localMs) + c.offsetMs
}

func (c *NetworkClock) OffsetMs() float64 { return c.offsetMs }
func (c *NetworkClock) RTTMs() float64    { return c.rttMs }
func (c *NetworkClock) Synced() bool      { return c.offsetSeen }

func (c *NetworkClock) Reset() {
	*c = NetworkClock{now: c.now, alpha: c.alpha}
}

// InterpolationClock is the render timeline expressed in server time. It
// advances by render deltas and is slewed toward the network estimate so it
// never jumps on jitter; Target is that timeline shifted back by the
// interpolation delay.
type InterpolationClock struct {
	delayMs  float64
	slewRate float64
	snapMs   float64

	nowMs   float64
	started bool
}

func NewInterpolationClock(delay time.Duration, slewRatePerSecond float64) *InterpolationClock {
	return &InterpolationClock{delayMs: toMs(delay), slewRate: slewRatePerSecond, snapMs: 1000}
}

// Advance moves the timeline forward by dt and pulls it toward estimateMs.
// Errors larger than a second are snapped.
func (c *InterpolationClock) Advance(dt time.Duration, estimateMs float64) {
	if !c.started {
		c.nowMs = estimateMs
		c.started = true
		return
	}
	c.nowMs += toMs(dt)
	diff := estimateMs - c.nowMs
	if math.Abs(diff) > c.snapMs {
		c.nowMs = estimateMs
		return
	}
	c.nowMs += diff * ExpSmoothing(c.slewRate, dt)
}

func (c *InterpolationClock) NowMs() float64    { return c.nowMs }
func (c *InterpolationClock) TargetMs() float64 { return c.nowMs - c.delayMs }
func (c *InterpolationClock) Delay() time.Duration {
	return time.Duration(c.delayMs * float64(time.Millisecond))
}
func (c *InterpolationClock) Started() bool { return c.started }
func (c *InterpolationClock) Reset()        { c.started = false; c.nowMs = 0 }
