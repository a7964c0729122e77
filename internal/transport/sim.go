package transport

import (
	"context"
	"fmt"
	"math"
	"math/rand"
	"sync"
	"sync/atomic"
	"time"

	"github.com/LISSConsulting/LISSTech.UsbTerm/internal/relay"
)

// SimConfig configures the simulated device.
type SimConfig struct {
	Name     string
	Interval time.Duration // time between samples
	Period   int           // samples per sine period
	Noise    float64       // peak noise amplitude
	// FailAfter reports an I/O error after this many samples. Zero never fails.
	FailAfter int
	Seed      int64
}

// Sim is a fake device that emits one numeric line per interval on a noisy
// sine wave in [0, 1024), echoes writes back, and loops RTS to CTS and DTR
// to DSR.
type Sim struct {
	cfg    SimConfig
	closed atomic.Bool
	done   chan struct{}
	once   sync.Once

	mu       sync.Mutex
	sink     relay.Sink
	rts, dtr bool
	breaks   int
}

// NewSim returns a simulated device.
func NewSim(cfg SimConfig) *Sim {
	if cfg.Name == "" {
		cfg.Name = "sim"
	}
	if cfg.Interval <= 0 {
		cfg.Interval = 100 * time.Millisecond
	}
	if cfg.Period <= 0 {
		cfg.Period = 64
	}
	if cfg.Seed == 0 {
		cfg.Seed = time.Now().UnixNano()
	}
	return &Sim{cfg: cfg, done: make(chan struct{})}
}

// Name returns the configured device name.
func (s *Sim) Name() string { return s.cfg.Name }

// Open starts the sample generator.
func (s *Sim) Open(ctx context.Context, sink relay.Sink) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s.closed.Load() {
		return ErrClosed
	}
	s.mu.Lock()
	s.sink = sink
	s.rts, s.dtr = true, true
	s.mu.Unlock()

	sink.OnConnect()
	go s.run(sink)
	return nil
}

// SampleAt returns the noiseless value of sample i.
func (s *Sim) SampleAt(i int) float64 {
	phase := 2 * math.Pi * float64(i) / float64(s.cfg.Period)
	return 512 + 400*math.Sin(phase)
}

func (s *Sim) run(sink relay.Sink) {
	rng := rand.New(rand.NewSource(s.cfg.Seed))
	ticker := time.NewTicker(s.cfg.Interval)
	defer ticker.Stop()

	for i := 0; ; i++ {
		select {
		case <-s.done:
			return
		case <-ticker.C:
		}
		if s.cfg.FailAfter > 0 && i >= s.cfg.FailAfter {
			if !s.closed.Load() {
				sink.OnIoError(fmt.Errorf("transport: %s: simulated failure after %d samples", s.cfg.Name, i))
			}
			return
		}
		v := s.SampleAt(i) + s.cfg.Noise*(2*rng.Float64()-1)
		v = math.Min(math.Max(v, 0), 1023)
		if s.closed.Load() {
			return
		}
		sink.OnRead([]byte(fmt.Sprintf("%.0f\n", v)))
	}
}

// Write echoes data back as received bytes.
func (s *Sim) Write(data []byte) error {
	if s.closed.Load() {
		return ErrClosed
	}
	s.mu.Lock()
	sink := s.sink
	s.mu.Unlock()
	if sink == nil {
		return ErrClosed
	}
	sink.OnRead(data)
	return nil
}

// Close stops the generator.
func (s *Sim) Close() error {
	if s.closed.CompareAndSwap(false, true) {
		s.once.Do(func() { close(s.done) })
	}
	return nil
}

// SetRTS sets RTS, which is looped back to CTS.
func (s *Sim) SetRTS(on bool) error {
	s.mu.Lock()
	s.rts = on
	s.mu.Unlock()
	return nil
}

// SetDTR sets DTR, which is looped back to DSR and CD.
func (s *Sim) SetDTR(on bool) error {
	s.mu.Lock()
	s.dtr = on
	s.mu.Unlock()
	return nil
}

// LineStatus reports the looped-back lines.
func (s *Sim) LineStatus() (relay.LineStatus, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return relay.LineStatus{
		RTS: s.rts, CTS: s.rts,
		DTR: s.dtr, DSR: s.dtr, CD: s.dtr,
	}, nil
}

// SendBreak records a break.
func (s *Sim) SendBreak(time.Duration) error {
	s.mu.Lock()
	s.breaks++
	s.mu.Unlock()
	return nil
}

// Breaks returns how many breaks were sent.
func (s *Sim) Breaks() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.breaks
}
