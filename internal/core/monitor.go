package core

import (
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

// Monitor runs the recurring idle-connection sweep. Start and Stop are
// idempotent; the sweep itself stops the monitor once the registry empties,
// so an idle coordinator holds no ticking goroutine.
type Monitor struct {
	mu       sync.Mutex
	interval time.Duration
	sweep    func()
	stop     chan struct{}
	running  bool
}

func NewMonitor(interval time.Duration, sweep func()) *Monitor {
	return &Monitor{interval: interval, sweep: sweep}
}

func (m *Monitor) Start() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.running {
		return
	}
	m.running = true
	m.stop = make(chan struct{})
	go m.run(m.stop)
	log.Debug().Str("module", "core.monitor").Dur("interval", m.interval).Msg("activity monitor started")
}

func (m *Monitor) Stop() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.running {
		return
	}
	m.running = false
	close(m.stop)
	log.Debug().Str("module", "core.monitor").Msg("activity monitor stopped")
}

func (m *Monitor) Running() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.running
}

func (m *Monitor) run(stop chan struct{}) {
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			m.sweep()
		}
	}
}
