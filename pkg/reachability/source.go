package reachability

import (
	"context"
	"net"
	"strings"
	"sync"
	"time"
)

// StaticSource is a Source driven programmatically. Applications wire
// their platform path-change callbacks into Set; tests use it to script
// connectivity transitions.
type StaticSource struct {
	mu      sync.Mutex
	ch      chan Snapshot
	watched bool
}

// NewStaticSource creates a static source.
func NewStaticSource() *StaticSource {
	return &StaticSource{
		ch: make(chan Snapshot, 8),
	}
}

// Set emits a new snapshot. Snapshots set before Watch is consumed are
// buffered; if the buffer is full the oldest pending snapshot is dropped
// (only the latest state matters).
func (s *StaticSource) Set(snap Snapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for {
		select {
		case s.ch <- snap:
			return
		default:
			select {
			case <-s.ch:
			default:
			}
		}
	}
}

// Watch returns the snapshot channel.
func (s *StaticSource) Watch(ctx context.Context) <-chan Snapshot {
	s.mu.Lock()
	s.watched = true
	s.mu.Unlock()

	out := make(chan Snapshot)
	go func() {
		defer close(out)
		for {
			select {
			case <-ctx.Done():
				return
			case snap := <-s.ch:
				select {
				case out <- snap:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out
}

// Probe source defaults.
const (
	// DefaultProbeInterval is how often ProbeSource re-inspects the
	// interface table.
	DefaultProbeInterval = 5 * time.Second

	// DefaultProbeTimeout bounds the optional dial probe.
	DefaultProbeTimeout = 2 * time.Second
)

// ProbeSourceConfig configures a ProbeSource.
type ProbeSourceConfig struct {
	// Interval between inspections (default: 5s).
	Interval time.Duration

	// ProbeAddr, when set, is dialed (TCP) each interval to confirm the
	// path actually carries traffic. When empty, an up non-loopback
	// interface with an address counts as connected.
	ProbeAddr string

	// ProbeTimeout bounds the dial probe (default: 2s).
	ProbeTimeout time.Duration
}

// ProbeSource classifies connectivity by polling the interface table and
// optionally dialing a probe address. It is a portable stand-in for
// OS path monitors on platforms without one (servers, CI).
type ProbeSource struct {
	config ProbeSourceConfig
}

// NewProbeSource creates a probe source.
func NewProbeSource(config ProbeSourceConfig) *ProbeSource {
	if config.Interval <= 0 {
		config.Interval = DefaultProbeInterval
	}
	if config.ProbeTimeout <= 0 {
		config.ProbeTimeout = DefaultProbeTimeout
	}
	return &ProbeSource{config: config}
}

// Watch polls on the configured interval and emits a snapshot per tick.
func (p *ProbeSource) Watch(ctx context.Context) <-chan Snapshot {
	out := make(chan Snapshot)

	go func() {
		defer close(out)

		ticker := time.NewTicker(p.config.Interval)
		defer ticker.Stop()

		// Emit an initial snapshot immediately so Current is meaningful
		// before the first tick.
		snap := p.inspect()
		select {
		case out <- snap:
		case <-ctx.Done():
			return
		}

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				snap := p.inspect()
				select {
				case out <- snap:
				case <-ctx.Done():
					return
				}
			}
		}
	}()

	return out
}

// inspect builds a snapshot from the interface table and probe result.
func (p *ProbeSource) inspect() Snapshot {
	kind, up := activeInterface()
	if !up {
		return Snapshot{Connected: false, Interface: KindUnknown}
	}

	connected := true
	if p.config.ProbeAddr != "" {
		conn, err := net.DialTimeout("tcp", p.config.ProbeAddr, p.config.ProbeTimeout)
		if err != nil {
			connected = false
		} else {
			conn.Close()
		}
	}

	return Snapshot{
		Connected: connected,
		Interface: kind,
		Expensive: kind == KindCellular,
	}
}

// activeInterface returns the kind of the first up, non-loopback interface
// that has an assigned address.
func activeInterface() (Kind, bool) {
	ifaces, err := net.Interfaces()
	if err != nil {
		return KindUnknown, false
	}

	for _, iface := range ifaces {
		if iface.Flags&net.FlagUp == 0 || iface.Flags&net.FlagLoopback != 0 {
			continue
		}
		addrs, err := iface.Addrs()
		if err != nil || len(addrs) == 0 {
			continue
		}
		return classifyInterfaceName(iface.Name), true
	}
	return KindUnknown, false
}

// classifyInterfaceName maps common interface name prefixes to kinds.
// Naming conventions vary by platform; anything unrecognized is Other.
func classifyInterfaceName(name string) Kind {
	lower := strings.ToLower(name)
	switch {
	case strings.HasPrefix(lower, "wl"), strings.HasPrefix(lower, "wifi"), strings.HasPrefix(lower, "ath"):
		return KindWifi
	case strings.HasPrefix(lower, "rmnet"), strings.HasPrefix(lower, "wwan"), strings.HasPrefix(lower, "pdp"):
		return KindCellular
	case strings.HasPrefix(lower, "en"), strings.HasPrefix(lower, "eth"):
		return KindWired
	default:
		return KindOther
	}
}

// Compile-time interface satisfaction checks.
var (
	_ Source = (*StaticSource)(nil)
	_ Source = (*ProbeSource)(nil)
)
