package reachability

// Kind identifies the network interface type carrying traffic.
type Kind uint8

const (
	// KindUnknown indicates the interface type could not be determined.
	KindUnknown Kind = iota

	// KindWifi indicates a Wi-Fi interface.
	KindWifi

	// KindCellular indicates a cellular interface.
	KindCellular

	// KindWired indicates a wired (ethernet) interface.
	KindWired

	// KindOther indicates some other interface (loopback, VPN, ...).
	KindOther
)

// String returns the interface kind name.
func (k Kind) String() string {
	switch k {
	case KindWifi:
		return "WIFI"
	case KindCellular:
		return "CELLULAR"
	case KindWired:
		return "WIRED"
	case KindOther:
		return "OTHER"
	default:
		return "UNKNOWN"
	}
}

// Snapshot is an immutable classification of the current network path.
// Snapshots are replaced whole on every path change, never mutated in
// place, so they may be read concurrently without synchronization.
type Snapshot struct {
	// Connected reports whether a usable network path exists.
	// false is a valid steady state, not an error.
	Connected bool

	// Interface is the kind of interface carrying traffic.
	Interface Kind

	// Expensive reports whether the path is metered (e.g. cellular data).
	Expensive bool

	// Constrained reports whether the OS restricts data usage on the path
	// (e.g. low-data mode).
	Constrained bool
}

// significantChange reports whether the transition from prev to next
// should be delivered to change listeners. Only Connected and Interface
// transitions count; Expensive/Constrained flaps are absorbed to avoid
// notification storms.
func significantChange(prev, next Snapshot) bool {
	return prev.Connected != next.Connected || prev.Interface != next.Interface
}
