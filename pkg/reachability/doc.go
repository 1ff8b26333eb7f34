// Package reachability observes the network path and exposes its current
// classification as a continuously-updated value.
//
// The Monitor holds one immutable Snapshot, replaced atomically on every
// path change. Current never blocks; any number of goroutines may read it
// without synchronization. Change listeners registered with OnChange fire
// only when Connected or Interface changes, never on Expensive/Constrained
// flaps.
//
// Snapshots enter the monitor through a Source. StaticSource lets the
// application forward platform path callbacks; ProbeSource polls the
// interface table for environments without a native path monitor. Absence
// of connectivity is a valid steady state, not an error.
package reachability
