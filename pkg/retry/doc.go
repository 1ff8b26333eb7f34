// Package retry turns a single fallible network operation into a
// resilient one.
//
// Do re-invokes an operation with exponential backoff and additive
// jitter, capped at a maximum delay:
//
//	delay(1) = initial
//	delay(n) = min(max, delay(n-1)*2 + random(0, unit))
//
// Before each attempt the reachability monitor is consulted; with no
// network path the call fails fast instead of burning an attempt on a
// doomed request. Errors are classified through sesserr: authorization
// and malformed-request failures are terminal and returned immediately,
// everything else retries until the attempt budget is exhausted.
//
// Each Do invocation carries a short correlation token through its log
// output so a single logical operation's retry sequence can be traced.
package retry
