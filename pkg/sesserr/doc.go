// Package sesserr provides the error taxonomy shared by the session core.
//
// Errors are classified into a closed set of kinds that drive retry
// decisions:
//
//   - Connectivity: no network path; retry once connectivity returns
//   - Transport: dropped/timed-out connection; retry with backoff
//   - Authorization: credential rejected; terminal
//   - Malformed: bad local payload; terminal
//   - Exhausted: retry budget consumed; terminal, distinct so callers can
//     tell "never worked" from "worked then broke"
//
// Components wrap errors with the constructors (Transport, Authorization,
// ...) and consumers inspect them with KindOf or Retryable. Classification
// survives fmt.Errorf("%w") wrapping.
package sesserr
