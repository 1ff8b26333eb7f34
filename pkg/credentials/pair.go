package credentials

import "time"

// SafetyMargin is how long before expiry an access secret stops being
// handed out. A secret that would expire mid-request is worse than a
// refresh up front.
const SafetyMargin = 5 * time.Minute

// Pair is the access/refresh credential pair with its expiry.
// The three fields are always installed together; the pair is never
// partially updated.
type Pair struct {
	// Access is the short-lived secret sent with each authenticated
	// request.
	Access string

	// Refresh is the longer-lived secret used only to obtain a new
	// access secret.
	Refresh string

	// ExpiresAt is when Access stops being valid.
	ExpiresAt time.Time
}

// Usable reports whether the access secret can still be handed out at
// now, honoring the safety margin.
func (p Pair) Usable(now time.Time) bool {
	return p.Access != "" && now.Add(SafetyMargin).Before(p.ExpiresAt)
}

// Empty reports whether no credentials are held at all.
func (p Pair) Empty() bool {
	return p.Access == "" && p.Refresh == ""
}
