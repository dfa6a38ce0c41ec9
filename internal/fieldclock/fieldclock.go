// Package fieldclock implements last-writer-wins merging for independently
// owned configuration field-groups. Each secret-bearing sub-document (the
// SNMP community, the PJLink password) carries its own update timestamp; the
// merge rule is applied uniformly instead of being scattered across ad-hoc
// conditionals.
package fieldclock

import "time"

// Stamped is any field-group that knows when it was last written.
type Stamped interface {
	Stamp() time.Time
}

// Merge resolves two copies of the same field-group: the remote copy wins if
// and only if its timestamp is strictly newer. Equal timestamps keep the
// local copy, which makes merging idempotent when both sides already agree.
func Merge[T Stamped](local, remote T) T {
	if remote.Stamp().After(local.Stamp()) {
		return remote
	}
	return local
}

// Newer reports whether the incoming timestamp beats the recorded one. A
// zero recorded timestamp means the field-group has never been written, so
// any stamped write is accepted.
func Newer(recorded, incoming time.Time) bool {
	if recorded.IsZero() {
		return !incoming.IsZero()
	}
	return incoming.After(recorded)
}
