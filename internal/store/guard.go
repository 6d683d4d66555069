package store

// ReleaseGuard selects which preconditions a release must hold. The
// sweeper releases with GuardBoth so a quote redeemed or released in
// the meantime is skipped instead of double-released; a provider-error
// release uses GuardNone because the quote is already marked used.
type ReleaseGuard int

const (
	GuardNone ReleaseGuard = iota
	GuardUnused
	GuardExpired
	GuardBoth
)

// RequireUnused reports whether the guard demands used_at be unset
func (g ReleaseGuard) RequireUnused() bool {
	return g == GuardUnused || g == GuardBoth
}

// RequireExpired reports whether the guard demands the window be past
func (g ReleaseGuard) RequireExpired() bool {
	return g == GuardExpired || g == GuardBoth
}

// Predicate returns the SQL fragment appended to the release UPDATE's
// WHERE clause so the same conditions checked in application code are
// re-asserted atomically against the current row state.
func (g ReleaseGuard) Predicate() string {
	var p string
	if g.RequireUnused() {
		p += " AND used_at IS NULL"
	}
	if g.RequireExpired() {
		p += " AND expires_at < NOW()"
	}
	return p
}

func (g ReleaseGuard) String() string {
	switch g {
	case GuardUnused:
		return "unused"
	case GuardExpired:
		return "expired"
	case GuardBoth:
		return "unused+expired"
	default:
		return "none"
	}
}
