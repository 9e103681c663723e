package presence

// AggregateSessions derives one logical status for a user from the set of that
// user's live sessions, using the most-active-session-wins rule:
//
//   - any session online  → online
//   - non-empty, all away → away
//   - empty set           → offline
//
// Last-writer-wins is deliberately not used: a user with one focused tab and
// one backgrounded tab must read as online regardless of which tab wrote last.
// Deterministic and side-effect free; safe to call concurrently.
func AggregateSessions(sessions []Session) Status {
	if len(sessions) == 0 {
		return StatusOffline
	}
	for _, s := range sessions {
		if s.LocalStatus == StatusOnline {
			return StatusOnline
		}
	}
	return StatusAway
}
