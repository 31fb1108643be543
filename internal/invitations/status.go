package invitations

// legalFrom maps each target status to the set of states it may be reached
// from. Creation sets pending directly; it is not a transition.
var legalFrom = map[Status][]Status{
	StatusSent:      {StatusPending},
	StatusAccepted:  {StatusPending, StatusSent},
	StatusDeclined:  {StatusSent},
	StatusCancelled: {StatusPending, StatusSent},
	StatusExpired:   {StatusPending, StatusSent},
	StatusCompleted: {StatusAccepted},
}

// CanTransition reports whether moving from one status to another is legal.
// Re-applying an already-applied transition is not legal: callers must be
// able to distinguish "already done" from "succeeded now".
func CanTransition(from, to Status) bool {
	for _, s := range legalFrom[to] {
		if s == from {
			return true
		}
	}
	return false
}

// LegalSources returns the statuses from which the target status may be
// reached. The returned slice must not be modified.
func LegalSources(to Status) []Status {
	return legalFrom[to]
}

// TimestampField returns the invitation timestamp column stamped when the
// given status is reached, or "" if the transition stamps only updated_at.
func TimestampField(to Status) string {
	switch to {
	case StatusSent:
		return "sent_at"
	case StatusAccepted:
		return "accepted_at"
	case StatusCompleted:
		return "completed_at"
	case StatusCancelled:
		return "cancelled_at"
	}
	return ""
}
