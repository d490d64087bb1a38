package patrol

// State is one stage of the patrol pipeline.
type State string

const (
	StateIdle        State = "idle"
	StateScanBefore  State = "scan-before"
	StateCleanReport State = "clean-report"
	StateRemediating State = "remediating"
	StateScanAfter   State = "scan-after"
	StateDiffCapture State = "diff-capture"
	StateSkipVerify  State = "skip-verify"
	StateVerifying   State = "verifying"
	StateKeep        State = "keep"
	StateRollback    State = "rollback"
	StateRestoring   State = "restoring"
	StateReporting   State = "reporting"
	StatePersisting  State = "persisting"
	StateDone        State = "done"

	// StateRetainUnverified leaves edits in place because discarding them
	// would also drop unprotected uncommitted work.
	StateRetainUnverified State = "retain-unverified"
)

// transitions lists the legal successors of each state.
var transitions = map[State][]State{
	StateIdle:             {StateScanBefore},
	StateScanBefore:       {StateCleanReport, StateRemediating},
	StateCleanReport:      {StateReporting},
	StateRemediating:      {StateScanAfter},
	StateScanAfter:        {StateDiffCapture},
	StateDiffCapture:      {StateSkipVerify, StateVerifying, StateRollback, StateRetainUnverified},
	StateSkipVerify:       {StateRestoring},
	StateVerifying:        {StateKeep, StateRollback, StateRetainUnverified},
	StateKeep:             {StateRestoring},
	StateRollback:         {StateRestoring},
	StateRetainUnverified: {StateRestoring},
	StateRestoring:        {StateReporting},
	StateReporting:        {StatePersisting},
	StatePersisting:       {StateDone},
}

// CanTransition reports whether to is a legal successor of from.
func CanTransition(from, to State) bool {
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// Run outcomes used for metrics and logs.
const (
	OutcomeClean      = "clean"
	OutcomeKept       = "kept"
	OutcomeUnchanged  = "unchanged"
	OutcomeRolledBack = "rolled-back"
	OutcomeUnverified = "unverified"
)
