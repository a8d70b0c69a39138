package engine

// Phase is the engine's position in the execution workflow:
// Validating -> Resolving -> CacheCheck -> Running -> Composing -> Done | Failed.
type Phase string

const (
	PhaseValidating Phase = "validating"
	PhaseResolving  Phase = "resolving"
	PhaseCacheCheck Phase = "cache-check"
	PhaseRunning    Phase = "running"
	PhaseComposing  Phase = "composing"
	PhaseDone       Phase = "done"
	PhaseFailed     Phase = "failed"
)

// IsTerminal reports whether the phase ends the run.
func (p Phase) IsTerminal() bool {
	return p == PhaseDone || p == PhaseFailed
}

// String implements fmt.Stringer.
func (p Phase) String() string {
	return string(p)
}
