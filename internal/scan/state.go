package scan

// State is the scan engine's position in the per-window acquisition cycle.
type State int

const (
	StateIdle State = iota
	StateSettling
	StateIntegrating
	StateAcquiring
	StateAdvancing
	StateComplete
	// StateAborted is terminal for a window discarded by an abort.
	StateAborted
	// StateHalted means an instrument or storage error stopped the window.
	// Run data is kept so the window can be retried.
	StateHalted
)

var stateNames = map[State]string{
	StateIdle:        "idle",
	StateSettling:    "settling",
	StateIntegrating: "integrating",
	StateAcquiring:   "acquiring",
	StateAdvancing:   "advancing",
	StateComplete:    "complete",
	StateAborted:     "aborted",
	StateHalted:      "halted",
}

func (s State) String() string {
	if name, ok := stateNames[s]; ok {
		return name
	}
	return "unknown"
}

// MarshalText lets states appear by name in JSON status payloads.
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// Terminal reports whether no further transitions happen without a new
// window being installed or a retry.
func (s State) Terminal() bool {
	return s == StateComplete || s == StateAborted || s == StateHalted
}
