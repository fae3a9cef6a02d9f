package processor

// State is a step of the per-record pipeline. States only advance, in
// declaration order; any state may move to Failed.
type State int

const (
	Start State = iota
	Navigated
	PopupHandled
	TabActive
	Snapshotted
	Matched
	ControlResolved
	Clicked
	Finalized
	Failed
)

var stateNames = [...]string{
	Start:           "start",
	Navigated:       "navigated",
	PopupHandled:    "popup-handled",
	TabActive:       "tab-active",
	Snapshotted:     "snapshotted",
	Matched:         "matched",
	ControlResolved: "control-resolved",
	Clicked:         "clicked",
	Finalized:       "finalized",
	Failed:          "failed",
}

func (s State) String() string {
	if s < 0 || int(s) >= len(stateNames) {
		return "unknown"
	}
	return stateNames[s]
}

// Terminal reports whether no further transition is possible.
func (s State) Terminal() bool {
	return s == Finalized || s == Failed
}
