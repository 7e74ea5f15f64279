package store

// SaveState tracks the lifecycle of a tracked asynchronous write.
type SaveState int

const (
	SaveIdle SaveState = iota
	SaveSaving
	SaveSaved
	SaveError
)

// String returns the state name.
func (s SaveState) String() string {
	switch s {
	case SaveIdle:
		return "idle"
	case SaveSaving:
		return "saving"
	case SaveSaved:
		return "saved"
	case SaveError:
		return "error"
	default:
		return "unknown"
	}
}

// Snapshot is an immutable view of store state. Maps are copied on every
// mutation; holders may read a Snapshot without synchronization. Keys
// absent from SaveStatus are idle; keys absent from Errors are valid.
type Snapshot struct {
	Version        uint64
	Values         map[string]any
	Errors         map[string]string
	SaveStatus     map[string]SaveState
	ActionLoading  map[string]bool
	PendingConfirm *Confirm
}

// Value returns the current value for key and whether it is set.
func (s Snapshot) Value(key string) (any, bool) {
	v, ok := s.Values[key]
	return v, ok
}

// Error returns the recorded validation message for key, or "".
func (s Snapshot) Error(key string) string {
	return s.Errors[key]
}

// Save returns the save state for key, SaveIdle when untracked.
func (s Snapshot) Save(key string) SaveState {
	return s.SaveStatus[key]
}

// Loading reports whether an action for key is in flight.
func (s Snapshot) Loading(key string) bool {
	return s.ActionLoading[key]
}

func copyValues(m map[string]any) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

func copyErrors(m map[string]string) map[string]string {
	out := make(map[string]string, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

func copySaves(m map[string]SaveState) map[string]SaveState {
	out := make(map[string]SaveState, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

func copyLoading(m map[string]bool) map[string]bool {
	out := make(map[string]bool, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
