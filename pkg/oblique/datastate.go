package oblique

// DataState is the load state of a data set or one of its tiles.
//
// The numeric order encodes aggregation precedence: an aggregate is as
// "unfinished" as its least finished part.
type DataState int

const (
	DataStateReady DataState = iota
	DataStateLoading
	DataStatePending
)

func (s DataState) String() string {
	switch s {
	case DataStateReady:
		return "ready"
	case DataStateLoading:
		return "loading"
	case DataStatePending:
		return "pending"
	}
	return "unknown"
}

// CombineDataStates aggregates states with precedence
// Pending > Loading > Ready. No states aggregate to Ready.
func CombineDataStates(states ...DataState) DataState {
	result := DataStateReady
	for _, s := range states {
		if s > result {
			result = s
		}
	}
	return result
}
