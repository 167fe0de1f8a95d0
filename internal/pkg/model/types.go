package model

// Source identifies which write path produced a state change.
type Source string

func (s Source) String() string {
	return string(s)
}

const (
	// SourceStatus is a bitmask reported by the controller.
	SourceStatus Source = "status"
	// SourceCommand is an optimistic write ahead of the controller's confirmation.
	SourceCommand Source = "command"
)
