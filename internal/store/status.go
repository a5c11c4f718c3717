package store

// Status is an open tag: callers may supply values beyond the named
// constants. Only COMPLETED is recognized as terminal.
type Status string

const (
	StatusPending   Status = "PENDING"
	StatusCompleted Status = "COMPLETED"
	StatusCancelled Status = "CANCELLED"
)

// Terminal reports whether a purchase with this status may no longer be
// amended or cancelled.
func (s Status) Terminal() bool {
	return s == StatusCompleted
}
