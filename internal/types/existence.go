package types

// Existence is the soft-delete marker. A deleted row stays on disk but
// leaves the sibling index space, so deletion always closes a hole.
type Existence string

const (
	ExistencePresent Existence = "present"
	ExistenceDeleted Existence = "deleted"
)
