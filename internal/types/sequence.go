package types

// Sequence is a namespaced counter: next unique integer for key K. Used for
// program reference numbers and any other monotonic id assignment.
type Sequence struct {
	Key   string `gorm:"column:key;primaryKey" json:"key"`
	Value int64  `gorm:"column:value;not null;default:0" json:"value"`
}

func (Sequence) TableName() string { return "t_sequence" }
