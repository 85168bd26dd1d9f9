package types

// CalcState is the lifecycle of one derived-computation entry.
//
//	pending     — inputs changed, needs (re)computation
//	calculating — claimed by a worker
//	ready       — stored result matches current inputs
//	retry       — recoverable failure, back off until RetryAt
type CalcState string

const (
	CalcStatePending     CalcState = "pending"
	CalcStateCalculating CalcState = "calculating"
	CalcStateReady       CalcState = "ready"
	CalcStateRetry       CalcState = "retry"
)

func (s CalcState) Valid() bool {
	switch s {
	case CalcStatePending, CalcStateCalculating, CalcStateReady, CalcStateRetry:
		return true
	}
	return false
}
