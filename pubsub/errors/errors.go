package errors

// Status tells the subscriber what to do with the package after its handler
// returned an error.
type Status int

const (
	// Retry returns the package to the queue for redelivery
	Retry Status = iota
	// NoRetry acks the package, redelivering it would fail the same way
	NoRetry
)

type StatusErr struct {
	Status Status
	error
}

func WithStatusErr(status Status, err error) error {
	return StatusErr{Status: status, error: err}
}
