package service

// ValidationError is any failure that prevented a validation verdict. Its
// message is the cause's message so it can be surfaced to callers verbatim.
type ValidationError struct {
	Platform string
	Err      error
}

func (e *ValidationError) Error() string {
	return e.Err.Error()
}

func (e *ValidationError) Unwrap() error {
	return e.Err
}
