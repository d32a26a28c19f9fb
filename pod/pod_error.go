package pod

// PodError is the Go analogue of the source's ExInfo: a user error carrying
// structured data. A var's Handler signals it by panicking with a *PodError;
// the scheduler recovers it and maps it to Derefer.Error(Message, Data).
// Any other recovered value is mapped to an unstructured ErrorMsg instead.
type PodError struct {
	Message string
	Data    any
}

func (e *PodError) Error() string { return e.Message }

// NewError constructs a *PodError for panicking from a var Handler.
func NewError(message string, data any) *PodError {
	return &PodError{Message: message, Data: data}
}
