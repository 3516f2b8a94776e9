package domain

import "errors"

// DomainError marks a failure that must not be retried by the caller as a
// validation problem. Message handlers return it so the delivery is not acknowledged.
type DomainError struct {
	Op  string
	Err error
}

func NewDomainError(op string, err error) error {
	return &DomainError{Op: op, Err: err}
}

func (e *DomainError) Error() string {
	if e.Err == nil {
		return e.Op
	}
	return e.Op + ": " + e.Err.Error()
}

func (e *DomainError) Unwrap() error {
	return e.Err
}

func IsDomainError(err error) bool {
	var de *DomainError
	return errors.As(err, &de)
}
