package errors

import "fmt"

var (
	ErrWorkerPanic     = fmt.Errorf("worker panic")
	ErrEmptyContent    = fmt.Errorf("message content is empty")
	ErrUnknownSession  = fmt.Errorf("session is not registered")
	ErrSessionResumed  = fmt.Errorf("session already resumed")
	ErrBufferOverflow  = fmt.Errorf("session buffer dropped events")
	ErrEmptyWords      = fmt.Errorf("no censored words have been found")
	ErrInvalidIdentity = fmt.Errorf("display identity is invalid")
)
