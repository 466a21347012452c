package errorx

import "fmt"

type Error struct {
	Code    Code
	Message string
}

func New(code Code, format string, a ...any) Error {
	return Error{Code: code, Message: fmt.Sprintf(format, a...)}
}

func (e Error) Error() string {
	return e.Message
}

// Retryable tells the caller whether re-issuing the same request can ever
// succeed without another action on their side.
func (e Error) Retryable() bool {
	switch e.Code {
	case ProviderUnavailable, RateLimited:
		return true
	}
	return false
}
