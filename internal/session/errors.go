package session

type ErrorCode string

const (
	ErrorCodeProtocol          ErrorCode = "protocol_error"
	ErrorCodeUnknownConnection ErrorCode = "unknown_connection"
)

type Error struct {
	Code    ErrorCode
	Message string
	Err     error
}

func (e *Error) Error() string {
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

func newError(code ErrorCode, message string, err error) *Error {
	return &Error{
		Code:    code,
		Message: message,
		Err:     err,
	}
}
