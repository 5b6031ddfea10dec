package media

import "fmt"

// ErrorCode типизированные коды ошибок медиа слоя
type ErrorCode int

const (
	ErrorCodeTrackEnded ErrorCode = iota + 2000
	ErrorCodeSinkClosed
	ErrorCodeAcquireFailed
	ErrorCodeInvalidStream
)

func (code ErrorCode) String() string {
	switch code {
	case ErrorCodeTrackEnded:
		return "TrackEnded"
	case ErrorCodeSinkClosed:
		return "SinkClosed"
	case ErrorCodeAcquireFailed:
		return "AcquireFailed"
	case ErrorCodeInvalidStream:
		return "InvalidStream"
	default:
		return fmt.Sprintf("Unknown(%d)", int(code))
	}
}

// Error ошибка медиа слоя с кодом и контекстом
type Error struct {
	Code    ErrorCode
	Message string
	TrackID string
	Context map[string]interface{}
	Wrapped error
}

// Сравниваются только по коду через errors.Is
var (
	ErrTrackEnded    = &Error{Code: ErrorCodeTrackEnded, Message: "трек завершен"}
	ErrSinkClosed    = &Error{Code: ErrorCodeSinkClosed, Message: "приемник закрыт"}
	ErrAcquireFailed = &Error{Code: ErrorCodeAcquireFailed, Message: "не удалось получить медиа"}
)

func (e *Error) Error() string {
	msg := fmt.Sprintf("[медиа:%s] %s", e.Code, e.Message)
	if e.TrackID != "" {
		msg = fmt.Sprintf("[медиа:%s] трек %s: %s", e.Code, e.TrackID, e.Message)
	}
	if e.Wrapped != nil {
		msg += ": " + e.Wrapped.Error()
	}
	return msg
}

// Unwrap возвращает обернутую ошибку
func (e *Error) Unwrap() error {
	return e.Wrapped
}

// Is сравнивает ошибки по коду
func (e *Error) Is(target error) bool {
	if t, ok := target.(*Error); ok {
		return e.Code == t.Code
	}
	return false
}

// GetContext возвращает значение из контекста ошибки по ключу
func (e *Error) GetContext(key string) interface{} {
	if e.Context == nil {
		return nil
	}
	return e.Context[key]
}

func newTrackEndedError(trackID string) *Error {
	return &Error{Code: ErrorCodeTrackEnded, Message: "трек завершен", TrackID: trackID}
}

// NewAcquireError оборачивает ошибку получения локального медиа
func NewAcquireError(source string, cause error) *Error {
	return &Error{
		Code:    ErrorCodeAcquireFailed,
		Message: fmt.Sprintf("не удалось получить %s", source),
		Context: map[string]interface{}{"source": source},
		Wrapped: cause,
	}
}
