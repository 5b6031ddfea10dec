package session

import (
	"errors"
	"fmt"
	"time"
)

// ErrorCode коды ошибок менеджера сессий
type ErrorCode int

const (
	ErrorCodeNoMatchingHandler ErrorCode = iota + 1
	ErrorCodeOrphanSession
	ErrorCodeSessionNotFound
	ErrorCodeNotSupported
	ErrorCodeConfigurationError
	ErrorCodeMediaAcquisitionFailure
	ErrorCodeInvalidArgument
	ErrorCodeNegotiationFailure
	ErrorCodeTransportFailure
)

func (code ErrorCode) String() string {
	switch code {
	case ErrorCodeNoMatchingHandler:
		return "NoMatchingHandler"
	case ErrorCodeOrphanSession:
		return "OrphanSession"
	case ErrorCodeSessionNotFound:
		return "SessionNotFound"
	case ErrorCodeNotSupported:
		return "NotSupported"
	case ErrorCodeConfigurationError:
		return "ConfigurationError"
	case ErrorCodeMediaAcquisitionFailure:
		return "MediaAcquisitionFailure"
	case ErrorCodeInvalidArgument:
		return "InvalidArgument"
	case ErrorCodeNegotiationFailure:
		return "NegotiationFailure"
	case ErrorCodeTransportFailure:
		return "TransportFailure"
	default:
		return fmt.Sprintf("Unknown(%d)", int(code))
	}
}

// Error структурированная ошибка сессии
type Error struct {
	Code      ErrorCode
	Message   string
	SessionID string
	Timestamp time.Time
	Fields    map[string]interface{}
	Cause     error
}

// Эталонные ошибки для errors.Is, сравнение идет по коду
var (
	ErrNoMatchingHandler       = &Error{Code: ErrorCodeNoMatchingHandler}
	ErrOrphanSession           = &Error{Code: ErrorCodeOrphanSession}
	ErrSessionNotFound         = &Error{Code: ErrorCodeSessionNotFound}
	ErrNotSupported            = &Error{Code: ErrorCodeNotSupported}
	ErrConfiguration           = &Error{Code: ErrorCodeConfigurationError}
	ErrMediaAcquisitionFailure = &Error{Code: ErrorCodeMediaAcquisitionFailure}
	ErrInvalidArgument         = &Error{Code: ErrorCodeInvalidArgument}
	ErrNegotiationFailure      = &Error{Code: ErrorCodeNegotiationFailure}
	ErrTransportFailure        = &Error{Code: ErrorCodeTransportFailure}
)

// NewError создает ошибку с кодом
func NewError(code ErrorCode, sessionID, format string, args ...interface{}) *Error {
	return &Error{
		Code:      code,
		Message:   fmt.Sprintf(format, args...),
		SessionID: sessionID,
		Timestamp: time.Now(),
	}
}

func (e *Error) Error() string {
	msg := fmt.Sprintf("[session:%s] %s", e.Code, e.Message)
	if e.SessionID != "" {
		msg = fmt.Sprintf("[session:%s] %s (сессия %s)", e.Code, e.Message, e.SessionID)
	}
	if e.Cause != nil {
		msg += ": " + e.Cause.Error()
	}
	return msg
}

// Unwrap позволяет использовать errors.Is и errors.As для причины
func (e *Error) Unwrap() error {
	return e.Cause
}

// Is сравнивает по коду
func (e *Error) Is(target error) bool {
	if t, ok := target.(*Error); ok {
		return e.Code == t.Code
	}
	return false
}

// WithField добавляет поле контекста
func (e *Error) WithField(key string, value interface{}) *Error {
	if e.Fields == nil {
		e.Fields = make(map[string]interface{})
	}
	e.Fields[key] = value
	return e
}

// WithCause добавляет исходную ошибку
func (e *Error) WithCause(cause error) *Error {
	e.Cause = cause
	return e
}

// CodeOf возвращает код ошибки сессии из цепочки или 0
func CodeOf(err error) ErrorCode {
	var sessErr *Error
	if errors.As(err, &sessErr) {
		return sessErr.Code
	}
	return 0
}

// asError приводит произвольную ошибку к *Error, сохраняя исходный код
func asError(err error, fallback ErrorCode, sessionID, message string) *Error {
	var sessErr *Error
	if errors.As(err, &sessErr) {
		if sessErr.SessionID == "" {
			sessErr.SessionID = sessionID
		}
		return sessErr
	}
	return NewError(fallback, sessionID, "%s", message).WithCause(err)
}
