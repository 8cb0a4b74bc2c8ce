package domain

import (
	"errors"
	"fmt"
	"net/http"
)

// Error kinds. Use errors.Is against these to classify any error returned by
// the app layer.
var (
	ErrUnknown               = errors.New("unknown error")
	ErrValidation            = errors.New("validation error")
	ErrNotFound              = errors.New("resource not found")
	ErrMethodNotAllowed      = errors.New("method not allowed")
	ErrUnauthorized          = errors.New("unauthorized access")
	ErrDatabase              = errors.New("database error")
	ErrDuplicateEntry        = errors.New("resource already exists")
	ErrProductNotFound       = errors.New("product not found")
	ErrInvalidProductData    = errors.New("invalid product data")
	ErrOrderNotFound         = errors.New("order not found")
	ErrInvalidOrderData      = errors.New("invalid order data")
	ErrInsufficientInventory = errors.New("insufficient inventory")
	ErrCannotUpdateStock     = errors.New("cannot update stock for order that is not completed")
	ErrIdempotencyInProgress = errors.New("request with this idempotency key is in progress")
	ErrNoTransaction         = errors.New("operation requires an open transaction")
)

// Code is the machine-readable error code exposed to API clients.
type Code struct {
	Value  int
	Status int
}

var codes = map[error]Code{
	ErrUnknown:               {1000, http.StatusInternalServerError},
	ErrValidation:            {1001, http.StatusBadRequest},
	ErrNotFound:              {1002, http.StatusNotFound},
	ErrMethodNotAllowed:      {1003, http.StatusMethodNotAllowed},
	ErrUnauthorized:          {2000, http.StatusUnauthorized},
	ErrDatabase:              {3000, http.StatusInternalServerError},
	ErrDuplicateEntry:        {3001, http.StatusConflict},
	ErrProductNotFound:       {4000, http.StatusNotFound},
	ErrInvalidProductData:    {4001, http.StatusBadRequest},
	ErrOrderNotFound:         {5000, http.StatusNotFound},
	ErrInvalidOrderData:      {5001, http.StatusBadRequest},
	ErrInsufficientInventory: {5002, http.StatusConflict},
	ErrCannotUpdateStock:     {5003, http.StatusConflict},
	ErrIdempotencyInProgress: {5004, http.StatusConflict},
}

// Error carries a kind, a human message and structured details about a failure.
type Error struct {
	Kind    error
	Message string
	Details map[string]any
	Err     error
}

// NewError builds an Error of the given kind. An empty message falls back to
// the kind's text.
func NewError(kind error, message string, details map[string]any) *Error {
	if message == "" {
		message = kind.Error()
	}
	if details == nil {
		details = map[string]any{}
	}
	return &Error{Kind: kind, Message: message, Details: details}
}

// NewDatabaseError wraps a storage failure. The cause is kept for logging and
// errors.As but never rendered to clients.
func NewDatabaseError(message string, cause error) *Error {
	e := NewError(ErrDatabase, message, nil)
	e.Err = cause
	return e
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *Error) Unwrap() []error {
	if e.Err != nil {
		return []error{e.Kind, e.Err}
	}
	return []error{e.Kind}
}

// KindOf returns the error kind of err, or ErrUnknown when err carries none.
func KindOf(err error) error {
	if err == nil {
		return nil
	}
	var de *Error
	if errors.As(err, &de) {
		return de.Kind
	}
	for kind := range codes {
		if errors.Is(err, kind) {
			return kind
		}
	}
	return ErrUnknown
}

// CodeOf returns the API code for err.
func CodeOf(err error) Code {
	if c, ok := codes[KindOf(err)]; ok {
		return c
	}
	return codes[ErrUnknown]
}

// IsDomainKind reports whether err is one of the known kinds other than
// ErrUnknown and ErrDatabase.
func IsDomainKind(err error) bool {
	switch KindOf(err) {
	case ErrUnknown, ErrDatabase:
		return false
	}
	return true
}

// IsRetryable reports whether the whole request may be retried. Business-rule
// violations never are.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrDatabase)
}

// AsError returns err as *Error, wrapping plain errors as ErrUnknown.
func AsError(err error) *Error {
	var de *Error
	if errors.As(err, &de) {
		return de
	}
	kind := KindOf(err)
	e := NewError(kind, kind.Error(), nil)
	if kind == ErrUnknown {
		e.Err = err
	}
	return e
}
