// Package errors provides the platform error taxonomy.
// Codes are plain strings so they survive JSON events and gRPC status messages unchanged.
package errors

import (
	stderrors "errors"
	"fmt"
	"strings"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// Code identifies a class of failure.
type Code string

const (
	Unknown     Code = "UNKNOWN"
	Internal    Code = "INTERNAL"
	Unavailable Code = "UNAVAILABLE"
	Timeout     Code = "TIMEOUT"
	Cancelled   Code = "CANCELLED"

	MonitorNotFound        Code = "MONITOR_NOT_FOUND"
	CaptureFailed          Code = "CAPTURE_FAILED"
	RecognitionFailed      Code = "RECOGNITION_FAILED"
	TranslationUnavailable Code = "TRANSLATION_UNAVAILABLE"
	TranslationParseError  Code = "TRANSLATION_PARSE_ERROR"
	ContentLengthUnknown   Code = "CONTENT_LENGTH_UNKNOWN"
	DownloadFailed         Code = "DOWNLOAD_FAILED"
	DownloadCancelled      Code = "DOWNLOAD_CANCELLED"
	PermissionDenied       Code = "PERMISSION_DENIED"
	ConfigInvalid          Code = "CONFIG_INVALID"
)

func (c Code) String() string { return string(c) }

// grpcCodeMap maps error codes to gRPC status codes.
var grpcCodeMap = map[Code]codes.Code{
	Unknown:                codes.Unknown,
	Internal:               codes.Internal,
	Unavailable:            codes.Unavailable,
	Timeout:                codes.DeadlineExceeded,
	Cancelled:              codes.Canceled,
	MonitorNotFound:        codes.NotFound,
	CaptureFailed:          codes.Internal,
	RecognitionFailed:      codes.Internal,
	TranslationUnavailable: codes.Unavailable,
	TranslationParseError:  codes.Internal,
	ContentLengthUnknown:   codes.FailedPrecondition,
	DownloadFailed:         codes.Internal,
	DownloadCancelled:      codes.Canceled,
	PermissionDenied:       codes.PermissionDenied,
	ConfigInvalid:          codes.InvalidArgument,
}

// AppError is the base error type with structured error code and metadata.
type AppError struct {
	Code     Code
	Message  string
	Metadata map[string]string
	Cause    error
}

// Error implements the error interface.
func (e *AppError) Error() string {
	s := fmt.Sprintf("[%s] %s", e.Code, e.Message)
	if len(e.Metadata) > 0 {
		s += fmt.Sprintf(" %v", e.Metadata)
	}
	if e.Cause != nil {
		s += fmt.Sprintf(" caused by: %v", e.Cause)
	}
	return s
}

// Unwrap returns the underlying cause for errors.Is/As.
func (e *AppError) Unwrap() error { return e.Cause }

// GRPCCode returns the corresponding gRPC status code.
func (e *AppError) GRPCCode() codes.Code {
	if c, ok := grpcCodeMap[e.Code]; ok {
		return c
	}
	return codes.Unknown
}

// GRPCStatus returns a gRPC status whose message carries the code prefix.
func (e *AppError) GRPCStatus() *status.Status {
	return status.New(e.GRPCCode(), fmt.Sprintf("[%s] %s", e.Code, e.Message))
}

// New creates a new AppError with the given code and message.
func New(code Code, msg string) *AppError {
	return &AppError{Code: code, Message: msg}
}

// Newf creates a new AppError with formatted message.
func Newf(code Code, format string, args ...any) *AppError {
	return &AppError{Code: code, Message: fmt.Sprintf(format, args...)}
}

// Wrap wraps an existing error with an AppError.
func Wrap(err error, code Code, msg string) *AppError {
	return &AppError{Code: code, Message: msg, Cause: err}
}

// Wrapf wraps an existing error with formatted message.
func Wrapf(err error, code Code, format string, args ...any) *AppError {
	return &AppError{Code: code, Message: fmt.Sprintf(format, args...), Cause: err}
}

// WithMetadata adds metadata to an AppError.
func (e *AppError) WithMetadata(key, value string) *AppError {
	if e.Metadata == nil {
		e.Metadata = make(map[string]string)
	}
	e.Metadata[key] = value
	return e
}

// FromGRPCError converts a gRPC error into an AppError.
// A "[CODE] message" prefix written by GRPCStatus on the far side wins over the status code.
func FromGRPCError(err error) *AppError {
	if err == nil {
		return nil
	}
	st, ok := status.FromError(err)
	if !ok {
		return &AppError{Code: Unknown, Message: err.Error(), Cause: err}
	}
	msg := st.Message()
	if strings.HasPrefix(msg, "[") {
		if end := strings.Index(msg, "] "); end > 1 {
			code := Code(msg[1:end])
			if _, known := grpcCodeMap[code]; known {
				return &AppError{Code: code, Message: msg[end+2:], Cause: err}
			}
		}
	}
	return &AppError{Code: grpcToCode(st.Code()), Message: msg, Cause: err}
}

// grpcToCode maps gRPC codes back to our error codes (best effort).
func grpcToCode(c codes.Code) Code {
	switch c {
	case codes.InvalidArgument:
		return ConfigInvalid
	case codes.NotFound:
		return MonitorNotFound
	case codes.Unavailable, codes.ResourceExhausted:
		return Unavailable
	case codes.DeadlineExceeded:
		return Timeout
	case codes.Canceled:
		return Cancelled
	case codes.PermissionDenied:
		return PermissionDenied
	case codes.Internal:
		return Internal
	default:
		return Unknown
	}
}

// CodeOf returns the code of the first AppError in err's chain, or Unknown.
func CodeOf(err error) Code {
	var appErr *AppError
	if stderrors.As(err, &appErr) {
		return appErr.Code
	}
	return Unknown
}

// IsCode checks if an error chain carries a specific error code.
func IsCode(err error, code Code) bool {
	var appErr *AppError
	if stderrors.As(err, &appErr) {
		return appErr.Code == code
	}
	return false
}

// IsRetryable returns true if the error is potentially retryable.
func IsRetryable(err error) bool {
	var appErr *AppError
	if !stderrors.As(err, &appErr) {
		return false
	}
	switch appErr.Code {
	case Unavailable, Timeout, TranslationUnavailable:
		return true
	default:
		return false
	}
}
