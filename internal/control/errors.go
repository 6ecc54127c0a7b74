package control

import (
	"errors"
	"net/http"

	"github.com/signalsfoundry/blocking-sandbox/internal/sim/session"
	"github.com/signalsfoundry/blocking-sandbox/model"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// Code is a short machine-readable failure code.
type Code string

const (
	CodeSessionNotFound            Code = "session_not_found"
	CodeUpdateRejectedWhileRunning Code = "update_rejected_while_running"
	CodeAlreadyRunning             Code = "already_running"
	CodeInvalidArgument            Code = "invalid_argument"
	CodeUnknownMessage             Code = "unknown_message"
	CodeInternal                   Code = "internal"
)

// Failure is the structured result of a rejected control message.
type Failure struct {
	Code    Code
	Message string
}

func (f *Failure) Error() string { return string(f.Code) + ": " + f.Message }

// ToMap renders {code, message}.
func (f *Failure) ToMap() map[string]any {
	return map[string]any{"code": string(f.Code), "message": f.Message}
}

func invalid(err error) *Failure {
	return &Failure{Code: CodeInvalidArgument, Message: err.Error()}
}

// FailureFromError classifies a manager error. A running-session error
// reads as already_running for start and as an update rejection otherwise.
func FailureFromError(t MessageType, err error) *Failure {
	if err == nil {
		return nil
	}
	var f *Failure
	if errors.As(err, &f) {
		return f
	}
	switch {
	case errors.Is(err, session.ErrSessionNotFound):
		return &Failure{Code: CodeSessionNotFound, Message: err.Error()}
	case errors.Is(err, session.ErrSessionRunning):
		if t == TypeStart {
			return &Failure{Code: CodeAlreadyRunning, Message: err.Error()}
		}
		return &Failure{Code: CodeUpdateRejectedWhileRunning, Message: err.Error()}
	case isInvalidArgument(err):
		return invalid(err)
	default:
		return &Failure{Code: CodeInternal, Message: err.Error()}
	}
}

func isInvalidArgument(err error) bool {
	return errors.Is(err, session.ErrInvalidConfig) ||
		errors.Is(err, session.ErrInvalidPlayer) ||
		errors.Is(err, session.ErrInvalidRole) ||
		errors.Is(err, session.ErrRoleMismatch) ||
		errors.Is(err, model.ErrUnknownTag) ||
		errors.Is(err, model.ErrInvalidField)
}

// ToStatusError maps manager errors and failures onto gRPC status codes.
func ToStatusError(err error) error {
	if err == nil {
		return nil
	}
	if _, ok := status.FromError(err); ok {
		return err
	}

	var f *Failure
	if errors.As(err, &f) {
		return status.Error(f.grpcCode(), f.Message)
	}

	switch {
	case errors.Is(err, session.ErrSessionNotFound):
		return status.Error(codes.NotFound, err.Error())
	case errors.Is(err, session.ErrSessionRunning):
		return status.Error(codes.FailedPrecondition, err.Error())
	case isInvalidArgument(err):
		return status.Error(codes.InvalidArgument, err.Error())
	default:
		return status.Error(codes.Internal, err.Error())
	}
}

func (f *Failure) grpcCode() codes.Code {
	switch f.Code {
	case CodeSessionNotFound:
		return codes.NotFound
	case CodeUpdateRejectedWhileRunning, CodeAlreadyRunning:
		return codes.FailedPrecondition
	case CodeInvalidArgument, CodeUnknownMessage:
		return codes.InvalidArgument
	default:
		return codes.Internal
	}
}

// HTTPStatus maps manager errors and failures onto HTTP status codes.
func HTTPStatus(err error) int {
	if err == nil {
		return http.StatusOK
	}
	var f *Failure
	if !errors.As(err, &f) {
		f = FailureFromError("", err)
	}
	switch f.Code {
	case CodeSessionNotFound:
		return http.StatusNotFound
	case CodeUpdateRejectedWhileRunning, CodeAlreadyRunning:
		return http.StatusConflict
	case CodeInvalidArgument, CodeUnknownMessage:
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}
