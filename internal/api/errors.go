package api

import (
	"context"
	"errors"
	"net/http"

	"google.golang.org/grpc/codes"
	grpcstatus "google.golang.org/grpc/status"

	"github.com/BusaSaiTeja/campus-lost-and-found/internal/backend"
	"github.com/BusaSaiTeja/campus-lost-and-found/internal/session"
	"github.com/BusaSaiTeja/campus-lost-and-found/internal/stream"
	"github.com/BusaSaiTeja/campus-lost-and-found/internal/transport"
)

// toStatus maps domain errors onto gRPC status codes.
func toStatus(op string, err error) error {
	if err == nil {
		return nil
	}
	code := codes.Internal
	switch {
	case backend.NeedsLogin(err):
		code = codes.Unauthenticated
	case errors.Is(err, session.ErrNoActiveChat), errors.Is(err, stream.ErrNotActive):
		code = codes.FailedPrecondition
	case errors.Is(err, stream.ErrEmptyMessage):
		code = codes.InvalidArgument
	case errors.Is(err, transport.ErrNotConnected), errors.Is(err, transport.ErrReconnectExhausted):
		code = codes.Unavailable
	case errors.Is(err, context.DeadlineExceeded):
		code = codes.DeadlineExceeded
	case errors.Is(err, context.Canceled):
		code = codes.Canceled
	}
	var se *backend.StatusError
	if errors.As(err, &se) && code == codes.Internal {
		switch {
		case se.StatusCode == http.StatusNotFound:
			code = codes.NotFound
		case se.StatusCode == http.StatusForbidden:
			code = codes.PermissionDenied
		case se.StatusCode < http.StatusInternalServerError:
			code = codes.InvalidArgument
		default:
			code = codes.Unavailable
		}
	}
	return grpcstatus.Errorf(code, "%s: %v", op, err)
}

// IsUnauthenticated reports whether err means the daemon needs a login.
func IsUnauthenticated(err error) bool {
	return grpcstatus.Code(err) == codes.Unauthenticated
}

// ErrorMessage returns the daemon's description of err without the gRPC
// code prefix.
func ErrorMessage(err error) string {
	if st, ok := grpcstatus.FromError(err); ok {
		return st.Message()
	}
	return err.Error()
}
