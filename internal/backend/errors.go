package backend

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/BusaSaiTeja/campus-lost-and-found/internal/gateway"
)

// ErrUnauthorized matches a request the backend still rejected after the
// session refresh, meaning the user has to log in again.
var ErrUnauthorized = errors.New("unauthorized")

// StatusError is a non-2xx backend response.
type StatusError struct {
	Method     string
	Path       string
	StatusCode int
	Message    string
}

func (e *StatusError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("%s %s: %d %s", e.Method, e.Path, e.StatusCode, e.Message)
	}
	return fmt.Sprintf("%s %s: %d %s", e.Method, e.Path, e.StatusCode, http.StatusText(e.StatusCode))
}

// Is lets errors.Is(err, ErrUnauthorized) match a 401.
func (e *StatusError) Is(target error) bool {
	return target == ErrUnauthorized && e.StatusCode == http.StatusUnauthorized
}

// NeedsLogin reports whether err means the session is gone for good.
func NeedsLogin(err error) bool {
	return errors.Is(err, ErrUnauthorized) || gateway.IsRefreshError(err)
}

func statusError(req *gateway.Request, resp *gateway.Response) error {
	var body struct {
		Error   string `json:"error"`
		Message string `json:"message"`
	}
	_ = json.Unmarshal(resp.Body, &body)
	msg := body.Error
	if msg == "" {
		msg = body.Message
	}
	return &StatusError{Method: req.Method, Path: req.Path, StatusCode: resp.StatusCode, Message: msg}
}
