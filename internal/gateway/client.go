// Package gateway talks to the remote chat service.
package gateway

import (
	"context"
	"errors"
	"fmt"

	"github.com/zhouzirui/idolchat/internal/model/chat"
)

var (
	ErrTransport = errors.New("chat gateway unreachable")
	ErrStatus    = errors.New("chat gateway returned non-success status")
	ErrMalformed = errors.New("chat gateway returned malformed response")
)

// Client is the logical request/response contract of the remote chat service.
type Client interface {
	Send(ctx context.Context, userID, text string) (chat.Reply, error)
	History(ctx context.Context, userID string) ([]chat.Turn, error)
}

// StatusError carries the HTTP status of a rejected call.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("chat gateway status %d: %s", e.Code, e.Body)
}

func (e *StatusError) Unwrap() error { return ErrStatus }

// Kind classifies err for logs and metrics. Callers must not branch on it.
func Kind(err error) string {
	switch {
	case err == nil:
		return "none"
	case errors.Is(err, ErrStatus):
		return "status"
	case errors.Is(err, ErrMalformed):
		return "malformed"
	case errors.Is(err, ErrTransport):
		return "transport"
	default:
		return "unknown"
	}
}
