// Package notify delivers formatted messages to their destinations.
package notify

import (
	"context"
	"errors"

	"releasepush/internal/domain"
	logx "releasepush/pkg/logx"
)

// Sink posts one message. Implementations must be safe for concurrent use.
type Sink interface {
	Post(ctx context.Context, msg domain.Message) error
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(ctx context.Context, msg domain.Message) error

func (f SinkFunc) Post(ctx context.Context, msg domain.Message) error { return f(ctx, msg) }

// LogSink writes messages to the log instead of delivering them. Used for
// dry runs and when no delivery driver is configured.
type LogSink struct {
	Log logx.Logger
}

func (s LogSink) Post(_ context.Context, msg domain.Message) error {
	s.Log.Info("notification",
		logx.String("title", msg.Title),
		logx.String("body", msg.Body),
		logx.String("image", msg.ImageURL),
	)
	return nil
}

// Fanout posts to every sink and joins their errors.
type Fanout []Sink

func (f Fanout) Post(ctx context.Context, msg domain.Message) error {
	var errs []error
	for _, s := range f {
		if s == nil {
			continue
		}
		if err := s.Post(ctx, msg); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
