package router

import (
	"context"
	"fmt"
	"runtime/debug"
	"time"

	logx "remindbot/pkg/logx"
)

type HandlerFunc func(ctx context.Context, req *Request) error

type Middleware func(next HandlerFunc) HandlerFunc

// slowRequest is where request logging moves from DEBUG to INFO.
const slowRequest = time.Second

// Chain wraps h so that m[0] runs first.
func Chain(h HandlerFunc, m ...Middleware) HandlerFunc {
	for i := len(m) - 1; i >= 0; i-- {
		h = m[i](h)
	}
	return h
}

// MWPanicRecover turns a handler panic into an error and tells the user
// something went wrong instead of leaving the chat silent.
func MWPanicRecover() Middleware {
	return func(next HandlerFunc) HandlerFunc {
		return func(ctx context.Context, req *Request) (err error) {
			defer func() {
				r := recover()
				if r == nil {
					return
				}
				req.Logger.Error("handler panic", logx.Any("panic", r), logx.String("stack", string(debug.Stack())))
				err = fmt.Errorf("handler %s panicked: %v", req.Command, r)
				_ = req.Reply(context.WithoutCancel(ctx), "internal error, the request was logged")
			}()
			return next(ctx, req)
		}
	}
}

// MWOwnerOnly rejects non-owners for owner-only commands before the handler
// sees the request.
func MWOwnerOnly(access Access) Middleware {
	return func(next HandlerFunc) HandlerFunc {
		if access != AccessOwnerOnly {
			return next
		}
		return func(ctx context.Context, req *Request) error {
			if !req.IsOwner {
				req.Logger.Debug("owner-only command refused")
				return req.Reply(ctx, "unauthorized")
			}
			return next(ctx, req)
		}
	}
}

// MWTimeout bounds the handler; d <= 0 leaves ctx as is.
func MWTimeout(d time.Duration) Middleware {
	return func(next HandlerFunc) HandlerFunc {
		if d <= 0 {
			return next
		}
		return func(ctx context.Context, req *Request) error {
			ctx, cancel := context.WithTimeout(ctx, d)
			defer cancel()
			return next(ctx, req)
		}
	}
}

// MWRequestLog logs one line per command with its outcome. The request
// logger already carries rid, chat and sender.
func MWRequestLog() Middleware {
	return func(next HandlerFunc) HandlerFunc {
		return func(ctx context.Context, req *Request) error {
			start := time.Now()
			err := next(ctx, req)
			took := time.Since(start)
			fields := []logx.Field{logx.Int("args", len(req.Args)), logx.Duration("took", took)}
			switch {
			case err != nil:
				req.Logger.Warn("command failed", append(fields, logx.Err(err))...)
			case took >= slowRequest:
				req.Logger.Info("command slow", fields...)
			default:
				req.Logger.Debug("command ok", fields...)
			}
			return err
		}
	}
}
