package router

import (
	"context"
	"fmt"
	"runtime/debug"
	"time"

	"rosterbot/pkg/logx"
)

type HandlerFunc func(ctx context.Context, req *Request) error

type Middleware func(next HandlerFunc) HandlerFunc

func Chain(h HandlerFunc, m ...Middleware) HandlerFunc {
	for i := len(m) - 1; i >= 0; i-- {
		h = m[i](h)
	}
	return h
}

func MWTimeout(d time.Duration) Middleware {
	return func(next HandlerFunc) HandlerFunc {
		return func(ctx context.Context, req *Request) error {
			if d <= 0 {
				return next(ctx, req)
			}
			cctx, cancel := context.WithTimeout(ctx, d)
			defer cancel()
			return next(cctx, req)
		}
	}
}

func MWPanicRecover(log logx.Logger) Middleware {
	return func(next HandlerFunc) HandlerFunc {
		return func(ctx context.Context, req *Request) (err error) {
			defer func() {
				if r := recover(); r != nil {
					log.Error("panic recovered",
						logx.String("cmd", req.Command),
						logx.Any("panic", r),
						logx.String("stack", string(debug.Stack())),
					)
					err = fmt.Errorf("panic: %v", r)
				}
			}()
			return next(ctx, req)
		}
	}
}

func MWRequestLog(log logx.Logger) Middleware {
	return func(next HandlerFunc) HandlerFunc {
		return func(ctx context.Context, req *Request) error {
			start := time.Now()
			err := next(ctx, req)
			d := time.Since(start)

			fields := []logx.Field{
				logx.String("kind", string(req.Update.Kind)),
				logx.Int64("chat_id", req.Chat.ChatID),
				logx.Int64("from_id", req.FromID),
				logx.String("cmd", req.Command),
				logx.Duration("dur", d),
			}
			if err != nil {
				log.Warn("request failed", append(fields, logx.Err(err))...)
			} else if d >= 750*time.Millisecond {
				log.Info("request ok", fields...)
			} else {
				log.Debug("request ok", fields...)
			}
			return err
		}
	}
}
