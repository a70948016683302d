package handler

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/valyala/fasthttp"
	"go.uber.org/zap"

	"github.com/fastygo/hustle/domain"
	"github.com/fastygo/hustle/pkg/httpcontext"
	hustleUC "github.com/fastygo/hustle/usecase/hustle"
	profileUC "github.com/fastygo/hustle/usecase/profile"
)

const defaultKeepAlive = 15 * time.Second

// StreamHandler serves live feeds as server-sent events.
type StreamHandler struct {
	baseHandler
	hustles   *hustleUC.UseCase
	profiles  *profileUC.UseCase
	keepAlive time.Duration

	done      chan struct{}
	closeOnce sync.Once
}

func NewStreamHandler(hustles *hustleUC.UseCase, profiles *profileUC.UseCase, adapter *httpcontext.Adapter, logger *zap.Logger, keepAlive time.Duration) *StreamHandler {
	if keepAlive <= 0 {
		keepAlive = defaultKeepAlive
	}
	return &StreamHandler{
		baseHandler: newBaseHandler(adapter, logger),
		hustles:     hustles,
		profiles:    profiles,
		keepAlive:   keepAlive,
		done:        make(chan struct{}),
	}
}

// Close ends every open stream so the server can shut down.
func (h *StreamHandler) Close() {
	h.closeOnce.Do(func() { close(h.done) })
}

// @Summary Live task feed of the caller's college
// @Tags feed
// @Produce text/event-stream
// @Router /api/v1/feed/tasks [get]
func (h *StreamHandler) Tasks(ctx *fasthttp.RequestCtx) {
	userID := h.userID(ctx)
	if userID == "" {
		return
	}

	lookupCtx, cancel := h.requestContext(ctx)
	user, err := h.profiles.GetProfile(lookupCtx, userID)
	cancel()
	if err != nil {
		h.respondError(ctx, err)
		return
	}
	if !user.ProfileComplete() {
		h.respondError(ctx, domain.ErrProfileIncomplete)
		return
	}

	college := user.College
	h.stream(ctx, "tasks", func(streamCtx context.Context, updates chan interface{}) (func(), error) {
		return h.hustles.Subscribe(streamCtx, college, func(tasks []domain.Task) {
			offerLatest(updates, interface{}(hustleUC.Views(tasks, userID, hustleUC.ListOptions{})))
		})
	})
}

// @Summary Live profile of the caller
// @Tags feed
// @Produce text/event-stream
// @Router /api/v1/feed/profile [get]
func (h *StreamHandler) Profile(ctx *fasthttp.RequestCtx) {
	userID := h.userID(ctx)
	if userID == "" {
		return
	}
	h.stream(ctx, "profile", func(streamCtx context.Context, updates chan interface{}) (func(), error) {
		return h.profiles.Subscribe(streamCtx, userID, func(user *domain.User) {
			offerLatest(updates, interface{}(user))
		})
	})
}

type subscribeFunc func(ctx context.Context, updates chan interface{}) (func(), error)

func (h *StreamHandler) stream(ctx *fasthttp.RequestCtx, event string, subscribe subscribeFunc) {
	var (
		streamCtx context.Context
		stop      context.CancelFunc
	)
	if h.adapter != nil {
		streamCtx, stop = h.adapter.AttachStream(ctx)
	} else {
		streamCtx, stop = context.WithCancel(context.Background())
	}

	ctx.Response.Header.SetContentType("text/event-stream")
	ctx.Response.Header.Set("Cache-Control", "no-cache")
	ctx.Response.Header.Set("Connection", "keep-alive")
	ctx.Response.Header.Set("X-Accel-Buffering", "no")
	ctx.SetStatusCode(fasthttp.StatusOK)

	logger := h.logger.With(zap.String("stream", event))
	ctx.SetBodyStreamWriter(func(w *bufio.Writer) {
		defer stop()

		updates := make(chan interface{}, 1)
		unsubscribe, err := subscribe(streamCtx, updates)
		if err != nil {
			logger.Warn("stream subscription failed", zap.Error(err))
			_, code := mapError(err)
			_ = writeEvent(w, "error", map[string]string{"code": code, "error": err.Error()})
			return
		}
		defer unsubscribe()

		ticker := time.NewTicker(h.keepAlive)
		defer ticker.Stop()

		for {
			select {
			case <-h.done:
				return
			case <-streamCtx.Done():
				return
			case value := <-updates:
				if err := writeEvent(w, event, value); err != nil {
					logger.Debug("stream closed", zap.Error(err))
					return
				}
			case <-ticker.C:
				if _, err := w.WriteString(": keep-alive\n\n"); err != nil {
					return
				}
				if err := w.Flush(); err != nil {
					logger.Debug("stream closed", zap.Error(err))
					return
				}
			}
		}
	})
}

func writeEvent(w *bufio.Writer, event string, value interface{}) error {
	data, err := json.Marshal(value)
	if err != nil {
		return err
	}
	if _, err := fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event, data); err != nil {
		return err
	}
	return w.Flush()
}

// offerLatest replaces whatever is pending in the one-slot channel with v.
func offerLatest(ch chan interface{}, v interface{}) {
	for {
		select {
		case ch <- v:
			return
		default:
			select {
			case <-ch:
			default:
			}
		}
	}
}
