package httpcontext

import (
	"testing"
	"time"

	"github.com/valyala/fasthttp"

	appLogger "github.com/fastygo/hustle/pkg/logger"
)

func TestAttachPropagatesRequestID(t *testing.T) {
	var rc fasthttp.RequestCtx
	rc.Request.Header.Set("X-Request-ID", "req-1")

	ctx, cancel := NewAdapter(time.Second).Attach(&rc)
	defer cancel()

	if got := appLogger.RequestID(ctx); got != "req-1" {
		t.Fatalf("request id = %q", got)
	}
	if got := string(rc.Response.Header.Peek("X-Request-ID")); got != "req-1" {
		t.Fatalf("response header = %q", got)
	}
	if _, ok := ctx.Deadline(); !ok {
		t.Fatalf("expected a deadline")
	}
}

func TestAttachStreamHasNoDeadline(t *testing.T) {
	var rc fasthttp.RequestCtx
	ctx, cancel := NewAdapter(time.Second).AttachStream(&rc)

	if _, ok := ctx.Deadline(); ok {
		t.Fatalf("stream context must not carry a deadline")
	}
	if appLogger.RequestID(ctx) == "" {
		t.Fatalf("expected a generated request id")
	}
	cancel()
	<-ctx.Done()
}

func TestAttachCarriesAuthenticatedUser(t *testing.T) {
	var rc fasthttp.RequestCtx
	rc.Request.Header.Set(HeaderUserID, "u1")

	ctx, cancel := NewAdapter(time.Second).Attach(&rc)
	defer cancel()

	if got := appLogger.UserID(ctx); got != "u1" {
		t.Fatalf("user id = %q", got)
	}
}
