package monitor

import (
	"context"
	"errors"
	"testing"
)

func TestRefreshAggregatesChecks(t *testing.T) {
	healthy := Check{Name: "db", Ping: func(context.Context) error { return nil }}
	broken := Check{Name: "cache", Ping: func(context.Context) error { return errors.New("down") }}

	m := New([]Check{healthy, broken}, nil, 0, nil)
	status := m.Refresh(context.Background())
	if status.Online || m.IsOnline() {
		t.Fatalf("expected offline with a failing check")
	}
	if !status.Components["db"].OK || status.Components["cache"].OK {
		t.Fatalf("unexpected components %v", status.Components)
	}
	if status.Components["cache"].Error != "down" {
		t.Fatalf("probe error not kept: %+v", status.Components["cache"])
	}
	if got := status.Degraded(); len(got) != 1 || got[0] != "cache" {
		t.Fatalf("degraded = %v", got)
	}

	m = New([]Check{healthy}, nil, 0, nil)
	if !m.Refresh(context.Background()).Online {
		t.Fatalf("expected online")
	}
}

func TestNoChecksIsOnline(t *testing.T) {
	m := New(nil, nil, 0, nil)
	if !m.Refresh(context.Background()).Online {
		t.Fatalf("in-process deployments have nothing to wait for")
	}
	m.Stop()
	m.Stop()
}
