package metrics

import (
	"context"
	"fmt"
	"runtime"
	"testing"
	"time"

	"github.com/zoobzio/clockz"
	"github.com/zoobzio/metricz"
)

func newTestClient(clock clockz.Clock) *Client {
	return &Client{registry: metricz.New(), clock: clock}
}

func TestIncrAndCount(t *testing.T) {
	client := New()
	client.Incr("purchase.send_pay_notice.retry")
	client.Incr("purchase.send_pay_notice.retry")

	if got := client.Count("purchase.send_pay_notice.retry"); got != 2 {
		t.Fatalf("retry count = %v, want 2", got)
	}
	if got := client.Count("purchase.send_pay_notice.failure"); got != 0 {
		t.Fatalf("failure count = %v, want 0", got)
	}
}

func TestTimerRecordsElapsed(t *testing.T) {
	clock := clockz.NewFakeClock()
	client := newTestClient(clock)

	stop := client.Timer("purchase.send_pay_notice")
	clock.Advance(250 * time.Millisecond)
	stop()

	if got := client.Snapshot()["purchase.send_pay_notice.ms"]; got != 250 {
		t.Fatalf("duration ms = %v, want 250", got)
	}
	if got := client.Count("purchase.send_pay_notice.calls"); got != 1 {
		t.Fatalf("calls = %v, want 1", got)
	}
}

func TestNilClientIsNoop(t *testing.T) {
	var client *Client
	client.Incr("x")
	client.Timer("x")()
	if client.Count("x") != 0 {
		t.Fatal("expected nil client count to be zero")
	}
	if client.Snapshot() != nil {
		t.Fatal("expected nil client snapshot")
	}
	client.Report(context.Background(), time.Second, func(string, ...any) {
		t.Fatal("nil client should not report")
	})
}

func TestSnapshotAndFormat(t *testing.T) {
	client := New()
	client.Incr("purchase.send_pay_notice.retry")
	client.Incr("purchase.send_pay_notice.retry")
	client.Incr("purchase.send_pay_notice.failure")

	values := client.Snapshot()
	if values["purchase.send_pay_notice.retry"] != 2 || values["purchase.send_pay_notice.failure"] != 1 {
		t.Fatalf("snapshot = %v", values)
	}
	want := "purchase.send_pay_notice.failure=1 purchase.send_pay_notice.retry=2"
	if got := Format(values); got != want {
		t.Fatalf("format = %q, want %q", got, want)
	}
}

func TestReportLogsSnapshotEachInterval(t *testing.T) {
	clock := clockz.NewFakeClock()
	client := newTestClient(clock)
	client.Incr("purchase.send_pay_notice.failure")

	lines := make(chan string, 4)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		client.Report(ctx, time.Minute, func(format string, args ...any) {
			lines <- fmt.Sprintf(format, args...)
		})
	}()

	for !clock.HasWaiters() {
		runtime.Gosched()
	}
	clock.Advance(time.Minute)
	clock.BlockUntilReady()

	select {
	case line := <-lines:
		if line != "metrics: purchase.send_pay_notice.failure=1" {
			t.Fatalf("line = %q", line)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for metrics report")
	}

	client.Incr("purchase.send_pay_notice.failure")
	cancel()
	<-done
	if line := <-lines; line != "metrics: purchase.send_pay_notice.failure=2" {
		t.Fatalf("final line = %q", line)
	}
}
