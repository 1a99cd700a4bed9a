package main

import (
	"bufio"
	"context"
	"strings"
	"testing"
)

func TestConsumeCountsSnapshots(t *testing.T) {
	stream := ":ok\n\n" +
		`data: {"tasks":[{"id":"task-1"}],"notifications":[],"unreadCount":0}` + "\n\n" +
		":keepalive\n\n" +
		"data: {broken\n\n"

	var st loadStats
	st.consume(context.Background(), bufio.NewScanner(strings.NewReader(stream)))
	if st.events.Load() != 1 || st.invalid.Load() != 1 {
		t.Fatalf("events=%d invalid=%d", st.events.Load(), st.invalid.Load())
	}
}

func TestFailureRate(t *testing.T) {
	var st loadStats
	if st.failureRate() != 0 {
		t.Fatalf("expected 0 without attempts")
	}
	st.attempts.Add(4)
	st.failures.Add(1)
	if got := st.failureRate(); got != 0.25 {
		t.Fatalf("unexpected failure rate %v", got)
	}
}
