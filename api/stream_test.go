package api

import (
	"bufio"
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/bytedance/sonic"

	"taskflow/domain"
)

// readEvent returns the next data payload, skipping comments.
func readEvent(t *testing.T, r *bufio.Reader) snapshot {
	t.Helper()
	for {
		line, err := r.ReadString('\n')
		if err != nil {
			t.Fatalf("read stream: %v", err)
		}
		payload, ok := strings.CutPrefix(strings.TrimRight(line, "\n"), "data: ")
		if !ok {
			continue
		}
		var snap snapshot
		if err := sonic.ConfigStd.UnmarshalFromString(payload, &snap); err != nil {
			t.Fatalf("decode snapshot: %v", err)
		}
		return snap
	}
}

func TestStreamSendsSnapshots(t *testing.T) {
	ts := newTestServer(t, answer(""))
	httpSrv := httptest.NewServer(ts.e)
	defer httpSrv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, httpSrv.URL+"/api/stream?token="+ts.token, nil)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK || !strings.HasPrefix(resp.Header.Get("Content-Type"), "text/event-stream") {
		t.Fatalf("unexpected response: %d %s", resp.StatusCode, resp.Header.Get("Content-Type"))
	}

	r := bufio.NewReader(resp.Body)
	if line, _ := r.ReadString('\n'); line != ":ok\n" {
		t.Fatalf("expected :ok comment first, got %q", line)
	}
	first := readEvent(t, r)
	if len(first.Tasks) != 5 || first.UnreadCount != 0 {
		t.Fatalf("unexpected initial snapshot: %d tasks, %d unread", len(first.Tasks), first.UnreadCount)
	}

	if _, err := ts.workspace().Tasks.AddTask(context.Background(), domain.NewTask{Title: "Streamed"}); err != nil {
		t.Fatalf("add task: %v", err)
	}
	// the change may arrive as one or two events; wait for the full picture
	for {
		snap := readEvent(t, r)
		if len(snap.Tasks) == 6 && snap.UnreadCount == 1 {
			if snap.Tasks[0].Title != "Streamed" {
				t.Fatalf("unexpected first task: %#v", snap.Tasks[0])
			}
			break
		}
	}
}

func TestStreamRequiresAuth(t *testing.T) {
	ts := newTestServer(t, answer(""))
	rec := httptest.NewRecorder()
	ts.e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/stream?token=bad", nil))
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
}
