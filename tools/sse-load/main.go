package main

import (
	"bufio"
	"context"
	"net/http"
	"os"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/bytedance/sonic"
	log "github.com/sirupsen/logrus"
)

// sse-load holds many /api/stream connections open and counts the
// snapshots they receive.
func main() {
	streamURL := getenv("STREAM_URL", "http://localhost:8080/api/stream")
	conns := getenvInt("SSE_CONNECTIONS", 200)
	duration := time.Duration(getenvInt("DURATION_SEC", 120)) * time.Second
	bearer := os.Getenv("TEST_BEARER")

	ctx, cancel := context.WithTimeout(context.Background(), duration)
	defer cancel()

	var st loadStats
	var wg sync.WaitGroup
	wg.Add(conns)
	for i := 0; i < conns; i++ {
		go func() {
			defer wg.Done()
			st.run(ctx, http.DefaultClient, streamURL, bearer)
		}()
	}

	go func() {
		select {
		case <-time.After(60 * time.Second):
			if st.events.Load() == 0 {
				log.Fatal("no events received in 60s")
			}
		case <-ctx.Done():
		}
	}()

	wg.Wait()
	failureRate := st.failureRate()
	log.WithFields(log.Fields{
		"connections":         conns,
		"duration_sec":        int(duration.Seconds()),
		"events_received":     st.events.Load(),
		"invalid_events":      st.invalid.Load(),
		"connection_failures": st.failures.Load(),
	}).Info("sse load finished")
	if st.events.Load() == 0 || st.invalid.Load() > 0 || failureRate > 0.01 {
		os.Exit(1)
	}
}

type loadStats struct {
	events   atomic.Uint64
	invalid  atomic.Uint64
	attempts atomic.Uint64
	failures atomic.Uint64
}

func (s *loadStats) failureRate() float64 {
	attempts := s.attempts.Load()
	if attempts == 0 {
		return 0
	}
	return float64(s.failures.Load()) / float64(attempts)
}

type snapshot struct {
	Tasks       []map[string]any `json:"tasks"`
	UnreadCount int              `json:"unreadCount"`
}

// run keeps one stream open until ctx ends, reconnecting with backoff.
func (s *loadStats) run(ctx context.Context, client *http.Client, url, bearer string) {
	backoff := time.Second
	fail := func() {
		s.failures.Add(1)
		time.Sleep(backoff)
		backoff = min(backoff*2, 5*time.Second)
	}
	for ctx.Err() == nil {
		s.attempts.Add(1)
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			fail()
			continue
		}
		if bearer != "" {
			req.Header.Set("Authorization", "Bearer "+bearer)
		}
		resp, err := client.Do(req)
		if err != nil || resp.StatusCode != http.StatusOK {
			if resp != nil {
				resp.Body.Close()
			}
			if ctx.Err() != nil {
				return
			}
			fail()
			continue
		}
		backoff = time.Second
		s.consume(ctx, bufio.NewScanner(resp.Body))
		resp.Body.Close()
		if ctx.Err() != nil {
			return
		}
		fail()
	}
}

func (s *loadStats) consume(ctx context.Context, scanner *bufio.Scanner) {
	scanner.Buffer(make([]byte, 64*1024), 4*1024*1024)
	for scanner.Scan() {
		payload, ok := strings.CutPrefix(scanner.Text(), "data: ")
		if ok {
			var snap snapshot
			if err := sonic.ConfigStd.UnmarshalFromString(payload, &snap); err != nil {
				s.invalid.Add(1)
			} else {
				s.events.Add(1)
			}
		}
		if ctx.Err() != nil {
			return
		}
	}
}

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getenvInt(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return i
}
