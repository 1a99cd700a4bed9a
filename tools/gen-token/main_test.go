package main

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/bytedance/sonic"

	"taskflow/api"
)

func TestGeneratedTokensAreAccepted(t *testing.T) {
	tokens, err := generateTokens("s3cret", 3, "u", 5, time.Hour, nil, time.Now())
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	auth := api.NewAuth(api.AuthConfig{SharedSecret: []byte("s3cret")})
	for i, tok := range tokens {
		sub, err := auth.UserIDFromAuthHeader("Bearer " + tok)
		if err != nil {
			t.Fatalf("token %d rejected: %v", i, err)
		}
		if want := "u-" + strconv.Itoa(5+i); sub != want {
			t.Fatalf("unexpected subject %q, want %q", sub, want)
		}
	}
}

func TestGenerateTokensNeedsSecret(t *testing.T) {
	if _, err := generateTokens("", 1, "u", 1, time.Hour, nil, time.Now()); err == nil || !strings.Contains(err.Error(), "LOCAL_AUTH_SHARED_SECRET") {
		t.Fatalf("expected missing secret error, got %v", err)
	}
}

func TestWriteTokens(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "tokens.json")
	if err := writeTokens(path, []string{"a", "b"}); err != nil {
		t.Fatalf("write: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	var got []string
	if err := sonic.ConfigStd.Unmarshal(data, &got); err != nil || len(got) != 2 {
		t.Fatalf("unexpected file content %q: %v", data, err)
	}
}
