// Copyright 2026 The Rocket Authors
// SPDX-License-Identifier: Apache-2.0

package eventlog

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/rocketbot/rocket/discord"
	"github.com/rocketbot/rocket/lib/ref"
)

type recordingExecutor struct {
	mu       sync.Mutex
	messages []discord.WebhookMessage
	err      error
}

func (r *recordingExecutor) ExecuteWebhook(ctx context.Context, id ref.Snowflake, token string, message discord.WebhookMessage) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return r.err
	}
	r.messages = append(r.messages, message)
	return nil
}

func TestWebhookSinkSendsOneMessage(t *testing.T) {
	executor := &recordingExecutor{}
	sink, err := NewWebhookSink(executor, 123, "hook-token")
	if err != nil {
		t.Fatalf("NewWebhookSink: %v", err)
	}

	batch := []Record{info(1), info(2), {Severity: SeverityError, Title: "boom"}}
	if err := sink.Send(context.Background(), batch, Sender{Name: "Rocket", IconURL: "https://cdn.example/r.png"}); err != nil {
		t.Fatalf("Send: %v", err)
	}
	if len(executor.messages) != 1 {
		t.Fatalf("sent %d messages, want 1", len(executor.messages))
	}
	message := executor.messages[0]
	if message.Username != "Rocket" || message.AvatarURL != "https://cdn.example/r.png" {
		t.Errorf("sender = %q %q", message.Username, message.AvatarURL)
	}
	if message.AllowedMentions == nil || len(message.AllowedMentions.Parse) != 0 {
		t.Errorf("allowed mentions = %+v, want none", message.AllowedMentions)
	}
	if len(message.Embeds) != 3 || message.Embeds[2].Title != "boom" {
		t.Errorf("embeds = %+v", message.Embeds)
	}
}

func TestWebhookSinkSplitsOverBudget(t *testing.T) {
	executor := &recordingExecutor{}
	sink, err := NewWebhookSink(executor, 123, "hook-token")
	if err != nil {
		t.Fatalf("NewWebhookSink: %v", err)
	}
	var batch []Record
	for range 4 {
		batch = append(batch, Record{Severity: SeverityInfo, Body: strings.Repeat("b", 2500)})
	}
	if err := sink.Send(context.Background(), batch, Sender{}); err != nil {
		t.Fatalf("Send: %v", err)
	}
	if len(executor.messages) != 2 {
		t.Fatalf("sent %d messages, want 2", len(executor.messages))
	}
	for i, message := range executor.messages {
		total := 0
		for _, embed := range message.Embeds {
			total += embed.Length()
		}
		if total > discord.MaxEmbedTotalChars || len(message.Embeds) != 2 {
			t.Errorf("message %d: %d embeds, %d characters", i, len(message.Embeds), total)
		}
	}
}

func TestWebhookSinkPropagatesFailure(t *testing.T) {
	errDown := errors.New("down")
	sink, err := NewWebhookSink(&recordingExecutor{err: errDown}, 123, "hook-token")
	if err != nil {
		t.Fatalf("NewWebhookSink: %v", err)
	}
	if err := sink.Send(context.Background(), []Record{info(1)}, Sender{}); !errors.Is(err, errDown) {
		t.Errorf("Send error = %v, want %v", err, errDown)
	}
}

func TestWebhookSinkRejectsOversizedBatch(t *testing.T) {
	executor := &recordingExecutor{}
	sink, err := NewWebhookSink(executor, 123, "hook-token")
	if err != nil {
		t.Fatalf("NewWebhookSink: %v", err)
	}
	batch := make([]Record, 11)
	if err := sink.Send(context.Background(), batch, Sender{}); err == nil {
		t.Error("Send accepted 11 records")
	}
	if len(executor.messages) != 0 {
		t.Error("oversized batch reached the webhook")
	}
}

func TestNewWebhookSinkValidates(t *testing.T) {
	if _, err := NewWebhookSink(&recordingExecutor{}, 0, "token"); err == nil {
		t.Error("accepted a zero webhook id")
	}
	if _, err := NewWebhookSink(&recordingExecutor{}, 1, ""); err == nil {
		t.Error("accepted an empty token")
	}
}

// TestBufferThroughWebhook runs a flush against a real client and a
// fake platform server.
func TestBufferThroughWebhook(t *testing.T) {
	var (
		mu     sync.Mutex
		counts []int
	)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/webhooks/123/hook-token" || r.URL.Query().Get("wait") != "true" {
			t.Errorf("request %s %s", r.Method, r.URL)
		}
		var message discord.WebhookMessage
		if err := json.NewDecoder(r.Body).Decode(&message); err != nil {
			t.Errorf("decoding body: %v", err)
		}
		mu.Lock()
		counts = append(counts, len(message.Embeds))
		mu.Unlock()
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"id":"1","channel_id":"2"}`))
	}))
	defer server.Close()

	client, err := discord.NewClient(discord.ClientConfig{BaseURL: server.URL, HTTPClient: server.Client()})
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	sink, err := NewWebhookSink(client, 123, "hook-token")
	if err != nil {
		t.Fatalf("NewWebhookSink: %v", err)
	}
	buffer := newTestBuffer(t, sink, nil)
	ctx := context.Background()
	for n := range 12 {
		if err := buffer.Append(ctx, info(n)); err != nil {
			t.Fatalf("Append: %v", err)
		}
	}
	if err := buffer.Flush(ctx); err != nil {
		t.Fatalf("Flush: %v", err)
	}

	mu.Lock()
	defer mu.Unlock()
	if !equalInts(counts, []int{10, 2}) {
		t.Errorf("webhook calls carried %v embeds, want [10 2]", counts)
	}
}
