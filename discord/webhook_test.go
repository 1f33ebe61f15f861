// Copyright 2026 The Rocket Authors
// SPDX-License-Identifier: Apache-2.0

package discord

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"testing"
)

func TestExecuteWebhook(t *testing.T) {
	var received WebhookMessage
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/webhooks/123/hook-token" {
			t.Errorf("path = %q", r.URL.Path)
		}
		if r.URL.Query().Get("wait") != "true" {
			t.Errorf("wait = %q, want true", r.URL.Query().Get("wait"))
		}
		if auth := r.Header.Get("Authorization"); auth != "" {
			t.Errorf("webhook execution sent Authorization %q", auth)
		}
		if err := json.NewDecoder(r.Body).Decode(&received); err != nil {
			t.Errorf("decoding body: %v", err)
		}
		writeJSON(t, w, http.StatusOK, map[string]any{"id": "1", "channel_id": "2"})
	}), testClientOptions{})

	err := client.ExecuteWebhook(context.Background(), 123, "hook-token", WebhookMessage{
		Username:  "Rocket",
		AvatarURL: "https://cdn.example/avatar.png",
		Embeds:    []Embed{{Title: "one"}, {Title: "two"}},
	})
	if err != nil {
		t.Fatalf("ExecuteWebhook: %v", err)
	}
	if received.Username != "Rocket" || received.AvatarURL != "https://cdn.example/avatar.png" {
		t.Errorf("sender = %q %q", received.Username, received.AvatarURL)
	}
	if len(received.Embeds) != 2 || received.Embeds[1].Title != "two" {
		t.Errorf("embeds = %+v", received.Embeds)
	}
}

func TestExecuteWebhookErrorOmitsToken(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(t, w, http.StatusNotFound, map[string]any{"code": ErrCodeUnknownWebhook, "message": "Unknown Webhook"})
	}), testClientOptions{})

	err := client.ExecuteWebhook(context.Background(), 123, "very-secret", WebhookMessage{Content: "x"})
	if !IsAPIError(err, ErrCodeUnknownWebhook) {
		t.Fatalf("error = %v", err)
	}
	if strings.Contains(err.Error(), "very-secret") {
		t.Errorf("error leaks the webhook token: %v", err)
	}
}

func TestExecuteWebhookRejectsTooManyEmbeds(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("oversized batch reached the server")
	}), testClientOptions{})

	embeds := make([]Embed, MaxEmbedsPerMessage+1)
	for index := range embeds {
		embeds[index].Title = "record"
	}
	if err := client.ExecuteWebhook(context.Background(), 1, "t", WebhookMessage{Embeds: embeds}); err == nil {
		t.Error("ExecuteWebhook accepted 11 embeds")
	}
}

func TestGetWebhookReturnsToken(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet || r.URL.Path != "/webhooks/123" {
			t.Errorf("request = %s %s", r.Method, r.URL.Path)
		}
		if r.Header.Get("Authorization") != "Bot test-bot-token" {
			t.Errorf("Authorization = %q", r.Header.Get("Authorization"))
		}
		writeJSON(t, w, http.StatusOK, map[string]any{"id": "123", "type": 1, "token": "fetched", "channel_id": "55"})
	}), testClientOptions{})

	webhook, err := client.GetWebhook(context.Background(), 123)
	if err != nil {
		t.Fatalf("GetWebhook: %v", err)
	}
	if webhook.Token != "fetched" || webhook.ChannelID != 55 {
		t.Errorf("webhook = %+v", webhook)
	}
}
