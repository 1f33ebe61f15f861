// Copyright 2026 The Rocket Authors
// SPDX-License-Identifier: Apache-2.0

package xkcd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func comicJSON(num int, title string) string {
	return fmt.Sprintf(`{"num": %d, "title": %q, "safe_title": %q, "img": "https://imgs.xkcd.com/comics/%d.png",
		"alt": "alt text %d", "day": "3", "month": "2", "year": "2026", "transcript": ""}`, num, title, title, num, num)
}

func newTestClient(t *testing.T, handler http.Handler) *Client {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	client, err := NewClient(Config{BaseURL: server.URL, HTTPClient: server.Client(), RequestTimeout: time.Second})
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	return client
}

func TestLatest(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/info.0.json" {
			t.Errorf("path = %q", r.URL.Path)
		}
		if !strings.HasPrefix(r.Header.Get("User-Agent"), "rocket/") {
			t.Errorf("User-Agent = %q", r.Header.Get("User-Agent"))
		}
		fmt.Fprint(w, comicJSON(2900, "Latest & Greatest"))
	}))

	comic, err := client.Latest(context.Background())
	if err != nil {
		t.Fatalf("Latest: %v", err)
	}
	if comic.Num != 2900 || comic.DisplayTitle() != "Latest & Greatest" || comic.Alt != "alt text 2900" {
		t.Errorf("comic = %+v", comic)
	}
	if want := time.Date(2026, 2, 3, 0, 0, 0, 0, time.UTC); !comic.Date().Equal(want) {
		t.Errorf("Date = %v, want %v", comic.Date(), want)
	}
	if !strings.HasSuffix(comic.Permalink(), "/2900/") {
		t.Errorf("Permalink = %q", comic.Permalink())
	}
}

func TestComicByNumber(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/101/info.0.json" {
			t.Errorf("path = %q", r.URL.Path)
		}
		fmt.Fprint(w, comicJSON(101, "Laser Pointer"))
	}))
	comic, err := client.Comic(context.Background(), 101)
	if err != nil {
		t.Fatalf("Comic: %v", err)
	}
	if comic.Num != 101 || comic.Img != "https://imgs.xkcd.com/comics/101.png" {
		t.Errorf("comic = %+v", comic)
	}
}

func TestComicErrors(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
		want   error
	}{
		{"not found", http.StatusNotFound, "", ErrNotFound},
		{"server error", http.StatusBadGateway, "upstream down", ErrSourceStatus},
		{"not json", http.StatusOK, "<html>", ErrMalformed},
		{"truncated", http.StatusOK, `{"num": 7`, ErrMalformed},
		{"wrong type", http.StatusOK, `{"num": "seven"}`, ErrMalformed},
		{"missing image", http.StatusOK, `{"num": 7, "day": "1", "month": "1", "year": "2007"}`, ErrMalformed},
		{"bad date", http.StatusOK, `{"num": 7, "img": "x.png", "day": "31", "month": "2", "year": "2007"}`, ErrMalformed},
		{"other comic", http.StatusOK, comicJSON(8, "Other"), ErrMalformed},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(test.status)
				fmt.Fprint(w, test.body)
			}))
			_, err := client.Comic(context.Background(), 7)
			if !errors.Is(err, test.want) {
				t.Errorf("error = %v, want %v", err, test.want)
			}
		})
	}
}

func TestComicRejectsNonPositive(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("request sent for comic 0")
	}))
	if _, err := client.Comic(context.Background(), 0); !errors.Is(err, ErrNotFound) {
		t.Errorf("error = %v, want ErrNotFound", err)
	}
}

func TestRequestTimeout(t *testing.T) {
	release := make(chan struct{})
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer close(release)
	client.timeout = 50 * time.Millisecond

	_, err := client.Latest(context.Background())
	if err == nil || !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("error = %v, want a deadline error", err)
	}
}

func TestNewClientValidates(t *testing.T) {
	if _, err := NewClient(Config{BaseURL: "not a url"}); err == nil {
		t.Error("NewClient accepted a base URL without scheme or host")
	}
	client, err := NewClient(Config{})
	if err != nil || client.baseURL != DefaultBaseURL {
		t.Errorf("default client = %v, %v", client, err)
	}
}
