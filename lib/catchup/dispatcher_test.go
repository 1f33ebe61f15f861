// Copyright 2026 The Rocket Authors
// SPDX-License-Identifier: Apache-2.0

package catchup

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"testing"
	"time"

	"github.com/rocketbot/rocket/lib/ref"
	"github.com/rocketbot/rocket/lib/xkcd"
)

func newTestDispatcher(t *testing.T, source Source, audience Audience, messenger Messenger, mutate func(*DispatcherConfig)) *Dispatcher {
	t.Helper()
	config := DispatcherConfig{Source: source, Audience: audience, Messenger: messenger}
	if mutate != nil {
		mutate(&config)
	}
	dispatcher, err := NewDispatcher(config)
	if err != nil {
		t.Fatalf("NewDispatcher: %v", err)
	}
	return dispatcher
}

func TestNotifyDeliversEveryItemInOrder(t *testing.T) {
	source := &fakeSource{latest: 8}
	messenger := &fakeMessenger{}
	subscribers := []ref.Snowflake{11, 22, 33}
	dispatcher := newTestDispatcher(t, source, staticAudience{subscribers: subscribers}, messenger, nil)

	report, err := dispatcher.Notify(context.Background(), 5, 8)
	if err != nil {
		t.Fatalf("Notify: %v", err)
	}
	if got := source.fetchedItems(); !slices.Equal(got, []int64{6, 7, 8}) {
		t.Errorf("fetched %v, want [6 7 8]", got)
	}
	want := []string{"Comic 6", "Comic 7", "Comic 8"}
	for _, subscriber := range subscribers {
		if got := messenger.titlesFor(subscriber); !slices.Equal(got, want) {
			t.Errorf("subscriber %d got %v, want %v", subscriber, got, want)
		}
	}
	if report.Items != 3 || report.Sent != 9 || report.Skipped != 0 || report.Through != 8 {
		t.Errorf("report = %+v", report)
	}
}

func TestNotifySkipsBlockedSubscriber(t *testing.T) {
	source := &fakeSource{latest: 1}
	messenger := &fakeMessenger{blocked: map[ref.Snowflake]bool{22: true}}
	dispatcher := newTestDispatcher(t, source, staticAudience{subscribers: []ref.Snowflake{11, 22, 33}}, messenger, nil)

	report, err := dispatcher.Notify(context.Background(), 0, 1)
	if err != nil {
		t.Fatalf("Notify: %v", err)
	}
	if len(messenger.titlesFor(11)) != 1 || len(messenger.titlesFor(33)) != 1 {
		t.Errorf("deliveries to 11 and 33 = %v, %v", messenger.titlesFor(11), messenger.titlesFor(33))
	}
	if len(messenger.titlesFor(22)) != 0 {
		t.Error("blocked subscriber recorded a delivery")
	}
	if report.Sent != 2 || report.Skipped != 1 {
		t.Errorf("report = %+v, want 2 sent and 1 skipped", report)
	}
}

func TestNotifySkipsUnusableItem(t *testing.T) {
	for _, test := range []struct {
		name string
		err  error
	}{
		{"not found", xkcd.ErrNotFound},
		{"malformed", fmt.Errorf("%w: missing img", xkcd.ErrMalformed)},
	} {
		t.Run(test.name, func(t *testing.T) {
			source := &fakeSource{latest: 405, missing: map[int64]error{404: test.err}}
			messenger := &fakeMessenger{}
			dispatcher := newTestDispatcher(t, source, staticAudience{subscribers: []ref.Snowflake{1}}, messenger, nil)

			report, err := dispatcher.Notify(context.Background(), 402, 405)
			if err != nil {
				t.Fatalf("Notify: %v", err)
			}
			if got := messenger.titlesFor(1); !slices.Equal(got, []string{"Comic 403", "Comic 405"}) {
				t.Errorf("delivered %v", got)
			}
			if report.ItemsFailed != 1 || report.Through != 405 {
				t.Errorf("report = %+v", report)
			}
		})
	}
}

func TestNotifyStopsAtTransientFetchFailure(t *testing.T) {
	for _, test := range []struct {
		name string
		err  error
	}{
		{"server error", fmt.Errorf("%w: 503 Service Unavailable", xkcd.ErrSourceStatus)},
		{"network error", errors.New("dial tcp: connection refused")},
	} {
		t.Run(test.name, func(t *testing.T) {
			source := &fakeSource{latest: 8, missing: map[int64]error{7: test.err}}
			messenger := &fakeMessenger{}
			dispatcher := newTestDispatcher(t, source, staticAudience{subscribers: []ref.Snowflake{1}}, messenger, nil)

			report, err := dispatcher.Notify(context.Background(), 5, 8)
			if !errors.Is(err, test.err) {
				t.Fatalf("error = %v, want %v", err, test.err)
			}
			if report.Through != 6 || report.ItemsFailed != 0 {
				t.Errorf("report = %+v, want progress to stop at 6", report)
			}
			if got := source.fetchedItems(); !slices.Equal(got, []int64{6, 7}) {
				t.Errorf("fetched %v, want [6 7]", got)
			}
			if got := messenger.titlesFor(1); !slices.Equal(got, []string{"Comic 6"}) {
				t.Errorf("delivered %v, want only Comic 6", got)
			}
		})
	}
}

func TestNotifyWithoutSubscribersFetchesNothing(t *testing.T) {
	source := &fakeSource{latest: 10}
	dispatcher := newTestDispatcher(t, source, staticAudience{}, &fakeMessenger{}, nil)

	report, err := dispatcher.Notify(context.Background(), 7, 10)
	if err != nil {
		t.Fatalf("Notify: %v", err)
	}
	if len(source.fetchedItems()) != 0 || report.Through != 10 {
		t.Errorf("fetched %v, report %+v", source.fetchedItems(), report)
	}
}

func TestNotifyAudienceFailure(t *testing.T) {
	errStore := errors.New("database is locked")
	dispatcher := newTestDispatcher(t, &fakeSource{latest: 3}, staticAudience{err: errStore}, &fakeMessenger{}, nil)

	report, err := dispatcher.Notify(context.Background(), 1, 3)
	if !errors.Is(err, errStore) {
		t.Fatalf("error = %v, want %v", err, errStore)
	}
	if report.Through != 1 {
		t.Errorf("Through = %d, want no progress", report.Through)
	}
}

func TestNotifyEmptyRange(t *testing.T) {
	source := &fakeSource{}
	dispatcher := newTestDispatcher(t, source, staticAudience{subscribers: []ref.Snowflake{1}}, &fakeMessenger{}, nil)
	for _, bounds := range [][2]int64{{5, 5}, {6, 5}} {
		report, err := dispatcher.Notify(context.Background(), bounds[0], bounds[1])
		if err != nil || report.Items != 0 {
			t.Errorf("Notify(%d, %d) = %+v, %v", bounds[0], bounds[1], report, err)
		}
	}
}

func TestNotificationMessage(t *testing.T) {
	messenger := &fakeMessenger{}
	dispatcher := newTestDispatcher(t, &fakeSource{latest: 1}, staticAudience{subscribers: []ref.Snowflake{99}}, messenger, nil)
	if _, err := dispatcher.Notify(context.Background(), 0, 1); err != nil {
		t.Fatalf("Notify: %v", err)
	}

	message := messenger.deliveries[0].message
	embed := message.Embeds[0]
	if embed.Title != "Comic 1" || embed.Image == nil || embed.Image.URL != "https://imgs.example/1.png" {
		t.Errorf("embed = %+v", embed)
	}
	if embed.Footer == nil || embed.Footer.Text != "alt 1" {
		t.Errorf("footer = %+v", embed.Footer)
	}
	if embed.Color != DefaultColor {
		t.Errorf("color = %#x, want %#x", embed.Color, DefaultColor)
	}
	if message.Nonce != Nonce(99, 1) || !message.EnforceNonce {
		t.Errorf("nonce = %q enforce %v", message.Nonce, message.EnforceNonce)
	}
	if message.AllowedMentions == nil || len(message.AllowedMentions.Parse) != 0 {
		t.Errorf("allowed mentions = %+v", message.AllowedMentions)
	}
}

func TestDeliveryTimeoutSkipsSubscriber(t *testing.T) {
	messenger := &fakeMessenger{onSend: func(ctx context.Context, recipient ref.Snowflake) error {
		if recipient == 2 {
			<-ctx.Done()
			return ctx.Err()
		}
		return nil
	}}
	dispatcher := newTestDispatcher(t, &fakeSource{latest: 1}, staticAudience{subscribers: []ref.Snowflake{1, 2, 3}}, messenger,
		func(c *DispatcherConfig) { c.DeliveryTimeout = 20 * time.Millisecond })

	report, err := dispatcher.Notify(context.Background(), 0, 1)
	if err != nil {
		t.Fatalf("Notify: %v", err)
	}
	if report.Sent != 2 || report.Skipped != 1 {
		t.Errorf("report = %+v", report)
	}
}

func TestNotifyStopsBetweenItemsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	messenger := &fakeMessenger{onSend: func(context.Context, ref.Snowflake) error {
		cancel()
		return nil
	}}
	dispatcher := newTestDispatcher(t, &fakeSource{latest: 9}, staticAudience{subscribers: []ref.Snowflake{1}}, messenger, nil)

	report, err := dispatcher.Notify(ctx, 5, 9)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("error = %v, want context.Canceled", err)
	}
	if report.Through != 6 || messenger.count() != 1 {
		t.Errorf("Through = %d with %d deliveries, want item 6 finished", report.Through, messenger.count())
	}
}

func TestNotifyInterruptedDuringFanOutKeepsItem(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	messenger := &fakeMessenger{onSend: func(sendCtx context.Context, recipient ref.Snowflake) error {
		cancel()
		return sendCtx.Err()
	}}
	dispatcher := newTestDispatcher(t, &fakeSource{latest: 8}, staticAudience{subscribers: []ref.Snowflake{1, 2, 3}}, messenger,
		func(c *DispatcherConfig) { c.Concurrency = 1 })

	report, err := dispatcher.Notify(ctx, 5, 8)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("error = %v, want context.Canceled", err)
	}
	if report.Through != 5 || report.Items != 0 {
		t.Errorf("report = %+v, want item 6 left unfinished", report)
	}
	if messenger.count() != 0 {
		t.Errorf("%d deliveries recorded, want none", messenger.count())
	}
}

func TestNotifyInterruptedDuringFetchKeepsItem(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	source := &fakeSource{latest: 8, onComic: func(n int64) {
		if n == 7 {
			cancel()
		}
	}}
	messenger := &fakeMessenger{}
	dispatcher := newTestDispatcher(t, source, staticAudience{subscribers: []ref.Snowflake{1}}, messenger, nil)

	report, err := dispatcher.Notify(ctx, 5, 8)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("error = %v, want context.Canceled", err)
	}
	if report.Through != 6 || report.ItemsFailed != 0 {
		t.Errorf("report = %+v, want progress to stop at 6", report)
	}
	if got := messenger.titlesFor(1); !slices.Equal(got, []string{"Comic 6"}) {
		t.Errorf("delivered %v, want only Comic 6", got)
	}
}

func TestNonce(t *testing.T) {
	a := Nonce(1234567890123, 2900)
	if len(a) > 25 || len(a) == 0 {
		t.Fatalf("nonce %q has length %d", a, len(a))
	}
	if a != Nonce(1234567890123, 2900) {
		t.Error("nonce is not deterministic")
	}
	if a == Nonce(1234567890123, 2901) || a == Nonce(1234567890124, 2900) {
		t.Error("nonce collides across subscribers or items")
	}
}
