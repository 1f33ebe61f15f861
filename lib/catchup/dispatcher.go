// Copyright 2026 The Rocket Authors
// SPDX-License-Identifier: Apache-2.0

package catchup

import (
	"context"
	"encoding/binary"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/zeebo/blake3"
	"golang.org/x/sync/errgroup"

	"github.com/rocketbot/rocket/discord"
	"github.com/rocketbot/rocket/lib/metrics"
	"github.com/rocketbot/rocket/lib/ref"
	"github.com/rocketbot/rocket/lib/xkcd"
)

// Defaults applied by NewDispatcher.
const (
	DefaultConcurrency     = 4
	DefaultDeliveryTimeout = 10 * time.Second
	DefaultColor           = 0xe0e0f0
)

// Source is the external content source. *xkcd.Client implements it.
type Source interface {
	Latest(ctx context.Context) (*xkcd.Comic, error)
	Comic(ctx context.Context, n int64) (*xkcd.Comic, error)
}

// Audience lists who to notify. *subscription.Cache implements it.
type Audience interface {
	OptedIn(ctx context.Context) ([]ref.Snowflake, error)
}

// Messenger delivers a direct message to a user by id.
// *discord.DirectMessenger implements it.
type Messenger interface {
	Send(ctx context.Context, recipient ref.Snowflake, message discord.MessageCreate) (*discord.Message, error)
}

// DispatcherConfig configures a Dispatcher.
type DispatcherConfig struct {
	Source    Source
	Audience  Audience
	Messenger Messenger

	// Concurrency bounds parallel deliveries for one item.
	Concurrency int

	// DeliveryTimeout bounds each direct message, including opening
	// the channel.
	DeliveryTimeout time.Duration

	// Color of the notification embed.
	Color int

	Metrics *metrics.Metrics
	Logger  *slog.Logger
}

// Dispatcher sends catch-up notifications.
type Dispatcher struct {
	source          Source
	audience        Audience
	messenger       Messenger
	concurrency     int
	deliveryTimeout time.Duration
	color           int
	metrics         *metrics.Metrics
	logger          *slog.Logger
}

// NewDispatcher validates config and returns a Dispatcher.
func NewDispatcher(config DispatcherConfig) (*Dispatcher, error) {
	if config.Source == nil || config.Audience == nil || config.Messenger == nil {
		return nil, fmt.Errorf("catchup: dispatcher needs Source, Audience, and Messenger")
	}
	concurrency := config.Concurrency
	if concurrency <= 0 {
		concurrency = DefaultConcurrency
	}
	timeout := config.DeliveryTimeout
	if timeout <= 0 {
		timeout = DefaultDeliveryTimeout
	}
	color := config.Color
	if color == 0 {
		color = DefaultColor
	}
	logger := config.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Dispatcher{
		source:          config.Source,
		audience:        config.Audience,
		messenger:       config.Messenger,
		concurrency:     concurrency,
		deliveryTimeout: timeout,
		color:           color,
		metrics:         config.Metrics,
		logger:          logger,
	}, nil
}

// Report summarizes one Notify call.
type Report struct {
	// Items is how many items in the range were processed.
	Items int
	// ItemsFailed counts items skipped because the source has no
	// usable copy of them.
	ItemsFailed int
	// Sent and Skipped count per-subscriber deliveries.
	Sent    int
	Skipped int
	// Through is the last item fully handled. Notify sets it to the
	// end of the range on success.
	Through int64
}

// Notify delivers items after+1 through through, in order, to every
// opted-in subscriber. Refused or failed deliveries are logged and
// skipped, and so are items the source reports as missing or
// malformed. An error means the range was not finished: the audience
// could not be read, an item could not be fetched for another reason,
// or ctx ended before an item reached every subscriber. Report.Through
// then names the last item that was fully handled, and the next call
// starts again after it.
func (d *Dispatcher) Notify(ctx context.Context, after, through int64) (Report, error) {
	report := Report{Through: after}
	if through <= after {
		return report, nil
	}

	subscribers, err := d.audience.OptedIn(ctx)
	if err != nil {
		return report, fmt.Errorf("catchup: listing subscribers: %w", err)
	}
	logger := d.logger.With("after", after, "through", through)
	logger.Info("notifying subscribers of new items", "subscribers", len(subscribers))

	for n := after + 1; n <= through; n++ {
		if err := ctx.Err(); err != nil {
			return report, fmt.Errorf("catchup: notify interrupted before item %d: %w", n, err)
		}
		sent, skipped, err := d.notifyItem(ctx, n, subscribers)
		report.Sent += sent
		report.Skipped += skipped
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return report, fmt.Errorf("catchup: notify interrupted during item %d: %w", n, ctxErr)
			}
			if !unusable(err) {
				return report, fmt.Errorf("catchup: fetching item %d: %w", n, err)
			}
			report.ItemsFailed++
			logger.Warn("skipping catch-up item", "sequence", n, "error", err)
		}
		d.metrics.ItemProcessed(ctx, err)
		report.Items++
		report.Through = n
	}
	return report, nil
}

// unusable reports whether err says the item itself cannot be
// delivered: the source has no such item or serves it malformed.
// Anything else, such as a 5xx status or a network error, is retried
// on the next poll.
func unusable(err error) bool {
	return errors.Is(err, xkcd.ErrNotFound) || errors.Is(err, xkcd.ErrMalformed)
}

// errInterrupted marks a delivery abandoned because ctx ended.
var errInterrupted = errors.New("delivery interrupted")

// notifyItem fetches item n and fans it out. It returns the fetch
// error, or errInterrupted when ctx ended before every subscriber was
// handled.
func (d *Dispatcher) notifyItem(ctx context.Context, n int64, subscribers []ref.Snowflake) (sent, skipped int, err error) {
	if len(subscribers) == 0 {
		return 0, 0, nil
	}
	comic, err := d.source.Comic(ctx, n)
	if err != nil {
		return 0, 0, err
	}
	embed := d.embed(comic)

	var sentCount, skippedCount atomic.Int64
	var group errgroup.Group
	group.SetLimit(d.concurrency)
	for _, subscriber := range subscribers {
		group.Go(func() error {
			if ctx.Err() != nil {
				return errInterrupted
			}
			switch d.deliver(ctx, subscriber, n, embed) {
			case deliverySent:
				sentCount.Add(1)
			case deliverySkipped:
				skippedCount.Add(1)
			case deliveryInterrupted:
				return errInterrupted
			}
			return nil
		})
	}
	err = group.Wait()
	return int(sentCount.Load()), int(skippedCount.Load()), err
}

type deliveryOutcome int

const (
	deliverySent deliveryOutcome = iota
	deliverySkipped
	deliveryInterrupted
)

// deliver sends one notification. A failure caused by ctx ending,
// rather than by the per-delivery timeout, is deliveryInterrupted.
func (d *Dispatcher) deliver(ctx context.Context, subscriber ref.Snowflake, n int64, embed discord.Embed) deliveryOutcome {
	sendCtx, cancel := context.WithTimeout(ctx, d.deliveryTimeout)
	defer cancel()

	_, err := d.messenger.Send(sendCtx, subscriber, discord.MessageCreate{
		Embeds:          []discord.Embed{embed},
		Nonce:           Nonce(subscriber, n),
		EnforceNonce:    true,
		AllowedMentions: discord.NoMentions(),
	})
	switch {
	case err == nil:
		d.metrics.Delivered(ctx, metrics.DeliverySent)
		return deliverySent
	case ctx.Err() != nil:
		d.metrics.Delivered(ctx, metrics.DeliveryFailed)
		d.logger.Debug("catch-up delivery interrupted",
			"subscriber", subscriber, "sequence", n, "error", err)
		return deliveryInterrupted
	case discord.IsDeliveryRefused(err):
		d.metrics.Delivered(ctx, metrics.DeliveryRefused)
		d.logger.Debug("subscriber does not accept direct messages",
			"subscriber", subscriber, "sequence", n, "error", err)
	case errors.Is(err, context.DeadlineExceeded):
		d.metrics.Delivered(ctx, metrics.DeliveryFailed)
		d.logger.Warn("catch-up delivery timed out",
			"subscriber", subscriber, "sequence", n, "timeout", d.deliveryTimeout)
	default:
		d.metrics.Delivered(ctx, metrics.DeliveryFailed)
		d.logger.Warn("catch-up delivery failed",
			"subscriber", subscriber, "sequence", n, "error", err)
	}
	return deliverySkipped
}

func (d *Dispatcher) embed(comic *xkcd.Comic) discord.Embed {
	embed := discord.Embed{
		Title: discord.Truncate(comic.DisplayTitle(), discord.MaxEmbedTitle),
		URL:   comic.Permalink(),
		Color: d.color,
		Image: &discord.EmbedMedia{URL: comic.Img},
	}
	if comic.Alt != "" {
		embed.Footer = &discord.EmbedFooter{Text: discord.Truncate(comic.Alt, discord.MaxEmbedFooterText)}
	}
	if date := comic.Date(); !date.IsZero() {
		embed.Timestamp = &date
	}
	return embed
}

// nonceLength fits the platform's 25-character nonce limit.
const nonceLength = 24

// Nonce identifies the notification of item n to subscriber. The
// platform drops a repeated nonce within its dedup window, so a
// delivery retried after an ambiguous failure is not shown twice.
func Nonce(subscriber ref.Snowflake, n int64) string {
	var input [16]byte
	binary.BigEndian.PutUint64(input[:8], uint64(subscriber))
	binary.BigEndian.PutUint64(input[8:], uint64(n))
	sum := blake3.Sum256(input[:])
	return hex.EncodeToString(sum[:nonceLength/2])
}
