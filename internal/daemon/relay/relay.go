// Package relay forwards bin status transitions to message brokers. Each
// relay is an ordinary notifier observer: a relay that falls behind is
// detached like any other and re-attaches after a backoff.
package relay

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/grovetools/wastenet/internal/daemon/notifier"
	"github.com/grovetools/wastenet/pkg/models"
)

// Publisher delivers one encoded event to a broker.
type Publisher interface {
	Name() string
	Publish(ctx context.Context, topic string, payload []byte) error
	Close() error
}

// Source is the observer registry a relay attaches to.
type Source interface {
	Attach(name string) (*notifier.Subscription, error)
	Detach(id string)
}

// Options configures a Relay.
type Options struct {
	// Topic builds the broker topic for a bin id.
	Topic func(binID string) string
	// Timeout bounds each publish call.
	Timeout time.Duration
	// RetryDelay is the pause before re-attaching after a detach.
	RetryDelay time.Duration
}

// Relay drains a notifier subscription into a Publisher.
type Relay struct {
	source Source
	pub    Publisher
	opts   Options
	logger *logrus.Entry
}

// New creates a relay.
func New(source Source, pub Publisher, opts Options, logger *logrus.Entry) *Relay {
	if opts.Timeout <= 0 {
		opts.Timeout = 5 * time.Second
	}
	if opts.RetryDelay <= 0 {
		opts.RetryDelay = time.Second
	}
	if opts.Topic == nil {
		opts.Topic = func(binID string) string { return binID }
	}
	if logger == nil {
		logger = logrus.NewEntry(logrus.StandardLogger())
	}
	return &Relay{source: source, pub: pub, opts: opts, logger: logger.WithField("relay", pub.Name())}
}

// Name identifies the relay as an engine worker.
func (r *Relay) Name() string { return "relay:" + r.pub.Name() }

// Run forwards events until ctx is cancelled, then closes the publisher.
func (r *Relay) Run(ctx context.Context) error {
	defer func() {
		if err := r.pub.Close(); err != nil {
			r.logger.WithError(err).Debug("Relay close failed")
		}
	}()

	for {
		sub, err := r.source.Attach(r.Name())
		if errors.Is(err, notifier.ErrRegistryClosed) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("attach relay %s: %w", r.pub.Name(), err)
		}
		r.drain(ctx, sub)
		r.source.Detach(sub.ID)
		if sub.Reason() == notifier.ReasonShutdown {
			return nil
		}

		select {
		case <-ctx.Done():
			return nil
		case <-time.After(r.opts.RetryDelay):
		}
		r.logger.Info("Re-attaching relay")
	}
}

func (r *Relay) drain(ctx context.Context, sub *notifier.Subscription) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-sub.Events():
			if !ok {
				r.logger.WithField("reason", sub.Reason()).Warn("Relay subscription closed")
				return
			}
			r.forward(ctx, ev)
		}
	}
}

func (r *Relay) forward(ctx context.Context, ev models.StatusChanged) {
	payload, err := json.Marshal(ev)
	if err != nil {
		r.logger.WithError(err).Error("Failed to encode event")
		return
	}
	pubCtx, cancel := context.WithTimeout(ctx, r.opts.Timeout)
	defer cancel()

	topic := r.opts.Topic(ev.Bin.ID)
	if err := r.pub.Publish(pubCtx, topic, payload); err != nil {
		r.logger.WithError(err).WithFields(logrus.Fields{
			"binId": ev.Bin.ID,
			"topic": topic,
		}).Warn("Relay publish failed")
		return
	}
	r.logger.WithFields(logrus.Fields{
		"binId":   ev.Bin.ID,
		"status":  ev.Bin.Status,
		"version": ev.Bin.Version,
	}).Debug("Relayed status change")
}
