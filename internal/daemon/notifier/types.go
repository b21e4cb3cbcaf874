// Package notifier fans bin status transitions out to attached observer
// channels.
package notifier

import (
	"errors"
	"time"
)

const (
	DefaultQueueSize   = 64
	DefaultSendTimeout = 2 * time.Second
)

// ErrRegistryClosed is returned by Attach after Close.
var ErrRegistryClosed = errors.New("notifier: registry closed")

// Options configures a Registry.
type Options struct {
	// QueueSize bounds each observer's pending event queue.
	QueueSize int
	// SendTimeout is the per-write deadline transports apply when draining
	// a subscription onto the wire.
	SendTimeout time.Duration
}

func (o Options) withDefaults() Options {
	if o.QueueSize <= 0 {
		o.QueueSize = DefaultQueueSize
	}
	if o.SendTimeout <= 0 {
		o.SendTimeout = DefaultSendTimeout
	}
	return o
}

// Detach reasons.
const (
	ReasonClosed     = "closed"
	ReasonSlow       = "slow"
	ReasonWriteError = "write_error"
	ReasonShutdown   = "shutdown"
)

// Recorder receives delivery metrics. All methods must be cheap and safe for
// concurrent use.
type Recorder interface {
	EventPublished(subscribers int)
	EventDropped(name string)
	ObserverAttached(active int)
	ObserverDetached(reason string, active int)
}
