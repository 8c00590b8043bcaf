package notification

import (
	"time"

	"go.opentelemetry.io/otel/metric"
)

const (
	defaultDuration    = 5 * time.Second
	defaultHideDelay   = 400 * time.Millisecond
	defaultRemoveDelay = 5 * time.Second
)

type config struct {
	hideDelay     time.Duration
	meterProvider metric.MeterProvider
}

// Option configures a Center.
type Option func(*config)

// WithHideDelay sets the pause between hiding an element and unmounting it.
// Default: 400ms.
func WithHideDelay(d time.Duration) Option {
	return func(c *config) {
		c.hideDelay = d
	}
}

// WithMeterProvider records transaction metrics on mp instead of the global
// provider.
func WithMeterProvider(mp metric.MeterProvider) Option {
	return func(c *config) {
		c.meterProvider = mp
	}
}

type noticeConfig struct {
	duration time.Duration
	closable bool
	progress bool
	html     bool
}

// NoticeOption configures a single notice.
type NoticeOption func(*noticeConfig)

// WithDuration sets how long the notice stays visible. Zero or less keeps
// it until hidden. Default: 5 seconds.
func WithDuration(d time.Duration) NoticeOption {
	return func(c *noticeConfig) {
		c.duration = d
	}
}

// Persistent keeps the notice until it is hidden explicitly.
func Persistent() NoticeOption {
	return WithDuration(0)
}

// WithoutClose hides the close button.
func WithoutClose() NoticeOption {
	return func(c *noticeConfig) {
		c.closable = false
	}
}

// WithoutProgress hides the countdown bar.
func WithoutProgress() NoticeOption {
	return func(c *noticeConfig) {
		c.progress = false
	}
}

// AsHTML marks the message as trusted markup that must not be escaped.
func AsHTML() NoticeOption {
	return func(c *noticeConfig) {
		c.html = true
	}
}

type trackConfig struct {
	label       string
	onPending   func(hash string)
	onSuccess   func(receipt Receipt)
	onError     func(err error)
	autoRemove  bool
	removeDelay time.Duration
}

// TrackOption configures a tracked transaction.
type TrackOption func(*trackConfig)

// WithLabel sets the entry title. Default: "Transaction".
func WithLabel(label string) TrackOption {
	return func(c *trackConfig) {
		c.label = label
	}
}

// OnPending runs once before the receipt is awaited.
func OnPending(fn func(hash string)) TrackOption {
	return func(c *trackConfig) {
		c.onPending = fn
	}
}

// OnSuccess runs when the transaction executed.
func OnSuccess(fn func(receipt Receipt)) TrackOption {
	return func(c *trackConfig) {
		c.onSuccess = fn
	}
}

// OnError runs when the transaction reverted or could not be awaited.
// Reverts are reported as ErrTransactionFailed.
func OnError(fn func(err error)) TrackOption {
	return func(c *trackConfig) {
		c.onError = fn
	}
}

// WithAutoRemove controls whether the entry removes itself once settled.
// Default: true.
func WithAutoRemove(v bool) TrackOption {
	return func(c *trackConfig) {
		c.autoRemove = v
	}
}

// WithRemoveDelay sets how long a settled entry stays before removal.
// Default: 5 seconds.
func WithRemoveDelay(d time.Duration) TrackOption {
	return func(c *trackConfig) {
		c.removeDelay = d
	}
}
