package rawsocket

import (
	"time"

	"golang.org/x/time/rate"
)

// Default configuration values.
const (
	// defaultBufferSize is the default capacity of the outbound frame queue.
	defaultBufferSize = 16
	// defaultReadBufferSize is the size of the buffer used for each socket read.
	defaultReadBufferSize = 4096
	// defaultWriteTimeout bounds a single socket write.
	defaultWriteTimeout = time.Second * 30
)

// options holds the configuration shared by every connection of a Factory.
type options struct {
	logger  Logger
	metrics Metrics
	debug   bool

	bufferSize     int           // capacity of the outbound frame queue
	readBufferSize int           // bytes requested per socket read
	maxFrameSize   int           // maximum payload size of a single frame
	idleTimeout    time.Duration // read deadline; zero disables it
	writeTimeout   time.Duration // write deadline per frame

	rateLimit rate.Limit // inbound messages per second; zero disables limiting
	rateBurst int
}

// Option is a function that configures factory options.
type Option func(*options)

// checkOptions sets default values for unset options.
func checkOptions(opts *options) {
	if opts.bufferSize <= 0 {
		opts.bufferSize = defaultBufferSize
	}

	if opts.readBufferSize <= 0 {
		opts.readBufferSize = defaultReadBufferSize
	}

	if opts.maxFrameSize <= 0 {
		opts.maxFrameSize = defaultMaxFrameSize
	}

	if opts.writeTimeout <= 0 {
		opts.writeTimeout = defaultWriteTimeout
	}

	if opts.rateLimit > 0 && opts.rateBurst <= 0 {
		opts.rateBurst = 1
	}

	if opts.logger == nil {
		opts.logger = defaultLogger()
	}

	if opts.metrics == nil {
		opts.metrics = nopMetrics{}
	}
}

// DebugOption enables trace logging of lifecycle events, raw frame octets and
// decoded messages. It never changes transport behavior.
func DebugOption(debug bool) Option {
	return func(o *options) {
		o.debug = debug
	}
}

// BufferSizeOption returns an Option that sets the capacity of the outbound frame queue.
// A larger buffer allows more frames to be queued before Send blocks.
func BufferSizeOption(size int) Option {
	return func(o *options) {
		o.bufferSize = size
	}
}

// ReadBufferSizeOption sets how many bytes each socket read requests.
func ReadBufferSizeOption(size int) Option {
	return func(o *options) {
		o.readBufferSize = size
	}
}

// MaxFrameSizeOption sets the maximum payload size of a single frame, in both directions.
// An inbound frame above the limit aborts the connection; an outbound one fails Send.
func MaxFrameSizeOption(size int) Option {
	return func(o *options) {
		o.maxFrameSize = size
	}
}

// IdleTimeoutOption sets how long a connection may go without receiving any
// byte before it is torn down. Zero, the default, keeps idle connections forever.
func IdleTimeoutOption(timeout time.Duration) Option {
	return func(o *options) {
		o.idleTimeout = timeout
	}
}

// WriteTimeoutOption sets the deadline for writing a single frame.
func WriteTimeoutOption(timeout time.Duration) Option {
	return func(o *options) {
		o.writeTimeout = timeout
	}
}

// RateLimitOption limits each connection to perSecond inbound messages with the
// given burst. A peer exceeding it is aborted.
func RateLimitOption(perSecond float64, burst int) Option {
	return func(o *options) {
		o.rateLimit = rate.Limit(perSecond)
		o.rateBurst = burst
	}
}

// LoggerOption returns an Option that sets the logger.
// If not set, the default slog logger will be used.
func LoggerOption(logger Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}
