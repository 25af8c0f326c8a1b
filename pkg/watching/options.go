package watching

import (
	"time"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/watchfs-io/watchfs/pkg/watching/driver"
)

const (
	// DefaultDelay is the debounce window applied when Options.Delay is left
	// at its zero value and Immediate is false.
	DefaultDelay = 200 * time.Millisecond
)

// Options configures a watcher. The zero value is valid and selects
// non-recursive watching with the default debounce window and UTF-8 path
// rendering.
type Options struct {
	// Recursive indicates whether or not subdirectories of directory targets
	// should be watched.
	Recursive bool
	// Delay is the debounce window. Each classified event for a path opens
	// (or extends) a window of this duration during which further same-kind
	// events for the path are coalesced. A zero value selects DefaultDelay
	// unless Immediate is set; a negative value is rejected.
	Delay time.Duration
	// Immediate selects a zero-length debounce window: events observed
	// within the same dispatch turn for the same path and kind still
	// collapse to one, but emission isn't otherwise delayed.
	Immediate bool
	// Encoding governs the textual form of paths delivered to handlers. An
	// empty value selects EncodingUTF8.
	Encoding Encoding
	// Filter, if non-nil, is evaluated against each candidate path. See
	// Verdict for the protocol.
	Filter Filter
	// Driver, if non-nil, overrides the platform driver used for native
	// notifications. The default is the fsnotify-based driver.
	Driver driver.Factory
	// Logger, if non-nil, receives diagnostic logging.
	Logger *zap.Logger
}

// normalize validates the options and applies defaults, returning an
// independent copy. It accepts a nil receiver.
func (o *Options) normalize() (Options, error) {
	var result Options
	if o != nil {
		result = *o
	}
	if result.Delay < 0 {
		return Options{}, errors.Wrapf(ErrNegativeDelay, "%v", result.Delay)
	}
	if result.Immediate {
		result.Delay = 0
	} else if result.Delay == 0 {
		result.Delay = DefaultDelay
	}
	if result.Encoding == "" {
		result.Encoding = EncodingUTF8
	} else if !result.Encoding.valid() {
		return Options{}, errors.Wrapf(ErrUnknownEncoding, "%q", string(result.Encoding))
	}
	if result.Driver == nil {
		result.Driver = driver.NewFSNotify
	}
	if result.Logger == nil {
		result.Logger = zap.NewNop()
	}
	return result, nil
}
