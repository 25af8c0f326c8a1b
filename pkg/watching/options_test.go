package watching

import (
	"testing"
	"time"

	"github.com/pkg/errors"
)

// TestOptionsDefaults verifies defaulting behavior for nil and zero-valued
// options.
func TestOptionsDefaults(t *testing.T) {
	var options *Options
	normalized, err := options.normalize()
	if err != nil {
		t.Fatal("unable to normalize nil options:", err)
	}
	if normalized.Delay != DefaultDelay {
		t.Error("unexpected default delay:", normalized.Delay)
	}
	if normalized.Encoding != EncodingUTF8 {
		t.Error("unexpected default encoding:", normalized.Encoding)
	}
	if normalized.Driver == nil {
		t.Error("default driver factory not applied")
	}
	if normalized.Logger == nil {
		t.Error("default logger not applied")
	}
}

// TestOptionsImmediate verifies that Immediate forces a zero-length window.
func TestOptionsImmediate(t *testing.T) {
	normalized, err := (&Options{Immediate: true, Delay: time.Second}).normalize()
	if err != nil {
		t.Fatal("unable to normalize options:", err)
	}
	if normalized.Delay != 0 {
		t.Error("immediate didn't zero the delay:", normalized.Delay)
	}
}

// TestOptionsNegativeDelay verifies rejection of negative delays.
func TestOptionsNegativeDelay(t *testing.T) {
	if _, err := (&Options{Delay: -time.Second}).normalize(); !errors.Is(err, ErrNegativeDelay) {
		t.Error("negative delay not rejected:", err)
	}
}

// TestOptionsUnknownEncoding verifies rejection of unrecognized encodings.
func TestOptionsUnknownEncoding(t *testing.T) {
	if _, err := (&Options{Encoding: "latin1"}).normalize(); !errors.Is(err, ErrUnknownEncoding) {
		t.Error("unknown encoding not rejected:", err)
	}
}
