package watching

import (
	"github.com/pkg/errors"
)

var (
	// ErrNoTargets indicates that a watch was requested without any targets.
	ErrNoTargets = errors.New("no watch targets specified")
	// ErrUnknownEncoding indicates an unrecognized path encoding name.
	ErrUnknownEncoding = errors.New("unknown path encoding")
	// ErrNegativeDelay indicates a negative debounce delay.
	ErrNegativeDelay = errors.New("negative debounce delay")
)
