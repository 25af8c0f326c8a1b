package watching

import (
	"path/filepath"
	"time"

	"github.com/golang/groupcache/lru"
)

const (
	// composerTokenLimit is the maximum number of suppression tokens that a
	// composer will retain. Tokens are evicted on an LRU basis beyond this
	// limit, which bounds memory usage on watchers observing very large or
	// very busy trees.
	composerTokenLimit = 16 * 1024

	// composerMinimumWindow is the floor applied to the composer's
	// suppression window so that duplicate detection remains effective for
	// watchers configured with a zero-length debounce window.
	composerMinimumWindow = 25 * time.Millisecond
)

// composerToken records an emission for cross-root duplicate suppression.
type composerToken struct {
	// root is the root that emitted the event.
	root *root
	// expires is the time at which the token lapses.
	expires time.Time
}

// composer multiplexes the debounced event streams of a watcher's roots into
// a single emission stream. When roots overlap (one root's target is an
// ancestor of another's), the same underlying change surfaces once per root;
// the composer admits the first emission for a path and drops the others for
// the duration of the suppression window. It also suppresses the
// parent-directory duplicate that some platforms report alongside a new
// entry: a directory update arriving within the window of an emission for
// one of its direct entries is dropped.
type composer struct {
	// window is the suppression token lifetime, derived from the maximum
	// root delay.
	window time.Duration
	// tokens maps paths to their suppression tokens.
	tokens *lru.Cache
	// children maps directories to the time of the most recent emission for
	// one of their direct entries.
	children *lru.Cache
	// now is the time source.
	now func() time.Time
}

// newComposer creates a composer with a suppression window derived from the
// specified maximum root delay.
func newComposer(maximumDelay time.Duration, now func() time.Time) *composer {
	window := maximumDelay
	if window < composerMinimumWindow {
		window = composerMinimumWindow
	}
	return &composer{
		window:   window,
		tokens:   lru.New(composerTokenLimit),
		children: lru.New(composerTokenLimit),
		now:      now,
	}
}

// admit reports whether an emission should proceed, recording it if so. The
// directory flag indicates whether the path is currently a directory.
func (c *composer) admit(r *root, path string, kind Kind, directory bool) bool {
	now := c.now()

	// Drop the event if another root already emitted for this path within
	// the live token window. Emissions from the same root are never
	// suppressed here since the root's own debouncer governs their spacing.
	if value, ok := c.tokens.Get(path); ok {
		if token := value.(composerToken); token.root != r && now.Before(token.expires) {
			return false
		}
	}

	// Drop a directory update that trails an emission for one of the
	// directory's direct entries within the window.
	if kind == Update && directory {
		if value, ok := c.children.Get(path); ok {
			if last := value.(time.Time); now.Sub(last) <= c.window {
				return false
			}
		}
	}

	// Record the emission.
	c.tokens.Add(path, composerToken{root: r, expires: now.Add(c.window)})
	c.children.Add(filepath.Dir(path), now)
	return true
}

// clear drops all suppression state.
func (c *composer) clear() {
	c.tokens.Clear()
	c.children.Clear()
}
