package watching

import (
	"path/filepath"

	"github.com/watchfs-io/watchfs/pkg/watching/driver"
)

// classification couples a logical event kind with the concrete absolute
// path it applies to and the path's current filesystem state.
type classification struct {
	// kind is the logical event kind.
	kind Kind
	// path is the absolute path the event refers to.
	path string
	// entry is the path's state at classification time.
	entry entryKind
}

// classify maps a raw driver notification to a classification by probing the
// current filesystem state: an extant path is an update (creation and
// modification are not distinguished) and an absent path is a removal. When
// the notification carries no entry name, it refers to the watched directory
// itself. The raw operation is deliberately ignored; when a rename moves a
// path between directories, each side is classified independently by its own
// existence probe.
func classify(fs fileSystem, raw driver.Event) classification {
	path := raw.Dir
	if raw.Name != "" {
		path = filepath.Join(raw.Dir, raw.Name)
	}
	entry := fs.probe(path)
	kind := Update
	if entry == entryAbsent {
		kind = Remove
	}
	return classification{kind: kind, path: path, entry: entry}
}
