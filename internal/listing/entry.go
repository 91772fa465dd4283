// Package listing decodes the streamed output of the remote listing command
// into directory entries.
package listing

// Kind distinguishes directories from every other file-system object.
type Kind int

const (
	KindDirectory Kind = iota
	KindFile
)

func (k Kind) String() string {
	switch k {
	case KindDirectory:
		return "dir"
	default:
		return "file"
	}
}

// Entry is one decoded file-system object. Entries are never modified after
// the decoder produces them.
type Entry struct {
	Name   string
	Kind   Kind
	Hidden bool
}

// IsDir reports whether the entry is a directory.
func (e Entry) IsDir() bool {
	return e.Kind == KindDirectory
}

const (
	typeDirectory = 'd'
	typeFile      = 'f'
)

// isMarker reports whether record names the directory itself or its parent.
// The type character is ignored so "f." never yields an entry called ".".
func isMarker(record string) bool {
	if len(record) < 2 {
		return false
	}
	name := record[1:]
	return name == "." || name == ".."
}

// ParseRecord decodes a single `<type><name>` record. It reports false for
// records that must not become entries: the self and parent markers, records
// too short to carry a name, and unknown type characters.
func ParseRecord(record string) (Entry, bool) {
	if len(record) < 2 || isMarker(record) {
		return Entry{}, false
	}

	var kind Kind
	switch record[0] {
	case typeDirectory:
		kind = KindDirectory
	case typeFile:
		kind = KindFile
	default:
		return Entry{}, false
	}

	name := record[1:]
	return Entry{
		Name:   name,
		Kind:   kind,
		Hidden: name[0] == '.',
	}, true
}
