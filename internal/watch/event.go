package watch

import (
	"fmt"

	"github.com/fsnotify/fsnotify"
)

// RawOp is a low-level filesystem operation as reported by a notifier.
type RawOp int

// Raw operations. OpNoticeWrite and OpNoticeRemove are early notices some
// notifiers send before the debounced event; fsnotify never produces them.
const (
	OpCreate RawOp = iota + 1
	OpWrite
	OpRemove
	OpRename
	OpChmod
	OpNoticeWrite
	OpNoticeRemove
	OpError
)

var rawOpNames = map[RawOp]string{
	OpCreate:       "create",
	OpWrite:        "write",
	OpRemove:       "remove",
	OpRename:       "rename",
	OpChmod:        "chmod",
	OpNoticeWrite:  "notice-write",
	OpNoticeRemove: "notice-remove",
	OpError:        "error",
}

func (op RawOp) String() string {
	if name, ok := rawOpNames[op]; ok {
		return name
	}

	return fmt.Sprintf("op(%d)", int(op))
}

// RawEvent is a single (possibly debounced) filesystem event.
type RawEvent struct {
	// Path is the affected path. For renames it is the new name.
	Path string
	// From is the old name of a rename, empty otherwise.
	From string
	Op   RawOp
}

// Kind is the normalized classification of a change.
type Kind int

// Normalized change kinds.
const (
	Ignored Kind = iota
	Created
	Modified
	Removed
	Renamed
)

func (k Kind) String() string {
	switch k {
	case Created:
		return "created"
	case Modified:
		return "modified"
	case Removed:
		return "removed"
	case Renamed:
		return "renamed"
	default:
		return "ignored"
	}
}

// ChangeEvent is what the dispatch loop acts on.
type ChangeEvent struct {
	Path string
	Kind Kind
}

// Normalize maps a raw event to a change. Creates, writes, removes and
// renames keep their kind, with the write and remove notices counting as
// Modified and Removed. Chmod, errors and unknown ops become Ignored. A
// rename is reported under its destination path.
func Normalize(ev RawEvent) ChangeEvent {
	var kind Kind

	switch ev.Op {
	case OpCreate:
		kind = Created
	case OpWrite, OpNoticeWrite:
		kind = Modified
	case OpRemove, OpNoticeRemove:
		kind = Removed
	case OpRename:
		kind = Renamed
	default:
		return ChangeEvent{Path: ev.Path, Kind: Ignored}
	}

	return ChangeEvent{Path: ev.Path, Kind: kind}
}

// fromFsnotify converts an fsnotify event. fsnotify may combine several ops
// in one event; the most significant one wins.
func fromFsnotify(event fsnotify.Event) RawEvent {
	ev := RawEvent{Path: event.Name}

	switch {
	case event.Has(fsnotify.Remove):
		ev.Op = OpRemove
	case event.Has(fsnotify.Rename):
		ev.Op = OpRename
	case event.Has(fsnotify.Create):
		ev.Op = OpCreate
	case event.Has(fsnotify.Write):
		ev.Op = OpWrite
	case event.Has(fsnotify.Chmod):
		ev.Op = OpChmod
	default:
		ev.Op = OpError
	}

	return ev
}
