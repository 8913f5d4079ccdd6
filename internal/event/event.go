package event

import (
	"time"
	"unicode/utf8"
)

// PathCap is the number of path bytes a Record can carry (MAX_PATH).
const PathCap = 260

// CommLen is the longest process name the kernel keeps in comm. Longer
// names are cut to this many bytes.
const CommLen = 15

// SameProcess reports whether a process reported as name is the process
// named want, allowing for a name cut to CommLen bytes.
func SameProcess(name, want string) bool {
	if name == want {
		return true
	}
	return len(name) == CommLen && len(want) > CommLen && want[:CommLen] == name
}

// Kind identifies what a Record observed.
type Kind uint8

const (
	ProcessStart Kind = iota + 1
	ProcessStop
	ImageLoad
	FileCreate
	FileWrite
	FileRead
	FileDelete
	FileRename
)

var kindNames = [...]string{
	ProcessStart: "ProcessStart",
	ProcessStop:  "ProcessStop",
	ImageLoad:    "ImageLoad",
	FileCreate:   "FileCreate",
	FileWrite:    "FileWrite",
	FileRead:     "FileRead",
	FileDelete:   "FileDelete",
	FileRename:   "FileRename",
}

func (k Kind) String() string {
	if int(k) < len(kindNames) && kindNames[k] != "" {
		return kindNames[k]
	}
	return "Unknown"
}

// IsProcess reports whether k describes a process lifecycle change.
func (k Kind) IsProcess() bool {
	return k == ProcessStart || k == ProcessStop || k == ImageLoad
}

// IsFile reports whether k describes file activity.
func (k Kind) IsFile() bool {
	return k >= FileCreate && k <= FileRename
}

// Opcodes refine a Kind.
const (
	// OpLive marks an occurrence observed as it happened.
	OpLive uint8 = iota
	// OpFound marks something already present when observation began,
	// such as a process running before the watcher started.
	OpFound
)

// Flag bits stored in Record.Flags.
const (
	// FlagTruncated marks a Path cut short to fit PathCap. The stored bytes
	// are a prefix of the real path and must not be treated as a full path.
	FlagTruncated uint8 = 1 << iota
)

// Record is a single decoded trace event. It holds no pointers so it can be
// copied through the event queue without allocating.
type Record struct {
	Timestamp int64 // unix nanoseconds
	PID       uint32
	PPID      uint32
	TID       uint32
	IOSize    uint32
	PathLen   uint16
	Kind      Kind
	Opcode    uint8
	Flags     uint8
	Path      [PathCap]byte
}

// NewRecord builds a Record stamped with the current time. Paths longer than
// PathCap are truncated and flagged with FlagTruncated.
func NewRecord(kind Kind, pid uint32, path string) Record {
	r := Record{
		Kind:      kind,
		PID:       pid,
		Timestamp: time.Now().UnixNano(),
	}
	r.SetPath(path)
	return r
}

// SetPath copies path into the fixed buffer and reports whether it fit.
// A path longer than PathCap is cut at the last rune boundary that fits and
// FlagTruncated is set.
func (r *Record) SetPath(path string) bool {
	n := copy(r.Path[:], path)
	fits := n == len(path)
	if !fits {
		for n > 0 && !utf8.RuneStart(path[n]) {
			n--
		}
		r.Flags |= FlagTruncated
	} else {
		r.Flags &^= FlagTruncated
	}
	r.PathLen = uint16(n) //nolint:gosec // G115: n <= PathCap
	return fits
}

// Truncated reports whether Path holds only a prefix of the observed path.
func (r *Record) Truncated() bool {
	return r.Flags&FlagTruncated != 0
}

// PathString returns the recorded path.
func (r *Record) PathString() string {
	return string(r.Path[:r.PathLen])
}

// Time returns the record timestamp.
func (r *Record) Time() time.Time {
	return time.Unix(0, r.Timestamp)
}

// TraceContext is the ambient state of the trace session delivered alongside
// every record. It is shared by pointer and never copied into the queue.
type TraceContext struct {
	Session   string
	Host      string
	StartedAt time.Time
}
