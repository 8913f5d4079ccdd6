package engine

import "time"

// FileType identifies the kind of filesystem entry.
type FileType int

const (
	Regular FileType = iota
	Dir
	Symlink
)

// FileTask describes a single replicate operation.
type FileTask struct {
	SrcPath    string
	DstPath    string
	RelPath    string
	LinkTarget string
	ModTime    time.Time
	Size       int64
	Mode       uint32
	Type       FileType
}
