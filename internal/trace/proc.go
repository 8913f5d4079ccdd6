package trace

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/bamsammich/savewarden/internal/event"
)

// DefaultProcInterval is how often ProcSource rescans the process table.
const DefaultProcInterval = 500 * time.Millisecond

// ProcSource polls a procfs tree and reports processes whose name matches
// one of Names. Processes already running on the first scan are reported
// with Opcode event.OpFound. The matched entry of Names is carried in
// Record.Path.
//
// The kernel truncates comm to 15 bytes, so a process is named by the base
// of argv[0] when cmdline is readable and by comm otherwise. A comm equal to
// the first 15 bytes of a longer wanted name also matches.
type ProcSource struct {
	Names    []string
	Interval time.Duration
	ProcRoot string
	Logger   *slog.Logger
}

type procInfo struct {
	ppid uint32
	comm string
}

func (s *ProcSource) Name() string { return "proc" }

func (s *ProcSource) Run(ctx context.Context, emit func(event.Record) bool) error {
	interval := s.Interval
	if interval <= 0 {
		interval = DefaultProcInterval
	}
	root := s.ProcRoot
	if root == "" {
		root = "/proc"
	}
	logger := s.Logger
	if logger == nil {
		logger = slog.Default()
	}

	wanted := newNameSet(s.Names)

	seen, err := scanProcs(root, wanted)
	if err != nil {
		return err
	}
	for pid, info := range seen {
		rec := procRecord(event.ProcessStart, pid, info)
		rec.Opcode = event.OpFound
		if !emit(rec) {
			return nil
		}
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}

		cur, err := scanProcs(root, wanted)
		if err != nil {
			logger.Warn("process scan failed", "root", root, "error", err)
			continue
		}
		for pid, info := range cur {
			if old, ok := seen[pid]; ok && old.comm == info.comm {
				continue
			}
			if !emit(procRecord(event.ProcessStart, pid, info)) {
				return nil
			}
		}
		for pid, info := range seen {
			if now, ok := cur[pid]; ok && now.comm == info.comm {
				continue
			}
			if !emit(procRecord(event.ProcessStop, pid, info)) {
				return nil
			}
		}
		seen = cur
	}
}

func procRecord(kind event.Kind, pid uint32, info procInfo) event.Record {
	rec := event.NewRecord(kind, pid, info.comm)
	rec.PPID = info.ppid
	return rec
}

// nameSet indexes wanted process names by full name and by the truncated
// form the kernel stores in comm.
type nameSet struct {
	full  map[string]struct{}
	short map[string]string
}

func newNameSet(names []string) nameSet {
	ns := nameSet{full: make(map[string]struct{}, len(names)), short: make(map[string]string)}
	for _, n := range names {
		ns.full[n] = struct{}{}
		if len(n) > event.CommLen {
			ns.short[n[:event.CommLen]] = n
		}
	}
	return ns
}

// lookup returns the wanted name matching a process with the given argv[0]
// base name and comm. When argv0 extends comm it is the full name and is the
// only thing compared.
func (ns nameSet) lookup(argv0, comm string) (string, bool) {
	if argv0 != "" && strings.HasPrefix(argv0, comm) {
		_, ok := ns.full[argv0]
		return argv0, ok
	}
	if _, ok := ns.full[comm]; ok {
		return comm, true
	}
	if n, ok := ns.short[comm]; ok {
		return n, true
	}
	return "", false
}

// readArgv0 returns the base name of the first NUL-separated argument in
// <dir>/cmdline. Both '/' and '\' count as separators so Windows paths
// under Wine or Proton resolve to the executable name.
func readArgv0(dir string) string {
	data, err := os.ReadFile(filepath.Join(dir, "cmdline"))
	if err != nil {
		return ""
	}
	if i := bytes.IndexByte(data, 0); i >= 0 {
		data = data[:i]
	}
	if i := bytes.LastIndexAny(data, "/\\"); i >= 0 {
		data = data[i+1:]
	}
	return string(data)
}

// scanProcs lists numeric entries under root and returns those whose name
// is in wanted. Processes that exit mid-scan are ignored.
func scanProcs(root string, wanted nameSet) (map[uint32]procInfo, error) {
	entries, err := os.ReadDir(root)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", root, err)
	}

	out := make(map[uint32]procInfo)
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		pid64, err := strconv.ParseUint(e.Name(), 10, 32)
		if err != nil {
			continue
		}
		dir := filepath.Join(root, e.Name())

		comm, err := os.ReadFile(filepath.Join(dir, "comm"))
		if err != nil {
			continue
		}
		name, ok := wanted.lookup(readArgv0(dir), string(bytes.TrimSpace(comm)))
		if !ok {
			continue
		}

		out[uint32(pid64)] = procInfo{comm: name, ppid: readPPID(dir)}
	}
	return out, nil
}

// readPPID parses the fourth field of <dir>/stat. The comm field may hold
// spaces and parentheses, so parsing starts after the last ')'.
func readPPID(dir string) uint32 {
	data, err := os.ReadFile(filepath.Join(dir, "stat"))
	if err != nil {
		return 0
	}
	i := bytes.LastIndexByte(data, ')')
	if i < 0 {
		return 0
	}
	fields := bytes.Fields(data[i+1:])
	if len(fields) < 2 {
		return 0
	}
	ppid, err := strconv.ParseUint(string(fields[1]), 10, 32)
	if err != nil {
		return 0
	}
	return uint32(ppid)
}
