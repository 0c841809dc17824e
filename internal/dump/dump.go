// Package dump writes memory snapshots taken by DUMP instructions.
//
// The hex format is line oriented. Each line holds the address of its first
// byte followed by up to Width bytes as two-digit hex:
//
//	00000100: 01 ff 80 7f
//
// Bytes are the two's complement encoding of the int8 memory.
package dump

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/roach88/dpusim/internal/config"
	"github.com/roach88/dpusim/internal/engine"
)

// DefaultWidth is the number of bytes per line.
const DefaultWidth = 16

// HexWriter writes every snapshot segment to its own file under
// <dir>/<run_id>, so runs sharing a dump dir never overwrite each other.
type HexWriter struct {
	dir    string
	width  int
	logger *slog.Logger
}

// Option configures a HexWriter.
type Option func(*HexWriter)

// WithWidth sets the bytes per line. Non-positive values are ignored.
func WithWidth(n int) Option {
	return func(w *HexWriter) {
		if n > 0 {
			w.width = n
		}
	}
}

// WithLogger sets the structured logger. Default: slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(w *HexWriter) {
		if l != nil {
			w.logger = l
		}
	}
}

// NewHexWriter returns a writer rooted at dir.
func NewHexWriter(dir string, opts ...Option) *HexWriter {
	w := &HexWriter{dir: dir, width: DefaultWidth, logger: slog.Default()}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Dump implements engine.Dumper.
func (w *HexWriter) Dump(ctx context.Context, s engine.Snapshot) error {
	runDir := filepath.Join(w.dir, s.RunID)
	if err := os.MkdirAll(runDir, 0o755); err != nil {
		return fmt.Errorf("dump: %w", err)
	}
	for _, seg := range s.Segments {
		if err := ctx.Err(); err != nil {
			return err
		}
		path := filepath.Join(runDir, FileName(s, seg))
		if err := writeFile(path, seg, w.width); err != nil {
			return fmt.Errorf("dump %s: %w", seg.Name(), err)
		}
		w.logger.Debug("dump written",
			"run_id", s.RunID,
			"index", s.Index,
			"segment", seg.Name(),
			"bytes", len(seg.Data),
			"path", path,
		)
	}
	return nil
}

// FileName names a segment file within its run directory so a listing
// sorts by step.
func FileName(s engine.Snapshot, seg engine.Segment) string {
	name := strings.ReplaceAll(seg.Name(), "@", "_")
	return fmt.Sprintf("%06d_%s_%s.hex", s.Step, strings.ToLower(s.Kind.String()), name)
}

func writeFile(path string, seg engine.Segment, width int) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := WriteHex(f, seg.Addr, seg.Data, width); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// WriteHex writes data in the hex format, numbering lines from base.
func WriteHex(w io.Writer, base int, data []int8, width int) error {
	if width <= 0 {
		width = DefaultWidth
	}
	bw := bufio.NewWriter(w)
	for off := 0; off < len(data); off += width {
		fmt.Fprintf(bw, "%08x:", base+off)
		for _, v := range data[off:min(off+width, len(data))] {
			fmt.Fprintf(bw, " %02x", uint8(v))
		}
		bw.WriteByte('\n')
	}
	return bw.Flush()
}

// ReadHex parses the hex format and returns the base address and bytes.
// Lines must be contiguous.
func ReadHex(r io.Reader) (int, []int8, error) {
	var (
		base = -1
		data []int8
	)
	sc := bufio.NewScanner(r)
	lineNo := 0
	for sc.Scan() {
		lineNo++
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}
		addrText, rest, ok := strings.Cut(line, ":")
		if !ok {
			return 0, nil, fmt.Errorf("line %d: missing address", lineNo)
		}
		addr, err := strconv.ParseUint(addrText, 16, 32)
		if err != nil {
			return 0, nil, fmt.Errorf("line %d: address: %w", lineNo, err)
		}
		if base < 0 {
			base = int(addr)
		}
		if int(addr) != base+len(data) {
			return 0, nil, fmt.Errorf("line %d: address 0x%x, want 0x%x", lineNo, addr, base+len(data))
		}
		for _, tok := range strings.Fields(rest) {
			b, err := strconv.ParseUint(tok, 16, 8)
			if err != nil {
				return 0, nil, fmt.Errorf("line %d: byte %q: %w", lineNo, tok, err)
			}
			data = append(data, int8(uint8(b)))
		}
	}
	if err := sc.Err(); err != nil {
		return 0, nil, err
	}
	return max(base, 0), data, nil
}

// New picks the Dumper cfg.DumpFormat names. db, which may be nil unless
// the format is config.DumpDB, receives snapshots for the db format. A nil
// Dumper means dumps are discarded.
func New(cfg *config.Config, db engine.Dumper, logger *slog.Logger) (engine.Dumper, error) {
	switch cfg.DumpFormat {
	case config.DumpNone, "":
		return nil, nil
	case config.DumpHex:
		if cfg.DumpDir == "" {
			return nil, fmt.Errorf("dump format %q needs dump_dir", cfg.DumpFormat)
		}
		return NewHexWriter(cfg.DumpDir, WithLogger(logger)), nil
	case config.DumpDB:
		if db == nil {
			return nil, fmt.Errorf("dump format %q needs a store", cfg.DumpFormat)
		}
		return db, nil
	default:
		return nil, fmt.Errorf("unknown dump format %q", cfg.DumpFormat)
	}
}
