package cli

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"slices"
	"strconv"
	"strings"

	"cuelang.org/go/cue/token"

	"github.com/roach88/dpusim/internal/compiler"
	"github.com/roach88/dpusim/internal/dump"
	"github.com/roach88/dpusim/internal/engine"
	"github.com/roach88/dpusim/internal/isa"
)

// LoadError represents an error that occurred while loading CLI inputs.
type LoadError struct {
	Code    string
	Message string
	Pos     token.Pos // CUE position if available
}

func (e *LoadError) Error() string {
	if e.Pos.IsValid() {
		return fmt.Sprintf("%s:%d:%d: %s: %s", e.Pos.Filename(), e.Pos.Line(), e.Pos.Column(), e.Code, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// loadCode returns the code of a LoadError, or ErrCodeGeneric.
func loadCode(err error) string {
	var le *LoadError
	if errors.As(err, &le) {
		return le.Code
	}
	return ErrCodeGeneric
}

// loadSpecs compiles the operator specs in dir. A nil result means the
// directory could not be loaded at all; otherwise errs holds per-operator
// compile failures.
func loadSpecs(dir string, mode compiler.LoadMode) (*compiler.LoadResult, []error) {
	info, err := os.Stat(dir)
	if os.IsNotExist(err) {
		return nil, []error{&LoadError{Code: ErrCodeNotFound, Message: fmt.Sprintf("specs directory not found: %s", dir)}}
	}
	if err != nil {
		return nil, []error{&LoadError{Code: ErrCodeNotFound, Message: fmt.Sprintf("error accessing specs directory: %v", err)}}
	}
	if !info.IsDir() {
		return nil, []error{&LoadError{Code: ErrCodeNotFound, Message: fmt.Sprintf("not a directory: %s", dir)}}
	}

	files, err := compiler.FindCUEFiles(dir)
	if err != nil {
		return nil, []error{&LoadError{Code: ErrCodeGeneric, Message: fmt.Sprintf("error scanning directory: %v", err)}}
	}
	if len(files) == 0 {
		return nil, []error{&LoadError{Code: ErrCodeNoFiles, Message: fmt.Sprintf("no CUE files found in %s", dir)}}
	}

	result, errs := compiler.LoadDir(dir, mode)
	out := make([]error, len(errs))
	for i, err := range errs {
		le := &LoadError{Code: ErrCodeLoadFailed, Message: err.Error()}
		var ce *compiler.CompileError
		if errors.As(err, &ce) {
			le.Pos = ce.Pos
		}
		out[i] = le
	}
	return result, out
}

// lineOf returns the line of pos, or 0 when pos is unknown.
func lineOf(pos token.Pos) int {
	if pos.IsValid() {
		return pos.Line()
	}
	return 0
}

// loadStream reads an instruction stream in text or binary form and
// decodes it for v.
func loadStream(path string, v isa.Version, binary bool) (isa.Stream, error) {
	f, err := os.Open(path)
	if os.IsNotExist(err) {
		return isa.Stream{}, &LoadError{Code: ErrCodeNotFound, Message: fmt.Sprintf("stream not found: %s", path)}
	}
	if err != nil {
		return isa.Stream{}, &LoadError{Code: ErrCodeGeneric, Message: err.Error()}
	}
	defer f.Close()

	if !binary {
		s, err := isa.ParseText(v, f)
		if err != nil {
			return isa.Stream{}, &LoadError{Code: ErrCodeDecodeFailed, Message: err.Error()}
		}
		return s, nil
	}

	raws, err := isa.ReadBinary(f)
	if err != nil {
		return isa.Stream{}, &LoadError{Code: ErrCodeDecodeFailed, Message: err.Error()}
	}
	s, err := isa.DecodeStream(v, raws)
	if err != nil {
		return isa.Stream{}, &LoadError{Code: ErrCodeDecodeFailed, Message: err.Error()}
	}
	return s, nil
}

// streamText renders s in the text syntax.
func streamText(s isa.Stream) (string, error) {
	var buf bytes.Buffer
	if err := isa.WriteText(&buf, s); err != nil {
		return "", err
	}
	return buf.String(), nil
}

// parseVersion resolves a --version flag. An empty flag keeps def.
func parseVersion(flag string, def isa.Version) (isa.Version, error) {
	if flag == "" {
		return def, nil
	}
	v, err := isa.ParseVersion(strings.ToUpper(flag))
	if err != nil {
		return 0, err
	}
	return v, nil
}

// parseSeed splits a REG@FILE seed argument.
func parseSeed(arg string) (int, string, error) {
	reg, path, ok := strings.Cut(arg, "@")
	if !ok || path == "" {
		return 0, "", fmt.Errorf("seed %q: want REG@FILE", arg)
	}
	id, err := strconv.Atoi(reg)
	if err != nil {
		return 0, "", fmt.Errorf("seed %q: bad reg id: %w", arg, err)
	}
	return id, path, nil
}

// seedDDR loads hex files into DDR. Each file carries its own base
// address.
func seedDDR(mem *engine.Memory, seeds []string) error {
	for _, arg := range seeds {
		reg, path, err := parseSeed(arg)
		if err != nil {
			return err
		}
		f, err := os.Open(path)
		if err != nil {
			return fmt.Errorf("seed %q: %w", arg, err)
		}
		base, data, err := dump.ReadHex(f)
		f.Close()
		if err != nil {
			return fmt.Errorf("seed %q: %w", arg, err)
		}
		if !slices.Contains(mem.Regions(), reg) {
			return fmt.Errorf("seed %q: no DDR region %d (configured: %v)", arg, reg, mem.Regions())
		}
		if size := mem.Size(reg); base+len(data) > size {
			return fmt.Errorf("seed %q: %d bytes at 0x%x exceed DDR region %d of %d bytes", arg, len(data), base, reg, size)
		}
		if err := mem.WriteDDR(reg, base, data); err != nil {
			return fmt.Errorf("seed %q: %w", arg, err)
		}
	}
	return nil
}
