package compiler

import (
	"fmt"
	"os"
	"path/filepath"
	"slices"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"cuelang.org/go/cue/load"
)

// LoadMode controls how errors are handled while loading a directory.
type LoadMode int

const (
	// LoadModeFailFast stops on the first error encountered.
	LoadModeFailFast LoadMode = iota
	// LoadModeCollectAll collects all errors before returning.
	LoadModeCollectAll
)

// LoadResult contains the operators compiled from a directory.
type LoadResult struct {
	Ops       []OpSpec
	FileCount int
}

// LoadDir compiles every op.<name> in the CUE package at dir. Operators
// are returned sorted by name.
func LoadDir(dir string, mode LoadMode) (*LoadResult, []error) {
	info, err := os.Stat(dir)
	if err != nil {
		return nil, []error{fmt.Errorf("specs directory: %w", err)}
	}
	if !info.IsDir() {
		return nil, []error{fmt.Errorf("not a directory: %s", dir)}
	}

	files, err := FindCUEFiles(dir)
	if err != nil {
		return nil, []error{fmt.Errorf("scanning %s: %w", dir, err)}
	}
	if len(files) == 0 {
		return nil, []error{fmt.Errorf("no CUE files found in %s", dir)}
	}

	instances := load.Instances([]string{"."}, &load.Config{Dir: dir})
	if len(instances) == 0 {
		return nil, []error{fmt.Errorf("no CUE instances loaded")}
	}
	inst := instances[0]
	if inst.Err != nil {
		return nil, []error{formatCUEError(inst.Err)}
	}

	value := cuecontext.New().BuildInstance(inst)
	if err := value.Err(); err != nil {
		return nil, []error{formatCUEError(err)}
	}

	result := &LoadResult{FileCount: len(files)}
	ops, errs := compileAll(value, mode)
	result.Ops = ops
	if len(ops) == 0 && len(errs) == 0 {
		errs = append(errs, fmt.Errorf("no operators found in %s", dir))
	}
	return result, errs
}

// CompileString compiles every op.<name> in src. It is LoadDir for a
// single in-memory file.
func CompileString(filename, src string) ([]OpSpec, []error) {
	value := cuecontext.New().CompileString(src, cue.Filename(filename))
	if err := value.Err(); err != nil {
		return nil, []error{formatCUEError(err)}
	}
	return compileAll(value, LoadModeCollectAll)
}

func compileAll(value cue.Value, mode LoadMode) ([]OpSpec, []error) {
	opsVal := value.LookupPath(cue.ParsePath("op"))
	if !opsVal.Exists() {
		return nil, nil
	}
	iter, err := opsVal.Fields()
	if err != nil {
		return nil, []error{formatCUEError(err)}
	}

	var (
		ops  []OpSpec
		errs []error
	)
	for iter.Next() {
		spec, err := CompileOp(iter.Value())
		if err != nil {
			errs = append(errs, fmt.Errorf("op.%s: %w", iter.Label(), err))
			if mode == LoadModeFailFast {
				return ops, errs
			}
			continue
		}
		ops = append(ops, *spec)
	}
	slices.SortFunc(ops, func(a, b OpSpec) int {
		switch {
		case a.Name < b.Name:
			return -1
		case a.Name > b.Name:
			return 1
		}
		return 0
	})
	return ops, errs
}

// FindCUEFiles walks the directory and returns all .cue file paths.
func FindCUEFiles(dir string) ([]string, error) {
	var files []string
	err := filepath.Walk(dir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if !info.IsDir() && filepath.Ext(path) == ".cue" {
			files = append(files, path)
		}
		return nil
	})
	return files, err
}
