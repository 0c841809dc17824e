package kernel

import (
	"fmt"

	"github.com/roach88/dpusim/internal/shard"
)

// Window is a 2-D kernel or stride size.
type Window struct {
	H, W int
}

func (w Window) valid() bool { return w.H > 0 && w.W > 0 }

// Path selects a compute strategy.
type Path int

const (
	PathDirect Path = iota
	PathSharded
	PathGEMM
	PathGEMMSharded
)

func (p Path) String() string {
	switch p {
	case PathDirect:
		return "direct"
	case PathSharded:
		return "sharded"
	case PathGEMM:
		return "gemm"
	case PathGEMMSharded:
		return "gemm-sharded"
	}
	return fmt.Sprintf("Path(%d)", int(p))
}

// Option configures a kernel.
type Option func(*options)

type options struct {
	pool *shard.Pool
	gemm bool
}

// WithPool shards the kernel over p. A pool of one thread runs direct.
func WithPool(p *shard.Pool) Option {
	return func(o *options) { o.pool = p }
}

// WithGEMM selects the matrix-multiply path where the kernel has one.
func WithGEMM(enabled bool) Option {
	return func(o *options) { o.gemm = enabled }
}

func buildOptions(opts []Option) options {
	var o options
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

func (o options) sharded() bool {
	return o.pool != nil && o.pool.Threads() > 1
}

func (o options) path() Path {
	switch {
	case o.gemm && o.sharded():
		return PathGEMMSharded
	case o.gemm:
		return PathGEMM
	case o.sharded():
		return PathSharded
	}
	return PathDirect
}

// each runs fn over [0, total), sharded when a pool is configured.
func (o options) each(total int, fn func(i int)) {
	if o.sharded() {
		o.pool.Each(total, fn)
		return
	}
	for i := 0; i < total; i++ {
		fn(i)
	}
}

// ConfigError reports an invalid kernel configuration.
type ConfigError struct {
	Field  string
	Reason string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

func configErr(field, format string, args ...any) error {
	return &ConfigError{Field: field, Reason: fmt.Sprintf(format, args...)}
}

// CheckLen returns a ConfigError when a buffer of n elements is shorter
// than want.
func CheckLen(field string, n, want int) error {
	if n < want {
		return configErr(field, "buffer has %d elements, want %d", n, want)
	}
	return nil
}
