// Package op builds bit-exact fixed-point operators from attribute stores.
//
// Every operator validates its attributes and shapes when it is built.
// Run assumes a validated operator and only checks buffer lengths.
package op

import (
	"fmt"
	"slices"

	"github.com/roach88/dpusim/internal/attr"
	"github.com/roach88/dpusim/internal/config"
	"github.com/roach88/dpusim/internal/fix"
	"github.com/roach88/dpusim/internal/kernel"
	"github.com/roach88/dpusim/internal/shard"
	"github.com/roach88/dpusim/internal/tensor"
)

// Tensor roles.
const (
	RoleInput   = "input"
	RoleWeights = "weights"
	RoleBias    = "bias"
)

// TensorSpec describes one operand: its role, NHWC shape, element type and
// fix point.
type TensorSpec struct {
	Role     string       `json:"role,omitempty" yaml:"role"`
	Shape    []int        `json:"shape" yaml:"shape"`
	DType    tensor.DType `json:"dtype" yaml:"dtype"`
	FixPoint int          `json:"fix_point" yaml:"fix_point"`
}

// Map converts the shape to a feature map. Rank 1 shapes are channel
// vectors, rank 2 are [N, C] and rank 4 are NHWC.
func (t TensorSpec) Map() (tensor.FMap, error) {
	s := t.Shape
	for _, d := range s {
		if d <= 0 {
			return tensor.FMap{}, fmt.Errorf("shape %v has non-positive dimension", s)
		}
	}
	switch len(s) {
	case 1:
		return tensor.NHWC(1, 1, 1, s[0]), nil
	case 2:
		return tensor.NHWC(s[0], 1, 1, s[1]), nil
	case 4:
		return tensor.NHWC(s[0], s[1], s[2], s[3]), nil
	}
	return tensor.FMap{}, fmt.Errorf("shape %v: rank %d not supported", s, len(s))
}

// Spec is one operator instance: its type, attributes, operands in order
// and output.
type Spec struct {
	Type   string       `json:"type"`
	Attrs  attr.Store   `json:"attrs"`
	Inputs []TensorSpec `json:"inputs"`
	Output TensorSpec   `json:"output"`
}

// inputs returns the operands with role r, in order.
func (s Spec) inputs(r string) []TensorSpec {
	var out []TensorSpec
	for _, in := range s.Inputs {
		if in.Role == r || (in.Role == "" && r == RoleInput) {
			out = append(out, in)
		}
	}
	return out
}

// Operator is a built operator.
type Operator interface {
	Type() string
	Output() tensor.FMap
	// Run reads inputs in role order (inputs, then weights, then bias)
	// and writes out.
	Run(inputs []tensor.Tensor, out tensor.Tensor) error
}

// Env is what every Constructor gets besides its Spec.
type Env struct {
	Round   fix.RoundMode
	Options []kernel.Option
}

// NewEnv derives kernel options from cfg: a shared worker pool of
// cfg.Threads and the GEMM switch.
func NewEnv(cfg *config.Config) Env {
	return Env{
		Round: cfg.Round(),
		Options: []kernel.Option{
			kernel.WithPool(shard.NewPool(cfg.Threads)),
			kernel.WithGEMM(cfg.GEMM),
		},
	}
}

// Constructor builds an operator from a spec.
type Constructor func(s Spec, env Env) (Operator, error)

// Registry maps operator type names to constructors.
type Registry struct {
	ctors map[string]Constructor
}

// NewRegistry returns a registry holding every built-in operator.
func NewRegistry() *Registry {
	return &Registry{ctors: map[string]Constructor{
		"conv2d-fix":                      newConv2d,
		"depthwise-conv2d-fix":            newDepthwise,
		"transposed-conv2d-fix":           newTransposed,
		"transposed-depthwise-conv2d-fix": newTransposedDepthwise,
		"pool-fix":                        newPool,
		"eltwise-fix":                     newEltwise,
		"downsample-fix":                  newDownsample,
	}}
}

// Register adds or replaces a constructor.
func (r *Registry) Register(name string, c Constructor) {
	r.ctors[name] = c
}

// Types returns the registered type names, sorted.
func (r *Registry) Types() []string {
	names := make([]string, 0, len(r.ctors))
	for n := range r.ctors {
		names = append(names, n)
	}
	slices.Sort(names)
	return names
}

// Build validates s and constructs its operator.
func (r *Registry) Build(s Spec, env Env) (Operator, error) {
	c, ok := r.ctors[s.Type]
	if !ok {
		return nil, invalid(s.Type, "type", ErrUnknownOperator, "no operator registered as %q", s.Type)
	}
	if s.Attrs == nil {
		s.Attrs = attr.Store{}
	}
	return c(s, env)
}
