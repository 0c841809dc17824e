package isa

import "fmt"

// Version is an ISA generation.
type Version int

const (
	V2 Version = iota + 1
	V3E
	V3ME
	XVDPU
	XV2DPU
	XV3DPU
	DPU4F
	V4E
)

var versionNames = map[Version]string{
	V2:     "V2",
	V3E:    "V3E",
	V3ME:   "V3ME",
	XVDPU:  "XVDPU",
	XV2DPU: "XV2DPU",
	XV3DPU: "XV3DPU",
	DPU4F:  "DPU4F",
	V4E:    "V4E",
}

// Versions lists every supported version in declaration order.
func Versions() []Version {
	return []Version{V2, V3E, V3ME, XVDPU, XV2DPU, XV3DPU, DPU4F, V4E}
}

func (v Version) String() string {
	if s, ok := versionNames[v]; ok {
		return s
	}
	return fmt.Sprintf("Version(%d)", int(v))
}

// ParseVersion maps a version name to a Version.
func ParseVersion(s string) (Version, error) {
	for v, name := range versionNames {
		if name == s {
			return v, nil
		}
	}
	return 0, &DispatchError{Code: ErrUnsupportedVersion, Message: fmt.Sprintf("unknown ISA version %q", s)}
}

// MarshalText implements encoding.TextMarshaler.
func (v Version) MarshalText() ([]byte, error) {
	if _, ok := versionNames[v]; !ok {
		return nil, fmt.Errorf("unknown ISA version %d", int(v))
	}
	return []byte(v.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (v *Version) UnmarshalText(b []byte) error {
	parsed, err := ParseVersion(string(b))
	if err != nil {
		return err
	}
	*v = parsed
	return nil
}
