// Package description holds the read-only slave description: the variable
// table, supported operating modes and time resolutions, transport endpoints
// and log templates of one slave.
package description

import (
	"fmt"
	"strconv"

	uuid "github.com/satori/go.uuid"

	"avaneesh/dcp-go/pkg/types"
	"avaneesh/dcp-go/pkg/value"
)

// Causality of a variable
type Causality string

const (
	CausalityInput               Causality = "input"
	CausalityOutput              Causality = "output"
	CausalityParameter           Causality = "parameter"
	CausalityStructuralParameter Causality = "structuralParameter"
)

// Limits on linked dimensions
const (
	// DefaultMaxDimension bounds a structural parameter that declares no max
	DefaultMaxDimension = 1 << 16
	// MaxElements bounds the element count of any variable
	MaxElements = 1 << 20
)

// Variability of a parameter
type Variability string

const (
	VariabilityFixed   Variability = "fixed"
	VariabilityTunable Variability = "tunable"
)

// SlaveDescription describes one slave
type SlaveDescription struct {
	Name         string            `yaml:"name"`
	UUID         string            `yaml:"uuid"`
	MajorVersion uint8             `yaml:"dcp_major_version"`
	MinorVersion uint8             `yaml:"dcp_minor_version"`
	OpModes      []string          `yaml:"op_modes"`
	Resolution   ResolutionSupport `yaml:"time_resolution"`
	Heartbeat    *Fraction         `yaml:"heartbeat,omitempty"`
	Transport    TransportSupport  `yaml:"transport"`
	Variables    []Variable        `yaml:"variables"`
	LogTemplates []LogTemplate     `yaml:"log_templates,omitempty"`
	Logging      LoggingSupport    `yaml:"logging"`
	// NtfStateChanged enables NTF_state_changed after every transition
	NtfStateChanged bool `yaml:"ntf_state_changed"`

	slaveUUID uuid.UUID
	opModes   map[types.OpMode]bool
	byVR      map[uint64]*Variable
}

// Fraction is numerator/denominator seconds
type Fraction struct {
	Numerator   uint32 `yaml:"numerator"`
	Denominator uint32 `yaml:"denominator"`
}

// Resolution converts f to a types.Resolution
func (f Fraction) Resolution() types.Resolution {
	return types.Resolution{Numerator: f.Numerator, Denominator: f.Denominator}
}

// ResolutionRange accepts Numerator/d for MinDenominator <= d <= MaxDenominator
type ResolutionRange struct {
	Numerator      uint32 `yaml:"numerator"`
	MinDenominator uint32 `yaml:"min_denominator"`
	MaxDenominator uint32 `yaml:"max_denominator"`
}

// ResolutionSupport lists the time resolutions a slave accepts
type ResolutionSupport struct {
	Fixed         []Fraction        `yaml:"fixed,omitempty"`
	Ranges        []ResolutionRange `yaml:"ranges,omitempty"`
	Default       Fraction          `yaml:"default"`
	VariableSteps bool              `yaml:"variable_steps"`
	// MaxSteps bounds CFG_steps when non-zero
	MaxSteps uint32 `yaml:"max_steps,omitempty"`
}

// TransportSupport lists the transport endpoints of a slave
type TransportSupport struct {
	Protocols []string `yaml:"protocols"`
	Host      string   `yaml:"host"`
	Port      uint16   `yaml:"port"`
}

// LoggingSupport lists which log modes a slave implements
type LoggingSupport struct {
	OnNotification bool `yaml:"on_notification"`
	OnRequest      bool `yaml:"on_request"`
	// BufferSize bounds the number of entries kept for INF_log
	BufferSize int `yaml:"buffer_size,omitempty"`
}

// Dimension is a fixed size or a link to a structural parameter
type Dimension struct {
	Size     int     `yaml:"size,omitempty"`
	LinkedVR *uint64 `yaml:"linked_vr,omitempty"`
}

// Variable is one entry of the variable table
type Variable struct {
	Name        string      `yaml:"name"`
	VR          uint64      `yaml:"vr"`
	Causality   Causality   `yaml:"causality"`
	Variability Variability `yaml:"variability,omitempty"`
	Type        string      `yaml:"type"`
	Dimensions  []Dimension `yaml:"dimensions,omitempty"`
	MaxSize     int         `yaml:"max_size,omitempty"`
	Start       []string    `yaml:"start,omitempty"`
	// Max bounds a structural parameter; zero means DefaultMaxDimension
	Max uint64 `yaml:"max,omitempty"`

	dataType types.DataType
}

// LogTemplate describes one log message
type LogTemplate struct {
	ID       uint8    `yaml:"id"`
	Category uint8    `yaml:"category"`
	Level    string   `yaml:"level"`
	Message  string   `yaml:"message"`
	Args     []string `yaml:"args,omitempty"`
}

// SlaveUUID returns the parsed UUID. Valid after Validate.
func (d *SlaveDescription) SlaveUUID() uuid.UUID { return d.slaveUUID }

// SupportsOpMode reports whether m is listed in op_modes. Valid after Validate.
func (d *SlaveDescription) SupportsOpMode(m types.OpMode) bool { return d.opModes[m] }

// Variable returns the variable with value reference vr
func (d *SlaveDescription) Variable(vr uint64) (*Variable, bool) {
	v, ok := d.byVR[vr]
	return v, ok
}

// SupportsProtocol reports whether p is listed in transport.protocols
func (d *SlaveDescription) SupportsProtocol(p types.TransportProtocol) bool {
	for _, name := range d.Transport.Protocols {
		if name == p.String() {
			return true
		}
	}
	return false
}

// AcceptsResolution reports whether r is among the fixed resolutions or within a range.
// A description without fixed resolutions or ranges only accepts its default.
func (d *SlaveDescription) AcceptsResolution(r types.Resolution) bool {
	if !r.Valid() {
		return false
	}
	if len(d.Resolution.Fixed) == 0 && len(d.Resolution.Ranges) == 0 {
		return d.Resolution.Default.Resolution() == r
	}
	for _, f := range d.Resolution.Fixed {
		if f.Resolution() == r {
			return true
		}
	}
	for _, rg := range d.Resolution.Ranges {
		if r.Numerator == rg.Numerator && r.Denominator >= rg.MinDenominator && r.Denominator <= rg.MaxDenominator {
			return true
		}
	}
	return false
}

// DataType returns the parsed data type. Valid after Validate.
func (v *Variable) DataType() types.DataType { return v.dataType }

// IsParameter returns true for parameters and structural parameters
func (v *Variable) IsParameter() bool {
	return v.Causality == CausalityParameter || v.Causality == CausalityStructuralParameter
}

// IsTunable returns true for parameters that may be changed during run
func (v *Variable) IsTunable() bool {
	return v.Causality == CausalityParameter && v.Variability == VariabilityTunable
}

// NewValue creates the variable's value with fixed dimensions applied and
// linked dimensions taken from dimOf. Start values are applied when present.
func (v *Variable) NewValue(dimOf func(vr uint64) int) (*value.MultiDimValue, error) {
	mv, err := value.New(v.dataType, v.ResolveDims(dimOf), v.MaxSize)
	if err != nil {
		return nil, fmt.Errorf("variable %q: %w", v.Name, err)
	}
	for i, s := range v.Start {
		if i >= mv.Count() {
			break
		}
		if err := setStart(mv, i, s); err != nil {
			return nil, fmt.Errorf("variable %q start[%d]: %w", v.Name, i, err)
		}
	}
	return mv, nil
}

// ResolveDims returns the current dimensions with linked entries looked up via dimOf
func (v *Variable) ResolveDims(dimOf func(vr uint64) int) []int {
	dims := make([]int, 0, len(v.Dimensions))
	for _, d := range v.Dimensions {
		if d.LinkedVR != nil {
			n := 1
			if dimOf != nil {
				n = dimOf(*d.LinkedVR)
			}
			if n < 1 {
				n = 1
			}
			dims = append(dims, n)
			continue
		}
		dims = append(dims, d.Size)
	}
	return dims
}

// MaxDimension returns the largest value a structural parameter may take
func (v *Variable) MaxDimension() uint64 {
	if v.Max > 0 {
		return v.Max
	}
	return DefaultMaxDimension
}

// WithinElementLimit reports whether dims hold at most MaxElements elements
func WithinElementLimit(dims []int) bool {
	n := 1
	for _, d := range dims {
		if d < 1 || n > MaxElements/d {
			return false
		}
		n *= d
	}
	return true
}

// DependsOn reports whether one of v's dimensions is linked to vr
func (v *Variable) DependsOn(vr uint64) bool {
	for _, d := range v.Dimensions {
		if d.LinkedVR != nil && *d.LinkedVR == vr {
			return true
		}
	}
	return false
}

func setStart(mv *value.MultiDimValue, i int, s string) error {
	dt := mv.DataType()
	switch {
	case dt == types.TypeString:
		return mv.SetStringAt(i, s)
	case dt == types.TypeBinary:
		return mv.SetBytesAt(i, []byte(s))
	case dt.IsFloat():
		f, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return err
		}
		return mv.SetFloat64At(i, f)
	case dt.IsSigned():
		n, err := strconv.ParseInt(s, 0, dt.Size()*8)
		if err != nil {
			return err
		}
		return mv.SetInt64At(i, n)
	default:
		n, err := strconv.ParseUint(s, 0, dt.Size()*8)
		if err != nil {
			return err
		}
		return mv.SetUint64At(i, n)
	}
}
