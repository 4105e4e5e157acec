package description

import (
	"fmt"

	uuid "github.com/satori/go.uuid"
	"go.uber.org/multierr"

	"avaneesh/dcp-go/pkg/types"
)

// Validate checks the description and builds its lookup indexes.
// All problems are reported together.
func (d *SlaveDescription) Validate() error {
	var err error

	u, uerr := uuid.FromString(d.UUID)
	if uerr != nil {
		err = multierr.Append(err, fmt.Errorf("uuid %q: %w", d.UUID, uerr))
	}
	d.slaveUUID = u

	d.opModes = make(map[types.OpMode]bool)
	if len(d.OpModes) == 0 {
		err = multierr.Append(err, fmt.Errorf("op_modes: at least one operating mode required"))
	}
	for _, name := range d.OpModes {
		m, ok := types.ParseOpMode(name)
		if !ok {
			err = multierr.Append(err, fmt.Errorf("op_modes: unknown mode %q", name))
			continue
		}
		d.opModes[m] = true
	}

	if !d.Resolution.Default.Resolution().Valid() {
		err = multierr.Append(err, fmt.Errorf("time_resolution.default: numerator and denominator must be non-zero"))
	}
	for i, rg := range d.Resolution.Ranges {
		if rg.Numerator == 0 || rg.MinDenominator == 0 || rg.MinDenominator > rg.MaxDenominator {
			err = multierr.Append(err, fmt.Errorf("time_resolution.ranges[%d]: invalid range", i))
		}
	}
	if d.Heartbeat != nil && !d.Heartbeat.Resolution().Valid() {
		err = multierr.Append(err, fmt.Errorf("heartbeat: numerator and denominator must be non-zero"))
	}

	for _, p := range d.Transport.Protocols {
		if !knownProtocol(p) {
			err = multierr.Append(err, fmt.Errorf("transport.protocols: unknown protocol %q", p))
		}
	}

	d.byVR = make(map[uint64]*Variable, len(d.Variables))
	for i := range d.Variables {
		v := &d.Variables[i]
		if _, dup := d.byVR[v.VR]; dup {
			err = multierr.Append(err, fmt.Errorf("variable %q: duplicate vr %d", v.Name, v.VR))
			continue
		}
		d.byVR[v.VR] = v
		err = multierr.Append(err, v.validate())
	}

	// linked dimensions must point at unsigned structural parameters
	for i := range d.Variables {
		v := &d.Variables[i]
		for _, dim := range v.Dimensions {
			if dim.LinkedVR == nil {
				continue
			}
			sp, ok := d.byVR[*dim.LinkedVR]
			if !ok {
				err = multierr.Append(err, fmt.Errorf("variable %q: linked vr %d not found", v.Name, *dim.LinkedVR))
				continue
			}
			if sp.Causality != CausalityStructuralParameter || !sp.dataType.IsUnsigned() {
				err = multierr.Append(err, fmt.Errorf("variable %q: linked vr %d is not an unsigned structural parameter", v.Name, *dim.LinkedVR))
			}
		}
	}

	for _, t := range d.LogTemplates {
		if _, ok := ParseLogLevel(t.Level); !ok {
			err = multierr.Append(err, fmt.Errorf("log template %d: unknown level %q", t.ID, t.Level))
		}
		for _, a := range t.Args {
			if _, ok := types.ParseDataType(a); !ok {
				err = multierr.Append(err, fmt.Errorf("log template %d: unknown arg type %q", t.ID, a))
			}
		}
	}

	return err
}

func (v *Variable) validate() error {
	var err error

	dt, ok := types.ParseDataType(v.Type)
	if !ok {
		err = multierr.Append(err, fmt.Errorf("variable %q: unknown type %q", v.Name, v.Type))
	}
	v.dataType = dt

	switch v.Causality {
	case CausalityInput, CausalityOutput, CausalityParameter, CausalityStructuralParameter:
	default:
		err = multierr.Append(err, fmt.Errorf("variable %q: unknown causality %q", v.Name, v.Causality))
	}
	switch v.Variability {
	case "", VariabilityFixed, VariabilityTunable:
	default:
		err = multierr.Append(err, fmt.Errorf("variable %q: unknown variability %q", v.Name, v.Variability))
	}
	if v.Causality == CausalityStructuralParameter && len(v.Dimensions) > 0 {
		err = multierr.Append(err, fmt.Errorf("variable %q: structural parameters must be scalar", v.Name))
	}
	for i, dim := range v.Dimensions {
		if dim.LinkedVR == nil && dim.Size <= 0 {
			err = multierr.Append(err, fmt.Errorf("variable %q: dimension %d must have size or linked_vr", v.Name, i))
		}
	}
	if v.Max > 0 && v.Causality != CausalityStructuralParameter {
		err = multierr.Append(err, fmt.Errorf("variable %q: max only applies to structural parameters", v.Name))
	}
	if v.MaxSize < 0 {
		err = multierr.Append(err, fmt.Errorf("variable %q: max_size must not be negative", v.Name))
	}
	return err
}

func knownProtocol(name string) bool {
	for p := types.ProtocolUDPIPv4; p <= types.ProtocolTCPIPv4; p++ {
		if p.String() == name {
			return true
		}
	}
	return false
}

// ParseLogLevel converts "FATAL", "ERROR", "WARNING" or "INFO" to a LogLevel
func ParseLogLevel(name string) (types.LogLevel, bool) {
	for l := types.LogLevelFatal; l <= types.LogLevelInfo; l++ {
		if l.String() == name {
			return l, true
		}
	}
	return 0, false
}
