package description

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/multierr"

	"avaneesh/dcp-go/pkg/types"
)

func TestLoad(t *testing.T) {
	d, err := Load("testdata/slave.yaml")
	require.NoError(t, err)

	assert.Equal(t, "thermal-plant", d.Name)
	assert.Equal(t, "6ba7b810-9dad-11d1-80b4-00c04fd430c8", d.SlaveUUID().String())
	assert.True(t, d.SupportsOpMode(types.OpModeSRT))
	assert.True(t, d.SupportsOpMode(types.OpModeNRT))
	assert.False(t, d.SupportsOpMode(types.OpModeHRT))
	assert.True(t, d.SupportsProtocol(types.ProtocolUDPIPv4))
	assert.False(t, d.SupportsProtocol(types.ProtocolBluetooth))

	v, ok := d.Variable(2)
	require.True(t, ok)
	assert.Equal(t, types.TypeFloat64, v.DataType())
	assert.True(t, v.DependsOn(1))

	g, _ := d.Variable(4)
	assert.True(t, g.IsTunable())
}

func TestAcceptsResolution(t *testing.T) {
	d, err := Load("testdata/slave.yaml")
	require.NoError(t, err)

	tests := []struct {
		r    types.Resolution
		want bool
	}{
		{types.Resolution{Numerator: 1, Denominator: 100}, true},
		{types.Resolution{Numerator: 1, Denominator: 1000}, true},
		{types.Resolution{Numerator: 1, Denominator: 25}, true},
		{types.Resolution{Numerator: 1, Denominator: 60}, false},
		{types.Resolution{Numerator: 2, Denominator: 25}, false},
		{types.Resolution{Numerator: 1, Denominator: 0}, false},
	}

	for _, tt := range tests {
		if got := d.AcceptsResolution(tt.r); got != tt.want {
			t.Errorf("AcceptsResolution(%d/%d) = %v, want %v", tt.r.Numerator, tt.r.Denominator, got, tt.want)
		}
	}
}

func TestNewValue_StartAndLinkedDims(t *testing.T) {
	d, err := Load("testdata/slave.yaml")
	require.NoError(t, err)

	dim, _ := d.Variable(1)
	dimVal, err := dim.NewValue(nil)
	require.NoError(t, err)
	n, _ := dimVal.Uint64At(0)
	assert.Equal(t, uint64(2), n)

	temps, _ := d.Variable(2)
	tv, err := temps.NewValue(func(vr uint64) int {
		assert.Equal(t, uint64(1), vr)
		return int(n)
	})
	require.NoError(t, err)
	assert.Equal(t, []int{2}, tv.Dims())

	gain, _ := d.Variable(4)
	gv, err := gain.NewValue(nil)
	require.NoError(t, err)
	x, _ := gv.Int64At(0)
	assert.Equal(t, int64(-3), x)

	label, _ := d.Variable(5)
	lv, err := label.NewValue(nil)
	require.NoError(t, err)
	s, _ := lv.StringAt(0)
	assert.Equal(t, "plant", s)
}

// TestValidate_CollectsAllErrors tests that every problem is reported
func TestValidate_CollectsAllErrors(t *testing.T) {
	doc := `
name: broken
uuid: not-a-uuid
op_modes: [XRT]
time_resolution:
  default: {numerator: 0, denominator: 0}
transport:
  protocols: [CARRIER_PIGEON]
variables:
  - name: a
    vr: 1
    causality: input
    type: complex
  - name: b
    vr: 1
    causality: output
    type: uint8
  - name: c
    vr: 2
    causality: output
    type: uint8
    dimensions:
      - linked_vr: 99
`
	_, err := Parse([]byte(doc))
	require.Error(t, err)

	errs := multierr.Errors(err)
	assert.GreaterOrEqual(t, len(errs), 7)
	assert.Contains(t, err.Error(), "uuid")
	assert.Contains(t, err.Error(), "XRT")
	assert.Contains(t, err.Error(), "CARRIER_PIGEON")
	assert.Contains(t, err.Error(), "duplicate vr 1")
	assert.Contains(t, err.Error(), "linked vr 99 not found")
}

func TestStructuralLimits(t *testing.T) {
	d, err := Load("testdata/slave.yaml")
	require.NoError(t, err)

	dim, _ := d.Variable(1)
	assert.Equal(t, uint64(64), dim.MaxDimension())
	gain, _ := d.Variable(4)
	assert.Equal(t, uint64(DefaultMaxDimension), gain.MaxDimension())

	tests := []struct {
		dims []int
		want bool
	}{
		{nil, true},
		{[]int{4, 8}, true},
		{[]int{MaxElements}, true},
		{[]int{MaxElements, 2}, false},
		{[]int{DefaultMaxDimension, DefaultMaxDimension}, false},
		{[]int{0}, false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, WithinElementLimit(tt.dims), "dims %v", tt.dims)
	}

	_, err = Parse([]byte(`
name: bad-max
uuid: 6ba7b810-9dad-11d1-80b4-00c04fd430c8
op_modes: [NRT]
time_resolution:
  default: {numerator: 1, denominator: 100}
variables:
  - name: gain
    vr: 1
    causality: parameter
    type: uint8
    max: 3
`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "max only applies to structural parameters")
}

func TestLoad_NotFound(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not found")
}

func TestMarshal_RoundTrip(t *testing.T) {
	d, err := Load("testdata/slave.yaml")
	require.NoError(t, err)

	out, err := Marshal(d)
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "copy.yaml")
	require.NoError(t, os.WriteFile(path, out, 0o644))

	d2, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, d.Variables[1].Name, d2.Variables[1].Name)
	assert.Equal(t, d.SlaveUUID(), d2.SlaveUUID())
}
