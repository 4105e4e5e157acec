package dcplog

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"avaneesh/dcp-go/pkg/description"
	"avaneesh/dcp-go/pkg/types"
)

func testRegistry(t *testing.T) *Registry {
	t.Helper()
	r := NewRegistry()
	require.NoError(t, r.Register(Template{
		ID: 1, Category: 1, Level: types.LogLevelWarning,
		Message: "temperature %float64 exceeds %float64",
		Args:    []types.DataType{types.TypeFloat64, types.TypeFloat64},
	}))
	require.NoError(t, r.Register(Template{
		ID: 2, Category: 2, Level: types.LogLevelInfo,
		Message: "step %uint32 done by %string",
		Args:    []types.DataType{types.TypeUint32, types.TypeString},
	}))
	return r
}

func TestRegistry_Register(t *testing.T) {
	r := testRegistry(t)
	assert.Equal(t, 2, r.Len())
	assert.ErrorIs(t, r.Register(Template{ID: 1}), ErrDuplicateTemplate)

	tmpl, ok := r.Lookup(2)
	require.True(t, ok)
	assert.Equal(t, types.LogCategory(2), tmpl.Category)
	_, ok = r.Lookup(9)
	assert.False(t, ok)

	ids := []uint8{}
	for _, tt := range r.Templates() {
		ids = append(ids, tt.ID)
	}
	assert.Equal(t, []uint8{1, 2}, ids)
}

func TestFromDescription(t *testing.T) {
	d, err := description.Load("../description/testdata/slave.yaml")
	require.NoError(t, err)

	r, err := FromDescription(d)
	require.NoError(t, err)
	tmpl, ok := r.Lookup(1)
	require.True(t, ok)
	assert.Equal(t, types.LogLevelWarning, tmpl.Level)
	assert.Equal(t, []types.DataType{types.TypeFloat64, types.TypeFloat64}, tmpl.Args)
}

func TestEntry_Format(t *testing.T) {
	r := testRegistry(t)

	tests := []struct {
		name string
		id   uint8
		args []interface{}
		want string
	}{
		{"floats", 1, []interface{}{81.5, 80.0}, "temperature 81.5 exceeds 80"},
		{"int and string", 2, []interface{}{42, "slave-1"}, "step 42 done by slave-1"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e, err := r.NewEntry(tt.id, time.Unix(1700000000, 0), tt.args...)
			require.NoError(t, err)
			assert.Equal(t, types.DcpTime(1700000000), e.Time)

			got, err := r.Format(e)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestEntry_Errors(t *testing.T) {
	r := testRegistry(t)

	_, err := r.NewEntry(9, time.Now())
	assert.ErrorIs(t, err, ErrUnknownTemplate)

	_, err = r.NewEntry(1, time.Now(), 1.0)
	assert.ErrorIs(t, err, ErrArgCount)

	_, err = r.NewEntry(2, time.Now(), "x", "y")
	assert.ErrorIs(t, err, ErrArgType)
}

func TestParseEntries(t *testing.T) {
	r := testRegistry(t)
	e1, err := r.NewEntry(1, time.Unix(10, 0), 1.5, 2.5)
	require.NoError(t, err)
	e2, err := r.NewEntry(2, time.Unix(11, 0), uint32(7), "abc")
	require.NoError(t, err)

	body := EncodeEntries([]Entry{e1, e2})
	got, err := r.ParseEntries(body)
	require.NoError(t, err)
	assert.Equal(t, []Entry{e1, e2}, got)

	_, err = r.ParseEntries(body[:5])
	assert.Error(t, err)

	_, err = NewRegistry().ParseEntries(body)
	assert.ErrorIs(t, err, ErrUnknownTemplate)
}

func TestNotification(t *testing.T) {
	r := testRegistry(t)
	e, err := r.NewEntry(1, time.Unix(10, 0), 1.0, 2.0)
	require.NoError(t, err)

	n := e.Notification(3)
	assert.Equal(t, uint8(3), n.Sender)
	assert.Equal(t, e, FromNotification(n))
}

func TestBuffer(t *testing.T) {
	b := NewBuffer(2)
	b.Add(1, Entry{TemplateID: 1, Time: 1})
	b.Add(2, Entry{TemplateID: 2, Time: 2})
	b.Add(1, Entry{TemplateID: 1, Time: 3})
	b.Add(1, Entry{TemplateID: 1, Time: 4}) // drops Time 1

	assert.Equal(t, 2, b.Count(1))
	assert.Equal(t, 3, b.Count(types.LogCategoryAll))

	all := b.Pop(types.LogCategoryAll, 2)
	require.Len(t, all, 2)
	assert.Equal(t, types.DcpTime(2), all[0].Time)
	assert.Equal(t, types.DcpTime(3), all[1].Time)

	assert.Empty(t, b.Pop(2, 5))
	rest := b.Pop(1, 5)
	require.Len(t, rest, 1)
	assert.Equal(t, types.DcpTime(4), rest[0].Time)

	b.Add(3, Entry{})
	b.Clear()
	assert.Equal(t, 0, b.Count(types.LogCategoryAll))
}
