package dcplog

import (
	"encoding/binary"
	"fmt"
	"strings"
	"time"

	"avaneesh/dcp-go/pkg/pdu"
	"avaneesh/dcp-go/pkg/types"
	"avaneesh/dcp-go/pkg/value"
)

// Entry is one log entry as carried by NTF_log and RSP_log_ack
type Entry struct {
	Time       types.DcpTime
	TemplateID uint8
	Args       []byte
}

// NewEntry packs args according to the template and stamps the entry with now
func (r *Registry) NewEntry(id uint8, now time.Time, args ...interface{}) (Entry, error) {
	t, ok := r.Lookup(id)
	if !ok {
		return Entry{}, fmt.Errorf("%w: %d", ErrUnknownTemplate, id)
	}
	packed, err := t.EncodeArgs(args...)
	if err != nil {
		return Entry{}, err
	}
	return Entry{Time: types.FromTime(now), TemplateID: id, Args: packed}, nil
}

// EncodeArgs packs args in template order
func (t Template) EncodeArgs(args ...interface{}) ([]byte, error) {
	if len(args) != len(t.Args) {
		return nil, fmt.Errorf("%w: template %d wants %d, got %d", ErrArgCount, t.ID, len(t.Args), len(args))
	}
	var out []byte
	for i, dt := range t.Args {
		v := value.MustNew(dt, nil, 0)
		if err := setScalar(v, args[i]); err != nil {
			return nil, fmt.Errorf("template %d arg %d: %w", t.ID, i, err)
		}
		out = v.AppendTo(out)
	}
	return out, nil
}

// DecodeArgs unpacks the arguments of one entry and returns the bytes consumed
func (t Template) DecodeArgs(data []byte) ([]*value.MultiDimValue, int, error) {
	vals := make([]*value.MultiDimValue, 0, len(t.Args))
	off := 0
	for i, dt := range t.Args {
		v := value.MustNew(dt, nil, 0)
		n, err := v.Update(data[off:], dt)
		if err != nil {
			return nil, 0, fmt.Errorf("template %d arg %d: %w", t.ID, i, err)
		}
		off += n
		vals = append(vals, v)
	}
	return vals, off, nil
}

// Format renders the message, replacing each %<type> placeholder in order
func (t Template) Format(args []byte) (string, error) {
	vals, _, err := t.DecodeArgs(args)
	if err != nil {
		return "", err
	}
	msg := t.Message
	var b strings.Builder
	for i, v := range vals {
		ph := "%" + t.Args[i].String()
		idx := strings.Index(msg, ph)
		if idx < 0 {
			break
		}
		b.WriteString(msg[:idx])
		b.WriteString(v.FormatAt(0))
		msg = msg[idx+len(ph):]
	}
	b.WriteString(msg)
	return b.String(), nil
}

// Format renders e with its template
func (r *Registry) Format(e Entry) (string, error) {
	t, ok := r.Lookup(e.TemplateID)
	if !ok {
		return "", fmt.Errorf("%w: %d", ErrUnknownTemplate, e.TemplateID)
	}
	return t.Format(e.Args)
}

// Notification wraps e in an NTF_log PDU
func (e Entry) Notification(sender uint8) *pdu.NtfLog {
	return &pdu.NtfLog{Sender: sender, Time: e.Time, TemplateID: e.TemplateID, Args: e.Args}
}

// FromNotification extracts the entry of an NTF_log PDU
func FromNotification(n *pdu.NtfLog) Entry {
	return Entry{Time: n.Time, TemplateID: n.TemplateID, Args: n.Args}
}

// EncodeEntries packs entries into the body of RSP_log_ack
func EncodeEntries(entries []Entry) []byte {
	var out []byte
	for _, e := range entries {
		out = pdu.EncodeLogEntry(out, e.Time, e.TemplateID, e.Args)
	}
	return out
}

// ParseEntries splits the body of RSP_log_ack. Argument sizes come from the
// templates, so every template id must be known to r.
func (r *Registry) ParseEntries(data []byte) ([]Entry, error) {
	var entries []Entry
	for len(data) > 0 {
		if len(data) < pdu.LogEntryHeaderSize {
			return entries, fmt.Errorf("dcplog: truncated log entry header (%d bytes)", len(data))
		}
		ts := int64(binary.LittleEndian.Uint64(data[:8]))
		id := data[8]
		t, ok := r.Lookup(id)
		if !ok {
			return entries, fmt.Errorf("%w: %d", ErrUnknownTemplate, id)
		}
		_, n, err := t.DecodeArgs(data[pdu.LogEntryHeaderSize:])
		if err != nil {
			return entries, err
		}
		end := pdu.LogEntryHeaderSize + n
		entries = append(entries, Entry{
			Time:       types.DcpTime(ts),
			TemplateID: id,
			Args:       append([]byte(nil), data[pdu.LogEntryHeaderSize:end]...),
		})
		data = data[end:]
	}
	return entries, nil
}

func setScalar(v *value.MultiDimValue, arg interface{}) error {
	dt := v.DataType()
	switch x := arg.(type) {
	case string:
		if dt == types.TypeString {
			return v.SetStringAt(0, x)
		}
	case []byte:
		if dt.IsVariableLength() {
			return v.SetBytesAt(0, x)
		}
	case float32:
		if dt.IsFloat() {
			return v.SetFloat64At(0, float64(x))
		}
	case float64:
		if dt.IsFloat() {
			return v.SetFloat64At(0, x)
		}
	default:
		if i, ok := asInt64(arg); ok {
			switch {
			case dt.IsUnsigned():
				return v.SetUint64At(0, uint64(i))
			case dt.IsSigned():
				return v.SetInt64At(0, i)
			case dt.IsFloat():
				return v.SetFloat64At(0, float64(i))
			}
		}
	}
	return fmt.Errorf("%w: %T for %s", ErrArgType, arg, dt)
}

func asInt64(arg interface{}) (int64, bool) {
	switch x := arg.(type) {
	case int:
		return int64(x), true
	case int8:
		return int64(x), true
	case int16:
		return int64(x), true
	case int32:
		return int64(x), true
	case int64:
		return x, true
	case uint:
		return int64(x), true
	case uint8:
		return int64(x), true
	case uint16:
		return int64(x), true
	case uint32:
		return int64(x), true
	case uint64:
		return int64(x), true
	}
	return 0, false
}
