package types

import "time"

// DcpTime is a signed count of seconds since Unix epoch (Jan 1, 1970 00:00:00 UTC).
// It is the format of STC_run start_time and NTF_log time.
// Zero in STC_run means "start as soon as possible".
type DcpTime int64

// Now returns the current time as DcpTime
func Now() DcpTime {
	return DcpTime(time.Now().Unix())
}

// FromTime converts a Go time.Time to DcpTime
func FromTime(t time.Time) DcpTime {
	return DcpTime(t.Unix())
}

// ToTime converts DcpTime to Go time.Time
func (t DcpTime) ToTime() time.Time {
	return time.Unix(int64(t), 0)
}

// IsImmediate reports whether t requests an immediate start
func (t DcpTime) IsImmediate() bool {
	return t == 0
}

// Resolution is the duration of one simulation step as a fraction of a second
type Resolution struct {
	Numerator   uint32
	Denominator uint32
}

// Valid returns true if both numerator and denominator are non-zero
func (r Resolution) Valid() bool {
	return r.Numerator != 0 && r.Denominator != 0
}

// Duration returns the wall-clock duration of steps steps at this resolution
func (r Resolution) Duration(steps uint32) time.Duration {
	if r.Denominator == 0 {
		return 0
	}
	return time.Duration(uint64(r.Numerator) * uint64(steps) * uint64(time.Second) / uint64(r.Denominator))
}

// Seconds returns the step length in seconds
func (r Resolution) Seconds() float64 {
	if r.Denominator == 0 {
		return 0
	}
	return float64(r.Numerator) / float64(r.Denominator)
}
