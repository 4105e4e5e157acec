package pdu

import "avaneesh/dcp-go/pkg/types"

// LogEntryHeaderSize is the size of time and template_id preceding the
// arguments of a log entry in RSP_log_ack
const LogEntryHeaderSize = 9

// EncodeLogEntry appends one RSP_log_ack entry to b.
// The size of args is implied by the template, so entries can only be split
// again with knowledge of the template table.
func EncodeLogEntry(b []byte, t types.DcpTime, templateID uint8, args []byte) []byte {
	b = appendU64(b, uint64(t))
	b = append(b, templateID)
	return append(b, args...)
}
