package pdu

import (
	"errors"

	"avaneesh/dcp-go/pkg/types"
)

// Frame sizes
const (
	LengthSize   = 4          // Size of the little-endian length prefix
	MinFrameSize = 5          // Length prefix plus type_id
	MaxPduSize   = 0xFFFFFFFF // Largest value the length prefix can carry
)

// sizeRule describes the byte size of one PDU variant, counted from type_id
// to the end of the frame (the length prefix is excluded).
type sizeRule struct {
	size     int
	variable bool // size is a minimum
}

var sizeRules = map[types.PduType]sizeRule{
	types.PduStcRegister:                 {24, false},
	types.PduStcDeregister:               {5, false},
	types.PduStcPrepare:                  {5, false},
	types.PduStcConfigure:                {5, false},
	types.PduStcInitialize:               {5, false},
	types.PduStcRun:                      {13, false},
	types.PduStcDoStep:                   {9, false},
	types.PduStcSendOutputs:              {5, false},
	types.PduStcStop:                     {5, false},
	types.PduStcReset:                    {5, false},
	types.PduCfgTimeRes:                  {12, false},
	types.PduCfgSteps:                    {10, false},
	types.PduCfgInput:                    {17, false},
	types.PduCfgOutput:                   {16, false},
	types.PduCfgClear:                    {4, false},
	types.PduCfgTargetNetworkInformation: {7, true},
	types.PduCfgSourceNetworkInformation: {7, true},
	types.PduCfgParameter:                {13, true},
	types.PduCfgTunableParameter:         {17, false},
	types.PduCfgParamNetworkInformation:  {7, true},
	types.PduCfgLogging:                  {7, false},
	types.PduCfgScope:                    {7, false},
	types.PduInfState:                    {4, false},
	types.PduInfError:                    {4, false},
	types.PduInfLog:                      {6, false},
	types.PduRspAck:                      {4, false},
	types.PduRspNack:                     {6, false},
	types.PduRspStateAck:                 {5, false},
	types.PduRspErrorAck:                 {6, false},
	types.PduRspLogAck:                   {4, true},
	types.PduNtfStateChanged:             {3, false},
	types.PduNtfLog:                      {11, true},
	types.PduDatInputOutput:              {5, true},
	types.PduDatParameter:                {5, true},
}

// ipv4TailSize is the size of port + IPv4 address in network information PDUs
const ipv4TailSize = 6

// MinSize returns the minimum size of a PDU of type t, counted from type_id.
// Unknown types report MinFrameSize-LengthSize.
func MinSize(t types.PduType) int {
	if r, ok := sizeRules[t]; ok {
		return r.size
	}
	return MinFrameSize - LengthSize
}

// IsVariableSize reports whether PDUs of type t carry a variable tail
func IsVariableSize(t types.PduType) bool {
	return sizeRules[t].variable
}

// ErrFrameTooShort is returned for input that cannot hold a length prefix and type_id
var ErrFrameTooShort = errors.New("pdu: frame shorter than length prefix and type_id")
