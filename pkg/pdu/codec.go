package pdu

import (
	"encoding/binary"

	uuid "github.com/satori/go.uuid"

	"avaneesh/dcp-go/pkg/types"
)

// Encode serializes p into a complete frame including the length prefix
func Encode(p PDU) []byte {
	b := make([]byte, LengthSize, LengthSize+MinSize(p.Type())+16)
	b = append(b, byte(p.Type()))
	b = p.appendBody(b)
	binary.LittleEndian.PutUint32(b[0:LengthSize], uint32(len(b)-LengthSize))
	return b
}

// Decode parses one complete frame. The declared length must match the
// slice exactly. Unknown type ids decode to *Raw.
func Decode(data []byte) (PDU, error) {
	if len(data) < MinFrameSize {
		return nil, ErrFrameTooShort
	}

	length := int(binary.LittleEndian.Uint32(data[0:LengthSize]))
	typeID := types.PduType(data[LengthSize])
	received := len(data) - LengthSize
	if length != received {
		return nil, sizeMismatch(typeID, length, received)
	}

	rule, known := sizeRules[typeID]
	if !known {
		return &Raw{TypeID: typeID, Body: cloneBytes(data[MinFrameSize:])}, nil
	}
	if received < rule.size || (!rule.variable && received != rule.size) {
		return nil, sizeMismatch(typeID, rule.size, received)
	}

	p := newPDU(typeID)
	r := &reader{buf: data[MinFrameSize:]}
	if err := p.decodeBody(r); err != nil {
		return nil, err
	}
	return p, nil
}

// PeekLength returns the total frame size announced by the length prefix
// at the start of data, or 0 if fewer than LengthSize bytes are available.
func PeekLength(data []byte) int {
	if len(data) < LengthSize {
		return 0
	}
	return int(binary.LittleEndian.Uint32(data[0:LengthSize])) + LengthSize
}

func newPDU(t types.PduType) PDU {
	switch t {
	case types.PduStcRegister:
		return &StcRegister{}
	case types.PduStcDeregister:
		return &StcDeregister{}
	case types.PduStcPrepare:
		return &StcPrepare{}
	case types.PduStcConfigure:
		return &StcConfigure{}
	case types.PduStcInitialize:
		return &StcInitialize{}
	case types.PduStcRun:
		return &StcRun{}
	case types.PduStcDoStep:
		return &StcDoStep{}
	case types.PduStcSendOutputs:
		return &StcSendOutputs{}
	case types.PduStcStop:
		return &StcStop{}
	case types.PduStcReset:
		return &StcReset{}
	case types.PduCfgTimeRes:
		return &CfgTimeRes{}
	case types.PduCfgSteps:
		return &CfgSteps{}
	case types.PduCfgInput:
		return &CfgInput{}
	case types.PduCfgOutput:
		return &CfgOutput{}
	case types.PduCfgClear:
		return &CfgClear{}
	case types.PduCfgTargetNetworkInformation:
		return &CfgTargetNetworkInformation{}
	case types.PduCfgSourceNetworkInformation:
		return &CfgSourceNetworkInformation{}
	case types.PduCfgParameter:
		return &CfgParameter{}
	case types.PduCfgTunableParameter:
		return &CfgTunableParameter{}
	case types.PduCfgParamNetworkInformation:
		return &CfgParamNetworkInformation{}
	case types.PduCfgLogging:
		return &CfgLogging{}
	case types.PduCfgScope:
		return &CfgScope{}
	case types.PduInfState:
		return &InfState{}
	case types.PduInfError:
		return &InfError{}
	case types.PduInfLog:
		return &InfLog{}
	case types.PduRspAck:
		return &RspAck{}
	case types.PduRspNack:
		return &RspNack{}
	case types.PduRspStateAck:
		return &RspStateAck{}
	case types.PduRspErrorAck:
		return &RspErrorAck{}
	case types.PduRspLogAck:
		return &RspLogAck{}
	case types.PduNtfStateChanged:
		return &NtfStateChanged{}
	case types.PduNtfLog:
		return &NtfLog{}
	case types.PduDatInputOutput:
		return &DatInputOutput{}
	case types.PduDatParameter:
		return &DatParameter{}
	default:
		return &Raw{TypeID: t}
	}
}

// reader walks a body whose size has already been validated
type reader struct {
	buf []byte
	off int
}

func (r *reader) u8() uint8 {
	v := r.buf[r.off]
	r.off++
	return v
}

func (r *reader) u16() uint16 {
	v := binary.LittleEndian.Uint16(r.buf[r.off:])
	r.off += 2
	return v
}

func (r *reader) u32() uint32 {
	v := binary.LittleEndian.Uint32(r.buf[r.off:])
	r.off += 4
	return v
}

func (r *reader) u64() uint64 {
	v := binary.LittleEndian.Uint64(r.buf[r.off:])
	r.off += 8
	return v
}

func (r *reader) i64() int64 {
	return int64(r.u64())
}

func (r *reader) uuid() uuid.UUID {
	var u uuid.UUID
	copy(u[:], r.buf[r.off:r.off+16])
	r.off += 16
	return u
}

func (r *reader) rest() []byte {
	v := cloneBytes(r.buf[r.off:])
	r.off = len(r.buf)
	return v
}

func (r *reader) remaining() int {
	return len(r.buf) - r.off
}

func appendU16(b []byte, v uint16) []byte { return binary.LittleEndian.AppendUint16(b, v) }
func appendU32(b []byte, v uint32) []byte { return binary.LittleEndian.AppendUint32(b, v) }
func appendU64(b []byte, v uint64) []byte { return binary.LittleEndian.AppendUint64(b, v) }

func cloneBytes(b []byte) []byte {
	if len(b) == 0 {
		return nil
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out
}

// Network address tail

func (a NetworkAddress) appendTo(b []byte) []byte {
	b = append(b, byte(a.Protocol))
	if a.Protocol.HasIPv4Address() {
		b = appendU16(b, a.Port)
		return appendU32(b, a.IP)
	}
	return append(b, a.Opaque...)
}

func decodeNetworkAddress(r *reader, t types.PduType) (NetworkAddress, error) {
	a := NetworkAddress{Protocol: types.TransportProtocol(r.u8())}
	if a.Protocol.HasIPv4Address() {
		if r.remaining() != ipv4TailSize {
			head := MinSize(t)
			return a, sizeMismatch(t, head+ipv4TailSize, head+r.remaining())
		}
		a.Port = r.u16()
		a.IP = r.u32()
		return a, nil
	}
	a.Opaque = r.rest()
	return a, nil
}

// Body codecs

func (p *StcRegister) appendBody(b []byte) []byte {
	b = appendU16(b, p.SeqID)
	b = append(b, p.Receiver, byte(p.State))
	b = append(b, p.SlaveUUID[:]...)
	return append(b, byte(p.OpMode), p.MajorVersion, p.MinorVersion)
}

func (p *StcRegister) decodeBody(r *reader) error {
	p.SeqID = r.u16()
	p.Receiver = r.u8()
	p.State = types.DcpState(r.u8())
	p.SlaveUUID = r.uuid()
	p.OpMode = types.OpMode(r.u8())
	p.MajorVersion = r.u8()
	p.MinorVersion = r.u8()
	return nil
}

func appendStcBasic(b []byte, seq uint16, receiver uint8, state types.DcpState) []byte {
	b = appendU16(b, seq)
	return append(b, receiver, byte(state))
}

func decodeStcBasic(r *reader) (uint16, uint8, types.DcpState) {
	return r.u16(), r.u8(), types.DcpState(r.u8())
}

func (p *StcDeregister) appendBody(b []byte) []byte {
	return appendStcBasic(b, p.SeqID, p.Receiver, p.State)
}

func (p *StcDeregister) decodeBody(r *reader) error {
	p.SeqID, p.Receiver, p.State = decodeStcBasic(r)
	return nil
}

func (p *StcPrepare) appendBody(b []byte) []byte {
	return appendStcBasic(b, p.SeqID, p.Receiver, p.State)
}

func (p *StcPrepare) decodeBody(r *reader) error {
	p.SeqID, p.Receiver, p.State = decodeStcBasic(r)
	return nil
}

func (p *StcConfigure) appendBody(b []byte) []byte {
	return appendStcBasic(b, p.SeqID, p.Receiver, p.State)
}

func (p *StcConfigure) decodeBody(r *reader) error {
	p.SeqID, p.Receiver, p.State = decodeStcBasic(r)
	return nil
}

func (p *StcInitialize) appendBody(b []byte) []byte {
	return appendStcBasic(b, p.SeqID, p.Receiver, p.State)
}

func (p *StcInitialize) decodeBody(r *reader) error {
	p.SeqID, p.Receiver, p.State = decodeStcBasic(r)
	return nil
}

func (p *StcRun) appendBody(b []byte) []byte {
	b = appendStcBasic(b, p.SeqID, p.Receiver, p.State)
	return appendU64(b, uint64(p.StartTime))
}

func (p *StcRun) decodeBody(r *reader) error {
	p.SeqID, p.Receiver, p.State = decodeStcBasic(r)
	p.StartTime = types.DcpTime(r.i64())
	return nil
}

func (p *StcDoStep) appendBody(b []byte) []byte {
	b = appendStcBasic(b, p.SeqID, p.Receiver, p.State)
	return appendU32(b, p.Steps)
}

func (p *StcDoStep) decodeBody(r *reader) error {
	p.SeqID, p.Receiver, p.State = decodeStcBasic(r)
	p.Steps = r.u32()
	return nil
}

func (p *StcSendOutputs) appendBody(b []byte) []byte {
	return appendStcBasic(b, p.SeqID, p.Receiver, p.State)
}

func (p *StcSendOutputs) decodeBody(r *reader) error {
	p.SeqID, p.Receiver, p.State = decodeStcBasic(r)
	return nil
}

func (p *StcStop) appendBody(b []byte) []byte {
	return appendStcBasic(b, p.SeqID, p.Receiver, p.State)
}

func (p *StcStop) decodeBody(r *reader) error {
	p.SeqID, p.Receiver, p.State = decodeStcBasic(r)
	return nil
}

func (p *StcReset) appendBody(b []byte) []byte {
	return appendStcBasic(b, p.SeqID, p.Receiver, p.State)
}

func (p *StcReset) decodeBody(r *reader) error {
	p.SeqID, p.Receiver, p.State = decodeStcBasic(r)
	return nil
}

func (p *CfgTimeRes) appendBody(b []byte) []byte {
	b = appendU16(b, p.SeqID)
	b = append(b, p.Receiver)
	b = appendU32(b, p.Numerator)
	return appendU32(b, p.Denominator)
}

func (p *CfgTimeRes) decodeBody(r *reader) error {
	p.SeqID = r.u16()
	p.Receiver = r.u8()
	p.Numerator = r.u32()
	p.Denominator = r.u32()
	return nil
}

func (p *CfgSteps) appendBody(b []byte) []byte {
	b = appendU16(b, p.SeqID)
	b = append(b, p.Receiver)
	b = appendU16(b, p.DataID)
	return appendU32(b, p.Steps)
}

func (p *CfgSteps) decodeBody(r *reader) error {
	p.SeqID = r.u16()
	p.Receiver = r.u8()
	p.DataID = r.u16()
	p.Steps = r.u32()
	return nil
}

func (p *CfgInput) appendBody(b []byte) []byte {
	b = appendU16(b, p.SeqID)
	b = append(b, p.Receiver)
	b = appendU16(b, p.DataID)
	b = appendU16(b, p.Pos)
	b = appendU64(b, p.TargetVR)
	return append(b, byte(p.SourceDataType))
}

func (p *CfgInput) decodeBody(r *reader) error {
	p.SeqID = r.u16()
	p.Receiver = r.u8()
	p.DataID = r.u16()
	p.Pos = r.u16()
	p.TargetVR = r.u64()
	p.SourceDataType = types.DataType(r.u8())
	return nil
}

func (p *CfgOutput) appendBody(b []byte) []byte {
	b = appendU16(b, p.SeqID)
	b = append(b, p.Receiver)
	b = appendU16(b, p.DataID)
	b = appendU16(b, p.Pos)
	return appendU64(b, p.SourceVR)
}

func (p *CfgOutput) decodeBody(r *reader) error {
	p.SeqID = r.u16()
	p.Receiver = r.u8()
	p.DataID = r.u16()
	p.Pos = r.u16()
	p.SourceVR = r.u64()
	return nil
}

func (p *CfgClear) appendBody(b []byte) []byte {
	b = appendU16(b, p.SeqID)
	return append(b, p.Receiver)
}

func (p *CfgClear) decodeBody(r *reader) error {
	p.SeqID = r.u16()
	p.Receiver = r.u8()
	return nil
}

func (p *CfgTargetNetworkInformation) appendBody(b []byte) []byte {
	b = appendU16(b, p.SeqID)
	b = append(b, p.Receiver)
	b = appendU16(b, p.DataID)
	return p.Address.appendTo(b)
}

func (p *CfgTargetNetworkInformation) decodeBody(r *reader) (err error) {
	p.SeqID = r.u16()
	p.Receiver = r.u8()
	p.DataID = r.u16()
	p.Address, err = decodeNetworkAddress(r, p.Type())
	return err
}

func (p *CfgSourceNetworkInformation) appendBody(b []byte) []byte {
	b = appendU16(b, p.SeqID)
	b = append(b, p.Receiver)
	b = appendU16(b, p.DataID)
	return p.Address.appendTo(b)
}

func (p *CfgSourceNetworkInformation) decodeBody(r *reader) (err error) {
	p.SeqID = r.u16()
	p.Receiver = r.u8()
	p.DataID = r.u16()
	p.Address, err = decodeNetworkAddress(r, p.Type())
	return err
}

func (p *CfgParameter) appendBody(b []byte) []byte {
	b = appendU16(b, p.SeqID)
	b = append(b, p.Receiver)
	b = appendU64(b, p.ParameterVR)
	b = append(b, byte(p.SourceDataType))
	return append(b, p.Configuration...)
}

func (p *CfgParameter) decodeBody(r *reader) error {
	p.SeqID = r.u16()
	p.Receiver = r.u8()
	p.ParameterVR = r.u64()
	p.SourceDataType = types.DataType(r.u8())
	p.Configuration = r.rest()
	return nil
}

func (p *CfgTunableParameter) appendBody(b []byte) []byte {
	b = appendU16(b, p.SeqID)
	b = append(b, p.Receiver)
	b = appendU16(b, p.ParamID)
	b = appendU16(b, p.Pos)
	b = appendU64(b, p.ParameterVR)
	return append(b, byte(p.SourceDataType))
}

func (p *CfgTunableParameter) decodeBody(r *reader) error {
	p.SeqID = r.u16()
	p.Receiver = r.u8()
	p.ParamID = r.u16()
	p.Pos = r.u16()
	p.ParameterVR = r.u64()
	p.SourceDataType = types.DataType(r.u8())
	return nil
}

func (p *CfgParamNetworkInformation) appendBody(b []byte) []byte {
	b = appendU16(b, p.SeqID)
	b = append(b, p.Receiver)
	b = appendU16(b, p.ParamID)
	return p.Address.appendTo(b)
}

func (p *CfgParamNetworkInformation) decodeBody(r *reader) (err error) {
	p.SeqID = r.u16()
	p.Receiver = r.u8()
	p.ParamID = r.u16()
	p.Address, err = decodeNetworkAddress(r, p.Type())
	return err
}

func (p *CfgLogging) appendBody(b []byte) []byte {
	b = appendU16(b, p.SeqID)
	return append(b, p.Receiver, byte(p.LogCategory), byte(p.LogLevel), byte(p.LogMode))
}

func (p *CfgLogging) decodeBody(r *reader) error {
	p.SeqID = r.u16()
	p.Receiver = r.u8()
	p.LogCategory = types.LogCategory(r.u8())
	p.LogLevel = types.LogLevel(r.u8())
	p.LogMode = types.LogMode(r.u8())
	return nil
}

func (p *CfgScope) appendBody(b []byte) []byte {
	b = appendU16(b, p.SeqID)
	b = append(b, p.Receiver)
	b = appendU16(b, p.DataID)
	return append(b, byte(p.Scope))
}

func (p *CfgScope) decodeBody(r *reader) error {
	p.SeqID = r.u16()
	p.Receiver = r.u8()
	p.DataID = r.u16()
	p.Scope = types.Scope(r.u8())
	return nil
}

func (p *InfState) appendBody(b []byte) []byte {
	b = appendU16(b, p.SeqID)
	return append(b, p.Receiver)
}

func (p *InfState) decodeBody(r *reader) error {
	p.SeqID = r.u16()
	p.Receiver = r.u8()
	return nil
}

func (p *InfError) appendBody(b []byte) []byte {
	b = appendU16(b, p.SeqID)
	return append(b, p.Receiver)
}

func (p *InfError) decodeBody(r *reader) error {
	p.SeqID = r.u16()
	p.Receiver = r.u8()
	return nil
}

func (p *InfLog) appendBody(b []byte) []byte {
	b = appendU16(b, p.SeqID)
	return append(b, p.Receiver, byte(p.LogCategory), p.LogMaxNum)
}

func (p *InfLog) decodeBody(r *reader) error {
	p.SeqID = r.u16()
	p.Receiver = r.u8()
	p.LogCategory = types.LogCategory(r.u8())
	p.LogMaxNum = r.u8()
	return nil
}

func (p *RspAck) appendBody(b []byte) []byte {
	b = appendU16(b, p.RespSeqID)
	return append(b, p.Sender)
}

func (p *RspAck) decodeBody(r *reader) error {
	p.RespSeqID = r.u16()
	p.Sender = r.u8()
	return nil
}

func (p *RspNack) appendBody(b []byte) []byte {
	b = appendU16(b, p.RespSeqID)
	b = append(b, p.Sender)
	return appendU16(b, uint16(p.ErrorCode))
}

func (p *RspNack) decodeBody(r *reader) error {
	p.RespSeqID = r.u16()
	p.Sender = r.u8()
	p.ErrorCode = types.DcpError(r.u16())
	return nil
}

func (p *RspStateAck) appendBody(b []byte) []byte {
	b = appendU16(b, p.RespSeqID)
	return append(b, p.Sender, byte(p.State))
}

func (p *RspStateAck) decodeBody(r *reader) error {
	p.RespSeqID = r.u16()
	p.Sender = r.u8()
	p.State = types.DcpState(r.u8())
	return nil
}

func (p *RspErrorAck) appendBody(b []byte) []byte {
	b = appendU16(b, p.RespSeqID)
	b = append(b, p.Sender)
	return appendU16(b, uint16(p.ErrorCode))
}

func (p *RspErrorAck) decodeBody(r *reader) error {
	p.RespSeqID = r.u16()
	p.Sender = r.u8()
	p.ErrorCode = types.DcpError(r.u16())
	return nil
}

func (p *RspLogAck) appendBody(b []byte) []byte {
	b = appendU16(b, p.RespSeqID)
	b = append(b, p.Sender)
	return append(b, p.Entries...)
}

func (p *RspLogAck) decodeBody(r *reader) error {
	p.RespSeqID = r.u16()
	p.Sender = r.u8()
	p.Entries = r.rest()
	return nil
}

func (p *NtfStateChanged) appendBody(b []byte) []byte {
	return append(b, p.Sender, byte(p.State))
}

func (p *NtfStateChanged) decodeBody(r *reader) error {
	p.Sender = r.u8()
	p.State = types.DcpState(r.u8())
	return nil
}

func (p *NtfLog) appendBody(b []byte) []byte {
	b = append(b, p.Sender)
	b = appendU64(b, uint64(p.Time))
	b = append(b, p.TemplateID)
	return append(b, p.Args...)
}

func (p *NtfLog) decodeBody(r *reader) error {
	p.Sender = r.u8()
	p.Time = types.DcpTime(r.i64())
	p.TemplateID = r.u8()
	p.Args = r.rest()
	return nil
}

func (p *DatInputOutput) appendBody(b []byte) []byte {
	b = appendU16(b, p.SeqID)
	b = appendU16(b, p.DataID)
	return append(b, p.Payload...)
}

func (p *DatInputOutput) decodeBody(r *reader) error {
	p.SeqID = r.u16()
	p.DataID = r.u16()
	p.Payload = r.rest()
	return nil
}

func (p *DatParameter) appendBody(b []byte) []byte {
	b = appendU16(b, p.SeqID)
	b = appendU16(b, p.ParamID)
	return append(b, p.Payload...)
}

func (p *DatParameter) decodeBody(r *reader) error {
	p.SeqID = r.u16()
	p.ParamID = r.u16()
	p.Payload = r.rest()
	return nil
}

func (p *Raw) appendBody(b []byte) []byte {
	return append(b, p.Body...)
}

func (p *Raw) decodeBody(r *reader) error {
	p.Body = r.rest()
	return nil
}
