package master

import (
	"fmt"
	"time"

	uuid "github.com/satori/go.uuid"

	"avaneesh/dcp-go/pkg/pdu"
	"avaneesh/dcp-go/pkg/seq"
	"avaneesh/dcp-go/pkg/types"
)

// sendControl assigns the next pdu_seq_id of dcpID to p, records it in the
// session and sends it. It returns the pdu_seq_id used.
func (m *Master) sendControl(dcpID uint8, p pdu.PDU) (uint16, error) {
	m.txMu.Lock()
	defer m.txMu.Unlock()
	return m.sendControlLocked(dcpID, p)
}

// sendControlLocked is sendControl for callers holding txMu but not mu
func (m *Master) sendControlLocked(dcpID uint8, p pdu.PDU) (uint16, error) {
	m.mu.Lock()
	sess, ok := m.sessions[dcpID]
	if !ok {
		m.mu.Unlock()
		return 0, fmt.Errorf("%w: %d", ErrUnknownSlave, dcpID)
	}
	seqID := m.tracker.NextOutbound(seq.ControlChannel(dcpID))
	pdu.SetControlHeader(p, seqID, dcpID)
	sess.sent(p.Type(), seqID)
	if sess.burst != nil {
		sess.burst.track(p.Type(), seqID)
	}
	m.mu.Unlock()

	if err := m.driver.Send(p); err != nil {
		m.mu.Lock()
		delete(sess.requests, seqID)
		m.mu.Unlock()
		return seqID, fmt.Errorf("master %s: send %s to slave %d: %w", m.config.ID, p.Type(), dcpID, err)
	}
	m.logger.Debug("Master %s: sent %s", m.config.ID, pdu.String(p))
	return seqID, nil
}

// State transition commands

// Register asks slave dcpID to leave ALIVE in opMode
func (m *Master) Register(dcpID uint8, slaveUUID uuid.UUID, opMode types.OpMode, major, minor uint8) (uint16, error) {
	return m.sendControl(dcpID, &pdu.StcRegister{
		State:        types.StateAlive,
		SlaveUUID:    slaveUUID,
		OpMode:       opMode,
		MajorVersion: major,
		MinorVersion: minor,
	})
}

// Deregister returns slave dcpID, currently in state, to ALIVE
func (m *Master) Deregister(dcpID uint8, state types.DcpState) (uint16, error) {
	return m.sendControl(dcpID, &pdu.StcDeregister{State: state})
}

// Prepare moves slave dcpID from CONFIGURATION to PREPARING
func (m *Master) Prepare(dcpID uint8) (uint16, error) {
	return m.sendControl(dcpID, &pdu.StcPrepare{State: types.StateConfiguration})
}

// Configure moves slave dcpID from PREPARED to CONFIGURING
func (m *Master) Configure(dcpID uint8) (uint16, error) {
	return m.sendControl(dcpID, &pdu.StcConfigure{State: types.StatePrepared})
}

// Initialize moves slave dcpID from CONFIGURED to INITIALIZING
func (m *Master) Initialize(dcpID uint8) (uint16, error) {
	return m.sendControl(dcpID, &pdu.StcInitialize{State: types.StateConfigured})
}

// Run starts slave dcpID, currently in INITIALIZED or SYNCHRONIZED, at
// start. A zero start runs immediately.
func (m *Master) Run(dcpID uint8, state types.DcpState, start time.Time) (uint16, error) {
	var at types.DcpTime
	if !start.IsZero() {
		at = types.FromTime(start)
	}
	return m.sendControl(dcpID, &pdu.StcRun{State: state, StartTime: at})
}

// DoStep advances non real-time slave dcpID by steps
func (m *Master) DoStep(dcpID uint8, steps uint32) (uint16, error) {
	return m.sendControl(dcpID, &pdu.StcDoStep{State: types.StateRunning, Steps: steps})
}

// SendOutputs asks slave dcpID, in INITIALIZED or COMPUTED, to send its outputs
func (m *Master) SendOutputs(dcpID uint8, state types.DcpState) (uint16, error) {
	return m.sendControl(dcpID, &pdu.StcSendOutputs{State: state})
}

// StopSlave sends STC_stop to slave dcpID, currently in state
func (m *Master) StopSlave(dcpID uint8, state types.DcpState) (uint16, error) {
	return m.sendControl(dcpID, &pdu.StcStop{State: state})
}

// Reset returns slave dcpID from STOPPED or ERROR_RESOLVED to CONFIGURATION
func (m *Master) Reset(dcpID uint8, state types.DcpState) (uint16, error) {
	return m.sendControl(dcpID, &pdu.StcReset{State: state})
}

// Information requests

// InfState requests the state of slave dcpID
func (m *Master) InfState(dcpID uint8) (uint16, error) {
	return m.sendControl(dcpID, &pdu.InfState{})
}

// InfError requests the last error of slave dcpID
func (m *Master) InfError(dcpID uint8) (uint16, error) {
	return m.sendControl(dcpID, &pdu.InfError{})
}

// InfLog requests up to maxNum buffered log entries of category
func (m *Master) InfLog(dcpID uint8, category types.LogCategory, maxNum uint8) (uint16, error) {
	return m.sendControl(dcpID, &pdu.InfLog{LogCategory: category, LogMaxNum: maxNum})
}

// Configuration requests

// CfgTimeRes sets the time resolution of slave dcpID to num/den seconds
func (m *Master) CfgTimeRes(dcpID uint8, num, den uint32) (uint16, error) {
	return m.sendControl(dcpID, &pdu.CfgTimeRes{Numerator: num, Denominator: den})
}

// CfgSteps sets the steps between two outputs of dataID
func (m *Master) CfgSteps(dcpID uint8, dataID uint16, steps uint32) (uint16, error) {
	return m.sendControl(dcpID, &pdu.CfgSteps{DataID: dataID, Steps: steps})
}

// CfgInput maps position pos of dataID to input vr
func (m *Master) CfgInput(dcpID uint8, dataID, pos uint16, vr uint64, source types.DataType) (uint16, error) {
	return m.sendControl(dcpID, &pdu.CfgInput{DataID: dataID, Pos: pos, TargetVR: vr, SourceDataType: source})
}

// CfgOutput maps position pos of dataID to output vr
func (m *Master) CfgOutput(dcpID uint8, dataID, pos uint16, vr uint64) (uint16, error) {
	return m.sendControl(dcpID, &pdu.CfgOutput{DataID: dataID, Pos: pos, SourceVR: vr})
}

// CfgClear drops the configuration of slave dcpID
func (m *Master) CfgClear(dcpID uint8) (uint16, error) {
	return m.sendControl(dcpID, &pdu.CfgClear{})
}

// CfgTargetNetworkInformation tells slave dcpID where to send output dataID
func (m *Master) CfgTargetNetworkInformation(dcpID uint8, dataID uint16, addr pdu.NetworkAddress) (uint16, error) {
	return m.sendControl(dcpID, &pdu.CfgTargetNetworkInformation{DataID: dataID, Address: addr})
}

// CfgSourceNetworkInformation tells slave dcpID where input dataID arrives
func (m *Master) CfgSourceNetworkInformation(dcpID uint8, dataID uint16, addr pdu.NetworkAddress) (uint16, error) {
	return m.sendControl(dcpID, &pdu.CfgSourceNetworkInformation{DataID: dataID, Address: addr})
}

// CfgParameter writes value, encoded as source, into parameter vr
func (m *Master) CfgParameter(dcpID uint8, vr uint64, source types.DataType, value []byte) (uint16, error) {
	return m.sendControl(dcpID, &pdu.CfgParameter{ParameterVR: vr, SourceDataType: source, Configuration: value})
}

// CfgTunableParameter maps position pos of paramID to parameter vr
func (m *Master) CfgTunableParameter(dcpID uint8, paramID, pos uint16, vr uint64, source types.DataType) (uint16, error) {
	return m.sendControl(dcpID, &pdu.CfgTunableParameter{ParamID: paramID, Pos: pos, ParameterVR: vr, SourceDataType: source})
}

// CfgParamNetworkInformation tells slave dcpID where parameters paramID arrive
func (m *Master) CfgParamNetworkInformation(dcpID uint8, paramID uint16, addr pdu.NetworkAddress) (uint16, error) {
	return m.sendControl(dcpID, &pdu.CfgParamNetworkInformation{ParamID: paramID, Address: addr})
}

// CfgLogging sets level and mode of a log category of slave dcpID
func (m *Master) CfgLogging(dcpID uint8, category types.LogCategory, level types.LogLevel, mode types.LogMode) (uint16, error) {
	return m.sendControl(dcpID, &pdu.CfgLogging{LogCategory: category, LogLevel: level, LogMode: mode})
}

// CfgScope sets the scope of dataID
func (m *Master) CfgScope(dcpID uint8, dataID uint16, scope types.Scope) (uint16, error) {
	return m.sendControl(dcpID, &pdu.CfgScope{DataID: dataID, Scope: scope})
}

// Data

// SendData sends payload as the next DAT_input_output of dataID
func (m *Master) SendData(dataID uint16, payload []byte) error {
	p := &pdu.DatInputOutput{
		SeqID:   m.tracker.NextOutbound(seq.DataChannel(dataID)),
		DataID:  dataID,
		Payload: payload,
	}
	if err := m.driver.Send(p); err != nil {
		return fmt.Errorf("master %s: send data %d: %w", m.config.ID, dataID, err)
	}
	return nil
}

// SendParameter sends payload as the next DAT_parameter of paramID
func (m *Master) SendParameter(paramID uint16, payload []byte) error {
	p := &pdu.DatParameter{
		SeqID:   m.tracker.NextOutbound(seq.ParamChannel(paramID)),
		ParamID: paramID,
		Payload: payload,
	}
	if err := m.driver.Send(p); err != nil {
		return fmt.Errorf("master %s: send parameter %d: %w", m.config.ID, paramID, err)
	}
	return nil
}

// SetDataTarget sets where SendData delivers dataID
func (m *Master) SetDataTarget(dataID uint16, addr pdu.NetworkAddress) {
	m.driver.SetTargetNetworkInformation(dataID, addr)
}

// SetDataSource sets where outputs dataID sent to the master arrive
func (m *Master) SetDataSource(dataID uint16, addr pdu.NetworkAddress) {
	m.driver.SetSourceNetworkInformation(dataID, addr)
}

// SetParameterTarget sets where SendParameter delivers paramID of dcpID
func (m *Master) SetParameterTarget(dcpID uint8, paramID uint16, addr pdu.NetworkAddress) {
	m.driver.SetTargetParamNetworkInformation(dcpID, paramID, addr)
}
