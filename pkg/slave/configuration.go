package slave

import (
	"errors"
	"sort"

	"avaneesh/dcp-go/pkg/description"
	"avaneesh/dcp-go/pkg/pdu"
	"avaneesh/dcp-go/pkg/seq"
	"avaneesh/dcp-go/pkg/types"
	"avaneesh/dcp-go/pkg/value"
)

// mapping is one position of an input data id or a tunable param id
type mapping struct {
	vr     uint64
	source types.DataType
}

// configuration holds everything set by CFG_* PDUs since registration or CFG_clear
type configuration struct {
	timeRes    types.Resolution
	timeResSet bool
	inputs     map[uint16]map[uint16]mapping
	outputs    map[uint16]map[uint16]uint64
	tunables   map[uint16]map[uint16]mapping
	steps      map[uint16]uint32
	scopes     map[uint16]types.Scope
	sources    map[uint16]pdu.NetworkAddress
	targets    map[uint16]pdu.NetworkAddress
	params     map[uint16]pdu.NetworkAddress
}

func newConfiguration() *configuration {
	return &configuration{
		inputs:   make(map[uint16]map[uint16]mapping),
		outputs:  make(map[uint16]map[uint16]uint64),
		tunables: make(map[uint16]map[uint16]mapping),
		steps:    make(map[uint16]uint32),
		scopes:   make(map[uint16]types.Scope),
		sources:  make(map[uint16]pdu.NetworkAddress),
		targets:  make(map[uint16]pdu.NetworkAddress),
		params:   make(map[uint16]pdu.NetworkAddress),
	}
}

// contiguous reports whether the keys of positions are exactly 0..n-1
func contiguous[T any](positions map[uint16]T) bool {
	for i := 0; i < len(positions); i++ {
		if _, ok := positions[uint16(i)]; !ok {
			return false
		}
	}
	return true
}

func sortedIDs[T any](m map[uint16]T) []uint16 {
	ids := make([]uint16, 0, len(m))
	for id := range m {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// check returns the first incompleteness found, or ErrNone
func (c *configuration) check(desc *description.SlaveDescription) types.DcpError {
	if !c.timeResSet && !desc.Resolution.Default.Resolution().Valid() {
		return types.ErrIncompleteConfigTimeRes
	}
	for _, id := range sortedIDs(c.inputs) {
		switch {
		case !contiguous(c.inputs[id]):
			return types.ErrIncompleteConfigGapInputPos
		case !hasKey(c.scopes, id):
			return types.ErrIncompleteConfigScope
		case !hasKey(c.sources, id):
			return types.ErrIncompleteConfigNwInfoInput
		}
	}
	for _, id := range sortedIDs(c.outputs) {
		switch {
		case !contiguous(c.outputs[id]):
			return types.ErrIncompleteConfigGapOutputPos
		case !hasKey(c.scopes, id):
			return types.ErrIncompleteConfigScope
		case !hasKey(c.steps, id):
			return types.ErrIncompleteConfigSteps
		case !hasKey(c.targets, id):
			return types.ErrIncompleteConfigNwInfoOutput
		}
	}
	for _, id := range sortedIDs(c.tunables) {
		switch {
		case !contiguous(c.tunables[id]):
			return types.ErrIncompleteConfigGapTunablePos
		case !hasKey(c.params, id):
			return types.ErrIncompleteConfigNwInfoTunable
		}
	}
	return types.ErrNone
}

func hasKey[T any](m map[uint16]T, id uint16) bool {
	_, ok := m[id]
	return ok
}

// TimeResolution returns the configured time resolution, or the description default
func (s *Slave) TimeResolution() types.Resolution {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.timeResolution()
}

func (s *Slave) timeResolution() types.Resolution {
	if s.cfg.timeResSet {
		return s.cfg.timeRes
	}
	return s.desc.Resolution.Default.Resolution()
}

// Steps returns the configured steps of output dataID, 0 if unset
func (s *Slave) Steps(dataID uint16) uint32 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cfg.steps[dataID]
}

// handleConfig applies one CFG_* request. Callers must hold mu.
func (s *Slave) handleConfig(p pdu.PDU, seqID uint16) types.DcpError {
	if s.state != types.StateConfiguration {
		return types.ErrProtocolPduNotAllowed
	}

	var code types.DcpError
	switch v := p.(type) {
	case *pdu.CfgTimeRes:
		code = s.cfgTimeRes(v)
	case *pdu.CfgSteps:
		code = s.cfgSteps(v)
	case *pdu.CfgInput:
		code = s.cfgInput(v)
	case *pdu.CfgOutput:
		code = s.cfgOutput(v)
	case *pdu.CfgClear:
		s.clearConfiguration()
		s.tracker.Resync(seq.ControlChannel(s.dcpID), seqID)
	case *pdu.CfgTargetNetworkInformation:
		if code = s.checkNetwork(v.Address); code == types.ErrNone {
			s.cfg.targets[v.DataID] = v.Address
			s.driver.SetTargetNetworkInformation(v.DataID, v.Address)
		}
	case *pdu.CfgSourceNetworkInformation:
		if code = s.checkNetwork(v.Address); code == types.ErrNone {
			s.cfg.sources[v.DataID] = v.Address
			s.driver.SetSourceNetworkInformation(v.DataID, v.Address)
		}
	case *pdu.CfgParamNetworkInformation:
		if code = s.checkNetwork(v.Address); code == types.ErrNone {
			s.cfg.params[v.ParamID] = v.Address
			s.driver.SetParamNetworkInformation(v.ParamID, v.Address)
		}
	case *pdu.CfgParameter:
		code = s.cfgParameter(v)
	case *pdu.CfgTunableParameter:
		code = s.cfgTunableParameter(v)
	case *pdu.CfgLogging:
		code = s.cfgLogging(v)
	case *pdu.CfgScope:
		if !v.Scope.Valid() {
			code = types.ErrInvalidScope
		} else {
			s.cfg.scopes[v.DataID] = v.Scope
		}
	default:
		code = types.ErrNotSupportedPdu
	}
	if code == types.ErrNone {
		s.ack(seqID)
	}
	return code
}

func (s *Slave) cfgTimeRes(p *pdu.CfgTimeRes) types.DcpError {
	r := types.Resolution{Numerator: p.Numerator, Denominator: p.Denominator}
	if !s.desc.AcceptsResolution(r) {
		return types.ErrInvalidTimeResolution
	}
	s.cfg.timeRes = r
	s.cfg.timeResSet = true
	return types.ErrNone
}

func (s *Slave) cfgSteps(p *pdu.CfgSteps) types.DcpError {
	switch {
	case p.Steps == 0:
		return types.ErrInvalidSteps
	case s.desc.Resolution.MaxSteps > 0 && p.Steps > s.desc.Resolution.MaxSteps:
		return types.ErrInvalidSteps
	case !s.desc.Resolution.VariableSteps && p.Steps != 1:
		return types.ErrNotSupportedVariableSteps
	}
	s.cfg.steps[p.DataID] = p.Steps
	return types.ErrNone
}

func (s *Slave) cfgInput(p *pdu.CfgInput) types.DcpError {
	v, ok := s.desc.Variable(p.TargetVR)
	if !ok || v.Causality != description.CausalityInput {
		return types.ErrInvalidValueReference
	}
	if !p.SourceDataType.Valid() || !p.SourceDataType.CanCastTo(v.DataType()) {
		return types.ErrInvalidSourceDataType
	}
	positions, ok := s.cfg.inputs[p.DataID]
	if !ok {
		positions = make(map[uint16]mapping)
		s.cfg.inputs[p.DataID] = positions
	}
	positions[p.Pos] = mapping{vr: p.TargetVR, source: p.SourceDataType}
	return types.ErrNone
}

func (s *Slave) cfgOutput(p *pdu.CfgOutput) types.DcpError {
	v, ok := s.desc.Variable(p.SourceVR)
	if !ok || v.Causality != description.CausalityOutput {
		return types.ErrInvalidValueReference
	}
	positions, ok := s.cfg.outputs[p.DataID]
	if !ok {
		positions = make(map[uint16]uint64)
		s.cfg.outputs[p.DataID] = positions
	}
	positions[p.Pos] = p.SourceVR
	return types.ErrNone
}

func (s *Slave) cfgParameter(p *pdu.CfgParameter) types.DcpError {
	v, ok := s.desc.Variable(p.ParameterVR)
	if !ok || !v.IsParameter() {
		return types.ErrInvalidValueReference
	}
	if !p.SourceDataType.Valid() || !p.SourceDataType.CanCastTo(v.DataType()) {
		return types.ErrInvalidSourceDataType
	}
	mv := s.values[p.ParameterVR]
	staged := mv.Clone()
	n, err := staged.Update(p.Configuration, p.SourceDataType)
	switch {
	case errors.Is(err, value.ErrShortPayload):
		return types.ErrInvalidLength
	case err != nil:
		return types.ErrInvalidPayload
	case n != len(p.Configuration):
		return types.ErrInvalidLength
	}
	structural := v.Causality == description.CausalityStructuralParameter
	if structural {
		if code := s.checkStructural(v, staged); code != types.ErrNone {
			return code
		}
	}
	if err := mv.CopyFrom(staged); err != nil {
		return types.ErrInvalidPayload
	}
	if structural {
		s.resizeDependents(p.ParameterVR)
	}
	return types.ErrNone
}

// checkStructural rejects a structural parameter value below 1 or above its
// declared max, and one that would grow a dependent variable past
// description.MaxElements.
func (s *Slave) checkStructural(sp *description.Variable, staged *value.MultiDimValue) types.DcpError {
	n, err := staged.Uint64At(0)
	if err != nil || n < 1 || n > sp.MaxDimension() {
		s.logger.Debug("Slave %s: %s = %d rejected (max %d)", s.config.ID, sp.Name, n, sp.MaxDimension())
		return types.ErrInvalidPayload
	}
	current := structuralDim(s.values)
	dimOf := func(vr uint64) int {
		if vr == sp.VR {
			return int(n)
		}
		return current(vr)
	}
	for i := range s.desc.Variables {
		v := &s.desc.Variables[i]
		if v.DependsOn(sp.VR) && !description.WithinElementLimit(v.ResolveDims(dimOf)) {
			s.logger.Debug("Slave %s: %s = %d would oversize %s", s.config.ID, sp.Name, n, v.Name)
			return types.ErrInvalidPayload
		}
	}
	return types.ErrNone
}

func (s *Slave) cfgTunableParameter(p *pdu.CfgTunableParameter) types.DcpError {
	v, ok := s.desc.Variable(p.ParameterVR)
	if !ok || !v.IsTunable() {
		return types.ErrInvalidValueReference
	}
	if !p.SourceDataType.Valid() || !p.SourceDataType.CanCastTo(v.DataType()) {
		return types.ErrInvalidSourceDataType
	}
	positions, ok := s.cfg.tunables[p.ParamID]
	if !ok {
		positions = make(map[uint16]mapping)
		s.cfg.tunables[p.ParamID] = positions
	}
	positions[p.Pos] = mapping{vr: p.ParameterVR, source: p.SourceDataType}
	return types.ErrNone
}

// checkNetwork validates the network information of CFG_*_network_information
func (s *Slave) checkNetwork(a pdu.NetworkAddress) types.DcpError {
	switch {
	case a.Protocol > types.ProtocolTCPIPv4:
		return types.ErrInvalidTransportProtocol
	case !s.desc.SupportsProtocol(a.Protocol):
		return types.ErrNotSupportedTransportProtocol
	case a.Protocol.HasIPv4Address() && a.Port == 0:
		return types.ErrInvalidPort
	}
	return types.ErrNone
}

// resizeDependents resizes every variable whose dimensions link to the structural parameter vr
func (s *Slave) resizeDependents(vr uint64) {
	dimOf := structuralDim(s.values)
	for i := range s.desc.Variables {
		v := &s.desc.Variables[i]
		if !v.DependsOn(vr) {
			continue
		}
		if err := s.values[v.VR].Resize(v.ResolveDims(dimOf)); err != nil {
			s.logger.Warn("Slave %s: resize %s: %v", s.config.ID, v.Name, err)
			continue
		}
		s.logger.Debug("Slave %s: %s resized to %s", s.config.ID, v.Name, s.values[v.VR])
	}
}

// clearConfiguration drops the tables, data sequence state and data endpoints.
// Registration and parameter values are kept.
func (s *Slave) clearConfiguration() {
	s.cfg = newConfiguration()
	s.resetDataSequences()
	s.logCfg = make(map[types.LogCategory]logSetting)
	s.after(func() {
		if err := s.driver.Disconnect(); err != nil {
			s.logger.Warn("Slave %s: driver disconnect: %v", s.config.ID, err)
		}
	})
	s.logger.Debug("Slave %s: configuration cleared", s.config.ID)
}
