package slave

import (
	"fmt"
	"time"

	"avaneesh/dcp-go/pkg/dcplog"
	"avaneesh/dcp-go/pkg/pdu"
	"avaneesh/dcp-go/pkg/types"
)

// logSetting is the CFG_logging state of one category
type logSetting struct {
	level types.LogLevel
	mode  types.LogMode
}

func (s *Slave) hasCategory(cat types.LogCategory) bool {
	for _, t := range s.registry.Templates() {
		if t.Category == cat {
			return true
		}
	}
	return false
}

// cfgLogging applies CFG_logging. Callers must hold mu.
func (s *Slave) cfgLogging(p *pdu.CfgLogging) types.DcpError {
	if p.LogCategory != types.LogCategoryAll && !s.hasCategory(p.LogCategory) {
		return types.ErrInvalidLogCategory
	}
	if p.LogLevel > types.LogLevelInfo {
		return types.ErrInvalidLogLevel
	}
	switch p.LogMode {
	case types.LogModeOnNotification:
		if !s.desc.Logging.OnNotification {
			return types.ErrNotSupportedLogOnNotification
		}
	case types.LogModeOnRequest:
		if !s.desc.Logging.OnRequest {
			return types.ErrNotSupportedLogOnRequest
		}
	default:
		return types.ErrInvalidLogMode
	}
	s.logCfg[p.LogCategory] = logSetting{level: p.LogLevel, mode: p.LogMode}
	return types.ErrNone
}

// Log emits an entry of template id. Depending on the configuration of the
// template's category it is pushed as NTF_log, buffered for INF_log, or dropped.
func (s *Slave) Log(id uint8, args ...interface{}) error {
	t, ok := s.registry.Lookup(id)
	if !ok {
		return fmt.Errorf("%w: %d", dcplog.ErrUnknownTemplate, id)
	}
	e, err := s.registry.NewEntry(id, time.Now(), args...)
	if err != nil {
		return err
	}
	if msg, err := t.Format(e.Args); err == nil {
		s.logger.Debug("Slave %s [%s] %s", s.config.ID, t.Level, msg)
	}

	s.lock()
	defer s.unlock()
	if s.state == types.StateAlive {
		return ErrNotRegistered
	}
	set, ok := s.logCfg[t.Category]
	if !ok {
		set, ok = s.logCfg[types.LogCategoryAll]
	}
	if !ok || t.Level > set.level {
		return nil
	}
	if set.mode == types.LogModeOnNotification {
		s.respond(e.Notification(s.dcpID))
		return nil
	}
	s.logBuffer.Add(t.Category, e)
	return nil
}

// handleInfLog answers INF_log with buffered entries. Callers must hold mu.
func (s *Slave) handleInfLog(p *pdu.InfLog) {
	if !s.desc.Logging.OnRequest {
		s.nack(p.SeqID, types.ErrNotSupportedLogOnRequest)
		return
	}
	entries := s.logBuffer.Pop(p.LogCategory, int(p.LogMaxNum))
	s.respond(&pdu.RspLogAck{RespSeqID: p.SeqID, Sender: s.dcpID, Entries: dcplog.EncodeEntries(entries)})
}
