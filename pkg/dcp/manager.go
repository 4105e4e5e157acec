package dcp

import (
	"fmt"
	"sync"

	"go.uber.org/multierr"

	"avaneesh/dcp-go/pkg/channel"
	"avaneesh/dcp-go/pkg/internal/logger"
	"avaneesh/dcp-go/pkg/trace"
)

// managedChannel is a channel and what the manager bound to it
type managedChannel struct {
	channel  *channel.Channel
	endpoint endpoint
	recorder *trace.Recorder
}

// endpoint is the master or slave bound to a channel
type endpoint interface {
	Stop() error
}

// Manager is the root object for DCP operations.
// It manages channels and the master or slave bound to each of them.
type Manager struct {
	channels map[string]*managedChannel
	mu       sync.RWMutex
	logger   logger.Logger
}

// NewManager creates a new DCP manager
func NewManager() *Manager {
	return NewManagerWithLogger(logger.GetDefault())
}

// NewManagerWithLogger creates a new DCP manager with custom logger
func NewManagerWithLogger(log logger.Logger) *Manager {
	if log == nil {
		log = logger.NewNoOpLogger()
	}

	return &Manager{
		channels: make(map[string]*managedChannel),
		logger:   log,
	}
}

// AddChannel creates a new channel with the given physical channel
// The physical channel must implement the PhysicalChannel interface
func (m *Manager) AddChannel(id string, physical channel.PhysicalChannel) (Channel, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.channels[id]; exists {
		return nil, fmt.Errorf("channel %s already exists", id)
	}

	ch := channel.New(id, physical, m.logger)
	if err := ch.Open(); err != nil {
		return nil, fmt.Errorf("failed to open channel: %w", err)
	}

	m.channels[id] = &managedChannel{channel: ch}
	m.logger.Info("Manager: Added channel %s", id)

	return &channelImpl{id: id, manager: m}, nil
}

// RemoveChannel stops the endpoint of a channel and closes it
func (m *Manager) RemoveChannel(id string) error {
	m.mu.Lock()
	mc, exists := m.channels[id]
	if !exists {
		m.mu.Unlock()
		return fmt.Errorf("channel %s not found", id)
	}
	delete(m.channels, id)
	m.mu.Unlock()

	err := mc.close()
	if err != nil {
		m.logger.Error("Error closing channel %s: %v", id, err)
	}
	m.logger.Info("Manager: Removed channel %s", id)
	return err
}

// GetChannel returns a channel by ID
func (m *Manager) GetChannel(id string) (Channel, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if _, exists := m.channels[id]; !exists {
		return nil, false
	}
	return &channelImpl{id: id, manager: m}, true
}

// Shutdown stops every endpoint and closes all channels.
// It returns the combined errors of all of them.
func (m *Manager) Shutdown() error {
	m.mu.Lock()
	channels := m.channels
	m.channels = make(map[string]*managedChannel)
	m.mu.Unlock()

	m.logger.Info("Manager: Shutting down")

	var err error
	for id, mc := range channels {
		if cerr := mc.close(); cerr != nil {
			m.logger.Error("Error closing channel %s: %v", id, cerr)
			err = multierr.Append(err, fmt.Errorf("channel %s: %w", id, cerr))
		}
	}

	m.logger.Info("Manager: Shutdown complete")
	return err
}

// ChannelCount returns the number of channels
func (m *Manager) ChannelCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.channels)
}

// SetLogger sets the logger for channels and endpoints created afterwards
func (m *Manager) SetLogger(log logger.Logger) {
	m.mu.Lock()
	m.logger = logger.OrDefault(log)
	m.mu.Unlock()
}

// lookup returns the managed channel id. Callers must hold mu.
func (m *Manager) lookup(id string) (*managedChannel, error) {
	mc, ok := m.channels[id]
	if !ok {
		return nil, fmt.Errorf("channel %s not found", id)
	}
	return mc, nil
}

// close stops the endpoint, closes the channel and the trace file
func (mc *managedChannel) close() error {
	var err error
	if mc.endpoint != nil {
		err = multierr.Append(err, mc.endpoint.Stop())
	}
	err = multierr.Append(err, mc.channel.Close())
	if mc.recorder != nil {
		mc.channel.SetTracer(nil)
		err = multierr.Append(err, mc.recorder.Close())
	}
	return err
}
