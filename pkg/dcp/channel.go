package dcp

import (
	"errors"
	"fmt"
	"net/netip"

	"avaneesh/dcp-go/pkg/description"
	"avaneesh/dcp-go/pkg/master"
	"avaneesh/dcp-go/pkg/slave"
	"avaneesh/dcp-go/pkg/trace"
)

// ErrEndpointBound is returned when a second master or slave is added to a channel
var ErrEndpointBound = errors.New("channel already has a master or slave")

// Configuration aliases so callers only need this package
type (
	MasterConfig = master.MasterConfig
	SlaveConfig  = slave.Config
)

// DefaultMasterConfig returns default master configuration
func DefaultMasterConfig() MasterConfig { return master.DefaultMasterConfig() }

// DefaultSlaveConfig returns default slave configuration
func DefaultSlaveConfig() SlaveConfig { return slave.DefaultSlaveConfig() }

// Channel represents a communication channel.
// Exactly one master or one slave drives a channel.
type Channel interface {
	// AddMaster creates a master on the channel
	AddMaster(config MasterConfig) (*master.Master, error)

	// AddSlave creates a slave for desc on the channel
	AddSlave(config SlaveConfig, desc *description.SlaveDescription) (*slave.Slave, error)

	// Trace records every frame of the channel to a pcap file at path.
	// local is the address written for this side of the capture.
	Trace(path string, local netip.AddrPort) error

	// Statistics returns channel statistics
	Statistics() ChannelStatistics

	// Shutdown stops the endpoint and closes the channel
	Shutdown() error
}

// ChannelStatistics contains channel statistics
type ChannelStatistics struct {
	FramesTx       uint64
	FramesRx       uint64
	BadFrames      uint64
	SizeMismatches uint64
	Dropped        uint64
	Unroutable     uint64
	WriteErrors    uint64
	BytesSent      uint64
	BytesReceived  uint64
}

// channelImpl is a handle on a channel owned by a Manager
type channelImpl struct {
	id      string
	manager *Manager
}

// AddMaster implements Channel.AddMaster
func (c *channelImpl) AddMaster(config MasterConfig) (*master.Master, error) {
	c.manager.mu.Lock()
	defer c.manager.mu.Unlock()

	mc, err := c.manager.lookup(c.id)
	if err != nil {
		return nil, err
	}
	if mc.endpoint != nil {
		return nil, fmt.Errorf("%w: %s", ErrEndpointBound, c.id)
	}

	m, err := master.New(config, mc.channel, c.manager.logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create master: %w", err)
	}
	mc.endpoint = m
	c.manager.logger.Info("Channel %s: Added master %s", c.id, config.ID)
	return m, nil
}

// AddSlave implements Channel.AddSlave
func (c *channelImpl) AddSlave(config SlaveConfig, desc *description.SlaveDescription) (*slave.Slave, error) {
	c.manager.mu.Lock()
	defer c.manager.mu.Unlock()

	mc, err := c.manager.lookup(c.id)
	if err != nil {
		return nil, err
	}
	if mc.endpoint != nil {
		return nil, fmt.Errorf("%w: %s", ErrEndpointBound, c.id)
	}

	s, err := slave.New(config, desc, mc.channel, c.manager.logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create slave: %w", err)
	}
	mc.endpoint = s
	c.manager.logger.Info("Channel %s: Added slave %s", c.id, config.ID)
	return s, nil
}

// Trace implements Channel.Trace. A previous trace file is closed.
func (c *channelImpl) Trace(path string, local netip.AddrPort) error {
	rec, err := trace.Create(path, local)
	if err != nil {
		return err
	}

	c.manager.mu.Lock()
	mc, err := c.manager.lookup(c.id)
	if err != nil {
		c.manager.mu.Unlock()
		rec.Close()
		return err
	}
	old := mc.recorder
	mc.recorder = rec
	mc.channel.SetTracer(rec)
	c.manager.mu.Unlock()

	if old != nil {
		return old.Close()
	}
	return nil
}

// Statistics implements Channel.Statistics
func (c *channelImpl) Statistics() ChannelStatistics {
	c.manager.mu.RLock()
	mc, err := c.manager.lookup(c.id)
	c.manager.mu.RUnlock()
	if err != nil {
		return ChannelStatistics{}
	}

	stats := mc.channel.GetStatistics()
	phys := mc.channel.GetPhysicalStatistics()
	return ChannelStatistics{
		FramesTx:       stats.GetFramesTx(),
		FramesRx:       stats.GetFramesRx(),
		BadFrames:      stats.GetBadFrames(),
		SizeMismatches: stats.GetSizeMismatches(),
		Dropped:        stats.GetDropped(),
		Unroutable:     stats.GetUnroutable(),
		WriteErrors:    stats.GetWriteErrors(),
		BytesSent:      phys.BytesSent,
		BytesReceived:  phys.BytesReceived,
	}
}

// Shutdown implements Channel.Shutdown
func (c *channelImpl) Shutdown() error {
	return c.manager.RemoveChannel(c.id)
}
