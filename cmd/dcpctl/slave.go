package main

import (
	"context"
	"errors"
	"fmt"
	"net/netip"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"avaneesh/dcp-go/pkg/dcp"
	"avaneesh/dcp-go/pkg/description"
	"avaneesh/dcp-go/pkg/types"
)

const statsInterval = 10 * time.Second

func newSlaveCmd(configPath *string) *cobra.Command {
	var descPath string
	cmd := &cobra.Command{
		Use:   "slave",
		Short: "Run a slave until interrupted",
		Long: `Run a DCP slave described by a slave description file. The slave
listens on transport.address and follows the master's commands until
SIGINT or SIGTERM.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := LoadConfig(*configPath)
			if err != nil {
				return err
			}
			if descPath != "" {
				cfg.Slave.Description = descPath
			}
			return runSlave(cmd.Context(), cfg)
		},
	}
	cmd.Flags().StringVarP(&descPath, "description", "d", "", "slave description file (overrides slave.description)")
	return cmd
}

func runSlave(parent context.Context, cfg *Config) error {
	if cfg.Slave.Description == "" {
		return errors.New("slave.description is required")
	}
	desc, err := description.Load(cfg.Slave.Description)
	if err != nil {
		return err
	}
	cfg.Log.apply()

	physical, err := cfg.Transport.physical(true)
	if err != nil {
		return fmt.Errorf("open transport: %w", err)
	}

	mgr := dcp.NewManager()
	ch, err := mgr.AddChannel(cfg.Slave.ID, physical)
	if err != nil {
		physical.Close()
		return err
	}
	if err := startTrace(ch, cfg); err != nil {
		mgr.Shutdown()
		return err
	}

	scfg := dcp.DefaultSlaveConfig()
	scfg.ID = cfg.Slave.ID
	scfg.Heartbeat = cfg.Slave.Heartbeat
	scfg.GateTimeout = cfg.Slave.GateTimeout
	s, err := ch.AddSlave(scfg, desc)
	if err != nil {
		mgr.Shutdown()
		return err
	}

	log := dcp.DefaultLogger().WithField("slave", cfg.Slave.ID)
	s.AddStateChangedListener(types.Async, func(from, to types.DcpState) {
		log.Info("state %s -> %s", from, to)
	})
	s.AddErrorListener(types.Async, func(code types.DcpError) {
		log.Warn("error %s", code)
	})
	s.SetComputeCallback(types.Sync, func(steps uint32) {
		log.Debug("computed %d step(s)", steps)
	})
	// real-time slaves have nothing to align with, so the first step synchronizes them
	s.SetSynchronizingStepCallback(types.Async, func(uint32) {
		s.GotoSynchronized()
	})

	if err := s.Start(); err != nil {
		mgr.Shutdown()
		return err
	}
	log.Info("%s (%s) listening on %s/%s", desc.Name, desc.SlaveUUID(), cfg.Transport.Protocol, cfg.Transport.Address)

	ctx, stop := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		reportStatistics(ctx, log, ch)
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		log.Info("shutting down in state %s", s.State())
		return mgr.Shutdown()
	})
	return g.Wait()
}

// startTrace records the channel to cfg.Trace when set
func startTrace(ch dcp.Channel, cfg *Config) error {
	if cfg.Trace == "" {
		return nil
	}
	local, err := netip.ParseAddrPort(cfg.Transport.Address)
	if err != nil {
		local = netip.AddrPortFrom(netip.IPv4Unspecified(), 0)
	}
	if err := ch.Trace(cfg.Trace, local); err != nil {
		return fmt.Errorf("trace: %w", err)
	}
	return nil
}

// reportStatistics logs the channel counters every statsInterval until ctx is done
func reportStatistics(ctx context.Context, log dcp.Logger, ch dcp.Channel) {
	ticker := time.NewTicker(statsInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			st := ch.Statistics()
			log.Debug("frames tx=%d rx=%d bad=%d dropped=%d unroutable=%d",
				st.FramesTx, st.FramesRx, st.BadFrames, st.Dropped, st.Unroutable)
		}
	}
}
