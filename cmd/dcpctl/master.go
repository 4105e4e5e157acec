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
	"avaneesh/dcp-go/pkg/master"
	"avaneesh/dcp-go/pkg/pdu"
	"avaneesh/dcp-go/pkg/seq"
	"avaneesh/dcp-go/pkg/types"
)

const pollInterval = 100 * time.Millisecond

func newMasterCmd(configPath *string) *cobra.Command {
	var descPath string
	cmd := &cobra.Command{
		Use:   "master",
		Short: "Drive one slave through a complete simulation",
		Long: `Register the slave at transport.address, configure its time resolution,
initialize and run it for master.steps steps, then stop and deregister it.
The slave's UUID and DCP version are taken from its slave description.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := LoadConfig(*configPath)
			if err != nil {
				return err
			}
			if descPath != "" {
				cfg.Master.Description = descPath
			}
			return runMaster(cmd.Context(), cfg)
		},
	}
	cmd.Flags().StringVarP(&descPath, "description", "d", "", "slave description file (overrides master.description)")
	return cmd
}

func runMaster(parent context.Context, cfg *Config) error {
	if cfg.Master.Description == "" {
		return errors.New("master.description is required")
	}
	desc, err := description.Load(cfg.Master.Description)
	if err != nil {
		return err
	}
	opMode, _ := types.ParseOpMode(cfg.Master.OpMode)
	if !desc.SupportsOpMode(opMode) {
		return fmt.Errorf("slave %s does not support %s", desc.Name, opMode)
	}
	slaveAddr, err := slaveAddress(&cfg.Transport)
	if err != nil {
		return err
	}
	cfg.Log.apply()

	physical, err := cfg.Transport.physical(false)
	if err != nil {
		return fmt.Errorf("open transport: %w", err)
	}

	mgr := dcp.NewManager()
	defer mgr.Shutdown()

	ch, err := mgr.AddChannel(cfg.Master.ID, physical)
	if err != nil {
		physical.Close()
		return err
	}
	if err := startTrace(ch, cfg); err != nil {
		return err
	}

	mcfg := dcp.DefaultMasterConfig()
	mcfg.ID = cfg.Master.ID
	m, err := ch.AddMaster(mcfg)
	if err != nil {
		return err
	}
	if err := m.Start(); err != nil {
		return err
	}
	if err := m.AddSlave(cfg.Master.DcpID, slaveAddr); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	r := &runner{
		m:          m,
		cfg:        &cfg.Master,
		desc:       desc,
		opMode:     opMode,
		log:        dcp.DefaultLogger().WithField("master", cfg.Master.ID),
		configured: make(chan types.DcpError, 1),
		nacks:      make(chan types.DcpError, 1),
	}
	r.listen()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		reportStatistics(gctx, r.log, ch)
		return nil
	})
	g.Go(func() error {
		defer stop()
		return r.run(gctx)
	})
	return g.Wait()
}

// slaveAddress converts the transport address into network information for AddSlave
func slaveAddress(c *TransportConfig) (pdu.NetworkAddress, error) {
	ap, err := netip.ParseAddrPort(c.Address)
	if err != nil {
		return pdu.NetworkAddress{}, fmt.Errorf("transport.address: %w", err)
	}
	protocol := types.ProtocolUDPIPv4
	if c.Protocol != "udp" {
		protocol = types.ProtocolTCPIPv4
	}
	return pdu.IPv4Address(protocol, ap), nil
}

// runner walks one slave through its life cycle
type runner struct {
	m      *master.Master
	cfg    *MasterConfig
	desc   *description.SlaveDescription
	opMode types.OpMode
	log    dcp.Logger

	configured chan types.DcpError
	nacks      chan types.DcpError
}

func (r *runner) listen() {
	id := r.cfg.DcpID
	r.m.AddConfiguredListener(types.Sync, func(dcpID uint8, code types.DcpError) {
		if dcpID == id {
			select {
			case r.configured <- code:
			default:
			}
		}
	})
	r.m.AddNackListener(types.Sync, func(dcpID uint8, _ uint16, code types.DcpError) {
		if dcpID == id {
			select {
			case r.nacks <- code:
			default:
			}
		}
	})
	r.m.AddStateChangedListener(types.Async, func(dcpID uint8, state types.DcpState) {
		r.log.Info("slave %d: %s", dcpID, state)
	})
	r.m.AddLogListener(types.Async, func(dcpID uint8, t types.DcpTime, templateID uint8, args []byte) {
		r.log.Info("slave %d log template %d at %s: % x", dcpID, templateID, t.ToTime().Format(time.RFC3339Nano), args)
	})
	r.m.AddMissedControlPduListener(types.Async, func(dcpID uint8, respSeq uint16, d seq.Delta) {
		r.log.Warn("slave %d: response %d out of order (delta %d)", dcpID, respSeq, d)
	})
}

func (r *runner) run(ctx context.Context) error {
	id := r.cfg.DcpID

	if r.cfg.Heartbeat > 0 {
		ms := uint32(r.cfg.Heartbeat / time.Millisecond)
		if err := r.m.EnableHeartbeat(id, ms, 1000); err != nil {
			return err
		}
		defer r.m.DisableHeartbeat(id)
	}

	if _, err := r.m.Register(id, r.desc.SlaveUUID(), r.opMode, r.desc.MajorVersion, r.desc.MinorVersion); err != nil {
		return err
	}
	if err := r.await(ctx, "registration", func() bool { return r.m.Registered(id) }); err != nil {
		return err
	}

	res := r.cfg.Resolution
	if err := r.m.ConfigureSlave(id, []pdu.PDU{
		&pdu.CfgTimeRes{Numerator: res.Numerator, Denominator: res.Denominator},
	}); err != nil {
		return err
	}
	select {
	case code := <-r.configured:
		if code != types.ErrNone {
			return fmt.Errorf("configuration rejected: %s", code)
		}
	case <-time.After(r.cfg.Timeout):
		return errors.New("configuration timed out")
	case <-ctx.Done():
		return r.shutdown(ctx.Err())
	}

	steps := []struct {
		name string
		send func() (uint16, error)
		want types.DcpState
	}{
		{"initialize", func() (uint16, error) { return r.m.Initialize(id) }, types.StateInitialized},
		{"synchronize", func() (uint16, error) { return r.m.Run(id, types.StateInitialized, time.Time{}) }, types.StateSynchronized},
		{"run", func() (uint16, error) { return r.m.Run(id, types.StateSynchronized, time.Time{}) }, types.StateRunning},
	}
	for _, st := range steps {
		if err := r.transition(ctx, st.name, st.send, st.want); err != nil {
			return r.shutdown(err)
		}
	}

	if err := r.simulate(ctx); err != nil {
		return r.shutdown(err)
	}
	return r.shutdown(nil)
}

// simulate advances a non real-time slave step by step, or lets a
// real-time slave run for the same amount of simulated time
func (r *runner) simulate(ctx context.Context) error {
	id := r.cfg.DcpID
	if r.opMode.IsRealTime() {
		res := types.Resolution{Numerator: r.cfg.Resolution.Numerator, Denominator: r.cfg.Resolution.Denominator}
		select {
		case <-time.After(res.Duration(r.cfg.Steps)):
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	for i := uint32(0); i < r.cfg.Steps; i++ {
		if err := r.transition(ctx, "do step", func() (uint16, error) { return r.m.DoStep(id, 1) }, types.StateComputed); err != nil {
			return err
		}
		if err := r.transition(ctx, "send outputs", func() (uint16, error) { return r.m.SendOutputs(id, types.StateComputed) }, types.StateRunning); err != nil {
			return err
		}
	}
	r.log.Info("slave %d computed %d step(s)", id, r.cfg.Steps)
	return nil
}

// shutdown stops and deregisters the slave and returns cause
func (r *runner) shutdown(cause error) error {
	id := r.cfg.DcpID
	state, _ := r.m.SlaveState(id)
	if !r.m.Registered(id) {
		return cause
	}
	if state.AllowsStop() {
		ctx, cancel := context.WithTimeout(context.Background(), r.cfg.Timeout)
		defer cancel()
		if err := r.transition(ctx, "stop", func() (uint16, error) { return r.m.StopSlave(id, state) }, types.StateStopped); err != nil {
			return errors.Join(cause, err)
		}
		state = types.StateStopped
	}
	if _, err := r.m.Deregister(id, state); err != nil {
		return errors.Join(cause, err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), r.cfg.Timeout)
	defer cancel()
	if err := r.await(ctx, "deregistration", func() bool { return !r.m.Registered(id) }); err != nil {
		return errors.Join(cause, err)
	}
	r.log.Info("slave %d deregistered", id)
	return cause
}

// transition sends a command and waits until the slave reports want
func (r *runner) transition(ctx context.Context, name string, send func() (uint16, error), want types.DcpState) error {
	if _, err := send(); err != nil {
		return fmt.Errorf("%s: %w", name, err)
	}
	id := r.cfg.DcpID
	return r.await(ctx, name, func() bool {
		state, ok := r.m.SlaveState(id)
		if ok && state == want {
			return true
		}
		if _, err := r.m.InfState(id); err != nil {
			r.log.Debug("state request: %v", err)
		}
		return false
	})
}

// await polls done until it holds, a nack arrives or cfg.Timeout passes
func (r *runner) await(ctx context.Context, what string, done func() bool) error {
	deadline := time.NewTimer(r.cfg.Timeout)
	defer deadline.Stop()
	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	for !done() {
		select {
		case code := <-r.nacks:
			return fmt.Errorf("%s rejected: %s", what, code)
		case <-deadline.C:
			return fmt.Errorf("%s timed out after %v", what, r.cfg.Timeout)
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
	return nil
}
