package main

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"

	"avaneesh/dcp-go/pkg/channel"
	"avaneesh/dcp-go/pkg/dcp"
	"avaneesh/dcp-go/pkg/transport"
	"avaneesh/dcp-go/pkg/types"
)

// Config is the runtime configuration of dcpctl
type Config struct {
	Log       LogConfig       `mapstructure:"log"`
	Transport TransportConfig `mapstructure:"transport"`
	Trace     string          `mapstructure:"trace"`
	Slave     SlaveConfig     `mapstructure:"slave"`
	Master    MasterConfig    `mapstructure:"master"`
}

// LogConfig selects level and output of the logger
type LogConfig struct {
	Level      string             `mapstructure:"level"`
	FrameDebug bool               `mapstructure:"frame_debug"`
	File       dcp.LogFileOptions `mapstructure:"file"`
}

// TransportConfig selects the physical channel
type TransportConfig struct {
	Protocol     string        `mapstructure:"protocol"`
	Address      string        `mapstructure:"address"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	TOS          int           `mapstructure:"tos"`
	MaxFrameSize int           `mapstructure:"max_frame_size"`
}

// SlaveConfig configures the slave subcommand
type SlaveConfig struct {
	ID          string        `mapstructure:"id"`
	Description string        `mapstructure:"description"`
	Heartbeat   time.Duration `mapstructure:"heartbeat"`
	GateTimeout time.Duration `mapstructure:"gate_timeout"`
}

// MasterConfig configures the master subcommand
type MasterConfig struct {
	ID          string        `mapstructure:"id"`
	DcpID       uint8         `mapstructure:"dcp_id"`
	Description string        `mapstructure:"description"`
	OpMode      string        `mapstructure:"op_mode"`
	Heartbeat   time.Duration `mapstructure:"heartbeat"`
	Steps       uint32        `mapstructure:"steps"`
	Timeout     time.Duration `mapstructure:"timeout"`
	Resolution  struct {
		Numerator   uint32 `mapstructure:"numerator"`
		Denominator uint32 `mapstructure:"denominator"`
	} `mapstructure:"time_resolution"`
}

// LoadConfig reads path, if set, and applies DCP_* environment overrides
func LoadConfig(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix("DCP")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg, viper.DecodeHook(mapstructure.StringToTimeDurationHookFunc())); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("log.level", "info")
	v.SetDefault("log.frame_debug", false)
	v.SetDefault("log.file.max_size", 100)
	v.SetDefault("log.file.max_backups", 3)
	v.SetDefault("log.file.max_age", 28)

	v.SetDefault("transport.protocol", "udp")
	v.SetDefault("transport.address", "127.0.0.1:5500")
	v.SetDefault("transport.read_timeout", time.Second)
	v.SetDefault("transport.write_timeout", 10*time.Second)

	v.SetDefault("slave.id", "slave")
	v.SetDefault("slave.gate_timeout", time.Second)

	v.SetDefault("master.id", "master")
	v.SetDefault("master.dcp_id", 1)
	v.SetDefault("master.op_mode", "NRT")
	v.SetDefault("master.steps", 10)
	v.SetDefault("master.timeout", 5*time.Second)
	v.SetDefault("master.time_resolution.numerator", 1)
	v.SetDefault("master.time_resolution.denominator", 100)
}

// Validate checks the fields every subcommand depends on
func (c *Config) Validate() error {
	if _, ok := dcp.ParseLogLevel(c.Log.Level); !ok {
		return fmt.Errorf("invalid log.level %q", c.Log.Level)
	}
	switch c.Transport.Protocol {
	case "udp", "tcp", "quic":
	default:
		return fmt.Errorf("invalid transport.protocol %q: want udp, tcp or quic", c.Transport.Protocol)
	}
	if c.Transport.Address == "" {
		return errors.New("transport.address is required")
	}
	if _, ok := types.ParseOpMode(c.Master.OpMode); !ok {
		return fmt.Errorf("invalid master.op_mode %q", c.Master.OpMode)
	}
	if c.Master.Resolution.Numerator == 0 || c.Master.Resolution.Denominator == 0 {
		return errors.New("master.time_resolution must be non-zero")
	}
	return nil
}

// apply installs the default logger described by c
func (c *LogConfig) apply() {
	level, _ := dcp.ParseLogLevel(c.Level)
	if c.File.Filename != "" {
		dcp.SetLogFile(level, c.File)
	} else {
		dcp.SetLogLevel(level)
	}
	dcp.EnableFrameDebug(c.FrameDebug)
}

// physical opens the physical channel; server selects the listening side
func (c *TransportConfig) physical(server bool) (channel.PhysicalChannel, error) {
	reassembly := transport.Config{MaxFrameSize: c.MaxFrameSize}
	switch c.Protocol {
	case "tcp":
		return channel.NewTCPChannel(channel.TCPChannelConfig{
			Address:      c.Address,
			IsServer:     server,
			ReadTimeout:  c.ReadTimeout,
			WriteTimeout: c.WriteTimeout,
			Reassembly:   reassembly,
		})
	case "quic":
		return channel.NewQUICChannel(channel.QUICChannelConfig{
			Address:      c.Address,
			IsServer:     server,
			ReadTimeout:  c.ReadTimeout,
			WriteTimeout: c.WriteTimeout,
			Reassembly:   reassembly,
		})
	default:
		return channel.NewUDPChannel(channel.UDPChannelConfig{
			Address:      c.Address,
			IsServer:     server,
			ReadTimeout:  c.ReadTimeout,
			WriteTimeout: c.WriteTimeout,
			TOS:          c.TOS,
		})
	}
}
