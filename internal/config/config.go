// Package config loads and validates the process-level YAML configuration:
// logging, the DHCPv4 server, and the device-node arbiter.  It is
// deliberately not a flag-parsing CLI layer — per the non-goal carved out in
// the design notes, option/flag parsing belongs to a thin wrapper this
// package does not provide.
package config

import (
	"fmt"
	"net"
	"net/netip"
	"os"
	"time"

	"github.com/AdguardTeam/golibs/errors"
	"github.com/AdguardTeam/golibs/logutil/slogutil"
	"github.com/AdguardTeam/golibs/netutil"
	"github.com/AdguardTeam/golibs/validate"
	"github.com/c2h5oh/datasize"
	"gopkg.in/yaml.v3"
)

// Config is the top-level on-disk configuration.
type Config struct {
	Logging LoggingConfig `yaml:"logging"`
	DHCP    DHCPConfig    `yaml:"dhcp"`
	Arbiter ArbiterConfig `yaml:"arbiter"`
}

// LoggingConfig configures the process logger, mirroring the shape of
// [slogutil.Config] this package builds from it.
type LoggingConfig struct {
	// File, if set, rotates through lumberjack.v2 instead of writing to
	// stderr.
	File string `yaml:"file"`

	// Level is one of "debug", "info", "warn", "error".
	Level string `yaml:"level"`

	// MaxSize bounds one log file before rotation, human-readable
	// ("100MB", "1GB").
	MaxSize datasize.ByteSize `yaml:"max_size"`

	// MaxBackups is the number of rotated files to retain.
	MaxBackups int `yaml:"max_backups"`

	// JSON selects structured JSON output instead of the default text
	// format.
	JSON bool `yaml:"json"`
}

// DHCPConfig configures one DHCPv4 server instance.
type DHCPConfig struct {
	Interface        string            `yaml:"interface"`
	Address          netip.Addr        `yaml:"address"`
	Subnet           netip.Prefix      `yaml:"subnet"`
	PoolOffset       uint32            `yaml:"pool_offset"`
	PoolSize         uint32            `yaml:"pool_size"`
	DefaultLeaseTime time.Duration     `yaml:"default_lease_time"`
	MaxLeaseTime     time.Duration     `yaml:"max_lease_time"`
	DBFilePath       string            `yaml:"lease_db_path"`
	MaxOptionsLen    datasize.ByteSize `yaml:"max_optlen"`
	RelayTarget      netip.Addr        `yaml:"relay_target"`
	RouterAddress    netip.Addr        `yaml:"router_address"`
	Timezone         string            `yaml:"timezone"`
	DNSServers       []netip.Addr      `yaml:"dns_servers"`
	NTPServers       []netip.Addr      `yaml:"ntp_servers"`
	ICMPProbe        bool              `yaml:"icmp_probe"`
	ICMPTimeout      time.Duration     `yaml:"icmp_timeout"`
	StaticLeases     []StaticLease     `yaml:"static_leases"`
	ExtraOptions     []string          `yaml:"extra_options"`
}

// StaticLease is one out-of-band lease assignment.
type StaticLease struct {
	ClientID string     `yaml:"client_id"`
	HWAddr   string     `yaml:"hw_addr"`
	Address  netip.Addr `yaml:"address"`
	Hostname string     `yaml:"hostname"`
}

// Validate checks that sl's hardware address and hostname, if present, are
// well-formed.
func (sl *StaticLease) Validate() (err error) {
	if sl == nil {
		return errors.ErrNoValue
	}

	hw, err := net.ParseMAC(sl.HWAddr)
	if err != nil {
		return fmt.Errorf("hw_addr: %w", err)
	}

	if err = netutil.ValidateMAC(hw); err != nil {
		return fmt.Errorf("hw_addr: %w", err)
	}

	if sl.Hostname != "" {
		if err = netutil.ValidateHostname(sl.Hostname); err != nil {
			return fmt.Errorf("hostname: %w", err)
		}
	}

	if !sl.Address.Is4() {
		return fmt.Errorf("address: %w", errors.ErrBadEnumValue)
	}

	return nil
}

// ArbiterConfig configures the device-node symlink arbiter.
type ArbiterConfig struct {
	StackDir string `yaml:"stack_dir"`
	DevRoot  string `yaml:"dev_root"`
}

// type check
var (
	_ validate.Interface = (*Config)(nil)
	_ validate.Interface = (*DHCPConfig)(nil)
	_ validate.Interface = (*ArbiterConfig)(nil)
)

// Validate implements the [validate.Interface] interface for *Config.
func (c *Config) Validate() (err error) {
	if c == nil {
		return errors.ErrNoValue
	}

	var errs []error
	errs = validate.Append(errs, "dhcp", &c.DHCP)
	errs = validate.Append(errs, "arbiter", &c.Arbiter)

	return errors.Join(errs...)
}

// Validate implements the [validate.Interface] interface for *DHCPConfig.
func (c *DHCPConfig) Validate() (err error) {
	if c == nil {
		return errors.ErrNoValue
	}

	errs := []error{
		validate.NotEmpty("interface", c.Interface),
		validate.Positive("pool_size", int(c.PoolSize)),
		validate.Positive("default_lease_time", c.DefaultLeaseTime),
		validate.Positive("max_lease_time", c.MaxLeaseTime),
	}

	if !c.Address.Is4() {
		errs = append(errs, fmt.Errorf("address: %w", errors.ErrBadEnumValue))
	}

	if !c.Subnet.IsValid() {
		errs = append(errs, fmt.Errorf("subnet: %w", errors.ErrBadEnumValue))
	}

	for i := range c.StaticLeases {
		errs = validate.Append(errs, fmt.Sprintf("static_leases.%d", i), &c.StaticLeases[i])
	}

	return errors.Join(errs...)
}

// Validate implements the [validate.Interface] interface for *ArbiterConfig.
func (c *ArbiterConfig) Validate() (err error) {
	if c == nil {
		return errors.ErrNoValue
	}

	return errors.Join(
		validate.NotEmpty("stack_dir", c.StackDir),
		validate.NotEmpty("dev_root", c.DevRoot),
	)
}

// Load reads, parses, and validates the configuration file at path.
func Load(path string) (c *Config, err error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading %q: %w", path, err)
	}

	c = &Config{}
	if err = yaml.Unmarshal(b, c); err != nil {
		return nil, fmt.Errorf("parsing %q: %w", path, err)
	}

	if err = c.Validate(); err != nil {
		return nil, errors.Annotate(err, "validating %q: %w", path)
	}

	return c, nil
}

// slogLevel maps a configured level name to a [slogutil.Config.Level].
func slogLevel(name string) (lvl slogutil.Level) {
	switch name {
	case "debug":
		return slogutil.LevelDebug
	case "warn":
		return slogutil.LevelWarn
	case "error":
		return slogutil.LevelError
	default:
		return slogutil.LevelInfo
	}
}
