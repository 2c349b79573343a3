// Command devnetd is the process entry point wiring the DHCPv4 server and
// the device-node symlink arbiter to their configuration.  It is
// integration glue, not a CLI: the configuration file path is its only
// input, and it takes no flags of its own beyond what [service.Service]
// needs to install/run as an OS service.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"os"
	"time"

	"github.com/kardianos/service"

	"github.com/devnetd/devnetd/internal/arbiter"
	"github.com/devnetd/devnetd/internal/config"
	"github.com/devnetd/devnetd/internal/dhcpsvc"
)

// defaultConfigPath is used when DEVNETD_CONFIG is unset.
const defaultConfigPath = "/etc/devnetd/config.yaml"

func main() {
	configPath := os.Getenv("DEVNETD_CONFIG")
	if configPath == "" {
		configPath = defaultConfigPath
	}

	conf, err := config.Load(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "devnetd: %s\n", err)
		os.Exit(1)
	}

	logger := config.NewLogger(&conf.Logging)

	prg := &program{conf: conf, logger: logger, confPath: configPath}

	svc, err := service.New(prg, &service.Config{
		Name:        "devnetd",
		DisplayName: "devnetd DHCP/device-link service",
		Description: "Serves DHCPv4 leases and maintains device-node symlinks.",
	})
	if err != nil {
		logger.Error("creating service", "err", err)
		os.Exit(1)
	}

	if err = svc.Run(); err != nil {
		logger.Error("running service", "err", err)
		os.Exit(1)
	}
}

// program implements [service.Interface], wiring the two cores' lifecycles
// to the service manager's start/stop calls.
type program struct {
	conf     *config.Config
	logger   *slog.Logger
	confPath string
	dhcp     *dhcpsvc.Server
	watcher  *config.Watcher
	cancel   context.CancelFunc
}

// type check
var _ service.Interface = (*program)(nil)

// Start implements the [service.Interface] interface for *program.
func (p *program) Start(s service.Service) (err error) {
	ctx, cancel := context.WithCancel(context.Background())
	p.cancel = cancel

	iface, err := net.InterfaceByName(p.conf.DHCP.Interface)
	if err != nil {
		return fmt.Errorf("resolving interface %q: %w", p.conf.DHCP.Interface, err)
	}

	transport, err := dhcpsvc.NewTransport(iface, p.conf.DHCP.Address)
	if err != nil {
		return fmt.Errorf("opening transport: %w", err)
	}

	dhcpConf := buildDHCPConfig(p.conf, p.logger, transport)

	p.dhcp, err = dhcpsvc.New(dhcpConf, p.conf.DHCP.Interface)
	if err != nil {
		return fmt.Errorf("starting dhcp server: %w", err)
	}

	go func() {
		if runErr := p.dhcp.Start(ctx); runErr != nil {
			p.logger.Error("dhcp server stopped", "err", runErr)
		}
	}()

	a := arbiter.New(p.logger, nil, p.conf.Arbiter.StackDir, p.conf.Arbiter.DevRoot)
	_ = a // device events are fed in by a platform-specific spawner outside this module's scope

	watcher, err := config.NewWatcher(p.logger, p.confPath, func(*config.Config) {
		// Reconciling a running dispatcher/transport against a changed
		// configuration is out of scope; note that a restart is needed.
		p.logger.Warn("configuration changed on disk; restart to apply")
	})
	if err != nil {
		p.logger.Warn("not watching configuration file for changes", "err", err)
	} else {
		p.watcher = watcher
		go watcher.Run(ctx)
	}

	return nil
}

// Stop implements the [service.Interface] interface for *program.
func (p *program) Stop(s service.Service) (err error) {
	if p.cancel != nil {
		p.cancel()
	}

	if p.watcher != nil {
		p.watcher.Close()
	}

	if p.dhcp != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		return p.dhcp.Shutdown(ctx)
	}

	return nil
}

// buildDHCPConfig translates the on-disk [config.DHCPConfig] into a
// [dhcpsvc.Config], constructing the optional ICMP checker and static
// leases along the way.
func buildDHCPConfig(c *config.Config, logger *slog.Logger, transport dhcpsvc.Transport) (dc *dhcpsvc.Config) {
	dc = &dhcpsvc.Config{
		Logger:           logger,
		Transport:        transport,
		DBFilePath:       c.DHCP.DBFilePath,
		Address:          c.DHCP.Address,
		Subnet:           c.DHCP.Subnet,
		PoolOffset:       c.DHCP.PoolOffset,
		PoolSize:         c.DHCP.PoolSize,
		DefaultLeaseTime: c.DHCP.DefaultLeaseTime,
		MaxLeaseTime:     c.DHCP.MaxLeaseTime,
		MaxOptionsLen:    int(c.DHCP.MaxOptionsLen.Bytes()),
		RelayTarget:      c.DHCP.RelayTarget,
		RouterAddress:    c.DHCP.RouterAddress,
		Timezone:         c.DHCP.Timezone,
		DNSServers:       c.DHCP.DNSServers,
		NTPServers:       c.DHCP.NTPServers,
	}

	if c.DHCP.ICMPProbe {
		dc.AddressChecker = &dhcpsvc.ICMPChecker{Timeout: c.DHCP.ICMPTimeout}
	}

	extra, err := config.ParseExtraOptions(c.DHCP.ExtraOptions)
	if err != nil {
		logger.Warn("skipping malformed extra options", "err", err)
	} else {
		dc.ExtraOptions = extra
	}

	for _, sl := range c.DHCP.StaticLeases {
		hw, err := net.ParseMAC(sl.HWAddr)
		if err != nil {
			logger.Warn("skipping static lease with invalid hardware address", "hw_addr", sl.HWAddr)

			continue
		}

		dc.StaticLeases = append(dc.StaticLeases, &dhcpsvc.Lease{
			ClientID: dhcpsvc.ClientID(append([]byte{0x01}, hw...)),
			Address:  sl.Address,
			HWAddr:   hw,
			Hostname: sl.Hostname,
			IsStatic: true,
		})
	}

	return dc
}
