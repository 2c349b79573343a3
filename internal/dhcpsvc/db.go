package dhcpsvc

import (
	"bufio"
	"encoding/hex"
	"errors"
	"fmt"
	"net"
	"net/netip"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/google/renameio/v2/maybe"
)

// databasePerm is the file mode used for the lease-persistence file,
// matching the teacher's databasePerm.
const databasePerm = 0o640

// leaseVersion is written as a leading comment line so that a future format
// revision has somewhere to signal itself; it is not otherwise interpreted.
const leaseVersion = 1

// loadLeases populates s.leases from s.conf.DBFilePath, tolerating a missing
// file (first run).  Each line is one record:
//
//	client-id(hex) address(dotted) hw-addr(hex) expiry(unix-seconds) [hostname] [gateway]
func (s *Server) loadLeases() (err error) {
	f, err := os.Open(s.conf.DBFilePath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}

		return fmt.Errorf("opening %q: %w", s.conf.DBFilePath, err)
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		l, lineErr := parseLeaseLine(line)
		if lineErr != nil {
			s.logger.Warn("skipping malformed lease record", slogError(lineErr))

			continue
		}

		if insErr := s.leases.insert(l); insErr != nil {
			s.logger.Warn("skipping duplicate lease record", slogError(insErr))

			continue
		}

		s.pool.reserve(l.Address)
	}

	return scanner.Err()
}

// parseLeaseLine parses one line of the persisted lease format.
func parseLeaseLine(line string) (l *Lease, err error) {
	fields := strings.Fields(line)
	if len(fields) < 4 {
		return nil, fmt.Errorf("too few fields: %d", len(fields))
	}

	clientIDBytes, err := hex.DecodeString(fields[0])
	if err != nil {
		return nil, fmt.Errorf("client id: %w", err)
	}

	addr, err := netip.ParseAddr(fields[1])
	if err != nil {
		return nil, fmt.Errorf("address: %w", err)
	}

	hw, err := net.ParseMAC(formatMAC(fields[2]))
	if err != nil {
		return nil, fmt.Errorf("hardware address: %w", err)
	}

	expirySec, err := strconv.ParseInt(fields[3], 10, 64)
	if err != nil {
		return nil, fmt.Errorf("expiry: %w", err)
	}

	l = &Lease{
		ClientID: ClientID(clientIDBytes),
		Address:  addr,
		HWAddr:   hw,
		Expiry:   time.Unix(expirySec, 0),
	}

	if len(fields) > 4 && fields[4] != "-" {
		l.Hostname = fields[4]
	}

	if len(fields) > 5 && fields[5] != "-" {
		if gw, gwErr := netip.ParseAddr(fields[5]); gwErr == nil {
			l.Gateway = gw
		}
	}

	return l, nil
}

// formatMAC reinserts colons into a bare hex MAC so [net.ParseMAC] accepts
// it; the persisted format stores hardware addresses without separators.
func formatMAC(hexStr string) (s string) {
	var sb strings.Builder
	for i := 0; i < len(hexStr); i += 2 {
		if i > 0 {
			sb.WriteByte(':')
		}

		end := i + 2
		if end > len(hexStr) {
			end = len(hexStr)
		}

		sb.WriteString(hexStr[i:end])
	}

	return sb.String()
}

// persist rewrites the lease database atomically.  It is a no-op if no
// DBFilePath is configured.  Failures are logged, not propagated, matching
// the event-loop error-propagation policy (§7): lease persistence is a
// durability nicety, not something worth dropping a client's ACK over.
func (s *Server) persist() {
	if s.conf.DBFilePath == "" {
		return
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "#version %d\n", leaseVersion)

	for _, l := range s.leases.all() {
		if l.IsStatic {
			continue
		}

		writeLeaseLine(&sb, l)
	}

	err := maybe.WriteFile(s.conf.DBFilePath, []byte(sb.String()), databasePerm)
	if err != nil {
		s.logger.Error("persisting lease database", slogError(err))
	}
}

// writeLeaseLine appends one lease's persisted-format line to sb.
func writeLeaseLine(sb *strings.Builder, l *Lease) {
	hostname := l.Hostname
	if hostname == "" {
		hostname = "-"
	}

	gateway := "-"
	if l.Gateway.IsValid() {
		gateway = l.Gateway.String()
	}

	fmt.Fprintf(
		sb,
		"%s %s %s %d %s %s\n",
		hex.EncodeToString([]byte(l.ClientID)),
		l.Address,
		strings.ReplaceAll(l.HWAddr.String(), ":", ""),
		l.Expiry.Unix(),
		hostname,
		gateway,
	)
}
