package dhcp4_test

import (
	"net"
	"net/netip"
	"testing"

	"github.com/devnetd/devnetd/internal/dhcp4"
	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"
)

func TestEncodeDecode_roundTrip(t *testing.T) {
	hw := net.HardwareAddr{0x02, 0x00, 0x00, 0x00, 0x00, 0x11}

	m := &dhcp4.Message{
		Op:            dhcp4.BootRequest,
		HType:         1,
		Hops:          0,
		TransactionID: 0xDEADBEEF,
		Secs:          7,
		Flags:         dhcp4.FlagBroadcast,
		ClientAddr:    netip.Addr{},
		YourAddr:      netip.Addr{},
		NextServer:    netip.Addr{},
		GatewayAddr:   netip.Addr{},
		ClientHWAddr:  hw,
		ServerName:    "",
		BootFilename:  "",
		Options: dhcp4.Options{
			dhcp4.OptMessageType:      {byte(dhcp4.Discover)},
			dhcp4.OptParamRequestList: {1, 3, 6},
			// An unknown option code must round-trip unchanged.
			200: {1, 2, 3, 4},
		},
	}

	b, err := dhcp4.Encode(m, 576, nil)
	require.NoError(t, err)

	got, err := dhcp4.Decode(b)
	require.NoError(t, err)

	require.Equal(t, m.Op, got.Op)
	require.Equal(t, m.TransactionID, got.TransactionID)
	require.Equal(t, m.Flags, got.Flags)
	require.True(t, m.ClientHWAddr.String() == got.ClientHWAddr.String())

	if diff := cmp.Diff(m.Options, got.Options); diff != "" {
		t.Errorf("options mismatch (-want +got):\n%s", diff)
	}
}

func TestEncode_shortBuffer(t *testing.T) {
	m := &dhcp4.Message{
		Op: dhcp4.BootReply,
		Options: dhcp4.Options{
			dhcp4.OptMessageType: {byte(dhcp4.Ack)},
			50:                   make([]byte, 400),
		},
	}

	_, err := dhcp4.Encode(m, dhcp4.MinOptionsBudget, nil)
	require.Error(t, err)

	var shortBuf *dhcp4.ShortBuffer
	require.ErrorAs(t, err, &shortBuf)
}

func TestDecode_malformed(t *testing.T) {
	testCases := []struct {
		name string
		b    []byte
	}{
		{
			name: "too_short",
			b:    make([]byte, 10),
		},
		{
			name: "bad_cookie",
			b:    make([]byte, 240),
		},
		{
			name: "option_without_length",
			b:    append(validHeader(), 1),
		},
		{
			name: "option_payload_truncated",
			b:    append(validHeader(), 1, 4, 0, 0),
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := dhcp4.Decode(tc.b)
			require.Error(t, err)

			var malformed *dhcp4.Malformed
			require.ErrorAs(t, err, &malformed)
		})
	}
}

func validHeader() (b []byte) {
	b = make([]byte, 240)
	copy(b[236:240], []byte{99, 130, 83, 99})

	return b
}

func TestOptions_helpers(t *testing.T) {
	opts := dhcp4.Options{
		dhcp4.OptLeaseTime:        {0, 0, 0x0e, 0x10},
		dhcp4.OptMessageType:      {byte(dhcp4.Ack)},
		dhcp4.OptParamRequestList: {1, 108},
	}

	v, ok := opts.Uint32(dhcp4.OptLeaseTime)
	require.True(t, ok)
	require.Equal(t, uint32(3600), v)

	b, ok := opts.Byte(dhcp4.OptMessageType)
	require.True(t, ok)
	require.Equal(t, byte(dhcp4.Ack), b)

	require.True(t, opts.HasParam(dhcp4.OptIPv6OnlyPreferred))
	require.False(t, opts.HasParam(dhcp4.OptRouter))
}
