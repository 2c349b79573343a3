package config

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParseExtraOption(t *testing.T) {
	testCases := []struct {
		name    string
		in      string
		wantErr bool
		code    byte
		data    []byte
	}{{
		name: "hex",
		in:   "43 hex a1b2c3",
		code: 43,
		data: []byte{0xa1, 0xb2, 0xc3},
	}, {
		name: "ip",
		in:   "3 ip 192.168.1.1",
		code: 3,
		data: []byte{192, 168, 1, 1},
	}, {
		name: "ips",
		in:   "6 ips 8.8.8.8,1.1.1.1",
		code: 6,
		data: []byte{8, 8, 8, 8, 1, 1, 1, 1},
	}, {
		name: "text",
		in:   "15 text example.com",
		code: 15,
		data: []byte("example.com"),
	}, {
		name:    "bad_code",
		in:      "xx hex aa",
		wantErr: true,
	}, {
		name:    "unknown_type",
		in:      "1 frob aa",
		wantErr: true,
	}, {
		name:    "too_few_fields",
		in:      "1 hex",
		wantErr: true,
	}}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			opt, err := ParseExtraOption(tc.in)
			if tc.wantErr {
				require.Error(t, err)

				return
			}

			require.NoError(t, err)
			require.Equal(t, tc.code, opt.Code)
			require.Equal(t, tc.data, opt.Data)
		})
	}
}
