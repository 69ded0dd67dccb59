package api

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestJSONCodecRoundTrip(t *testing.T) {
	c := JSONCodec{}
	require.Equal(t, "json", c.Name())

	in := &HeartbeatRequest{
		TSUUID: "ts-1",
		Seqno:  42,
		Report: &TabletReport{
			Full: true,
			Tablets: []*ReportedTablet{
				{TabletID: "tab-1", TableID: "table-1", Term: 3, Role: RoleLeader, State: TabletStateRunning},
			},
		},
	}
	data, err := c.Marshal(in)
	require.NoError(t, err)

	out := new(HeartbeatRequest)
	require.NoError(t, c.Unmarshal(data, out))
	require.Equal(t, in, out)
}
