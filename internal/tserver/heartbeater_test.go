package tserver

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"stratadb/internal/security"
	api "stratadb/pkg/api"
)

type fakeMaster struct {
	mu      sync.Mutex
	reqs    []*api.HeartbeatRequest
	respond func(*api.HeartbeatRequest) (*api.HeartbeatResponse, error)
}

func (f *fakeMaster) Heartbeat(_ context.Context, req *api.HeartbeatRequest) (*api.HeartbeatResponse, error) {
	f.mu.Lock()
	f.reqs = append(f.reqs, req)
	respond := f.respond
	f.mu.Unlock()
	if respond != nil {
		return respond(req)
	}
	return &api.HeartbeatResponse{}, nil
}

func (f *fakeMaster) requests() []*api.HeartbeatRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]*api.HeartbeatRequest(nil), f.reqs...)
}

func newTestHeartbeater(t *testing.T, fake *fakeMaster) (*Heartbeater, *TabletManager) {
	t.Helper()
	tablets, err := OpenTabletManager(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { _ = tablets.Close() })

	h := NewHeartbeater(HeartbeaterOptions{
		Client:  fake,
		Tablets: tablets,
		UUID:    "ts-1",
		Registration: &api.ServerRegistration{
			RPCAddresses: []api.HostPort{{Host: "127.0.0.1", Port: 7050}},
		},
		Interval: time.Second,
		Timeout:  time.Second,
	})
	return h, tablets
}

func TestFirstHeartbeatRegistersWithFullReportAndCSR(t *testing.T) {
	fake := &fakeMaster{}
	h, tablets := newTestHeartbeater(t, fake)
	require.NoError(t, tablets.AddReplica("tab-1", "table-1", api.RoleLeader))

	require.Equal(t, StateUnregistered, h.State())
	require.NoError(t, h.heartbeatOnce(context.Background()))
	require.Equal(t, StateRegistered, h.State())

	reqs := fake.requests()
	require.Len(t, reqs, 1)
	require.Equal(t, "ts-1", reqs[0].TSUUID)
	require.NotNil(t, reqs[0].Registration)
	require.True(t, reqs[0].Report.Full)
	require.Len(t, reqs[0].Report.Tablets, 1)
	require.NotEmpty(t, reqs[0].CSRPEM, "no cert yet, so a CSR goes along")

	// Once registered, heartbeats are bare and incremental.
	require.NoError(t, h.heartbeatOnce(context.Background()))
	reqs = fake.requests()
	require.Len(t, reqs, 2)
	require.Nil(t, reqs[1].Registration)
	require.False(t, reqs[1].Report.Full)
	require.Empty(t, reqs[1].Report.Tablets, "first report was acked")
}

func TestHeartbeatImportsSecurityMaterial(t *testing.T) {
	signer, err := security.NewTokenSigner(time.Hour)
	require.NoError(t, err)
	ca, err := security.NewCertAuthority("test")
	require.NoError(t, err)

	fake := &fakeMaster{}
	fake.respond = func(req *api.HeartbeatRequest) (*api.HeartbeatResponse, error) {
		resp := &api.HeartbeatResponse{}
		for _, k := range signer.PublicKeys() {
			resp.TokenSigningKeys = append(resp.TokenSigningKeys, &api.TokenSigningKey{
				KeyID:      k.KeyID,
				PublicKey:  k.PublicKey,
				ExpireUnix: k.ExpireUnix,
			})
		}
		if len(req.CSRPEM) > 0 {
			cert, err := ca.SignCSR(req.CSRPEM)
			if err != nil {
				return nil, err
			}
			resp.SignedCertPEM = cert
			resp.CACertPEM = ca.CACertPEM()
		}
		return resp, nil
	}

	h, _ := newTestHeartbeater(t, fake)
	require.False(t, h.HasSignedCert())
	require.NoError(t, h.heartbeatOnce(context.Background()))
	require.True(t, h.HasSignedCert())

	keyID, sig, err := signer.Sign([]byte("token"))
	require.NoError(t, err)
	require.True(t, h.Verifier().Verify(keyID, []byte("token"), sig))

	// With a cert in hand, later heartbeats stop sending CSRs.
	require.NoError(t, h.heartbeatOnce(context.Background()))
	reqs := fake.requests()
	require.Empty(t, reqs[len(reqs)-1].CSRPEM)
}

func TestNeedsReregisterGoesBackToRegistering(t *testing.T) {
	fake := &fakeMaster{}
	h, tablets := newTestHeartbeater(t, fake)
	require.NoError(t, tablets.AddReplica("tab-1", "table-1", api.RoleLeader))

	require.NoError(t, h.heartbeatOnce(context.Background()))
	require.Equal(t, StateRegistered, h.State())

	// The master restarted and lost the directory.
	fake.mu.Lock()
	fake.respond = func(*api.HeartbeatRequest) (*api.HeartbeatResponse, error) {
		return &api.HeartbeatResponse{NeedsReregister: true, NeedsFullReport: true}, nil
	}
	fake.mu.Unlock()
	require.NoError(t, h.heartbeatOnce(context.Background()))
	require.Equal(t, StateRegistering, h.State())

	fake.mu.Lock()
	fake.respond = nil
	fake.mu.Unlock()
	require.NoError(t, h.heartbeatOnce(context.Background()))
	require.Equal(t, StateRegistered, h.State())

	reqs := fake.requests()
	last := reqs[len(reqs)-1]
	require.NotNil(t, last.Registration, "re-registration carries the block again")
	require.True(t, last.Report.Full)
	require.Len(t, last.Report.Tablets, 1)
}

func TestFailedHeartbeatKeepsReportPending(t *testing.T) {
	fake := &fakeMaster{}
	h, tablets := newTestHeartbeater(t, fake)
	require.NoError(t, h.heartbeatOnce(context.Background()))

	require.NoError(t, tablets.AddReplica("tab-1", "table-1", api.RoleLeader))

	fake.mu.Lock()
	fake.respond = func(*api.HeartbeatRequest) (*api.HeartbeatResponse, error) {
		return nil, errors.New("connection refused")
	}
	fake.mu.Unlock()
	require.Error(t, h.heartbeatOnce(context.Background()))

	fake.mu.Lock()
	fake.respond = nil
	fake.mu.Unlock()
	require.NoError(t, h.heartbeatOnce(context.Background()))

	reqs := fake.requests()
	last := reqs[len(reqs)-1]
	require.Len(t, last.Report.Tablets, 1, "unacked change is re-sent")
}

func TestMasterRequestedFullReport(t *testing.T) {
	fake := &fakeMaster{}
	h, tablets := newTestHeartbeater(t, fake)
	require.NoError(t, tablets.AddReplica("tab-1", "table-1", api.RoleLeader))
	require.NoError(t, h.heartbeatOnce(context.Background()))

	fake.mu.Lock()
	fake.respond = func(*api.HeartbeatRequest) (*api.HeartbeatResponse, error) {
		return &api.HeartbeatResponse{NeedsFullReport: true}, nil
	}
	fake.mu.Unlock()
	require.NoError(t, h.heartbeatOnce(context.Background()))

	fake.mu.Lock()
	fake.respond = nil
	fake.mu.Unlock()
	require.NoError(t, h.heartbeatOnce(context.Background()))

	reqs := fake.requests()
	last := reqs[len(reqs)-1]
	require.True(t, last.Report.Full)
	require.Len(t, last.Report.Tablets, 1)
}

func TestRunStopsOnContextCancel(t *testing.T) {
	fake := &fakeMaster{}
	h, _ := newTestHeartbeater(t, fake)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		h.Run(ctx)
		close(done)
	}()

	deadline := time.After(2 * time.Second)
	for len(fake.requests()) == 0 {
		select {
		case <-deadline:
			t.Fatal("no heartbeat sent")
		case <-time.After(10 * time.Millisecond):
		}
	}
	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not stop")
	}
}
