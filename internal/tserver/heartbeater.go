package tserver

import (
	"context"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"stratadb/internal/security"
	api "stratadb/pkg/api"
)

// State is the heartbeater's registration state.
type State int32

const (
	StateUnregistered State = iota
	StateRegistering
	StateRegistered
	StateReconnecting
)

func (s State) String() string {
	switch s {
	case StateUnregistered:
		return "UNREGISTERED"
	case StateRegistering:
		return "REGISTERING"
	case StateRegistered:
		return "REGISTERED"
	case StateReconnecting:
		return "RECONNECTING"
	default:
		return "UNKNOWN"
	}
}

// MasterClient is the subset of the master API the heartbeater needs.
// Implemented by mastergrpc.Client.
type MasterClient interface {
	Heartbeat(ctx context.Context, req *api.HeartbeatRequest) (*api.HeartbeatResponse, error)
}

const maxBackoffIntervals = 32

// Heartbeater runs the periodic heartbeat task of a tablet server. It is
// independent of the storage serving path: a failed heartbeat degrades
// reporting, never serving. At most one heartbeat is in flight at a time, by
// construction of the synchronous loop.
type Heartbeater struct {
	client   MasterClient
	tablets  *TabletManager
	verifier *security.TokenVerifier

	uuid         string
	seqno        int64
	registration *api.ServerRegistration
	interval     time.Duration
	timeout      time.Duration

	state    atomic.Int32
	failures int

	mu         sync.Mutex
	needFull   bool
	csrPEM     []byte
	certKeyPEM []byte
	signedCert []byte
	caCert     []byte
}

type HeartbeaterOptions struct {
	Client       MasterClient
	Tablets      *TabletManager
	UUID         string
	Registration *api.ServerRegistration
	Interval     time.Duration
	Timeout      time.Duration
}

func NewHeartbeater(opts HeartbeaterOptions) *Heartbeater {
	if opts.Interval <= 0 {
		opts.Interval = 2 * time.Second
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 5 * time.Second
	}
	h := &Heartbeater{
		client:       opts.Client,
		tablets:      opts.Tablets,
		verifier:     security.NewTokenVerifier(),
		uuid:         opts.UUID,
		seqno:        time.Now().UnixNano(),
		registration: opts.Registration,
		interval:     opts.Interval,
		timeout:      opts.Timeout,
		needFull:     true,
	}
	h.state.Store(int32(StateUnregistered))
	return h
}

// State returns the current registration state.
func (h *Heartbeater) State() State {
	return State(h.state.Load())
}

// Verifier exposes the token keys learned from heartbeat responses.
func (h *Heartbeater) Verifier() *security.TokenVerifier {
	return h.verifier
}

// HasSignedCert reports whether bootstrap delivered a certificate.
func (h *Heartbeater) HasSignedCert() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.signedCert) > 0
}

// Run heartbeats until ctx is done. The first heartbeat goes out
// immediately; failures back off exponentially, bounded, with no retry cap.
func (h *Heartbeater) Run(ctx context.Context) {
	for {
		if err := h.heartbeatOnce(ctx); err != nil {
			if ctx.Err() != nil {
				return
			}
			h.failures++
			h.state.Store(int32(StateReconnecting))
			log.Printf("heartbeat to master failed (attempt %d): %v; still serving", h.failures, err)
		} else {
			h.failures = 0
		}

		wait := h.interval
		if h.failures > 0 {
			shift := h.failures - 1
			if shift > 5 {
				shift = 5
			}
			mult := 1 << shift
			if mult > maxBackoffIntervals {
				mult = maxBackoffIntervals
			}
			wait = h.interval * time.Duration(mult)
		}
		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}
	}
}

func (h *Heartbeater) heartbeatOnce(ctx context.Context) error {
	state := h.State()
	registering := state != StateRegistered
	if registering {
		h.state.Store(int32(StateRegistering))
	}

	h.mu.Lock()
	full := h.needFull || registering
	csr := h.maybeCSRLocked()
	h.mu.Unlock()

	report, seq := h.tablets.BuildReport(full)
	req := &api.HeartbeatRequest{
		TSUUID: h.uuid,
		Seqno:  h.seqno,
		Report: report,
		CSRPEM: csr,
	}
	if registering {
		req.Registration = h.registration
	}

	callCtx, cancel := context.WithTimeout(ctx, h.timeout)
	defer cancel()
	resp, err := h.client.Heartbeat(callCtx, req)
	if err != nil {
		return err
	}

	h.verifier.ImportKeys(tsksFromAPI(resp.TokenSigningKeys))

	h.mu.Lock()
	if len(resp.SignedCertPEM) > 0 && len(h.signedCert) == 0 {
		h.signedCert = resp.SignedCertPEM
		h.caCert = resp.CACertPEM
	}
	h.needFull = resp.NeedsFullReport
	h.mu.Unlock()

	if resp.NeedsReregister {
		// Master does not recognize us; next heartbeat carries the
		// registration block and a full report.
		h.state.Store(int32(StateRegistering))
		return nil
	}
	h.state.Store(int32(StateRegistered))
	h.tablets.AckReport(seq)
	if len(resp.StaleTablets) > 0 {
		// The master holds newer terms than we reported; resend current
		// state on the next pass.
		h.mu.Lock()
		h.needFull = true
		h.mu.Unlock()
		log.Printf("master rejected %d stale tablet entries; scheduling full report", len(resp.StaleTablets))
	}
	return nil
}

// maybeCSRLocked returns a signing request while no certificate is held.
func (h *Heartbeater) maybeCSRLocked() []byte {
	if len(h.signedCert) > 0 {
		return nil
	}
	if h.csrPEM == nil {
		csr, key, err := security.NewCSR(h.uuid)
		if err != nil {
			log.Printf("generate certificate request: %v", err)
			return nil
		}
		h.csrPEM = csr
		h.certKeyPEM = key
	}
	return h.csrPEM
}

func tsksFromAPI(keys []*api.TokenSigningKey) []security.PublicTSK {
	out := make([]security.PublicTSK, 0, len(keys))
	for _, k := range keys {
		out = append(out, security.PublicTSK{
			KeyID:      k.KeyID,
			PublicKey:  k.PublicKey,
			ExpireUnix: k.ExpireUnix,
		})
	}
	return out
}
