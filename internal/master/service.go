// Package master hosts the control-plane service: heartbeat handling,
// tablet-server directory upkeep, and security bootstrap. All state is owned
// explicitly and passed in; there are no package-level singletons.
package master

import (
	"context"
	"errors"
	"log"
	"time"

	"stratadb/internal/catalog"
	"stratadb/internal/directory"
	"stratadb/internal/security"
	api "stratadb/pkg/api"
)

// ErrMissingUUID rejects heartbeats without a sender identity.
var ErrMissingUUID = errors.New("master: heartbeat missing tablet server uuid")

// HeartbeatService orchestrates one heartbeat end to end: directory refresh,
// registration, report reconciliation, then security bootstrap. Failures in
// the security step degrade the response but never fail the heartbeat.
type HeartbeatService struct {
	catalog   *catalog.Catalog
	directory *directory.Directory
	ca        *security.CertAuthority
	tsk       *security.TokenSigner
	masterReg *api.ServerRegistration

	clock func() time.Time
}

func NewHeartbeatService(
	cat *catalog.Catalog,
	dir *directory.Directory,
	ca *security.CertAuthority,
	tsk *security.TokenSigner,
	masterReg *api.ServerRegistration,
) *HeartbeatService {
	return &HeartbeatService{
		catalog:   cat,
		directory: dir,
		ca:        ca,
		tsk:       tsk,
		masterReg: masterReg,
		clock:     time.Now,
	}
}

// ProcessHeartbeat handles one heartbeat. An unknown, unregistered sender is
// told to re-register and its report is not processed; everything else is
// merged in order. The token-key set is returned unconditionally.
func (s *HeartbeatService) ProcessHeartbeat(ctx context.Context, req *api.HeartbeatRequest) (*api.HeartbeatResponse, error) {
	if req.TSUUID == "" {
		return nil, ErrMissingUUID
	}
	now := s.clock()
	resp := &api.HeartbeatResponse{
		TokenSigningKeys: tsksToAPI(s.tsk.PublicKeys()),
		Master:           s.masterReg,
	}

	if req.Registration != nil {
		if err := s.directory.Register(req.TSUUID, req.Seqno, registrationFromAPI(req.Registration), now); err != nil {
			return nil, err
		}
	} else if !s.directory.Refresh(req.TSUUID, now) {
		resp.NeedsReregister = true
		resp.NeedsFullReport = true
		return resp, nil
	}

	if req.Report != nil {
		result, err := s.catalog.ApplyTabletReport(req.TSUUID, reportFromAPI(req.Report))
		if err != nil {
			return nil, err
		}
		resp.StaleTablets = result.StaleTablets
		if len(result.IgnoredTablets) > 0 {
			log.Printf("heartbeat from %s: ignored %d tablets unknown to the catalog",
				req.TSUUID, len(result.IgnoredTablets))
		}
	}

	if len(req.CSRPEM) > 0 {
		cert, err := s.ca.SignCSR(req.CSRPEM)
		if err != nil {
			// Degraded mutual auth; the sender retries on a later heartbeat.
			log.Printf("heartbeat from %s: certificate signing failed: %v", req.TSUUID, err)
		} else {
			resp.SignedCertPEM = cert
			resp.CACertPEM = s.ca.CACertPEM()
		}
	}
	return resp, nil
}
