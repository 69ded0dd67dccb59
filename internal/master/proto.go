package master

import (
	"fmt"
	"time"

	"stratadb/internal/catalog"
	"stratadb/internal/directory"
	"stratadb/internal/schema"
	"stratadb/internal/security"
	api "stratadb/pkg/api"
)

func registrationFromAPI(p *api.ServerRegistration) directory.Registration {
	reg := directory.Registration{
		HTTPSEnabled:    p.HTTPSEnabled,
		SoftwareVersion: p.SoftwareVersion,
	}
	if p.StartTimeUnix > 0 {
		reg.StartTime = time.Unix(p.StartTimeUnix, 0)
	}
	for _, hp := range p.RPCAddresses {
		reg.RPCAddresses = append(reg.RPCAddresses, hp.String())
	}
	for _, hp := range p.HTTPAddresses {
		reg.HTTPAddresses = append(reg.HTTPAddresses, hp.String())
	}
	return reg
}

func reportFromAPI(p *api.TabletReport) catalog.TabletReport {
	report := catalog.TabletReport{Full: p.Full}
	for _, t := range p.Tablets {
		report.Tablets = append(report.Tablets, catalog.ReportedReplica{
			TabletID: t.TabletID,
			TableID:  t.TableID,
			Term:     t.Term,
			Role:     roleFromAPI(t.Role),
			State:    tabletStateFromAPI(t.State),
		})
	}
	return report
}

func roleFromAPI(r api.ReplicaRole) catalog.ReplicaRole {
	switch r {
	case api.RoleLeader:
		return catalog.RoleLeader
	case api.RoleLearner:
		return catalog.RoleLearner
	default:
		return catalog.RoleFollower
	}
}

func roleToAPI(r catalog.ReplicaRole) api.ReplicaRole {
	switch r {
	case catalog.RoleLeader:
		return api.RoleLeader
	case catalog.RoleLearner:
		return api.RoleLearner
	default:
		return api.RoleFollower
	}
}

func tabletStateFromAPI(s api.TabletState) catalog.TabletState {
	switch s {
	case api.TabletStateCreating:
		return catalog.TabletCreating
	case api.TabletStateDeleted:
		return catalog.TabletDeleted
	default:
		return catalog.TabletRunning
	}
}

func tsksToAPI(keys []security.PublicTSK) []*api.TokenSigningKey {
	out := make([]*api.TokenSigningKey, 0, len(keys))
	for _, k := range keys {
		out = append(out, &api.TokenSigningKey{
			KeyID:      k.KeyID,
			PublicKey:  k.PublicKey,
			ExpireUnix: k.ExpireUnix,
		})
	}
	return out
}

// SchemaFromAPI converts a wire schema, rejecting nil as malformed.
func SchemaFromAPI(p *api.TableSchema) (schema.Schema, error) {
	if p == nil {
		return schema.Schema{}, fmt.Errorf("%w: missing schema", schema.ErrInvalidSchema)
	}
	s := schema.Schema{KeyColumns: p.KeyColumns}
	for _, col := range p.Columns {
		s.Columns = append(s.Columns, schema.Column{
			Name:     col.Name,
			Type:     schema.ColumnType(col.Type),
			Nullable: col.Nullable,
		})
	}
	return s, nil
}

// SchemaToAPI converts an internal schema for the wire.
func SchemaToAPI(s schema.Schema) *api.TableSchema {
	out := &api.TableSchema{KeyColumns: s.KeyColumns}
	for _, col := range s.Columns {
		out.Columns = append(out.Columns, &api.ColumnSchema{
			Name:     col.Name,
			Type:     string(col.Type),
			Nullable: col.Nullable,
		})
	}
	return out
}

// ReplicasToAPI converts replica locations for GetTabletLocations.
func ReplicasToAPI(replicas []catalog.ReplicaLocation) []*api.TabletReplica {
	out := make([]*api.TabletReplica, 0, len(replicas))
	for _, r := range replicas {
		out = append(out, &api.TabletReplica{TSUUID: r.TSUUID, Role: roleToAPI(r.Role)})
	}
	return out
}
