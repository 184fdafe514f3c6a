/*
scope.go - External collaborator interfaces

PURPOSE:
  The engine never implements authorization or master-data logic. It is
  handed an AccessScope (which stations may this caller see?) and a
  StationDirectory (what is this station's raw rate?), both injected.
  Keeping these behind one-method interfaces makes the engine trivially
  testable without a real auth system or master-data service.
*/
package commission

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"sort"
	"strings"
)

// =============================================================================
// CALLER IDENTITY
// =============================================================================

// Identity describes the caller on whose behalf an operation runs. The
// engine only forwards it to AccessScope and stamps CalculatedBy; it never
// interprets the role itself.
type Identity struct {
	UserID string
	Role   string
}

// SystemIdentity is used by automated triggers (the auto-calculation
// scheduler). Scope implementations typically grant it every station.
var SystemIdentity = Identity{UserID: "system", Role: "system"}

// =============================================================================
// ACCESS SCOPE - Who may see which stations
// =============================================================================

// AccessScope resolves the set of stations a caller may see. Role logic
// lives entirely behind this interface.
type AccessScope interface {
	ResolveStations(ctx context.Context, caller Identity) ([]StationID, error)
}

// StaticScope is a fixed station set, independent of the caller. Used in
// tests and in single-tenant deployments.
type StaticScope []StationID

func (s StaticScope) ResolveStations(_ context.Context, _ Identity) ([]StationID, error) {
	out := make([]StationID, len(s))
	copy(out, s)
	return out, nil
}

// StationLister enumerates every known station. Implemented by the
// station directory storage.
type StationLister interface {
	ListStations(ctx context.Context) ([]StationID, error)
}

// DirectoryScope grants every station in the directory. This is the scope
// for back-office admins and the system scheduler; per-dealer restriction
// is the (out-of-scope) authorization service's concern.
type DirectoryScope struct {
	Lister StationLister
}

func (d DirectoryScope) ResolveStations(ctx context.Context, _ Identity) ([]StationID, error) {
	return d.Lister.ListStations(ctx)
}

// IntersectScope returns the intersection of a caller-requested station set
// with the caller's visible set, preserving the visible set's order. A nil
// or empty request means "everything visible". An empty intersection is a
// valid, empty result, not an error.
func IntersectScope(visible, requested []StationID) []StationID {
	if len(requested) == 0 {
		return visible
	}
	want := make(map[StationID]bool, len(requested))
	for _, id := range requested {
		want[id] = true
	}
	var out []StationID
	for _, id := range visible {
		if want[id] {
			out = append(out, id)
		}
	}
	return out
}

// =============================================================================
// STATION DIRECTORY - Untrusted rate source
// =============================================================================

// StationDirectory supplies the raw, untrusted commission rate from station
// master data. The raw value may be empty, non-numeric, zero, negative, or
// above 1; RateResolver repairs it. ErrStationNotFound means the station
// does not exist at all.
type StationDirectory interface {
	Rate(ctx context.Context, stationID StationID) (string, error)
}

// =============================================================================
// SCOPE HASH - Cache key component
// =============================================================================

// ScopeHash digests a station set into a short stable key component, used
// by the stats cache. Order-insensitive.
func ScopeHash(stations []StationID) string {
	ids := make([]string, len(stations))
	for i, s := range stations {
		ids[i] = string(s)
	}
	sort.Strings(ids)
	sum := sha256.Sum256([]byte(strings.Join(ids, ",")))
	return hex.EncodeToString(sum[:8])
}
