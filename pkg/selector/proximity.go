package selector

import (
	orbgeo "github.com/paulmach/orb/geo"
	"github.com/uber/h3-go/v4"

	"wayfarer/pkg/model"
)

// backupRangeMeters is how far a backup may sit from its primary when it
// matches neither category nor period.
const backupRangeMeters = 2000

// proximityRes is the H3 resolution for the coarse neighborhood check.
// Res-8 cells are roughly 1 km across.
const proximityRes = 8

// proximityMaxK is the largest grid distance that can still be within
// backupRangeMeters at proximityRes.
const proximityMaxK = 4

// WithinBackupRange reports whether two points are at most 2 km apart.
// An H3 grid-distance check rejects far-apart pairs before the exact
// great-circle computation.
func WithinBackupRange(a, b *model.GeoPoint) bool {
	if !a.Valid() || !b.Valid() {
		return false
	}

	ca, errA := h3.LatLngToCell(h3.NewLatLng(a.Lat, a.Lon), proximityRes)
	cb, errB := h3.LatLngToCell(h3.NewLatLng(b.Lat, b.Lon), proximityRes)
	if errA == nil && errB == nil {
		if gd, err := h3.GridDistance(ca, cb); err == nil && gd > proximityMaxK {
			return false
		}
	}

	return orbgeo.Distance(a.Point(), b.Point()) <= backupRangeMeters
}
