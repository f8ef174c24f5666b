// Package identity issues the public ids of content items and rewrites the
// cross-links that embed them.
//
// Public ids live in three bands. Legitimate content uses [1, ParkingBase).
// [ParkingBase, TempBase) parks integrity leftovers found during a reorder,
// and ids above TempBase stage items while a reorder moves them.
package identity

const (
	// ParkingBase is the first id of the parking band. The allocator ignores
	// every id at or above it.
	ParkingBase = 50000

	// TempBase is the origin of the staging band. A reorder stages the item
	// of rank r at TempBase + r.
	TempBase = 100000
)

// IsReserved reports whether id lies in scratch space rather than being
// usable by legitimate content.
func IsReserved(id int) bool {
	return id >= ParkingBase
}

// IsLegitimate reports whether id may be held by live content.
func IsLegitimate(id int) bool {
	return id > 0 && id < ParkingBase
}

// StagingID returns the staging slot of an item of the given rank.
func StagingID(rank int) int {
	return TempBase + rank
}
