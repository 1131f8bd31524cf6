package shared

// List page sizes shared by every listing endpoint.
const (
	DefaultListLimit = 50
	MaxListLimit     = 200
)

// PageLimit defaults a non-positive limit and clamps the rest to MaxListLimit.
func PageLimit(limit int) int {
	if limit <= 0 {
		return DefaultListLimit
	}
	return min(limit, MaxListLimit)
}
