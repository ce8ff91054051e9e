package orders

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/gosimple/slug"
)

// ExistsFunc reports whether a candidate identifier is already occupied.
type ExistsFunc func(ctx context.Context, candidate string) (bool, error)

// Minter generates collision-free human-readable identifiers by probing
// a uniqueness predicate. It is pure with respect to the occupied set:
// both probes are injected so the minter never touches storage directly.
type Minter struct {
	SlugTaken   ExistsFunc
	NumberTaken ExistsFunc
}

// maxMintAttempts bounds both retry loops. Collisions need either ~16M
// matching 6-hex suffixes or 256 orders per user per second, so hitting
// the cap means the probe is lying, not that we are unlucky.
const maxMintAttempts = 256

// ProductSlug normalizes name to a URL-safe token and, while the token is
// occupied, retries with a short random suffix. Repeated calls for the
// same colliding name may return different values.
func (m *Minter) ProductSlug(ctx context.Context, name string) (string, error) {
	base := slug.Make(name)
	if base == "" {
		base = "product"
	}
	cand := base
	for i := 0; i < maxMintAttempts; i++ {
		taken, err := m.SlugTaken(ctx, cand)
		if err != nil {
			return "", err
		}
		if !taken {
			return cand, nil
		}
		cand = fmt.Sprintf("%s-%s", base, uuid.NewString()[:6])
	}
	return "", fmt.Errorf("slug for %q: %w", name, ErrMintExhausted)
}

// OrderNumber formats now to second precision plus the owner's id. While
// the candidate is occupied it advances the timestamp one second and
// retries, so two orders by one user within the same second never collide.
func (m *Minter) OrderNumber(ctx context.Context, userID string, now time.Time) (string, error) {
	for i := 0; i < maxMintAttempts; i++ {
		cand := fmt.Sprintf("%s__%s", now.Format("20060102__150405"), userID)
		taken, err := m.NumberTaken(ctx, cand)
		if err != nil {
			return "", err
		}
		if !taken {
			return cand, nil
		}
		now = now.Add(time.Second)
	}
	return "", fmt.Errorf("order number for user %s: %w", userID, ErrMintExhausted)
}
