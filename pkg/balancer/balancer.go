// Package balancer selects the least-loaded eligible server from a pool
// when a new meeting is started.
package balancer

import (
	"context"
	"math"
	"sort"

	"meetfleet/pkg/models"
	"meetfleet/pkg/store"
)

// Load weighting: voice and video participants cost a server more than
// passive ones, and strength scales a server's declared capacity.
const (
	voiceWeight = 2
	videoWeight = 3
)

// Pool abstracts the pool membership lookup the balancer needs.
type Pool interface {
	ListPoolServers(ctx context.Context, poolID int64) ([]models.Server, error)
}

// Balancer picks servers for new meetings.
type Balancer struct {
	pool Pool
}

// New creates a balancer backed by the given pool source (normally the store).
func New(pool Pool) *Balancer {
	return &Balancer{pool: pool}
}

var _ Pool = (*store.Store)(nil)

// score computes the normalized load of a server. Servers with unknown
// usage score infinitely high so they are never preferred over a server
// whose counts have been refreshed.
func score(s *models.Server) float64 {
	if s.ParticipantCount == nil || s.VoiceParticipantCount == nil || s.VideoCount == nil {
		return math.Inf(1)
	}
	strength := s.Strength
	if strength < 1 {
		strength = 1
	}
	load := float64(*s.ParticipantCount + voiceWeight**s.VoiceParticipantCount + videoWeight**s.VideoCount)
	return load / float64(strength)
}

// eligible reports whether a server may receive a new meeting: enabled by
// the administrator and not known to be offline.
func eligible(s *models.Server) bool {
	return s.Status == models.ServerEnabled && s.Health != models.HealthOffline
}

// Pick returns the eligible server with the lowest load score, ties broken
// by lowest server ID. A nil return with ErrNoServerAvailable means the
// pool has no capacity; the caller surfaces that, it is not retried here.
func Pick(servers []models.Server) (*models.Server, error) {
	candidates := make([]*models.Server, 0, len(servers))
	for i := range servers {
		if eligible(&servers[i]) {
			candidates = append(candidates, &servers[i])
		}
	}
	if len(candidates) == 0 {
		return nil, ErrNoServerAvailable
	}

	sort.Slice(candidates, func(i, j int) bool {
		si, sj := score(candidates[i]), score(candidates[j])
		if si != sj {
			return si < sj
		}
		return candidates[i].ID < candidates[j].ID
	})

	return candidates[0], nil
}

// PickFromPool loads a pool's members and picks one.
func (b *Balancer) PickFromPool(ctx context.Context, poolID int64) (*models.Server, error) {
	servers, err := b.pool.ListPoolServers(ctx, poolID)
	if err != nil {
		return nil, err
	}
	return Pick(servers)
}
