package worker

import (
	"math/rand/v2"
	"sync"

	"github.com/ppiankov/patentscan/internal/model"
)

// Rotation policies
const (
	RotationRoundRobin = "round_robin"
	RotationRandom     = "random"
)

// Rotator hands out identities and egress proxies for new jobs
type Rotator struct {
	identities []model.Identity
	proxies    []string
	policy     string
	mu         sync.Mutex
	next       int
	rnd        *rand.Rand
}

// NewRotator creates a rotator. An empty proxy pool means every job goes
// direct. seed only affects the random policy.
func NewRotator(identities []model.Identity, proxies []string, policy string, seed uint64) *Rotator {
	if len(identities) == 0 {
		identities = []model.Identity{{}}
	}
	return &Rotator{
		identities: identities,
		proxies:    proxies,
		policy:     policy,
		rnd:        rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15)),
	}
}

// IdentitiesFromConfig pairs every configured user agent with the shared header set
func IdentitiesFromConfig(cfg model.IdentityConfig) []model.Identity {
	identities := make([]model.Identity, 0, len(cfg.UserAgents))
	for _, ua := range cfg.UserAgents {
		identities = append(identities, model.Identity{UserAgent: ua, Headers: cfg.Headers})
	}
	return identities
}

// Next returns the identity and proxy for the next job
func (r *Rotator) Next() (model.Identity, string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var identity model.Identity
	var proxy string

	switch r.policy {
	case RotationRandom:
		identity = r.identities[r.rnd.IntN(len(r.identities))]
		if len(r.proxies) > 0 {
			proxy = r.proxies[r.rnd.IntN(len(r.proxies))]
		}
	default:
		identity = r.identities[r.next%len(r.identities)]
		if len(r.proxies) > 0 {
			proxy = r.proxies[r.next%len(r.proxies)]
		}
		r.next++
	}

	return identity, proxy
}

// Job builds the FetchJob for number
func (r *Rotator) Job(number, url string) model.FetchJob {
	identity, proxy := r.Next()
	return model.FetchJob{
		Number:    number,
		URL:       url,
		Identity:  identity,
		Proxy:     proxy,
		PacingKey: model.PacingKeyFor(proxy),
	}
}
