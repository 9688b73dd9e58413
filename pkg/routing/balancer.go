package routing

import "sync"

// LoadBalancer picks the next address from an ordered candidate set using
// least-connected-first selection, with round-robin as the tie-break among
// equally-loaded candidates (spec.md §4.8). It keeps one rotation index per
// role so readers and writers rotate independently.
type LoadBalancer struct {
	mu       sync.Mutex
	rotation map[string]int // role -> next round-robin starting offset
}

// NewLoadBalancer returns a ready-to-use LoadBalancer.
func NewLoadBalancer() *LoadBalancer {
	return &LoadBalancer{rotation: make(map[string]int)}
}

// InUseCounter reports how many connections are currently checked out for
// address, so the balancer can rank candidates by load.
type InUseCounter interface {
	InUse(address string) int
}

// Pick selects one address from candidates, preferring the least-loaded;
// ties are broken by rotating through the tied candidates in turn so load
// spreads evenly over time. Returns "" if candidates is empty.
func (lb *LoadBalancer) Pick(role string, candidates []string, counts InUseCounter) string {
	if len(candidates) == 0 {
		return ""
	}

	lb.mu.Lock()
	start := lb.rotation[role]
	lb.rotation[role] = (start + 1) % len(candidates)
	lb.mu.Unlock()

	best := ""
	bestLoad := -1
	for i := 0; i < len(candidates); i++ {
		addr := candidates[(start+i)%len(candidates)]
		load := counts.InUse(addr)
		if bestLoad == -1 || load < bestLoad {
			best = addr
			bestLoad = load
		}
	}
	return best
}
