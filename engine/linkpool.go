package engine

import "github.com/hostprotocols/ncpd/wire"

// LinkPool hands out data link numbers in [2,71] per host. The reference
// hard-codes the receive link to 42 for every connection, which §9 flags
// as not protocol-compliant once a host has more than one simultaneous
// connection; this keeps a per-host free set instead.
type LinkPool struct {
	inUse map[wire.Host]map[wire.Link]bool
}

// NewLinkPool returns an empty pool.
func NewLinkPool() *LinkPool {
	return &LinkPool{inUse: make(map[wire.Host]map[wire.Link]bool)}
}

// Acquire returns the lowest unused data link for host, or false if every
// link in [2,71] is already assigned to that host.
func (p *LinkPool) Acquire(host wire.Host) (wire.Link, bool) {
	used := p.inUse[host]
	for l := wire.LinkMin; l <= wire.LinkMax; l++ {
		if used != nil && used[l] {
			continue
		}
		if used == nil {
			used = make(map[wire.Link]bool)
			p.inUse[host] = used
		}
		used[l] = true
		return l, true
	}
	return 0, false
}

// Release returns link to the free set for host.
func (p *LinkPool) Release(host wire.Host, link wire.Link) {
	if used := p.inUse[host]; used != nil {
		delete(used, link)
	}
}
