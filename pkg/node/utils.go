package node

import (
	"net"
	"strings"
)

// NormalizeHostPort strips an http:// or https:// scheme and appends
// defPort when addr has no port.
func NormalizeHostPort(addr, defPort string) string {
	if rest, ok := strings.CutPrefix(addr, "http://"); ok {
		addr = rest
	} else if rest, ok := strings.CutPrefix(addr, "https://"); ok {
		addr = rest
	}

	if _, _, err := net.SplitHostPort(addr); err == nil {
		return addr
	}
	return net.JoinHostPort(addr, defPort)
}

// OwnerForKey looks up the key's owner and returns the owner and self
// addresses, both normalized.
func (n *Node) OwnerForKey(key string) (ownerHP, selfHP string, ok bool) {
	ownerID := n.ring.Lookup([]byte(key))
	ownerAddr, ok := n.ring.Addr(ownerID)
	if !ok || ownerAddr == "" {
		return "", "", false
	}
	return NormalizeHostPort(ownerAddr, defaultPort), NormalizeHostPort(n.addr, defaultPort), true
}

// replicasForKey returns the normalized addresses of the rf-1 nodes after
// the owner, excluding self.
func (n *Node) replicasForKey(key string) []string {
	if n.rf <= 1 {
		return nil
	}
	self := NormalizeHostPort(n.addr, defaultPort)
	ids := n.ring.LookupN([]byte(key), n.rf)
	out := make([]string, 0, len(ids))
	for _, id := range ids[min(1, len(ids)):] {
		addr, ok := n.ring.Addr(id)
		if !ok {
			continue
		}
		if hp := NormalizeHostPort(addr, defaultPort); hp != self {
			out = append(out, hp)
		}
	}
	return out
}
