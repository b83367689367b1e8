package bluetooth

// resolvedCache remembers the outcome of host address resolutions. Nodes come
// from a fixed pool: unused nodes sit on the free list, used ones on the
// resolved list, most recently resolved first. When the pool runs dry the
// least recently resolved node is recycled.
type resolvedCache struct {
	nodes    []cacheNode
	free     int
	head     int
	tail     int
	resolved int
}

type cacheNode struct {
	peer       MAC
	identity   Address
	isResolved bool
	prev, next int
}

const noNode = -1

func newResolvedCache(size int) *resolvedCache {
	if size <= 0 {
		panic("bluetooth: resolved cache size must be positive")
	}
	c := &resolvedCache{nodes: make([]cacheNode, size)}
	c.reset()
	return c
}

// reset moves every node back to the free list.
func (c *resolvedCache) reset() {
	for i := range c.nodes {
		c.nodes[i] = cacheNode{prev: noNode, next: i + 1}
	}
	c.nodes[len(c.nodes)-1].next = noNode
	c.free = 0
	c.head = noNode
	c.tail = noNode
	c.resolved = 0
}

func (c *resolvedCache) len() int {
	return c.resolved
}

// lookup returns the cached outcome for peer and marks it as most recently
// used.
func (c *resolvedCache) lookup(peer MAC) (res AddressResolution, found bool) {
	i := c.find(peer)
	if i == noNode {
		return AddressResolution{}, false
	}
	c.unlink(i)
	c.pushFront(i)
	n := &c.nodes[i]
	return AddressResolution{Identity: n.identity, Resolved: n.isResolved}, true
}

// add records the outcome of a resolution, resolved or not.
func (c *resolvedCache) add(peer MAC, res AddressResolution) {
	i := c.find(peer)
	switch {
	case i != noNode:
		c.unlink(i)
	case c.free != noNode:
		i = c.free
		c.free = c.nodes[i].next
		c.resolved++
	default:
		i = c.tail
		c.unlink(i)
	}
	c.nodes[i].peer = peer
	c.nodes[i].identity = res.Identity
	c.nodes[i].isResolved = res.Resolved
	c.pushFront(i)
}

// removeIdentity forgets every peer address resolved to identity.
func (c *resolvedCache) removeIdentity(identity Address) {
	c.removeIf(func(n *cacheNode) bool {
		return n.isResolved && n.identity == identity
	})
}

// removeUnresolved forgets every negative outcome.
func (c *resolvedCache) removeUnresolved() {
	c.removeIf(func(n *cacheNode) bool {
		return !n.isResolved
	})
}

func (c *resolvedCache) removeIf(fn func(n *cacheNode) bool) {
	for i := c.head; i != noNode; {
		next := c.nodes[i].next
		if fn(&c.nodes[i]) {
			c.unlink(i)
			c.nodes[i] = cacheNode{prev: noNode, next: c.free}
			c.free = i
			c.resolved--
		}
		i = next
	}
}

func (c *resolvedCache) find(peer MAC) int {
	for i := c.head; i != noNode; i = c.nodes[i].next {
		if c.nodes[i].peer == peer {
			return i
		}
	}
	return noNode
}

func (c *resolvedCache) unlink(i int) {
	n := &c.nodes[i]
	if n.prev != noNode {
		c.nodes[n.prev].next = n.next
	} else {
		c.head = n.next
	}
	if n.next != noNode {
		c.nodes[n.next].prev = n.prev
	} else {
		c.tail = n.prev
	}
	n.prev, n.next = noNode, noNode
}

func (c *resolvedCache) pushFront(i int) {
	n := &c.nodes[i]
	n.prev = noNode
	n.next = c.head
	if c.head != noNode {
		c.nodes[c.head].prev = i
	} else {
		c.tail = i
	}
	c.head = i
}
