package node

import (
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/ryandielhenn/fifocache/internal/logging"
	"github.com/ryandielhenn/fifocache/internal/telemetry"
	"github.com/ryandielhenn/fifocache/pkg/kv"
	"github.com/ryandielhenn/fifocache/pkg/ring"
)

// replicaHeader marks a request sent by the key's owner to a replica; the
// receiver applies it locally instead of forwarding.
const replicaHeader = "X-Fifocache-Replica"

const defaultPort = "8080"

type Node struct {
	kv     *kv.Store
	ring   *ring.HashRing
	id     string
	addr   string
	rf     int
	log    *zap.Logger
	client *http.Client
}

func NewNode(store *kv.Store, r *ring.HashRing, id, addr string, logger *zap.Logger) *Node {
	return NewNodeRF(store, r, id, addr, 1, logger)
}

// NewNodeRF builds a node that copies every write to replicationFactor-1
// additional peers.
func NewNodeRF(store *kv.Store, r *ring.HashRing, id, addr string, replicationFactor int, logger *zap.Logger) *Node {
	if replicationFactor < 1 {
		replicationFactor = 1
	}
	return &Node{
		kv:     store,
		ring:   r,
		id:     id,
		addr:   addr,
		rf:     replicationFactor,
		log:    logging.OrNop(logger).With(zap.String("node", id)),
		client: &http.Client{Timeout: 5 * time.Second},
	}
}

// AddPeer adds one peer to the ring, or updates its address.
func (n *Node) AddPeer(id string, addr string) {
	n.ring.Add(id, NormalizeHostPort(addr, defaultPort))
}

// SetPeers replaces the ring membership. The node itself is always kept.
func (n *Node) SetPeers(peers map[string]string) {
	all := make(map[string]string, len(peers)+1)
	for id, addr := range peers {
		all[id] = NormalizeHostPort(addr, defaultPort)
	}
	all[n.id] = n.addr
	n.ring.Replace(all)
}

func (n *Node) ID() string   { return n.id }
func (n *Node) Addr() string { return n.addr }

// Routes returns the node's HTTP handler with every endpoint instrumented.
func (n *Node) Routes() http.Handler {
	mux := http.NewServeMux()
	handle := func(pattern, op string, h http.HandlerFunc) {
		mux.Handle(pattern, telemetry.Instrument(op, h))
	}

	handle("GET /healthz", "healthz", n.Healthz)
	handle("GET /info", "info", n.Info)
	handle("GET /kv/{key...}", "get", n.Get)
	handle("PUT /kv/{key...}", "put", n.Put)
	handle("POST /kv/{key...}", "post", n.Put)
	handle("DELETE /kv/{key...}", "delete", n.Del)
	handle("POST /admin/sweep", "sweep", n.Sweep)
	handle("POST /admin/resize", "resize", n.Resize)
	handle("POST /admin/clear", "clear", n.Clear)
	mux.Handle("GET /metrics", telemetry.MetricsHandler())
	return mux
}
