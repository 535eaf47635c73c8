package node

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/ryandielhenn/fifocache/pkg/kv"
)

// maxValueBytes caps a PUT body.
const maxValueBytes = 8 << 20

// Healthz returns 200 OK to indicate the node is alive.
func (n *Node) Healthz(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("ok"))
}

type infoResponse struct {
	ID         string    `json:"id"`
	Addr       string    `json:"addr"`
	PID        int       `json:"pid"`
	Now        time.Time `json:"now"`
	Items      int       `json:"items"`
	MaxEntries int       `json:"max_entries"`
	TTL        string    `json:"ttl"`
	Peers      int       `json:"peers"`
}

// Info writes node identity and store occupancy as JSON.
func (n *Node) Info(w http.ResponseWriter, _ *http.Request) {
	ttl := "disabled"
	if d := n.kv.TTL(); d > 0 {
		ttl = d.String()
	}
	writeJSON(w, http.StatusOK, infoResponse{
		ID:         n.id,
		Addr:       n.addr,
		PID:        os.Getpid(),
		Now:        time.Now(),
		Items:      n.kv.Len(),
		MaxEntries: n.kv.MaxEntries(),
		TTL:        ttl,
		Peers:      n.ring.Len(),
	})
}

// Forward proxies req to the node that owns the key.
func (n *Node) Forward(w http.ResponseWriter, req *http.Request, owner string) {
	if owner == "" {
		http.Error(w, "no owner for key", http.StatusServiceUnavailable)
		return
	}

	hostport := NormalizeHostPort(owner, defaultPort)
	if NormalizeHostPort(n.addr, defaultPort) == hostport {
		http.Error(w, "refusing to forward to self", http.StatusInternalServerError)
		return
	}
	target := *req.URL
	target.Scheme = "http"
	target.Host = hostport

	out, err := http.NewRequestWithContext(req.Context(), req.Method, target.String(), req.Body)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadGateway)
		return
	}
	out.Header = req.Header.Clone()
	out.Header.Set("X-Forwarded-For", req.RemoteAddr)

	resp, err := n.client.Do(out)
	if err != nil {
		n.log.Warn("forward failed", zap.String("owner", hostport), zap.Error(err))
		http.Error(w, err.Error(), http.StatusBadGateway)
		return
	}
	defer resp.Body.Close()

	for k, vv := range resp.Header {
		for _, v := range vv {
			w.Header().Add(k, v)
		}
	}
	w.WriteHeader(resp.StatusCode)
	io.Copy(w, resp.Body)
}

// route decides whether this node serves key. It writes the response itself
// (forwarded or error) and returns false when it does not.
func (n *Node) route(w http.ResponseWriter, req *http.Request, key string) bool {
	if key == "" {
		http.Error(w, "missing key", http.StatusBadRequest)
		return false
	}
	if req.Header.Get(replicaHeader) != "" {
		return true
	}
	owner, self, ok := n.OwnerForKey(key)
	if !ok {
		http.Error(w, "no owner for key", http.StatusServiceUnavailable)
		return false
	}
	if owner != self {
		n.log.Debug("forward", zap.String("method", req.Method), zap.String("key", key), zap.String("owner", owner))
		n.Forward(w, req, owner)
		return false
	}
	return true
}

// Put stores the request body under the key. The store's TTL applies.
func (n *Node) Put(w http.ResponseWriter, req *http.Request) {
	key := req.PathValue("key")
	if !n.route(w, req, key) {
		return
	}

	val, err := io.ReadAll(http.MaxBytesReader(w, req.Body, maxValueBytes))
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if err := n.kv.Put(key, val); err != nil {
		writeStoreError(w, err)
		return
	}
	n.replicate(req, http.MethodPut, key, val)
	w.WriteHeader(http.StatusNoContent)
}

// Get returns the live value for the key.
func (n *Node) Get(w http.ResponseWriter, req *http.Request) {
	key := req.PathValue("key")
	if !n.route(w, req, key) {
		return
	}

	val, ok := n.kv.Get(key)
	if !ok {
		http.NotFound(w, req)
		return
	}
	w.Header().Set("Content-Type", "application/octet-stream")
	w.Write(val)
}

// Del removes the key.
func (n *Node) Del(w http.ResponseWriter, req *http.Request) {
	key := req.PathValue("key")
	if !n.route(w, req, key) {
		return
	}

	if _, err := n.kv.Delete(key); err != nil {
		writeStoreError(w, err)
		return
	}
	n.replicate(req, http.MethodDelete, key, nil)
	w.WriteHeader(http.StatusNoContent)
}

// Sweep purges expired entries on this node.
func (n *Node) Sweep(w http.ResponseWriter, _ *http.Request) {
	removed := n.kv.Sweep()
	n.log.Info("manual sweep", zap.Int("removed", removed))
	writeJSON(w, http.StatusOK, map[string]int{"removed": removed})
}

// Resize changes this node's capacity: POST /admin/resize?size=N&prune=true
func (n *Node) Resize(w http.ResponseWriter, req *http.Request) {
	q := req.URL.Query()
	size, err := strconv.Atoi(q.Get("size"))
	if err != nil || size < 0 {
		http.Error(w, "invalid size", http.StatusBadRequest)
		return
	}
	prune := false
	if p := q.Get("prune"); p != "" {
		if prune, err = strconv.ParseBool(p); err != nil {
			http.Error(w, "invalid prune", http.StatusBadRequest)
			return
		}
	}
	if err := n.kv.Resize(size, prune); err != nil {
		writeStoreError(w, err)
		return
	}
	n.log.Info("resized", zap.Int("size", size), zap.Bool("prune", prune))
	w.WriteHeader(http.StatusNoContent)
}

// Clear drops every entry on this node.
func (n *Node) Clear(w http.ResponseWriter, _ *http.Request) {
	if err := n.kv.Clear(); err != nil {
		writeStoreError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// replicate copies a write to the key's replicas in the background. Writes
// that arrived as replicas are not copied again.
func (n *Node) replicate(req *http.Request, method, key string, val []byte) {
	if req.Header.Get(replicaHeader) != "" {
		return
	}
	for _, hp := range n.replicasForKey(key) {
		go func(hp string) {
			ctx, cancel := context.WithTimeout(context.Background(), n.client.Timeout)
			defer cancel()
			if err := n.send(ctx, method, hp, key, val); err != nil {
				n.log.Warn("replication failed", zap.String("replica", hp), zap.String("key", key), zap.Error(err))
			}
		}(hp)
	}
}

func (n *Node) send(ctx context.Context, method, hostport, key string, val []byte) error {
	u := url.URL{Scheme: "http", Host: hostport, Path: "/kv/" + key}
	out, err := http.NewRequestWithContext(ctx, method, u.String(), bytes.NewReader(val))
	if err != nil {
		return err
	}
	out.Header.Set(replicaHeader, n.id)
	resp, err := n.client.Do(out)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)
	if resp.StatusCode >= 300 {
		return errors.New("replica returned " + resp.Status)
	}
	return nil
}

func writeStoreError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, kv.ErrEmptyKey):
		http.Error(w, err.Error(), http.StatusBadRequest)
	case errors.Is(err, kv.ErrClosed):
		http.Error(w, err.Error(), http.StatusServiceUnavailable)
	default:
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	w.Write(data)
}
