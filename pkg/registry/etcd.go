// Package registry publishes cache nodes in etcd and tracks their peers.
//
// Each node owns the key <prefix><nodeID> holding its address, bound to a
// lease that is kept alive while the node runs.
package registry

import (
	"context"
	"fmt"
	"maps"
	"strings"
	"time"

	"go.etcd.io/etcd/api/v3/mvccpb"
	clientv3 "go.etcd.io/etcd/client/v3"
	"go.uber.org/zap"

	"github.com/ryandielhenn/fifocache/internal/logging"
)

func NewClient(endpoints []string, dialTimeout time.Duration) (*clientv3.Client, error) {
	cli, err := clientv3.New(clientv3.Config{
		Endpoints:   endpoints,
		DialTimeout: dialTimeout,
	})
	if err != nil {
		return nil, fmt.Errorf("registry: connect %v: %w", endpoints, err)
	}
	return cli, nil
}

// RegisterNode writes the node key under a fresh lease and keeps the lease
// alive until cancel is called or ctx ends. The caller should revoke the
// lease on shutdown so peers drop the node at once.
func RegisterNode(ctx context.Context, cli *clientv3.Client, prefix, id, addr string, ttl time.Duration) (clientv3.LeaseID, context.CancelFunc, error) {
	lease, err := cli.Grant(ctx, int64(ttl/time.Second))
	if err != nil {
		return 0, nil, fmt.Errorf("registry: grant lease: %w", err)
	}
	if _, err := cli.Put(ctx, prefix+id, addr, clientv3.WithLease(lease.ID)); err != nil {
		return 0, nil, fmt.Errorf("registry: put %s: %w", prefix+id, err)
	}

	kaCtx, cancel := context.WithCancel(ctx)
	ch, err := cli.KeepAlive(kaCtx, lease.ID)
	if err != nil {
		cancel()
		return 0, nil, fmt.Errorf("registry: keepalive: %w", err)
	}
	go func() {
		for range ch {
		}
	}()
	return lease.ID, cancel, nil
}

// ListPeers returns nodeID -> addr for every registered node.
func ListPeers(ctx context.Context, cli *clientv3.Client, prefix string) (map[string]string, error) {
	peers, _, err := listPeers(ctx, cli, prefix)
	return peers, err
}

func listPeers(ctx context.Context, cli *clientv3.Client, prefix string) (map[string]string, int64, error) {
	resp, err := cli.Get(ctx, prefix, clientv3.WithPrefix())
	if err != nil {
		return nil, 0, fmt.Errorf("registry: list %s: %w", prefix, err)
	}
	peers := make(map[string]string, len(resp.Kvs))
	for _, kv := range resp.Kvs {
		peers[NodeID(prefix, kv.Key)] = string(kv.Value)
	}
	return peers, resp.Header.Revision, nil
}

// WatchPeers lists the current peers, calls fn with them, and then keeps
// calling fn with the full membership after every change until ctx ends.
// Only the initial listing can fail. If the watch is lost (for example after
// a compaction) the peers are listed again and the watch resumes from the
// new revision.
func WatchPeers(ctx context.Context, cli *clientv3.Client, prefix string, logger *zap.Logger, fn func(peers map[string]string)) error {
	log := logging.OrNop(logger)

	peers, rev, err := listPeers(ctx, cli, prefix)
	if err != nil {
		return err
	}
	fn(maps.Clone(peers))

	go func() {
		for {
			wch := cli.Watch(ctx, prefix, clientv3.WithPrefix(), clientv3.WithRev(rev+1))
			for resp := range wch {
				if err := resp.Err(); err != nil {
					log.Warn("peer watch error", zap.Error(err))
					continue
				}
				if applyEvents(peers, prefix, resp.Events) {
					fn(maps.Clone(peers))
				}
			}
			if ctx.Err() != nil {
				log.Debug("peer watch stopped")
				return
			}

			log.Warn("peer watch closed, resyncing", zap.Int64("rev", rev))
			fresh, freshRev, err := resync(ctx, cli, prefix, log)
			if err != nil {
				return
			}
			rev = freshRev
			if replacePeers(peers, fresh) {
				fn(maps.Clone(peers))
			}
		}
	}()
	return nil
}

// resync lists the peers, retrying every resyncBackoff until it succeeds or
// ctx ends.
func resync(ctx context.Context, cli *clientv3.Client, prefix string, log *zap.Logger) (map[string]string, int64, error) {
	for {
		peers, rev, err := listPeers(ctx, cli, prefix)
		if err == nil {
			return peers, rev, nil
		}
		log.Warn("peer relist failed", zap.Error(err))
		select {
		case <-ctx.Done():
			return nil, 0, ctx.Err()
		case <-time.After(resyncBackoff):
		}
	}
}

const resyncBackoff = time.Second

// replacePeers overwrites peers with fresh and reports whether they differed.
func replacePeers(peers, fresh map[string]string) bool {
	if maps.Equal(peers, fresh) {
		return false
	}
	clear(peers)
	maps.Copy(peers, fresh)
	return true
}

// applyEvents folds watch events into peers and reports whether anything
// changed.
func applyEvents(peers map[string]string, prefix string, events []*clientv3.Event) bool {
	changed := false
	for _, ev := range events {
		if ev.Kv == nil {
			continue
		}
		id := NodeID(prefix, ev.Kv.Key)
		switch ev.Type {
		case mvccpb.PUT:
			if peers[id] != string(ev.Kv.Value) {
				peers[id] = string(ev.Kv.Value)
				changed = true
			}
		case mvccpb.DELETE:
			if _, ok := peers[id]; ok {
				delete(peers, id)
				changed = true
			}
		}
	}
	return changed
}

// NodeID strips prefix from an etcd key.
func NodeID(prefix string, key []byte) string {
	return strings.TrimPrefix(string(key), prefix)
}
