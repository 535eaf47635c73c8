package registry

import (
	"context"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"go.etcd.io/etcd/api/v3/mvccpb"
	clientv3 "go.etcd.io/etcd/client/v3"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const prefix = "/test/nodes/"

func put(id, addr string) *clientv3.Event {
	return &clientv3.Event{Type: mvccpb.PUT, Kv: &mvccpb.KeyValue{Key: []byte(prefix + id), Value: []byte(addr)}}
}

func del(id string) *clientv3.Event {
	return &clientv3.Event{Type: mvccpb.DELETE, Kv: &mvccpb.KeyValue{Key: []byte(prefix + id)}}
}

func TestNodeID(t *testing.T) {
	assert.Equal(t, "node1", NodeID(prefix, []byte(prefix+"node1")))
	assert.Equal(t, "other/x", NodeID(prefix, []byte("other/x")))
}

func TestApplyEvents(t *testing.T) {
	peers := map[string]string{"n1": "a:1"}

	changed := applyEvents(peers, prefix, []*clientv3.Event{put("n2", "a:2"), del("n1")})
	assert.True(t, changed)
	assert.Equal(t, map[string]string{"n2": "a:2"}, peers)

	// Lease refresh rewrites the same value.
	assert.False(t, applyEvents(peers, prefix, []*clientv3.Event{put("n2", "a:2")}))
	assert.False(t, applyEvents(peers, prefix, []*clientv3.Event{del("missing"), {Type: mvccpb.PUT}}))

	assert.True(t, applyEvents(peers, prefix, []*clientv3.Event{put("n2", "a:3")}))
	assert.Equal(t, "a:3", peers["n2"])
}

func TestReplacePeers(t *testing.T) {
	peers := map[string]string{"n1": "a:1", "n2": "a:2"}

	assert.False(t, replacePeers(peers, map[string]string{"n1": "a:1", "n2": "a:2"}))

	// Membership after a lost watch: n1 left, n3 joined, n2 moved.
	assert.True(t, replacePeers(peers, map[string]string{"n2": "b:2", "n3": "a:3"}))
	assert.Equal(t, map[string]string{"n2": "b:2", "n3": "a:3"}, peers)

	assert.True(t, replacePeers(peers, map[string]string{}))
	assert.Empty(t, peers)
}

func etcdClient(t *testing.T) *clientv3.Client {
	t.Helper()
	endpoints := os.Getenv("ETCD_ENDPOINTS")
	if endpoints == "" {
		t.Skip("ETCD_ENDPOINTS not set, skipping etcd integration test")
	}
	cli, err := NewClient(strings.Split(endpoints, ","), 5*time.Second)
	require.NoError(t, err)
	t.Cleanup(func() { _ = cli.Close() })
	return cli
}

func TestRegisterAndWatch_Integration(t *testing.T) {
	cli := etcdClient(t)
	ctx, cancel := context.WithTimeout(t.Context(), 10*time.Second)
	defer cancel()

	p := "/fifocache-test/" + time.Now().Format("150405.000000") + "/"
	_, stop1, err := RegisterNode(ctx, cli, p, "n1", "host1:8080", 5*time.Second)
	require.NoError(t, err)
	defer stop1()

	var mu sync.Mutex
	var last map[string]string
	err = WatchPeers(ctx, cli, p, nil, func(peers map[string]string) {
		mu.Lock()
		last = peers
		mu.Unlock()
	})
	require.NoError(t, err)

	lease2, stop2, err := RegisterNode(ctx, cli, p, "n2", "host2:8080", 5*time.Second)
	require.NoError(t, err)
	defer stop2()

	assert.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(last) == 2 && last["n2"] == "host2:8080"
	}, 5*time.Second, 20*time.Millisecond)

	_, err = cli.Revoke(ctx, lease2)
	require.NoError(t, err)

	assert.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		_, ok := last["n2"]
		return !ok
	}, 5*time.Second, 20*time.Millisecond)

	peers, err := ListPeers(ctx, cli, p)
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"n1": "host1:8080"}, peers)
}
