// Package discovery keeps an optional directory of mesh nodes in etcd. A
// node registers its P2P address under a lease, picks an anchor from the
// directory when none is configured, and watches the directory for nodes
// that join later.
package discovery

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"go.etcd.io/etcd/api/v3/mvccpb"
	clientv3 "go.etcd.io/etcd/client/v3"
)

const Prefix = "/sudokumesh/nodes/"

// Event is one change to the directory.
type Event struct {
	ID      string
	Addr    string
	Deleted bool
}

func NewClient(endpoints []string, dialTimeout time.Duration) (*clientv3.Client, error) {
	return clientv3.New(clientv3.Config{
		Endpoints:   endpoints,
		DialTimeout: dialTimeout,
	})
}

func NodeKey(id string) string { return Prefix + id }

func IDFromKey(key string) (string, bool) {
	id, ok := strings.CutPrefix(key, Prefix)
	return id, ok && id != ""
}

// RegisterNode writes addr under id with a lease of ttl seconds and keeps
// the lease alive until the returned cancel func is called.
func RegisterNode(ctx context.Context, cli *clientv3.Client, id, addr string, ttl int64) (clientv3.LeaseID, context.CancelFunc, error) {
	lease, err := cli.Grant(ctx, ttl)
	if err != nil {
		return 0, nil, fmt.Errorf("grant lease: %w", err)
	}
	if _, err := cli.Put(ctx, NodeKey(id), addr, clientv3.WithLease(lease.ID)); err != nil {
		return 0, nil, fmt.Errorf("put %s: %w", NodeKey(id), err)
	}

	kaCtx, cancel := context.WithCancel(context.Background())
	ch, err := cli.KeepAlive(kaCtx, lease.ID)
	if err != nil {
		cancel()
		return 0, nil, fmt.Errorf("keepalive: %w", err)
	}
	go func() {
		for range ch {
		}
	}()
	return lease.ID, cancel, nil
}

// GetPeers returns the directory as id -> addr.
func GetPeers(ctx context.Context, kv clientv3.KV) (map[string]string, error) {
	resp, err := kv.Get(ctx, Prefix, clientv3.WithPrefix())
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", Prefix, err)
	}
	out := make(map[string]string, len(resp.Kvs))
	for _, kv := range resp.Kvs {
		if id, ok := IDFromKey(string(kv.Key)); ok {
			out[id] = string(kv.Value)
		}
	}
	return out, nil
}

// WatchPeers calls fn for every directory change until ctx ends.
func WatchPeers(ctx context.Context, w clientv3.Watcher, fn func(Event)) {
	for resp := range w.Watch(ctx, Prefix, clientv3.WithPrefix()) {
		if err := resp.Err(); err != nil {
			return
		}
		for _, ev := range resp.Events {
			id, ok := IDFromKey(string(ev.Kv.Key))
			if !ok {
				continue
			}
			switch ev.Type {
			case mvccpb.PUT:
				fn(Event{ID: id, Addr: string(ev.Kv.Value)})
			case mvccpb.DELETE:
				fn(Event{ID: id, Deleted: true})
			}
		}
	}
}

// PickAnchor returns the address of the first node, by id, that is not self.
func PickAnchor(peers map[string]string, self string) (string, bool) {
	ids := make([]string, 0, len(peers))
	for id, addr := range peers {
		if addr != "" && addr != self {
			ids = append(ids, id)
		}
	}
	if len(ids) == 0 {
		return "", false
	}
	sort.Strings(ids)
	return peers[ids[0]], true
}
