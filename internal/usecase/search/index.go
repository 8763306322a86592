package search

import (
	"context"
	"strings"
	"sync"

	"github.com/kailas-cloud/dmodel/internal/shard"
	"github.com/kailas-cloud/dmodel/internal/textindex"
)

// shardIndex is the searchable view of one shard, built on first use.
type shardIndex struct {
	mu    sync.Mutex
	ready bool
	docs  []shard.Document
	text  *textindex.Index
}

func (si *shardIndex) load(ctx context.Context, s shard.Shard) ([]shard.Document, *textindex.Index, error) {
	si.mu.Lock()
	defer si.mu.Unlock()
	if si.ready {
		return si.docs, si.text, nil
	}

	docs, err := s.Documents(ctx)
	if err != nil {
		return nil, nil, err
	}
	b := textindex.NewBuilder()
	for i, d := range docs {
		b.Add(i, d.Title, joinNonEmpty(d.Synopsis, d.Body))
	}
	si.docs, si.text, si.ready = docs, b.Build(), true
	return si.docs, si.text, nil
}

func joinNonEmpty(parts ...string) string {
	var kept []string
	for _, p := range parts {
		if p != "" {
			kept = append(kept, p)
		}
	}
	return strings.Join(kept, "\n")
}

// indexes maps open shards to their index. Entries live until Evict.
type indexes struct {
	mu sync.Mutex
	m  map[shard.Shard]*shardIndex
}

func (ix *indexes) get(s shard.Shard) *shardIndex {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	if ix.m == nil {
		ix.m = make(map[shard.Shard]*shardIndex)
	}
	si, ok := ix.m[s]
	if !ok {
		si = &shardIndex{}
		ix.m[s] = si
	}
	return si
}

func (ix *indexes) evict(shards []shard.Shard) {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	for _, s := range shards {
		delete(ix.m, s)
	}
}
