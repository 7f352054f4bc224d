package api

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/FulgerX2007/csv-scatter-reports/pkg/ingest"
	"github.com/FulgerX2007/csv-scatter-reports/pkg/model"
	"github.com/FulgerX2007/csv-scatter-reports/pkg/store"
	lru "github.com/hashicorp/golang-lru/v2"
)

// sessionCache keeps parsed datasets so requests do not re-parse the upload.
// The store remains the source of truth; an evicted entry is rebuilt from it.
type sessionCache struct {
	store *store.Store
	cache *lru.Cache[string, *model.Analysis]
}

func newSessionCache(st *store.Store, size int) (*sessionCache, error) {
	if size <= 0 {
		size = 64
	}
	cache, err := lru.New[string, *model.Analysis](size)
	if err != nil {
		return nil, fmt.Errorf("failed to create dataset cache: %w", err)
	}
	return &sessionCache{store: st, cache: cache}, nil
}

// analyze parses an upload and computes its statistics
func analyze(ctx context.Context, fileName string, source []byte) (*model.Analysis, error) {
	ds, err := ingest.Parse(ctx, fileName, source)
	if err != nil {
		return nil, err
	}
	return &model.Analysis{Dataset: ds, Stats: ingest.Describe(ds)}, nil
}

// load returns a session with its analysis and marks it as active
func (c *sessionCache) load(ctx context.Context, id string) (*model.Session, *model.Analysis, error) {
	session, err := c.store.GetSession(id)
	if err != nil {
		return nil, nil, err
	}

	a, ok := c.cache.Get(id)
	if !ok {
		log.Printf("[API] Dataset cache miss for session %s, parsing %s", id, session.FileName)
		a, err = analyze(ctx, session.FileName, session.Source)
		if err != nil {
			return nil, nil, err
		}
		c.cache.Add(id, a)
	}

	if err := c.store.TouchSession(id, time.Now()); err != nil {
		log.Printf("[API] WARNING: Failed to touch session %s: %v", id, err)
	}
	return session, a, nil
}

func (c *sessionCache) put(id string, a *model.Analysis) {
	c.cache.Add(id, a)
}

// evict drops a session's dataset; used on delete and by the janitor
func (c *sessionCache) evict(id string) {
	c.cache.Remove(id)
}

func (c *sessionCache) len() int {
	return c.cache.Len()
}
