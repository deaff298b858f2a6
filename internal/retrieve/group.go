package retrieve

import (
	"context"
	"sync"

	"golang.org/x/sync/singleflight"

	"github.com/alfredjeanlab/discovery/internal/model"
)

// Group shares in-flight retrievals between drivers. A shared request runs
// under a context of its own, which is cancelled only once every driver
// waiting on it has stopped waiting. The zero Group is ready to use.
type Group struct {
	sf    singleflight.Group
	mu    sync.Mutex
	calls map[string]*sharedCall
}

type sharedCall struct {
	ctx     context.Context
	cancel  context.CancelFunc
	waiters int
}

// do runs load once per key among concurrent callers. ctx only bounds how
// long this caller waits.
func (g *Group) do(ctx context.Context, key string, load func(context.Context) (*model.Retrieved, error)) (*model.Retrieved, bool, error) {
	g.mu.Lock()
	if g.calls == nil {
		g.calls = make(map[string]*sharedCall)
	}
	c, ok := g.calls[key]
	if !ok {
		cctx, cancel := context.WithCancel(context.Background())
		c = &sharedCall{ctx: cctx, cancel: cancel}
		g.calls[key] = c
	}
	c.waiters++
	g.mu.Unlock()

	ch := g.sf.DoChan(key, func() (any, error) {
		defer func() {
			g.mu.Lock()
			if g.calls[key] == c {
				delete(g.calls, key)
			}
			g.mu.Unlock()
			c.cancel()
		}()
		return load(c.ctx)
	})

	select {
	case res := <-ch:
		g.leave(key, c)
		if res.Err != nil {
			return nil, res.Shared, res.Err
		}
		return res.Val.(*model.Retrieved), res.Shared, nil
	case <-ctx.Done():
		g.leave(key, c)
		return nil, false, ctx.Err()
	}
}

// leave drops one waiter. The last waiter to leave cancels the request and
// makes later callers start a fresh one.
func (g *Group) leave(key string, c *sharedCall) {
	g.mu.Lock()
	defer g.mu.Unlock()
	c.waiters--
	if c.waiters > 0 {
		return
	}
	if g.calls[key] == c {
		delete(g.calls, key)
		g.sf.Forget(key)
	}
	c.cancel()
}

func (g *Group) waiting(key string) int {
	g.mu.Lock()
	defer g.mu.Unlock()
	if c, ok := g.calls[key]; ok {
		return c.waiters
	}
	return 0
}
