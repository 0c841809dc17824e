// Package shard splits an output element range across worker goroutines.
//
// A Pool is sized once from configuration. Each Run partitions [0, total)
// into contiguous items of ceil(total/threads) elements, runs one worker
// per item and blocks until every worker has returned. Workers write only
// inside their own item, so no locking is needed.
package shard

import (
	"fmt"

	"golang.org/x/sync/errgroup"
)

// Item is a half-open range of flat output indices.
type Item struct {
	Begin, End int
}

// Len returns the number of indices in the item.
func (it Item) Len() int { return it.End - it.Begin }

// Partition splits [0, total) into at most n contiguous items of
// ceil(total/n) elements. The last item may be shorter. Empty items are
// dropped, so fewer than n items come back when total < n.
func Partition(total, n int) []Item {
	if n <= 0 {
		panic(fmt.Sprintf("shard: thread count %d must be positive", n))
	}
	if total <= 0 {
		return nil
	}
	size := (total + n - 1) / n
	items := make([]Item, 0, n)
	for i := 0; i < n; i++ {
		begin := i * size
		if begin >= total {
			break
		}
		items = append(items, Item{Begin: begin, End: min(begin+size, total)})
	}
	return items
}

// Pool runs sharded work with a fixed thread count.
type Pool struct {
	threads int
}

// NewPool creates a pool of the given size.
func NewPool(threads int) *Pool {
	if threads <= 0 {
		panic(fmt.Sprintf("shard: thread count %d must be positive", threads))
	}
	return &Pool{threads: threads}
}

// Threads returns the pool size.
func (p *Pool) Threads() int { return p.threads }

// Run spawns one worker per item of Partition(total, Threads()) and waits
// for all of them. There is no cancellation: every worker runs to
// completion.
func (p *Pool) Run(total int, fn func(Item)) {
	var g errgroup.Group
	g.SetLimit(p.threads)
	for _, it := range Partition(total, p.threads) {
		g.Go(func() error {
			fn(it)
			return nil
		})
	}
	// Workers never fail; Wait is the barrier.
	_ = g.Wait()
}

// Each runs fn for every index in [0, total), sharded across the pool.
func (p *Pool) Each(total int, fn func(i int)) {
	p.Run(total, func(it Item) {
		for i := it.Begin; i < it.End; i++ {
			fn(i)
		}
	})
}
