package jit

import "github.com/chazu/armjit/pkg/interval"

// cacheInvalidation holds requested but not yet applied invalidations.
type cacheInvalidation struct {
	generation uint64
	ranges     interval.Set
	entire     bool
}

// Generation counts applied invalidations.
func (j *Jit) Generation() uint64 { return j.invalidation.generation }

// ClearCache discards all compiled code. Called during Run, it takes
// effect when Run returns.
func (j *Jit) ClearCache() {
	j.invalidation.entire = true
	j.requestCacheInvalidation()
}

// InvalidateCacheRange discards compiled blocks that start in
// [start, start+length). Called during Run, it takes effect when Run
// returns. The range stops at the top of the address space.
func (j *Jit) InvalidateCacheRange(start, length uint32) {
	if length == 0 {
		return
	}
	end := start + (length - 1)
	if end < start {
		end = ^uint32(0)
	}
	j.invalidation.ranges.Add(start, end)
	j.requestCacheInvalidation()
}

func (j *Jit) requestCacheInvalidation() {
	if j.isExecuting {
		j.state.HaltRequested = true
		return
	}
	j.performCacheInvalidation()
}

// performCacheInvalidation applies pending invalidation. It must only run
// while no emitted code is on the call path.
func (j *Jit) performCacheInvalidation() {
	inv := &j.invalidation

	if inv.entire {
		evicted := j.emitter.Len()
		j.state.ResetRSB()
		j.emitter.ClearCache()
		inv.ranges.Clear()
		inv.entire = false
		inv.generation++

		j.log.Infof("cache cleared: %d blocks evicted, generation %d", evicted, inv.generation)
		if j.observer != nil {
			j.observer.CacheInvalidated(InvalidationEvent{
				Engine:     j.id,
				Kind:       InvalidateAll,
				Evicted:    evicted,
				Generation: inv.generation,
			})
		}
		return
	}

	if !inv.ranges.Empty() {
		ranges := inv.ranges.Intervals()
		j.state.ResetRSB()
		evicted := j.emitter.InvalidateCacheRanges(&inv.ranges)
		inv.ranges.Clear()
		inv.generation++

		j.log.Debugf("cache ranges %v invalidated: %d blocks evicted, generation %d", ranges, evicted, inv.generation)
		if j.observer != nil {
			j.observer.CacheInvalidated(InvalidationEvent{
				Engine:     j.id,
				Kind:       InvalidateRanges,
				Ranges:     ranges,
				Evicted:    evicted,
				Generation: inv.generation,
			})
		}
	}
}
