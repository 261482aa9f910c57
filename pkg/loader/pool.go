package loader

import (
	"sync"
	"sync/atomic"
)

const defaultRawFields = 24

// rawPool recycles the scratch maps JSONL lines are decoded into. A map may
// be returned as soon as Normalize has copied what it needs out of it.
var rawPool = sync.Pool{
	New: func() any {
		rawPoolNews.Add(1)
		return make(map[string]any, defaultRawFields)
	},
}

var rawPoolGets atomic.Uint64
var rawPoolNews atomic.Uint64

func getRaw() map[string]any {
	rawPoolGets.Add(1)
	m := rawPool.Get().(map[string]any)
	clear(m)
	return m
}

func putRaw(m map[string]any) {
	if m == nil {
		return
	}
	clear(m)
	rawPool.Put(m)
}

// PoolStats reports how many scratch maps were requested and how many had
// to be allocated.
func PoolStats() (gets, news uint64) {
	return rawPoolGets.Load(), rawPoolNews.Load()
}
