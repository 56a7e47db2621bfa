package contextify

import "weak"

// minSweep is the size below which weakMap never sweeps.
const minSweep = 256

// weakMap associates values with objects without keeping the objects
// alive. Entries whose key was collected, or whose value reports dead, are
// dropped once the map doubles in size since the last sweep.
type weakMap[K, V any] struct {
	m     map[weak.Pointer[K]]V
	live  func(V) bool // nil means values never die on their own
	sweep int
}

func newWeakMap[K, V any](live func(V) bool) *weakMap[K, V] {
	return &weakMap[K, V]{m: make(map[weak.Pointer[K]]V), live: live, sweep: minSweep}
}

func (w *weakMap[K, V]) get(k *K) (V, bool) {
	v, ok := w.m[weak.Make(k)]
	return v, ok
}

func (w *weakMap[K, V]) put(k *K, v V) {
	w.m[weak.Make(k)] = v
	if len(w.m) >= w.sweep {
		w.prune()
		w.sweep = max(2*len(w.m), minSweep)
	}
}

func (w *weakMap[K, V]) len() int { return len(w.m) }

// prune drops entries that can no longer be looked up or used.
func (w *weakMap[K, V]) prune() {
	for k, v := range w.m {
		if k.Value() == nil || (w.live != nil && !w.live(v)) {
			delete(w.m, k)
		}
	}
}

// handleRef points weakly at the host handle of a script object. The
// handle holds the object, so a live handle keeps its key alive.
type handleRef struct {
	fn  weak.Pointer[Function]
	obj weak.Pointer[JSObject]
}

func (r handleRef) value() any {
	if f := r.fn.Value(); f != nil {
		return f
	}
	if o := r.obj.Value(); o != nil {
		return o
	}
	return nil
}

func (r handleRef) live() bool { return r.value() != nil }
