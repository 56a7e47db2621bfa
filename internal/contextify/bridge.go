package contextify

import (
	"errors"

	"github.com/dop251/goja"
	"go.uber.org/zap"

	"github.com/GriffinCanCode/contextify/internal/hostobj"
)

// Names whose builtin values are read-only on a real global object.
// Assignment must not shadow them with sandbox properties.
var readOnlyGlobals = map[string]struct{}{
	"undefined": {},
	"NaN":       {},
	"Infinity":  {},
}

// bridge exposes a host object to scripts through a proxy. Every property
// operation is forwarded to the host object; nothing is copied. The proxy
// target only mirrors non-configurable host properties, which the engine's
// proxy invariant checks require.
type bridge struct {
	eng      *engine
	host     *hostobj.Object
	builtins *goja.Object // fallback lookup, set only for the global
	target   *goja.Object
	proxy    *goja.Object
	pinned   map[string]*hostobj.Property
}

func (e *engine) newBridge(host *hostobj.Object, builtins *goja.Object) *bridge {
	b := &bridge{
		eng:      e,
		host:     host,
		builtins: builtins,
		target:   e.vm.NewObject(),
		pinned:   make(map[string]*hostobj.Property),
	}
	p := e.vm.NewProxy(b.target, &goja.ProxyTrapConfig{
		Get:                      b.get,
		Set:                      b.set,
		Has:                      b.has,
		DeleteProperty:           b.deleteProperty,
		OwnKeys:                  b.ownKeys,
		GetOwnPropertyDescriptor: b.getOwnPropertyDescriptor,
		DefineProperty:           b.defineProperty,
		// The target must stay extensible or ownKeys could never report
		// properties the host adds later.
		PreventExtensions: func(*goja.Object) bool { return false },
		IsExtensible:      func(*goja.Object) bool { return true },
	})
	b.proxy = e.vm.ToValue(p).(*goja.Object)
	e.bridges[host] = b
	e.hostOf[b.proxy] = b
	return b
}

// bridgeFor returns the cached bridge of host, creating it on first use.
func (e *engine) bridgeFor(host *hostobj.Object) *bridge {
	if b, ok := e.bridges[host]; ok {
		return b
	}
	return e.newBridge(host, nil)
}

func (b *bridge) get(target *goja.Object, name string, _ goja.Value) goja.Value {
	if p, holder := b.host.Lookup(name); p != nil {
		v := b.read(p)
		if holder == b.host {
			b.pin(name, p)
		}
		return v
	}
	if b.builtins != nil {
		if v := b.builtins.Get(name); v != nil {
			return v
		}
	}
	return target.Get(name)
}

// read produces the script value of p with the bridge's host object as
// receiver for getters.
func (b *bridge) read(p *hostobj.Property) goja.Value {
	if !p.IsAccessor() {
		return b.valueOf(p)
	}
	if p.Getter == nil {
		return goja.Undefined()
	}
	v, err := callHost(func() (any, error) { return p.Getter(b.host) })
	if err != nil {
		panic(b.eng.throwable(err))
	}
	return b.eng.toJS(v)
}

// valueOf converts a data property's value. Read-only values are converted
// once so repeated reads are identical.
func (b *bridge) valueOf(p *hostobj.Property) goja.Value {
	if p.Writable {
		return b.eng.toJS(p.Value)
	}
	if v, ok := b.eng.frozen.get(p); ok {
		return v
	}
	v := b.eng.toJS(p.Value)
	b.eng.frozen.put(p, v)
	return v
}

func (b *bridge) set(_ *goja.Object, name string, value, _ goja.Value) bool {
	if b.builtins != nil && !b.host.Has(name) {
		if _, ok := readOnlyGlobals[name]; ok {
			return false
		}
	}
	err := callHostErr(func() error { return b.host.Set(name, b.eng.toHost(value)) })
	if err != nil {
		if errors.Is(err, hostobj.ErrReadOnly) {
			return false
		}
		panic(b.eng.throwable(err))
	}
	if p := b.host.OwnProperty(name); p != nil {
		b.pin(name, p)
	}
	return true
}

func (b *bridge) has(target *goja.Object, name string) bool {
	if b.host.Has(name) {
		return true
	}
	if b.builtins != nil && b.builtins.Get(name) != nil {
		return true
	}
	return target.Get(name) != nil
}

func (b *bridge) deleteProperty(_ *goja.Object, name string) bool {
	p := b.host.OwnProperty(name)
	if p == nil {
		return true
	}
	if !b.host.Delete(name) {
		b.pin(name, p)
		return false
	}
	delete(b.pinned, name)
	return true
}

func (b *bridge) ownKeys(target *goja.Object) *goja.Object {
	names := b.host.OwnNames()
	keys := make([]any, 0, len(names))
	for _, name := range names {
		if p := b.host.OwnProperty(name); p != nil {
			b.pin(name, p)
		}
		keys = append(keys, name)
	}
	for _, sym := range target.Symbols() {
		keys = append(keys, sym)
	}
	return b.eng.vm.NewArray(keys...)
}

func (b *bridge) getOwnPropertyDescriptor(_ *goja.Object, name string) goja.PropertyDescriptor {
	p := b.host.OwnProperty(name)
	if p == nil {
		// Builtins count as own properties of the global so top-level
		// declarations do not shadow them with undefined.
		if b.builtins != nil && b.eng.isBuiltin(name) {
			return goja.PropertyDescriptor{
				Value:        b.builtins.Get(name),
				Writable:     goja.FLAG_TRUE,
				Enumerable:   goja.FLAG_FALSE,
				Configurable: goja.FLAG_TRUE,
			}
		}
		return goja.PropertyDescriptor{}
	}
	b.pin(name, p)
	return b.descriptor(p)
}

func (b *bridge) descriptor(p *hostobj.Property) goja.PropertyDescriptor {
	d := goja.PropertyDescriptor{
		Enumerable:   flag(p.Enumerable),
		Configurable: flag(p.Configurable),
	}
	if p.IsAccessor() {
		pair := b.eng.accessorFuncs(p, b.host)
		d.Getter, d.Setter = pair.get, pair.set
		return d
	}
	d.Value = b.valueOf(p)
	d.Writable = flag(p.Writable)
	return d
}

func (b *bridge) defineProperty(_ *goja.Object, name string, desc goja.PropertyDescriptor) bool {
	next, pair := b.merge(b.host.OwnProperty(name), desc)
	if err := b.host.Define(name, next); err != nil {
		return false
	}
	p := b.host.OwnProperty(name)
	if p.IsAccessor() {
		b.eng.accessors.put(p, pair)
	}
	b.pin(name, p)
	return true
}

// merge applies a possibly partial descriptor on top of the current slot.
func (b *bridge) merge(cur *hostobj.Property, desc goja.PropertyDescriptor) (hostobj.Property, accessorPair) {
	var next hostobj.Property
	pair := accessorPair{get: goja.Undefined(), set: goja.Undefined()}
	if cur != nil {
		next = *cur
		if cur.IsAccessor() {
			pair = b.eng.accessorFuncs(cur, b.host)
		}
	}
	next.Enumerable = flagValue(desc.Enumerable, next.Enumerable)
	next.Configurable = flagValue(desc.Configurable, next.Configurable)

	switch {
	case desc.IsAccessor():
		if cur == nil || !cur.IsAccessor() {
			next.Getter, next.Setter = nil, nil
		}
		next.Value, next.Writable = nil, false
		if desc.Getter != nil {
			pair.get = desc.Getter
			next.Getter = b.eng.jsGetter(desc.Getter)
		}
		if desc.Setter != nil {
			pair.set = desc.Setter
			next.Setter = b.eng.jsSetter(desc.Setter)
		}
	case desc.IsData():
		if cur != nil && cur.IsAccessor() {
			next.Getter, next.Setter = nil, nil
			next.Value, next.Writable = hostobj.Undefined{}, false
		}
		if desc.Value != nil {
			next.Value = b.eng.toHost(desc.Value)
		} else if cur == nil {
			next.Value = hostobj.Undefined{}
		}
		next.Writable = flagValue(desc.Writable, next.Writable)
	default:
		if cur == nil {
			next.Value = hostobj.Undefined{}
		}
	}
	return next, pair
}

// pin mirrors a non-configurable host property onto the proxy target.
func (b *bridge) pin(name string, p *hostobj.Property) {
	if p.Configurable || (b.pinned[name] == p && !p.Writable) {
		return
	}
	var err error
	if p.IsAccessor() {
		pair := b.eng.accessorFuncs(p, b.host)
		err = b.target.DefineAccessorProperty(name, pair.get, pair.set, goja.FLAG_FALSE, flag(p.Enumerable))
	} else {
		err = b.target.DefineDataProperty(name, b.valueOf(p), flag(p.Writable), goja.FLAG_FALSE, flag(p.Enumerable))
	}
	if err != nil {
		b.eng.log.Warn("pin property", zap.String("name", name), zap.Error(err))
		return
	}
	b.pinned[name] = p
}

func flag(v bool) goja.Flag {
	if v {
		return goja.FLAG_TRUE
	}
	return goja.FLAG_FALSE
}

func flagValue(f goja.Flag, def bool) bool {
	switch f {
	case goja.FLAG_TRUE:
		return true
	case goja.FLAG_FALSE:
		return false
	}
	return def
}
