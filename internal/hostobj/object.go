package hostobj

import (
	"errors"
	"fmt"
	"reflect"
	"sort"
)

var (
	// ErrReadOnly is returned by Set when the target property, own or
	// inherited, is not writable or is an accessor without a setter.
	ErrReadOnly = errors.New("property is read-only")

	// ErrNotConfigurable is returned by Define when the change is not
	// permitted on a non-configurable property.
	ErrNotConfigurable = errors.New("property is not configurable")

	// ErrCyclicProto is returned by SetProto when the new prototype chain
	// would contain the object itself.
	ErrCyclicProto = errors.New("cyclic prototype chain")
)

// Undefined is the host representation of the script value undefined.
// A nil value represents null.
type Undefined struct{}

// IsUndefined reports whether v is Undefined.
func IsUndefined(v any) bool {
	_, ok := v.(Undefined)
	return ok
}

// Getter computes an accessor property's value. this is the object the
// lookup started from, which may be a descendant of the defining object.
type Getter func(this *Object) (any, error)

// Setter stores an accessor property's value with this as receiver.
type Setter func(this *Object, value any) error

// Property is a single own property slot.
type Property struct {
	Value        any
	Getter       Getter
	Setter       Setter
	Writable     bool
	Enumerable   bool
	Configurable bool
}

// IsAccessor reports whether the property is backed by a getter or setter.
func (p *Property) IsAccessor() bool {
	return p.Getter != nil || p.Setter != nil
}

// Object is an ordered property map with an optional prototype.
// It is not safe for concurrent use.
type Object struct {
	proto *Object
	names []string
	props map[string]*Property
}

// New creates an empty object without a prototype.
func New() *Object {
	return &Object{props: make(map[string]*Property)}
}

// NewWithProto creates an empty object inheriting from proto.
func NewWithProto(proto *Object) *Object {
	o := New()
	o.proto = proto
	return o
}

// FromMap builds an object from m. Nested maps become nested objects.
// Keys are inserted in sorted order since map iteration order is random.
func FromMap(m map[string]any) *Object {
	o := New()
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		o.add(k, &Property{Value: fromValue(m[k]), Writable: true, Enumerable: true, Configurable: true})
	}
	return o
}

func fromValue(v any) any {
	switch v := v.(type) {
	case map[string]any:
		return FromMap(v)
	case []any:
		out := make([]any, len(v))
		for i, e := range v {
			out[i] = fromValue(e)
		}
		return out
	}
	return v
}

// Proto returns the prototype or nil.
func (o *Object) Proto() *Object {
	return o.proto
}

// SetProto replaces the prototype.
func (o *Object) SetProto(proto *Object) error {
	for p := proto; p != nil; p = p.proto {
		if p == o {
			return ErrCyclicProto
		}
	}
	o.proto = proto
	return nil
}

// OwnProperty returns the own property slot for name or nil. The returned
// property must not be modified; use Define or Set instead.
func (o *Object) OwnProperty(name string) *Property {
	return o.props[name]
}

// Lookup walks the prototype chain starting at o and returns the first
// property named name together with the object holding it.
func (o *Object) Lookup(name string) (*Property, *Object) {
	for cur := o; cur != nil; cur = cur.proto {
		if p, ok := cur.props[name]; ok {
			return p, cur
		}
	}
	return nil, nil
}

// Has reports whether name resolves anywhere on the chain.
func (o *Object) Has(name string) bool {
	p, _ := o.Lookup(name)
	return p != nil
}

// HasOwn reports whether name is an own property.
func (o *Object) HasOwn(name string) bool {
	_, ok := o.props[name]
	return ok
}

// Get resolves name along the prototype chain. Getters run with o as
// receiver. A missing property yields Undefined.
func (o *Object) Get(name string) (any, error) {
	p, _ := o.Lookup(name)
	if p == nil {
		return Undefined{}, nil
	}
	if p.IsAccessor() {
		if p.Getter == nil {
			return Undefined{}, nil
		}
		return p.Getter(o)
	}
	return p.Value, nil
}

// MustGet is Get for callers that know no getter on the path can fail.
func (o *Object) MustGet(name string) any {
	v, err := o.Get(name)
	if err != nil {
		panic(fmt.Sprintf("hostobj: get %q: %v", name, err))
	}
	return v
}

// Set performs an ordinary assignment. A setter found on the chain is
// invoked with o as receiver; otherwise the value lands in an own data
// property of o, never on a prototype.
func (o *Object) Set(name string, value any) error {
	if p, _ := o.Lookup(name); p != nil {
		if p.IsAccessor() {
			if p.Setter == nil {
				return fmt.Errorf("%w: %s", ErrReadOnly, name)
			}
			return p.Setter(o, value)
		}
		if !p.Writable {
			return fmt.Errorf("%w: %s", ErrReadOnly, name)
		}
	}
	if own, ok := o.props[name]; ok {
		own.Value = value
		return nil
	}
	o.add(name, &Property{Value: value, Writable: true, Enumerable: true, Configurable: true})
	return nil
}

// Define creates or reconfigures an own property. Changing a
// non-configurable property is limited to lowering writable and, while it
// is still writable, replacing the value.
func (o *Object) Define(name string, p Property) error {
	cur, ok := o.props[name]
	if !ok {
		o.add(name, &p)
		return nil
	}
	if !cur.Configurable {
		if err := checkRedefine(cur, &p); err != nil {
			return fmt.Errorf("%w: %s", err, name)
		}
	}
	// Every redefinition gets a fresh slot so holders of the old one can
	// tell it changed.
	o.props[name] = &p
	return nil
}

func checkRedefine(cur, next *Property) error {
	if next.Configurable || next.Enumerable != cur.Enumerable {
		return ErrNotConfigurable
	}
	if cur.IsAccessor() || next.IsAccessor() {
		return ErrNotConfigurable
	}
	if !cur.Writable {
		if next.Writable || !sameValue(cur.Value, next.Value) {
			return ErrNotConfigurable
		}
	}
	return nil
}

func sameValue(a, b any) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	ta, tb := reflect.TypeOf(a), reflect.TypeOf(b)
	if ta != tb || !ta.Comparable() {
		return false
	}
	return a == b
}

// Delete removes an own property. It reports false only when the property
// exists and is not configurable.
func (o *Object) Delete(name string) bool {
	p, ok := o.props[name]
	if !ok {
		return true
	}
	if !p.Configurable {
		return false
	}
	delete(o.props, name)
	for i, n := range o.names {
		if n == name {
			o.names = append(o.names[:i], o.names[i+1:]...)
			break
		}
	}
	return true
}

// Keys returns own enumerable property names in insertion order.
func (o *Object) Keys() []string {
	keys := make([]string, 0, len(o.names))
	for _, n := range o.names {
		if o.props[n].Enumerable {
			keys = append(keys, n)
		}
	}
	return keys
}

// OwnNames returns every own property name in insertion order.
func (o *Object) OwnNames() []string {
	return append([]string(nil), o.names...)
}

// Len returns the number of own properties.
func (o *Object) Len() int {
	return len(o.names)
}

func (o *Object) add(name string, p *Property) {
	o.names = append(o.names, name)
	o.props[name] = p
}
