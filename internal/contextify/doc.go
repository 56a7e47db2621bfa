// Package contextify runs JavaScript against a host object that acts as the
// script's global scope.
//
// Each context owns a private goja runtime. Its global object is a proxy
// whose traps forward every property operation to a *hostobj.Object, so
// globals written by scripts appear on the host object immediately and
// host-side changes are visible to the next script. Language builtins stay
// reachable through a fallback lookup once the host object's prototype
// chain misses.
//
// Usage:
//
//	obj := hostobj.FromMap(map[string]any{"prop1": "a"})
//	sb, err := contextify.New(obj)
//	if err != nil {
//		return err
//	}
//	defer sb.Dispose()
//
//	if _, err := sb.Run("test = (prop1 == 'a')"); err != nil {
//		return err
//	}
//	test := obj.MustGet("test") // true
//
// A context runs one script at a time and does no locking of its own.
package contextify
