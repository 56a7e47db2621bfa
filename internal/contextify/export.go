package contextify

import (
	"strconv"

	"github.com/GriffinCanCode/contextify/internal/hostobj"
)

// Export turns a host value into a JSON-friendly tree of maps, slices and
// primitives. Functions become descriptive strings, Undefined becomes nil
// and repeated references to an object on the current path become
// "[Circular]". Failing getters export as nil.
func Export(v any) any {
	return exportValue(v, make(map[any]bool))
}

func exportValue(v any, path map[any]bool) any {
	switch v := v.(type) {
	case nil, hostobj.Undefined:
		return nil
	case *hostobj.Object:
		if path[v] {
			return "[Circular]"
		}
		path[v] = true
		defer delete(path, v)
		out := make(map[string]any, v.Len())
		for _, k := range v.Keys() {
			val, err := v.Get(k)
			if err != nil {
				out[k] = nil
				continue
			}
			out[k] = exportValue(val, path)
		}
		return out
	case *Global:
		return exportValue(v.eng.sandbox, path)
	case *Sandbox:
		return exportValue(v.obj, path)
	case *Context:
		return exportValue(v.obj, path)
	case *Function:
		if name := v.Name(); name != "" {
			return "[Function: " + name + "]"
		}
		return "[Function]"
	case Func, func(Call) (any, error):
		return "[Function]"
	case *JSObject:
		if path[v] {
			return "[Circular]"
		}
		path[v] = true
		defer delete(path, v)
		out := make(map[string]any)
		for _, k := range v.Keys() {
			val, err := v.Get(k)
			if err != nil {
				out[k] = nil
				continue
			}
			out[k] = exportValue(val, path)
		}
		if v.ClassName() == "Array" {
			return arrayOf(out)
		}
		return out
	case []any:
		out := make([]any, len(v))
		for i, item := range v {
			out[i] = exportValue(item, path)
		}
		return out
	case map[string]any:
		out := make(map[string]any, len(v))
		for k, item := range v {
			out[k] = exportValue(item, path)
		}
		return out
	case *ScriptError:
		return map[string]any{"name": v.Name, "message": v.Message, "kind": v.Kind.String()}
	case error:
		return v.Error()
	}
	return v
}

// arrayOf rebuilds a script array from its exported index keys.
func arrayOf(items map[string]any) []any {
	out := make([]any, 0, len(items))
	for i := 0; ; i++ {
		item, ok := items[strconv.Itoa(i)]
		if !ok {
			return out
		}
		out = append(out, item)
	}
}
