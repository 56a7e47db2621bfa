/*
Package hostobj models the host side of a sandbox: an ordered property map
with accessor support and an explicit prototype back-reference.

Lookups through Get and Has share one chain walk (Lookup). Assignment
follows ordinary script semantics: an inherited setter wins, read-only
slots reject the write, and everything else becomes an own property.

	proto := hostobj.New()
	_ = proto.Set("greeting", "hi")

	sb := hostobj.NewWithProto(proto)
	v, _ := sb.Get("greeting") // "hi"
*/
package hostobj
