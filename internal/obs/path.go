package obs

import "strings"

// collection routes whose immediate child segment is an identifier
var idCollections = map[string]struct{}{
	"users":       {},
	"roles":       {},
	"enterprises": {},
}

// CanonicalPath collapses resource identifiers so metric labels stay low
// cardinality: /v1/users/abc -> /v1/users/:id, /v1/roles/abc/permissions ->
// /v1/roles/:id/permissions. Unknown shapes pass through unchanged.
func CanonicalPath(path string) string {
	if i := strings.IndexByte(path, '?'); i >= 0 {
		path = path[:i]
	}
	if path == "" {
		return "/"
	}
	parts := strings.Split(strings.Trim(path, "/"), "/")
	if len(parts) < 3 || parts[0] != "v1" {
		return path
	}
	if _, ok := idCollections[parts[1]]; !ok {
		return path
	}
	switch len(parts) {
	case 3:
		return "/v1/" + parts[1] + "/:id"
	case 4:
		return "/v1/" + parts[1] + "/:id/" + parts[3]
	default:
		return path
	}
}
