package handlers

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/nullware/webserv/internal/config"
)

// ServeDelete implements spec.md §4.5's "Delete (DELETE)": path form
// route.prefix + '/' + name, sanitized, unlinked from route.root.
func ServeDelete(route *config.Route, requestPath string) Result {
	rest := strings.TrimPrefix(requestPath, route.Prefix)
	rest = strings.TrimPrefix(rest, "/")
	name, ok := SanitizeUploadName(rest)
	if !ok {
		return ErrorResult(403)
	}
	err := os.Remove(filepath.Join(route.Root, name))
	switch {
	case err == nil:
		r := newResult(200, []byte("deleted: "+name+"\n"))
		r.Header.Set("Content-Type", "text/plain")
		return r
	case os.IsNotExist(err):
		return ErrorResult(404)
	case os.IsPermission(err):
		return ErrorResult(403)
	default:
		return ErrorResult(500)
	}
}
