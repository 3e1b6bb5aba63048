package handlers

import (
	"os"
	"path/filepath"

	"github.com/nullware/webserv/internal/config"
)

// ServeStatic implements spec.md §4.5's "Static GET" behavior.
func ServeStatic(route *config.Route, requestPath string) Result {
	fsPath, ok := ResolveUnderRoot(requestPath, route.Prefix, route.Root)
	if !ok {
		return ErrorResult(403)
	}

	info, err := os.Stat(fsPath)
	if err != nil {
		if os.IsNotExist(err) {
			return ErrorResult(404)
		}
		if os.IsPermission(err) {
			return ErrorResult(403)
		}
		return ErrorResult(500)
	}

	if info.IsDir() {
		if route.DefaultFile != "" {
			defPath := filepath.Join(fsPath, route.DefaultFile)
			if dInfo, err := os.Stat(defPath); err == nil && dInfo.Mode().IsRegular() {
				return serveFile(defPath, dInfo.Size())
			}
		}
		if route.Autoindex {
			atRoot := requestPath == route.Prefix || requestPath == route.Prefix+"/"
			body, err := RenderAutoindex(fsPath, requestPath, atRoot)
			if err != nil {
				return ErrorResult(500)
			}
			r := newResult(200, body)
			r.Header.Set("Content-Type", "text/html")
			return r
		}
		return ErrorResult(403)
	}

	if !info.Mode().IsRegular() {
		return ErrorResult(403)
	}
	return serveFile(fsPath, info.Size())
}

func serveFile(fsPath string, size int64) Result {
	f, err := os.Open(fsPath)
	if err != nil {
		if os.IsPermission(err) {
			return ErrorResult(403)
		}
		return ErrorResult(500)
	}
	r := Result{
		Status:       200,
		Header:       make(map[string][]string),
		Stream:       f,
		StreamLength: size,
	}
	r.Header.Set("Content-Type", contentTypeByExtension(fsPath))
	return r
}
