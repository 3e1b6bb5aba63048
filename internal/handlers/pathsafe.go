package handlers

import (
	"os"
	"path"
	"strings"
)

// ResolveUnderRoot implements the lexical path-traversal sanitization
// mandated by spec.md §4.5 and §9: reject on the request path string,
// before ever touching the filesystem, so a symlink swap mid-request
// cannot open a race window.
//
// requestPath is the full URL path; prefix is the matched route's
// prefix; root is the route's filesystem root. It returns the
// resolved filesystem path and whether it stayed within root.
func ResolveUnderRoot(requestPath, prefix, root string) (resolved string, ok bool) {
	remainder := strings.TrimPrefix(requestPath, prefix)
	remainder = strings.TrimPrefix(remainder, "/")

	for _, seg := range strings.Split(remainder, "/") {
		if seg == ".." {
			return "", false
		}
	}
	clean := path.Clean("/" + remainder)
	return path.Join(root, clean), true
}

// SanitizeUploadName implements spec.md §4.5's filename sanitization
// for uploads and deletes: strip directory components, reject empty
// names, names beginning with '.', and names containing NUL, '/' or '\'.
func SanitizeUploadName(name string) (string, bool) {
	if strings.ContainsRune(name, 0) {
		return "", false
	}
	base := path.Base(name)
	if base == "" || base == "." || base == "/" {
		return "", false
	}
	if strings.HasPrefix(base, ".") {
		return "", false
	}
	if strings.ContainsAny(base, "/\\") {
		return "", false
	}
	return base, true
}

// ResolveCGIScript walks the path segments after prefix looking for
// the first one that names a regular file under root, splitting the
// remainder into the script's own URL path and a PATH_INFO trailer,
// per spec.md §4.6's "PATH_INFO (path remainder after script)".
func ResolveCGIScript(requestPath, prefix, root string) (scriptFSPath, scriptURLPath, pathInfo string, ok bool) {
	remainder := strings.TrimPrefix(requestPath, prefix)
	remainder = strings.TrimPrefix(remainder, "/")
	clean := path.Clean("/" + remainder)
	for _, seg := range strings.Split(clean, "/") {
		if seg == ".." {
			return "", "", "", false
		}
	}

	trimmed := strings.Trim(clean, "/")
	if trimmed == "" {
		return "", "", "", false
	}
	segments := strings.Split(trimmed, "/")
	cursor := ""
	for i, seg := range segments {
		if cursor == "" {
			cursor = seg
		} else {
			cursor = cursor + "/" + seg
		}
		fsPath := path.Join(root, cursor)
		info, err := os.Stat(fsPath)
		if err == nil && info.Mode().IsRegular() {
			rest := segments[i+1:]
			pathInfo = ""
			if len(rest) > 0 {
				pathInfo = "/" + strings.Join(rest, "/")
			}
			return fsPath, path.Join(prefix, cursor), pathInfo, true
		}
	}
	return "", "", "", false
}
