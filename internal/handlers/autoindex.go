package handlers

import (
	"fmt"
	"html"
	"os"
	"path"
	"sort"
	"strings"
)

type entryInfo struct {
	Name  string
	IsDir bool
	Size  int64
}

// byNameDirFirst implements spec.md §4.5's autoindex ordering:
// directories first, then files, each alphabetically case-insensitive.
type byNameDirFirst []entryInfo

func (e byNameDirFirst) Len() int      { return len(e) }
func (e byNameDirFirst) Swap(i, j int) { e[i], e[j] = e[j], e[i] }
func (e byNameDirFirst) Less(i, j int) bool {
	if e[i].IsDir != e[j].IsDir {
		return e[i].IsDir
	}
	return strings.ToLower(e[i].Name) < strings.ToLower(e[j].Name)
}

// RenderAutoindex builds the HTML directory listing described in
// spec.md §4.5: links relative to the request path, plus a parent
// link unless already at the route's root.
func RenderAutoindex(dirFSPath, urlPath string, atRoot bool) ([]byte, error) {
	entries, err := os.ReadDir(dirFSPath)
	if err != nil {
		return nil, err
	}
	items := make([]entryInfo, 0, len(entries))
	for _, e := range entries {
		info, err := e.Info()
		var size int64
		if err == nil {
			size = info.Size()
		}
		items = append(items, entryInfo{Name: e.Name(), IsDir: e.IsDir(), Size: size})
	}
	sort.Sort(byNameDirFirst(items))

	var b strings.Builder
	b.WriteString("<!DOCTYPE html>\n<html><head><meta charset=\"utf-8\">")
	fmt.Fprintf(&b, "<title>Index of %s</title></head><body>\n", html.EscapeString(urlPath))
	fmt.Fprintf(&b, "<h1>Index of %s</h1>\n<ul>\n", html.EscapeString(urlPath))

	if !atRoot {
		b.WriteString("<li><a href=\"../\">../</a></li>\n")
	}
	for _, it := range items {
		name := it.Name
		href := name
		display := name
		if it.IsDir {
			href += "/"
			display += "/"
			fmt.Fprintf(&b, "<li><a href=\"%s\">%s</a></li>\n", html.EscapeString(href), html.EscapeString(display))
		} else {
			fmt.Fprintf(&b, "<li><a href=\"%s\">%s</a> (%s)</li>\n", html.EscapeString(href), html.EscapeString(display), humanSize(it.Size))
		}
	}
	b.WriteString("</ul></body></html>\n")
	return []byte(b.String()), nil
}

// humanSize renders a byte count the way a directory listing would
// (e.g. "1.2K", "3.4M"). Hand-rolled: this is a small, fully-specified
// formatting table and no pack example imports a byte-humanizing
// library (see SPEC_FULL.md §7.2), so there is nothing to wire here.
func humanSize(n int64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%dB", n)
	}
	div, exp := int64(unit), 0
	for v := n / unit; v >= unit; v /= unit {
		div *= unit
		exp++
	}
	units := "KMGTPE"
	return fmt.Sprintf("%.1f%c", float64(n)/float64(div), units[exp])
}

// JoinURLPath joins a request path and an entry name for link
// rendering purposes (kept distinct from filesystem path.Join).
func JoinURLPath(base, name string) string {
	if !strings.HasSuffix(base, "/") {
		base += "/"
	}
	return path.Clean(base+name)
}
