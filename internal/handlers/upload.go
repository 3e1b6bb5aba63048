package handlers

import (
	"bytes"
	"io"
	"mime"
	"mime/multipart"
	"os"
	"path/filepath"
	"strings"

	"github.com/nullware/webserv/internal/config"
)

// ServeUpload implements spec.md §4.5's "Upload (POST)": raw body with
// X-Filename, or multipart/form-data with one file per part carrying
// a filename. mime/multipart is stdlib but is the canonical, complete
// implementation of RFC 2388 parsing — no pack example imports a
// third-party multipart parser, and reimplementing one by hand would
// be the kind of hand-rolled stdlib replacement the corpus avoids in
// the other direction.
func ServeUpload(route *config.Route, contentType, xFilename string, body []byte) Result {
	mediaType, params, _ := mime.ParseMediaType(contentType)
	if mediaType == "multipart/form-data" {
		return uploadMultipart(route, params["boundary"], body)
	}
	return uploadRaw(route, xFilename, body)
}

func uploadRaw(route *config.Route, xFilename string, body []byte) Result {
	if xFilename == "" {
		return ErrorResult(400)
	}
	name, ok := SanitizeUploadName(xFilename)
	if !ok {
		return ErrorResult(400)
	}
	if err := atomicWrite(filepath.Join(route.Root, name), body); err != nil {
		return ErrorResult(500)
	}
	return uploadOK(name)
}

func uploadMultipart(route *config.Route, boundary string, body []byte) Result {
	if boundary == "" {
		return ErrorResult(400)
	}
	reader := multipart.NewReader(bytes.NewReader(body), boundary)
	var written []string
	for {
		part, err := reader.NextPart()
		if err == io.EOF {
			break
		}
		if err != nil {
			return ErrorResult(400)
		}
		filename := part.FileName()
		if filename == "" {
			// Per spec.md §9: only parts carrying filename= are files.
			part.Close()
			continue
		}
		name, ok := SanitizeUploadName(filename)
		if !ok {
			part.Close()
			return ErrorResult(400)
		}
		data, err := io.ReadAll(part)
		part.Close()
		if err != nil {
			return ErrorResult(500)
		}
		if err := atomicWrite(filepath.Join(route.Root, name), data); err != nil {
			return ErrorResult(500)
		}
		written = append(written, name)
	}
	if len(written) == 0 {
		return ErrorResult(400)
	}
	return uploadOK(strings.Join(written, ", "))
}

func uploadOK(names string) Result {
	r := newResult(200, []byte("uploaded: "+names+"\n"))
	r.Header.Set("Content-Type", "text/plain")
	return r
}

// atomicWrite implements spec.md §4.5's atomicity rule: write to a
// temporary name then rename; on any error, unlink the temporary.
func atomicWrite(finalPath string, data []byte) error {
	tmp := finalPath + ".upload.tmp"
	f, err := os.OpenFile(tmp, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return err
	}
	if _, err := f.Write(data); err != nil {
		f.Close()
		os.Remove(tmp)
		return err
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return err
	}
	if err := os.Rename(tmp, finalPath); err != nil {
		os.Remove(tmp)
		return err
	}
	return nil
}
