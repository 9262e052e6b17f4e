package photos

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
)

// ErrFileRead is returned when an uploaded file cannot be read or decoded.
var ErrFileRead = errors.New("failed to read file")

// File is an uploaded image. ContentType may be empty, in which case it is sniffed.
type File struct {
	Name        string
	ContentType string
	Body        io.Reader
}

type readResult struct {
	url string
	err error
}

// ReadDataURL reads f completely and encodes it as a base64 data URL.
// It returns ctx.Err() if ctx is done before the read finishes.
func ReadDataURL(ctx context.Context, f File) (string, error) {
	if f.Body == nil {
		return "", fmt.Errorf("%w: no content", ErrFileRead)
	}

	done := make(chan readResult, 1)
	go func() {
		data, err := io.ReadAll(f.Body)
		if err != nil {
			done <- readResult{err: fmt.Errorf("%w: %v", ErrFileRead, err)}
			return
		}
		if len(data) == 0 {
			done <- readResult{err: fmt.Errorf("%w: empty file", ErrFileRead)}
			return
		}
		done <- readResult{url: EncodeDataURL(f.ContentType, data)}
	}()

	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case res := <-done:
		return res.url, res.err
	}
}

// EncodeDataURL builds a base64 data URL. An empty mediaType is sniffed from data.
func EncodeDataURL(mediaType string, data []byte) string {
	if mediaType == "" {
		mediaType = http.DetectContentType(data)
	}
	// Drop parameters such as "; charset=utf-8" so the URL stays "<type>;base64".
	if i := strings.IndexByte(mediaType, ';'); i >= 0 {
		mediaType = strings.TrimSpace(mediaType[:i])
	}
	return "data:" + mediaType + ";base64," + base64.StdEncoding.EncodeToString(data)
}

// ParseDataURL splits a base64 data URL into its media type and decoded payload.
func ParseDataURL(url string) (mediaType string, data []byte, err error) {
	rest, ok := strings.CutPrefix(url, "data:")
	if !ok {
		return "", nil, errors.New("not a data url")
	}
	meta, payload, ok := strings.Cut(rest, ",")
	if !ok {
		return "", nil, errors.New("data url has no payload")
	}
	mediaType, ok = strings.CutSuffix(meta, ";base64")
	if !ok {
		return "", nil, errors.New("data url is not base64 encoded")
	}
	data, err = base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return "", nil, fmt.Errorf("decode data url: %w", err)
	}
	return mediaType, data, nil
}
