package s3

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	aws "github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// NewMockForTests returns a Store whose HTTP transport is answered entirely
// in process. It speaks just enough of the S3 REST protocol for the blob
// Store surface: HeadObject, GetObject, PutObject, DeleteObject and
// ListObjectsV2.
func NewMockForTests() *Store {
	transport := &fakeS3{objects: make(map[string]fakeObject)}
	cfg, _ := config.LoadDefaultConfig(context.Background(),
		config.WithRegion("us-east-1"),
		config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider("AKIA", "SECRET", "")),
	)
	client := s3.NewFromConfig(cfg, func(o *s3.Options) {
		o.HTTPClient = &http.Client{Transport: transport}
		o.UsePathStyle = true
		o.BaseEndpoint = aws.String("https://mock.s3.local")
	})
	return &Store{client: client, presign: s3.NewPresignClient(client), bucket: "printvault-test"}
}

type fakeObject struct {
	payload     []byte
	contentType string
}

// fakeS3 serves S3 REST calls from a map. Requests are path-style, so the
// object key is everything after the bucket segment.
type fakeS3 struct {
	mu      sync.Mutex
	objects map[string]fakeObject
}

func (f *fakeS3) RoundTrip(req *http.Request) (*http.Response, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, key, _ := strings.Cut(strings.TrimPrefix(req.URL.Path, "/"), "/")
	switch {
	case req.Method == http.MethodGet && req.URL.Query().Get("list-type") == "2":
		return f.list(req.URL.Query().Get("prefix")), nil
	case req.Method == http.MethodHead:
		return f.head(key), nil
	case req.Method == http.MethodGet:
		return f.get(key), nil
	case req.Method == http.MethodPut:
		return f.put(key, req), nil
	case req.Method == http.MethodDelete:
		delete(f.objects, key)
		return emptyResponse(http.StatusNoContent), nil
	}
	return emptyResponse(http.StatusNotImplemented), nil
}

func emptyResponse(status int) *http.Response {
	return &http.Response{StatusCode: status, Body: io.NopCloser(bytes.NewReader(nil)), Header: http.Header{}}
}

func objectHeader(obj fakeObject) http.Header {
	h := http.Header{}
	h.Set("Content-Length", strconv.Itoa(len(obj.payload)))
	h.Set("Content-Type", obj.contentType)
	h.Set("ETag", `"mock-etag"`)
	h.Set("Last-Modified", time.Now().UTC().Format(http.TimeFormat))
	return h
}

func (f *fakeS3) head(key string) *http.Response {
	obj, ok := f.objects[key]
	if !ok {
		return emptyResponse(http.StatusNotFound)
	}
	return &http.Response{StatusCode: http.StatusOK, Body: io.NopCloser(bytes.NewReader(nil)), Header: objectHeader(obj)}
}

func (f *fakeS3) get(key string) *http.Response {
	obj, ok := f.objects[key]
	if !ok {
		return emptyResponse(http.StatusNotFound)
	}
	return &http.Response{StatusCode: http.StatusOK, Body: io.NopCloser(bytes.NewReader(obj.payload)), Header: objectHeader(obj)}
}

func (f *fakeS3) put(key string, req *http.Request) *http.Response {
	payload, _ := io.ReadAll(req.Body)
	if decoded, ok := decodeChunked(payload); ok {
		payload = decoded
	}
	if _, exists := f.objects[key]; !exists {
		f.objects[key] = fakeObject{payload: payload, contentType: req.Header.Get("Content-Type")}
	}
	resp := emptyResponse(http.StatusOK)
	resp.Header.Set("ETag", `"mock-etag"`)
	return resp
}

func (f *fakeS3) list(prefix string) *http.Response {
	keys := make([]string, 0, len(f.objects))
	for k := range f.objects {
		if strings.HasPrefix(k, prefix) {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	var buf bytes.Buffer
	buf.WriteString(`<?xml version="1.0"?><ListBucketResult><IsTruncated>false</IsTruncated>`)
	for _, k := range keys {
		fmt.Fprintf(&buf,
			"<Contents><Key>%s</Key><Size>%d</Size><LastModified>2025-01-01T00:00:00Z</LastModified></Contents>",
			k, len(f.objects[k].payload))
	}
	buf.WriteString("</ListBucketResult>")
	h := http.Header{}
	h.Set("Content-Type", "application/xml")
	return &http.Response{StatusCode: http.StatusOK, Body: io.NopCloser(bytes.NewReader(buf.Bytes())), Header: h}
}

// decodeChunked unwraps the single-chunk aws-chunked framing the SDK applies
// to streamed uploads: "<hex-size>[;ext]\r\n<data>\r\n0\r\n...".
func decodeChunked(b []byte) ([]byte, bool) {
	head, rest, ok := strings.Cut(string(b), "\r\n")
	if !ok {
		return nil, false
	}
	if i := strings.IndexByte(head, ';'); i >= 0 {
		head = head[:i]
	}
	size, err := strconv.ParseInt(head, 16, 64)
	if err != nil {
		return nil, false
	}
	data, trailer, ok := strings.Cut(rest, "\r\n")
	if !ok || int64(len(data)) != size || !strings.HasPrefix(trailer, "0") {
		return nil, false
	}
	return []byte(data), true
}
