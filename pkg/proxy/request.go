package proxy

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"strconv"
	"strings"
)

const (
	// DefaultMaxBodyBytes caps structured request bodies (50 MiB).
	DefaultMaxBodyBytes int64 = 50 * 1024 * 1024

	// RequestIDHeader is the HTTP header for request ID propagation.
	RequestIDHeader = "X-Request-ID"
)

// BodyKind identifies how a request body was parsed.
type BodyKind int

const (
	// BodyJSON is an application/json (or +json) body.
	BodyJSON BodyKind = iota + 1

	// BodyForm is an application/x-www-form-urlencoded body.
	BodyForm
)

// String implements fmt.Stringer.
func (k BodyKind) String() string {
	switch k {
	case BodyJSON:
		return "json"
	case BodyForm:
		return "form"
	default:
		return "unknown"
	}
}

// ParsedBody is a structured request body decoded ahead of forwarding.
// Value holds the decoded JSON value (json.Number for numbers) or, for form
// bodies, a map[string]any of strings, nested objects and lists.
type ParsedBody struct {
	Kind  BodyKind
	Value any
}

// CarriesBody reports whether method conventionally carries a request body
// that is subject to re-framing.
func CarriesBody(method string) bool {
	switch method {
	case http.MethodPost, http.MethodPut, http.MethodPatch:
		return true
	default:
		return false
	}
}

// ParseBody reads and decodes the request body when the method carries a
// body and the Content-Type is JSON or form-encoded. An empty structured
// body decodes to an empty object. It returns nil, nil when the body is not
// structured; in that case r.Body is untouched and will be streamed to the
// upstream as-is.
//
// Bodies larger than limit fail with a *BodyError carrying 413. Bodies that
// do not decode fail with a *BodyError carrying 400. In both cases r.Body has
// been consumed.
func ParseBody(r *http.Request, limit int64) (*ParsedBody, error) {
	if !CarriesBody(r.Method) {
		return nil, nil
	}

	kind := structuredKind(r.Header.Get("Content-Type"))
	if kind == 0 {
		return nil, nil
	}

	if limit <= 0 {
		limit = DefaultMaxBodyBytes
	}

	data, err := readBody(r, limit)
	if err != nil {
		return nil, &BodyError{
			Status:  http.StatusBadRequest,
			Message: fmt.Sprintf("failed to read request body: %v", err),
			Cause:   err,
		}
	}
	if int64(len(data)) > limit {
		return nil, &BodyError{
			Status:  http.StatusRequestEntityTooLarge,
			Message: fmt.Sprintf("request body exceeds maximum size of %d bytes", limit),
		}
	}

	switch kind {
	case BodyJSON:
		v, err := decodeJSON(data)
		if err != nil {
			return nil, &BodyError{
				Status:  http.StatusBadRequest,
				Message: fmt.Sprintf("invalid JSON body: %v", err),
				Cause:   err,
			}
		}
		return &ParsedBody{Kind: BodyJSON, Value: v}, nil

	default:
		values, err := decodeForm(string(data))
		if err != nil {
			return nil, &BodyError{
				Status:  http.StatusBadRequest,
				Message: fmt.Sprintf("invalid form body: %v", err),
				Cause:   err,
			}
		}
		return &ParsedBody{Kind: BodyForm, Value: values}, nil
	}
}

func readBody(r *http.Request, limit int64) ([]byte, error) {
	if r.Body == nil || r.Body == http.NoBody {
		return nil, nil
	}
	defer r.Body.Close()
	return io.ReadAll(io.LimitReader(r.Body, limit+1))
}

// Encode serializes the parsed value to JSON text. Object keys are sorted
// and numbers keep their original textual form, so encoding is
// deterministic. The result is not guaranteed to be byte-identical to the
// original body.
func (b *ParsedBody) Encode() ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(b.Value); err != nil {
		return nil, fmt.Errorf("failed to encode %s body: %w", b.Kind, err)
	}
	return bytes.TrimSuffix(buf.Bytes(), []byte("\n")), nil
}

// Reframe replaces the body of r with the JSON encoding of b and rewrites
// the framing headers to match it: Content-Type becomes application/json
// and Content-Length the exact byte length of the new body.
func (b *ParsedBody) Reframe(r *http.Request) error {
	data, err := b.Encode()
	if err != nil {
		return err
	}

	r.Body = io.NopCloser(bytes.NewReader(data))
	r.GetBody = func() (io.ReadCloser, error) {
		return io.NopCloser(bytes.NewReader(data)), nil
	}
	r.ContentLength = int64(len(data))
	r.TransferEncoding = nil
	r.Header.Del("Transfer-Encoding")
	r.Header.Set("Content-Type", "application/json")
	r.Header.Set("Content-Length", strconv.Itoa(len(data)))
	return nil
}

// structuredKind maps a Content-Type header onto the body kinds that are
// parsed ahead of forwarding. It returns 0 for everything else.
func structuredKind(contentType string) BodyKind {
	if contentType == "" {
		return 0
	}
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return 0
	}
	switch {
	case mediaType == "application/json", strings.HasSuffix(mediaType, "+json"):
		return BodyJSON
	case mediaType == "application/x-www-form-urlencoded":
		return BodyForm
	default:
		return 0
	}
}

// decodeJSON decodes a JSON object or array. An all-whitespace body decodes
// to an empty object.
func decodeJSON(data []byte) (any, error) {
	if len(bytes.TrimSpace(data)) == 0 {
		return map[string]any{}, nil
	}

	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, err
	}
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return nil, errors.New("unexpected data after top-level value")
	}

	switch v.(type) {
	case map[string]any, []any:
		return v, nil
	default:
		return nil, errors.New("top-level value must be an object or array")
	}
}
