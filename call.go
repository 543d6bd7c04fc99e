package restq

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"github.com/gorilla/schema"
)

var schemaEncoder = schema.NewEncoder()

// Verb is an HTTP method a Call may use.
type Verb string

const (
	GET    Verb = "GET"
	POST   Verb = "POST"
	PUT    Verb = "PUT"
	DELETE Verb = "DELETE"
	PATCH  Verb = "PATCH"
)

// AllowsBody reports whether the verb permits a request body.
func (v Verb) AllowsBody() bool {
	return v != GET && v != DELETE
}

// ParameterKind describes where a parameter payload is placed in the request.
type ParameterKind string

const (
	// KindHeader places the payload into request header fields.
	// The payload must be a map[string]string.
	KindHeader ParameterKind = "header"

	// KindQuery appends the payload to the URL query, preserving existing
	// query items. The payload may be a map[string]string or a struct
	// encoded with gorilla/schema tags.
	KindQuery ParameterKind = "query"

	// KindBody serializes the payload as the JSON request body.
	// Disallowed for GET and DELETE.
	KindBody ParameterKind = "body"
)

// Parameters tags a payload with its placement in the outgoing request.
type Parameters struct {
	Kind    ParameterKind
	Payload any
}

// HeaderParameters builds header-placed parameters.
func HeaderParameters(fields map[string]string) *Parameters {
	return &Parameters{Kind: KindHeader, Payload: fields}
}

// QueryParameters builds query-placed parameters. The payload may be a
// map[string]string or a struct with schema tags.
func QueryParameters(payload any) *Parameters {
	return &Parameters{Kind: KindQuery, Payload: payload}
}

// BodyParameters builds JSON-body parameters.
func BodyParameters(payload any) *Parameters {
	return &Parameters{Kind: KindBody, Payload: payload}
}

// Call describes one logical request: target path, verb, optional parameter
// payload, and an optional root key used to locate the relevant sub-document
// in the response. A Call is created per logical request, consumed once by a
// Service, and discarded after.
type Call struct {
	Path    string `validate:"required"`
	Verb    Verb   `validate:"required,oneof=GET POST PUT DELETE PATCH"`
	RootKey string
	Params  *Parameters
}

// NewCall creates a Call for the given verb and path.
func NewCall(verb Verb, path string) *Call {
	return &Call{Verb: verb, Path: path}
}

// WithRootKey sets the response root key. It returns the call for chaining.
func (c *Call) WithRootKey(key string) *Call {
	c.RootKey = key
	return c
}

// WithParameters sets the parameter payload. It returns the call for chaining.
func (c *Call) WithParameters(p *Parameters) *Call {
	c.Params = p
	return c
}

// NewRequest builds the concrete transport request for the call against the
// given base URL. Parameter application is best-effort: a payload that does
// not fit its placement is logged and skipped, and the request is still
// returned so the call proceeds without the offending part.
func (c *Call) NewRequest(ctx context.Context, baseURL string, logger *slog.Logger) (*http.Request, error) {
	if logger == nil {
		logger = slog.Default()
	}

	target := strings.TrimSuffix(baseURL, "/") + "/" + strings.TrimPrefix(c.Path, "/")
	req, err := http.NewRequestWithContext(ctx, string(c.Verb), target, nil)
	if err != nil {
		return nil, Errorf(CodeInvalidSession, "create request: %v", err)
	}

	if c.Params != nil {
		if err := c.applyParameters(req); err != nil {
			logger.Error("parameter application failed",
				slog.String("path", c.Path),
				slog.String("verb", string(c.Verb)),
				slog.String("kind", string(c.Params.Kind)),
				slog.Any("error", err))
		}
	}

	return req, nil
}

// applyParameters places the payload into req according to its kind.
// On error, req is left without the intended part but otherwise usable.
func (c *Call) applyParameters(req *http.Request) error {
	p := c.Params
	switch p.Kind {
	case KindHeader:
		fields, ok := p.Payload.(map[string]string)
		if !ok {
			return Errorf(CodeMalformedParameters, "header payload must be map[string]string, got %T", p.Payload)
		}
		for k, v := range fields {
			req.Header.Add(k, v)
		}
		return nil

	case KindQuery:
		values, err := encodeQuery(p.Payload)
		if err != nil {
			return err
		}
		query := req.URL.Query()
		for k, vs := range values {
			for _, v := range vs {
				query.Add(k, v)
			}
		}
		req.URL.RawQuery = query.Encode()
		return nil

	case KindBody:
		if !c.Verb.AllowsBody() {
			return Errorf(CodeMalformedParameters, "verb %s does not allow a body", c.Verb)
		}
		data, err := json.Marshal(p.Payload)
		if err != nil {
			return Errorf(CodeMalformedParameters, "encode body: %v", err)
		}
		req.Body = newBodyReader(data)
		req.GetBody = func() (io.ReadCloser, error) { return newBodyReader(data), nil }
		req.ContentLength = int64(len(data))
		req.Header.Set("Content-Type", "application/json")
		return nil

	default:
		return Errorf(CodeMalformedParameters, "unknown parameter kind %q", p.Kind)
	}
}

// encodeQuery turns a query payload into url.Values. Maps are copied
// directly; anything else is treated as a struct and encoded with schema.
func encodeQuery(payload any) (url.Values, error) {
	values := url.Values{}
	switch v := payload.(type) {
	case map[string]string:
		for k, val := range v {
			values.Set(k, val)
		}
	case url.Values:
		return v, nil
	default:
		if err := schemaEncoder.Encode(payload, values); err != nil {
			return nil, Errorf(CodeMalformedParameters, "encode query from %T: %v", payload, err)
		}
	}
	return values, nil
}

func newBodyReader(data []byte) *bodyReader {
	return &bodyReader{Reader: bytes.NewReader(data)}
}

// bodyReader adapts a bytes.Reader to io.ReadCloser for http.Request.Body.
type bodyReader struct {
	*bytes.Reader
}

func (*bodyReader) Close() error { return nil }

func (c *Call) String() string {
	return fmt.Sprintf("%s %s", c.Verb, c.Path)
}
