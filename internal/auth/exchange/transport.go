package exchange

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"strings"

	"github.com/brizzai/authlab/internal/auth/constants"
	"github.com/brizzai/authlab/internal/auth/providers"
	"github.com/hashicorp/go-cleanhttp"
)

const maxSniffBytes = 1 << 20

type encodingKey struct{}

// withResponseEncoding tells the transport which body format the token endpoint answers with.
func withResponseEncoding(ctx context.Context, enc providers.Encoding) context.Context {
	return context.WithValue(ctx, encodingKey{}, enc)
}

// headerTransport stamps the identifying headers on every outbound call. For providers
// that answer in form encoding it relabels query-string token bodies that arrive with a
// JSON or missing content type.
type headerTransport struct {
	base http.RoundTripper
}

func newHTTPClient(base *http.Client) *http.Client {
	if base == nil {
		base = cleanhttp.DefaultPooledClient()
	}
	rt := base.Transport
	if rt == nil {
		rt = cleanhttp.DefaultPooledTransport()
	}
	return &http.Client{
		Transport:     &headerTransport{base: rt},
		Timeout:       base.Timeout,
		CheckRedirect: base.CheckRedirect,
		Jar:           base.Jar,
	}
}

func (t *headerTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	req = req.Clone(req.Context())
	req.Header.Set("User-Agent", constants.UserAgent)
	if req.Header.Get("Accept") == "" {
		req.Header.Set("Accept", "application/json")
	}

	resp, err := t.base.RoundTrip(req)
	if err != nil || req.Method != http.MethodPost {
		return resp, err
	}
	if enc, _ := req.Context().Value(encodingKey{}).(providers.Encoding); enc != providers.EncodingForm {
		return resp, nil
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return resp, nil
	}
	if strings.HasPrefix(resp.Header.Get("Content-Type"), "application/x-www-form-urlencoded") {
		return resp, nil
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxSniffBytes))
	_ = resp.Body.Close()
	if err != nil {
		return nil, err
	}
	if bytes.HasPrefix(bytes.TrimSpace(body), []byte("access_token=")) {
		resp.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	}
	resp.Body = io.NopCloser(bytes.NewReader(body))
	resp.ContentLength = int64(len(body))
	return resp, nil
}
