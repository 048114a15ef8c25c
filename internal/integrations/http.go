package integrations

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"

	"github.com/soochol/autoflow/internal/xjson"
)

// maxResponseBody caps how much of an HTTP response body is kept in the data bag.
const maxResponseBody = 1 << 20

var allowedMethods = map[string]bool{
	"GET": true, "POST": true, "PUT": true, "PATCH": true, "DELETE": true, "HEAD": true,
}

// HTTPIntegration performs an HTTP request.
//
// Config: url, method (default GET), headers, body (string, or object sent as
// JSON), timeoutSeconds, selector (CSS selector applied to an HTML response),
// auth ({type: bearer, token} or {type: oauth2, tokenUrl, clientId,
// clientSecret, scopes}).
type HTTPIntegration struct {
	Client *http.Client
}

func (h *HTTPIntegration) Type() string             { return TypeHTTP }
func (h *HTTPIntegration) RequiredFields() []string { return []string{"url"} }

func (h *HTTPIntegration) Execute(ctx context.Context, config, _ map[string]any) (map[string]any, error) {
	method := strings.ToUpper(stringField(config, "method"))
	if method == "" {
		method = http.MethodGet
	}
	if !allowedMethods[method] {
		return nil, fmt.Errorf("unsupported HTTP method: %q", method)
	}
	url := stringField(config, "url")
	if url == "" {
		return nil, fmt.Errorf("url is required")
	}

	timeout := time.Duration(intField(config, "timeoutSeconds", 30)) * time.Second
	reqCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	body, contentType, err := requestBody(config["body"])
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(reqCtx, method, url, body)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	for k, v := range stringMap(config, "headers") {
		req.Header.Set(k, v)
	}

	client, err := h.authorizedClient(reqCtx, config)
	if err != nil {
		return nil, err
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBody))
	if err != nil {
		return nil, fmt.Errorf("read response body: %w", err)
	}
	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("%s %s returned %d", method, url, resp.StatusCode)
	}

	headers := make(map[string]any, len(resp.Header))
	for k := range resp.Header {
		headers[k] = resp.Header.Get(k)
	}
	out := map[string]any{
		"statusCode": resp.StatusCode,
		"headers":    headers,
		"body":       decodeBody(resp.Header.Get("Content-Type"), raw),
	}

	if sel := stringField(config, "selector"); sel != "" {
		selected, err := selectText(raw, sel)
		if err != nil {
			return nil, err
		}
		out["selected"] = selected
	}
	return out, nil
}

func (h *HTTPIntegration) authorizedClient(ctx context.Context, config map[string]any) (*http.Client, error) {
	base := httpClient(h.Client)
	auth, ok := config["auth"].(map[string]any)
	if !ok {
		return base, nil
	}
	ctx = context.WithValue(ctx, oauth2.HTTPClient, base)

	switch authType := stringField(auth, "type"); authType {
	case "bearer":
		token := stringField(auth, "token")
		if token == "" {
			return nil, fmt.Errorf("bearer auth requires token")
		}
		return oauth2.NewClient(ctx, oauth2.StaticTokenSource(&oauth2.Token{AccessToken: token})), nil
	case "oauth2":
		cc := &clientcredentials.Config{
			ClientID:     stringField(auth, "clientId"),
			ClientSecret: stringField(auth, "clientSecret"),
			TokenURL:     stringField(auth, "tokenUrl"),
		}
		if cc.TokenURL == "" {
			return nil, fmt.Errorf("oauth2 auth requires tokenUrl")
		}
		for _, s := range sliceField(auth, "scopes") {
			cc.Scopes = append(cc.Scopes, fmt.Sprintf("%v", s))
		}
		return cc.Client(ctx), nil
	case "", "none":
		return base, nil
	default:
		return nil, fmt.Errorf("unsupported auth type %q", authType)
	}
}

func requestBody(v any) (io.Reader, string, error) {
	switch b := v.(type) {
	case nil:
		return nil, "", nil
	case string:
		if b == "" {
			return nil, "", nil
		}
		return strings.NewReader(b), "", nil
	default:
		data, err := xjson.Marshal(b)
		if err != nil {
			return nil, "", fmt.Errorf("encode request body: %w", err)
		}
		return bytes.NewReader(data), "application/json", nil
	}
}

func decodeBody(contentType string, raw []byte) any {
	if strings.Contains(contentType, "json") {
		var v any
		if err := xjson.Unmarshal(raw, &v); err == nil {
			return v
		}
	}
	return string(raw)
}

func selectText(raw []byte, selector string) ([]any, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("HTML parse failed: %w", err)
	}
	var out []any
	doc.Find(selector).Each(func(_ int, s *goquery.Selection) {
		if text := strings.TrimSpace(s.Text()); text != "" {
			out = append(out, text)
		}
	})
	if out == nil {
		out = []any{}
	}
	return out, nil
}
