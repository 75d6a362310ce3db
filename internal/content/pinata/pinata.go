// Package pinata stores documents with the Pinata IPFS pinning service and
// reads them back through an IPFS gateway.
package pinata

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"net/url"
	"strings"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"kycvault/internal/content"
	"kycvault/pkg/platform/sentinel"
)

const (
	providerName = "pinata"
	pinPath      = "/pinning/pinFileToIPFS"

	// maxRetrieveBytes caps gateway responses. Uploads are far smaller.
	maxRetrieveBytes = 64 << 20
)

type Config struct {
	APIURL     string
	GatewayURL string
	APIKey     string
	APISecret  string
	HTTPClient *http.Client
}

type Client struct {
	apiURL     string
	gatewayURL string
	apiKey     string
	apiSecret  string
	http       *http.Client
}

// New builds a client. Deadlines come from the caller's context, so the
// default HTTP client carries no timeout of its own.
func New(cfg Config) *Client {
	hc := cfg.HTTPClient
	if hc == nil {
		hc = &http.Client{Transport: otelhttp.NewTransport(http.DefaultTransport)}
	}
	return &Client{
		apiURL:     strings.TrimRight(cfg.APIURL, "/"),
		gatewayURL: strings.TrimRight(cfg.GatewayURL, "/"),
		apiKey:     cfg.APIKey,
		apiSecret:  cfg.APISecret,
		http:       hc,
	}
}

type pinMetadata struct {
	Name      string            `json:"name,omitempty"`
	KeyValues map[string]string `json:"keyvalues,omitempty"`
}

type pinResponse struct {
	IpfsHash  string `json:"IpfsHash"`
	PinSize   int64  `json:"PinSize"`
	Timestamp string `json:"Timestamp"`
}

func (c *Client) Store(ctx context.Context, data []byte, meta content.Metadata) (content.ID, error) {
	body, contentType, err := encodePin(data, meta)
	if err != nil {
		return "", content.NewProviderError(content.ErrorInternal, providerName, "encode upload", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.apiURL+pinPath, body)
	if err != nil {
		return "", content.NewProviderError(content.ErrorInternal, providerName, "build request", err)
	}
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("pinata_api_key", c.apiKey)
	req.Header.Set("pinata_secret_api_key", c.apiSecret)

	resp, err := c.http.Do(req)
	if err != nil {
		return "", transportError(ctx, err)
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", transportError(ctx, err)
	}
	if resp.StatusCode != http.StatusOK {
		return "", statusError(resp.StatusCode, payload)
	}

	var pin pinResponse
	if err := json.Unmarshal(payload, &pin); err != nil {
		return "", content.NewProviderError(content.ErrorBadData, providerName, "malformed pin response", err)
	}
	if pin.IpfsHash == "" {
		return "", content.NewProviderError(content.ErrorBadData, providerName, "pin response missing IpfsHash", nil)
	}
	return content.ID(pin.IpfsHash), nil
}

func (c *Client) Retrieve(ctx context.Context, id content.ID) ([]byte, error) {
	if _, err := content.ParseID(string(id)); err != nil {
		return nil, content.NewProviderError(content.ErrorBadData, providerName, "invalid content id", err)
	}
	target, err := url.JoinPath(c.gatewayURL, "ipfs", url.PathEscape(string(id)))
	if err != nil {
		return nil, content.NewProviderError(content.ErrorInternal, providerName, "build gateway url", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, content.NewProviderError(content.ErrorInternal, providerName, "build request", err)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, transportError(ctx, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		payload, _ := io.ReadAll(io.LimitReader(resp.Body, 4<<10))
		return nil, statusError(resp.StatusCode, payload)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxRetrieveBytes+1))
	if err != nil {
		return nil, transportError(ctx, err)
	}
	if len(data) > maxRetrieveBytes {
		return nil, content.NewProviderError(content.ErrorBadData, providerName, "content exceeds retrieve limit", nil)
	}
	return data, nil
}

func encodePin(data []byte, meta content.Metadata) (io.Reader, string, error) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)

	name := meta.Name
	if name == "" {
		name = "document"
	}
	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", fmt.Sprintf(`form-data; name="file"; filename=%q`, name))
	if meta.MimeType != "" {
		h.Set("Content-Type", meta.MimeType)
	} else {
		h.Set("Content-Type", "application/octet-stream")
	}
	part, err := w.CreatePart(h)
	if err != nil {
		return nil, "", err
	}
	if _, err := part.Write(data); err != nil {
		return nil, "", err
	}

	kv := map[string]string{}
	if meta.Subject != "" {
		kv["subject"] = meta.Subject
	}
	if meta.DocumentType != "" {
		kv["documentType"] = meta.DocumentType
	}
	pm, err := json.Marshal(pinMetadata{Name: name, KeyValues: kv})
	if err != nil {
		return nil, "", err
	}
	if err := w.WriteField("pinataMetadata", string(pm)); err != nil {
		return nil, "", err
	}
	if err := w.Close(); err != nil {
		return nil, "", err
	}
	return &buf, w.FormDataContentType(), nil
}

func transportError(ctx context.Context, err error) error {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return content.NewProviderError(content.ErrorTimeout, providerName, "request timed out", err)
	}
	if errors.Is(err, context.Canceled) {
		return err
	}
	return content.NewProviderError(content.ErrorProviderOutage, providerName, "request failed", err)
}

func statusError(status int, body []byte) error {
	msg := fmt.Sprintf("unexpected status %d", status)
	if detail := strings.TrimSpace(string(body)); detail != "" && len(detail) < 256 {
		msg += ": " + detail
	}
	switch {
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return content.NewProviderError(content.ErrorAuthentication, providerName, msg, nil)
	case status == http.StatusNotFound:
		return content.NewProviderError(content.ErrorNotFound, providerName, msg, sentinel.ErrNotFound)
	case status == http.StatusTooManyRequests:
		return content.NewProviderError(content.ErrorRateLimited, providerName, msg, nil)
	case status == http.StatusRequestTimeout || status == http.StatusGatewayTimeout:
		return content.NewProviderError(content.ErrorTimeout, providerName, msg, nil)
	case status >= 500:
		return content.NewProviderError(content.ErrorProviderOutage, providerName, msg, nil)
	default:
		return content.NewProviderError(content.ErrorBadData, providerName, msg, nil)
	}
}
