package orders

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"path"
	"strings"
	"time"

	"github.com/gabriel-vasile/mimetype"

	"github.com/kirillkom/receiving-verifier/internal/core/domain"
	"github.com/kirillkom/receiving-verifier/internal/infrastructure/resilience"
)

const defaultMaxDownloadBytes = 32 << 20

type Client struct {
	baseURL          *url.URL
	token            string
	httpClient       *http.Client
	executor         *resilience.Executor
	maxDownloadBytes int64
}

type Option func(*Client)

func WithToken(token string) Option {
	return func(c *Client) {
		c.token = strings.TrimSpace(token)
	}
}

func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		if client != nil {
			c.httpClient = client
		}
	}
}

func WithExecutor(executor *resilience.Executor) Option {
	return func(c *Client) {
		c.executor = executor
	}
}

func WithMaxDownloadBytes(limit int64) Option {
	return func(c *Client) {
		if limit > 0 {
			c.maxDownloadBytes = limit
		}
	}
}

func New(baseURL string, opts ...Option) (*Client, error) {
	parsed, err := url.Parse(strings.TrimRight(strings.TrimSpace(baseURL), "/"))
	if err != nil || parsed.Scheme == "" || parsed.Host == "" {
		return nil, fmt.Errorf("invalid order api url %q", baseURL)
	}
	c := &Client{
		baseURL:          parsed,
		httpClient:       &http.Client{Timeout: 30 * time.Second},
		maxDownloadBytes: defaultMaxDownloadBytes,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.executor == nil {
		c.executor = resilience.NewExecutor(resilience.DefaultConfig())
	}
	return c, nil
}

type lookupResponse struct {
	OrderID   flexibleID `json:"order_id"`
	Order     *orderBody `json:"order"`
	Documents []struct {
		DocumentType string `json:"document_type"`
		DownloadURL  string `json:"download_url"`
	} `json:"documents"`
}

type orderBody struct {
	OrderID flexibleID `json:"order_id"`
}

// flexibleID accepts order ids encoded as JSON strings or numbers.
type flexibleID string

func (f *flexibleID) UnmarshalJSON(data []byte) error {
	raw := bytes.TrimSpace(data)
	if bytes.Equal(raw, []byte("null")) {
		*f = ""
		return nil
	}
	if len(raw) > 0 && raw[0] == '"' {
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return err
		}
		*f = flexibleID(strings.TrimSpace(s))
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(raw, &n); err != nil {
		return fmt.Errorf("order id must be a string or number: %w", err)
	}
	*f = flexibleID(n.String())
	return nil
}

func (c *Client) LookupByBarcode(ctx context.Context, barcode string) (*domain.OrderLookup, error) {
	const op = "lookup order"
	endpoint := c.resolve("/receiving-orders/by-barcode/" + url.PathEscape(barcode))

	var resp lookupResponse
	err := c.execute(ctx, op, func(ctx context.Context) error {
		resp = lookupResponse{}
		return c.doJSON(ctx, http.MethodGet, endpoint, nil, &resp, op)
	})
	if err != nil {
		return nil, err
	}

	orderID := string(resp.OrderID)
	if resp.Order != nil && resp.Order.OrderID != "" {
		orderID = string(resp.Order.OrderID)
	}
	out := &domain.OrderLookup{
		OrderID:   orderID,
		Documents: make([]domain.ReferenceDocument, 0, len(resp.Documents)),
	}
	for _, d := range resp.Documents {
		if strings.TrimSpace(d.DownloadURL) == "" {
			continue
		}
		docType, err := domain.ParseDocumentType(d.DocumentType)
		if err != nil {
			docType = domain.DocumentType(d.DocumentType)
		}
		out.Documents = append(out.Documents, domain.ReferenceDocument{Type: docType, DownloadURL: d.DownloadURL})
	}
	return out, nil
}

// DownloadDocument fetches a reference document. Relative URLs resolve against the API base.
func (c *Client) DownloadDocument(ctx context.Context, doc domain.ReferenceDocument) (domain.Payload, error) {
	const op = "download document"
	target, err := c.baseURL.Parse(doc.DownloadURL)
	if err != nil {
		return domain.Payload{}, fmt.Errorf("parse download url: %w", err)
	}

	var data []byte
	var contentType string
	err = c.execute(ctx, op, func(ctx context.Context) error {
		var fetchErr error
		data, contentType, fetchErr = c.download(ctx, target, op)
		return fetchErr
	})
	if err != nil {
		return domain.Payload{}, err
	}

	mimeType := strings.TrimSpace(strings.Split(contentType, ";")[0])
	if mimeType == "" || mimeType == "application/octet-stream" {
		mimeType = strings.Split(mimetype.Detect(data).String(), ";")[0]
	}
	name := path.Base(target.Path)
	if name == "." || name == "/" {
		name = string(doc.Type)
	}
	return domain.Payload{FileName: name, MimeType: mimeType, Data: data}, nil
}

func (c *Client) UpdateStatus(ctx context.Context, orderID string, req domain.ApprovalRequest) error {
	const op = "update order status"
	if strings.TrimSpace(orderID) == "" {
		return errors.New("order id is required")
	}
	endpoint := c.resolve("/receiving-orders/status/" + url.PathEscape(orderID))
	return c.execute(ctx, op, func(ctx context.Context) error {
		return c.doJSON(ctx, http.MethodPut, endpoint, req, nil, op)
	})
}

func (c *Client) execute(ctx context.Context, operation string, fn func(context.Context) error) error {
	err := c.executor.Execute(ctx, "orders."+operation, fn, resilience.ClassifyHTTPError)
	return resilience.WrapTemporary(operation, err)
}

// resolve joins an already escaped path onto the API base.
func (c *Client) resolve(escapedPath string) string {
	return strings.TrimRight(c.baseURL.String(), "/") + escapedPath
}
