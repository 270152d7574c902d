// Package client talks to the storefront HTTP API on behalf of the
// command-line client.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/pcforge/storefront/internal/domain"
	"github.com/pcforge/storefront/internal/reconcile"
	"github.com/pcforge/storefront/internal/service"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

// ErrNoSession is returned for any 401 so callers can fall back to the
// local cart.
var ErrNoSession = reconcile.ErrNoSession

// APIError is a non-2xx response other than 401.
type APIError struct {
	Status  int
	Code    string
	Message string
	Fields  map[string]string
}

func (e *APIError) Error() string {
	if len(e.Fields) > 0 {
		return fmt.Sprintf("%s (%d): %v", e.Message, e.Status, e.Fields)
	}
	return fmt.Sprintf("%s (%d)", e.Message, e.Status)
}

type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
}

func New(baseURL, token string, timeout time.Duration) *Client {
	return &Client{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		token:   token,
		httpClient: &http.Client{
			Timeout:   timeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
	}
}

// WithToken returns a copy of c that sends token as its session.
func (c *Client) WithToken(token string) *Client {
	cp := *c
	cp.token = token
	return &cp
}

func (c *Client) ListProducts(ctx context.Context, filter domain.ProductFilter) ([]*domain.Product, error) {
	q := url.Values{}
	if filter.Category != "" {
		q.Set("category", string(filter.Category))
	}
	if filter.Tag != "" {
		q.Set("tag", filter.Tag)
	}
	if filter.Search != "" {
		q.Set("q", filter.Search)
	}
	if filter.Limit > 0 {
		q.Set("limit", strconv.Itoa(filter.Limit))
	}
	if filter.Offset > 0 {
		q.Set("offset", strconv.Itoa(filter.Offset))
	}
	path := "/products"
	if len(q) > 0 {
		path += "?" + q.Encode()
	}

	var products []*domain.Product
	if err := c.do(ctx, http.MethodGet, path, nil, nil, &products); err != nil {
		return nil, err
	}
	return products, nil
}

// GetProduct accepts a numeric id or a slug.
func (c *Client) GetProduct(ctx context.Context, ref string) (*domain.Product, error) {
	var p domain.Product
	if err := c.do(ctx, http.MethodGet, "/products/"+url.PathEscape(ref), nil, nil, &p); err != nil {
		return nil, err
	}
	return &p, nil
}

func (c *Client) RequestOTP(ctx context.Context, phone string) error {
	return c.do(ctx, http.MethodPost, "/auth/otp/request", nil, service.OTPRequest{Phone: phone}, nil)
}

func (c *Client) VerifyOTP(ctx context.Context, phone, code string) (*service.Session, error) {
	var s service.Session
	if err := c.do(ctx, http.MethodPost, "/auth/otp/verify", nil, service.OTPVerifyRequest{Phone: phone, Code: code}, &s); err != nil {
		return nil, err
	}
	return &s, nil
}

func (c *Client) Me(ctx context.Context) (*domain.User, error) {
	var u domain.User
	if err := c.do(ctx, http.MethodGet, "/auth/me", nil, nil, &u); err != nil {
		return nil, err
	}
	return &u, nil
}

// FetchCart implements reconcile.ServerCart.
func (c *Client) FetchCart(ctx context.Context) (domain.CartView, error) {
	var v domain.CartView
	err := c.do(ctx, http.MethodGet, "/cart", nil, nil, &v)
	return v, err
}

// AddLines implements reconcile.ServerCart.
func (c *Client) AddLines(ctx context.Context, lines []domain.NewLine) error {
	_, err := c.AddItems(ctx, lines)
	return err
}

func (c *Client) AddItems(ctx context.Context, lines []domain.NewLine) (domain.CartView, error) {
	var v domain.CartView
	err := c.do(ctx, http.MethodPost, "/cart", nil, map[string]any{"items": lines}, &v)
	return v, err
}

func (c *Client) UpdateQuantity(ctx context.Context, lineID string, quantity int) (domain.CartView, error) {
	var v domain.CartView
	body := map[string]any{"cartItemId": lineID, "quantity": quantity}
	err := c.do(ctx, http.MethodPut, "/cart", nil, body, &v)
	return v, err
}

func (c *Client) RemoveLine(ctx context.Context, lineID string) (domain.CartView, error) {
	var v domain.CartView
	err := c.do(ctx, http.MethodDelete, "/cart?id="+url.QueryEscape(lineID), nil, nil, &v)
	return v, err
}

// PlaceOrder sends req.IdempotencyKey as the Idempotency-Key header too.
func (c *Client) PlaceOrder(ctx context.Context, req service.CheckoutRequest) (*service.CheckoutResult, error) {
	header := http.Header{}
	if req.IdempotencyKey != "" {
		header.Set("Idempotency-Key", req.IdempotencyKey)
	}
	var res service.CheckoutResult
	if err := c.do(ctx, http.MethodPost, "/checkout", header, req, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

func (c *Client) VerifyPayment(ctx context.Context, cb service.PaymentCallback) (*domain.Order, error) {
	var res struct {
		Order *domain.Order `json:"order"`
	}
	if err := c.do(ctx, http.MethodPut, "/checkout", nil, cb, &res); err != nil {
		return nil, err
	}
	return res.Order, nil
}

func (c *Client) ListOrders(ctx context.Context) ([]*domain.Order, error) {
	var res struct {
		Orders []*domain.Order `json:"orders"`
	}
	if err := c.do(ctx, http.MethodGet, "/orders", nil, nil, &res); err != nil {
		return nil, err
	}
	return res.Orders, nil
}

func (c *Client) CreateBuild(ctx context.Context, in service.BuildInput) (*domain.BuildView, error) {
	var b domain.BuildView
	if err := c.do(ctx, http.MethodPost, "/builds", nil, in, &b); err != nil {
		return nil, err
	}
	return &b, nil
}

func (c *Client) GetBuild(ctx context.Context, shareID string) (*domain.BuildView, error) {
	var b domain.BuildView
	if err := c.do(ctx, http.MethodGet, "/builds/"+url.PathEscape(shareID), nil, nil, &b); err != nil {
		return nil, err
	}
	return &b, nil
}

func (c *Client) AddBuildToCart(ctx context.Context, shareID string) (domain.CartView, error) {
	var v domain.CartView
	err := c.do(ctx, http.MethodPost, "/builds/"+url.PathEscape(shareID)+"/cart", nil, nil, &v)
	return v, err
}

func (c *Client) do(ctx context.Context, method, path string, header http.Header, body, out any) error {
	var reader io.Reader
	if body != nil {
		buf, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to encode request: %w", err)
		}
		reader = bytes.NewReader(buf)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	for k, v := range header {
		req.Header[k] = v
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized {
		return ErrNoSession
	}
	if resp.StatusCode >= http.StatusBadRequest {
		return decodeError(resp)
	}
	if out == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode %s %s response: %w", method, path, err)
	}
	return nil
}

func decodeError(resp *http.Response) error {
	apiErr := &APIError{Status: resp.StatusCode, Message: http.StatusText(resp.StatusCode)}
	var body struct {
		Error  string            `json:"error"`
		Code   string            `json:"code"`
		Fields map[string]string `json:"fields"`
	}
	if err := json.NewDecoder(io.LimitReader(resp.Body, 1<<16)).Decode(&body); err == nil {
		if body.Error != "" {
			apiErr.Message = body.Error
		}
		apiErr.Code = body.Code
		apiErr.Fields = body.Fields
	}
	return apiErr
}

// IsNotFound reports whether err is a 404 from the API.
func IsNotFound(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.Status == http.StatusNotFound
}
