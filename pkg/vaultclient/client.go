// Package vaultclient is a small Go client for the tablevault HTTP API.
package vaultclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"tablevault/internal/dto"
)

const DefaultBaseURL = "http://localhost:8080"

// APIError is a non-2xx response. Detail holds the decoded "detail" field, or
// the raw body when the server did not send one.
type APIError struct {
	StatusCode int
	Detail     any
}

func (e *APIError) Error() string {
	switch d := e.Detail.(type) {
	case string:
		return fmt.Sprintf("%d: %s", e.StatusCode, d)
	default:
		b, _ := json.Marshal(d)
		return fmt.Sprintf("%d: %s", e.StatusCode, b)
	}
}

type Client struct {
	baseURL string
	token   string
	hc      *http.Client
}

type Option func(*Client)

// WithToken sets the bearer token sent on protected routes.
func WithToken(token string) Option {
	return func(c *Client) { c.token = token }
}

func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.hc = hc }
}

func New(baseURL string, opts ...Option) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		hc:      &http.Client{Timeout: 30 * time.Second},
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

func (c *Client) Register(ctx context.Context, email, password string) (*dto.MessageResponse, error) {
	var out dto.MessageResponse
	err := c.postJSON(ctx, "/register", dto.RegisterRequest{Email: email, Password: password}, &out)
	return &out, err
}

func (c *Client) VerifyOTP(ctx context.Context, email, otp string) (*dto.MessageResponse, error) {
	var out dto.MessageResponse
	err := c.postJSON(ctx, "/verify-otp", dto.VerifyOTPRequest{Email: email, OTP: otp}, &out)
	return &out, err
}

func (c *Client) ResendOTP(ctx context.Context, email string) (*dto.MessageResponse, error) {
	var out dto.MessageResponse
	err := c.postJSON(ctx, "/resend-otp", dto.ResendOTPRequest{Email: email}, &out)
	return &out, err
}

func (c *Client) Login(ctx context.Context, email, password string) (*dto.TokenResponse, error) {
	var out dto.TokenResponse
	err := c.postJSON(ctx, "/login", dto.LoginRequest{Email: email, Password: password}, &out)
	return &out, err
}

func (c *Client) Refresh(ctx context.Context, refreshToken string) (*dto.TokenResponse, error) {
	var out dto.TokenResponse
	err := c.postJSON(ctx, "/refresh", dto.RefreshRequest{RefreshToken: refreshToken}, &out)
	return &out, err
}

func (c *Client) Me(ctx context.Context) (*dto.MeResponse, error) {
	var out dto.MeResponse
	err := c.get(ctx, "/me", nil, &out)
	return &out, err
}

// UploadCSV stores r as a named table.
// DeleteAccount removes the authenticated user along with their files and tables.
func (c *Client) DeleteAccount(ctx context.Context) (*dto.DeleteAccountResponse, error) {
	req, err := c.newRequest(ctx, http.MethodDelete, "/me", nil, nil)
	if err != nil {
		return nil, err
	}
	var out dto.DeleteAccountResponse
	err = c.do(req, &out)
	return &out, err
}

func (c *Client) UploadCSV(ctx context.Context, table, filename string, r io.Reader) (*dto.CSVUploadResponse, error) {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	if err := mw.WriteField("table_name", table); err != nil {
		return nil, err
	}
	part, err := mw.CreateFormFile("file", filename)
	if err != nil {
		return nil, err
	}
	if _, err := io.Copy(part, r); err != nil {
		return nil, fmt.Errorf("read %s: %w", filename, err)
	}
	if err := mw.Close(); err != nil {
		return nil, err
	}

	req, err := c.newRequest(ctx, http.MethodPost, "/csv", nil, &buf)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	var out dto.CSVUploadResponse
	return &out, c.do(req, &out)
}

func (c *Client) Schema(ctx context.Context, table string) (*dto.SchemaResponse, error) {
	var out dto.SchemaResponse
	err := c.get(ctx, "/csv/"+url.PathEscape(table)+"/schema", nil, &out)
	return &out, err
}

// Rows fetches one page; zero values leave the server defaults in place.
func (c *Client) Rows(ctx context.Context, table string, page, pageSize int) (*dto.RowsResponse, error) {
	q := url.Values{}
	if page > 0 {
		q.Set("page", strconv.Itoa(page))
	}
	if pageSize > 0 {
		q.Set("page_size", strconv.Itoa(pageSize))
	}
	var out dto.RowsResponse
	err := c.get(ctx, "/csv/"+url.PathEscape(table)+"/rows", q, &out)
	return &out, err
}

func (c *Client) postJSON(ctx context.Context, path string, in, out any) error {
	body, err := json.Marshal(in)
	if err != nil {
		return err
	}
	req, err := c.newRequest(ctx, http.MethodPost, path, nil, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	return c.do(req, out)
}

func (c *Client) get(ctx context.Context, path string, q url.Values, out any) error {
	req, err := c.newRequest(ctx, http.MethodGet, path, q, nil)
	if err != nil {
		return err
	}
	return c.do(req, out)
}

func (c *Client) newRequest(ctx context.Context, method, path string, q url.Values, body io.Reader) (*http.Request, error) {
	u := c.baseURL + path
	if len(q) > 0 {
		u += "?" + q.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, method, u, body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	return req, nil
}

func (c *Client) do(req *http.Request, out any) error {
	resp, err := c.hc.Do(req)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode >= 400 {
		apiErr := &APIError{StatusCode: resp.StatusCode}
		var body struct {
			Detail any `json:"detail"`
		}
		if json.Unmarshal(data, &body) == nil && body.Detail != nil {
			apiErr.Detail = body.Detail
		} else {
			apiErr.Detail = strings.TrimSpace(string(data))
		}
		return apiErr
	}
	if out == nil || len(data) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
