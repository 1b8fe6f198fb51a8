// Package client is the typed API client staff frontends drive. It layers
// the transport codec and the token store over a single call primitive;
// the only plaintext request it ever makes is the health probe, and that
// bypass is explicit per call, never inferred.
package client

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"kidcheck/internal/apperr"
	"kidcheck/internal/attendance"
	"kidcheck/internal/envelope"
	"kidcheck/internal/report"
	"kidcheck/internal/roster"
	"kidcheck/internal/scan"
)

// Client talks to the kidcheck API.
type Client struct {
	baseURL string
	http    *http.Client
	codec   *envelope.Codec
	tokens  *TokenStore
}

// New builds a client. The token store restores any previous session.
func New(baseURL, envelopeKey string, kv KV) (*Client, error) {
	codec, err := envelope.New(envelopeKey)
	if err != nil {
		return nil, err
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: 15 * time.Second},
		codec:   codec,
		tokens:  NewTokenStore(kv),
	}, nil
}

// Tokens exposes the session store (for UI state such as "who am I").
func (c *Client) Tokens() *TokenStore { return c.tokens }

// call is the single transport primitive. body is marshalled to JSON and
// sealed unless bypass is set; the bearer token is attached whenever one
// exists. The returned bytes are already opened plaintext for JSON
// responses; non-JSON bodies (CSV, PNG) come back as-is.
func (c *Client) call(ctx context.Context, method, endpoint string, body any, bypass bool) ([]byte, error) {
	var reqBody io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, err
		}
		payload := string(data)
		if !bypass {
			payload, err = c.codec.Seal(data)
			if err != nil {
				return nil, err
			}
		}
		reqBody = strings.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+endpoint, reqBody)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	if token, ok := c.tokens.Token(); ok {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	if bypass {
		req.Header.Set("X-Bypass-Encryption", "true")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, &apperr.TransportError{Op: method + " " + endpoint, Err: err}
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &apperr.TransportError{Op: "read response", Err: err}
	}

	plain := raw
	if !bypass && len(raw) > 0 && strings.Contains(resp.Header.Get("Content-Type"), "application/json") {
		plain, err = c.codec.Open(strings.TrimSpace(string(raw)))
		if err != nil {
			return nil, err
		}
	}

	if resp.StatusCode >= 400 {
		return nil, c.statusError(resp.StatusCode, plain)
	}
	return plain, nil
}

// statusError maps an HTTP failure back into the error taxonomy. A 401
// clears the stored session: the credential is no longer valid.
func (c *Client) statusError(status int, body []byte) error {
	msg := strings.TrimSpace(string(body))
	var wire struct {
		Error string `json:"error"`
	}
	if json.Unmarshal(body, &wire) == nil && wire.Error != "" {
		msg = wire.Error
	}
	switch status {
	case http.StatusUnauthorized:
		_ = c.tokens.Clear()
		return &apperr.AuthError{Reason: msg}
	case http.StatusNotFound:
		return &apperr.NotFoundError{Kind: msg}
	case http.StatusConflict:
		return &apperr.ConflictError{Reason: msg}
	case http.StatusBadRequest:
		return &apperr.ValidationError{Reason: msg}
	default:
		return &apperr.TransportError{Op: "server", Err: fmt.Errorf("HTTP %d: %s", status, msg)}
	}
}

func decode[T any](data []byte) (T, error) {
	var v T
	if err := json.Unmarshal(data, &v); err != nil {
		var zero T
		return zero, &apperr.TransportError{Op: "decode response", Err: err}
	}
	return v, nil
}

// LoginResult is the login response payload.
type LoginResult struct {
	Token string       `json:"token"`
	User  roster.Staff `json:"user"`
}

// Login authenticates and persists the issued session.
func (c *Client) Login(ctx context.Context, email, password string) (roster.Staff, error) {
	body := map[string]string{"email": email, "password": password}
	data, err := c.call(ctx, http.MethodPost, "/api/auth/login", body, false)
	if err != nil {
		return roster.Staff{}, err
	}
	res, err := decode[LoginResult](data)
	if err != nil {
		return roster.Staff{}, err
	}
	if err := c.tokens.Set(res.Token, res.User); err != nil {
		return roster.Staff{}, err
	}
	return res.User, nil
}

// Logout revokes the server-side session and clears the local store. The
// local store is cleared even when the server call fails.
func (c *Client) Logout(ctx context.Context) error {
	_, err := c.call(ctx, http.MethodPost, "/api/auth/logout", nil, false)
	if clearErr := c.tokens.Clear(); clearErr != nil && err == nil {
		err = clearErr
	}
	return err
}

// Scan validates raw scanned text locally and, only if it parses, asks
// the server to resolve it. Garbage input never costs a round trip.
func (c *Client) Scan(ctx context.Context, rawQR string) (scan.Result, error) {
	if _, err := scan.ParsePayload(rawQR); err != nil {
		return scan.Result{}, err
	}
	data, err := c.call(ctx, http.MethodPost, "/api/scan", map[string]string{"qrData": rawQR}, false)
	if err != nil {
		return scan.Result{}, err
	}
	return decode[scan.Result](data)
}

// CheckIn opens a session for a child.
func (c *Client) CheckIn(ctx context.Context, childID, notes string) (attendance.Record, error) {
	body := map[string]string{"childId": childID, "notes": notes}
	data, err := c.call(ctx, http.MethodPost, "/api/attendance/checkin", body, false)
	if err != nil {
		return attendance.Record{}, err
	}
	return decode[attendance.Record](data)
}

// CheckOut closes the session identified by record id.
func (c *Client) CheckOut(ctx context.Context, recordID, notes string) (attendance.Record, error) {
	body := map[string]string{"recordId": recordID, "notes": notes}
	data, err := c.call(ctx, http.MethodPost, "/api/attendance/checkout", body, false)
	if err != nil {
		return attendance.Record{}, err
	}
	recs, err := decode[[]attendance.Record](data)
	if err != nil {
		return attendance.Record{}, err
	}
	if len(recs) == 0 {
		return attendance.Record{}, &apperr.NotFoundError{Kind: "open session", ID: recordID}
	}
	return recs[0], nil
}

// CheckOutAll closes every open session for a parent in one atomic call.
func (c *Client) CheckOutAll(ctx context.Context, parentID, notes string) ([]attendance.Record, error) {
	body := map[string]string{"parentId": parentID, "notes": notes}
	data, err := c.call(ctx, http.MethodPost, "/api/attendance/checkout", body, false)
	if err != nil {
		return nil, err
	}
	return decode[[]attendance.Record](data)
}

// ListOpen returns the parent's open sessions for the checkout picker.
func (c *Client) ListOpen(ctx context.Context, parentID string) ([]attendance.Record, error) {
	data, err := c.call(ctx, http.MethodPost, "/api/attendance/open", map[string]string{"parentId": parentID}, false)
	if err != nil {
		return nil, err
	}
	return decode[[]attendance.Record](data)
}

// Mark bulk check-ins or checks-out the given children.
func (c *Client) Mark(ctx context.Context, childIDs []string, action attendance.Action) ([]attendance.Record, error) {
	body := map[string]any{"childIds": childIDs, "action": string(action)}
	data, err := c.call(ctx, http.MethodPost, "/api/attendance/mark", body, false)
	if err != nil {
		return nil, err
	}
	return decode[[]attendance.Record](data)
}

// Records lists the attendance log.
func (c *Client) Records(ctx context.Context) ([]attendance.Record, error) {
	data, err := c.call(ctx, http.MethodPost, "/api/attendance/list", nil, false)
	if err != nil {
		return nil, err
	}
	return decode[[]attendance.Record](data)
}

// SessionReport returns the enriched records and summary for one day.
func (c *Client) SessionReport(ctx context.Context, date string) (SessionReport, error) {
	data, err := c.call(ctx, http.MethodPost, "/api/attendance/reports/session", map[string]string{"date": date}, false)
	if err != nil {
		return SessionReport{}, err
	}
	return decode[SessionReport](data)
}

// SessionReport is one day's enriched record set plus aggregates.
type SessionReport struct {
	Records []report.Row   `json:"records"`
	Summary report.Summary `json:"summary"`
}

// ExportCSV returns the filtered log as delimited text. CSV travels
// outside the envelope, like any non-JSON body.
func (c *Client) ExportCSV(ctx context.Context, date string) ([]byte, error) {
	return c.call(ctx, http.MethodPost, "/api/attendance/reports/export", map[string]string{"date": date}, false)
}

// Parents lists all parents.
func (c *Client) Parents(ctx context.Context) ([]roster.Parent, error) {
	data, err := c.call(ctx, http.MethodPost, "/api/parents/list", nil, false)
	if err != nil {
		return nil, err
	}
	return decode[[]roster.Parent](data)
}

// Children lists all children.
func (c *Client) Children(ctx context.Context) ([]roster.Child, error) {
	data, err := c.call(ctx, http.MethodPost, "/api/children/list", nil, false)
	if err != nil {
		return nil, err
	}
	return decode[[]roster.Child](data)
}

// ParentQR fetches the parent's QR code as a PNG.
func (c *Client) ParentQR(ctx context.Context, parentID string) ([]byte, error) {
	return c.call(ctx, http.MethodPost, "/api/parents/qr", map[string]string{"id": parentID}, false)
}

// Health probes backend liveness with encryption bypassed. It is the one
// plaintext call in the protocol.
func (c *Client) Health(ctx context.Context) bool {
	_, err := c.call(ctx, http.MethodGet, "/health", nil, true)
	return err == nil
}
