// Package issuerdev is a client for the sandbox /dev endpoints, used by tests
// and local tooling to seed sessions, cards and single-use tokens.
package issuerdev

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

type Client struct {
	Base string
	HTTP *http.Client
}

func New(base string, hc *http.Client) *Client {
	if hc == nil {
		hc = &http.Client{Timeout: 10 * time.Second}
	}
	return &Client{Base: strings.TrimRight(base, "/"), HTTP: hc}
}

// Card is a card issued by the sandbox network.
type Card struct {
	ID             string `json:"id"`
	Last4          string `json:"last4"`
	ExpiryYYMM     string `json:"expiry_yymm"`
	CardholderName string `json:"cardholder_name"`
	Status         string `json:"status"`
}

// AddSession makes token a valid session token in the sandbox.
func (c *Client) AddSession(ctx context.Context, token string) error {
	return c.do(ctx, http.MethodPost, "/dev/sessions", map[string]string{"token": token}, nil)
}

// IssueCard issues an inactive card owned by the session token owner.
func (c *Client) IssueCard(ctx context.Context, owner, cardholderName string) (*Card, error) {
	req := map[string]string{"owner": owner, "cardholder_name": cardholderName}
	card := &Card{}
	if err := c.do(ctx, http.MethodPost, "/dev/cards", req, card); err != nil {
		return nil, err
	}
	return card, nil
}

// IssueSingleUseToken returns a token redeemable by one secure data operation on cardID.
func (c *Client) IssueSingleUseToken(ctx context.Context, owner, cardID string) (string, error) {
	var payload struct {
		Token string `json:"token"`
	}
	path := fmt.Sprintf("/dev/cards/%s/single-use-tokens", url.PathEscape(cardID))
	if err := c.do(ctx, http.MethodPost, path, map[string]string{"owner": owner}, &payload); err != nil {
		return "", err
	}
	return payload.Token, nil
}

// Clipboard returns the PAN last copied by CopyPan.
func (c *Client) Clipboard(ctx context.Context) (string, error) {
	var payload struct {
		Content string `json:"content"`
	}
	if err := c.do(ctx, http.MethodGet, "/dev/clipboard", nil, &payload); err != nil {
		return "", err
	}
	return payload.Content, nil
}

// SendWalletResult delivers a device wallet result for cardID.
func (c *Client) SendWalletResult(ctx context.Context, requestCode, resultCode int, cardID string) (bool, error) {
	req := map[string]any{
		"request_code": requestCode,
		"result_code":  resultCode,
		"data":         map[string]string{"card_id": cardID},
	}
	var payload struct {
		Handled bool `json:"handled"`
	}
	if err := c.do(ctx, http.MethodPost, "/dev/wallet/results", req, &payload); err != nil {
		return false, err
	}
	return payload.Handled, nil
}

func (c *Client) do(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("encode %s: %w", path, err)
		}
		body = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.Base+path, body)
	if err != nil {
		return fmt.Errorf("build %s: %w", path, err)
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.HTTP.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode/100 != 2 {
		b, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("%s status=%d body=%s", path, resp.StatusCode, strings.TrimSpace(string(b)))
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s: %w", path, err)
	}
	return nil
}
