package web

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/wastetrace/wastetrace/internal/domain"
)

// UserClient talks to the backend's user endpoints. Balances are only
// ever read from here: the dashboard never computes one locally.
type UserClient struct {
	baseURL string
	client  *http.Client
}

// NewUserClient creates a client against the backend base URL.
func NewUserClient(baseURL string, client *http.Client) *UserClient {
	if client == nil {
		client = http.DefaultClient
	}
	return &UserClient{baseURL: baseURL, client: client}
}

// Fetch retrieves the authoritative profile for a user.
func (c *UserClient) Fetch(ctx context.Context, id string) (domain.User, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/users/"+id, nil)
	if err != nil {
		return domain.User{}, fmt.Errorf("build user request: %w", err)
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return domain.User{}, fmt.Errorf("fetch user: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return domain.User{}, fmt.Errorf("fetch user: backend returned %d", resp.StatusCode)
	}
	var user domain.User
	if err := json.NewDecoder(resp.Body).Decode(&user); err != nil {
		return domain.User{}, fmt.Errorf("decode user: %w", err)
	}
	return user, nil
}

// RedeemResult is the backend's confirmation of a voucher redemption.
type RedeemResult struct {
	Voucher domain.Voucher `json:"voucher"`
	Balance int            `json:"balance"`
}

// Redeem asks the backend to redeem a voucher. Only the balance in the
// response is authoritative; insufficient points come back as
// ErrInsufficientPoints.
func (c *UserClient) Redeem(ctx context.Context, id, voucherID string) (RedeemResult, error) {
	body, err := json.Marshal(map[string]string{"voucherId": voucherID})
	if err != nil {
		return RedeemResult{}, fmt.Errorf("encode redemption: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/users/"+id+"/redeem", bytes.NewReader(body))
	if err != nil {
		return RedeemResult{}, fmt.Errorf("build redeem request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return RedeemResult{}, fmt.Errorf("redeem voucher: %w", err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusConflict:
		return RedeemResult{}, domain.ErrInsufficientPoints
	case http.StatusBadRequest:
		return RedeemResult{}, domain.ErrUnknownVoucher
	default:
		return RedeemResult{}, fmt.Errorf("redeem voucher: backend returned %d", resp.StatusCode)
	}

	var result RedeemResult
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return RedeemResult{}, fmt.Errorf("decode redemption: %w", err)
	}
	return result, nil
}
