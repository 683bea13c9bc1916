package token

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/smallbiznis/walletpay/internal/gateway/domain"
)

const accessTokenPath = "/accesstoken/get"

var ErrTokenRejected = errors.New("access_token_rejected")

// Fetcher obtains a fresh access token and its lifetime.
type Fetcher interface {
	Fetch(ctx context.Context, settings domain.Settings) (string, time.Duration, error)
}

type Doer interface {
	Do(req *http.Request) (*http.Response, error)
}

type HTTPFetcher struct {
	client Doer
}

func NewHTTPFetcher(client Doer) *HTTPFetcher {
	if client == nil {
		client = &http.Client{Timeout: 15 * time.Second}
	}
	return &HTTPFetcher{client: client}
}

type accessTokenResponse struct {
	TokenType   string      `json:"token_type"`
	AccessToken string      `json:"access_token"`
	ExpiresIn   json.Number `json:"expires_in"`
}

func (f *HTTPFetcher) Fetch(ctx context.Context, settings domain.Settings) (string, time.Duration, error) {
	endpoint := strings.TrimRight(settings.BaseURL, "/") + accessTokenPath
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, nil)
	if err != nil {
		return "", 0, err
	}
	req.Header.Set("client_id", settings.ClientID)
	req.Header.Set("client_secret", settings.ClientSecret)
	req.Header.Set("Ocp-Apim-Subscription-Key", settings.SubscriptionKey)
	req.Header.Set("Merchant-Serial-Number", settings.MerchantSerialNumber)

	resp, err := f.client.Do(req)
	if err != nil {
		return "", 0, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", 0, err
	}
	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		return "", 0, fmt.Errorf("%w: http %d", ErrTokenRejected, resp.StatusCode)
	}

	var payload accessTokenResponse
	if err := json.Unmarshal(body, &payload); err != nil {
		return "", 0, fmt.Errorf("decode access token: %w", err)
	}
	if strings.TrimSpace(payload.AccessToken) == "" {
		return "", 0, fmt.Errorf("%w: empty access token", ErrTokenRejected)
	}

	seconds, err := strconv.ParseInt(strings.Trim(payload.ExpiresIn.String(), `"`), 10, 64)
	if err != nil || seconds <= 0 {
		seconds = 3600
	}
	return payload.AccessToken, time.Duration(seconds) * time.Second, nil
}
