package service

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
	"trade_journal/internal/modules/config"
	"trade_journal/pkg/retry"

	"github.com/bytedance/sonic"
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

// APIError: ошибка, которую вернула сама биржа (не сеть).
type APIError struct {
	Status int
	Code   int
	Msg    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("binance http %d: code=%d msg=%s", e.Status, e.Code, e.Msg)
}

// Retryable: 429/418 и 5xx имеет смысл повторить, остальное нет.
func (e *APIError) Retryable() bool {
	return e.Status == http.StatusTooManyRequests || e.Status == http.StatusTeapot || e.Status >= 500
}

// Client: REST coin-M фьючерсов Binance (/dapi/v1).
type Client struct {
	http       *http.Client
	baseURL    string
	apiKey     string
	apiSecret  string
	recvWindow int64
	log        *zap.Logger

	now func() time.Time
}

func NewClient(cfg *config.Config, log *zap.Logger) *Client {
	timeout := cfg.Binance.HTTPTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Client{
		http:       &http.Client{Timeout: timeout},
		baseURL:    strings.TrimRight(cfg.Binance.RestURL, "/"),
		apiKey:     cfg.Binance.APIKey,
		apiSecret:  cfg.Binance.APISecret,
		recvWindow: cfg.Binance.RecvWindow,
		log:        log.Named("binance_client"),
		now:        time.Now,
	}
}

func (c *Client) sign(query string) string {
	h := hmac.New(sha256.New, []byte(c.apiSecret))
	h.Write([]byte(query))
	return hex.EncodeToString(h.Sum(nil))
}

// signed добавляет timestamp/recvWindow и подпись HMAC-SHA256 строки запроса.
func (c *Client) signed(params url.Values) string {
	if params == nil {
		params = url.Values{}
	}
	params.Set("timestamp", strconv.FormatInt(c.now().UnixMilli(), 10))
	if c.recvWindow > 0 {
		params.Set("recvWindow", strconv.FormatInt(c.recvWindow, 10))
	}
	q := params.Encode()
	return q + "&signature=" + c.sign(q)
}

type authMode int

const (
	authNone authMode = iota
	authKey           // только X-MBX-APIKEY (listenKey)
	authSigned
)

func (c *Client) do(ctx context.Context, method, path string, params url.Values, auth authMode, out any) error {
	var query string
	switch auth {
	case authSigned:
		query = c.signed(params)
	default:
		query = params.Encode()
	}

	u := c.baseURL + path
	if query != "" {
		u += "?" + query
	}
	req, err := http.NewRequestWithContext(ctx, method, u, nil)
	if err != nil {
		return errors.Wrap(err, "build request")
	}
	if auth != authNone {
		req.Header.Set("X-MBX-APIKEY", c.apiKey)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return errors.Wrapf(err, "%s %s", method, path)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return errors.Wrapf(err, "read %s body", path)
	}
	if resp.StatusCode/100 != 2 {
		apiErr := &APIError{Status: resp.StatusCode}
		var e apiError
		if sonic.Unmarshal(body, &e) == nil && e.Msg != "" {
			apiErr.Code, apiErr.Msg = e.Code, e.Msg
		} else {
			apiErr.Msg = strings.TrimSpace(string(body))
		}
		if !apiErr.Retryable() {
			// ключ/подпись/параметры не починятся повтором
			return retry.Permanent(apiErr)
		}
		return apiErr
	}
	if out == nil {
		return nil
	}
	if err := sonic.Unmarshal(body, out); err != nil {
		return errors.Wrapf(err, "decode %s", path)
	}
	return nil
}
