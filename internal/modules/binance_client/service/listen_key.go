package service

import (
	"context"
	"net/http"
	"net/url"

	"github.com/pkg/errors"
)

// CreateListenKey: POST /dapi/v1/listenKey. Повторный вызов при живом ключе
// возвращает тот же ключ и продлевает его.
func (c *Client) CreateListenKey(ctx context.Context) (string, error) {
	var resp listenKeyResponse
	if err := c.do(ctx, http.MethodPost, "/dapi/v1/listenKey", nil, authKey, &resp); err != nil {
		return "", err
	}
	if resp.ListenKey == "" {
		return "", errors.New("empty listenKey in response")
	}
	return resp.ListenKey, nil
}

// KeepAliveListenKey: PUT /dapi/v1/listenKey, продление на 60 минут.
func (c *Client) KeepAliveListenKey(ctx context.Context, listenKey string) error {
	params := url.Values{}
	params.Set("listenKey", listenKey)
	return c.do(ctx, http.MethodPut, "/dapi/v1/listenKey", params, authKey, nil)
}

// CloseListenKey: DELETE /dapi/v1/listenKey.
func (c *Client) CloseListenKey(ctx context.Context, listenKey string) error {
	params := url.Values{}
	params.Set("listenKey", listenKey)
	return c.do(ctx, http.MethodDelete, "/dapi/v1/listenKey", params, authKey, nil)
}
