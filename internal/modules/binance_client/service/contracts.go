package service

import (
	"context"
	"net/http"
	"sync"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
)

type exchangeInfoSource interface {
	loadContractSizes(ctx context.Context) (map[string]decimal.Decimal, error)
}

// ContractTable: размеры контрактов из exchangeInfo. Загружается один раз
// при первом обращении; неудачная загрузка повторяется при следующем.
type ContractTable struct {
	src exchangeInfoSource

	mu     sync.Mutex
	loaded bool
	sizes  map[string]decimal.Decimal
}

func NewContractTable(c *Client) *ContractTable {
	return &ContractTable{src: c}
}

// ContractSize: 0 для неизвестного символа.
func (t *ContractTable) ContractSize(ctx context.Context, symbol string) (decimal.Decimal, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if !t.loaded {
		sizes, err := t.src.loadContractSizes(ctx)
		if err != nil {
			return decimal.Zero, err
		}
		t.sizes = sizes
		t.loaded = true
	}
	return t.sizes[symbol], nil
}

func (t *ContractTable) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.sizes)
}

func (c *Client) loadContractSizes(ctx context.Context) (map[string]decimal.Decimal, error) {
	var info exchangeInfo
	if err := c.do(ctx, http.MethodGet, "/dapi/v1/exchangeInfo", nil, authNone, &info); err != nil {
		return nil, errors.Wrap(err, "exchange info")
	}
	sizes := make(map[string]decimal.Decimal, len(info.Symbols))
	for _, s := range info.Symbols {
		if s.Symbol == "" {
			continue
		}
		sizes[s.Symbol] = decimal.NewFromFloat(s.ContractSize)
	}
	c.log.Info("contract sizes loaded")
	return sizes, nil
}
