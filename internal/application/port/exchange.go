package port

import (
	"context"
	"time"

	"xtrader/internal/domain/model"
)

// Exchange is the capability contract every exchange adapter implements.
// Network I/O, signing, retries and error bookkeeping stay inside the adapter;
// callers only observe data or an error.
type Exchange interface {
	Name() string

	// LoadCurrencies 返回本地代码 -> 币种信息；整体失败返回 error
	LoadCurrencies(ctx context.Context) (map[string]model.CurrencyInfo, error)
	// SetCodeTable 接收对账结果（本地代码 -> 统一代码）
	SetCodeTable(localToGlobal map[string]string)
	// LoadMarkets 返回按统一代码索引的行情，翻译由适配器自己完成
	LoadMarkets(ctx context.Context) (model.MarketTable, error)
	LoadBalances(ctx context.Context) (map[string]model.RawBalance, error)

	LocalCode(global string) (string, bool)
	GlobalCode(local string) (string, bool)
	IsCurrencyEnabled(local string) bool
	HasCredentials() bool

	Status() AdapterStatus
}

// AdapterStatus 适配器错误/重试状态
type AdapterStatus struct {
	Exchange    string    `json:"exchange"`
	LastError   string    `json:"last_error,omitempty"`
	LastErrorAt time.Time `json:"last_error_at,omitempty"`
	Retries     int       `json:"retries"`
	MaxRetries  int       `json:"max_retries"`
}
