package model

import (
	"sort"
	"strings"
)

// CurrencyInfo 交易所本地币种信息（key 为本地代码）
type CurrencyInfo struct {
	Name    string `json:"name"`
	Enabled bool   `json:"enabled"`
}

// CanonicalCurrency 跨交易所统一币种
type CanonicalCurrency struct {
	Code       string            `json:"code"`
	Name       string            `json:"name"`
	Local      map[string]string `json:"local"`       // exchange -> local code
	LocalNames map[string]string `json:"local_names"` // exchange -> display name
}

// HasName reports whether Name was set by an exchange instead of the code placeholder.
func (c *CanonicalCurrency) HasName() bool {
	return c.Name != "" && c.Name != c.Code
}

// CodeMapping is the immutable result of one reconciliation pass. It is
// never mutated after Build; readers share it freely.
type CodeMapping struct {
	currencies map[string]*CanonicalCurrency
	toGlobal   map[string]map[string]string // exchange -> local -> global
	toLocal    map[string]map[string]string // exchange -> global -> local
	order      []string
}

// GlobalCode 本地代码 -> 统一代码
func (m *CodeMapping) GlobalCode(exchange, local string) (string, bool) {
	if m == nil {
		return "", false
	}
	g, ok := m.toGlobal[exchange][local]
	return g, ok
}

// LocalCode 统一代码 -> 本地代码
func (m *CodeMapping) LocalCode(exchange, global string) (string, bool) {
	if m == nil {
		return "", false
	}
	l, ok := m.toLocal[exchange][global]
	return l, ok
}

// Currency 获取统一币种
func (m *CodeMapping) Currency(global string) (*CanonicalCurrency, bool) {
	if m == nil {
		return nil, false
	}
	c, ok := m.currencies[global]
	return c, ok
}

// Has reports whether the global code is known.
func (m *CodeMapping) Has(global string) bool {
	_, ok := m.Currency(global)
	return ok
}

// Codes returns all global codes in sorted order.
func (m *CodeMapping) Codes() []string {
	if m == nil {
		return nil
	}
	out := make([]string, 0, len(m.currencies))
	for code := range m.currencies {
		out = append(out, code)
	}
	sort.Strings(out)
	return out
}

// Exchanges returns the exchanges present in the mapping, in load order.
func (m *CodeMapping) Exchanges() []string {
	if m == nil {
		return nil
	}
	return append([]string(nil), m.order...)
}

// Table returns a copy of the local->global table for one exchange.
func (m *CodeMapping) Table(exchange string) map[string]string {
	if m == nil {
		return nil
	}
	src := m.toGlobal[exchange]
	out := make(map[string]string, len(src))
	for k, v := range src {
		out[k] = v
	}
	return out
}

// Entry 返回 {exchange -> local code, exchange+"Name" -> display name} 视图
func (m *CodeMapping) Entry(global string) map[string]string {
	c, ok := m.Currency(global)
	if !ok {
		return nil
	}
	out := make(map[string]string, len(c.Local)*2)
	for ex, local := range c.Local {
		out[ex] = local
	}
	for ex, name := range c.LocalNames {
		out[ex+"Name"] = name
	}
	return out
}

// CodeMappingBuilder accumulates one reconciliation pass.
type CodeMappingBuilder struct {
	m *CodeMapping
}

func NewCodeMappingBuilder() *CodeMappingBuilder {
	return &CodeMappingBuilder{m: &CodeMapping{
		currencies: make(map[string]*CanonicalCurrency),
		toGlobal:   make(map[string]map[string]string),
		toLocal:    make(map[string]map[string]string),
	}}
}

// Add records exchange's local code as global. The first exchange that
// supplies a real display name sets CanonicalCurrency.Name.
func (b *CodeMappingBuilder) Add(exchange, local, global, name string) *CanonicalCurrency {
	m := b.m
	if _, ok := m.toGlobal[exchange]; !ok {
		m.toGlobal[exchange] = make(map[string]string)
		m.toLocal[exchange] = make(map[string]string)
		m.order = append(m.order, exchange)
	}
	c, ok := m.currencies[global]
	if !ok {
		c = &CanonicalCurrency{
			Code:       global,
			Name:       global,
			Local:      make(map[string]string),
			LocalNames: make(map[string]string),
		}
		m.currencies[global] = c
	}

	m.toGlobal[exchange][local] = global
	m.toLocal[exchange][global] = local
	c.Local[exchange] = local

	name = strings.TrimSpace(name)
	if name != "" {
		c.LocalNames[exchange] = name
		if c.Name == c.Code {
			c.Name = name
		}
	}
	return c
}

// LocalCode reports the local code already recorded for (exchange, global).
func (b *CodeMappingBuilder) LocalCode(exchange, global string) (string, bool) {
	return b.m.LocalCode(exchange, global)
}

// Build 完成构建；之后 builder 不可再用
func (b *CodeMappingBuilder) Build() *CodeMapping {
	m := b.m
	b.m = nil
	return m
}
