package svc

import "errors"

var (
	// ErrNoAdapters 配置启用的交易所一个都没有构建出来
	ErrNoAdapters = errors.New("no exchange adapters available")
	// ErrTraderInitFailed rename 映射或交易所列表校验失败
	ErrTraderInitFailed = errors.New("trader initialization failed")
	// ErrStorageInitFailed 快照发布存储初始化失败
	ErrStorageInitFailed = errors.New("storage initialization failed")
)
