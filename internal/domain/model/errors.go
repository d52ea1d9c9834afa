package model

import "errors"

var (
	//入力不備（副作用なし）
	ErrValidation = errors.New("validation error")
	//在庫不足
	ErrOutOfStock = errors.New("out of stock")
	//非公開・削除済みの商品
	ErrProductUnavailable = errors.New("product unavailable")
	//決済が拒否 / 到達不能
	ErrPaymentFailed = errors.New("payment failed")
	//決済成功後に注文保存が失敗
	ErrPersistenceInconsistency = errors.New("persistence inconsistency")
	//不正な状態遷移
	ErrInvalidTransition = errors.New("invalid status transition")
)

// 見つからない（リポジトリ共通）
var ErrNotFound = errors.New("not found")
