// Package model はドメインモデルを定義する。
package model

import (
	"errors"
	"fmt"
)

// MessageError はメッセージ処理の統一エラーフォーマットを表す。
// Retryableがfalseのエラーはトランスポート層で再配送を打ち切る。
type MessageError struct {
	Code      string // エラーコード
	Message   string // エラーメッセージ
	Category  string // カテゴリ: validation, not_found, conflict
	Retryable bool   // 再配送で解消しうるか
}

// Error はerrorインターフェースを実装する。
func (e *MessageError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// 定義済みエラーコード
const (
	ErrCodeInvalidPayload   = "INVALID_PAYLOAD"
	ErrCodeCreationNotFound = "FEED_CREATION_NOT_FOUND"
	ErrCodeFeedNotFound     = "FEED_NOT_FOUND"
	ErrCodeStoryNotFound    = "STORY_NOT_FOUND"
	ErrCodeDuplicateKey     = "DUPLICATE_KEY"
)

// NewInvalidPayloadError は不正なペイロードのエラーを生成する。
// 状態を変更せずにメッセージを棄却する。
func NewInvalidPayloadError(reason string) *MessageError {
	return &MessageError{
		Code:      ErrCodeInvalidPayload,
		Message:   fmt.Sprintf("不正なペイロードです: %s", reason),
		Category:  "validation",
		Retryable: false,
	}
}

// NewCreationNotFoundError はFeedCreation未検出のエラーを生成する。
func NewCreationNotFoundError(id string) *MessageError {
	return &MessageError{
		Code:      ErrCodeCreationNotFound,
		Message:   fmt.Sprintf("指定されたフィード作成リクエストが見つかりません: %s", id),
		Category:  "not_found",
		Retryable: false,
	}
}

// NewFeedNotFoundError はフィード未検出のエラーを生成する。
func NewFeedNotFoundError(id string) *MessageError {
	return &MessageError{
		Code:      ErrCodeFeedNotFound,
		Message:   fmt.Sprintf("指定されたフィードが見つかりません: %s", id),
		Category:  "not_found",
		Retryable: false,
	}
}

// NewStoryNotFoundError はストーリー未検出のエラーを生成する。
func NewStoryNotFoundError(id string) *MessageError {
	return &MessageError{
		Code:      ErrCodeStoryNotFound,
		Message:   fmt.Sprintf("指定されたストーリーが見つかりません: %s", id),
		Category:  "not_found",
		Retryable: false,
	}
}

// NewDuplicateKeyError は一意制約競合のエラーを生成する。
// 調停処理はリプレイに対して冪等なため、再配送で安全に解消できる。
func NewDuplicateKeyError(detail string) *MessageError {
	return &MessageError{
		Code:      ErrCodeDuplicateKey,
		Message:   fmt.Sprintf("一意制約に競合しました: %s", detail),
		Category:  "conflict",
		Retryable: true,
	}
}

// IsRetryable はエラーが再配送で解消しうるかを判定する。
// MessageError以外のエラー（接続断など）は再配送対象として扱う。
func IsRetryable(err error) bool {
	var me *MessageError
	if errors.As(err, &me) {
		return me.Retryable
	}
	return true
}
