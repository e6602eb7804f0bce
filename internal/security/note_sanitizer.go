// Package security はアプリケーションのセキュリティ機能を提供する。
//
// NoteSanitizerService は取引メモの自由記述テキストをサニタイズし、
// 保存データへのHTML/スクリプト混入からユーザーを保護する。
// bluemondayのStrictPolicyで全タグを除去し、プレーンテキストのみを保存する。
package security

import (
	"html"
	"strings"

	"github.com/microcosm-cc/bluemonday"
)

// NoteSanitizerService は取引メモのサニタイズ機能のインターフェースを定義する。
// 取引のストア保存前に使用される。
type NoteSanitizerService interface {
	// Sanitize はメモ文字列からHTMLタグを全て除去したプレーンテキストを返す。
	// 前後の空白は取り除かれる。空文字列の入力には空文字列を返す。
	// 同一入力に対して常に同一出力を返す（冪等）。
	Sanitize(note string) string
}

// noteSanitizer はNoteSanitizerServiceの実装。
// bluemondayのポリシーを保持し、スレッドセーフにサニタイズ処理を行う。
type noteSanitizer struct {
	policy *bluemonday.Policy
}

// NewNoteSanitizer はNoteSanitizerServiceの新しいインスタンスを生成する。
// StrictPolicy（全タグ除去）を使用する。メモはプレーンテキストであり、
// マークアップを許可する理由がないため許可リストは空とする。
func NewNoteSanitizer() *noteSanitizer {
	return &noteSanitizer{
		policy: bluemonday.StrictPolicy(),
	}
}

// Sanitize はメモからHTMLタグを除去したプレーンテキストを返す。
// StrictPolicyはテキストをHTMLエンティティにエスケープして返すため、
// プレーンテキストとして保存できるようアンエスケープして戻す。
func (s *noteSanitizer) Sanitize(note string) string {
	cleaned := s.policy.Sanitize(note)
	return strings.TrimSpace(html.UnescapeString(cleaned))
}

var _ NoteSanitizerService = (*noteSanitizer)(nil)
