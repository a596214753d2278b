// Package security はアプリケーションのセキュリティ機能を提供する。
//
// ContentSanitizerService は投稿とコメントの本文をサニタイズし、
// XSS攻撃などのセキュリティリスクからユーザーを保護する。
// bluemondayライブラリを使用した許可リストベースのポリシーで、
// 安全なタグのみを通過させる。
package security

import (
	"strings"

	"github.com/microcosm-cc/bluemonday"
)

// ContentSanitizerService は投稿・コメント本文のサニタイズ機能のインターフェースを定義する。
// 本文の保存前に使用される。
type ContentSanitizerService interface {
	// SanitizeContent は投稿・コメント本文をサニタイズして安全なHTMLを返す。
	// 許可タグ（p, br, a, ul, ol, li, blockquote, pre, code, strong, em）のみを通過させ、
	// script, iframe, styleタグおよびon*イベント属性を除去する。
	// aタグにはtarget="_blank"とrel="noopener noreferrer"が自動付与される。
	// 空文字列の入力には空文字列を返す。
	// 同一入力に対して常に同一出力を返す（冪等）。
	SanitizeContent(raw string) string

	// SanitizePlain はタイトルやニックネームなど、タグを一切含まない
	// プレーンテキスト項目からHTMLタグを全て除去する。
	SanitizePlain(raw string) string
}

// contentSanitizer はContentSanitizerServiceの実装。
// bluemondayのポリシーを保持し、スレッドセーフにサニタイズ処理を行う。
type contentSanitizer struct {
	contentPolicy *bluemonday.Policy
	plainPolicy   *bluemonday.Policy
}

// NewContentSanitizer はContentSanitizerServiceの新しいインスタンスを生成する。
// 初期化時にbluemondayのカスタムポリシーを構築する。
// ポリシーの内容:
//   - 本文用の許可タグ: p, br, a, ul, ol, li, blockquote, pre, code, strong, em
//   - 禁止タグ: script, iframe, style および全てのon*イベント属性
//   - aタグ: target="_blank" と rel="noopener noreferrer" を自動付与
//   - プレーンテキスト用: 全タグを除去
func NewContentSanitizer() *contentSanitizer {
	p := bluemonday.NewPolicy()

	// 掲示板の本文で許可するシンプルな整形タグ。
	// script, iframe, style等は許可リストに含めないことで自動的に除去される。
	// on*イベント属性はbluemondayのデフォルトで許可されないため除去される。
	p.AllowElements(
		"p", "br", "ul", "ol", "li",
		"blockquote", "pre", "code",
		"strong", "em",
	)

	// aタグの設定:
	// - href属性を許可（http/httpsのみ）
	// - 相対URLは不許可
	// - target="_blank"を全リンクに強制付与
	// - rel="noreferrer noopener"を強制付与
	p.AllowAttrs("href").OnElements("a")
	p.AllowStandardURLs()
	p.AllowRelativeURLs(false)
	p.AddTargetBlankToFullyQualifiedLinks(true)
	p.RequireNoReferrerOnLinks(true)

	return &contentSanitizer{
		contentPolicy: p,
		plainPolicy:   bluemonday.StrictPolicy(),
	}
}

// SanitizeContent は投稿・コメント本文をサニタイズして安全なHTMLを返す。
func (s *contentSanitizer) SanitizeContent(raw string) string {
	return strings.TrimSpace(s.contentPolicy.Sanitize(raw))
}

// SanitizePlain はタイトル等のプレーンテキスト項目からHTMLタグを全て除去する。
func (s *contentSanitizer) SanitizePlain(raw string) string {
	return strings.TrimSpace(s.plainPolicy.Sanitize(raw))
}
