// Package security は投稿コンテンツのサニタイズ機能を提供する。
//
// 匿名訪問者を含む全ユーザーの投稿本文はモデレーション前に
// 許可リストベースのポリシーでサニタイズされ、scriptタグや
// イベント属性によるXSSを排除する。
package security

import (
	"net/url"
	"strings"

	"github.com/microcosm-cc/bluemonday"
)

// ContentSanitizerService は投稿本文サニタイズのインターフェース。
// トピック・ポスト・編集の受付時、永続化前に適用される。
type ContentSanitizerService interface {
	// Sanitize は投稿本文をサニタイズして安全なHTMLを返す。
	// 許可タグ（p, br, a, ul, ol, li, blockquote, pre, code, strong, em）のみを
	// 通過させ、script, iframe, styleタグおよびon*イベント属性を除去する。
	// aタグにはtarget="_blank"とrel="noopener noreferrer"が自動付与される。
	// 同一入力に対して常に同一出力を返す（冪等）。
	Sanitize(raw string) string

	// SanitizeTitle はトピックタイトルをサニタイズする。
	// タイトルはマークアップを一切許可せず、テキストのみを残す。
	SanitizeTitle(raw string) string
}

// contentSanitizer はContentSanitizerServiceの実装。
// bluemondayのポリシーを保持し、スレッドセーフにサニタイズ処理を行う。
type contentSanitizer struct {
	body  *bluemonday.Policy
	title *bluemonday.Policy
}

// NewContentSanitizer はContentSanitizerServiceの新しいインスタンスを生成する。
// ポリシーの内容:
//   - 本文の許可タグ: p, br, a, ul, ol, li, blockquote, pre, code, strong, em
//   - 禁止タグ: script, iframe, style および全てのon*イベント属性
//   - aタグ: href属性のみ許可、https/httpスキーム、target="_blank"と
//     rel="noreferrer noopener"を強制付与
//   - タイトル: 全タグ除去（StrictPolicy）
func NewContentSanitizer() *contentSanitizer {
	p := bluemonday.NewPolicy()

	p.AllowElements(
		"p", "br", "ul", "ol", "li",
		"blockquote", "pre", "code",
		"strong", "em",
	)

	p.AllowAttrs("href").OnElements("a")
	p.AllowRelativeURLs(false)
	p.AddTargetBlankToFullyQualifiedLinks(true)
	p.RequireNoReferrerOnLinks(true)
	p.AllowURLSchemeWithCustomPolicy("https", func(u *url.URL) bool {
		return true
	})
	p.AllowURLSchemeWithCustomPolicy("http", func(u *url.URL) bool {
		return true
	})

	return &contentSanitizer{
		body:  p,
		title: bluemonday.StrictPolicy(),
	}
}

// Sanitize は投稿本文をサニタイズして安全なHTMLを返す。
func (s *contentSanitizer) Sanitize(raw string) string {
	return s.body.Sanitize(raw)
}

// SanitizeTitle はタイトルからマークアップを全て除去する。
func (s *contentSanitizer) SanitizeTitle(raw string) string {
	return strings.TrimSpace(s.title.Sanitize(raw))
}

// compile-time interface check
var _ ContentSanitizerService = (*contentSanitizer)(nil)
