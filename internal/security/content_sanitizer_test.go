package security

import (
	"strings"
	"testing"
)

// TestSanitize_AllowedTags は許可タグが正しく通過することを検証する。
func TestSanitize_AllowedTags(t *testing.T) {
	sanitizer := NewContentSanitizer()

	tests := []struct {
		name         string
		input        string
		wantContains []string
	}{
		{
			name:         "pタグが許可される",
			input:        "<p>今日の試合について</p>",
			wantContains: []string{"<p>今日の試合について</p>"},
		},
		{
			name:         "brタグが許可される",
			input:        "前半<br>後半",
			wantContains: []string{"<br>", "前半", "後半"},
		},
		{
			name:         "aタグが許可される",
			input:        `<a href="https://example.com/match">ハイライト</a>`,
			wantContains: []string{"<a", "href", "https://example.com/match", "ハイライト", "</a>"},
		},
		{
			name:         "リストタグが許可される",
			input:        "<ul><li>先発</li><li>控え</li></ul>",
			wantContains: []string{"<ul>", "<li>", "先発", "控え"},
		},
		{
			name:         "blockquoteタグが許可される",
			input:        "<blockquote>監督コメント</blockquote>",
			wantContains: []string{"<blockquote>監督コメント</blockquote>"},
		},
		{
			name:         "strongタグとemタグが許可される",
			input:        "<strong>決勝点</strong>と<em>退場</em>",
			wantContains: []string{"<strong>決勝点</strong>", "<em>退場</em>"},
		},
		{
			name:         "preタグとcodeタグが許可される",
			input:        "<pre><code>4-3-3</code></pre>",
			wantContains: []string{"<pre>", "<code>", "4-3-3"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := sanitizer.Sanitize(tt.input)
			for _, want := range tt.wantContains {
				if !strings.Contains(got, want) {
					t.Errorf("Sanitize(%q) = %q, expected to contain %q", tt.input, got, want)
				}
			}
		})
	}
}

// TestSanitize_ForbiddenTags は禁止タグが除去されることを検証する。
func TestSanitize_ForbiddenTags(t *testing.T) {
	sanitizer := NewContentSanitizer()

	tests := []struct {
		name         string
		input        string
		wantAbsent   []string
		wantContains []string
	}{
		{
			name:         "scriptタグが除去される",
			input:        `<p>テスト</p><script>alert('xss')</script><p>安全</p>`,
			wantAbsent:   []string{"<script", "</script>", "alert"},
			wantContains: []string{"テスト", "安全"},
		},
		{
			name:         "iframeタグが除去される",
			input:        `<p>テスト</p><iframe src="https://evil.com"></iframe>`,
			wantAbsent:   []string{"<iframe", "evil.com"},
			wantContains: []string{"テスト"},
		},
		{
			name:         "styleタグが除去される",
			input:        `<p>テスト</p><style>body{display:none}</style>`,
			wantAbsent:   []string{"<style", "display:none"},
			wantContains: []string{"テスト"},
		},
		{
			name:       "imgタグが除去される",
			input:      `<img src="https://example.com/image.png" alt="画像">`,
			wantAbsent: []string{"<img"},
		},
		{
			name:         "divとspanが除去される",
			input:        `<div><span>テスト</span></div>`,
			wantAbsent:   []string{"<div", "<span"},
			wantContains: []string{"テスト"},
		},
		{
			name:       "formとinputが除去される",
			input:      `<form action="https://evil.com"><input type="text"></form>`,
			wantAbsent: []string{"<form", "<input"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := sanitizer.Sanitize(tt.input)
			for _, absent := range tt.wantAbsent {
				if strings.Contains(got, absent) {
					t.Errorf("Sanitize(%q) = %q, should NOT contain %q", tt.input, got, absent)
				}
			}
			for _, want := range tt.wantContains {
				if !strings.Contains(got, want) {
					t.Errorf("Sanitize(%q) = %q, expected to contain %q", tt.input, got, want)
				}
			}
		})
	}
}

// TestSanitize_OnEventAttributes はon*イベント属性が除去されることを検証する。
func TestSanitize_OnEventAttributes(t *testing.T) {
	sanitizer := NewContentSanitizer()

	tests := []struct {
		name       string
		input      string
		wantAbsent []string
	}{
		{
			name:       "onclickが除去される",
			input:      `<p onclick="alert('xss')">テスト</p>`,
			wantAbsent: []string{"onclick", "alert"},
		},
		{
			name:       "onmouseoverが除去される",
			input:      `<a href="https://example.com" onmouseover="alert('xss')">リンク</a>`,
			wantAbsent: []string{"onmouseover", "alert"},
		},
		{
			name:       "イベントハンドラの大文字混在",
			input:      `<p OnClick="alert('xss')">テスト</p>`,
			wantAbsent: []string{"OnClick", "onclick", "alert"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := sanitizer.Sanitize(tt.input)
			for _, absent := range tt.wantAbsent {
				if strings.Contains(strings.ToLower(got), strings.ToLower(absent)) {
					t.Errorf("Sanitize(%q) = %q, should NOT contain %q", tt.input, got, absent)
				}
			}
		})
	}
}

// TestSanitize_AnchorAttributes はaタグの自動付与属性とスキーム制限を検証する。
func TestSanitize_AnchorAttributes(t *testing.T) {
	sanitizer := NewContentSanitizer()

	got := sanitizer.Sanitize(`<a href="https://example.com">リンク</a>`)

	if !strings.Contains(got, `target="_blank"`) {
		t.Errorf("Sanitize() = %q, expected target=\"_blank\"", got)
	}
	if !strings.Contains(got, "noopener") || !strings.Contains(got, "noreferrer") {
		t.Errorf("Sanitize() = %q, expected noopener noreferrer", got)
	}

	got = sanitizer.Sanitize(`<a href="javascript:alert('xss')">クリック</a>`)
	if strings.Contains(got, "javascript:") {
		t.Errorf("Sanitize() = %q, should NOT contain javascript URI", got)
	}
}

// TestSanitize_PlainText はプレーンテキストがそのまま通過することを検証する。
func TestSanitize_PlainText(t *testing.T) {
	sanitizer := NewContentSanitizer()

	input := "昨日の試合は延長までもつれた。決勝点は後半アディショナルタイム。"
	if got := sanitizer.Sanitize(input); got != input {
		t.Errorf("Sanitize(%q) = %q, expected unchanged", input, got)
	}
}

// TestSanitize_EmptyInput は空文字列の入力を安全に処理できることを検証する。
func TestSanitize_EmptyInput(t *testing.T) {
	sanitizer := NewContentSanitizer()

	if got := sanitizer.Sanitize(""); got != "" {
		t.Errorf("Sanitize(\"\") = %q, expected empty string", got)
	}
}

// TestSanitize_Idempotent は同一入力に対して常に同一出力（冪等性）を検証する。
func TestSanitize_Idempotent(t *testing.T) {
	sanitizer := NewContentSanitizer()

	input := `<p>テスト<strong>太字</strong></p><a href="https://example.com">リンク</a>`

	result1 := sanitizer.Sanitize(input)
	result2 := sanitizer.Sanitize(result1) // 二重サニタイズ

	if result1 != result2 {
		t.Errorf("二重サニタイズで結果が変わった: 1回目=%q, 二重=%q", result1, result2)
	}
}

// TestSanitizeTitle はタイトルから全マークアップが除去されることを検証する。
func TestSanitizeTitle(t *testing.T) {
	sanitizer := NewContentSanitizer()

	tests := []struct {
		name  string
		input string
		want  string
	}{
		{
			name:  "プレーンタイトルはそのまま",
			input: "週末のダービーマッチ予想",
			want:  "週末のダービーマッチ予想",
		},
		{
			name:  "タグは全て除去される",
			input: "<strong>重要</strong> 移籍情報",
			want:  "重要 移籍情報",
		},
		{
			name:  "scriptは本文ごと除去される",
			input: `タイトル<script>alert('xss')</script>`,
			want:  "タイトル",
		},
		{
			name:  "前後の空白がトリムされる",
			input: "  試合結果  ",
			want:  "試合結果",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := sanitizer.SanitizeTitle(tt.input); got != tt.want {
				t.Errorf("SanitizeTitle(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

// TestContentSanitizerInterface はContentSanitizerServiceインターフェースの適合を検証する。
func TestContentSanitizerInterface(t *testing.T) {
	var _ ContentSanitizerService = NewContentSanitizer()
}
