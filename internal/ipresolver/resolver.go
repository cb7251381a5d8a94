// Package ipresolver はHTTPリクエストからクライアントIPを解決する。
package ipresolver

import (
	"net"
	"net/http"
	"strings"
)

// Resolver はリクエストの発信元IPを決定する。
// TrustedProxiesは自前のリバースプロキシ段数で、X-Forwarded-Forの
// 末尾からその段数だけ遡った値をクライアントIPとして採用する。
// 0の場合はX-Forwarded-Forを信用せずRemoteAddrのみを使う。
type Resolver struct {
	trustedProxies int
}

// NewResolver はResolverを生成する。
func NewResolver(trustedProxies int) *Resolver {
	return &Resolver{trustedProxies: trustedProxies}
}

// ClientIP はリクエストのクライアントIPを返す。
// 解決できない場合は空文字列を返し、許可可否の判断は呼び出し側に委ねる。
func (r *Resolver) ClientIP(req *http.Request) string {
	if r.trustedProxies > 0 && req.Header.Get("X-Forwarded-For") != "" {
		// ヘッダーがあるのに値が不正な場合はプロキシIPで代用せず解決失敗にする。
		// プロキシ構成では全クライアントが同じRemoteAddrを共有するため。
		return r.forwardedIP(req)
	}

	host, _, err := net.SplitHostPort(req.RemoteAddr)
	if err != nil {
		// ポートなしのRemoteAddr（テスト等）はそのまま検証する
		host = req.RemoteAddr
	}
	if net.ParseIP(host) == nil {
		return ""
	}

	return host
}

// forwardedIP はX-Forwarded-Forから信頼できるクライアントIPを取り出す。
func (r *Resolver) forwardedIP(req *http.Request) string {
	header := req.Header.Get("X-Forwarded-For")
	if header == "" {
		return ""
	}

	parts := strings.Split(header, ",")
	// 信頼プロキシは各自1エントリを追記する。エッジプロキシが記録した
	// クライアントIPは末尾からtrustedProxies番目に位置する。
	// それより前のエントリは送信者が自由に書けるため参照しない。
	if len(parts) < r.trustedProxies {
		// 段数が足りないヘッダーは経路外から直接届いた可能性があるため解決失敗とする
		return ""
	}
	candidate := strings.TrimSpace(parts[len(parts)-r.trustedProxies])
	if net.ParseIP(candidate) == nil {
		return ""
	}

	return candidate
}
