package middleware

import "net/http"

// securityHeaders はJSON APIとSSEストリームの全レスポンスに付与するヘッダー。
// HTMLを返さないためCSPは設定しない。Referrer-Policyはno-referrerとし、
// セッショントークンを含み得るURLの漏洩経路を断つ。
var securityHeaders = map[string]string{
	"X-Content-Type-Options": "nosniff",
	"X-Frame-Options":        "DENY",
	"Referrer-Policy":        "no-referrer",
}

// NewSecurityHeadersMiddleware は全レスポンスにセキュリティヘッダーを付与する。
func NewSecurityHeadersMiddleware() func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			for name, value := range securityHeaders {
				w.Header().Set(name, value)
			}
			next.ServeHTTP(w, r)
		})
	}
}
