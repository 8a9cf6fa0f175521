package middleware

import (
	"net/http"
	"time"
)

// HTTPRecorder はHTTPリクエストのメトリクスを記録するインターフェース。
type HTTPRecorder interface {
	RecordHTTPRequest(method, route string, status int, duration time.Duration)
}

// NewMetricsMiddleware はリクエスト数と処理時間を記録するミドルウェアを返す。
// ラベルにはURLではなくルートパターンを使い、ID入りのパスでカーディナリティが増えないようにする。
func NewMetricsMiddleware(recorder HTTPRecorder) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			rec := &statusRecorder{ResponseWriter: w, statusCode: http.StatusOK}

			next.ServeHTTP(rec, r)

			recorder.RecordHTTPRequest(r.Method, routePattern(r), rec.statusCode, time.Since(start))
		})
	}
}
