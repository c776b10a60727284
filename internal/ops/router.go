// Package ops はワーカープロセスの運用エンドポイント（ヘルスチェックと
// メトリクス）を提供する。外部公開は想定せず、プロセス内監視専用とする。
package ops

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/hitoshi/feedharbor/internal/metrics"
)

// Pinger はDB疎通確認のインターフェース。*sql.DBが実装する。
type Pinger interface {
	PingContext(ctx context.Context) error
}

// NewRouter は運用エンドポイントのルーティングを構成したchi.Routerを返す。
//
//	GET /healthz  DB疎通を確認し、200または503を返す
//	GET /metrics  Prometheus形式のメトリクスを返す
func NewRouter(db Pinger, gatherer prometheus.Gatherer, logger *slog.Logger) http.Handler {
	r := chi.NewRouter()
	r.Use(NewLoggingMiddleware(logger))

	r.Get("/healthz", func(w http.ResponseWriter, req *http.Request) {
		ctx, cancel := context.WithTimeout(req.Context(), 3*time.Second)
		defer cancel()

		if err := db.PingContext(ctx); err != nil {
			logger.Error("ヘルスチェックに失敗しました",
				slog.String("error", err.Error()),
			)
			w.WriteHeader(http.StatusServiceUnavailable)
			w.Write([]byte("unhealthy\n"))
			return
		}
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok\n"))
	})

	r.Method(http.MethodGet, "/metrics", metrics.Handler(gatherer))

	return r
}
