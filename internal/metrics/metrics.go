// Package metrics はPrometheusメトリクスの収集と公開を提供する。
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// MetricsCollector はメトリクス収集のインターフェース。
// メッセージハンドラやサービス層から利用する。
type MetricsCollector interface {
	RecordMessage(taskType string, result string)
	RecordMessageLatency(taskType string, duration time.Duration)
	RecordStorysModified(count int)
	RecordStorysReallocated(count int)
	RecordImagesRewritten(count int)
	RecordCreationsDeleted(count int64)
	RecordCreationsRetried(count int64)
}

// Collector はPrometheusメトリクスを収集する実装。
type Collector struct {
	messages          *prometheus.CounterVec
	messageLatency    *prometheus.HistogramVec
	storysModified    prometheus.Counter
	storysReallocated prometheus.Counter
	imagesRewritten   prometheus.Counter
	creationsDeleted  prometheus.Counter
	creationsRetried  prometheus.Counter
}

// NewCollector は新しいCollectorを生成し、指定されたレジストリにメトリクスを登録する。
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		messages: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "feedharbor_messages_total",
			Help: "処理したメッセージのタスク種別・結果別の合計数",
		}, []string{"type", "result"}),
		messageLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "feedharbor_message_duration_seconds",
			Help:    "メッセージ処理のレイテンシ（秒）",
			Buckets: prometheus.DefBuckets,
		}, []string{"type"}),
		storysModified: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "feedharbor_storys_modified_total",
			Help: "調停で新規作成または内容変更となったストーリーの合計数",
		}),
		storysReallocated: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "feedharbor_storys_reallocated_total",
			Help: "所属フィードを付け替えたストーリーの合計数",
		}),
		imagesRewritten: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "feedharbor_images_rewritten_total",
			Help: "プロキシ配下へ書き換えた画像参照の合計数",
		}),
		creationsDeleted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "feedharbor_creations_deleted_total",
			Help: "回収ジョブで削除したフィード作成リクエストの合計数",
		}),
		creationsRetried: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "feedharbor_creations_retried_total",
			Help: "回収ジョブでpendingへ戻したフィード作成リクエストの合計数",
		}),
	}

	reg.MustRegister(
		c.messages,
		c.messageLatency,
		c.storysModified,
		c.storysReallocated,
		c.imagesRewritten,
		c.creationsDeleted,
		c.creationsRetried,
	)

	return c
}

// RecordMessage はメッセージ処理の結果（ok/error/skip）を記録する。
func (c *Collector) RecordMessage(taskType string, result string) {
	c.messages.WithLabelValues(taskType, result).Inc()
}

// RecordMessageLatency はメッセージ処理のレイテンシを記録する。
func (c *Collector) RecordMessageLatency(taskType string, duration time.Duration) {
	c.messageLatency.WithLabelValues(taskType).Observe(duration.Seconds())
}

// RecordStorysModified は変更ストーリー数を記録する。
func (c *Collector) RecordStorysModified(count int) {
	c.storysModified.Add(float64(count))
}

// RecordStorysReallocated は再割り当て件数を記録する。
func (c *Collector) RecordStorysReallocated(count int) {
	c.storysReallocated.Add(float64(count))
}

// RecordImagesRewritten は書き換えた画像参照数を記録する。
func (c *Collector) RecordImagesRewritten(count int) {
	c.imagesRewritten.Add(float64(count))
}

// RecordCreationsDeleted は回収ジョブの削除件数を記録する。
func (c *Collector) RecordCreationsDeleted(count int64) {
	c.creationsDeleted.Add(float64(count))
}

// RecordCreationsRetried は回収ジョブのリセット件数を記録する。
func (c *Collector) RecordCreationsRetried(count int64) {
	c.creationsRetried.Add(float64(count))
}

// Handler はPrometheusスクレイプ用のHTTPハンドラーを返す。
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

// compile-time interface check
var _ MetricsCollector = (*Collector)(nil)
