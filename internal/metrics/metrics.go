// Package metrics 暴露中继链路的 Prometheus 指标，挂在健康检查服务的 /metrics 上。
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// EnvelopesPublished 本进程发布到各 channel 的信封数
	EnvelopesPublished = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "chat_fanout_envelopes_published_total",
		Help: "Envelopes published to the fanout bus, by channel.",
	}, []string{"channel"})

	// EnvelopesReceived 从总线收到的信封数（含本进程回声）
	EnvelopesReceived = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "chat_fanout_envelopes_received_total",
		Help: "Envelopes received from the fanout bus, by channel.",
	}, []string{"channel"})

	// EnvelopesDiscardedSelf 因回环判定被丢弃的自身信封数
	EnvelopesDiscardedSelf = promauto.NewCounter(prometheus.CounterOpts{
		Name: "chat_fanout_envelopes_discarded_self_total",
		Help: "Own-origin envelopes discarded by the loop-avoidance check.",
	})

	// EventsEmitted 向本地房间下发的事件数
	EventsEmitted = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "chat_events_emitted_total",
		Help: "Events emitted to local room members, by event name.",
	}, []string{"event"})

	// EventErrors 处理入站事件时的失败数
	EventErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "chat_event_errors_total",
		Help: "Inbound event handling failures, by event name.",
	}, []string{"event"})

	// ActiveConnections 当前已认证的本地连接数
	ActiveConnections = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "chat_active_connections",
		Help: "Currently authenticated local connections.",
	})
)
