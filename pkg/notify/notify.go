// Package notify 提供摄取结果与服务异常的事件通知。
// 所有通知都是 fire-and-forget：失败只记日志，绝不阻塞调用方管线。
package notify

import (
	"context"
	"encoding/json"
	"time"

	"doc-smart-go/internal/config"
	"doc-smart-go/pkg/log"

	"github.com/segmentio/kafka-go"
)

// 事件类型常量。
const (
	EventDocumentIndexed = "document.indexed"
	EventDocumentFailed  = "document.failed"
	EventProviderOutage  = "provider.outage"
)

// Event 是发送到事件主题的消息结构。
type Event struct {
	Type       string    `json:"type"`
	DocumentID uint      `json:"documentId,omitempty"`
	FileName   string    `json:"fileName,omitempty"`
	Detail     string    `json:"detail,omitempty"`
	Timestamp  time.Time `json:"timestamp"`
}

// Notifier 发送事件通知。
type Notifier interface {
	Notify(event Event)
}

type kafkaNotifier struct {
	writer *kafka.Writer
}

// NewKafkaNotifier 创建基于 Kafka 的事件通知器。
func NewKafkaNotifier(cfg config.KafkaConfig) Notifier {
	return &kafkaNotifier{
		writer: &kafka.Writer{
			Addr:     kafka.TCP(cfg.Brokers),
			Topic:    cfg.EventTopic,
			Balancer: &kafka.LeastBytes{},
		},
	}
}

// Notify 异步发送事件，写入失败只记日志。
func (n *kafkaNotifier) Notify(event Event) {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}
	go func() {
		b, err := json.Marshal(event)
		if err != nil {
			log.Errorf("[Notify] 序列化事件失败: %v", err)
			return
		}
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := n.writer.WriteMessages(ctx, kafka.Message{Value: b}); err != nil {
			log.Warnf("[Notify] 发送事件失败 (type=%s): %v", event.Type, err)
		}
	}()
}

// NopNotifier 在未配置 Kafka 时使用，仅记日志。
type NopNotifier struct{}

// Notify 实现 Notifier 接口。
func (NopNotifier) Notify(event Event) {
	log.Infow("事件通知（未配置 Kafka，仅记录）", "type", event.Type, "documentId", event.DocumentID, "detail", event.Detail)
}
