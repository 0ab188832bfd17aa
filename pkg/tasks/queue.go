package tasks

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"doc-smart-go/internal/config"
	"doc-smart-go/pkg/log"

	"github.com/go-redis/redis/v8"
	"github.com/segmentio/kafka-go"
)

// Processor defines the interface for any service that can process a task.
// This decouples the Kafka consumer from the concrete pipeline implementation.
type Processor interface {
	Process(ctx context.Context, task IngestTask) error
}

// Queue 封装了摄取任务的 Kafka 生产与消费。
type Queue struct {
	writer *kafka.Writer
	cfg    config.KafkaConfig
	rdb    *redis.Client
}

// NewQueue 创建摄取任务队列。
func NewQueue(cfg config.KafkaConfig, rdb *redis.Client) *Queue {
	return &Queue{
		writer: &kafka.Writer{
			Addr:     kafka.TCP(cfg.Brokers),
			Topic:    cfg.IngestTopic,
			Balancer: &kafka.LeastBytes{},
		},
		cfg: cfg,
		rdb: rdb,
	}
}

// Produce 发送一个摄取任务到 Kafka。
func (q *Queue) Produce(ctx context.Context, task IngestTask) error {
	taskBytes, err := json.Marshal(task)
	if err != nil {
		return err
	}
	return q.writer.WriteMessages(ctx, kafka.Message{Value: taskBytes})
}

// StartConsumer 启动消费循环，ctx 取消时退出。
// 失败次数记在 Redis，达到 3 次后提交 offset 终止重试。
func (q *Queue) StartConsumer(ctx context.Context, processor Processor) {
	r := kafka.NewReader(kafka.ReaderConfig{
		Brokers:  []string{q.cfg.Brokers},
		Topic:    q.cfg.IngestTopic,
		GroupID:  q.cfg.GroupID,
		MinBytes: 10e3, // 10KB
		MaxBytes: 10e6, // 10MB
	})
	defer func() {
		if err := r.Close(); err != nil {
			log.Errorf("关闭 Kafka 消费者失败: %v", err)
		}
	}()

	log.Infof("Kafka 消费者已启动，正在监听主题 '%s'", q.cfg.IngestTopic)

	for {
		m, err := r.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				log.Info("Kafka 消费者收到退出信号")
				return
			}
			log.Error("从 Kafka 读取消息失败", err)
			return
		}

		log.Infof("收到 Kafka 消息: offset %d", m.Offset)

		var task IngestTask
		if err := json.Unmarshal(m.Value, &task); err != nil {
			log.Errorf("无法解析 Kafka 消息: %v, value: %s", err, string(m.Value))
			// 消息格式错误，直接提交，避免阻塞队列
			if err := r.CommitMessages(ctx, m); err != nil {
				log.Errorf("提交错误消息失败: %v", err)
			}
			continue
		}

		log.Infof("开始处理摄取任务: DocumentID=%d, FileName=%s", task.DocumentID, task.FileName)
		if err := processor.Process(ctx, task); err != nil {
			log.Errorf("处理摄取任务失败: DocumentID=%d, Error: %v", task.DocumentID, err)
			attemptsKey := fmt.Sprintf("ingest:attempts:%d", task.DocumentID)
			attempts, incErr := q.rdb.Incr(ctx, attemptsKey).Result()
			if incErr == nil {
				_ = q.rdb.Expire(ctx, attemptsKey, 24*time.Hour).Err()
			} else {
				// Redis 异常时保守处理：不提交 offset，让 Kafka 重试
				continue
			}
			if attempts >= 3 {
				log.Errorf("摄取任务多次失败(>=3)，提交 offset 终止重试: DocumentID=%d", task.DocumentID)
				if err := r.CommitMessages(ctx, m); err != nil {
					log.Errorf("提交 Kafka 消息 offset 失败: %v", err)
				}
			}
			// attempts < 3 时，不提交 offset 让 Kafka 自动重试
		} else {
			log.Infof("摄取任务处理成功: DocumentID=%d", task.DocumentID)
			_ = q.rdb.Del(ctx, fmt.Sprintf("ingest:attempts:%d", task.DocumentID)).Err()
			if err := r.CommitMessages(ctx, m); err != nil {
				log.Errorf("提交 Kafka 消息 offset 失败: %v", err)
			}
		}
	}
}
