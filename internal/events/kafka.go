package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/segmentio/kafka-go"
)

// Recorder はイベント発行結果を記録するメトリクスのインターフェース。
type Recorder interface {
	RecordEventPublished(ok bool)
}

// messageWriter はkafka.Writerのうち発行に使う部分。
type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaPublisher はイベントをKafkaトピックへ発行する。
// キーにユーザーIDを使い、同一ユーザーのイベントを同じパーティションに載せて順序を保つ。
type KafkaPublisher struct {
	writer   messageWriter
	recorder Recorder
}

// NewKafkaPublisher は非同期書き込みのKafkaPublisherを生成する。
// 配送結果は書き込み完了時にログとメトリクスへ記録する。
func NewKafkaPublisher(brokers []string, topic string, recorder Recorder) *KafkaPublisher {
	p := &KafkaPublisher{recorder: recorder}
	p.writer = &kafka.Writer{
		Addr:                   kafka.TCP(brokers...),
		Topic:                  topic,
		Balancer:               &kafka.Hash{},
		RequiredAcks:           kafka.RequireOne,
		Async:                  true,
		BatchTimeout:           50 * time.Millisecond,
		AllowAutoTopicCreation: true,
		Completion:             p.complete,
	}
	return p
}

// Publish はイベントをJSONで書き込む。
func (p *KafkaPublisher) Publish(ctx context.Context, event Event) error {
	value, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	msg := kafka.Message{
		Key:   []byte(event.UserID),
		Value: value,
		Headers: []kafka.Header{
			{Key: "event-type", Value: []byte(event.Type)},
		},
	}
	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		p.complete([]kafka.Message{msg}, err)
		return fmt.Errorf("failed to send event to kafka: %w", err)
	}
	return nil
}

// complete は配送結果を記録する。
func (p *KafkaPublisher) complete(msgs []kafka.Message, err error) {
	for range msgs {
		if p.recorder != nil {
			p.recorder.RecordEventPublished(err == nil)
		}
	}
	if err != nil {
		slog.Warn("failed to publish events",
			slog.Int("count", len(msgs)),
			slog.String("error", err.Error()),
		)
	}
}

// Close は未送信のメッセージを送り切ってから書き込みを終了する。
func (p *KafkaPublisher) Close() error {
	if err := p.writer.Close(); err != nil {
		return fmt.Errorf("failed to close kafka writer: %w", err)
	}
	return nil
}

// EnsureTopic はトピックが存在しなければ作成する。既に存在する場合は何もしない。
func EnsureTopic(ctx context.Context, broker, topic string, partitions, replicationFactor int) error {
	conn, err := kafka.DialContext(ctx, "tcp", broker)
	if err != nil {
		return fmt.Errorf("failed to connect to kafka broker: %w", err)
	}
	defer conn.Close()

	err = conn.CreateTopics(kafka.TopicConfig{
		Topic:             topic,
		NumPartitions:     partitions,
		ReplicationFactor: replicationFactor,
	})
	if err != nil && !errors.Is(err, kafka.TopicAlreadyExists) {
		return fmt.Errorf("failed to create kafka topic %q: %w", topic, err)
	}
	return nil
}

var _ Publisher = (*KafkaPublisher)(nil)
