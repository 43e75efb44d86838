package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"github.com/lvdashuaibi/voteledger/config"
	"github.com/lvdashuaibi/voteledger/internal/model"
)

// 与轮次无关的事件（佣金提取）使用的路由键
const ledgerKey = "ledger"

type Producer struct {
	writer         *kafka.Writer
	partitionCount int // 主题的分区数量
}

func NewProducer(cfg config.KafkaConfig) (*Producer, error) {
	partitions, err := topicPartitions(context.Background(), cfg)
	if err != nil {
		return nil, err
	}
	zap.S().Infof("生产者检测到Kafka主题 %s 有 %d 个分区", cfg.Topic, len(partitions))

	// 使用Hash分区器，同一轮次的事件进入同一分区，保持顺序
	writer := &kafka.Writer{
		Addr:         kafka.TCP(cfg.Brokers...),
		Topic:        cfg.Topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireAll,
	}

	return &Producer{
		writer:         writer,
		partitionCount: len(partitions),
	}, nil
}

// SendLedgerEvent 发送账本事件到Kafka
func (p *Producer) SendLedgerEvent(ctx context.Context, event *model.LedgerEvent) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("序列化账本事件失败: %w", err)
	}

	msg := kafka.Message{
		Key:   eventKey(event),
		Value: data,
		Time:  time.Now(),
	}
	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("发送账本事件失败: %w", err)
	}
	return nil
}

// Close 关闭Kafka生产者
func (p *Producer) Close() error {
	return p.writer.Close()
}

func eventKey(event *model.LedgerEvent) []byte {
	if event.RoundID == 0 {
		return []byte(ledgerKey)
	}
	return []byte(strconv.FormatUint(event.RoundID, 10))
}

// topicPartitions 读取主题的分区ID
func topicPartitions(ctx context.Context, cfg config.KafkaConfig) ([]int, error) {
	if len(cfg.Brokers) == 0 {
		return nil, fmt.Errorf("未配置Kafka broker")
	}
	conn, err := kafka.DialLeader(ctx, "tcp", cfg.Brokers[0], cfg.Topic, 0)
	if err != nil {
		return nil, fmt.Errorf("连接Kafka失败: %w", err)
	}
	defer conn.Close()

	partitions, err := conn.ReadPartitions()
	if err != nil {
		return nil, fmt.Errorf("读取分区信息失败: %w", err)
	}

	var ids []int
	for _, p := range partitions {
		if p.Topic == cfg.Topic {
			ids = append(ids, p.ID)
		}
	}
	return ids, nil
}
