package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"github.com/lvdashuaibi/voteledger/config"
	"github.com/lvdashuaibi/voteledger/internal/model"
)

const maxWorkers = 8

type Consumer struct {
	readers []*kafka.Reader
	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

type MessageHandler func(event *model.LedgerEvent) error

// NewConsumer 每个实例按分区读取全部事件，所有实例都能看到完整的事件流
func NewConsumer(cfg config.KafkaConfig) (*Consumer, error) {
	ctx, cancel := context.WithCancel(context.Background())

	partitions, err := topicPartitions(ctx, cfg)
	if err != nil {
		cancel()
		return nil, err
	}
	zap.S().Infof("检测到Kafka主题 %s 有 %d 个分区", cfg.Topic, len(partitions))

	numWorkers := min(maxWorkers, len(partitions))
	readers := make([]*kafka.Reader, 0, numWorkers)
	for i := 0; i < numWorkers; i++ {
		readers = append(readers, kafka.NewReader(kafka.ReaderConfig{
			Brokers:     cfg.Brokers,
			Topic:       cfg.Topic,
			Partition:   partitions[i],
			MinBytes:    1,
			MaxBytes:    10e6, // 10MB
			StartOffset: kafka.FirstOffset,
		}))
		zap.S().Infof("消费者工作线程 #%d 将处理分区: %d", i, partitions[i])
	}

	// 未检测到分区时退回消费者组模式
	if len(readers) == 0 {
		zap.S().Warnf("未检测到分区，将使用消费者组模式，GroupID: %s", cfg.GroupID)
		readers = append(readers, kafka.NewReader(kafka.ReaderConfig{
			Brokers:  cfg.Brokers,
			Topic:    cfg.Topic,
			GroupID:  cfg.GroupID,
			MinBytes: 1,
			MaxBytes: 10e6, // 10MB
		}))
	}

	return &Consumer{
		readers: readers,
		ctx:     ctx,
		cancel:  cancel,
	}, nil
}

// StartConsuming 开始消费消息，每个reader一个goroutine
func (c *Consumer) StartConsuming(handler MessageHandler) {
	for i, reader := range c.readers {
		c.wg.Add(1)
		go func(workerID int, r *kafka.Reader) {
			defer c.wg.Done()
			c.consumeMessages(workerID, r, handler)
		}(i, reader)
	}
	zap.S().Infof("已启动 %d 个Kafka消费者工作线程", len(c.readers))
}

func (c *Consumer) consumeMessages(workerID int, reader *kafka.Reader, handler MessageHandler) {
	for {
		m, err := reader.ReadMessage(c.ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) || c.ctx.Err() != nil {
				return
			}
			zap.S().Warnf("消费者工作线程 #%d 读取消息失败: %v", workerID, err)
			time.Sleep(time.Second)
			continue
		}

		event, err := decodeEvent(m.Value)
		if err != nil {
			zap.S().Warnf("消费者工作线程 #%d 丢弃无法解析的消息 (分区=%d, 偏移量=%d): %v",
				workerID, m.Partition, m.Offset, err)
			continue
		}

		if err := handler(event); err != nil {
			zap.S().Errorf("消费者工作线程 #%d 处理事件 %s 失败: %v", workerID, event.EventID, err)
		}
	}
}

// Stop 停止消费
func (c *Consumer) Stop() error {
	c.cancel()
	c.wg.Wait()

	for i, reader := range c.readers {
		if err := reader.Close(); err != nil {
			zap.S().Warnf("关闭消费者 #%d 失败: %v", i, err)
		}
	}
	zap.S().Info("所有Kafka消费者工作线程已停止")
	return nil
}

func decodeEvent(data []byte) (*model.LedgerEvent, error) {
	var event model.LedgerEvent
	if err := json.Unmarshal(data, &event); err != nil {
		return nil, fmt.Errorf("解析账本事件失败: %w", err)
	}
	if event.EventID == "" || event.Type == "" {
		return nil, fmt.Errorf("账本事件缺少ID或类型")
	}
	return &event, nil
}
