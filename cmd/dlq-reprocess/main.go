// dlq-reprocess перечитывает dead letter queue и возвращает сообщения
// в рабочие topic-и. По умолчанию работает в режиме dry-run: показывает
// кандидатов на повтор, но ничего не публикует.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/IBM/sarama"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/bookflow/internal/messaging/kafka"
)

const (
	defaultScanLimit   = 100
	defaultIdleTimeout = 2 * time.Second
)

type replayConfig struct {
	brokers     []string
	sourceTopic string
	targetTopic string
	limit       int
	execute     bool
	idleTimeout time.Duration
}

// replayCandidate — восстановленное сообщение, готовое к повторной публикации.
type replayCandidate struct {
	topic string
	key   string
	value []byte
}

// consumerDLQRecord соответствует формату Consumer.sendToDLQ.
type consumerDLQRecord struct {
	OriginalTopic string `json:"original_topic"`
	OriginalKey   string `json:"original_key"`
	OriginalValue string `json:"original_value"`
}

// outboxDLQRecord соответствует формату Worker.publishToDLQ без обёртки.
type outboxDLQRecord struct {
	OutboxID      string          `json:"outbox_id"`
	AggregateType string          `json:"aggregate_type"`
	AggregateID   string          `json:"aggregate_id"`
	EventType     string          `json:"event_type"`
	Payload       json.RawMessage `json:"payload"`
}

// publisherEnvelope — обёртка OutboxTopicPublisher вокруг payload-а.
type publisherEnvelope struct {
	ID            string          `json:"id"`
	AggregateType string          `json:"aggregate_type"`
	AggregateID   string          `json:"aggregate_id"`
	EventType     string          `json:"event_type"`
	Payload       json.RawMessage `json:"payload"`
	PublishedAt   time.Time       `json:"published_at"`
}

type offsetClient interface {
	GetOffset(topic string, partition int32, time int64) (int64, error)
	Partitions(topic string) ([]int32, error)
	Close() error
}

type partitionConsumer interface {
	Messages() <-chan *sarama.ConsumerMessage
	Errors() <-chan *sarama.ConsumerError
	Close() error
}

type partitionConsumerSource interface {
	ConsumePartition(topic string, partition int32, offset int64) (partitionConsumer, error)
	Close() error
}

type replayProducer interface {
	SendMessage(msg *sarama.ProducerMessage) (partition int32, offset int64, err error)
	Close() error
}

type saramaConsumerAdapter struct {
	consumer sarama.Consumer
}

func (a saramaConsumerAdapter) ConsumePartition(topic string, partition int32, offset int64) (partitionConsumer, error) {
	pc, err := a.consumer.ConsumePartition(topic, partition, offset)
	if err != nil {
		return nil, err
	}
	return pc, nil
}

func (a saramaConsumerAdapter) Close() error {
	if a.consumer == nil {
		return nil
	}
	return a.consumer.Close()
}

// newReplayDependencies подменяется в тестах фейковыми реализациями.
var newReplayDependencies = func(cfg replayConfig) (offsetClient, partitionConsumerSource, replayProducer, error) {
	consumerConfig := sarama.NewConfig()
	consumerConfig.Consumer.Return.Errors = true

	client, err := sarama.NewClient(cfg.brokers, consumerConfig)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("create kafka client: %w", err)
	}

	rawConsumer, err := sarama.NewConsumerFromClient(client)
	if err != nil {
		_ = client.Close()
		return nil, nil, nil, fmt.Errorf("create kafka consumer: %w", err)
	}
	consumer := saramaConsumerAdapter{consumer: rawConsumer}

	if !cfg.execute {
		return client, consumer, nil, nil
	}

	producerConfig := sarama.NewConfig()
	producerConfig.Producer.RequiredAcks = sarama.WaitForAll
	producerConfig.Producer.Retry.Max = 5
	producerConfig.Producer.Return.Successes = true
	producerConfig.Producer.Compression = sarama.CompressionSnappy
	producerConfig.Producer.Idempotent = true
	producerConfig.Net.MaxOpenRequests = 1

	producer, err := sarama.NewSyncProducer(cfg.brokers, producerConfig)
	if err != nil {
		_ = consumer.Close()
		_ = client.Close()
		return nil, nil, nil, fmt.Errorf("create kafka producer: %w", err)
	}

	return client, consumer, producer, nil
}

func main() {
	log.SetFormatter(&log.TextFormatter{FullTimestamp: true})
	log.SetLevel(log.InfoLevel)

	cfg, err := readConfig()
	if err != nil {
		fail("%v", err)
	}

	if err := run(context.Background(), cfg); err != nil {
		fail("dlq replay failed: %v", err)
	}
}

func readConfig() (replayConfig, error) {
	var (
		brokersRaw string
		cfg        replayConfig
	)

	flag.StringVar(&brokersRaw, "brokers", "", "Kafka brokers as comma-separated list (fallback: BOOKFLOW_KAFKA_BROKERS)")
	flag.StringVar(&cfg.sourceTopic, "source-topic", kafka.TopicDeadLetterQueue, "DLQ source topic")
	flag.StringVar(&cfg.targetTopic, "target-topic", kafka.TopicOrderEvents, "fallback target topic for replay")
	flag.IntVar(&cfg.limit, "limit", defaultScanLimit, "max number of messages to scan")
	flag.BoolVar(&cfg.execute, "execute", false, "execute replay; default is dry-run")
	flag.DurationVar(&cfg.idleTimeout, "idle-timeout", defaultIdleTimeout, "idle timeout per partition")
	flag.Parse()

	if strings.TrimSpace(brokersRaw) == "" {
		brokersRaw = os.Getenv("BOOKFLOW_KAFKA_BROKERS")
	}

	cfg.brokers = parseBrokers(brokersRaw)
	if len(cfg.brokers) == 0 {
		return replayConfig{}, fmt.Errorf("kafka brokers are required (-brokers or BOOKFLOW_KAFKA_BROKERS)")
	}
	if strings.TrimSpace(cfg.sourceTopic) == "" {
		return replayConfig{}, fmt.Errorf("source-topic is required")
	}
	if strings.TrimSpace(cfg.targetTopic) == "" {
		return replayConfig{}, fmt.Errorf("target-topic is required")
	}
	if cfg.limit <= 0 {
		return replayConfig{}, fmt.Errorf("limit must be > 0")
	}
	if cfg.idleTimeout <= 0 {
		return replayConfig{}, fmt.Errorf("idle-timeout must be > 0")
	}

	return cfg, nil
}

func parseBrokers(raw string) []string {
	chunks := strings.Split(raw, ",")
	brokers := make([]string, 0, len(chunks))
	for _, chunk := range chunks {
		broker := strings.TrimSpace(chunk)
		if broker == "" {
			continue
		}
		brokers = append(brokers, broker)
	}
	return brokers
}

func run(ctx context.Context, cfg replayConfig) error {
	client, consumer, producer, err := newReplayDependencies(cfg)
	if err != nil {
		return err
	}
	defer func() {
		if producer != nil {
			_ = producer.Close()
		}
		if consumer != nil {
			_ = consumer.Close()
		}
		if client != nil {
			_ = client.Close()
		}
	}()

	r := &replayer{
		cfg:      cfg,
		client:   client,
		consumer: consumer,
		producer: producer,
	}
	return r.run(ctx)
}

type replayer struct {
	cfg      replayConfig
	client   offsetClient
	consumer partitionConsumerSource
	producer replayProducer

	processed int
	replayed  int
	skipped   int
}

func (r *replayer) run(ctx context.Context) error {
	if r.client == nil || r.consumer == nil {
		return fmt.Errorf("kafka client and consumer are required")
	}
	if r.cfg.execute && r.producer == nil {
		return fmt.Errorf("producer is required in execute mode")
	}

	mode := "dry-run"
	if r.cfg.execute {
		mode = "execute"
	}
	log.WithFields(log.Fields{
		"source_topic": r.cfg.sourceTopic,
		"target_topic": r.cfg.targetTopic,
		"limit":        r.cfg.limit,
		"mode":         mode,
	}).Info("starting dlq replay")

	partitions, err := r.client.Partitions(r.cfg.sourceTopic)
	if err != nil {
		return fmt.Errorf("get partitions for topic %s: %w", r.cfg.sourceTopic, err)
	}
	if len(partitions) == 0 {
		log.WithField("topic", r.cfg.sourceTopic).Warn("source topic has no partitions")
		return nil
	}
	sort.Slice(partitions, func(i, j int) bool { return partitions[i] < partitions[j] })

	for _, partition := range partitions {
		if r.processed >= r.cfg.limit {
			break
		}
		if err := r.processPartition(ctx, partition); err != nil {
			return err
		}
	}

	log.WithFields(log.Fields{
		"mode":      mode,
		"processed": r.processed,
		"replayed":  r.replayed,
		"skipped":   r.skipped,
	}).Info("dlq replay finished")

	return nil
}

func (r *replayer) processPartition(ctx context.Context, partition int32) error {
	oldest, err := r.client.GetOffset(r.cfg.sourceTopic, partition, sarama.OffsetOldest)
	if err != nil {
		return fmt.Errorf("get oldest offset for partition %d: %w", partition, err)
	}
	newest, err := r.client.GetOffset(r.cfg.sourceTopic, partition, sarama.OffsetNewest)
	if err != nil {
		return fmt.Errorf("get newest offset for partition %d: %w", partition, err)
	}
	if newest <= oldest {
		return nil
	}

	pc, err := r.consumer.ConsumePartition(r.cfg.sourceTopic, partition, oldest)
	if err != nil {
		return fmt.Errorf("consume partition %d: %w", partition, err)
	}
	defer func() { _ = pc.Close() }()

	idleTimer := time.NewTimer(r.cfg.idleTimeout)
	defer idleTimer.Stop()

	for r.processed < r.cfg.limit {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case consumeErr := <-pc.Errors():
			if consumeErr != nil {
				return fmt.Errorf("partition %d consumer error: %w", partition, consumeErr)
			}
		case msg, ok := <-pc.Messages():
			if !ok || msg == nil {
				return nil
			}

			if !idleTimer.Stop() {
				select {
				case <-idleTimer.C:
				default:
				}
			}
			idleTimer.Reset(r.cfg.idleTimeout)

			if msg.Offset >= newest {
				return nil
			}

			if err := r.handleMessage(msg); err != nil {
				return err
			}

			if msg.Offset+1 >= newest {
				return nil
			}
		case <-idleTimer.C:
			return nil
		}
	}

	return nil
}

func (r *replayer) handleMessage(msg *sarama.ConsumerMessage) error {
	r.processed++

	candidate, ok, err := decodeDLQMessage(msg.Value, r.cfg.targetTopic)
	if err != nil {
		r.skipped++
		log.WithError(err).WithFields(log.Fields{
			"partition": msg.Partition,
			"offset":    msg.Offset,
		}).Warn("skip unsupported dlq message")
		return nil
	}
	if !ok {
		r.skipped++
		return nil
	}

	if !r.cfg.execute {
		log.WithFields(log.Fields{
			"partition":    msg.Partition,
			"offset":       msg.Offset,
			"target_topic": candidate.topic,
			"key":          candidate.key,
		}).Info("dlq replay candidate")
		r.replayed++
		return nil
	}

	if err := r.publish(candidate); err != nil {
		return fmt.Errorf("publish replay message: %w", err)
	}
	r.replayed++
	return nil
}

func (r *replayer) publish(candidate replayCandidate) error {
	if r.producer == nil {
		return fmt.Errorf("producer is nil")
	}

	_, _, err := r.producer.SendMessage(&sarama.ProducerMessage{
		Topic:     candidate.topic,
		Key:       sarama.StringEncoder(candidate.key),
		Value:     sarama.ByteEncoder(candidate.value),
		Timestamp: time.Now().UTC(),
	})
	return err
}

// decodeDLQMessage восстанавливает исходное сообщение из записи DLQ.
// Поддерживаются два формата: запись consumer-а (original_topic/original_value)
// и запись outbox worker-а (обёртка publisher-а с outbox payload внутри).
func decodeDLQMessage(raw []byte, fallbackTopic string) (replayCandidate, bool, error) {
	var consumerRecord consumerDLQRecord
	if err := json.Unmarshal(raw, &consumerRecord); err == nil && consumerRecord.OriginalValue != "" {
		topic := strings.TrimSpace(consumerRecord.OriginalTopic)
		if topic == "" {
			topic = fallbackTopic
		}
		return replayCandidate{
			topic: topic,
			key:   consumerRecord.OriginalKey,
			value: []byte(consumerRecord.OriginalValue),
		}, true, nil
	}

	var envelope publisherEnvelope
	if err := json.Unmarshal(raw, &envelope); err != nil {
		return replayCandidate{}, false, nil
	}
	if len(envelope.Payload) == 0 {
		return replayCandidate{}, false, nil
	}

	var outboxRecord outboxDLQRecord
	if err := json.Unmarshal(envelope.Payload, &outboxRecord); err != nil {
		return replayCandidate{}, false, fmt.Errorf("decode outbox dlq payload: %w", err)
	}
	if len(outboxRecord.Payload) == 0 {
		return replayCandidate{}, false, fmt.Errorf("outbox dlq record does not contain original event payload")
	}

	replay := publisherEnvelope{
		ID:            firstNonEmpty(outboxRecord.OutboxID, envelope.ID),
		AggregateType: firstNonEmpty(outboxRecord.AggregateType, envelope.AggregateType),
		AggregateID:   firstNonEmpty(outboxRecord.AggregateID, envelope.AggregateID),
		EventType:     firstNonEmpty(outboxRecord.EventType, envelope.EventType),
		Payload:       outboxRecord.Payload,
		PublishedAt:   time.Now().UTC(),
	}
	encoded, err := json.Marshal(replay)
	if err != nil {
		return replayCandidate{}, false, fmt.Errorf("encode replay envelope: %w", err)
	}

	topic := fallbackTopic
	if replay.AggregateType == "notification" {
		topic = kafka.TopicNotificationEvents
	}

	key := replay.AggregateID
	if key == "" {
		key = replay.ID
	}

	return replayCandidate{topic: topic, key: key, value: encoded}, true, nil
}

func firstNonEmpty(values ...string) string {
	for _, value := range values {
		if strings.TrimSpace(value) != "" {
			return value
		}
	}
	return ""
}

func fail(format string, args ...any) {
	_, _ = fmt.Fprintf(os.Stderr, format+"\n", args...)
	os.Exit(1)
}
