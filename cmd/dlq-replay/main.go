// Команда dlq-replay возвращает события заказов из DLQ-топика обратно в основной топик.
// По умолчанию работает в режиме dry-run и только печатает кандидатов.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"slices"
	"strings"
	"syscall"
	"time"

	"github.com/IBM/sarama"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/furniture-store/internal/messaging/kafka"
	"github.com/vladislavdragonenkov/furniture-store/internal/service/outbox"
)

const (
	defaultReplayLimit = 100
	defaultIdleTimeout = 2 * time.Second
	envKafkaBrokers    = "FURNITURE_KAFKA_BROKERS"
)

type options struct {
	brokers     []string
	sourceTopic string
	targetTopic string
	limit       int
	execute     bool
	fromNewest  bool
	idleTimeout time.Duration
}

type replayMessage struct {
	key       string
	eventType string
	reason    string
	value     []byte
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

type partitionSource interface {
	ConsumePartition(topic string, partition int32, offset int64) (partitionConsumer, error)
	Close() error
}

type replayProducer interface {
	SendMessage(msg *sarama.ProducerMessage) (partition int32, offset int64, err error)
	Close() error
}

type saramaConsumer struct {
	consumer sarama.Consumer
}

func (c saramaConsumer) ConsumePartition(topic string, partition int32, offset int64) (partitionConsumer, error) {
	pc, err := c.consumer.ConsumePartition(topic, partition, offset)
	if err != nil {
		return nil, err
	}
	return pc, nil
}

func (c saramaConsumer) Close() error { return c.consumer.Close() }

type dependencies struct {
	client   offsetClient
	consumer partitionSource
	producer replayProducer
}

func (d dependencies) close() {
	if d.producer != nil {
		_ = d.producer.Close()
	}
	if d.consumer != nil {
		_ = d.consumer.Close()
	}
	if d.client != nil {
		_ = d.client.Close()
	}
}

var openDependencies = func(opts options) (dependencies, error) {
	cfg := sarama.NewConfig()
	cfg.ClientID = "furniture-dlq-replay"
	cfg.Consumer.Return.Errors = true
	cfg.Producer.RequiredAcks = sarama.WaitForAll
	cfg.Producer.Retry.Max = 5
	cfg.Producer.Return.Successes = true
	cfg.Producer.Compression = sarama.CompressionSnappy
	cfg.Producer.Idempotent = true
	cfg.Net.MaxOpenRequests = 1

	client, err := sarama.NewClient(opts.brokers, cfg)
	if err != nil {
		return dependencies{}, fmt.Errorf("create kafka client: %w", err)
	}
	consumer, err := sarama.NewConsumerFromClient(client)
	if err != nil {
		_ = client.Close()
		return dependencies{}, fmt.Errorf("create kafka consumer: %w", err)
	}
	deps := dependencies{client: client, consumer: saramaConsumer{consumer: consumer}}
	if !opts.execute {
		return deps, nil
	}

	producer, err := sarama.NewSyncProducerFromClient(client)
	if err != nil {
		deps.close()
		return dependencies{}, fmt.Errorf("create kafka producer: %w", err)
	}
	deps.producer = producer
	return deps, nil
}

func main() {
	log.SetFormatter(&log.TextFormatter{FullTimestamp: true})

	opts, err := parseOptions(os.Args[1:], os.Getenv)
	if err != nil {
		fail("%v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, opts); err != nil {
		fail("dlq replay failed: %v", err)
	}
}

// parseOptions разбирает флаги; брокеры берутся из окружения, если -brokers не задан.
func parseOptions(args []string, getenv func(string) string) (options, error) {
	var (
		brokersRaw string
		opts       options
	)

	fs := flag.NewFlagSet("dlq-replay", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	fs.StringVar(&brokersRaw, "brokers", "", "comma-separated Kafka brokers (fallback: "+envKafkaBrokers+")")
	fs.StringVar(&opts.sourceTopic, "source-topic", kafka.TopicDeadLetterQueue, "DLQ topic to scan")
	fs.StringVar(&opts.targetTopic, "target-topic", kafka.TopicOrderEvents, "topic to replay into")
	fs.IntVar(&opts.limit, "limit", defaultReplayLimit, "max number of messages to scan")
	fs.BoolVar(&opts.execute, "execute", false, "publish replayed events; default is dry-run")
	fs.BoolVar(&opts.fromNewest, "from-newest", false, "scan the latest messages of each partition")
	fs.DurationVar(&opts.idleTimeout, "idle-timeout", defaultIdleTimeout, "stop reading a partition after this idle period")
	if err := fs.Parse(args); err != nil {
		return options{}, err
	}

	if strings.TrimSpace(brokersRaw) == "" {
		brokersRaw = getenv(envKafkaBrokers)
	}
	opts.brokers = parseBrokers(brokersRaw)
	opts.sourceTopic = strings.TrimSpace(opts.sourceTopic)
	opts.targetTopic = strings.TrimSpace(opts.targetTopic)

	var errs []error
	if len(opts.brokers) == 0 {
		errs = append(errs, fmt.Errorf("kafka brokers are required (-brokers or %s)", envKafkaBrokers))
	}
	if opts.sourceTopic == "" {
		errs = append(errs, errors.New("source-topic is required"))
	}
	if opts.targetTopic == "" {
		errs = append(errs, errors.New("target-topic is required"))
	}
	if opts.sourceTopic != "" && opts.sourceTopic == opts.targetTopic {
		errs = append(errs, errors.New("source-topic and target-topic must differ"))
	}
	if opts.limit <= 0 {
		errs = append(errs, errors.New("limit must be > 0"))
	}
	if opts.idleTimeout <= 0 {
		errs = append(errs, errors.New("idle-timeout must be > 0"))
	}
	if err := errors.Join(errs...); err != nil {
		return options{}, err
	}
	return opts, nil
}

func parseBrokers(raw string) []string {
	var brokers []string
	for _, chunk := range strings.Split(raw, ",") {
		if broker := strings.TrimSpace(chunk); broker != "" {
			brokers = append(brokers, broker)
		}
	}
	return brokers
}

type replayStats struct {
	processed int
	replayed  int
	skipped   int
}

func (s *replayStats) add(other replayStats) {
	s.processed += other.processed
	s.replayed += other.replayed
	s.skipped += other.skipped
}

func run(ctx context.Context, opts options) error {
	log.WithFields(log.Fields{
		"source_topic": opts.sourceTopic,
		"target_topic": opts.targetTopic,
		"limit":        opts.limit,
		"execute":      opts.execute,
	}).Info("starting dlq replay")

	deps, err := openDependencies(opts)
	if err != nil {
		return err
	}
	defer deps.close()

	stats, err := replay(ctx, opts, deps)
	if err != nil {
		return err
	}

	mode := "dry-run"
	if opts.execute {
		mode = "execute"
	}
	log.WithFields(log.Fields{
		"mode":      mode,
		"processed": stats.processed,
		"replayed":  stats.replayed,
		"skipped":   stats.skipped,
	}).Info("dlq replay finished")
	return nil
}

func replay(ctx context.Context, opts options, deps dependencies) (replayStats, error) {
	var total replayStats
	if deps.client == nil || deps.consumer == nil {
		return total, errors.New("kafka client and consumer are required")
	}
	if opts.execute && deps.producer == nil {
		return total, errors.New("producer is required in execute mode")
	}

	partitions, err := deps.client.Partitions(opts.sourceTopic)
	if err != nil {
		return total, fmt.Errorf("list partitions of %s: %w", opts.sourceTopic, err)
	}
	if len(partitions) == 0 {
		log.WithField("topic", opts.sourceTopic).Warn("source topic has no partitions")
		return total, nil
	}
	slices.Sort(partitions)

	for _, partition := range partitions {
		remaining := opts.limit - total.processed
		if remaining <= 0 {
			break
		}
		stats, err := replayPartition(ctx, opts, deps, partition, remaining)
		total.add(stats)
		if err != nil {
			return total, err
		}
	}
	return total, nil
}

// startOffset возвращает смещение начала чтения и смещение, на котором чтение заканчивается.
func startOffset(client offsetClient, opts options, partition int32, limit int) (int64, int64, error) {
	oldest, err := client.GetOffset(opts.sourceTopic, partition, sarama.OffsetOldest)
	if err != nil {
		return 0, 0, fmt.Errorf("get oldest offset of partition %d: %w", partition, err)
	}
	newest, err := client.GetOffset(opts.sourceTopic, partition, sarama.OffsetNewest)
	if err != nil {
		return 0, 0, fmt.Errorf("get newest offset of partition %d: %w", partition, err)
	}
	start := oldest
	if opts.fromNewest {
		start = max(newest-int64(limit), oldest)
	}
	return start, newest, nil
}

func replayPartition(ctx context.Context, opts options, deps dependencies, partition int32, limit int) (replayStats, error) {
	var stats replayStats

	start, end, err := startOffset(deps.client, opts, partition, limit)
	if err != nil {
		return stats, err
	}
	if end <= start {
		return stats, nil
	}

	pc, err := deps.consumer.ConsumePartition(opts.sourceTopic, partition, start)
	if err != nil {
		return stats, fmt.Errorf("consume partition %d: %w", partition, err)
	}
	defer func() { _ = pc.Close() }()

	idle := time.NewTimer(opts.idleTimeout)
	defer idle.Stop()

	errs := pc.Errors()
	for stats.processed < limit {
		select {
		case <-ctx.Done():
			return stats, ctx.Err()
		case <-idle.C:
			return stats, nil
		case cerr, ok := <-errs:
			if !ok {
				errs = nil
				continue
			}
			if cerr != nil {
				return stats, fmt.Errorf("partition %d: %w", partition, cerr)
			}
		case msg, ok := <-pc.Messages():
			if !ok || msg == nil || msg.Offset >= end {
				return stats, nil
			}
			idle.Reset(opts.idleTimeout)
			stats.processed++

			entry := log.WithFields(log.Fields{"partition": msg.Partition, "offset": msg.Offset})
			candidate, err := decodeDLQMessage(msg.Value)
			if err != nil {
				stats.skipped++
				entry.WithError(err).Warn("skip unsupported dlq message")
				continue
			}

			if opts.execute {
				if err := publishReplay(deps.producer, opts.targetTopic, candidate); err != nil {
					return stats, fmt.Errorf("publish replay of offset %d: %w", msg.Offset, err)
				}
			} else {
				entry.WithFields(log.Fields{
					"order_id":   candidate.key,
					"event_type": candidate.eventType,
					"reason":     candidate.reason,
				}).Info("dlq replay candidate")
			}
			stats.replayed++

			if msg.Offset+1 >= end {
				return stats, nil
			}
		}
	}
	return stats, nil
}

// decodeDLQMessage разворачивает DLQ-конверт в исходное событие заказа.
func decodeDLQMessage(value []byte) (replayMessage, error) {
	var envelope kafka.OrderEvent
	if err := json.Unmarshal(value, &envelope); err != nil {
		return replayMessage{}, fmt.Errorf("decode envelope: %w", err)
	}
	if len(envelope.Payload) == 0 || string(envelope.Payload) == "null" {
		return replayMessage{}, errors.New("envelope has no dlq record")
	}

	var record outbox.DeadLetter
	if err := json.Unmarshal(envelope.Payload, &record); err != nil {
		return replayMessage{}, fmt.Errorf("decode dlq record: %w", err)
	}
	if len(record.Payload) == 0 {
		return replayMessage{}, errors.New("dlq record has no original payload")
	}

	original := kafka.OrderEvent{
		ID:            firstNonEmpty(record.OutboxID, envelope.ID),
		EventType:     kafka.EventType(firstNonEmpty(record.EventType, string(envelope.EventType))),
		AggregateType: firstNonEmpty(record.AggregateType, envelope.AggregateType),
		OrderID:       firstNonEmpty(record.AggregateID, envelope.OrderID),
		SchemaVersion: kafka.SchemaVersion,
		Payload:       record.Payload,
		PublishedAt:   time.Now().UTC(),
	}
	encoded, err := json.Marshal(original)
	if err != nil {
		return replayMessage{}, fmt.Errorf("encode replay event: %w", err)
	}

	return replayMessage{
		key:       firstNonEmpty(original.OrderID, original.ID),
		eventType: string(original.EventType),
		reason:    record.PublishError,
		value:     encoded,
	}, nil
}

func publishReplay(producer replayProducer, topic string, msg replayMessage) error {
	if producer == nil {
		return errors.New("producer is nil")
	}
	_, _, err := producer.SendMessage(&sarama.ProducerMessage{
		Topic: topic,
		Key:   sarama.StringEncoder(msg.key),
		Value: sarama.ByteEncoder(msg.value),
		Headers: []sarama.RecordHeader{
			{Key: []byte(kafka.HeaderEventType), Value: []byte(msg.eventType)},
			{Key: []byte(kafka.HeaderOriginalTopic), Value: []byte(topic)},
		},
		Timestamp: time.Now().UTC(),
	})
	return err
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
