package app

import (
	"context"
	"errors"
	"strings"

	"github.com/IBM/sarama"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/bookflow/internal/domain"
	"github.com/vladislavdragonenkov/bookflow/internal/messaging/kafka"
	"github.com/vladislavdragonenkov/bookflow/internal/service/workflow"
)

// initKafkaProducer создаёт producer, если указаны brokers.
// Возвращает nil, nil при пустом списке.
func initKafkaProducer(brokers string, logger *log.Entry) (*kafka.Producer, error) {
	if brokers == "" {
		return nil, nil
	}

	brokerList := strings.Split(brokers, ",")
	producer, err := kafka.NewProducer(brokerList)
	if err != nil {
		return nil, err
	}

	logger.WithField("brokers", brokerList).Info("kafka producer initialized")
	return producer, nil
}

// initPaymentConsumer подписывает workflow-движок на события платёжного
// провайдера: capture превращается в ProcessPayment, decline — в FailOrder.
func initPaymentConsumer(
	cfg Config,
	engine *workflow.Engine,
	dlqProducer *kafka.Producer,
	logger *log.Entry,
) (*kafka.Consumer, error) {
	if cfg.KafkaBrokers == "" {
		return nil, nil
	}

	brokerList := strings.Split(cfg.KafkaBrokers, ",")
	handler := paymentEventHandler(engine, logger)

	consumer, err := kafka.NewConsumerWithDLQ(
		brokerList,
		cfg.KafkaConsumerGroup,
		[]string{kafka.TopicPaymentEvents},
		handler,
		dlqProducer,
		3,
	)
	if err != nil {
		return nil, err
	}

	logger.WithFields(log.Fields{
		"group": cfg.KafkaConsumerGroup,
		"topic": kafka.TopicPaymentEvents,
	}).Info("payment consumer initialized")
	return consumer, nil
}

// paymentEventHandler разбирает событие провайдера и применяет переход.
// Guard-отказы и повторные capture не считаются ошибкой доставки:
// провайдер повторяет webhook-и, а переход уже зафиксирован.
func paymentEventHandler(engine *workflow.Engine, logger *log.Entry) kafka.MessageHandler {
	return func(ctx context.Context, message *sarama.ConsumerMessage) error {
		event, err := kafka.ParsePaymentEvent(message)
		if err != nil {
			return err
		}

		switch event.EventType {
		case kafka.EventTypePaymentCaptured:
			_, err = engine.ProcessPayment(ctx, event.OrderID)
		case kafka.EventTypePaymentDeclined:
			_, err = engine.FailOrder(ctx, event.OrderID, "payment declined by provider")
		default:
			logger.WithField("event_type", event.EventType).Debug("ignoring unknown payment event")
			return nil
		}

		if err != nil && domain.IsGuardRejection(err) {
			logger.WithError(err).WithField("order_id", event.OrderID).Debug("payment event skipped by guard")
			return nil
		}
		if err != nil && errors.Is(err, domain.ErrOrderNotFound) {
			logger.WithError(err).WithField("order_id", event.OrderID).Warn("payment event for unknown order")
			return nil
		}
		return err
	}
}

// closeKafkaProducer закрывает producer, если он настроен.
func closeKafkaProducer(producer *kafka.Producer, logger *log.Entry) {
	if producer == nil {
		return
	}
	if err := producer.Close(); err != nil {
		logger.WithError(err).Warn("failed to close kafka producer")
		return
	}
	logger.Info("kafka producer closed")
}
