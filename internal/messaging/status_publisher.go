package messaging

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"campaign-server/internal/models"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"
)

// GenerationStatusEvent - структура сообщения о смене статуса генерации.
// Потребляется сервисами доставки уведомлений (вне этого репозитория).
type GenerationStatusEvent struct {
	SubjectID  uuid.UUID               `json:"subject_id"`
	Kind       models.GenerationKind   `json:"kind"`
	Status     models.GenerationStatus `json:"status"`
	Error      *string                 `json:"error,omitempty"`
	OccurredAt time.Time               `json:"occurred_at"`
}

// StatusEventPublisher определяет интерфейс публикации событий смены статуса.
type StatusEventPublisher interface {
	PublishStatusChanged(ctx context.Context, event GenerationStatusEvent) error
}

// --- Реализация для RabbitMQ ---
type rabbitMQStatusPublisher struct {
	conn      *amqp.Connection
	channel   *amqp.Channel
	queueName string
	logger    *zap.Logger
}

// NewRabbitMQStatusPublisher создает новый экземпляр паблишера.
func NewRabbitMQStatusPublisher(conn *amqp.Connection, queueName string, logger *zap.Logger) (StatusEventPublisher, error) {
	ch, err := conn.Channel()
	if err != nil {
		return nil, fmt.Errorf("status publisher: не удалось открыть канал: %w", err)
	}

	// Объявляем очередь здесь, чтобы убедиться, что она существует.
	// Параметры должны совпадать с консьюмером (durable=true).
	_, err = ch.QueueDeclare(
		queueName,
		true,  // durable
		false, // delete when unused
		false, // exclusive
		false, // no-wait
		nil,   // arguments
	)
	if err != nil {
		ch.Close()
		return nil, fmt.Errorf("status publisher: не удалось объявить очередь '%s': %w", queueName, err)
	}

	logger.Info("RabbitMQStatusPublisher инициализирован", zap.String("queue", queueName))
	return &rabbitMQStatusPublisher{
		conn:      conn,
		channel:   ch,
		queueName: queueName,
		logger:    logger.Named("status_publisher"),
	}, nil
}

// PublishStatusChanged публикует событие смены статуса генерации.
func (p *rabbitMQStatusPublisher) PublishStatusChanged(ctx context.Context, event GenerationStatusEvent) error {
	if p.channel == nil {
		p.logger.Error("Канал RabbitMQ не инициализирован (nil)")
		return errors.New("канал RabbitMQ не инициализирован")
	}

	body, err := json.Marshal(event)
	if err != nil {
		p.logger.Error("Ошибка маршалинга GenerationStatusEvent",
			zap.String("subject_id", event.SubjectID.String()),
			zap.Error(err))
		return fmt.Errorf("ошибка подготовки события смены статуса: %w", err)
	}

	// Таймаут на публикацию
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	err = p.channel.PublishWithContext(ctx,
		"",          // exchange (используем default)
		p.queueName, // routing key (имя очереди)
		false,       // mandatory
		false,       // immediate
		amqp.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp.Persistent,
			Body:         body,
			Timestamp:    time.Now(),
			AppId:        "campaign-server",
		},
	)
	if err != nil {
		p.logger.Error("Ошибка публикации события в очередь",
			zap.String("queue", p.queueName),
			zap.String("subject_id", event.SubjectID.String()),
			zap.Error(err))
		return fmt.Errorf("ошибка публикации в очередь %s: %w", p.queueName, err)
	}

	p.logger.Debug("Событие смены статуса опубликовано",
		zap.String("queue", p.queueName),
		zap.String("subject_id", event.SubjectID.String()),
		zap.String("status", string(event.Status)),
	)
	return nil
}

// --- Nop реализация ---

// nopStatusPublisher используется, когда RabbitMQ не сконфигурирован.
type nopStatusPublisher struct{}

// NewNopStatusPublisher возвращает паблишер, который ничего не делает.
func NewNopStatusPublisher() StatusEventPublisher {
	return nopStatusPublisher{}
}

func (nopStatusPublisher) PublishStatusChanged(context.Context, GenerationStatusEvent) error {
	return nil
}
