package classifier

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	mqttcommon "github.com/chamuda-arangalla/EDUGuard/internal/mqtt"
	"github.com/chamuda-arangalla/EDUGuard/internal/models"

	"go.uber.org/zap"
)

// Subscriber MQTT 订阅能力（便于单元测试替换真实客户端）
type Subscriber interface {
	Subscribe(topic string, qos byte, handler mqttcommon.MessageHandler) error
	Unsubscribe(topics ...string) error
	IsConnected() bool
}

// MQTTSource 基于 MQTT 的分类事件源
//
// 外部检测进程发布到主题 eduguard/{type}/{user}/predictions，
// 载荷为 {"label": "...", "metric": 12.3, "timestamp": 毫秒}。
type MQTTSource struct {
	client  Subscriber
	cfg     models.MonitorTypeConfig
	enabled bool // 该监控类型的模型是否可用
	qos     byte
	logger  *zap.Logger
}

// NewMQTTSource 创建 MQTT 事件源
func NewMQTTSource(client Subscriber, cfg models.MonitorTypeConfig, enabled bool, qos byte, logger *zap.Logger) *MQTTSource {
	return &MQTTSource{
		client:  client,
		cfg:     cfg,
		enabled: enabled,
		qos:     qos,
		logger:  logger,
	}
}

// Open 订阅该 (类型, 用户) 的预测主题
//
// 模型未启用或 broker 未连接时返回 ErrModelUnavailable。
func (s *MQTTSource) Open(ctx context.Context, userID string) (Stream, error) {
	if !s.enabled {
		return nil, fmt.Errorf("%w: model disabled for %s", ErrModelUnavailable, s.cfg.Type)
	}
	if s.client == nil || !s.client.IsConnected() {
		return nil, fmt.Errorf("%w: mqtt broker not connected", ErrModelUnavailable)
	}

	topic := fmt.Sprintf("eduguard/%s/%s/predictions", s.cfg.Type, userID)
	stream := &mqttStream{
		topic:  topic,
		client: s.client,
		events: make(chan models.ClassificationEvent, 64),
		done:   make(chan struct{}),
	}

	handler := func(msgTopic string, payload []byte) error {
		ev, err := parsePrediction(s.cfg, userID, payload)
		if err != nil {
			s.logger.Warn("Dropping malformed prediction",
				zap.String("topic", msgTopic),
				zap.Error(err),
			)
			return err
		}
		stream.deliver(ev)
		return nil
	}

	if err := s.client.Subscribe(topic, s.qos, handler); err != nil {
		return nil, fmt.Errorf("failed to subscribe to %s: %w", topic, err)
	}

	s.logger.Info("Classifier stream opened",
		zap.String("monitor_type", string(s.cfg.Type)),
		zap.String("topic", topic),
	)

	return stream, nil
}

// mqttPrediction MQTT 预测消息载荷
type mqttPrediction struct {
	Label     string   `json:"label"`
	Metric    *float64 `json:"metric,omitempty"`
	Timestamp int64    `json:"timestamp,omitempty"` // Unix 毫秒，缺省为收到时刻
}

// parsePrediction 解析并校验预测载荷
func parsePrediction(cfg models.MonitorTypeConfig, userID string, payload []byte) (models.ClassificationEvent, error) {
	var msg mqttPrediction
	if err := json.Unmarshal(payload, &msg); err != nil {
		return models.ClassificationEvent{}, fmt.Errorf("failed to unmarshal prediction: %w", err)
	}

	// 标签必须属于该类型的词汇表，否则窗口百分比不再满足总和 100 的约束
	known := false
	for _, l := range cfg.Labels {
		if l == msg.Label {
			known = true
			break
		}
	}
	if !known {
		return models.ClassificationEvent{}, fmt.Errorf("unknown label %q for %s", msg.Label, cfg.Type)
	}

	ts := time.Now()
	if msg.Timestamp > 0 {
		ts = time.UnixMilli(msg.Timestamp)
	}

	return models.ClassificationEvent{
		MonitorType: cfg.Type,
		UserID:      userID,
		Timestamp:   ts,
		Label:       msg.Label,
		Metric:      msg.Metric,
	}, nil
}

type mqttStream struct {
	topic  string
	client Subscriber
	events chan models.ClassificationEvent

	closeOnce sync.Once
	done      chan struct{}
}

// deliver 投递事件；流已关闭或缓冲满时丢弃（消费侧慢不应阻塞 MQTT 回调）
func (s *mqttStream) deliver(ev models.ClassificationEvent) {
	select {
	case <-s.done:
	case s.events <- ev:
	default:
	}
}

// Next 阻塞等待下一个事件
func (s *mqttStream) Next(ctx context.Context) (models.ClassificationEvent, error) {
	select {
	case <-ctx.Done():
		return models.ClassificationEvent{}, ctx.Err()
	case <-s.done:
		return models.ClassificationEvent{}, ErrStreamClosed
	case ev := <-s.events:
		return ev, nil
	}
}

// Close 取消订阅并关闭流
func (s *mqttStream) Close() error {
	var err error
	s.closeOnce.Do(func() {
		close(s.done)
		err = s.client.Unsubscribe(s.topic)
	})
	return err
}
