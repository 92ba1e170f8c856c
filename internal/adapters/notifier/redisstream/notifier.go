// Package redisstream は確認要求イベントを Redis Streams へ発行する Notifier です。
// メール送信は購読側のワーカーが担当します。
package redisstream

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/ogurasousui/codex-account-service/internal/adapters/notifier"
	"github.com/ogurasousui/codex-account-service/internal/platform/config"
	"github.com/redis/go-redis/v9"
)

// EventVerificationRequested は確認メール送信要求のイベント種別です。
const EventVerificationRequested = "account.verification_requested"

type streamAdder interface {
	XAdd(ctx context.Context, a *redis.XAddArgs) *redis.StringCmd
}

// Event はストリームへ書き込むイベントのエンベロープです。
type Event struct {
	Type      string           `json:"type"`
	Timestamp time.Time        `json:"timestamp"`
	Data      VerificationData `json:"data"`
}

// VerificationData は確認メールの送信に必要な情報です。
type VerificationData struct {
	Email string `json:"email"`
	Token string `json:"token"`
	Link  string `json:"link"`
}

// Notifier は Redis Streams にイベントを追加します。
type Notifier struct {
	client    streamAdder
	stream    string
	verifyURL string
	now       func() time.Time
}

// New は Notifier を生成します。
func New(client streamAdder, stream, verifyURL string) *Notifier {
	return &Notifier{
		client:    client,
		stream:    stream,
		verifyURL: verifyURL,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// NewClient は設定から Redis クライアントを生成し疎通確認を行います。
func NewClient(ctx context.Context, cfg config.RedisConfig) (*redis.Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:         cfg.Addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := rdb.Ping(pingCtx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redisstream: ping: %w", err)
	}
	return rdb, nil
}

// SendVerification は確認要求イベントをストリームへ追加します。
func (n *Notifier) SendVerification(ctx context.Context, email, token string) error {
	link, err := notifier.VerificationLink(n.verifyURL, token)
	if err != nil {
		return err
	}

	payload, err := json.Marshal(Event{
		Type:      EventVerificationRequested,
		Timestamp: n.now(),
		Data:      VerificationData{Email: email, Token: token, Link: link},
	})
	if err != nil {
		return fmt.Errorf("redisstream: marshal event: %w", err)
	}

	args := &redis.XAddArgs{
		Stream: n.stream,
		Values: map[string]any{
			"event": payload,
		},
	}
	if _, err := n.client.XAdd(ctx, args).Result(); err != nil {
		return fmt.Errorf("redisstream: xadd: %w", err)
	}
	return nil
}
