package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/tracelog"
	"github.com/ogurasousui/codex-account-service/internal/platform/config"
	"github.com/ogurasousui/codex-account-service/internal/platform/logging"
)

const applicationName = "account-service"

// BuildPoolConfig は database 設定から pgxpool.Config を構築します。
// logger が指定された場合は警告以上のクエリログを出力します。
func BuildPoolConfig(cfg config.DatabaseConfig, logger logging.Logger) (*pgxpool.Config, error) {
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("postgres: parse config: %w", err)
	}

	if cfg.MaxOpenConns > 0 {
		poolCfg.MaxConns = int32(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		poolCfg.MinConns = int32(cfg.MaxIdleConns)
	}
	if cfg.ConnMaxLifetime > 0 {
		poolCfg.MaxConnLifetime = cfg.ConnMaxLifetime
	}
	if cfg.ConnMaxIdleTime > 0 {
		poolCfg.MaxConnIdleTime = cfg.ConnMaxIdleTime
	}

	if _, ok := poolCfg.ConnConfig.RuntimeParams["application_name"]; !ok {
		poolCfg.ConnConfig.RuntimeParams["application_name"] = applicationName
	}

	if logger != nil {
		poolCfg.ConnConfig.Tracer = &tracelog.TraceLog{
			Logger:   queryLogger{logger: logger.With("component", "pgx")},
			LogLevel: tracelog.LogLevelWarn,
		}
	}

	return poolCfg, nil
}

// NewPool は pgxpool.Pool を生成し疎通確認を行います。
func NewPool(ctx context.Context, cfg config.DatabaseConfig, logger logging.Logger) (*pgxpool.Pool, error) {
	poolCfg, err := BuildPoolConfig(cfg, logger)
	if err != nil {
		return nil, err
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("postgres: create pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres: ping: %w", err)
	}

	return pool, nil
}

// queryLogger は pgx のトレースログを logging.Logger へ転送します。
type queryLogger struct {
	logger logging.Logger
}

func (q queryLogger) Log(ctx context.Context, level tracelog.LogLevel, msg string, data map[string]any) {
	args := make([]any, 0, len(data)*2)
	for k, v := range data {
		// 引数には個人情報が含まれるため出力しません。
		if k == "args" {
			continue
		}
		args = append(args, k, v)
	}

	switch {
	case level <= tracelog.LogLevelError:
		q.logger.Error(ctx, msg, args...)
	case level == tracelog.LogLevelWarn:
		q.logger.Warn(ctx, msg, args...)
	case level == tracelog.LogLevelInfo:
		q.logger.Info(ctx, msg, args...)
	default:
		q.logger.Debug(ctx, msg, args...)
	}
}
