package config

import (
	"fmt"
	"net"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// トークン署名鍵を上書きする環境変数名です。
const TokenSecretEnv = "ACCOUNT_TOKEN_SECRET"

// データベースドライバーです。
const (
	DriverPostgres = "postgres"
	DriverMemory   = "memory"
)

// 確認メールの送信方式です。
const (
	NotifierLog   = "log"
	NotifierSES   = "ses"
	NotifierRedis = "redis"
)

// Config はアプリケーション全体の設定を表現します。
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Database DatabaseConfig `yaml:"database"`
	Security SecurityConfig `yaml:"security"`
	Notifier NotifierConfig `yaml:"notifier"`
	Logging  LoggingConfig  `yaml:"logging"`
}

// ServerConfig は HTTP および gRPC ヘルスチェックの待ち受けに関する設定です。
type ServerConfig struct {
	HTTPAddr           string        `yaml:"http_addr"`
	GRPCAddr           string        `yaml:"grpc_addr"`
	ShutdownTimeout    time.Duration `yaml:"-"`
	ShutdownTimeoutRaw string        `yaml:"shutdown_timeout"`
}

// DatabaseConfig は PostgreSQL 接続に関する設定です。
type DatabaseConfig struct {
	Driver             string        `yaml:"driver"`
	Host               string        `yaml:"host"`
	Port               int           `yaml:"port"`
	User               string        `yaml:"user"`
	Password           string        `yaml:"password"`
	Name               string        `yaml:"name"`
	SSLMode            string        `yaml:"ssl_mode"`
	MaxOpenConns       int           `yaml:"max_open_conns"`
	MaxIdleConns       int           `yaml:"max_idle_conns"`
	ConnMaxLifetime    time.Duration `yaml:"-"`
	ConnMaxIdleTime    time.Duration `yaml:"-"`
	ConnMaxLifetimeRaw string        `yaml:"conn_max_lifetime"`
	ConnMaxIdleTimeRaw string        `yaml:"conn_max_idle_time"`
}

// SecurityConfig はパスワードハッシュと確認用トークンに関する設定です。
type SecurityConfig struct {
	TokenSecret string        `yaml:"token_secret"`
	TokenTTL    time.Duration `yaml:"-"`
	TokenTTLRaw string        `yaml:"token_ttl"`
	BcryptCost  int           `yaml:"bcrypt_cost"`
}

// NotifierConfig は確認メールの送信に関する設定です。
type NotifierConfig struct {
	Kind      string      `yaml:"kind"`
	VerifyURL string      `yaml:"verify_url"`
	SES       SESConfig   `yaml:"ses"`
	Redis     RedisConfig `yaml:"redis"`
}

// SESConfig は Amazon SES に関する設定です。認証情報が空の場合は既定の認証チェーンを利用します。
type SESConfig struct {
	Region          string `yaml:"region"`
	Sender          string `yaml:"sender"`
	AccessKeyID     string `yaml:"access_key_id"`
	SecretAccessKey string `yaml:"secret_access_key"`
	Endpoint        string `yaml:"endpoint"`
}

// RedisConfig は Redis Streams への通知に関する設定です。
type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	Stream   string `yaml:"stream"`
}

// LoggingConfig はログ出力に関する設定です。
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Load は指定されたパスから設定ファイルを読み込みます。
func Load(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read file %s: %w", path, err)
	}

	var cfg Config
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return nil, fmt.Errorf("config: parse yaml: %w", err)
	}

	if secret := os.Getenv(TokenSecretEnv); secret != "" {
		cfg.Security.TokenSecret = secret
	}

	if err := cfg.validateAndNormalize(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func (c *Config) validateAndNormalize() error {
	if err := c.Server.validateAndNormalize(); err != nil {
		return err
	}
	if err := c.Database.validateAndNormalize(); err != nil {
		return err
	}
	if err := c.Security.validateAndNormalize(); err != nil {
		return err
	}
	if err := c.Notifier.validateAndNormalize(); err != nil {
		return err
	}
	c.Logging.normalize()
	return nil
}

func (s *ServerConfig) validateAndNormalize() error {
	if s.HTTPAddr == "" {
		return fmt.Errorf("config: server.http_addr must be set")
	}

	timeout, err := parseDurationAllowEmpty(s.ShutdownTimeoutRaw)
	if err != nil {
		return fmt.Errorf("config: server.shutdown_timeout: %w", err)
	}
	if timeout == 0 {
		timeout = 10 * time.Second
	}
	s.ShutdownTimeout = timeout

	return nil
}

func (d *DatabaseConfig) validateAndNormalize() error {
	d.Driver = strings.ToLower(strings.TrimSpace(d.Driver))
	switch d.Driver {
	case "":
		d.Driver = DriverPostgres
	case DriverPostgres, DriverMemory:
	default:
		return fmt.Errorf("config: database.driver %q is not supported", d.Driver)
	}

	if d.Driver == DriverMemory {
		return nil
	}

	if d.Host == "" {
		return fmt.Errorf("config: database.host must be set")
	}
	if d.Port == 0 {
		return fmt.Errorf("config: database.port must be set")
	}
	if d.User == "" {
		return fmt.Errorf("config: database.user must be set")
	}
	if d.Password == "" {
		return fmt.Errorf("config: database.password must be set")
	}
	if d.Name == "" {
		return fmt.Errorf("config: database.name must be set")
	}
	if d.SSLMode == "" {
		d.SSLMode = "disable"
	}

	lifetime, err := parseDurationAllowEmpty(d.ConnMaxLifetimeRaw)
	if err != nil {
		return fmt.Errorf("config: database.conn_max_lifetime: %w", err)
	}
	d.ConnMaxLifetime = lifetime

	idleTime, err := parseDurationAllowEmpty(d.ConnMaxIdleTimeRaw)
	if err != nil {
		return fmt.Errorf("config: database.conn_max_idle_time: %w", err)
	}
	d.ConnMaxIdleTime = idleTime

	return nil
}

func (s *SecurityConfig) validateAndNormalize() error {
	if s.TokenSecret == "" {
		return fmt.Errorf("config: security.token_secret must be set (or %s)", TokenSecretEnv)
	}

	ttl, err := parseDurationAllowEmpty(s.TokenTTLRaw)
	if err != nil {
		return fmt.Errorf("config: security.token_ttl: %w", err)
	}
	if ttl == 0 {
		ttl = 10 * 24 * time.Hour
	}
	s.TokenTTL = ttl

	if s.BcryptCost < 0 {
		return fmt.Errorf("config: security.bcrypt_cost must not be negative")
	}

	return nil
}

func (n *NotifierConfig) validateAndNormalize() error {
	n.Kind = strings.ToLower(strings.TrimSpace(n.Kind))
	if n.Kind == "" {
		n.Kind = NotifierLog
	}

	if n.VerifyURL == "" {
		return fmt.Errorf("config: notifier.verify_url must be set")
	}
	if u, err := url.Parse(n.VerifyURL); err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("config: notifier.verify_url %q must be an absolute URL", n.VerifyURL)
	}

	switch n.Kind {
	case NotifierLog:
	case NotifierSES:
		if n.SES.Region == "" {
			return fmt.Errorf("config: notifier.ses.region must be set")
		}
		if n.SES.Sender == "" {
			return fmt.Errorf("config: notifier.ses.sender must be set")
		}
		if (n.SES.AccessKeyID == "") != (n.SES.SecretAccessKey == "") {
			return fmt.Errorf("config: notifier.ses access_key_id and secret_access_key must be set together")
		}
	case NotifierRedis:
		if n.Redis.Addr == "" {
			return fmt.Errorf("config: notifier.redis.addr must be set")
		}
		if n.Redis.Stream == "" {
			n.Redis.Stream = "account-events"
		}
	default:
		return fmt.Errorf("config: notifier.kind %q is not supported", n.Kind)
	}

	return nil
}

func (l *LoggingConfig) normalize() {
	if l.Level == "" {
		l.Level = "info"
	}
	if l.Format == "" {
		l.Format = "text"
	}
}

func parseDurationAllowEmpty(raw string) (time.Duration, error) {
	if raw == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return 0, err
	}
	return d, nil
}

// DSN は pgx 用の接続文字列を返します。
func (d DatabaseConfig) DSN() string {
	u := url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(d.User, d.Password),
		Host:     net.JoinHostPort(d.Host, strconv.Itoa(d.Port)),
		Path:     "/" + d.Name,
		RawQuery: url.Values{"sslmode": []string{d.SSLMode}}.Encode(),
	}
	return u.String()
}
