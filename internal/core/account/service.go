package account

import (
	"context"
	"errors"
	"fmt"
	"math"
	"net/mail"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/ogurasousui/codex-account-service/internal/platform/logging"
)

// Clock は現在時刻を提供します。
type Clock interface {
	Now() time.Time
}

type realClock struct{}

func (realClock) Now() time.Time {
	return time.Now().UTC()
}

// TransactionManager はトランザクション制御の抽象化です。
type TransactionManager interface {
	WithinReadOnly(ctx context.Context, fn func(context.Context) error) error
	WithinReadWrite(ctx context.Context, fn func(context.Context) error) error
}

type noopTransactionManager struct{}

func (noopTransactionManager) WithinReadOnly(ctx context.Context, fn func(context.Context) error) error {
	if fn == nil {
		return nil
	}
	return fn(ctx)
}

func (noopTransactionManager) WithinReadWrite(ctx context.Context, fn func(context.Context) error) error {
	if fn == nil {
		return nil
	}
	return fn(ctx)
}

// PasswordHasher はパスワードの一方向ハッシュを計算します。
type PasswordHasher interface {
	Hash(plaintext string) (string, error)
}

// TokenIssuer は公開 ID とメールアドレス確認用トークンを発行します。
type TokenIssuer interface {
	NewID(length int) (string, error)
	NewVerificationToken(accountID string) (string, error)
	IsExpired(token string) bool
}

// Notifier はメールアドレス確認用のメッセージを送信します。
type Notifier interface {
	SendVerification(ctx context.Context, email, token string) error
}

// Recorder はアカウントに関するイベントを計測します。
type Recorder interface {
	RecordEvent(event string)
}

type noopRecorder struct{}

func (noopRecorder) RecordEvent(string) {}

// 計測イベント名です。
const (
	EventAccountCreated      = "account_created"
	EventAccountUpdated      = "account_updated"
	EventAccountDeleted      = "account_deleted"
	EventEmailVerified       = "email_verified"
	EventVerificationUnknown = "verification_unknown_token"
	EventVerificationExpired = "verification_expired_token"
	EventNotificationFailed  = "notification_failed"
	EventNotificationSent    = "notification_sent"
)

const (
	publicIDLength   = 30
	maxListPageSize  = 200
	maxNameLength    = 50
	maxFieldLength   = 120
	maxPasswordBytes = 72
)

// Service はアカウントに関するユースケースをまとめます。
type Service struct {
	repo     Repository
	hasher   PasswordHasher
	tokens   TokenIssuer
	notifier Notifier
	clock    Clock
	tx       TransactionManager
	logger   logging.Logger
	recorder Recorder
}

// UseCase はアカウントユースケースの公開インターフェースです。
type UseCase interface {
	CreateAccount(ctx context.Context, in CreateAccountInput) (*View, error)
	UpdateAccount(ctx context.Context, in UpdateAccountInput) (*View, error)
	DeleteAccount(ctx context.Context, in DeleteAccountInput) error
	GetAccount(ctx context.Context, in GetAccountInput) (*View, error)
	GetAccountByEmail(ctx context.Context, email string) (*View, error)
	ListAccounts(ctx context.Context, in ListAccountsInput) ([]*View, error)
	VerifyEmailToken(ctx context.Context, token string) (bool, error)
	LoadPrincipal(ctx context.Context, email string) (*Principal, error)
}

// Option は Service の任意設定です。
type Option func(*Service)

// WithClock は時刻の取得元を差し替えます。
func WithClock(clock Clock) Option {
	return func(s *Service) {
		if clock != nil {
			s.clock = clock
		}
	}
}

// WithTransactionManager はトランザクション制御を設定します。
func WithTransactionManager(tx TransactionManager) Option {
	return func(s *Service) {
		if tx != nil {
			s.tx = tx
		}
	}
}

// WithLogger はロガーを設定します。
func WithLogger(logger logging.Logger) Option {
	return func(s *Service) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithRecorder はイベント計測先を設定します。
func WithRecorder(recorder Recorder) Option {
	return func(s *Service) {
		if recorder != nil {
			s.recorder = recorder
		}
	}
}

// NewService は Service を生成します。
func NewService(repo Repository, hasher PasswordHasher, tokens TokenIssuer, notifier Notifier, opts ...Option) *Service {
	s := &Service{
		repo:     repo,
		hasher:   hasher,
		tokens:   tokens,
		notifier: notifier,
		clock:    realClock{},
		tx:       noopTransactionManager{},
		logger:   logging.Nop(),
		recorder: noopRecorder{},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// CreateAccountInput はアカウント作成時の入力です。
type CreateAccountInput struct {
	Email     string
	Password  string
	FirstName string
	LastName  string
	Addresses []AddressInput
}

// AddressInput は住所作成時の入力です。
type AddressInput struct {
	City       string
	Country    string
	StreetName string
	PostalCode string
	Type       string
}

// UpdateAccountInput はアカウント更新時の入力です。nil の項目は変更しません。
type UpdateAccountInput struct {
	AccountID string
	FirstName *string
	LastName  *string
}

// DeleteAccountInput はアカウント削除時の入力です。
type DeleteAccountInput struct {
	AccountID string
}

// GetAccountInput はアカウント取得時の入力です。
type GetAccountInput struct {
	AccountID string
}

// ListAccountsInput は一覧取得時の入力です。PageIndex は 0 始まりです。
type ListAccountsInput struct {
	PageIndex int
	PageSize  int
}

// CreateAccount は新しいアカウントを作成し、確認メールを送信します。
// 確認メールの送信失敗はアカウント作成を取り消しません。
func (s *Service) CreateAccount(ctx context.Context, in CreateAccountInput) (*View, error) {
	email, err := normalizeEmail(in.Email)
	if err != nil {
		return nil, err
	}

	if err := validatePassword(in.Password); err != nil {
		return nil, err
	}

	firstName, err := normalizeName(in.FirstName)
	if err != nil {
		return nil, fmt.Errorf("first name: %w", err)
	}

	lastName, err := normalizeName(in.LastName)
	if err != nil {
		return nil, fmt.Errorf("last name: %w", err)
	}

	accountID, err := s.tokens.NewID(publicIDLength)
	if err != nil {
		return nil, unavailable("generate account id", err)
	}

	addresses, err := s.buildAddresses(accountID, in.Addresses)
	if err != nil {
		return nil, err
	}

	hash, err := s.hasher.Hash(in.Password)
	if err != nil {
		return nil, unavailable("hash password", err)
	}

	token, err := s.tokens.NewVerificationToken(accountID)
	if err != nil {
		return nil, unavailable("issue verification token", err)
	}

	now := s.clock.Now()
	draft := &Account{
		AccountID:              accountID,
		Email:                  email,
		FirstName:              firstName,
		LastName:               lastName,
		PasswordHash:           hash,
		EmailVerified:          false,
		EmailVerificationToken: &token,
		Addresses:              addresses,
		CreatedAt:              now,
		UpdatedAt:              now,
	}

	var created *Account
	if err := s.tx.WithinReadWrite(ctx, func(txCtx context.Context) error {
		if err := s.ensureEmailNotExists(txCtx, email); err != nil {
			return err
		}

		result, err := s.repo.Create(txCtx, draft)
		if err != nil {
			return err
		}

		created = result
		return nil
	}); err != nil {
		return nil, unavailable("create account", err)
	}

	s.recorder.RecordEvent(EventAccountCreated)
	s.logger.Info(ctx, "account created", "account_id", created.AccountID, "addresses", len(created.Addresses))

	s.sendVerification(ctx, created.AccountID, created.Email, token)

	return created.View(), nil
}

// UpdateAccount は氏名を更新します。メールアドレス、パスワード、確認状態、住所は変更しません。
func (s *Service) UpdateAccount(ctx context.Context, in UpdateAccountInput) (*View, error) {
	if strings.TrimSpace(in.AccountID) == "" {
		return nil, fmt.Errorf("account id: %w", ErrInvalidID)
	}

	var firstName, lastName *string
	if in.FirstName != nil {
		name, err := normalizeName(*in.FirstName)
		if err != nil {
			return nil, fmt.Errorf("first name: %w", err)
		}
		firstName = &name
	}
	if in.LastName != nil {
		name, err := normalizeName(*in.LastName)
		if err != nil {
			return nil, fmt.Errorf("last name: %w", err)
		}
		lastName = &name
	}

	var updated *Account
	if err := s.tx.WithinReadWrite(ctx, func(txCtx context.Context) error {
		existing, err := s.repo.FindByAccountID(txCtx, in.AccountID)
		if err != nil {
			return err
		}

		if firstName != nil {
			existing.FirstName = *firstName
		}
		if lastName != nil {
			existing.LastName = *lastName
		}
		existing.UpdatedAt = s.clock.Now()

		result, err := s.repo.Update(txCtx, existing)
		if err != nil {
			return err
		}

		updated = result
		return nil
	}); err != nil {
		return nil, unavailable("update account", err)
	}

	s.recorder.RecordEvent(EventAccountUpdated)
	return updated.View(), nil
}

// DeleteAccount はアカウントを完全に削除します。
func (s *Service) DeleteAccount(ctx context.Context, in DeleteAccountInput) error {
	if strings.TrimSpace(in.AccountID) == "" {
		return fmt.Errorf("account id: %w", ErrInvalidID)
	}

	if err := s.tx.WithinReadWrite(ctx, func(txCtx context.Context) error {
		return s.repo.Delete(txCtx, in.AccountID)
	}); err != nil {
		return unavailable("delete account", err)
	}

	s.recorder.RecordEvent(EventAccountDeleted)
	s.logger.Info(ctx, "account deleted", "account_id", in.AccountID)
	return nil
}

// GetAccount は AccountID でアカウントを取得します。
func (s *Service) GetAccount(ctx context.Context, in GetAccountInput) (*View, error) {
	if strings.TrimSpace(in.AccountID) == "" {
		return nil, fmt.Errorf("account id: %w", ErrInvalidID)
	}

	found, err := s.readOne(ctx, "find account by id", func(txCtx context.Context) (*Account, error) {
		return s.repo.FindByAccountID(txCtx, in.AccountID)
	})
	if err != nil {
		return nil, err
	}
	return found.View(), nil
}

// GetAccountByEmail はメールアドレスでアカウントを取得します。
func (s *Service) GetAccountByEmail(ctx context.Context, email string) (*View, error) {
	key, err := lookupEmail(email)
	if err != nil {
		return nil, err
	}

	found, err := s.readOne(ctx, "find account by email", func(txCtx context.Context) (*Account, error) {
		return s.repo.FindByEmail(txCtx, key)
	})
	if err != nil {
		return nil, err
	}
	return found.View(), nil
}

// ListAccounts はアカウントの一覧を 1 ページ分取得します。範囲外のページは空の一覧を返します。
func (s *Service) ListAccounts(ctx context.Context, in ListAccountsInput) ([]*View, error) {
	if in.PageIndex < 0 {
		return nil, fmt.Errorf("page index %d: %w", in.PageIndex, ErrInvalidPage)
	}
	if in.PageSize <= 0 || in.PageSize > maxListPageSize {
		return nil, fmt.Errorf("page size %d: %w", in.PageSize, ErrInvalidPage)
	}
	if in.PageIndex > math.MaxInt/in.PageSize {
		return []*View{}, nil
	}

	var accounts []*Account
	if err := s.tx.WithinReadOnly(ctx, func(txCtx context.Context) error {
		result, err := s.repo.List(txCtx, ListAccountsFilter{
			Limit:  in.PageSize,
			Offset: in.PageIndex * in.PageSize,
		})
		if err != nil {
			return err
		}
		accounts = result
		return nil
	}); err != nil {
		return nil, unavailable("list accounts", err)
	}

	views := make([]*View, 0, len(accounts))
	for _, a := range accounts {
		views = append(views, a.View())
	}
	return views, nil
}

// VerifyEmailToken は確認用トークンを検証し、有効であればアカウントを確認済みにします。
// 未知のトークンや期限切れのトークンはエラーではなく false を返します。
// 期限切れのトークンは再送に備えて消去しません。
func (s *Service) VerifyEmailToken(ctx context.Context, token string) (bool, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		s.recorder.RecordEvent(EventVerificationUnknown)
		return false, nil
	}

	var (
		verified  bool
		accountID string
		rejection string
	)
	if err := s.tx.WithinReadWrite(ctx, func(txCtx context.Context) error {
		found, err := s.repo.FindByVerificationToken(txCtx, token)
		if errors.Is(err, ErrAccountNotFound) {
			rejection = EventVerificationUnknown
			return nil
		}
		if err != nil {
			return err
		}
		accountID = found.AccountID

		if s.tokens.IsExpired(token) {
			rejection = EventVerificationExpired
			return nil
		}

		err = s.repo.MarkEmailVerified(txCtx, found.AccountID, token, s.clock.Now())
		if errors.Is(err, ErrAccountNotFound) {
			// 並行した確認処理が先に token を消費した。
			rejection = EventVerificationUnknown
			return nil
		}
		if err != nil {
			return err
		}

		verified = true
		return nil
	}); err != nil {
		return false, unavailable("verify email token", err)
	}

	if !verified {
		s.recorder.RecordEvent(rejection)
		if accountID != "" {
			s.logger.Info(ctx, "email verification rejected", "account_id", accountID, "reason", rejection)
		}
		return false, nil
	}

	s.recorder.RecordEvent(EventEmailVerified)
	s.logger.Info(ctx, "email verified", "account_id", accountID)
	return true, nil
}

// LoadPrincipal はメールアドレスから認証基盤向けの Principal を構築します。
func (s *Service) LoadPrincipal(ctx context.Context, email string) (*Principal, error) {
	key, err := lookupEmail(email)
	if err != nil {
		return nil, err
	}

	found, err := s.readOne(ctx, "load principal", func(txCtx context.Context) (*Account, error) {
		return s.repo.FindByEmail(txCtx, key)
	})
	if err != nil {
		return nil, err
	}
	return found.Principal(), nil
}

func (s *Service) readOne(ctx context.Context, op string, fn func(context.Context) (*Account, error)) (*Account, error) {
	var found *Account
	if err := s.tx.WithinReadOnly(ctx, func(txCtx context.Context) error {
		result, err := fn(txCtx)
		if err != nil {
			return err
		}
		found = result
		return nil
	}); err != nil {
		return nil, unavailable(op, err)
	}
	return found, nil
}

func (s *Service) sendVerification(ctx context.Context, accountID, email, token string) {
	if s.notifier == nil {
		return
	}
	if err := s.notifier.SendVerification(ctx, email, token); err != nil {
		s.recorder.RecordEvent(EventNotificationFailed)
		s.logger.Warn(ctx, "verification notification failed", "account_id", accountID, "error", err)
		return
	}
	s.recorder.RecordEvent(EventNotificationSent)
}

func (s *Service) buildAddresses(accountID string, in []AddressInput) ([]Address, error) {
	addresses := make([]Address, 0, len(in))
	for i, raw := range in {
		addressID, err := s.tokens.NewID(publicIDLength)
		if err != nil {
			return nil, unavailable("generate address id", err)
		}

		addr := Address{
			AddressID:  addressID,
			AccountID:  accountID,
			City:       strings.TrimSpace(raw.City),
			Country:    strings.TrimSpace(raw.Country),
			StreetName: strings.TrimSpace(raw.StreetName),
			PostalCode: strings.TrimSpace(raw.PostalCode),
			Type:       strings.ToLower(strings.TrimSpace(raw.Type)),
		}
		for _, field := range []string{addr.City, addr.Country, addr.StreetName, addr.PostalCode, addr.Type} {
			if len(field) > maxFieldLength {
				return nil, fmt.Errorf("address %d: field exceeds %d characters: %w", i, maxFieldLength, ErrInvalidAddress)
			}
		}
		addresses = append(addresses, addr)
	}
	return addresses, nil
}

func (s *Service) ensureEmailNotExists(ctx context.Context, email string) error {
	existing, err := s.repo.FindByEmail(ctx, email)
	if err != nil && !errors.Is(err, ErrAccountNotFound) {
		return err
	}
	if existing != nil {
		return ErrEmailAlreadyExists
	}
	return nil
}

// unavailable はドメインエラー以外の失敗を ErrUnavailable でラップします。
func unavailable(op string, err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, ErrAccountNotFound),
		errors.Is(err, ErrEmailAlreadyExists),
		errors.Is(err, ErrUnavailable):
		return err
	default:
		return fmt.Errorf("%w: %s: %w", ErrUnavailable, op, err)
	}
}

func normalizeEmail(raw string) (string, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" || utf8.RuneCountInString(trimmed) > maxFieldLength {
		return "", ErrInvalidEmail
	}

	addr, err := mail.ParseAddress(trimmed)
	if err != nil || addr.Address != trimmed {
		return "", ErrInvalidEmail
	}

	return strings.ToLower(addr.Address), nil
}

func lookupEmail(raw string) (string, error) {
	trimmed := strings.ToLower(strings.TrimSpace(raw))
	if trimmed == "" {
		return "", ErrInvalidEmail
	}
	return trimmed, nil
}

func validatePassword(raw string) error {
	if strings.TrimSpace(raw) == "" || len(raw) > maxPasswordBytes {
		return ErrInvalidPassword
	}
	return nil
}

func normalizeName(raw string) (string, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" || len([]rune(trimmed)) > maxNameLength {
		return "", ErrInvalidName
	}
	return trimmed, nil
}
