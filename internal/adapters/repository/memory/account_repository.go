// Package memory はプロセス内メモリにアカウントを保持するリポジトリ実装です。
// ローカル開発や結合テストで PostgreSQL を用意できない場合に利用します。
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/ogurasousui/codex-account-service/internal/core/account"
)

// AccountRepository は account.Repository のメモリ実装です。
type AccountRepository struct {
	mu       sync.RWMutex
	byID     map[string]*account.Account
	byEmail  map[string]string
	byToken  map[string]string
	address  map[string]struct{}
	sequence uint64
	order    map[string]uint64
}

// NewAccountRepository は空の AccountRepository を生成します。
func NewAccountRepository() *AccountRepository {
	return &AccountRepository{
		byID:    make(map[string]*account.Account),
		byEmail: make(map[string]string),
		byToken: make(map[string]string),
		address: make(map[string]struct{}),
		order:   make(map[string]uint64),
	}
}

var _ account.Repository = (*AccountRepository)(nil)

// Create はアカウントと住所を新規作成します。
func (r *AccountRepository) Create(ctx context.Context, a *account.Account) (*account.Account, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.byEmail[a.Email]; exists {
		return nil, account.ErrEmailAlreadyExists
	}
	if _, exists := r.byID[a.AccountID]; exists {
		return nil, account.ErrEmailAlreadyExists
	}

	if a.EmailVerificationToken != nil {
		if _, exists := r.byToken[*a.EmailVerificationToken]; exists {
			return nil, fmt.Errorf("%w: duplicate verification token", account.ErrEmailAlreadyExists)
		}
	}
	for _, addr := range a.Addresses {
		if _, exists := r.address[addr.AddressID]; exists {
			return nil, fmt.Errorf("%w: duplicate address id %s", account.ErrEmailAlreadyExists, addr.AddressID)
		}
	}

	stored := cloneAccount(a)
	for i := range stored.Addresses {
		stored.Addresses[i].AccountID = stored.AccountID
		r.address[stored.Addresses[i].AddressID] = struct{}{}
	}

	r.byID[stored.AccountID] = stored
	r.byEmail[stored.Email] = stored.AccountID
	if stored.EmailVerificationToken != nil {
		r.byToken[*stored.EmailVerificationToken] = stored.AccountID
	}
	r.sequence++
	r.order[stored.AccountID] = r.sequence

	return cloneAccount(stored), nil
}

// Update はアカウントの氏名を更新します。
func (r *AccountRepository) Update(ctx context.Context, a *account.Account) (*account.Account, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	stored, ok := r.byID[a.AccountID]
	if !ok {
		return nil, account.ErrAccountNotFound
	}

	stored.FirstName = a.FirstName
	stored.LastName = a.LastName
	stored.UpdatedAt = a.UpdatedAt

	return cloneAccount(stored), nil
}

// Delete はアカウントと住所を削除します。
func (r *AccountRepository) Delete(ctx context.Context, accountID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	stored, ok := r.byID[accountID]
	if !ok {
		return account.ErrAccountNotFound
	}

	delete(r.byID, accountID)
	delete(r.byEmail, stored.Email)
	delete(r.order, accountID)
	for _, addr := range stored.Addresses {
		delete(r.address, addr.AddressID)
	}
	if stored.EmailVerificationToken != nil {
		delete(r.byToken, *stored.EmailVerificationToken)
	}
	return nil
}

// FindByAccountID は AccountID でアカウントを取得します。
func (r *AccountRepository) FindByAccountID(ctx context.Context, accountID string) (*account.Account, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	stored, ok := r.byID[accountID]
	if !ok {
		return nil, account.ErrAccountNotFound
	}
	return cloneAccount(stored), nil
}

// FindByEmail はメールアドレスでアカウントを取得します。
func (r *AccountRepository) FindByEmail(ctx context.Context, email string) (*account.Account, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	id, ok := r.byEmail[email]
	if !ok {
		return nil, account.ErrAccountNotFound
	}
	return cloneAccount(r.byID[id]), nil
}

// FindByVerificationToken は確認用トークンでアカウントを取得します。
func (r *AccountRepository) FindByVerificationToken(ctx context.Context, token string) (*account.Account, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	id, ok := r.byToken[token]
	if !ok {
		return nil, account.ErrAccountNotFound
	}
	return cloneAccount(r.byID[id]), nil
}

// MarkEmailVerified は保存済みトークンが token と一致する場合のみ確認済みに更新します。
func (r *AccountRepository) MarkEmailVerified(ctx context.Context, accountID, token string, at time.Time) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	stored, ok := r.byID[accountID]
	if !ok || stored.EmailVerificationToken == nil || *stored.EmailVerificationToken != token {
		return account.ErrAccountNotFound
	}

	delete(r.byToken, token)
	stored.EmailVerified = true
	stored.EmailVerificationToken = nil
	stored.UpdatedAt = at
	return nil
}

// List は作成順にアカウントを返します。
func (r *AccountRepository) List(ctx context.Context, filter account.ListAccountsFilter) ([]*account.Account, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if filter.Limit <= 0 || filter.Offset < 0 {
		return nil, account.ErrInvalidPage
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	all := make([]*account.Account, 0, len(r.byID))
	for _, a := range r.byID {
		all = append(all, a)
	}
	sort.Slice(all, func(i, j int) bool {
		return r.order[all[i].AccountID] < r.order[all[j].AccountID]
	})

	if filter.Offset >= len(all) {
		return []*account.Account{}, nil
	}
	end := filter.Offset + filter.Limit
	if end > len(all) {
		end = len(all)
	}

	page := make([]*account.Account, 0, end-filter.Offset)
	for _, a := range all[filter.Offset:end] {
		page = append(page, cloneAccount(a))
	}
	return page, nil
}

func cloneAccount(a *account.Account) *account.Account {
	if a == nil {
		return nil
	}
	c := *a
	if a.EmailVerificationToken != nil {
		token := *a.EmailVerificationToken
		c.EmailVerificationToken = &token
	}
	c.Addresses = make([]account.Address, len(a.Addresses))
	copy(c.Addresses, a.Addresses)
	return &c
}
