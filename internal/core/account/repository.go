package account

import (
	"context"
	"time"
)

// Repository はアカウントエンティティの永続化を行うインターフェースです。
// 実装はメールアドレス、AccountID、AddressID の一意性を保証する必要があります。
type Repository interface {
	Create(ctx context.Context, account *Account) (*Account, error)
	Update(ctx context.Context, account *Account) (*Account, error)
	Delete(ctx context.Context, accountID string) error
	FindByAccountID(ctx context.Context, accountID string) (*Account, error)
	FindByEmail(ctx context.Context, email string) (*Account, error)
	FindByVerificationToken(ctx context.Context, token string) (*Account, error)
	// MarkEmailVerified は token が保存値と一致する場合に限り確認済みへ遷移させ、token を消去します。
	// 一致しない場合は ErrAccountNotFound を返します。
	MarkEmailVerified(ctx context.Context, accountID, token string, at time.Time) error
	List(ctx context.Context, filter ListAccountsFilter) ([]*Account, error)
}

// ListAccountsFilter は一覧取得時の検索条件を表します。
type ListAccountsFilter struct {
	Limit  int
	Offset int
}
