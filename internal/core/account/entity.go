package account

import "time"

// Account は永続化されるアカウントエンティティです。
type Account struct {
	AccountID              string
	Email                  string
	FirstName              string
	LastName               string
	PasswordHash           string
	EmailVerified          bool
	EmailVerificationToken *string
	Addresses              []Address
	CreatedAt              time.Time
	UpdatedAt              time.Time
}

// Address はアカウントが所有する住所です。AccountID は所有者への参照としてのみ利用します。
type Address struct {
	AddressID  string
	AccountID  string
	City       string
	Country    string
	StreetName string
	PostalCode string
	Type       string
}

// View は呼び出し元へ返却してよいアカウントの公開項目です。
type View struct {
	AccountID     string
	Email         string
	FirstName     string
	LastName      string
	EmailVerified bool
	Addresses     []Address
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// Principal は認証基盤へ引き渡す最小限の認証情報です。
type Principal struct {
	Username              string
	Password              string
	Enabled               bool
	AccountNonExpired     bool
	CredentialsNonExpired bool
	AccountNonLocked      bool
	Authorities           []string
}

// HasPendingVerification はメールアドレス確認が未完了かどうかを返します。
func (a *Account) HasPendingVerification() bool {
	return !a.EmailVerified && a.EmailVerificationToken != nil
}

// View は公開項目のみを持つ View へ変換します。
func (a *Account) View() *View {
	if a == nil {
		return nil
	}
	return &View{
		AccountID:     a.AccountID,
		Email:         a.Email,
		FirstName:     a.FirstName,
		LastName:      a.LastName,
		EmailVerified: a.EmailVerified,
		Addresses:     cloneAddresses(a.Addresses),
		CreatedAt:     a.CreatedAt,
		UpdatedAt:     a.UpdatedAt,
	}
}

// Principal は認証基盤向けの Principal へ変換します。
func (a *Account) Principal() *Principal {
	return &Principal{
		Username:              a.Email,
		Password:              a.PasswordHash,
		Enabled:               a.EmailVerified,
		AccountNonExpired:     true,
		CredentialsNonExpired: true,
		AccountNonLocked:      true,
		Authorities:           []string{},
	}
}

func cloneAddresses(in []Address) []Address {
	out := make([]Address, len(in))
	copy(out, in)
	return out
}
