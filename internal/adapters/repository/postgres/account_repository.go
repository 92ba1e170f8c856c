package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/ogurasousui/codex-account-service/internal/core/account"
	pgdb "github.com/ogurasousui/codex-account-service/internal/platform/db/postgres"
)

const (
	uniqueViolationCode   = "23505"
	emailUniqueConstraint = "accounts_email_key"
)

const accountColumns = `account_id, email, first_name, last_name, password_hash,
               email_verified, email_verification_token, created_at, updated_at`

const addressColumns = `address_id, account_id, city, country, street_name, postal_code, type`

// AccountRepository は PostgreSQL を利用したアカウント永続化の実装です。
// 住所は addresses テーブルに保存し、アカウント削除時に連鎖削除されます。
type AccountRepository struct {
	pool pgdb.Queryer
}

// NewAccountRepository は AccountRepository を生成します。
func NewAccountRepository(pool pgdb.Queryer) *AccountRepository {
	return &AccountRepository{pool: pool}
}

// Create はアカウントと住所を新規作成します。呼び出し側のトランザクション内で実行してください。
func (r *AccountRepository) Create(ctx context.Context, a *account.Account) (*account.Account, error) {
	exec := pgdb.QueryerFromContext(ctx, r.pool)
	row := exec.QueryRow(ctx, `
        INSERT INTO accounts (account_id, email, first_name, last_name, password_hash,
                              email_verified, email_verification_token, created_at, updated_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
        RETURNING `+accountColumns+`
    `, a.AccountID, a.Email, a.FirstName, a.LastName, a.PasswordHash,
		a.EmailVerified, nullableString(a.EmailVerificationToken), a.CreatedAt, a.UpdatedAt)

	created, err := scanAccount(row)
	if err != nil {
		return nil, translatePgError(err)
	}

	created.Addresses = make([]account.Address, 0, len(a.Addresses))
	for i, addr := range a.Addresses {
		row := exec.QueryRow(ctx, `
        INSERT INTO addresses (address_id, account_id, position, city, country, street_name, postal_code, type)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
        RETURNING `+addressColumns+`
    `, addr.AddressID, created.AccountID, i, addr.City, addr.Country, addr.StreetName, addr.PostalCode, addr.Type)

		stored, err := scanAddress(row)
		if err != nil {
			return nil, translatePgError(err)
		}
		created.Addresses = append(created.Addresses, *stored)
	}

	return created, nil
}

// Update はアカウントの氏名を更新します。
func (r *AccountRepository) Update(ctx context.Context, a *account.Account) (*account.Account, error) {
	exec := pgdb.QueryerFromContext(ctx, r.pool)
	row := exec.QueryRow(ctx, `
        UPDATE accounts
           SET first_name = $1,
               last_name = $2,
               updated_at = $3
         WHERE account_id = $4
        RETURNING `+accountColumns+`
    `, a.FirstName, a.LastName, a.UpdatedAt, a.AccountID)

	updated, err := scanAccount(row)
	if err != nil {
		return nil, translatePgError(err)
	}

	if err := r.attachAddresses(ctx, exec, updated); err != nil {
		return nil, err
	}
	return updated, nil
}

// MarkEmailVerified は保存済みの確認用トークンが一致する場合に限り確認済みへ更新します。
func (r *AccountRepository) MarkEmailVerified(ctx context.Context, accountID, token string, at time.Time) error {
	exec := pgdb.QueryerFromContext(ctx, r.pool)
	tag, err := exec.Exec(ctx, `
        UPDATE accounts
           SET email_verified = TRUE,
               email_verification_token = NULL,
               updated_at = $3
         WHERE account_id = $1
           AND email_verification_token = $2
    `, accountID, token, at)
	if err != nil {
		return translatePgError(err)
	}
	if tag.RowsAffected() == 0 {
		return account.ErrAccountNotFound
	}
	return nil
}

// Delete はアカウントを削除します。
func (r *AccountRepository) Delete(ctx context.Context, accountID string) error {
	exec := pgdb.QueryerFromContext(ctx, r.pool)
	tag, err := exec.Exec(ctx, `DELETE FROM accounts WHERE account_id = $1`, accountID)
	if err != nil {
		return translatePgError(err)
	}
	if tag.RowsAffected() == 0 {
		return account.ErrAccountNotFound
	}
	return nil
}

// FindByAccountID は AccountID でアカウントを取得します。
func (r *AccountRepository) FindByAccountID(ctx context.Context, accountID string) (*account.Account, error) {
	return r.findOne(ctx, "account_id", accountID)
}

// FindByEmail はメールアドレスでアカウントを取得します。
func (r *AccountRepository) FindByEmail(ctx context.Context, email string) (*account.Account, error) {
	return r.findOne(ctx, "email", email)
}

// FindByVerificationToken は確認用トークンでアカウントを取得します。
func (r *AccountRepository) FindByVerificationToken(ctx context.Context, token string) (*account.Account, error) {
	return r.findOne(ctx, "email_verification_token", token)
}

// List はアカウントの一覧を作成日時の昇順で取得します。
func (r *AccountRepository) List(ctx context.Context, filter account.ListAccountsFilter) ([]*account.Account, error) {
	if filter.Limit <= 0 || filter.Offset < 0 {
		return nil, account.ErrInvalidPage
	}

	exec := pgdb.QueryerFromContext(ctx, r.pool)
	rows, err := exec.Query(ctx, `
        SELECT `+accountColumns+`
          FROM accounts
         ORDER BY created_at ASC, account_id ASC
         LIMIT $1
        OFFSET $2
    `, filter.Limit, filter.Offset)
	if err != nil {
		return nil, translatePgError(err)
	}
	defer rows.Close()

	accounts := make([]*account.Account, 0, filter.Limit)
	for rows.Next() {
		found, err := scanAccount(rows)
		if err != nil {
			return nil, translatePgError(err)
		}
		accounts = append(accounts, found)
	}
	if err := rows.Err(); err != nil {
		return nil, translatePgError(err)
	}

	if err := r.attachAddresses(ctx, exec, accounts...); err != nil {
		return nil, err
	}
	return accounts, nil
}

// findOne は column が一意である前提で 1 件取得します。column は呼び出し側の定数のみを受け付けます。
func (r *AccountRepository) findOne(ctx context.Context, column, value string) (*account.Account, error) {
	exec := pgdb.QueryerFromContext(ctx, r.pool)
	row := exec.QueryRow(ctx, `
        SELECT `+accountColumns+`
          FROM accounts
         WHERE `+column+` = $1
         LIMIT 1
    `, value)

	found, err := scanAccount(row)
	if err != nil {
		return nil, translatePgError(err)
	}

	if err := r.attachAddresses(ctx, exec, found); err != nil {
		return nil, err
	}
	return found, nil
}

func (r *AccountRepository) attachAddresses(ctx context.Context, exec pgdb.Queryer, accounts ...*account.Account) error {
	if len(accounts) == 0 {
		return nil
	}

	ids := make([]string, 0, len(accounts))
	byID := make(map[string]*account.Account, len(accounts))
	for _, a := range accounts {
		a.Addresses = []account.Address{}
		ids = append(ids, a.AccountID)
		byID[a.AccountID] = a
	}

	rows, err := exec.Query(ctx, `
        SELECT `+addressColumns+`
          FROM addresses
         WHERE account_id = ANY($1)
         ORDER BY account_id, position
    `, ids)
	if err != nil {
		return translatePgError(err)
	}
	defer rows.Close()

	for rows.Next() {
		addr, err := scanAddress(rows)
		if err != nil {
			return translatePgError(err)
		}
		if owner, ok := byID[addr.AccountID]; ok {
			owner.Addresses = append(owner.Addresses, *addr)
		}
	}
	if err := rows.Err(); err != nil {
		return translatePgError(err)
	}
	return nil
}

func scanAccount(row pgx.Row) (*account.Account, error) {
	var (
		accountID            string
		email                string
		firstName            string
		lastName             string
		passwordHash         string
		emailVerified        bool
		verificationToken    sql.NullString
		createdAt, updatedAt time.Time
	)

	if err := row.Scan(&accountID, &email, &firstName, &lastName, &passwordHash,
		&emailVerified, &verificationToken, &createdAt, &updatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, account.ErrAccountNotFound
		}
		return nil, err
	}

	var tokenPtr *string
	if verificationToken.Valid {
		token := verificationToken.String
		tokenPtr = &token
	}

	return &account.Account{
		AccountID:              accountID,
		Email:                  email,
		FirstName:              firstName,
		LastName:               lastName,
		PasswordHash:           passwordHash,
		EmailVerified:          emailVerified,
		EmailVerificationToken: tokenPtr,
		CreatedAt:              createdAt,
		UpdatedAt:              updatedAt,
	}, nil
}

func scanAddress(row pgx.Row) (*account.Address, error) {
	var addr account.Address
	if err := row.Scan(&addr.AddressID, &addr.AccountID, &addr.City, &addr.Country,
		&addr.StreetName, &addr.PostalCode, &addr.Type); err != nil {
		return nil, err
	}
	return &addr, nil
}

// translatePgError は一意制約違反を競合エラーへ変換します。
// メールアドレス以外の制約 (ID の衝突など) も同じ競合として扱い、制約名を付与します。
func translatePgError(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == uniqueViolationCode {
		if pgErr.ConstraintName == emailUniqueConstraint {
			return account.ErrEmailAlreadyExists
		}
		return fmt.Errorf("%w: unique violation on %s", account.ErrEmailAlreadyExists, pgErr.ConstraintName)
	}
	return err
}

func nullableString(value *string) any {
	if value == nil {
		return nil
	}
	return *value
}
