package account

import "errors"

var (
	// ErrAccountNotFound はアカウントが存在しない場合に返却されます。
	ErrAccountNotFound = errors.New("account not found")
	// ErrEmailAlreadyExists はメールアドレス重複時に返却されます。
	ErrEmailAlreadyExists = errors.New("email already exists")
	// ErrUnavailable は永続化層や外部サービスの呼び出しに失敗した場合に返却されます。
	ErrUnavailable = errors.New("account service unavailable")
	// ErrInvalidEmail はメールアドレスが不正な場合に返却されます。
	ErrInvalidEmail = errors.New("invalid email")
	// ErrInvalidPassword はパスワードが不正な場合に返却されます。
	ErrInvalidPassword = errors.New("invalid password")
	// ErrInvalidName は氏名が不正な場合に返却されます。
	ErrInvalidName = errors.New("invalid name")
	// ErrInvalidAddress は住所の入力が不正な場合に返却されます。
	ErrInvalidAddress = errors.New("invalid address")
	// ErrInvalidID は ID が不正な場合に返却されます。
	ErrInvalidID = errors.New("invalid id")
	// ErrInvalidPage は一覧取得時のページ指定が不正な場合に返却されます。
	ErrInvalidPage = errors.New("invalid page")
)
