// Package notifier はメールアドレス確認メッセージの送信手段を提供します。
package notifier

import (
	"fmt"
	"net/url"
)

// VerificationLink は確認用 URL に token クエリを付与したリンクを返します。
// 既存のクエリパラメータは保持されます。
func VerificationLink(base, token string) (string, error) {
	u, err := url.Parse(base)
	if err != nil {
		return "", fmt.Errorf("notifier: parse verify url: %w", err)
	}

	q := u.Query()
	q.Set("token", token)
	u.RawQuery = q.Encode()
	return u.String(), nil
}
