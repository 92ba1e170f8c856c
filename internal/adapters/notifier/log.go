package notifier

import (
	"context"

	"github.com/ogurasousui/codex-account-service/internal/platform/logging"
)

// LogNotifier は確認リンクをログへ出力するだけの Notifier です。ローカル開発向けです。
type LogNotifier struct {
	verifyURL string
	logger    logging.Logger
}

// NewLogNotifier は LogNotifier を生成します。
func NewLogNotifier(verifyURL string, logger logging.Logger) *LogNotifier {
	if logger == nil {
		logger = logging.Nop()
	}
	return &LogNotifier{verifyURL: verifyURL, logger: logger.With("component", "log_notifier")}
}

// SendVerification は確認リンクを info レベルで出力します。
func (n *LogNotifier) SendVerification(ctx context.Context, email, token string) error {
	link, err := VerificationLink(n.verifyURL, token)
	if err != nil {
		return err
	}
	n.logger.Info(ctx, "verification link issued", "email", email, "link", link)
	return nil
}
