// Package ses は Amazon SES (v2 API) を利用して確認メールを送信します。
package ses

import (
	"context"
	"fmt"
	"html"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/sesv2"
	"github.com/aws/aws-sdk-go-v2/service/sesv2/types"
	"github.com/ogurasousui/codex-account-service/internal/adapters/notifier"
	"github.com/ogurasousui/codex-account-service/internal/platform/config"
)

const (
	subject = "One last step to complete your registration"
	charset = "UTF-8"
)

type sendEmailAPI interface {
	SendEmail(ctx context.Context, params *sesv2.SendEmailInput, optFns ...func(*sesv2.Options)) (*sesv2.SendEmailOutput, error)
}

// Notifier は SES 経由で確認メールを送信する Notifier です。
type Notifier struct {
	client    sendEmailAPI
	sender    string
	verifyURL string
}

// New は既存の SES クライアントから Notifier を生成します。
func New(client sendEmailAPI, sender, verifyURL string) *Notifier {
	return &Notifier{client: client, sender: sender, verifyURL: verifyURL}
}

// NewFromConfig は設定から SES クライアントを構築します。
// アクセスキーが指定されていない場合は AWS の既定の認証チェーンを利用します。
func NewFromConfig(ctx context.Context, cfg config.NotifierConfig) (*Notifier, error) {
	opts := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithRegion(cfg.SES.Region),
	}
	if cfg.SES.AccessKeyID != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.SES.AccessKeyID, cfg.SES.SecretAccessKey, ""),
		))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("ses: load aws config: %w", err)
	}

	client := sesv2.NewFromConfig(awsCfg, func(o *sesv2.Options) {
		if cfg.SES.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.SES.Endpoint)
		}
	})

	return New(client, cfg.SES.Sender, cfg.VerifyURL), nil
}

// SendVerification は確認リンクを含む HTML とテキストの両形式のメールを送信します。
func (n *Notifier) SendVerification(ctx context.Context, email, token string) error {
	link, err := notifier.VerificationLink(n.verifyURL, token)
	if err != nil {
		return err
	}

	_, err = n.client.SendEmail(ctx, &sesv2.SendEmailInput{
		FromEmailAddress: aws.String(n.sender),
		Destination:      &types.Destination{ToAddresses: []string{email}},
		Content: &types.EmailContent{
			Simple: &types.Message{
				Subject: &types.Content{Data: aws.String(subject), Charset: aws.String(charset)},
				Body: &types.Body{
					Html: &types.Content{Data: aws.String(htmlBody(link)), Charset: aws.String(charset)},
					Text: &types.Content{Data: aws.String(textBody(link)), Charset: aws.String(charset)},
				},
			},
		},
	})
	if err != nil {
		return fmt.Errorf("ses: send email: %w", err)
	}
	return nil
}

func htmlBody(link string) string {
	escaped := html.EscapeString(link)
	return "<h1>Please verify your email address</h1>" +
		"<p>Thank you for registering. To complete the registration and be able to sign in, open the link below:</p>" +
		`<p><a href="` + escaped + `">Final step to complete your registration</a></p>` +
		"<p>Thank you! And we are waiting for you inside!</p>"
}

func textBody(link string) string {
	return "Please verify your email address\n\n" +
		"Thank you for registering. To complete the registration and be able to sign in, open the following URL in your browser:\n\n" +
		link + "\n\n" +
		"Thank you! And we are waiting for you inside!\n"
}
