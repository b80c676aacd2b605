package mfa

import (
	"bytes"
	"context"
	"crypto/rand"
	"fmt"
	"io"
	"math/big"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gravitational/trace"
	"github.com/wneessen/go-mail"
)

// alphaNumeric is the charset ShortCode draws from.
const alphaNumeric = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789"

// ShortCode generates an n-character alphanumeric code. None of the
// channels in this file call it: PushChannel, like every other channel,
// delivers the controller's opaque token as given.
func ShortCode(n int) (string, error) {
	buf := make([]byte, n)
	for i := range buf {
		idx, err := rand.Int(rand.Reader, big.NewInt(int64(len(alphaNumeric))))
		if err != nil {
			return "", trace.Wrap(err)
		}
		buf[i] = alphaNumeric[idx.Int64()]
	}
	return string(buf), nil
}

// EmailChannel delivers the MFA token over SMTP, grounded on the source's
// Gmail-via-SMTP delivery (pyninja/multifactor/gmail.py), generalized to
// any SMTP relay since the pack carries no Gmail-specific client.
type EmailChannel struct {
	SMTPHost, SMTPUser, SMTPPass string
	SMTPPort                     int
	Recipient                    string
}

func (e *EmailChannel) Name() string { return "email" }

func (e *EmailChannel) Dispatch(ctx context.Context, token string) error {
	msg := mail.NewMsg()
	if err := msg.From(e.SMTPUser); err != nil {
		return trace.Wrap(err)
	}
	if err := msg.To(e.Recipient); err != nil {
		return trace.Wrap(err)
	}
	msg.Subject(fmt.Sprintf("Multifactor Authenticator - %s", time.Now().Format(time.RFC1123)))
	msg.SetBodyString(mail.TypeTextPlain, token)

	client, err := mail.NewClient(e.SMTPHost,
		mail.WithPort(e.SMTPPort),
		mail.WithSMTPAuth(mail.SMTPAuthPlain),
		mail.WithUsername(e.SMTPUser),
		mail.WithPassword(e.SMTPPass),
	)
	if err != nil {
		return trace.Wrap(err)
	}
	return trace.Wrap(client.DialAndSendWithContext(ctx, msg))
}

// PushChannel delivers the MFA token via an ntfy.sh-style topic POST,
// grounded on pyninja/multifactor/ntfy.py. ntfy has no official Go client
// in the retrieved pack, so this uses plain net/http for the single POST
// the protocol requires.
type PushChannel struct {
	BaseURL, Topic, Username, Password string
	HTTPClient                         *http.Client
}

func (p *PushChannel) Name() string { return "push" }

func (p *PushChannel) Dispatch(ctx context.Context, token string) error {
	endpoint, err := url.JoinPath(p.BaseURL, p.Topic)
	if err != nil {
		return trace.Wrap(err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewBufferString(token))
	if err != nil {
		return trace.Wrap(err)
	}
	req.Header.Set("X-Title", fmt.Sprintf("Multifactor Authenticator - %s", time.Now().Format(time.RFC1123)))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	if p.Username != "" {
		req.SetBasicAuth(p.Username, p.Password)
	}

	client := p.HTTPClient
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return trace.Wrap(err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body) //nolint:errcheck

	if resp.StatusCode >= 300 {
		return trace.ConnectionProblem(nil, "push channel responded with status %d", resp.StatusCode)
	}
	return nil
}

// TOTPChannel "dispatches" nothing over the wire; it reports the channel
// name so get_mfa's informational flow is consistent, while the real
// verification happens against the configured shared secret in
// Controller.Verify. Enrollment/QR generation is explicitly out of scope
// (spec.md §1 Non-goals).
type TOTPChannel struct{}

func (TOTPChannel) Name() string { return "totp" }

func (TOTPChannel) Dispatch(ctx context.Context, token string) error {
	return nil
}

// TelegramChannel signals, per spec.md §4.5, that delivery is explicitly
// unimplemented with a teapot status rather than silently failing.
type TelegramChannel struct{}

func (TelegramChannel) Name() string                            { return "telegram" }
func (TelegramChannel) Dispatch(ctx context.Context, _ string) error { return ErrTeapot }

// BuildChannels constructs the standard channel set (email, push, TOTP,
// telegram) from the ambient config values; gmail/push channels are
// registered only when their credentials are present, mirroring the
// source's all-channels-declared-but-conditionally-usable posture.
func BuildChannels(gmailUser, gmailPass, gmailRecipient, pushURL, pushTopic, pushCredentials string) map[string]Channel {
	channels := map[string]Channel{
		"totp":     TOTPChannel{},
		"telegram": TelegramChannel{},
	}
	if gmailUser != "" && gmailPass != "" && gmailRecipient != "" {
		channels["email"] = &EmailChannel{
			SMTPHost:  "smtp.gmail.com",
			SMTPPort:  587,
			SMTPUser:  gmailUser,
			SMTPPass:  gmailPass,
			Recipient: gmailRecipient,
		}
	}
	if pushURL != "" && pushTopic != "" {
		user, pass := "", ""
		if idx := strings.IndexByte(pushCredentials, ':'); idx >= 0 {
			user, pass = pushCredentials[:idx], pushCredentials[idx+1:]
		}
		channels["push"] = &PushChannel{
			BaseURL:  pushURL,
			Topic:    pushTopic,
			Username: user,
			Password: pass,
		}
	}
	return channels
}
