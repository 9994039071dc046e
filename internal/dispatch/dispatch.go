// Package dispatch hands finished digests to the mail relay.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"net/textproto"
	"time"

	"github.com/wneessen/go-mail"

	"github.com/rpatel/newsbrief/internal/digest"
	nberrs "github.com/rpatel/newsbrief/internal/errors"
)

type (
	// SMTP delivers one artifact per call over the configured relay.
	// No retries here: the scheduler owns the decision of whether a
	// failed day gets another attempt.
	SMTP struct {
		client *mail.Client
		from   string
	}

	Config struct {
		Host     string
		Port     int
		Username string
		Password string
		From     string
	}
)

var _ digest.Mailer = (*SMTP)(nil)

func NewSMTP(cfg Config) (*SMTP, error) {
	client, err := mail.NewClient(cfg.Host,
		mail.WithPort(cfg.Port),
		mail.WithSMTPAuth(mail.SMTPAuthPlain),
		mail.WithUsername(cfg.Username),
		mail.WithPassword(cfg.Password),
		mail.WithTLSPolicy(mail.TLSMandatory),
	)
	if err != nil {
		return nil, fmt.Errorf("error creating smtp client: %w", err)
	}

	return &SMTP{
		client: client,
		from:   cfg.From,
	}, nil
}

// Send mails the artifact to the subscriber as an attachment. One
// attempt per invocation; the returned error is classified so the
// caller can tell whether a manual retry is likely to help.
func (s *SMTP) Send(ctx context.Context, sub digest.Subscriber, art digest.Artifact) error {
	msg := mail.NewMsg()
	if err := msg.From(s.from); err != nil {
		return nberrs.E(nberrs.KindDelivery, nberrs.ReasonNetwork, fmt.Errorf("error setting sender: %w", err))
	}
	if err := msg.To(sub.Email); err != nil {
		return nberrs.E(nberrs.KindDelivery, nberrs.ReasonRecipient, fmt.Errorf("error setting recipient: %w", err))
	}

	date := time.Now().Format("January 2, 2006")
	msg.Subject(fmt.Sprintf("Daily News Digest - %s", date))
	msg.SetBodyString(mail.TypeTextPlain, fmt.Sprintf(
		"Hello,\n\nAttached is your news digest for %s.\n\nCategories: %s\n", date, categoriesLine(sub)))
	msg.AttachFile(art.Path)

	if err := s.client.DialAndSendWithContext(ctx, msg); err != nil {
		return classify(err)
	}

	return nil
}

func categoriesLine(sub digest.Subscriber) string {
	line := ""
	for i, c := range sub.Categories {
		if i > 0 {
			line += ", "
		}
		line += string(c)
	}
	return line
}

// classify buckets relay failures into the reasons the scheduler
// records: credential problems, the recipient being rejected, or
// plain network trouble.
func classify(err error) error {
	var proto *textproto.Error
	if errors.As(err, &proto) {
		switch proto.Code {
		case 530, 534, 535:
			return nberrs.E(nberrs.KindDelivery, nberrs.ReasonAuth, err)
		case 550, 551, 552, 553:
			return nberrs.E(nberrs.KindDelivery, nberrs.ReasonRecipient, err)
		}
	}

	var sendErr *mail.SendError
	if errors.As(err, &sendErr) && sendErr.Reason == mail.ErrSMTPRcptTo {
		return nberrs.E(nberrs.KindDelivery, nberrs.ReasonRecipient, err)
	}

	return nberrs.E(nberrs.KindDelivery, nberrs.ReasonNetwork, err)
}
