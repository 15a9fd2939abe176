package emailsvc

import (
	"encoding/base64"
	"fmt"
	"net/http"
	"net/mail"
	"strings"

	"github.com/sendgrid/sendgrid-go"
	sgmail "github.com/sendgrid/sendgrid-go/helpers/mail"

	"github.com/halldesk/halldesk/core"
)

// sendgridService delivers messages through the SendGrid v3 API, one request per message.
type sendgridService struct {
	conf   *core.Config
	client *sendgrid.Client
	from   *sgmail.Email
	logger core.Logger
}

var _ core.EmailService = (*sendgridService)(nil)

func NewSendgridService(conf *core.Config, logger core.Logger) core.EmailService {
	from := conf.DefaultFromEmail()
	return &sendgridService{
		conf:   conf,
		client: sendgrid.NewSendClient(conf.SendgridApiKey),
		from:   sgmail.NewEmail(from.Name, from.Address),
		logger: logger,
	}
}

func (svc *sendgridService) SendMessages(messages ...*core.EmailMessage) {
	for _, msg := range messages {
		go svc.deliver(msg)
	}
}

func (svc *sendgridService) deliver(msg *core.EmailMessage) {
	if err := msg.Render(svc.conf); err != nil {
		svc.logger.Error(fmt.Sprintf("rendering email %q: %v", msg.TemplateName, err), err)
		return
	}
	if !msg.HasRecipients() || !(msg.HasContent() || msg.HasAttachments()) {
		return
	}

	res, err := svc.client.Send(buildMail(svc.from, svc.conf.AppName, *msg))
	switch {
	case err != nil:
		svc.logger.Error(fmt.Sprintf("sending %q email: %v", msg.Subject, err), err)
	case res.StatusCode >= http.StatusBadRequest:
		svc.logger.Error(fmt.Sprintf("sendgrid rejected %q email (status %d): %s", msg.Subject, res.StatusCode, res.Body))
	}
}

// buildMail maps a rendered message onto a SendGrid payload. Messages are tagged with the
// app name and their template so review notifications can be told apart in SendGrid stats.
// SendGrid rejects an address listed twice in a personalization, so later duplicates are dropped.
func buildMail(from *sgmail.Email, appName string, msg core.EmailMessage) *sgmail.SGMailV3 {
	p := sgmail.NewPersonalization()
	p.Subject = "[" + appName + "] " + msg.Subject

	seen := make(map[string]bool)
	addrs := func(list []mail.Address) []*sgmail.Email {
		var out []*sgmail.Email
		for _, a := range list {
			key := strings.ToLower(a.Address)
			if seen[key] {
				continue
			}
			seen[key] = true
			out = append(out, sgmail.NewEmail(a.Name, a.Address))
		}
		return out
	}
	p.AddTos(addrs(msg.To)...)
	p.AddCCs(addrs(msg.Cc)...)
	p.AddBCCs(addrs(msg.Bcc)...)

	m := sgmail.NewV3Mail()
	m.SetFrom(from)
	m.AddPersonalizations(p)
	m.AddCategories(appName)
	if msg.TemplateName != "" {
		m.AddCategories(msg.TemplateName)
	}

	if msg.TextContent != "" {
		m.AddContent(sgmail.NewContent("text/plain", msg.TextContent))
	}
	if msg.HTMLContent != "" {
		m.AddContent(sgmail.NewContent("text/html", msg.HTMLContent))
	}

	for _, a := range msg.Attachments {
		att := sgmail.NewAttachment()
		att.SetContent(base64.StdEncoding.EncodeToString(a.Content.Bytes()))
		att.SetType(a.ContentType)
		att.SetFilename(a.Filename)
		att.SetDisposition("attachment")
		m.AddAttachment(att)
	}
	return m
}
