package emailsvc

import (
	"io"
	"log"
	"net/mail"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/probestem/probe/core"
	appfs "github.com/probestem/probe/fs"
	logsvc "github.com/probestem/probe/services/logger"
)

func setup(t *testing.T) (*core.Config, core.Logger) {
	t.Helper()
	conf := core.NewTestConfig()
	logger := logsvc.NewRollbarLogger(log.New(io.Discard, "", 0), conf)
	core.ParseEmailTemplates(appfs.FS, logger, true)
	return conf, logger
}

func TestConsoleServiceMock(t *testing.T) {
	conf, logger := setup(t)
	svc := NewConsoleServiceMock(conf, logger)
	to := []mail.Address{{Name: "Ada", Address: "ada@example.com"}}

	tests := []struct {
		name     string
		msg      core.EmailMessage
		wantSent bool
		wantText []string
		wantHTML bool
	}{
		{
			name: "templated",
			msg: core.EmailMessage{
				To:           to,
				Subject:      "Welcome!",
				TemplateName: "welcome",
				TemplateData: map[string]interface{}{"Name": "Ada", "Username": "ada", "Role": "student"},
			},
			wantSent: true,
			wantText: []string{"Hi Ada,", "Your student account is ready.", conf.FrontendBaseURL + "/profiles/ada", "The " + conf.AppName + " team"},
			wantHTML: true,
		},
		{
			name:     "plain body",
			msg:      core.EmailMessage{To: to, Subject: "Hi", BodyStr: "just text"},
			wantSent: true,
			wantText: []string{"just text"},
		},
		{
			name: "no recipients",
			msg:  core.EmailMessage{Subject: "Hi", BodyStr: "just text"},
		},
		{
			name: "no content",
			msg:  core.EmailMessage{To: to, Subject: "Hi", TemplateName: "does_not_exist"},
		},
		{
			name: "missing template data",
			msg:  core.EmailMessage{To: to, Subject: "Hi", TemplateName: "welcome", TemplateData: map[string]interface{}{}},
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			svc.Reset()
			msg := tc.msg
			svc.SendMessages(&msg)

			sent := svc.SentMessages()
			if !tc.wantSent {
				assert.Empty(t, sent)
				return
			}
			require.Len(t, sent, 1)
			for _, s := range tc.wantText {
				assert.Contains(t, sent[0].TextContent, s)
			}
			assert.Equal(t, tc.wantHTML, sent[0].HTMLContent != "")
		})
	}
}

func TestConsoleSend(t *testing.T) {
	conf, logger := setup(t)
	svc := &consoleService{conf: conf, logger: logger, from: conf.DefaultFromEmail(), subjPrefix: "[probe] ", disableOutput: true}

	msg := core.EmailMessage{
		To:          []mail.Address{{Address: "ada@example.com"}},
		Cc:          []mail.Address{{Address: "cc@example.com"}},
		Subject:     "Report",
		TextContent: "weekly digest",
		HTMLContent: "<p>weekly digest</p>",
	}
	assert.NoError(t, svc.send(msg))
}

func TestSendgridPrepare(t *testing.T) {
	conf, logger := setup(t)
	svc := NewSendgridService(conf, logger).(*sendgridService)

	msg := core.EmailMessage{
		To:          []mail.Address{{Name: "Ada", Address: "ada@example.com"}},
		Bcc:         []mail.Address{{Address: "audit@example.com"}},
		Subject:     "Password Reset",
		TextContent: "text",
		HTMLContent: "<p>html</p>",
	}
	m := svc.prepare(msg)

	require.Len(t, m.Personalizations, 1)
	p := m.Personalizations[0]
	assert.Equal(t, "["+conf.AppName+"] Password Reset", p.Subject)
	require.Len(t, p.To, 1)
	assert.Equal(t, "ada@example.com", p.To[0].Address)
	assert.Len(t, p.BCC, 1)
	assert.Empty(t, p.CC)

	require.Len(t, m.Content, 2)
	assert.Equal(t, "text/plain", m.Content[0].Type)
	assert.Equal(t, "text/html", m.Content[1].Type)
	assert.Equal(t, conf.DefaultFromEmail().Address, m.From.Address)
}
