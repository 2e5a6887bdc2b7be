// Package email sends account mails (verification, password reset) over SMTP.
package email

import (
	"bytes"
	"errors"
	"fmt"
	"html/template"
	"mime"
	"net/smtp"
	"strings"
)

const appName = "Akıllı Kampüs"

var ErrNotConfigured = errors.New("email not configured")

// Config holds SMTP configuration
type Config struct {
	Host     string
	Port     string
	Username string
	Password string
	From     string
	FromName string
}

type sendFunc func(addr string, a smtp.Auth, from string, to []string, msg []byte) error

// Service provides email sending
type Service struct {
	config Config
	server string
	auth   smtp.Auth
	send   sendFunc
}

// NewService creates a new email service
func NewService(config Config) *Service {
	var auth smtp.Auth
	if config.Username != "" {
		auth = smtp.PlainAuth("", config.Username, config.Password, config.Host)
	}
	return &Service{
		config: config,
		server: config.Host + ":" + config.Port,
		auth:   auth,
		send:   smtp.SendMail,
	}
}

// IsConfigured returns true if email is configured
func (s *Service) IsConfigured() bool {
	return s != nil && s.config.Host != "" && s.config.Port != "" && s.config.From != ""
}

func (s *Service) fromHeader() string {
	if s.config.FromName == "" {
		return s.config.From
	}
	return fmt.Sprintf("%s <%s>", mime.QEncoding.Encode("utf-8", s.config.FromName), s.config.From)
}

// SendHTMLEmail sends a multipart message with a plain text fallback.
func (s *Service) SendHTMLEmail(to []string, subject, textBody, htmlBody string) error {
	if !s.IsConfigured() {
		return ErrNotConfigured
	}

	boundary := "kampus-mail-boundary"

	var msg bytes.Buffer
	fmt.Fprintf(&msg, "To: %s\r\n", strings.Join(to, ", "))
	fmt.Fprintf(&msg, "From: %s\r\n", s.fromHeader())
	fmt.Fprintf(&msg, "Subject: %s\r\n", mime.QEncoding.Encode("utf-8", subject))
	fmt.Fprintf(&msg, "MIME-Version: 1.0\r\n")
	fmt.Fprintf(&msg, "Content-Type: multipart/alternative; boundary=\"%s\"\r\n\r\n", boundary)

	fmt.Fprintf(&msg, "--%s\r\n", boundary)
	fmt.Fprintf(&msg, "Content-Type: text/plain; charset=UTF-8\r\n\r\n")
	fmt.Fprintf(&msg, "%s\r\n\r\n", textBody)

	fmt.Fprintf(&msg, "--%s\r\n", boundary)
	fmt.Fprintf(&msg, "Content-Type: text/html; charset=UTF-8\r\n\r\n")
	fmt.Fprintf(&msg, "%s\r\n\r\n", htmlBody)
	fmt.Fprintf(&msg, "--%s--\r\n", boundary)

	if err := s.send(s.server, s.auth, s.config.From, to, msg.Bytes()); err != nil {
		return fmt.Errorf("send mail: %w", err)
	}
	return nil
}

type linkData struct {
	AppName  string
	UserName string
	URL      string
	Token    string
}

// SendVerificationEmail sends the account verification link.
func (s *Service) SendVerificationEmail(to, userName, verificationURL, token string) error {
	data := linkData{AppName: appName, UserName: userName, URL: verificationURL, Token: token}
	html, err := renderTemplate(verificationEmailTemplate, data)
	if err != nil {
		return fmt.Errorf("render verification template: %w", err)
	}
	text := fmt.Sprintf("Merhaba %s,\n\nHesabınızı doğrulamak için: %s\nDoğrulama kodu: %s", userName, verificationURL, token)
	return s.SendHTMLEmail([]string{to}, appName+" hesabınızı doğrulayın", text, html)
}

// SendPasswordResetEmail sends the password reset link.
func (s *Service) SendPasswordResetEmail(to, userName, resetURL, token string) error {
	data := linkData{AppName: appName, UserName: userName, URL: resetURL, Token: token}
	html, err := renderTemplate(passwordResetEmailTemplate, data)
	if err != nil {
		return fmt.Errorf("render password reset template: %w", err)
	}
	text := fmt.Sprintf("Merhaba %s,\n\nŞifrenizi sıfırlamak için: %s\nSıfırlama kodu: %s", userName, resetURL, token)
	return s.SendHTMLEmail([]string{to}, appName+" şifre sıfırlama", text, html)
}

func renderTemplate(tmpl *template.Template, data any) (string, error) {
	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return "", err
	}
	return buf.String(), nil
}

const mailStyle = `body { font-family: -apple-system, 'Segoe UI', Roboto, sans-serif; line-height: 1.6; color: #333; max-width: 600px; margin: 0 auto; padding: 20px; }
.header { border-bottom: 2px solid #1565c0; padding-bottom: 10px; margin-bottom: 20px; }
.button { display: inline-block; padding: 12px 24px; background: #1565c0; color: white; text-decoration: none; border-radius: 4px; margin: 20px 0; }
.code { font-family: monospace; font-size: 18px; letter-spacing: 2px; }
.footer { margin-top: 30px; padding-top: 20px; border-top: 1px solid #eee; font-size: 12px; color: #666; }`

var verificationEmailTemplate = template.Must(template.New("verify").Parse(`<!DOCTYPE html>
<html lang="tr">
<head><meta charset="UTF-8"><title>{{.AppName}}</title><style>` + mailStyle + `</style></head>
<body>
  <div class="header"><h1>{{.AppName}}</h1></div>
  <h2>Hoş geldiniz, {{.UserName}}!</h2>
  <p>Hesabınızı etkinleştirmek için e-posta adresinizi doğrulayın.</p>
  <p><a href="{{.URL}}" class="button">E-postamı doğrula</a></p>
  <p>Uygulamada kullanmak için doğrulama kodu: <span class="code">{{.Token}}</span></p>
  <p>Bu bağlantı 24 saat geçerlidir.</p>
  <div class="footer"><p>Bu hesabı siz oluşturmadıysanız bu e-postayı yok sayabilirsiniz.</p></div>
</body>
</html>`))

var passwordResetEmailTemplate = template.Must(template.New("reset").Parse(`<!DOCTYPE html>
<html lang="tr">
<head><meta charset="UTF-8"><title>{{.AppName}}</title><style>` + mailStyle + `</style></head>
<body>
  <div class="header"><h1>{{.AppName}}</h1></div>
  <h2>Şifre sıfırlama</h2>
  <p>Merhaba {{.UserName}},</p>
  <p>Şifrenizi sıfırlamak için aşağıdaki bağlantıyı kullanın.</p>
  <p><a href="{{.URL}}" class="button">Şifremi sıfırla</a></p>
  <p>Sıfırlama kodu: <span class="code">{{.Token}}</span></p>
  <p>Bu bağlantı 1 saat geçerlidir.</p>
  <div class="footer"><p>Bu isteği siz yapmadıysanız şifreniz değişmeden kalır.</p></div>
</body>
</html>`))
