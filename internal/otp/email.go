package otp

import (
	"bytes"
	"fmt"
	htmltemplate "html/template"
	"text/template"
	"time"

	"github.com/agaseke/agaseke-backend/pkg/db/models"
	"github.com/agaseke/agaseke-backend/pkg/enums"
	"github.com/agaseke/agaseke-backend/pkg/mailer"
)

const emailSubject = "Agaseke - Your Verification Code"

type emailCopy struct {
	Title  string
	Action string
}

var copyByPurpose = map[enums.OTPPurpose]emailCopy{
	enums.OTPPurposePurchaseConfirmation: {Title: "Purchase Verification Required", Action: "complete your purchase pickup"},
	enums.OTPPurposeLogin:                {Title: "Login Verification Required", Action: "complete your login"},
}

type emailData struct {
	emailCopy
	Name    string
	Code    string
	Minutes int
}

var textBody = template.Must(template.New("otp_text").Parse(`Agaseke - {{.Title}}

Hello {{.Name}},

Use this code to {{.Action}}:

{{.Code}}

The code expires in {{.Minutes}} minutes. If you did not request it, ignore this email and never share the code.
`))

var htmlBody = htmltemplate.Must(htmltemplate.New("otp_html").Parse(`<!DOCTYPE html>
<html lang="en"><body style="font-family:Arial,sans-serif;color:#1a1a1a">
<h2 style="color:#667eea">Agaseke</h2>
<p>{{.Title}}</p>
<p>Hello {{.Name}},</p>
<p>Use this code to {{.Action}}:</p>
<p style="font-size:32px;font-weight:700;letter-spacing:10px;font-family:monospace">{{.Code}}</p>
<p>The code expires in {{.Minutes}} minutes. If you did not request it, ignore this email and never share the code.</p>
</body></html>`))

func buildMessage(user *models.User, code string, purpose enums.OTPPurpose, ttl time.Duration) (mailer.Message, error) {
	data := emailData{
		emailCopy: copyByPurpose[purpose],
		Name:      displayName(user),
		Code:      code,
		Minutes:   int(ttl.Round(time.Minute) / time.Minute),
	}
	var text, html bytes.Buffer
	if err := textBody.Execute(&text, data); err != nil {
		return mailer.Message{}, fmt.Errorf("render otp text: %w", err)
	}
	if err := htmlBody.Execute(&html, data); err != nil {
		return mailer.Message{}, fmt.Errorf("render otp html: %w", err)
	}
	return mailer.Message{
		ToEmail:   user.Email,
		ToName:    displayName(user),
		Subject:   emailSubject,
		PlainText: text.String(),
		HTML:      html.String(),
	}, nil
}

func displayName(user *models.User) string {
	if user.FullName != nil && *user.FullName != "" {
		return *user.FullName
	}
	return user.Username
}
