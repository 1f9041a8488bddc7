package controllers

import (
	"context"
	"fmt"
	"net/http"
	"net/mail"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/folio/portfolio/models"
	"github.com/folio/portfolio/utils"
)

const (
	contactRequired = "Name, email, and message are required"
	contactFailed   = "Failed to send message. Please try again later."
	contactThanks   = "Thank you for your message! I will get back to you soon."
)

// MailSender delivers one message and reports whether the relay accepted it.
type MailSender interface {
	Send(ctx context.Context, m utils.Mail) error
}

// ContactController forwards contact form submissions as email.
type ContactController struct {
	mailer   MailSender
	to       string
	siteName string
}

// NewContactController creates a ContactController sending to the given recipient.
func NewContactController(mailer MailSender, to, siteName string) *ContactController {
	return &ContactController{mailer: mailer, to: to, siteName: siteName}
}

// Submit validates the form and blocks on the mail relay; its outcome decides the response.
func (c *ContactController) Submit(ctx *gin.Context) {
	var req models.ContactSubmission
	if err := ctx.ShouldBind(&req); err != nil {
		utils.Error(ctx, http.StatusBadRequest, contactRequired)
		return
	}
	// Blank fields count as missing; the text itself is forwarded as submitted.
	if blank(req.Name) || blank(req.Email) || blank(req.Message) {
		utils.Error(ctx, http.StatusBadRequest, contactRequired)
		return
	}

	if err := c.mailer.Send(ctx.Request.Context(), c.Compose(req)); err != nil {
		utils.Fail(ctx, utils.Dependency(contactFailed, err), contactFailed)
		return
	}
	utils.Sugar.Infow("contact message sent", "request_id", ctx.GetString(utils.RequestIDKey))
	utils.Success(ctx, contactThanks, nil)
}

// Compose renders the notification mail for req.
func (c *ContactController) Compose(req models.ContactSubmission) utils.Mail {
	subject := req.Subject
	if subject == "" {
		subject = "New Message"
	}
	shownSubject := req.Subject
	if shownSubject == "" {
		shownSubject = "No subject"
	}

	var replyTo string
	if addr, err := mail.ParseAddress(req.Email); err == nil {
		replyTo = addr.Address
	}

	body := fmt.Sprintf(`<h2>New Contact Form Submission</h2>
<p><strong>Name:</strong> %s</p>
<p><strong>Email:</strong> %s</p>
<p><strong>Subject:</strong> %s</p>
<p><strong>Message:</strong></p>
<p>%s</p>
<hr>
<p><em>Sent from %s</em></p>
`,
		utils.Sanitize(req.Name),
		utils.Sanitize(req.Email),
		utils.Sanitize(shownSubject),
		strings.ReplaceAll(utils.Sanitize(req.Message), "\n", "<br>"),
		utils.Sanitize(c.siteName),
	)

	return utils.Mail{
		To:       c.to,
		ReplyTo:  replyTo,
		Subject:  "Portfolio Contact: " + subject,
		HTMLBody: body,
	}
}

func blank(s string) bool { return strings.TrimSpace(s) == "" }
