package models

// ContactSubmission is the contact form payload. It lives for one request and is never stored.
type ContactSubmission struct {
	Name    string `json:"name" form:"name"`
	Email   string `json:"email" form:"email"`
	Subject string `json:"subject" form:"subject"`
	Message string `json:"message" form:"message"`
}
