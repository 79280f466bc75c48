package models

// BugReport is submitted from the "report a bug" page.
type BugReport struct {
	Name           string `json:"name" validate:"required,max=120"`
	Email          string `json:"email" validate:"required,email,max=254"`
	Message        string `json:"message" validate:"required,max=4000"`
	PageURL        string `json:"page_url" validate:"omitempty,url,max=2048"`
	RecaptchaToken string `json:"recaptchaToken" validate:"required"`
}
