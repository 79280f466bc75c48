package models

// APIResponse is a generic API response wrapper
type APIResponse struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   string      `json:"error,omitempty"`
	Code    string      `json:"code,omitempty"`
	Errors  interface{} `json:"errors,omitempty"`
}

// NewSuccessResponse creates a success response
func NewSuccessResponse(data interface{}) APIResponse {
	return APIResponse{
		Success: true,
		Data:    data,
	}
}

// NewErrorResponse creates an error response
func NewErrorResponse(message string) APIResponse {
	return APIResponse{
		Success: false,
		Error:   message,
	}
}

// NewCodedErrorResponse carries a machine-readable code next to the message.
func NewCodedErrorResponse(code, message string) APIResponse {
	return APIResponse{
		Success: false,
		Error:   message,
		Code:    code,
	}
}

// NewValidationErrorResponse creates a validation error response
func NewValidationErrorResponse(errors map[string]string) APIResponse {
	return APIResponse{
		Success: false,
		Error:   "Validation failed",
		Errors:  errors,
	}
}

// SubmitIssueResponse keeps the shape the web client reads after submission.
type SubmitIssueResponse struct {
	Response string `json:"response"`
}

// SubmitIssueError is the failure body of the submission endpoint.
type SubmitIssueError struct {
	Error string `json:"error"`
	Code  string `json:"code,omitempty"`
}

// SessionResponse describes the approval gate's decision for a sign-in.
type SessionResponse struct {
	State    string   `json:"state"`
	Reason   string   `json:"reason,omitempty"`
	Elevated bool     `json:"elevated"`
	Account  *Account `json:"account,omitempty"`
}

// TokenResponse is returned by the local identity provider's login.
type TokenResponse struct {
	Token   string          `json:"token"`
	Session SessionResponse `json:"session"`
}
