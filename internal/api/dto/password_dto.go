package dto

// ForgotPasswordRequest payload for initiating reset.
type ForgotPasswordRequest struct {
	Email string `json:"email"`
}

// ResetPasswordRequest payload for redeeming a reset token. The token itself
// travels in the path.
type ResetPasswordRequest struct {
	Password string `json:"password"`
}

// ChangePasswordRequest payload for authenticated password changes.
type ChangePasswordRequest struct {
	OldPassword string `json:"old_password"`
	NewPassword string `json:"new_password"`
}

// MessageResponse is a plain acknowledgement.
type MessageResponse struct {
	Message string `json:"message"`
}
