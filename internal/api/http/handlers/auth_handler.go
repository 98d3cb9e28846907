package handlers

import (
	"net/http"

	"github.com/gofiber/fiber/v2"

	"github.com/loopio/feedback-tracker/internal/api/dto"
	"github.com/loopio/feedback-tracker/internal/domain"
	"github.com/loopio/feedback-tracker/internal/service"
	apperrors "github.com/loopio/feedback-tracker/pkg/util/errorutil"
)

// AuthHandler exposes identity endpoints.
type AuthHandler struct {
	auth      *service.AuthService
	maxUpload int64
}

// NewAuthHandler constructs handler.
func NewAuthHandler(authService *service.AuthService, maxUpload int64) *AuthHandler {
	return &AuthHandler{auth: authService, maxUpload: maxUpload}
}

// Register handles POST /auth/register.
func (h *AuthHandler) Register(c *fiber.Ctx) error {
	var req dto.UserRegisterRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	res, err := h.auth.Register(c.UserContext(), service.RegisterInput{
		Name:     req.Name,
		Email:    req.Email,
		Password: req.Password,
		Role:     req.Role,
		Phone:    req.Phone,
		Address:  req.Address,
	})
	if err != nil {
		return err
	}
	return c.Status(http.StatusCreated).JSON(fiber.Map{"data": dto.NewAuthResponse(res.User, res.Token)})
}

// Login handles POST /auth/login.
func (h *AuthHandler) Login(c *fiber.Ctx) error {
	var req dto.UserLoginRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	if req.Email == "" || req.Password == "" {
		return apperrors.NewValidationError("email and password required", nil)
	}
	res, err := h.auth.Login(c.UserContext(), req.Email, req.Password)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.NewAuthResponse(res.User, res.Token)})
}

// Me handles GET /auth/me.
func (h *AuthHandler) Me(c *fiber.Ctx) error {
	user, err := currentUser(c)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.NewUserResponse(user)})
}

// UpdateProfile handles PUT /auth/profile. Multipart requests may carry a
// "profile_picture" file.
func (h *AuthHandler) UpdateProfile(c *fiber.Ctx) error {
	user, err := currentUser(c)
	if err != nil {
		return err
	}

	var in service.ProfileInput
	if isMultipart(c) {
		form, err := c.MultipartForm()
		if err != nil {
			return apperrors.NewValidationError("invalid multipart payload", nil)
		}
		in.Name = formPtr(form, "name")
		in.Email = formPtr(form, "email")
		in.Phone = formPtr(form, "phone")
		in.Address = formPtr(form, "address")
		flag, _ := formField(form, "delete_profile_picture")
		in.DeleteAvatar = flag == "true"
		if in.Avatar, err = readUpload(c, "profile_picture", h.maxUpload); err != nil {
			return err
		}
	} else {
		var req struct {
			Name                 *string `json:"name"`
			Email                *string `json:"email"`
			Phone                *string `json:"phone"`
			Address              *string `json:"address"`
			DeleteProfilePicture bool    `json:"delete_profile_picture"`
		}
		if len(c.Body()) > 0 {
			if err := c.BodyParser(&req); err != nil {
				return apperrors.NewValidationError("invalid payload", nil)
			}
		}
		in = service.ProfileInput{
			Name:         req.Name,
			Email:        req.Email,
			Phone:        req.Phone,
			Address:      req.Address,
			DeleteAvatar: req.DeleteProfilePicture,
		}
	}

	res, err := h.auth.UpdateProfile(c.UserContext(), user.ID, in)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.NewAuthResponse(res.User, res.Token)})
}

// Avatar handles GET /auth/avatar/:userId. Public.
func (h *AuthHandler) Avatar(c *fiber.Ctx) error {
	body, info, err := h.auth.Avatar(c.UserContext(), c.Params("userId"))
	if err != nil {
		return err
	}
	if info.ContentType != "" {
		c.Set(fiber.HeaderContentType, info.ContentType)
	}
	c.Set(fiber.HeaderCacheControl, "private, max-age=300")
	size := -1
	if info.Size > 0 {
		size = int(info.Size)
	}
	return c.SendStream(body, size)
}

// ChangePassword handles PUT /auth/password.
func (h *AuthHandler) ChangePassword(c *fiber.Ctx) error {
	user, err := currentUser(c)
	if err != nil {
		return err
	}
	var req dto.ChangePasswordRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	if err := h.auth.ChangePassword(c.UserContext(), user.ID, req.OldPassword, req.NewPassword); err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.MessageResponse{Message: "Password updated successfully"}})
}

// ForgotPassword handles POST /auth/forgotpassword.
func (h *AuthHandler) ForgotPassword(c *fiber.Ctx) error {
	var req dto.ForgotPasswordRequest
	if err := c.BodyParser(&req); err != nil || req.Email == "" {
		return apperrors.NewValidationError("email required", nil)
	}
	if err := h.auth.ForgotPassword(c.UserContext(), req.Email); err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.MessageResponse{Message: "Email sent"}})
}

// ResetPassword handles PUT /auth/resetpassword/:token.
func (h *AuthHandler) ResetPassword(c *fiber.Ctx) error {
	var req dto.ResetPasswordRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	res, err := h.auth.ResetPassword(c.UserContext(), c.Params("token"), req.Password)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.NewAuthResponse(res.User, res.Token)})
}

// DeleteMe handles DELETE /auth/me.
func (h *AuthHandler) DeleteMe(c *fiber.Ctx) error {
	user, err := currentUser(c)
	if err != nil {
		return err
	}
	if err := h.auth.DeleteAccount(c.UserContext(), user.ID); err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.MessageResponse{Message: "Account deleted"}})
}

// Developers handles GET /auth/developers.
func (h *AuthHandler) Developers(c *fiber.Ctx) error {
	return h.listRole(c, domain.RoleDeveloper)
}

// Users handles GET /auth/users.
func (h *AuthHandler) Users(c *fiber.Ctx) error {
	return h.listRole(c, domain.RoleUser)
}

// AllUsers handles GET /auth/users/all. Admin only.
func (h *AuthHandler) AllUsers(c *fiber.Ctx) error {
	users, err := h.auth.ListAll(c.UserContext())
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.NewUserResponses(users)})
}

func (h *AuthHandler) listRole(c *fiber.Ctx, role domain.Role) error {
	users, err := h.auth.ListByRole(c.UserContext(), role)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.NewUserResponses(users)})
}
