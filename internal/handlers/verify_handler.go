package handlers

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"pwanotify/internal/services"
)

// VerifyHandler serves the OTP half of the auth flow.
type VerifyHandler struct {
	auth *services.AuthService
}

func NewVerifyHandler(auth *services.AuthService) *VerifyHandler {
	return &VerifyHandler{auth: auth}
}

type VerifyOTPRequest struct {
	UserID  string `json:"userId"`
	OTPCode string `json:"otpCode"`
}

type ResendOTPRequest struct {
	UserID string `json:"userId"`
}

// @Summary      Подтверждение кода из WhatsApp
// @Tags         Auth
// @Accept       json
// @Produce      json
// @Param        body  body      VerifyOTPRequest  true  "userId и код"
// @Success      200   {object}  map[string]interface{}
// @Failure      400   {object}  map[string]string
// @Failure      404   {object}  map[string]string
// @Router       /api/auth/verify-otp [post]
func (h *VerifyHandler) VerifyOTP(c *gin.Context) {
	var req VerifyOTPRequest
	if !bindJSON(c, &req) {
		return
	}
	res, err := h.auth.VerifyOTP(c.Request.Context(), strings.TrimSpace(req.UserID), strings.TrimSpace(req.OTPCode))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"message": "WhatsApp number verified successfully",
		"token":   res.Token,
		"user":    res.User,
	})
}

// @Summary      Повторная отправка кода
// @Tags         Auth
// @Accept       json
// @Produce      json
// @Param        body  body      ResendOTPRequest  true  "userId"
// @Success      200   {object}  map[string]interface{}
// @Failure      400   {object}  map[string]string
// @Failure      404   {object}  map[string]string
// @Failure      429   {object}  map[string]string
// @Router       /api/auth/resend-otp [post]
func (h *VerifyHandler) ResendOTP(c *gin.Context) {
	var req ResendOTPRequest
	if !bindJSON(c, &req) {
		return
	}
	id := strings.TrimSpace(req.UserID)
	if id == "" {
		badRequest(c, "User ID is required")
		return
	}
	if err := h.auth.ResendOTP(c.Request.Context(), id); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "OTP resent successfully", "userId": id})
}
