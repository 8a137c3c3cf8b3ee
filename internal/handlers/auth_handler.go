package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"pwanotify/internal/authz"
	"pwanotify/internal/models"
	"pwanotify/internal/services"
)

type AuthHandler struct {
	auth *services.AuthService
}

func NewAuthHandler(auth *services.AuthService) *AuthHandler {
	return &AuthHandler{auth: auth}
}

type RegisterRequest struct {
	Role           string `json:"role"`
	Handle         string `json:"handle"`
	WhatsAppNumber string `json:"whatsapp_number"`
	Username       string `json:"username"`
	Email          string `json:"email"`
	Password       string `json:"password"`
}

type LoginRequest struct {
	Identifier     string `json:"identifier"`
	WhatsAppNumber string `json:"whatsapp_number"`
	Username       string `json:"username"`
	Email          string `json:"email"`
	Password       string `json:"password"`
}

// @Summary      Регистрация
// @Description  Клиент получает OTP в WhatsApp, администратор сразу активен
// @Tags         Auth
// @Accept       json
// @Produce      json
// @Param        body  body      RegisterRequest  true  "Данные регистрации"
// @Success      201   {object}  map[string]interface{}
// @Failure      400   {object}  map[string]string
// @Failure      403   {object}  map[string]string
// @Failure      409   {object}  map[string]string
// @Router       /api/auth/register [post]
func (h *AuthHandler) Register(c *gin.Context) {
	var req RegisterRequest
	if !bindJSON(c, &req) {
		return
	}
	reg, err := models.RegistrationInput{
		Role:           req.Role,
		Handle:         req.Handle,
		WhatsAppNumber: req.WhatsAppNumber,
		Username:       req.Username,
		Email:          req.Email,
		Password:       req.Password,
	}.Normalize()
	if err != nil {
		respondError(c, err)
		return
	}

	id, err := h.auth.Register(c.Request.Context(), reg)
	if err != nil {
		respondError(c, err)
		return
	}
	msg := "User registered successfully. Please verify your WhatsApp number with the OTP sent."
	if reg.Role() == authz.RoleAdmin {
		msg = "Admin registered successfully. You can now login."
	}
	c.JSON(http.StatusCreated, gin.H{"message": msg, "userId": id})
}

// @Summary      Вход
// @Description  Идентификатор: email, номер WhatsApp или username
// @Tags         Auth
// @Accept       json
// @Produce      json
// @Param        body  body      LoginRequest  true  "Данные для входа"
// @Success      200   {object}  map[string]interface{}
// @Failure      400   {object}  map[string]string
// @Failure      401   {object}  map[string]string
// @Failure      403   {object}  map[string]interface{}
// @Router       /api/auth/login [post]
func (h *AuthHandler) Login(c *gin.Context) {
	var req LoginRequest
	if !bindJSON(c, &req) {
		return
	}
	if req.Password == "" {
		badRequest(c, "Password is required")
		return
	}
	raw := firstNonEmpty(req.Identifier, req.WhatsAppNumber, req.Email, req.Username)
	if raw == "" {
		badRequest(c, "WhatsApp number, username, or email is required")
		return
	}

	res, err := h.auth.Login(c.Request.Context(), models.ParseIdentifier(raw), req.Password)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Login successful", "token": res.Token, "user": res.User})
}

// @Summary      Текущий пользователь
// @Tags         Auth
// @Produce      json
// @Security     BearerAuth
// @Success      200  {object}  map[string]interface{}
// @Failure      401  {object}  map[string]string
// @Router       /api/auth/me [get]
func (h *AuthHandler) Me(c *gin.Context) {
	user, err := h.auth.Me(c.Request.Context(), currentPrincipal(c).UserID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"user": user})
}
