package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"pwanotify/internal/services"
)

// UserHandler is the admin user management API.
type UserHandler struct {
	users *services.UserService
}

func NewUserHandler(users *services.UserService) *UserHandler {
	return &UserHandler{users: users}
}

type CreateUserRequest struct {
	WhatsAppNumber string `json:"whatsapp_number"`
	Password       string `json:"password"`
}

type UpdateUserRequest struct {
	WhatsAppNumber *string `json:"whatsapp_number"`
	Password       *string `json:"password"`
	Verified       *bool   `json:"verified"`
}

// @Summary      Список клиентов
// @Tags         Users
// @Produce      json
// @Security     BearerAuth
// @Success      200  {object}  map[string]interface{}
// @Router       /api/users [get]
func (h *UserHandler) List(c *gin.Context) {
	users, err := h.users.ListClients(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"users": users})
}

// @Summary      Клиент по ID
// @Tags         Users
// @Produce      json
// @Security     BearerAuth
// @Param        id   path      string  true  "User ID"
// @Success      200  {object}  map[string]interface{}
// @Failure      404  {object}  map[string]string
// @Router       /api/users/{id} [get]
func (h *UserHandler) Get(c *gin.Context) {
	user, err := h.users.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"user": user})
}

// @Summary      Создать клиента (сразу подтверждён)
// @Tags         Users
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        body  body      CreateUserRequest  true  "Клиент"
// @Success      201   {object}  map[string]interface{}
// @Failure      400   {object}  map[string]string
// @Failure      409   {object}  map[string]string
// @Router       /api/users [post]
func (h *UserHandler) Create(c *gin.Context) {
	var req CreateUserRequest
	if !bindJSON(c, &req) {
		return
	}
	if req.WhatsAppNumber == "" || req.Password == "" {
		badRequest(c, "WhatsApp number and password are required")
		return
	}
	user, err := h.users.CreateClient(c.Request.Context(), req.WhatsAppNumber, req.Password)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"message": "User created successfully", "user": user})
}

// @Summary      Обновить клиента
// @Tags         Users
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        id    path      string             true  "User ID"
// @Param        body  body      UpdateUserRequest  true  "Изменения"
// @Success      200   {object}  map[string]interface{}
// @Failure      404   {object}  map[string]string
// @Failure      409   {object}  map[string]string
// @Router       /api/users/{id} [put]
func (h *UserHandler) Update(c *gin.Context) {
	var req UpdateUserRequest
	if !bindJSON(c, &req) {
		return
	}
	user, err := h.users.Update(c.Request.Context(), c.Param("id"), services.UserUpdate{
		WhatsAppNumber: req.WhatsAppNumber,
		Password:       req.Password,
		Verified:       req.Verified,
	})
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "User updated successfully", "user": user})
}

// @Summary      Удалить пользователя
// @Tags         Users
// @Produce      json
// @Security     BearerAuth
// @Param        id   path      string  true  "User ID"
// @Success      200  {object}  map[string]string
// @Failure      404  {object}  map[string]string
// @Router       /api/users/{id} [delete]
func (h *UserHandler) Delete(c *gin.Context) {
	if err := h.users.Delete(c.Request.Context(), c.Param("id")); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "User deleted successfully"})
}
