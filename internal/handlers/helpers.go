package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/samber/oops"

	"pwanotify/internal/authz"
	"pwanotify/internal/middleware"
	"pwanotify/internal/services"
)

// statusFor maps error kinds to HTTP statuses. Order matters: ErrInvalidOTP
// is a not-found kind but a bad request for the caller.
func statusFor(err error) int {
	switch {
	case errors.Is(err, services.ErrInvalidOTP), errors.Is(err, services.ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, services.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, services.ErrConflict):
		return http.StatusConflict
	case errors.Is(err, services.ErrUnauthorized):
		return http.StatusUnauthorized
	case errors.Is(err, services.ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, services.ErrRateLimited):
		return http.StatusTooManyRequests
	}
	return http.StatusInternalServerError
}

// respondError is the only place service errors become responses. 500s
// never carry the underlying message; the request logger prints the error.
func respondError(c *gin.Context, err error) {
	_ = c.Error(err)

	var vr *services.VerificationRequiredError
	if errors.As(err, &vr) {
		c.JSON(http.StatusForbidden, gin.H{
			"message":              "Account not verified. A new OTP has been sent to your WhatsApp number.",
			"userId":               vr.UserID,
			"requiresVerification": true,
		})
		return
	}

	status := statusFor(err)
	if status == http.StatusInternalServerError {
		c.JSON(status, gin.H{"message": "Server error"})
		return
	}
	c.JSON(status, gin.H{"message": oops.GetPublic(err, http.StatusText(status))})
}

func badRequest(c *gin.Context, message string) {
	c.JSON(http.StatusBadRequest, gin.H{"message": message})
}

// bindJSON answers 400 on a malformed body.
func bindJSON(c *gin.Context, dst any) bool {
	if err := c.ShouldBindJSON(dst); err != nil {
		_ = c.Error(err)
		badRequest(c, "Invalid request body")
		return false
	}
	return true
}

// currentPrincipal is safe after the Authenticate middleware.
func currentPrincipal(c *gin.Context) authz.Principal {
	p, _ := middleware.Principal(c)
	return p
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
