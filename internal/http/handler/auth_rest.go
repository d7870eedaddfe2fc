package handler

import (
	"fmt"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/Crow-Studio/vikings-eccomerce-sub001/internal/http/middleware"
	"github.com/Crow-Studio/vikings-eccomerce-sub001/internal/service"
)

func (h *AuthHandler) SignUp(c *gin.Context) {
	var req struct {
		Email    string `json:"email"`
		Username string `json:"username"`
		Password string `json:"password"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		invalidPayload(c)
		return
	}

	res, err := h.Auth.SignUp(c.Request.Context(), service.SignUpInput{
		Email:    req.Email,
		Username: req.Username,
		Password: req.Password,
		ClientIP: c.ClientIP(),
	})
	if err != nil {
		respondError(c, err)
		return
	}

	h.Cookie.Set(c, res.Token, res.Session.ExpiresAt)
	respondMessage(c, res.Message)
}

func (h *AuthHandler) SignIn(c *gin.Context) {
	var req struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		invalidPayload(c)
		return
	}

	res, err := h.Auth.SignIn(c.Request.Context(), service.SignInInput{
		Email:    req.Email,
		Password: req.Password,
		ClientIP: c.ClientIP(),
	})
	if err != nil {
		respondError(c, err)
		return
	}

	h.Cookie.Set(c, res.Token, res.Session.ExpiresAt)
	respondMessage(c, res.Message)
}

func (h *AuthHandler) SignOut(c *gin.Context) {
	sess, ok := middleware.GetSession(c)
	if !ok {
		respondError(c, &service.AuthError{Kind: service.KindAuthentication, Message: "Not authenticated"})
		return
	}
	if err := h.Auth.SignOut(c.Request.Context(), sess.ID); err != nil {
		respondError(c, err)
		return
	}
	h.Cookie.Clear(c)
	respondMessage(c, "Signed out")
}

func (h *AuthHandler) VerifyEmail(c *gin.Context) {
	var req struct {
		Code string `json:"code"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		invalidPayload(c)
		return
	}
	user, _ := middleware.GetUser(c)

	msg, err := h.Auth.VerifyEmail(c.Request.Context(), user, req.Code)
	if err != nil {
		respondError(c, err)
		return
	}
	respondMessage(c, msg)
}

func (h *AuthHandler) ResendVerificationCode(c *gin.Context) {
	user, _ := middleware.GetUser(c)

	msg, err := h.Auth.ResendVerificationCode(c.Request.Context(), user)
	if err != nil {
		respondError(c, err)
		return
	}
	respondMessage(c, msg)
}

func (h *AuthHandler) Me(c *gin.Context) {
	user, ok := middleware.GetUser(c)
	if !ok {
		respondError(c, &service.AuthError{Kind: service.KindAuthentication, Message: "Not authenticated"})
		return
	}
	c.JSON(http.StatusOK, service.NewUserViewModel(*user))
}

// RevokeUserSessions signs the target user out of every device.
func (h *AuthHandler) RevokeUserSessions(c *gin.Context) {
	userID, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		respondError(c, &service.AuthError{Kind: service.KindValidation, Message: "Invalid user id."})
		return
	}
	actor, _ := middleware.GetUser(c)

	n, err := h.Auth.RevokeUserSessions(c.Request.Context(), actor, userID)
	if err != nil {
		respondError(c, err)
		return
	}
	respondMessage(c, fmt.Sprintf("Revoked %d sessions", n))
}

func Healthz(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}
