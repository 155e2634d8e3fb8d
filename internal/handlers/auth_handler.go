package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/harentsoaR/clinic-api/internal/services"
)

func (h *Handler) Register(c *gin.Context) {
	var req services.RegisterInput
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c)
		return
	}

	res, err := h.Identity.Register(c.Request.Context(), req)
	if err != nil {
		h.respondError(c, err, "Server error during registration")
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"message": "User registered successfully",
		"user":    res.User,
		"token":   res.Token,
	})
}

func (h *Handler) Login(c *gin.Context) {
	var req struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c)
		return
	}

	res, err := h.Identity.Login(c.Request.Context(), req.Email, req.Password)
	if err != nil {
		h.respondError(c, err, "Server error during login")
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message": "Login successful",
		"user":    res.User,
		"token":   res.Token,
	})
}

func (h *Handler) GoogleLogin(c *gin.Context) {
	var req struct {
		Credential string `json:"credential"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c)
		return
	}

	res, err := h.Identity.LoginWithGoogle(c.Request.Context(), req.Credential)
	if err != nil {
		h.respondError(c, err, "Server error during Google login")
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message": "Google login successful",
		"user":    res.User,
		"token":   res.Token,
	})
}

// GetCurrentUser returns the profile of the authenticated user.
func (h *Handler) GetCurrentUser(c *gin.Context) {
	user, err := h.Identity.Profile(c.Request.Context(), currentUserID(c))
	if err != nil {
		h.respondError(c, err, "Server error")
		return
	}
	c.JSON(http.StatusOK, gin.H{"user": user})
}

// UpdateCurrentUser changes name and/or phone. Empty fields are left alone.
func (h *Handler) UpdateCurrentUser(c *gin.Context) {
	var req services.ProfileUpdate
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c)
		return
	}

	user, err := h.Identity.UpdateProfile(c.Request.Context(), currentUserID(c), req)
	if err != nil {
		h.respondError(c, err, "Server error")
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Profile updated", "user": user})
}
