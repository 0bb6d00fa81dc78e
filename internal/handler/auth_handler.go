package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"golang.org/x/crypto/bcrypt"

	"autoline-go/internal/config"
	"autoline-go/pkg/log"
	"autoline-go/pkg/token"
)

// AuthHandler 负责运营后台的登录与令牌刷新。
// 后台只有配置文件里的单一运营账号，没有用户注册体系。
type AuthHandler struct {
	adminCfg   config.AdminConfig
	jwtManager *token.JWTManager
}

// NewAuthHandler 创建一个新的 AuthHandler 实例。
func NewAuthHandler(adminCfg config.AdminConfig, jwtManager *token.JWTManager) *AuthHandler {
	return &AuthHandler{adminCfg: adminCfg, jwtManager: jwtManager}
}

// LoginRequest 定义了后台登录 API 的请求体结构。
type LoginRequest struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
}

// Login 处理运营后台登录请求，校验通过后签发 access/refresh 令牌。
func (h *AuthHandler) Login(c *gin.Context) {
	var req LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		log.Warnf("Login: Invalid request payload, error: %v", err)
		c.JSON(http.StatusBadRequest, gin.H{
			"code":    http.StatusBadRequest,
			"message": "无效的请求负载：用户名和密码不能为空",
		})
		return
	}

	if req.Username != h.adminCfg.Username ||
		bcrypt.CompareHashAndPassword([]byte(h.adminCfg.PasswordHash), []byte(req.Password)) != nil {
		log.Warnf("Login: admin authentication failed for '%s'", req.Username)
		c.JSON(http.StatusUnauthorized, gin.H{
			"code":    http.StatusUnauthorized,
			"message": "无效的凭证",
		})
		return
	}

	accessToken, err := h.jwtManager.GenerateToken(req.Username, "ADMIN")
	if err != nil {
		log.Error("Login: failed to generate access token", err)
		c.JSON(http.StatusInternalServerError, gin.H{
			"code":    http.StatusInternalServerError,
			"message": "生成令牌失败",
		})
		return
	}
	refreshToken, err := h.jwtManager.GenerateRefreshToken(req.Username, "ADMIN")
	if err != nil {
		log.Error("Login: failed to generate refresh token", err)
		c.JSON(http.StatusInternalServerError, gin.H{
			"code":    http.StatusInternalServerError,
			"message": "生成令牌失败",
		})
		return
	}

	log.Infof("Admin '%s' logged in successfully", req.Username)
	c.JSON(http.StatusOK, gin.H{
		"code":    http.StatusOK,
		"message": "登录成功",
		"data": gin.H{
			"accessToken":  accessToken,
			"refreshToken": refreshToken,
		},
	})
}

// RefreshRequest 定义了刷新令牌 API 的请求体结构。
type RefreshRequest struct {
	RefreshToken string `json:"refreshToken" binding:"required"`
}

// Refresh 用有效的 refresh token 换取新的 access token。
func (h *AuthHandler) Refresh(c *gin.Context) {
	var req RefreshRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"code":    http.StatusBadRequest,
			"message": "无效的请求负载：refreshToken 不能为空",
		})
		return
	}

	claims, err := h.jwtManager.VerifyToken(req.RefreshToken)
	if err != nil {
		log.Warnf("Refresh: invalid refresh token, error: %v", err)
		c.JSON(http.StatusUnauthorized, gin.H{
			"code":    http.StatusUnauthorized,
			"message": "refresh token 无效或已过期",
		})
		return
	}

	accessToken, err := h.jwtManager.GenerateToken(claims.Username, claims.Role)
	if err != nil {
		log.Error("Refresh: failed to generate access token", err)
		c.JSON(http.StatusInternalServerError, gin.H{
			"code":    http.StatusInternalServerError,
			"message": "生成令牌失败",
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"code":    http.StatusOK,
		"message": "刷新成功",
		"data":    gin.H{"accessToken": accessToken},
	})
}
