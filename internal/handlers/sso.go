package handlers

import (
	"encoding/base64"
	"encoding/json"
	"net/url"

	"github.com/gofiber/fiber/v2"
	"github.com/procur/backend/internal/config"
	"github.com/procur/backend/internal/models"
	"github.com/procur/backend/internal/services"
	"github.com/procur/backend/pkg/logger"
	"github.com/procur/backend/pkg/utils"
	"gorm.io/gorm"
)

type SSOHandler struct {
	DB           *gorm.DB
	Cfg          *config.Config
	OAuthService *services.OAuthProviderService
}

func NewSSOHandler(db *gorm.DB, cfg *config.Config) *SSOHandler {
	return &SSOHandler{
		DB:           db,
		Cfg:          cfg,
		OAuthService: services.NewOAuthProviderService(cfg),
	}
}

// GoogleLogin hands the frontend the Google authorization URL.
func (h *SSOHandler) GoogleLogin(c *fiber.Ctx) error {
	oauthCfg, err := h.OAuthService.GoogleConfig()
	if err != nil {
		return utils.Error(c, fiber.StatusBadRequest, err.Error())
	}

	state, err := h.OAuthService.GenerateState()
	if err != nil {
		return utils.Error(c, fiber.StatusInternalServerError, "failed generating state")
	}

	stateJSON, _ := json.Marshal(state)
	stateEncoded := base64.URLEncoding.EncodeToString(stateJSON)

	return utils.Success(c, fiber.StatusOK, fiber.Map{
		"url": oauthCfg.AuthCodeURL(stateEncoded),
	})
}

// GoogleCallback exchanges the code, then signs the caller in, registering a
// pre-verified account on first contact. Errors land back on the frontend
// login page.
func (h *SSOHandler) GoogleCallback(c *fiber.Ctx) error {
	code := c.Query("code")
	frontendURL := h.Cfg.Server.FrontendURL

	if code == "" {
		return c.Redirect(frontendURL + "/login?error=" + url.QueryEscape("authorization code is required"))
	}

	oauthToken, err := h.OAuthService.ExchangeCode(c.Context(), code)
	if err != nil {
		return c.Redirect(frontendURL + "/login?error=" + url.QueryEscape(err.Error()))
	}

	profile, err := h.OAuthService.GetUserInfo(c.Context(), oauthToken)
	if err != nil {
		return c.Redirect(frontendURL + "/login?error=" + url.QueryEscape(err.Error()))
	}

	user, err := h.findOrCreateUser(profile)
	if err != nil {
		return c.Redirect(frontendURL + "/login?error=" + url.QueryEscape(err.Error()))
	}
	if !user.IsActive {
		return c.Redirect(frontendURL + "/login?error=" + url.QueryEscape("account disabled"))
	}

	token, err := utils.GenerateToken(user)
	if err != nil {
		return c.Redirect(frontendURL + "/login?error=" + url.QueryEscape("failed to generate token"))
	}

	logger.InfoWithUser(user.ID.String(), "sso_login_success", map[string]interface{}{
		"email": user.Email,
	})

	return c.Redirect(frontendURL + "/auth/callback?token=" + token)
}

func (h *SSOHandler) findOrCreateUser(profile *services.SSOProfile) (*models.User, error) {
	var user models.User
	err := h.DB.First(&user, "email = ?", profile.Email).Error
	if err == nil {
		if profile.EmailVerified && !user.IsVerified {
			h.DB.Model(&user).Update("is_verified", true)
		}
		return &user, nil
	}
	if err != gorm.ErrRecordNotFound {
		return nil, err
	}

	displayName := profile.DisplayName
	if displayName == "" {
		displayName = profile.Email
	}

	user = models.User{
		Email:       profile.Email,
		DisplayName: displayName,
		AvatarURL:   profile.AvatarURL,
		Role:        models.UserRoleUser,
		IsVerified:  profile.EmailVerified,
		IsActive:    true,
	}
	if err := h.DB.Create(&user).Error; err != nil {
		return nil, err
	}

	logger.InfoWithUser(user.ID.String(), "sso_user_registered", map[string]interface{}{
		"email": user.Email,
	})
	return &user, nil
}
