package handlers

import (
	"errors"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/procur/backend/internal/policy"
	"github.com/procur/backend/pkg/utils"
	"gorm.io/gorm"
)

func parseUUID(value string) (uuid.UUID, error) {
	return uuid.Parse(strings.TrimSpace(value))
}

// policyError maps the policy package's sentinel errors onto the response
// envelope in one place so every handler reports them identically.
func policyError(c *fiber.Ctx, err error) error {
	switch {
	case errors.Is(err, policy.ErrNotFound), errors.Is(err, gorm.ErrRecordNotFound):
		return utils.Error(c, fiber.StatusNotFound, "group not found")
	case errors.Is(err, policy.ErrForbidden):
		return utils.Error(c, fiber.StatusForbidden, "insufficient permissions")
	case errors.Is(err, policy.ErrAlreadyMember):
		return utils.Error(c, fiber.StatusConflict, "already a member of this group")
	default:
		return utils.Error(c, fiber.StatusInternalServerError, "authorization check failed")
	}
}

func isValidEmail(value string) bool {
	value = strings.TrimSpace(value)
	at := strings.Index(value, "@")
	if at < 1 || at == len(value)-1 {
		return false
	}
	domain := value[at+1:]
	return strings.Contains(domain, ".") && !strings.ContainsAny(value, " \t")
}
