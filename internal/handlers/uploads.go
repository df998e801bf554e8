package handlers

import (
	"fmt"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/procur/backend/internal/middleware"
	"github.com/procur/backend/internal/models"
	"github.com/procur/backend/internal/policy"
	"github.com/procur/backend/internal/storage"
	"github.com/procur/backend/pkg/logger"
	"github.com/procur/backend/pkg/utils"
	"gorm.io/gorm"
)

const maxImageSize = 5 * 1024 * 1024

var allowedImageTypes = map[string]bool{
	"image/png":  true,
	"image/jpeg": true,
	"image/webp": true,
	"image/gif":  true,
}

type UploadsHandler struct {
	DB     *gorm.DB
	Store  *storage.ObjectStore
	Policy *policy.Policy
}

func NewUploadsHandler(db *gorm.DB, store *storage.ObjectStore, pol *policy.Policy) *UploadsHandler {
	return &UploadsHandler{DB: db, Store: store, Policy: pol}
}

func (h *UploadsHandler) UploadAvatar(c *fiber.Ctx) error {
	currentUser := middleware.GetCurrentUser(c)
	if currentUser == nil {
		return utils.Error(c, fiber.StatusUnauthorized, "unauthorized")
	}

	upload, err := h.storeImage(c, models.UploadKindAvatar, nil, "avatars")
	if err != nil {
		return err // already written as a response
	}

	avatarURL := "/api/uploads/" + upload.ID.String()
	if err := h.DB.Model(&models.User{}).
		Where("id = ?", currentUser.ID).
		Update("avatar_url", avatarURL).Error; err != nil {
		return utils.Error(c, fiber.StatusInternalServerError, "failed updating avatar")
	}

	logger.InfoWithUser(currentUser.ID.String(), "avatar_uploaded", map[string]interface{}{
		"upload_id": upload.ID.String(),
		"size":      upload.Size,
	})

	return utils.Success(c, fiber.StatusCreated, fiber.Map{
		"upload":    upload,
		"avatarURL": avatarURL,
	})
}

func (h *UploadsHandler) DeleteAvatar(c *fiber.Ctx) error {
	currentUser := middleware.GetCurrentUser(c)
	if currentUser == nil {
		return utils.Error(c, fiber.StatusUnauthorized, "unauthorized")
	}

	var upload models.Upload
	err := h.DB.
		Where("owner_id = ? AND kind = ?", currentUser.ID, models.UploadKindAvatar).
		Order("created_at DESC").
		First(&upload).Error
	if err != nil {
		return utils.Error(c, fiber.StatusNotFound, "no avatar to delete")
	}

	if err := h.Store.Delete(c.Context(), upload.StoragePath); err != nil {
		return utils.Error(c, fiber.StatusInternalServerError, "failed deleting avatar")
	}
	if err := h.DB.Delete(&models.Upload{}, "id = ?", upload.ID).Error; err != nil {
		return utils.Error(c, fiber.StatusInternalServerError, "failed deleting avatar")
	}
	if err := h.DB.Model(&models.User{}).
		Where("id = ?", currentUser.ID).
		Update("avatar_url", nil).Error; err != nil {
		return utils.Error(c, fiber.StatusInternalServerError, "failed updating profile")
	}

	return utils.Success(c, fiber.StatusOK, fiber.Map{"message": "avatar deleted"})
}

func (h *UploadsHandler) UploadGroupLogo(c *fiber.Ctx) error {
	currentUser := middleware.GetCurrentUser(c)
	if currentUser == nil {
		return utils.Error(c, fiber.StatusUnauthorized, "unauthorized")
	}

	groupID, err := parseUUID(c.Params("groupId"))
	if err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "invalid group id")
	}

	if _, err := h.Policy.RequireAdmin(groupID, currentUser.ID); err != nil {
		return policyError(c, err)
	}

	upload, err := h.storeImage(c, models.UploadKindGroupLogo, &groupID, "group-logos")
	if err != nil {
		return err
	}

	logoURL := "/api/uploads/" + upload.ID.String()
	if err := h.DB.Model(&models.Group{}).
		Where("id = ?", groupID).
		Update("logo_url", logoURL).Error; err != nil {
		return utils.Error(c, fiber.StatusInternalServerError, "failed updating group logo")
	}

	logger.InfoWithUser(currentUser.ID.String(), "group_logo_uploaded", map[string]interface{}{
		"group_id":  groupID.String(),
		"upload_id": upload.ID.String(),
	})

	return utils.Success(c, fiber.StatusCreated, fiber.Map{
		"upload":  upload,
		"logoURL": logoURL,
	})
}

// Get redirects to a short-lived presigned URL so image bytes are served by
// MinIO instead of flowing through the API process.
func (h *UploadsHandler) Get(c *fiber.Ctx) error {
	uploadID, err := parseUUID(c.Params("id"))
	if err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "invalid upload id")
	}

	var upload models.Upload
	if err := h.DB.First(&upload, "id = ?", uploadID).Error; err != nil {
		return utils.Error(c, fiber.StatusNotFound, "upload not found")
	}

	url, err := h.Store.PresignedGetURL(c.Context(), upload.StoragePath, 15*time.Minute)
	if err != nil {
		return utils.Error(c, fiber.StatusInternalServerError, "failed generating download url")
	}

	return c.Redirect(url, fiber.StatusTemporaryRedirect)
}

// storeImage validates and persists a multipart image, writing an error
// response itself when validation fails.
func (h *UploadsHandler) storeImage(c *fiber.Ctx, kind models.UploadKind, groupID *uuid.UUID, prefix string) (*models.Upload, error) {
	currentUser := middleware.GetCurrentUser(c)

	fileHeader, err := c.FormFile("file")
	if err != nil {
		return nil, utils.Error(c, fiber.StatusBadRequest, "file is required")
	}
	if fileHeader.Size > maxImageSize {
		return nil, utils.Error(c, fiber.StatusBadRequest, "file exceeds the 5MB limit")
	}

	contentType := fileHeader.Header.Get("Content-Type")
	if !allowedImageTypes[contentType] {
		return nil, utils.Error(c, fiber.StatusBadRequest, "file must be a png, jpeg, webp, or gif image")
	}

	file, err := fileHeader.Open()
	if err != nil {
		return nil, utils.Error(c, fiber.StatusInternalServerError, "failed reading file")
	}
	defer file.Close()

	upload := models.Upload{
		OwnerID:     currentUser.ID,
		GroupID:     groupID,
		Kind:        kind,
		FileName:    fileHeader.Filename,
		ContentType: contentType,
		Size:        fileHeader.Size,
	}

	if err := h.DB.Create(&upload).Error; err != nil {
		return nil, utils.Error(c, fiber.StatusInternalServerError, "failed recording upload")
	}

	storagePath := fmt.Sprintf("%s/%s", prefix, upload.ID.String())
	if err := h.Store.Upload(c.Context(), storagePath, file, fileHeader.Size, contentType); err != nil {
		h.DB.Delete(&models.Upload{}, "id = ?", upload.ID)
		return nil, utils.Error(c, fiber.StatusInternalServerError, "failed storing file")
	}

	if err := h.DB.Model(&upload).Update("storage_path", storagePath).Error; err != nil {
		return nil, utils.Error(c, fiber.StatusInternalServerError, "failed recording upload")
	}
	upload.StoragePath = storagePath

	return &upload, nil
}
