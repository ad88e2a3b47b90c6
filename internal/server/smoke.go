package server

import (
	"context"
	"io"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

const smokePayload = "smoke-upload"

// MediaStore is the part of a container the smoke routes touch.
type MediaStore interface {
	Put(ctx context.Context, key string, body io.Reader, size int64) error
	Get(ctx context.Context, key string) (io.ReadCloser, error)
	Exists(ctx context.Context, key string) (bool, error)
}

type smokeHandler struct {
	media  MediaStore
	logger *zap.Logger
	newID  func() string
}

func newSmokeHandler(media MediaStore, logger *zap.Logger, newID func() string) *smokeHandler {
	if newID == nil {
		newID = func() string { return strings.ReplaceAll(uuid.NewString(), "-", "") }
	}
	return &smokeHandler{media: media, logger: logger, newID: newID}
}

func (h *smokeHandler) Health(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{"status": "ok"})
}

// DebugTest probes a key that should not exist.
func (h *smokeHandler) DebugTest(c *fiber.Ctx) error {
	key := "smoke/debug/" + h.newID() + ".txt"

	exists, err := h.media.Exists(c.UserContext(), key)
	if err != nil {
		h.logger.Error("smoke debug test failed", zap.String("key", key), zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).SendString("Smoke debug test failed.")
	}

	return c.JSON(fiber.Map{
		"status":       "ok",
		"path":         key,
		"existsBefore": exists,
	})
}

// MediaUpload writes a small object, confirms it exists and reads it back.
func (h *smokeHandler) MediaUpload(c *fiber.Ctx) error {
	ctx := c.UserContext()
	key := "smoke/" + h.newID() + ".txt"

	fail := func(err error) error {
		h.logger.Error("smoke media upload failed", zap.String("key", key), zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).SendString("Smoke test media upload failed.")
	}

	if err := h.media.Put(ctx, key, strings.NewReader(smokePayload), int64(len(smokePayload))); err != nil {
		return fail(err)
	}

	exists, err := h.media.Exists(ctx, key)
	if err != nil {
		return fail(err)
	}
	if !exists {
		h.logger.Error("smoke upload not found after write", zap.String("key", key))
		return c.Status(fiber.StatusInternalServerError).SendString("Uploaded file was not found in media storage.")
	}

	rc, err := h.media.Get(ctx, key)
	if err != nil {
		return fail(err)
	}
	defer rc.Close()

	content, err := io.ReadAll(rc)
	if err != nil {
		return fail(err)
	}

	return c.JSON(fiber.Map{
		"status":  "ok",
		"path":    key,
		"exists":  true,
		"content": string(content),
	})
}
