package handlers

import (
	"errors"
	"io"
	"mime/multipart"
	"sort"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"

	"github.com/staylink/verification-service/internal/auth"
	"github.com/staylink/verification-service/internal/domain"
	"github.com/staylink/verification-service/internal/storage"
	apperrors "github.com/staylink/verification-service/pkg/util/errorutil"
)

var validate = validator.New()

// parseBody decodes the JSON body into dst and runs its validate tags.
func parseBody(c *fiber.Ctx, dst any) error {
	if err := c.BodyParser(dst); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	return validateStruct(dst)
}

func parseQuery(c *fiber.Ctx, dst any) error {
	if err := c.QueryParser(dst); err != nil {
		return apperrors.NewValidationError("invalid query", nil)
	}
	return validateStruct(dst)
}

func validateStruct(v any) error {
	err := validate.Struct(v)
	if err == nil {
		return nil
	}
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	details := make(map[string]any, len(fieldErrs))
	for _, fe := range fieldErrs {
		details[strings.ToLower(fe.Field())] = fe.Tag()
	}
	return apperrors.NewValidationError("request validation failed", details)
}

func currentUser(c *fiber.Ctx) (*domain.User, error) {
	principal, ok := auth.PrincipalFromContext(c)
	if !ok || principal.User == nil {
		return nil, apperrors.NewUnauthorized("partner account required")
	}
	return principal.User, nil
}

func currentOperator(c *fiber.Ctx) (*domain.Operator, error) {
	principal, ok := auth.PrincipalFromContext(c)
	if !ok || principal.Operator == nil {
		return nil, apperrors.NewUnauthorized("operator account required")
	}
	return principal.Operator, nil
}

// readUploads turns a multipart form into one Upload per form file field; the
// field name is the artifact slot. The returned closer releases every opened file.
func readUploads(c *fiber.Ctx) ([]storage.Upload, func(), error) {
	form, err := c.MultipartForm()
	if err != nil {
		return nil, func() {}, apperrors.NewValidationError("multipart form expected", nil)
	}

	slots := make([]string, 0, len(form.File))
	for slot, files := range form.File {
		if len(files) > 0 {
			slots = append(slots, slot)
		}
	}
	sort.Strings(slots)

	var opened []io.Closer
	release := func() {
		for _, f := range opened {
			_ = f.Close()
		}
	}

	uploads := make([]storage.Upload, 0, len(slots))
	for _, slot := range slots {
		header := form.File[slot][0]
		file, err := header.Open()
		if err != nil {
			release()
			return nil, func() {}, apperrors.NewValidationError("unreadable file", map[string]any{"slot": slot})
		}
		opened = append(opened, file)
		uploads = append(uploads, uploadFromHeader(slot, header, file))
	}
	return uploads, release, nil
}

func uploadFromHeader(slot string, header *multipart.FileHeader, body io.Reader) storage.Upload {
	return storage.Upload{
		Slot:        slot,
		Filename:    header.Filename,
		ContentType: header.Header.Get("Content-Type"),
		Size:        header.Size,
		Body:        body,
	}
}
