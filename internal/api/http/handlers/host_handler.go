package handlers

import (
	"net/http"

	"github.com/gofiber/fiber/v2"

	"github.com/staylink/verification-service/internal/api/dto"
	"github.com/staylink/verification-service/internal/domain"
	"github.com/staylink/verification-service/internal/service"
)

// HostHandler serves property verification for the owning host.
type HostHandler struct {
	submissions *service.SubmissionService
}

// NewHostHandler constructs handler.
func NewHostHandler(submissions *service.SubmissionService) *HostHandler {
	return &HostHandler{submissions: submissions}
}

// RegisterProperty handles POST /host/properties.
func (h *HostHandler) RegisterProperty(c *fiber.Ctx) error {
	user, err := currentUser(c)
	if err != nil {
		return err
	}
	subject, err := h.submissions.RegisterProperty(c.UserContext(), user.ID)
	if err != nil {
		return err
	}
	return c.Status(http.StatusCreated).JSON(dto.NewSubjectEnvelope(subject, nil))
}

// ListProperties handles GET /host/properties.
func (h *HostHandler) ListProperties(c *fiber.Ctx) error {
	user, err := currentUser(c)
	if err != nil {
		return err
	}
	subjects, err := h.submissions.ListProperties(c.UserContext(), user.ID)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.Subjects(subjects)})
}

// GetVerification handles GET /host/properties/:id/verification.
func (h *HostHandler) GetVerification(c *fiber.Ctx) error {
	user, err := currentUser(c)
	if err != nil {
		return err
	}
	result, err := h.submissions.GetProperty(c.UserContext(), user.ID, c.Params("id"))
	if err != nil {
		return err
	}
	return c.JSON(dto.NewSubjectEnvelope(result.Subject, result.Warnings))
}

// SubmitGroup handles POST /host/properties/:id/documents/:kind.
func (h *HostHandler) SubmitGroup(c *fiber.Ctx) error {
	user, err := currentUser(c)
	if err != nil {
		return err
	}
	kind, err := domain.ParseGroupKind(c.Params("kind"))
	if err != nil {
		return err
	}
	uploads, release, err := readUploads(c)
	if err != nil {
		return err
	}
	defer release()

	result, err := h.submissions.SubmitGroup(c.UserContext(), user.ID, c.Params("id"), kind, uploads)
	if err != nil {
		return err
	}
	return c.JSON(dto.NewSubjectEnvelope(result.Subject, result.Warnings))
}

// ToggleListing handles PUT /host/properties/:id/listing.
func (h *HostHandler) ToggleListing(c *fiber.Ctx) error {
	user, err := currentUser(c)
	if err != nil {
		return err
	}
	var req dto.ListingRequest
	if err := parseBody(c, &req); err != nil {
		return err
	}
	result, err := h.submissions.ToggleListing(c.UserContext(), user.ID, c.Params("id"), *req.Listed)
	if err != nil {
		return err
	}
	return c.JSON(dto.NewSubjectEnvelope(result.Subject, result.Warnings))
}

// CompleteOnboarding handles PUT /host/properties/:id/onboarding.
func (h *HostHandler) CompleteOnboarding(c *fiber.Ctx) error {
	user, err := currentUser(c)
	if err != nil {
		return err
	}
	result, err := h.submissions.MarkOnboardingCompleted(c.UserContext(), user.ID, c.Params("id"))
	if err != nil {
		return err
	}
	return c.JSON(dto.NewSubjectEnvelope(result.Subject, result.Warnings))
}

// RecordEdit handles POST /host/properties/:id/edits.
func (h *HostHandler) RecordEdit(c *fiber.Ctx) error {
	user, err := currentUser(c)
	if err != nil {
		return err
	}
	var req dto.FieldEditRequest
	if err := parseBody(c, &req); err != nil {
		return err
	}
	result, err := h.submissions.RecordFieldEdit(c.UserContext(), user.ID, c.Params("id"), req.Field)
	if err != nil {
		return err
	}
	return c.JSON(dto.NewSubjectEnvelope(result.Subject, result.Warnings))
}
