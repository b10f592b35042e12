package handlers

import (
	"github.com/gofiber/fiber/v2"

	"github.com/staylink/verification-service/internal/api/dto"
	"github.com/staylink/verification-service/internal/service"
)

// PartnerHandler serves the partner's own identity verification.
type PartnerHandler struct {
	submissions *service.SubmissionService
}

// NewPartnerHandler constructs handler.
func NewPartnerHandler(submissions *service.SubmissionService) *PartnerHandler {
	return &PartnerHandler{submissions: submissions}
}

// GetVerification handles GET /partner/verification.
func (h *PartnerHandler) GetVerification(c *fiber.Ctx) error {
	user, err := currentUser(c)
	if err != nil {
		return err
	}
	result, err := h.submissions.GetPartnerSubject(c.UserContext(), user.ID)
	if err != nil {
		return err
	}
	return c.JSON(dto.NewSubjectEnvelope(result.Subject, result.Warnings))
}

// SubmitIdentity handles POST /partner/verification/identity. It serves the
// first submission and every resubmission after a rejection; only the slots
// present in the form are replaced.
func (h *PartnerHandler) SubmitIdentity(c *fiber.Ctx) error {
	user, err := currentUser(c)
	if err != nil {
		return err
	}
	uploads, release, err := readUploads(c)
	if err != nil {
		return err
	}
	defer release()

	result, err := h.submissions.SubmitPartnerIdentity(c.UserContext(), user.ID, uploads)
	if err != nil {
		return err
	}
	return c.JSON(dto.NewSubjectEnvelope(result.Subject, result.Warnings))
}
