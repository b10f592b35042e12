package handlers

import (
	"github.com/gofiber/fiber/v2"

	"github.com/staylink/verification-service/internal/api/dto"
	"github.com/staylink/verification-service/internal/domain"
	"github.com/staylink/verification-service/internal/service"
)

// OperatorHandler serves the review console.
type OperatorHandler struct {
	approvals *service.ApprovalService
}

// NewOperatorHandler constructs handler.
func NewOperatorHandler(approvals *service.ApprovalService) *OperatorHandler {
	return &OperatorHandler{approvals: approvals}
}

// ReviewQueue handles GET /operator/review-queue.
func (h *OperatorHandler) ReviewQueue(c *fiber.Ctx) error {
	var page dto.PageQuery
	if err := parseQuery(c, &page); err != nil {
		return err
	}
	subjects, err := h.approvals.ReviewQueue(c.UserContext(), page.Limit, page.Offset)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.Subjects(subjects)})
}

// GetSubject handles GET /operator/subjects/:id.
func (h *OperatorHandler) GetSubject(c *fiber.Ctx) error {
	subject, err := h.approvals.GetSubject(c.UserContext(), c.Params("id"))
	if err != nil {
		return err
	}
	return c.JSON(dto.NewSubjectEnvelope(subject, service.StandingWarnings(subject)))
}

// History handles GET /operator/subjects/:id/history.
func (h *OperatorHandler) History(c *fiber.Ctx) error {
	entries, err := h.approvals.History(c.UserContext(), c.Params("id"))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.History(entries)})
}

// DecideGroup handles PUT /operator/subjects/:id/groups/:kind/status.
func (h *OperatorHandler) DecideGroup(c *fiber.Ctx) error {
	operator, err := currentOperator(c)
	if err != nil {
		return err
	}
	kind, err := domain.ParseGroupKind(c.Params("kind"))
	if err != nil {
		return err
	}
	var req dto.GroupDecisionRequest
	if err := parseBody(c, &req); err != nil {
		return err
	}

	ctx := c.UserContext()
	subjectID := c.Params("id")
	var subject *domain.VerificationSubject
	switch domain.GroupStatus(req.Status) {
	case domain.GroupStatusApproved:
		subject, err = h.approvals.ApproveGroup(ctx, operator, subjectID, kind)
	case domain.GroupStatusRejected:
		subject, err = h.approvals.RejectGroup(ctx, operator, subjectID, kind, req.Reason)
	default:
		subject, err = h.approvals.FlagForManualReview(ctx, operator, subjectID, kind)
	}
	if err != nil {
		return err
	}
	return c.JSON(dto.NewSubjectEnvelope(subject, service.StandingWarnings(subject)))
}

// SetOverallStatus handles PUT /operator/properties/:id/status.
func (h *OperatorHandler) SetOverallStatus(c *fiber.Ctx) error {
	operator, err := currentOperator(c)
	if err != nil {
		return err
	}
	var req dto.OverallStatusRequest
	if err := parseBody(c, &req); err != nil {
		return err
	}
	subject, err := h.approvals.SetOverallStatus(c.UserContext(), operator, c.Params("id"), domain.OverallStatus(req.Status), req.Reason)
	if err != nil {
		return err
	}
	return c.JSON(dto.NewSubjectEnvelope(subject, service.StandingWarnings(subject)))
}

// ClearOverride handles DELETE /operator/properties/:id/status.
func (h *OperatorHandler) ClearOverride(c *fiber.Ctx) error {
	operator, err := currentOperator(c)
	if err != nil {
		return err
	}
	subject, err := h.approvals.ClearOverride(c.UserContext(), operator, c.Params("id"))
	if err != nil {
		return err
	}
	return c.JSON(dto.NewSubjectEnvelope(subject, service.StandingWarnings(subject)))
}
