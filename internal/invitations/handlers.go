package invitations

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/rosterkit/rosterkit/internal/apperrors"
	"github.com/rosterkit/rosterkit/internal/audit"
	"github.com/rosterkit/rosterkit/internal/auth"
)

type CreateRequest struct {
	SubjectEmail string      `json:"subject_email"`
	RoleContext  RoleContext `json:"role_context"`
	Message      string      `json:"message"`
}

type CreateResponse struct {
	Invitation *Invitation `json:"invitation"`
	Token      string      `json:"token"`
	AcceptURL  string      `json:"accept_url"`
}

type RespondRequest struct {
	Response string `json:"response"`
}

type UpdateMessageRequest struct {
	Message string `json:"message"`
}

// HandleCreate handles POST /api/v1/invitations
func HandleCreate(svc *Service, auditor *audit.Writer, baseURL string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		actorID := auth.GetUserID(ctx)

		var req CreateRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			apperrors.WriteBadRequest(w, r, "Invalid request body")
			return
		}

		inv, err := svc.Create(ctx, CreateParams{
			SubjectEmail: req.SubjectEmail,
			InviterID:    actorID,
			RoleContext:  req.RoleContext,
			Message:      req.Message,
		})
		if err != nil {
			writeServiceError(w, r, err, "Failed to create invitation")
			return
		}

		logAudit(auditor, func(a *audit.Writer) error {
			return a.LogInviteCreated(ctx, inv.ID, actorID, inv.SubjectEmail, string(inv.RoleContext))
		})

		apperrors.WriteSuccess(w, r, http.StatusCreated, CreateResponse{
			Invitation: inv,
			Token:      inv.Token,
			AcceptURL:  baseURL + "/invites/accept?token=" + url.QueryEscape(inv.Token),
		})
	}
}

// HandleList handles GET /api/v1/invitations
func HandleList(svc *Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		filter, err := listFilterFromQuery(r.URL.Query())
		if err != nil {
			apperrors.WriteBadRequest(w, r, err.Error())
			return
		}

		invs, err := svc.List(ctx, filter)
		if err != nil {
			writeServiceError(w, r, err, "Failed to list invitations")
			return
		}

		if invs == nil {
			invs = []*Invitation{}
		}
		apperrors.WriteSuccess(w, r, http.StatusOK, map[string]any{
			"invitations": invs,
		})
	}
}

// HandleGet handles GET /api/v1/invitations/{invitation_id}
func HandleGet(svc *Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		id, ok := invitationID(w, r)
		if !ok {
			return
		}

		inv, err := svc.Get(ctx, id)
		if err != nil {
			writeServiceError(w, r, err, "Failed to get invitation")
			return
		}

		apperrors.WriteSuccess(w, r, http.StatusOK, map[string]any{
			"invitation": inv,
		})
	}
}

// HandleUpdateMessage handles PATCH /api/v1/invitations/{invitation_id}
func HandleUpdateMessage(svc *Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		id, ok := invitationID(w, r)
		if !ok {
			return
		}

		var req UpdateMessageRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			apperrors.WriteBadRequest(w, r, "Invalid request body")
			return
		}

		inv, err := svc.UpdateMessage(ctx, id, req.Message)
		if err != nil {
			writeServiceError(w, r, err, "Failed to update invitation message")
			return
		}

		apperrors.WriteSuccess(w, r, http.StatusOK, map[string]any{
			"invitation": inv,
		})
	}
}

// HandleSend handles POST /api/v1/invitations/{invitation_id}/send
func HandleSend(svc *Service, auditor *audit.Writer) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		actorID := auth.GetUserID(ctx)

		id, ok := invitationID(w, r)
		if !ok {
			return
		}

		inv, err := svc.Send(ctx, id)
		if err != nil {
			writeServiceError(w, r, err, "Failed to send invitation")
			return
		}

		logAudit(auditor, func(a *audit.Writer) error {
			return a.LogInviteTransition(ctx, inv.ID, &actorID, audit.EventInviteSent)
		})

		apperrors.WriteSuccess(w, r, http.StatusOK, map[string]any{
			"invitation": inv,
		})
	}
}

// HandleRespond handles PUT /api/v1/invitations/{invitation_id}/respond
func HandleRespond(svc *Service, auditor *audit.Writer) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		id, ok := invitationID(w, r)
		if !ok {
			return
		}

		var req RespondRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			apperrors.WriteBadRequest(w, r, "Invalid request body")
			return
		}

		inv, err := svc.Respond(ctx, id, req.Response)
		if err != nil {
			writeServiceError(w, r, err, "Failed to record response")
			return
		}

		action := audit.EventInviteAccepted
		if inv.Status == StatusDeclined {
			action = audit.EventInviteDeclined
		}
		logAudit(auditor, func(a *audit.Writer) error {
			return a.LogInviteTransition(ctx, inv.ID, nil, action)
		})

		apperrors.WriteSuccess(w, r, http.StatusOK, map[string]any{
			"invitation": inv,
		})
	}
}

// HandleDelete handles DELETE /api/v1/invitations/{invitation_id}.
// By default the invitation is cancelled; ?hard=true removes the record.
func HandleDelete(svc *Service, auditor *audit.Writer) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		actorID := auth.GetUserID(ctx)

		id, ok := invitationID(w, r)
		if !ok {
			return
		}

		if r.URL.Query().Get("hard") == "true" {
			if err := svc.Purge(ctx, id); err != nil {
				writeServiceError(w, r, err, "Failed to delete invitation")
				return
			}

			logAudit(auditor, func(a *audit.Writer) error {
				return a.LogInviteTransition(ctx, id, &actorID, audit.EventInvitePurged)
			})

			apperrors.WriteSuccess(w, r, http.StatusOK, map[string]any{
				"deleted": true,
			})
			return
		}

		inv, err := svc.Cancel(ctx, id)
		if err != nil {
			writeServiceError(w, r, err, "Failed to cancel invitation")
			return
		}

		logAudit(auditor, func(a *audit.Writer) error {
			return a.LogInviteTransition(ctx, inv.ID, &actorID, audit.EventInviteCancelled)
		})

		apperrors.WriteSuccess(w, r, http.StatusOK, map[string]any{
			"invitation": inv,
		})
	}
}

// HandleValidate handles GET /api/v1/invitations/validate/{token}.
// Public: the token itself is the credential.
func HandleValidate(svc *Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		token := strings.TrimSpace(chi.URLParam(r, "token"))
		if token == "" {
			apperrors.WriteNotFound(w, r, "Invitation not found")
			return
		}

		inv, usable, err := svc.Validate(ctx, token)
		if err != nil {
			writeServiceError(w, r, err, "Failed to validate invitation")
			return
		}

		apperrors.WriteSuccess(w, r, http.StatusOK, map[string]any{
			"invitation": inv,
			"usable":     usable,
		})
	}
}

// HandleComplete handles POST /internal/v1/invitations/{invitation_id}/complete.
// Called by the onboarding pipeline when the downstream process finishes.
func HandleComplete(svc *Service, auditor *audit.Writer) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		id, ok := invitationID(w, r)
		if !ok {
			return
		}

		inv, err := svc.Complete(ctx, id)
		if err != nil {
			writeServiceError(w, r, err, "Failed to complete invitation")
			return
		}

		logAudit(auditor, func(a *audit.Writer) error {
			return a.LogInviteTransition(ctx, inv.ID, nil, audit.EventInviteCompleted)
		})

		apperrors.WriteSuccess(w, r, http.StatusOK, map[string]any{
			"invitation": inv,
		})
	}
}

func invitationID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "invitation_id"))
	if err != nil {
		apperrors.WriteBadRequest(w, r, "Invalid invitation ID")
		return uuid.Nil, false
	}
	return id, true
}

func listFilterFromQuery(query url.Values) (ListFilter, error) {
	var filter ListFilter

	if v := query.Get("status"); v != "" {
		status := Status(v)
		filter.Status = &status
	}
	if v := query.Get("inviter_id"); v != "" {
		inviterID, err := uuid.Parse(v)
		if err != nil {
			return ListFilter{}, errors.New("invalid inviter_id")
		}
		filter.InviterID = &inviterID
	}
	if v := query.Get("role_context"); v != "" {
		role := RoleContext(v)
		filter.RoleContext = &role
	}
	if v := query.Get("limit"); v != "" {
		limit, err := strconv.Atoi(v)
		if err != nil || limit <= 0 {
			return ListFilter{}, errors.New("invalid limit")
		}
		filter.Limit = limit
	}

	return filter, nil
}

// writeServiceError maps the typed service errors onto the response
// envelope. Unexpected faults (store unreachable) log and return 500.
func writeServiceError(w http.ResponseWriter, r *http.Request, err error, fallback string) {
	var (
		validationErr *ValidationError
		transitionErr *InvalidTransitionError
		deliveryErr   *DeliveryError
	)

	switch {
	case errors.Is(err, ErrInvitationNotFound):
		apperrors.WriteNotFound(w, r, "Invitation not found")
	case errors.Is(err, ErrDuplicateInvitation):
		apperrors.WriteConflict(w, r, "An active invitation already exists for this recipient")
	case errors.Is(err, ErrNotDeletable):
		apperrors.WriteConflict(w, r, err.Error())
	case errors.Is(err, ErrMessageNotEditable):
		apperrors.WriteConflict(w, r, err.Error())
	case errors.As(err, &validationErr):
		apperrors.WriteBadRequest(w, r, validationErr.Error())
	case errors.As(err, &transitionErr):
		// The message carries the actual current status so the caller can
		// decide its next action.
		apperrors.WriteError(w, r, http.StatusBadRequest, "invalid_transition", transitionErr.Error())
	case errors.As(err, &deliveryErr):
		apperrors.WriteError(w, r, http.StatusBadGateway, "delivery_failed",
			"Invitation delivery failed; the invitation remains pending and the send can be retried")
	default:
		log.Error().Err(err).Msg(fallback)
		apperrors.WriteInternalError(w, r, fallback)
	}
}

func logAudit(auditor *audit.Writer, fn func(*audit.Writer) error) {
	if auditor == nil {
		return
	}
	if err := fn(auditor); err != nil {
		log.Error().Err(err).Msg("Failed to log audit event")
	}
}
