package handler

import (
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/ibrahimkhan7059/Edubazaar/internal/service"
)

// PushHandler is the HTTP front door for the notification pipeline.
type PushHandler struct {
	service   *service.QueueService
	validate  *validator.Validate
	batchSize int
}

// NewPushHandler creates a new PushHandler
func NewPushHandler(svc *service.QueueService, batchSize int) *PushHandler {
	return &PushHandler{
		service:   svc,
		validate:  validator.New(),
		batchSize: batchSize,
	}
}

// RegisterRoutes registers push notification routes
func (h *PushHandler) RegisterRoutes(r chi.Router) {
	r.Get("/", h.Drain)
	r.Post("/", h.Handle)
}

// pushRequest is the POST body: either an explicit queue-drain action or a
// direct-send payload.
type pushRequest struct {
	Action string `json:"action,omitempty"`

	RecipientID    string `json:"recipient_id,omitempty"`
	MessageID      string `json:"message_id,omitempty"`
	ConversationID string `json:"conversation_id,omitempty"`
	SenderID       string `json:"sender_id,omitempty"`
	SenderName     string `json:"sender_name,omitempty"`
	MessageText    string `json:"message_text,omitempty"`
}

// DrainResponse is the queue-drain result envelope.
type DrainResponse struct {
	Processed []service.ProcessedNotification `json:"processed"`
	Errors    []service.NotificationError     `json:"errors"`
	Summary   string                          `json:"summary"`
	Timestamp time.Time                       `json:"timestamp"`
}

// Drain triggers one drain cycle
// @Summary Drain the notification queue
// @Description Claim pending notifications and deliver them to registered devices
// @Tags notifications
// @Produce json
// @Success 200 {object} Response{data=DrainResponse}
// @Failure 503 {object} Response
// @Router /api/v1/notifications [get]
func (h *PushHandler) Drain(w http.ResponseWriter, r *http.Request) {
	h.drain(w, r)
}

// Handle dispatches a POST to either a queue drain or a direct send
// @Summary Process the queue or send one notification directly
// @Description With {"action":"process_queue"} drains the queue; any other body is a direct send
// @Tags notifications
// @Accept json
// @Produce json
// @Success 200 {object} Response
// @Failure 400 {object} Response
// @Failure 500 {object} Response
// @Router /api/v1/notifications [post]
func (h *PushHandler) Handle(w http.ResponseWriter, r *http.Request) {
	var req pushRequest
	if err := DecodeJSON(r, &req); err != nil {
		HandleError(w, err)
		return
	}

	if req.Action == "process_queue" {
		h.drain(w, r)
		return
	}

	h.sendDirect(w, r, req)
}

func (h *PushHandler) drain(w http.ResponseWriter, r *http.Request) {
	result, err := h.service.Drain(r.Context(), h.batchSize)
	if err != nil {
		HandleError(w, err)
		return
	}

	// Always 200 with a structured body, even when every item failed.
	JSON(w, http.StatusOK, DrainResponse{
		Processed: result.Processed,
		Errors:    result.Errors,
		Summary:   drainSummary(result),
		Timestamp: time.Now().UTC(),
	})
}

func (h *PushHandler) sendDirect(w http.ResponseWriter, r *http.Request, req pushRequest) {
	directReq := service.DirectSendRequest{
		RecipientID:    req.RecipientID,
		MessageID:      req.MessageID,
		ConversationID: req.ConversationID,
		SenderID:       req.SenderID,
		SenderName:     req.SenderName,
		MessageText:    req.MessageText,
	}

	if err := h.validate.Struct(directReq); err != nil {
		JSONError(w, http.StatusBadRequest, "VALIDATION_ERROR", "Validation failed", err.Error())
		return
	}

	outcome, err := h.service.SendDirect(r.Context(), directReq)
	if err != nil {
		HandleError(w, err)
		return
	}

	status := http.StatusOK
	if !outcome.Success {
		status = http.StatusInternalServerError
	}

	JSON(w, status, outcome)
}

func drainSummary(result *service.DrainResult) string {
	return fmt.Sprintf("Processed %d notifications, %d errors", len(result.Processed), len(result.Errors))
}
