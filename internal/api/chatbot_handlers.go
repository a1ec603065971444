package api

import (
	"net/http"

	"atelier-service/internal/service"

	"github.com/gin-gonic/gin"
)

func (h *Handler) startChat(c *gin.Context) {
	conv, err := h.Chatbot.Start(c.Request.Context(), actor(c).UserID)
	if err != nil {
		respondError(c, err)
		return
	}
	respond(c, http.StatusCreated, gin.H{
		"sessionId": conv.SessionID,
		"messages":  conv.Messages,
	})
}

func (h *Handler) sendChatMessage(c *gin.Context) {
	var req service.SendMessageRequest
	if !bindJSON(c, &req) {
		return
	}
	reply, err := h.Chatbot.SendMessage(c.Request.Context(), req.SessionID, req.Message)
	if err != nil {
		respondError(c, err)
		return
	}
	respond(c, http.StatusOK, reply)
}

func (h *Handler) chatHistory(c *gin.Context) {
	conv, err := h.Chatbot.History(c.Request.Context(), c.Query("sessionId"))
	if err != nil {
		respondError(c, err)
		return
	}
	respond(c, http.StatusOK, conv)
}

func (h *Handler) endChat(c *gin.Context) {
	var req service.EndChatRequest
	if !bindJSON(c, &req) {
		return
	}
	conv, err := h.Chatbot.End(c.Request.Context(), req.SessionID, req.Satisfaction)
	if err != nil {
		respondError(c, err)
		return
	}
	respond(c, http.StatusOK, conv)
}
