package service

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"time"
	"unicode"
	"unicode/utf8"

	"atelier-service/internal/broker"
	"atelier-service/internal/chatstore"
	"atelier-service/internal/models"
	"atelier-service/internal/util"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	chatContextMessages   = 10
	chatMaxMessageLength  = 1000
	chatRecommendationMax = 3
	chatMaxKeywords       = 5
	welcomeMessage        = "Xin chào! Mình là trợ lý của VHA Atelier. Mình có thể giúp gì cho bạn hôm nay?"
)

// Words too common to be useful as product search terms
var stopwords = map[string]bool{
	"toi": true, "tôi": true, "minh": true, "mình": true, "ban": true, "bạn": true,
	"muon": true, "muốn": true, "can": true, "cần": true, "tim": true, "tìm": true,
	"mua": true, "cho": true, "co": true, "có": true, "khong": true, "không": true,
	"nao": true, "nào": true, "gi": true, "gì": true, "la": true, "là": true,
	"cua": true, "của": true, "voi": true, "với": true, "the": true, "thế": true,
	"shop": true, "xin": true, "chao": true, "chào": true, "giup": true, "giúp": true,
	"được": true, "duoc": true, "nhé": true, "nhe": true, "ạ": true,
}

// ChatReply is returned for every user message
type ChatReply struct {
	SessionID       string           `json:"sessionId"`
	Message         string           `json:"message"`
	Provider        string           `json:"provider"`
	Fallback        bool             `json:"fallback"`
	Recommendations []models.Product `json:"recommendations"`
	Timestamp       time.Time        `json:"timestamp"`
}

type SendMessageRequest struct {
	SessionID string `json:"sessionId" binding:"required"`
	Message   string `json:"message" binding:"required"`
}

type EndChatRequest struct {
	SessionID    string `json:"sessionId" binding:"required"`
	Satisfaction int    `json:"satisfaction" binding:"omitempty,min=1,max=5"`
}

// ChatbotService runs storefront assistant conversations
type ChatbotService struct {
	chats     ChatStore
	products  ProductSearcher
	generator ResponseGenerator
	limiter   RateLimiter
	events    ChatEvents
	rateLimit int
	logger    *zap.Logger
}

// NewChatbotService creates a new chatbot service
func NewChatbotService(chats ChatStore, products ProductSearcher, generator ResponseGenerator,
	limiter RateLimiter, events ChatEvents, rateLimitPerMinute int) *ChatbotService {
	return &ChatbotService{
		chats:     chats,
		products:  products,
		generator: generator,
		limiter:   limiter,
		events:    events,
		rateLimit: rateLimitPerMinute,
		logger:    util.GetLogger(),
	}
}

// Start opens a conversation. userID is zero for anonymous visitors.
func (s *ChatbotService) Start(ctx context.Context, userID int64) (*models.ChatConversation, error) {
	now := time.Now()
	conv := &models.ChatConversation{
		SessionID: uuid.New().String(),
		UserID:    userID,
		Messages: []models.ChatMessage{{
			Type:      models.ChatMessageAssistant,
			Message:   welcomeMessage,
			Timestamp: now,
		}},
		Status:    models.ChatStatusActive,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.chats.Create(ctx, conv); err != nil {
		return nil, err
	}

	s.logger.Info("Chat session started", zap.String("session_id", conv.SessionID), zap.Int64("user_id", userID))
	return conv, nil
}

// SendMessage records the user's message, generates a reply from the recent
// transcript and suggests matching products.
func (s *ChatbotService) SendMessage(ctx context.Context, sessionID, message string) (*ChatReply, error) {
	ctx, span := util.StartSpan(ctx, "ChatbotService.SendMessage")
	defer span.End()

	message = strings.TrimSpace(message)
	if message == "" {
		return nil, newError(ErrInvalidInput, "Vui lòng nhập tin nhắn")
	}
	if utf8.RuneCountInString(message) > chatMaxMessageLength {
		return nil, newError(ErrInvalidInput, "Tin nhắn quá dài")
	}

	if s.rateLimit > 0 {
		ok, err := s.limiter.Allow(ctx, "chat:"+sessionID, s.rateLimit, time.Minute)
		if err != nil {
			s.logger.Warn("Chat rate limiter unavailable", zap.Error(err))
		} else if !ok {
			return nil, newError(ErrRateLimited, "Bạn gửi tin nhắn quá nhanh, vui lòng thử lại sau")
		}
	}

	conv, err := s.activeConversation(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	resp, err := s.generator.GenerateResponse(ctx, message, transcript(conv.RecentMessages(chatContextMessages)))
	if err != nil {
		s.logger.Warn("Chatbot generation failed", zap.Error(err))
		resp, _ = NewFallbackProvider().GenerateResponse(ctx, message, nil)
	}
	util.ChatbotResponsesTotal.WithLabelValues(resp.Provider, strconv.FormatBool(resp.Fallback)).Inc()

	now := time.Now()
	err = s.chats.AppendMessages(ctx, sessionID,
		models.ChatMessage{Type: models.ChatMessageUser, Message: message, Timestamp: now},
		models.ChatMessage{
			Type:      models.ChatMessageAssistant,
			Message:   resp.Response,
			Timestamp: now,
			Metadata:  map[string]interface{}{"provider": resp.Provider, "fallback": resp.Fallback},
		},
	)
	if errors.Is(err, chatstore.ErrNotFound) {
		return nil, newError(ErrConflict, "Phiên trò chuyện đã kết thúc")
	}
	if err != nil {
		return nil, util.SpanError(span, err)
	}

	return &ChatReply{
		SessionID:       sessionID,
		Message:         resp.Response,
		Provider:        resp.Provider,
		Fallback:        resp.Fallback,
		Recommendations: s.recommend(ctx, sessionID, message),
		Timestamp:       now,
	}, nil
}

func (s *ChatbotService) activeConversation(ctx context.Context, sessionID string) (*models.ChatConversation, error) {
	conv, err := s.chats.Get(ctx, sessionID)
	if err != nil {
		return nil, classify(err, "Không tìm thấy phiên trò chuyện")
	}
	if conv.Status != models.ChatStatusActive {
		return nil, newError(ErrConflict, "Phiên trò chuyện đã kết thúc")
	}
	return conv, nil
}

// recommend never fails the reply; lookup errors are logged.
func (s *ChatbotService) recommend(ctx context.Context, sessionID, message string) []models.Product {
	keywords := Keywords(message)
	if len(keywords) == 0 {
		return []models.Product{}
	}

	products, err := s.products.SearchProductNames(ctx, keywords, chatRecommendationMax)
	if err != nil {
		s.logger.Warn("Chat recommendation lookup failed", zap.Error(err))
		return []models.Product{}
	}
	if len(products) == 0 {
		return []models.Product{}
	}

	ids := make([]int64, len(products))
	for i, p := range products {
		ids[i] = p.ID
	}
	if err := s.chats.AddRecommendations(ctx, sessionID, ids); err != nil {
		s.logger.Warn("Failed to record recommendations", zap.String("session_id", sessionID), zap.Error(err))
	}
	return products
}

// History returns the full conversation
func (s *ChatbotService) History(ctx context.Context, sessionID string) (*models.ChatConversation, error) {
	if sessionID == "" {
		return nil, newError(ErrInvalidInput, "Thiếu mã phiên trò chuyện")
	}
	conv, err := s.chats.Get(ctx, sessionID)
	if err != nil {
		return nil, classify(err, "Không tìm thấy phiên trò chuyện")
	}
	return conv, nil
}

// End closes a conversation with optional satisfaction feedback (1..5)
func (s *ChatbotService) End(ctx context.Context, sessionID string, satisfaction int) (*models.ChatConversation, error) {
	if satisfaction != 0 && (satisfaction < 1 || satisfaction > 5) {
		return nil, newError(ErrInvalidInput, "Mức độ hài lòng phải từ 1 đến 5")
	}
	if _, err := s.activeConversation(ctx, sessionID); err != nil {
		return nil, err
	}

	conv, err := s.chats.End(ctx, sessionID, satisfaction)
	if errors.Is(err, chatstore.ErrNotFound) {
		return nil, newError(ErrConflict, "Phiên trò chuyện đã kết thúc")
	}
	if err != nil {
		return nil, err
	}

	event := &models.ChatEndedEvent{
		BaseEvent:    broker.NewBaseEvent(models.EventTypeChatEnded),
		SessionID:    conv.SessionID,
		UserID:       conv.UserID,
		Messages:     len(conv.Messages),
		Satisfaction: conv.Satisfaction,
	}
	logPublish(s.logger, event.EventType, s.events.PublishChatEnded(ctx, event))
	return conv, nil
}

func transcript(msgs []models.ChatMessage) []string {
	lines := make([]string, 0, len(msgs))
	for _, m := range msgs {
		who := "Khách hàng"
		if m.Type == models.ChatMessageAssistant {
			who = "Trợ lý"
		}
		lines = append(lines, who+": "+m.Message)
	}
	return lines
}

// Keywords extracts lowercase search terms from a message: words of at least
// two letters that are not stopwords, deduplicated, first five kept.
func Keywords(message string) []string {
	words := strings.FieldsFunc(strings.ToLower(message), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})

	seen := make(map[string]bool)
	out := []string{}
	for _, w := range words {
		if utf8.RuneCountInString(w) < 2 || stopwords[w] || seen[w] {
			continue
		}
		seen[w] = true
		out = append(out, w)
		if len(out) == chatMaxKeywords {
			break
		}
	}
	return out
}
