package devserver

import (
	"errors"
	"fmt"
	"net/http"
	"net/mail"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/techyogeshchauhan/uttarakhand-companion/internal/ai"
	"github.com/techyogeshchauhan/uttarakhand-companion/internal/common"
	"gorm.io/gorm"
)

const (
	defaultSessionLimit = 20
	maxSessionLimit     = 50
)

type chatMessageReq struct {
	Message             string       `json:"message"`
	Language            string       `json:"language"`
	ConversationHistory []ai.Message `json:"conversation_history"`
}

func (s *Server) chatMessage(c *gin.Context) {
	var req chatMessageReq
	if err := c.ShouldBindJSON(&req); err != nil {
		abort(c, http.StatusBadRequest, "Request body is required")
		return
	}
	msg := strings.TrimSpace(req.Message)
	if msg == "" {
		abort(c, http.StatusBadRequest, "Message is required")
		return
	}
	lang := common.ParseLanguage(req.Language)

	reply, err := s.provider.Complete(c.Request.Context(), ai.Request{
		Message:  msg,
		Language: lang,
		History:  req.ConversationHistory,
	})
	if err != nil {
		s.log.Warnw("completion failed", "err", err)
		abort(c, http.StatusInternalServerError, "Failed to get response")
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"success":  true,
		"response": reply,
		"language": lang,
	})
}

func (s *Server) suggestions(c *gin.Context) {
	lang := common.ParseLanguage(c.Query("language"))
	c.JSON(http.StatusOK, gin.H{
		"success":     true,
		"suggestions": s.catalogue.Suggestions(lang),
		"language":    lang,
	})
}

type credentialsReq struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Password string `json:"password"`
	Language string `json:"language"`
}

func (s *Server) signup(c *gin.Context) {
	var req credentialsReq
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, "invalid json")
		return
	}
	name := strings.TrimSpace(req.Name)
	email := strings.ToLower(strings.TrimSpace(req.Email))
	if name == "" || email == "" || req.Password == "" {
		fail(c, http.StatusBadRequest, "Email, password, and name are required")
		return
	}
	if _, err := mail.ParseAddress(email); err != nil {
		fail(c, http.StatusBadRequest, "Invalid email format")
		return
	}
	if len(req.Password) < 6 {
		fail(c, http.StatusBadRequest, "Password must be at least 6 characters long")
		return
	}

	ctx := c.Request.Context()
	if _, err := s.repo.UserByEmail(ctx, email); err == nil {
		fail(c, http.StatusConflict, "User with this email already exists")
		return
	} else if !errors.Is(err, gorm.ErrRecordNotFound) {
		fail(c, http.StatusInternalServerError, "db error")
		return
	}

	u, err := s.createUser(ctx, name, email, req.Password, common.ParseLanguage(req.Language))
	if err != nil {
		fail(c, http.StatusInternalServerError, "Signup failed")
		return
	}
	s.respondWithToken(c, http.StatusCreated, u, fmt.Sprintf("Welcome to Uttarakhand Tourism, %s!", u.Name))
}

func (s *Server) login(c *gin.Context) {
	var req credentialsReq
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, "invalid json")
		return
	}
	email := strings.ToLower(strings.TrimSpace(req.Email))
	if email == "" || req.Password == "" {
		fail(c, http.StatusBadRequest, "Email and password are required")
		return
	}
	u, err := s.repo.UserByEmail(c.Request.Context(), email)
	if err != nil || !checkPassword(u.PasswordHash, req.Password) {
		fail(c, http.StatusUnauthorized, "Invalid email or password")
		return
	}
	s.respondWithToken(c, http.StatusOK, u, fmt.Sprintf("Welcome back, %s!", u.Name))
}

func (s *Server) respondWithToken(c *gin.Context, status int, u *User, msg string) {
	token, err := signToken(u, s.secret, TokenTTL, s.now())
	if err != nil {
		fail(c, http.StatusInternalServerError, "failed to sign token")
		return
	}
	c.JSON(status, gin.H{
		"success": true,
		"message": msg,
		"data": gin.H{
			"user":  u,
			"token": token,
		},
	})
}

func (s *Server) verify(c *gin.Context) {
	uid, _ := userIDFromContext(c)
	u, err := s.repo.UserByID(c.Request.Context(), uid)
	if err != nil {
		fail(c, http.StatusNotFound, "User not found")
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"message": "Token is valid",
		"data":    gin.H{"user": u},
	})
}

type saveMessageReq struct {
	SessionID string `json:"session_id"`
	Role      string `json:"role"`
	Content   string `json:"content"`
	Metadata  struct {
		Language     string  `json:"language"`
		ResponseTime float64 `json:"response_time"`
	} `json:"metadata"`
}

type messageDTO struct {
	ID        string `json:"_id"`
	SessionID string `json:"session_id"`
	Role      string `json:"role"`
	Content   string `json:"content"`
	Timestamp string `json:"timestamp"`
	Metadata  struct {
		Language     string  `json:"language"`
		ResponseTime float64 `json:"response_time"`
	} `json:"metadata"`
	Feedback struct {
		Rating    *int   `json:"rating"`
		Comment   string `json:"comment"`
		Timestamp string `json:"timestamp,omitempty"`
	} `json:"feedback"`
}

func toDTO(m Message) messageDTO {
	var d messageDTO
	d.ID = m.MessageID
	d.SessionID = m.SessionID
	d.Role = m.Role
	d.Content = m.Content
	d.Timestamp = m.CreatedAt.UTC().Format(time.RFC3339)
	d.Metadata.Language = m.Language
	d.Metadata.ResponseTime = m.ResponseTime
	d.Feedback.Rating = m.FeedbackRating
	d.Feedback.Comment = m.FeedbackComment
	if m.FeedbackAt != nil {
		d.Feedback.Timestamp = m.FeedbackAt.UTC().Format(time.RFC3339)
	}
	return d
}

func (s *Server) saveMessage(c *gin.Context) {
	uid, _ := userIDFromContext(c)

	var req saveMessageReq
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, "invalid json")
		return
	}
	content := strings.TrimSpace(req.Content)
	if content == "" {
		fail(c, http.StatusBadRequest, "Message content is required")
		return
	}
	role := req.Role
	if role == "" {
		role = ai.RoleUser
	}
	if role != ai.RoleUser && role != ai.RoleAssistant {
		fail(c, http.StatusBadRequest, `Role must be either "user" or "assistant"`)
		return
	}
	sessionID := req.SessionID
	if sessionID == "" {
		sessionID = uuid.NewString()
	}
	id, err := common.NewULID()
	if err != nil {
		fail(c, http.StatusInternalServerError, "failed to allocate id")
		return
	}

	m := Message{
		MessageID:    id,
		UserID:       uid,
		SessionID:    sessionID,
		Role:         role,
		Content:      content,
		Language:     req.Metadata.Language,
		ResponseTime: req.Metadata.ResponseTime,
		CreatedAt:    s.now().UTC(),
	}
	if err := s.repo.InsertMessage(c.Request.Context(), &m); err != nil {
		fail(c, http.StatusInternalServerError, "Failed to save message")
		return
	}
	c.JSON(http.StatusCreated, gin.H{
		"success": true,
		"message": "Message saved successfully",
		"data": gin.H{
			"message":    toDTO(m),
			"session_id": sessionID,
		},
	})
}

type feedbackReq struct {
	MessageID string `json:"message_id"`
	Rating    *int   `json:"rating"`
	Comment   string `json:"comment"`
}

func (s *Server) feedback(c *gin.Context) {
	uid, _ := userIDFromContext(c)

	var req feedbackReq
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, "invalid json")
		return
	}
	msgID := strings.TrimSpace(req.MessageID)
	if msgID == "" {
		fail(c, http.StatusBadRequest, "Message ID is required")
		return
	}
	if req.Rating == nil || (*req.Rating != 1 && *req.Rating != -1) {
		fail(c, http.StatusBadRequest, "Rating must be 1 (like) or -1 (dislike)")
		return
	}

	err := s.repo.SetFeedback(c.Request.Context(), uid, msgID, *req.Rating, strings.TrimSpace(req.Comment))
	switch {
	case errors.Is(err, ErrMessageNotFound):
		fail(c, http.StatusNotFound, "Failed to add feedback. Message not found or not an assistant message.")
		return
	case err != nil:
		fail(c, http.StatusInternalServerError, "Failed to add feedback")
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "message": "Feedback added successfully"})
}

type sessionDTO struct {
	ID            string `json:"_id"`
	LastMessage   string `json:"last_message"`
	LastTimestamp string `json:"last_timestamp"`
	MessageCount  int    `json:"message_count"`
	FirstMessage  string `json:"first_message"`
}

func (s *Server) sessions(c *gin.Context) {
	uid, _ := userIDFromContext(c)

	limit := defaultSessionLimit
	if v := c.Query("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			fail(c, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = min(n, maxSessionLimit)
	}

	ctx := c.Request.Context()
	rows, err := s.repo.Sessions(ctx, uid, limit)
	if err != nil {
		fail(c, http.StatusInternalServerError, "Failed to get sessions")
		return
	}
	seqs := make([]uint64, 0, 2*len(rows))
	for _, r := range rows {
		seqs = append(seqs, r.FirstSeq, r.LastSeq)
	}
	bySeq, err := s.repo.MessagesBySeq(ctx, seqs)
	if err != nil {
		fail(c, http.StatusInternalServerError, "Failed to get sessions")
		return
	}

	out := make([]sessionDTO, 0, len(rows))
	for _, r := range rows {
		first, last := bySeq[r.FirstSeq], bySeq[r.LastSeq]
		out = append(out, sessionDTO{
			ID:            r.SessionID,
			LastMessage:   last.Content,
			LastTimestamp: last.CreatedAt.UTC().Format(time.RFC3339),
			MessageCount:  r.MessageCount,
			FirstMessage:  first.Content,
		})
	}
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data": gin.H{
			"sessions": out,
			"count":    len(out),
		},
	})
}

func (s *Server) session(c *gin.Context) {
	uid, _ := userIDFromContext(c)
	sessionID := c.Param("session_id")

	msgs, err := s.repo.SessionMessages(c.Request.Context(), uid, sessionID)
	if err != nil {
		fail(c, http.StatusInternalServerError, "Failed to get session")
		return
	}
	chats := make([]messageDTO, 0, len(msgs))
	for _, m := range msgs {
		chats = append(chats, toDTO(m))
	}
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data": gin.H{
			"session_id": sessionID,
			"chats":      chats,
			"count":      len(chats),
		},
	})
}

func (s *Server) deleteSession(c *gin.Context) {
	uid, _ := userIDFromContext(c)
	n, err := s.repo.DeleteSession(c.Request.Context(), uid, c.Param("session_id"))
	if err != nil {
		fail(c, http.StatusInternalServerError, "Failed to delete session")
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"message": "Session deleted successfully",
		"data":    gin.H{"deleted_count": n},
	})
}

func (s *Server) deleteMessage(c *gin.Context) {
	uid, _ := userIDFromContext(c)
	err := s.repo.DeleteMessage(c.Request.Context(), uid, c.Param("message_id"))
	if errors.Is(err, ErrMessageNotFound) {
		fail(c, http.StatusNotFound, "Message not found or already deleted")
		return
	}
	if err != nil {
		fail(c, http.StatusInternalServerError, "Failed to delete message")
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "message": "Message deleted successfully"})
}
