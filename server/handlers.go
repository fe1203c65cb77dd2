package server

import (
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/nabiya/diarymem/core"
	"github.com/nabiya/diarymem/engine"
	"github.com/nabiya/diarymem/memory"
)

type createEntryRequest struct {
	UserID   string        `json:"user_id" binding:"required"`
	Text     string        `json:"text" binding:"required"`
	Metadata core.Metadata `json:"metadata"`
}

type searchRequest struct {
	UserID         string   `json:"user_id" binding:"required"`
	Keywords       []string `json:"keywords"`
	Query          string   `json:"query" binding:"required"`
	TopK           int      `json:"top_k"`
	ScoreThreshold *float64 `json:"score_threshold"`
	MinMatch       *int     `json:"min_match"`
}

type quizRequest struct {
	UserID string `json:"user_id" binding:"required"`
	Date   string `json:"date"`
}

type evaluateRequest struct {
	UserID     string          `json:"user_id" binding:"required"`
	Date       string          `json:"date" binding:"required"`
	Item       engine.QuizItem `json:"item"`
	UserAnswer string          `json:"user_answer" binding:"required"`
}

func (s *Server) health(c *gin.Context) {
	respond(c, http.StatusOK, gin.H{
		"status":     "ok",
		"entries":    s.store.Len(),
		"uptime_sec": int(time.Since(s.startedAt).Seconds()),
	})
}

func (s *Server) createEntry(c *gin.Context) {
	var req createEntryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, "invalid request payload")
		return
	}
	doc, err := s.store.IndexEntry(c.Request.Context(), req.UserID, req.Text, req.Metadata)
	if err != nil {
		writeError(c, err)
		return
	}
	respond(c, http.StatusCreated, doc)
}

func (s *Server) listEntries(c *gin.Context) {
	docs, err := s.store.ListAllEntries(c.Request.Context(), c.Query("user_id"))
	if err != nil {
		writeError(c, err)
		return
	}
	respond(c, http.StatusOK, docs)
}

func (s *Server) entriesInWindow(c *gin.Context) {
	days := s.config.WindowDays
	if raw := c.Query("days"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			fail(c, http.StatusBadRequest, "days must be an integer")
			return
		}
		days = n
	}
	docs, err := s.store.EntriesInWindow(c.Request.Context(), c.Query("user_id"), c.Query("date"), days)
	if err != nil {
		writeError(c, err)
		return
	}
	respond(c, http.StatusOK, docs)
}

func (s *Server) search(c *gin.Context) {
	var req searchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, "invalid request payload")
		return
	}

	if req.TopK > memory.MaxTopK {
		fail(c, http.StatusBadRequest, fmt.Sprintf("top_k must be at most %d", memory.MaxTopK))
		return
	}
	if req.ScoreThreshold != nil && *req.ScoreThreshold < 0 {
		fail(c, http.StatusBadRequest, "score_threshold must not be negative")
		return
	}

	opts := s.store.DefaultSearchOptions()
	if req.TopK > 0 {
		opts.TopK = req.TopK
	}
	if req.ScoreThreshold != nil {
		opts.ScoreThreshold = *req.ScoreThreshold
	}
	if req.MinMatch != nil {
		opts.MinMatch = *req.MinMatch
	}

	matches, err := s.store.HybridSearch(c.Request.Context(), req.UserID, req.Keywords, req.Query, opts)
	if err != nil {
		writeError(c, err)
		return
	}
	respond(c, http.StatusOK, matches)
}

func (s *Server) themes(c *gin.Context) {
	counts, err := s.store.ThemeCounts(c.Request.Context(), c.Query("user_id"))
	if err != nil {
		writeError(c, err)
		return
	}
	respond(c, http.StatusOK, counts)
}

func (s *Server) recallQuiz(c *gin.Context) {
	var req quizRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, "invalid request payload")
		return
	}
	quiz, err := s.engine.GenerateQuiz(c.Request.Context(), req.UserID, req.Date)
	if err != nil {
		writeError(c, err)
		return
	}
	respond(c, http.StatusOK, quiz)
}

func (s *Server) recallEvaluate(c *gin.Context) {
	var req evaluateRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.Item.Question == "" {
		fail(c, http.StatusBadRequest, "invalid request payload")
		return
	}

	ctx := c.Request.Context()
	docs, err := s.store.EntriesInWindow(ctx, req.UserID, req.Date, s.config.WindowDays)
	if err != nil {
		writeError(c, err)
		return
	}
	ev, err := s.engine.EvaluateAnswer(ctx, req.Item, req.UserAnswer, engine.FormatEntries(docs))
	if err != nil {
		writeError(c, err)
		return
	}
	respond(c, http.StatusOK, ev)
}
