package server

import (
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/TobiSchelling/labeldesk/internal/annotate"
	"github.com/TobiSchelling/labeldesk/internal/database"
)

func (s *Server) handleIndex(c *gin.Context) {
	ctx := c.Request.Context()
	item, done, err := s.ctrl.Current(ctx)
	if err != nil {
		s.renderError(c, err)
		return
	}
	stats, err := s.ctrl.Statistics(ctx)
	if err != nil {
		s.renderError(c, err)
		return
	}

	data := gin.H{
		"Stats":      stats,
		"Notice":     c.Query("notice"),
		"Guidelines": s.guidelines,
	}
	if done {
		s.render(c, http.StatusOK, "complete.html", data)
		return
	}
	data["Item"] = item
	data["Categories"] = database.Categories
	s.render(c, http.StatusOK, "label.html", data)
}

func (s *Server) handleClassify(c *gin.Context) {
	row, ok := s.formRow(c)
	if !ok {
		return
	}
	res, err := s.ctrl.ClassifyAt(c.Request.Context(), row, c.Param("category"))
	if err != nil {
		s.afterAction(c, err)
		return
	}
	s.redirect(c, "Row "+strconv.Itoa(res.Item.Position+1)+" labeled "+database.Category(c.Param("category")).Title())
}

func (s *Server) handleSkip(c *gin.Context) {
	row, ok := s.formRow(c)
	if !ok {
		return
	}
	res, err := s.ctrl.SkipAt(c.Request.Context(), row)
	if err != nil {
		s.afterAction(c, err)
		return
	}
	s.redirect(c, "Row "+strconv.Itoa(res.Item.Position+1)+" skipped")
}

func (s *Server) handleReset(c *gin.Context) {
	if _, err := s.ctrl.Reset(c.Request.Context()); err != nil {
		s.afterAction(c, err)
		return
	}
	s.redirect(c, "Progress reset")
}

func (s *Server) handleJump(c *gin.Context) {
	// The form shows 1-based row numbers.
	n, err := strconv.Atoi(strings.TrimSpace(c.PostForm("row")))
	if err != nil {
		s.redirect(c, "Enter a row number")
		return
	}
	if _, err := s.ctrl.JumpTo(c.Request.Context(), n-1); err != nil {
		s.afterAction(c, err)
		return
	}
	s.redirect(c, "Jumped to row "+strconv.Itoa(n))
}

// formRow reads the row the labeler saw. A missing field disables the check.
func (s *Server) formRow(c *gin.Context) (int, bool) {
	raw := strings.TrimSpace(c.PostForm("row"))
	if raw == "" {
		return annotate.AnyRow, true
	}
	row, err := strconv.Atoi(raw)
	if err != nil || row < 0 {
		s.render(c, http.StatusBadRequest, "error.html", gin.H{"Message": "invalid row " + strconv.Quote(raw)})
		return 0, false
	}
	return row, true
}

// afterAction sends the labeler back to the page with a notice for request
// rejections and renders an error page for everything else.
func (s *Server) afterAction(c *gin.Context, err error) {
	switch {
	case errors.Is(err, annotate.ErrStaleRow):
		s.redirect(c, "That row was already handled; showing the current one")
	case errors.Is(err, annotate.ErrComplete):
		s.redirect(c, "All rows have been processed")
	case errors.Is(err, annotate.ErrOutOfRange):
		s.redirect(c, "Row is outside the dataset")
	default:
		s.renderError(c, err)
	}
}

func (s *Server) redirect(c *gin.Context, notice string) {
	c.Redirect(http.StatusSeeOther, "/?"+url.Values{"notice": {notice}}.Encode())
}

func (s *Server) renderError(c *gin.Context, err error) {
	status := statusFor(err)
	msg := "Something went wrong"
	switch status {
	case http.StatusServiceUnavailable:
		msg = "The database is unavailable. Nothing was saved; please retry."
		s.log.Error("store unavailable", zap.String("path", c.Request.URL.Path), zap.Error(err))
	case http.StatusBadRequest:
		msg = err.Error()
	default:
		s.log.Error("request failed", zap.String("path", c.Request.URL.Path), zap.Error(err))
	}
	s.render(c, status, "error.html", gin.H{"Message": msg})
}

func (s *Server) render(c *gin.Context, status int, name string, data gin.H) {
	tmpl, ok := s.pages[name]
	if !ok {
		s.log.Error("template not found", zap.String("template", name))
		c.String(http.StatusInternalServerError, "Internal server error")
		return
	}

	c.Header("Content-Type", "text/html; charset=utf-8")
	c.Status(status)
	if err := tmpl.ExecuteTemplate(c.Writer, "base.html", data); err != nil {
		s.log.Error("rendering template", zap.String("template", name), zap.Error(err))
	}
}
