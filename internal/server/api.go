package server

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/TobiSchelling/labeldesk/internal/annotate"
	"github.com/TobiSchelling/labeldesk/internal/database"
	"github.com/TobiSchelling/labeldesk/internal/dataset"
	"github.com/TobiSchelling/labeldesk/internal/export"
)

type itemView struct {
	Row           int     `json:"row"`
	Text          string  `json:"text"`
	OriginalLabel *string `json:"original_label"`
}

func viewOf(it dataset.Item) *itemView {
	return &itemView{Row: it.Position, Text: it.Text, OriginalLabel: it.OriginalLabel}
}

type resultView struct {
	Progress     database.Progress `json:"progress"`
	Item         *itemView         `json:"item,omitempty"`
	SubmissionID int64             `json:"submission_id,omitempty"`
}

func resultOf(res *annotate.Result, withItem bool) resultView {
	v := resultView{Progress: res.Progress, SubmissionID: res.SubmissionID}
	if withItem {
		v.Item = viewOf(res.Item)
	}
	return v
}

type classifyRequest struct {
	Category string `json:"category" binding:"required"`
	Row      *int   `json:"row"`
}

type skipRequest struct {
	Row *int `json:"row"`
}

type jumpRequest struct {
	Row *int `json:"row" binding:"required"`
}

func expectRow(row *int) int {
	if row == nil {
		return annotate.AnyRow
	}
	return *row
}

func (s *Server) apiError(c *gin.Context, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		s.log.Error("api request failed", zap.String("path", c.Request.URL.Path), zap.Error(err))
		c.JSON(status, gin.H{"error": "store unavailable"})
		return
	}
	c.JSON(status, gin.H{"error": err.Error()})
}

func (s *Server) apiCurrent(c *gin.Context) {
	ctx := c.Request.Context()
	item, done, err := s.ctrl.Current(ctx)
	if err != nil {
		s.apiError(c, err)
		return
	}
	resp := gin.H{"done": done, "total_rows": s.ctrl.TotalRows()}
	if !done {
		resp["item"] = viewOf(item)
	}
	c.JSON(http.StatusOK, resp)
}

func (s *Server) apiStats(c *gin.Context) {
	stats, err := s.ctrl.Statistics(c.Request.Context())
	if err != nil {
		s.apiError(c, err)
		return
	}
	c.JSON(http.StatusOK, stats)
}

func (s *Server) apiClassify(c *gin.Context) {
	var req classifyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	res, err := s.ctrl.ClassifyAt(c.Request.Context(), expectRow(req.Row), req.Category)
	if err != nil {
		s.apiError(c, err)
		return
	}
	c.JSON(http.StatusOK, resultOf(res, true))
}

func (s *Server) apiSkip(c *gin.Context) {
	var req skipRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
	}
	res, err := s.ctrl.SkipAt(c.Request.Context(), expectRow(req.Row))
	if err != nil {
		s.apiError(c, err)
		return
	}
	c.JSON(http.StatusOK, resultOf(res, true))
}

func (s *Server) apiReset(c *gin.Context) {
	res, err := s.ctrl.Reset(c.Request.Context())
	if err != nil {
		s.apiError(c, err)
		return
	}
	c.JSON(http.StatusOK, resultOf(res, false))
}

func (s *Server) apiJump(c *gin.Context) {
	var req jumpRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	res, err := s.ctrl.JumpTo(c.Request.Context(), *req.Row)
	if err != nil {
		s.apiError(c, err)
		return
	}
	c.JSON(http.StatusOK, resultOf(res, false))
}

func (s *Server) apiExportCSV(c *gin.Context) {
	s.exportAs(c, export.FormatCSV, "text/csv; charset=utf-8")
}

func (s *Server) apiExportJSON(c *gin.Context) {
	s.exportAs(c, export.FormatJSON, "application/json")
}

func (s *Server) exportAs(c *gin.Context, format, contentType string) {
	subs, err := s.ctrl.Submissions(c.Request.Context())
	if err != nil {
		s.apiError(c, err)
		return
	}
	c.Header("Content-Type", contentType)
	c.Header("Content-Disposition", "attachment; filename=submissions."+format)
	c.Status(http.StatusOK)
	if err := export.Write(c.Writer, format, subs); err != nil {
		s.log.Error("export failed", zap.String("format", format), zap.Error(err))
	}
}
