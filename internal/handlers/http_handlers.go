package handlers

import (
	"bytes"
	"embed"
	"html/template"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/logger"
	"github.com/skip2/go-qrcode"

	"rollcall/internal/errors"
	"rollcall/internal/models"
	"rollcall/internal/report"
	"rollcall/internal/roster"
	"rollcall/internal/services"
	"rollcall/internal/websocket"
)

//go:embed templates/*.html
var templateFS embed.FS

// HTTPHandler holds the dependencies for the HTTP handlers, like the lottery service.
type HTTPHandler struct {
	service   *services.LotteryService
	hub       *websocket.Hub
	templates *template.Template
	publicURL string
	now       func() time.Time
}

// NewHTTPHandler creates a new HTTPHandler. hub may be nil, in which case
// /ws is not served. publicURL is what the QR code points at; when empty the
// request host is used.
func NewHTTPHandler(service *services.LotteryService, hub *websocket.Hub, publicURL string) (*HTTPHandler, error) {
	templates, err := template.ParseFS(templateFS, "templates/*.html")
	if err != nil {
		return nil, err
	}
	return &HTTPHandler{
		service:   service,
		hub:       hub,
		templates: templates,
		publicURL: publicURL,
		now:       time.Now,
	}, nil
}

// RegisterRoutes registers all the application routes.
func (h *HTTPHandler) RegisterRoutes(router *gin.Engine) {
	router.GET("/", h.ShowIndex)
	router.GET("/qr.png", h.QRCode)
	if h.hub != nil {
		router.GET("/ws", gin.WrapF(h.hub.ServeWs))
	}

	api := router.Group("/api")
	api.GET("/state", h.GetState)
	api.GET("/stats", h.GetStats)
	api.GET("/search", h.Search)

	api.POST("/names", h.AddNames)
	api.POST("/import", h.Import)
	api.POST("/imports/:index/use", h.UseImport)

	api.POST("/draw", h.QuickDraw)
	api.POST("/draws", h.StartDraw)
	api.POST("/draws/:id/complete", h.CompleteDraw)
	api.DELETE("/draws/:id", h.CancelDraw)
	api.POST("/skip", h.SkipRound)
	api.POST("/reset", h.Reset)

	api.PUT("/weights/:name", h.SetWeight)
	api.DELETE("/weights", h.ResetWeights)
	api.POST("/weights/balance", h.Balance)
	api.POST("/move", h.Move)
	api.POST("/shuffle", h.Shuffle)

	api.GET("/history", h.History)
	api.GET("/report", h.Report)
	api.GET("/export/results.csv", h.ExportResultsCSV)

	api.GET("/snapshots", h.ListSnapshots)
	api.POST("/snapshots", h.CreateSnapshot)
	api.POST("/snapshots/:id/restore", h.RestoreSnapshot)
	api.DELETE("/snapshots/:id", h.DeleteSnapshot)
}

// statusFor maps an error kind to an HTTP status.
func statusFor(err error) int {
	switch errors.KindOf(err) {
	case errors.ErrInvalidCount, errors.ErrInsufficientPool, errors.ErrInvalidWeight, errors.ErrInvalidInput:
		return http.StatusBadRequest
	case errors.ErrNameNotFound, errors.ErrSnapshotNotFound:
		return http.StatusNotFound
	case errors.ErrDrawAlreadyActive, errors.ErrNoActiveDraw:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

func (h *HTTPHandler) fail(c *gin.Context, err error) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		logger.Errorf("%s %s: %v", c.Request.Method, c.Request.URL.Path, err)
	}
	c.JSON(status, gin.H{"error": err.Error(), "kind": errors.KindOf(err).String()})
}

func badRequest(c *gin.Context, msg string) {
	c.JSON(http.StatusBadRequest, gin.H{"error": msg, "kind": errors.ErrInvalidInput.String()})
}

// parseMode accepts an empty mode, which means the configured default.
func parseMode(s string) (models.Mode, bool) {
	if s == "" {
		return "", true
	}
	return models.ParseMode(s)
}

// ShowIndex renders the projector page.
func (h *HTTPHandler) ShowIndex(c *gin.Context) {
	data := gin.H{
		"Title": "Roll Call",
		"State": h.service.State(),
		"Stats": h.service.Stats(),
	}
	buf := new(bytes.Buffer)
	if err := h.templates.ExecuteTemplate(buf, "index.html", data); err != nil {
		logger.Errorf("Error executing index template: %v", err)
		c.String(http.StatusInternalServerError, "Template rendering error")
		return
	}
	c.Data(http.StatusOK, "text/html; charset=utf-8", buf.Bytes())
}

// QRCode serves a PNG QR code pointing at the projector page.
func (h *HTTPHandler) QRCode(c *gin.Context) {
	url := h.publicURL
	if url == "" {
		scheme := "http"
		if c.Request.TLS != nil {
			scheme = "https"
		}
		url = scheme + "://" + c.Request.Host + "/"
	}
	png, err := qrcode.Encode(url, qrcode.Medium, 256)
	if err != nil {
		logger.Errorf("Error generating QR code: %v", err)
		c.String(http.StatusInternalServerError, "QR code error")
		return
	}
	c.Data(http.StatusOK, "image/png", png)
}

// GetState returns the full state plus the draw session status.
func (h *HTTPHandler) GetState(c *gin.Context) {
	session, active := h.service.Status()
	c.JSON(http.StatusOK, gin.H{
		"state":   h.service.State(),
		"session": session.String(),
		"draw":    active,
	})
}

// GetStats returns the roster counters.
func (h *HTTPHandler) GetStats(c *gin.Context) {
	c.JSON(http.StatusOK, h.service.Stats())
}

// Search looks up names in both pools.
func (h *HTTPHandler) Search(c *gin.Context) {
	undrawn, drawn := h.service.Search(c.Query("q"))
	c.JSON(http.StatusOK, gin.H{"undrawn": undrawn, "drawn": drawn})
}

type addNamesRequest struct {
	Names           []string `json:"names" binding:"required"`
	AllowDuplicates bool     `json:"allow_duplicates"`
}

// AddNames adds a batch of names typed in by hand.
func (h *HTTPHandler) AddNames(c *gin.Context) {
	var req addNamesRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}
	added, skipped, err := h.service.AddNames(c.Request.Context(), req.Names, req.AllowDuplicates)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"added": added, "skipped": skipped})
}

// Import handles an uploaded newline-delimited name list.
func (h *HTTPHandler) Import(c *gin.Context) {
	file, header, err := c.Request.FormFile("file")
	if err != nil {
		badRequest(c, "Error retrieving file: "+err.Error())
		return
	}
	defer file.Close()

	names, err := roster.ParseNames(file)
	if err != nil {
		h.fail(c, err)
		return
	}
	added, skipped, err := h.service.ImportNames(c.Request.Context(), header.Filename, "", names)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"added": added, "skipped": skipped})
}

// UseImport makes a recorded import batch the undrawn pool.
func (h *HTTPHandler) UseImport(c *gin.Context) {
	index, err := strconv.Atoi(c.Param("index"))
	if err != nil {
		badRequest(c, "Invalid import index")
		return
	}
	undrawn, err := h.service.UseImport(c.Request.Context(), index)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"undrawn": undrawn})
}

type drawRequest struct {
	Count int    `json:"count"`
	Mode  string `json:"mode"`
}

func (h *HTTPHandler) bindDraw(c *gin.Context) (drawRequest, models.Mode, bool) {
	var req drawRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return req, "", false
	}
	mode, ok := parseMode(req.Mode)
	if !ok {
		badRequest(c, "Unknown draw mode "+strconv.Quote(req.Mode))
		return req, "", false
	}
	return req, mode, true
}

// QuickDraw draws and commits in one request.
func (h *HTTPHandler) QuickDraw(c *gin.Context) {
	req, mode, ok := h.bindDraw(c)
	if !ok {
		return
	}
	rec, err := h.service.Draw(c.Request.Context(), req.Count, mode)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, rec)
}

// StartDraw opens a draw; clients watch the reveal over /ws and then
// complete or cancel it.
func (h *HTTPHandler) StartDraw(c *gin.Context) {
	req, mode, ok := h.bindDraw(c)
	if !ok {
		return
	}
	d, err := h.service.StartDraw(c.Request.Context(), req.Count, mode)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, d)
}

// CompleteDraw commits the open draw.
func (h *HTTPHandler) CompleteDraw(c *gin.Context) {
	rec, err := h.service.CompleteDraw(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, rec)
}

// CancelDraw abandons the open draw.
func (h *HTTPHandler) CancelDraw(c *gin.Context) {
	if err := h.service.CancelDraw(c.Param("id")); err != nil {
		h.fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// SkipRound advances the round without drawing.
func (h *HTTPHandler) SkipRound(c *gin.Context) {
	round, err := h.service.SkipRound(c.Request.Context())
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"round": round})
}

type resetRequest struct {
	Scope string `json:"scope"`
}

// Reset runs one of the reset operations: system (default), all or roster.
func (h *HTTPHandler) Reset(c *gin.Context) {
	var req resetRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, err.Error())
			return
		}
	}
	ctx := c.Request.Context()
	var err error
	switch req.Scope {
	case "", "system":
		err = h.service.ResetSystem(ctx)
	case "all":
		err = h.service.ResetAll(ctx)
	case "roster":
		err = h.service.ClearRoster(ctx)
	default:
		badRequest(c, "Unknown reset scope "+strconv.Quote(req.Scope))
		return
	}
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, h.service.Stats())
}

type weightRequest struct {
	Weight int `json:"weight"`
}

// SetWeight sets one name's weight.
func (h *HTTPHandler) SetWeight(c *gin.Context) {
	var req weightRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}
	name := c.Param("name")
	if err := h.service.SetWeight(c.Request.Context(), name, req.Weight); err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"name": name, "weight": req.Weight})
}

// ResetWeights clears all weight overrides.
func (h *HTTPHandler) ResetWeights(c *gin.Context) {
	h.service.ResetWeights(c.Request.Context())
	c.Status(http.StatusNoContent)
}

// Balance derives weights from draw history.
func (h *HTTPHandler) Balance(c *gin.Context) {
	c.JSON(http.StatusOK, h.service.SmartBalance(c.Request.Context()))
}

type moveRequest struct {
	Names []string `json:"names" binding:"required"`
	To    string   `json:"to" binding:"required"`
}

// Move corrects pool membership by hand.
func (h *HTTPHandler) Move(c *gin.Context) {
	var req moveRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}
	var err error
	switch req.To {
	case "drawn":
		err = h.service.MoveToDrawn(c.Request.Context(), req.Names...)
	case "undrawn":
		err = h.service.MoveToUndrawn(c.Request.Context(), req.Names...)
	default:
		badRequest(c, `"to" must be "drawn" or "undrawn"`)
		return
	}
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, h.service.Stats())
}

// Shuffle permutes the undrawn pool.
func (h *HTTPHandler) Shuffle(c *gin.Context) {
	h.service.Shuffle(c.Request.Context())
	c.JSON(http.StatusOK, gin.H{"undrawn": h.service.State().Undrawn})
}

// History lists completed draws.
func (h *HTTPHandler) History(c *gin.Context) {
	c.JSON(http.StatusOK, h.service.History())
}

// Report serves the plain-text report.
func (h *HTTPHandler) Report(c *gin.Context) {
	buf := new(bytes.Buffer)
	if err := report.Write(buf, h.service.State(), h.now()); err != nil {
		h.fail(c, err)
		return
	}
	c.Data(http.StatusOK, "text/plain; charset=utf-8", buf.Bytes())
}

// ExportResultsCSV handles the request to download the draw results as a CSV file.
func (h *HTTPHandler) ExportResultsCSV(c *gin.Context) {
	buf := new(bytes.Buffer)
	if err := report.WriteResultsCSV(buf, h.service.History()); err != nil {
		logger.Errorf("Error writing CSV: %v", err)
		c.String(http.StatusInternalServerError, "Error writing CSV")
		return
	}
	c.Header("Content-Disposition", "attachment;filename=lottery_results.csv")
	c.Data(http.StatusOK, "text/csv; charset=utf-8", buf.Bytes())
}

// ListSnapshots lists stored snapshots, newest first.
func (h *HTTPHandler) ListSnapshots(c *gin.Context) {
	list, err := h.service.ListSnapshots(c.Request.Context())
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, list)
}

type snapshotRequest struct {
	Reason string `json:"reason"`
}

// CreateSnapshot stores a snapshot on demand. The body is optional.
func (h *HTTPHandler) CreateSnapshot(c *gin.Context) {
	var req snapshotRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, err.Error())
			return
		}
	}
	id, err := h.service.Snapshot(c.Request.Context(), req.Reason)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"id": id})
}

// RestoreSnapshot replaces the live state with a snapshot.
func (h *HTTPHandler) RestoreSnapshot(c *gin.Context) {
	st, err := h.service.RestoreSnapshot(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, st)
}

// DeleteSnapshot removes a snapshot.
func (h *HTTPHandler) DeleteSnapshot(c *gin.Context) {
	if err := h.service.DeleteSnapshot(c.Request.Context(), c.Param("id")); err != nil {
		h.fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}
