package web

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/a-h/templ"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/namikmesic/promptopt/internal/eventbus"
	"github.com/namikmesic/promptopt/internal/optimizer"
	"github.com/namikmesic/promptopt/internal/session"
	"github.com/namikmesic/promptopt/internal/stream"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

const (
	sessionCookie = "promptopt_session"
	sessionKey    = "session"

	listenerBuffer = 64
	reconnectDelay = 500 * time.Millisecond
)

type Deps struct {
	Store          *session.Store
	Bus            *eventbus.Bus
	Producer       session.Producer
	MaxUploadBytes int64
	Keepalive      time.Duration
}

type handlers struct {
	store     *session.Store
	bus       *eventbus.Bus
	producer  session.Producer
	maxUpload int64
	keepalive time.Duration
}

func NewRouter(d Deps) *gin.Engine {
	h := &handlers{
		store:     d.Store,
		bus:       d.Bus,
		producer:  d.Producer,
		maxUpload: d.MaxUploadBytes,
		keepalive: d.Keepalive,
	}
	if h.keepalive <= 0 {
		h.keepalive = 15 * time.Second
	}

	r := gin.New()
	r.Use(gin.Recovery(), requestLogger())
	r.MaxMultipartMemory = d.MaxUploadBytes + formOverhead

	r.GET("/healthz", func(c *gin.Context) { c.String(http.StatusOK, "ok") })
	r.POST("/api/optimize", h.apiOptimize)

	ui := r.Group("/", h.withSession)
	ui.GET("/", h.index)
	ui.POST("/optimize", h.optimize)
	ui.GET("/events", h.events)
	ui.GET("/download", h.download)

	return r
}

func requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		var ev *zerolog.Event
		switch c.Request.URL.Path {
		case "/events", "/healthz":
			ev = log.Debug()
		default:
			ev = log.Info()
		}
		ev.
			Str("method", c.Request.Method).
			Str("path", c.Request.URL.Path).
			Int("status", c.Writer.Status()).
			Dur("duration", time.Since(start)).
			Msg("request")
	}
}

func (h *handlers) withSession(c *gin.Context) {
	id, err := uuid.Parse(readCookie(c))
	if err != nil {
		id = uuid.New()
		c.SetSameSite(http.SameSiteLaxMode)
		c.SetCookie(sessionCookie, id.String(), 0, "/", "", false, true)
	}
	c.Set(sessionKey, h.store.Get(id))
	c.Next()
}

func readCookie(c *gin.Context) string {
	v, err := c.Cookie(sessionCookie)
	if err != nil {
		return ""
	}
	return v
}

func sessionFrom(c *gin.Context) *session.Session {
	return c.MustGet(sessionKey).(*session.Session)
}

// render writes a component as the response body.
func render(c *gin.Context, code int, comp templ.Component) {
	c.Status(code)
	c.Header("Content-Type", "text/html; charset=utf-8")
	if err := comp.Render(c.Request.Context(), c.Writer); err != nil {
		log.Error().Err(err).Str("path", c.Request.URL.Path).Msg("failed to render page")
		c.AbortWithStatus(http.StatusInternalServerError)
	}
}

func (h *handlers) index(c *gin.Context) {
	render(c, http.StatusOK, Page(sessionFrom(c).State().Snapshot()))
}

func (h *handlers) optimize(c *gin.Context) {
	sess := sessionFrom(c)

	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, h.maxUpload+formOverhead)
	prompt, err := readPrompt(c, h.maxUpload)
	if err != nil {
		log.Debug().Err(err).Str("session_id", sess.ID.String()).Msg("rejected prompt input")
		reply(c, http.StatusBadRequest, err.Error())
		return
	}

	_, err = sess.Runner.Start(c.Request.Context(), prompt)
	switch {
	case errors.Is(err, session.ErrEmptyPrompt):
		reply(c, http.StatusBadRequest, err.Error())
	case errors.Is(err, session.ErrBusy):
		reply(c, http.StatusConflict, err.Error())
	case err != nil:
		log.Error().Err(err).Str("session_id", sess.ID.String()).Msg("failed to start run")
		reply(c, http.StatusInternalServerError, "failed to start optimization")
	default:
		log.Info().Str("session_id", sess.ID.String()).Int("prompt_len", len(prompt)).Msg("optimization started")
		if wantsJSON(c) {
			c.JSON(http.StatusAccepted, gin.H{"status": "started"})
			return
		}
		c.Redirect(http.StatusSeeOther, "/")
	}
}

func reply(c *gin.Context, code int, msg string) {
	if wantsJSON(c) {
		c.JSON(code, gin.H{"error": msg})
		return
	}
	c.String(code, msg)
}

func wantsJSON(c *gin.Context) bool {
	return strings.Contains(c.GetHeader("Accept"), "application/json")
}

func startEventStream(c *gin.Context) *stream.Encoder {
	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("X-Accel-Buffering", "no")
	c.Status(http.StatusOK)
	return stream.NewEncoder(c.Writer)
}

// events streams view frames for the caller's session. The stream opens with
// a full redraw from session state, so a reconnecting page never depends on
// frames it missed. A listener that falls behind is disconnected and
// redraws on reconnect.
func (h *handlers) events(c *gin.Context) {
	sess := sessionFrom(c)

	sub, err := h.bus.Subscribe(sess.ID, listenerBuffer)
	if err != nil {
		log.Error().Err(err).Str("session_id", sess.ID.String()).Msg("failed to subscribe to session view")
		c.AbortWithStatus(http.StatusServiceUnavailable)
		return
	}
	defer sub.Close()

	enc := startEventStream(c)
	if err := enc.Retry(reconnectDelay); err != nil {
		return
	}
	for _, f := range snapshotFrames(sess.State().Snapshot()) {
		if err := enc.Encode(f); err != nil {
			return
		}
	}

	ticker := time.NewTicker(h.keepalive)
	defer ticker.Stop()

	for {
		select {
		case <-c.Request.Context().Done():
			return
		case <-sub.Lost():
			log.Info().Str("session_id", sess.ID.String()).Msg("event stream fell behind, closing for redraw")
			return
		case f := <-sub.Frames():
			if err := enc.Encode(f); err != nil {
				return
			}
		case <-ticker.C:
			if err := enc.Comment("keepalive"); err != nil {
				return
			}
		}
	}
}

func (h *handlers) download(c *gin.Context) {
	snap := sessionFrom(c).State().Snapshot()
	if snap.Result == nil || *snap.Result == "" {
		c.String(http.StatusNotFound, "no optimized prompt yet")
		return
	}
	c.Header("Content-Disposition", `attachment; filename="optimized_prompt.txt"`)
	c.Data(http.StatusOK, "text/plain; charset=utf-8", []byte(*snap.Result))
}

type apiOptimizeRequest struct {
	Prompt string `json:"prompt"`
}

// apiOptimize streams the raw producer events for one prompt. It keeps no
// session state.
func (h *handlers) apiOptimize(c *gin.Context) {
	var req apiOptimizeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	if strings.TrimSpace(req.Prompt) == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": session.ErrEmptyPrompt.Error()})
		return
	}

	enc := startEventStream(c)
	for ev := range h.producer.Events(c.Request.Context(), req.Prompt) {
		data, err := optimizer.MarshalEvent(ev)
		if err != nil {
			log.Error().Err(err).Str("kind", string(ev.Kind())).Msg("failed to encode event")
			return
		}
		if err := enc.Encode(stream.Frame{Event: string(ev.Kind()), Data: string(data)}); err != nil {
			log.Debug().Err(err).Msg("api client went away")
			return
		}
	}
}
