// Package httpapi exposes the synchronizer over HTTP: the held profile, edits
// to it, and session changes that drive the in-process identity provider.
package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/roach88/profilesync/internal/app"
	"github.com/roach88/profilesync/internal/codec"
	"github.com/roach88/profilesync/internal/identity"
	"github.com/roach88/profilesync/internal/profile"
	"github.com/roach88/profilesync/internal/synchronizer"
)

// Handler serves the profile endpoints for one App.
type Handler struct {
	app   *app.App
	log   logrus.FieldLogger
	codec *codec.Codec
}

// NewRouter builds the gin engine with every route registered.
func NewRouter(a *app.App, log logrus.FieldLogger) *gin.Engine {
	InitValidation()
	h := &Handler{app: a, log: log.WithField("component", "httpapi"), codec: codec.Default().WithLogger(log)}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(requestID())
	r.Use(accessLog(h.log))

	r.GET("/healthz", h.Health)
	r.GET("/profile", h.GetProfile)
	r.PUT("/profile", h.UpdateProfile)
	r.GET("/avatars/:id", h.Avatar)

	session := r.Group("/session")
	session.POST("/guest", h.GuestSession)
	session.POST("/account", h.AccountSession)
	session.DELETE("", h.EndSession)
	return r
}

// Serve runs the HTTP server until ctx is done, then shuts it down.
func Serve(ctx context.Context, addr string, handler http.Handler, log logrus.FieldLogger) error {
	srv := &http.Server{Addr: addr, Handler: handler, ReadHeaderTimeout: 10 * time.Second}
	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe() }()
	log.WithField("addr", addr).Info("http server listening")

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	log.Info("http server shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

type profileView struct {
	State    string             `json:"state"`
	Loading  bool               `json:"loading"`
	Identity *identity.Identity `json:"identity,omitempty"`
	// Profile is the snapshot encoding of the held profile.
	Profile json.RawMessage `json:"profile,omitempty"`
}

func (h *Handler) view() (profileView, bool) {
	s := h.app.Sync
	v := profileView{State: s.State().String(), Loading: s.IsLoading()}
	if ident, ok := s.Identity(); ok {
		v.Identity = &ident
	}
	p, held := s.Current()
	if held {
		v.Profile = json.RawMessage(h.codec.Encode(p.ToObject()))
	}
	return v, held
}

func (h *Handler) Health(c *gin.Context) {
	success(c, http.StatusOK, gin.H{"status": "ok", "state": h.app.Sync.State().String()}, "ok")
}

func (h *Handler) GetProfile(c *gin.Context) {
	v, held := h.view()
	switch {
	case v.Loading:
		success(c, http.StatusAccepted, v, "profile loading")
	case !held:
		failure(c, http.StatusNotFound, "no profile", gin.H{"state": v.State})
	default:
		success(c, http.StatusOK, v, "profile loaded")
	}
}

type updateProfileRequest struct {
	DisplayName        *string    `json:"displayName" binding:"omitempty,max=64"`
	PhotoURL           *string    `json:"photoURL" binding:"omitempty,url"`
	CommitmentDocument *string    `json:"commitmentDocument"`
	StartDate          *time.Time `json:"startDate"`
}

func (h *Handler) UpdateProfile(c *gin.Context) {
	var req updateProfileRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		failure(c, http.StatusBadRequest, "invalid payload", toDetails(err))
		return
	}

	p, ok := h.app.Sync.Current()
	if !ok {
		failure(c, http.StatusNotFound, "no profile", nil)
		return
	}
	if req.DisplayName != nil {
		p.DisplayName = *req.DisplayName
	}
	if req.PhotoURL != nil {
		p.PhotoURL = *req.PhotoURL
	}
	if req.CommitmentDocument != nil {
		p.CommitmentDocument = *req.CommitmentDocument
	}
	if req.StartDate != nil {
		t := req.StartDate.UTC()
		p.StartDate = &t
	}

	if err := h.app.Sync.Update(p); err != nil {
		switch {
		case errors.Is(err, synchronizer.ErrNoIdentity), errors.Is(err, synchronizer.ErrIdentityMismatch):
			failure(c, http.StatusConflict, "identity changed", err.Error())
		default:
			h.log.WithError(err).Error("profile update failed")
			failure(c, http.StatusInternalServerError, "profile update failed", nil)
		}
		return
	}
	v, _ := h.view()
	success(c, http.StatusOK, v, "profile updated")
}

type guestSessionRequest struct {
	ID string `json:"identityId" binding:"omitempty,max=128"`
}

func (h *Handler) GuestSession(c *gin.Context) {
	var req guestSessionRequest
	// An empty body, sized or chunked, asks for a generated id.
	if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
		failure(c, http.StatusBadRequest, "invalid payload", toDetails(err))
		return
	}
	if req.ID == "" {
		req.ID = h.app.IDs.Generate()
	}
	h.startSession(c, identity.Guest(req.ID))
}

type accountSessionRequest struct {
	ID          string `json:"identityId" binding:"required,max=128"`
	DisplayName string `json:"displayName" binding:"omitempty,max=64"`
	Email       string `json:"email" binding:"omitempty,email"`
	PhotoURL    string `json:"photoURL" binding:"omitempty,url"`
	IsAnonymous bool   `json:"isAnonymous"`
}

func (h *Handler) AccountSession(c *gin.Context) {
	var req accountSessionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		failure(c, http.StatusBadRequest, "invalid payload", toDetails(err))
		return
	}
	ident := identity.Account(req.ID)
	ident.DisplayName = req.DisplayName
	ident.Email = req.Email
	ident.PhotoURL = req.PhotoURL
	ident.IsAnonymous = req.IsAnonymous
	h.startSession(c, ident)
}

func (h *Handler) startSession(c *gin.Context, ident identity.Identity) {
	if err := h.app.SignIn(ident); err != nil {
		failure(c, http.StatusBadRequest, "invalid identity", err.Error())
		return
	}
	if _, _, err := h.app.Ready(c.Request.Context(), identity.Normalize(ident).ID); err != nil {
		failure(c, http.StatusGatewayTimeout, "profile not ready", err.Error())
		return
	}
	v, _ := h.view()
	success(c, http.StatusCreated, v, "session started")
}

func (h *Handler) EndSession(c *gin.Context) {
	h.app.SignOut()
	if _, _, err := h.app.Ready(c.Request.Context(), ""); err != nil {
		failure(c, http.StatusGatewayTimeout, "sign-out not applied", err.Error())
		return
	}
	success(c, http.StatusOK, gin.H{"signedOut": true}, "session ended")
}

func (h *Handler) Avatar(c *gin.Context) {
	id := c.Param("id")
	candidates := h.app.Config.Avatars
	if len(candidates) == 0 {
		candidates = profile.DefaultAvatars
	}
	success(c, http.StatusOK, gin.H{
		"identityId": id,
		"index":      profile.AvatarIndex(id, len(candidates)),
		"photoURL":   profile.PickAvatar(id, candidates),
	}, "avatar picked")
}
