package auth

import (
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/simp-lee/dogmatch/internal/domain"
	"github.com/simp-lee/dogmatch/internal/middleware"
	"github.com/simp-lee/dogmatch/internal/pkg"
)

// AuthHandler handles REST API requests for the catalog session.
type AuthHandler struct {
	svc Service
}

// NewHandler creates a new AuthHandler with the given service.
func NewHandler(svc Service) *AuthHandler {
	return &AuthHandler{svc: svc}
}

// Login handles POST /api/v1/auth/login. It is the only API route that
// takes no bearer token.
func (h *AuthHandler) Login(c *gin.Context) {
	var req LoginRequest
	if !pkg.BindAndValidate(c, &req) {
		return
	}

	tokenResp, err := h.svc.Login(c.Request.Context(), req.Name, req.Email)
	if err != nil {
		pkg.Error(c, err)
		return
	}

	pkg.Success(c, tokenResp)
}

// Logout handles POST /api/v1/auth/logout.
func (h *AuthHandler) Logout(c *gin.Context) {
	ctx := c.Request.Context()
	if err := h.svc.SignOut(ctx, middleware.GetWorkspace(c)); err != nil {
		pkg.Error(c, err)
		return
	}
	if err := h.svc.Revoke(ctx, bearerToken(c)); err != nil {
		pkg.Error(c, err)
		return
	}

	pkg.Success(c, nil)
}

// Session handles GET /api/v1/auth/session.
func (h *AuthHandler) Session(c *gin.Context) {
	ws := middleware.GetWorkspace(c)
	if ws == nil {
		pkg.Error(c, domain.ErrUnauthorized)
		return
	}

	st := ws.Guard.Check(c.Request.Context())
	resp := SessionResponse{Authenticated: st.Authenticated}
	if st.Authenticated {
		resp.EstablishedAt = &st.EstablishedAt
		resp.ExpiresAt = ws.Guard.ExpiresAt().Unix()
	}
	pkg.Success(c, resp)
}

func bearerToken(c *gin.Context) string {
	header := c.GetHeader("Authorization")
	if len(header) > 7 && strings.EqualFold(header[:7], "Bearer ") {
		return strings.TrimSpace(header[7:])
	}
	return ""
}
