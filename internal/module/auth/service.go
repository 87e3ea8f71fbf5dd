package auth

import (
	"context"
	"log/slog"

	"github.com/simp-lee/dogmatch/internal/domain"
	"github.com/simp-lee/dogmatch/internal/workspace"
)

// Workspaces is the part of the workspace registry the auth module uses.
type Workspaces interface {
	Create(ctx context.Context) (*workspace.Workspace, workspace.Ticket, error)
	Revoke(ctx context.Context, token string) error
}

// Service defines the catalog login operations.
type Service interface {
	// Login opens a new workspace, signs it in and returns its token.
	Login(ctx context.Context, name, email string) (*TokenResponse, error)
	// SignIn signs an existing workspace in.
	SignIn(ctx context.Context, ws *workspace.Workspace, name, email string) error
	// SignOut ends the catalog session of ws.
	SignOut(ctx context.Context, ws *workspace.Workspace) error
	// Revoke invalidates a workspace token.
	Revoke(ctx context.Context, token string) error
}

type authService struct {
	workspaces Workspaces
	log        *slog.Logger
}

// NewService creates a Service over workspaces.
func NewService(workspaces Workspaces, log *slog.Logger) Service {
	if log == nil {
		log = slog.Default()
	}
	return &authService{workspaces: workspaces, log: log}
}

func (s *authService) Login(ctx context.Context, name, email string) (*TokenResponse, error) {
	ws, ticket, err := s.workspaces.Create(ctx)
	if err != nil {
		return nil, err
	}
	if err := s.SignIn(ctx, ws, name, email); err != nil {
		if revokeErr := s.workspaces.Revoke(ctx, ticket.Token); revokeErr != nil {
			s.log.WarnContext(ctx, "revoke unused workspace", slog.Any("error", revokeErr))
		}
		return nil, err
	}
	return &TokenResponse{Token: ticket.Token, ExpiresAt: ticket.ExpiresAt.Unix()}, nil
}

func (s *authService) SignIn(ctx context.Context, ws *workspace.Workspace, name, email string) error {
	if ws == nil {
		return domain.NewAppError(domain.CodeInternal, "workspace missing", nil)
	}
	if err := ws.Login(ctx, name, email); err != nil {
		s.log.InfoContext(ctx, "catalog login failed", slog.String("workspace", ws.ID), slog.Any("error", err))
		if domain.IsUnauthorized(err) {
			return domain.NewAppError(domain.CodeUnauthorized, "login failed", err)
		}
		return err
	}
	s.log.InfoContext(ctx, "catalog login", slog.String("workspace", ws.ID))
	return nil
}

// SignOut always clears the local session; a failed upstream logout is only
// logged.
func (s *authService) SignOut(ctx context.Context, ws *workspace.Workspace) error {
	if ws == nil {
		return nil
	}
	err := ws.Logout(ctx)
	if err != nil && (domain.IsUpstream(err) || domain.IsUnauthorized(err)) {
		s.log.WarnContext(ctx, "catalog logout failed", slog.String("workspace", ws.ID), slog.Any("error", err))
		return nil
	}
	return err
}

func (s *authService) Revoke(ctx context.Context, token string) error {
	return s.workspaces.Revoke(ctx, token)
}
