package server

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/butterflysys/butterfly/internal/capability"
	"github.com/butterflysys/butterfly/internal/observability"
	"github.com/butterflysys/butterfly/internal/policy"
	"github.com/butterflysys/butterfly/internal/resolver"
	"github.com/butterflysys/butterfly/internal/resource"
)

// resolveRequest is the resolve endpoint's body. Caller identity
// fields are honored only when bearer auth is disabled; with auth on,
// the verified token is the sole identity source.
type resolveRequest struct {
	Resource  string `json:"resource" binding:"required"`
	Operation string `json:"operation" binding:"required"`

	CallerID   string         `json:"callerId"`
	Claims     []policy.Claim `json:"claims"`
	OnCall     bool           `json:"onCall"`
	Attributes map[string]any `json:"attributes"`
}

// resolveResponse is a granted resolution.
type resolveResponse struct {
	Descriptor capability.Descriptor `json:"descriptor"`
	Operation  capability.Operation  `json:"operation"`
	Nonce      string                `json:"nonce"`
	ExpiresAt  time.Time             `json:"expiresAt"`
}

func (s *Server) handleResolve(c *gin.Context) {
	var req resolveRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "malformed request: " + err.Error()})
		return
	}

	op := capability.Operation(req.Operation)
	switch op {
	case capability.OperationRead, capability.OperationWrite, capability.OperationDelete, capability.OperationSearch:
	default:
		c.JSON(http.StatusBadRequest, gin.H{"error": "unknown operation: " + req.Operation})
		return
	}

	sc, verified := securityContext(c)
	if !verified {
		sc = &resolver.SecurityContext{
			CallerID:   req.CallerID,
			Claims:     req.Claims,
			OnCall:     req.OnCall,
			Attributes: req.Attributes,
		}
	} else {
		// Non-identity hints may still come from the body when the
		// token does not carry them.
		if sc.Attributes == nil {
			sc.Attributes = req.Attributes
		}
	}

	grant, err := s.resolver.Grant(c.Request.Context(), req.Resource, sc, op)
	if err != nil {
		s.writeResolveError(c, err)
		return
	}

	token := grant.Token()
	c.JSON(http.StatusOK, resolveResponse{
		Descriptor: token.Descriptor(),
		Operation:  grant.Operation(),
		Nonce:      token.Nonce(),
		ExpiresAt:  token.ExpiresAt(),
	})
}

// writeResolveError maps the resolver's error taxonomy onto status
// codes. The reason is surfaced verbatim; it never contains
// credential material.
func (s *Server) writeResolveError(c *gin.Context, err error) {
	var re *resolver.ResolveError
	reason := err.Error()
	if errors.As(err, &re) {
		reason = re.Reason
	}

	switch {
	case resolver.IsNotFound(err):
		c.JSON(http.StatusNotFound, gin.H{"error": "resource not found", "reason": reason})
	case resolver.IsDenied(err):
		c.JSON(http.StatusForbidden, gin.H{"error": "access denied", "reason": reason})
	case resolver.IsUnavailable(err):
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "broker unavailable", "reason": reason})
	case errors.Is(err, resolver.ErrMalformedPolicy):
		c.JSON(http.StatusInternalServerError, gin.H{"error": "resource misconfigured", "reason": reason})
	default:
		s.logger.WithContext(c.Request.Context()).Error("resolve failed", observability.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
	}
}

func (s *Server) handleRegister(c *gin.Context) {
	var def resource.Definition
	if err := c.ShouldBindJSON(&def); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "malformed definition: " + err.Error()})
		return
	}

	if err := s.resolver.RegisterConnection(c.Request.Context(), &def); err != nil {
		switch {
		case resolver.IsUnavailable(err):
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": "broker unavailable"})
		default:
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		}
		return
	}

	c.JSON(http.StatusCreated, gin.H{"name": def.Name})
}
