package authz

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/upb/dataset-search-api/internal/observability"
	"github.com/upb/dataset-search-api/middleware"
	"github.com/upb/dataset-search-api/oidc"
	"github.com/upb/dataset-search-api/utils"
	"go.uber.org/zap"
)

// ResourcePredicate decides whether the caller may act on a resource
type ResourcePredicate func(claims *oidc.Claims, resource interface{}) bool

// Gate makes group and resource based authorization decisions on verified
// claims. It holds no per-request state.
type Gate struct {
	metrics *observability.Metrics
	logger  *zap.Logger
}

// NewGate creates a new Gate
func NewGate(metrics *observability.Metrics, logger *zap.Logger) *Gate {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Gate{
		metrics: metrics,
		logger:  logger,
	}
}

// Authorize allows the request when claims carry requiredGroup and, if both
// pred and resource are given, pred accepts the resource. A nil return means
// allow; otherwise the error is a *Denial.
func (g *Gate) Authorize(claims *oidc.Claims, requiredGroup string, resource interface{}, pred ResourcePredicate) error {
	if !claims.HasGroup(requiredGroup) {
		g.metrics.RecordAuthorization(requiredGroup, "missing_group")
		return &Denial{Reason: ErrMissingGroup, Group: requiredGroup}
	}

	if pred != nil && resource != nil && !pred(claims, resource) {
		g.metrics.RecordAuthorization(requiredGroup, "resource_denied")
		return &Denial{Reason: ErrResourceDenied}
	}

	g.metrics.RecordAuthorization(requiredGroup, "allowed")
	return nil
}

// RequireGroup is a middleware that requires the verified caller to be a
// member of group. It must run after RequireAuth.
func (g *Gate) RequireGroup(group string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			requestID := middleware.GetRequestIDFromContext(ctx)

			claims := middleware.GetClaimsFromContext(ctx)
			if claims == nil {
				g.logger.Error("claims not found in context",
					zap.String("request_id", requestID))
				_ = utils.WriteUnauthorized(w, "Authorization token is required")
				return
			}

			if err := g.Authorize(claims, group, nil, nil); err != nil {
				g.logger.Warn("insufficient permissions",
					zap.String("request_id", requestID),
					zap.String("sub", claims.Subject),
					zap.String("required_group", group),
					zap.Strings("user_groups", claims.Groups))
				WriteDenial(w, err)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// WriteDenial writes the 403 response for an authorization error
func WriteDenial(w http.ResponseWriter, err error) {
	var denial *Denial
	if errors.As(err, &denial) && errors.Is(denial, ErrMissingGroup) {
		_ = utils.WriteForbidden(w, fmt.Sprintf("Insufficient permissions: requires group '%s'", denial.Group))
		return
	}
	_ = utils.WriteForbidden(w, "Insufficient permissions to access this resource")
}

// SameVO allows access to resources owned by the caller's VO. The resource
// must implement interface{ OwnerVO() string }.
func SameVO(claims *oidc.Claims, resource interface{}) bool {
	owned, ok := resource.(interface{ OwnerVO() string })
	if !ok || claims == nil || claims.VO == "" {
		return false
	}
	return owned.OwnerVO() == claims.VO
}
