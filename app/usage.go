// Package app gates identifications on the free-use counter and subscription.
package app

import (
	"context"
	"errors"
	"log"
	"net/http"

	"github.com/adityadaniel/flora-friend/app/models"
	"github.com/adityadaniel/flora-friend/auth"
	"github.com/adityadaniel/flora-friend/entitlement"

	"github.com/gin-gonic/gin"
)

type quotaError struct {
	MaxFreeUses int
	Used        int
}

func (e quotaError) Error() string {
	return "free identifications used up"
}

func quotaFor(g *entitlement.Gate) quotaError {
	return quotaError{MaxFreeUses: g.MaxFreeUses(), Used: g.State().FreeUsesConsumed}
}

// gateFor resolves the caller's entitlement gate. It writes the error
// response itself and reports false when the request must stop.
func gateFor(c *gin.Context) (*entitlement.Gate, bool) {
	subject, ok := subjectFrom(c)
	if !ok {
		return nil, false
	}
	if gates == nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "entitlements not initialized"})
		return nil, false
	}

	g, err := gates.Gate(c.Request.Context(), subject)
	if err != nil {
		log.Printf("entitlement load failed sub=%s err=%v", subject, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load entitlement"})
		return nil, false
	}
	return g, true
}

func respondQuota(c *gin.Context, g *entitlement.Gate) {
	q := quotaFor(g)
	c.JSON(http.StatusPaymentRequired, gin.H{
		"error":             q.Error(),
		"maxFreeUses":       q.MaxFreeUses,
		"freeUsesConsumed":  q.Used,
		"remainingFreeUses": 0,
		"hasSubscription":   false,
	})
}

func entitlementView(g *entitlement.Gate) gin.H {
	state := g.State()
	plan := models.PlanFree
	if state.HasSubscription {
		plan = models.PlanPro
	}
	return gin.H{
		"plan":              plan,
		"freeUsesConsumed":  state.FreeUsesConsumed,
		"remainingFreeUses": state.RemainingFreeUses(g.MaxFreeUses()),
		"maxFreeUses":       g.MaxFreeUses(),
		"hasSubscription":   state.HasSubscription,
		"canProceed":        state.CanProceed(g.MaxFreeUses()),
	}
}

func subjectFrom(c *gin.Context) (string, bool) {
	subject, ok := auth.SubjectFromContext(c.Request.Context())
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "missing auth context"})
		return "", false
	}
	return subject, true
}

// IdentifyForSubject runs the gated identification outside HTTP.
func IdentifyForSubject(ctx context.Context, subject string, image []byte) (models.Identification, bool, error) {
	if gates == nil {
		return models.Identification{}, false, errors.New("entitlements not initialized")
	}
	g, err := gates.Gate(ctx, subject)
	if err != nil {
		return models.Identification{}, false, err
	}
	return runIdentification(ctx, g, image)
}

// EntitlementFor returns the subject's state and remaining free uses.
func EntitlementFor(ctx context.Context, subject string) (models.EntitlementState, int, error) {
	if gates == nil {
		return models.EntitlementState{}, 0, errors.New("entitlements not initialized")
	}
	g, err := gates.Gate(ctx, subject)
	if err != nil {
		return models.EntitlementState{}, 0, err
	}
	return g.State(), g.RemainingFreeUses(), nil
}

// ResetFreeUses clears the subject's free-use counter. Only the local CLI
// exposes this.
func ResetFreeUses(ctx context.Context, subject string) error {
	if gates == nil {
		return errors.New("entitlements not initialized")
	}
	g, err := gates.Gate(ctx, subject)
	if err != nil {
		return err
	}
	g.Reset(ctx)
	return nil
}

// IsQuotaExceeded reports whether err came from a denied gate.
func IsQuotaExceeded(err error) bool {
	var qe quotaError
	return errors.As(err, &qe)
}
