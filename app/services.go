package app

import (
	"context"
	"log"
	"strings"
	"time"

	"github.com/adityadaniel/flora-friend/app/config"
	"github.com/adityadaniel/flora-friend/app/models"
	"github.com/adityadaniel/flora-friend/chat"
	"github.com/adityadaniel/flora-friend/entitlement"
	"github.com/adityadaniel/flora-friend/identify"

	"github.com/gin-gonic/gin"
)

// Identifier runs one vision identification.
type Identifier interface {
	Identify(ctx context.Context, image []byte) (models.Identification, error)
}

// Payments is the subscription provider as seen by the handlers.
type Payments interface {
	entitlement.StatusProvider
	Offerings(ctx context.Context) ([]models.Package, error)
	Purchase(ctx context.Context, subject, priceID string) (models.PurchaseResult, error)
	RestorePurchases(ctx context.Context, subject string) (bool, error)
	PortalURL(ctx context.Context, subject string) (string, error)
}

var (
	gates      *entitlement.Manager
	identifier Identifier
	assistant  chat.Responder
	payments   Payments
	queue      Queue

	identifyTimeout = 60 * time.Second
	paymentsTimeout = 10 * time.Second
	chatTimeout     = 60 * time.Second
)

// InitServices builds the vision client, chat assistant and entitlement
// manager. MustInitDB and InitStripe must run first.
func InitServices(cfg *config.Config) {
	ConfigureLogging(cfg.Logs)
	identifyTimeout = cfg.Vision.Timeout
	chatTimeout = cfg.Vision.Timeout
	paymentsTimeout = cfg.Stripe.Timeout

	if cfg.Vision.APIKey == "" {
		log.Printf("VISION_API_KEY missing; identification calls will be rejected by the provider")
	}
	client := identify.NewOpenAIClient(cfg.Vision.APIKey, cfg.Vision.BaseURL, cfg.Vision.Timeout)
	identifier = identify.NewIdentifier(client, cfg.Vision.Model, cfg.Vision.MaxDimension, cfg.Vision.JPEGQuality)
	assistant = chat.NewAssistant(client, cfg.Vision.ChatModel)

	gates = newGateManager(cfg.Entitlement.MaxFreeUses)
}

// ConfigureLogging applies LOG_LEVEL and LOG_STYLE. Any level other than
// debug puts gin in release mode. LOG_STYLE=plain drops timestamps for
// platforms that add their own, such as CloudWatch.
func ConfigureLogging(cfg config.LogConfig) {
	if cfg.Level != "" && !strings.EqualFold(cfg.Level, "debug") {
		gin.SetMode(gin.ReleaseMode)
	}
	if strings.EqualFold(cfg.Style, "plain") {
		log.SetFlags(0)
	}
}

// newGateManager wires the manager to whatever store and provider are set.
// Nil implementations are passed as untyped nils.
func newGateManager(maxFreeUses int) *entitlement.Manager {
	var es entitlement.Store
	if db != nil {
		es = db
	}
	var sp entitlement.StatusProvider
	if payments != nil {
		sp = payments
	}
	return entitlement.NewManager(es, sp, maxFreeUses, paymentsTimeout)
}
