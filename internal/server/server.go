package server

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/smallbiznis/launchpad/internal/audit"
	auditdomain "github.com/smallbiznis/launchpad/internal/audit/domain"
	"github.com/smallbiznis/launchpad/internal/authorization"
	"github.com/smallbiznis/launchpad/internal/benefit"
	benefitdomain "github.com/smallbiznis/launchpad/internal/benefit/domain"
	"github.com/smallbiznis/launchpad/internal/cart"
	cartdomain "github.com/smallbiznis/launchpad/internal/cart/domain"
	cartservice "github.com/smallbiznis/launchpad/internal/cart/service"
	"github.com/smallbiznis/launchpad/internal/catalog"
	catalogdomain "github.com/smallbiznis/launchpad/internal/catalog/domain"
	"github.com/smallbiznis/launchpad/internal/config"
	"github.com/smallbiznis/launchpad/internal/events"
	"github.com/smallbiznis/launchpad/internal/fulfillment"
	fulfillmentdomain "github.com/smallbiznis/launchpad/internal/fulfillment/domain"
	"github.com/smallbiznis/launchpad/internal/launch"
	launchdomain "github.com/smallbiznis/launchpad/internal/launch/domain"
	"github.com/smallbiznis/launchpad/internal/notification"
	"github.com/smallbiznis/launchpad/internal/observability"
	obsmiddleware "github.com/smallbiznis/launchpad/internal/observability/logger"
	obsmetrics "github.com/smallbiznis/launchpad/internal/observability/metrics"
	obstracing "github.com/smallbiznis/launchpad/internal/observability/tracing"
	"github.com/smallbiznis/launchpad/internal/order"
	orderdomain "github.com/smallbiznis/launchpad/internal/order/domain"
	"github.com/smallbiznis/launchpad/internal/payment"
	paymentdomain "github.com/smallbiznis/launchpad/internal/payment/domain"
	"github.com/smallbiznis/launchpad/internal/pricing"
	"github.com/smallbiznis/launchpad/internal/providers"
	"github.com/smallbiznis/launchpad/internal/ratelimit"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("http.server",
	fx.Provide(registerGin),
	authorization.Module,
	audit.Module,
	events.Module,
	providers.Module,
	ratelimit.Module,
	catalog.Module,
	pricing.Module,
	cart.Module,
	order.Module,
	fulfillment.Module,
	launch.Module,
	payment.Module,
	benefit.Module,
	notification.Module,
	fx.Invoke(NewServer),
	fx.Invoke(run),
)

func NewEngine(obsCfg observability.Config, httpMetrics *obsmetrics.HTTPMetrics) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(obsmiddleware.GinMiddleware(obsmiddleware.MiddlewareConfig{
		Debug:           obsCfg.Debug(),
		ErrorClassifier: classifyErrorForLog,
	}))
	r.Use(obstracing.GinMiddleware())
	r.Use(obsmetrics.GinMiddleware(httpMetrics))
	r.Use(ErrorHandlingMiddleware())
	r.Use(IdentityHeaders())

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	return r
}

func registerGin(obsCfg observability.Config, httpMetrics *obsmetrics.HTTPMetrics) *gin.Engine {
	return NewEngine(obsCfg, httpMetrics)
}

func run(lc fx.Lifecycle, cfg config.Config, r *gin.Engine, log *zap.Logger) {
	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			go func() {
				if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
					log.Fatal("http server stopped", zap.Error(err))
				}
			}()
			log.Info("http server listening", zap.String("addr", cfg.HTTPAddr))
			return nil
		},
		OnStop: func(ctx context.Context) error {
			shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		},
	})
}

// cartService is the slice of the cart service the handlers use.
type cartService interface {
	View(ctx context.Context, sessionID string) (*cartdomain.View, error)
	Put(ctx context.Context, sessionID string, offeringID int64, quantity int) (*cartdomain.View, error)
	Remove(ctx context.Context, sessionID string, offeringID int64) (*cartdomain.View, error)
	Clear(ctx context.Context, sessionID string) error
}

type Server struct {
	engine         *gin.Engine
	cfg            config.Config
	authzSvc       authorization.Service
	auditSvc       auditdomain.Service
	catalogSvc     catalogdomain.Service
	cartSvc        cartService
	orderSvc       orderdomain.Service
	paymentSvc     paymentdomain.Service
	webhookSvc     paymentdomain.WebhookService
	launchSvc      launchdomain.Service
	fulfillmentSvc fulfillmentdomain.Service
	benefitSvc     benefitdomain.Service
}

type ServerParams struct {
	fx.In

	Gin            *gin.Engine
	Cfg            config.Config
	AuthzSvc       authorization.Service
	AuditSvc       auditdomain.Service
	CatalogSvc     catalogdomain.Service
	CartSvc        *cartservice.Service
	OrderSvc       orderdomain.Service
	PaymentSvc     paymentdomain.Service
	WebhookSvc     paymentdomain.WebhookService
	LaunchSvc      launchdomain.Service
	FulfillmentSvc fulfillmentdomain.Service
	BenefitSvc     benefitdomain.Service
}

func NewServer(p ServerParams) *Server {
	svc := &Server{
		engine:         p.Gin,
		cfg:            p.Cfg,
		authzSvc:       p.AuthzSvc,
		auditSvc:       p.AuditSvc,
		catalogSvc:     p.CatalogSvc,
		cartSvc:        p.CartSvc,
		orderSvc:       p.OrderSvc,
		paymentSvc:     p.PaymentSvc,
		webhookSvc:     p.WebhookSvc,
		launchSvc:      p.LaunchSvc,
		fulfillmentSvc: p.FulfillmentSvc,
		benefitSvc:     p.BenefitSvc,
	}

	svc.registerAPIRoutes()
	svc.registerCheckoutRoutes()
	svc.registerAdminRoutes()
	svc.registerDevRoutes()

	return svc
}

func (s *Server) Engine() *gin.Engine {
	return s.engine
}

func (s *Server) registerAPIRoutes() {
	api := s.engine.Group("/api")

	// -------- Catalog --------
	api.GET("/offerings", s.ListOfferings)
	api.GET("/offerings/:id", s.GetOffering)
	api.POST("/offerings", s.authorize(authorization.ObjectCatalog, authorization.ActionCatalogCreate), s.CreateOffering)
	api.PATCH("/offerings/:id", s.authorize(authorization.ObjectCatalog, authorization.ActionCatalogUpdate), s.SetOfferingActive)

	// -------- Cart --------
	api.GET("/cart", s.GetCart)
	api.PUT("/cart/items/:offering_id", s.PutCartItem)
	api.DELETE("/cart/items/:offering_id", s.RemoveCartItem)
	api.DELETE("/cart", s.ClearCart)

	// -------- Orders --------
	api.POST("/orders", s.authorize(authorization.ObjectOrder, authorization.ActionOrderCreate), s.CreateOrder)
	api.GET("/orders/:id", s.authorize(authorization.ObjectOrder, authorization.ActionOrderView), s.GetOrder)
	api.GET("/orders/:id/receipt", s.authorize(authorization.ObjectOrder, authorization.ActionOrderView), s.GetOrderReceipt)
	api.POST("/orders/:id/cancel", s.authorize(authorization.ObjectOrder, authorization.ActionOrderCancel), s.CancelOrder)
	api.POST("/orders/:id/checkout", s.authorize(authorization.ObjectCheckout, authorization.ActionCheckoutBegin), s.BeginOrderCheckout)

	// -------- Checkout attempts --------
	api.GET("/checkout/:attempt_id", s.authorize(authorization.ObjectCheckout, authorization.ActionCheckoutBegin), s.GetCheckout)
	api.POST("/checkout/:attempt_id/ready", s.authorize(authorization.ObjectCheckout, authorization.ActionCheckoutBegin), s.ReportCheckoutReady)
	api.POST("/checkout/:attempt_id/load-error", s.authorize(authorization.ObjectCheckout, authorization.ActionCheckoutBegin), s.ReportCheckoutLoadError)
	api.POST("/checkout/:attempt_id/confirm", s.authorize(authorization.ObjectCheckout, authorization.ActionCheckoutBegin), s.ConfirmCheckout)

	// -------- Launch requests --------
	api.POST("/launch-requests", s.authorize(authorization.ObjectLaunchRequest, authorization.ActionLaunchRequestEdit), s.StartLaunchRequest)
	api.GET("/launch-requests/current", s.authorize(authorization.ObjectLaunchRequest, authorization.ActionLaunchRequestView), s.GetCurrentLaunchRequest)
	api.GET("/launch-requests/:id", s.authorize(authorization.ObjectLaunchRequest, authorization.ActionLaunchRequestView), s.GetLaunchRequest)
	api.PUT("/launch-requests/:id/steps/:step", s.authorize(authorization.ObjectLaunchRequest, authorization.ActionLaunchRequestEdit), s.SaveLaunchStep)
	api.POST("/launch-requests/:id/steps/:step/advance", s.authorize(authorization.ObjectLaunchRequest, authorization.ActionLaunchRequestEdit), s.AdvanceLaunchStep)
	api.POST("/launch-requests/:id/submit", s.authorize(authorization.ObjectLaunchRequest, authorization.ActionLaunchRequestSubmit), s.SubmitLaunchRequest)
	api.POST("/launch-requests/:id/checkout", s.authorize(authorization.ObjectCheckout, authorization.ActionCheckoutBegin), s.BeginLaunchCheckout)
	api.GET("/launch-requests/:id/progress", s.authorize(authorization.ObjectLaunchProgress, authorization.ActionLaunchProgressView), s.GetLaunchProgress)

	// -------- Benefits --------
	api.GET("/benefits", s.ListBenefits)
	api.POST("/benefits/:id/codes", s.authorize(authorization.ObjectBenefit, authorization.ActionBenefitClaim), s.IssueBenefitCode)
	api.GET("/benefits/:id/codes/mine", s.authorize(authorization.ObjectBenefit, authorization.ActionBenefitClaim), s.GetIssuedBenefitCode)
	api.POST("/benefit-codes/:code/redeem", s.authorize(authorization.ObjectBenefit, authorization.ActionBenefitRedeem), s.RedeemBenefitCode)
}

func (s *Server) registerCheckoutRoutes() {
	s.engine.GET("/checkout/return", s.authorize(authorization.ObjectCheckout, authorization.ActionCheckoutBegin), s.CompleteHostedReturn)
	s.engine.GET("/checkout/cancel", s.authorize(authorization.ObjectCheckout, authorization.ActionCheckoutBegin), s.CancelHostedCheckout)

	// Provider callbacks are authenticated by signature, not by caller identity.
	s.engine.POST("/webhooks/payments/:provider", s.HandlePaymentWebhook)
}

func (s *Server) registerAdminRoutes() {
	admin := s.engine.Group("/admin")

	admin.GET("/launch-board", s.authorize(authorization.ObjectLaunchAdmin, authorization.ActionLaunchBoardView), s.GetLaunchBoard)
	admin.PUT("/launch-requests/:id/status", s.authorize(authorization.ObjectLaunchAdmin, authorization.ActionLaunchStatusUpdate), s.SetLaunchAdminStatus)
	admin.POST("/launch-requests/:id/reopen", s.authorize(authorization.ObjectLaunchAdmin, authorization.ActionLaunchReopen), s.ReopenLaunchForm)
	admin.POST("/launch-requests/:id/waive-payment", s.authorize(authorization.ObjectLaunchAdmin, authorization.ActionLaunchWaivePayment), s.WaiveLaunchPayment)
	admin.PATCH("/launch-requests/:id/progress/:deliverable", s.authorize(authorization.ObjectLaunchProgress, authorization.ActionLaunchProgressUpdate), s.UpdateDeliverable)

	admin.POST("/benefits", s.authorize(authorization.ObjectBenefit, authorization.ActionBenefitManage), s.CreateBenefit)
	admin.GET("/audit-logs", s.authorize(authorization.ObjectAuditLog, authorization.ActionAuditLogView), s.ListAuditLogs)
	admin.GET("/overpayments", s.authorize(authorization.ObjectPayment, authorization.ActionOverpaymentView), s.ListOverpayments)
}

// registerDevRoutes exposes simulated payments outside production only.
func (s *Server) registerDevRoutes() {
	if !s.cfg.SimulationAllowed() {
		return
	}
	dev := s.engine.Group("/dev")
	dev.POST("/launch-requests/:id/simulate-payment", s.authorize(authorization.ObjectLaunchRequest, authorization.ActionLaunchRequestEdit), s.SimulateLaunchPayment)
}
