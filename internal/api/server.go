// Package api exposes the submission workflow over HTTP. Authorization is
// decided here: the core receives the authenticated actor and never checks
// roles itself.
package api

import (
	"context"
	"net/http"

	"submission-workflow/internal/common/logger"
	"submission-workflow/internal/core/esign"
	"submission-workflow/internal/core/lifecycle"
	"submission-workflow/internal/core/quote"
	"submission-workflow/internal/models"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type Submissions interface {
	Create(ctx context.Context, in lifecycle.CreateInput, actor models.Actor) (*models.Submission, error)
	Get(ctx context.Context, id string) (*models.Submission, error)
	Search(ctx context.Context, filter models.SubmissionFilter) (*models.SubmissionPage, error)
	AddNote(ctx context.Context, id, text string, actor models.Actor) (*models.Submission, error)
	Route(ctx context.Context, id string, actor models.Actor) (*models.Submission, error)
	AttachQuote(ctx context.Context, id, quoteID string, actor models.Actor) (*models.Submission, bool, error)
	SelectQuote(ctx context.Context, id, quoteID string, actor models.Actor) (*models.Submission, error)
	RequestBind(ctx context.Context, id string, actor models.Actor) (*models.Submission, error)
	ApproveBind(ctx context.Context, id string, actor models.Actor) (*models.Submission, error)
	Decline(ctx context.Context, id, reason string, actor models.Actor) (*models.Submission, error)
}

type Quotes interface {
	Enter(ctx context.Context, in quote.EnterInput, actor models.Actor) (*models.Quote, error)
	Post(ctx context.Context, quoteID string, actor models.Actor) (*models.Quote, bool, error)
	Approve(ctx context.Context, quoteID string, actor models.Actor) (*models.Quote, error)
	Decline(ctx context.Context, quoteID, reason string, actor models.Actor) (*models.Quote, error)
	Get(ctx context.Context, quoteID string) (*models.Quote, error)
	ListBySubmission(ctx context.Context, submissionID string) ([]*models.Quote, error)
}

type Documents interface {
	Generate(ctx context.Context, submissionID string, docType models.DocumentType, actor models.Actor) (*models.DocumentRecord, error)
	List(ctx context.Context, submissionID string) ([]models.DocumentRecord, error)
}

type Signatures interface {
	SendForSignature(ctx context.Context, submissionID string, actor models.Actor) (*models.EnvelopeRef, error)
	HandleSignatureEvent(ctx context.Context, ev esign.SignatureEvent) (*esign.EventResult, error)
}

type FinancePlans interface {
	Select(ctx context.Context, quoteID string, downPaymentPercent float64, tenureMonths int, annualInterestPercent float64, actor models.Actor) (*models.FinancePlan, error)
	Remove(ctx context.Context, quoteID string, actor models.Actor) error
	Get(ctx context.Context, quoteID string) (*models.FinancePlan, error)
}

// FinanceCalculator is satisfied by cache.FinanceCache.
type FinanceCalculator interface {
	Calculate(ctx context.Context, in models.FinanceInput) (*models.FinancePlan, bool, error)
}

type Payments interface {
	RecordPayment(ctx context.Context, req models.PaymentRequest, actor models.Actor) (*models.Payment, error)
	ListPayments(ctx context.Context, quoteID string) ([]models.Payment, error)
	PaymentStatus(ctx context.Context, quoteID string) (models.PaymentStatus, error)
}

// ReadinessCheck is one dependency probed by /ready.
type ReadinessCheck struct {
	Name  string
	Check func(ctx context.Context) error
}

// Services is everything the router dispatches to.
type Services struct {
	Submissions  Submissions
	Quotes       Quotes
	Documents    Documents
	Signatures   Signatures
	FinancePlans FinancePlans
	Calculator   FinanceCalculator
	Payments     Payments
}

type Options struct {
	Auth          Authenticator
	WebhookSecret string
	Checks        []ReadinessCheck
	// Version is reported by /health.
	Version string
}

type Server struct {
	services Services
	opts     Options
	logger   logger.Logger
	router   *gin.Engine
}

func NewServer(services Services, opts Options, log logger.Logger) *Server {
	gin.SetMode(gin.ReleaseMode)
	s := &Server{
		services: services,
		opts:     opts,
		logger:   log.WithFields(map[string]interface{}{"component": "http"}),
		router:   gin.New(),
	}
	if opts.WebhookSecret == "" {
		s.logger.Warn("e-sign webhook signature verification is disabled", nil)
	}
	s.routes()
	return s
}

// Handler returns the root http.Handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) routes() {
	r := s.router
	r.Use(gin.Recovery(), requestID(), requestLogger(s.logger))

	r.GET("/health", s.health)
	r.GET("/ready", s.ready)
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	v1 := r.Group("/api/v1")
	// the provider authenticates with the HMAC signature, not a bearer token
	v1.POST("/esign/webhook", s.signatureWebhook)

	authed := v1.Group("", authenticate(s.opts.Auth))
	agency := requireRole(models.RoleAgency)
	admin := requireRole(models.RoleAdmin)

	subs := authed.Group("/submissions")
	{
		subs.POST("", agency, s.createSubmission)
		subs.GET("", s.listSubmissions)
		subs.GET("/:id", s.getSubmission)
		subs.GET("/:id/quotes", s.listSubmissionQuotes)
		subs.POST("/:id/route", admin, s.routeSubmission)
		subs.POST("/:id/select-quote", agency, s.selectQuote)
		subs.POST("/:id/request-bind", agency, s.requestBind)
		subs.POST("/:id/approve-bind", admin, s.approveBind)
		subs.POST("/:id/decline", admin, s.declineSubmission)
		subs.POST("/:id/notes", admin, s.addNote)
		subs.GET("/:id/documents", s.listDocuments)
		subs.POST("/:id/documents/:type/generate", admin, s.generateDocument)
		subs.POST("/:id/esign/send", admin, s.sendForSignature)
	}

	quotes := authed.Group("/quotes")
	{
		quotes.POST("", admin, s.enterQuote)
		quotes.GET("/:id", s.getQuote)
		quotes.POST("/:id/post", admin, s.postQuote)
		quotes.POST("/:id/approve", admin, s.approveQuote)
		quotes.POST("/:id/decline", admin, s.declineQuote)
		quotes.GET("/:id/finance-plan", s.getFinancePlan)
		quotes.PUT("/:id/finance-plan", agency, s.selectFinancePlan)
		quotes.DELETE("/:id/finance-plan", agency, s.removeFinancePlan)
		quotes.GET("/:id/payments", s.listPayments)
	}

	authed.POST("/finance/calculate", s.calculateFinance)
	authed.POST("/payments", agency, s.recordPayment)
}

func (s *Server) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "healthy", "version": s.opts.Version})
}

func (s *Server) ready(c *gin.Context) {
	checks := make(map[string]string, len(s.opts.Checks))
	ready := true
	for _, check := range s.opts.Checks {
		if err := check.Check(c.Request.Context()); err != nil {
			checks[check.Name] = err.Error()
			ready = false
			continue
		}
		checks[check.Name] = "ok"
	}
	status := http.StatusOK
	if !ready {
		status = http.StatusServiceUnavailable
	}
	c.JSON(status, gin.H{"ready": ready, "checks": checks})
}
