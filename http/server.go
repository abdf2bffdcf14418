package http

import (
	"context"
	"errors"
	"net/http"

	echoHTTP "github.com/ThreeDotsLabs/go-event-driven/common/http"
	"github.com/ThreeDotsLabs/go-event-driven/common/log"
	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/github.com/labstack/echo/otelecho"

	"ticketchain/entity"
	"ticketchain/workflow"
)

type Reconciler interface {
	Reconcile(ctx context.Context, owner string) ([]entity.Ticket, error)
}

type IssuanceWorkflow interface {
	Run(ctx context.Context, req workflow.IssuanceRequest) (entity.WorkflowResult, error)
	Steps() []entity.WorkflowStep
	Reset() error
}

type TransferWorkflow interface {
	Run(ctx context.Context, req workflow.TransferRequest) (entity.WorkflowResult, error)
	Steps() []entity.WorkflowStep
	Reset() error
}

type WorkflowRunsRepository interface {
	Get(ctx context.Context, runID string) (entity.WorkflowRun, error)
	FindRecent(ctx context.Context, kind entity.WorkflowKind, limit int) ([]entity.WorkflowRun, error)
}

type WorkflowStepHistory interface {
	History(ctx context.Context, runID string) ([]entity.WorkflowStepChange, error)
}

type Server struct {
	addr        string
	e           *echo.Echo
	reconciler  Reconciler
	issuance    IssuanceWorkflow
	transfer    TransferWorkflow
	runsRepo    WorkflowRunsRepository
	stepHistory WorkflowStepHistory
}

func NewServer(
	addr string,
	reconciler Reconciler,
	issuance IssuanceWorkflow,
	transfer TransferWorkflow,
	runsRepo WorkflowRunsRepository,
	stepHistory WorkflowStepHistory,
) *Server {
	e := echoHTTP.NewEcho()
	e.Use(otelecho.Middleware("ticketchain"))

	server := &Server{
		addr:        addr,
		e:           e,
		reconciler:  reconciler,
		issuance:    issuance,
		transfer:    transfer,
		runsRepo:    runsRepo,
		stepHistory: stepHistory,
	}

	e.GET("/health", func(c echo.Context) error {
		return c.String(http.StatusOK, "ok")
	})
	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	e.GET("/owners/:address/tickets", server.GetOwnerTickets)

	e.POST("/metadata/validate", server.PostValidateMetadata)
	e.POST("/metadata/generate", server.PostGenerateMetadata)

	e.POST("/tickets", server.PostTickets)
	e.POST("/tickets/:token_id/transfer", server.PostTicketTransfer)

	e.GET("/workflows/:kind/steps", server.GetWorkflowSteps)
	e.POST("/workflows/:kind/reset", server.PostWorkflowReset)
	e.GET("/workflow-runs", server.GetWorkflowRuns)
	e.GET("/workflow-runs/:run_id", server.GetWorkflowRun)
	e.GET("/workflow-runs/:run_id/history", server.GetWorkflowRunHistory)

	return server
}

// Handler exposes the router, mostly for tests.
func (s Server) Handler() http.Handler {
	return s.e
}

func (s Server) Run(ctx context.Context) error {
	go func() {
		<-ctx.Done()
		err := s.e.Shutdown(context.Background())
		if err != nil {
			log.FromContext(ctx).WithError(err).Error("failed to shutdown HTTP server")
		}
	}()
	log.FromContext(ctx).WithField("addr", s.addr).Info("[HTTP] server listening")
	if err := s.e.Start(s.addr); !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
