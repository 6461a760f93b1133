package rest

import (
	"context"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/shopspring/decimal"

	"github.com/nexusholdings/nexus/internal/domain"
	"github.com/nexusholdings/nexus/internal/present/rest/middleware"
	"github.com/nexusholdings/nexus/internal/present/rest/presenter"
	"github.com/nexusholdings/nexus/internal/service"
	"github.com/nexusholdings/nexus/internal/usecase"
	"github.com/nexusholdings/nexus/internal/utils"
)

type Handler struct {
	eligibility *usecase.EligibilityUsecase
	proposals   *usecase.ProposalUsecase
	activity    *usecase.ActivityUsecase
	auth        *middleware.AuthMiddleware
	signal      *service.SignalService
	gatherer    prometheus.Gatherer
}

func NewHandler(
	eligibility *usecase.EligibilityUsecase,
	proposals *usecase.ProposalUsecase,
	activity *usecase.ActivityUsecase,
	auth *middleware.AuthMiddleware,
	signal *service.SignalService,
	gatherer prometheus.Gatherer,
) *Handler {
	return &Handler{
		eligibility: eligibility,
		proposals:   proposals,
		activity:    activity,
		auth:        auth,
		signal:      signal,
		gatherer:    gatherer,
	}
}

// Validator adapts go-playground/validator to echo.
type Validator struct {
	validate *validator.Validate
}

func NewValidator() *Validator {
	return &Validator{validate: validator.New(validator.WithRequiredStructEnabled())}
}

func (v *Validator) Validate(i any) error {
	if err := v.validate.Struct(i); err != nil {
		return domain.ValidationError{Reason: err.Error()}
	}
	return nil
}

func (h *Handler) RegisterRoutes(e *echo.Echo) {
	e.Validator = NewValidator()
	e.Use(h.auth.IdentifyIdentity)

	e.GET("/health", h.handleHealth)
	if h.gatherer != nil {
		e.GET("/metrics", echo.WrapHandler(promhttp.HandlerFor(h.gatherer, promhttp.HandlerOpts{})))
	}
	e.GET("/realtime", h.handleRealtime)

	investor := e.Group("/investor", middleware.RequireIdentity)
	investor.GET("/status", h.handleInvestorStatus)
	investor.POST("/status", h.handleEvaluate)
	investor.PUT("/profile", h.handleUpdateProfile)
	investor.POST("/accreditation", h.handleSubmitAccreditation)
	investor.POST("/investments", h.handleRecordInvestment)

	admin := e.Group("/admin", middleware.RequireIdentity)
	admin.PUT("/accreditations/:id", h.handleReviewAccreditation)

	proposals := e.Group("/proposals", middleware.RequireIdentity)
	proposals.POST("", h.handleCreateProposal)
	proposals.GET("", h.handleListProposals)
	proposals.GET("/:id", h.handleGetProposal)
	proposals.POST("/:id/open", h.handleOpenVoting)
	proposals.POST("/:id/vote", h.handleVote)
	proposals.GET("/:id/votes", h.handleListVotes)
	proposals.POST("/:id/finalize", h.handleFinalize)
	proposals.POST("/:id/execute", h.handleExecute)
	proposals.GET("/:id/activity", h.handleProposalActivity)
}

func requester(c echo.Context) string {
	id, _ := middleware.RequesterID(c.Request().Context())
	return id
}

// bind decodes and validates the request body. Malformed input is a validation error.
func bind(c echo.Context, req any) error {
	if err := c.Bind(req); err != nil {
		return domain.ValidationError{Reason: "malformed request body"}
	}
	return c.Validate(req)
}

func (h *Handler) handleHealth(c echo.Context) error {
	return presenter.OK(c, echo.Map{"status": "ok"})
}

type amountRequest struct {
	Amount *decimal.Decimal `json:"amount" validate:"required"`
}

func (h *Handler) handleInvestorStatus(c echo.Context) error {
	status, err := h.eligibility.Status(c.Request().Context(), requester(c))
	if err != nil {
		return presenter.Error(c, err)
	}
	return presenter.OK(c, status)
}

func (h *Handler) handleEvaluate(c echo.Context) error {
	var req amountRequest
	if err := bind(c, &req); err != nil {
		return presenter.Error(c, err)
	}

	result, err := h.eligibility.Evaluate(c.Request().Context(), requester(c), *req.Amount)
	if err != nil {
		return presenter.Error(c, err)
	}
	return presenter.OK(c, result)
}

func (h *Handler) handleRecordInvestment(c echo.Context) error {
	var req amountRequest
	if err := bind(c, &req); err != nil {
		return presenter.Error(c, err)
	}

	profile, err := h.eligibility.RecordInvestment(c.Request().Context(), requester(c), *req.Amount)
	if err != nil {
		return presenter.Error(c, err)
	}
	return presenter.OK(c, profile)
}

type profileRequest struct {
	AccreditationStatus *string `json:"accreditationStatus"`
	ResidenceState      *string `json:"residenceState"   validate:"omitempty,max=64"`
	ResidenceCountry    *string `json:"residenceCountry" validate:"omitempty,max=64"`
	IsUSPerson          *bool   `json:"isUsPerson"`
	OnboardingStep      *int    `json:"onboardingStep"   validate:"omitempty,min=0"`
}

func (h *Handler) handleUpdateProfile(c echo.Context) error {
	var req profileRequest
	if err := bind(c, &req); err != nil {
		return presenter.Error(c, err)
	}

	input := usecase.ProfileInput{
		ResidenceState:   req.ResidenceState,
		ResidenceCountry: req.ResidenceCountry,
		IsUSPerson:       req.IsUSPerson,
		OnboardingStep:   req.OnboardingStep,
	}
	if req.AccreditationStatus != nil {
		status := domain.AccreditationStatus(*req.AccreditationStatus)
		input.AccreditationStatus = &status
	}

	profile, err := h.eligibility.UpdateProfile(c.Request().Context(), requester(c), input)
	if err != nil {
		return presenter.Error(c, err)
	}
	return presenter.OK(c, profile)
}

type accreditationRequest struct {
	AnnualIncome *decimal.Decimal `json:"annualIncome" validate:"required"`
	JointIncome  *decimal.Decimal `json:"jointIncome"`
	NetWorth     *decimal.Decimal `json:"netWorth"     validate:"required"`
}

func (h *Handler) handleSubmitAccreditation(c echo.Context) error {
	var req accreditationRequest
	if err := bind(c, &req); err != nil {
		return presenter.Error(c, err)
	}

	input := usecase.AccreditationInput{
		AnnualIncome: *req.AnnualIncome,
		NetWorth:     *req.NetWorth,
	}
	if req.JointIncome != nil {
		input.JointIncome = *req.JointIncome
	}

	response, err := h.eligibility.SubmitAccreditation(c.Request().Context(), requester(c), input)
	if err != nil {
		return presenter.Error(c, err)
	}
	return presenter.Created(c, response)
}

type reviewRequest struct {
	VerifiedStatus string `json:"verifiedStatus" validate:"required"`
}

func (h *Handler) handleReviewAccreditation(c echo.Context) error {
	var req reviewRequest
	if err := bind(c, &req); err != nil {
		return presenter.Error(c, err)
	}

	response, err := h.eligibility.ReviewAccreditation(c.Request().Context(), requester(c), c.Param("id"), domain.VerifiedStatus(req.VerifiedStatus))
	if err != nil {
		return presenter.Error(c, err)
	}
	return presenter.OK(c, response)
}

type proposalRequest struct {
	SubsidiaryID string         `json:"subsidiaryId" validate:"required"`
	Title        string         `json:"title"        validate:"required,max=200"`
	Description  string         `json:"description"`
	ProposalType string         `json:"proposalType" validate:"required"`
	Payload      map[string]any `json:"payload"`
	VoteEndAt    *time.Time     `json:"voteEndAt"`
}

func (h *Handler) handleCreateProposal(c echo.Context) error {
	var req proposalRequest
	if err := bind(c, &req); err != nil {
		return presenter.Error(c, err)
	}

	proposal, err := h.proposals.CreateProposal(c.Request().Context(), requester(c), usecase.ProposalInput{
		SubsidiaryID: req.SubsidiaryID,
		Title:        req.Title,
		Description:  req.Description,
		ProposalType: req.ProposalType,
		Payload:      req.Payload,
		VoteEndAt:    req.VoteEndAt,
	})
	if err != nil {
		return presenter.Error(c, err)
	}
	return presenter.Created(c, proposal)
}

func (h *Handler) handleListProposals(c echo.Context) error {
	filter := usecase.ProposalFilter{
		SubsidiaryID: c.QueryParam("subsidiaryId"),
		Status:       domain.ProposalStatus(c.QueryParam("status")),
	}
	if limitStr := c.QueryParam("limit"); limitStr != "" {
		limit, err := strconv.Atoi(limitStr)
		if err != nil {
			return presenter.BadRequestMessage(c, "invalid limit")
		}
		filter.Limit = limit
	}

	proposals, err := h.proposals.List(c.Request().Context(), filter)
	if err != nil {
		return presenter.Error(c, err)
	}
	return presenter.OK(c, proposals)
}

func (h *Handler) handleGetProposal(c echo.Context) error {
	proposal, err := h.proposals.Get(c.Request().Context(), c.Param("id"))
	if err != nil {
		return presenter.Error(c, err)
	}
	return presenter.OK(c, proposal)
}

type openRequest struct {
	VoteEndAt *time.Time `json:"voteEndAt"`
}

func (h *Handler) handleOpenVoting(c echo.Context) error {
	var req openRequest
	if err := bind(c, &req); err != nil {
		return presenter.Error(c, err)
	}

	proposal, err := h.proposals.OpenVoting(c.Request().Context(), requester(c), c.Param("id"), req.VoteEndAt)
	if err != nil {
		return presenter.Error(c, err)
	}
	return presenter.OK(c, proposal)
}

type acknowledgmentsRequest struct {
	ReviewedMaterials *bool `json:"reviewedMaterials"`
	UnderstandsRisks  *bool `json:"understandsRisks"`
	AcceptsOutcome    *bool `json:"acceptsOutcome"`
}

type voteRequest struct {
	VoteChoice      string                 `json:"voteChoice" validate:"required"`
	Acknowledgments acknowledgmentsRequest `json:"acknowledgments"`
	SignatureData   *string                `json:"signatureData"`
	Rationale       *string                `json:"rationale"  validate:"omitempty,max=4000"`
}

func (h *Handler) handleVote(c echo.Context) error {
	var req voteRequest
	if err := bind(c, &req); err != nil {
		return presenter.Error(c, err)
	}

	result, err := h.proposals.CastVote(c.Request().Context(), requester(c), c.Param("id"), usecase.VoteInput{
		Choice: domain.VoteChoice(req.VoteChoice),
		Acknowledgments: usecase.AcknowledgmentInput{
			ReviewedMaterials: req.Acknowledgments.ReviewedMaterials,
			UnderstandsRisks:  req.Acknowledgments.UnderstandsRisks,
			AcceptsOutcome:    req.Acknowledgments.AcceptsOutcome,
		},
		SignatureData: req.SignatureData,
		Rationale:     req.Rationale,
	})
	if err != nil {
		return presenter.Error(c, err)
	}
	return presenter.OK(c, result)
}

func (h *Handler) handleListVotes(c echo.Context) error {
	votes, err := h.proposals.ListVotes(c.Request().Context(), c.Param("id"))
	if err != nil {
		return presenter.Error(c, err)
	}
	return presenter.OK(c, votes)
}

func (h *Handler) handleFinalize(c echo.Context) error {
	proposal, err := h.proposals.FinalizeProposal(c.Request().Context(), requester(c), c.Param("id"))
	if err != nil {
		return presenter.Error(c, err)
	}
	return presenter.OK(c, proposal)
}

func (h *Handler) handleExecute(c echo.Context) error {
	proposal, err := h.proposals.ExecuteProposal(c.Request().Context(), requester(c), c.Param("id"))
	if err != nil {
		return presenter.Error(c, err)
	}
	return presenter.OK(c, proposal)
}

func (h *Handler) handleProposalActivity(c echo.Context) error {
	ctx := c.Request().Context()
	id := c.Param("id")

	if _, err := h.proposals.Get(ctx, id); err != nil {
		return presenter.Error(c, err)
	}

	limit := 0
	if limitStr := c.QueryParam("limit"); limitStr != "" {
		var err error
		limit, err = strconv.Atoi(limitStr)
		if err != nil {
			return presenter.BadRequestMessage(c, "invalid limit")
		}
	}

	entries, err := h.activity.List(ctx, domain.ActivityTargetProposal, id, limit)
	if err != nil {
		return presenter.Error(c, err)
	}
	return presenter.OK(c, entries)
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

type Request struct {
	Type     string   `json:"type"`
	Prefixes []string `json:"prefixes"`
}

// scopeSubscription keeps proposal prefixes and the requester's own investor
// channel. Investor channels are only ever matched exactly.
func scopeSubscription(requesterID string, prefixes []string) service.Subscription {
	var sub service.Subscription
	own := domain.ActivityTargetInvestor + ":" + requesterID
	for _, prefix := range prefixes {
		switch {
		case strings.HasPrefix(prefix, domain.ActivityTargetProposal+":"):
			sub.Prefixes = append(sub.Prefixes, prefix)
		case requesterID != "" && prefix == own:
			sub.Channels = append(sub.Channels, own)
		}
	}
	return sub
}

func (h *Handler) handleRealtime(c echo.Context) error {
	if h.signal == nil {
		return c.JSON(http.StatusServiceUnavailable, echo.Map{"error": "realtime is not enabled"})
	}

	ws, err := upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		utils.Error("failed to upgrade websocket", utils.ErrorField(err), utils.String("module", "socket"))
		return err
	}
	defer ws.Close()

	requesterID := requester(c)
	ctx, cancel := context.WithCancel(c.Request().Context())
	defer cancel()

	input := make(chan service.Subscription)
	output := make(chan domain.Activity)
	go h.signal.Realtime(ctx, input, output)

	quit := make(chan struct{}, 1)

	go func() {
		defer func() { quit <- struct{}{} }()
		for {
			var req Request
			err := ws.ReadJSON(&req)
			if err != nil {
				if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
					utils.Debug("websocket closed", utils.ErrorField(err), utils.String("module", "socket"))
				}
				return
			}

			switch req.Type {
			case "listen":
				sub := scopeSubscription(requesterID, req.Prefixes)
				select {
				case input <- sub:
				case <-ctx.Done():
					return
				}
				utils.Debug("socket subscribe",
					utils.String("channels", strings.Join(sub.Channels, ",")),
					utils.String("prefixes", strings.Join(sub.Prefixes, ",")),
					utils.String("module", "socket"),
				)
			case "h": // heartbeat
			default:
				utils.Info("unknown request type", utils.String("type", req.Type), utils.String("module", "socket"))
			}
		}
	}()

	for {
		select {
		case <-quit:
			return nil
		case activity := <-output:
			if err := ws.WriteJSON(activity); err != nil {
				utils.Error("error writing message", utils.ErrorField(err), utils.String("module", "socket"))
				return nil
			}
		}
	}
}
