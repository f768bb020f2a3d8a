package handlers

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"github.com/skip2/go-qrcode"

	"fitness-crm/models"
	"fitness-crm/services"
	"fitness-crm/utils"
)

const searchLimit = 20

type MembershipRegistrar interface {
	Register(ctx context.Context, customer *models.Customer, in services.RegisterInput) (*models.Membership, error)
	Cancel(ctx context.Context, membership *models.Membership) error
}

type BranchGetter interface {
	GetBranch(ctx context.Context, id uint) (*models.Branch, error)
}

type CustomerSearcher interface {
	SearchCustomers(ctx context.Context, text string, branchID *uint, limit int) ([]utils.CustomerDocument, error)
}

type CustomerHandler struct {
	repo        models.CustomerRepository
	branches    BranchGetter
	memberships MembershipRegistrar
	search      CustomerSearcher
	events      *services.EventPublisher
	log         logrus.FieldLogger
}

// NewCustomerHandler wires the customer endpoints. search may be nil, in
// which case searches go to the database.
func NewCustomerHandler(repo models.CustomerRepository, branches BranchGetter, memberships MembershipRegistrar, search CustomerSearcher, events *services.EventPublisher, log logrus.FieldLogger) *CustomerHandler {
	return &CustomerHandler{
		repo:        repo,
		branches:    branches,
		memberships: memberships,
		search:      search,
		events:      events,
		log:         log,
	}
}

type CustomerRequest struct {
	Name             string  `json:"name" binding:"required,min=2,max=100"`
	Phone            string  `json:"phone" binding:"required,min=5,max=50"`
	Email            string  `json:"email" binding:"omitempty,email,max=255"`
	Gender           string  `json:"gender" binding:"omitempty,oneof=male female other"`
	BirthDate        *string `json:"birth_date"`
	BranchID         *uint   `json:"branch_id"`
	ManagerID        *uint   `json:"manager_id"`
	Source           string  `json:"source" binding:"max=50"`
	Occupation       string  `json:"occupation" binding:"max=100"`
	Goal             string  `json:"goal" binding:"max=255"`
	Notes            string  `json:"notes"`
	MarketingConsent bool    `json:"marketing_consent"`

	// Intake only: the first consultation recorded with the customer.
	Consultation *ConsultationRequest `json:"consultation"`
}

type ConsultationRequest struct {
	ScheduledAt *time.Time `json:"scheduled_at"`
	VisitedAt   *time.Time `json:"visited_at"`
	Channel     string     `json:"channel" binding:"omitempty,oneof=visit phone online"`
	Interest    string     `json:"interest" binding:"max=100"`
	Content     string     `json:"content"`
	Result      string     `json:"result" binding:"omitempty,oneof=pending registered considering declined"`
}

type MembershipRequest struct {
	ProductID  uint             `json:"product_id" binding:"required"`
	StartDate  *string          `json:"start_date"`
	PaidAmount *decimal.Decimal `json:"paid_amount"`
	Memo       string           `json:"memo" binding:"max=255"`
}

type CustomerResponse struct {
	ID               uint      `json:"id"`
	Name             string    `json:"name"`
	Phone            string    `json:"phone"`
	Email            string    `json:"email"`
	Gender           string    `json:"gender"`
	BirthDate        *string   `json:"birth_date"`
	BranchID         uint      `json:"branch_id"`
	BranchName       string    `json:"branch,omitempty"`
	ManagerID        *uint     `json:"manager_id"`
	Status           string    `json:"status"`
	Source           string    `json:"source"`
	Occupation       string    `json:"occupation"`
	Goal             string    `json:"goal"`
	Notes            string    `json:"notes"`
	MarketingConsent bool      `json:"marketing_consent"`
	CreatedAt        time.Time `json:"created_at"`
}

type ConsultationResponse struct {
	ID           uint       `json:"id"`
	CustomerID   uint       `json:"customer_id"`
	ConsultantID *uint      `json:"consultant_id"`
	ScheduledAt  time.Time  `json:"scheduled_at"`
	VisitedAt    *time.Time `json:"visited_at"`
	Channel      string     `json:"channel"`
	Interest     string     `json:"interest"`
	Content      string     `json:"content"`
	Result       string     `json:"result"`
}

type MembershipResponse struct {
	ID          uint            `json:"id"`
	Code        string          `json:"code"`
	CustomerID  uint            `json:"customer_id"`
	ProductID   uint            `json:"product_id"`
	ProductName string          `json:"product"`
	Category    string          `json:"category"`
	StartDate   string          `json:"start_date"`
	EndDate     string          `json:"end_date"`
	PaidAmount  decimal.Decimal `json:"paid_amount"`
	Status      string          `json:"status"`
	Memo        string          `json:"memo"`
}

type CustomerDetailResponse struct {
	CustomerResponse
	Consultations []ConsultationResponse `json:"consultations"`
	Memberships   []MembershipResponse   `json:"memberships"`
}

func toCustomerResponse(c *models.Customer) CustomerResponse {
	return CustomerResponse{
		ID:               c.ID,
		Name:             c.Name,
		Phone:            c.Phone,
		Email:            c.Email,
		Gender:           c.Gender,
		BirthDate:        formatDate(c.BirthDate),
		BranchID:         c.BranchID,
		BranchName:       c.Branch.Name,
		ManagerID:        c.ManagerID,
		Status:           string(c.Status),
		Source:           c.Source,
		Occupation:       c.Occupation,
		Goal:             c.Goal,
		Notes:            c.Notes,
		MarketingConsent: c.MarketingConsent,
		CreatedAt:        c.CreatedAt,
	}
}

func toConsultationResponse(c *models.Consultation) ConsultationResponse {
	return ConsultationResponse{
		ID:           c.ID,
		CustomerID:   c.CustomerID,
		ConsultantID: c.ConsultantID,
		ScheduledAt:  c.ScheduledAt,
		VisitedAt:    c.VisitedAt,
		Channel:      c.Channel,
		Interest:     c.Interest,
		Content:      c.Content,
		Result:       string(c.Result),
	}
}

func toMembershipResponse(m *models.Membership) MembershipResponse {
	return MembershipResponse{
		ID:          m.ID,
		Code:        m.Code(),
		CustomerID:  m.CustomerID,
		ProductID:   m.ProductID,
		ProductName: m.Product.Name,
		Category:    m.Product.Category,
		StartDate:   m.StartDate.Format(services.DateLayout),
		EndDate:     m.EndDate.Format(services.DateLayout),
		PaidAmount:  m.PaidAmount,
		Status:      string(m.Status),
		Memo:        m.Memo,
	}
}

// loadCustomer fetches the :id customer and hides customers of other
// branches from branch-bound staff.
func (h *CustomerHandler) loadCustomer(c *gin.Context) (*models.Customer, bool) {
	id, ok := idParam(c, "id", "customer")
	if !ok {
		return nil, false
	}

	customer, err := h.repo.GetCustomer(c.Request.Context(), id)
	if err != nil {
		respondError(c, err, "customer")
		return nil, false
	}
	if !principal(c).CanAccessBranch(customer.BranchID) {
		notFound(c, "customer")
		return nil, false
	}
	return customer, true
}

// resolveBranch picks the branch a new or moved customer belongs to.
func (h *CustomerHandler) resolveBranch(c *gin.Context, requested *uint) (uint, bool) {
	p := principal(c)
	if p.Unassigned() {
		c.JSON(http.StatusForbidden, gin.H{"error": errNoBranch})
		return 0, false
	}
	branchID := p.ScopeBranch(requested)
	if branchID == nil {
		branchID = p.BranchID
	}
	if branchID == nil {
		badRequest(c, "branch_id is required")
		return 0, false
	}

	if _, err := h.branches.GetBranch(c.Request.Context(), *branchID); err != nil {
		if errors.Is(err, models.ErrNotFound) {
			badRequest(c, "branch not found")
		} else {
			respondError(c, err, "branch")
		}
		return 0, false
	}
	return *branchID, true
}

func (h *CustomerHandler) ListCustomers(c *gin.Context) {
	branchID, err := optionalUint(c, "branch_id")
	if err != nil {
		badRequest(c, err.Error())
		return
	}
	managerID, err := optionalUint(c, "manager_id")
	if err != nil {
		badRequest(c, err.Error())
		return
	}

	status := models.CustomerStatus(c.Query("status"))
	switch status {
	case "", models.CustomerConsultation, models.CustomerRegistered, models.CustomerExpired:
	default:
		badRequest(c, "invalid status")
		return
	}

	filter := models.CustomerFilter{
		Status:    status,
		BranchID:  principal(c).ScopeBranch(branchID),
		ManagerID: managerID,
		Query:     c.Query("q"),
	}
	page := pageFromQuery(c)

	customers, total, err := h.repo.ListCustomers(c.Request.Context(), filter, page)
	if err != nil {
		respondError(c, err, "customer")
		return
	}

	items := make([]CustomerResponse, 0, len(customers))
	for i := range customers {
		items = append(items, toCustomerResponse(&customers[i]))
	}
	c.JSON(http.StatusOK, listResponse{Items: items, Total: total, Page: page.Page, PageSize: page.PageSize})
}

// CreateCustomer is the consultation intake: the customer starts in the
// consultation status, optionally with the first consultation attached.
func (h *CustomerHandler) CreateCustomer(c *gin.Context) {
	var req CustomerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}

	birthDate, err := parseOptionalDate(req.BirthDate)
	if err != nil {
		badRequest(c, "birth_date must be YYYY-MM-DD")
		return
	}

	branchID, ok := h.resolveBranch(c, req.BranchID)
	if !ok {
		return
	}

	customer := &models.Customer{
		Name:             strings.TrimSpace(req.Name),
		Phone:            strings.TrimSpace(req.Phone),
		Email:            req.Email,
		Gender:           req.Gender,
		BirthDate:        birthDate,
		BranchID:         branchID,
		ManagerID:        req.ManagerID,
		Status:           models.CustomerConsultation,
		Source:           req.Source,
		Occupation:       req.Occupation,
		Goal:             req.Goal,
		Notes:            req.Notes,
		MarketingConsent: req.MarketingConsent,
	}

	var first *models.Consultation
	if req.Consultation != nil {
		first = h.newConsultation(c, req.Consultation)
	}

	if err := h.repo.CreateCustomer(c.Request.Context(), customer, first); err != nil {
		respondError(c, err, "customer")
		return
	}

	h.events.PublishCustomer(services.EventCustomerCreated, customer)

	c.JSON(http.StatusCreated, toCustomerResponse(customer))
}

func (h *CustomerHandler) newConsultation(c *gin.Context, req *ConsultationRequest) *models.Consultation {
	consultantID := principal(c).UserID
	consultation := &models.Consultation{
		ConsultantID: &consultantID,
		ScheduledAt:  time.Now().UTC(),
		VisitedAt:    req.VisitedAt,
		Channel:      req.Channel,
		Interest:     req.Interest,
		Content:      req.Content,
		Result:       models.ConsultationResult(req.Result),
	}
	if req.ScheduledAt != nil {
		consultation.ScheduledAt = *req.ScheduledAt
	}
	if consultation.Channel == "" {
		consultation.Channel = "visit"
	}
	if consultation.Result == "" {
		consultation.Result = models.ResultPending
	}
	return consultation
}

func (h *CustomerHandler) GetCustomer(c *gin.Context) {
	customer, ok := h.loadCustomer(c)
	if !ok {
		return
	}
	ctx := c.Request.Context()

	consultations, err := h.repo.ListConsultations(ctx, customer.ID)
	if err != nil {
		respondError(c, err, "consultation")
		return
	}
	memberships, err := h.repo.ListMemberships(ctx, customer.ID)
	if err != nil {
		respondError(c, err, "membership")
		return
	}

	resp := CustomerDetailResponse{
		CustomerResponse: toCustomerResponse(customer),
		Consultations:    make([]ConsultationResponse, 0, len(consultations)),
		Memberships:      make([]MembershipResponse, 0, len(memberships)),
	}
	for i := range consultations {
		resp.Consultations = append(resp.Consultations, toConsultationResponse(&consultations[i]))
	}
	for i := range memberships {
		resp.Memberships = append(resp.Memberships, toMembershipResponse(&memberships[i]))
	}

	c.JSON(http.StatusOK, resp)
}

func (h *CustomerHandler) UpdateCustomer(c *gin.Context) {
	customer, ok := h.loadCustomer(c)
	if !ok {
		return
	}

	var req CustomerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}

	birthDate, err := parseOptionalDate(req.BirthDate)
	if err != nil {
		badRequest(c, "birth_date must be YYYY-MM-DD")
		return
	}

	if req.BranchID != nil && *req.BranchID != customer.BranchID {
		branchID, ok := h.resolveBranch(c, req.BranchID)
		if !ok {
			return
		}
		customer.BranchID = branchID
		customer.Branch = models.Branch{}
	}

	customer.Name = strings.TrimSpace(req.Name)
	customer.Phone = strings.TrimSpace(req.Phone)
	customer.Email = req.Email
	customer.Gender = req.Gender
	customer.BirthDate = birthDate
	customer.ManagerID = req.ManagerID
	customer.Source = req.Source
	customer.Occupation = req.Occupation
	customer.Goal = req.Goal
	customer.Notes = req.Notes
	customer.MarketingConsent = req.MarketingConsent

	if err := h.repo.UpdateCustomer(c.Request.Context(), customer); err != nil {
		respondError(c, err, "customer")
		return
	}

	h.events.PublishCustomer(services.EventCustomerUpdated, customer)

	c.JSON(http.StatusOK, toCustomerResponse(customer))
}

func (h *CustomerHandler) DeleteCustomer(c *gin.Context) {
	customer, ok := h.loadCustomer(c)
	if !ok {
		return
	}

	if err := h.repo.DeleteCustomer(c.Request.Context(), customer.ID); err != nil {
		respondError(c, err, "customer")
		return
	}

	h.events.PublishCustomer(services.EventCustomerDeleted, customer)

	c.Status(http.StatusNoContent)
}

// SearchCustomers queries the search index and falls back to the database
// when the index is missing or failing.
func (h *CustomerHandler) SearchCustomers(c *gin.Context) {
	q := strings.TrimSpace(c.Query("q"))
	if q == "" {
		badRequest(c, "q is required")
		return
	}

	branchID, err := optionalUint(c, "branch_id")
	if err != nil {
		badRequest(c, err.Error())
		return
	}
	branchID = principal(c).ScopeBranch(branchID)

	if h.search != nil {
		docs, err := h.search.SearchCustomers(c.Request.Context(), q, branchID, searchLimit)
		if err == nil {
			c.JSON(http.StatusOK, gin.H{"items": docs, "source": "index"})
			return
		}
		h.log.WithError(err).Warn("customer search index unavailable, using database")
	}

	customers, _, err := h.repo.ListCustomers(c.Request.Context(),
		models.CustomerFilter{BranchID: branchID, Query: q},
		models.Page{Page: 1, PageSize: searchLimit})
	if err != nil {
		respondError(c, err, "customer")
		return
	}

	docs := make([]utils.CustomerDocument, 0, len(customers))
	for i := range customers {
		docs = append(docs, services.CustomerDocumentOf(&customers[i]))
	}
	c.JSON(http.StatusOK, gin.H{"items": docs, "source": "database"})
}

func (h *CustomerHandler) ListConsultations(c *gin.Context) {
	customer, ok := h.loadCustomer(c)
	if !ok {
		return
	}

	consultations, err := h.repo.ListConsultations(c.Request.Context(), customer.ID)
	if err != nil {
		respondError(c, err, "consultation")
		return
	}

	items := make([]ConsultationResponse, 0, len(consultations))
	for i := range consultations {
		items = append(items, toConsultationResponse(&consultations[i]))
	}
	c.JSON(http.StatusOK, gin.H{"items": items})
}

func (h *CustomerHandler) CreateConsultation(c *gin.Context) {
	customer, ok := h.loadCustomer(c)
	if !ok {
		return
	}

	var req ConsultationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}

	consultation := h.newConsultation(c, &req)
	consultation.CustomerID = customer.ID
	consultation.BranchID = customer.BranchID

	if err := h.repo.CreateConsultation(c.Request.Context(), consultation); err != nil {
		respondError(c, err, "consultation")
		return
	}

	c.JSON(http.StatusCreated, toConsultationResponse(consultation))
}

func (h *CustomerHandler) UpdateConsultation(c *gin.Context) {
	customer, ok := h.loadCustomer(c)
	if !ok {
		return
	}
	consultationID, ok := idParam(c, "consultation_id", "consultation")
	if !ok {
		return
	}

	var req ConsultationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}

	consultation, err := h.repo.GetConsultation(c.Request.Context(), consultationID)
	if err != nil {
		respondError(c, err, "consultation")
		return
	}
	if consultation.CustomerID != customer.ID {
		notFound(c, "consultation")
		return
	}

	if req.ScheduledAt != nil {
		consultation.ScheduledAt = *req.ScheduledAt
	}
	if req.Channel != "" {
		consultation.Channel = req.Channel
	}
	if req.Result != "" {
		consultation.Result = models.ConsultationResult(req.Result)
	}
	consultation.VisitedAt = req.VisitedAt
	consultation.Interest = req.Interest
	consultation.Content = req.Content

	if err := h.repo.UpdateConsultation(c.Request.Context(), consultation); err != nil {
		respondError(c, err, "consultation")
		return
	}

	c.JSON(http.StatusOK, toConsultationResponse(consultation))
}

func (h *CustomerHandler) ListMemberships(c *gin.Context) {
	customer, ok := h.loadCustomer(c)
	if !ok {
		return
	}

	memberships, err := h.repo.ListMemberships(c.Request.Context(), customer.ID)
	if err != nil {
		respondError(c, err, "membership")
		return
	}

	items := make([]MembershipResponse, 0, len(memberships))
	for i := range memberships {
		items = append(items, toMembershipResponse(&memberships[i]))
	}
	c.JSON(http.StatusOK, gin.H{"items": items})
}

func (h *CustomerHandler) CreateMembership(c *gin.Context) {
	customer, ok := h.loadCustomer(c)
	if !ok {
		return
	}

	var req MembershipRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}

	in := services.RegisterInput{ProductID: req.ProductID, PaidAmount: req.PaidAmount, Memo: req.Memo}
	if req.PaidAmount != nil && req.PaidAmount.IsNegative() {
		badRequest(c, "paid_amount must not be negative")
		return
	}
	if start, err := parseOptionalDate(req.StartDate); err != nil {
		badRequest(c, "start_date must be YYYY-MM-DD")
		return
	} else if start != nil {
		in.StartDate = *start
	}

	membership, err := h.memberships.Register(c.Request.Context(), customer, in)
	if err != nil {
		respondError(c, err, "membership")
		return
	}

	c.JSON(http.StatusCreated, toMembershipResponse(membership))
}

func (h *CustomerHandler) CancelMembership(c *gin.Context) {
	customer, ok := h.loadCustomer(c)
	if !ok {
		return
	}
	membershipID, ok := idParam(c, "membership_id", "membership")
	if !ok {
		return
	}

	membership, err := h.repo.GetMembership(c.Request.Context(), membershipID)
	if err != nil {
		respondError(c, err, "membership")
		return
	}
	if membership.CustomerID != customer.ID {
		notFound(c, "membership")
		return
	}

	if err := h.memberships.Cancel(c.Request.Context(), membership); err != nil {
		if errors.Is(err, models.ErrConflict) {
			c.JSON(http.StatusConflict, gin.H{"error": "membership is not active"})
			return
		}
		respondError(c, err, "membership")
		return
	}

	c.JSON(http.StatusOK, toMembershipResponse(membership))
}

// MembershipCard renders the active membership's code as a QR PNG.
func (h *CustomerHandler) MembershipCard(c *gin.Context) {
	customer, ok := h.loadCustomer(c)
	if !ok {
		return
	}

	membership, err := h.repo.ActiveMembership(c.Request.Context(), customer.ID, time.Now())
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			notFound(c, "active membership")
			return
		}
		respondError(c, err, "membership")
		return
	}

	png, err := qrcode.Encode(membership.Code(), qrcode.Medium, 256)
	if err != nil {
		respondError(c, err, "membership")
		return
	}

	c.Header("X-Membership-Code", membership.Code())
	c.Data(http.StatusOK, "image/png", png)
}
