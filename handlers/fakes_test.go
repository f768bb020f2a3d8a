package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"fitness-crm/middleware"
	"fitness-crm/models"
	"fitness-crm/services"
	"fitness-crm/utils"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func quietLogger() *logrus.Logger {
	log := logrus.New()
	log.SetOutput(io.Discard)
	return log
}

func uintPtr(v uint) *uint { return &v }

func admin() *services.Principal {
	perms := models.PermissionSet{}
	for _, area := range models.Areas {
		perms[area] = models.Permission{View: true, Create: true, Edit: true, Delete: true, Send: true}
	}
	return &services.Principal{UserID: 1, Username: "admin", AllBranches: true, Permissions: perms}
}

func branchStaff(branchID uint) *services.Principal {
	p := admin()
	p.UserID = 7
	p.Username = "trainer"
	p.AllBranches = false
	p.BranchID = uintPtr(branchID)
	return p
}

// newTestRouter injects p as the authenticated principal of every request.
func newTestRouter(p *services.Principal) *gin.Engine {
	r := gin.New()
	r.Use(func(c *gin.Context) {
		if p != nil {
			middleware.WithPrincipal(c, p)
		}
		c.Next()
	})
	return r
}

func doJSON(r http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	var reader io.Reader
	if body != nil {
		data, _ := json.Marshal(body)
		reader = bytes.NewReader(data)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func decode(w *httptest.ResponseRecorder, v any) error {
	return json.NewDecoder(strings.NewReader(w.Body.String())).Decode(v)
}

type fakeBranches struct {
	branches map[uint]*models.Branch
}

func (f *fakeBranches) GetBranch(_ context.Context, id uint) (*models.Branch, error) {
	b, ok := f.branches[id]
	if !ok {
		return nil, models.ErrNotFound
	}
	return b, nil
}

type fakeCustomers struct {
	models.CustomerRepository

	mu            sync.Mutex
	customers     map[uint]*models.Customer
	consultations []*models.Consultation
	active        map[uint]*models.Membership
	lastFilter    models.CustomerFilter
	nextID        uint
}

func newFakeCustomers() *fakeCustomers {
	return &fakeCustomers{customers: map[uint]*models.Customer{}, active: map[uint]*models.Membership{}}
}

func (f *fakeCustomers) CreateCustomer(_ context.Context, customer *models.Customer, first *models.Consultation) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextID++
	customer.ID = f.nextID
	f.customers[customer.ID] = customer
	if first != nil {
		first.CustomerID = customer.ID
		first.BranchID = customer.BranchID
		f.consultations = append(f.consultations, first)
	}
	return nil
}

func (f *fakeCustomers) GetCustomer(_ context.Context, id uint) (*models.Customer, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	c, ok := f.customers[id]
	if !ok {
		return nil, models.ErrNotFound
	}
	cp := *c
	return &cp, nil
}

func (f *fakeCustomers) ListCustomers(_ context.Context, filter models.CustomerFilter, _ models.Page) ([]models.Customer, int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lastFilter = filter
	var out []models.Customer
	for _, c := range f.customers {
		if filter.BranchID != nil && c.BranchID != *filter.BranchID {
			continue
		}
		if filter.Query != "" && !strings.Contains(c.Name, filter.Query) {
			continue
		}
		out = append(out, *c)
	}
	return out, int64(len(out)), nil
}

func (f *fakeCustomers) ListConsultations(context.Context, uint) ([]models.Consultation, error) {
	return nil, nil
}

func (f *fakeCustomers) ListMemberships(context.Context, uint) ([]models.Membership, error) {
	return nil, nil
}

func (f *fakeCustomers) ActiveMembership(_ context.Context, customerID uint, _ time.Time) (*models.Membership, error) {
	m, ok := f.active[customerID]
	if !ok {
		return nil, models.ErrNotFound
	}
	return m, nil
}

type fakeSearch struct {
	docs []utils.CustomerDocument
	err  error
}

func (f *fakeSearch) SearchCustomers(context.Context, string, *uint, int) ([]utils.CustomerDocument, error) {
	return f.docs, f.err
}

type fakeRegistrar struct {
	in services.RegisterInput
}

func (f *fakeRegistrar) Register(_ context.Context, customer *models.Customer, in services.RegisterInput) (*models.Membership, error) {
	f.in = in
	if in.ProductID == 99 {
		return nil, services.ErrProductUnavailable
	}
	return &models.Membership{CustomerID: customer.ID, ProductID: in.ProductID, Status: models.MembershipActive}, nil
}

func (f *fakeRegistrar) Cancel(context.Context, *models.Membership) error {
	return models.ErrConflict
}

type fakeCampaignRepo struct {
	models.CampaignRepository

	templates map[uint]*models.MessageTemplate
	campaigns map[uint]*models.Campaign
	deleted   []uint
	nextID    uint
}

func newFakeCampaignRepo() *fakeCampaignRepo {
	return &fakeCampaignRepo{templates: map[uint]*models.MessageTemplate{}, campaigns: map[uint]*models.Campaign{}}
}

func (f *fakeCampaignRepo) CreateTemplate(_ context.Context, t *models.MessageTemplate) error {
	f.nextID++
	t.ID = f.nextID
	f.templates[t.ID] = t
	return nil
}

func (f *fakeCampaignRepo) GetTemplate(_ context.Context, id uint) (*models.MessageTemplate, error) {
	t, ok := f.templates[id]
	if !ok {
		return nil, models.ErrNotFound
	}
	cp := *t
	return &cp, nil
}

func (f *fakeCampaignRepo) UpdateTemplate(_ context.Context, t *models.MessageTemplate) error {
	f.templates[t.ID] = t
	return nil
}

func (f *fakeCampaignRepo) DeleteTemplate(_ context.Context, id uint) error {
	f.deleted = append(f.deleted, id)
	delete(f.templates, id)
	return nil
}

func (f *fakeCampaignRepo) DeleteCampaign(_ context.Context, id uint) error {
	if c, ok := f.campaigns[id]; ok && c.Status == models.CampaignSending {
		return models.ErrConflict
	}
	f.deleted = append(f.deleted, id)
	delete(f.campaigns, id)
	return nil
}

func (f *fakeCampaignRepo) CreateCampaign(_ context.Context, c *models.Campaign) error {
	f.nextID++
	c.ID = f.nextID
	f.campaigns[c.ID] = c
	return nil
}

func (f *fakeCampaignRepo) GetCampaign(_ context.Context, id uint) (*models.Campaign, error) {
	c, ok := f.campaigns[id]
	if !ok {
		return nil, models.ErrNotFound
	}
	cp := *c
	return &cp, nil
}

func (f *fakeCampaignRepo) UpdateCampaign(_ context.Context, c *models.Campaign) error {
	f.campaigns[c.ID] = c
	return nil
}

type fakeDispatcher struct {
	started  []uint
	channels map[string]bool
	err      error
}

func (f *fakeDispatcher) Start(_ context.Context, id uint) (*models.Campaign, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.started = append(f.started, id)
	c := &models.Campaign{Status: models.CampaignSending}
	c.ID = id
	return c, nil
}

func (f *fakeDispatcher) Cancel(context.Context, uint) error { return f.err }

func (f *fakeDispatcher) HasChannel(channel string) bool { return f.channels[channel] }

type fakePreviewer struct{}

func (fakePreviewer) Preview(_ context.Context, tpl *models.MessageTemplate, customer *models.Customer) (string, string) {
	name := "Jane Doe"
	if customer != nil {
		name = customer.Name
	}
	return tpl.Subject, strings.ReplaceAll(tpl.Body, "{{name}}", name)
}

type fakeStatistics struct {
	branchID *uint
	from, to time.Time
	err      error
}

func (f *fakeStatistics) Dashboard(_ context.Context, branchID *uint) (*services.Dashboard, error) {
	f.branchID = branchID
	return &services.Dashboard{BranchID: branchID, NewCustomers: 3}, f.err
}

func (f *fakeStatistics) CustomerSeries(_ context.Context, branchID *uint, from, to time.Time) ([]models.MonthlyCount, error) {
	f.branchID, f.from, f.to = branchID, from, to
	if f.err != nil {
		return nil, f.err
	}
	return nil, nil
}

func (f *fakeStatistics) RevenueSeries(_ context.Context, branchID *uint, from, to time.Time) ([]models.MonthlyRevenue, error) {
	f.branchID, f.from, f.to = branchID, from, to
	return nil, f.err
}

type fakeAuth struct {
	lastIP  string
	revoked []uint
	reset   map[uint]string
}

func (f *fakeAuth) Login(_ context.Context, username, password, ip string) (string, *services.Principal, error) {
	f.lastIP = ip
	if username != "admin" || password != "correct-horse" {
		return "", nil, services.ErrInvalidCredentials
	}
	return "signed-token", admin(), nil
}

func (f *fakeAuth) Logout(context.Context, string) error { return nil }

func (f *fakeAuth) ChangePassword(_ context.Context, _ uint, current, _ string) error {
	if current != "correct-horse" {
		return services.ErrInvalidCredentials
	}
	return nil
}

func (f *fakeAuth) ResetPassword(_ context.Context, userID uint, next string) error {
	if len(next) < 8 {
		return services.ErrWeakPassword
	}
	if f.reset == nil {
		f.reset = map[uint]string{}
	}
	f.reset[userID] = next
	return nil
}

func (f *fakeAuth) RevokeUser(_ context.Context, userID uint) error {
	f.revoked = append(f.revoked, userID)
	return nil
}

var errBoom = errors.New("boom")

func (f *fakeAuth) Authenticate(_ context.Context, token string) (*services.Principal, error) {
	switch token {
	case "signed-token":
		return admin(), nil
	case "viewer-token":
		return &services.Principal{UserID: 9, Username: "viewer", AllBranches: true}, nil
	default:
		return nil, services.ErrSessionExpired
	}
}

type fakePinger struct {
	err error
}

func (f fakePinger) Ping(context.Context) error { return f.err }

type fakeRepo struct {
	models.Repository
	fakePinger
}

func (f *fakeRepo) Ping(ctx context.Context) error { return f.fakePinger.Ping(ctx) }
