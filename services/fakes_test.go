package services

import (
	"context"
	"encoding/json"
	"io"
	"path"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"fitness-crm/models"
	"fitness-crm/utils"
)

func quietLogger() *logrus.Logger {
	log := logrus.New()
	log.SetOutput(io.Discard)
	return log
}

type memRedis struct {
	mu   sync.Mutex
	vals map[string]string
	sets map[string]map[string]bool
	ttls map[string]time.Duration
}

var _ utils.RedisClient = (*memRedis)(nil)

func newMemRedis() *memRedis {
	return &memRedis{
		vals: map[string]string{},
		sets: map[string]map[string]bool{},
		ttls: map[string]time.Duration{},
	}
}

func (m *memRedis) GetFromCache(_ context.Context, key string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.vals[key]
	if !ok {
		return "", redis.Nil
	}
	return v, nil
}

func (m *memRedis) SetToCache(_ context.Context, key, value string, exp time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.vals[key] = value
	m.ttls[key] = exp
	return nil
}

func (m *memRedis) Delete(_ context.Context, keys ...string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, k := range keys {
		delete(m.vals, k)
		delete(m.sets, k)
		delete(m.ttls, k)
	}
	return nil
}

func (m *memRedis) DeleteByPattern(_ context.Context, pattern string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for k := range m.vals {
		if ok, _ := path.Match(pattern, k); ok {
			delete(m.vals, k)
		}
	}
	return nil
}

func (m *memRedis) Expire(_ context.Context, key string, exp time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ttls[key] = exp
	return nil
}

func (m *memRedis) AddToSet(_ context.Context, key, member string, exp time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.sets[key] == nil {
		m.sets[key] = map[string]bool{}
	}
	m.sets[key][member] = true
	m.ttls[key] = exp
	return nil
}

func (m *memRedis) SetMembers(_ context.Context, key string) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []string
	for member := range m.sets[key] {
		out = append(out, member)
	}
	return out, nil
}

func (m *memRedis) RemoveFromSet(_ context.Context, key, member string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.sets[key], member)
	return nil
}

func (m *memRedis) Ping(context.Context) error { return nil }
func (m *memRedis) Close() error                { return nil }

func (m *memRedis) has(key string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.vals[key]
	return ok
}

type fakeAccounts struct {
	models.AccountRepository

	roles   map[string]*models.Role
	users   map[uint]*models.User
	touched map[uint]time.Time
	nextID  uint
}

func newFakeAccounts() *fakeAccounts {
	return &fakeAccounts{
		roles:   map[string]*models.Role{},
		users:   map[uint]*models.User{},
		touched: map[uint]time.Time{},
	}
}

func (f *fakeAccounts) id() uint {
	f.nextID++
	return f.nextID
}

func (f *fakeAccounts) GetRoleByName(_ context.Context, name string) (*models.Role, error) {
	r, ok := f.roles[name]
	if !ok {
		return nil, models.ErrNotFound
	}
	return r, nil
}

func (f *fakeAccounts) CreateRole(_ context.Context, role *models.Role) error {
	if _, ok := f.roles[role.Name]; ok {
		return models.ErrDuplicate
	}
	role.ID = f.id()
	f.roles[role.Name] = role
	return nil
}

func (f *fakeAccounts) CreateUser(_ context.Context, user *models.User) error {
	for _, u := range f.users {
		if u.Username == user.Username {
			return models.ErrDuplicate
		}
	}
	user.ID = f.id()
	for _, r := range f.roles {
		if r.ID == user.RoleID {
			user.Role = *r
		}
	}
	f.users[user.ID] = user
	return nil
}

func (f *fakeAccounts) GetUser(_ context.Context, id uint) (*models.User, error) {
	u, ok := f.users[id]
	if !ok {
		return nil, models.ErrNotFound
	}
	cp := *u
	return &cp, nil
}

func (f *fakeAccounts) GetUserByUsername(_ context.Context, username string) (*models.User, error) {
	for _, u := range f.users {
		if u.Username == username {
			cp := *u
			return &cp, nil
		}
	}
	return nil, models.ErrNotFound
}

func (f *fakeAccounts) UpdateUser(_ context.Context, user *models.User) error {
	if _, ok := f.users[user.ID]; !ok {
		return models.ErrNotFound
	}
	cp := *user
	f.users[user.ID] = &cp
	return nil
}

func (f *fakeAccounts) TouchLogin(_ context.Context, id uint, at time.Time) error {
	f.touched[id] = at
	return nil
}

type fakeProducer struct {
	mu       sync.Mutex
	messages []Event
	keys     []string
	err      error
}

func (p *fakeProducer) SendMessage(_ context.Context, _ string, key, value []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	var e Event
	if err := json.Unmarshal(value, &e); err != nil {
		return err
	}
	p.messages = append(p.messages, e)
	p.keys = append(p.keys, string(key))
	return nil
}

func (p *fakeProducer) Close() error { return nil }

func (p *fakeProducer) events() []Event {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]Event(nil), p.messages...)
}

type fakeCampaigns struct {
	mu          sync.Mutex
	campaigns   map[uint]*models.Campaign
	audience    []models.Customer
	memberships map[uint]*models.Membership
	messages    []models.CampaignMessage
	audienceErr error
}

func newFakeCampaigns() *fakeCampaigns {
	return &fakeCampaigns{
		campaigns:   map[uint]*models.Campaign{},
		memberships: map[uint]*models.Membership{},
	}
}

func (f *fakeCampaigns) GetCampaign(_ context.Context, id uint) (*models.Campaign, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	c, ok := f.campaigns[id]
	if !ok {
		return nil, models.ErrNotFound
	}
	cp := *c
	return &cp, nil
}

func (f *fakeCampaigns) DueCampaigns(_ context.Context, now time.Time) ([]models.Campaign, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var due []models.Campaign
	for _, c := range f.campaigns {
		if c.Status == models.CampaignScheduled && c.ScheduledAt != nil && !c.ScheduledAt.After(now) {
			due = append(due, *c)
		}
	}
	return due, nil
}

func (f *fakeCampaigns) TransitionCampaign(_ context.Context, id uint, from []models.CampaignStatus, to models.CampaignStatus) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	c, ok := f.campaigns[id]
	if !ok {
		return models.ErrNotFound
	}
	for _, s := range from {
		if c.Status == s {
			c.Status = to
			return nil
		}
	}
	return models.ErrConflict
}

func (f *fakeCampaigns) AudienceFor(context.Context, *models.Campaign, time.Time) ([]models.Customer, error) {
	return f.audience, f.audienceErr
}

func (f *fakeCampaigns) SaveCampaignMessage(ctx context.Context, msg *models.CampaignMessage) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.messages = append(f.messages, *msg)
	return nil
}

func (f *fakeCampaigns) FinishCampaign(ctx context.Context, id uint, status models.CampaignStatus, sent, failed int, at time.Time) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	c := f.campaigns[id]
	if c.Status != models.CampaignSending {
		return models.ErrConflict
	}
	c.Status = status
	c.SentCount = sent
	c.FailedCount = failed
	c.FinishedAt = &at
	return nil
}

func (f *fakeCampaigns) ActiveMembership(_ context.Context, customerID uint, _ time.Time) (*models.Membership, error) {
	m, ok := f.memberships[customerID]
	if !ok {
		return nil, models.ErrNotFound
	}
	return m, nil
}

func (f *fakeCampaigns) status(id uint) models.CampaignStatus {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.campaigns[id].Status
}

type sentMessage struct {
	to, subject, body string
}

// cancelingSender delivers the first message and then cancels the dispatch.
type cancelingSender struct {
	cancel context.CancelFunc
	sent   []string
}

func (s *cancelingSender) Send(ctx context.Context, to, _, _ string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.sent = append(s.sent, to)
	s.cancel()
	return nil
}

type fakeSender struct {
	mu   sync.Mutex
	sent []sentMessage
	fail map[string]error
}

func (s *fakeSender) Send(_ context.Context, to, subject, body string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fail[to]; err != nil {
		return err
	}
	s.sent = append(s.sent, sentMessage{to: to, subject: subject, body: body})
	return nil
}

type fakeMemberships struct {
	customers  map[uint]*models.Customer
	products   map[uint]*models.Product
	registered []*models.Membership
	canceled   []uint
	expired    []uint
}

func (f *fakeMemberships) GetCustomer(_ context.Context, id uint) (*models.Customer, error) {
	c, ok := f.customers[id]
	if !ok {
		return nil, models.ErrNotFound
	}
	return c, nil
}

func (f *fakeMemberships) GetProduct(_ context.Context, id uint) (*models.Product, error) {
	p, ok := f.products[id]
	if !ok {
		return nil, models.ErrNotFound
	}
	return p, nil
}

func (f *fakeMemberships) RegisterMembership(_ context.Context, m *models.Membership) error {
	m.ID = uint(len(f.registered) + 1)
	f.registered = append(f.registered, m)
	return nil
}

func (f *fakeMemberships) CancelMembership(_ context.Context, id uint) error {
	f.canceled = append(f.canceled, id)
	return nil
}

func (f *fakeMemberships) ExpireLapsedMemberships(context.Context, time.Time) ([]uint, error) {
	return f.expired, nil
}

type fakeStats struct {
	calls int
}

func (f *fakeStats) CustomerStatusCounts(context.Context, *uint) ([]models.StatusCount, error) {
	f.calls++
	return []models.StatusCount{{Status: "consultation", Count: 3}, {Status: "registered", Count: 5}}, nil
}

func (f *fakeStats) CountNewCustomers(context.Context, *uint, time.Time) (int64, error) {
	return 4, nil
}

func (f *fakeStats) ConsultationResults(context.Context, *uint, time.Time) ([]models.StatusCount, error) {
	return []models.StatusCount{
		{Status: string(models.ResultPending), Count: 2},
		{Status: string(models.ResultRegistered), Count: 1},
		{Status: string(models.ResultDeclined), Count: 1},
	}, nil
}

func (f *fakeStats) CountActiveMemberships(context.Context, *uint, time.Time) (int64, error) {
	return 5, nil
}

func (f *fakeStats) CountExpiringMemberships(context.Context, *uint, time.Time, int) (int64, error) {
	return 2, nil
}

func (f *fakeStats) RevenueSince(context.Context, *uint, time.Time) (decimal.Decimal, error) {
	return decimal.RequireFromString("1250.50"), nil
}

func (f *fakeStats) MonthlySignups(_ context.Context, _ *uint, from, _ time.Time) ([]models.MonthlyCount, error) {
	return []models.MonthlyCount{{Month: from.Format("2006-01"), Count: 1}}, nil
}

func (f *fakeStats) MonthlyRevenue(context.Context, *uint, time.Time, time.Time) ([]models.MonthlyRevenue, error) {
	return nil, nil
}

func (f *fakeStats) CampaignStatusCounts(context.Context, *uint) ([]models.StatusCount, error) {
	return nil, nil
}
