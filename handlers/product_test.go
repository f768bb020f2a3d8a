package handlers

import (
	"context"
	"net/http"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fitness-crm/models"
	"fitness-crm/services"
)

type fakeProducts struct {
	products   map[uint]*models.Product
	lastFilter models.ProductFilter
	deleted    []uint
}

func newFakeProducts() *fakeProducts {
	return &fakeProducts{products: map[uint]*models.Product{}}
}

func (f *fakeProducts) CreateProduct(_ context.Context, p *models.Product) error {
	p.ID = uint(len(f.products) + 1)
	f.products[p.ID] = p
	return nil
}

func (f *fakeProducts) GetProduct(_ context.Context, id uint) (*models.Product, error) {
	p, ok := f.products[id]
	if !ok {
		return nil, models.ErrNotFound
	}
	cp := *p
	return &cp, nil
}

func (f *fakeProducts) ListProducts(_ context.Context, filter models.ProductFilter) ([]models.Product, error) {
	f.lastFilter = filter
	var out []models.Product
	for _, p := range f.products {
		out = append(out, *p)
	}
	return out, nil
}

func (f *fakeProducts) UpdateProduct(_ context.Context, p *models.Product) error {
	f.products[p.ID] = p
	return nil
}

func (f *fakeProducts) DeleteProduct(_ context.Context, id uint) error {
	f.deleted = append(f.deleted, id)
	delete(f.products, id)
	return nil
}

func productRouter(repo *fakeProducts, p *services.Principal) *gin.Engine {
	h := NewProductHandler(repo, nil)
	r := newTestRouter(p)
	r.GET("/products", h.ListProducts)
	r.POST("/products", h.CreateProduct)
	r.GET("/products/:id", h.GetProduct)
	r.PUT("/products/:id", h.UpdateProduct)
	r.DELETE("/products/:id", h.DeleteProduct)
	return r
}

func productBody(price string) map[string]any {
	return map[string]any{
		"name":          "12-month membership",
		"category":      "membership",
		"price":         price,
		"duration_days": 365,
	}
}

func TestCreateProduct(t *testing.T) {
	repo := newFakeProducts()
	r := productRouter(repo, admin())

	w := doJSON(r, http.MethodPost, "/products", productBody("-1"))
	assert.Equal(t, http.StatusBadRequest, w.Code)

	body := productBody("1200.456")
	body["category"] = "sauna"
	w = doJSON(r, http.MethodPost, "/products", body)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = doJSON(r, http.MethodPost, "/products", productBody("1200.456"))
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	var resp ProductResponse
	require.NoError(t, decode(w, &resp))
	assert.True(t, resp.Price.Equal(decimal.RequireFromString("1200.46")))
	assert.True(t, resp.Active)
	assert.Nil(t, resp.BranchID)
}

func TestProductBranchRules(t *testing.T) {
	repo := newFakeProducts()
	repo.products[1] = &models.Product{Name: "shared", Category: "pt", DurationDays: 30, Active: true}
	repo.products[1].ID = 1
	repo.products[2] = &models.Product{Name: "other branch", Category: "pt", DurationDays: 30, BranchID: uintPtr(3)}
	repo.products[2].ID = 2

	r := productRouter(repo, branchStaff(2))

	w := doJSON(r, http.MethodPost, "/products", productBody("50"))
	require.Equal(t, http.StatusCreated, w.Code)
	var created ProductResponse
	require.NoError(t, decode(w, &created))
	require.NotNil(t, created.BranchID)
	assert.Equal(t, uint(2), *created.BranchID)

	body := productBody("50")
	body["branch_id"] = 3
	w = doJSON(r, http.MethodPost, "/products", body)
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = doJSON(r, http.MethodGet, "/products/1", nil)
	assert.Equal(t, http.StatusOK, w.Code, "shared products are visible")

	w = doJSON(r, http.MethodPut, "/products/1", productBody("60"))
	assert.Equal(t, http.StatusForbidden, w.Code, "shared products are read-only")

	w = doJSON(r, http.MethodGet, "/products/2", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = doJSON(r, http.MethodDelete, "/products/2", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Empty(t, repo.deleted)

	w = doJSON(r, http.MethodGet, "/products?branch_id=3&category=pt", nil)
	require.Equal(t, http.StatusOK, w.Code)
	require.NotNil(t, repo.lastFilter.BranchID)
	assert.Equal(t, uint(2), *repo.lastFilter.BranchID)
	assert.Equal(t, "pt", repo.lastFilter.Category)
}

func TestDeleteProduct(t *testing.T) {
	repo := newFakeProducts()
	repo.products[5] = &models.Product{Name: "locker", Category: "locker", DurationDays: 30}
	repo.products[5].ID = 5

	r := productRouter(repo, admin())

	w := doJSON(r, http.MethodDelete, "/products/5", nil)
	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, []uint{5}, repo.deleted)

	w = doJSON(r, http.MethodDelete, "/products/abc", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}
