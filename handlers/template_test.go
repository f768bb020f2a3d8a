package handlers

import (
	"context"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fitness-crm/models"
)

func TestCreateTemplate(t *testing.T) {
	f := newCampaignFixture()
	r := f.router(admin())

	w := doJSON(r, http.MethodPost, "/templates", map[string]any{
		"name":    "renewal",
		"channel": "email",
		"body":    "Hi {{name}}",
	})
	assert.Equal(t, http.StatusBadRequest, w.Code, "email needs a subject")

	w = doJSON(r, http.MethodPost, "/templates", map[string]any{
		"name":    "renewal",
		"channel": "fax",
		"body":    "Hi {{name}}",
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = doJSON(r, http.MethodPost, "/templates", map[string]any{
		"name":    "renewal",
		"channel": "email",
		"subject": "Your {{product}} ends soon",
		"body":    "Hi {{name}}, it ends on {{end_date}}. {{name}}, see you at {{ branch }}! {{coupon}}",
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	var resp TemplateResponse
	require.NoError(t, decode(w, &resp))
	assert.Equal(t, []string{"product", "name", "end_date", "branch"}, resp.Placeholders)
	assert.Nil(t, resp.BranchID)
}

func TestCreateTemplateBranchStaffGetOwnBranch(t *testing.T) {
	f := newCampaignFixture()

	w := doJSON(f.router(branchStaff(2)), http.MethodPost, "/templates", map[string]any{
		"name": "welcome", "channel": "sms", "body": "Welcome {{name}}",
	})
	require.Equal(t, http.StatusCreated, w.Code)

	var resp TemplateResponse
	require.NoError(t, decode(w, &resp))
	require.NotNil(t, resp.BranchID)
	assert.Equal(t, uint(2), *resp.BranchID)
}

func TestPreviewTemplate(t *testing.T) {
	f := newCampaignFixture()
	f.template(models.ChannelSMS, nil)
	_ = f.customers.CreateCustomer(context.Background(), &models.Customer{Name: "Min Park", BranchID: 1}, nil)

	var resp struct {
		Subject      string   `json:"subject"`
		Body         string   `json:"body"`
		Placeholders []string `json:"placeholders"`
	}

	w := doJSON(f.router(admin()), http.MethodPost, "/templates/1/preview", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	require.NoError(t, decode(w, &resp))
	assert.Equal(t, "Hi Jane Doe", resp.Body)
	assert.Equal(t, []string{"name"}, resp.Placeholders)

	w = doJSON(f.router(admin()), http.MethodPost, "/templates/1/preview", map[string]any{"customer_id": 1})
	require.Equal(t, http.StatusOK, w.Code)
	require.NoError(t, decode(w, &resp))
	assert.Equal(t, "Hi Min Park", resp.Body)

	w = doJSON(f.router(branchStaff(2)), http.MethodPost, "/templates/1/preview", map[string]any{"customer_id": 1})
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = doJSON(f.router(admin()), http.MethodPost, "/templates/1/preview", map[string]any{"customer_id": 8})
	assert.Equal(t, http.StatusNotFound, w.Code)
}
