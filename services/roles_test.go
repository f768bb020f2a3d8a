package services

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fitness-crm/models"
)

func writePresets(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "roles.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoadRolePresets(t *testing.T) {
	path := writePresets(t, `
roles:
  - name: admin
    all_branches: true
    permissions:
      settings: {view: true, edit: true}
  - name: front-desk
    description: Reception
    permissions:
      customers: {view: true, create: true}
`)

	presets, err := LoadRolePresets(path)
	require.NoError(t, err)
	require.Len(t, presets, 2)
	assert.True(t, presets[0].AllBranches)
	assert.True(t, presets[1].Permissions.Allows(models.AreaCustomers, models.ActionCreate))
	assert.False(t, presets[1].Permissions.Allows(models.AreaCustomers, models.ActionDelete))
}

func TestLoadRolePresetsValidation(t *testing.T) {
	cases := map[string]string{
		"no roles":     "roles: []",
		"unknown area": "roles:\n  - name: admin\n    permissions:\n      kitchen: {view: true}\n",
		"no admin":     "roles:\n  - name: trainer\n",
		"bad yaml":     "roles: [",
	}
	for name, content := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := LoadRolePresets(writePresets(t, content))
			assert.Error(t, err)
		})
	}
}

func TestLoadRolePresetsDefaults(t *testing.T) {
	presets, err := LoadRolePresets("")
	require.NoError(t, err)
	assert.Equal(t, AdminRole, presets[0].Name)
	for _, area := range models.Areas {
		assert.True(t, presets[0].Permissions.Allows(area, models.ActionDelete))
	}
}

func TestSeedRolesKeepsExisting(t *testing.T) {
	accounts := newFakeAccounts()
	existing := &models.Role{Name: "manager", Description: "edited"}
	require.NoError(t, accounts.CreateRole(context.Background(), existing))

	require.NoError(t, SeedRoles(context.Background(), accounts, DefaultRolePresets()))
	assert.Len(t, accounts.roles, 3)
	assert.Equal(t, "edited", accounts.roles["manager"].Description)
}
