package services

import (
	"context"
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"fitness-crm/models"
)

const AdminRole = "admin"

// RolePreset describes a role created on first start.
type RolePreset struct {
	Name        string               `yaml:"name"`
	Description string               `yaml:"description"`
	AllBranches bool                 `yaml:"all_branches"`
	Permissions models.PermissionSet `yaml:"permissions"`
}

type rolePresetFile struct {
	Roles []RolePreset `yaml:"roles"`
}

func full() models.Permission {
	return models.Permission{View: true, Create: true, Edit: true, Delete: true, Send: true}
}

func DefaultRolePresets() []RolePreset {
	admin := models.PermissionSet{}
	for _, area := range models.Areas {
		admin[area] = full()
	}

	return []RolePreset{
		{
			Name:        AdminRole,
			Description: "Full access to every branch",
			AllBranches: true,
			Permissions: admin,
		},
		{
			Name:        "manager",
			Description: "Branch manager",
			Permissions: models.PermissionSet{
				models.AreaCustomers:  full(),
				models.AreaProducts:   {View: true, Create: true, Edit: true},
				models.AreaCampaigns:  full(),
				models.AreaStatistics: {View: true},
			},
		},
		{
			Name:        "trainer",
			Description: "Consultations and customer care",
			Permissions: models.PermissionSet{
				models.AreaCustomers: {View: true, Create: true, Edit: true},
				models.AreaProducts:  {View: true},
			},
		},
	}
}

// LoadRolePresets reads presets from a YAML file. An empty path yields the
// built-in presets.
func LoadRolePresets(path string) ([]RolePreset, error) {
	if path == "" {
		return DefaultRolePresets(), nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read role presets: %w", err)
	}

	var file rolePresetFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parse role presets: %w", err)
	}

	if len(file.Roles) == 0 {
		return nil, errors.New("role presets file defines no roles")
	}

	hasAdmin := false
	for _, preset := range file.Roles {
		if preset.Name == "" {
			return nil, errors.New("role preset without a name")
		}
		for area := range preset.Permissions {
			if !knownArea(area) {
				return nil, fmt.Errorf("role %s: unknown area %q", preset.Name, area)
			}
		}
		if preset.Name == AdminRole {
			hasAdmin = true
		}
	}
	if !hasAdmin {
		return nil, fmt.Errorf("role presets must define the %s role", AdminRole)
	}

	return file.Roles, nil
}

func knownArea(area string) bool {
	for _, a := range models.Areas {
		if a == area {
			return true
		}
	}
	return false
}

// SeedRoles creates the presets that do not exist yet. Existing roles are
// left as they are so edits made through the API survive restarts.
func SeedRoles(ctx context.Context, repo models.AccountRepository, presets []RolePreset) error {
	for _, preset := range presets {
		_, err := repo.GetRoleByName(ctx, preset.Name)
		if err == nil {
			continue
		}
		if !errors.Is(err, models.ErrNotFound) {
			return fmt.Errorf("load role %s: %w", preset.Name, err)
		}

		role := &models.Role{
			Name:        preset.Name,
			Description: preset.Description,
			AllBranches: preset.AllBranches,
			Permissions: preset.Permissions,
		}
		if err := repo.CreateRole(ctx, role); err != nil && !errors.Is(err, models.ErrDuplicate) {
			return fmt.Errorf("create role %s: %w", preset.Name, err)
		}
	}
	return nil
}
