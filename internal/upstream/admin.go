package upstream

import (
	"context"
	"net/http"
	"net/url"
)

// Admin surface: user/manager/acquirer management and gateway fee
// settings. All endpoints require an admin-permission token; the
// gateway enforces that, the dashboard just relays.

func (c *Client) ListAdminUsers(ctx context.Context, token string) ([]AdminUser, error) {
	var out struct {
		Users []AdminUser `json:"users"`
	}
	if err := c.do(ctx, "admin_list_users", http.MethodGet, "/admin/users", token, nil, &out); err != nil {
		return nil, err
	}
	return out.Users, nil
}

func (c *Client) CreateAdminUser(ctx context.Context, token string, user AdminUser) (*AdminUser, error) {
	var out AdminUser
	if err := c.do(ctx, "admin_create_user", http.MethodPost, "/admin/users", token, user, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) UpdateAdminUser(ctx context.Context, token, id string, user AdminUser) (*AdminUser, error) {
	var out AdminUser
	path := "/admin/users/" + url.PathEscape(id)
	if err := c.do(ctx, "admin_update_user", http.MethodPut, path, token, user, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) DeleteAdminUser(ctx context.Context, token, id string) error {
	path := "/admin/users/" + url.PathEscape(id)
	return c.do(ctx, "admin_delete_user", http.MethodDelete, path, token, nil, nil)
}

func (c *Client) ListManagers(ctx context.Context, token string) ([]ManagerAccount, error) {
	var out struct {
		Managers []ManagerAccount `json:"managers"`
	}
	if err := c.do(ctx, "admin_list_managers", http.MethodGet, "/admin/managers", token, nil, &out); err != nil {
		return nil, err
	}
	return out.Managers, nil
}

func (c *Client) CreateManager(ctx context.Context, token string, manager ManagerAccount) (*ManagerAccount, error) {
	var out ManagerAccount
	if err := c.do(ctx, "admin_create_manager", http.MethodPost, "/admin/managers", token, manager, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) UpdateManager(ctx context.Context, token, id string, manager ManagerAccount) (*ManagerAccount, error) {
	var out ManagerAccount
	path := "/admin/managers/" + url.PathEscape(id)
	if err := c.do(ctx, "admin_update_manager", http.MethodPut, path, token, manager, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) DeleteManager(ctx context.Context, token, id string) error {
	path := "/admin/managers/" + url.PathEscape(id)
	return c.do(ctx, "admin_delete_manager", http.MethodDelete, path, token, nil, nil)
}

func (c *Client) ListAcquirers(ctx context.Context, token string) ([]Acquirer, error) {
	var out struct {
		Acquirers []Acquirer `json:"acquirers"`
	}
	if err := c.do(ctx, "admin_list_acquirers", http.MethodGet, "/admin/acquirers", token, nil, &out); err != nil {
		return nil, err
	}
	return out.Acquirers, nil
}

func (c *Client) CreateAcquirer(ctx context.Context, token string, acquirer Acquirer) (*Acquirer, error) {
	var out Acquirer
	if err := c.do(ctx, "admin_create_acquirer", http.MethodPost, "/admin/acquirers", token, acquirer, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) UpdateAcquirer(ctx context.Context, token, id string, acquirer Acquirer) (*Acquirer, error) {
	var out Acquirer
	path := "/admin/acquirers/" + url.PathEscape(id)
	if err := c.do(ctx, "admin_update_acquirer", http.MethodPut, path, token, acquirer, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) DeleteAcquirer(ctx context.Context, token, id string) error {
	path := "/admin/acquirers/" + url.PathEscape(id)
	return c.do(ctx, "admin_delete_acquirer", http.MethodDelete, path, token, nil, nil)
}

func (c *Client) GatewaySettings(ctx context.Context, token string) (*GatewaySettings, error) {
	var out GatewaySettings
	if err := c.do(ctx, "admin_get_settings", http.MethodGet, "/admin/settings", token, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) UpdateGatewaySettings(ctx context.Context, token string, settings GatewaySettings) (*GatewaySettings, error) {
	var out GatewaySettings
	if err := c.do(ctx, "admin_update_settings", http.MethodPut, "/admin/settings", token, settings, &out); err != nil {
		return nil, err
	}
	return &out, nil
}
