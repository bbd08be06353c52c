package commands

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"

	"veranda/internal/api"
	"veranda/internal/config"
	"veranda/internal/models"
)

// Promote grants the administrator role to userID through the admin API
// of a running server. The basic auth password is read from ADMIN_PASSWORD.
func Promote(userID string, cfg *config.Config) error {
	reqBody, err := json.Marshal(api.RoleRequest{Role: models.RoleAdministrator})
	if err != nil {
		return fmt.Errorf("failed to marshal request: %w", err)
	}

	url := fmt.Sprintf("http://%s/admin/users/%s/role", cfg.AdminAddr, userID)
	req, err := http.NewRequest(http.MethodPut, url, bytes.NewReader(reqBody))
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if password := os.Getenv("ADMIN_PASSWORD"); password != "" {
		req.SetBasicAuth(cfg.AdminUser, password)
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to call admin API: %w. Is the server running?", err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("failed to promote user (Status: %d): %s", resp.StatusCode, string(body))
	}

	var result models.APIResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}

	fmt.Println(result.Message)
	return nil
}
