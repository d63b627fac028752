package auth

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/ibrahimkhan7059/Edubazaar/internal/config"
	"github.com/ibrahimkhan7059/Edubazaar/internal/domain"
)

// ServiceAccount is the Firebase signing identity, parsed from the standard
// Google service-account JSON. The private key never leaves the Signer.
type ServiceAccount struct {
	Type        string `json:"type"`
	ProjectID   string `json:"project_id"`
	PrivateKey  string `json:"private_key"`
	ClientEmail string `json:"client_email"`
	TokenURI    string `json:"token_uri,omitempty"`
}

// LoadServiceAccount reads the service account from the configured inline
// JSON or file path, preferring the inline value.
func LoadServiceAccount(cfg config.FirebaseConfig) (*ServiceAccount, error) {
	raw := cfg.ServiceAccountJSON
	if raw == "" && cfg.ServiceAccountPath != "" {
		data, err := os.ReadFile(cfg.ServiceAccountPath)
		if err != nil {
			return nil, fmt.Errorf("failed to read service account file: %w", err)
		}
		raw = string(data)
	}
	if raw == "" {
		return nil, domain.NewConfigError("service_account", "not configured")
	}

	return ParseServiceAccount([]byte(raw))
}

// ParseServiceAccount parses and validates service-account JSON.
func ParseServiceAccount(raw []byte) (*ServiceAccount, error) {
	var sa ServiceAccount
	if err := json.Unmarshal(raw, &sa); err != nil {
		return nil, domain.NewConfigError("service_account", "malformed JSON: "+err.Error())
	}

	if sa.ClientEmail == "" {
		return nil, domain.NewConfigError("client_email", "missing")
	}
	if sa.PrivateKey == "" {
		return nil, domain.NewConfigError("private_key", "missing")
	}
	if sa.ProjectID == "" {
		return nil, domain.NewConfigError("project_id", "missing")
	}

	// Keys delivered through env vars often carry escaped newlines.
	sa.PrivateKey = strings.ReplaceAll(sa.PrivateKey, `\n`, "\n")

	return &sa, nil
}
