package facades

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/google/uuid"
)

// kycStatusResponse is the JSON body returned by the KYC service.
type kycStatusResponse struct {
	UserID   string `json:"user_id"`
	Verified bool   `json:"verified"`
}

// KYCHTTPFacade asks the external KYC service whether a user is verified.
// KYC capture and review live entirely in that service; the wallet only needs
// the verdict.
type KYCHTTPFacade struct {
	baseURL    string
	httpClient *http.Client
}

// NewKYCHTTPFacade creates a KYC facade for the given base URL.
func NewKYCHTTPFacade(baseURL string) *KYCHTTPFacade {
	return &KYCHTTPFacade{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: 10 * time.Second},
	}
}

// IsVerified reports whether the user passed KYC verification.
func (f *KYCHTTPFacade) IsVerified(ctx context.Context, userID uuid.UUID) (bool, error) {
	reqURL := fmt.Sprintf("%s/api/v1/kyc/%s/status", f.baseURL, userID)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return false, fmt.Errorf("create kyc request: %w", err)
	}

	resp, err := f.httpClient.Do(req)
	if err != nil {
		return false, fmt.Errorf("fetch kyc status: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return false, nil
	}
	if resp.StatusCode != http.StatusOK {
		return false, fmt.Errorf("kyc service returned status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return false, fmt.Errorf("read kyc response: %w", err)
	}

	var status kycStatusResponse
	if err := json.Unmarshal(body, &status); err != nil {
		return false, fmt.Errorf("parse kyc response: %w", err)
	}
	return status.Verified, nil
}
