package arcgis

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/couchcryptid/crash-injury-etl/internal/domain"
)

type tokenResponse struct {
	AccessToken string `json:"access_token"`
	ExpiresIn   int    `json:"expires_in"`
	Error       *struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

type itemResponse struct {
	URL   string     `json:"url"`
	Error *esriError `json:"error"`
}

// RequestToken exchanges client credentials for a short-lived bearer token at
// the portal's OAuth2 endpoint. All failures are AuthErrors: the run aborts
// rather than publishing without the fatality source.
func (c *Client) RequestToken(ctx context.Context, portalURL, clientID, clientSecret string) (string, error) {
	resp, err := c.http.R().
		SetContext(ctx).
		SetFormData(map[string]string{
			"client_id":     clientID,
			"client_secret": clientSecret,
			"grant_type":    "client_credentials",
			"f":             "json",
		}).
		Post(portalURL + "/sharing/rest/oauth2/token")
	if err != nil {
		return "", &domain.AuthError{Err: err}
	}
	if resp.IsError() {
		return "", &domain.AuthError{Err: fmt.Errorf("token endpoint status %d: %s", resp.StatusCode(), resp.String())}
	}

	var out tokenResponse
	if err := json.Unmarshal(resp.Body(), &out); err != nil {
		return "", &domain.AuthError{Err: fmt.Errorf("decode token response: %w", err)}
	}
	if out.Error != nil {
		return "", &domain.AuthError{Err: fmt.Errorf("oauth error %d: %s", out.Error.Code, out.Error.Message)}
	}
	if out.AccessToken == "" {
		return "", &domain.AuthError{Err: fmt.Errorf("token endpoint returned no access_token")}
	}

	return out.AccessToken, nil
}

// LookupItemURL resolves a portal item id to its feature-service URL.
func (c *Client) LookupItemURL(ctx context.Context, portalURL, itemID, token string) (string, error) {
	resp, err := c.http.R().
		SetContext(ctx).
		SetQueryParams(map[string]string{"f": "json", "token": token}).
		Get(portalURL + "/sharing/rest/content/items/" + itemID)
	if err != nil {
		return "", fmt.Errorf("lookup item %s: %w", itemID, err)
	}
	if resp.IsError() {
		return "", fmt.Errorf("lookup item %s: status %d: %s", itemID, resp.StatusCode(), resp.String())
	}

	var out itemResponse
	if err := json.Unmarshal(resp.Body(), &out); err != nil {
		return "", fmt.Errorf("lookup item %s: decode response: %w", itemID, err)
	}
	if out.Error != nil {
		return "", fmt.Errorf("lookup item %s: arcgis error %d: %s", itemID, out.Error.Code, out.Error.Message)
	}
	if out.URL == "" {
		return "", fmt.Errorf("lookup item %s: item has no service url", itemID)
	}

	return out.URL, nil
}
