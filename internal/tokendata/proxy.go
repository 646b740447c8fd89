// Package tokendata proxies token balance lookups to the token-data provider
// so the provider key never reaches the browser.
package tokendata

import (
	"encoding/base64"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/hashicorp/go-retryablehttp"
	"github.com/labstack/echo/v4"
	"github.com/sirupsen/logrus"
)

const (
	DefaultBaseURL = "https://api.zapper.xyz/v2/balances/tokens?addresses[]="

	placeholderKey = "your_zapper_api_key_here"
	defaultTimeout = 10 * time.Second
)

type Config struct {
	BaseURL string `mapstructure:"base_url" json:"base_url,omitempty"`
	APIKey  string `mapstructure:"api_key" json:"api_key,omitempty"`
}

type Proxy struct {
	baseURL string
	apiKey  string
	client  *retryablehttp.Client
	logger  *logrus.Logger
}

func NewProxy(cfg Config, logger *logrus.Logger) *Proxy {
	l := logger.WithField("pkg", "tokendata.Proxy").Logger
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}

	client := retryablehttp.NewClient()
	client.HTTPClient.Timeout = defaultTimeout
	client.Logger = l
	client.RetryMax = 2
	client.ErrorHandler = retryablehttp.PassthroughErrorHandler

	return &Proxy{
		baseURL: baseURL,
		apiKey:  cfg.APIKey,
		client:  client,
		logger:  l,
	}
}

func (p *Proxy) configured() bool {
	return p.apiKey != "" && p.apiKey != placeholderKey
}

func (p *Proxy) authorization() string {
	return "Basic " + base64.StdEncoding.EncodeToString([]byte(p.apiKey+":"))
}

func message(msg string) map[string]string {
	return map[string]string{"message": msg}
}

// GetTokens handles GET /api/v1/data/tokens?address=.
func (p *Proxy) GetTokens(c echo.Context) error {
	address := c.QueryParam("address")
	if address == "" {
		return c.JSON(http.StatusBadRequest, message("Address parameter is required"))
	}
	if !common.IsHexAddress(address) {
		return c.JSON(http.StatusBadRequest, message("Address parameter must be a hex address"))
	}

	if !p.configured() {
		p.logger.Warn("token data api key not configured, returning empty data")
		return c.JSON(http.StatusOK, map[string][]interface{}{
			strings.ToLower(address): {},
		})
	}

	req, err := retryablehttp.NewRequestWithContext(c.Request().Context(), http.MethodGet, p.baseURL+address, nil)
	if err != nil {
		p.logger.Errorf("failed to create token data request: %v", err)
		return c.JSON(http.StatusInternalServerError, message("Internal server error"))
	}
	req.Header.Set("accept", "*/*")
	req.Header.Set(echo.HeaderAuthorization, p.authorization())

	resp, err := p.client.Do(req)
	if err != nil {
		p.logger.Errorf("token data request failed: %v", err)
		return c.JSON(http.StatusInternalServerError, message("Internal server error"))
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode != http.StatusOK {
		p.logger.WithField("status", resp.StatusCode).Error("token data provider error")
		return c.JSON(resp.StatusCode, message("Failed to fetch token data"))
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		p.logger.Errorf("failed to read token data response: %v", err)
		return c.JSON(http.StatusInternalServerError, message("Internal server error"))
	}
	if !json.Valid(body) {
		p.logger.Error("token data provider returned invalid json")
		return c.JSON(http.StatusInternalServerError, message("Internal server error"))
	}
	return c.JSONBlob(http.StatusOK, body)
}
