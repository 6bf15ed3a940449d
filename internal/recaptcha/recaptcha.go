// Package recaptcha verifies reCAPTCHA responses submitted with the login
// form against the Google siteverify endpoint.
package recaptcha

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/zonewarden/zonewarden/internal/config"
)

const defaultVerifyURL = "https://www.google.com/recaptcha/api/siteverify"

// Verifier checks captcha responses. A nil Verifier accepts everything, so
// deployments without captcha need no branching.
type Verifier struct {
	secretKey string
	verifyURL string
	client    *http.Client
}

// New creates a verifier from the configuration. Returns nil when the
// captcha gate is disabled.
func New(cfg *config.Recaptcha) *Verifier {
	if !cfg.Enabled {
		return nil
	}

	verifyURL := cfg.VerifyURL
	if verifyURL == "" {
		verifyURL = defaultVerifyURL
	}

	timeout := time.Duration(cfg.Timeout) * time.Second
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	return &Verifier{
		secretKey: cfg.SecretKey,
		verifyURL: verifyURL,
		client:    &http.Client{Timeout: timeout},
	}
}

// Verify posts the captcha response to the siteverify endpoint. An
// unreachable endpoint fails closed: nobody gets past a broken captcha.
func (v *Verifier) Verify(ctx context.Context, response, remoteIP string) bool {
	if v == nil {
		return true
	}

	if response == "" {
		return false
	}

	form := url.Values{}
	form.Set("secret", v.secretKey)
	form.Set("response", response)

	if remoteIP != "" {
		form.Set("remoteip", remoteIP)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, v.verifyURL, strings.NewReader(form.Encode()))
	if err != nil {
		log.Error().Err(err).Msg("failed to build recaptcha request")

		return false
	}

	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := v.client.Do(req)
	if err != nil {
		log.Error().Err(err).Msg("recaptcha verification request failed")

		return false
	}

	defer func() {
		if errClose := resp.Body.Close(); errClose != nil {
			log.Warn().Err(errClose).Msg("failed to close recaptcha response body")
		}
	}()

	var result struct {
		Success    bool     `json:"success"`
		ErrorCodes []string `json:"error-codes"`
	}

	if err = json.NewDecoder(resp.Body).Decode(&result); err != nil {
		log.Error().Err(err).Msg("failed to decode recaptcha response")

		return false
	}

	if !result.Success {
		log.Info().Str("error_codes", fmt.Sprintf("%v", result.ErrorCodes)).
			Msg("recaptcha verification rejected")
	}

	return result.Success
}
