// Package arbiter queries an external decision service with a parsed
// IFR record; the caller applies the returned promote/reject/safe-mode
// decision to the active model baseline.
//
// The client POSTs JSON (base64 raw record plus parsed fields) to a
// configured URL with a 2 s timeout, falling back to a comma-separated
// profile from an environment variable, and finally to a profile-less
// keep decision, on any request failure.
package arbiter

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/zen-systems/edgebridge/internal/errs"
	"github.com/zen-systems/edgebridge/internal/ifrcodec"
	"github.com/zen-systems/edgebridge/internal/logging"
)

const requestTimeout = 2 * time.Second

// Decision codes returned by the arbiter endpoint.
const (
	DecisionKeep     = 0
	DecisionPromote  = 1
	DecisionReject   = 2
	DecisionSafeMode = 3
)

// Decision is the arbiter's response to an episode submission.
type Decision struct {
	DecisionCode       int       `json:"decision_code"`
	RecommendedModelID uint32    `json:"recommended_model_id"`
	Profile            []float64 `json:"profile"`
}

// Client queries the arbiter service.
type Client struct {
	URL        string
	ProfileEnv string
	HTTPClient *http.Client
}

// NewClient returns a Client reading ZENEDGE_ARBITER_URL and
// ZENEDGE_ARB_PROFILE for its fallback behavior if url/profileEnv are
// empty.
func NewClient(url, profileEnv string) *Client {
	if url == "" {
		url = strings.TrimSpace(os.Getenv("ZENEDGE_ARBITER_URL"))
	}
	if profileEnv == "" {
		profileEnv = strings.TrimSpace(os.Getenv("ZENEDGE_ARB_PROFILE"))
	}
	return &Client{
		URL:        url,
		ProfileEnv: profileEnv,
		HTTPClient: &http.Client{Timeout: requestTimeout},
	}
}

// QueryNextProfile submits rawRecord and its parsed projection to the
// configured arbiter URL and returns its decision. On any request
// failure it falls back to a profile parsed from ProfileEnv, and
// finally to an empty keep-baseline decision; it never returns an
// error itself.
func (c *Client) QueryNextProfile(ctx context.Context, rawRecord []byte, record *ifrcodec.Record) Decision {
	if c.URL != "" {
		decision, err := c.post(ctx, rawRecord, record)
		if err == nil {
			return decision
		}
		logging.Default().Warnf("arbiter request failed: %v", err)
	}

	if c.ProfileEnv != "" {
		if profile, ok := parseProfile(c.ProfileEnv); ok {
			return Decision{DecisionCode: DecisionKeep, Profile: profile}
		}
	}

	return Decision{DecisionCode: DecisionKeep}
}

func (c *Client) post(ctx context.Context, rawRecord []byte, record *ifrcodec.Record) (Decision, error) {
	body := map[string]any{
		"ifr_b64": base64.StdEncoding.EncodeToString(rawRecord),
		"ifr":     record,
	}
	payload, err := json.Marshal(body)
	if err != nil {
		return Decision{}, errs.Wrap("arbiter.post", errs.CodeExternalIOFailure, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.URL, bytes.NewReader(payload))
	if err != nil {
		return Decision{}, errs.Wrap("arbiter.post", errs.CodeExternalIOFailure, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return Decision{}, errs.Wrap("arbiter.post", errs.CodeExternalIOFailure, err)
	}
	defer resp.Body.Close()

	var decision Decision
	if err := json.NewDecoder(resp.Body).Decode(&decision); err != nil {
		return Decision{}, errs.Wrap("arbiter.post", errs.CodeExternalIOFailure, err)
	}
	return decision, nil
}

func parseProfile(env string) ([]float64, bool) {
	parts := strings.Split(env, ",")
	var out []float64
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		v, err := strconv.ParseFloat(p, 64)
		if err != nil {
			return nil, false
		}
		out = append(out, v)
	}
	if len(out) == 0 {
		return nil, false
	}
	return out, true
}
