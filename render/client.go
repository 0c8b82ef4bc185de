package render

import (
	"context"
	"encoding/json"
	"fmt"
	"image/color"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"Skycast/lib/sl"
)

// forecast strip background
var defaultBackground = color.RGBA{R: 134, G: 185, B: 224, A: 255}

// Renderer posts filled HTML templates to the render microservice and
// receives back hosted image URLs.
type Renderer struct {
	endpoint   string
	userID     string
	apiKey     string
	stylesheet string
	background color.RGBA
	httpClient *http.Client
	log        *slog.Logger
}

func NewRenderer(endpoint, userID, apiKey string, log *slog.Logger) (*Renderer, error) {
	css, err := loadStylesheet()
	if err != nil {
		return nil, err
	}
	return &Renderer{
		endpoint:   endpoint,
		userID:     userID,
		apiKey:     apiKey,
		stylesheet: css,
		background: defaultBackground,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		log: log.With(sl.Module("render")),
	}, nil
}

// Panel renders one weather panel and returns the hosted image URL.
// Returns ErrUnresolved when the condition code maps to no template.
func (r *Renderer) Panel(ctx context.Context, label string, temp int, conditionID int, symbol string) (string, error) {
	name, err := TemplateFor(conditionID)
	if err != nil {
		return "", err
	}
	html, err := loadTemplate(name)
	if err != nil {
		return "", err
	}

	html = strings.ReplaceAll(html, "\n", "")
	html = strings.ReplaceAll(html, "{city}", label)
	html = strings.ReplaceAll(html, "{weath}", fmt.Sprintf("%d %s", temp, symbol))

	form := url.Values{}
	form.Set("html", html)
	form.Set("css", r.stylesheet)
	form.Set("google_fonts", "Roboto")

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.SetBasicAuth(r.userID, r.apiKey)

	resp, err := r.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("render request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		body, _ := io.ReadAll(resp.Body)
		return "", fmt.Errorf("render API error: status %d: %s", resp.StatusCode, body)
	}

	var payload struct {
		URL string `json:"url"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return "", fmt.Errorf("decode response: %w", err)
	}
	if payload.URL == "" {
		return "", fmt.Errorf("render API returned no image url")
	}
	return payload.URL, nil
}
