// File: internal/spots/pota.go
package spots

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/fullduplex/carrierwave/internal/config"
	"github.com/fullduplex/carrierwave/internal/models"
	"github.com/fullduplex/carrierwave/pkg/utils"
)

// POTAPoller polls the public POTA activator spot endpoint
type POTAPoller struct {
	config     *config.POTASpotsConfig
	handler    func(*models.Spot)
	httpClient *http.Client
	logger     *logrus.Entry
}

// NewPOTAPoller creates the POTA spot poller
func NewPOTAPoller(cfg *config.POTASpotsConfig, handler func(*models.Spot)) *POTAPoller {
	return &POTAPoller{
		config:     cfg,
		handler:    handler,
		httpClient: &http.Client{Timeout: 15 * time.Second},
		logger:     logrus.WithField("component", "spots-pota"),
	}
}

// Run polls on the configured interval until the context ends
func (p *POTAPoller) Run(ctx context.Context, onError func()) {
	interval := p.config.PollInterval
	if interval <= 0 {
		interval = time.Minute
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		if err := p.poll(ctx); err != nil {
			p.logger.WithError(err).Warn("POTA spot poll failed")
			if onError != nil {
				onError()
			}
		}

		select {
		case <-ticker.C:
		case <-ctx.Done():
			return
		}
	}
}

// potaSpot mirrors the /spot/activator response entries
type potaSpot struct {
	SpotID    int64  `json:"spotId"`
	Activator string `json:"activator"`
	Frequency string `json:"frequency"`
	Mode      string `json:"mode"`
	Reference string `json:"reference"`
	Spotter   string `json:"spotter"`
	Comments  string `json:"comments"`
	SpotTime  string `json:"spotTime"`
}

func (p *POTAPoller) poll(ctx context.Context) error {
	endpoint := strings.TrimRight(p.config.Endpoint, "/") + "/spot/activator"
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return utils.NewAppError(utils.ErrCodeInternal, "Failed to build POTA spot request", err.Error())
	}

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return utils.NewAppError(utils.ErrCodeConnection, "POTA spot request failed", err.Error())
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return utils.NewAppError(utils.ErrCodeExternal, "POTA spot endpoint returned unexpected status",
			fmt.Sprintf("HTTP %d", resp.StatusCode))
	}

	var raw []potaSpot
	if err := json.NewDecoder(resp.Body).Decode(&raw); err != nil {
		return utils.NewAppError(utils.ErrCodeParse, "Failed to parse POTA spots", err.Error())
	}

	for i := range raw {
		spot, ok := p.toSpot(&raw[i])
		if !ok {
			continue
		}
		p.handler(spot)
	}
	return nil
}

func (p *POTAPoller) toSpot(raw *potaSpot) (*models.Spot, bool) {
	freq, err := strconv.ParseFloat(raw.Frequency, 64)
	if err != nil || freq <= 0 {
		return nil, false
	}

	dxCall := utils.NormalizeCallsign(raw.Activator)
	if !utils.IsValidCallsign(dxCall) {
		return nil, false
	}

	spottedAt := time.Now().UTC()
	if t, err := time.Parse("2006-01-02T15:04:05", raw.SpotTime); err == nil {
		spottedAt = t.UTC()
	}

	// POTA spot ids are stable; reusing them as our id deduplicates
	// repeated polls of the same spot
	return &models.Spot{
		ID:           "pota-" + strconv.FormatInt(raw.SpotID, 10),
		Spotter:      utils.NormalizeCallsign(raw.Spotter),
		DXCall:       dxCall,
		FrequencyKHz: freq,
		Band:         utils.BandForFrequency(freq),
		Mode:         strings.ToUpper(raw.Mode),
		Source:       models.SpotSourcePOTA,
		ParkRef:      raw.Reference,
		Comment:      raw.Comments,
		SpottedAt:    spottedAt,
	}, true
}
