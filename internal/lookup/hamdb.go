// File: internal/lookup/hamdb.go
package lookup

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

// HamDBClient queries the free HamDB JSON callbook. No authentication.
type HamDBClient struct {
	config     *config.HamDBConfig
	httpClient *http.Client
	logger     *logrus.Entry
}

// NewHamDBClient creates a new HamDB lookup client
func NewHamDBClient(cfg *config.HamDBConfig, timeout time.Duration) *HamDBClient {
	return &HamDBClient{
		config:     cfg,
		httpClient: &http.Client{Timeout: timeout},
		logger:     logrus.WithField("component", "lookup-hamdb"),
	}
}

// Name identifies the provider
func (c *HamDBClient) Name() models.LookupSource {
	return models.SourceHamDB
}

type hamdbResponse struct {
	HamDB struct {
		Callsign struct {
			Call    string `json:"call"`
			Name    string `json:"name"`
			FName   string `json:"fname"`
			Grid    string `json:"grid"`
			Country string `json:"country"`
			State   string `json:"state"`
			City    string `json:"city"`
			Class   string `json:"class"`
			Lat     string `json:"lat"`
			Lon     string `json:"lon"`
		} `json:"callsign"`
		Messages struct {
			Status string `json:"status"`
		} `json:"messages"`
	} `json:"hamdb"`
}

// Lookup fetches callbook data for a callsign
func (c *HamDBClient) Lookup(ctx context.Context, callsign string) (*models.CallsignInfo, error) {
	endpoint := fmt.Sprintf("%s/v1/%s/json/carrierwave", strings.TrimRight(c.config.Endpoint, "/"), callsign)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, utils.NewAppError(utils.ErrCodeInternal, "Failed to build HamDB request", err.Error())
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, utils.NewAppError(utils.ErrCodeConnection, "HamDB request failed", err.Error())
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, utils.NewAppError(utils.ErrCodeExternal, "HamDB returned unexpected status",
			fmt.Sprintf("HTTP %d", resp.StatusCode))
	}

	var parsed hamdbResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, utils.NewAppError(utils.ErrCodeParse, "Failed to parse HamDB response", err.Error())
	}

	cs := parsed.HamDB.Callsign
	// HamDB reports misses with status NOT_FOUND and call "NOT_FOUND"
	if !strings.EqualFold(parsed.HamDB.Messages.Status, "OK") || strings.EqualFold(cs.Call, "NOT_FOUND") {
		return nil, utils.NewAppError(utils.ErrCodeNotFound, "Callsign not found", callsign)
	}

	name := strings.TrimSpace(cs.FName + " " + cs.Name)
	lat, _ := strconv.ParseFloat(cs.Lat, 64)
	lon, _ := strconv.ParseFloat(cs.Lon, 64)

	return &models.CallsignInfo{
		Callsign:     strings.ToUpper(cs.Call),
		Name:         name,
		Grid:         cs.Grid,
		Country:      cs.Country,
		State:        cs.State,
		City:         cs.City,
		LicenseClass: cs.Class,
		Latitude:     lat,
		Longitude:    lon,
		Source:       models.SourceHamDB,
		FetchedAt:    time.Now().UTC(),
	}, nil
}
