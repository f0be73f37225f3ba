// File: internal/lookup/qrz.go
package lookup

import (
	"context"
	"encoding/xml"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/fullduplex/carrierwave/internal/config"
	"github.com/fullduplex/carrierwave/internal/models"
	"github.com/fullduplex/carrierwave/pkg/utils"
)

// QRZClient queries the QRZ.com XML callbook. Sessions are keyed and
// expire server-side; the client re-authenticates once per request when
// the key is rejected.
type QRZClient struct {
	config     *config.QRZXMLConfig
	httpClient *http.Client
	logger     *logrus.Entry

	mu         sync.Mutex
	sessionKey string
}

// NewQRZClient creates a new QRZ XML callbook client
func NewQRZClient(cfg *config.QRZXMLConfig, timeout time.Duration) *QRZClient {
	return &QRZClient{
		config:     cfg,
		httpClient: &http.Client{Timeout: timeout},
		logger:     logrus.WithField("component", "lookup-qrz"),
	}
}

// Name identifies the provider
func (c *QRZClient) Name() models.LookupSource {
	return models.SourceQRZ
}

// qrzDatabase mirrors the QRZ XML response envelope
type qrzDatabase struct {
	XMLName  xml.Name    `xml:"QRZDatabase"`
	Session  qrzSession  `xml:"Session"`
	Callsign qrzCallsign `xml:"Callsign"`
}

type qrzSession struct {
	Key   string `xml:"Key"`
	Error string `xml:"Error"`
}

type qrzCallsign struct {
	Call    string `xml:"call"`
	FName   string `xml:"fname"`
	Name    string `xml:"name"`
	Grid    string `xml:"grid"`
	Country string `xml:"country"`
	State   string `xml:"state"`
	City    string `xml:"addr2"`
	Class   string `xml:"class"`
	Lat     string `xml:"lat"`
	Lon     string `xml:"lon"`
}

// Lookup fetches callbook data for a callsign
func (c *QRZClient) Lookup(ctx context.Context, callsign string) (*models.CallsignInfo, error) {
	db, err := c.query(ctx, callsign)
	if err != nil {
		return nil, err
	}

	// An expired or invalid session key gets one re-login attempt
	if sessionExpired(db.Session.Error) {
		c.mu.Lock()
		c.sessionKey = ""
		c.mu.Unlock()
		db, err = c.query(ctx, callsign)
		if err != nil {
			return nil, err
		}
	}

	if db.Session.Error != "" {
		if strings.Contains(strings.ToLower(db.Session.Error), "not found") {
			return nil, utils.NewAppError(utils.ErrCodeNotFound, "Callsign not found", callsign)
		}
		return nil, utils.NewAppError(utils.ErrCodeExternal, "QRZ lookup failed", db.Session.Error)
	}
	if db.Callsign.Call == "" {
		return nil, utils.NewAppError(utils.ErrCodeNotFound, "Callsign not found", callsign)
	}

	return c.toInfo(&db.Callsign), nil
}

func sessionExpired(errMsg string) bool {
	msg := strings.ToLower(errMsg)
	return strings.Contains(msg, "session timeout") || strings.Contains(msg, "invalid session key")
}

func (c *QRZClient) query(ctx context.Context, callsign string) (*qrzDatabase, error) {
	key, err := c.ensureSession(ctx)
	if err != nil {
		return nil, err
	}

	params := url.Values{}
	params.Set("s", key)
	params.Set("callsign", callsign)

	return c.get(ctx, params)
}

// ensureSession logs in when no session key is held
func (c *QRZClient) ensureSession(ctx context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.sessionKey != "" {
		return c.sessionKey, nil
	}

	params := url.Values{}
	params.Set("username", c.config.Username)
	params.Set("password", c.config.Password)

	db, err := c.get(ctx, params)
	if err != nil {
		return "", err
	}
	if db.Session.Key == "" {
		return "", utils.NewAppError(utils.ErrCodeAuth, "QRZ login failed", db.Session.Error)
	}

	c.sessionKey = db.Session.Key
	c.logger.Debug("QRZ XML session established")
	return c.sessionKey, nil
}

func (c *QRZClient) get(ctx context.Context, params url.Values) (*qrzDatabase, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.config.Endpoint+"?"+params.Encode(), nil)
	if err != nil {
		return nil, utils.NewAppError(utils.ErrCodeInternal, "Failed to build QRZ request", err.Error())
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, utils.NewAppError(utils.ErrCodeConnection, "QRZ request failed", err.Error())
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, utils.NewAppError(utils.ErrCodeExternal, "QRZ returned unexpected status",
			fmt.Sprintf("HTTP %d", resp.StatusCode))
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, utils.NewAppError(utils.ErrCodeConnection, "Failed to read QRZ response", err.Error())
	}

	var db qrzDatabase
	if err := xml.Unmarshal(body, &db); err != nil {
		return nil, utils.NewAppError(utils.ErrCodeParse, "Failed to parse QRZ response", err.Error())
	}
	return &db, nil
}

func (c *QRZClient) toInfo(cs *qrzCallsign) *models.CallsignInfo {
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
		Source:       models.SourceQRZ,
		FetchedAt:    time.Now().UTC(),
	}
}
