// File: internal/spots/rbn.go
package spots

import (
	"bufio"
	"context"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/fullduplex/carrierwave/internal/config"
	"github.com/fullduplex/carrierwave/internal/models"
	"github.com/fullduplex/carrierwave/pkg/utils"
)

// RBNFeed streams CW/digital skimmer spots from the Reverse Beacon
// Network telnet service. The server asks for a callsign at login and
// then pushes one spot per line.
type RBNFeed struct {
	config       *config.RBNConfig
	callsign     string
	handler      func(*models.Spot)
	onParseError func()
	logger       *logrus.Entry
}

// NewRBNFeed creates the RBN feed client
func NewRBNFeed(cfg *config.RBNConfig, callsign string, handler func(*models.Spot)) *RBNFeed {
	return &RBNFeed{
		config:   cfg,
		callsign: callsign,
		handler:  handler,
		logger:   logrus.WithField("component", "spots-rbn"),
	}
}

// Run connects and consumes the feed until the context is canceled,
// reconnecting with the configured delay after any failure.
func (f *RBNFeed) Run(ctx context.Context, onReconnect func()) {
	delay := f.config.ReconnectDelay
	if delay <= 0 {
		delay = 30 * time.Second
	}

	for {
		if err := f.consume(ctx); err != nil && ctx.Err() == nil {
			f.logger.WithError(err).Warn("RBN feed disconnected")
		}
		if ctx.Err() != nil {
			return
		}
		if onReconnect != nil {
			onReconnect()
		}

		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return
		}
	}
}

func (f *RBNFeed) consume(ctx context.Context) error {
	dialer := net.Dialer{Timeout: 15 * time.Second}
	conn, err := dialer.DialContext(ctx, "tcp", f.config.Host)
	if err != nil {
		return utils.NewAppError(utils.ErrCodeConnection, "RBN dial failed", err.Error())
	}
	defer conn.Close()

	// Close the connection when the context ends so the read loop exits
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			conn.Close()
		case <-done:
		}
	}()

	// The login prompt is a bare line; answering with the callsign
	// starts the stream
	if _, err := conn.Write([]byte(f.callsign + "\r\n")); err != nil {
		return utils.NewAppError(utils.ErrCodeConnection, "RBN login write failed", err.Error())
	}

	f.logger.WithField("host", f.config.Host).Info("Connected to RBN feed")

	scanner := bufio.NewScanner(conn)
	for scanner.Scan() {
		line := scanner.Text()
		spot, ok := ParseRBNLine(line)
		if !ok {
			// Banners and keepalives are expected; only count lines
			// that claim to be spots but fail to parse
			if strings.HasPrefix(strings.TrimSpace(line), "DX de ") && f.onParseError != nil {
				f.onParseError()
			}
			continue
		}
		f.handler(spot)
	}

	if err := scanner.Err(); err != nil && ctx.Err() == nil {
		return utils.NewAppError(utils.ErrCodeConnection, "RBN read failed", err.Error())
	}
	return nil
}

// ParseRBNLine parses one feed line of the form
//
//	DX de W3LPL-#:   14025.5  JA1ABC   CW    22 dB  28 WPM  CQ   1823Z
//
// Lines that are not spots (login banner, keepalives) return ok=false.
// SNR and WPM are optional; modes without a speed simply lack WPM.
func ParseRBNLine(line string) (*models.Spot, bool) {
	line = strings.TrimSpace(line)
	if !strings.HasPrefix(line, "DX de ") {
		return nil, false
	}

	rest := strings.TrimPrefix(line, "DX de ")
	colon := strings.IndexByte(rest, ':')
	if colon < 0 {
		return nil, false
	}

	spotter := strings.TrimSuffix(strings.TrimSpace(rest[:colon]), "-#")
	fields := strings.Fields(rest[colon+1:])
	if len(fields) < 3 {
		return nil, false
	}

	freq, err := strconv.ParseFloat(fields[0], 64)
	if err != nil || freq <= 0 {
		return nil, false
	}

	dxCall := utils.NormalizeCallsign(fields[1])
	if !utils.IsValidCallsign(dxCall) {
		return nil, false
	}

	spot := &models.Spot{
		ID:           utils.GenerateID(),
		Spotter:      strings.ToUpper(spotter),
		DXCall:       dxCall,
		FrequencyKHz: freq,
		Band:         utils.BandForFrequency(freq),
		Mode:         strings.ToUpper(fields[2]),
		Source:       models.SpotSourceRBN,
		SpottedAt:    time.Now().UTC(),
	}

	// Optional trailing tokens: "<snr> dB", "<wpm> WPM", free-text
	// comment, and a Z-suffixed timestamp
	var comment []string
	for i := 3; i < len(fields); i++ {
		token := fields[i]
		switch {
		case strings.EqualFold(token, "dB") && i > 3:
			if v, err := strconv.Atoi(fields[i-1]); err == nil {
				spot.SNR = v
				comment = trimLast(comment)
			}
		case strings.EqualFold(token, "WPM") && i > 3:
			if v, err := strconv.Atoi(fields[i-1]); err == nil {
				spot.WPM = v
				comment = trimLast(comment)
			}
		case i == len(fields)-1 && strings.HasSuffix(token, "Z") && len(token) == 5:
			// trailing spot time, already covered by SpottedAt
		default:
			comment = append(comment, token)
		}
	}
	spot.Comment = strings.Join(comment, " ")

	return spot, true
}

func trimLast(tokens []string) []string {
	if len(tokens) == 0 {
		return tokens
	}
	return tokens[:len(tokens)-1]
}
