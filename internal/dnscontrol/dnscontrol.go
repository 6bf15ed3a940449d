// Package dnscontrol is the narrow interface to the DNS control plane. The
// auth core and the web handlers only ever talk to the Plane interface;
// everything DNS protocol shaped stays behind it.
package dnscontrol

import (
	"context"
	"errors"
	"time"

	"github.com/joeig/go-powerdns/v3"
	"github.com/rs/zerolog/log"

	"github.com/zonewarden/zonewarden/internal/config"
)

const defaultTimeout = 30 * time.Second

// ErrClientNotInitialized is returned when the PowerDNS client was never opened.
var ErrClientNotInitialized = errors.New("powerdns client not initialized")

// Zone is a control plane zone summary.
type Zone struct {
	Name   string
	Kind   string
	Serial uint32
	DNSSEC bool
}

// Key is a DNSSEC crypto key summary.
type Key struct {
	ID      uint64
	KeyType string
	Active  bool
	DNSKey  string
	DS      []string
}

// Plane is what the rest of the application may do with the control plane.
type Plane interface {
	ListZones(ctx context.Context) ([]Zone, error)
	RectifyZone(ctx context.Context, zone string) error
	SecureZone(ctx context.Context, zone string) error
	UnsecureZone(ctx context.Context, zone string) error
	ListKeys(ctx context.Context, zone string) ([]Key, error)
	DeleteKey(ctx context.Context, zone string, keyID uint64) error
}

// PowerDNSPlane implements Plane against the PowerDNS REST API.
type PowerDNSPlane struct {
	client *powerdns.Client
}

// Open creates the control plane client from the configuration.
func Open(cfg *config.PowerDNS) *PowerDNSPlane {
	return &PowerDNSPlane{
		client: powerdns.New(cfg.APIServerURL, cfg.VHost, powerdns.WithAPIKey(cfg.APIKey)),
	}
}

// Test checks the API connection by listing zones.
func (p *PowerDNSPlane) Test() error {
	ctx, cancel := context.WithTimeout(context.Background(), defaultTimeout)
	defer cancel()

	if p.client == nil {
		return ErrClientNotInitialized
	}

	zones, err := p.client.Zones.List(ctx)
	if err != nil {
		return err
	}

	log.Info().Int("zone_count", len(zones)).Msg("PowerDNS API connection test successful")

	return nil
}

// ListZones returns all zones known to the server.
func (p *PowerDNSPlane) ListZones(ctx context.Context) ([]Zone, error) {
	apiZones, err := p.client.Zones.List(ctx)
	if err != nil {
		return nil, err
	}

	zones := make([]Zone, 0, len(apiZones))

	for _, z := range apiZones {
		zone := Zone{}

		if z.Name != nil {
			zone.Name = *z.Name
		}

		if z.Kind != nil {
			zone.Kind = string(*z.Kind)
		}

		if z.Serial != nil {
			zone.Serial = *z.Serial
		}

		if z.DNSsec != nil {
			zone.DNSSEC = *z.DNSsec
		}

		zones = append(zones, zone)
	}

	return zones, nil
}

// RectifyZone turns on automatic rectification for the zone.
func (p *PowerDNSPlane) RectifyZone(ctx context.Context, zone string) error {
	enabled := true

	return p.client.Zones.Change(ctx, zone, &powerdns.Zone{APIRectify: &enabled})
}

// SecureZone enables DNSSEC on the zone, letting the server generate keys.
func (p *PowerDNSPlane) SecureZone(ctx context.Context, zone string) error {
	enabled := true

	return p.client.Zones.Change(ctx, zone, &powerdns.Zone{DNSsec: &enabled})
}

// UnsecureZone disables DNSSEC on the zone.
func (p *PowerDNSPlane) UnsecureZone(ctx context.Context, zone string) error {
	disabled := false

	return p.client.Zones.Change(ctx, zone, &powerdns.Zone{DNSsec: &disabled})
}

// ListKeys lists the DNSSEC crypto keys of the zone.
func (p *PowerDNSPlane) ListKeys(ctx context.Context, zone string) ([]Key, error) {
	apiKeys, err := p.client.Cryptokeys.List(ctx, zone)
	if err != nil {
		return nil, err
	}

	keys := make([]Key, 0, len(apiKeys))

	for _, k := range apiKeys {
		key := Key{DS: k.DS}

		if k.ID != nil {
			key.ID = *k.ID
		}

		if k.KeyType != nil {
			key.KeyType = *k.KeyType
		}

		if k.Active != nil {
			key.Active = *k.Active
		}

		if k.DNSkey != nil {
			key.DNSKey = *k.DNSkey
		}

		keys = append(keys, key)
	}

	return keys, nil
}

// DeleteKey removes a crypto key from the zone.
func (p *PowerDNSPlane) DeleteKey(ctx context.Context, zone string, keyID uint64) error {
	return p.client.Cryptokeys.Delete(ctx, zone, keyID)
}
