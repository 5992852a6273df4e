// Package geolocate places the initial camera near the visitor using an IP
// geolocation database.
package geolocate

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"

	"github.com/oschwald/maxminddb-golang"
	"github.com/paulmach/orb"

	"github.com/joeblew999/plat-slackmap/internal/mapengine"
)

var (
	ErrInvalidIP = errors.New("invalid ip address")
	ErrNotFound  = errors.New("no location for ip")
	ErrDisabled  = errors.New("geolocation disabled")
)

// Locator resolves an IP address to a coordinate.
type Locator interface {
	Locate(ctx context.Context, ip string) (orb.Point, error)
}

// Nop never locates anything.
type Nop struct{}

func (Nop) Locate(context.Context, string) (orb.Point, error) {
	return orb.Point{}, ErrDisabled
}

// MaxMindLocator reads a GeoLite2/GeoIP2 City database.
type MaxMindLocator struct {
	reader *maxminddb.Reader
}

// Open opens the database at path.
func Open(path string) (*MaxMindLocator, error) {
	r, err := maxminddb.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open geoip database %s: %w", path, err)
	}
	return &MaxMindLocator{reader: r}, nil
}

// FromBytes uses an in-memory database.
func FromBytes(b []byte) (*MaxMindLocator, error) {
	r, err := maxminddb.FromBytes(b)
	if err != nil {
		return nil, fmt.Errorf("failed to load geoip database: %w", err)
	}
	return &MaxMindLocator{reader: r}, nil
}

type cityRecord struct {
	Location struct {
		Latitude  float64 `maxminddb:"latitude"`
		Longitude float64 `maxminddb:"longitude"`
	} `maxminddb:"location"`
}

// Locate implements Locator.
func (m *MaxMindLocator) Locate(ctx context.Context, ip string) (orb.Point, error) {
	if err := ctx.Err(); err != nil {
		return orb.Point{}, err
	}
	parsed := net.ParseIP(ip)
	if parsed == nil {
		return orb.Point{}, fmt.Errorf("%w: %q", ErrInvalidIP, ip)
	}
	var rec cityRecord
	if err := m.reader.Lookup(parsed, &rec); err != nil {
		return orb.Point{}, fmt.Errorf("geoip lookup %s: %w", ip, err)
	}
	if rec.Location.Latitude == 0 && rec.Location.Longitude == 0 {
		return orb.Point{}, fmt.Errorf("%w: %s", ErrNotFound, ip)
	}
	return orb.Point{rec.Location.Longitude, rec.Location.Latitude}, nil
}

// Close releases the database.
func (m *MaxMindLocator) Close() error {
	return m.reader.Close()
}

// ClientIP extracts the client address from a remote address and an
// optional X-Forwarded-For header value.
func ClientIP(remoteAddr, forwardedFor string) string {
	if forwardedFor != "" {
		first, _, _ := strings.Cut(forwardedFor, ",")
		if ip := net.ParseIP(strings.TrimSpace(first)); ip != nil {
			return ip.String()
		}
	}
	host, _, err := net.SplitHostPort(remoteAddr)
	if err != nil {
		return remoteAddr
	}
	return host
}

// LocatorFunc adapts a function to Locator.
type LocatorFunc func(ctx context.Context, ip string) (orb.Point, error)

func (f LocatorFunc) Locate(ctx context.Context, ip string) (orb.Point, error) {
	return f(ctx, ip)
}

// Zoom levels used when flying to a located visitor.
const (
	DesktopZoom = 2.5
	MobileZoom  = 1.5
)

// ZoomFor returns the visitor zoom for the viewport class.
func ZoomFor(mobile bool) float64 {
	if mobile {
		return MobileZoom
	}
	return DesktopZoom
}

// FlyToVisitor locates ip and flies the map there at zoom. Lookup failures
// are reported to the caller but never touch the map.
func FlyToVisitor(ctx context.Context, handle mapengine.MapHandle, loc Locator, ip string, zoom float64) error {
	if loc == nil {
		return ErrDisabled
	}
	p, err := loc.Locate(ctx, ip)
	if err != nil {
		return err
	}
	return handle.FlyTo(mapengine.CameraOptions{
		Center:  mapengine.Point(p),
		Zoom:    mapengine.Float(zoom),
		Animate: true,
	})
}
