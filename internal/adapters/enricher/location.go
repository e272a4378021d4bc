package enricher

import (
	"context"
	"fmt"
	"net"

	"github.com/oschwald/geoip2-golang"

	"github.com/okian/sitestats/internal/domain/model"
	"github.com/okian/sitestats/pkg/logger"
)

// StaticResolver resolves every address to one fixed location.
type StaticResolver struct {
	loc model.Location
}

// NewStaticResolver returns a resolver for loc. Empty fields become Unknown.
func NewStaticResolver(loc model.Location) StaticResolver {
	if loc.Country == "" {
		loc.Country = Unknown
	}
	if loc.City == "" {
		loc.City = Unknown
	}
	return StaticResolver{loc: loc}
}

func (s StaticResolver) Resolve(context.Context, string) model.Location {
	return s.loc
}

// GeoIPResolver looks addresses up in a MaxMind City database.
type GeoIPResolver struct {
	db  *geoip2.Reader
	log logger.Logger
}

// OpenGeoIP opens the database at path.
func OpenGeoIP(path string, log logger.Logger) (*GeoIPResolver, error) {
	db, err := geoip2.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open geoip database %q: %w", path, err)
	}
	if log == nil {
		log = logger.Nop()
	}
	return &GeoIPResolver{db: db, log: log}, nil
}

// Resolve prefers English names and falls back to the ISO country code.
func (g *GeoIPResolver) Resolve(ctx context.Context, ip string) model.Location {
	unknown := model.Location{Country: Unknown, City: Unknown}
	addr := net.ParseIP(ip)
	if addr == nil || g.db == nil {
		return unknown
	}
	record, err := g.db.City(addr)
	if err != nil {
		g.log.Debug(ctx, "geoip lookup failed", logger.String("ip", ip), logger.Error(err))
		return unknown
	}
	loc := unknown
	if name := record.Country.Names["en"]; name != "" {
		loc.Country = name
	} else if record.Country.IsoCode != "" {
		loc.Country = record.Country.IsoCode
	}
	if name := record.City.Names["en"]; name != "" {
		loc.City = name
	}
	return loc
}

// Close releases the database.
func (g *GeoIPResolver) Close() error {
	if g.db == nil {
		return nil
	}
	return g.db.Close()
}
