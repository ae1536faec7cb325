package places

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/patrickmn/go-cache"
	"github.com/spf13/cast"

	"github.com/jwalitptl/deepmed-api/internal/config"
	"github.com/jwalitptl/deepmed-api/internal/model"
	"github.com/jwalitptl/deepmed-api/pkg/errors"
	"github.com/jwalitptl/deepmed-api/pkg/logger"
	"github.com/jwalitptl/deepmed-api/pkg/metrics"
)

const (
	DefaultRadius = 3000
	MaxRadius     = 15000
)

const (
	MsgMissingCoordinates = "Missing lat or lng in request body"
	MsgInvalidCoordinates = "Invalid lat or lng"
)

type overpassResponse struct {
	Elements []element `json:"elements"`
}

type element struct {
	ID   int64             `json:"id"`
	Lat  float64           `json:"lat"`
	Lon  float64           `json:"lon"`
	Tags map[string]string `json:"tags"`
}

// Service looks up hospitals and pharmacies through the Overpass API.
type Service struct {
	http    *resty.Client
	url     string
	cache   *cache.Cache
	logger  *logger.Logger
	metrics *metrics.Metrics
}

func NewService(cfg config.PlacesConfig, log *logger.Logger, m *metrics.Metrics) *Service {
	if log == nil {
		log = logger.Nop()
	}
	if m == nil {
		m = metrics.NewNop()
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	s := &Service{
		http:    resty.New().SetTimeout(timeout),
		url:     cfg.OverpassURL,
		logger:  log,
		metrics: m,
	}
	if cfg.CacheTTL > 0 {
		s.cache = cache.New(cfg.CacheTTL, 2*cfg.CacheTTL)
	}
	return s
}

// ParseRequest validates coordinates and normalizes the radius. Numbers and
// numeric strings are both accepted.
func ParseRequest(req model.NearbyRequest) (model.NearbyQuery, error) {
	if req.Lat == nil || req.Lng == nil {
		return model.NearbyQuery{}, errors.BadRequest(MsgMissingCoordinates, nil)
	}

	lat, latErr := toFinite(req.Lat)
	lng, lngErr := toFinite(req.Lng)
	if latErr != nil || lngErr != nil {
		return model.NearbyQuery{}, errors.BadRequest(MsgInvalidCoordinates, nil)
	}

	return model.NearbyQuery{Lat: lat, Lng: lng, Radius: NormalizeRadius(req.Radius)}, nil
}

// NormalizeRadius defaults a missing, zero, non-numeric or negative radius and
// caps large ones.
func NormalizeRadius(v interface{}) float64 {
	r, err := toFinite(v)
	if err != nil || r <= 0 {
		return DefaultRadius
	}
	if r > MaxRadius {
		return MaxRadius
	}
	return r
}

func toFinite(v interface{}) (float64, error) {
	if s, ok := v.(string); ok {
		v = strings.TrimSpace(s)
	}
	f, err := cast.ToFloat64E(v)
	if err != nil {
		return 0, err
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, fmt.Errorf("not a finite number: %v", v)
	}
	return f, nil
}

// BuildQuery renders the Overpass QL for hospital and pharmacy nodes around
// the point.
func BuildQuery(q model.NearbyQuery) string {
	around := fmt.Sprintf("around:%s,%s,%s", formatFloat(q.Radius), formatFloat(q.Lat), formatFloat(q.Lng))
	return fmt.Sprintf("[out:json][timeout:25];(node(%s)[amenity=hospital];node(%s)[amenity=pharmacy];);out body;", around, around)
}

func formatFloat(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}

// Nearby runs the lookup, serving repeated queries from cache.
func (s *Service) Nearby(ctx context.Context, q model.NearbyQuery) (*model.NearbyResponse, error) {
	query := BuildQuery(q)

	if s.cache != nil {
		if cached, ok := s.cache.Get(query); ok {
			s.metrics.PlacesCacheHits.Inc()
			return cached.(*model.NearbyResponse), nil
		}
	}

	resp, err := s.http.R().
		SetContext(ctx).
		SetHeader("Content-Type", "text/plain").
		SetBody(query).
		Post(s.url)
	if err != nil {
		return nil, s.upstreamError(ctx, fmt.Errorf("overpass request failed: %w", err))
	}
	if resp.IsError() {
		return nil, s.upstreamError(ctx, fmt.Errorf("overpass returned status %d", resp.StatusCode()))
	}

	var body overpassResponse
	if err := json.Unmarshal(resp.Body(), &body); err != nil {
		return nil, s.upstreamError(ctx, fmt.Errorf("failed to decode overpass response: %w", err))
	}

	places := Reshape(body.Elements)
	out := &model.NearbyResponse{Count: len(places), Places: places}

	s.metrics.PlacesLookups.WithLabelValues("ok").Inc()
	if s.cache != nil {
		s.cache.SetDefault(query, out)
	}
	return out, nil
}

func (s *Service) upstreamError(ctx context.Context, err error) error {
	s.metrics.PlacesLookups.WithLabelValues("error").Inc()
	s.logger.WithContext(ctx).Error(err, "Overpass lookup failed")
	return errors.Internal(err)
}

// Reshape maps Overpass elements onto places.
func Reshape(elements []element) []model.Place {
	places := make([]model.Place, 0, len(elements))
	for _, el := range elements {
		tags := el.Tags
		if tags == nil {
			tags = map[string]string{}
		}
		places = append(places, model.Place{
			ID:      el.ID,
			Name:    firstNonEmpty(tags["name"], tags["official_name"], "Unnamed"),
			Address: address(tags),
			Type:    placeType(tags["amenity"]),
			Lat:     el.Lat,
			Lng:     el.Lon,
			RawTags: tags,
		})
	}
	return places
}

func address(tags map[string]string) string {
	if full := tags["addr:full"]; full != "" {
		return full
	}
	var parts []string
	for _, key := range []string{"addr:housenumber", "addr:street", "addr:city", "addr:postcode"} {
		if v := tags[key]; v != "" {
			parts = append(parts, v)
		}
	}
	return firstNonEmpty(strings.Join(parts, ", "), tags["operator"])
}

// placeType keeps hospital and pharmacy as-is and passes other amenities
// through.
func placeType(amenity string) string {
	if amenity == "" {
		return model.PlaceUnknown
	}
	return amenity
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
