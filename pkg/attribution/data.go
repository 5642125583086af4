package attribution

import (
	"encoding/json"
	"net/url"
	"strings"
)

// Payload keys. These names are shared with the remote service.
const (
	KeyOriginURL       = "origin_url"
	KeyRoutePath       = "route_path"
	KeyQueryParams     = "query_params"
	KeyIsFirstSession  = "is_first_session"
	KeyAttributionData = "attribution_data"

	KeyUTMSource          = "utm_source"
	KeyUTMMedium          = "utm_medium"
	KeyUTMCampaign        = "utm_campaign"
	KeyUTMTerm            = "utm_term"
	KeyUTMContent         = "utm_content"
	KeyReferrer           = "referrer"
	KeyCampaignIdentifier = "campaign_identifier"
)

// marketingKeys maps inbound query keys to attribution_data keys.
// Any other query key is never surfaced as marketing data.
var marketingKeys = []struct {
	query string
	field string
}{
	{"utm_source", KeyUTMSource},
	{"utm_medium", KeyUTMMedium},
	{"utm_campaign", KeyUTMCampaign},
	{"utm_term", KeyUTMTerm},
	{"utm_content", KeyUTMContent},
	{"ref", KeyReferrer},
	{"campaign_id", KeyCampaignIdentifier},
}

// QueryItem is one query parameter. Value is nil for a bare key ("?flag").
type QueryItem struct {
	Name  string
	Value *string
}

// ParseInput carries everything the parser needs.
type ParseInput struct {
	URL            *url.URL
	IsFirstSession bool

	// QueryItems, when non-nil, replace the items read from URL.
	QueryItems []QueryItem
}

// AttributionData is the immutable result of parsing an inbound link.
type AttributionData struct {
	originURL      *string
	routePath      *string
	isFirstSession bool
	query          map[string]*string
	marketing      map[string]string
	raw            map[string]any
}

// Parse builds AttributionData. A nil URL is valid: the result carries only
// the first-session flag.
func Parse(in ParseInput) *AttributionData {
	d := &AttributionData{
		isFirstSession: in.IsFirstSession,
		query:          make(map[string]*string),
		marketing:      make(map[string]string),
		raw:            map[string]any{KeyIsFirstSession: in.IsFirstSession},
	}

	if in.URL == nil {
		return d
	}

	origin := in.URL.String()
	path := in.URL.Path
	d.originURL = &origin
	d.routePath = &path

	items := in.QueryItems
	if items == nil {
		items = SplitQuery(in.URL.RawQuery)
	}
	for _, item := range items {
		d.query[item.Name] = item.Value
	}

	for _, k := range marketingKeys {
		if v := d.query[k.query]; v != nil {
			d.marketing[k.field] = *v
		}
	}

	queryParams := make(map[string]any, len(d.query))
	for k, v := range d.query {
		if v == nil {
			queryParams[k] = nil
			continue
		}
		queryParams[k] = *v
	}

	d.raw[KeyOriginURL] = origin
	d.raw[KeyRoutePath] = path
	d.raw[KeyQueryParams] = queryParams
	if len(d.marketing) > 0 {
		marketing := make(map[string]any, len(d.marketing))
		for k, v := range d.marketing {
			marketing[k] = v
		}
		d.raw[KeyAttributionData] = marketing
	}

	return d
}

// ParseURL parses raw and builds AttributionData. An empty or malformed URL
// yields a record without URL-derived fields.
func ParseURL(raw string, isFirstSession bool) *AttributionData {
	var u *url.URL
	if raw != "" {
		if parsed, err := url.Parse(raw); err == nil {
			u = parsed
		}
	}
	return Parse(ParseInput{URL: u, IsFirstSession: isFirstSession})
}

// SplitQuery decodes a raw query string keeping bare keys distinct from
// empty values. Repeated keys keep every occurrence; Parse keeps the last.
func SplitQuery(rawQuery string) []QueryItem {
	if rawQuery == "" {
		return nil
	}

	var items []QueryItem
	for _, part := range strings.Split(rawQuery, "&") {
		if part == "" {
			continue
		}
		name, value, hasValue := strings.Cut(part, "=")
		item := QueryItem{Name: unescape(name)}
		if hasValue {
			v := unescape(value)
			item.Value = &v
		}
		items = append(items, item)
	}
	return items
}

func unescape(s string) string {
	if u, err := url.QueryUnescape(s); err == nil {
		return u
	}
	return s
}

// OriginURL returns the full inbound URL.
func (d *AttributionData) OriginURL() (string, bool) { return deref(d.originURL) }

// RoutePath returns the URL path.
func (d *AttributionData) RoutePath() (string, bool) { return deref(d.routePath) }

// IsFirstSession reports the first-session flag captured at parse time.
func (d *AttributionData) IsFirstSession() bool { return d.isFirstSession }

// QueryParameters returns a copy of the query map. Bare keys map to nil.
func (d *AttributionData) QueryParameters() map[string]*string {
	out := make(map[string]*string, len(d.query))
	for k, v := range d.query {
		if v == nil {
			out[k] = nil
			continue
		}
		val := *v
		out[k] = &val
	}
	return out
}

// QueryValue returns the value of a query parameter. ok is false for
// missing and bare keys.
func (d *AttributionData) QueryValue(name string) (string, bool) {
	return deref(d.query[name])
}

func (d *AttributionData) Source() (string, bool)   { return d.field(KeyUTMSource) }
func (d *AttributionData) Medium() (string, bool)   { return d.field(KeyUTMMedium) }
func (d *AttributionData) Campaign() (string, bool) { return d.field(KeyUTMCampaign) }
func (d *AttributionData) Term() (string, bool)     { return d.field(KeyUTMTerm) }
func (d *AttributionData) Content() (string, bool)  { return d.field(KeyUTMContent) }
func (d *AttributionData) Referrer() (string, bool) { return d.field(KeyReferrer) }

// CampaignIdentifier returns the campaign_id query value.
func (d *AttributionData) CampaignIdentifier() (string, bool) {
	return d.field(KeyCampaignIdentifier)
}

// HasMarketingData reports whether source, medium or campaign is set.
func (d *AttributionData) HasMarketingData() bool {
	return d.has(KeyUTMSource) || d.has(KeyUTMMedium) || d.has(KeyUTMCampaign)
}

// HasUTMParameters extends HasMarketingData with term and content.
func (d *AttributionData) HasUTMParameters() bool {
	return d.HasMarketingData() || d.has(KeyUTMTerm) || d.has(KeyUTMContent)
}

// Matches reports whether the route path equals route.
func (d *AttributionData) Matches(route string) bool {
	path, ok := d.RoutePath()
	return ok && path == route
}

// HasRoute reports whether the route path starts with prefix.
func (d *AttributionData) HasRoute(prefix string) bool {
	path, ok := d.RoutePath()
	return ok && strings.HasPrefix(path, prefix)
}

// ExtractID returns the path segment following prefix, e.g. "123" for
// prefix "/product/" on "/product/123".
func (d *AttributionData) ExtractID(prefix string) (string, bool) {
	path, ok := d.RoutePath()
	if !ok || !strings.HasPrefix(path, prefix) {
		return "", false
	}
	id, _, _ := strings.Cut(path[len(prefix):], "/")
	if id == "" {
		return "", false
	}
	return id, true
}

// RawData returns a copy of the assembled payload.
func (d *AttributionData) RawData() map[string]any {
	return copyPayload(d.raw)
}

// Custom looks up a top-level payload key, falling back to the query.
func (d *AttributionData) Custom(key string) (any, bool) {
	if v, ok := d.raw[key]; ok {
		return v, true
	}
	if v, ok := d.query[key]; ok && v != nil {
		return *v, true
	}
	return nil, false
}

// MarshalJSON encodes the payload with its wire field names.
func (d *AttributionData) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.raw)
}

func (d *AttributionData) field(key string) (string, bool) {
	v, ok := d.marketing[key]
	return v, ok
}

func (d *AttributionData) has(key string) bool {
	_, ok := d.marketing[key]
	return ok
}

func deref(s *string) (string, bool) {
	if s == nil {
		return "", false
	}
	return *s, true
}

func copyPayload(src map[string]any) map[string]any {
	dst := make(map[string]any, len(src))
	for k, v := range src {
		if nested, ok := v.(map[string]any); ok {
			v = copyPayload(nested)
		}
		dst[k] = v
	}
	return dst
}
