package attribution

import (
	"encoding/json"
	"net/url"
	"reflect"
	"testing"
)

func mustParseURL(t *testing.T, raw string) *url.URL {
	t.Helper()
	u, err := url.Parse(raw)
	if err != nil {
		t.Fatalf("url.Parse(%q): %v", raw, err)
	}
	return u
}

func TestParse_MarketingLink(t *testing.T) {
	t.Parallel()

	data := ParseURL("https://x.test/product?utm_source=email&utm_campaign=summer", false)

	if path, _ := data.RoutePath(); path != "/product" {
		t.Errorf("RoutePath = %q, want /product", path)
	}
	if source, ok := data.Source(); !ok || source != "email" {
		t.Errorf("Source = %q (%v), want email", source, ok)
	}
	if campaign, ok := data.Campaign(); !ok || campaign != "summer" {
		t.Errorf("Campaign = %q (%v), want summer", campaign, ok)
	}
	if _, ok := data.Medium(); ok {
		t.Error("Medium should be unset")
	}
	if !data.HasMarketingData() {
		t.Error("HasMarketingData should be true")
	}
	if !data.HasUTMParameters() {
		t.Error("HasUTMParameters should be true")
	}
}

func TestParse_Idempotent(t *testing.T) {
	t.Parallel()

	raw := "https://x.test/p/1?utm_source=a&ref=friend&flag&x="
	for _, first := range []bool{true, false} {
		a := ParseURL(raw, first)
		b := ParseURL(raw, first)
		if !reflect.DeepEqual(a, b) {
			t.Errorf("parse not idempotent for first=%v:\n%#v\n%#v", first, a, b)
		}
	}
}

func TestParse_MarketingGating(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		raw  string
	}{
		{"no query", "https://x.test/a"},
		{"unknown keys", "https://x.test/a?foo=bar&gclid=123"},
		{"utm lookalike", "https://x.test/a?utm_sauce=x&UTM_SOURCE=y"},
		{"bare utm key", "https://x.test/a?utm_source"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			data := ParseURL(tt.raw, true)
			if data.HasMarketingData() {
				t.Error("HasMarketingData should be false")
			}
			if data.HasUTMParameters() {
				t.Error("HasUTMParameters should be false")
			}
			if _, ok := data.RawData()[KeyAttributionData]; ok {
				t.Error("attribution_data should be absent")
			}
		})
	}
}

func TestParse_TermContentOnly(t *testing.T) {
	t.Parallel()

	data := ParseURL("https://x.test/?utm_term=shoes&utm_content=banner", false)

	if data.HasMarketingData() {
		t.Error("term/content alone should not count as marketing data")
	}
	if !data.HasUTMParameters() {
		t.Error("term/content should count as UTM parameters")
	}
}

func TestParse_ReferrerAndCampaignID(t *testing.T) {
	t.Parallel()

	data := ParseURL("https://x.test/?ref=alice&campaign_id=c-42", false)

	if ref, ok := data.Referrer(); !ok || ref != "alice" {
		t.Errorf("Referrer = %q (%v), want alice", ref, ok)
	}
	if id, ok := data.CampaignIdentifier(); !ok || id != "c-42" {
		t.Errorf("CampaignIdentifier = %q (%v), want c-42", id, ok)
	}
	if data.HasMarketingData() || data.HasUTMParameters() {
		t.Error("referrer/campaign id should not count as UTM data")
	}

	marketing, ok := data.RawData()[KeyAttributionData].(map[string]any)
	if !ok {
		t.Fatal("attribution_data should be present")
	}
	want := map[string]any{KeyReferrer: "alice", KeyCampaignIdentifier: "c-42"}
	if !reflect.DeepEqual(marketing, want) {
		t.Errorf("attribution_data = %v, want %v", marketing, want)
	}
}

func TestParse_BareQueryKey(t *testing.T) {
	t.Parallel()

	data := ParseURL("https://x.test/p?flag", false)

	params := data.QueryParameters()
	v, ok := params["flag"]
	if !ok {
		t.Fatal("flag should be present")
	}
	if v != nil {
		t.Errorf("flag = %q, want nil", *v)
	}
	if len(params) != 1 {
		t.Errorf("QueryParameters = %v, want exactly flag", params)
	}
	if _, ok := data.QueryValue("flag"); ok {
		t.Error("QueryValue should report bare key as unset")
	}
}

func TestParse_EmptyValueIsNotBare(t *testing.T) {
	t.Parallel()

	data := ParseURL("https://x.test/p?flag=", false)

	v := data.QueryParameters()["flag"]
	if v == nil || *v != "" {
		t.Errorf("flag = %v, want empty string", v)
	}
}

func TestParse_NoURL(t *testing.T) {
	t.Parallel()

	data := Parse(ParseInput{IsFirstSession: true})

	if !data.IsFirstSession() {
		t.Error("IsFirstSession should be populated")
	}
	if _, ok := data.OriginURL(); ok {
		t.Error("OriginURL should be unset")
	}
	if _, ok := data.RoutePath(); ok {
		t.Error("RoutePath should be unset")
	}
	if len(data.QueryParameters()) != 0 {
		t.Error("QueryParameters should be empty")
	}

	raw := data.RawData()
	if len(raw) != 1 || raw[KeyIsFirstSession] != true {
		t.Errorf("RawData = %v, want only is_first_session", raw)
	}
}

func TestParse_MalformedURLIsNoURL(t *testing.T) {
	t.Parallel()

	data := ParseURL("http://[::1", true)
	if _, ok := data.OriginURL(); ok {
		t.Error("malformed URL should produce no origin")
	}
}

func TestParse_ProvidedQueryItemsWin(t *testing.T) {
	t.Parallel()

	source := "push"
	data := Parse(ParseInput{
		URL:        mustParseURL(t, "https://x.test/a?utm_source=email"),
		QueryItems: []QueryItem{{Name: "utm_source", Value: &source}},
	})

	if got, _ := data.Source(); got != "push" {
		t.Errorf("Source = %q, want push", got)
	}
}

func TestParse_RepeatedKeyLastWins(t *testing.T) {
	t.Parallel()

	data := ParseURL("https://x.test/?utm_source=a&utm_source=b", false)
	if got, _ := data.Source(); got != "b" {
		t.Errorf("Source = %q, want b", got)
	}
}

func TestParse_DecodesEscapes(t *testing.T) {
	t.Parallel()

	data := ParseURL("https://x.test/?utm_campaign=summer%20sale&na%6De=v+1", false)

	if got, _ := data.Campaign(); got != "summer sale" {
		t.Errorf("Campaign = %q, want %q", got, "summer sale")
	}
	if got, _ := data.QueryValue("name"); got != "v 1" {
		t.Errorf("name = %q, want %q", got, "v 1")
	}
}

func TestParse_CustomScheme(t *testing.T) {
	t.Parallel()

	data := ParseURL("myapp://open/product/9?ref=qr", false)

	if path, _ := data.RoutePath(); path != "/product/9" {
		t.Errorf("RoutePath = %q, want /product/9", path)
	}
	if origin, _ := data.OriginURL(); origin != "myapp://open/product/9?ref=qr" {
		t.Errorf("OriginURL = %q", origin)
	}
}

func TestAttributionData_RouteHelpers(t *testing.T) {
	t.Parallel()

	product := ParseURL("https://x.test/product/123", false)
	other := ParseURL("https://x.test/other/123", false)
	none := Parse(ParseInput{})

	if id, ok := product.ExtractID("/product/"); !ok || id != "123" {
		t.Errorf("ExtractID = %q (%v), want 123", id, ok)
	}
	if _, ok := other.ExtractID("/product/"); ok {
		t.Error("ExtractID on non-matching route should be unset")
	}
	if _, ok := none.ExtractID("/product/"); ok {
		t.Error("ExtractID without route should be unset")
	}
	if _, ok := ParseURL("https://x.test/product/", false).ExtractID("/product/"); ok {
		t.Error("ExtractID with empty remainder should be unset")
	}
	if id, _ := ParseURL("https://x.test/product/7/reviews", false).ExtractID("/product/"); id != "7" {
		t.Errorf("ExtractID = %q, want first segment 7", id)
	}

	if !product.Matches("/product/123") || product.Matches("/product") {
		t.Error("Matches should compare the whole route")
	}
	if !product.HasRoute("/product") || product.HasRoute("/other") {
		t.Error("HasRoute should compare prefixes")
	}
	if none.Matches("") || none.HasRoute("") {
		t.Error("route helpers should be false without a route")
	}
}

func TestAttributionData_RawDataKeys(t *testing.T) {
	t.Parallel()

	data := ParseURL("https://x.test/offer?utm_source=sms&flag", true)
	raw := data.RawData()

	if raw[KeyOriginURL] != "https://x.test/offer?utm_source=sms&flag" {
		t.Errorf("origin_url = %v", raw[KeyOriginURL])
	}
	if raw[KeyRoutePath] != "/offer" {
		t.Errorf("route_path = %v", raw[KeyRoutePath])
	}
	if raw[KeyIsFirstSession] != true {
		t.Errorf("is_first_session = %v", raw[KeyIsFirstSession])
	}
	query, ok := raw[KeyQueryParams].(map[string]any)
	if !ok {
		t.Fatalf("query_params has type %T", raw[KeyQueryParams])
	}
	if v, ok := query["flag"]; !ok || v != nil {
		t.Errorf("query_params[flag] = %v (%v), want nil", v, ok)
	}

	// Mutating the copy must not change the record.
	raw[KeyRoutePath] = "/changed"
	if got := data.RawData()[KeyRoutePath]; got != "/offer" {
		t.Errorf("RawData copy leaked mutation: %v", got)
	}
}

func TestAttributionData_QueryParametersIsCopy(t *testing.T) {
	t.Parallel()

	data := ParseURL("https://x.test/?a=1", false)
	params := data.QueryParameters()
	*params["a"] = "2"

	if got, _ := data.QueryValue("a"); got != "1" {
		t.Errorf("QueryParameters copy leaked mutation: %q", got)
	}
}

func TestAttributionData_Custom(t *testing.T) {
	t.Parallel()

	data := ParseURL("https://x.test/?promo=xyz", false)

	if v, ok := data.Custom(KeyRoutePath); !ok || v != "/" {
		t.Errorf("Custom(route_path) = %v (%v)", v, ok)
	}
	if v, ok := data.Custom("promo"); !ok || v != "xyz" {
		t.Errorf("Custom(promo) = %v (%v)", v, ok)
	}
	if _, ok := data.Custom("missing"); ok {
		t.Error("Custom(missing) should be unset")
	}
}

func TestAttributionData_MarshalJSON(t *testing.T) {
	t.Parallel()

	data := ParseURL("https://x.test/offer?utm_medium=social", false)

	encoded, err := json.Marshal(data)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}

	var decoded map[string]any
	if err := json.Unmarshal(encoded, &decoded); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	for _, key := range []string{KeyOriginURL, KeyRoutePath, KeyQueryParams, KeyIsFirstSession, KeyAttributionData} {
		if _, ok := decoded[key]; !ok {
			t.Errorf("missing key %q in %s", key, encoded)
		}
	}
	nested := decoded[KeyAttributionData].(map[string]any)
	if nested[KeyUTMMedium] != "social" {
		t.Errorf("attribution_data = %v", nested)
	}
}

func TestSplitQuery(t *testing.T) {
	t.Parallel()

	items := SplitQuery("a=1&&b&c=&d=x%3Dy")
	if len(items) != 4 {
		t.Fatalf("got %d items, want 4: %+v", len(items), items)
	}

	if items[0].Name != "a" || items[0].Value == nil || *items[0].Value != "1" {
		t.Errorf("items[0] = %+v", items[0])
	}
	if items[1].Name != "b" || items[1].Value != nil {
		t.Errorf("items[1] = %+v, want bare", items[1])
	}
	if items[2].Name != "c" || items[2].Value == nil || *items[2].Value != "" {
		t.Errorf("items[2] = %+v, want empty value", items[2])
	}
	if items[3].Name != "d" || *items[3].Value != "x=y" {
		t.Errorf("items[3] = %+v", items[3])
	}

	if SplitQuery("") != nil {
		t.Error("empty query should produce no items")
	}
}
