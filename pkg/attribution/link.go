package attribution

import "encoding/json"

// Link creation wire keys.
const (
	ParamPath               = "path"
	ParamName               = "name"
	ParamDescription        = "description"
	ParamPreviewTitle       = "previewTitle"
	ParamPreviewDescription = "previewDescription"
	ParamPreviewImageURL    = "previewImageUrl"
	ParamUTMSource          = "utmSource"
	ParamUTMMedium          = "utmMedium"
	ParamUTMCampaign        = "utmCampaign"
	ParamUTMTerm            = "utmTerm"
	ParamUTMContent         = "utmContent"
)

// LinkConfiguration collects everything needed to create an attributed link.
// Setters return the receiver so calls can be chained.
type LinkConfiguration struct {
	destinationPath string
	linkIdentifier  string

	description       *string
	socialTitle       *string
	socialDescription *string
	socialImageURL    *string

	source   *string
	medium   *string
	campaign *string
	term     *string
	content  *string

	custom map[string]any
}

// NewLinkConfiguration starts a configuration for the in-app destination path
// and a link identifier.
func NewLinkConfiguration(destinationPath, linkIdentifier string) *LinkConfiguration {
	return &LinkConfiguration{
		destinationPath: destinationPath,
		linkIdentifier:  linkIdentifier,
		custom:          make(map[string]any),
	}
}

func (c *LinkConfiguration) DestinationPath() string { return c.destinationPath }
func (c *LinkConfiguration) LinkIdentifier() string  { return c.linkIdentifier }

func (c *LinkConfiguration) WithDescription(v string) *LinkConfiguration {
	c.description = &v
	return c
}

func (c *LinkConfiguration) WithSocialTitle(v string) *LinkConfiguration {
	c.socialTitle = &v
	return c
}

func (c *LinkConfiguration) WithSocialDescription(v string) *LinkConfiguration {
	c.socialDescription = &v
	return c
}

func (c *LinkConfiguration) WithSocialImageURL(v string) *LinkConfiguration {
	c.socialImageURL = &v
	return c
}

func (c *LinkConfiguration) WithMarketingSource(v string) *LinkConfiguration {
	c.source = &v
	return c
}

func (c *LinkConfiguration) WithMarketingMedium(v string) *LinkConfiguration {
	c.medium = &v
	return c
}

func (c *LinkConfiguration) WithMarketingCampaign(v string) *LinkConfiguration {
	c.campaign = &v
	return c
}

func (c *LinkConfiguration) WithMarketingTerm(v string) *LinkConfiguration {
	c.term = &v
	return c
}

func (c *LinkConfiguration) WithMarketingContent(v string) *LinkConfiguration {
	c.content = &v
	return c
}

// SetParameter adds a custom parameter. Later writes to the same key win,
// and custom keys override the named fields on serialization.
func (c *LinkConfiguration) SetParameter(key string, value any) *LinkConfiguration {
	if c.custom == nil {
		c.custom = make(map[string]any)
	}
	c.custom[key] = value
	return c
}

// BuildParameters returns the transport parameter map. ok is false when the
// result cannot be encoded, e.g. a custom value is a channel or NaN.
func (c *LinkConfiguration) BuildParameters() (map[string]any, bool) {
	params := map[string]any{
		ParamPath: c.destinationPath,
		ParamName: c.linkIdentifier,
	}

	optional := []struct {
		key   string
		value *string
	}{
		{ParamDescription, c.description},
		{ParamPreviewTitle, c.socialTitle},
		{ParamPreviewDescription, c.socialDescription},
		{ParamPreviewImageURL, c.socialImageURL},
		{ParamUTMSource, c.source},
		{ParamUTMMedium, c.medium},
		{ParamUTMCampaign, c.campaign},
		{ParamUTMTerm, c.term},
		{ParamUTMContent, c.content},
	}
	for _, field := range optional {
		if field.value != nil {
			params[field.key] = *field.value
		}
	}

	for k, v := range c.custom {
		params[k] = v
	}

	if _, err := json.Marshal(params); err != nil {
		return nil, false
	}
	return params, true
}
