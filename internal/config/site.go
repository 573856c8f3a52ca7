package config

// SiteConfig holds crawl settings for one host.
// Pointer fields distinguish "not set" from an explicit zero, since a depth
// of 0 is a meaningful limit.
type SiteConfig struct {
	// Cookie is an HTTP cookie to send when crawling this site.
	// Format: "name=value" or "name1=value1; name2=value2"
	Cookie string `yaml:"cookie,omitempty"`

	// Headers are custom HTTP headers to include in requests to this site.
	Headers map[string]string `yaml:"headers,omitempty"`

	// UserAgent overrides the User-Agent header.
	UserAgent string `yaml:"userAgent,omitempty"`

	// Depth overrides the crawl depth.
	Depth *int `yaml:"depth,omitempty"`

	// MaxPages overrides the page limit.
	MaxPages *int `yaml:"maxPages,omitempty"`

	// Concurrency overrides the number of concurrent fetches.
	Concurrency *int `yaml:"concurrency,omitempty"`

	// Mailto enables or disables reading addresses from mailto: links.
	Mailto *bool `yaml:"mailto,omitempty"`
}

// File represents the structure of the .mailspider configuration file.
type File struct {
	// Sites maps hosts (for example "www.example.com") to their settings.
	Sites map[string]SiteConfig `yaml:"sites,omitempty"`

	// Defaults apply to every site unless overridden.
	Defaults SiteConfig `yaml:"defaults,omitempty"`
}

// GetSiteConfig returns the configuration for a host, merging the
// site-specific entry over the defaults.
func (cf *File) GetSiteConfig(host string) SiteConfig {
	result := cf.Defaults
	if cf.Defaults.Headers != nil {
		result.Headers = make(map[string]string, len(cf.Defaults.Headers))
		for k, v := range cf.Defaults.Headers {
			result.Headers[k] = v
		}
	}

	siteConfig, ok := cf.Sites[host]
	if !ok {
		return result
	}

	if siteConfig.Cookie != "" {
		result.Cookie = siteConfig.Cookie
	}
	if siteConfig.UserAgent != "" {
		result.UserAgent = siteConfig.UserAgent
	}
	if siteConfig.Depth != nil {
		result.Depth = siteConfig.Depth
	}
	if siteConfig.MaxPages != nil {
		result.MaxPages = siteConfig.MaxPages
	}
	if siteConfig.Concurrency != nil {
		result.Concurrency = siteConfig.Concurrency
	}
	if siteConfig.Mailto != nil {
		result.Mailto = siteConfig.Mailto
	}
	if len(siteConfig.Headers) > 0 {
		if result.Headers == nil {
			result.Headers = make(map[string]string)
		}
		for k, v := range siteConfig.Headers {
			result.Headers[k] = v
		}
	}

	return result
}

// CrawlSettings is the effective configuration for crawling one host.
type CrawlSettings struct {
	MaxDepth    int
	MaxPages    int
	Concurrency int
	UserAgent   string
	Cookie      string
	Headers     map[string]string
	Mailto      bool
}

// CrawlSettings resolves the settings for host: values from the config file
// override the command line defaults held in c.
func (c *Config) CrawlSettings(host string) CrawlSettings {
	s := CrawlSettings{
		MaxDepth:    c.MaxDepth,
		MaxPages:    c.MaxPages,
		Concurrency: c.Concurrency,
		UserAgent:   c.UserAgent,
		Mailto:      c.Mailto,
	}
	if c.SiteConfigs == nil {
		return s
	}

	site := c.SiteConfigs.GetSiteConfig(host)
	s.Cookie = site.Cookie
	s.Headers = site.Headers
	if site.UserAgent != "" {
		s.UserAgent = site.UserAgent
	}
	if site.Depth != nil {
		s.MaxDepth = *site.Depth
	}
	if site.MaxPages != nil {
		s.MaxPages = *site.MaxPages
	}
	if site.Concurrency != nil {
		s.Concurrency = *site.Concurrency
	}
	if site.Mailto != nil {
		s.Mailto = *site.Mailto
	}
	return s
}
