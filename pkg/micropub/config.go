package micropub

import (
	"golang.org/x/exp/slices"
)

// SyndicationTarget is an external service a post can be copied to
type SyndicationTarget struct {
	UID  string `json:"uid" yaml:"uid"`
	Name string `json:"name" yaml:"name"`
}

// PostTypeInfo advertises a post type the endpoint accepts
type PostTypeInfo struct {
	Type       string   `json:"type" yaml:"type"`
	Name       string   `json:"name" yaml:"name"`
	Properties []string `json:"properties,omitempty" yaml:"properties"`
}

// EndpointConfig is what the endpoint reports for q=config
type EndpointConfig struct {
	MediaEndpoint string              `json:"media-endpoint,omitempty" yaml:"media-endpoint"`
	SyndicateTo   []SyndicationTarget `json:"syndicate-to,omitempty" yaml:"syndicate-to"`
	Commands      []string            `json:"mp,omitempty" yaml:"mp"`
	Queries       []string            `json:"q,omitempty" yaml:"q"`
	PostTypes     []PostTypeInfo      `json:"post-types,omitempty" yaml:"post-types"`
	Categories    []string            `json:"categories,omitempty" yaml:"categories"`
}

// DefaultConfig returns the commands and queries every endpoint supports
func DefaultConfig() EndpointConfig {
	return EndpointConfig{
		Commands: []string{"slug", "syndicate-to"},
		Queries:  []string{"config", "syndicate-to", "category", "post-types"},
	}
}

// MergeConfig lays host over the defaults. Set host keys replace the
// default value; the mp and q lists are unioned with the defaults instead.
func MergeConfig(host EndpointConfig) EndpointConfig {
	merged := DefaultConfig()

	if host.MediaEndpoint != "" {
		merged.MediaEndpoint = host.MediaEndpoint
	}
	if len(host.SyndicateTo) > 0 {
		merged.SyndicateTo = append([]SyndicationTarget(nil), host.SyndicateTo...)
	}
	if len(host.PostTypes) > 0 {
		merged.PostTypes = append([]PostTypeInfo(nil), host.PostTypes...)
	}
	if len(host.Categories) > 0 {
		merged.Categories = append([]string(nil), host.Categories...)
	}
	merged.Commands = union(merged.Commands, host.Commands)
	merged.Queries = union(merged.Queries, host.Queries)

	return merged
}

func union(base, extra []string) []string {
	out := append([]string(nil), base...)
	for _, v := range extra {
		if v != "" && !slices.Contains(out, v) {
			out = append(out, v)
		}
	}
	return out
}

// ResolveQuery merges host over the defaults and answers selector q.
// The boolean is false when the selector is not supported or its key is unset.
func ResolveQuery(host EndpointConfig, q string) (interface{}, bool) {
	cfg := MergeConfig(host)

	switch q {
	case "config":
		return cfg, true
	case "syndicate-to":
		if len(cfg.SyndicateTo) > 0 {
			return map[string]interface{}{"syndicate-to": cfg.SyndicateTo}, true
		}
	case "category":
		if len(cfg.Categories) > 0 {
			return map[string]interface{}{"categories": cfg.Categories}, true
		}
	case "post-types":
		if len(cfg.PostTypes) > 0 {
			return map[string]interface{}{"post-types": cfg.PostTypes}, true
		}
	}
	return nil, false
}
