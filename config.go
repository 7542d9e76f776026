package httpvfs

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"

	"github.com/xet7/httpvfs/domain/model"
)

// configFetchTimeout bounds loading a config file over http
const configFetchTimeout = 10 * time.Second

// LoadConfig reads a SplitFileConfig from a local file or an http(s) URL.
// The format is guessed by extension: .yml/.yaml is yaml, .toml is toml and
// everything else is json, the format written by SplitFile.
//
// A relative urlPrefix or url in a config loaded over http is resolved against
// the config URL, so a split database can be served from any directory.
// The returned config is validated.
func LoadConfig(ctx context.Context, location string) (model.SplitFileConfig, error) {
	data, err := readConfig(ctx, location)
	if err != nil {
		return model.SplitFileConfig{}, err
	}
	cfg, err := ParseConfig(configFormat(location), data)
	if err != nil {
		return model.SplitFileConfig{}, fmt.Errorf("can't parse config %s: %w", location, err)
	}
	if isHTTP(location) {
		if cfg.URLPrefix, err = resolveRelative(location, cfg.URLPrefix); err != nil {
			return model.SplitFileConfig{}, err
		}
		if cfg.URL, err = resolveRelative(location, cfg.URL); err != nil {
			return model.SplitFileConfig{}, err
		}
	}
	if err := cfg.Validate(); err != nil {
		return model.SplitFileConfig{}, fmt.Errorf("invalid config %s: %w", location, err)
	}
	return cfg, nil
}

// ParseConfig decodes a config in format "json", "yaml" or "toml". Unknown
// fields are rejected.
func ParseConfig(format string, data []byte) (model.SplitFileConfig, error) {
	var cfg model.SplitFileConfig
	switch format {
	case "yaml":
		dec := yaml.NewDecoder(bytes.NewReader(data))
		dec.KnownFields(true) // strict mode, fail on unknown fields
		if err := dec.Decode(&cfg); err != nil {
			return cfg, fmt.Errorf("%w: %w", model.ErrConfig, err)
		}
	case "toml":
		dec := toml.NewDecoder(bytes.NewReader(data))
		dec.DisallowUnknownFields()
		if err := dec.Decode(&cfg); err != nil {
			return cfg, fmt.Errorf("%w: %w", model.ErrConfig, err)
		}
	case "json":
		dec := json.NewDecoder(bytes.NewReader(data))
		dec.DisallowUnknownFields()
		if err := dec.Decode(&cfg); err != nil {
			return cfg, fmt.Errorf("%w: %w", model.ErrConfig, err)
		}
	default:
		return cfg, fmt.Errorf("%w: unknown config format %q", model.ErrConfig, format)
	}
	return cfg, nil
}

// configFormat guesses the config format from the location extension
func configFormat(location string) string {
	if u, err := url.Parse(location); err == nil && isHTTP(location) {
		location = u.Path
	}
	switch strings.ToLower(path.Ext(location)) {
	case ".yml", ".yaml":
		return "yaml"
	case ".toml":
		return "toml"
	default:
		return "json"
	}
}

// readConfig returns the raw config from a file or url
func readConfig(ctx context.Context, location string) ([]byte, error) {
	if !isHTTP(location) {
		data, err := os.ReadFile(location) //nolint:gosec // user-provided path is the point
		if err != nil {
			return nil, fmt.Errorf("%w: can't open config file %s: %w", model.ErrConfig, location, err)
		}
		return data, nil
	}

	ctx, cancel := context.WithTimeout(ctx, configFetchTimeout)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, location, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: can't get config from %s: %w", model.ErrConfig, location, err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: can't get config from %s: %w", model.ErrTransport, location, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: can't get config from %s, status: %s", model.ErrTransport, location, resp.Status)
	}
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: can't read config from %s: %w", model.ErrTransport, location, err)
	}
	return data, nil
}

// resolveRelative resolves ref against base unless ref is empty or absolute
func resolveRelative(base, ref string) (string, error) {
	if ref == "" || isHTTP(ref) || strings.HasPrefix(ref, s3Scheme) {
		return ref, nil
	}
	b, err := url.Parse(base)
	if err != nil {
		return "", fmt.Errorf("%w: invalid config url %s: %w", model.ErrConfig, base, err)
	}
	r, err := url.Parse(ref)
	if err != nil {
		return "", fmt.Errorf("%w: invalid url %s: %w", model.ErrConfig, ref, err)
	}
	return b.ResolveReference(r).String(), nil
}

func isHTTP(location string) bool {
	return strings.HasPrefix(location, "http://") || strings.HasPrefix(location, "https://")
}
