package config

import (
	"context"
	"encoding/json"
	"path/filepath"
	"reflect"
	"strings"

	"github.com/a8m/envsubst"
	"github.com/go-viper/mapstructure/v2"
	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"

	"go.viam.com/motionkit/logging"
)

// Read reads a config from the given file. Environment variables in the file are expanded first.
func Read(ctx context.Context, filePath string, logger logging.Logger) (*Config, error) {
	buf, err := envsubst.ReadFile(filePath)
	if err != nil {
		return nil, err
	}
	cfg, err := FromBytes(ctx, filePath, buf, logger)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to read config %q", filePath)
	}
	return cfg, nil
}

// FromBytes decodes a config over the defaults. The format is picked from the extension of originalPath: YAML
// for .yaml and .yml, JSON otherwise.
func FromBytes(ctx context.Context, originalPath string, data []byte, logger logging.Logger) (*Config, error) {
	var attrs map[string]interface{}
	switch strings.ToLower(filepath.Ext(originalPath)) {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, &attrs); err != nil {
			return nil, errors.Wrap(err, "failed to decode config from yaml")
		}
	default:
		if err := json.Unmarshal(data, &attrs); err != nil {
			return nil, errors.Wrap(err, "failed to decode config from json")
		}
	}

	cfg := NewDefault()
	cfg.ConfigFilePath = originalPath
	var md mapstructure.Metadata
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		TagName:          "json",
		Result:           cfg,
		Metadata:         &md,
		WeaklyTypedInput: true,
		DecodeHook: mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			pairHook,
		),
	})
	if err != nil {
		return nil, err
	}
	if err := decoder.Decode(attrs); err != nil {
		return nil, errors.Wrap(err, "failed to decode config")
	}
	for _, key := range md.Unused {
		logger.Warnw("unused config key", "key", key, "file", originalPath)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	logger.CDebugf(ctx, "read config %q", originalPath)
	return cfg, nil
}

// pairHook decodes robot pairs written as two element lists into [2]string.
func pairHook(from, to reflect.Type, data interface{}) (interface{}, error) {
	if to != reflect.TypeOf([2]string{}) {
		return data, nil
	}
	list, ok := data.([]interface{})
	if !ok {
		return data, nil
	}
	if len(list) != 2 {
		return nil, errors.Errorf("a robot pair needs exactly two link sets, got %d", len(list))
	}
	var pair [2]string
	for i, v := range list {
		s, ok := v.(string)
		if !ok {
			return nil, errors.Errorf("robot pair entry %v is not a string", v)
		}
		pair[i] = s
	}
	return pair, nil
}
