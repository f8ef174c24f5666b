package importer

import (
	"encoding/json"
	"fmt"
	"path/filepath"
	"reflect"
	"strings"
	"time"

	"github.com/araddon/dateparse"
	"github.com/iancoleman/strcase"
	"github.com/mitchellh/mapstructure"
	"github.com/spf13/afero"
	"gopkg.in/yaml.v3"
)

// keyAliases maps field names found in older backups to Record fields.
var keyAliases = map[string]string{
	"nid":       "id",
	"public_id": "id",
	"name":      "title",
	"content":   "body",
	"text":      "body",
	"created":   "created_at",
	"date":      "created_at",
}

// envelopeKeys are the top-level keys a backup may nest its records under.
var envelopeKeys = []string{"records", "items", "data"}

// LoadFile reads the records of a JSON or YAML backup. The format is chosen
// by extension. Records may be a top-level list or nested under one of the
// envelope keys.
func LoadFile(fs afero.Fs, path string) ([]Record, error) {
	data, err := afero.ReadFile(fs, path)
	if err != nil {
		return nil, fmt.Errorf("error reading backup: %w", err)
	}

	var raw interface{}
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".json":
		err = json.Unmarshal(data, &raw)
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, &raw)
	default:
		return nil, fmt.Errorf("unsupported backup format %q (supported: .json, .yaml, .yml)", ext)
	}
	if err != nil {
		return nil, fmt.Errorf("error parsing backup %s: %w", path, err)
	}

	return DecodeRecords(raw)
}

// DecodeRecords converts a decoded backup document into records. Field
// names are matched loosely and values are converted where they can be, so
// ids may be strings and timestamps may be in most common layouts.
func DecodeRecords(raw interface{}) ([]Record, error) {
	list, err := unwrap(raw)
	if err != nil {
		return nil, err
	}

	records := make([]Record, 0, len(list))
	for i, entry := range list {
		fields, ok := entry.(map[string]interface{})
		if !ok {
			return nil, fmt.Errorf("record %d: expected an object, got %T", i, entry)
		}

		var rec Record
		decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
			DecodeHook:       timeHook,
			WeaklyTypedInput: true,
			Result:           &rec,
		})
		if err != nil {
			return nil, err
		}
		if err := decoder.Decode(normalizeKeys(fields)); err != nil {
			return nil, fmt.Errorf("record %d: %w", i, err)
		}
		records = append(records, rec)
	}
	return records, nil
}

func unwrap(raw interface{}) ([]interface{}, error) {
	switch v := raw.(type) {
	case []interface{}:
		return v, nil
	case map[string]interface{}:
		for _, key := range envelopeKeys {
			if list, ok := v[key].([]interface{}); ok {
				return list, nil
			}
		}
		return nil, fmt.Errorf("backup object has no %s list", strings.Join(envelopeKeys, ", "))
	case nil:
		return nil, nil
	default:
		return nil, fmt.Errorf("unexpected backup document of type %T", raw)
	}
}

func normalizeKeys(fields map[string]interface{}) map[string]interface{} {
	out := make(map[string]interface{}, len(fields))
	for k, v := range fields {
		key := strcase.ToSnake(k)
		if alias, ok := keyAliases[key]; ok {
			key = alias
		}
		if _, taken := out[key]; taken && key != strcase.ToSnake(k) {
			continue
		}
		out[key] = v
	}
	return out
}

var timeType = reflect.TypeOf(time.Time{})

// timeHook parses free-form timestamps and unix seconds into time.Time.
func timeHook(from reflect.Type, to reflect.Type, data interface{}) (interface{}, error) {
	if to != timeType {
		return data, nil
	}
	switch v := data.(type) {
	case string:
		if v == "" {
			return time.Time{}, nil
		}
		return dateparse.ParseAny(v)
	case float64:
		return time.Unix(int64(v), 0).UTC(), nil
	case int:
		return time.Unix(int64(v), 0).UTC(), nil
	case int64:
		return time.Unix(v, 0).UTC(), nil
	}
	return data, nil
}
