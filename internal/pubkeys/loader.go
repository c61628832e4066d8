// Package pubkeys loads the key lists a run works on from JSON files.
package pubkeys

import (
	"embed"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/xeipuuv/gojsonschema"

	"github.com/systmms/vault-loader/internal/logging"
)

//go:embed schemas/*.schema.json
var schemas embed.FS

const (
	pubkeysSchema  = "schemas/pubkeys.schema.json"
	privkeysSchema = "schemas/privkeys.schema.json"
)

// Entry is one key to upload.
type Entry struct {
	Pubkey string
	Fields map[string]interface{}
}

// Loader reads key files matched by a glob pattern.
type Loader struct {
	logger *logging.Logger
}

// NewLoader creates a Loader. A nil logger discards warnings.
func NewLoader(logger *logging.Logger) *Loader {
	if logger == nil {
		logger = logging.Discard()
	}
	return &Loader{logger: logger}
}

// LoadPubkeys reads every file matching pattern, each a JSON array of public
// keys, and concatenates them in file order. Repeated keys are dropped after
// their first appearance.
func (l *Loader) LoadPubkeys(pattern string) ([]string, error) {
	files, err := match(pattern)
	if err != nil {
		return nil, err
	}

	var (
		pubkeys []string
		seen    = make(map[string]string)
	)
	for _, file := range files {
		data, err := readValidated(file, pubkeysSchema)
		if err != nil {
			return nil, err
		}

		var list []string
		if err := json.Unmarshal(data, &list); err != nil {
			return nil, fmt.Errorf("failed to parse %s: %w", file, err)
		}

		for _, pk := range list {
			if first, dup := seen[pk]; dup {
				l.logger.Warn("Skipping duplicate public key %s in %s (first seen in %s)", pk, file, first)
				continue
			}
			seen[pk] = file
			pubkeys = append(pubkeys, pk)
		}
	}

	return pubkeys, nil
}

// LoadPrivkeys reads every file matching pattern, each a JSON object mapping
// public key to secret fields. Entries are sorted by public key within a
// file; repeated keys keep their first value.
func (l *Loader) LoadPrivkeys(pattern string) ([]Entry, error) {
	files, err := match(pattern)
	if err != nil {
		return nil, err
	}

	var (
		entries []Entry
		seen    = make(map[string]string)
	)
	for _, file := range files {
		data, err := readValidated(file, privkeysSchema)
		if err != nil {
			return nil, err
		}

		var doc map[string]map[string]interface{}
		if err := json.Unmarshal(data, &doc); err != nil {
			return nil, fmt.Errorf("failed to parse %s: %w", file, err)
		}

		ids := make([]string, 0, len(doc))
		for id := range doc {
			ids = append(ids, id)
		}
		sort.Strings(ids)

		for _, pk := range ids {
			if first, dup := seen[pk]; dup {
				l.logger.Warn("Skipping duplicate private key entry %s in %s (first seen in %s)", pk, file, first)
				continue
			}
			seen[pk] = file
			entries = append(entries, Entry{Pubkey: pk, Fields: doc[pk]})
		}
	}

	return entries, nil
}

func match(pattern string) ([]string, error) {
	if pattern == "" {
		return nil, fmt.Errorf("no key file pattern configured")
	}

	files, err := filepath.Glob(pattern)
	if err != nil {
		return nil, fmt.Errorf("invalid pattern %q: %w", pattern, err)
	}
	if len(files) == 0 {
		return nil, fmt.Errorf("no files match %q", pattern)
	}
	return files, nil
}

func readValidated(file, schemaFile string) ([]byte, error) {
	data, err := os.ReadFile(file)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", file, err)
	}

	schema, err := schemas.ReadFile(schemaFile)
	if err != nil {
		return nil, fmt.Errorf("failed to load schema %s: %w", schemaFile, err)
	}

	result, err := gojsonschema.Validate(gojsonschema.NewBytesLoader(schema), gojsonschema.NewBytesLoader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to validate %s: %w", file, err)
	}
	if !result.Valid() {
		var messages []string
		for _, desc := range result.Errors() {
			messages = append(messages, desc.String())
		}
		return nil, fmt.Errorf("%s failed schema validation:\n  - %s", file, strings.Join(messages, "\n  - "))
	}

	return data, nil
}
