package settings

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/xeipuuv/gojsonschema"

	"github.com/miradorstack/mirador-reliability/internal/cache"
	"github.com/miradorstack/mirador-reliability/internal/cachekey"
	"github.com/miradorstack/mirador-reliability/internal/models"
	"github.com/miradorstack/mirador-reliability/internal/utils"
)

// Store keeps one JSON settings document per service in a directory. Reads go through the settings
// memo; saves validate against the document schema, persist, then overwrite the memo entry.
type Store struct {
	dir    string
	memo   *cache.Memo[cachekey.Settings, models.ServiceSettings]
	schema *gojsonschema.Schema
	logger *slog.Logger

	mu sync.Mutex
}

// NewStore creates a Store rooted at dir.
func NewStore(dir string, memo *cache.Memo[cachekey.Settings, models.ServiceSettings], logger *slog.Logger) (*Store, error) {
	if dir == "" {
		return nil, &utils.ConfigurationError{Service: "settings", Field: "dir"}
	}
	if memo == nil {
		return nil, errors.New("settings memo is required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	schema, err := gojsonschema.NewSchema(gojsonschema.NewStringLoader(documentSchema))
	if err != nil {
		return nil, fmt.Errorf("compile settings schema: %w", err)
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create settings dir: %w", err)
	}
	return &Store{dir: dir, memo: memo, schema: schema, logger: logger}, nil
}

// Load returns the settings for serviceID. A service without a document gets Defaults, which carry no
// score weights.
func (s *Store) Load(ctx context.Context, serviceID string) (models.ServiceSettings, error) {
	file, err := s.path(serviceID)
	if err != nil {
		return models.ServiceSettings{}, err
	}
	return s.memo.Get(ctx, cachekey.Settings{ServiceID: serviceID}, func(context.Context) (models.ServiceSettings, error) {
		data, err := os.ReadFile(file)
		if errors.Is(err, fs.ErrNotExist) {
			s.logger.Debug("no settings document, using defaults", slog.String("service_id", serviceID))
			return Defaults(serviceID), nil
		}
		if err != nil {
			return models.ServiceSettings{}, fmt.Errorf("read settings: %w", err)
		}
		return s.decode(serviceID, data)
	})
}

// Save validates and persists a settings document, then makes it visible to readers immediately.
func (s *Store) Save(ctx context.Context, doc models.ServiceSettings) (models.ServiceSettings, error) {
	if err := ctx.Err(); err != nil {
		return models.ServiceSettings{}, err
	}
	file, err := s.path(doc.ServiceID)
	if err != nil {
		return models.ServiceSettings{}, err
	}
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return models.ServiceSettings{}, fmt.Errorf("marshal settings: %w", err)
	}
	if err := s.validate(doc.ServiceID, data); err != nil {
		return models.ServiceSettings{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	tmp, err := os.CreateTemp(s.dir, ".settings-*.json")
	if err != nil {
		return models.ServiceSettings{}, fmt.Errorf("write settings: %w", err)
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return models.ServiceSettings{}, fmt.Errorf("write settings: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return models.ServiceSettings{}, fmt.Errorf("write settings: %w", err)
	}
	if err := os.Rename(tmp.Name(), file); err != nil {
		return models.ServiceSettings{}, fmt.Errorf("write settings: %w", err)
	}

	s.memo.Put(cachekey.Settings{ServiceID: doc.ServiceID}, doc)
	s.logger.Info("saved service settings", slog.String("service_id", doc.ServiceID))
	return doc, nil
}

func (s *Store) decode(serviceID string, data []byte) (models.ServiceSettings, error) {
	if err := s.validate(serviceID, data); err != nil {
		return models.ServiceSettings{}, err
	}
	doc := Defaults(serviceID)
	if err := json.Unmarshal(data, &doc); err != nil {
		return models.ServiceSettings{}, fmt.Errorf("decode settings: %w", err)
	}
	if doc.ServiceID != serviceID {
		return models.ServiceSettings{}, &utils.ConfigurationError{Service: serviceID, Field: "service_id", Reason: "document belongs to " + doc.ServiceID}
	}
	return doc, nil
}

func (s *Store) validate(serviceID string, data []byte) error {
	result, err := s.schema.Validate(gojsonschema.NewBytesLoader(data))
	if err != nil {
		return fmt.Errorf("validate settings: %w", err)
	}
	if result.Valid() {
		return nil
	}
	fields := make([]string, 0, len(result.Errors()))
	for _, desc := range result.Errors() {
		fields = append(fields, desc.String())
	}
	return &utils.ConfigurationError{Service: serviceID, Field: "document", Reason: strings.Join(fields, "; ")}
}

func (s *Store) path(serviceID string) (string, error) {
	id := strings.TrimSpace(serviceID)
	if id == "" || id == "." || id == ".." || strings.ContainsAny(id, `/\`) {
		return "", &utils.ConfigurationError{Service: serviceID, Field: "service_id", Reason: "not a valid document name"}
	}
	return filepath.Join(s.dir, id+".json"), nil
}
