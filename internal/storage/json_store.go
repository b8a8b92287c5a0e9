package storage

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"

	"heroes/internal/model"
)

const filePerm = 0o644

// JSONFileStore persists the collection as {"characters": [...]} in a single
// file. A bare top-level array is still accepted when loading.
type JSONFileStore struct {
	path string
}

func NewJSONFileStore(path string) *JSONFileStore {
	return &JSONFileStore{path: path}
}

// Init writes an empty collection if the backing file does not exist yet.
func (s *JSONFileStore) Init() error {
	_, err := os.Stat(s.path)
	if err == nil {
		return nil
	}
	if !errors.Is(err, fs.ErrNotExist) {
		return model.NewStorageError("init", err)
	}
	plog.Infof("creating empty collection at %s", s.path)
	return s.SaveAll(context.Background(), model.Collection{})
}

func (s *JSONFileStore) LoadAll(ctx context.Context) (model.Collection, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	data, err := os.ReadFile(s.path)
	if err != nil {
		return nil, model.NewStorageError("load", err)
	}
	c, err := decodeCollection(data)
	if err != nil {
		return nil, model.NewStorageError("load", fmt.Errorf("%s: %w", s.path, err))
	}
	return c, nil
}

func (s *JSONFileStore) SaveAll(ctx context.Context, c model.Collection) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if c == nil {
		c = model.Collection{}
	}
	data, err := json.MarshalIndent(model.File{Characters: c}, "", "  ")
	if err != nil {
		return model.NewStorageError("save", err)
	}
	data = append(data, '\n')
	if err := WriteFileAtomic(s.path, data, filePerm); err != nil {
		return model.NewStorageError("save", fmt.Errorf("%s: %w", s.path, err))
	}
	return nil
}

func (s *JSONFileStore) Close() error {
	return nil
}

// decodeCollection accepts both persisted shapes and enforces unique ids.
func decodeCollection(data []byte) (model.Collection, error) {
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return nil, errors.New("empty file")
	}

	var c model.Collection
	if data[0] == '[' {
		if err := json.Unmarshal(data, &c); err != nil {
			return nil, fmt.Errorf("decode: %w", err)
		}
	} else {
		var doc struct {
			Characters *model.Collection `json:"characters"`
		}
		if err := json.Unmarshal(data, &doc); err != nil {
			return nil, fmt.Errorf("decode: %w", err)
		}
		if doc.Characters == nil {
			return nil, errors.New(`decode: missing "characters" array`)
		}
		c = *doc.Characters
	}

	if c == nil {
		c = model.Collection{}
	}
	if err := checkUniqueIDs(c); err != nil {
		return nil, err
	}
	return c, nil
}

func checkUniqueIDs(c model.Collection) error {
	seen := make(map[model.CharacterID]struct{}, len(c))
	for _, ch := range c {
		if _, ok := seen[ch.ID]; ok {
			return fmt.Errorf("duplicate character id %d", ch.ID)
		}
		seen[ch.ID] = struct{}{}
	}
	return nil
}
