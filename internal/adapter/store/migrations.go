package store

import (
	"encoding/json"
	"errors"
	"fmt"

	"go.etcd.io/bbolt"
)

// CurrentSchemaVersion is the current schema version.
// Increment this when making breaking changes to the storage format.
const CurrentSchemaVersion = 1

var keySchemaInfo = []byte("schema_info")

var errDimensionMismatch = errors.New("embedding dimension mismatch")

// SchemaInfo records how the corpus was built. Every chunk in a corpus
// shares one embedding model and dimension.
type SchemaInfo struct {
	Version        int    `json:"version"`
	EmbeddingModel string `json:"embedding_model,omitempty"`
	Dimension      int    `json:"dimension,omitempty"`
}

// GetSchemaInfo retrieves the current schema info from the database.
func (s *BoltStore) GetSchemaInfo() (*SchemaInfo, error) {
	var info SchemaInfo
	err := s.db.View(func(tx *bbolt.Tx) error {
		data := tx.Bucket(bucketMeta).Get(keySchemaInfo)
		if data == nil {
			return nil
		}
		return json.Unmarshal(data, &info)
	})
	return &info, err
}

// SetSchemaInfo stores the schema info in the database.
func (s *BoltStore) SetSchemaInfo(info *SchemaInfo) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		return putSchemaInfo(tx, info)
	})
}

func putSchemaInfo(tx *bbolt.Tx, info *SchemaInfo) error {
	data, err := json.Marshal(info)
	if err != nil {
		return err
	}
	return tx.Bucket(bucketMeta).Put(keySchemaInfo, data)
}

// ensureDimension records dim as the corpus dimension on first write and
// rejects any later write that disagrees.
func (s *BoltStore) ensureDimension(dim int) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		var info SchemaInfo
		if data := tx.Bucket(bucketMeta).Get(keySchemaInfo); data != nil {
			if err := json.Unmarshal(data, &info); err != nil {
				return err
			}
		}
		if info.Dimension == 0 {
			info.Dimension = dim
			if info.Version == 0 {
				info.Version = CurrentSchemaVersion
			}
			return putSchemaInfo(tx, &info)
		}
		if info.Dimension != dim {
			return fmt.Errorf("%w: corpus has %d, got %d", errDimensionMismatch, info.Dimension, dim)
		}
		return nil
	})
}

// MigrationResult describes the result of a migration check.
type MigrationResult struct {
	NeedsMigration bool
	Incompatible   bool
	OldVersion     int
	NewVersion     int
	Reason         string
}

// CheckMigration compares the stored schema with the running embedding
// configuration. A different model or dimension makes existing vectors
// incomparable with new query vectors.
func (s *BoltStore) CheckMigration(model string, dimension int) (*MigrationResult, error) {
	info, err := s.GetSchemaInfo()
	if err != nil {
		return nil, fmt.Errorf("failed to get schema info: %w", err)
	}

	result := &MigrationResult{
		OldVersion: info.Version,
		NewVersion: CurrentSchemaVersion,
	}

	switch {
	case info.Version == 0:
		result.NeedsMigration = true
		result.Reason = "initializing schema version"
	case info.Version > CurrentSchemaVersion:
		result.Incompatible = true
		result.Reason = fmt.Sprintf("database created by newer version (v%d > v%d)", info.Version, CurrentSchemaVersion)
		return result, nil
	}

	if info.EmbeddingModel != "" && info.EmbeddingModel != model {
		result.Incompatible = true
		result.Reason = fmt.Sprintf("corpus embedded with %s, configured model is %s", info.EmbeddingModel, model)
	} else if info.Dimension != 0 && dimension != 0 && info.Dimension != dimension {
		result.Incompatible = true
		result.Reason = fmt.Sprintf("corpus dimension is %d, configured dimension is %d", info.Dimension, dimension)
	}

	return result, nil
}

// Migrate records the current schema version and embedding model.
func (s *BoltStore) Migrate(model string) error {
	info, err := s.GetSchemaInfo()
	if err != nil {
		return err
	}
	info.Version = CurrentSchemaVersion
	if info.EmbeddingModel == "" {
		info.EmbeddingModel = model
	}
	return s.SetSchemaInfo(info)
}
