// Package store persists documents, their chunks and service settings in
// a local bbolt database. All values are JSON-encoded; chunk keys embed
// the document ID and a zero-padded chunk index so a prefix scan returns
// chunks in order.
package store

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	bolt "go.etcd.io/bbolt"
)

var (
	bucketDocuments = []byte("documents")
	bucketChunks    = []byte("chunks")
	bucketSettings  = []byte("settings")

	settingsKey = []byte("service")
)

// ErrNotFound is returned when a document does not exist.
var ErrNotFound = errors.New("document not found")

// Document index lifecycle states.
const (
	DocStatusPending = "pending"
	DocStatusIndexed = "indexed"
	DocStatusError   = "error"
)

// Document is the stored metadata for one ingested file.
type Document struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	ContentHash string    `json:"content_hash"`
	Language    string    `json:"language"`
	Status      string    `json:"status"`
	Pages       int       `json:"pages"`
	ChunkCount  int       `json:"chunk_count"`
	SizeBytes   int64     `json:"size_bytes"`
	CreatedAt   time.Time `json:"created_at"`
}

// Chunk is one stored chunk of a document.
type Chunk struct {
	DocumentID    string   `json:"document_id"`
	ChunkIndex    int      `json:"chunk_index"`
	Text          string   `json:"text"`
	PageStart     int      `json:"page_start"`
	PageEnd       int      `json:"page_end"`
	SectionPath   []string `json:"section_path,omitempty"`
	TokenCount    int      `json:"token_count"`
	VectorPointID string   `json:"vector_point_id,omitempty"`
}

// Settings holds the runtime-tunable retrieval settings.
type Settings struct {
	TopK int `json:"top_k"`
}

const (
	minTopK     = 1
	maxTopK     = 20
	defaultTopK = 5
)

// Clamp bounds TopK to its allowed range.
func (s Settings) Clamp() Settings {
	if s.TopK < minTopK {
		s.TopK = minTopK
	}
	if s.TopK > maxTopK {
		s.TopK = maxTopK
	}
	return s
}

// Store wraps the bbolt database.
type Store struct {
	db *bolt.DB
}

// Open opens (creating if needed) the database at path.
func Open(path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}
	db, err := bolt.Open(path, 0600, &bolt.Options{Timeout: 5 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	err = db.Update(func(tx *bolt.Tx) error {
		for _, name := range [][]byte{bucketDocuments, bucketChunks, bucketSettings} {
			if _, err := tx.CreateBucketIfNotExists(name); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("create buckets: %w", err)
	}
	return &Store{db: db}, nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// PutDocument inserts or replaces a document record.
func (s *Store) PutDocument(doc Document) error {
	data, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("marshal document: %w", err)
	}
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketDocuments).Put([]byte(doc.ID), data)
	})
}

// GetDocument returns the document with the given ID, or ErrNotFound.
func (s *Store) GetDocument(id string) (Document, error) {
	var doc Document
	err := s.db.View(func(tx *bolt.Tx) error {
		v := tx.Bucket(bucketDocuments).Get([]byte(id))
		if v == nil {
			return ErrNotFound
		}
		return json.Unmarshal(v, &doc)
	})
	return doc, err
}

// FindByContentHash returns the first document with the given content
// hash, or ErrNotFound. Used for duplicate detection at ingestion.
func (s *Store) FindByContentHash(hash string) (Document, error) {
	var doc Document
	err := s.db.View(func(tx *bolt.Tx) error {
		c := tx.Bucket(bucketDocuments).Cursor()
		for k, v := c.First(); k != nil; k, v = c.Next() {
			var d Document
			if err := json.Unmarshal(v, &d); err != nil {
				continue
			}
			if d.ContentHash == hash {
				doc = d
				return nil
			}
		}
		return ErrNotFound
	})
	return doc, err
}

// ListDocuments returns all documents, newest first.
func (s *Store) ListDocuments() ([]Document, error) {
	var docs []Document
	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketDocuments).ForEach(func(k, v []byte) error {
			var d Document
			if err := json.Unmarshal(v, &d); err != nil {
				return fmt.Errorf("unmarshal document %s: %w", k, err)
			}
			docs = append(docs, d)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	sort.Slice(docs, func(i, j int) bool {
		return docs[i].CreatedAt.After(docs[j].CreatedAt)
	})
	return docs, nil
}

// DeleteDocument removes a document and all its chunks.
func (s *Store) DeleteDocument(id string) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		if tx.Bucket(bucketDocuments).Get([]byte(id)) == nil {
			return ErrNotFound
		}
		if err := tx.Bucket(bucketDocuments).Delete([]byte(id)); err != nil {
			return err
		}
		b := tx.Bucket(bucketChunks)
		c := b.Cursor()
		prefix := []byte(id + "/")
		var keys [][]byte
		for k, _ := c.Seek(prefix); k != nil && bytes.HasPrefix(k, prefix); k, _ = c.Next() {
			keys = append(keys, append([]byte(nil), k...))
		}
		for _, k := range keys {
			if err := b.Delete(k); err != nil {
				return err
			}
		}
		return nil
	})
}

// PutChunks stores all chunks for a document in one transaction.
func (s *Store) PutChunks(docID string, chunks []Chunk) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketChunks)
		for _, ch := range chunks {
			data, err := json.Marshal(ch)
			if err != nil {
				return fmt.Errorf("marshal chunk %d: %w", ch.ChunkIndex, err)
			}
			if err := b.Put(chunkKey(docID, ch.ChunkIndex), data); err != nil {
				return err
			}
		}
		return nil
	})
}

// ListChunks returns a document's chunks in index order.
func (s *Store) ListChunks(docID string) ([]Chunk, error) {
	var chunks []Chunk
	err := s.db.View(func(tx *bolt.Tx) error {
		c := tx.Bucket(bucketChunks).Cursor()
		prefix := []byte(docID + "/")
		for k, v := c.Seek(prefix); k != nil && bytes.HasPrefix(k, prefix); k, v = c.Next() {
			var ch Chunk
			if err := json.Unmarshal(v, &ch); err != nil {
				return fmt.Errorf("unmarshal chunk %s: %w", k, err)
			}
			chunks = append(chunks, ch)
		}
		return nil
	})
	return chunks, err
}

// GetSettings returns the stored settings, or defaults when none exist.
func (s *Store) GetSettings() (Settings, error) {
	settings := Settings{TopK: defaultTopK}
	err := s.db.View(func(tx *bolt.Tx) error {
		v := tx.Bucket(bucketSettings).Get(settingsKey)
		if v == nil {
			return nil
		}
		return json.Unmarshal(v, &settings)
	})
	return settings.Clamp(), err
}

// UpdateSettings persists new settings, clamped to valid ranges, and
// returns the stored value.
func (s *Store) UpdateSettings(settings Settings) (Settings, error) {
	settings = settings.Clamp()
	data, err := json.Marshal(settings)
	if err != nil {
		return settings, fmt.Errorf("marshal settings: %w", err)
	}
	err = s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketSettings).Put(settingsKey, data)
	})
	return settings, err
}

func chunkKey(docID string, index int) []byte {
	return []byte(fmt.Sprintf("%s/%06d", docID, index))
}
