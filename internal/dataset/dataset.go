// Package dataset provides content-hash-reproducible tick-data management
// (spec §3 Supplemental Dataset descriptor, §11.1). Datasets are tick CSV
// files catalogued in a JSON registry directory; a second load against the
// same Dataset.ID re-hashes the backing file and fails if it has changed
// since registration, so a completed backtest's inputs can be verified
// byte-for-byte after the fact.
package dataset

import (
	"crypto/sha256"
	"encoding/csv"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

const schemaVersion = "tick_v1"

// Dataset describes one catalogued tick-data file.
type Dataset struct {
	ID            string    `json:"id"`
	Name          string    `json:"name"`
	Symbol        string    `json:"symbol"`
	Source        string    `json:"source"`
	StartDate     time.Time `json:"start_date"`
	EndDate       time.Time `json:"end_date"`
	FilePath      string    `json:"file_path"`
	Hash          string    `json:"hash"`
	SchemaVersion string    `json:"schema_version"`
	CreatedAt     time.Time `json:"created_at"`
	RecordCount   int       `json:"record_count"`
}

const catalogFile = "catalog.json"

// Registry is a thread-safe store of Dataset records persisted as JSON in a
// directory on disk.
type Registry struct {
	mu         sync.RWMutex
	catalogDir string
	datasets   map[string]Dataset
}

// Open loads (or creates) a Registry backed by catalogDir.
func Open(catalogDir string) (*Registry, error) {
	if err := os.MkdirAll(catalogDir, 0o755); err != nil {
		return nil, fmt.Errorf("dataset.Open: mkdir %q: %w", catalogDir, err)
	}
	r := &Registry{catalogDir: catalogDir, datasets: make(map[string]Dataset)}
	if err := r.load(); err != nil {
		return nil, err
	}
	return r, nil
}

// Register validates the tick CSV file at d.FilePath, computes its SHA-256
// hash, assigns a UUID, and persists the entry to the catalog.
func (r *Registry) Register(d Dataset) (Dataset, error) {
	if d.Name == "" {
		return Dataset{}, fmt.Errorf("dataset.Register: Name must not be empty")
	}
	if d.Symbol == "" {
		return Dataset{}, fmt.Errorf("dataset.Register: Symbol must not be empty")
	}
	if d.FilePath == "" {
		return Dataset{}, fmt.Errorf("dataset.Register: FilePath must not be empty")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	for _, existing := range r.datasets {
		if existing.Name == d.Name {
			return Dataset{}, fmt.Errorf("dataset.Register: name %q already registered (id=%s)", d.Name, existing.ID)
		}
	}

	hash, count, err := hashAndCountTicks(d.FilePath)
	if err != nil {
		return Dataset{}, fmt.Errorf("dataset.Register: file %q: %w", d.FilePath, err)
	}

	d.ID = uuid.New().String()
	d.Hash = hash
	d.RecordCount = count
	d.SchemaVersion = schemaVersion
	d.CreatedAt = time.Now().UTC()
	if d.Source == "" {
		d.Source = "csv"
	}

	r.datasets[d.ID] = d
	if err := r.save(); err != nil {
		delete(r.datasets, d.ID)
		return Dataset{}, fmt.Errorf("dataset.Register: persist: %w", err)
	}
	return d, nil
}

// Get returns the Dataset with the given ID.
func (r *Registry) Get(id string) (Dataset, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	d, ok := r.datasets[id]
	if !ok {
		return Dataset{}, fmt.Errorf("dataset.Get: id %q not found", id)
	}
	return d, nil
}

// List returns all Datasets sorted by CreatedAt ascending.
func (r *Registry) List() []Dataset {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Dataset, 0, len(r.datasets))
	for _, d := range r.datasets {
		out = append(out, d)
	}
	slices.SortFunc(out, func(a, b Dataset) int { return a.CreatedAt.Compare(b.CreatedAt) })
	return out
}

// VerifyHash re-computes the file hash and returns dataset-hash-mismatch if
// it has changed since registration.
func (r *Registry) VerifyHash(id string) error {
	d, err := r.Get(id)
	if err != nil {
		return err
	}
	hash, _, err := hashAndCountTicks(d.FilePath)
	if err != nil {
		return fmt.Errorf("dataset.VerifyHash: %w", err)
	}
	if hash != d.Hash {
		return fmt.Errorf("%w: id=%s registered=%s current=%s", ErrHashMismatch, id, d.Hash[:12], hash[:12])
	}
	return nil
}

// ErrHashMismatch is returned (wrapped) by VerifyHash when the backing file
// has changed since registration.
var ErrHashMismatch = fmt.Errorf("dataset-hash-mismatch")

// LoadTicks re-hashes the registered CSV file at d.FilePath and reads it into
// tick rows; it fails with dataset-hash-mismatch if the file has changed
// since registration.
func (r *Registry) LoadTicks(id string) ([]Tick, error) {
	d, err := r.Get(id)
	if err != nil {
		return nil, err
	}
	if err := r.VerifyHash(id); err != nil {
		return nil, err
	}
	return LoadTickCSV(d.FilePath)
}

func (r *Registry) catalogPath() string { return filepath.Join(r.catalogDir, catalogFile) }

func (r *Registry) load() error {
	path := r.catalogPath()
	f, err := os.Open(path)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("dataset: open catalog %q: %w", path, err)
	}
	defer f.Close()

	var list []Dataset
	if err := json.NewDecoder(f).Decode(&list); err != nil {
		return fmt.Errorf("dataset: decode catalog: %w", err)
	}
	for _, d := range list {
		r.datasets[d.ID] = d
	}
	return nil
}

func (r *Registry) save() error {
	list := make([]Dataset, 0, len(r.datasets))
	for _, d := range r.datasets {
		list = append(list, d)
	}
	slices.SortFunc(list, func(a, b Dataset) int { return a.CreatedAt.Compare(b.CreatedAt) })

	tmp := r.catalogPath() + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return fmt.Errorf("dataset: create catalog tmp: %w", err)
	}
	enc := json.NewEncoder(f)
	enc.SetIndent("", "  ")
	if err := enc.Encode(list); err != nil {
		f.Close()
		os.Remove(tmp)
		return fmt.Errorf("dataset: encode catalog: %w", err)
	}
	f.Close()
	if err := os.Rename(tmp, r.catalogPath()); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("dataset: rename catalog: %w", err)
	}
	return nil
}

// Tick is one raw bid/ask quote at an integer unix-second timestamp.
type Tick struct {
	Time int64
	Bid  float64
	Ask  float64
}

// LoadTickCSV reads a tick CSV file (header: time,bid,ask — time as a unix
// second integer) into Tick rows sorted by Time ascending.
func LoadTickCSV(filePath string) ([]Tick, error) {
	f, err := os.Open(filePath)
	if err != nil {
		return nil, fmt.Errorf("dataset.LoadTickCSV: %w", err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	header, err := r.Read()
	if err != nil {
		return nil, fmt.Errorf("dataset.LoadTickCSV: read header: %w", err)
	}
	col := make(map[string]int, len(header))
	for i, h := range header {
		col[strings.ToLower(strings.TrimSpace(h))] = i
	}
	timeCol, ok := col["time"]
	if !ok {
		return nil, fmt.Errorf("dataset.LoadTickCSV: missing column %q", "time")
	}
	bidCol, ok := col["bid"]
	if !ok {
		return nil, fmt.Errorf("dataset.LoadTickCSV: missing column %q", "bid")
	}
	askCol, ok := col["ask"]
	if !ok {
		return nil, fmt.Errorf("dataset.LoadTickCSV: missing column %q", "ask")
	}

	var ticks []Tick
	lineNo := 1
	for {
		row, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("dataset.LoadTickCSV: line %d: %w", lineNo+1, err)
		}
		lineNo++

		ts, err := strconv.ParseInt(strings.TrimSpace(row[timeCol]), 10, 64)
		if err != nil {
			return nil, fmt.Errorf("dataset.LoadTickCSV: line %d time: %w", lineNo, err)
		}
		bid, err := strconv.ParseFloat(strings.TrimSpace(row[bidCol]), 64)
		if err != nil {
			return nil, fmt.Errorf("dataset.LoadTickCSV: line %d bid: %w", lineNo, err)
		}
		ask, err := strconv.ParseFloat(strings.TrimSpace(row[askCol]), 64)
		if err != nil {
			return nil, fmt.Errorf("dataset.LoadTickCSV: line %d ask: %w", lineNo, err)
		}
		ticks = append(ticks, Tick{Time: ts, Bid: bid, Ask: ask})
	}

	slices.SortFunc(ticks, func(a, b Tick) int {
		switch {
		case a.Time < b.Time:
			return -1
		case a.Time > b.Time:
			return 1
		default:
			return 0
		}
	})
	return ticks, nil
}

// hashAndCountTicks reads the file, computes its SHA-256 hex digest, and
// counts the number of non-header rows.
func hashAndCountTicks(filePath string) (hash string, count int, err error) {
	f, err := os.Open(filePath)
	if err != nil {
		return "", 0, err
	}
	defer f.Close()

	h := sha256.New()
	r := csv.NewReader(io.TeeReader(f, h))
	if _, err := r.Read(); err != nil {
		return "", 0, fmt.Errorf("read CSV header: %w", err)
	}
	for {
		_, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return "", 0, err
		}
		count++
	}
	return hex.EncodeToString(h.Sum(nil)), count, nil
}
