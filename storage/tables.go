package storage

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"

	"github.com/c360studio/repograph/kg"
)

// Output layout below the output directory.
const (
	EntitiesDir  = "entities"
	TriplesDir   = "triples"
	TriplesFile  = "candidate_triples.csv"
	ManifestFile = "run.json"
	LockFile     = ".repograph.lock"
)

var tripleHeader = []string{"subject", "predicate", "object", "score"}

// EntityTablePath returns the CSV path of one entity table.
func EntityTablePath(outDir string, t kg.EntityType) string {
	return filepath.Join(outDir, EntitiesDir, t.TableName()+"_entities.csv")
}

// TriplesPath returns the candidate-triple CSV path.
func TriplesPath(outDir string) string {
	return filepath.Join(outDir, TriplesDir, TriplesFile)
}

// WriteEntityTables writes one single-column CSV per entity type. Every type
// in kg.EntityTypes gets a file, empty tables included. Names are expected
// sorted and non-empty, as produced by the consolidator.
func WriteEntityTables(outDir string, tables map[kg.EntityType][]string) error {
	if err := os.MkdirAll(filepath.Join(outDir, EntitiesDir), 0o755); err != nil {
		return fmt.Errorf("create entities directory: %w", err)
	}
	for _, t := range kg.EntityTypes {
		rows := [][]string{{"name"}}
		for _, name := range tables[t] {
			if name == "" {
				continue
			}
			rows = append(rows, []string{name})
		}
		if err := writeCSV(EntityTablePath(outDir, t), rows); err != nil {
			return fmt.Errorf("write %s table: %w", t.TableName(), err)
		}
	}
	return nil
}

// WriteTriples writes the candidate-triple CSV in the given order.
func WriteTriples(outDir string, triples []kg.Triple) error {
	if err := os.MkdirAll(filepath.Join(outDir, TriplesDir), 0o755); err != nil {
		return fmt.Errorf("create triples directory: %w", err)
	}
	rows := make([][]string, 0, len(triples)+1)
	rows = append(rows, tripleHeader)
	for _, t := range triples {
		rows = append(rows, []string{t.Subject, t.Predicate, t.Object, t.Score()})
	}
	if err := writeCSV(TriplesPath(outDir), rows); err != nil {
		return fmt.Errorf("write triples: %w", err)
	}
	return nil
}

// ReadTriples reads a candidate-triple CSV. The CSV carries no provenance,
// so Source is left empty.
func ReadTriples(path string) ([]kg.Triple, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open triples: %w", err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = len(tripleHeader)

	header, err := r.Read()
	if err != nil {
		return nil, fmt.Errorf("read triples header: %w", err)
	}
	for i, col := range tripleHeader {
		if header[i] != col {
			return nil, fmt.Errorf("unexpected triples header %v", header)
		}
	}

	var triples []kg.Triple
	for {
		rec, err := r.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read triples: %w", err)
		}
		score, err := strconv.ParseFloat(rec[3], 64)
		if err != nil {
			return nil, fmt.Errorf("triple %v: invalid score: %w", rec, err)
		}
		triples = append(triples, kg.Triple{
			Subject:    rec[0],
			Predicate:  rec[1],
			Object:     rec[2],
			Confidence: score,
		})
	}
	return triples, nil
}

// ReadEntityTable reads the names of one entity table.
func ReadEntityTable(outDir string, t kg.EntityType) ([]string, error) {
	f, err := os.Open(EntityTablePath(outDir, t))
	if err != nil {
		return nil, fmt.Errorf("open %s table: %w", t.TableName(), err)
	}
	defer f.Close()

	rows, err := csv.NewReader(f).ReadAll()
	if err != nil {
		return nil, fmt.Errorf("read %s table: %w", t.TableName(), err)
	}
	names := make([]string, 0, len(rows))
	for i, row := range rows {
		if i == 0 {
			continue
		}
		names = append(names, row[0])
	}
	return names, nil
}

func writeCSV(path string, rows [][]string) error {
	f, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*")
	if err != nil {
		return err
	}
	tmpName := f.Name()

	w := csv.NewWriter(f)
	if err := w.WriteAll(rows); err != nil {
		f.Close()
		os.Remove(tmpName)
		return err
	}
	if err := f.Close(); err != nil {
		os.Remove(tmpName)
		return err
	}
	if err := os.Chmod(tmpName, 0o644); err != nil {
		os.Remove(tmpName)
		return err
	}
	return os.Rename(tmpName, path)
}
