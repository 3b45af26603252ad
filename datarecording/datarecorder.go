// Package datarecording batches plain structs into SQLite tables.
package datarecording

import (
	"database/sql"
	"fmt"
	"os"
	"reflect"
	"sort"
	"strings"
	"sync"

	"github.com/fatih/structs"

	// Need to use SQLite connections.
	_ "github.com/mattn/go-sqlite3"
	"github.com/rs/xid"
	"github.com/tebeka/atexit"
)

const defaultBatchSize = 10000

// DataRecorder buffers rows and writes them into a database in batches. All
// methods are safe for concurrent use.
type DataRecorder interface {
	// CreateTable creates a table with one column per field of the sample
	// entry. It panics if the entry is not a flat struct of scalars.
	CreateTable(tableName string, sampleEntry any)

	// InsertData buffers an entry for a table created before. The entry must
	// have the type of the table's sample entry.
	InsertData(tableName string, entry any)

	// ListTables returns the names of all tables, sorted.
	ListTables() []string

	// Flush writes the buffered entries in a single transaction.
	Flush() error

	// Close flushes and closes the database.
	Close() error
}

// New creates a recording in the file path + ".sqlite3". An empty path picks
// a unique name. An existing file is never overwritten.
func New(path string) (DataRecorder, error) {
	if path == "" {
		path = "uavlink_recording_" + xid.New().String()
	}

	filename := path + ".sqlite3"
	if _, err := os.Stat(filename); err == nil {
		return nil, fmt.Errorf("recording %s already exists", filename)
	}

	db, err := sql.Open("sqlite3", filename)
	if err != nil {
		return nil, fmt.Errorf("open recording %s: %w", filename, err)
	}

	return NewWithDB(db), nil
}

// NewWithDB creates a DataRecorder on an open database. The buffered rows are
// flushed when the program leaves through atexit.
func NewWithDB(db *sql.DB) DataRecorder {
	w := &sqliteWriter{
		db:        db,
		batchSize: defaultBatchSize,
		tables:    make(map[string]*table),
	}

	atexit.Register(func() { _ = w.Flush() })

	return w
}

// table is a created table and the rows waiting for the next flush.
type table struct {
	structType reflect.Type
	insertSQL  string
	pending    []any
}

type sqliteWriter struct {
	lock      sync.Mutex
	db        *sql.DB
	tables    map[string]*table
	batchSize int
	buffered  int
	closed    bool
}

var columnTypes = map[reflect.Kind]string{
	reflect.Bool:    "INTEGER",
	reflect.Int:     "INTEGER",
	reflect.Int8:    "INTEGER",
	reflect.Int16:   "INTEGER",
	reflect.Int32:   "INTEGER",
	reflect.Int64:   "INTEGER",
	reflect.Uint:    "INTEGER",
	reflect.Uint8:   "INTEGER",
	reflect.Uint16:  "INTEGER",
	reflect.Uint32:  "INTEGER",
	reflect.Uint64:  "INTEGER",
	reflect.Float32: "REAL",
	reflect.Float64: "REAL",
	reflect.String:  "TEXT",
}

// columnsOf returns the column declarations of a flat struct of scalars.
func columnsOf(entry any) ([]string, error) {
	t := reflect.TypeOf(entry)
	if t == nil || t.Kind() != reflect.Struct {
		return nil, fmt.Errorf("entry of type %T is not a struct", entry)
	}

	columns := make([]string, 0, t.NumField())
	for i := 0; i < t.NumField(); i++ {
		f := t.Field(i)

		sqlType, ok := columnTypes[f.Type.Kind()]
		if !ok {
			return nil, fmt.Errorf("field %s of kind %s cannot be recorded",
				f.Name, f.Type.Kind())
		}

		columns = append(columns, f.Name+" "+sqlType)
	}

	return columns, nil
}

func checkStructFields(entry any) error {
	_, err := columnsOf(entry)
	return err
}

func (w *sqliteWriter) CreateTable(tableName string, sampleEntry any) {
	columns, err := columnsOf(sampleEntry)
	if err != nil {
		panic(err)
	}

	w.lock.Lock()
	defer w.lock.Unlock()

	if _, exists := w.tables[tableName]; exists {
		panic(fmt.Sprintf("table %s already exists", tableName))
	}

	stmt := fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (\n\t%s\n);",
		tableName, strings.Join(columns, ",\n\t"))
	if _, err := w.db.Exec(stmt); err != nil {
		panic(fmt.Errorf("create table %s: %w", tableName, err))
	}

	names := structs.Names(sampleEntry)
	marks := strings.TrimSuffix(strings.Repeat("?, ", len(names)), ", ")

	w.tables[tableName] = &table{
		structType: reflect.TypeOf(sampleEntry),
		insertSQL: fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)",
			tableName, strings.Join(names, ", "), marks),
	}
}

func (w *sqliteWriter) InsertData(tableName string, entry any) {
	w.lock.Lock()
	defer w.lock.Unlock()

	t, exists := w.tables[tableName]
	if !exists {
		panic(fmt.Sprintf("table %s does not exist", tableName))
	}

	if reflect.TypeOf(entry) != t.structType {
		panic(fmt.Sprintf("entry of type %T does not fit table %s",
			entry, tableName))
	}

	t.pending = append(t.pending, entry)

	w.buffered++
	if w.buffered >= w.batchSize {
		if err := w.flush(); err != nil {
			panic(err)
		}
	}
}

func (w *sqliteWriter) ListTables() []string {
	w.lock.Lock()
	defer w.lock.Unlock()

	names := make([]string, 0, len(w.tables))
	for name := range w.tables {
		names = append(names, name)
	}

	sort.Strings(names)

	return names
}

func (w *sqliteWriter) Flush() error {
	w.lock.Lock()
	defer w.lock.Unlock()

	return w.flush()
}

func (w *sqliteWriter) flush() error {
	if w.buffered == 0 || w.closed {
		return nil
	}

	tx, err := w.db.Begin()
	if err != nil {
		return fmt.Errorf("begin flush: %w", err)
	}

	for name, t := range w.tables {
		if len(t.pending) == 0 {
			continue
		}

		if err := insertAll(tx, t); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("flush table %s: %w", name, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit flush: %w", err)
	}

	for _, t := range w.tables {
		t.pending = nil
	}
	w.buffered = 0

	return nil
}

func insertAll(tx *sql.Tx, t *table) error {
	stmt, err := tx.Prepare(t.insertSQL)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, entry := range t.pending {
		if _, err := stmt.Exec(structs.Values(entry)...); err != nil {
			return err
		}
	}

	return nil
}

func (w *sqliteWriter) Close() error {
	w.lock.Lock()
	defer w.lock.Unlock()

	if w.closed {
		return nil
	}

	flushErr := w.flush()
	w.closed = true

	if err := w.db.Close(); err != nil {
		return err
	}

	return flushErr
}
