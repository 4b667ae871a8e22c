// Package config loads the flat key=value properties file format used
// as the engine's configuration surface. Loading the file off disk and the
// surrounding TCP/socket bootstrap are named as external-collaborator
// concerns out of scope for the core; this package only turns
// the already-specified key set into a typed struct so session, exec and
// protocol have one place to read settings like read_only,
// maximum_worker_threads and ignore_case_for_identifiers from, the way the
// go-mysql-server threads ambient config through its own packages rather than
// passing loose strings around.
//
// No available library parses Java-style flat
// .properties files — github.com/BurntSushi/toml and
// gopkg.in/yaml.v2 (a go-mysql-server indirect dependency) are both shaped for
// nested documents, not key=value lines — so this is a justified
// standard-library exception (bufio.Scanner + strings), recorded in
// DESIGN.md.
package config

import (
	"bufio"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/relcore/relcore/errs"
)

// Config is the typed view of configuration table.
type Config struct {
	DatabasePath     string
	LogPath          string
	JDBCServerPort   int
	IgnoreCaseForIdentifiers bool
	DataCacheSize    int64
	MaxCacheEntrySize int64
	MaximumWorkerThreads int
	ReadOnly         bool
	TransactionErrorOnDirtySelect bool
	TableLockCheck   bool
	DebugLogFile     string
	DebugLevel       string
	RegexLibrary     string

	// Extra holds any key this table doesn't name, so an unrecognized
	// setting is preserved rather than silently discarded.
	Extra map[string]string
}

// Defaults mirrors the documented defaults (jdbc_server_port 9157,
// maximum_worker_threads 4); every other field defaults to its Go zero
// value, matching a property file that only overrides what it needs to.
func Defaults() *Config {
	return &Config{
		JDBCServerPort:       9157,
		MaximumWorkerThreads: 4,
	}
}

// Load parses a flat key=value properties file from path. Blank lines and
// lines starting with '#' or ';' are ignored (the common .properties
// comment conventions); unknown keys are preserved in Extra rather than
// rejected, since table is not declared exhaustive.
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errs.ErrIO.New(err.Error())
	}
	defer f.Close()
	return Parse(f)
}

// Parse reads the properties format from r (Load's testable half).
func Parse(r io.Reader) (*Config, error) {
	cfg := Defaults()
	cfg.Extra = map[string]string{}

	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") || strings.HasPrefix(line, ";") {
			continue
		}
		eq := strings.IndexByte(line, '=')
		if eq < 0 {
			continue
		}
		key := strings.TrimSpace(line[:eq])
		value := strings.TrimSpace(line[eq+1:])
		if err := cfg.set(key, value); err != nil {
			return nil, err
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, errs.ErrIO.New(err.Error())
	}
	return cfg, nil
}

func (c *Config) set(key, value string) error {
	switch key {
	case "database_path":
		c.DatabasePath = value
	case "log_path":
		c.LogPath = value
	case "jdbc_server_port":
		n, err := strconv.Atoi(value)
		if err != nil {
			return errs.ErrIO.New("jdbc_server_port: " + err.Error())
		}
		c.JDBCServerPort = n
	case "ignore_case_for_identifiers":
		b, err := strconv.ParseBool(value)
		if err != nil {
			return errs.ErrIO.New("ignore_case_for_identifiers: " + err.Error())
		}
		c.IgnoreCaseForIdentifiers = b
	case "data_cache_size":
		n, err := strconv.ParseInt(value, 10, 64)
		if err != nil {
			return errs.ErrIO.New("data_cache_size: " + err.Error())
		}
		c.DataCacheSize = n
	case "max_cache_entry_size":
		n, err := strconv.ParseInt(value, 10, 64)
		if err != nil {
			return errs.ErrIO.New("max_cache_entry_size: " + err.Error())
		}
		c.MaxCacheEntrySize = n
	case "maximum_worker_threads":
		n, err := strconv.Atoi(value)
		if err != nil {
			return errs.ErrIO.New("maximum_worker_threads: " + err.Error())
		}
		c.MaximumWorkerThreads = n
	case "read_only":
		b, err := strconv.ParseBool(value)
		if err != nil {
			return errs.ErrIO.New("read_only: " + err.Error())
		}
		c.ReadOnly = b
	case "transaction_error_on_dirty_select":
		b, err := strconv.ParseBool(value)
		if err != nil {
			return errs.ErrIO.New("transaction_error_on_dirty_select: " + err.Error())
		}
		c.TransactionErrorOnDirtySelect = b
	case "table_lock_check":
		b, err := strconv.ParseBool(value)
		if err != nil {
			return errs.ErrIO.New("table_lock_check: " + err.Error())
		}
		c.TableLockCheck = b
	case "debug_log_file":
		c.DebugLogFile = value
	case "debug_level":
		c.DebugLevel = value
	case "regex_library":
		c.RegexLibrary = value
	default:
		c.Extra[key] = value
	}
	return nil
}
