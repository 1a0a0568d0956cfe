// Package manifest loads and validates duvet.yaml, the project
// configuration: which sources to scan, which coverage profiles to
// import, the rules to verify, and where reports go.
package manifest

import (
	"errors"
	"fmt"
	"os"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/imabhichow/duvet/pkg/verify"
)

// ErrInvalidManifest wraps all validation failures.
var ErrInvalidManifest = errors.New("invalid manifest")

// Manifest is the top-level duvet.yaml document.
type Manifest struct {
	// Project names the project; archive rows are keyed by it.
	Project string `yaml:"project" validate:"required"`
	// Store is the data directory for the backing store.
	Store StoreConfig `yaml:"store"`
	// Sources lists the source sets to scan for citations and spans.
	Sources []SourceSet `yaml:"sources" validate:"required,min=1,dive"`
	// Coverage lists coverage inputs to import.
	Coverage CoverageConfig `yaml:"coverage"`
	// Rules are the verify expressions to check after extraction.
	Rules []RuleConfig `yaml:"rules" validate:"dive"`
	// Report configures rendered outputs.
	Report ReportConfig `yaml:"report"`
	// Server configures the query API.
	Server ServerConfig `yaml:"server"`
	// Archive configures the Postgres region archive. Empty DSN disables it.
	Archive ArchiveConfig `yaml:"archive"`
	// Export configures S3 artifact upload. Empty bucket disables it.
	Export ExportConfig `yaml:"export"`
	// Ingest configures the remote mark bus.
	Ingest IngestConfig `yaml:"ingest"`
}

// StoreConfig locates the backing store.
type StoreConfig struct {
	Dir        string `yaml:"dir"`
	SyncWrites bool   `yaml:"sync_writes"`
}

// SourceSet selects files and sets their citation comment style.
type SourceSet struct {
	// Pattern is a filepath glob relative to the manifest directory.
	Pattern string `yaml:"pattern" validate:"required"`
	// MetaPrefix opens a citation meta line. Default "//=".
	MetaPrefix string `yaml:"meta_prefix"`
	// ContentPrefix opens a citation content line. Default "//#".
	ContentPrefix string `yaml:"content_prefix"`
	// DefaultType is the entity type for citations without an explicit
	// type meta. Default "citation".
	DefaultType string `yaml:"default_type"`
	// Syntactic enables Go AST span extraction for this set.
	Syntactic bool `yaml:"syntactic"`
}

// CoverageConfig lists coverage inputs.
type CoverageConfig struct {
	// Profiles are Go cover profiles (go test -coverprofile).
	Profiles []string `yaml:"profiles"`
	// LLVMJSON are llvm-cov export JSON files.
	LLVMJSON []string `yaml:"llvm_json"`
}

// RuleConfig is one verify rule in source form.
type RuleConfig struct {
	Subject string `yaml:"subject" validate:"required"`
	Expr    string `yaml:"expr" validate:"required"`
}

// ReportConfig sets report output paths. Empty paths disable a format.
type ReportConfig struct {
	JSON string `yaml:"json"`
	HTML string `yaml:"html"`
	Text string `yaml:"text"`
}

// ServerConfig configures the query API server.
type ServerConfig struct {
	// Addr is the listen address. Default ":8080".
	Addr string `yaml:"addr"`
	// JWTSecret enables bearer-token auth when non-empty.
	JWTSecret string `yaml:"jwt_secret"`
}

// ArchiveConfig configures the Postgres archive.
type ArchiveConfig struct {
	DSN string `yaml:"dsn"`
}

// ExportConfig configures S3 upload of rendered reports.
type ExportConfig struct {
	Bucket string `yaml:"bucket"`
	Prefix string `yaml:"prefix"`
	Region string `yaml:"region"`
}

// IngestConfig configures the remote mark bus.
type IngestConfig struct {
	// BusAddr is the pull socket address, e.g. "tcp://0.0.0.0:7100".
	BusAddr string `yaml:"bus_addr"`
}

// Defaults fills zero-value fields with their documented defaults.
func (m *Manifest) Defaults() {
	if m.Store.Dir == "" {
		m.Store.Dir = ".duvet"
	}
	if m.Server.Addr == "" {
		m.Server.Addr = ":8080"
	}
	for i := range m.Sources {
		s := &m.Sources[i]
		if s.MetaPrefix == "" {
			s.MetaPrefix = "//="
		}
		if s.ContentPrefix == "" {
			s.ContentPrefix = "//#"
		}
		if s.DefaultType == "" {
			s.DefaultType = "citation"
		}
	}
}

// Load reads, defaults, and validates a manifest file.
func Load(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read manifest: %w", err)
	}
	return Parse(data)
}

// Parse decodes and validates manifest bytes.
func Parse(data []byte) (*Manifest, error) {
	var m Manifest
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidManifest, err)
	}
	m.Defaults()

	if err := validator.New().Struct(&m); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			for _, fe := range verrs {
				return nil, fmt.Errorf("%w: field %s fails %q", ErrInvalidManifest, fe.Namespace(), fe.Tag())
			}
		}
		return nil, fmt.Errorf("%w: %v", ErrInvalidManifest, err)
	}

	// Rule expressions must parse; surface bad ones at load time, not
	// mid-extract.
	for _, r := range m.Rules {
		if _, err := verify.Parse(r.Expr); err != nil {
			return nil, fmt.Errorf("%w: rule for %q: %v", ErrInvalidManifest, r.Subject, err)
		}
	}
	return &m, nil
}

// ParsedRules returns the manifest's rules with compiled expressions.
func (m *Manifest) ParsedRules() ([]verify.Rule, error) {
	out := make([]verify.Rule, 0, len(m.Rules))
	for _, r := range m.Rules {
		expr, err := verify.Parse(r.Expr)
		if err != nil {
			return nil, fmt.Errorf("%w: rule for %q: %v", ErrInvalidManifest, r.Subject, err)
		}
		out = append(out, verify.Rule{Subject: r.Subject, Expr: expr})
	}
	return out, nil
}
