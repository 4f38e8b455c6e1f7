package config

import (
	"bytes"
	"fmt"
	"os"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"
)

// Settings is the full configuration surface. Decoding is strict: a key
// outside this shape is a startup error.
type Settings struct {
	Path          string        `yaml:"path"`
	TLS           TLSConfig     `yaml:"tls_config"`
	Authenticator Authenticator `yaml:"authenticator"`
	JWTManager    JWTManager    `yaml:"jwt_manager"`
	Sync          Sync          `yaml:"sync"`
}

// TLSConfig holds the listener material and bind addresses
type TLSConfig struct {
	KeyPath         string `yaml:"key_path"`
	CertPath        string `yaml:"cert_path"`
	ApplicationBind string `yaml:"application_bind"`
	MetricsBind     string `yaml:"metrics_bind"`
}

// Enabled reports whether TLS termination is configured
func (t TLSConfig) Enabled() bool {
	return t.KeyPath != "" && t.CertPath != ""
}

// Authenticator is the OAuth client configuration consumed by the login
// collaborator; the core only validates its shape
type Authenticator struct {
	ClientID     string `yaml:"client_id"`
	ClientSecret string `yaml:"client_secret"`
	AuthURI      string `yaml:"auth_uri"`
	TokenURI     string `yaml:"token_uri"`
	RedirectURI  string `yaml:"redirect_uri"`
}

// JWTManager is the token-minting configuration consumed by the login
// collaborator
type JWTManager struct {
	KeyPath         string   `yaml:"key_path"`
	DurationMinutes int      `yaml:"duration_minutes"`
	AcceptedDomains []string `yaml:"accepted_domains"`
}

// Sync is this node's replication identity and topology. The ids are
// declared as strings because YAML has no uuid notion; validation parses
// them once at startup.
type Sync struct {
	ID               string   `yaml:"id"`
	Parent           string   `yaml:"parent"`
	ApprovedChildren []string `yaml:"approved_children"`

	nodeID   uuid.UUID
	children []uuid.UUID
}

// NodeID returns the parsed node id
func (s *Sync) NodeID() uuid.UUID { return s.nodeID }

// Children returns the parsed approved child ids
func (s *Sync) Children() []uuid.UUID { return s.children }

// Load reads and validates the settings file
func Load(path string) (*Settings, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}
	return Parse(data)
}

// Parse decodes settings from YAML, rejecting unrecognized options
func Parse(data []byte) (*Settings, error) {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)

	var s Settings
	if err := dec.Decode(&s); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	if err := s.validate(); err != nil {
		return nil, err
	}
	s.applyDefaults()
	return &s, nil
}

func (s *Settings) validate() error {
	if s.Path == "" {
		return fmt.Errorf("config: path is required")
	}
	if s.Sync.ID == "" {
		return fmt.Errorf("config: sync.id is required")
	}
	nodeID, err := uuid.Parse(s.Sync.ID)
	if err != nil {
		return fmt.Errorf("config: sync.id: %w", err)
	}
	s.Sync.nodeID = nodeID
	for _, raw := range s.Sync.ApprovedChildren {
		child, err := uuid.Parse(raw)
		if err != nil {
			return fmt.Errorf("config: sync.approved_children %q: %w", raw, err)
		}
		s.Sync.children = append(s.Sync.children, child)
	}
	if (s.TLS.KeyPath == "") != (s.TLS.CertPath == "") {
		return fmt.Errorf("config: tls_config needs both key_path and cert_path")
	}
	if s.Authenticator != (Authenticator{}) {
		if s.Authenticator.ClientID == "" || s.Authenticator.ClientSecret == "" ||
			s.Authenticator.AuthURI == "" || s.Authenticator.TokenURI == "" ||
			s.Authenticator.RedirectURI == "" {
			return fmt.Errorf("config: authenticator is incomplete")
		}
	}
	return nil
}

func (s *Settings) applyDefaults() {
	if s.TLS.ApplicationBind == "" {
		s.TLS.ApplicationBind = ":8080"
	}
	if s.TLS.MetricsBind == "" {
		s.TLS.MetricsBind = "127.0.0.1:9090"
	}
}
