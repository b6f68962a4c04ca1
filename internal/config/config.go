// YAML config loader with CUE validation integration
package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// ErrInvalid marks a configuration that failed schema or semantic checks.
var ErrInvalid = errors.New("invalid configuration")

// Registration configures the device registration service client.
type Registration struct {
	Endpoint           string        `yaml:"endpoint"`
	Timeout            time.Duration `yaml:"timeout"`
	InsecureSkipVerify bool          `yaml:"insecure_skip_verify"`
	BreakerFailures    int           `yaml:"breaker_failures"`
	BreakerReset       time.Duration `yaml:"breaker_reset"`
}

// Broker configures the MQTT connection every simulated device opens.
type Broker struct {
	URL                string        `yaml:"url"`
	CACert             string        `yaml:"ca_cert"`
	InsecureSkipVerify bool          `yaml:"insecure_skip_verify"`
	KeepAlive          time.Duration `yaml:"keep_alive"`
	ConnectTimeout     time.Duration `yaml:"connect_timeout"`
	OperationTimeout   time.Duration `yaml:"operation_timeout"`
	DisconnectQuiesce  time.Duration `yaml:"disconnect_quiesce"`
}

// Session identifies the quiz every device joins.
type Session struct {
	ID   string `yaml:"id"`
	Auth string `yaml:"auth"`
}

// Timing holds wait deadlines and the deliberate pauses of each device.
type Timing struct {
	AuthTimeout     time.Duration `yaml:"auth_timeout"`
	StartTimeout    time.Duration `yaml:"start_timeout"`
	QuestionTimeout time.Duration `yaml:"question_timeout"`
	JitterMin       time.Duration `yaml:"jitter_min"`
	JitterMax       time.Duration `yaml:"jitter_max"`
	Linger          time.Duration `yaml:"linger"`
	Stagger         time.Duration `yaml:"stagger"`
	MaxConcurrent   int           `yaml:"max_concurrent"`
}

// Greptime configures the optional GreptimeDB event sink.
type Greptime struct {
	Endpoint string `yaml:"endpoint"`
	Database string `yaml:"database"`
	Table    string `yaml:"table"`
}

// Output selects where event records go.
type Output struct {
	CSV      string   `yaml:"csv"`
	JSONL    string   `yaml:"jsonl"`
	Greptime Greptime `yaml:"greptime"`
}

// Admin configures the status HTTP endpoint. Empty Addr disables it.
type Admin struct {
	Addr string `yaml:"addr"`
}

// Config is the root configuration of a load test run.
type Config struct {
	Devices      int          `yaml:"devices"`
	IDPrefix     string       `yaml:"id_prefix"`
	NamePrefix   string       `yaml:"name_prefix"`
	Registration Registration `yaml:"registration"`
	Broker       Broker       `yaml:"broker"`
	Session      Session      `yaml:"session"`
	Timing       Timing       `yaml:"timing"`
	Output       Output       `yaml:"output"`
	Admin        Admin        `yaml:"admin"`
}

// Default returns a configuration with every default applied.
func Default() *Config {
	cfg := &Config{}
	cfg.ApplyDefaults()
	return cfg
}

// ApplyDefaults fills zero values with the standard load test settings.
func (c *Config) ApplyDefaults() {
	if c.Devices == 0 {
		c.Devices = 200
	}
	if c.IDPrefix == "" {
		c.IDPrefix = "SIMMAC"
	}
	if c.NamePrefix == "" {
		c.NamePrefix = "SimUser"
	}
	if c.Registration.Timeout == 0 {
		c.Registration.Timeout = 10 * time.Second
	}
	if c.Registration.BreakerFailures == 0 {
		c.Registration.BreakerFailures = 5
	}
	if c.Registration.BreakerReset == 0 {
		c.Registration.BreakerReset = 30 * time.Second
	}
	if c.Broker.KeepAlive == 0 {
		c.Broker.KeepAlive = 60 * time.Second
	}
	if c.Broker.ConnectTimeout == 0 {
		c.Broker.ConnectTimeout = 10 * time.Second
	}
	if c.Broker.OperationTimeout == 0 {
		c.Broker.OperationTimeout = 5 * time.Second
	}
	if c.Broker.DisconnectQuiesce == 0 {
		c.Broker.DisconnectQuiesce = 250 * time.Millisecond
	}
	t := &c.Timing
	if t.AuthTimeout == 0 {
		t.AuthTimeout = 10 * time.Second
	}
	if t.StartTimeout == 0 {
		t.StartTimeout = 30 * time.Second
	}
	if t.QuestionTimeout == 0 {
		t.QuestionTimeout = 30 * time.Second
	}
	if t.JitterMin == 0 && t.JitterMax == 0 {
		t.JitterMin = 500 * time.Millisecond
		t.JitterMax = 2 * time.Second
	}
	if t.Linger == 0 {
		t.Linger = 35 * time.Second
	}
	if t.Stagger == 0 {
		t.Stagger = 50 * time.Millisecond
	}
	if c.Output.Greptime.Database == "" {
		c.Output.Greptime.Database = "public"
	}
	if c.Output.Greptime.Table == "" {
		c.Output.Greptime.Table = "quiz_events"
	}
}

// ApplyEnv overrides endpoints from the environment.
func (c *Config) ApplyEnv() {
	if v := os.Getenv("QUIZLOAD_BROKER_URL"); v != "" {
		c.Broker.URL = v
	}
	if v := os.Getenv("QUIZLOAD_REGISTER_ENDPOINT"); v != "" {
		c.Registration.Endpoint = v
	}
	if v := os.Getenv("GREPTIMEDB_ENDPOINT"); v != "" {
		c.Output.Greptime.Endpoint = v
	}
	if v := os.Getenv("GREPTIMEDB_TABLE"); v != "" {
		c.Output.Greptime.Table = v
	}
}

// Check performs the semantic checks the schema cannot express.
func (c *Config) Check() error {
	if c.Devices < 0 {
		return fmt.Errorf("%w: devices must not be negative", ErrInvalid)
	}
	if c.Timing.JitterMax < c.Timing.JitterMin {
		return fmt.Errorf("%w: jitter_max %s below jitter_min %s", ErrInvalid, c.Timing.JitterMax, c.Timing.JitterMin)
	}
	if c.Timing.MaxConcurrent < 0 {
		return fmt.Errorf("%w: max_concurrent must not be negative", ErrInvalid)
	}
	return nil
}

// Load reads YAML config, validates it against a CUE schema and applies defaults.
// An empty schemaPath selects the embedded schema.
func Load(configPath, schemaPath string) (*Config, error) {
	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	schema := embeddedSchema
	if schemaPath != "" {
		if schema, err = os.ReadFile(schemaPath); err != nil {
			return nil, fmt.Errorf("read schema: %w", err)
		}
	}
	return Parse(data, schema)
}

// Parse validates and decodes raw YAML.
func Parse(data, schema []byte) (*Config, error) {
	if err := Validate(data, schema); err != nil {
		return nil, err
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	cfg.ApplyDefaults()
	cfg.ApplyEnv()
	if err := cfg.Check(); err != nil {
		return nil, err
	}
	return &cfg, nil
}
