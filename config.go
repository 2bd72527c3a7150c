package convai

import (
	"fmt"
	"os"

	"github.com/goccy/go-yaml"
	"github.com/joho/godotenv"
	"github.com/siwaht/convai/shared"
)

// ConnectionType selects the transport. Only the WebSocket path is
// implemented; requesting WebRTC fails fast with no partial session.
type ConnectionType int

const (
	ConnectionWebSocket ConnectionType = iota
	ConnectionWebRTC
)

func (c ConnectionType) String() string {
	switch c {
	case ConnectionWebSocket:
		return "websocket"
	case ConnectionWebRTC:
		return "webrtc"
	default:
		return "unknown"
	}
}

func ParseConnectionType(s string) (ConnectionType, error) {
	switch s {
	case "", "websocket":
		return ConnectionWebSocket, nil
	case "webrtc":
		return ConnectionWebRTC, nil
	default:
		return 0, fmt.Errorf("%w: %q", shared.ErrUnknownConnectionType, s)
	}
}

// Config is the host-facing configuration for a voice call.
type Config struct {
	AgentID        string `yaml:"agent_id"`
	ConnectionType string `yaml:"connection_type"`
	BaseURL        string `yaml:"base_url"`
	APIKey         string `yaml:"api_key"`
	LogFile        string `yaml:"log_file"`
}

// Environment variable keys, applied over file values.
const (
	envKeyAgentID = "CONVAI_AGENT_ID"
	envKeyBaseURL = "CONVAI_BASE_URL"
	envKeyAPIKey  = "CONVAI_API_KEY"
)

// LoadConfig reads an optional YAML file and overlays environment
// variables (a .env file is honored when present).
func LoadConfig(path string) (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{ConnectionType: "websocket"}
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing config file: %w", err)
		}
	}

	var err error
	if cfg.AgentID, err = shared.Getenv(shared.GetenvString, envKeyAgentID, false, cfg.AgentID); err != nil {
		return nil, err
	}
	if cfg.BaseURL, err = shared.Getenv(shared.GetenvString, envKeyBaseURL, false, cfg.BaseURL); err != nil {
		return nil, err
	}
	if cfg.APIKey, err = shared.Getenv(shared.GetenvString, envKeyAPIKey, false, cfg.APIKey); err != nil {
		return nil, err
	}
	if _, err = ParseConnectionType(cfg.ConnectionType); err != nil {
		return nil, err
	}
	return cfg, nil
}
