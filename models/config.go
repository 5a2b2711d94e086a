package models

import (
	"fmt"
	"strings"

	"gopkg.in/ini.v1"
)

// Routing modes for the webhook receiver. In path mode the instance key is a
// URL path segment; in ip mode all instances share one intake path and the
// caller is identified by its source address.
const (
	ModePath = "path"
	ModeIP   = "ip"
)

// Instance holds the connection parameters for one platform instance.
type Instance struct {
	BaseURL    string
	ExtGUID    string
	CtrlSecret string
	SourceIP   string // only consulted in ip mode
}

type Config struct {
	ListenAddr     string
	Mode           string
	WebhookPath    string
	ResultPath     string
	MaxBodyBytes   int64
	EnableCallback bool
	CallbackBase   string // externally reachable base URL for result callbacks

	TestMode bool
	Debug    bool
	DataDir  string

	TargetInstance string
	InstallerPath  string
	SessionType    string
	PushDelaySec   int
	PushMax        int
	CommandTimeout int // milliseconds, embedded in the remote script header

	Instances map[string]Instance
}

func LoadConfig(filename string) (*Config, error) {
	cfg, err := ini.Load(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	config := &Config{
		ListenAddr:     cfg.Section("server").Key("listen").MustString(":8090"),
		Mode:           cfg.Section("server").Key("mode").In(ModePath, []string{ModePath, ModeIP}),
		WebhookPath:    cfg.Section("server").Key("webhook_path").MustString("/webhook"),
		ResultPath:     cfg.Section("server").Key("result_path").MustString("/result"),
		MaxBodyBytes:   cfg.Section("server").Key("max_body_bytes").MustInt64(1 << 20),
		EnableCallback: cfg.Section("server").Key("enable_callback").MustBool(false),
		CallbackBase:   strings.TrimRight(cfg.Section("server").Key("callback_base").String(), "/"),
		TestMode:       cfg.Section("app").Key("test_mode").MustBool(false),
		Debug:          cfg.Section("app").Key("debug").MustBool(false),
		DataDir:        cfg.Section("app").Key("data_dir").MustString("./data"),
		TargetInstance: cfg.Section("migration").Key("target").String(),
		InstallerPath:  cfg.Section("migration").Key("installer_path").MustString("/Bin/ScreenConnect.ClientSetup.msi"),
		SessionType:    cfg.Section("migration").Key("session_type").MustString("Access"),
		PushDelaySec:   cfg.Section("migration").Key("push_delay_seconds").MustInt(5),
		PushMax:        cfg.Section("migration").Key("push_max").MustInt(50),
		CommandTimeout: cfg.Section("migration").Key("command_timeout_ms").MustInt(90000),
		Instances:      make(map[string]Instance),
	}

	for _, section := range cfg.Sections() {
		name := section.Name()
		if !strings.HasPrefix(name, "instance.") {
			continue
		}
		key := strings.TrimPrefix(name, "instance.")
		inst := Instance{
			BaseURL:    strings.TrimRight(section.Key("base_url").String(), "/"),
			ExtGUID:    section.Key("ext_guid").String(),
			CtrlSecret: section.Key("ctrl_secret").String(),
			SourceIP:   section.Key("source_ip").String(),
		}
		if inst.BaseURL == "" {
			return nil, fmt.Errorf("instance %q: base_url is required", key)
		}
		if inst.ExtGUID == "" {
			return nil, fmt.Errorf("instance %q: ext_guid is required", key)
		}
		config.Instances[key] = inst
	}

	if len(config.Instances) == 0 {
		return nil, fmt.Errorf("no [instance.*] sections configured")
	}
	if config.TargetInstance != "" {
		if _, ok := config.Instances[config.TargetInstance]; !ok {
			return nil, fmt.Errorf("migration target %q has no [instance.%s] section", config.TargetInstance, config.TargetInstance)
		}
	}
	if config.EnableCallback && config.CallbackBase == "" {
		return nil, fmt.Errorf("enable_callback requires callback_base")
	}
	if config.EnableCallback && config.Mode != ModePath {
		return nil, fmt.Errorf("enable_callback requires path mode (result callbacks are routed by instance path segment)")
	}

	return config, nil
}

// InstanceBySourceIP resolves an instance by the caller's address (ip mode).
func (c *Config) InstanceBySourceIP(ip string) (string, Instance, bool) {
	for key, inst := range c.Instances {
		if inst.SourceIP != "" && inst.SourceIP == ip {
			return key, inst, true
		}
	}
	return "", Instance{}, false
}

// MaskSecret shortens a secret for log output.
func MaskSecret(s string) string {
	if len(s) <= 4 {
		return "***"
	}
	return s[:2] + "***" + s[len(s)-2:]
}
