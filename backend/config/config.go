package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"golang.org/x/crypto/bcrypt"
	ini "gopkg.in/ini.v1"
)

// Config 进程配置（INI 文件 + 环境变量覆盖）
type Config struct {
	Server     ServerConf     `ini:"server"`
	Upstream   UpstreamConf   `ini:"upstream"`
	Panel      PanelConf      `ini:"panel"`
	Membership MembershipConf `ini:"membership"`
	Database   DatabaseConf   `ini:"database"`
	Telegram   TelegramConf   `ini:"telegram"`
	Sync       SyncConf       `ini:"sync"`
	Log        LogConf        `ini:"log"`
	Admin      AdminConf      `ini:"admin"`
	Fallback   FallbackConf   `ini:"fallback"`
}

type ServerConf struct {
	Addr          string `ini:"addr"`
	PublicBaseURL string `ini:"public_base_url"`
}

// UpstreamConf 订阅上游（面板 /sub/{token}）
type UpstreamConf struct {
	BaseURL   string        `ini:"base_url"`
	VerifySSL bool          `ini:"verify_ssl"`
	Timeout   time.Duration `ini:"timeout"`
}

type PanelConf struct {
	Kind      string        `ini:"kind"`
	BaseURL   string        `ini:"base_url"`
	APIKey    string        `ini:"api_key"`
	Username  string        `ini:"username"`
	Password  string        `ini:"password"`
	VerifySSL bool          `ini:"verify_ssl"`
	Timeout   time.Duration `ini:"timeout"`
	SquadUUID string        `ini:"squad_uuid"`
}

type MembershipConf struct {
	BaseURL string        `ini:"base_url"`
	Timeout time.Duration `ini:"timeout"`
}

type DatabaseConf struct {
	Driver string `ini:"driver"`
	DSN    string `ini:"dsn"`
}

type TelegramConf struct {
	BotToken string `ini:"bot_token"`
}

type SyncConf struct {
	Interval  time.Duration `ini:"interval"`
	Notify    bool          `ini:"notify"`
	RateLimit float64       `ini:"rate_limit"`
	LockFile  string        `ini:"lock_file"`
}

type LogConf struct {
	Level   string `ini:"level"`
	File    string `ini:"file"`
	Console bool   `ini:"console"`
}

type AdminConf struct {
	Username     string `ini:"username"`
	Password     string `ini:"password"`
	PasswordHash string `ini:"password_hash"`
}

// FallbackConf 合成兜底链接所用的固定参数
type FallbackConf struct {
	TrojanHost        string `ini:"trojan_host"`
	TrojanPort        int    `ini:"trojan_port"`
	TrojanPath        string `ini:"trojan_path"`
	TrojanSNI         string `ini:"trojan_sni"`
	TrojanFingerprint string `ini:"trojan_fingerprint"`
	SSHost            string `ini:"ss_host"`
	SSPort            int    `ini:"ss_port"`
	SSCipher          string `ini:"ss_cipher"`
	SSKey             string `ini:"ss_key"`
}

// Default 返回全部字段的默认值
func Default() Config {
	return Config{
		Server: ServerConf{Addr: ":8000"},
		Upstream: UpstreamConf{
			BaseURL:   "https://instabotwebhook.ru:8000",
			VerifySSL: true,
			Timeout:   30 * time.Second,
		},
		Panel: PanelConf{
			Kind:      "remnawave",
			BaseURL:   "https://panel.momscommunity.ru:444",
			VerifySSL: true,
			Timeout:   30 * time.Second,
			SquadUUID: "28dc32e7-4091-4ef6-84e5-9cd7c5779b90",
		},
		Membership: MembershipConf{
			BaseURL: "http://127.0.0.1:8000",
			Timeout: 5 * time.Second,
		},
		Database: DatabaseConf{Driver: "sqlite", DSN: "data/users.db"},
		Sync: SyncConf{
			RateLimit: 10,
			LockFile:  "data/vpnsync.lock",
		},
		Log:   LogConf{Level: "info", Console: true},
		Admin: AdminConf{Username: "admin"},
		Fallback: FallbackConf{
			TrojanHost:        "instabotwebhook.ru",
			TrojanPort:        443,
			TrojanPath:        "/trojanws",
			TrojanSNI:         "instabotwebhook.ru",
			TrojanFingerprint: "chrome",
			SSHost:            "31.130.130.238",
			SSPort:            8388,
			SSCipher:          "2022-blake3-aes-128-gcm",
			SSKey:             "6Xtl5eyOFNZ73i0xfHWeCw==",
		},
	}
}

// Load 读取配置文件（文件不存在时只使用默认值），再应用环境变量覆盖。
func Load(fileName string) (Config, error) {
	cfg := Default()
	if fileName != "" {
		if _, err := os.Stat(fileName); err == nil {
			iniFile, err := ini.Load(fileName)
			if err != nil {
				return cfg, fmt.Errorf("load %s: %w", fileName, err)
			}
			if err := iniFile.MapTo(&cfg); err != nil {
				return cfg, fmt.Errorf("map %s: %w", fileName, err)
			}
		} else if !errors.Is(err, os.ErrNotExist) {
			return cfg, err
		}
	}

	applyEnv(&cfg)

	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func applyEnv(cfg *Config) {
	overrideFromEnvString(&cfg.Server.Addr, "LISTEN_ADDR")
	overrideFromEnvString(&cfg.Server.PublicBaseURL, "PUBLIC_BASE_URL")

	overrideFromEnvString(&cfg.Upstream.BaseURL, "MARZBAN_URL")
	overrideFromEnvBool(&cfg.Upstream.VerifySSL, "MARZBAN_VERIFY_SSL")

	overrideFromEnvString(&cfg.Panel.Kind, "PANEL_KIND")
	overrideFromEnvString(&cfg.Panel.BaseURL, "REMNAWAVE_URL")
	overrideFromEnvString(&cfg.Panel.APIKey, "REMNAWAVE_API_KEY")
	overrideFromEnvBool(&cfg.Panel.VerifySSL, "REMNAWAVE_VERIFY_SSL")
	overrideFromEnvString(&cfg.Panel.Username, "MARZBAN_USERNAME")
	overrideFromEnvString(&cfg.Panel.Password, "MARZBAN_PASSWORD")
	if strings.EqualFold(cfg.Panel.Kind, "marzban") {
		overrideFromEnvString(&cfg.Panel.BaseURL, "MARZBAN_URL")
		overrideFromEnvBool(&cfg.Panel.VerifySSL, "MARZBAN_VERIFY_SSL")
	}

	overrideFromEnvString(&cfg.Membership.BaseURL, "MOMSCLUB_API")
	overrideFromEnvString(&cfg.Database.Driver, "DATABASE_DRIVER")
	overrideFromEnvString(&cfg.Database.DSN, "DATABASE_DSN")
	overrideFromEnvString(&cfg.Telegram.BotToken, "BOT_TOKEN")
	overrideFromEnvDuration(&cfg.Sync.Interval, "SYNC_INTERVAL")
	overrideFromEnvString(&cfg.Log.Level, "LOG_LEVEL")
	overrideFromEnvString(&cfg.Admin.Username, "ADMIN_PANEL_USERNAME")
	overrideFromEnvString(&cfg.Admin.Password, "ADMIN_PANEL_PASSWORD")
}

// Validate 校验配置
func (c Config) Validate() error {
	var errs []error
	if strings.TrimSpace(c.Upstream.BaseURL) == "" {
		errs = append(errs, errors.New("upstream.base_url is required"))
	}
	if c.Upstream.Timeout <= 0 {
		errs = append(errs, errors.New("upstream.timeout must be positive"))
	}
	switch strings.ToLower(c.Panel.Kind) {
	case "remnawave", "marzban":
	default:
		errs = append(errs, fmt.Errorf("panel.kind %q is not supported", c.Panel.Kind))
	}
	if c.Sync.Interval < 0 {
		errs = append(errs, errors.New("sync.interval must not be negative"))
	}
	if err := c.Fallback.Validate(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

func (f FallbackConf) Validate() error {
	var errs []error
	if strings.TrimSpace(f.TrojanHost) == "" {
		errs = append(errs, errors.New("fallback.trojan_host is required"))
	}
	if f.TrojanPort <= 0 || f.TrojanPort > 65535 {
		errs = append(errs, fmt.Errorf("fallback.trojan_port %d is out of range", f.TrojanPort))
	}
	if strings.TrimSpace(f.SSHost) == "" {
		errs = append(errs, errors.New("fallback.ss_host is required"))
	}
	if f.SSPort <= 0 || f.SSPort > 65535 {
		errs = append(errs, fmt.Errorf("fallback.ss_port %d is out of range", f.SSPort))
	}
	if strings.TrimSpace(f.SSCipher) == "" || strings.TrimSpace(f.SSKey) == "" {
		errs = append(errs, errors.New("fallback.ss_cipher and fallback.ss_key are required"))
	}
	return errors.Join(errs...)
}

// PasswordHashBytes 返回管理员密码的 bcrypt 哈希；未配置密码时返回 nil（管理接口关闭）。
func (a AdminConf) PasswordHashBytes() ([]byte, error) {
	if a.PasswordHash != "" {
		if _, err := bcrypt.Cost([]byte(a.PasswordHash)); err != nil {
			return nil, fmt.Errorf("admin.password_hash: %w", err)
		}
		return []byte(a.PasswordHash), nil
	}
	if a.Password == "" {
		return nil, nil
	}
	return bcrypt.GenerateFromPassword([]byte(a.Password), bcrypt.DefaultCost)
}

func overrideFromEnvString(target *string, envName string) {
	if v, ok := os.LookupEnv(envName); ok && strings.TrimSpace(v) != "" {
		*target = strings.TrimSpace(v)
	}
}

func overrideFromEnvBool(target *bool, envName string) {
	envValue := strings.TrimSpace(os.Getenv(envName))
	if envValue == "" {
		return
	}
	// 与原有部署保持一致：只有显式 "false" 才关闭
	*target = !strings.EqualFold(envValue, "false")
}

func overrideFromEnvDuration(target *time.Duration, envName string) {
	envValue := strings.TrimSpace(os.Getenv(envName))
	if envValue == "" {
		return
	}
	if d, err := time.ParseDuration(envValue); err == nil {
		*target = d
		return
	}
	if secs, err := strconv.Atoi(envValue); err == nil {
		*target = time.Duration(secs) * time.Second
	}
}
