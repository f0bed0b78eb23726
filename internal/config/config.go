package config

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/cloudwego/eino-ext/components/model/ark"
	"github.com/cloudwego/eino/components/model"
)

// Config 聚合整个服务的配置项。
type Config struct {
	Server  ServerConfig
	AI      AIConfig
	Music   MusicConfig
	Storage StorageConfig
	Relay   RelayConfig
	Log     LogConfig
}

// Load 从环境变量加载配置。若设置了 MOOD_DIARY_CONFIG，则先读取该 TOML 文件作为默认值。
func Load() (*Config, error) {
	file, err := loadFileFromEnv()
	if err != nil {
		return nil, err
	}
	return loadWithFile(file)
}

func loadWithFile(file *fileConfig) (*Config, error) {
	src := envSource{file: file.flatten()}

	server, err := loadServerConfig(src)
	if err != nil {
		return nil, err
	}

	ai, err := loadAIConfig(src)
	if err != nil {
		return nil, err
	}

	music, err := loadMusicConfig(src)
	if err != nil {
		return nil, err
	}

	relay, err := loadRelayConfig(src)
	if err != nil {
		return nil, err
	}

	return &Config{
		Server:  server,
		AI:      ai,
		Music:   music,
		Storage: StorageConfig{Path: src.get("STORAGE_PATH", "mood-diary.db")},
		Relay:   relay,
		Log:     LogConfig{Level: src.get("LOG_LEVEL", "info")},
	}, nil
}

// ServerConfig 描述 HTTP 服务配置。
type ServerConfig struct {
	Addr string
	// AllowedOrigins 为 CORS 白名单，包含 "*" 时允许任意来源。
	AllowedOrigins []string
}

// loadServerConfig 解析服务器监听地址。
func loadServerConfig(src envSource) (ServerConfig, error) {
	addr, err := parseAddr("PORT", src.get("PORT", "8080"))
	if err != nil {
		return ServerConfig{}, err
	}
	return ServerConfig{Addr: addr, AllowedOrigins: src.list("CORS_ALLOWED_ORIGINS", []string{"*"})}, nil
}

// parseAddr 允许用户直接传入 "8080"、":8080" 或 "127.0.0.1:8080"。
func parseAddr(key, port string) (string, error) {
	if strings.Contains(port, " ") {
		return "", fmt.Errorf("invalid %s value: %q", key, port)
	}
	if strings.Contains(port, ":") {
		return port, nil
	}
	if _, err := strconv.Atoi(port); err != nil {
		return "", fmt.Errorf("invalid %s value %q: %w", key, port, err)
	}
	return ":" + port, nil
}

// AIConfig 描述大模型相关配置。
type AIConfig struct {
	APIKey         string
	AccessKey      string
	SecretKey      string
	Model          string
	BaseURL        string
	Region         string
	Temperature    *float64
	TopP           *float64
	MaxTokens      *int
	StreamResponse bool
}

// Enabled 表示是否提供了必需的密钥。
func (c AIConfig) Enabled() bool {
	return c.Model != "" && (c.APIKey != "" || (c.AccessKey != "" && c.SecretKey != ""))
}

// NewChatModel 使用配置创建一个模型实例。
func (c AIConfig) NewChatModel(ctx context.Context) (model.ChatModel, error) {
	if !c.Enabled() {
		return nil, fmt.Errorf("Ark 凭证或模型配置缺失，至少提供 ARK_API_KEY + Model 或 AK/SK 组合")
	}

	var temperature *float32
	if c.Temperature != nil {
		val := float32(*c.Temperature)
		temperature = &val
	}

	var topP *float32
	if c.TopP != nil {
		val := float32(*c.TopP)
		topP = &val
	}

	cfg := &ark.ChatModelConfig{
		BaseURL:     c.BaseURL,
		Region:      c.Region,
		APIKey:      c.APIKey,
		AccessKey:   c.AccessKey,
		SecretKey:   c.SecretKey,
		Model:       c.Model,
		MaxTokens:   c.MaxTokens,
		Temperature: temperature,
		TopP:        topP,
	}

	return ark.NewChatModel(ctx, cfg)
}

func loadAIConfig(src envSource) (AIConfig, error) {
	temperature, err := src.optionalFloat("ARK_TEMPERATURE")
	if err != nil {
		return AIConfig{}, err
	}

	topP, err := src.optionalFloat("ARK_TOP_P")
	if err != nil {
		return AIConfig{}, err
	}

	maxTokens, err := src.optionalInt("ARK_MAX_TOKENS")
	if err != nil {
		return AIConfig{}, err
	}
	if maxTokens == nil {
		defaultTokens := 500
		maxTokens = &defaultTokens
	}

	stream, err := src.boolean("ARK_STREAM", true)
	if err != nil {
		return AIConfig{}, err
	}

	return AIConfig{
		APIKey:         src.get("ARK_API_KEY", ""),
		AccessKey:      src.get("ARK_ACCESS_KEY", ""),
		SecretKey:      src.get("ARK_SECRET_KEY", ""),
		Model:          src.get("Model", ""),
		BaseURL:        src.get("ARK_BASE_URL", "https://ark.cn-beijing.volces.com/api/v3"),
		Region:         src.get("ARK_REGION", "cn-beijing"),
		Temperature:    temperature,
		TopP:           topP,
		MaxTokens:      maxTokens,
		StreamResponse: stream,
	}, nil
}

// PlaceholderTrackURL is the externally hosted track used whenever real generation is unavailable.
const PlaceholderTrackURL = "https://www.soundhelix.com/examples/mp3/SoundHelix-Song-1.mp3"

// MusicConfig 描述文本生成音乐服务的配置。
type MusicConfig struct {
	APIKey         string
	BaseURL        string
	Model          string
	CallbackURL    string
	NegativeTags   string
	Instrumental   bool
	PollInterval   time.Duration
	MaxAttempts    int
	ProgressStep   int
	ProgressEvery  time.Duration
	PlaceholderURL string
	RequestTimeout time.Duration
}

// Enabled 表示是否配置了音乐服务密钥；未配置时使用模拟任务。
func (c MusicConfig) Enabled() bool {
	return c.APIKey != ""
}

func loadMusicConfig(src envSource) (MusicConfig, error) {
	interval, err := src.duration("MUSIC_POLL_INTERVAL", 5*time.Second)
	if err != nil {
		return MusicConfig{}, err
	}
	if interval <= 0 {
		return MusicConfig{}, fmt.Errorf("MUSIC_POLL_INTERVAL must be positive")
	}

	attempts := 60
	if override, err := src.optionalInt("MUSIC_MAX_ATTEMPTS"); err != nil {
		return MusicConfig{}, err
	} else if override != nil {
		attempts = max(*override, 1)
	}

	instrumental, err := src.boolean("MUSIC_INSTRUMENTAL", true)
	if err != nil {
		return MusicConfig{}, err
	}

	progressEvery, err := src.duration("MUSIC_PROGRESS_INTERVAL", time.Second)
	if err != nil {
		return MusicConfig{}, err
	}

	timeout, err := src.duration("MUSIC_REQUEST_TIMEOUT", 30*time.Second)
	if err != nil {
		return MusicConfig{}, err
	}

	return MusicConfig{
		APIKey:         src.get("MUSIC_API_KEY", ""),
		BaseURL:        strings.TrimRight(src.get("MUSIC_BASE_URL", "https://api.sunoapi.org"), "/"),
		Model:          src.get("MUSIC_MODEL", "V4"),
		CallbackURL:    src.get("MUSIC_CALLBACK_URL", ""),
		NegativeTags:   src.get("MUSIC_NEGATIVE_TAGS", "heavy metal, screaming"),
		Instrumental:   instrumental,
		PollInterval:   interval,
		MaxAttempts:    attempts,
		ProgressStep:   2,
		ProgressEvery:  progressEvery,
		PlaceholderURL: src.get("MUSIC_PLACEHOLDER_URL", PlaceholderTrackURL),
		RequestTimeout: timeout,
	}, nil
}

// StorageConfig 描述持久化配置。Path 为空时使用内存存储。
type StorageConfig struct {
	Path string
}

// RelayConfig 描述回调中继配置。
type RelayConfig struct {
	// Addr 非空时在主服务之外额外监听一个独立的中继端口。
	Addr string
	// ForwardURL 非空时把厂商回调转发到上游中继，而不是保存在本地。
	ForwardURL string
}

func loadRelayConfig(src envSource) (RelayConfig, error) {
	cfg := RelayConfig{ForwardURL: strings.TrimRight(src.get("RELAY_FORWARD_URL", ""), "/")}
	if raw := src.get("RELAY_ADDR", ""); raw != "" {
		addr, err := parseAddr("RELAY_ADDR", raw)
		if err != nil {
			return RelayConfig{}, err
		}
		cfg.Addr = addr
	}
	return cfg, nil
}

// LogConfig 描述日志配置。
type LogConfig struct {
	Level string
}

// envSource 读取环境变量，缺失时回退到配置文件中的值。
type envSource struct {
	file map[string]string
}

func (s envSource) lookup(key string) (string, bool) {
	if raw, ok := os.LookupEnv(key); ok {
		if value := strings.TrimSpace(raw); value != "" {
			return value, true
		}
	}
	if value, ok := s.file[key]; ok && value != "" {
		return value, true
	}
	return "", false
}

func (s envSource) get(key, defaultValue string) string {
	if value, ok := s.lookup(key); ok {
		return value
	}
	return defaultValue
}

func (s envSource) list(key string, defaultValue []string) []string {
	raw, ok := s.lookup(key)
	if !ok {
		return defaultValue
	}
	var out []string
	for _, item := range strings.Split(raw, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	if len(out) == 0 {
		return defaultValue
	}
	return out
}

func (s envSource) boolean(key string, defaultValue bool) (bool, error) {
	raw, ok := s.lookup(key)
	if !ok {
		return defaultValue, nil
	}

	val, err := strconv.ParseBool(raw)
	if err != nil {
		return false, fmt.Errorf("invalid %s value %q: %w", key, raw, err)
	}
	return val, nil
}

func (s envSource) optionalFloat(key string) (*float64, error) {
	raw, ok := s.lookup(key)
	if !ok {
		return nil, nil
	}

	val, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid %s value %q: %w", key, raw, err)
	}
	return &val, nil
}

func (s envSource) optionalInt(key string) (*int, error) {
	raw, ok := s.lookup(key)
	if !ok {
		return nil, nil
	}

	val, err := strconv.Atoi(raw)
	if err != nil {
		return nil, fmt.Errorf("invalid %s value %q: %w", key, raw, err)
	}
	return &val, nil
}

// duration 接受 Go 时长格式 ("3s") 或纯数字秒数 ("3")。
func (s envSource) duration(key string, defaultValue time.Duration) (time.Duration, error) {
	raw, ok := s.lookup(key)
	if !ok {
		return defaultValue, nil
	}

	if secs, err := strconv.Atoi(raw); err == nil {
		return time.Duration(secs) * time.Second, nil
	}

	val, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s value %q: %w", key, raw, err)
	}
	return val, nil
}
