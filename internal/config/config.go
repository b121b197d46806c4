package config

import (
	"fmt"
	"os"
	"regexp"
	"strconv"
	"strings"
	"time"

	"scanbridge/internal/domain"
)

type Config struct {
	Env        string
	ListenAddr string
	LogLevel   string
	LogFormat  string

	// JobsDatabaseURL selects the Postgres job store; empty keeps jobs in memory.
	JobsDatabaseURL string

	Scanner   Scanner
	Browser   Browser
	Converter Converter

	// ArtifactDir receives downloaded scans; empty disables the download stage.
	ArtifactDir string
}

type Scanner struct {
	URLTemplate  string
	InsecureTLS  bool
	Deadline     time.Duration
	PollInterval time.Duration
}

type Browser struct {
	ExecPath string
	Headless bool
}

type Converter struct {
	URL       string
	Format    string
	Workspace string
	Timeout   time.Duration
}

var cameraRe = regexp.MustCompile(`^[0-9]{1,3}$`)

// BaseURL returns the scanner base URL for a camera selector (the last octet of its address).
func (s Scanner) BaseURL(camera string) (string, error) {
	if !cameraRe.MatchString(camera) {
		return "", fmt.Errorf("%w: %q", domain.ErrInvalidCamera, camera)
	}
	return strings.TrimRight(fmt.Sprintf(s.URLTemplate, camera), "/"), nil
}

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func Load() (Config, error) {
	cfg := Config{
		Env:             getenv("APP_ENV", "development"),
		ListenAddr:      getenv("LISTEN_ADDR", ":5000"),
		LogLevel:        getenv("LOG_LEVEL", "info"),
		LogFormat:       getenv("LOG_FORMAT", "json"),
		JobsDatabaseURL: os.Getenv("JOBS_DATABASE_URL"),
		ArtifactDir:     os.Getenv("ARTIFACT_DIR"),
		Scanner: Scanner{
			URLTemplate:  getenv("SCANNER_URL_TEMPLATE", "https://141.70.213.%s"),
			InsecureTLS:  getenvBool("SCANNER_INSECURE_TLS", true),
			Deadline:     getenvDuration("SCAN_DEADLINE", 500*time.Second),
			PollInterval: getenvDuration("SCAN_POLL_INTERVAL", 500*time.Millisecond),
		},
		Browser: Browser{
			ExecPath: os.Getenv("CHROME_PATH"),
			Headless: getenvBool("BROWSER_HEADLESS", true),
		},
		Converter: Converter{
			URL:       strings.TrimRight(os.Getenv("CONVERTER_URL"), "/"),
			Format:    getenv("CONVERTER_FORMAT", "e57"),
			Workspace: os.Getenv("CONVERTER_WORKSPACE"),
			Timeout:   getenvDuration("CONVERTER_TIMEOUT", 65*time.Minute),
		},
	}
	if strings.Count(cfg.Scanner.URLTemplate, "%s") != 1 {
		return cfg, fmt.Errorf("SCANNER_URL_TEMPLATE must contain exactly one %%s, got %q", cfg.Scanner.URLTemplate)
	}
	if cfg.Scanner.PollInterval <= 0 || cfg.Scanner.PollInterval > time.Second {
		return cfg, fmt.Errorf("SCAN_POLL_INTERVAL must be in (0, 1s], got %s", cfg.Scanner.PollInterval)
	}
	return cfg, nil
}

func getenvInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		var out int
		_, err := fmt.Sscanf(v, "%d", &out)
		if err == nil {
			return out
		}
	}
	return def
}

func getenvBool(key string, def bool) bool {
	if v := os.Getenv(key); v != "" {
		b, err := strconv.ParseBool(v)
		if err == nil {
			return b
		}
	}
	return def
}

func getenvDuration(key string, def time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		d, err := time.ParseDuration(v)
		if err == nil {
			return d
		}
	}
	return def
}

// Worker configures the bridge worker process.
type Worker struct {
	BridgeURL    string
	WorkerID     string
	ConverterExe string
	Concurrency  int
	PollInterval time.Duration
	Format       string
	JobTimeout   time.Duration
	LogLevel     string
	LogFormat    string
}

func LoadWorker() Worker {
	host, _ := os.Hostname()
	return Worker{
		BridgeURL:    strings.TrimRight(getenv("BRIDGE_URL", "http://localhost:5000"), "/"),
		WorkerID:     getenv("WORKER_ID", getenv("HOSTNAME", host)),
		ConverterExe: os.Getenv("CONVERTER_EXE"),
		Concurrency:  getenvInt("WORKER_CONCURRENCY", 1),
		PollInterval: getenvDuration("WORKER_POLL_INTERVAL", 2*time.Second),
		Format:       getenv("WORKER_FORMAT", "e57"),
		JobTimeout:   getenvDuration("WORKER_JOB_TIMEOUT", time.Hour),
		LogLevel:     getenv("LOG_LEVEL", "info"),
		LogFormat:    getenv("LOG_FORMAT", "json"),
	}
}
