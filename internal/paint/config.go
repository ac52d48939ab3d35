package paint

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"

	"github.com/charmbracelet/log"
	"github.com/joho/godotenv"

	"github.com/blacktop/sdpaint/internal/cloudflare"
)

// Environment variables holding the Cloudflare credentials.
const (
	EnvAPIToken  = "CLOUDFLARE_API_TOKEN"
	EnvAccountID = "CLOUDFLARE_ACCOUNT_ID"
)

// ErrMissingCredentials is returned in ModeAbort when a credential is absent.
var ErrMissingCredentials = errors.New("missing credentials")

// CredentialMode decides what happens when credentials are missing.
type CredentialMode int

const (
	// ModeWarn raises the configuration warning and keeps going.
	ModeWarn CredentialMode = iota
	// ModeAbort fails construction.
	ModeAbort
)

func (m CredentialMode) String() string {
	switch m {
	case ModeWarn:
		return "warn"
	case ModeAbort:
		return "abort"
	default:
		return fmt.Sprintf("CredentialMode(%d)", int(m))
	}
}

// Configuration holds the user editable generation parameters.
type Configuration struct {
	Model         string
	Prompt        string
	GuidanceScale int
	Steps         int
}

// DefaultConfiguration returns the initial form values.
func DefaultConfiguration() Configuration {
	return Configuration{
		Model:         cloudflare.DefaultModel,
		Prompt:        "A photo of a cat",
		GuidanceScale: 7,
		Steps:         15,
	}
}

// LoadDotEnv loads KEY=VALUE files into the process environment without
// overriding variables that are already set. A missing file is not an error.
func LoadDotEnv(logger *log.Logger, files ...string) error {
	if len(files) == 0 {
		files = []string{".env"}
	}
	for _, f := range files {
		if err := godotenv.Load(f); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				logger.Debug("env file not found, using environment variables", "file", f)
				continue
			}
			return fmt.Errorf("failed to load env file %s: %w", f, err)
		}
		logger.Debug("Loaded env file", "file", f)
	}
	return nil
}

// credentialsFromEnv reads both credential variables and returns the names of
// the ones that are absent or empty.
func credentialsFromEnv() (cloudflare.Credentials, []string) {
	var (
		creds   cloudflare.Credentials
		missing []string
	)
	if v, ok := os.LookupEnv(EnvAPIToken); ok && v != "" {
		creds.APIToken = v
	} else {
		missing = append(missing, EnvAPIToken)
	}
	if v, ok := os.LookupEnv(EnvAccountID); ok && v != "" {
		creds.AccountID = v
	} else {
		missing = append(missing, EnvAccountID)
	}
	return creds, missing
}

func missingError(missing []string) error {
	return fmt.Errorf("%w: %s must be set", ErrMissingCredentials, strings.Join(missing, " and "))
}
