package config

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsConfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/google/go-github/v59/github"
	"github.com/kelseyhightower/envconfig"
	"github.com/usb-isoupdater/isoupdater/internal/network"
	"golang.org/x/oauth2"
)

const (
	EnvPrefix             = "ISOUPDATER"
	DefaultConfigFilename = ".iso-usbupdater.yaml"
	DefaultLogFilename    = "Isoupdater.log"
)

type UpdaterConfig struct {
	TargetPath     string        `envconfig:"TARGET" default:"."`
	ConfigFilename string        `envconfig:"CONFIG_FILENAME" default:".iso-usbupdater.yaml"`
	HTTPTimeout    time.Duration `envconfig:"HTTP_TIMEOUT" default:"1m"`
	HTTPRetries    int           `envconfig:"HTTP_RETRIES" default:"4"`
	Retries        int           `envconfig:"RETRIES" default:"0"`
	LogLevel       string        `envconfig:"LOG_LEVEL" default:"info"`
	LogFile        string        `envconfig:"LOG_FILE"`
	GitHubToken    string        `envconfig:"GITHUB_TOKEN"`

	Port                string `envconfig:"PORT" default:"8080"`
	BindAddress         string `envconfig:"BIND_ADDRESS" default:"127.0.0.1"`
	AdminAccessToken    string `envconfig:"ADMIN_ACCESS_TOKEN"`
	DisableRequestCache bool   `envconfig:"DISABLE_REQUEST_CACHE"`

	MirrorBucket          string `envconfig:"MIRROR_BUCKET"`
	MirrorEndpoint        string `envconfig:"MIRROR_ENDPOINT"`
	MirrorAccessKeyID     string `envconfig:"MIRROR_ACCESS_KEY_ID"`
	MirrorSecretAccessKey string `envconfig:"MIRROR_SECRET_ACCESS_KEY"`
	CloudflareAccountID   string `envconfig:"CLOUDFLARE_ACCOUNT_ID"`

	SysfsRoot  string `envconfig:"SYSFS_ROOT" default:"/sys"`
	UdevRoot   string `envconfig:"UDEV_ROOT" default:"/run/udev/data"`
	MountsFile string `envconfig:"MOUNTS_FILE" default:"/proc/self/mounts"`

	Version string
}

func NewUpdaterConfigFromEnv() (*UpdaterConfig, error) {
	var uCfg UpdaterConfig
	err := envconfig.Process(EnvPrefix, &uCfg)
	if err != nil {
		return nil, err
	}
	return &uCfg, nil
}

func (u *UpdaterConfig) GetServerAddr() string {
	return u.BindAddress + ":" + u.Port
}

// ConfigPath is the location of the configuration file on the target media.
func (u *UpdaterConfig) ConfigPath() string {
	return filepath.Join(u.TargetPath, u.ConfigFilename)
}

func (u *UpdaterConfig) LogPath() string {
	if u.LogFile == "" {
		return ""
	}
	if filepath.IsAbs(u.LogFile) {
		return u.LogFile
	}
	return filepath.Join(u.TargetPath, u.LogFile)
}

func (u *UpdaterConfig) CreateGitHubClient() *github.Client {
	if u.GitHubToken == "" {
		return github.NewClient(network.NewRetryableClient(u.HTTPRetries, u.HTTPTimeout).StandardClient())
	}
	oauthClient := oauth2.NewClient(context.Background(), oauth2.StaticTokenSource(&oauth2.Token{AccessToken: u.GitHubToken}))
	return github.NewClient(oauthClient)
}

func (u *UpdaterConfig) MirrorEnabled() bool {
	return u.MirrorBucket != ""
}

func (u *UpdaterConfig) mirrorEndpointResolver(_, _ string, _ ...interface{}) (aws.Endpoint, error) {
	if u.MirrorEndpoint != "" {
		return aws.Endpoint{URL: u.MirrorEndpoint, HostnameImmutable: true}, nil
	}
	return aws.Endpoint{
		URL: fmt.Sprintf("https://%s.r2.cloudflarestorage.com", u.CloudflareAccountID),
	}, nil
}

func (u *UpdaterConfig) CreateS3Client() (*s3.Client, error) {
	if u.MirrorEndpoint == "" && u.CloudflareAccountID == "" {
		return nil, fmt.Errorf("mirror needs either %s_MIRROR_ENDPOINT or %s_CLOUDFLARE_ACCOUNT_ID", EnvPrefix, EnvPrefix)
	}
	staticCredentialsProvider := credentials.NewStaticCredentialsProvider(
		u.MirrorAccessKeyID,
		u.MirrorSecretAccessKey,
		"",
	)
	s3Cfg, err := awsConfig.LoadDefaultConfig(context.TODO(),
		awsConfig.WithRegion("auto"),
		awsConfig.WithEndpointResolverWithOptions(aws.EndpointResolverWithOptionsFunc(u.mirrorEndpointResolver)),
		awsConfig.WithCredentialsProvider(staticCredentialsProvider),
	)
	if err != nil {
		return nil, err
	}
	return s3.NewFromConfig(s3Cfg), nil
}

func (u *UpdaterConfig) GetBucket() *string {
	return &u.MirrorBucket
}
