package models

import (
	"errors"
	"fmt"
	"os"
	"path"
	"reflect"
	"sort"
	"strings"
	"time"

	"github.com/bacalhau-project/vpsdeploy/pkg/sshutils"
	"github.com/mitchellh/go-homedir"
	"github.com/spf13/viper"
)

const (
	DefaultTargetName    = "default"
	DefaultPasswordEnv   = "VPS_PASS"
	DefaultUser          = "root"
	DefaultLocalDistDir  = "dist"
	DefaultLocalAPIDir   = "api"
	DefaultRemoteWebRoot = "/var/www/zued"
	DefaultRemoteAPIRoot = "/var/www/zued-api"
	DefaultUploadsDir    = "/var/www/zued/uploads"
	DefaultProcessName   = "zued-api"
	DefaultEcosystemFile = "ecosystem.config.js"
	DefaultHealthURL     = "http://127.0.0.1:3001/api/health"
	DefaultNginxSitePath = "/etc/nginx/sites-available/zued.online"
	DefaultKnownHosts    = "~/.ssh/known_hosts"

	legacyHostEnv = "VPS_HOST"
	legacyUserEnv = "VPS_USER"
)

var ErrUnknownTarget = errors.New("unknown target")

// FileSpec names one backend file relative to the local api dir.
type FileSpec struct {
	Name     string `json:"name" mapstructure:"name"`
	Required bool   `json:"required" mapstructure:"required"`
}

// DefaultBackendFiles is the fixed backend file set.
func DefaultBackendFiles() []FileSpec {
	return []FileSpec{
		{Name: "server.js", Required: true},
		{Name: "package.json", Required: true},
		{Name: "ecosystem.config.js"},
		{Name: ".env"},
	}
}

// Target is one named deployment destination and the local inputs it is
// built from. Password is only ever populated from the environment.
type Target struct {
	Name string `json:"name" mapstructure:"-"`

	Host                    string        `json:"host" mapstructure:"host"`
	Port                    int           `json:"port" mapstructure:"port"`
	User                    string        `json:"user" mapstructure:"user"`
	PasswordEnv             string        `json:"password_env" mapstructure:"password_env"`
	Password                string        `json:"-" mapstructure:"-"`
	PrivateKeyPath          string        `json:"private_key_path,omitempty" mapstructure:"private_key_path"`
	PrivateKeyPassphraseEnv string        `json:"private_key_passphrase_env,omitempty" mapstructure:"private_key_passphrase_env"`
	UseAgent                bool          `json:"use_agent" mapstructure:"use_agent"`
	KnownHostsPath          string        `json:"known_hosts_path,omitempty" mapstructure:"known_hosts_path"`
	InsecureIgnoreHostKey   bool          `json:"insecure_ignore_host_key" mapstructure:"insecure_ignore_host_key"`
	RetryAttempts           int           `json:"ssh_retry_attempts" mapstructure:"ssh_retry_attempts"`
	CommandTimeout          time.Duration `json:"command_timeout,omitempty" mapstructure:"command_timeout"`

	LocalDistDir string `json:"local_dist_dir" mapstructure:"local_dist_dir"`
	LocalAPIDir  string `json:"local_api_dir" mapstructure:"local_api_dir"`

	RemoteWebRoot   string     `json:"remote_web_root" mapstructure:"remote_web_root"`
	RemoteAPIRoot   string     `json:"remote_api_root" mapstructure:"remote_api_root"`
	UploadsDir      string     `json:"uploads_dir" mapstructure:"uploads_dir"`
	ProcessName     string     `json:"process_name" mapstructure:"process_name"`
	EcosystemFile   string     `json:"ecosystem_file" mapstructure:"ecosystem_file"`
	HealthURL       string     `json:"health_url" mapstructure:"health_url"`
	NginxSitePath   string     `json:"nginx_site_path" mapstructure:"nginx_site_path"`
	ReloadOnInvalid bool       `json:"reload_on_invalid" mapstructure:"reload_on_invalid"`
	BackendFiles    []FileSpec `json:"backend_files" mapstructure:"backend_files"`
}

func NewTarget(name string) *Target {
	return &Target{
		Name:            name,
		Port:            sshutils.DefaultSSHPort,
		User:            DefaultUser,
		PasswordEnv:     DefaultPasswordEnv,
		KnownHostsPath:  DefaultKnownHosts,
		RetryAttempts:   sshutils.SSHRetryAttempts,
		LocalDistDir:    DefaultLocalDistDir,
		LocalAPIDir:     DefaultLocalAPIDir,
		RemoteWebRoot:   DefaultRemoteWebRoot,
		RemoteAPIRoot:   DefaultRemoteAPIRoot,
		UploadsDir:      DefaultUploadsDir,
		ProcessName:     DefaultProcessName,
		EcosystemFile:   DefaultEcosystemFile,
		HealthURL:       DefaultHealthURL,
		NginxSitePath:   DefaultNginxSitePath,
		ReloadOnInvalid: true,
		BackendFiles:    DefaultBackendFiles(),
	}
}

// ReadTargetFromViper resolves a target from defaults, then the
// targets.<name> section of v (including per-key environment overrides such
// as VPSDEPLOY_TARGETS_PROD_HOST when v has AutomaticEnv), then the legacy
// environment. The default target may be defined by the environment alone.
func ReadTargetFromViper(v *viper.Viper, name string) (*Target, error) {
	if name == "" {
		name = DefaultTargetName
	}
	t := NewTarget(name)

	key := "targets." + name
	settings := viper.New()
	for _, field := range targetKeys() {
		if leaf := key + "." + field; v.IsSet(leaf) {
			settings.Set(field, v.Get(leaf))
		}
	}
	if len(settings.AllKeys()) == 0 && !v.IsSet(key) && name != DefaultTargetName {
		return nil, fmt.Errorf("%w: %s", ErrUnknownTarget, name)
	}

	// Decoding into a populated slice merges element-wise, so a configured
	// list must start empty.
	if settings.IsSet("backend_files") {
		t.BackendFiles = nil
	}
	if err := settings.Unmarshal(t); err != nil {
		return nil, fmt.Errorf("failed to parse target %q: %w", name, err)
	}

	t.ApplyEnv(os.LookupEnv)
	if err := t.ExpandPaths(); err != nil {
		return nil, err
	}
	return t, nil
}

// targetKeys lists the configuration keys a target section may set.
func targetKeys() []string {
	typ := reflect.TypeOf(Target{})
	keys := make([]string, 0, typ.NumField())
	for i := 0; i < typ.NumField(); i++ {
		tag, _, _ := strings.Cut(typ.Field(i).Tag.Get("mapstructure"), ",")
		if tag != "" && tag != "-" {
			keys = append(keys, tag)
		}
	}
	return keys
}

// TargetNames returns the configured target names in sorted order.
func TargetNames(v *viper.Viper) []string {
	targets := v.GetStringMap("targets")
	names := make([]string, 0, len(targets))
	for name := range targets {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// ApplyEnv overlays legacy host and user variables and loads secrets from
// the variables the target names.
func (t *Target) ApplyEnv(lookup func(string) (string, bool)) {
	if h, ok := lookup(legacyHostEnv); ok && h != "" {
		t.Host = h
	}
	if u, ok := lookup(legacyUserEnv); ok && u != "" {
		t.User = u
	}
	if t.PasswordEnv != "" {
		if p, ok := lookup(t.PasswordEnv); ok {
			t.Password = p
		}
	}
}

// Passphrase returns the private key passphrase from the environment.
func (t *Target) Passphrase() string {
	if t.PrivateKeyPassphraseEnv == "" {
		return ""
	}
	return os.Getenv(t.PrivateKeyPassphraseEnv)
}

// ExpandPaths resolves ~ in local paths.
func (t *Target) ExpandPaths() error {
	for _, p := range []*string{&t.PrivateKeyPath, &t.KnownHostsPath, &t.LocalDistDir, &t.LocalAPIDir} {
		expanded, err := homedir.Expand(*p)
		if err != nil {
			return fmt.Errorf("failed to expand path %s: %w", *p, err)
		}
		*p = expanded
	}
	return nil
}

// Validate checks the target without touching local files or the network.
func (t *Target) Validate() error {
	if t.Host == "" {
		return fmt.Errorf("target %q: host is required (set targets.%s.host or %s)", t.Name, t.Name, legacyHostEnv)
	}
	if t.Port <= 0 || t.Port > 65535 {
		return fmt.Errorf("target %q: invalid port number: %d", t.Name, t.Port)
	}
	if t.User == "" {
		return fmt.Errorf("target %q: user is required", t.Name)
	}
	if t.Password == "" && t.PrivateKeyPath == "" && !t.UseAgent {
		return fmt.Errorf("target %q: %w (export %s, set private_key_path, or enable use_agent)",
			t.Name, sshutils.ErrNoAuthMethod, t.PasswordEnv)
	}
	if !t.InsecureIgnoreHostKey && t.KnownHostsPath == "" {
		return fmt.Errorf("target %q: known_hosts_path is required unless insecure_ignore_host_key is set", t.Name)
	}
	for field, p := range map[string]string{
		"remote_web_root": t.RemoteWebRoot,
		"remote_api_root": t.RemoteAPIRoot,
		"uploads_dir":     t.UploadsDir,
		"nginx_site_path": t.NginxSitePath,
	} {
		if !path.IsAbs(p) {
			return fmt.Errorf("target %q: %s must be an absolute path, got %q", t.Name, field, p)
		}
	}
	if t.ProcessName == "" {
		return fmt.Errorf("target %q: process_name is required", t.Name)
	}
	for _, f := range t.BackendFiles {
		if f.Name == "" || path.IsAbs(f.Name) {
			return fmt.Errorf("target %q: invalid backend file name %q", t.Name, f.Name)
		}
	}
	return nil
}

// EcosystemPath is the remote path of the process manager ecosystem file.
func (t *Target) EcosystemPath() string {
	if path.IsAbs(t.EcosystemFile) {
		return t.EcosystemFile
	}
	return path.Join(t.RemoteAPIRoot, t.EcosystemFile)
}

func (t *Target) AuthConfig() sshutils.AuthConfig {
	return sshutils.AuthConfig{
		Password:       t.Password,
		PrivateKeyPath: t.PrivateKeyPath,
		Passphrase:     t.Passphrase(),
		UseAgent:       t.UseAgent,
	}
}
