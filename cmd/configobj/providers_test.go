package main

import (
	"bytes"
	"os"
	"path/filepath"

	"github.com/animalet/configobj/pkg/secrets"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

var _ = Describe("Secret providers", func() {
	var (
		tempDir    string
		secretsDir string
		registry   *secrets.Registry
	)

	BeforeEach(func() {
		tempDir = GinkgoT().TempDir()
		secretsDir = filepath.Join(tempDir, "secrets")
		Expect(os.Mkdir(secretsDir, 0700)).To(Succeed())
		Expect(os.WriteFile(filepath.Join(secretsDir, "db_password"), []byte("filepass\n"), 0600)).To(Succeed())

		registry = secrets.NewRegistry(secrets.NewEnvironment(map[string]string{
			"SECRETS_DIR": secretsDir,
			"VAULT_TOKEN": "s.token",
		}))

		previous, level := log.Logger, zerolog.GlobalLevel()
		DeferCleanup(func() {
			log.Logger = previous
			zerolog.SetGlobalLevel(level)
		})
	})

	write := func(name, content string) string {
		path := filepath.Join(tempDir, name)
		Expect(os.WriteFile(path, []byte(content), 0600)).To(Succeed())
		return path
	}

	It("should register nothing without a providers file", func() {
		cleanup, err := loadProviders("", registry)
		Expect(err).NotTo(HaveOccurred())
		cleanup()
		Expect(registry.Prefixes()).To(Equal([]string{"env"}))
	})

	It("should expand placeholders in provider settings", func() {
		path := write("providers.yaml", `
vault:
  address: http://localhost:8200
  token: ${@env.VAULT_TOKEN}
  path: secret/data/app
file_resolver:
  secrets_dir: ${SECRETS_DIR}
redis:
  address: localhost:6379
  key_prefix: "app:"
  idle_timeout: 240s
`)
		cfg, err := readProviders(path, registry)
		Expect(err).NotTo(HaveOccurred())
		Expect(cfg.Vault.Token).To(Equal("s.token"))
		Expect(cfg.FileResolver.SecretsDir).To(Equal(secretsDir))
		Expect(cfg.Redis.KeyPrefix).To(Equal("app:"))
		Expect(cfg.AWS).To(BeNil())
		Expect(cfg.Memcached).To(BeNil())
	})

	It("should fail when a placeholder cannot be expanded", func() {
		path := write("providers.yaml", "vault:\n  address: http://localhost:8200\n  token: ${@env.ABSENT_TOKEN}\n  path: secret/data/app\n")
		_, err := readProviders(path, registry)
		Expect(err).To(MatchError(ContainSubstring("ABSENT_TOKEN")))
	})

	It("should register the configured providers", func() {
		path := write("providers.yaml", `
vault:
  address: http://localhost:8200
  token: ${VAULT_TOKEN}
  path: secret/data/app
aws:
  region: us-east-1
  secret_name: app/secrets
  access_key_id: key
  secret_access_key: secret
file_resolver:
  secrets_dir: ${SECRETS_DIR}
redis:
  address: localhost:6379
`)
		cleanup, err := loadProviders(path, registry)
		Expect(err).NotTo(HaveOccurred())
		DeferCleanup(cleanup)

		Expect(registry.Prefixes()).To(Equal([]string{"aws", "env", "file", "redis", "vault"}))

		value, err := registry.Resolve("file", "db_password")
		Expect(err).NotTo(HaveOccurred())
		Expect(value).To(Equal("filepass"))
	})

	It("should reject invalid provider settings", func() {
		path := write("providers.yaml", "file_resolver:\n  secrets_dir: /definitely/not/here\n")
		_, err := loadProviders(path, registry)
		Expect(err).To(MatchError(ContainSubstring("failed to create file secret provider")))
	})

	It("should resolve documents through the providers", func() {
		GinkgoT().Setenv("CONFIGOBJ_CLI_SECRETS_DIR", secretsDir)
		providers := write("providers.yaml", "file_resolver:\n  secrets_dir: ${CONFIGOBJ_CLI_SECRETS_DIR}\n")
		document := write("config.json", `{"db": {"password": {"$ref": "@file.db_password", "required": true}}}`)

		stdout, stderr := &bytes.Buffer{}, &bytes.Buffer{}
		Expect(run([]string{"-config", document, "-providers", providers}, stdout, stderr)).To(Equal(exitOK))
		Expect(stdout.String()).To(ContainSubstring(`"password": "filepass"`))
	})

	It("should expand provider settings from dot-env files", func() {
		envFile := write("cli.env", "CONFIGOBJ_CLI_ENV_SECRETS_DIR="+secretsDir+"\n")
		DeferCleanup(os.Unsetenv, "CONFIGOBJ_CLI_ENV_SECRETS_DIR")
		providers := write("providers.yaml", "file_resolver:\n  secrets_dir: ${@env.CONFIGOBJ_CLI_ENV_SECRETS_DIR}\n")
		document := write("config.json", `{"password": {"$ref": "@file.db_password", "required": true}}`)

		stdout, stderr := &bytes.Buffer{}, &bytes.Buffer{}
		Expect(run([]string{"-config", document, "-env", envFile, "-providers", providers}, stdout, stderr)).To(Equal(exitOK))
		Expect(stdout.String()).To(ContainSubstring(`"password": "filepass"`))
	})

	It("should fail on a missing dot-env file before reading providers", func() {
		providers := write("providers.yaml", "file_resolver:\n  secrets_dir: /definitely/not/here\n")
		document := write("config.json", `{}`)

		stdout, stderr := &bytes.Buffer{}, &bytes.Buffer{}
		Expect(run([]string{"-config", document, "-env", filepath.Join(tempDir, "absent.env"), "-providers", providers}, stdout, stderr)).To(Equal(exitError))
		Expect(stderr.String()).To(ContainSubstring("Unable to load dot-env files"))
	})
})
