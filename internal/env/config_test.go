package env_test

import (
	"context"
	"os"
	"path/filepath"

	. "github.com/onsi/ginkgo"
	. "github.com/onsi/ginkgo/extensions/table"
	. "github.com/onsi/gomega"

	"github.com/luma/vici/client"
	"github.com/luma/vici/internal/env"
)

var _ = Describe("LoadConfig()", func() {
	var (
		ctx context.Context
		dir string
	)

	BeforeEach(func() {
		ctx = context.Background()

		var err error
		dir, err = os.MkdirTemp("", "vici-env")
		Expect(err).To(Succeed())
	})

	AfterEach(func() {
		os.RemoveAll(dir)
		os.Unsetenv("VICI_SOCKET")
		os.Unsetenv("VICI_MAX_PENDING")
	})

	writeConfig := func(contents string) string {
		path := filepath.Join(dir, "vici.toml")
		Expect(os.WriteFile(path, []byte(contents), 0o600)).To(Succeed())
		return path
	}

	It("uses the defaults without a config file", func() {
		config, err := env.LoadConfig(ctx, "")
		Expect(err).To(Succeed())
		Expect(config.Socket).To(Equal(client.DefaultSocket))
		Expect(config.LogEncoding).To(Equal("json"))
		Expect(config.MaxPending).To(BeZero())
	})

	It("reads the config file", func() {
		path := writeConfig(`
socket = "/run/strongswan/charon.vici"
max_pending = 1
log_encoding = "console"
`)

		config, err := env.LoadConfig(ctx, path)
		Expect(err).To(Succeed())
		Expect(config.Socket).To(Equal("/run/strongswan/charon.vici"))
		Expect(config.MaxPending).To(Equal(1))
		Expect(config.LogEncoding).To(Equal("console"))
		Expect(config.LogLevel).To(Equal("info"))
	})

	It("lets the environment override the config file", func() {
		path := writeConfig(`socket = "/run/strongswan/charon.vici"`)
		os.Setenv("VICI_SOCKET", "/tmp/charon.vici")

		config, err := env.LoadConfig(ctx, path)
		Expect(err).To(Succeed())
		Expect(config.Socket).To(Equal("/tmp/charon.vici"))
	})

	It("fails for a missing config file", func() {
		_, err := env.LoadConfig(ctx, filepath.Join(dir, "missing.toml"))
		Expect(err).To(MatchError(ContainSubstring("open config")))
	})

	DescribeTable("rejects bad config files",
		func(contents, message string) {
			_, err := env.LoadConfig(ctx, writeConfig(contents))
			Expect(err).To(MatchError(ContainSubstring(message)))
		},
		Entry("unknown key", `sockett = "x"`, "parse config"),
		Entry("negative max_pending", `max_pending = -1`, "max_pending"),
		Entry("unknown encoding", `log_encoding = "xml"`, "log_encoding"),
		Entry("port out of range", `http_port = 70000`, "http_port"),
	)
})

var _ = Describe("MakeLogger()", func() {
	It("builds json and console loggers", func() {
		for _, encoding := range []string{"json", "console"} {
			log, err := env.MakeLogger("debug", encoding)
			Expect(err).To(Succeed())
			Expect(log.Core().Enabled(-1)).To(BeTrue())
		}
	})

	It("rejects unknown levels", func() {
		_, err := env.MakeLogger("loud", "json")
		Expect(err).To(MatchError(ContainSubstring("invalid log level")))
	})
})
