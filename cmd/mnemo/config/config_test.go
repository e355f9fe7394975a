package configcmder_test

import (
	"bytes"
	"os"
	"path/filepath"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	configcmder "github.com/papercomputeco/mnemo/cmd/mnemo/config"
	"github.com/papercomputeco/mnemo/pkg/config"
)

var _ = Describe("NewConfigCmd", func() {
	It("creates a command with the correct use string", func() {
		cmd := configcmder.NewConfigCmd()
		Expect(cmd.Use).To(Equal("config"))
	})

	It("has set, get, and list subcommands", func() {
		cmd := configcmder.NewConfigCmd()
		cmds := cmd.Commands()
		subcommands := make([]string, 0, len(cmds))
		for _, sub := range cmds {
			subcommands = append(subcommands, sub.Name())
		}
		Expect(subcommands).To(ContainElements("set", "get", "list"))
	})
})

var _ = Describe("Config command execution", func() {
	var (
		tmpDir  string
		origDir string
		out     *bytes.Buffer
	)

	run := func(args ...string) error {
		cmd := configcmder.NewConfigCmd()
		cmd.SetOut(out)
		cmd.SetErr(out)
		cmd.SetArgs(args)
		return cmd.Execute()
	}

	BeforeEach(func() {
		tmpDir = GinkgoT().TempDir()
		out = &bytes.Buffer{}

		var err error
		origDir, err = os.Getwd()
		Expect(err).NotTo(HaveOccurred())

		// A local .mnemo dir wins over ~/.mnemo.
		Expect(os.MkdirAll(filepath.Join(tmpDir, ".mnemo"), 0o755)).To(Succeed())
		Expect(os.Chdir(tmpDir)).To(Succeed())
	})

	AfterEach(func() {
		Expect(os.Chdir(origDir)).To(Succeed())
	})

	Describe("set subcommand", func() {
		It("writes config.toml into the local .mnemo dir", func() {
			Expect(run("set", "vector_store.provider", "qdrant")).To(Succeed())
			Expect(out.String()).To(ContainSubstring("vector_store.provider"))

			data, err := os.ReadFile(filepath.Join(tmpDir, ".mnemo", "config.toml"))
			Expect(err).NotTo(HaveOccurred())
			Expect(string(data)).To(ContainSubstring(`provider = "qdrant"`))
		})

		It("rejects unknown keys", func() {
			err := run("set", "proxy.provider", "anthropic")
			Expect(err).To(HaveOccurred())
			Expect(err.Error()).To(ContainSubstring("unknown config key"))
		})

		It("rejects values that do not parse for the key", func() {
			Expect(run("set", "embedding.dimensions", "not-a-number")).NotTo(Succeed())
			Expect(run("set", "cache.ttl", "soon")).NotTo(Succeed())
		})

		It("requires exactly two arguments", func() {
			Expect(run("set", "vector_store.provider")).NotTo(Succeed())
		})
	})

	Describe("get subcommand", func() {
		It("returns a value previously set", func() {
			Expect(run("set", "retrieval.vector_top_k", "20")).To(Succeed())
			out.Reset()

			Expect(run("get", "retrieval.vector_top_k")).To(Succeed())
			Expect(out.String()).To(ContainSubstring("20"))
		})

		It("splits broker lists on commas", func() {
			Expect(run("set", "events.brokers", "a:9092, b:9092")).To(Succeed())

			cfger, err := config.NewConfiger("")
			Expect(err).NotTo(HaveOccurred())
			cfg, err := cfger.LoadConfig()
			Expect(err).NotTo(HaveOccurred())
			Expect(cfg.Events.Brokers).To(Equal([]string{"a:9092", "b:9092"}))
		})

		It("rejects unknown keys", func() {
			Expect(run("get", "nope")).NotTo(Succeed())
		})

		It("requires exactly one argument", func() {
			Expect(run("get")).NotTo(Succeed())
		})
	})

	Describe("list subcommand", func() {
		It("prints every key", func() {
			Expect(run("list")).To(Succeed())
			for _, key := range config.ValidConfigKeys() {
				Expect(out.String()).To(ContainSubstring(key))
			}
		})

		It("reflects values from config.toml", func() {
			Expect(run("set", "embedding.model", "all-minilm")).To(Succeed())
			out.Reset()

			Expect(run("list")).To(Succeed())
			Expect(out.String()).To(MatchRegexp(`embedding\.model\s+= "all-minilm"`))
		})

		It("applies environment overrides with --effective", func() {
			Expect(os.Setenv("MNEMO_GRAPH_STORE_PROVIDER", "postgres")).To(Succeed())
			DeferCleanup(os.Unsetenv, "MNEMO_GRAPH_STORE_PROVIDER")

			Expect(run("list")).To(Succeed())
			Expect(out.String()).NotTo(MatchRegexp(`graph_store\.provider\s+= "postgres"`))
			out.Reset()

			Expect(run("list", "--effective")).To(Succeed())
			Expect(out.String()).To(MatchRegexp(`graph_store\.provider\s+= "postgres"`))
		})

		It("rejects arguments", func() {
			Expect(run("list", "extra")).NotTo(Succeed())
		})
	})
})
