package initcmder_test

import (
	"bytes"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	initcmder "github.com/papercomputeco/mnemo/cmd/mnemo/init"
	"github.com/papercomputeco/mnemo/pkg/config"
)

var _ = Describe("NewInitCmd", func() {
	It("creates a command with the correct use string", func() {
		cmd := initcmder.NewInitCmd()
		Expect(cmd.Use).To(Equal("init"))
	})

	It("rejects any arguments", func() {
		cmd := initcmder.NewInitCmd()
		Expect(cmd.Args(cmd, []string{})).To(Succeed())
		Expect(cmd.Args(cmd, []string{"extra"})).NotTo(Succeed())
	})

	It("has a --preset flag", func() {
		cmd := initcmder.NewInitCmd()
		f := cmd.Flags().Lookup("preset")
		Expect(f).NotTo(BeNil())
		Expect(f.DefValue).To(Equal(""))
	})
})

var _ = Describe("Init command execution", func() {
	var (
		tmpDir string
		out    *bytes.Buffer
	)

	BeforeEach(func() {
		tmpDir = GinkgoT().TempDir()
		origDir, err := os.Getwd()
		Expect(err).NotTo(HaveOccurred())
		Expect(os.Chdir(tmpDir)).To(Succeed())
		DeferCleanup(os.Chdir, origDir)

		out = &bytes.Buffer{}
	})

	run := func(args ...string) error {
		cmd := initcmder.NewInitCmd()
		cmd.SetOut(out)
		cmd.SetArgs(args)
		return cmd.Execute()
	}

	readConfig := func() *config.Config {
		cfg := &config.Config{}
		_, err := toml.DecodeFile(filepath.Join(tmpDir, ".mnemo", "config.toml"), cfg)
		Expect(err).NotTo(HaveOccurred())
		return cfg
	}

	It("creates .mnemo with the default config", func() {
		Expect(run()).To(Succeed())
		Expect(filepath.Join(tmpDir, ".mnemo")).To(BeADirectory())
		Expect(readConfig().VectorStore.Provider).To(Equal("sqlite"))
	})

	It("writes the requested preset", func() {
		Expect(run("--preset", "local")).To(Succeed())
		cfg := readConfig()
		Expect(cfg.VectorStore.Provider).To(Equal("inmemory"))
		Expect(cfg.Embedding.Provider).To(Equal("heuristic"))
	})

	It("is idempotent without a preset", func() {
		Expect(run("--preset", "local")).To(Succeed())
		Expect(run()).To(Succeed())
		Expect(out.String()).To(ContainSubstring("Already initialized"))
		Expect(readConfig().VectorStore.Provider).To(Equal("inmemory"))
	})

	It("rejects an unknown preset", func() {
		Expect(run("--preset", "cloud")).To(MatchError(ContainSubstring("unknown preset")))
		Expect(filepath.Join(tmpDir, ".mnemo")).NotTo(BeADirectory())
	})
})
