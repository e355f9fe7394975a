package cmdutil_test

import (
	"os"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/spf13/cobra"

	"github.com/papercomputeco/mnemo/cmd/mnemo/cmdutil"
	"github.com/papercomputeco/mnemo/pkg/config"
	"github.com/papercomputeco/mnemo/pkg/dotdir"
)

// newCmd mimics a subcommand hanging off the root, with --config-dir set.
func newCmd(dir string, args ...string) *cobra.Command {
	cmd := &cobra.Command{Use: "test", RunE: func(*cobra.Command, []string) error { return nil }}
	cmd.Flags().String("config-dir", "", "")
	cmd.Flags().Bool("debug", false, "")
	cmdutil.AddStoreFlags(cmd)
	Expect(cmd.ParseFlags(append([]string{"--config-dir", dir}, args...))).To(Succeed())
	return cmd
}

var _ = Describe("cmdutil", func() {
	var dir string

	BeforeEach(func() {
		dir = GinkgoT().TempDir()
	})

	Describe("ResolveOwner", func() {
		BeforeEach(func() {
			Expect(os.Unsetenv("MNEMO_OWNER")).To(Succeed())
		})

		It("fails when nothing names an owner", func() {
			_, err := cmdutil.ResolveOwner(newCmd(dir), "")
			Expect(err).To(MatchError(cmdutil.ErrNoOwner))
		})

		It("prefers the flag, then the environment, then the profile", func() {
			Expect(dotdir.NewManager().SaveProfile(&dotdir.Profile{OwnerID: "profile"}, dir)).To(Succeed())
			cmd := newCmd(dir)

			owner, err := cmdutil.ResolveOwner(cmd, "")
			Expect(err).NotTo(HaveOccurred())
			Expect(owner).To(Equal("profile"))

			Expect(os.Setenv("MNEMO_OWNER", "env")).To(Succeed())
			DeferCleanup(os.Unsetenv, "MNEMO_OWNER")
			owner, err = cmdutil.ResolveOwner(cmd, "")
			Expect(err).NotTo(HaveOccurred())
			Expect(owner).To(Equal("env"))

			owner, err = cmdutil.ResolveOwner(cmd, "  flag ")
			Expect(err).NotTo(HaveOccurred())
			Expect(owner).To(Equal("flag"))
		})
	})

	Describe("LoadConfig", func() {
		It("layers flags over environment over config.toml", func() {
			cfger, err := config.NewConfiger(dir)
			Expect(err).NotTo(HaveOccurred())
			Expect(cfger.SetConfigValue("vector_store.provider", "qdrant")).To(Succeed())
			Expect(cfger.SetConfigValue("graph_store.provider", "postgres")).To(Succeed())

			cfg, err := cmdutil.LoadConfig(newCmd(dir), config.StoreFlags)
			Expect(err).NotTo(HaveOccurred())
			Expect(cfg.VectorStore.Provider).To(Equal("qdrant"))
			Expect(cfg.GraphStore.Provider).To(Equal("postgres"))

			Expect(os.Setenv("MNEMO_VECTOR_STORE_PROVIDER", "pgvector")).To(Succeed())
			DeferCleanup(os.Unsetenv, "MNEMO_VECTOR_STORE_PROVIDER")
			cfg, err = cmdutil.LoadConfig(newCmd(dir), config.StoreFlags)
			Expect(err).NotTo(HaveOccurred())
			Expect(cfg.VectorStore.Provider).To(Equal("pgvector"))

			cfg, err = cmdutil.LoadConfig(newCmd(dir, "--vector-store-provider", "inmemory"), config.StoreFlags)
			Expect(err).NotTo(HaveOccurred())
			Expect(cfg.VectorStore.Provider).To(Equal("inmemory"))
			Expect(cfg.GraphStore.Provider).To(Equal("postgres"))
		})
	})

	Describe("Remote", func() {
		It("rejects a target without a scheme", func() {
			cfg := config.NewDefaultConfig()
			cfg.Client.APITarget = "localhost:8080"
			_, err := cmdutil.Remote(cfg)
			Expect(err).To(HaveOccurred())
		})
	})
})
