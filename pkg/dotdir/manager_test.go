package dotdir_test

import (
	"os"
	"path/filepath"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/mnemo/pkg/dotdir"
)

var _ = Describe("dotdir", func() {
	var tmpDir string
	var m *dotdir.Manager

	// isolate moves into an empty working directory with an empty HOME.
	isolate := func() string {
		emptyDir := filepath.Join(tmpDir, "empty")
		Expect(os.MkdirAll(emptyDir, 0o755)).To(Succeed())

		origDir, err := os.Getwd()
		Expect(err).NotTo(HaveOccurred())
		Expect(os.Chdir(emptyDir)).To(Succeed())
		DeferCleanup(func() { os.Chdir(origDir) })

		origHome := os.Getenv("HOME")
		Expect(os.Setenv("HOME", emptyDir)).To(Succeed())
		DeferCleanup(func() { os.Setenv("HOME", origHome) })
		return emptyDir
	}

	BeforeEach(func() {
		var err error
		tmpDir, err = os.MkdirTemp("", "dotdir-test-*")
		Expect(err).NotTo(HaveOccurred())

		// Resolve symlinks so paths match filepath.Abs results
		// (e.g. on macOS /var -> /private/var).
		tmpDir, err = filepath.EvalSymlinks(tmpDir)
		Expect(err).NotTo(HaveOccurred())

		m = dotdir.NewManager()
	})

	AfterEach(func() {
		os.RemoveAll(tmpDir)
	})

	Describe("Target", func() {
		It("creates the override directory if it doesn't exist", func() {
			dir := filepath.Join(tmpDir, "newdir")
			result, err := m.Target(dir)
			Expect(err).NotTo(HaveOccurred())
			Expect(result).To(Equal(dir))

			info, err := os.Stat(dir)
			Expect(err).NotTo(HaveOccurred())
			Expect(info.IsDir()).To(BeTrue())
		})

		It("returns the override dir even when a local .mnemo dir exists", func() {
			Expect(os.Mkdir(filepath.Join(tmpDir, ".mnemo"), 0o755)).To(Succeed())

			origDir, err := os.Getwd()
			Expect(err).NotTo(HaveOccurred())
			Expect(os.Chdir(tmpDir)).To(Succeed())
			DeferCleanup(func() { os.Chdir(origDir) })

			overrideDir := filepath.Join(tmpDir, "override")
			result, err := m.Target(overrideDir)
			Expect(err).NotTo(HaveOccurred())
			Expect(result).To(Equal(overrideDir))
		})

		It("returns the local .mnemo dir when it exists and no override is provided", func() {
			local := filepath.Join(tmpDir, ".mnemo")
			Expect(os.Mkdir(local, 0o755)).To(Succeed())

			origDir, err := os.Getwd()
			Expect(err).NotTo(HaveOccurred())
			Expect(os.Chdir(tmpDir)).To(Succeed())
			DeferCleanup(func() { os.Chdir(origDir) })

			result, err := m.Target("")
			Expect(err).NotTo(HaveOccurred())
			Expect(result).To(Equal(local))
		})

		It("falls back to an existing ~/.mnemo dir", func() {
			home := isolate()
			Expect(os.Mkdir(filepath.Join(home, ".mnemo"), 0o755)).To(Succeed())

			result, err := m.Target("")
			Expect(err).NotTo(HaveOccurred())
			Expect(result).To(Equal(filepath.Join(home, ".mnemo")))
		})

		It("returns empty string when nothing resolves", func() {
			isolate()

			result, err := m.Target("")
			Expect(err).NotTo(HaveOccurred())
			Expect(result).To(BeEmpty())
		})
	})

	Describe("Ensure", func() {
		It("creates ~/.mnemo when nothing resolves", func() {
			home := isolate()

			result, err := m.Ensure("")
			Expect(err).NotTo(HaveOccurred())
			Expect(result).To(Equal(filepath.Join(home, ".mnemo")))
			Expect(filepath.Join(home, ".mnemo")).To(BeADirectory())
		})
	})

	Describe("Profile", func() {
		It("returns nil when no profile exists", func() {
			p, err := m.LoadProfile(tmpDir)
			Expect(err).NotTo(HaveOccurred())
			Expect(p).To(BeNil())
		})

		It("round-trips the owner id", func() {
			Expect(m.SaveProfile(&dotdir.Profile{OwnerID: "u1"}, tmpDir)).To(Succeed())

			p, err := m.LoadProfile(tmpDir)
			Expect(err).NotTo(HaveOccurred())
			Expect(p.OwnerID).To(Equal("u1"))
		})

		It("rejects an empty owner", func() {
			Expect(m.SaveProfile(&dotdir.Profile{}, tmpDir)).NotTo(Succeed())
			Expect(m.SaveProfile(nil, tmpDir)).NotTo(Succeed())
		})

		It("returns an error for invalid JSON", func() {
			Expect(os.WriteFile(filepath.Join(tmpDir, "profile.json"), []byte("not json"), 0o600)).To(Succeed())

			p, err := m.LoadProfile(tmpDir)
			Expect(err).To(HaveOccurred())
			Expect(p).To(BeNil())
		})

		It("clears the profile and tolerates a missing file", func() {
			Expect(m.SaveProfile(&dotdir.Profile{OwnerID: "u1"}, tmpDir)).To(Succeed())
			Expect(m.ClearProfile(tmpDir)).To(Succeed())
			Expect(m.ClearProfile(tmpDir)).To(Succeed())

			p, err := m.LoadProfile(tmpDir)
			Expect(err).NotTo(HaveOccurred())
			Expect(p).To(BeNil())
		})
	})
})
