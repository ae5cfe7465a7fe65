package resolver_test

import (
	"os"
	"path/filepath"

	"github.com/animalet/configobj/pkg/loader"
	"github.com/animalet/configobj/pkg/node"
	"github.com/animalet/configobj/pkg/resolver"
	"github.com/animalet/configobj/pkg/secrets"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/pkg/errors"
)

type mapProvider map[string]string

func (m mapProvider) Resolve(key string) (string, error) {
	if value, ok := m[key]; ok {
		return value, nil
	}
	return "", errors.Wrapf(secrets.ErrSecretNotFound, "key %q", key)
}

func (m mapProvider) Name() string {
	return "Map"
}

type brokenProvider struct{}

func (brokenProvider) Resolve(string) (string, error) {
	return "", errors.New("backend unavailable")
}

func (brokenProvider) Name() string {
	return "Broken"
}

func parse(document string) *node.Node {
	tree, err := loader.Parse([]byte(document), loader.JSON)
	Expect(err).NotTo(HaveOccurred())
	return tree
}

var _ = Describe("Resolver", func() {
	var (
		env      *secrets.Environment
		registry *secrets.Registry
		r        *resolver.Resolver
	)

	BeforeEach(func() {
		env = secrets.NewEnvironment(map[string]string{"X": "v", "SECRET_KEY": "secret_value"})
		registry = secrets.NewRegistry(env)
		r = resolver.New(registry, nil)
	})

	resolve := func(document string) (*node.Node, []string) {
		resolved, errs, err := r.Resolve(parse(document))
		Expect(err).NotTo(HaveOccurred())
		return resolved, errs
	}

	Context("documents without references", func() {
		It("should return the tree unchanged", func() {
			root := parse(`{"a": 1, "b": [true, null, "plain $ string", {"c": 1.5}], "d": "{not a ref}"}`)
			resolved, errs, err := r.Resolve(root)
			Expect(err).NotTo(HaveOccurred())
			Expect(errs).To(BeEmpty())
			Expect(resolved).To(BeIdenticalTo(root))
		})

		It("should resolve scalars at the root", func() {
			resolved, _ := resolve(`"${X}"`)
			Expect(resolved.Render()).To(Equal("v"))
		})
	})

	Context("reference nodes", func() {
		It("should resolve environment targets", func() {
			resolved, errs := resolve(`{"k": {"$ref": "@env.X"}}`)
			Expect(errs).To(BeEmpty())
			Expect(resolved.Equal(parse(`{"k": "v"}`))).To(BeTrue())
		})

		It("should resolve legacy bare names", func() {
			resolved, _ := resolve(`{"key": {"$ref": "SECRET_KEY"}}`)
			Expect(resolved.Equal(parse(`{"key": "secret_value"}`))).To(BeTrue())
		})

		It("should resolve references inside sequences", func() {
			resolved, _ := resolve(`{"list": [{"$ref": "SECRET_KEY"}, 2]}`)
			Expect(resolved.Equal(parse(`{"list": ["secret_value", 2]}`))).To(BeTrue())
		})

		It("should resolve optional missing targets to null", func() {
			resolved, errs := resolve(`{"k": {"$ref": "@env.MISSING"}, "other": "kept"}`)
			Expect(errs).To(BeEmpty())
			Expect(resolved.Equal(parse(`{"k": null, "other": "kept"}`))).To(BeTrue())
		})

		It("should abort on required missing targets", func() {
			resolved, errs, err := r.Resolve(parse(`{"a": {"$ref": "@env.X"}, "k": {"$ref": "@env.MISSING", "required": true}}`))
			Expect(resolved).To(BeNil())
			Expect(errors.Is(err, resolver.ErrRequiredReferenceUnresolved)).To(BeTrue())
			Expect(errs).To(Equal([]string{"Environment variable MISSING is required but missing in the .env file"}))

			var resolveErr *resolver.Error
			Expect(errors.As(err, &resolveErr)).To(BeTrue())
			Expect(resolveErr.Errors).To(Equal(errs))
		})

		It("should only treat a boolean true as required", func() {
			resolved, errs := resolve(`{"k": {"$ref": "MISSING", "required": "yes"}, "j": {"$ref": "MISSING", "required": false}}`)
			Expect(errs).To(BeEmpty())
			Expect(resolved.Equal(parse(`{"k": null, "j": null}`))).To(BeTrue())
		})

		It("should keep same-document values native and unresolved", func() {
			resolved, _ := resolve(`{"a": "secret", "n": {"port": 8080, "inner": {"$ref": "@env.X"}}, "b": [{"$ref": "#a"}], "c": {"$ref": "#n"}}`)

			b, _ := resolved.Get("b")
			Expect(b.Equal(parse(`["secret"]`))).To(BeTrue())

			c, _ := resolved.Get("c")
			Expect(c.Equal(parse(`{"port": 8080, "inner": {"$ref": "@env.X"}}`))).To(BeTrue())
		})

		It("should walk sequence indices in same-document paths", func() {
			resolved, _ := resolve(`{"hosts": ["a", {"name": "b"}], "second": {"$ref": "#hosts/1/name"}, "root": {"$ref": "#hosts/0"}}`)
			second, _ := resolved.Get("second")
			Expect(second.Render()).To(Equal("b"))
			root, _ := resolved.Get("root")
			Expect(root.Render()).To(Equal("a"))
		})

		It("should treat missing same-document paths as absent", func() {
			resolved, errs := resolve(`{"k": {"$ref": "#nope/deeper"}, "i": {"$ref": "#list/5"}, "list": []}`)
			Expect(errs).To(BeEmpty())
			k, _ := resolved.Get("k")
			Expect(k.IsNull()).To(BeTrue())
		})

		It("should name the target of required same-document failures", func() {
			_, errs, err := r.Resolve(parse(`{"k": {"$ref": "#nope", "required": true}}`))
			Expect(errors.Is(err, resolver.ErrRequiredReferenceUnresolved)).To(BeTrue())
			Expect(errs).To(HaveLen(1))
			Expect(errs[0]).To(HavePrefix("Reference #nope is required but could not be resolved"))
		})

		It("should record non-string targets", func() {
			resolved, errs := resolve(`{"k": {"$ref": 42}}`)
			k, _ := resolved.Get("k")
			Expect(k.IsNull()).To(BeTrue())
			Expect(errs).To(HaveLen(1))
			Expect(errs[0]).To(ContainSubstring("must be a string"))
		})

		It("should not modify the input tree", func() {
			document := `{"k": {"$ref": "@env.X"}, "s": "${X}"}`
			root := parse(document)
			_, _ = resolve(document)
			_, _, err := r.Resolve(root)
			Expect(err).NotTo(HaveOccurred())
			Expect(root.Equal(parse(document))).To(BeTrue())
		})

		It("should be idempotent", func() {
			first, _ := resolve(`{"k": {"$ref": "@env.X"}, "s": "pw is ${X}", "l": [{"$ref": "#n"}], "n": 3}`)
			second, errs, err := r.Resolve(first)
			Expect(err).NotTo(HaveOccurred())
			Expect(errs).To(BeEmpty())
			Expect(second.Equal(first)).To(BeTrue())
		})
	})

	Context("inline placeholders", func() {
		It("should splice environment values", func() {
			resolved, _ := resolve(`{"shhh": "pw is ${@env.X}"}`)
			Expect(resolved.Equal(parse(`{"shhh": "pw is v"}`))).To(BeTrue())
		})

		It("should resolve several placeholders independently", func() {
			resolved, _ := resolve(`{"port": 5432, "dsn": "${SECRET_KEY}@${#host}:${#port}/${@env.MISSING}db", "host": "localhost"}`)
			dsn, _ := resolved.Get("dsn")
			Expect(dsn.Render()).To(Equal("secret_value@localhost:5432/db"))
		})

		It("should render values in canonical form", func() {
			resolved, _ := resolve(`{"b": true, "f": 1.5, "z": null, "m": {"y": [1, "two"]}, "s": "${#b} ${#f} [${#z}] ${#m}"}`)
			s, _ := resolved.Get("s")
			Expect(s.Render()).To(Equal(`true 1.5 [] {"y":[1,"two"]}`))
		})

		It("should splice collections without escaping HTML characters", func() {
			resolved, _ := resolve(`{"m": {"q": "a&b<c>"}, "x": "x=${#m}"}`)
			x, _ := resolved.Get("x")
			Expect(x.Render()).To(Equal(`x={"q":"a&b<c>"}`))
		})

		It("should leave text outside the placeholder grammar alone", func() {
			resolved, _ := resolve(`{"s": "${} ${with space} $X ${X"}`)
			s, _ := resolved.Get("s")
			Expect(s.Render()).To(Equal("${} ${with space} $X ${X"))
		})
	})

	Context("secret providers", func() {
		It("should dispatch to registered providers", func() {
			registry.Register("vault", mapProvider{"DB_PASSWORD": "pa55"})
			resolved, errs := resolve(`{"password": {"$ref": "@vault.DB_PASSWORD"}, "dsn": "app:${@vault.DB_PASSWORD}@db"}`)
			Expect(errs).To(BeEmpty())
			Expect(resolved.Equal(parse(`{"password": "pa55", "dsn": "app:pa55@db"}`))).To(BeTrue())
		})

		It("should record unknown providers", func() {
			resolved, errs := resolve(`{"password": {"$ref": "@nowhere.KEY"}}`)
			password, _ := resolved.Get("password")
			Expect(password.IsNull()).To(BeTrue())
			Expect(errs).To(HaveLen(1))
			Expect(errs[0]).To(ContainSubstring("no secret provider registered"))
		})

		It("should record backend failures of placeholders", func() {
			registry.Register("broken", brokenProvider{})
			resolved, errs := resolve(`{"s": "x${@broken.KEY}y"}`)
			s, _ := resolved.Get("s")
			Expect(s.Render()).To(Equal("xy"))
			Expect(errs).To(HaveLen(1))
			Expect(errs[0]).To(ContainSubstring("backend unavailable"))
		})
	})

	Context("Lookup", func() {
		It("should resolve a single target", func() {
			value, err := r.Lookup("@env.X")
			Expect(err).NotTo(HaveOccurred())
			Expect(value.Render()).To(Equal("v"))
		})

		It("should report absent targets", func() {
			_, err := r.Lookup("#anything")
			Expect(errors.Is(err, node.ErrPathNotFound)).To(BeTrue())
		})
	})
})

var _ = Describe("Cross-file references", func() {
	var (
		tempDir string
		r       *resolver.Resolver
	)

	BeforeEach(func() {
		tempDir = GinkgoT().TempDir()
		r = resolver.New(secrets.NewRegistry(secrets.NewEnvironment(map[string]string{"X": "v"})), nil)
	})

	write := func(name, content string) string {
		path := filepath.Join(tempDir, name)
		Expect(os.MkdirAll(filepath.Dir(path), 0700)).To(Succeed())
		Expect(os.WriteFile(path, []byte(content), 0600)).To(Succeed())
		return path
	}

	resolveFile := func(path string) (*node.Node, []string, error) {
		tree, err := loader.Load(path)
		Expect(err).NotTo(HaveOccurred())
		return resolver.New(secrets.NewRegistry(secrets.NewEnvironment(map[string]string{"X": "v"})), nil,
			resolver.WithDocument(path)).Resolve(tree)
	}

	It("should resolve whole nodes from another document", func() {
		write("B.json", `{"dark": {"secret": "v"}}`)
		a := write("A.json", `{"list": [{"$ref": "B.json#dark/secret"}]}`)

		resolved, errs, err := resolveFile(a)
		Expect(err).NotTo(HaveOccurred())
		Expect(errs).To(BeEmpty())
		Expect(resolved.Equal(parse(`{"list": ["v"]}`))).To(BeTrue())
	})

	It("should resolve placeholders from another document", func() {
		write("B.json", `{"dark": {"secret": "v"}}`)
		a := write("A.json", `{"list": ["${B.json#dark/secret}"]}`)

		resolved, _, err := resolveFile(a)
		Expect(err).NotTo(HaveOccurred())
		Expect(resolved.Equal(parse(`{"list": ["v"]}`))).To(BeTrue())
	})

	It("should extract from the resolved tree of the other document", func() {
		write("shared/secrets.yaml", "db:\n  password:\n    $ref: \"@env.X\"\n  alias:\n    $ref: \"#db/host\"\n  host: h\n")
		a := write("app/config.json", `{"password": {"$ref": "../shared/secrets.yaml#db/password"}, "db": {"$ref": "../shared/secrets.yaml#db"}}`)

		resolved, errs, err := resolveFile(a)
		Expect(err).NotTo(HaveOccurred())
		Expect(errs).To(BeEmpty())
		Expect(resolved.Equal(parse(`{"password": "v", "db": {"password": "v", "alias": "h", "host": "h"}}`))).To(BeTrue())
	})

	It("should resolve external targets without a document", func() {
		b := write("B.json", `{"k": "from-b"}`)
		value, err := r.Lookup(b + "#k")
		Expect(err).NotTo(HaveOccurred())
		Expect(value.Render()).To(Equal("from-b"))
	})

	It("should record missing external documents", func() {
		a := write("A.json", `{"k": {"$ref": "missing.json#x"}}`)

		resolved, errs, err := resolveFile(a)
		Expect(err).NotTo(HaveOccurred())
		k, _ := resolved.Get("k")
		Expect(k.IsNull()).To(BeTrue())
		Expect(errs).To(HaveLen(1))
		Expect(errs[0]).To(ContainSubstring("file not found"))
	})

	It("should treat missing paths in external documents as absent", func() {
		write("B.json", `{"dark": {}}`)
		a := write("A.json", `{"k": {"$ref": "B.json#dark/secret"}}`)

		_, errs, err := resolveFile(a)
		Expect(err).NotTo(HaveOccurred())
		Expect(errs).To(BeEmpty())
	})

	It("should record the messages of external documents that fail", func() {
		write("B.json", `{"s": {"$ref": "@env.MISSING", "required": true}}`)
		a := write("A.json", `{"k": {"$ref": "B.json#s"}}`)

		resolved, errs, err := resolveFile(a)
		Expect(err).NotTo(HaveOccurred())
		k, _ := resolved.Get("k")
		Expect(k.IsNull()).To(BeTrue())
		Expect(errs).To(Equal([]string{"Environment variable MISSING is required but missing in the .env file"}))
	})

	It("should carry non-fatal errors of external documents", func() {
		write("B.json", `{"s": "ok", "bad": {"$ref": "@nowhere.KEY"}}`)
		a := write("A.json", `{"k": {"$ref": "B.json#s"}}`)

		_, errs, err := resolveFile(a)
		Expect(err).NotTo(HaveOccurred())
		Expect(errs).To(HaveLen(1))
		Expect(errs[0]).To(ContainSubstring("@nowhere.KEY"))
	})

	It("should record the errors of an external document once", func() {
		write("B.json", `{"s": "ok", "t": "${@nowhere.KEY}", "bad": {"$ref": "@nowhere.KEY"}}`)
		a := write("A.json", `{"k": {"$ref": "B.json#s"}, "l": ["${B.json#s}", {"$ref": "B.json#t"}]}`)

		resolved, errs, err := resolveFile(a)
		Expect(err).NotTo(HaveOccurred())
		Expect(resolved.Equal(parse(`{"k": "ok", "l": ["ok", ""]}`))).To(BeTrue())
		Expect(errs).To(HaveLen(2))
		Expect(errs).To(HaveEach(ContainSubstring("@nowhere.KEY")))
	})

	It("should record a failing external document once", func() {
		write("B.json", `{"s": {"$ref": "@env.MISSING", "required": true}}`)
		a := write("A.json", `{"k": {"$ref": "B.json#s"}, "l": {"$ref": "B.json#s"}}`)

		_, errs, err := resolveFile(a)
		Expect(err).NotTo(HaveOccurred())
		Expect(errs).To(Equal([]string{"Environment variable MISSING is required but missing in the .env file"}))
	})

	It("should fail required references into failing documents", func() {
		write("B.json", `not json`)
		a := write("A.json", `{"k": {"$ref": "B.json#s", "required": true}}`)

		_, errs, err := resolveFile(a)
		Expect(errors.Is(err, resolver.ErrRequiredReferenceUnresolved)).To(BeTrue())
		Expect(errs).To(HaveLen(1))
		Expect(errs[0]).To(ContainSubstring("malformed json document"))
	})

	It("should detect circular references", func() {
		write("B.json", `{"back": {"$ref": "A.json#value"}, "value": "b"}`)
		a := write("A.json", `{"value": "a", "b": {"$ref": "B.json#value"}}`)

		resolved, errs, err := resolveFile(a)
		Expect(err).NotTo(HaveOccurred())
		b, _ := resolved.Get("b")
		Expect(b.Render()).To(Equal("b"))
		Expect(errs).To(HaveLen(1))
		Expect(errs[0]).To(ContainSubstring(resolver.ErrCircularReference.Error()))
	})

	It("should detect references into the document itself", func() {
		a := write("A.json", `{"value": "a", "self": "${A.json#value}"}`)

		_, errs, err := resolveFile(a)
		Expect(err).NotTo(HaveOccurred())
		Expect(errs).To(HaveLen(1))
		Expect(errs[0]).To(ContainSubstring("circular reference"))
	})
})
