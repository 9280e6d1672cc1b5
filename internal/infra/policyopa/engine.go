package policyopa

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/open-policy-agent/opa/ast"
	"github.com/open-policy-agent/opa/rego"

	"github.com/cosu123/reality-firewall-v3/internal/domain"
	cryptoinfra "github.com/cosu123/reality-firewall-v3/internal/infra/crypto"
)

const defaultQuery = "data.firewall.enforcement.result"

// Engine evaluates a rego bundle that may veto an enforcement the guard
// would otherwise commit. It can only deny, never widen bounds.
type Engine struct {
	query      rego.PreparedEvalQuery
	bundleHash string
}

func NewEngineFromPath(ctx context.Context, bundlePath string) (*Engine, error) {
	bundleHash, err := BundleHash(os.DirFS(bundlePath))
	if err != nil {
		return nil, fmt.Errorf("hash policy bundle: %w", err)
	}

	capabilities := ast.CapabilitiesForThisVersion()
	capabilities.Builtins = filterBuiltins(capabilities.Builtins)
	compiler := ast.NewCompiler().WithCapabilities(capabilities)

	prepared, err := rego.New(
		rego.Query(defaultQuery),
		rego.Compiler(compiler),
		rego.StrictBuiltinErrors(true),
		rego.Load([]string{bundlePath}, nil),
	).PrepareForEval(ctx)
	if err != nil {
		return nil, err
	}
	if err := assertNoForbiddenBuiltins(compiler); err != nil {
		return nil, err
	}
	return &Engine{query: prepared, bundleHash: bundleHash}, nil
}

func (e *Engine) BundleHash() string {
	return e.bundleHash
}

func (e *Engine) Evaluate(ctx context.Context, input domain.EnforcementPolicyInput) (domain.PolicyResult, error) {
	if e == nil {
		return domain.PolicyResult{}, errors.New("policy engine is nil")
	}
	results, err := e.query.Eval(ctx, rego.EvalInput(input))
	if err != nil {
		return domain.PolicyResult{}, err
	}
	if len(results) == 0 || len(results[0].Expressions) == 0 {
		return domain.PolicyResult{}, errors.New("empty policy result")
	}
	payload, err := json.Marshal(results[0].Expressions[0].Value)
	if err != nil {
		return domain.PolicyResult{}, err
	}
	var result domain.PolicyResult
	if err := json.Unmarshal(payload, &result); err != nil {
		return domain.PolicyResult{}, fmt.Errorf("decode policy result: %w", err)
	}
	sort.Slice(result.Deny, func(i, j int) bool {
		if result.Deny[i].Code == result.Deny[j].Code {
			return result.Deny[i].Message < result.Deny[j].Message
		}
		return result.Deny[i].Code < result.Deny[j].Code
	})
	return result, nil
}

// BundleHash digests every .rego and data.json file under fsys, sorted by path.
func BundleHash(fsys fs.FS) (string, error) {
	type bundleFile struct {
		Path   string `json:"path"`
		SHA256 string `json:"sha256"`
	}
	var files []bundleFile
	err := fs.WalkDir(fsys, ".", func(path string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		base := filepath.Base(path)
		if d.IsDir() {
			if path != "." && strings.HasPrefix(base, ".") {
				return fs.SkipDir
			}
			return nil
		}
		if !strings.HasSuffix(base, ".rego") && base != "data.json" {
			return nil
		}
		data, err := fs.ReadFile(fsys, path)
		if err != nil {
			return err
		}
		files = append(files, bundleFile{Path: filepath.ToSlash(path), SHA256: cryptoinfra.Hash(data)})
		return nil
	})
	if err != nil {
		return "", err
	}
	if len(files) == 0 {
		return "", errors.New("policy bundle has no rego files")
	}
	sort.Slice(files, func(i, j int) bool { return files[i].Path < files[j].Path })
	return cryptoinfra.HashValue(map[string]any{"files": files})
}

func assertNoForbiddenBuiltins(compiler *ast.Compiler) error {
	forbidden := make(map[string]struct{})
	for _, module := range compiler.Modules {
		ast.WalkTerms(module, func(term *ast.Term) bool {
			call, ok := term.Value.(ast.Call)
			if !ok || len(call) == 0 || call[0] == nil {
				return false
			}
			name := call[0].Value.String()
			if _, ok := ast.BuiltinMap[name]; !ok {
				return false
			}
			if _, ok := allowedBuiltins[name]; ok {
				return false
			}
			forbidden[name] = struct{}{}
			return false
		})
	}
	if len(forbidden) == 0 {
		return nil
	}
	names := make([]string, 0, len(forbidden))
	for name := range forbidden {
		names = append(names, name)
	}
	sort.Strings(names)
	return fmt.Errorf("forbidden builtins: %s", strings.Join(names, ", "))
}

var _ domain.PolicyEngine = (*Engine)(nil)
