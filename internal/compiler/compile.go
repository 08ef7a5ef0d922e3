package compiler

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/google/uuid"

	"github.com/vulcan-ci/vulcan/internal/domain"
	"github.com/vulcan-ci/vulcan/internal/vulcanerr"
)

// Fetcher retrieves the body of an imported workflow document by URL. It is
// an injected capability so the compiler stays pure and testable; CLI mode
// may run with Fetcher == nil, in which case any `from` node fails with
// ImportsDisabled.
type Fetcher interface {
	Fetch(url string) (string, error)
}

// FetcherFunc adapts a plain function to the Fetcher interface.
type FetcherFunc func(url string) (string, error)

func (f FetcherFunc) Fetch(url string) (string, error) { return f(url) }

// Compiler turns a workflow document into a chain and its flattened fragment
// tree, resolving imports along the way.
type Compiler struct {
	Fetcher Fetcher
}

func New(fetcher Fetcher) *Compiler {
	return &Compiler{Fetcher: fetcher}
}

// Compile parses and validates src, then produces a chain (in its initial
// pending state) and its ordered fragment list ready for atomic insertion.
func (c *Compiler) Compile(tenantID string, src string, prov domain.Provenance) (*domain.Chain, []*domain.Fragment, error) {
	doc, err := parseDocument(src)
	if err != nil {
		return nil, nil, err
	}

	if prov.TriggerKind != "" {
		matched := false
		for _, t := range doc.triggers {
			if t == string(prov.TriggerKind) {
				matched = true
				break
			}
		}
		if !matched {
			return nil, nil, &vulcanerr.CompileError{
				Kind:    vulcanerr.TriggerMismatch,
				Message: fmt.Sprintf("trigger %q is not declared in document triggers %v", prov.TriggerKind, doc.triggers),
			}
		}
	}

	chain := domain.NewChain(tenantID, doc.chain.machine, prov)

	visited := map[string]bool{}
	fragments, err := c.flatten(doc.chain.items, chain.ID, nil, "", visited)
	if err != nil {
		return nil, nil, err
	}

	for _, f := range fragments {
		if f.Kind == domain.FragmentInline && f.EffectiveMachine(chain.DefaultMachine) == "" {
			return nil, nil, &vulcanerr.CompileError{Kind: vulcanerr.NoMachine, Message: "fragment has neither its own nor an inherited machine"}
		}
	}

	return chain, fragments, nil
}

// flatten walks items in source order, producing a pre-order fragment list
// with dense per-parent sequence numbers starting at 0. A `from` item expands
// in place into the imported document's own flattened fragments.
func (c *Compiler) flatten(items []*item, chainID uuid.UUID, parentID *uuid.UUID, sourceURL string, visited map[string]bool) ([]*domain.Fragment, error) {
	var out []*domain.Fragment
	seq := 0

	for _, it := range items {
		if it.kind == "parallel" {
			groupID := uuid.New()
			group := &domain.Fragment{
				ID:         groupID,
				ChainID:    chainID,
				ParentID:   parentID,
				Sequence:   seq,
				Kind:       domain.FragmentGroup,
				IsParallel: true,
				SourceURL:  sourceURL,
				Status:     domain.FragmentPending,
			}
			seq++
			out = append(out, group)

			children, err := c.flatten(it.children, chainID, &groupID, sourceURL, visited)
			if err != nil {
				return nil, err
			}
			out = append(out, children...)
			continue
		}

		hasRun := it.run != ""
		hasFrom := it.from != ""
		if hasRun == hasFrom {
			return nil, &vulcanerr.CompileError{
				Kind:     vulcanerr.MutualExclusion,
				Position: fmt.Sprintf("line %d", it.line),
				Message:  "fragment must have exactly one of run or from",
			}
		}

		if hasFrom {
			importedFrags, err := c.flattenImport(it.from, chainID, parentID, visited)
			if err != nil {
				return nil, err
			}
			for _, f := range importedFrags {
				if f.ParentID == parentID {
					f.Sequence = seq
					seq++
				}
			}
			out = append(out, importedFrags...)
			continue
		}

		out = append(out, &domain.Fragment{
			ID:              uuid.New(),
			ChainID:         chainID,
			ParentID:        parentID,
			Sequence:        seq,
			Kind:            domain.FragmentInline,
			Script:          it.run,
			MachineOverride: it.machine,
			Condition:       it.condition,
			SourceURL:       sourceURL,
			Status:          domain.FragmentPending,
			Attempt:         1,
		})
		seq++
	}

	return out, nil
}

// flattenImport fetches, parses, and flattens the document at rawURL in
// place, guarding against cycles with a DFS path-visited set: a URL is
// marked visited on entry and unmarked only once its entire subtree
// (including any imports nested inside it) has been flattened, so diamond
// imports (the same URL reached twice via different branches) are fine but
// true cycles — including self-import — are rejected.
func (c *Compiler) flattenImport(rawURL string, chainID uuid.UUID, parentID *uuid.UUID, visited map[string]bool) ([]*domain.Fragment, error) {
	if c.Fetcher == nil {
		return nil, &vulcanerr.CompileError{Kind: vulcanerr.ImportsDisabled, Message: rawURL}
	}
	if !isValidURL(rawURL) {
		return nil, &vulcanerr.CompileError{Kind: vulcanerr.InvalidURL, Message: rawURL}
	}
	if visited[rawURL] {
		return nil, &vulcanerr.CompileError{Kind: vulcanerr.CircularImport, Message: rawURL}
	}

	body, err := c.Fetcher.Fetch(rawURL)
	if err != nil {
		return nil, &vulcanerr.CompileError{Kind: vulcanerr.FetchFailed, Message: err.Error()}
	}
	imported, err := parseImportDocument(body)
	if err != nil {
		return nil, err
	}

	visited[rawURL] = true
	defer delete(visited, rawURL)

	return c.flatten(imported, chainID, parentID, rawURL, visited)
}

func isValidURL(raw string) bool {
	if !strings.HasPrefix(raw, "http://") && !strings.HasPrefix(raw, "https://") {
		return false
	}
	u, err := url.Parse(raw)
	return err == nil && u.Host != ""
}
