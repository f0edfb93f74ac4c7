// Package validator checks an application and the knowledge base before a
// run, so that problems surface as a list of fixes instead of a failure
// halfway through synthesis.
package validator

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/sbenjam1n/hlsopt/internal/features"
	"github.com/sbenjam1n/hlsopt/internal/hls"
	"github.com/sbenjam1n/hlsopt/internal/kb"
	"github.com/sbenjam1n/hlsopt/internal/proposal"
	"github.com/sbenjam1n/hlsopt/internal/source"
)

// Result is the outcome of running a validation tier.
type Result struct {
	Tier    int      `json:"tier"`
	Passed  bool     `json:"passed"`
	Code    int      `json:"code"`
	Message string   `json:"message"`
	Details []Detail `json:"details,omitempty"`
}

// Detail describes a single check.
type Detail struct {
	Check    string `json:"check"`
	Passed   bool   `json:"passed"`
	Expected string `json:"expected,omitempty"`
	Got      string `json:"got,omitempty"`
	Fix      string `json:"fix,omitempty"` // set for every failing check
}

func (r *Result) fail(code int, msg string, d Detail) *Result {
	if r.Passed {
		r.Passed = false
		r.Code = code
		r.Message = msg
	}
	d.Passed = false
	r.Details = append(r.Details, d)
	return r
}

// Validator runs Tier 0 (application structure) and Tier 1 (knowledge-base
// content) checks.
type Validator struct {
	catalog *hls.Catalog
	kb      *kb.Base
	appsDir string
}

// New creates a Validator.
func New(catalog *hls.Catalog, base *kb.Base, appsDir string) *Validator {
	return &Validator{catalog: catalog, kb: base, appsDir: appsDir}
}

// Validate runs Tier 0 and, when it passes, Tier 1.
func (v *Validator) Validate(ctx context.Context, app string) (*Result, error) {
	if result := v.Tier0Structural(app); !result.Passed {
		return result, nil
	}
	return v.Tier1Knowledge(ctx, app)
}

// Tier0Structural checks that the feature dataset lists app and that its
// directory holds everything directive injection needs.
func (v *Validator) Tier0Structural(app string) *Result {
	result := &Result{Tier: 0, Passed: true}
	layout := v.kb.Layout()

	table, err := features.LoadCSV(layout.FeatureVectors())
	if err != nil {
		return result.fail(1, "Feature dataset unreadable", Detail{
			Check:    "feature_dataset",
			Expected: layout.FeatureVectors(),
			Got:      err.Error(),
			Fix:      fmt.Sprintf("Provide %s with an %s column and one numeric column per feature", layout.FeatureVectors(), features.NameColumn),
		})
	}
	found := false
	for _, n := range table.Names {
		if n == app {
			found = true
			break
		}
	}
	if !found {
		return result.fail(2, fmt.Sprintf("Application %s not in feature dataset", app), Detail{
			Check:    "application_features",
			Expected: fmt.Sprintf("a row named %s", app),
			Got:      "not found",
			Fix:      fmt.Sprintf("Extract the source-code features of %s and append them to %s", app, filepath.Base(layout.FeatureVectors())),
		})
	}

	a, err := source.LoadApplication(v.appsDir, app, v.catalog)
	if err != nil {
		return result.fail(3, fmt.Sprintf("Application %s cannot be loaded", app), Detail{
			Check:    "application_files",
			Expected: fmt.Sprintf("%s, %s and a .c/.cpp kernel in %s", source.KernelInfoFile, source.MappingFile, filepath.Join(v.appsDir, app)),
			Got:      err.Error(),
			Fix:      "Add the missing file; the first line of " + source.KernelInfoFile + " names the top function",
		})
	}

	markers, err := source.ScanMarkers(filepath.Join(a.Dir, a.Source))
	if err != nil {
		return result.fail(3, fmt.Sprintf("Kernel %s unreadable", a.Source), Detail{
			Check: "application_files", Got: err.Error(), Fix: "Check the permissions of " + a.Source,
		})
	}
	for _, w := range source.CheckSites(a.Sites, markers) {
		result.fail(4, fmt.Sprintf("Markers of %s do not match %s", a.Source, source.MappingFile), Detail{
			Check:    "markers",
			Expected: "one L<k> marker per mapped label, in order",
			Got:      w,
			Fix:      fmt.Sprintf("Label the loop or array declaration in %s, or fix %s", a.Source, source.MappingFile),
		})
	}
	if result.Passed {
		result.Message = "Tier 0 passed"
	}
	return result
}

// Tier1Knowledge checks that the features can be reduced and that every
// donor's Pareto table parses against the catalog with well-formed
// directives. Every bad table is reported, not only the first.
func (v *Validator) Tier1Knowledge(ctx context.Context, app string) (*Result, error) {
	result := &Result{Tier: 1, Passed: true}
	layout := v.kb.Layout()

	table, err := features.LoadCSV(layout.FeatureVectors())
	if err != nil {
		return nil, err
	}
	if _, err := features.Standardize(table.Rows); err != nil {
		fix := "Remove rows with missing values"
		if errors.Is(err, features.ErrZeroVariance) {
			fix = "Drop the constant feature column"
		}
		result.fail(-1, "Feature dataset cannot be standardized", Detail{
			Check: "feature_variance", Expected: "non-constant feature columns", Got: err.Error(), Fix: fix,
		})
	}

	missing := 0
	for _, donor := range table.Names {
		if donor == app {
			continue
		}
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if _, err := os.Stat(layout.ParetoFile(donor)); errors.Is(err, os.ErrNotExist) {
			missing++
			continue
		}
		recs, err := v.kb.Records(donor)
		if err != nil {
			result.fail(-2, "Pareto table unreadable", Detail{
				Check:    "pareto_table",
				Expected: "one column per action point plus the QoR columns",
				Got:      err.Error(),
				Fix:      fmt.Sprintf("Regenerate %s or export the catalog it was written with (hlsopt catalog export)", layout.ParetoFile(donor)),
			})
			continue
		}
		if _, err := proposal.Canonicalize(v.catalog, recs); err != nil {
			result.fail(-3, "Malformed directive in Pareto table", Detail{
				Check:    "directive_syntax",
				Expected: "NDIR or a pipeline/unroll/array_partition pragma",
				Got:      err.Error(),
				Fix:      fmt.Sprintf("Correct the directive in %s", layout.ParetoFile(donor)),
			})
		}
	}
	result.Details = append(result.Details, Detail{
		Check:  "pareto_coverage",
		Passed: true,
		Got:    fmt.Sprintf("%d of %d donor(s) without a Pareto table", missing, len(table.Names)-1),
	})

	if result.Passed {
		result.Message = "Tier 1 passed"
	}
	return result, nil
}
